package knowledge

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"unicode"

	"github.com/ncolesummers/weather-insights-agent/pkg/domain"
)

// Embedder turns text into a fixed-width vector
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// HashEmbedder is a deterministic bag-of-words embedder using signed feature hashing.
// It needs no model server, so the store works offline and in tests.
type HashEmbedder struct {
	dim int
}

// NewHashEmbedder creates a hash embedder producing vectors of width dim
func NewHashEmbedder(dim int) *HashEmbedder {
	if dim <= 0 {
		dim = 384
	}
	return &HashEmbedder{dim: dim}
}

// Dimension returns the vector width
func (e *HashEmbedder) Dimension() int {
	return e.dim
}

// Embed hashes unigrams and bigrams of the lowercased text into a unit vector
func (e *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dim)

	tokens := tokenize(text)
	for i, tok := range tokens {
		e.add(vec, tok, 1.0)
		if i > 0 {
			e.add(vec, tokens[i-1]+" "+tok, 0.5)
		}
	}

	norm := l2Norm(vec)
	if norm == 0 {
		return vec, nil
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec, nil
}

func (e *HashEmbedder) add(vec []float32, feature string, weight float32) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()

	idx := int(sum % uint64(e.dim))
	if sum&(1<<63) != 0 {
		weight = -weight
	}
	vec[idx] += weight
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// LLMEmbedder delegates to the text generation backend's embedding endpoint
type LLMEmbedder struct {
	client domain.LLMClient
	dim    int
}

// NewLLMEmbedder creates an embedder backed by client; dim must match the model's output width
func NewLLMEmbedder(client domain.LLMClient, dim int) *LLMEmbedder {
	return &LLMEmbedder{client: client, dim: dim}
}

// Dimension returns the vector width
func (e *LLMEmbedder) Dimension() int {
	return e.dim
}

// Embed requests an embedding and narrows it to float32
func (e *LLMEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	raw, err := e.client.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed text: %w", err)
	}
	if len(raw) != e.dim {
		return nil, fmt.Errorf("embedding has dimension %d, want %d", len(raw), e.dim)
	}

	vec := make([]float32, len(raw))
	for i, v := range raw {
		vec[i] = float32(v)
	}
	return vec, nil
}
