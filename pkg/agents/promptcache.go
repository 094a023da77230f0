package agents

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ncolesummers/weather-insights-agent/pkg/domain"
	"github.com/ncolesummers/weather-insights-agent/pkg/observability"
)

// generateTimeout bounds one shared template generation
const generateTimeout = 2 * time.Minute

// PromptGenerator authors a prompt template for an audience
type PromptGenerator func(ctx context.Context, audience domain.Audience) (string, error)

// PromptCache holds one generated prompt template per audience for the life of its owner.
// Concurrent first requests for the same audience share a single generation call,
// and a failed generation is not cached.
type PromptCache struct {
	agent    string
	generate PromptGenerator
	metrics  *observability.Metrics
	logger   *observability.StructuredLogger

	mu        sync.RWMutex
	templates map[domain.Audience]string
	group     singleflight.Group
}

// NewPromptCache creates a prompt cache for the named agent
func NewPromptCache(agent string, generate PromptGenerator, metrics *observability.Metrics) *PromptCache {
	return &PromptCache{
		agent:     agent,
		generate:  generate,
		metrics:   metrics,
		logger:    observability.NewStructuredLogger(agent),
		templates: make(map[domain.Audience]string),
	}
}

// Get returns the cached template for audience, generating it on first use
func (c *PromptCache) Get(ctx context.Context, audience domain.Audience) (string, error) {
	if tmpl, ok := c.lookup(audience); ok {
		c.record(ctx, true)
		c.logger.Debug(ctx, "Using cached prompt", map[string]interface{}{"audience": string(audience)})
		return tmpl, nil
	}
	c.record(ctx, false)

	// The shared generation outlives any single caller; each caller waits on its own ctx
	ch := c.group.DoChan(string(audience), func() (interface{}, error) {
		if tmpl, ok := c.lookup(audience); ok {
			return tmpl, nil
		}

		genCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), generateTimeout)
		defer cancel()

		c.logger.Info(genCtx, "Generating prompt for audience", map[string]interface{}{"audience": string(audience)})
		tmpl, err := c.generate(genCtx, audience)
		if err != nil {
			return "", err
		}

		c.mu.Lock()
		c.templates[audience] = tmpl
		c.mu.Unlock()
		return tmpl, nil
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// Len returns the number of cached templates
func (c *PromptCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.templates)
}

func (c *PromptCache) lookup(audience domain.Audience) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	tmpl, ok := c.templates[audience]
	return tmpl, ok
}

func (c *PromptCache) record(ctx context.Context, hit bool) {
	if c.metrics != nil {
		c.metrics.RecordPromptCacheLookup(ctx, c.agent, hit)
	}
}

// placeholder is a named data block substituted into a generated template
type placeholder struct {
	name  string
	label string
	value string
}

// renderTemplate replaces each {name} in tmpl with its value.
// A block whose placeholder the template omits is appended under its label.
func renderTemplate(tmpl string, blocks ...placeholder) string {
	// Generated templates sometimes carry escaped {{name}} placeholders
	tmpl = strings.NewReplacer("{{", "{", "}}", "}").Replace(tmpl)

	var b strings.Builder
	for _, p := range blocks {
		token := "{" + p.name + "}"
		if strings.Contains(tmpl, token) {
			tmpl = strings.ReplaceAll(tmpl, token, p.value)
			continue
		}
		b.WriteString("\n\n")
		b.WriteString(p.label)
		b.WriteString(":\n")
		b.WriteString(p.value)
	}
	return tmpl + b.String()
}
