package knowledge

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	_ "modernc.org/sqlite"

	"github.com/ncolesummers/weather-insights-agent/pkg/domain"
	"github.com/ncolesummers/weather-insights-agent/pkg/observability"
)

// DefaultCollection is the collection name reported by Stats
const DefaultCollection = "weather_knowledge"

// Result limits used by contextual retrieval
const (
	contextualLimit = 5
	compositeLimit  = 3
	categoryLimit   = 2
)

// audienceContext enriches the composite query with audience vocabulary
var audienceContext = map[domain.Audience]string{
	domain.AudienceFarmers:   "agricultural farming crop livestock",
	domain.AudienceOfficials: "disaster emergency community safety",
	domain.AudienceGeneral:   "daily activities safety preparation",
}

const schema = `
CREATE TABLE IF NOT EXISTS knowledge_documents (
	id         TEXT PRIMARY KEY,
	collection TEXT NOT NULL,
	title      TEXT NOT NULL,
	content    TEXT NOT NULL,
	category   TEXT NOT NULL,
	location   TEXT,
	tags       TEXT NOT NULL DEFAULT '[]',
	source     TEXT NOT NULL,
	created_at TEXT NOT NULL,
	embedding  BLOB NOT NULL,
	norm       REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_knowledge_collection_category
	ON knowledge_documents(collection, category);
`

// Store is a sqlite-backed knowledge corpus with brute-force cosine search
type Store struct {
	db         *sql.DB
	embedder   Embedder
	collection string
	clock      clockwork.Clock
	logger     *observability.StructuredLogger
	metrics    *observability.Metrics

	seedMu sync.Mutex
	seeded bool
}

// Option configures a Store
type Option func(*Store)

// WithCollection sets the collection name
func WithCollection(name string) Option {
	return func(s *Store) {
		if name != "" {
			s.collection = name
		}
	}
}

// WithClock sets the clock used for document timestamps
func WithClock(clock clockwork.Clock) Option {
	return func(s *Store) {
		s.clock = clock
	}
}

// WithMetrics records search outcomes
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Store) {
		s.metrics = m
	}
}

// WithLogger overrides the store logger
func WithLogger(l *observability.StructuredLogger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// Open opens (or creates) the knowledge database at path.
// An empty path or ":memory:" keeps the corpus in memory for the life of the Store.
func Open(path string, embedder Embedder, opts ...Option) (*Store, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}

	inMemory := path == "" || path == ":memory:"
	if inMemory {
		path = ":memory:"
	} else if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, &domain.StoreError{Op: "open", Err: err}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, &domain.StoreError{Op: "open", Err: err}
	}

	// Every connection to ":memory:" is a separate database
	if inMemory {
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{"PRAGMA busy_timeout = 10000", "PRAGMA foreign_keys = ON"}
	if !inMemory {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL", "PRAGMA synchronous = NORMAL")
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, &domain.StoreError{Op: "open", Err: fmt.Errorf("%s: %w", p, err)}
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, &domain.StoreError{Op: "migrate", Err: err}
	}

	s := &Store{
		db:         db,
		embedder:   embedder,
		collection: DefaultCollection,
		clock:      clockwork.NewRealClock(),
		logger:     observability.NewStructuredLogger("knowledge_store"),
	}
	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}

// ensureSeeded writes the reference corpus the first time an empty collection is used
func (s *Store) ensureSeeded(ctx context.Context) error {
	s.seedMu.Lock()
	defer s.seedMu.Unlock()

	if s.seeded {
		return nil
	}

	var count int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM knowledge_documents WHERE collection = ?`, s.collection,
	).Scan(&count); err != nil {
		return &domain.StoreError{Op: "seed", Err: err}
	}

	if count == 0 {
		if err := s.seed(ctx); err != nil {
			return &domain.StoreError{Op: "seed", Err: err}
		}
		s.logger.Info(ctx, "Seeded knowledge collection", map[string]interface{}{
			"collection": s.collection,
			"documents":  len(seedDocuments),
		})
	}

	s.seeded = true
	return nil
}

// Add indexes a new document, assigning an ID and timestamp when absent
func (s *Store) Add(ctx context.Context, doc domain.KnowledgeDocument) error {
	if strings.TrimSpace(doc.Content) == "" {
		return &domain.StoreError{Op: "add", Err: errors.New("document content is empty")}
	}
	if err := s.ensureSeeded(ctx); err != nil {
		return err
	}
	if err := s.insert(ctx, doc); err != nil {
		return &domain.StoreError{Op: "add", Err: err}
	}
	return nil
}

// seed embeds the whole reference corpus before writing any of it, then inserts
// it in one transaction so a failed embedding leaves the collection empty
func (s *Store) seed(ctx context.Context) error {
	rows := make([]documentRow, 0, len(seedDocuments))
	for _, doc := range seedDocuments {
		doc.Source = "system"
		row, err := s.prepare(ctx, doc)
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, row := range rows {
		if err := s.write(ctx, tx, row); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) insert(ctx context.Context, doc domain.KnowledgeDocument) error {
	row, err := s.prepare(ctx, doc)
	if err != nil {
		return err
	}
	return s.write(ctx, s.db, row)
}

// documentRow is a document with defaults applied and its embedding computed
type documentRow struct {
	doc  domain.KnowledgeDocument
	tags string
	vec  []float32
}

func (s *Store) prepare(ctx context.Context, doc domain.KnowledgeDocument) (documentRow, error) {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = s.clock.Now().In(domain.PhilippineTZ)
	}
	if doc.Category == "" {
		doc.Category = domain.KnowledgeWeatherAdvisory
	}
	if doc.Source == "" {
		doc.Source = "system"
	}
	if doc.Tags == nil {
		doc.Tags = []string{}
	}

	vec, err := s.embedder.Embed(ctx, doc.Content)
	if err != nil {
		return documentRow{}, err
	}

	tags, err := json.Marshal(doc.Tags)
	if err != nil {
		return documentRow{}, fmt.Errorf("failed to encode tags: %w", err)
	}
	return documentRow{doc: doc, tags: string(tags), vec: vec}, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func (s *Store) write(ctx context.Context, db execer, row documentRow) error {
	doc := row.doc
	var location sql.NullString
	if doc.Location != "" {
		location = sql.NullString{String: doc.Location, Valid: true}
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO knowledge_documents
			(id, collection, title, content, category, location, tags, source, created_at, embedding, norm)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			content = excluded.content,
			category = excluded.category,
			location = excluded.location,
			tags = excluded.tags,
			source = excluded.source,
			embedding = excluded.embedding,
			norm = excluded.norm`,
		doc.ID, s.collection, doc.Title, doc.Content, string(doc.Category), location,
		row.tags, doc.Source, doc.CreatedAt.Format(time.RFC3339Nano),
		encodeVector(row.vec), l2Norm(row.vec),
	)
	return err
}

// Search returns up to limit documents ranked by cosine similarity to query
func (s *Store) Search(ctx context.Context, query string, limit int, filter domain.SearchFilter) ([]domain.RetrievalResult, error) {
	results, err := s.search(ctx, query, limit, filter)
	if s.metrics != nil {
		s.metrics.RecordKnowledgeSearch(ctx, err == nil)
	}
	return results, err
}

func (s *Store) search(ctx context.Context, query string, limit int, filter domain.SearchFilter) ([]domain.RetrievalResult, error) {
	if limit <= 0 {
		limit = 5
	}
	if err := s.ensureSeeded(ctx); err != nil {
		return nil, err
	}

	qvec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, &domain.StoreError{Op: "search", Err: err}
	}
	qnorm := l2Norm(qvec)

	stmt := `SELECT content, source, category, COALESCE(location, ''), embedding, norm
		FROM knowledge_documents WHERE collection = ?`
	args := []interface{}{s.collection}
	if filter.Category != "" {
		stmt += ` AND category = ?`
		args = append(args, string(filter.Category))
	}
	if filter.Location != "" {
		stmt += ` AND location = ?`
		args = append(args, filter.Location)
	}

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, &domain.StoreError{Op: "search", Err: err}
	}
	defer rows.Close()

	var candidates []domain.RetrievalResult
	for rows.Next() {
		var (
			r    domain.RetrievalResult
			cat  string
			blob []byte
			norm float64
		)
		if err := rows.Scan(&r.Content, &r.Source, &cat, &r.Location, &blob, &norm); err != nil {
			return nil, &domain.StoreError{Op: "search", Err: err}
		}
		r.Category = domain.KnowledgeCategory(cat)
		r.Score = cosineSimilarity(qvec, decodeVector(blob), qnorm, norm)
		candidates = append(candidates, r)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.StoreError{Op: "search", Err: err}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})

	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

// Stats reports document counts and vector configuration
func (s *Store) Stats(ctx context.Context) (*domain.KnowledgeStats, error) {
	if err := s.ensureSeeded(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT category, COUNT(*) FROM knowledge_documents WHERE collection = ? GROUP BY category`,
		s.collection)
	if err != nil {
		return nil, &domain.StoreError{Op: "stats", Err: err}
	}
	defer rows.Close()

	stats := &domain.KnowledgeStats{
		VectorDimension:      s.embedder.Dimension(),
		CategoryDistribution: map[domain.KnowledgeCategory]int{},
		CollectionName:       s.collection,
	}
	for rows.Next() {
		var (
			cat   string
			count int
		)
		if err := rows.Scan(&cat, &count); err != nil {
			return nil, &domain.StoreError{Op: "stats", Err: err}
		}
		stats.CategoryDistribution[domain.KnowledgeCategory(cat)] = count
		stats.TotalDocuments += count
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.StoreError{Op: "stats", Err: err}
	}

	return stats, nil
}

// Contextual runs the composite, audience and advisory searches and merges them.
// A failing search is logged and contributes no results.
func (s *Store) Contextual(ctx context.Context, q domain.ContextQuery) []domain.RetrievalResult {
	audience := domain.ParseAudience(string(q.Audience))

	composite := strings.TrimSpace(q.Conditions + " " + audienceContext[audience])
	if q.Location != "" {
		composite += " " + q.Location
	}

	condition := q.Condition
	if condition == "" {
		condition = q.Conditions
	}

	var batches [][]domain.RetrievalResult
	run := func(branch, query string, limit int, filter domain.SearchFilter) {
		results, err := s.Search(ctx, query, limit, filter)
		if err != nil {
			s.logger.Error(ctx, "Knowledge search failed", err, map[string]interface{}{
				"branch":   branch,
				"location": q.Location,
				"audience": string(audience),
			})
			return
		}
		batches = append(batches, results)
	}

	run("composite", composite, compositeLimit, domain.SearchFilter{})
	if audience == domain.AudienceFarmers {
		run("best_practice", condition, categoryLimit, domain.SearchFilter{Category: domain.KnowledgeBestPractice})
	}
	run("weather_advisory", condition, categoryLimit, domain.SearchFilter{Category: domain.KnowledgeWeatherAdvisory})

	return MergeResults(contextualLimit, batches...)
}

// MergeResults deduplicates by content keeping the higher score,
// sorts by score descending and truncates to limit.
func MergeResults(limit int, batches ...[]domain.RetrievalResult) []domain.RetrievalResult {
	index := make(map[string]int)
	merged := make([]domain.RetrievalResult, 0)

	for _, batch := range batches {
		for _, r := range batch {
			if i, ok := index[r.Content]; ok {
				if r.Score > merged[i].Score {
					merged[i] = r
				}
				continue
			}
			index[r.Content] = len(merged)
			merged = append(merged, r)
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Score > merged[j].Score
	})

	if limit > 0 && len(merged) > limit {
		merged = merged[:limit]
	}
	return merged
}

// AddHistoricalPattern records an observed pattern and its outcome for a location
func (s *Store) AddHistoricalPattern(ctx context.Context, location, description string, data map[string]interface{}, outcome string) error {
	encoded, err := json.Marshal(data)
	if err != nil {
		return &domain.StoreError{Op: "add", Err: fmt.Errorf("failed to encode pattern data: %w", err)}
	}

	doc := domain.KnowledgeDocument{
		Title: "Historical Pattern: " + location,
		Content: fmt.Sprintf("Weather Pattern: %s\nData: %s\nOutcome: %s\nLocation: %s",
			description, encoded, outcome, location),
		Category: domain.KnowledgeHistoricalPattern,
		Location: location,
		Tags:     []string{"historical", "pattern", strings.ToLower(location)},
		Source:   "system",
	}

	return s.Add(ctx, doc)
}
