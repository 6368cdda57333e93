// Package index wires the skill catalog into the document store and the
// vector collection, and serves semantic lookups over both.
package index

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/halgrim/skilldex/internal/catalog"
	"github.com/halgrim/skilldex/internal/embedding"
	"github.com/halgrim/skilldex/internal/harness"
	"github.com/halgrim/skilldex/internal/skill"
	"github.com/halgrim/skilldex/internal/store"
	"github.com/halgrim/skilldex/internal/vectorstore"
)

// pointNamespace keys the deterministic point id derived from a skill id, so
// re-ingesting a skill overwrites its point instead of duplicating it.
var pointNamespace = uuid.MustParse("8f6a2c1e-4b9d-4f3a-9c7e-2d5b8a1f0e63")

// DefinitionStore is the persistence surface the index needs.
type DefinitionStore interface {
	SaveDefinition(ctx context.Context, def *skill.Definition) error
	GetDefinition(ctx context.Context, id string) (*skill.Definition, error)
	DeleteAll(ctx context.Context) error
	CountSkills(ctx context.Context) (int, error)
}

// DefinitionCache is an optional read-through cache in front of the store.
type DefinitionCache interface {
	Get(ctx context.Context, id string) (*skill.Definition, bool)
	Put(ctx context.Context, def *skill.Definition)
	Flush(ctx context.Context) error
}

// VectorStore is the collection surface the index needs.
type VectorStore interface {
	EnsureCollection(ctx context.Context, name string, dimension uint64) (bool, error)
	DropCollection(ctx context.Context, name string) (bool, error)
	Describe(ctx context.Context, name string) (*vectorstore.Info, error)
	Upsert(ctx context.Context, collection string, id string, vector []float32, payload map[string]string) error
	Search(ctx context.Context, collection string, vector []float32, topK uint64, domain string) ([]*vectorstore.SearchResult, error)
}

// Service indexes definitions and answers discovery queries. It implements
// harness.Searcher and harness.Resolver.
type Service struct {
	store      DefinitionStore
	cache      DefinitionCache // may be nil
	vectors    VectorStore
	embedder   embedding.Provider
	collection string
	logger     *zap.Logger
}

// New builds an index Service. cache may be nil, which disables caching.
func New(store DefinitionStore, cache DefinitionCache, vectors VectorStore, embedder embedding.Provider, collection string, logger *zap.Logger) *Service {
	return &Service{
		store:      store,
		cache:      cache,
		vectors:    vectors,
		embedder:   embedder,
		collection: collection,
		logger:     logger,
	}
}

// Setup ensures the vector collection exists at the embedder's dimension.
func (s *Service) Setup(ctx context.Context) (created bool, err error) {
	dim := s.embedder.Dimension()
	if dim <= 0 {
		return false, fmt.Errorf("index setup: embedder reports dimension %d", dim)
	}
	return s.vectors.EnsureCollection(ctx, s.collection, uint64(dim))
}

// Teardown drops the vector collection, clears stored definitions and
// flushes the cache. It is idempotent: tearing down an absent index succeeds.
func (s *Service) Teardown(ctx context.Context) (dropped bool, err error) {
	dropped, err = s.vectors.DropCollection(ctx, s.collection)
	if err != nil {
		return false, fmt.Errorf("index teardown: %w", err)
	}
	if err := s.store.DeleteAll(ctx); err != nil {
		return dropped, fmt.Errorf("index teardown: %w", err)
	}
	if s.cache != nil {
		if err := s.cache.Flush(ctx); err != nil {
			s.logger.Warn("cache flush failed during teardown", zap.Error(err))
		}
	}
	return dropped, nil
}

// Report summarizes one ingest run.
type Report struct {
	Indexed  int               `json:"indexed"`
	Failed   int               `json:"failed"`
	Failures []catalog.Failure `json:"failures,omitempty"`
}

// Ingest loads every skill bundle under dir and indexes the valid ones.
// Malformed bundles are reported, not fatal.
func (s *Service) Ingest(ctx context.Context, dir string) (*Report, error) {
	defs, failures, err := catalog.LoadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("ingest %s: %w", dir, err)
	}

	report := &Report{Failed: len(failures), Failures: failures}
	for _, f := range failures {
		s.logger.Warn("skipping malformed skill bundle",
			zap.String("dir", f.Dir), zap.Error(f.Err))
	}

	for _, def := range defs {
		if err := s.IndexDefinition(ctx, def); err != nil {
			return report, err
		}
		report.Indexed++
	}

	s.logger.Info("ingest complete",
		zap.String("dir", dir),
		zap.Int("indexed", report.Indexed),
		zap.Int("failed", report.Failed))
	return report, nil
}

// IndexDefinition persists one definition and upserts its vector point.
func (s *Service) IndexDefinition(ctx context.Context, def *skill.Definition) error {
	if err := s.store.SaveDefinition(ctx, def); err != nil {
		return fmt.Errorf("index %s: %w", def.ID, err)
	}

	vectors, err := s.embedder.Embed(ctx, []string{def.SearchText()})
	if err != nil {
		return fmt.Errorf("index %s: embed: %w", def.ID, err)
	}
	if len(vectors) != 1 {
		return fmt.Errorf("index %s: got %d vectors, want 1", def.ID, len(vectors))
	}

	payload := map[string]string{
		"skill_id":          def.ID,
		"domain":            def.Domain,
		"title":             def.Title,
		"short_description": def.ShortDescription,
		"tags":              strings.Join(def.Tags, ","),
	}
	pointID := uuid.NewSHA1(pointNamespace, []byte(def.ID)).String()
	if err := s.vectors.Upsert(ctx, s.collection, pointID, vectors[0], payload); err != nil {
		return fmt.Errorf("index %s: upsert: %w", def.ID, err)
	}

	if s.cache != nil {
		s.cache.Put(ctx, def)
	}
	return nil
}

// Search embeds the query text and returns ranked candidates. Domain is
// filtered in the vector store; tags are filtered on the returned payloads.
func (s *Service) Search(ctx context.Context, q harness.Query) ([]harness.Candidate, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 5
	}

	vectors, err := s.embedder.Embed(ctx, []string{q.Text})
	if err != nil {
		return nil, fmt.Errorf("search: embed: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("search: got %d vectors, want 1", len(vectors))
	}

	// Over-fetch when tag filtering will discard hits afterwards.
	topK := uint64(limit)
	if len(q.Tags) > 0 {
		topK *= 4
	}

	hits, err := s.vectors.Search(ctx, s.collection, vectors[0], topK, q.Domain)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	candidates := make([]harness.Candidate, 0, limit)
	for _, hit := range hits {
		if hit.Score <= 0 {
			continue
		}
		if !matchesTags(hit.Payload["tags"], q.Tags) {
			continue
		}
		candidates = append(candidates, harness.Candidate{
			SkillID: hit.Payload["skill_id"],
			Score:   hit.Score,
			Title:   hit.Payload["title"],
			Domain:  hit.Payload["domain"],
		})
		if len(candidates) == limit {
			break
		}
	}
	return candidates, nil
}

// Resolve fetches the full definition for id, consulting the cache first.
// Unknown ids yield harness.ErrDefinitionNotFound.
func (s *Service) Resolve(ctx context.Context, id string) (*skill.Definition, error) {
	if s.cache != nil {
		if def, ok := s.cache.Get(ctx, id); ok {
			return def, nil
		}
	}

	def, err := s.store.GetDefinition(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("skill %s: %w", id, harness.ErrDefinitionNotFound)
		}
		return nil, fmt.Errorf("resolve %s: %w", id, err)
	}

	if s.cache != nil {
		s.cache.Put(ctx, def)
	}
	return def, nil
}

// Status pairs the collection state with the stored definition count.
type Status struct {
	Collection *vectorstore.Info `json:"collection"`
	Stored     int               `json:"stored"`
}

// Describe reports the collection info next to the number of stored
// definitions, so drift between the two is visible.
func (s *Service) Describe(ctx context.Context) (*Status, error) {
	info, err := s.vectors.Describe(ctx, s.collection)
	if err != nil {
		return nil, fmt.Errorf("describe index: %w", err)
	}
	n, err := s.store.CountSkills(ctx)
	if err != nil {
		return nil, fmt.Errorf("describe index: %w", err)
	}
	return &Status{Collection: info, Stored: n}, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}

// matchesTags reports whether every wanted tag appears in the comma-joined
// payload tag list. An empty want list matches everything.
func matchesTags(payloadTags string, want []string) bool {
	if len(want) == 0 {
		return true
	}
	have := make(map[string]bool)
	for _, t := range strings.Split(payloadTags, ",") {
		have[strings.TrimSpace(t)] = true
	}
	for _, t := range want {
		if !have[t] {
			return false
		}
	}
	return true
}
