// Package harness implements the discovery-and-execution pipeline: locate a
// skill by meaning, fetch its full definition, materialize its attached
// files into a disposable working area, extract the one executable snippet,
// and run it. Each stage fails with its own named condition so callers can
// assert on exactly where a run broke down.
package harness

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/halgrim/skilldex/internal/registry"
	"github.com/halgrim/skilldex/internal/runner"
	"github.com/halgrim/skilldex/internal/skill"
	"github.com/halgrim/skilldex/internal/snippet"
)

// Named conditions, one per failing stage. None are retried.
var (
	// ErrSearchEmpty is a normal outcome: no candidate scored above zero.
	ErrSearchEmpty = errors.New("search returned no relevant candidates")
	// ErrDefinitionNotFound means no definition exists for the skill id.
	ErrDefinitionNotFound = errors.New("skill definition not found")
	// ErrSnippetNotFound means the document body carries no selectable block.
	ErrSnippetNotFound = errors.New("no executable snippet in skill definition")
	// ErrSnippetMalformed means a snippet block is present but broken.
	ErrSnippetMalformed = errors.New("malformed snippet block in skill definition")
	// ErrOutputMissing means the snippet ran but never bound the
	// conventional output, a contract violation distinct from a runtime
	// error inside the snippet.
	ErrOutputMissing = errors.New("snippet did not bind an output record")
)

// ExecError wraps an error raised inside a snippet while computing,
// carrying the originating skill id.
type ExecError struct {
	SkillID string
	Err     error
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("skill %s: execution: %v", e.SkillID, e.Err)
}

func (e *ExecError) Unwrap() error { return e.Err }

// Query is one semantic lookup against the skill corpus.
type Query struct {
	Text   string
	Domain string
	Tags   []string
	Limit  int
}

// Candidate is one ranked search hit.
type Candidate struct {
	SkillID string  `json:"skill_id"`
	Score   float32 `json:"score"`
	Title   string  `json:"title"`
	Domain  string  `json:"domain"`
}

// Searcher issues ranked semantic lookups.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Candidate, error)
}

// Resolver fetches a full definition by id. Implementations return
// ErrDefinitionNotFound (possibly wrapped) for unknown ids.
type Resolver interface {
	Resolve(ctx context.Context, id string) (*skill.Definition, error)
}

// Harness runs the Search -> Resolve -> Materialize -> Execute pipeline.
// Invocations are independent: each gets its own working area and a fresh
// execution namespace, so concurrent runs never share state.
type Harness struct {
	searcher Searcher
	resolver Resolver
	handlers func(id string) (registry.Handler, bool)
	baseDir  string
	logger   *zap.Logger
}

// Option configures a Harness.
type Option func(*Harness)

// WithCompiledHandlers lets the harness dispatch ids with a registered
// compiled handler natively, skipping materialization entirely.
func WithCompiledHandlers(lookup func(id string) (registry.Handler, bool)) Option {
	return func(h *Harness) { h.handlers = lookup }
}

// WithBaseDir places working areas under dir instead of the system temp dir.
func WithBaseDir(dir string) Option {
	return func(h *Harness) { h.baseDir = dir }
}

// New builds a Harness.
func New(searcher Searcher, resolver Resolver, logger *zap.Logger, opts ...Option) *Harness {
	h := &Harness{searcher: searcher, resolver: resolver, logger: logger}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Discover issues the semantic query and returns ranked candidates.
// Zero positive-relevance hits yields ErrSearchEmpty, which callers must
// treat as a normal outcome.
func (h *Harness) Discover(ctx context.Context, q Query) ([]Candidate, error) {
	hits, err := h.searcher.Search(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", q.Text, err)
	}
	relevant := hits[:0]
	for _, c := range hits {
		if c.Score > 0 {
			relevant = append(relevant, c)
		}
	}
	if len(relevant) == 0 {
		return nil, ErrSearchEmpty
	}
	return relevant, nil
}

// Run resolves and executes one skill by id against the input record,
// returning the raw output record for the caller to assert on.
func (h *Harness) Run(ctx context.Context, id string, input map[string]interface{}) (map[string]interface{}, error) {
	def, err := h.resolver.Resolve(ctx, id)
	if err != nil {
		if errors.Is(err, ErrDefinitionNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("resolve %s: %w", id, err)
	}

	if h.handlers != nil {
		if handler, ok := h.handlers(id); ok {
			out, err := handler.Evaluate(ctx, input)
			if err != nil {
				return nil, &ExecError{SkillID: id, Err: err}
			}
			return out, nil
		}
	}

	return h.runSnippet(ctx, def, input)
}

// DiscoverAndRun queries, takes the top candidate, and runs it.
func (h *Harness) DiscoverAndRun(ctx context.Context, q Query, input map[string]interface{}) (map[string]interface{}, error) {
	candidates, err := h.Discover(ctx, q)
	if err != nil {
		return nil, err
	}
	return h.Run(ctx, candidates[0].SkillID, input)
}

func (h *Harness) runSnippet(ctx context.Context, def *skill.Definition, input map[string]interface{}) (map[string]interface{}, error) {
	workdir, err := h.materialize(def)
	if err != nil {
		return nil, err
	}
	defer func() {
		if rmErr := os.RemoveAll(workdir); rmErr != nil {
			h.logger.Warn("working area cleanup failed",
				zap.String("skill", def.ID), zap.String("dir", workdir), zap.Error(rmErr))
		}
	}()

	code, err := snippet.Extract(def.DocumentBody)
	switch {
	case errors.Is(err, snippet.ErrNoSnippet):
		return nil, fmt.Errorf("skill %s: %w", def.ID, ErrSnippetNotFound)
	case errors.Is(err, snippet.ErrUnterminated):
		return nil, fmt.Errorf("skill %s: %w", def.ID, ErrSnippetMalformed)
	case err != nil:
		return nil, fmt.Errorf("skill %s: extract snippet: %w", def.ID, err)
	}

	out, err := runner.New(workdir).Execute(ctx, code, input)
	switch {
	case errors.Is(err, runner.ErrEvaluateMissing), errors.Is(err, runner.ErrNilOutput):
		return nil, fmt.Errorf("skill %s: %w", def.ID, ErrOutputMissing)
	case err != nil:
		return nil, &ExecError{SkillID: def.ID, Err: err}
	}
	return out, nil
}

// materialize writes the definition's attached files into a fresh disposable
// working area named after the skill and a one-shot uuid.
func (h *Harness) materialize(def *skill.Definition) (string, error) {
	workdir, err := os.MkdirTemp(h.baseDir, fmt.Sprintf("skilldex-%s-%s-", def.ID, uuid.NewString()[:8]))
	if err != nil {
		return "", fmt.Errorf("create working area: %w", err)
	}
	for _, f := range def.Files {
		name := filepath.Clean(f.Name)
		if filepath.IsAbs(name) || strings.HasPrefix(name, "..") {
			os.RemoveAll(workdir)
			return "", fmt.Errorf("skill %s: attached file %q escapes working area", def.ID, f.Name)
		}
		dst := filepath.Join(workdir, name)
		if dir := filepath.Dir(dst); dir != workdir {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				os.RemoveAll(workdir)
				return "", fmt.Errorf("materialize %s: %w", f.Name, err)
			}
		}
		if err := os.WriteFile(dst, f.Content, 0o644); err != nil {
			os.RemoveAll(workdir)
			return "", fmt.Errorf("materialize %s: %w", f.Name, err)
		}
	}
	return workdir, nil
}
