package harness

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/halgrim/skilldex/internal/catalog"
	"github.com/halgrim/skilldex/internal/registry"
	"github.com/halgrim/skilldex/internal/skill"
)

type fakeSearcher struct {
	hits []Candidate
	err  error
}

func (s *fakeSearcher) Search(_ context.Context, _ Query) ([]Candidate, error) {
	return s.hits, s.err
}

type fakeResolver struct {
	defs map[string]*skill.Definition
}

func (r *fakeResolver) Resolve(_ context.Context, id string) (*skill.Definition, error) {
	def, ok := r.defs[id]
	if !ok {
		return nil, ErrDefinitionNotFound
	}
	return def, nil
}

// loadBundle pulls a shipped catalog bundle into the fake resolver so the
// harness runs real authored definitions end to end.
func loadBundle(t *testing.T, name string) *skill.Definition {
	t.Helper()
	def, err := catalog.LoadBundle(filepath.Join("..", "..", "catalog", name))
	if err != nil {
		t.Fatalf("load bundle %s: %v", name, err)
	}
	return def
}

func newHarness(t *testing.T, defs ...*skill.Definition) *Harness {
	t.Helper()
	resolver := &fakeResolver{defs: map[string]*skill.Definition{}}
	for _, d := range defs {
		resolver.defs[d.ID] = d
	}
	return New(&fakeSearcher{}, resolver, zap.NewNop(), WithBaseDir(t.TempDir()))
}

func TestDiscoverFiltersZeroRelevance(t *testing.T) {
	searcher := &fakeSearcher{hits: []Candidate{
		{SkillID: "expense-policy", Score: 0.91, Domain: "corporate_policy"},
		{SkillID: "noise", Score: 0},
	}}
	h := New(searcher, &fakeResolver{}, zap.NewNop())

	candidates, err := h.Discover(context.Background(), Query{Text: "expense rules"})
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if len(candidates) != 1 || candidates[0].SkillID != "expense-policy" {
		t.Fatalf("candidates = %v, want only the scoring hit", candidates)
	}
}

func TestDiscoverEmptyIsNamedCondition(t *testing.T) {
	h := New(&fakeSearcher{}, &fakeResolver{}, zap.NewNop())
	_, err := h.Discover(context.Background(), Query{Text: "nothing matches"})
	if !errors.Is(err, ErrSearchEmpty) {
		t.Fatalf("got %v, want ErrSearchEmpty", err)
	}
}

func TestRunExpensePolicyBundle(t *testing.T) {
	h := newHarness(t, loadBundle(t, "expense-policy"))

	out, err := h.Run(context.Background(), "expense-policy", map[string]interface{}{
		"amount":          850.0,
		"category":        "Team_Dinner",
		"attendees":       10,
		"has_vp_approval": false,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if out["compliant"].(bool) {
		t.Fatal("850 team dinner for 10 without VP approval must not be compliant")
	}
	codes := map[string]bool{}
	for _, v := range out["violations"].([]map[string]interface{}) {
		codes[v["code"].(string)] = true
	}
	if !codes["VP_APPROVAL_REQUIRED"] || !codes["PER_HEAD_LIMIT_EXCEEDED"] {
		t.Fatalf("violations = %v, want VP approval and per-head limit", codes)
	}
}

func TestRunStormClaimBundleAndRetrofitFlip(t *testing.T) {
	h := newHarness(t, loadBundle(t, "storm-roof-claim"))

	input := map[string]interface{}{
		"storm_category": 4,
		"roof_material":  "wood_shake",
		"region":         "coastal",
		"retrofit_year":  2021,
		"claim_amount":   45000.0,
		"deductible":     2500.0,
	}
	out, err := h.Run(context.Background(), "storm-roof-claim", input)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := out["claim_status"].(string); got != "APPROVED" {
		t.Fatalf("claim_status = %s, want APPROVED", got)
	}
	if got := out["deductible_applied"].(float64); got != 0 {
		t.Fatalf("deductible_applied = %g, want fully waived", got)
	}
	if !out["coverage_eligible"].(bool) {
		t.Fatal("expected coverage eligible")
	}

	input["retrofit_year"] = 2019
	out, err = h.Run(context.Background(), "storm-roof-claim", input)
	if err != nil {
		t.Fatalf("run with 2019 retrofit: %v", err)
	}
	if out["coverage_eligible"].(bool) {
		t.Fatal("2019 retrofit must flip coverage eligibility to false")
	}
	if got := out["claim_status"].(string); got != "DENIED" {
		t.Fatalf("claim_status = %s, want DENIED", got)
	}
}

func TestRunIsDeterministicAcrossWorkingAreas(t *testing.T) {
	h := newHarness(t, loadBundle(t, "loan-risk-grading"))
	input := map[string]interface{}{
		"probability_of_default": 0.05,
		"debt_to_income":         0.50,
		"collateralized":         false,
		"loan_amount":            100000.0,
	}

	first, err := h.Run(context.Background(), "loan-risk-grading", input)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := h.Run(context.Background(), "loan-risk-grading", input)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	a, _ := json.Marshal(first)
	b, _ := json.Marshal(second)
	if string(a) != string(b) {
		t.Fatalf("same input in two isolated working areas diverged:\n%s\n%s", a, b)
	}
}

func TestRunUnknownIDIsDefinitionNotFound(t *testing.T) {
	h := newHarness(t)
	_, err := h.Run(context.Background(), "ghost", nil)
	if !errors.Is(err, ErrDefinitionNotFound) {
		t.Fatalf("got %v, want ErrDefinitionNotFound", err)
	}
}

func TestRunNoSnippet(t *testing.T) {
	def := &skill.Definition{
		ID: "prose-only", Domain: skill.DomainFinance,
		Description:  "x",
		DocumentBody: "# Prose\n\nNothing executable.\n",
	}
	h := newHarness(t, def)
	_, err := h.Run(context.Background(), "prose-only", nil)
	if !errors.Is(err, ErrSnippetNotFound) {
		t.Fatalf("got %v, want ErrSnippetNotFound", err)
	}
}

func TestRunMalformedSnippet(t *testing.T) {
	def := &skill.Definition{
		ID: "broken", Domain: skill.DomainFinance,
		Description:  "x",
		DocumentBody: "```go\nvar x = 1\n",
	}
	h := newHarness(t, def)
	_, err := h.Run(context.Background(), "broken", nil)
	if !errors.Is(err, ErrSnippetMalformed) {
		t.Fatalf("got %v, want ErrSnippetMalformed", err)
	}
}

func TestRunOutputMissing(t *testing.T) {
	def := &skill.Definition{
		ID: "no-output", Domain: skill.DomainFinance,
		Description:  "x",
		DocumentBody: "```go\nvar unused = 1\n```\n",
	}
	h := newHarness(t, def)
	_, err := h.Run(context.Background(), "no-output", map[string]interface{}{})
	if !errors.Is(err, ErrOutputMissing) {
		t.Fatalf("got %v, want ErrOutputMissing", err)
	}
}

func TestRunExecutionErrorCarriesSkillID(t *testing.T) {
	def := &skill.Definition{
		ID: "raiser", Domain: skill.DomainFinance,
		Description: "x",
		DocumentBody: "```go\nimport \"errors\"\n\nfunc Evaluate(input map[string]interface{}) (map[string]interface{}, error) {\n" +
			"\treturn nil, errors.New(\"missing required input\")\n}\n```\n",
	}
	h := newHarness(t, def)
	_, err := h.Run(context.Background(), "raiser", map[string]interface{}{})

	var execErr *ExecError
	if !errors.As(err, &execErr) {
		t.Fatalf("got %v, want *ExecError", err)
	}
	if execErr.SkillID != "raiser" {
		t.Fatalf("ExecError.SkillID = %s, want raiser", execErr.SkillID)
	}
}

func TestRunCleansUpWorkingArea(t *testing.T) {
	base := t.TempDir()
	resolver := &fakeResolver{defs: map[string]*skill.Definition{
		"expense-policy": loadBundle(t, "expense-policy"),
	}}
	h := New(&fakeSearcher{}, resolver, zap.NewNop(), WithBaseDir(base))

	_, err := h.Run(context.Background(), "expense-policy", map[string]interface{}{
		"amount": 10.0, "category": "Travel", "attendees": 1, "has_vp_approval": false,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	entries, err := os.ReadDir(base)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("working areas leaked: %v", entries)
	}
}

func TestConcurrentRunsAreIsolated(t *testing.T) {
	h := newHarness(t, loadBundle(t, "crop-yield-viability"))
	input := map[string]interface{}{
		"crop":          "wheat",
		"soil_quality":  "average",
		"rainfall_mm":   450.0,
		"pest_pressure": "low",
		"irrigated":     false,
	}

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := h.Run(context.Background(), "crop-yield-viability", input)
			if err != nil {
				errs <- err
				return
			}
			if got := out["projected_yield"].(float64); got != 3.2 {
				errs <- errors.New("unexpected projected_yield")
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent run: %v", err)
	}
}

type stubHandler struct {
	id     string
	called bool
}

func (s *stubHandler) Descriptor() registry.Descriptor {
	return registry.Descriptor{ID: s.id, Domain: skill.DomainFinance, Title: s.id, Description: "stub"}
}

func (s *stubHandler) Evaluate(_ context.Context, _ map[string]interface{}) (map[string]interface{}, error) {
	s.called = true
	return map[string]interface{}{"via": "compiled"}, nil
}

func TestCompiledHandlerShortCircuitsMaterialization(t *testing.T) {
	stub := &stubHandler{id: "compiled-skill"}
	def := &skill.Definition{
		ID: "compiled-skill", Domain: skill.DomainFinance,
		Description:  "x",
		DocumentBody: "no snippet here at all",
	}
	resolver := &fakeResolver{defs: map[string]*skill.Definition{def.ID: def}}
	h := New(&fakeSearcher{}, resolver, zap.NewNop(),
		WithCompiledHandlers(func(id string) (registry.Handler, bool) {
			if id == stub.id {
				return stub, true
			}
			return nil, false
		}))

	out, err := h.Run(context.Background(), "compiled-skill", nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !stub.called || out["via"] != "compiled" {
		t.Fatal("expected compiled handler dispatch")
	}
}

func TestDiscoverAndRun(t *testing.T) {
	searcher := &fakeSearcher{hits: []Candidate{
		{SkillID: "expense-policy", Score: 0.88, Domain: "corporate_policy"},
	}}
	resolver := &fakeResolver{defs: map[string]*skill.Definition{
		"expense-policy": loadBundle(t, "expense-policy"),
	}}
	h := New(searcher, resolver, zap.NewNop(), WithBaseDir(t.TempDir()))

	out, err := h.DiscoverAndRun(context.Background(), Query{Text: "check team dinner expense"}, map[string]interface{}{
		"amount": 100.0, "category": "Team_Dinner", "attendees": 4, "has_vp_approval": false,
	})
	if err != nil {
		t.Fatalf("discover and run: %v", err)
	}
	if !out["compliant"].(bool) {
		t.Fatalf("expected compliant result, got %v", out)
	}
}
