package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/halgrim/skilldex/internal/harness"
	"github.com/halgrim/skilldex/internal/index"
	"github.com/halgrim/skilldex/internal/skill"
	"github.com/halgrim/skilldex/internal/store"
	"github.com/halgrim/skilldex/internal/vectorstore"
)

type memStore struct {
	defs map[string]*skill.Definition
}

func (m *memStore) SaveDefinition(_ context.Context, def *skill.Definition) error {
	m.defs[def.ID] = def
	return nil
}

func (m *memStore) GetDefinition(_ context.Context, id string) (*skill.Definition, error) {
	def, ok := m.defs[id]
	if !ok {
		return nil, fmt.Errorf("skill %s: %w", id, store.ErrNotFound)
	}
	return def, nil
}

func (m *memStore) DeleteAll(_ context.Context) error {
	m.defs = make(map[string]*skill.Definition)
	return nil
}

func (m *memStore) CountSkills(_ context.Context) (int, error) {
	return len(m.defs), nil
}

type memVectors struct {
	collections map[string]uint64
	points      map[string]map[string]string
	hits        []*vectorstore.SearchResult
}

func (m *memVectors) EnsureCollection(_ context.Context, name string, dim uint64) (bool, error) {
	if _, ok := m.collections[name]; ok {
		return false, nil
	}
	m.collections[name] = dim
	return true, nil
}

func (m *memVectors) DropCollection(_ context.Context, name string) (bool, error) {
	if _, ok := m.collections[name]; !ok {
		return false, nil
	}
	delete(m.collections, name)
	return true, nil
}

func (m *memVectors) Describe(_ context.Context, name string) (*vectorstore.Info, error) {
	dim, ok := m.collections[name]
	if !ok {
		return &vectorstore.Info{Status: "absent"}, nil
	}
	return &vectorstore.Info{Status: "green", PointsCount: uint64(len(m.points)), Dimension: dim}, nil
}

func (m *memVectors) Upsert(_ context.Context, _ string, id string, _ []float32, payload map[string]string) error {
	m.points[id] = payload
	return nil
}

func (m *memVectors) Search(_ context.Context, _ string, _ []float32, topK uint64, domain string) ([]*vectorstore.SearchResult, error) {
	var out []*vectorstore.SearchResult
	for _, hit := range m.hits {
		if domain != "" && hit.Payload["domain"] != domain {
			continue
		}
		out = append(out, hit)
		if uint64(len(out)) == topK {
			break
		}
	}
	return out, nil
}

type constEmbedder struct{}

func (constEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0, 0}
	}
	return out, nil
}

func (constEmbedder) Dimension() int { return 4 }

func newTestHandler() (*Handler, *memStore, *memVectors) {
	st := &memStore{defs: make(map[string]*skill.Definition)}
	vs := &memVectors{
		collections: make(map[string]uint64),
		points:      make(map[string]map[string]string),
	}
	svc := index.New(st, nil, vs, constEmbedder{}, "skills_test", zap.NewNop())
	hns := harness.New(svc, svc, zap.NewNop())
	return NewHandler(svc, hns, zap.NewNop()), st, vs
}

func doRequest(t *testing.T, h *Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, req)
	return rec
}

func TestHealthCheck(t *testing.T) {
	h, _, _ := newTestHandler()
	rec := doRequest(t, h, http.MethodGet, "/api/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp["status"] != "ok" {
		t.Errorf("status field = %q", resp["status"])
	}
}

func TestIndexSetupAndTeardown(t *testing.T) {
	h, _, _ := newTestHandler()

	rec := doRequest(t, h, http.MethodPost, "/api/index/setup", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("setup status = %d: %s", rec.Code, rec.Body)
	}
	var resp map[string]string
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp["collection"] != "created" {
		t.Errorf("first setup = %q, want created", resp["collection"])
	}

	rec = doRequest(t, h, http.MethodPost, "/api/index/setup", nil)
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp["collection"] != "exists" {
		t.Errorf("second setup = %q, want exists", resp["collection"])
	}

	rec = doRequest(t, h, http.MethodDelete, "/api/index", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("teardown status = %d: %s", rec.Code, rec.Body)
	}
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp["collection"] != "dropped" {
		t.Errorf("teardown = %q, want dropped", resp["collection"])
	}

	rec = doRequest(t, h, http.MethodDelete, "/api/index", nil)
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp["collection"] != "absent" {
		t.Errorf("second teardown = %q, want absent", resp["collection"])
	}
}

func TestIngestEndpoint(t *testing.T) {
	h, st, _ := newTestHandler()

	dir := t.TempDir()
	bundle := filepath.Join(dir, "test-skill")
	if err := os.MkdirAll(bundle, 0o755); err != nil {
		t.Fatal(err)
	}
	manifest := `---
name: test-skill
title: Test skill
description: A bundle used by the handler test.
short_description: Handler test bundle.
domain: finance
tags:
  - demo
---

# Test skill
`
	if err := os.WriteFile(filepath.Join(bundle, "SKILL.md"), []byte(manifest), 0o644); err != nil {
		t.Fatal(err)
	}

	rec := doRequest(t, h, http.MethodPost, "/api/index/ingest", ingestRequest{SourceDir: dir})
	if rec.Code != http.StatusOK {
		t.Fatalf("ingest status = %d: %s", rec.Code, rec.Body)
	}
	var report struct {
		Indexed int `json:"indexed"`
		Failed  int `json:"failed"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&report); err != nil {
		t.Fatal(err)
	}
	if report.Indexed != 1 || report.Failed != 0 {
		t.Errorf("report = %+v", report)
	}
	if _, ok := st.defs["test-skill"]; !ok {
		t.Error("definition not persisted")
	}
}

func TestIngestEndpoint_BadBody(t *testing.T) {
	h, _, _ := newTestHandler()

	rec := doRequest(t, h, http.MethodPost, "/api/index/ingest", map[string]string{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty source_dir status = %d, want 400", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/index/ingest", bytes.NewBufferString("{not json"))
	rec2 := httptest.NewRecorder()
	h.Router().ServeHTTP(rec2, req)
	if rec2.Code != http.StatusBadRequest {
		t.Errorf("malformed body status = %d, want 400", rec2.Code)
	}
}

func TestSearchEndpoint(t *testing.T) {
	h, _, vs := newTestHandler()
	vs.hits = []*vectorstore.SearchResult{
		{ID: "p1", Score: 0.92, Payload: map[string]string{
			"skill_id": "storm-roof-claim", "domain": "insurance",
			"title": "Storm roof claim", "tags": "claims",
		}},
	}

	rec := doRequest(t, h, http.MethodPost, "/api/search", searchRequest{Query: "hurricane roof payout"})
	if rec.Code != http.StatusOK {
		t.Fatalf("search status = %d: %s", rec.Code, rec.Body)
	}
	var resp struct {
		Candidates []struct {
			SkillID string  `json:"skill_id"`
			Score   float32 `json:"score"`
		} `json:"candidates"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Candidates) != 1 || resp.Candidates[0].SkillID != "storm-roof-claim" {
		t.Errorf("candidates = %+v", resp.Candidates)
	}
}

func TestSearchEndpoint_EmptyIsOK(t *testing.T) {
	h, _, _ := newTestHandler()

	rec := doRequest(t, h, http.MethodPost, "/api/search", searchRequest{Query: "nothing matches"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 with empty list", rec.Code)
	}
	var resp struct {
		Candidates []json.RawMessage `json:"candidates"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Candidates == nil {
		t.Error("candidates should be [] not null")
	}
	if len(resp.Candidates) != 0 {
		t.Errorf("candidates = %v", resp.Candidates)
	}
}

func TestSearchEndpoint_MissingQuery(t *testing.T) {
	h, _, _ := newTestHandler()
	rec := doRequest(t, h, http.MethodPost, "/api/search", searchRequest{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestGetSkill(t *testing.T) {
	h, st, _ := newTestHandler()
	st.defs["expense-policy"] = &skill.Definition{
		ID:           "expense-policy",
		Domain:       "corporate_policy",
		Title:        "Expense policy",
		Description:  "Checks expenses against category limits.",
		DocumentBody: "# Expense policy",
		Files:        []skill.File{{Name: "data/categories.csv", Content: []byte("category\n")}},
	}

	rec := doRequest(t, h, http.MethodGet, "/api/skills/expense-policy", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	var def skill.Definition
	if err := json.NewDecoder(rec.Body).Decode(&def); err != nil {
		t.Fatal(err)
	}
	if def.ID != "expense-policy" || len(def.Files) != 1 {
		t.Errorf("definition = %+v", def)
	}
}

func TestGetSkill_NotFound(t *testing.T) {
	h, _, _ := newTestHandler()
	rec := doRequest(t, h, http.MethodGet, "/api/skills/no-such-skill", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestRunSkillEndpoint(t *testing.T) {
	h, st, _ := newTestHandler()
	st.defs["doubler"] = &skill.Definition{
		ID:          "doubler",
		Domain:      "finance",
		Title:       "Doubler",
		Description: "Doubles the amount.",
		DocumentBody: "# Doubler\n\n```go\nfunc Evaluate(input map[string]interface{}) (map[string]interface{}, error) {\n" +
			"\treturn map[string]interface{}{\"doubled\": input[\"amount\"].(float64) * 2}, nil\n}\n```\n",
	}

	rec := doRequest(t, h, http.MethodPost, "/api/skills/doubler/run", runRequest{
		Input: map[string]interface{}{"amount": 21.0},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	var resp struct {
		SkillID string                 `json:"skill_id"`
		Output  map[string]interface{} `json:"output"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.SkillID != "doubler" || resp.Output["doubled"] != 42.0 {
		t.Errorf("response = %+v", resp)
	}
}

func TestRunSkillEndpoint_Errors(t *testing.T) {
	h, st, _ := newTestHandler()
	st.defs["prose-only"] = &skill.Definition{
		ID:           "prose-only",
		Domain:       "finance",
		Title:        "Prose",
		Description:  "No snippet.",
		DocumentBody: "# Prose only\n",
	}

	rec := doRequest(t, h, http.MethodPost, "/api/skills/ghost/run", runRequest{})
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown skill status = %d, want 404", rec.Code)
	}

	rec = doRequest(t, h, http.MethodPost, "/api/skills/prose-only/run", runRequest{})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("snippetless skill status = %d, want 422", rec.Code)
	}
}

func TestDiscoverAndRunEndpoint_NoMatch(t *testing.T) {
	h, _, _ := newTestHandler()
	rec := doRequest(t, h, http.MethodPost, "/api/run", discoverRunRequest{
		Query: "anything",
		Input: map[string]interface{}{},
	})
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 when nothing matches", rec.Code)
	}
}
