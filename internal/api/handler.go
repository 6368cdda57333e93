// Package api exposes the index service over a thin REST surface.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/halgrim/skilldex/internal/harness"
	"github.com/halgrim/skilldex/internal/index"
)

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	index   *index.Service
	harness *harness.Harness
	logger  *zap.Logger
}

// NewHandler creates a new API handler. h may be nil, which disables the
// execution routes.
func NewHandler(idx *index.Service, h *harness.Harness, logger *zap.Logger) *Handler {
	return &Handler{index: idx, harness: h, logger: logger}
}

// Router builds the chi router with all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.healthCheck)
		r.Get("/index", h.describeIndex)
		r.Post("/index/setup", h.setupIndex)
		r.Delete("/index", h.teardownIndex)
		r.Post("/index/ingest", h.ingest)
		r.Post("/search", h.search)
		r.Get("/skills/{id}", h.getSkill)
		if h.harness != nil {
			r.Post("/skills/{id}/run", h.runSkill)
			r.Post("/run", h.discoverAndRun)
		}
	})

	return r
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "skilldex"})
}

func (h *Handler) describeIndex(w http.ResponseWriter, r *http.Request) {
	status, err := h.index.Describe(r.Context())
	if err != nil {
		h.logger.Error("describe index failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *Handler) setupIndex(w http.ResponseWriter, r *http.Request) {
	created, err := h.index.Setup(r.Context())
	if err != nil {
		h.logger.Error("index setup failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	state := "exists"
	if created {
		state = "created"
	}
	writeJSON(w, http.StatusOK, map[string]string{"collection": state})
}

func (h *Handler) teardownIndex(w http.ResponseWriter, r *http.Request) {
	dropped, err := h.index.Teardown(r.Context())
	if err != nil {
		h.logger.Error("index teardown failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	state := "absent"
	if dropped {
		state = "dropped"
	}
	writeJSON(w, http.StatusOK, map[string]string{"collection": state})
}

type ingestRequest struct {
	SourceDir string `json:"source_dir"`
}

func (h *Handler) ingest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if req.SourceDir == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "source_dir is required"})
		return
	}

	report, err := h.index.Ingest(r.Context(), req.SourceDir)
	if err != nil {
		h.logger.Error("ingest failed", zap.String("dir", req.SourceDir), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, report)
}

type searchRequest struct {
	Query  string   `json:"query"`
	Domain string   `json:"domain,omitempty"`
	Tags   []string `json:"tags,omitempty"`
	Limit  int      `json:"limit,omitempty"`
}

func (h *Handler) search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if req.Query == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query is required"})
		return
	}

	candidates, err := h.index.Search(r.Context(), harness.Query{
		Text:   req.Query,
		Domain: req.Domain,
		Tags:   req.Tags,
		Limit:  req.Limit,
	})
	if err != nil {
		h.logger.Error("search failed", zap.String("query", req.Query), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if candidates == nil {
		candidates = []harness.Candidate{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"candidates": candidates})
}

func (h *Handler) getSkill(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	def, err := h.index.Resolve(r.Context(), id)
	if err != nil {
		if errors.Is(err, harness.ErrDefinitionNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "skill not found"})
			return
		}
		h.logger.Error("resolve failed", zap.String("skill_id", id), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, def)
}

type runRequest struct {
	Input map[string]interface{} `json:"input"`
}

func (h *Handler) runSkill(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	out, err := h.harness.Run(r.Context(), id, req.Input)
	if err != nil {
		h.writeRunError(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"skill_id": id, "output": out})
}

type discoverRunRequest struct {
	Query  string                 `json:"query"`
	Domain string                 `json:"domain,omitempty"`
	Tags   []string               `json:"tags,omitempty"`
	Input  map[string]interface{} `json:"input"`
}

func (h *Handler) discoverAndRun(w http.ResponseWriter, r *http.Request) {
	var req discoverRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if req.Query == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query is required"})
		return
	}

	q := harness.Query{Text: req.Query, Domain: req.Domain, Tags: req.Tags, Limit: 1}
	candidates, err := h.harness.Discover(r.Context(), q)
	if err != nil {
		if errors.Is(err, harness.ErrSearchEmpty) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "no relevant skill found"})
			return
		}
		h.logger.Error("discover failed", zap.String("query", req.Query), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	id := candidates[0].SkillID
	out, err := h.harness.Run(r.Context(), id, req.Input)
	if err != nil {
		h.writeRunError(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"skill_id": id, "output": out})
}

// writeRunError maps each stage's named condition onto an HTTP status.
func (h *Handler) writeRunError(w http.ResponseWriter, id string, err error) {
	var execErr *harness.ExecError
	switch {
	case errors.Is(err, harness.ErrDefinitionNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "skill not found"})
	case errors.Is(err, harness.ErrSnippetNotFound),
		errors.Is(err, harness.ErrSnippetMalformed),
		errors.Is(err, harness.ErrOutputMissing):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
	case errors.As(err, &execErr):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error": execErr.Err.Error(), "skill_id": execErr.SkillID,
		})
	default:
		h.logger.Error("run failed", zap.String("skill_id", id), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
