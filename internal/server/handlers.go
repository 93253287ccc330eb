package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hyperjump/sakuin/internal/models"
	"github.com/hyperjump/sakuin/internal/store"
	"github.com/hyperjump/sakuin/internal/vector"
	"go.uber.org/zap"
)

const defaultSimilarTopK = 10

type similarRequest struct {
	Query     string  `json:"query"`
	ProjectID string  `json:"project_id,omitempty"`
	TopK      int     `json:"top_k,omitempty"`
	Threshold float64 `json:"threshold,omitempty"`
}

type contextRequest struct {
	Query     string `json:"query"`
	ProjectID string `json:"project_id,omitempty"`
	MaxTokens int    `json:"max_tokens,omitempty"`
}

type buildRequest struct {
	IncludeTranscriptions *bool `json:"include_transcriptions,omitempty"`
	IncludeDocuments      *bool `json:"include_documents,omitempty"`
}

type createIndexRequest struct {
	Dimension     int               `json:"dimension"`
	Metric        string            `json:"metric,omitempty"`
	Configuration map[string]string `json:"configuration,omitempty"`
}

type statsResponse struct {
	Storage         *store.StorageStats     `json:"storage"`
	Search          store.SearchPerformance `json:"search"`
	RetrievalMethod string                  `json:"retrieval_method"`
}

func (s *Server) handleIndexContent(w http.ResponseWriter, r *http.Request) {
	var input models.ContentInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("index content request", zap.String("id", input.Metadata.ID), zap.String("project_id", input.Metadata.ProjectID))
	id, err := s.indexer.IndexContent(r.Context(), input)
	if err != nil {
		s.fail(w, "indexing failed", err)
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]string{"id": id, "status": "indexed"})
}

func (s *Server) handleGetContent(w http.ResponseWriter, r *http.Request) {
	doc, err := s.store.GetDocument(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, "get content failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, doc)
}

func (s *Server) handleRemoveContent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.logger.Debug("remove content request", zap.String("id", id))
	if err := s.indexer.RemoveIndex(r.Context(), id); err != nil {
		s.fail(w, "removal failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"id": id, "status": "removed"})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req models.SemanticSearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("search request", zap.String("query", req.Query), zap.Int("top_k", req.Options.TopK))
	resp, err := s.rag.SemanticSearch(r.Context(), req.Query, req.Filters, req.Options)
	if err != nil {
		s.fail(w, "search failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSearchSimilar(w http.ResponseWriter, r *http.Request) {
	var req similarRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.TopK <= 0 {
		req.TopK = defaultSimilarTopK
	}
	results, err := s.rag.SearchSimilarContent(r.Context(), req.Query, req.ProjectID, req.TopK, req.Threshold)
	if err != nil {
		s.fail(w, "similar search failed", err)
		return
	}
	if results == nil {
		results = []*models.SemanticSearchResult{}
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"query": req.Query, "results": results})
}

func (s *Server) handleContext(w http.ResponseWriter, r *http.Request) {
	var req contextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("context request", zap.String("query", req.Query), zap.Int("max_tokens", req.MaxTokens))
	rc, err := s.rag.GetRelevantContext(r.Context(), req.Query, req.ProjectID, req.MaxTokens)
	if err != nil {
		s.fail(w, "context retrieval failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, rc)
}

func (s *Server) handleBuildKnowledgeBase(w http.ResponseWriter, r *http.Request) {
	if s.knowledge == nil {
		s.respondError(w, http.StatusNotImplemented, "knowledge bases not enabled")
		return
	}
	var req buildRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	projectID := chi.URLParam(r, "projectID")
	kb, err := s.knowledge.BuildKnowledgeBase(r.Context(), projectID, boolOr(req.IncludeTranscriptions, true), boolOr(req.IncludeDocuments, true))
	if err != nil {
		s.fail(w, "knowledge base build failed", err)
		return
	}
	s.respondJSON(w, http.StatusCreated, kb)
}

func (s *Server) handleGetKnowledgeBase(w http.ResponseWriter, r *http.Request) {
	if s.knowledge == nil {
		s.respondError(w, http.StatusNotImplemented, "knowledge bases not enabled")
		return
	}
	kb, err := s.knowledge.GetKnowledgeBase(r.Context(), chi.URLParam(r, "projectID"))
	if err != nil {
		s.fail(w, "get knowledge base failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, kb)
}

func (s *Server) handleDeleteKnowledgeBase(w http.ResponseWriter, r *http.Request) {
	if s.knowledge == nil {
		s.respondError(w, http.StatusNotImplemented, "knowledge bases not enabled")
		return
	}
	projectID := chi.URLParam(r, "projectID")
	if err := s.knowledge.DeleteKnowledgeBase(r.Context(), projectID); err != nil {
		s.fail(w, "delete knowledge base failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"project_id": projectID, "status": "deleted"})
}

func (s *Server) handleListIndices(w http.ResponseWriter, r *http.Request) {
	infos, err := s.store.ListIndices(r.Context())
	if err != nil {
		s.fail(w, "list indices failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"indices": infos})
}

func (s *Server) handleCreateIndex(w http.ResponseWriter, r *http.Request) {
	var req createIndexRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	metric := vector.MetricCosine
	if req.Metric != "" {
		m, err := vector.ParseMetric(req.Metric)
		if err != nil {
			s.fail(w, "create index failed", models.InvalidInputf("%v", err))
			return
		}
		metric = m
	}
	info, err := s.store.CreateIndex(r.Context(), chi.URLParam(r, "name"), req.Dimension, metric, req.Configuration)
	if err != nil {
		s.fail(w, "create index failed", err)
		return
	}
	s.respondJSON(w, http.StatusCreated, info)
}

func (s *Server) handleGetIndex(w http.ResponseWriter, r *http.Request) {
	info, err := s.store.GetIndexInfo(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		s.fail(w, "get index failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, info)
}

func (s *Server) handleDeleteIndex(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.store.DeleteIndex(r.Context(), name); err != nil {
		s.fail(w, "delete index failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"name": name, "status": "deleted"})
}

func (s *Server) handleOptimizeIndex(w http.ResponseWriter, r *http.Request) {
	info, err := s.store.OptimizeIndex(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		s.fail(w, "optimize index failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, info)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.store.GetStorageStats(r.Context())
	if err != nil {
		s.fail(w, "stats failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, statsResponse{
		Storage:         st,
		Search:          s.store.GetSearchPerformance(),
		RetrievalMethod: s.rag.Method(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	var embErr *models.EmbeddingError
	switch {
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.As(err, &embErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, msg string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(msg, zap.Error(err))
	} else {
		s.logger.Debug(msg, zap.Error(err))
	}
	s.respondError(w, status, err.Error())
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

func boolOr(b *bool, def bool) bool {
	if b != nil {
		return *b
	}
	return def
}
