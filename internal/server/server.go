// Package server provides the HTTP API for sakuin.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/hyperjump/sakuin/internal/config"
	"github.com/hyperjump/sakuin/internal/indexer"
	"github.com/hyperjump/sakuin/internal/knowledge"
	"github.com/hyperjump/sakuin/internal/rag"
	"github.com/hyperjump/sakuin/internal/store"
	"go.uber.org/zap"
)

const defaultRequestTimeout = 60 * time.Second

// Server is the HTTP server for the sakuin API.
type Server struct {
	store     *store.VectorStore
	indexer   *indexer.Indexer
	rag       *rag.Service
	knowledge *knowledge.Builder // nil disables the knowledge base routes
	config    *config.ServerConfig
	logger    *zap.Logger
	server    *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(
	vs *store.VectorStore,
	idx *indexer.Indexer,
	svc *rag.Service,
	kb *knowledge.Builder,
	cfg *config.ServerConfig,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		store:     vs,
		indexer:   idx,
		rag:       svc,
		knowledge: kb,
		config:    cfg,
		logger:    logger,
	}
}

// Handler returns the routed API handler.
func (s *Server) Handler() http.Handler {
	timeout := s.config.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	r.Use(middleware.Timeout(timeout))
	r.Use(middleware.Compress(5))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/content", s.handleIndexContent)
		r.Get("/content/{id}", s.handleGetContent)
		r.Delete("/content/{id}", s.handleRemoveContent)

		r.Post("/search", s.handleSearch)
		r.Post("/search/similar", s.handleSearchSimilar)
		r.Post("/context", s.handleContext)

		r.Route("/projects/{projectID}/knowledge-base", func(r chi.Router) {
			r.Post("/", s.handleBuildKnowledgeBase)
			r.Get("/", s.handleGetKnowledgeBase)
			r.Delete("/", s.handleDeleteKnowledgeBase)
		})

		r.Get("/indices", s.handleListIndices)
		r.Post("/indices/{name}", s.handleCreateIndex)
		r.Get("/indices/{name}", s.handleGetIndex)
		r.Delete("/indices/{name}", s.handleDeleteIndex)
		r.Post("/indices/{name}/optimize", s.handleOptimizeIndex)

		r.Get("/stats", s.handleStats)
	})
	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
