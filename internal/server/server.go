// Package server provides the HTTP API for docpile.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/docpile/docpile/internal/catalog"
	"github.com/docpile/docpile/internal/category"
	"github.com/docpile/docpile/internal/config"
	"github.com/docpile/docpile/internal/ingest"
	"github.com/docpile/docpile/internal/storage"
)

// Server is the HTTP server for the docpile API.
type Server struct {
	orchestrator *ingest.Orchestrator
	jobs         *ingest.Jobs
	catalog      *catalog.Catalog
	storage      storage.MetadataStore
	detector     *category.Detector
	config       *config.Config
	logger       *zap.Logger
	server       *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(
	orch *ingest.Orchestrator,
	jobs *ingest.Jobs,
	cat *catalog.Catalog,
	store storage.MetadataStore,
	det *category.Detector,
	cfg *config.Config,
	logger *zap.Logger,
) *Server {
	return &Server{
		orchestrator: orch,
		jobs:         jobs,
		catalog:      cat,
		storage:      store,
		detector:     det,
		config:       cfg,
		logger:       logger,
	}
}

// Router builds the chi router with all routes and middleware.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Minute))
	r.Use(middleware.Compress(5))

	r.Post("/api/v1/ingest", s.handleIngest)
	r.Get("/api/v1/ingest/jobs/{id}", s.handleGetJob)
	r.Get("/api/v1/stores", s.handleListStores)
	r.Post("/api/v1/stores", s.handleCreateStore)
	r.Get("/api/v1/stores/reconcile", s.handleReconcile)
	r.Get("/api/v1/categories", s.handleCategories)
	r.Get("/api/v1/categories/stats", s.handleCategoryStats)
	r.Get("/api/v1/status", s.handleStatus)
	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Router(),
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
