package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/docpile/docpile/internal/backend"
	"github.com/docpile/docpile/internal/ingest"
	"github.com/docpile/docpile/internal/models"
	"github.com/docpile/docpile/internal/scanner"
)

// ingestPayload mirrors models.IngestRequest with a nullable
// auto_categorize so that omitting the field means true.
type ingestPayload struct {
	SourceDirectory string `json:"source_directory"`
	StoreName       string `json:"store_name"`
	AutoCategorize  *bool  `json:"auto_categorize"`
	BatchSize       int    `json:"batch_size"`
	ScanOnly        bool   `json:"scan_only"`
	Async           bool   `json:"async"`
}

func (p ingestPayload) toRequest() models.IngestRequest {
	auto := true
	if p.AutoCategorize != nil {
		auto = *p.AutoCategorize
	}
	return models.IngestRequest{
		SourceDirectory: p.SourceDirectory,
		StoreName:       p.StoreName,
		AutoCategorize:  auto,
		BatchSize:       p.BatchSize,
		ScanOnly:        p.ScanOnly,
		Async:           p.Async,
	}
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var payload ingestPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req := payload.toRequest()
	s.logger.Debug("ingest request",
		zap.String("source", req.SourceDirectory),
		zap.String("store", req.StoreName),
		zap.Bool("scan_only", req.ScanOnly),
		zap.Bool("async", req.Async))

	if req.ScanOnly {
		report, err := s.orchestrator.Preview(r.Context(), req)
		if err != nil {
			s.respondJobError(w, err)
			return
		}
		s.respondJSON(w, http.StatusOK, report)
		return
	}

	if req.Async {
		// The job outlives the HTTP request; detach it from the request context.
		id := s.jobs.Start()
		go func() {
			report, err := s.orchestrator.Execute(context.Background(), req)
			if err != nil {
				s.logger.Error("async ingestion failed", zap.String("job_id", id), zap.Error(err))
				s.jobs.Fail(id, err.Error())
				return
			}
			s.jobs.Complete(id, report)
		}()
		s.respondJSON(w, http.StatusAccepted, map[string]string{"job_id": id})
		return
	}

	report, err := s.orchestrator.Execute(r.Context(), req)
	if err != nil {
		s.respondJobError(w, err)
		return
	}
	// Partial failure is still a completed job; the report carries the detail.
	s.respondJSON(w, http.StatusOK, report)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, ok := s.jobs.Get(id)
	if !ok {
		s.respondError(w, http.StatusNotFound, "job not found")
		return
	}
	s.respondJSON(w, http.StatusOK, job)
}

func (s *Server) handleListStores(w http.ResponseWriter, r *http.Request) {
	stores, err := s.catalog.ListStores(r.Context())
	if err != nil {
		s.logger.Error("list stores failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"stores": stores})
}

func (s *Server) handleCreateStore(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Name        string `json:"name"`
		DisplayName string `json:"display_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if input.Name == "" {
		s.respondError(w, http.StatusBadRequest, "name is required")
		return
	}
	store, err := s.catalog.EnsureStore(r.Context(), input.Name, input.DisplayName)
	if err != nil {
		if errors.Is(err, backend.ErrUnavailable) {
			s.respondError(w, http.StatusBadGateway, err.Error())
			return
		}
		s.logger.Error("create store failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, store)
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	report, err := s.catalog.Reconcile(r.Context())
	if err != nil {
		if errors.Is(err, backend.ErrUnavailable) {
			s.respondError(w, http.StatusBadGateway, err.Error())
			return
		}
		s.logger.Error("reconcile failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, report)
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"categories": s.detector.Labels(),
	})
}

func (s *Server) handleCategoryStats(w http.ResponseWriter, r *http.Request) {
	counts, err := s.storage.CountDocumentsByCategory(r.Context())
	if err != nil {
		s.logger.Error("category stats failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	// Every known label is present, zero when empty.
	stats := make(map[string]int64)
	for _, label := range s.detector.Labels() {
		stats[label] = counts[label]
	}
	for label, n := range counts {
		stats[label] = n
	}
	var total int64
	for _, n := range stats {
		total += n
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"stats": stats,
		"total": total,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	docCount, err := s.storage.CountDocuments(ctx)
	if err != nil {
		s.logger.Error("status: count documents failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	stores, err := s.catalog.ListStores(ctx)
	if err != nil {
		s.logger.Error("status: list stores failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"documents": docCount,
		"stores":    len(stores),
		"config": map[string]interface{}{
			"backend_kind":  s.config.Backend.Kind,
			"database_path": s.config.Storage.DatabasePath,
			"batch_size":    s.config.Ingest.BatchSize,
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// respondJobError maps job-level ingestion errors to HTTP statuses: caller
// mistakes are 400, an unreachable backend is 502, the rest are 500.
func (s *Server) respondJobError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, backend.ErrUnavailable):
		s.respondError(w, http.StatusBadGateway, err.Error())
	case errors.Is(err, scanner.ErrNotDirectory),
		errors.Is(err, os.ErrNotExist),
		errors.Is(err, ingest.ErrInvalidRequest):
		s.respondError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("ingestion failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]interface{}{"success": false, "error": message})
}
