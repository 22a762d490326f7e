// Package api exposes the job orchestrator and record store over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/export"
	"github.com/sells-group/prospect-cli/internal/jobs"
	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/resilience"
	"github.com/sells-group/prospect-cli/internal/store"
)

// JobService is the part of the orchestrator the API drives.
type JobService interface {
	StartJob(ctx context.Context, kind model.JobKind, batchID string, opts jobs.Options) (*jobs.Task, error)
	GetJobStatus(ctx context.Context, jobID string) (*model.Job, error)
	StopJob(ctx context.Context, jobID string) (*model.Job, error)
}

// Server holds the handler dependencies.
type Server struct {
	jobs     JobService
	store    store.Store
	breakers *resilience.ServiceBreakers
}

// Option configures a Server.
type Option func(*Server)

// WithBreakers reports the lookup circuit breakers on /health.
func WithBreakers(sb *resilience.ServiceBreakers) Option {
	return func(s *Server) { s.breakers = sb }
}

// NewRouter builds the chi router. An empty origins list allows any origin.
func NewRouter(js JobService, st store.Store, origins []string, opts ...Option) http.Handler {
	s := &Server{jobs: js, store: st}
	for _, opt := range opts {
		opt(s)
	}
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.health)

	r.Route("/api", func(r chi.Router) {
		r.Route("/batches/{batchID}", func(r chi.Router) {
			r.Get("/", s.getBatch)
			r.Get("/records", s.listRecords)
			r.Get("/records.geojson", s.exportGeoJSON)
			r.Get("/jobs", s.listJobs)
			r.Post("/jobs", s.startJob)
		})
		r.Post("/jobs", s.startRun)
		r.Route("/jobs/{jobID}", func(r chi.Router) {
			r.Get("/", s.getJob)
			r.Post("/stop", s.stopJob)
		})
		r.Route("/records/{recordID}", func(r chi.Router) {
			r.Get("/", s.getRecord)
			r.Delete("/", s.deleteRecord)
		})
	})
	return r
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	if s.breakers == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	services, degraded := s.breakers.Health()
	status := "ok"
	if degraded {
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": status, "services": services})
}

// startJobRequest is the body of POST /api/batches/{batchID}/jobs and
// POST /api/jobs.
type startJobRequest struct {
	Kind          model.JobKind     `json:"kind"`
	BusinessType  string            `json:"business_type"`
	Location      string            `json:"location"`
	Count         int               `json:"count"`
	Latitude      *float64          `json:"latitude"`
	Longitude     *float64          `json:"longitude"`
	RadiusMeters  int               `json:"radius"`
	SourceRows    []model.SourceRow `json:"source_rows"`
	SourceBatchID string            `json:"source_batch_id"`
}

func (s *Server) startJob(w http.ResponseWriter, r *http.Request) {
	s.start(w, r, chi.URLParam(r, "batchID"))
}

// startRun starts a prospecting job that writes into a new batch.
func (s *Server) startRun(w http.ResponseWriter, r *http.Request) {
	s.start(w, r, "")
}

func (s *Server) start(w http.ResponseWriter, r *http.Request, batchID string) {
	var req startJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	task, err := s.jobs.StartJob(r.Context(), req.Kind, batchID, jobs.Options{
		BusinessType:  req.BusinessType,
		Location:      req.Location,
		Count:         req.Count,
		Latitude:      req.Latitude,
		Longitude:     req.Longitude,
		RadiusMeters:  req.RadiusMeters,
		SourceRows:    req.SourceRows,
		SourceBatchID: req.SourceBatchID,
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"job_id":   task.JobID,
		"batch_id": task.BatchID,
		"status":   string(model.JobStatusPending),
	})
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.jobs.GetJobStatus(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) stopJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.jobs.StopJob(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) getBatch(w http.ResponseWriter, r *http.Request) {
	b, err := s.store.GetUploadBatch(r.Context(), chi.URLParam(r, "batchID"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	js, err := s.store.ListJobs(r.Context(), chi.URLParam(r, "batchID"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, js)
}

func (s *Server) listRecords(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "batchID")
	if _, err := s.store.GetUploadBatch(r.Context(), batchID); err != nil {
		writeErr(w, err)
		return
	}
	rs, err := s.store.GetRecords(r.Context(), batchID)
	if err != nil {
		writeErr(w, err)
		return
	}
	if status := r.URL.Query().Get("status"); status != "" {
		filtered := rs[:0]
		for _, rec := range rs {
			if string(rec.Status) == status {
				filtered = append(filtered, rec)
			}
		}
		rs = filtered
	}
	writeJSON(w, http.StatusOK, rs)
}

func (s *Server) exportGeoJSON(w http.ResponseWriter, r *http.Request) {
	rs, err := s.store.GetRecords(r.Context(), chi.URLParam(r, "batchID"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSONContent(w, http.StatusOK, "application/geo+json", export.GeoJSON(rs))
}

func (s *Server) getRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := s.store.GetRecord(r.Context(), chi.URLParam(r, "recordID"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) deleteRecord(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteRecord(r.Context(), chi.URLParam(r, "recordID")); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, jobs.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case store.IsNotFound(err):
		writeError(w, http.StatusNotFound, "not found")
	default:
		zap.L().Error("api: request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	writeJSONContent(w, code, "application/json", v)
}

func writeJSONContent(w http.ResponseWriter, code int, contentType string, v any) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
