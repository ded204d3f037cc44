// Package api exposes the HTTP interface for the clone service.
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/site-cloner/internal/cloner"
	"github.com/JakeFAU/site-cloner/internal/config"
	"github.com/JakeFAU/site-cloner/internal/logging"
	"github.com/JakeFAU/site-cloner/internal/metrics"
	"github.com/JakeFAU/site-cloner/internal/storage/postgres"
)

const (
	maxRequestBytes     = 1 << 20
	defaultHistoryLimit = 20
	maxHistoryLimit     = 200
	readinessTimeout    = 3 * time.Second
)

// Enqueuer accepts queue items for the worker pool.
type Enqueuer interface {
	Enqueue(ctx context.Context, item cloner.QueueItem) error
}

// Sites lists and removes published sites.
type Sites interface {
	List(ctx context.Context) ([]cloner.PublishedSite, error)
	Remove(ctx context.Context, name string) error
}

// ManifestHistory reads archived manifests of a site.
type ManifestHistory interface {
	History(ctx context.Context, name string, limit int) ([]postgres.ArchivedManifest, error)
}

// ReadinessCheck reports whether a downstream dependency is usable.
type ReadinessCheck func(ctx context.Context) error

// Deps groups the collaborators of a Server. History and Checks are optional.
type Deps struct {
	JobStore  cloner.JobStore
	Enqueuer  Enqueuer
	Sites     Sites
	History   ManifestHistory
	Validator *cloner.Validator
	IDGen     cloner.IDGenerator
	Clock     cloner.Clock
	Checks    map[string]ReadinessCheck
}

// Server wires HTTP handlers to the dispatcher and stores.
type Server struct {
	router    chi.Router
	jobStore  cloner.JobStore
	enqueuer  Enqueuer
	sites     Sites
	history   ManifestHistory
	validator *cloner.Validator
	idGen     cloner.IDGenerator
	clock     cloner.Clock
	checks    map[string]ReadinessCheck
	cfg       config.Config
	logger    *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(deps Deps, cfg config.Config, logger *zap.Logger) *Server {
	validator := deps.Validator
	if validator == nil {
		validator = cloner.NewValidator(cfg.Cloner.BlockedDomains, cfg.Cloner.AllowPrivateTargets)
	}
	s := &Server{
		jobStore:  deps.JobStore,
		enqueuer:  deps.Enqueuer,
		sites:     deps.Sites,
		history:   deps.History,
		validator: validator,
		idGen:     deps.IDGen,
		clock:     deps.Clock,
		checks:    deps.Checks,
		cfg:       cfg,
		logger:    logging.OrNop(logger).Named("api"),
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Route("/clones", func(r chi.Router) {
			r.Post("/", s.submitClone)
			r.Get("/", s.listClones)
			r.Get("/{job_id}", s.getClone)
		})
		r.Route("/sites", func(r chi.Router) {
			r.Get("/", s.listSites)
			r.Delete("/{name}", s.removeSite)
			if s.history != nil {
				r.Get("/{name}/manifests", s.siteHistory)
			}
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()
	failures := map[string]string{}
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			failures[name] = err.Error()
		}
	}
	if len(failures) > 0 {
		s.logger.Warn("readiness check failed", zap.Any("failures", failures))
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "checks": failures})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) submitClone(w http.ResponseWriter, r *http.Request) {
	var req cloneRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	cloneReq := s.toCloneRequest(req)
	if err := s.validator.ValidateRequest(cloneReq); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	jobID, err := s.enqueueJob(r.Context(), cloneReq)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, cloner.ErrQueueFull), errors.Is(err, cloner.ErrQueueClosed):
			status = http.StatusServiceUnavailable
		case errors.Is(err, context.DeadlineExceeded):
			status = http.StatusRequestTimeout
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"job_id": jobID,
		"status": string(cloner.JobStatusQueued),
	})
}

func (s *Server) enqueueJob(ctx context.Context, req cloner.CloneRequest) (string, error) {
	jobID, err := s.idGen.NewID()
	if err != nil {
		return "", fmt.Errorf("generate job id: %w", err)
	}
	now := s.clock.Now()
	job := cloner.Job{
		ID:        jobID,
		Status:    cloner.JobStatusQueued,
		Submitted: now,
		Request:   req,
	}
	if err := s.jobStore.CreateJob(ctx, job); err != nil {
		return "", fmt.Errorf("create job: %w", err)
	}
	queueCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	item := cloner.QueueItem{
		JobID:     jobID,
		Request:   req,
		Submitted: now.Unix(),
	}
	if err := s.enqueuer.Enqueue(queueCtx, item); err != nil {
		if failErr := s.jobStore.FailJob(ctx, jobID, cloner.ErrorTransient, err.Error()); failErr != nil {
			s.logger.Error("fail unqueued job", zap.String("job_id", jobID), zap.Error(failErr))
		}
		return "", fmt.Errorf("enqueue job: %w", err)
	}
	s.logger.Info("clone job queued",
		zap.String("job_id", jobID),
		zap.String("url", req.URL),
		zap.String("name", req.Name),
	)
	return jobID, nil
}

func (s *Server) listClones(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.jobStore.ListJobs(r.Context())
	if err != nil {
		s.logger.Error("list jobs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

func (s *Server) getClone(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	job, err := s.jobStore.GetJob(r.Context(), jobID)
	if errors.Is(err, cloner.ErrJobNotFound) {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		s.logger.Error("get job failed", zap.String("job_id", jobID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load job")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) listSites(w http.ResponseWriter, r *http.Request) {
	sites, err := s.sites.List(r.Context())
	if err != nil {
		s.logger.Error("list sites failed", zap.Error(err))
		writeError(w, storeErrorStatus(err), "failed to list sites")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sites": sites})
}

func (s *Server) removeSite(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := cloner.ValidateSiteName(name); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	err := s.sites.Remove(r.Context(), name)
	switch {
	case err == nil:
		s.logger.Info("site removed", zap.String("name", name))
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, cloner.ErrSiteNotFound):
		writeError(w, http.StatusNotFound, "site not found")
	default:
		s.logger.Error("remove site failed", zap.String("name", name), zap.Error(err))
		writeError(w, storeErrorStatus(err), "failed to remove site")
	}
}

func (s *Server) siteHistory(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}
	records, err := s.history.History(r.Context(), name, limit)
	if err != nil {
		s.logger.Error("manifest history failed", zap.String("name", name), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load manifest history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"name": name, "manifests": records})
}

func storeErrorStatus(err error) int {
	switch {
	case errors.Is(err, cloner.ErrPermissionDenied), errors.Is(err, cloner.ErrContainerNotFound):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

type cloneRequest struct {
	URL             string  `json:"url"`
	Name            string  `json:"name"`
	ContactNumber   string  `json:"contact_number"`
	PhoneNumber     string  `json:"phone_number"`
	TrackingID      string  `json:"tracking_id"`
	NeutralizeLinks bool    `json:"neutralize_links"`
	Cleanup         bool    `json:"cleanup"`
	OptimizeImages  *bool   `json:"optimize_images"`
	RenderMode      *string `json:"render_mode"`
}

func (s *Server) toCloneRequest(req cloneRequest) cloner.CloneRequest {
	return cloner.CloneRequest{
		URL:  req.URL,
		Name: req.Name,
		Rules: cloner.RewriteRules{
			ContactNumber:   req.ContactNumber,
			PhoneNumber:     req.PhoneNumber,
			TrackingID:      req.TrackingID,
			NeutralizeLinks: req.NeutralizeLinks,
			Cleanup:         req.Cleanup,
		},
		OptimizeImages: valueOrDefault(req.OptimizeImages, s.cfg.Cloner.OptimizeImages),
		RenderMode:     cloner.RenderMode(valueOrDefault(req.RenderMode, s.cfg.Cloner.RenderMode)),
	}
}

func valueOrDefault[T any](ptr *T, def T) T {
	if ptr == nil {
		return def
	}
	return *ptr
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		reqID, _ := r.Context().Value(requestIDKey{}).(string)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", reqID),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("panic", rec), zap.String("path", r.URL.Path))
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
