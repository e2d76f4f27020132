// Package api exposes the HTTP interface for the documentation service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/JakeFAU/qa-docgen/internal/config"
	"github.com/JakeFAU/qa-docgen/internal/qadoc"
	"github.com/JakeFAU/qa-docgen/internal/scheduler"
)

const maxURLsPerJob = 100

// Server wires HTTP handlers to the runner and job store.
type Server struct {
	router   chi.Router
	jobStore qadoc.JobStore
	runner   *scheduler.Runner
	idGen    qadoc.IDGenerator
	clock    qadoc.Clock
	validate *validator.Validate
	cfg      config.Config
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	jobStore qadoc.JobStore,
	runner *scheduler.Runner,
	idGen qadoc.IDGenerator,
	clock qadoc.Clock,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	s := &Server{
		jobStore: jobStore,
		runner:   runner,
		idGen:    idGen,
		clock:    clock,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		cfg:      cfg,
		logger:   logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(60 * time.Second))
	if cfg.Auth.Enabled {
		r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/jobs", func(r chi.Router) {
			r.Post("/", s.submitJob)
			r.Route("/{job_id}", func(r chi.Router) {
				r.Get("/status", s.getJobStatus)
				r.Get("/document", s.getJobDocument)
				r.Post("/cancel", s.cancelJob)
			})
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
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	// Accepting work only needs the in-process queue; downstream stores
	// degrade per-job rather than per-service.
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type submitJobRequest struct {
	URLs               []string         `json:"urls"                           validate:"required,min=1,max=100,dive,required"`
	Auth               *authConfigInput `json:"auth_config"`
	RateLimitPerMinute int              `json:"rate_limit_requests_per_minute" validate:"gte=0,lte=600"`
}

type authConfigInput struct {
	Type       string `json:"auth_type"   validate:"required,oneof=basic session_token"`
	Username   string `json:"username"`
	Password   string `json:"password"`
	TokenKind  string `json:"token_type"  validate:"omitempty,oneof=cookie bearer"`
	TokenName  string `json:"token_name"`
	TokenValue string `json:"token_value"`
}

func (s *Server) submitJob(w http.ResponseWriter, r *http.Request) {
	var req submitJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}
	params, err := s.toJobParameters(req)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	jobID, err := s.createJob(r.Context(), params)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusRequestTimeout
		}
		s.writeError(w, status, err.Error())
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{
		"job_id": jobID,
		"status": string(qadoc.JobStatusPending),
	})
}

func (s *Server) getJobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	job, err := s.jobStore.GetJob(r.Context(), jobID)
	if err != nil {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	tasks, err := s.jobStore.ListTasks(r.Context(), jobID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to fetch job tasks")
		return
	}
	s.writeJSON(w, http.StatusOK, qadoc.JobResult{Job: redactJob(job), Tasks: tasks})
}

func (s *Server) getJobDocument(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	job, err := s.jobStore.GetJob(r.Context(), jobID)
	if err != nil {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if !job.Status.Terminal() {
		s.writeError(w, http.StatusNotFound, "document not ready")
		return
	}
	doc, err := s.jobStore.GetDocument(r.Context(), jobID)
	if err != nil {
		s.writeError(w, http.StatusNotFound, "document not found")
		return
	}
	s.writeJSON(w, http.StatusOK, doc)
}

func (s *Server) cancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	if err := s.runner.Cancel(r.Context(), jobID); err != nil {
		s.writeError(w, http.StatusConflict, err.Error())
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{
		"job_id": jobID,
		"status": string(qadoc.JobStatusCancelled),
	})
}

// createJob persists the job and its tasks, then hands the job to the runner.
func (s *Server) createJob(ctx context.Context, params qadoc.JobParameters) (string, error) {
	jobID, err := s.idGen.NewID()
	if err != nil {
		return "", fmt.Errorf("generate job id: %w", err)
	}
	now := s.clock.Now()
	job := qadoc.Job{
		ID:         jobID,
		Status:     qadoc.JobStatusPending,
		Submitted:  now,
		Parameters: params,
	}
	if err := s.jobStore.CreateJob(ctx, job); err != nil {
		return "", fmt.Errorf("create job: %w", err)
	}

	tasks := make([]qadoc.Task, 0, len(params.URLs))
	for _, u := range params.URLs {
		taskID, err := s.idGen.NewID()
		if err != nil {
			return "", fmt.Errorf("generate task id: %w", err)
		}
		tasks = append(tasks, qadoc.Task{
			ID:        taskID,
			JobID:     jobID,
			URL:       u,
			Status:    qadoc.TaskStatusQueued,
			Submitted: now,
		})
	}
	if err := s.jobStore.CreateTasks(ctx, tasks); err != nil {
		return "", fmt.Errorf("create tasks: %w", err)
	}

	queueCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	item := qadoc.QueueItem{
		JobID:     jobID,
		Params:    params,
		Submitted: now.Unix(),
	}
	if err := s.runner.Enqueue(queueCtx, item); err != nil {
		return "", fmt.Errorf("enqueue job: %w", err)
	}
	return jobID, nil
}

func (s *Server) toJobParameters(req submitJobRequest) (qadoc.JobParameters, error) {
	urls := make([]string, 0, len(req.URLs))
	seen := make(map[string]struct{}, len(req.URLs))
	for _, raw := range req.URLs {
		normalized, err := qadoc.NormalizeURL(raw)
		if err != nil {
			return qadoc.JobParameters{}, fmt.Errorf("invalid url %q: %w", raw, err)
		}
		if _, dup := seen[normalized]; dup {
			continue
		}
		seen[normalized] = struct{}{}
		urls = append(urls, normalized)
	}
	if len(urls) > maxURLsPerJob {
		return qadoc.JobParameters{}, fmt.Errorf("at most %d urls per job", maxURLsPerJob)
	}

	params := qadoc.JobParameters{
		URLs:               urls,
		RateLimitPerMinute: req.RateLimitPerMinute,
	}
	if params.RateLimitPerMinute == 0 {
		params.RateLimitPerMinute = s.cfg.RateLimit.DefaultPerMinute
	}
	if req.Auth != nil {
		auth, err := toAuthConfig(*req.Auth)
		if err != nil {
			return qadoc.JobParameters{}, err
		}
		params.Auth = &auth
	}
	return params, nil
}

func toAuthConfig(in authConfigInput) (qadoc.AuthConfig, error) {
	auth := qadoc.AuthConfig{
		Type:       qadoc.AuthType(in.Type),
		Username:   in.Username,
		Password:   in.Password,
		TokenKind:  qadoc.TokenKind(in.TokenKind),
		TokenName:  in.TokenName,
		TokenValue: in.TokenValue,
	}
	switch auth.Type {
	case qadoc.AuthTypeBasic:
		if auth.Username == "" || auth.Password == "" {
			return qadoc.AuthConfig{}, errors.New("basic auth requires username and password")
		}
	case qadoc.AuthTypeSessionToken:
		if auth.TokenValue == "" {
			return qadoc.AuthConfig{}, errors.New("session_token auth requires token_value")
		}
		if auth.TokenKind == "" {
			auth.TokenKind = qadoc.TokenKindCookie
		}
	}
	return auth, nil
}

// redactJob strips credentials before the job leaves the service.
func redactJob(job qadoc.Job) qadoc.Job {
	if job.Parameters.Auth == nil {
		return job
	}
	auth := *job.Parameters.Auth
	if auth.Password != "" {
		auth.Password = "[redacted]"
	}
	if auth.TokenValue != "" {
		auth.TokenValue = "[redacted]"
	}
	job.Parameters.Auth = &auth
	return job
}

func validationMessage(err error) string {
	var invalid *validator.InvalidValidationError
	if errors.As(err, &invalid) {
		return "invalid request"
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return fmt.Sprintf("field %s failed validation (%s)", fe.Field(), fe.Tag())
	}
	return err.Error()
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("error", rec))
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_, _ = w.Write([]byte(`{"error":"internal server error"}`))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
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

type requestIDKey struct{}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
