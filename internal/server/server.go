package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/hazz-dev/devprobe/internal/checker"
	"github.com/hazz-dev/devprobe/internal/config"
	"github.com/hazz-dev/devprobe/internal/engine"
	"github.com/hazz-dev/devprobe/internal/preset"
	"github.com/hazz-dev/devprobe/internal/storage"
)

// Engine runs check batches.
type Engine interface {
	Check(ctx context.Context, req engine.Request) ([]checker.CheckResult, error)
}

// Catalog lists and resolves presets.
type Catalog interface {
	List() []string
	Resolve(name string) ([]checker.Descriptor, error)
}

// ServerStore defines the storage queries the server needs.
type ServerStore interface {
	InsertResults(ctx context.Context, results []checker.CheckResult) error
	AllLatest(ctx context.Context) ([]storage.Check, error)
	History(ctx context.Context, service string, limit int) ([]storage.Check, error)
	UptimePercent(ctx context.Context, service string, since time.Time, last int) (float64, error)
}

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 1000
	uptimeWindow        = 100
)

// Server holds the chi router and its dependencies.
type Server struct {
	engine    Engine
	presets   Catalog
	store     ServerStore
	cfg       *config.Config
	metrics   http.Handler
	static    http.Handler
	retention time.Duration
	router    chi.Router
	logger    *zap.Logger
}

// Option configures optional server features.
type Option func(*Server)

// WithConfig exposes cfg on /api/config and uses its history retention.
func WithConfig(cfg *config.Config) Option {
	return func(s *Server) {
		s.cfg = cfg
		s.retention = cfg.History.Retention.Duration
	}
}

// WithMetricsHandler mounts h on /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// WithStatic serves h for every path outside the API.
func WithStatic(h http.Handler) Option {
	return func(s *Server) { s.static = h }
}

// New creates a new Server and registers all routes.
func New(eng Engine, presets Catalog, store ServerStore, logger *zap.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		engine:    eng,
		presets:   presets,
		store:     store,
		retention: 24 * time.Hour,
		router:    chi.NewRouter(),
		logger:    logger,
	}
	for _, o := range opts {
		o(s)
	}
	s.registerRoutes()
	return s
}

// Router returns the chi router (for mounting or testing).
func (s *Server) Router() chi.Router {
	return s.router
}

func (s *Server) registerRoutes() {
	r := s.router
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/api/health", s.handleHealth)
	r.Get("/api/presets", s.handleListPresets)
	r.Get("/api/presets/{name}", s.handleGetPreset)
	r.Post("/api/check", s.handleCheck)
	r.Post("/api/check/{kind}", s.handleCheckOne)
	r.Get("/api/history/{name}", s.handleHistory)
	r.Get("/api/status", s.handleStatus)
	r.Get("/api/config", s.handleConfig)

	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}
	if s.static != nil {
		r.Handle("/*", s.static)
	}
}

// --- Response helpers ---

type envelope struct {
	Data  any    `json:"data"`
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(envelope{Data: data})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(envelope{Error: msg})
}

// checkErrorStatus maps engine errors to HTTP status codes.
func checkErrorStatus(err error) int {
	switch {
	case errors.Is(err, preset.ErrUnknownPreset),
		errors.Is(err, engine.ErrNoDescriptors),
		errors.Is(err, engine.ErrInvalidTimeout):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// record stores results; failures only cost history.
func (s *Server) record(ctx context.Context, results []checker.CheckResult) {
	if err := s.store.InsertResults(ctx, results); err != nil {
		s.logger.Error("InsertResults", zap.Error(err))
	}
}

// --- Handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

type presetService struct {
	checker.ServiceSpec
	Hint string `json:"hint,omitempty"`
}

type presetDetail struct {
	Name     string          `json:"name"`
	Services []presetService `json:"services"`
}

func describePreset(name string, descriptors []checker.Descriptor) presetDetail {
	d := presetDetail{Name: name, Services: make([]presetService, 0, len(descriptors))}
	for _, desc := range descriptors {
		svc := presetService{ServiceSpec: checker.SpecFor(desc)}
		if desc.Kind == checker.KindPort {
			svc.Hint = preset.Describe(svc.Port)
		}
		d.Services = append(d.Services, svc)
	}
	return d
}

func (s *Server) handleListPresets(w http.ResponseWriter, r *http.Request) {
	names := s.presets.List()
	details := make([]presetDetail, 0, len(names))
	for _, name := range names {
		descriptors, err := s.presets.Resolve(name)
		if err != nil {
			s.logger.Error("Resolve", zap.String("preset", name), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		details = append(details, describePreset(name, descriptors))
	}
	writeJSON(w, http.StatusOK, details)
}

func (s *Server) handleGetPreset(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	descriptors, err := s.presets.Resolve(name)
	if errors.Is(err, preset.ErrUnknownPreset) {
		writeError(w, http.StatusNotFound, "preset not found")
		return
	}
	if err != nil {
		s.logger.Error("Resolve", zap.String("preset", name), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, describePreset(name, descriptors))
}

type checkRequest struct {
	Presets        []string              `json:"presets"`
	Services       []checker.ServiceSpec `json:"services"`
	Timeout        string                `json:"timeout"`
	OverallTimeout string                `json:"overall_timeout"`
}

func parseTimeout(field, v string) (time.Duration, error) {
	if v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, errors.New("invalid " + field + " parameter")
	}
	return d, nil
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	var body checkRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	perCheck, err := parseTimeout("timeout", body.Timeout)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	overall, err := parseTimeout("overall_timeout", body.OverallTimeout)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	services := make([]checker.Descriptor, len(body.Services))
	for i, spec := range body.Services {
		if err := spec.CheckTimeout(); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("services[%d]: %v", i, err))
			return
		}
		services[i] = spec.Descriptor()
	}

	results, err := s.engine.Check(r.Context(), engine.Request{
		Presets:  body.Presets,
		Services: services,
		Timeouts: engine.Timeouts{PerCheck: perCheck, Overall: overall},
	})
	if err != nil {
		writeError(w, checkErrorStatus(err), err.Error())
		return
	}

	s.record(r.Context(), results)
	writeJSON(w, http.StatusOK, checker.NewBatchReport(results))
}

func (s *Server) handleCheckOne(w http.ResponseWriter, r *http.Request) {
	kind := checker.Kind(chi.URLParam(r, "kind"))
	if kind != checker.KindPort && kind != checker.KindHTTP {
		writeError(w, http.StatusNotFound, "unknown check kind")
		return
	}

	var spec checker.ServiceSpec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	spec.Type = string(kind)
	if err := spec.CheckTimeout(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	d := spec.Descriptor()
	if err := d.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	results, err := s.engine.Check(r.Context(), engine.Request{Services: []checker.Descriptor{d}})
	if err != nil {
		writeError(w, checkErrorStatus(err), err.Error())
		return
	}

	s.record(r.Context(), results)
	writeJSON(w, http.StatusOK, checker.NewReport(results[0]))
}

type historyResponse struct {
	Service   string          `json:"service"`
	UptimePct float64         `json:"uptime_percent"`
	Checks    []storage.Check `json:"checks"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit parameter")
			return
		}
		if n > maxHistoryLimit {
			n = maxHistoryLimit
		}
		limit = n
	}

	checks, err := s.store.History(r.Context(), name, limit)
	if err != nil {
		s.logger.Error("History", zap.String("service", name), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	pct, err := s.store.UptimePercent(r.Context(), name, time.Now().Add(-s.retention), uptimeWindow)
	if err != nil {
		s.logger.Warn("UptimePercent", zap.String("service", name), zap.Error(err))
	}

	writeJSON(w, http.StatusOK, historyResponse{
		Service:   name,
		UptimePct: pct,
		Checks:    checks,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	latest, err := s.store.AllLatest(r.Context())
	if err != nil {
		s.logger.Error("AllLatest", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, latest)
}

type configView struct {
	Checks struct {
		Timeout        string `json:"timeout"`
		OverallTimeout string `json:"overall_timeout"`
		MaxConcurrency int    `json:"max_concurrency"`
	} `json:"checks"`
	Monitoring struct {
		Enabled             bool     `json:"enabled"`
		Interval            string   `json:"interval"`
		Schedule            string   `json:"schedule,omitempty"`
		Presets             []string `json:"presets"`
		ResponseTimeWarning string   `json:"response_time_warning"`
	} `json:"monitoring"`
	Notifications struct {
		WebhookEnabled bool   `json:"webhook_enabled"`
		Cooldown       string `json:"cooldown"`
	} `json:"notifications"`
	Server struct {
		Address string `json:"address"`
	} `json:"server"`
	History struct {
		Retention string `json:"retention"`
		Limit     int    `json:"limit"`
	} `json:"history"`
	Presets   []string `json:"presets"`
	Telemetry struct {
		Metrics string `json:"metrics"`
		Tracing string `json:"tracing"`
	} `json:"telemetry"`
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	if s.cfg == nil {
		writeError(w, http.StatusNotFound, "configuration not available")
		return
	}
	c := s.cfg

	var v configView
	v.Checks.Timeout = c.Checks.Timeout.String()
	v.Checks.OverallTimeout = c.Checks.OverallTimeout.String()
	v.Checks.MaxConcurrency = c.Checks.MaxConcurrency
	v.Monitoring.Enabled = c.Monitoring.Enabled
	v.Monitoring.Interval = c.Monitoring.Interval.String()
	v.Monitoring.Schedule = c.Monitoring.Schedule
	v.Monitoring.Presets = c.Monitoring.Presets
	v.Monitoring.ResponseTimeWarning = c.Monitoring.ResponseTimeWarning.String()
	v.Notifications.WebhookEnabled = c.Notifications.Webhook.URL != ""
	v.Notifications.Cooldown = c.Notifications.Webhook.Cooldown.String()
	v.Server.Address = c.Server.Address
	v.History.Retention = c.History.Retention.String()
	v.History.Limit = c.History.Limit
	v.Presets = c.PresetNames()
	v.Telemetry.Metrics = c.Telemetry.Metrics
	v.Telemetry.Tracing = c.Telemetry.Tracing

	writeJSON(w, http.StatusOK, v)
}

// --- Middleware ---

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", sw.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}
