// Package api serves the dashboard, connection status and run trigger over
// HTTP.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/lpde-tools/ledger-indicators/internal/collector"
	"github.com/lpde-tools/ledger-indicators/internal/dashboard"
	"github.com/lpde-tools/ledger-indicators/internal/metrics"
	"github.com/lpde-tools/ledger-indicators/internal/model"
	"github.com/lpde-tools/ledger-indicators/internal/store"
)

// Deps are the collaborators the API needs.
type Deps struct {
	Store     store.Store
	Dashboard *dashboard.Service
	Runner    collector.Runner
	Issuer    *Issuer
	Metrics   *metrics.Recorder
	Gatherer  prometheus.Gatherer
	Origins   []string
}

// Server holds the HTTP handlers.
type Server struct {
	deps Deps
}

// NewServer creates a Server.
func NewServer(deps Deps) *Server {
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}
	if len(deps.Origins) == 0 {
		deps.Origins = []string{"*"}
	}
	return &Server{deps: deps}
}

// Router builds the route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.deps.Metrics))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.deps.Origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Use(authenticate(s.deps.Issuer, s.deps.Store))
		r.Get("/dashboard", s.handleDashboard)
		r.Group(func(r chi.Router) {
			r.Use(requireAdmin)
			r.Get("/status", s.handleStatus)
			r.Post("/runs", s.handleTriggerRun)
		})
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Store.Ping(r.Context()); err != nil {
		zap.L().Error("api: health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := dashboard.Filters{
		ClosingDate:  q.Get("closing_date"),
		Collaborator: q.Get("collaborator"),
		Category:     q.Get("category"),
	}
	v, err := s.deps.Dashboard.View(r.Context(), ProfileFrom(r.Context()), f)
	if err != nil {
		zap.L().Error("api: dashboard view", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "dashboard query failed")
		return
	}
	writeJSON(w, http.StatusOK, v)
}

type statusRow struct {
	TenantID              string    `json:"tenant_id"`
	TenantName            string    `json:"tenant_name"`
	ConnectionSuccessful  bool      `json:"connection_successful"`
	LastConnectionAttempt time.Time `json:"last_connection_attempt"`
	LastErrorMessage      *string   `json:"last_error_message"`
	ErrorSummary          string    `json:"error_summary"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Store.ListConnectionStatuses(r.Context())
	if err != nil {
		zap.L().Error("api: list statuses", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "status query failed")
		return
	}
	rows := make([]statusRow, 0, len(list))
	for _, st := range list {
		rows = append(rows, statusRow{
			TenantID:              st.TenantID,
			TenantName:            st.TenantName,
			ConnectionSuccessful:  st.ConnectionSuccessful,
			LastConnectionAttempt: st.LastConnectionAttempt,
			LastErrorMessage:      st.LastErrorMessage,
			ErrorSummary:          st.ErrorSummary(75),
		})
	}
	writeJSON(w, http.StatusOK, rows)
}

type runResponse struct {
	Status        string                    `json:"status"`
	RunTimestamp  time.Time                 `json:"run_timestamp"`
	Connected     int                       `json:"connected"`
	Failed        int                       `json:"failed"`
	Persisted     int                       `json:"persisted"`
	PersistErrors int                       `json:"persist_errors"`
	Tenants       []collector.TenantOutcome `json:"tenants"`
}

// handleTriggerRun runs a collection synchronously and reports the
// aggregate outcome.
func (s *Server) handleTriggerRun(w http.ResponseWriter, r *http.Request) {
	log := zap.L().With(zap.String("username", usernameFrom(r.Context())))
	log.Info("api: run triggered")

	summary, err := s.deps.Runner.Run(r.Context())
	switch {
	case errors.Is(err, collector.ErrRunInProgress):
		writeError(w, http.StatusConflict, "a run is already in progress")
		return
	case errors.Is(err, model.ErrNoFirmConfig):
		writeError(w, http.StatusUnprocessableEntity, "firm configuration not found")
		return
	case err != nil:
		log.Error("api: run failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "run failed")
		return
	}

	writeJSON(w, http.StatusOK, runResponse{
		Status:        "completed",
		RunTimestamp:  summary.RunTimestamp,
		Connected:     summary.Connected(),
		Failed:        summary.Failed(),
		Persisted:     summary.Persisted(),
		PersistErrors: summary.PersistErrors(),
		Tenants:       summary.Tenants,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("api: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
