// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/okian/killsync/internal/adapters/repository"
	"github.com/okian/killsync/internal/domain/model"
	"github.com/okian/killsync/pkg/logger"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	Ping(ctx context.Context) error
	GetStats(ctx context.Context) map[string]any

	// Submit queues an ingestion job for the background worker.
	Submit(ctx context.Context, kind model.JobKind, maxPages int) (model.Job, error)
	LastSyncRun(ctx context.Context) (model.SyncRun, error)

	// CorporationName is the default corporation filter for reports.
	CorporationName() string
}

// Reports is the read side backing the report endpoints.
type Reports interface {
	DailyStats(ctx context.Context, rg repository.Range) ([]repository.DailyStat, error)
	TopShipTypes(ctx context.Context, rg repository.Range, limit int) ([]repository.ShipTypeStat, error)
	TopPilots(ctx context.Context, corporation string, rg repository.Range, limit int) ([]repository.PilotStat, error)
	CorporationSummary(ctx context.Context, corporation string, rg repository.Range) (repository.CorporationSummary, error)
	HourlyDistribution(ctx context.Context, rg repository.Range) (repository.HourlyDistribution, error)
	ShipLossesByMonth(ctx context.Context, corporation, shipName string, rg repository.Range) ([]repository.MonthlyShipLoss, error)
	ShipLossRanking(ctx context.Context, corporation, shipName string, rg repository.Range) ([]repository.ShipLossRank, error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler  *HealthHandler
	statsHandler   *StatsHandler
	reportsHandler *ReportsHandler
	jobsHandler    *JobsHandler
	logger         logger.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger used for request failures. Without it the
// server logs nothing.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock sets the clock used to default report ranges.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.reportsHandler.now = now
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, reports Reports, opts ...Option) *Server {
	s := &Server{
		healthHandler:  NewHealthHandler(deps),
		statsHandler:   NewStatsHandler(deps),
		reportsHandler: NewReportsHandler(reports, deps.CorporationName()),
		jobsHandler:    NewJobsHandler(deps),
		logger:         logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.reportsHandler.logger = s.logger
	s.jobsHandler.logger = s.logger
	return s
}

// Register attaches all HTTP routes to r.
func (s *Server) Register(r chi.Router) {
	r.Get("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	r.Get("/metrics", s.healthHandler.HandleMetrics)
	r.Get("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/stats/daily", MetricsMiddleware(s.reportsHandler.HandleDaily, "daily"))
		r.Get("/stats/hourly", MetricsMiddleware(s.reportsHandler.HandleHourly, "hourly"))
		r.Get("/ship-types/top", MetricsMiddleware(s.reportsHandler.HandleTopShipTypes, "ship_types"))
		r.Get("/pilots/top", MetricsMiddleware(s.reportsHandler.HandleTopPilots, "pilots"))
		r.Get("/corporations/summary", MetricsMiddleware(s.reportsHandler.HandleCorporationSummary, "corporation_summary"))
		r.Get("/ships/{name}/losses", MetricsMiddleware(s.reportsHandler.HandleShipLosses, "ship_losses"))

		r.Post("/sync", MetricsMiddleware(s.jobsHandler.HandleSync, "sync"))
		r.Get("/sync/runs/last", MetricsMiddleware(s.jobsHandler.HandleLastRun, "sync_last_run"))
		r.Post("/backfill/{target}", MetricsMiddleware(s.jobsHandler.HandleBackfill, "backfill"))
	})
}

// Handler returns a router with the standard middleware stack and every
// API route registered.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	s.Register(r)
	return r
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
