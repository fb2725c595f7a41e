// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/okian/mastery/internal/adapters/repository"
	service "github.com/okian/mastery/internal/app"
	"github.com/okian/mastery/internal/domain/model"
	"github.com/okian/mastery/internal/domain/types"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	// Trigger asks for an asynchronous run of job.
	Trigger(ctx context.Context, job, source string) error

	// Read operations expose catalog data.
	ListVehicles(ctx context.Context, q repository.ListQuery) ([]model.VehicleRecord, int, error)
	History(ctx context.Context, id model.VehicleID) ([]model.HistorySnapshot, error)
	Summary(ctx context.Context) (model.CatalogSummary, error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler  *HealthHandler
	statsHandler   *StatsHandler
	tanksHandler   *TanksHandler
	historyHandler *HistoryHandler
	summaryHandler *SummaryHandler
	triggerHandler *TriggerHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...Option) *Server {
	o := options{maxListSize: defaultMaxListSize}
	for _, opt := range opts {
		opt(&o)
	}

	return &Server{
		healthHandler:  NewHealthHandler(),
		statsHandler:   NewStatsHandler(statsProvider),
		tanksHandler:   NewTanksHandler(deps, o.maxListSize),
		historyHandler: NewHistoryHandler(deps),
		summaryHandler: NewSummaryHandler(deps),
		triggerHandler: NewTriggerHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/tanks", MetricsMiddleware(s.tanksHandler.HandleListTanks, "tanks"))
	mux.HandleFunc("/history", MetricsMiddleware(s.historyHandler.HandleHistory, "history"))
	mux.HandleFunc("/summary", MetricsMiddleware(s.summaryHandler.HandleSummary, "summary"))
	mux.HandleFunc("/manual", MetricsMiddleware(s.triggerHandler.For(model.JobMastery), "manual"))
	mux.HandleFunc("/reference", MetricsMiddleware(s.triggerHandler.For(model.JobReference), "reference"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeOK(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, types.OK(data))
}

func writeError(w http.ResponseWriter, status, code int, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, types.Fail(code, msg))
}

// writeStoreError maps store and service errors to a status and code.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrInvalidSort), errors.Is(err, repository.ErrInvalidLimit),
		errors.Is(err, service.ErrUnknownJob):
		writeError(w, http.StatusBadRequest, types.CodeBadRequest, err)
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, types.CodeNotFound, err)
	case errors.Is(err, service.ErrQueueFull):
		writeError(w, http.StatusTooManyRequests, types.CodeBusy, ErrBackpressure)
	case errors.Is(err, service.ErrNotStarted):
		writeError(w, http.StatusServiceUnavailable, types.CodeUnavailable, err)
	default:
		writeError(w, http.StatusInternalServerError, types.CodeInternal, err)
	}
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	for _, m := range allowed {
		w.Header().Add("Allow", m)
	}
	writeError(w, http.StatusMethodNotAllowed, types.CodeMethodDenied, nil)
}
