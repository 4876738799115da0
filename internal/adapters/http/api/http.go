// Package api declares the admin HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	service "github.com/okian/bikeflow/internal/app"
	"github.com/okian/bikeflow/internal/medallion"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to the pipeline service.
type Dependencies interface {
	StatsProvider

	// RunRealtime and RunHistorical execute one run synchronously.
	RunRealtime(ctx context.Context) service.RunResult
	RunHistorical(ctx context.Context) service.RunResult

	// LatestReport returns the most recent quality report.
	LatestReport(ctx context.Context) (medallion.Report, error)
}

// Server wires HTTP routes for the admin API.
type Server struct {
	healthHandler *HealthHandler
	statsHandler  *StatsHandler
	runsHandler   *RunsHandler
	reportHandler *ReportHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies) *Server {
	return &Server{
		healthHandler: NewHealthHandler(),
		statsHandler:  NewStatsHandler(deps),
		runsHandler:   NewRunsHandler(deps),
		reportHandler: NewReportHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/metrics", MetricsMiddleware(s.healthHandler.HandleHealth, "metrics"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/runs/realtime", MetricsMiddleware(s.runsHandler.HandleRealtime, "runs_realtime"))
	mux.HandleFunc("/runs/historical", MetricsMiddleware(s.runsHandler.HandleHistorical, "runs_historical"))
	mux.HandleFunc("/reports/latest", MetricsMiddleware(s.reportHandler.HandleLatest, "reports_latest"))
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
