package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/okian/bikeflow/internal/adapters/repository"
	"github.com/okian/bikeflow/internal/medallion"
)

// ReportDependencies reads quality reports.
type ReportDependencies interface {
	LatestReport(ctx context.Context) (medallion.Report, error)
}

// ReportHandler handles report requests.
type ReportHandler struct {
	deps ReportDependencies
}

// NewReportHandler creates a new report handler.
func NewReportHandler(deps ReportDependencies) *ReportHandler {
	return &ReportHandler{deps: deps}
}

// HandleLatest handles GET /reports/latest requests.
func (h *ReportHandler) HandleLatest(w http.ResponseWriter, r *http.Request) {
	const op = "api.latest_report"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	report, err := h.deps.LatestReport(r.Context())
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", wrapKind(op, ErrNoReport, err))
	case err != nil:
		writeError(w, http.StatusInternalServerError, "internal", wrapKind(op, ErrReportRead, err))
	default:
		writeJSON(w, http.StatusOK, report)
	}
}
