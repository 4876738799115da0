package api

import (
	"context"
	"net/http"

	service "github.com/okian/bikeflow/internal/app"
	"github.com/okian/bikeflow/internal/domain/types"
)

// RunDependencies triggers pipeline runs.
type RunDependencies interface {
	RunRealtime(ctx context.Context) service.RunResult
	RunHistorical(ctx context.Context) service.RunResult
}

// RunsHandler handles run trigger requests.
type RunsHandler struct {
	deps RunDependencies
}

// NewRunsHandler creates a new runs handler.
func NewRunsHandler(deps RunDependencies) *RunsHandler {
	return &RunsHandler{deps: deps}
}

// HandleRealtime handles POST /runs/realtime requests.
func (h *RunsHandler) HandleRealtime(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, h.deps.RunRealtime)
}

// HandleHistorical handles POST /runs/historical requests.
func (h *RunsHandler) HandleHistorical(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, h.deps.RunHistorical)
}

// handle runs the flow and returns its result. Blocked and empty runs are
// normal outcomes; only failed runs answer 500.
func (h *RunsHandler) handle(w http.ResponseWriter, r *http.Request, run func(context.Context) service.RunResult) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	res := run(r.Context())
	if res.Status == types.RunError {
		writeJSON(w, http.StatusInternalServerError, res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
