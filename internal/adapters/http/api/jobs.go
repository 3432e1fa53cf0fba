package api

import (
	"errors"
	"net/http"

	"github.com/okian/kairos/internal/adapters/repository"
	service "github.com/okian/kairos/internal/app"
	"github.com/okian/kairos/internal/domain/model"
)

// JobsHandler starts scoring batches and leaderboard rebuilds. Both run
// synchronously and answer with their report.
type JobsHandler struct {
	deps JobDependencies
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(deps JobDependencies) *JobsHandler {
	return &JobsHandler{deps: deps}
}

type scoreRequest struct {
	Engine string         `json:"engine"`
	Pairs  []service.Pair `json:"pairs"`
}

type rebuildRequest struct {
	Engine string `json:"engine"`
}

type jobResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
	Report any    `json:"report"`
}

// HandleScore handles POST /jobs/score. Without pairs every known pair is scored.
func (h *JobsHandler) HandleScore(w http.ResponseWriter, r *http.Request) {
	const op = "api.jobs_score"
	var req scoreRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", badRequest(op, err))
		return
	}

	var (
		report service.BatchReport
		err    error
	)
	if len(req.Pairs) == 0 {
		report, err = h.deps.ScoreAll(r.Context(), model.EngineKind(req.Engine))
	} else {
		report, err = h.deps.ScorePairs(r.Context(), model.EngineKind(req.Engine), req.Pairs)
	}
	h.respond(w, r, op, report.RunID, report, err)
}

// HandleRebuild handles POST /jobs/rebuild.
func (h *JobsHandler) HandleRebuild(w http.ResponseWriter, r *http.Request) {
	const op = "api.jobs_rebuild"
	var req rebuildRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", badRequest(op, err))
		return
	}
	report, err := h.deps.Rebuild(r.Context(), model.EngineKind(req.Engine))
	h.respond(w, r, op, report.RunID, report, err)
}

// respond returns the report even when the run stopped part way.
func (h *JobsHandler) respond(w http.ResponseWriter, r *http.Request, op, runID string, report any, err error) {
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, jobResponse{Status: "completed", Report: report})
	case runID == "":
		writeFailure(w, r, op, err)
	default:
		status, _ := classify(err)
		label := "failed"
		if errors.Is(err, repository.ErrCircuitOpen) {
			label = "aborted"
		} else if errors.Is(err, service.ErrRebuildCancelled) {
			label = "cancelled"
		}
		writeJSON(w, status, jobResponse{Status: label, Error: err.Error(), Report: report})
	}
}
