package api

import (
	"net/http"
	"strconv"

	"github.com/okian/kairos/internal/domain/model"
)

// LeaderboardHandler handles leaderboard requests.
type LeaderboardHandler struct {
	deps     LeaderboardDependencies
	maxLimit int
}

// NewLeaderboardHandler creates a new leaderboard handler.
func NewLeaderboardHandler(deps LeaderboardDependencies, maxLimit int) *LeaderboardHandler {
	return &LeaderboardHandler{
		deps:     deps,
		maxLimit: maxLimit,
	}
}

// HandleGetLeaderboard handles GET /leaderboard?engine=E&limit=N requests.
func (h *LeaderboardHandler) HandleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_leaderboard"
	q := r.URL.Query()
	n, err := strconv.Atoi(q.Get("limit"))
	if err != nil || n < 1 {
		writeError(w, http.StatusBadRequest, "bad_request", badRequest(op, errInvalidLimit))
		return
	}
	if n > h.maxLimit {
		writeError(w, http.StatusBadRequest, "limit_exceeded", badRequest(op, errLimitExceeded))
		return
	}

	entries, err := h.deps.TopN(r.Context(), model.EngineKind(q.Get("engine")), n)
	if err != nil {
		writeFailure(w, r, op, err)
		return
	}
	out := make([]aggregateResponse, len(entries))
	for i, e := range entries {
		out[i] = toAggregateResponse(e)
	}
	writeJSON(w, http.StatusOK, out)
}
