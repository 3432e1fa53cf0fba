package api

import (
	"errors"
	"net/http"

	service "github.com/okian/kairos/internal/app"
	"github.com/okian/kairos/internal/domain/model"
	"github.com/okian/kairos/pkg/logger"
)

// Affinity response states.
const (
	affinityOK     = "ok"
	affinityNoData = "no_data"
	affinityFailed = "computation_failed"
)

// AffinityHandler recomputes one subject's affinity on read.
type AffinityHandler struct {
	deps AffinityDependencies
}

// NewAffinityHandler creates a new affinity handler.
func NewAffinityHandler(deps AffinityDependencies) *AffinityHandler {
	return &AffinityHandler{deps: deps}
}

type affinityResponse struct {
	Status    string             `json:"status"`
	SubjectID string             `json:"subject_id"`
	Engine    string             `json:"engine,omitempty"`
	Aggregate *aggregateResponse `json:"aggregate,omitempty"`
	Error     string             `json:"error,omitempty"`
}

// HandleGetAffinity handles GET /affinity/{subject}?engine=E.
// A subject without pair scores answers 200 with status no_data, which is
// distinct from a computed affinity of zero.
func (h *AffinityHandler) HandleGetAffinity(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_affinity"
	subject := r.PathValue("subject")
	if subject == "" {
		writeError(w, http.StatusBadRequest, "bad_request", badRequest(op, errMissingSubject))
		return
	}

	engine := r.URL.Query().Get("engine")
	agg, err := h.deps.Affinity(r.Context(), model.EngineKind(engine), subject)
	switch {
	case errors.Is(err, service.ErrUnknownSubject), errors.Is(err, service.ErrUnknownEngine), errors.Is(err, service.ErrNotStarted):
		writeFailure(w, r, op, err)
	case err != nil:
		logger.Get().Named("api").Error(r.Context(), "affinity computation failed",
			logger.String("subject", subject),
			logger.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, affinityResponse{
			Status:    affinityFailed,
			SubjectID: subject,
			Engine:    engine,
			Error:     err.Error(),
		})
	case !agg.HasData():
		writeJSON(w, http.StatusOK, affinityResponse{Status: affinityNoData, SubjectID: subject, Engine: string(agg.Engine)})
	default:
		resp := toAggregateResponse(agg)
		writeJSON(w, http.StatusOK, affinityResponse{
			Status:    affinityOK,
			SubjectID: subject,
			Engine:    string(agg.Engine),
			Aggregate: &resp,
		})
	}
}
