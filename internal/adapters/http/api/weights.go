package api

import (
	"net/http"

	"github.com/okian/kairos/internal/domain/composite"
)

// WeightsHandler exposes the composite weight registry.
type WeightsHandler struct {
	deps WeightDependencies
}

// NewWeightsHandler creates a new weights handler.
func NewWeightsHandler(deps WeightDependencies) *WeightsHandler {
	return &WeightsHandler{deps: deps}
}

type weightsResponse struct {
	Active   string             `json:"active"`
	Weights  map[string]float64 `json:"weights"`
	Versions []string           `json:"versions"`
	Bands    []composite.Band   `json:"bands"`
}

// HandleGetWeights handles GET /weights.
func (h *WeightsHandler) HandleGetWeights(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_weights"
	active, err := h.deps.ActiveWeights()
	if err != nil {
		writeFailure(w, r, op, err)
		return
	}
	versions, err := h.deps.WeightVersions()
	if err != nil {
		writeFailure(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, weightsResponse{
		Active:   active.Version,
		Weights:  active.Weights,
		Versions: versions,
		Bands:    h.deps.Bands(),
	})
}
