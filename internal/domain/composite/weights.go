package composite

import (
	"fmt"
	"math"
	"sort"
)

// Score family names.
const (
	FamilyTemporal       = "temporal"
	FamilyTraitPrimary   = "trait_primary"
	FamilyTraitSecondary = "trait_secondary"
)

// DefaultTolerance bounds |sum(weights) - 1|.
const DefaultTolerance = 1e-6

// WeightVector assigns a weight to each score family.
type WeightVector struct {
	Version string             `json:"version"`
	Weights map[string]float64 `json:"weights"`
}

// NewWeightVector copies weights into a new vector.
func NewWeightVector(version string, weights map[string]float64) WeightVector {
	w := WeightVector{Version: version, Weights: make(map[string]float64, len(weights))}
	for k, v := range weights {
		w.Weights[k] = v
	}
	return w
}

// DefaultWeights is the shipped vector.
func DefaultWeights() WeightVector {
	return NewWeightVector("default", map[string]float64{
		FamilyTemporal:       0.5,
		FamilyTraitPrimary:   0.3,
		FamilyTraitSecondary: 0.2,
	})
}

// Families returns the family names in sorted order.
func (w WeightVector) Families() []string {
	out := make([]string, 0, len(w.Weights))
	for k := range w.Weights {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Sum adds the weights in family order.
func (w WeightVector) Sum() float64 {
	var sum float64
	for _, f := range w.Families() {
		sum += w.Weights[f]
	}
	return sum
}

// Validate reports the first violated invariant. It never renormalizes.
func (w WeightVector) Validate(tolerance float64) error {
	if len(w.Weights) == 0 {
		return fmt.Errorf("%w: no families", ErrMalformedWeightVector)
	}
	for _, f := range w.Families() {
		if f == "" {
			return fmt.Errorf("%w: empty family name", ErrMalformedWeightVector)
		}
		v := w.Weights[f]
		if math.IsNaN(v) || v < 0 || v > 1 {
			return fmt.Errorf("%w: weight %q=%v outside [0,1]", ErrMalformedWeightVector, f, v)
		}
	}
	if sum := w.Sum(); math.Abs(sum-1) > tolerance {
		return fmt.Errorf("%w: weights sum to %v, want 1 (tolerance %v)", ErrMalformedWeightVector, sum, tolerance)
	}
	return nil
}

// Clone returns a deep copy.
func (w WeightVector) Clone() WeightVector {
	return NewWeightVector(w.Version, w.Weights)
}
