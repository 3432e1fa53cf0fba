// Package composite blends independently normalized score families into one
// value using a validated weight vector.
package composite

import (
	"fmt"
	"math"
)

// FamilyResult is one family's share of a composite.
type FamilyResult struct {
	Family       string  `json:"family"`
	Subscore     float64 `json:"subscore"`
	Weight       float64 `json:"weight"`
	Contribution float64 `json:"contribution"`
	Tier         string  `json:"tier"`
}

// Result is a composite with its per-family breakdown.
type Result struct {
	Composite float64        `json:"composite"`
	Tier      string         `json:"tier"`
	Version   string         `json:"version"`
	Families  []FamilyResult `json:"families"`
}

// Engine computes composites. It is safe for concurrent use.
type Engine struct {
	bands     Bands
	tolerance float64
}

// NewEngine returns an Engine with default bands and tolerance.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{bands: DefaultBands(), tolerance: DefaultTolerance}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Tolerance returns the weight-sum tolerance.
func (e *Engine) Tolerance() float64 { return e.tolerance }

// Bands returns the tier thresholds.
func (e *Engine) Bands() Bands { return e.bands }

// Compute returns sum(weight_i * subscore_i) over the families of w.
// Every family of w needs a subscore in [0,1]; extra subscores are ignored.
func (e *Engine) Compute(w WeightVector, subscores map[string]float64) (Result, error) {
	if err := w.Validate(e.tolerance); err != nil {
		return Result{}, err
	}

	families := w.Families()
	res := Result{Version: w.Version, Families: make([]FamilyResult, 0, len(families))}
	var sum float64
	for _, f := range families {
		s, ok := subscores[f]
		if !ok {
			return Result{}, fmt.Errorf("%w: %q", ErrMissingSubscore, f)
		}
		if math.IsNaN(s) || s < 0 || s > 1 {
			return Result{}, fmt.Errorf("%w: %q=%v", ErrSubscoreOutOfRange, f, s)
		}
		c := w.Weights[f] * s
		sum += c
		res.Families = append(res.Families, FamilyResult{
			Family:       f,
			Subscore:     s,
			Weight:       w.Weights[f],
			Contribution: c,
			Tier:         e.bands.Classify(s),
		})
	}

	// a sum within tolerance of 1 can push the blend a hair past 1
	res.Composite = math.Min(1, math.Max(0, sum))
	res.Tier = e.bands.Classify(res.Composite)
	return res, nil
}
