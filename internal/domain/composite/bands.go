package composite

import (
	"fmt"
	"math"
	"sort"
)

// Band labels every value at or above Min, up to the next band.
type Band struct {
	Min   float64 `json:"min"`
	Label string  `json:"label"`
}

// Bands maps a [0,1] value to a qualitative tier.
type Bands struct {
	bands []Band // sorted by Min descending
}

// DefaultBands returns the shipped tiers.
func DefaultBands() Bands {
	b, _ := NewBands([]Band{
		{Min: 0.85, Label: "exceptional"},
		{Min: 0.70, Label: "strong"},
		{Min: 0.50, Label: "moderate"},
		{Min: 0.30, Label: "weak"},
		{Min: 0, Label: "minimal"},
	})
	return b
}

// NewBands validates the thresholds. One band must start at 0 so every value
// has a tier, and thresholds must be distinct values in [0,1].
func NewBands(bands []Band) (Bands, error) {
	if len(bands) == 0 {
		return Bands{}, fmt.Errorf("%w: no bands", ErrInvalidBands)
	}
	sorted := make([]Band, len(bands))
	copy(sorted, bands)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Min > sorted[j].Min })

	for i, b := range sorted {
		if math.IsNaN(b.Min) || b.Min < 0 || b.Min > 1 {
			return Bands{}, fmt.Errorf("%w: threshold %v outside [0,1]", ErrInvalidBands, b.Min)
		}
		if b.Label == "" {
			return Bands{}, fmt.Errorf("%w: empty label at %v", ErrInvalidBands, b.Min)
		}
		if i > 0 && sorted[i-1].Min == b.Min {
			return Bands{}, fmt.Errorf("%w: duplicate threshold %v", ErrInvalidBands, b.Min)
		}
	}
	if sorted[len(sorted)-1].Min != 0 {
		return Bands{}, fmt.Errorf("%w: lowest band must start at 0", ErrInvalidBands)
	}
	return Bands{bands: sorted}, nil
}

// Classify returns the label of the highest band whose Min is <= v.
func (b Bands) Classify(v float64) string {
	for _, band := range b.bands {
		if v >= band.Min {
			return band.Label
		}
	}
	if len(b.bands) == 0 {
		return ""
	}
	return b.bands[len(b.bands)-1].Label
}

// List returns the bands, highest first.
func (b Bands) List() []Band {
	out := make([]Band, len(b.bands))
	copy(out, b.bands)
	return out
}
