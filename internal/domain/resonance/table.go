package resonance

import (
	"fmt"
	"math"
)

// DefaultDepthScores maps matched depth to score for the default hierarchy:
// none, year, month, day, hour, 15m, 5m, 1m, 15s.
var DefaultDepthScores = []float64{0, 0, 0, 10, 30, 45, 60, 80, 100}

// DepthTable is an ordered lookup from matched depth to score.
// Index 0 is the no-agreement floor; the last index is full-depth agreement.
type DepthTable struct {
	scores []float64
}

// NewDepthTable validates scores: at least two entries, finite, non-negative,
// non-decreasing with depth, and a positive maximum.
func NewDepthTable(scores ...float64) (DepthTable, error) {
	if len(scores) < 2 {
		return DepthTable{}, fmt.Errorf("%w: need at least 2 entries, got %d", ErrInvalidDepthTable, len(scores))
	}
	for i, s := range scores {
		if math.IsNaN(s) || math.IsInf(s, 0) || s < 0 {
			return DepthTable{}, fmt.Errorf("%w: depth %d score %v", ErrInvalidDepthTable, i, s)
		}
		if i > 0 && s < scores[i-1] {
			return DepthTable{}, fmt.Errorf("%w: depth %d score %v below depth %d score %v", ErrInvalidDepthTable, i, s, i-1, scores[i-1])
		}
	}
	if scores[len(scores)-1] <= 0 {
		return DepthTable{}, fmt.Errorf("%w: full-depth score must be positive", ErrInvalidDepthTable)
	}
	out := make([]float64, len(scores))
	copy(out, scores)
	return DepthTable{scores: out}, nil
}

// Score returns the score for depth. Depths past the table clamp to its ends.
func (t DepthTable) Score(depth int) float64 {
	if len(t.scores) == 0 {
		return 0
	}
	if depth < 0 {
		depth = 0
	}
	if depth >= len(t.scores) {
		depth = len(t.scores) - 1
	}
	return t.scores[depth]
}

// Max returns the full-depth score, the scale maximum for aggregation.
func (t DepthTable) Max() float64 {
	if len(t.scores) == 0 {
		return 0
	}
	return t.scores[len(t.scores)-1]
}

// MaxDepth returns the deepest depth the table covers.
func (t DepthTable) MaxDepth() int {
	return len(t.scores) - 1
}

// Scores returns a copy of the table.
func (t DepthTable) Scores() []float64 {
	out := make([]float64, len(t.scores))
	copy(out, t.scores)
	return out
}
