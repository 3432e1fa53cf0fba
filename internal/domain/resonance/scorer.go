// Package resonance scores pairs of time records by the deepest layer at which they coincide.
package resonance

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/kairos/internal/domain/model"
	"github.com/okian/kairos/internal/domain/timelayer"
)

// Result is the outcome of comparing two records.
type Result struct {
	Score float64
	Depth int
}

// Scorer compares decomposed records. The score depends only on the matched depth.
type Scorer struct {
	hierarchy        timelayer.Hierarchy
	table            DepthTable
	excludeImprecise bool
	now              func() time.Time
}

// NewScorer creates a scorer. The table must cover every depth of the hierarchy.
func NewScorer(h timelayer.Hierarchy, table DepthTable, opts ...Option) (*Scorer, error) {
	if h.IsZero() {
		h = timelayer.DefaultHierarchy()
	}
	if table.MaxDepth() != h.Depth() {
		return nil, fmt.Errorf("%w: table covers depth %d, hierarchy has %d layers", ErrInvalidDepthTable, table.MaxDepth(), h.Depth())
	}
	s := &Scorer{
		hierarchy: h,
		table:     table,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Table returns the depth table in use.
func (s *Scorer) Table() DepthTable {
	return s.table
}

// Hierarchy returns the layer configuration in use.
func (s *Scorer) Hierarchy() timelayer.Hierarchy {
	return s.hierarchy
}

// Compare walks layers from most to least significant and stops at the first
// disagreement. The result is symmetric in a and b.
func (s *Scorer) Compare(a, b model.TimeRecord) (Result, error) {
	depth := s.hierarchy.Depth()
	if !a.Complete(depth) {
		return Result{}, fmt.Errorf("%w: record %q has %d of %d layers", ErrIncompleteInput, a.SubjectID, len(a.Layers), depth)
	}
	if !b.Complete(depth) {
		return Result{}, fmt.Errorf("%w: record %q has %d of %d layers", ErrIncompleteInput, b.SubjectID, len(b.Layers), depth)
	}

	limit := depth
	if s.excludeImprecise && (!a.Precise || !b.Precise) {
		limit = s.hierarchy.MinutePrecisionDepth()
	}

	matched := 0
	for matched < limit && a.Layers[matched] == b.Layers[matched] {
		matched++
	}
	return Result{Score: s.table.Score(matched), Depth: matched}, nil
}

// Score compares two records and returns the PairScore to persist under the
// canonical key for engine. Nothing is emitted on error.
func (s *Scorer) Score(ctx context.Context, engine model.EngineKind, a, b model.TimeRecord) (model.PairScore, error) {
	if err := ctx.Err(); err != nil {
		return model.PairScore{}, fmt.Errorf("context cancelled: %w", err)
	}
	key := model.NewPairKey(a.SubjectID, b.SubjectID, engine)
	if !key.Valid() {
		return model.PairScore{}, fmt.Errorf("%w: invalid pair %s", ErrIncompleteInput, key)
	}
	res, err := s.Compare(a, b)
	if err != nil {
		return model.PairScore{}, err
	}
	return model.PairScore{
		Key:          key,
		Score:        res.Score,
		MatchedDepth: res.Depth,
		ScoredAt:     s.now().UTC(),
	}, nil
}
