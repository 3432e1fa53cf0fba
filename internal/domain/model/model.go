// Package model contains domain models passed between layers.
package model

import (
	"strings"
	"time"
)

// EngineKind partitions pair scores and aggregates by the engine that produced them.
type EngineKind string

// DefaultEngine is the engine kind used when callers do not name one.
const DefaultEngine EngineKind = "resonance"

// TimeRecord is a subject's timestamp decomposed into precision layers,
// most significant first (year, month, day, hour, then sub-hour refinements).
type TimeRecord struct {
	SubjectID string
	Layers    []int
	// Precise is false when the source timestamp had no sub-minute precision.
	// Sub-minute layers are then zero rather than absent.
	Precise bool
}

// Complete reports whether the record carries a subject and exactly depth layers.
func (r TimeRecord) Complete(depth int) bool {
	return strings.TrimSpace(r.SubjectID) != "" && len(r.Layers) == depth
}

// Clone returns a deep copy so callers cannot mutate a stored record.
func (r TimeRecord) Clone() TimeRecord {
	layers := make([]int, len(r.Layers))
	copy(layers, r.Layers)
	return TimeRecord{SubjectID: r.SubjectID, Layers: layers, Precise: r.Precise}
}

// PairKey identifies one unordered pair of subjects for one engine kind.
// A is always the lexicographically smaller id.
type PairKey struct {
	A      string
	B      string
	Engine EngineKind
}

// NewPairKey returns the canonical key for (x, y): (x, y) and (y, x) map to the same key.
func NewPairKey(x, y string, engine EngineKind) PairKey {
	if y < x {
		x, y = y, x
	}
	return PairKey{A: x, B: y, Engine: engine}
}

// Valid reports whether the key names two distinct subjects and an engine kind.
func (k PairKey) Valid() bool {
	return k.A != "" && k.B != "" && k.A != k.B && k.A < k.B && k.Engine != ""
}

// Involves reports whether subject is one side of the pair.
func (k PairKey) Involves(subject string) bool {
	return k.A == subject || k.B == subject
}

// Other returns the counterpart of subject in the pair.
func (k PairKey) Other(subject string) string {
	if k.A == subject {
		return k.B
	}
	return k.A
}

func (k PairKey) String() string {
	return string(k.Engine) + ":" + k.A + "|" + k.B
}

// PairScore is the persisted result of comparing two subjects' time records.
type PairScore struct {
	Key          PairKey
	Score        float64
	MatchedDepth int
	ScoredAt     time.Time
}

// SameResult reports whether two scores carry the same score and depth.
// Timestamps are ignored: re-scoring an unchanged pair is a no-op.
func (p PairScore) SameResult(o PairScore) bool {
	return p.Key == o.Key && p.Score == o.Score && p.MatchedDepth == o.MatchedDepth
}

// Stage tracks how far an aggregate has progressed.
type Stage int

// Aggregation stages in order.
const (
	StageRawScoresPresent Stage = iota
	StageAggregated
	StageAdjusted
	StageFinalized
)

func (s Stage) String() string {
	switch s {
	case StageRawScoresPresent:
		return "raw_scores_present"
	case StageAggregated:
		return "aggregated"
	case StageAdjusted:
		return "capped_decayed"
	case StageFinalized:
		return "finalized"
	default:
		return "unknown"
	}
}

// SubjectAggregate is the leaderboard projection for one subject and engine kind.
// It is derived from PairScore rows and never edited directly.
type SubjectAggregate struct {
	SubjectID     string
	Engine        EngineKind
	PeakScore     float64
	SampleCount   int
	RawAffinity   float64
	FinalAffinity float64
	Decayed       bool
	Capped        bool
	Stage         Stage
	// AsOf is the newest ScoredAt among contributing rows.
	AsOf time.Time
	// Rank is filled in by leaderboard reads; zero otherwise.
	Rank int
}

// HasData reports whether any pair score contributed.
func (a SubjectAggregate) HasData() bool {
	return a.SampleCount > 0
}
