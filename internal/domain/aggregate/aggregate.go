// Package aggregate folds a subject's pair scores into one leaderboard affinity.
//
// The affinity follows peak resonance: the maximum pair score, not the mean,
// normalized by the scale maximum. Sparse subjects are decayed, and near-perfect
// values are capped unless the peak is perfect and corroborated.
//
// Order of rules: normalize, then decay, then the cap check on the decayed value.
// The cap bypass inspects the raw peak and the raw sample count.
package aggregate

import (
	"fmt"
	"math"

	"github.com/okian/kairos/internal/domain/model"
)

// Aggregator computes SubjectAggregates. It holds no state beyond its policy,
// so the same rows always yield the same aggregate.
type Aggregator struct {
	policy Policy
}

// NewAggregator validates p and returns an Aggregator.
func NewAggregator(p Policy) (*Aggregator, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Aggregator{policy: p}, nil
}

// Policy returns the rules in use.
func (a *Aggregator) Policy() Policy {
	return a.policy
}

// Aggregate derives the aggregate for subject from every row touching it.
// Zero rows yield a finalized zero aggregate rather than an error.
func (a *Aggregator) Aggregate(subject string, engine model.EngineKind, rows []model.PairScore) (model.SubjectAggregate, error) {
	agg := model.SubjectAggregate{SubjectID: subject, Engine: engine, Stage: model.StageRawScoresPresent}
	if len(rows) == 0 {
		agg.Stage = model.StageFinalized
		return agg, nil
	}

	if err := a.collect(&agg, rows); err != nil {
		return model.SubjectAggregate{}, err
	}
	a.adjust(&agg)
	agg.Stage = model.StageFinalized
	return agg, nil
}

// collect computes peak, count and raw affinity: RAW_SCORES_PRESENT -> AGGREGATED.
func (a *Aggregator) collect(agg *model.SubjectAggregate, rows []model.PairScore) error {
	peak := math.Inf(-1)
	for _, r := range rows {
		if r.Key.Engine != agg.Engine || !r.Key.Involves(agg.SubjectID) {
			return fmt.Errorf("%w: %s for %s", ErrForeignScore, r.Key, agg.SubjectID)
		}
		if r.Score > peak {
			peak = r.Score
		}
		if r.ScoredAt.After(agg.AsOf) {
			agg.AsOf = r.ScoredAt
		}
	}
	agg.PeakScore = peak
	agg.SampleCount = len(rows)
	agg.RawAffinity = clamp01(peak / a.policy.ScaleMax)
	agg.Stage = model.StageAggregated
	return nil
}

// adjust applies decay then the near-ceiling cap: AGGREGATED -> CAPPED/DECAYED.
func (a *Aggregator) adjust(agg *model.SubjectAggregate) {
	final := agg.RawAffinity
	if agg.SampleCount < a.policy.DecayThreshold {
		final *= a.policy.DecayFactor
		agg.Decayed = true
	}
	if final >= a.policy.NearCeiling {
		corroborated := agg.PeakScore >= a.policy.ScaleMax && agg.SampleCount >= a.policy.CorroborationMin
		if !corroborated && final > a.policy.SubMaxCeiling {
			final = a.policy.SubMaxCeiling
			agg.Capped = true
		}
	}
	agg.FinalAffinity = clamp01(final)
	agg.Stage = model.StageAdjusted
}

// Outcome names the adjustment applied to a finalized aggregate.
func Outcome(agg model.SubjectAggregate) string {
	switch {
	case !agg.HasData():
		return "empty"
	case agg.Capped:
		return "capped"
	case agg.Decayed:
		return "decayed"
	default:
		return "none"
	}
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
