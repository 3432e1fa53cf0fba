package service

import (
	"context"
	"errors"
	"maps"

	"github.com/okian/kairos/internal/domain/composite"
	"github.com/okian/kairos/internal/domain/model"
	"github.com/okian/kairos/internal/domain/tuner"
	"github.com/okian/kairos/pkg/logger"
	"github.com/okian/kairos/pkg/metrics"
)

// Composite blends subject's current temporal affinity with the given trait
// subscores under the active weight vector. traits must cover every other
// family of the active vector; a temporal entry in traits is overridden.
func (s *Service) Composite(ctx context.Context, engine model.EngineKind, subject string, traits map[string]float64) (composite.Result, error) {
	agg, err := s.Affinity(ctx, engine, subject)
	if err != nil {
		return composite.Result{}, err
	}

	subscores := make(map[string]float64, len(traits)+1)
	maps.Copy(subscores, traits)
	subscores[composite.FamilyTemporal] = agg.FinalAffinity

	res, err := s.composer.Compute(s.registry.Active(), subscores)
	if err != nil {
		metrics.RecordCompositeRejected(rejectReason(err))
		s.logger.Warn(ctx, "composite rejected", logger.String("subject", subject), logger.Error(err))
		return composite.Result{}, err
	}
	metrics.RecordCompositeComputed()
	return res, nil
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, composite.ErrMalformedWeightVector):
		return "malformed_weights"
	case errors.Is(err, composite.ErrMissingSubscore):
		return "missing_subscore"
	case errors.Is(err, composite.ErrSubscoreOutOfRange):
		return "subscore_out_of_range"
	default:
		return "other"
	}
}

// Tune searches for the weight vector that best fits examples over the
// families of the active vector. The result is only a candidate; promoting
// it is a separate decision.
func (s *Service) Tune(ctx context.Context, examples []tuner.Example) (tuner.Candidate, error) {
	if _, err := s.running(); err != nil {
		return tuner.Candidate{}, err
	}
	families := s.registry.Active().Families()

	best, err := s.tuner.Tune(ctx, families, examples)
	if err != nil {
		metrics.RecordErrorByComponent("tuner", "search_failed")
		s.logger.Warn(ctx, "weight search failed", logger.Int("examples", len(examples)), logger.Error(err))
		return tuner.Candidate{}, err
	}
	metrics.RecordTunerCandidates(best.Strategy, best.Evaluated)
	metrics.UpdateTunerBestMetric(best.Metric)
	s.logger.Info(ctx, "weight search finished",
		logger.String("strategy", best.Strategy),
		logger.Int("evaluated", best.Evaluated),
		logger.String("metric", best.MetricName),
		logger.Float64("value", best.Metric),
	)
	return best, nil
}

// PromoteWeights validates w and makes it the active vector under version.
func (s *Service) PromoteWeights(ctx context.Context, w composite.WeightVector, version string) (composite.WeightVector, error) {
	if _, err := s.running(); err != nil {
		return composite.WeightVector{}, err
	}
	promoted, err := s.registry.Promote(w, version)
	if err != nil {
		s.logger.Warn(ctx, "weight promotion rejected", logger.String("version", version), logger.Error(err))
		return composite.WeightVector{}, err
	}
	metrics.RecordWeightPromotion()
	s.logger.Info(ctx, "weights promoted", logger.String("version", version), logger.Any("weights", promoted.Weights))
	return promoted, nil
}

// ActiveWeights returns the live weight vector.
func (s *Service) ActiveWeights() (composite.WeightVector, error) {
	if _, err := s.running(); err != nil {
		return composite.WeightVector{}, err
	}
	return s.registry.Active(), nil
}

// WeightVersions lists promoted versions, oldest first.
func (s *Service) WeightVersions() ([]string, error) {
	if _, err := s.running(); err != nil {
		return nil, err
	}
	return s.registry.Versions(), nil
}

// RollbackWeights reactivates a previously promoted version.
func (s *Service) RollbackWeights(ctx context.Context, version string) (composite.WeightVector, error) {
	if _, err := s.running(); err != nil {
		return composite.WeightVector{}, err
	}
	w, err := s.registry.Rollback(version)
	if err != nil {
		return composite.WeightVector{}, err
	}
	metrics.RecordWeightPromotion()
	s.logger.Info(ctx, "weights rolled back", logger.String("version", version))
	return w, nil
}

// Bands returns the composite tier thresholds.
func (s *Service) Bands() []composite.Band {
	return s.bands.List()
}
