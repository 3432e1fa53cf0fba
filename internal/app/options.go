package service

import (
	"github.com/okian/kairos/internal/adapters/repository"
	"github.com/okian/kairos/internal/domain/aggregate"
	"github.com/okian/kairos/internal/domain/composite"
	"github.com/okian/kairos/internal/domain/model"
	"github.com/okian/kairos/internal/domain/timelayer"
	"github.com/okian/kairos/internal/domain/tuner"
	"github.com/okian/kairos/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of scoring workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the job queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize bounds the per-batch pair de-duplication set.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithStore sets the pair score store. The default is an in-memory store.
func WithStore(store repository.ScoreStore) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithHierarchy sets the time layer hierarchy.
func WithHierarchy(h timelayer.Hierarchy) Option {
	return func(s *Service) {
		if !h.IsZero() {
			s.hierarchy = h
		}
	}
}

// WithDepthScores sets the score awarded per matched depth, index 0 included.
func WithDepthScores(scores []float64) Option {
	return func(s *Service) {
		if len(scores) > 0 {
			s.depthScores = append([]float64(nil), scores...)
		}
	}
}

// WithExcludeImprecise stops comparisons at minute resolution when either record lacks seconds.
func WithExcludeImprecise(exclude bool) Option {
	return func(s *Service) {
		s.excludeImprecise = exclude
	}
}

// WithPolicy sets the aggregation policy. Its ScaleMax is replaced on Start by
// the full-depth score of the depth table.
func WithPolicy(p aggregate.Policy) Option {
	return func(s *Service) {
		s.policy = p
	}
}

// WithWeights sets the initial active weight vector.
func WithWeights(w composite.WeightVector) Option {
	return func(s *Service) {
		s.weights = w.Clone()
	}
}

// WithBands sets the composite tier bands.
func WithBands(b composite.Bands) Option {
	return func(s *Service) {
		s.bands = b
	}
}

// WithWeightTolerance sets how far a weight sum may stray from 1.
func WithWeightTolerance(tol float64) Option {
	return func(s *Service) {
		if tol > 0 {
			s.tolerance = tol
		}
	}
}

// WithEngineKinds sets the accepted engine kinds. The first one is the default.
func WithEngineKinds(kinds ...model.EngineKind) Option {
	return func(s *Service) {
		var out []model.EngineKind
		for _, k := range kinds {
			if k != "" {
				out = append(out, k)
			}
		}
		if len(out) > 0 {
			s.engineKinds = out
		}
	}
}

// WithTunerOptions configures the weight tuner.
func WithTunerOptions(opts ...tuner.Option) Option {
	return func(s *Service) {
		s.tunerOpts = append(s.tunerOpts, opts...)
	}
}
