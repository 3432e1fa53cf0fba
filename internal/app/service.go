// Package service orchestrates subject intake, batch pair scoring, leaderboard
// rebuilds and composite scoring on top of the domain packages.
package service

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/okian/kairos/internal/adapters/mq/queue"
	"github.com/okian/kairos/internal/adapters/mq/worker"
	"github.com/okian/kairos/internal/adapters/repository"
	"github.com/okian/kairos/internal/domain/aggregate"
	"github.com/okian/kairos/internal/domain/composite"
	"github.com/okian/kairos/internal/domain/model"
	"github.com/okian/kairos/internal/domain/resonance"
	"github.com/okian/kairos/internal/domain/timelayer"
	"github.com/okian/kairos/internal/domain/tuner"
	"github.com/okian/kairos/pkg/logger"
	"github.com/okian/kairos/pkg/metrics"
)

// Service owns the scoring pipeline and the leaderboard projection.
type Service struct {
	mu sync.RWMutex

	// Configuration
	workerCount      int
	queueSize        int
	dedupeSize       int
	store            repository.ScoreStore
	hierarchy        timelayer.Hierarchy
	depthScores      []float64
	excludeImprecise bool
	policy           aggregate.Policy
	weights          composite.WeightVector
	bands            composite.Bands
	tolerance        float64
	engineKinds      []model.EngineKind
	tunerOpts        []tuner.Option

	// Core components, built by Start
	decomposer  *timelayer.Decomposer
	scorer      *resonance.Scorer
	aggregator  *aggregate.Aggregator
	composer    *composite.Engine
	registry    *composite.Registry
	tuner       *tuner.Tuner
	leaderboard *repository.Leaderboard
	jobs        *queue.InMemoryQueue
	workerPool  *worker.Pool

	subjectsMu sync.RWMutex
	subjects   map[string]model.TimeRecord

	// State
	started   bool
	stopCh    chan struct{}
	cancelRun context.CancelFunc
	rebuildMu sync.Mutex
	engineSet map[model.EngineKind]struct{}

	logger logger.Logger
}

// New creates a new service with the given options.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount: runtime.NumCPU(),
		queueSize:   100_000,
		dedupeSize:  50_000,
		hierarchy:   timelayer.DefaultHierarchy(),
		depthScores: append([]float64(nil), resonance.DefaultDepthScores...),
		policy:      aggregate.DefaultPolicy(),
		weights:     composite.DefaultWeights(),
		bands:       composite.DefaultBands(),
		tolerance:   composite.DefaultTolerance,
		engineKinds: []model.EngineKind{model.DefaultEngine},
		subjects:    make(map[string]model.TimeRecord),
		stopCh:      make(chan struct{}),
		logger:      logger.Get().Named("service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.store == nil {
		s.store = repository.NewMemoryStore()
	}
	s.engineSet = make(map[model.EngineKind]struct{}, len(s.engineKinds))
	for _, k := range s.engineKinds {
		s.engineSet[k] = struct{}{}
	}
	return s
}

// Start validates the configuration, builds the components and starts the workers.
// The aggregation scale maximum is taken from the depth table's full-depth score.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	s.logger.Info(ctx, "starting kairos service...")

	table, err := resonance.NewDepthTable(s.depthScores...)
	if err != nil {
		return fmt.Errorf("depth table: %w", err)
	}
	scorer, err := resonance.NewScorer(s.hierarchy, table, resonance.WithExcludeImprecise(s.excludeImprecise))
	if err != nil {
		return fmt.Errorf("scorer: %w", err)
	}
	// normalization follows the table actually scoring pairs
	policy := s.policy
	policy.ScaleMax = table.Max()
	aggregator, err := aggregate.NewAggregator(policy)
	if err != nil {
		return fmt.Errorf("aggregator: %w", err)
	}
	registry, err := composite.NewRegistry(s.weights, s.tolerance)
	if err != nil {
		return fmt.Errorf("weights: %w", err)
	}

	s.policy = policy
	s.decomposer = timelayer.NewDecomposer(s.hierarchy)
	s.scorer = scorer
	s.aggregator = aggregator
	s.registry = registry
	s.composer = composite.NewEngine(composite.WithBands(s.bands), composite.WithTolerance(s.tolerance))
	s.tuner = tuner.New(s.tunerOpts...)
	s.leaderboard = repository.NewLeaderboard()
	s.jobs = queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))
	s.workerPool = worker.NewPool(s.workerCount, s.jobs, s.scorer, s.store)

	// workers outlive the start context
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancelRun = cancel
	s.workerPool.Start(runCtx)

	s.stopCh = make(chan struct{})
	s.started = true
	metrics.UpdateWorkerActiveCount(s.workerPool.Size())
	s.logger.Info(ctx, "kairos service started",
		logger.Int("workerCount", s.workerPool.Size()),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
		logger.Int("depth", s.hierarchy.Depth()),
		logger.String("weights", registry.Active().Version),
	)
	return nil
}

// Stop drains the queue and stops the workers. Batches still waiting are
// released with their unfinished pairs counted as aborted.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	ctx := context.Background()
	s.logger.Info(ctx, "stopping kairos service...")

	close(s.stopCh)
	if err := s.workerPool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "worker pool did not drain", logger.Error(err))
	}
	s.cancelRun()

	s.started = false
	s.logger.Info(ctx, "kairos service stopped")
}

// running returns the stop channel of the current run, or ErrNotStarted.
func (s *Service) running() (<-chan struct{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, ErrNotStarted
	}
	return s.stopCh, nil
}

// engine maps an empty kind to the default and rejects kinds not configured.
func (s *Service) engine(kind model.EngineKind) (model.EngineKind, error) {
	if kind == "" {
		return s.engineKinds[0], nil
	}
	if _, ok := s.engineSet[kind]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownEngine, kind)
	}
	return kind, nil
}

// EngineKinds returns the configured engine kinds, default first.
func (s *Service) EngineKinds() []model.EngineKind {
	return append([]model.EngineKind(nil), s.engineKinds...)
}

// Hierarchy returns the layer configuration records are decomposed with.
func (s *Service) Hierarchy() timelayer.Hierarchy {
	return s.hierarchy
}

// TopN returns the best n aggregates of engine with dense ranks.
func (s *Service) TopN(ctx context.Context, engine model.EngineKind, n int) ([]model.SubjectAggregate, error) {
	if _, err := s.running(); err != nil {
		return nil, err
	}
	engine, err := s.engine(engine)
	if err != nil {
		return nil, err
	}
	return s.leaderboard.TopN(ctx, engine, n)
}

// Rank returns the projected aggregate and dense rank of subject.
func (s *Service) Rank(ctx context.Context, engine model.EngineKind, subject string) (model.SubjectAggregate, error) {
	if _, err := s.running(); err != nil {
		return model.SubjectAggregate{}, err
	}
	engine, err := s.engine(engine)
	if err != nil {
		return model.SubjectAggregate{}, err
	}
	return s.leaderboard.Rank(ctx, engine, subject)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"dedupeSize":  s.dedupeSize,
		"subjects":    s.subjectCount(),
	}

	if s.started {
		queueLen := s.jobs.Len(ctx)
		ranked := make(map[string]int, len(s.engineKinds))
		for _, k := range s.engineKinds {
			ranked[string(k)] = s.leaderboard.Count(ctx, k)
		}

		stats["queueLength"] = queueLen
		stats["ranked"] = ranked
		stats["weightsVersion"] = s.registry.Active().Version

		metrics.UpdateQueueSize(queueLen)
		metrics.UpdateWorkerActiveCount(s.workerCount)
	}

	return stats
}
