// Package worker scores queued pairs and persists the results.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/okian/kairos/internal/adapters/mq/queue"
	"github.com/okian/kairos/internal/adapters/repository"
	"github.com/okian/kairos/internal/domain/model"
	"github.com/okian/kairos/internal/domain/resonance"
	"github.com/okian/kairos/pkg/logger"
	"github.com/okian/kairos/pkg/metrics"
)

const (
	metricsUpdateInterval = 5 * time.Second
	poolShutdownTimeout   = 30 * time.Second
)

// Scorer compares two time records.
type Scorer interface {
	Score(ctx context.Context, engine model.EngineKind, a, b model.TimeRecord) (model.PairScore, error)
}

// Store persists pair scores.
type Store interface {
	UpsertScore(ctx context.Context, ps model.PairScore) (bool, error)
}

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan queue.Job
}

// Worker processes jobs until its queue closes.
type Worker interface {
	Run(ctx context.Context)
	Shutdown(ctx context.Context) error
}

// InMemoryWorker scores pairs off an in-process queue.
type InMemoryWorker struct {
	queue  Queue
	scorer Scorer
	store  Store
	name   string

	shutdown chan struct{}
	done     chan struct{}
	handled  *atomic.Int64

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, scorer Scorer, store Store, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    q,
		scorer:   scorer,
		store:    store,
		name:     "worker",
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		handled:  new(atomic.Int64),
		logger:   logger.Get().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run handles jobs until the queue is closed and drained, ctx ends or Shutdown is called.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	jobs := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case j, ok := <-jobs:
			if !ok {
				return
			}
			w.Process(ctx, j)
			w.handled.Add(1)
		}
	}
}

// Shutdown stops the worker without draining.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.stop()
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (w *InMemoryWorker) stop() {
	select {
	case <-w.shutdown:
	default:
		close(w.shutdown)
	}
}

// Process scores one job, persists it and reports the outcome to the job's sink.
func (w *InMemoryWorker) Process(ctx context.Context, j queue.Job) queue.Outcome {
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Milliseconds()))
	}()

	outcome, err := w.process(ctx, j)
	if j.Sink != nil {
		j.Sink.Record(j, outcome, err)
	}
	return outcome
}

func (w *InMemoryWorker) process(ctx context.Context, j queue.Job) (queue.Outcome, error) {
	engine := string(j.Key.Engine)
	pair := logger.String("pair", j.Key.String())

	if j.Sink != nil && j.Sink.Aborted() {
		return queue.OutcomeAborted, nil
	}

	scoreStart := time.Now()
	ps, err := w.scorer.Score(ctx, j.Key.Engine, j.A, j.B)
	metrics.RecordScoringLatency(float64(time.Since(scoreStart).Milliseconds()))
	if err != nil {
		if ctx.Err() != nil {
			return queue.OutcomeAborted, err
		}
		metrics.RecordPairSkipped(engine)
		if errors.Is(err, resonance.ErrIncompleteInput) {
			w.logger.Warn(ctx, "skipping pair with incomplete input", pair, logger.Error(err))
		} else {
			metrics.RecordWorkerError()
			metrics.RecordErrorByComponent("worker", "scoring_error")
			w.logger.Error(ctx, "scoring failed", pair, logger.Error(err))
		}
		return queue.OutcomeSkipped, err
	}

	changed, err := w.store.UpsertScore(ctx, ps)
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrCircuitOpen):
		metrics.RecordErrorByType("store_circuit_open", "critical")
		w.logger.Error(ctx, "score store unavailable, aborting batch", pair, logger.Error(err))
		return queue.OutcomeAborted, err
	case ctx.Err() != nil:
		return queue.OutcomeAborted, err
	default:
		metrics.RecordPairDeferred(engine)
		metrics.RecordErrorByComponent("worker", "store_error")
		w.logger.Warn(ctx, "deferring pair after store failure", pair, logger.Error(err))
		return queue.OutcomeDeferred, err
	}

	if !changed {
		metrics.RecordPairUnchanged(engine)
		return queue.OutcomeUnchanged, nil
	}
	metrics.RecordPairScored(engine, ps.MatchedDepth)
	w.logger.Debug(ctx, "pair scored", pair,
		logger.Float64("score", ps.Score),
		logger.Int("depth", ps.MatchedDepth),
	)
	return queue.OutcomeScored, nil
}

// Pool runs a fixed set of workers over one queue.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue

	shutdown chan struct{}
	handled  atomic.Int64
	lastTick time.Time

	logger logger.Logger
}

// NewPool creates workerCount workers. A count below 1 uses one worker per CPU.
func NewPool(workerCount int, q Queue, scorer Scorer, store Store, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}

	p := &Pool{
		workers:  make([]*InMemoryWorker, workerCount),
		queue:    q,
		shutdown: make(chan struct{}),
		lastTick: time.Now(),
		logger:   logger.Get().Named("worker-pool"),
	}
	for i := 0; i < workerCount; i++ {
		wopts := append([]Option{WithName("worker-" + strconv.Itoa(i))}, opts...)
		p.workers[i] = NewInMemoryWorker(q, scorer, store, wopts...)
		p.workers[i].handled = &p.handled
	}

	metrics.UpdateWorkerActiveCount(workerCount)
	metrics.UpdateWorkerMessagesPerSecond(0.0)
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
	go p.startMetricsUpdater(ctx)
}

func (p *Pool) startMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(metricsUpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.shutdown:
			return
		case now := <-ticker.C:
			if elapsed := now.Sub(p.lastTick).Seconds(); elapsed > 0 {
				metrics.UpdateWorkerMessagesPerSecond(float64(p.handled.Swap(0)) / elapsed)
			}
			p.lastTick = now
		}
	}
}

// Shutdown closes the queue and waits for workers to drain it. Workers still
// running when ctx or the pool timeout expires are stopped without draining.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}
	select {
	case <-p.shutdown:
	default:
		close(p.shutdown)
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var timedOut bool
	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
			w.stop()
			timedOut = true
		}
	}
	metrics.UpdateWorkerActiveCount(0)
	if timedOut {
		return fmt.Errorf("worker pool shutdown: %w", shutdownCtx.Err())
	}
	return nil
}
