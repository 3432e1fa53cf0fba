package service

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/okian/kairos/internal/adapters/mq/queue"
	"github.com/okian/kairos/internal/adapters/repository"
	"github.com/okian/kairos/internal/domain/dedupe"
	"github.com/okian/kairos/internal/domain/model"
	"github.com/okian/kairos/pkg/logger"
	"github.com/okian/kairos/pkg/metrics"
)

// shutdownGrace bounds how long a batch waits for the pool to drain on Stop.
const shutdownGrace = 35 * time.Second

// Pair names two subjects to compare. Order does not matter.
type Pair struct {
	A string `json:"a"`
	B string `json:"b"`
}

// BatchReport counts what happened to each distinct pair of a scoring batch.
type BatchReport struct {
	RunID     string        `json:"run_id"`
	Engine    string        `json:"engine"`
	Scored    int64         `json:"scored"`
	Unchanged int64         `json:"unchanged"`
	Skipped   int64         `json:"skipped"`
	Deferred  int64         `json:"deferred"`
	Aborted   int64         `json:"aborted"`
	Duration  time.Duration `json:"duration"`
}

// Total is the number of distinct pairs the batch accounted for.
func (r BatchReport) Total() int64 {
	return r.Scored + r.Unchanged + r.Skipped + r.Deferred + r.Aborted
}

// batchSink collects worker outcomes for one batch.
type batchSink struct {
	ctx     context.Context
	fatal   atomic.Bool
	counts  [queue.OutcomeAborted + 1]atomic.Int64
	pending sync.WaitGroup
}

func (b *batchSink) Aborted() bool {
	return b.fatal.Load() || b.ctx.Err() != nil
}

func (b *batchSink) Record(_ queue.Job, outcome queue.Outcome, err error) {
	if errors.Is(err, repository.ErrCircuitOpen) {
		b.fatal.Store(true)
	}
	b.add(outcome)
	b.pending.Done()
}

func (b *batchSink) add(outcome queue.Outcome) {
	if outcome < 0 || int(outcome) >= len(b.counts) {
		outcome = queue.OutcomeAborted
	}
	b.counts[outcome].Add(1)
}

func (b *batchSink) total() int64 {
	var n int64
	for i := range b.counts {
		n += b.counts[i].Load()
	}
	return n
}

// ScorePairs scores the given pairs for engine and persists the results.
// Duplicate and reversed pairs are handled once. Pairs naming an unknown
// subject or the same subject twice are skipped.
//
// A store-wide failure stops the batch and returns repository.ErrCircuitOpen
// along with the partial report; pairs not yet handled count as aborted.
func (s *Service) ScorePairs(ctx context.Context, engine model.EngineKind, pairs []Pair) (BatchReport, error) {
	return s.runBatch(ctx, engine, func(yield func(string, string) bool) {
		for _, p := range pairs {
			if !yield(p.A, p.B) {
				return
			}
		}
	})
}

// ScoreAll scores every unordered pair of known subjects for engine.
func (s *Service) ScoreAll(ctx context.Context, engine model.EngineKind) (BatchReport, error) {
	subjects := s.Subjects()
	return s.runBatch(ctx, engine, func(yield func(string, string) bool) {
		for i := 0; i < len(subjects); i++ {
			for j := i + 1; j < len(subjects); j++ {
				if !yield(subjects[i], subjects[j]) {
					return
				}
			}
		}
	})
}

func (s *Service) runBatch(ctx context.Context, engine model.EngineKind, pairs iter.Seq2[string, string]) (BatchReport, error) {
	stopCh, err := s.running()
	if err != nil {
		return BatchReport{}, err
	}
	engine, err = s.engine(engine)
	if err != nil {
		return BatchReport{}, err
	}

	start := time.Now()
	report := BatchReport{RunID: uuid.NewString(), Engine: string(engine)}
	log := s.logger.Named("batch").With(logger.String("run", report.RunID), logger.String("engine", report.Engine))
	log.Info(ctx, "scoring batch started")

	sink := &batchSink{ctx: ctx}
	seen := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	var dispatched, local int64
	settle := func(o queue.Outcome) {
		sink.add(o)
		local++
	}

	for a, b := range pairs {
		key := model.NewPairKey(a, b, engine)
		if !key.Valid() {
			settle(queue.OutcomeSkipped)
			metrics.RecordPairSkipped(report.Engine)
			log.Warn(ctx, "skipping invalid pair", logger.String("a", a), logger.String("b", b))
			continue
		}
		if seen.SeenAndRecord(ctx, key) {
			continue
		}
		if sink.Aborted() {
			settle(queue.OutcomeAborted)
			continue
		}
		ra, okA := s.lookup(key.A)
		rb, okB := s.lookup(key.B)
		if !okA || !okB {
			settle(queue.OutcomeSkipped)
			metrics.RecordPairSkipped(report.Engine)
			log.Warn(ctx, "skipping pair with unknown subject", logger.String("pair", key.String()))
			continue
		}

		sink.pending.Add(1)
		if !s.jobs.EnqueueWait(ctx, queue.Job{Key: key, A: ra, B: rb, Sink: sink}) {
			sink.pending.Done()
			settle(queue.OutcomeAborted)
			continue
		}
		dispatched++
	}

	done := make(chan struct{})
	go func() {
		sink.pending.Wait()
		close(done)
	}()

	var stopped bool
	select {
	case <-done:
	case <-stopCh:
		// the pool drains on stop; wait for it unless it gave up
		select {
		case <-done:
		case <-time.After(shutdownGrace):
			stopped = true
		}
	}

	report.Scored = sink.counts[queue.OutcomeScored].Load()
	report.Unchanged = sink.counts[queue.OutcomeUnchanged].Load()
	report.Skipped = sink.counts[queue.OutcomeSkipped].Load()
	report.Deferred = sink.counts[queue.OutcomeDeferred].Load()
	report.Aborted = sink.counts[queue.OutcomeAborted].Load()
	if stopped {
		// jobs never handed back by the workers
		report.Aborted += dispatched - (sink.total() - local)
	}
	report.Duration = time.Since(start)

	fields := []logger.Field{
		logger.Int("scored", int(report.Scored)),
		logger.Int("unchanged", int(report.Unchanged)),
		logger.Int("skipped", int(report.Skipped)),
		logger.Int("deferred", int(report.Deferred)),
		logger.Int("aborted", int(report.Aborted)),
		logger.Duration("took", report.Duration),
	}

	switch {
	case sink.fatal.Load():
		log.Error(ctx, "scoring batch aborted: score store unavailable", fields...)
		return report, fmt.Errorf("batch %s: %w", report.RunID, repository.ErrCircuitOpen)
	case stopped:
		log.Warn(ctx, "scoring batch interrupted by shutdown", fields...)
		return report, fmt.Errorf("batch %s: service stopped: %w", report.RunID, ErrNotStarted)
	case ctx.Err() != nil:
		log.Warn(ctx, "scoring batch cancelled", fields...)
		return report, fmt.Errorf("batch %s: %w", report.RunID, ctx.Err())
	}
	log.Info(ctx, "scoring batch finished", fields...)
	return report, nil
}
