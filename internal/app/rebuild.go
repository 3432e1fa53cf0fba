package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/okian/kairos/internal/adapters/repository"
	"github.com/okian/kairos/internal/domain/aggregate"
	"github.com/okian/kairos/internal/domain/model"
	"github.com/okian/kairos/pkg/logger"
	"github.com/okian/kairos/pkg/metrics"
)

// RebuildReport summarizes one leaderboard rebuild.
type RebuildReport struct {
	RunID     string        `json:"run_id"`
	Engine    string        `json:"engine"`
	Rebuilt   int           `json:"rebuilt"`
	Empty     int           `json:"empty"`
	Deferred  int           `json:"deferred"`
	Cancelled bool          `json:"cancelled"`
	Duration  time.Duration `json:"duration"`
}

// Rebuild re-aggregates every known subject of engine from the score store
// and refreshes the leaderboard. Subjects are visited in id order.
//
// Cancellation is checked between subjects: subjects already visited keep
// their new aggregate and ErrRebuildCancelled is returned with the partial
// report. A subject whose rows cannot be read is deferred and keeps its
// previous projection. A store-wide failure stops the rebuild.
func (s *Service) Rebuild(ctx context.Context, engine model.EngineKind) (RebuildReport, error) {
	if _, err := s.running(); err != nil {
		return RebuildReport{}, err
	}
	engine, err := s.engine(engine)
	if err != nil {
		return RebuildReport{}, err
	}

	s.rebuildMu.Lock()
	defer s.rebuildMu.Unlock()

	start := time.Now()
	report := RebuildReport{RunID: uuid.NewString(), Engine: string(engine)}
	log := s.logger.Named("rebuild").With(logger.String("run", report.RunID), logger.String("engine", report.Engine))
	log.Info(ctx, "rebuild started")

	status := "ok"
	defer func() {
		report.Duration = time.Since(start)
		metrics.RecordRebuildDuration(report.Engine, status, report.Duration.Seconds())
	}()

	for _, subject := range s.Subjects() {
		if err := ctx.Err(); err != nil {
			report.Cancelled = true
			status = "cancelled"
			log.Warn(ctx, "rebuild cancelled",
				logger.Int("rebuilt", report.Rebuilt),
				logger.Int("empty", report.Empty),
				logger.Int("deferred", report.Deferred),
			)
			return report, fmt.Errorf("%w: %w", ErrRebuildCancelled, err)
		}

		agg, err := s.refresh(ctx, engine, subject)
		switch {
		case err == nil:
		case errors.Is(err, repository.ErrCircuitOpen):
			status = "aborted"
			log.Error(ctx, "rebuild aborted: score store unavailable", logger.String("subject", subject), logger.Error(err))
			return report, err
		case ctx.Err() != nil:
			// picked up at the top of the loop
			continue
		default:
			report.Deferred++
			metrics.RecordSubjectRebuilt(report.Engine, "deferred")
			log.Warn(ctx, "deferring subject", logger.String("subject", subject), logger.Error(err))
			continue
		}

		if agg.HasData() {
			report.Rebuilt++
		} else {
			report.Empty++
		}
	}

	if report.Deferred > 0 {
		status = "partial"
	}
	log.Info(ctx, "rebuild finished",
		logger.Int("rebuilt", report.Rebuilt),
		logger.Int("empty", report.Empty),
		logger.Int("deferred", report.Deferred),
		logger.Int("ranked", s.leaderboard.Count(ctx, engine)),
	)
	return report, nil
}

// refresh aggregates one subject from the store and updates the projection.
func (s *Service) refresh(ctx context.Context, engine model.EngineKind, subject string) (model.SubjectAggregate, error) {
	rows, err := s.store.FetchScoresFor(ctx, subject, engine)
	if err != nil {
		return model.SubjectAggregate{}, err
	}

	start := time.Now()
	agg, err := s.aggregator.Aggregate(subject, engine, rows)
	metrics.RecordAggregationLatency(float64(time.Since(start).Microseconds()) / 1000)
	if err != nil {
		return model.SubjectAggregate{}, err
	}

	s.leaderboard.Put(ctx, agg)
	metrics.RecordSubjectRebuilt(string(engine), aggregate.Outcome(agg))
	return agg, nil
}

// Affinity recomputes subject's aggregate from the store, refreshes its
// leaderboard entry and returns it with its current rank. A subject with no
// pair scores is returned with SampleCount 0 and rank 0.
func (s *Service) Affinity(ctx context.Context, engine model.EngineKind, subject string) (model.SubjectAggregate, error) {
	if _, err := s.running(); err != nil {
		return model.SubjectAggregate{}, err
	}
	engine, err := s.engine(engine)
	if err != nil {
		return model.SubjectAggregate{}, err
	}
	if _, ok := s.lookup(subject); !ok {
		return model.SubjectAggregate{}, fmt.Errorf("%w: %q", ErrUnknownSubject, subject)
	}

	agg, err := s.refresh(ctx, engine, subject)
	if err != nil {
		s.logger.Error(ctx, "affinity computation failed",
			logger.String("subject", subject),
			logger.String("engine", string(engine)),
			logger.Error(err),
		)
		return model.SubjectAggregate{}, fmt.Errorf("affinity for %q: %w", subject, err)
	}
	if !agg.HasData() {
		return agg, nil
	}
	ranked, err := s.leaderboard.Rank(ctx, engine, subject)
	if err != nil {
		return agg, nil
	}
	return ranked, nil
}

// Recompute discards every stored score of engine, rescores all pairs and
// rebuilds the leaderboard.
func (s *Service) Recompute(ctx context.Context, engine model.EngineKind) (BatchReport, RebuildReport, error) {
	if _, err := s.running(); err != nil {
		return BatchReport{}, RebuildReport{}, err
	}
	engine, err := s.engine(engine)
	if err != nil {
		return BatchReport{}, RebuildReport{}, err
	}

	removed, err := s.store.DeleteEngine(ctx, engine)
	if err != nil {
		return BatchReport{}, RebuildReport{}, fmt.Errorf("clearing %s scores: %w", engine, err)
	}
	s.leaderboard.Reset(ctx, engine)
	s.logger.Info(ctx, "cleared engine scores", logger.String("engine", string(engine)), logger.Int("removed", removed))

	batch, err := s.ScoreAll(ctx, engine)
	if err != nil {
		return batch, RebuildReport{}, err
	}
	rebuild, err := s.Rebuild(ctx, engine)
	return batch, rebuild, err
}
