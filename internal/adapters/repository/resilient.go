package repository

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/okian/kairos/internal/domain/model"
	"github.com/okian/kairos/pkg/logger"
	"github.com/okian/kairos/pkg/metrics"
)

// ResilientStore bounds every call to the wrapped store: a per-attempt timeout,
// a fixed number of retries with constant backoff, a write-rate limit and a
// circuit breaker that turns store-wide failure into ErrCircuitOpen.
type ResilientStore struct {
	next ScoreStore

	timeout          time.Duration
	retries          int
	backoff          time.Duration
	writeRate        float64
	writeBurst       int
	failureThreshold int
	openTimeout      time.Duration
	name             string
	log              logger.Logger

	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[any]
}

// NewResilientStore wraps next.
func NewResilientStore(next ScoreStore, opts ...Option) *ResilientStore {
	s := &ResilientStore{
		next:             next,
		timeout:          defaultTimeout,
		retries:          defaultRetries,
		backoff:          defaultBackoff,
		failureThreshold: defaultFailureThreshold,
		openTimeout:      defaultOpenTimeout,
		name:             "score-store",
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.Get().Named("store")
	}

	s.limiter = rate.NewLimiter(rate.Inf, 0)
	if s.writeRate > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(s.writeRate), s.writeBurst)
	}

	threshold := uint32(s.failureThreshold)
	s.breaker = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        s.name,
		MaxRequests: 1,
		Timeout:     s.openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrInvalidPair) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.UpdateBreakerState(name, int(to))
			s.log.Warn(context.Background(), "store breaker state change",
				logger.String("breaker", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()),
			)
		},
	})
	metrics.UpdateBreakerState(s.name, int(gobreaker.StateClosed))
	return s
}

func (s *ResilientStore) UpsertScore(ctx context.Context, ps model.PairScore) (bool, error) {
	var changed bool
	err := s.do(ctx, "upsert", true, func(actx context.Context) error {
		var err error
		changed, err = s.next.UpsertScore(actx, ps)
		return err
	})
	return changed, err
}

func (s *ResilientStore) FetchScoresFor(ctx context.Context, subject string, engine model.EngineKind) ([]model.PairScore, error) {
	var rows []model.PairScore
	err := s.do(ctx, "fetch", false, func(actx context.Context) error {
		var err error
		rows, err = s.next.FetchScoresFor(actx, subject, engine)
		return err
	})
	return rows, err
}

func (s *ResilientStore) DeleteEngine(ctx context.Context, engine model.EngineKind) (int, error) {
	var n int
	err := s.do(ctx, "delete", true, func(actx context.Context) error {
		var err error
		n, err = s.next.DeleteEngine(actx, engine)
		return err
	})
	return n, err
}

// BreakerState reports the breaker state: closed, half-open or open.
func (s *ResilientStore) BreakerState() string {
	return s.breaker.State().String()
}

// Close closes the wrapped store when it holds resources.
func (s *ResilientStore) Close() error {
	if c, ok := s.next.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (s *ResilientStore) do(ctx context.Context, op string, write bool, fn func(context.Context) error) error {
	start := time.Now()

	if write {
		if err := s.limiter.Wait(ctx); err != nil {
			s.record(op, "cancelled", start)
			return err
		}
	}

	attempt := func() error {
		_, err := s.breaker.Execute(func() (any, error) {
			actx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()
			return nil, fn(actx)
		})
		switch {
		case err == nil:
			return nil
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			return backoff.Permanent(fmt.Errorf("%w: %s", ErrCircuitOpen, op))
		case ctx.Err() != nil:
			return backoff.Permanent(ctx.Err())
		case errors.Is(err, ErrInvalidPair):
			return backoff.Permanent(err)
		}
		return err
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(s.backoff), uint64(s.retries)),
		ctx,
	)
	err := backoff.RetryNotify(attempt, policy, func(err error, wait time.Duration) {
		metrics.RecordStoreRetry(op)
		s.log.Debug(ctx, "retrying store call",
			logger.String("op", op),
			logger.Duration("wait", wait),
			logger.Error(err),
		)
	})

	switch {
	case err == nil:
		s.record(op, "ok", start)
		return nil
	case errors.Is(err, ErrCircuitOpen):
		s.record(op, "circuit_open", start)
		return err
	case ctx.Err() != nil:
		s.record(op, "cancelled", start)
		return err
	case errors.Is(err, ErrInvalidPair):
		s.record(op, "invalid", start)
		return err
	}
	s.record(op, "unavailable", start)
	return fmt.Errorf("%w: %s after %d retries: %w", ErrStoreUnavailable, op, s.retries, err)
}

func (s *ResilientStore) record(op, result string, start time.Time) {
	metrics.RecordStoreRequest(op, result, float64(time.Since(start).Milliseconds()))
}
