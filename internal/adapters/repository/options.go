package repository

import (
	"time"

	"github.com/okian/kairos/pkg/logger"
)

// Default resilience settings.
const (
	defaultTimeout          = 2 * time.Second
	defaultRetries          = 3
	defaultBackoff          = 100 * time.Millisecond
	defaultFailureThreshold = 5
	defaultOpenTimeout      = 30 * time.Second
)

// Option configures a ResilientStore.
type Option func(*ResilientStore)

// WithTimeout bounds each store call attempt.
func WithTimeout(d time.Duration) Option {
	return func(s *ResilientStore) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithRetries sets how many times a failed call is retried. Zero disables retries.
func WithRetries(n int) Option {
	return func(s *ResilientStore) {
		if n >= 0 {
			s.retries = n
		}
	}
}

// WithBackoff sets the fixed delay between retries.
func WithBackoff(d time.Duration) Option {
	return func(s *ResilientStore) {
		if d >= 0 {
			s.backoff = d
		}
	}
}

// WithWriteRate bounds upserts and deletes per second. Zero leaves writes unbounded.
func WithWriteRate(perSecond float64, burst int) Option {
	return func(s *ResilientStore) {
		if perSecond > 0 {
			s.writeRate = perSecond
			s.writeBurst = max(burst, 1)
		}
	}
}

// WithBreaker sets how many consecutive failures open the circuit and how
// long it stays open before probing.
func WithBreaker(failures int, openTimeout time.Duration) Option {
	return func(s *ResilientStore) {
		if failures > 0 {
			s.failureThreshold = failures
		}
		if openTimeout > 0 {
			s.openTimeout = openTimeout
		}
	}
}

// WithName labels the breaker in logs and metrics.
func WithName(name string) Option {
	return func(s *ResilientStore) {
		if name != "" {
			s.name = name
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *ResilientStore) {
		if l != nil {
			s.log = l
		}
	}
}
