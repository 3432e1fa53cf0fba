package resonance

import "time"

// Option applies a configuration option to the Scorer.
type Option func(*Scorer)

// WithExcludeImprecise stops comparison at the minute layer when either record
// lacks sub-minute precision, so zero-filled layers cannot match each other.
func WithExcludeImprecise(exclude bool) Option {
	return func(s *Scorer) {
		s.excludeImprecise = exclude
	}
}

// WithClock overrides the timestamp source stamped on emitted scores.
func WithClock(now func() time.Time) Option {
	return func(s *Scorer) {
		if now != nil {
			s.now = now
		}
	}
}
