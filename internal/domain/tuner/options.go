package tuner

import "runtime"

const (
	defaultStep          = 0.1
	defaultMaxCandidates = 10000
	defaultMaxIterations = 200
)

// Option configures a Tuner.
type Option func(*Tuner)

// WithStep sets the grid resolution. 1/step must be a whole number.
func WithStep(step float64) Option {
	return func(t *Tuner) { t.step = step }
}

// WithMaxCandidates bounds exhaustive grid search; larger spaces use coordinate search.
func WithMaxCandidates(n int) Option {
	return func(t *Tuner) {
		if n > 0 {
			t.maxCandidates = n
		}
	}
}

// WithMaxIterations bounds coordinate search sweeps.
func WithMaxIterations(n int) Option {
	return func(t *Tuner) {
		if n > 0 {
			t.maxIterations = n
		}
	}
}

// WithMetric sets the objective.
func WithMetric(m Metric) Option {
	return func(t *Tuner) {
		if m != nil {
			t.metric = m
		}
	}
}

// WithWorkers bounds parallel candidate evaluation.
func WithWorkers(n int) Option {
	return func(t *Tuner) {
		if n > 0 {
			t.workers = n
		}
	}
}

func defaults() *Tuner {
	return &Tuner{
		step:          defaultStep,
		maxCandidates: defaultMaxCandidates,
		maxIterations: defaultMaxIterations,
		metric:        Agreement(),
		workers:       runtime.GOMAXPROCS(0),
	}
}
