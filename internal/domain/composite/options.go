package composite

// Option configures an Engine.
type Option func(*Engine)

// WithBands sets the tier thresholds.
func WithBands(b Bands) Option {
	return func(e *Engine) {
		if len(b.bands) > 0 {
			e.bands = b
		}
	}
}

// WithTolerance sets the allowed deviation of the weight sum from 1.
func WithTolerance(tol float64) Option {
	return func(e *Engine) {
		if tol >= 0 {
			e.tolerance = tol
		}
	}
}
