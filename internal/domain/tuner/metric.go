package tuner

import "math"

// Metric scores predictions against expected outcomes; higher is better.
type Metric interface {
	Name() string
	Evaluate(predicted, expected []float64) float64
}

type accuracy struct{ threshold float64 }

// Accuracy counts a prediction as correct when (predicted >= threshold)
// matches (expected >= 0.5). The result is the correct fraction.
func Accuracy(threshold float64) Metric { return accuracy{threshold: threshold} }

func (accuracy) Name() string { return "accuracy" }

func (a accuracy) Evaluate(predicted, expected []float64) float64 {
	if len(predicted) == 0 {
		return 0
	}
	correct := 0
	for i := range predicted {
		if (predicted[i] >= a.threshold) == (expected[i] >= 0.5) {
			correct++
		}
	}
	return float64(correct) / float64(len(predicted))
}

type agreement struct{}

// Agreement is 1 minus the mean absolute error.
func Agreement() Metric { return agreement{} }

func (agreement) Name() string { return "agreement" }

func (agreement) Evaluate(predicted, expected []float64) float64 {
	if len(predicted) == 0 {
		return 0
	}
	var sum float64
	for i := range predicted {
		sum += math.Abs(predicted[i] - expected[i])
	}
	return 1 - sum/float64(len(predicted))
}
