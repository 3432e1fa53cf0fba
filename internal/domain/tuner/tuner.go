// Package tuner searches discretized weight vectors for the one that best
// agrees with a labeled validation set. It returns candidates only; promoting
// one into live use is a separate step.
package tuner

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/okian/kairos/internal/domain/composite"
	"golang.org/x/sync/errgroup"
)

// Search strategies.
const (
	StrategyGrid       = "grid"
	StrategyCoordinate = "coordinate"
)

// Example is one labeled observation. Expected is in [0,1].
type Example struct {
	Subscores map[string]float64 `json:"subscores"`
	Expected  float64            `json:"expected"`
}

// Candidate is the best vector a run found.
type Candidate struct {
	Weights    composite.WeightVector `json:"weights"`
	Metric     float64                `json:"metric"`
	MetricName string                 `json:"metric_name"`
	Evaluated  int                    `json:"evaluated"`
	Strategy   string                 `json:"strategy"`
}

// Tuner runs bounded gradient-free searches. It holds no state between runs.
type Tuner struct {
	step          float64
	maxCandidates int
	maxIterations int
	metric        Metric
	workers       int
}

// New returns a Tuner.
func New(opts ...Option) *Tuner {
	t := defaults()
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// problem is a validated run: families sorted, examples flattened per family.
type problem struct {
	families []string
	units    int
	rows     [][]float64
	expected []float64
	metric   Metric
}

func (p *problem) evaluate(units []int) float64 {
	pred := make([]float64, len(p.rows))
	for i, row := range p.rows {
		var sum float64
		for f, u := range units {
			sum += float64(u) / float64(p.units) * row[f]
		}
		pred[i] = math.Min(1, math.Max(0, sum))
	}
	return p.metric.Evaluate(pred, p.expected)
}

func (p *problem) vector(units []int) composite.WeightVector {
	w := make(map[string]float64, len(units))
	for f, u := range units {
		w[p.families[f]] = float64(u) / float64(p.units)
	}
	return composite.NewWeightVector("", w)
}

// Tune searches weight vectors over families. Exhaustive grid search runs when
// the number of grid points fits the candidate bound; otherwise coordinate
// search moves one grid unit between families while the metric strictly improves.
func (t *Tuner) Tune(ctx context.Context, families []string, examples []Example) (Candidate, error) {
	p, err := t.prepare(families, examples)
	if err != nil {
		return Candidate{}, err
	}

	if n, ok := gridSize(p.units, len(p.families), t.maxCandidates); ok {
		return t.grid(ctx, p, n)
	}
	return t.coordinate(ctx, p)
}

func (t *Tuner) prepare(families []string, examples []Example) (*problem, error) {
	if len(examples) == 0 {
		return nil, ErrNoExamples
	}
	if len(families) == 0 {
		return nil, fmt.Errorf("%w: no families", ErrInvalidGrid)
	}
	if !(t.step > 0 && t.step <= 1) {
		return nil, fmt.Errorf("%w: step %v outside (0,1]", ErrInvalidGrid, t.step)
	}
	units := int(math.Round(1 / t.step))
	if math.Abs(float64(units)*t.step-1) > 1e-9 {
		return nil, fmt.Errorf("%w: 1/step %v is not a whole number", ErrInvalidGrid, 1/t.step)
	}

	fams := append([]string(nil), families...)
	sort.Strings(fams)
	for i := 1; i < len(fams); i++ {
		if fams[i] == fams[i-1] {
			return nil, fmt.Errorf("%w: duplicate family %q", ErrInvalidGrid, fams[i])
		}
	}

	p := &problem{
		families: fams,
		units:    units,
		rows:     make([][]float64, len(examples)),
		expected: make([]float64, len(examples)),
		metric:   t.metric,
	}
	for i, ex := range examples {
		if math.IsNaN(ex.Expected) || ex.Expected < 0 || ex.Expected > 1 {
			return nil, fmt.Errorf("%w: example %d expected %v", composite.ErrSubscoreOutOfRange, i, ex.Expected)
		}
		row := make([]float64, len(fams))
		for f, name := range fams {
			s, ok := ex.Subscores[name]
			if !ok {
				return nil, fmt.Errorf("%w: example %d lacks %q", composite.ErrMissingSubscore, i, name)
			}
			if math.IsNaN(s) || s < 0 || s > 1 {
				return nil, fmt.Errorf("%w: example %d %q=%v", composite.ErrSubscoreOutOfRange, i, name, s)
			}
			row[f] = s
		}
		p.rows[i] = row
		p.expected[i] = ex.Expected
	}
	return p, nil
}

// gridSize returns C(units+k-1, k-1) when it does not exceed limit.
func gridSize(units, k, limit int) (int, bool) {
	n := 1
	for i := 1; i < k; i++ {
		// C(units+i, i) = C(units+i-1, i-1) * (units+i) / i, exact at each step
		n = n * (units + i) / i
		if n > limit {
			return 0, false
		}
	}
	return n, true
}

// compositions lists every split of units into k non-negative parts in
// lexicographic order.
func compositions(units, k int) [][]int {
	var out [][]int
	cur := make([]int, k)
	var rec func(pos, left int)
	rec = func(pos, left int) {
		if pos == k-1 {
			cur[pos] = left
			out = append(out, append([]int(nil), cur...))
			return
		}
		for u := 0; u <= left; u++ {
			cur[pos] = u
			rec(pos+1, left-u)
		}
	}
	rec(0, units)
	return out
}

func (t *Tuner) grid(ctx context.Context, p *problem, size int) (Candidate, error) {
	points := compositions(p.units, len(p.families))
	if len(points) != size {
		return Candidate{}, fmt.Errorf("%w: enumerated %d of %d grid points", ErrInvalidGrid, len(points), size)
	}
	scores := make([]float64, len(points))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.workers)
	for i := range points {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			scores[i] = p.evaluate(points[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Candidate{}, err
	}

	best := 0
	for i := 1; i < len(scores); i++ {
		if scores[i] > scores[best] {
			best = i
		}
	}
	return Candidate{
		Weights:    p.vector(points[best]),
		Metric:     scores[best],
		MetricName: p.metric.Name(),
		Evaluated:  len(points),
		Strategy:   StrategyGrid,
	}, nil
}

func (t *Tuner) coordinate(ctx context.Context, p *problem) (Candidate, error) {
	k := len(p.families)
	if sweep := k * (k - 1); sweep > t.maxCandidates {
		return Candidate{}, fmt.Errorf("%w: %d moves per sweep exceed %d candidates", ErrSearchSpaceTooLarge, sweep, t.maxCandidates)
	}

	cur := make([]int, k)
	for f := range cur {
		cur[f] = p.units / k
		if f < p.units%k {
			cur[f]++
		}
	}
	curScore := p.evaluate(cur)
	evaluated := 1

	for iter := 0; iter < t.maxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			return Candidate{}, err
		}
		var bestMove []int
		bestScore := curScore
		for from := 0; from < k; from++ {
			if cur[from] == 0 {
				continue
			}
			for to := 0; to < k; to++ {
				if to == from {
					continue
				}
				next := append([]int(nil), cur...)
				next[from]--
				next[to]++
				s := p.evaluate(next)
				evaluated++
				if s > bestScore {
					bestScore, bestMove = s, next
				}
			}
		}
		if bestMove == nil {
			break
		}
		cur, curScore = bestMove, bestScore
	}

	return Candidate{
		Weights:    p.vector(cur),
		Metric:     curScore,
		MetricName: p.metric.Name(),
		Evaluated:  evaluated,
		Strategy:   StrategyCoordinate,
	}, nil
}
