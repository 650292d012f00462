package evolve

import (
	"fmt"
	"runtime"

	"github.com/sourcegraph/conc/pool"
	"gonum.org/v1/gonum/stat"

	"github.com/pthm-cable/ringsoup/genome"
)

// ScoreAll scores every candidate concurrently, preserving order.
func ScoreAll(e *Evaluator, candidates [][]float64, workers int) ([]Scores, error) {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	out := make([]Scores, len(candidates))
	p := pool.New().WithErrors().WithMaxGoroutines(workers)
	for i, x := range candidates {
		p.Go(func() error {
			s, err := e.Score(x)
			if err != nil {
				return fmt.Errorf("scoring candidate %d: %w", i, err)
			}
			out[i] = s
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// MeanScores averages each metric over scores.
func MeanScores(scores []Scores) (Scores, error) {
	if len(scores) == 0 {
		return Scores{}, fmt.Errorf("mean scores: %w", genome.ErrEmptyPopulation)
	}
	column := func(f func(Scores) float64) float64 {
		v := make([]float64, len(scores))
		for i, s := range scores {
			v[i] = f(s)
		}
		return stat.Mean(v, nil)
	}
	return Scores{
		Fitness:  column(func(s Scores) float64 { return s.Fitness }),
		Distance: column(func(s Scores) float64 { return s.Distance }),
		Entropy:  column(func(s Scores) float64 { return s.Entropy }),
		Ratio:    column(func(s Scores) float64 { return s.Ratio }),
	}, nil
}
