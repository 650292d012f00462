package evolve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/sourcegraph/conc/pool"
	"gonum.org/v1/gonum/floats"

	"github.com/pthm-cable/ringsoup/telemetry"
)

// Loop drives one evolution run: ask, evaluate, tell, record.
type Loop struct {
	Optimizer      Optimizer
	Evaluator      *Evaluator
	MaxGenerations int
	Workers        int // Concurrent candidate evaluations; 0 = GOMAXPROCS

	// Optional reporting
	RunID      string
	RunIndex   int
	HallOfFame *telemetry.HallOfFame
	Bookmarks  *telemetry.BookmarkDetector
	Output     *telemetry.OutputManager
	Logger     *slog.Logger
}

// Result is the outcome of one evolution run.
type Result struct {
	GenerationBest []float64   // Best fitness of each generation
	Final          [][]float64 // Candidates of the last evaluated generation
	FinalFitness   []float64
	Best           []float64 // Best candidate seen
	BestFitness    float64
	Generations    int
	Converged      bool // The optimizer ended the run
}

// Run evolves until the optimizer stops, MaxGenerations is reached or ctx is
// cancelled. Cancellation is only observed between generations; the partial
// result is returned together with ctx.Err().
func (l *Loop) Run(ctx context.Context) (*Result, error) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	workers := l.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	res := &Result{}
	start := time.Now()
	for gen := 0; gen < l.MaxGenerations; gen++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if l.Optimizer.Stop() {
			res.Converged = true
			break
		}

		batch, err := l.Optimizer.Ask()
		if errors.Is(err, ErrStopped) {
			res.Converged = true
			break
		}
		if err != nil {
			return res, fmt.Errorf("generation %d: ask: %w", gen, err)
		}

		fitness, err := l.evaluate(batch, workers)
		if err != nil {
			return res, fmt.Errorf("generation %d: %w", gen, err)
		}

		scores := make([]float64, len(fitness))
		copy(scores, fitness)
		floats.Scale(-1, scores)
		if err := l.Optimizer.Tell(batch, scores); err != nil {
			return res, fmt.Errorf("generation %d: tell: %w", gen, err)
		}

		best := floats.MaxIdx(fitness)
		res.GenerationBest = append(res.GenerationBest, fitness[best])
		res.Final, res.FinalFitness = batch, fitness
		res.Generations = gen + 1
		if res.Best == nil || fitness[best] > res.BestFitness {
			res.Best = append([]float64(nil), batch[best]...)
			res.BestFitness = fitness[best]
		}

		if err := l.record(gen, batch, fitness, res, time.Since(start), logger); err != nil {
			return res, err
		}
	}
	return res, nil
}

// evaluate scores every candidate of a generation and waits for all of them.
func (l *Loop) evaluate(batch [][]float64, workers int) ([]float64, error) {
	fitness := make([]float64, len(batch))
	p := pool.New().WithErrors().WithMaxGoroutines(workers)
	for i, x := range batch {
		p.Go(func() error {
			f, err := l.Evaluator.Fitness(x)
			if err != nil {
				return fmt.Errorf("candidate %d: %w", i, err)
			}
			fitness[i] = f
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}
	return fitness, nil
}

func (l *Loop) record(gen int, batch [][]float64, fitness []float64, res *Result, elapsed time.Duration, logger *slog.Logger) error {
	length := l.Evaluator.Options().RingLength
	stats := telemetry.GenerationStats{
		RunID:      l.RunID,
		Length:     length,
		Run:        l.RunIndex,
		Generation: gen,
		BestSoFar:  res.BestFitness,
		ElapsedMS:  elapsed.Milliseconds(),
	}
	stats.ComputeFitnessStats(fitness)
	logger.Info("generation", "stats", stats)

	if l.HallOfFame != nil {
		for i, x := range batch {
			l.HallOfFame.Consider(telemetry.HallEntry{
				Params:     x,
				Fitness:    fitness[i],
				Length:     length,
				Run:        l.RunIndex,
				Generation: gen,
			})
		}
	}
	if l.Bookmarks != nil {
		for _, b := range l.Bookmarks.Check(stats) {
			b.LogBookmark()
			if err := l.Output.WriteBookmark(b); err != nil {
				return err
			}
		}
	}

	if err := l.Output.WriteGeneration(stats); err != nil {
		return err
	}
	return l.Output.AppendPoint(telemetry.KindGenFitness, length, telemetry.Point{X: float64(gen), Y: stats.Best})
}
