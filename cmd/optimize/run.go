package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/pthm-cable/ringsoup/config"
	"github.com/pthm-cable/ringsoup/evolve"
	"github.com/pthm-cable/ringsoup/genome"
	"github.com/pthm-cable/ringsoup/storage"
	"github.com/pthm-cable/ringsoup/telemetry"
)

// Runner evolves controllers for a sweep of ring lengths and records the results.
type Runner struct {
	Config     *config.Config
	RunID      string
	Output     *telemetry.OutputManager
	Store      storage.Store
	HallOfFame *telemetry.HallOfFame
	Replace    bool // Overwrite stored controllers even when they score higher
	Logger     *slog.Logger
}

// RunSummary is the outcome of one evolution run.
type RunSummary struct {
	Length      float64
	Run         int
	Generations int
	Converged   bool
	BestFitness float64
	LastBest    float64 // Best fitness of the last generation
	Mean        evolve.Scores
}

// controllerName is the store key of the best controllers evolved for a ring length.
func controllerName(length float64) string {
	return fmt.Sprintf("best_L=%g", length)
}

// historyKey is the store key of one run's per-generation best fitness.
func historyKey(runID string, length float64, run int) string {
	return fmt.Sprintf("%s/L=%g/%d", runID, length, run)
}

// Evolve runs one CMA-ES evolution at the given ring length, scores the final
// generation and persists the best controllers.
func (r *Runner) Evolve(ctx context.Context, length float64, run int) (*RunSummary, error) {
	cfg := r.Config
	logger := r.Logger.With("ring_length", length, "run", run)

	seedVal := evolve.RunSeed(cfg.Evolution.Seed, run)
	seed, err := genome.FromConfig(genome.NewIDAllocator(), "seed", cfg, rand.New(rand.NewSource(seedVal)))
	if err != nil {
		return nil, err
	}

	opts := evolve.EvalOptionsFromConfig(cfg, length)
	opts.Seed = seedVal
	ev, err := evolve.NewEvaluator(seed, opts)
	if err != nil {
		return nil, err
	}

	cma, err := evolve.NewCMAES(ev.Start(), evolve.CMAESOptions{
		StepSize:   cfg.Evolution.StepSize,
		Population: cfg.Evolution.Population,
	})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := cma.Close(); err != nil {
			logger.Warn("optimizer ended with error", "error", err)
		}
	}()

	loop := &evolve.Loop{
		Optimizer:      cma,
		Evaluator:      ev,
		MaxGenerations: cfg.Evolution.MaxGenerations,
		Workers:        cfg.Derived.Workers,
		RunID:          r.RunID,
		RunIndex:       run,
		HallOfFame:     r.HallOfFame,
		Bookmarks:      telemetry.NewBookmarkDetector(10),
		Output:         r.Output,
		Logger:         logger,
	}
	res, err := loop.Run(ctx)
	if err != nil {
		return nil, err
	}
	if res.Generations == 0 {
		return nil, fmt.Errorf("run %d at L=%g evaluated no generation", run, length)
	}

	scores, err := evolve.ScoreAll(ev, res.Final, cfg.Derived.Workers)
	if err != nil {
		return nil, fmt.Errorf("scoring final generation: %w", err)
	}
	mean, err := evolve.MeanScores(scores)
	if err != nil {
		return nil, err
	}

	summary := &RunSummary{
		Length:      length,
		Run:         run,
		Generations: res.Generations,
		Converged:   res.Converged,
		BestFitness: res.BestFitness,
		LastBest:    res.GenerationBest[len(res.GenerationBest)-1],
		Mean:        mean,
	}
	if err := r.writeScores(summary, scores); err != nil {
		return nil, err
	}
	if err := r.persist(ctx, ev, res, summary); err != nil {
		return nil, err
	}
	return summary, nil
}

func (r *Runner) writeScores(s *RunSummary, scores []evolve.Scores) error {
	for i, sc := range scores {
		rec := telemetry.ScoreRecord{
			RunID:     r.RunID,
			Length:    s.Length,
			Run:       s.Run,
			Candidate: i,
			Fitness:   sc.Fitness,
			Distance:  sc.Distance,
			Entropy:   sc.Entropy,
			Ratio:     sc.Ratio,
		}
		if err := r.Output.WriteScore(rec); err != nil {
			return err
		}
	}

	points := []struct {
		kind string
		y    float64
	}{
		{telemetry.KindFitness, s.LastBest},
		{telemetry.KindDistance, s.Mean.Distance},
		{telemetry.KindEntropy, s.Mean.Entropy},
		{telemetry.KindRatio, s.Mean.Ratio},
	}
	for _, p := range points {
		if err := r.Output.AppendPoint(p.kind, s.Length, telemetry.Point{X: s.Length, Y: p.y}); err != nil {
			return err
		}
	}
	return nil
}

// persist saves the run's fitness history and, when they beat the stored
// ones, its best controllers.
func (r *Runner) persist(ctx context.Context, ev *evolve.Evaluator, res *evolve.Result, s *RunSummary) error {
	if r.Store == nil {
		return nil
	}
	if err := r.Store.SaveFitnessHistory(ctx, historyKey(r.RunID, s.Length, s.Run), res.GenerationBest); err != nil {
		return err
	}

	name := controllerName(s.Length)
	if !r.Replace {
		existing, ok, err := r.Store.GetControllers(ctx, name)
		if err != nil {
			return err
		}
		if ok && existing.Fitness >= res.BestFitness {
			return nil
		}
	}

	best, err := ev.Genome(name, res.Best)
	if err != nil {
		return err
	}
	best.Fitness = res.BestFitness
	rec := storage.NewControllerRecord(name, best)
	rec.RingLength = s.Length
	rec.RunID = r.RunID
	if err := r.Store.SaveControllers(ctx, rec); err != nil {
		return err
	}
	r.Logger.Info("controllers saved", "name", name, "fitness", res.BestFitness, "run", s.Run)
	return nil
}

// ResetStored deletes the stored controllers of every swept ring length.
func (r *Runner) ResetStored(ctx context.Context, lengths []float64) error {
	if r.Store == nil {
		return nil
	}
	for _, l := range lengths {
		if err := r.Store.DeleteControllers(ctx, controllerName(l)); err != nil {
			return err
		}
	}
	return nil
}
