package evolve

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/pthm-cable/ringsoup/config"
	"github.com/pthm-cable/ringsoup/genome"
	"github.com/pthm-cable/ringsoup/neural"
	"github.com/pthm-cable/ringsoup/telemetry"
)

// fakeOptimizer replays fixed batches and records what it is told.
type fakeOptimizer struct {
	batches   [][][]float64
	told      [][]float64
	stopAfter int
	closed    bool
}

func (f *fakeOptimizer) Ask() ([][]float64, error) {
	if len(f.told) >= len(f.batches) {
		return nil, ErrStopped
	}
	return f.batches[len(f.told)], nil
}

func (f *fakeOptimizer) Tell(batch [][]float64, scores []float64) error {
	f.told = append(f.told, append([]float64(nil), scores...))
	return nil
}

func (f *fakeOptimizer) Stop() bool {
	return f.stopAfter > 0 && len(f.told) >= f.stopAfter
}

func (f *fakeOptimizer) Close() error {
	f.closed = true
	return nil
}

func testEvaluator(t *testing.T) *Evaluator {
	t.Helper()
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("loading defaults: %v", err)
	}
	cfg.Agents.Count = 6
	cfg.Evolution.FitnessLength = 30
	cfg.Evolution.ScoreLength = 60
	cfg.ComputeDerived()

	seed, err := genome.FromConfig(genome.NewIDAllocator(), "seed", cfg, rand.New(rand.NewSource(42)))
	if err != nil {
		t.Fatal(err)
	}
	e, err := NewEvaluator(seed, EvalOptionsFromConfig(cfg, 5))
	if err != nil {
		t.Fatal(err)
	}
	return e
}

// perturbed returns n candidates scattered around the evaluator's start point.
func perturbed(e *Evaluator, n int, rng *rand.Rand) [][]float64 {
	start := e.Start()
	out := make([][]float64, n)
	for i := range out {
		x := make([]float64, len(start))
		for j := range x {
			x[j] = start[j] + rng.NormFloat64()
		}
		out[i] = x
	}
	return out
}

func TestEvaluatorDeterministic(t *testing.T) {
	e := testEvaluator(t)
	x := e.Start()

	f1, err := e.Fitness(x)
	if err != nil {
		t.Fatal(err)
	}
	f2, err := e.Fitness(x)
	if err != nil {
		t.Fatal(err)
	}
	if f1 != f2 {
		t.Errorf("fitness not reproducible: %v vs %v", f1, f2)
	}
	// At most 2 x nbSensors matches per agent per tick
	if f1 < 0 || f1 > 4 {
		t.Errorf("fitness %v out of [0, 4]", f1)
	}
}

func TestEvaluatorShapeMismatch(t *testing.T) {
	e := testEvaluator(t)
	_, err := e.Fitness(make([]float64, e.Dim()-1))
	if !errors.Is(err, neural.ErrShapeMismatch) {
		t.Errorf("error = %v, want ErrShapeMismatch", err)
	}
}

func TestEvaluatorScore(t *testing.T) {
	e := testEvaluator(t)
	s, err := e.Score(e.Start())
	if err != nil {
		t.Fatal(err)
	}
	if s.Ratio <= 0 || s.Ratio > 1 {
		t.Errorf("ratio %v out of (0, 1]", s.Ratio)
	}
	if s.Entropy < 0 || s.Entropy > 1 {
		t.Errorf("entropy %v out of [0, 1]", s.Entropy)
	}
	if s.Distance < 0 {
		t.Errorf("negative covered distance %v", s.Distance)
	}
}

func TestLoopTellsNegatedFitness(t *testing.T) {
	e := testEvaluator(t)
	rng := rand.New(rand.NewSource(42))
	opt := &fakeOptimizer{batches: [][][]float64{perturbed(e, 5, rng), perturbed(e, 5, rng)}}

	hof := telemetry.NewHallOfFame(3, nil)
	loop := &Loop{Optimizer: opt, Evaluator: e, MaxGenerations: 10, Workers: 3, HallOfFame: hof, RunIndex: 4}
	res, err := loop.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if len(opt.told) != 2 || res.Generations != 2 || !res.Converged {
		t.Fatalf("told %d generations, result %+v", len(opt.told), res)
	}
	for gen, batch := range opt.batches {
		best := 0.0
		for i, x := range batch {
			f, err := e.Fitness(x)
			if err != nil {
				t.Fatal(err)
			}
			if opt.told[gen][i] != -f {
				t.Errorf("gen %d candidate %d: told %v, want %v", gen, i, opt.told[gen][i], -f)
			}
			if i == 0 || f > best {
				best = f
			}
		}
		if res.GenerationBest[gen] != best {
			t.Errorf("gen %d best = %v, want %v", gen, res.GenerationBest[gen], best)
		}
	}

	if len(res.Final) != 5 || &res.Final[0][0] != &opt.batches[1][0][0] {
		t.Error("Final should be the last evaluated batch")
	}
	if hof.Size() != 3 || hof.TopFitness() != res.BestFitness {
		t.Errorf("hall of fame size %d top %v, best %v", hof.Size(), hof.TopFitness(), res.BestFitness)
	}
	for _, entry := range hof.Entries() {
		if entry.Run != 4 {
			t.Errorf("hall entry run = %d, want the loop's run index 4", entry.Run)
		}
	}
}

func TestLoopStopConditions(t *testing.T) {
	e := testEvaluator(t)
	rng := rand.New(rand.NewSource(7))
	batches := make([][][]float64, 5)
	for i := range batches {
		batches[i] = perturbed(e, 2, rng)
	}

	tests := []struct {
		name      string
		stopAfter int
		maxGen    int
		wantGens  int
		converged bool
	}{
		{"optimizer converges", 2, 10, 2, true},
		{"generation cap", 0, 3, 3, false},
		{"batches exhausted", 0, 10, 5, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opt := &fakeOptimizer{batches: batches, stopAfter: tt.stopAfter}
			loop := &Loop{Optimizer: opt, Evaluator: e, MaxGenerations: tt.maxGen}
			res, err := loop.Run(context.Background())
			if err != nil {
				t.Fatal(err)
			}
			if res.Generations != tt.wantGens || len(res.GenerationBest) != tt.wantGens {
				t.Errorf("generations = %d (%d bests), want %d", res.Generations, len(res.GenerationBest), tt.wantGens)
			}
			if res.Converged != tt.converged {
				t.Errorf("converged = %v, want %v", res.Converged, tt.converged)
			}
		})
	}
}

func TestLoopCancelledBeforeFirstGeneration(t *testing.T) {
	e := testEvaluator(t)
	opt := &fakeOptimizer{batches: [][][]float64{perturbed(e, 2, rand.New(rand.NewSource(1)))}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := (&Loop{Optimizer: opt, Evaluator: e, MaxGenerations: 5}).Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
	if res == nil || res.Generations != 0 || len(opt.told) != 0 {
		t.Errorf("expected no generation to run, got %+v", res)
	}
}

func TestLoopWritesGenerationStream(t *testing.T) {
	e := testEvaluator(t)
	rng := rand.New(rand.NewSource(3))
	opt := &fakeOptimizer{batches: [][][]float64{perturbed(e, 3, rng), perturbed(e, 3, rng)}}

	dir := t.TempDir()
	om, err := telemetry.NewOutputManager(dir, "test")
	if err != nil {
		t.Fatal(err)
	}
	loop := &Loop{
		Optimizer:      opt,
		Evaluator:      e,
		MaxGenerations: 2,
		Output:         om,
		Bookmarks:      telemetry.NewBookmarkDetector(5),
		RunID:          "run",
	}
	res, err := loop.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if err := om.Close(); err != nil {
		t.Fatal(err)
	}

	points, err := telemetry.ReadPoints(telemetry.MetricPath(dir, "test", telemetry.KindGenFitness, 5))
	if err != nil {
		t.Fatal(err)
	}
	if len(points) != 2 {
		t.Fatalf("got %d points, want 2", len(points))
	}
	for i, p := range points {
		if p.X != float64(i) || p.Y != res.GenerationBest[i] {
			t.Errorf("point %d = %+v, want (%d, %v)", i, p, i, res.GenerationBest[i])
		}
	}
}

func TestCMAESDrivesLoop(t *testing.T) {
	e := testEvaluator(t)
	opt, err := NewCMAES(e.Start(), CMAESOptions{StepSize: 0.5})
	if err != nil {
		t.Fatal(err)
	}
	defer opt.Close()

	res, err := (&Loop{Optimizer: opt, Evaluator: e, MaxGenerations: 3}).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Generations != 3 || len(res.Final) != opt.Population() {
		t.Errorf("generations %d, final batch %d, want 3 and %d", res.Generations, len(res.Final), opt.Population())
	}
	if len(res.Best) != e.Dim() {
		t.Errorf("best candidate has %d parameters, want %d", len(res.Best), e.Dim())
	}
}
