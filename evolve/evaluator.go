package evolve

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/pthm-cable/ringsoup/config"
	"github.com/pthm-cable/ringsoup/genome"
	"github.com/pthm-cable/ringsoup/world"
)

// EvalOptions configure how candidate vectors are turned into fitness values.
type EvalOptions struct {
	RingLength   float64
	WorldNoise   float64
	Agents       int   // Agents instantiated per candidate
	Horizon      int   // Ticks per fitness run
	Runs         int   // Fitness runs averaged per candidate
	ScoreHorizon int   // Ticks of the post-evolution scoring run
	Seed         int64 // Seeds every candidate's world identically
}

// EvalOptionsFromConfig builds evaluation options for one ring length.
func EvalOptionsFromConfig(cfg *config.Config, ringLength float64) EvalOptions {
	return EvalOptions{
		RingLength:   ringLength,
		WorldNoise:   cfg.World.Noise,
		Agents:       cfg.Agents.Count,
		Horizon:      cfg.Evolution.FitnessLength,
		Runs:         cfg.Evolution.RunsPerFitness,
		ScoreHorizon: cfg.Evolution.ScoreLength,
		Seed:         cfg.Evolution.Seed,
	}
}

// RunSeed derives the evaluation seed of one evolution run.
func RunSeed(base int64, run int) int64 {
	return base + int64(run)*1000 + 42
}

// Evaluator scores candidate parameter vectors against a seed genome.
// Every call builds its own genome and world, so calls may run concurrently.
type Evaluator struct {
	seed  *genome.Genome
	opts  EvalOptions
	alloc *genome.IDAllocator
}

// NewEvaluator creates an evaluator. The seed genome provides the controller
// architectures and the agent construction parameters; it is never modified.
func NewEvaluator(seed *genome.Genome, opts EvalOptions) (*Evaluator, error) {
	if seed == nil {
		return nil, errors.New("evaluator: nil seed genome")
	}
	if opts.Agents <= 0 {
		return nil, fmt.Errorf("evaluator: %w", genome.ErrEmptyPopulation)
	}
	if opts.Horizon <= 0 {
		return nil, fmt.Errorf("evaluator: horizon must be positive, got %d", opts.Horizon)
	}
	if opts.Runs < 1 {
		opts.Runs = 1
	}
	if opts.ScoreHorizon <= 0 {
		opts.ScoreHorizon = opts.Horizon
	}
	return &Evaluator{seed: seed, opts: opts, alloc: genome.NewIDAllocator()}, nil
}

// Dim returns the candidate vector length.
func (e *Evaluator) Dim() int { return e.seed.Size() }

// Start returns the seed genome's parameters, the search starting point.
func (e *Evaluator) Start() []float64 { return e.seed.ToVector() }

// Options returns the evaluation options.
func (e *Evaluator) Options() EvalOptions { return e.opts }

// Genome builds a populated genome whose controllers carry v.
func (e *Evaluator) Genome(name string, v []float64) (*genome.Genome, error) {
	return e.seed.Materialize(e.alloc, name, v, e.opts.Agents)
}

func (e *Evaluator) host(g *genome.Genome) (*world.RingWorld, error) {
	w, err := world.New(world.Options{
		RingLength: e.opts.RingLength,
		Noise:      e.opts.WorldNoise,
		Rng:        rand.New(rand.NewSource(e.opts.Seed)),
	})
	if err != nil {
		return nil, err
	}
	if err := w.AddGenome(g); err != nil {
		return nil, err
	}
	return w, nil
}

// Fitness returns the candidate's fitness averaged over Runs reset-and-run cycles.
func (e *Evaluator) Fitness(v []float64) (float64, error) {
	g, err := e.Genome("candidate", v)
	if err != nil {
		return 0, err
	}
	w, err := e.host(g)
	if err != nil {
		return 0, err
	}

	var sum float64
	for r := 0; r < e.opts.Runs; r++ {
		f, err := w.Evaluate(g.ID, e.opts.Horizon)
		if err != nil {
			return 0, err
		}
		sum += f
	}
	return sum / float64(e.opts.Runs), nil
}

// Scores are the swarm metrics of one scoring run.
type Scores struct {
	Fitness  float64
	Distance float64
	Entropy  float64
	Ratio    float64
}

// Score runs a candidate for the scoring horizon and computes its swarm metrics.
func (e *Evaluator) Score(v []float64) (Scores, error) {
	g, err := e.Genome("scored", v)
	if err != nil {
		return Scores{}, err
	}
	w, err := e.host(g)
	if err != nil {
		return Scores{}, err
	}
	return ScoreGenome(w, g, e.opts.ScoreHorizon)
}

// ScoreGenome resets a hosted genome, runs it for length ticks and computes
// its fitness and swarm metrics.
func ScoreGenome(w *world.RingWorld, g *genome.Genome, length int) (Scores, error) {
	var s Scores
	var err error
	if s.Fitness, err = w.Evaluate(g.ID, length); err != nil {
		return Scores{}, err
	}

	agents := g.Agents()
	if s.Distance, err = CoveredDistance(agents, w.RingLength()); err != nil {
		return Scores{}, err
	}
	if s.Entropy, err = SensorEntropy(agents, length); err != nil {
		return Scores{}, err
	}
	if s.Ratio, err = LargestClusterRatio(agents, w.RingLength(), agents[0].OuterRange()); err != nil {
		return Scores{}, err
	}
	return s, nil
}
