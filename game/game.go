// Package game runs controllers on the ring outside of evolution: it hosts
// genomes in a RingWorld, advances them tick by tick and reports telemetry.
package game

import (
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/pthm-cable/ringsoup/camera"
	"github.com/pthm-cable/ringsoup/config"
	"github.com/pthm-cable/ringsoup/genome"
	"github.com/pthm-cable/ringsoup/telemetry"
	"github.com/pthm-cable/ringsoup/world"
)

// Options configures a headless session.
type Options struct {
	Seed           int64
	LogStats       bool
	SnapshotDir    string
	OutputDir      string
	StepsPerUpdate int
	RingLength     float64 // 0 = cfg.World.RingLength

	// FreezeDirections keeps each agent's initial direction.
	FreezeDirections bool
}

// Game holds the complete session state.
type Game struct {
	cfg   *config.Config
	rng   *rand.Rand
	world *world.RingWorld
	alloc *genome.IDAllocator
	view  *camera.RingView

	// Hosted genomes in insertion order
	genomes []*genome.Genome

	perfCollector *telemetry.PerfCollector
	outputManager *telemetry.OutputManager
	perfWindow    int

	tick           int
	rngSeed        int64
	logStats       bool
	snapshotDir    string
	stepsPerUpdate int
}

// NewGameWithOptions creates an empty session.
func NewGameWithOptions(cfg *config.Config, opts Options) (*Game, error) {
	length := opts.RingLength
	if length <= 0 {
		length = cfg.World.RingLength
	}
	steps := opts.StepsPerUpdate
	if steps < 1 {
		steps = 1
	}

	rng := rand.New(rand.NewSource(opts.Seed))
	perf := telemetry.NewPerfCollector(cfg.Telemetry.PerfWindow)
	w, err := world.New(world.Options{
		RingLength:       length,
		Noise:            cfg.World.Noise,
		Rng:              rng,
		FreezeDirections: opts.FreezeDirections,
		Perf:             perf,
	})
	if err != nil {
		return nil, err
	}

	om, err := telemetry.NewOutputManager(opts.OutputDir, cfg.Telemetry.Prefix)
	if err != nil {
		return nil, fmt.Errorf("creating output: %w", err)
	}
	if err := om.WriteConfig(cfg); err != nil {
		slog.Error("failed to write config", "error", err)
	}

	// The ring is centred in a viewport twice the configured centre
	view := camera.New(2*cfg.Display.CenterX, 2*cfg.Display.CenterY)
	view.SetRadius(cfg.Display.Radius)
	view.Rotate(cfg.Display.Rotation)

	return &Game{
		cfg:            cfg,
		rng:            rng,
		world:          w,
		alloc:          genome.NewIDAllocator(),
		view:           view,
		perfCollector:  perf,
		outputManager:  om,
		perfWindow:     cfg.Telemetry.PerfWindow,
		rngSeed:        opts.Seed,
		logStats:       opts.LogStats,
		snapshotDir:    opts.SnapshotDir,
		stepsPerUpdate: steps,
	}, nil
}

// Allocator returns the id allocator used for genomes created by the session.
func (g *Game) Allocator() *genome.IDAllocator { return g.alloc }

// World returns the underlying ring world.
func (g *Game) World() *world.RingWorld { return g.world }

// Genomes returns the hosted genomes in insertion order.
func (g *Game) Genomes() []*genome.Genome {
	return append([]*genome.Genome(nil), g.genomes...)
}

// AddGenome hosts gen in the world; its agents are placed at random.
func (g *Game) AddGenome(gen *genome.Genome) error {
	if err := g.world.AddGenome(gen); err != nil {
		return err
	}
	g.genomes = append(g.genomes, gen)
	return nil
}

// RemoveGenome stops hosting a genome.
func (g *Game) RemoveGenome(id genome.ID) error {
	if err := g.world.RemoveGenome(id); err != nil {
		return err
	}
	for i, gen := range g.genomes {
		if gen.ID == id {
			g.genomes = append(g.genomes[:i], g.genomes[i+1:]...)
			break
		}
	}
	return nil
}

// ReplacePopulation removes every hosted genome and hosts gens instead.
func (g *Game) ReplacePopulation(gens []*genome.Genome) error {
	for _, gen := range g.Genomes() {
		if err := g.RemoveGenome(gen.ID); err != nil {
			return err
		}
	}
	for _, gen := range gens {
		if err := g.AddGenome(gen); err != nil {
			return err
		}
	}
	return nil
}

// UpdateHeadless advances every genome by StepsPerUpdate ticks.
func (g *Game) UpdateHeadless() error {
	for i := 0; i < g.stepsPerUpdate; i++ {
		for _, gen := range g.genomes {
			if err := g.world.Step(gen.ID); err != nil {
				return err
			}
		}
		g.tick++
		g.flushTelemetry()
	}
	return nil
}

// Positions projects a genome's agents onto the display ring.
func (g *Game) Positions(id genome.ID) ([]camera.Point, error) {
	return g.world.Positions(id, g.view)
}

// Tick returns the number of ticks run.
func (g *Game) Tick() int {
	return g.tick
}

// Unload flushes and closes all output.
func (g *Game) Unload() error {
	return g.outputManager.Close()
}
