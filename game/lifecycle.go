package game

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pthm-cable/ringsoup/genome"
	"github.com/pthm-cable/ringsoup/storage"
	"github.com/pthm-cable/ringsoup/telemetry"
)

// SpawnRandom hosts a genome with randomly initialised controllers.
func (g *Game) SpawnRandom(name string) (*genome.Genome, error) {
	gen, err := genome.FromConfig(g.alloc, name, g.cfg, g.rng)
	if err != nil {
		return nil, err
	}
	return gen, g.AddGenome(gen)
}

// SpawnStored hosts the controllers saved under name.
func (g *Game) SpawnStored(ctx context.Context, store storage.Store, name string) (*genome.Genome, error) {
	record, ok, err := store.GetControllers(ctx, name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("controllers %q: %w", name, genome.ErrNotFound)
	}
	gen, err := record.GenomeFor(g.alloc, g.cfg)
	if err != nil {
		return nil, err
	}
	gen.Populate(g.cfg.Agents.Count)
	return gen, g.AddGenome(gen)
}

// SpawnFromHall hosts a genome whose parameters are sampled from a hall of fame.
// Falls back to random controllers when the hall is empty.
func (g *Game) SpawnFromHall(hof *telemetry.HallOfFame, name string) (*genome.Genome, error) {
	entry := hof.Sample()
	if entry == nil {
		slog.Warn("hall_of_fame_empty_fallback",
			"message", "no stored candidates, spawning random controllers",
		)
		return g.SpawnRandom(name)
	}

	seed, err := genome.FromConfig(g.alloc, name, g.cfg, nil)
	if err != nil {
		return nil, err
	}
	gen, err := seed.Materialize(g.alloc, name, entry.Params, g.cfg.Agents.Count)
	if err != nil {
		return nil, fmt.Errorf("hall entry (fitness %.4f): %w", entry.Fitness, err)
	}
	slog.Info("spawned from hall of fame",
		"genome", name,
		"fitness", entry.Fitness,
		"length", entry.Length,
		"generation", entry.Generation,
	)
	return gen, g.AddGenome(gen)
}
