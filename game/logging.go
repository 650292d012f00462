package game

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/pthm-cable/ringsoup/evolve"
	"github.com/pthm-cable/ringsoup/genome"
	"github.com/pthm-cable/ringsoup/telemetry"
)

// logWorldState logs the running score of every hosted genome.
func (g *Game) logWorldState() {
	for _, gen := range g.genomes {
		s, err := g.Score(gen)
		if err != nil {
			slog.Warn("world state unavailable", "genome", gen.Name, "error", err)
			continue
		}
		slog.Info("world",
			"tick", g.tick,
			"genome", gen.Name,
			"agents", gen.Len(),
			"fitness", s.Fitness,
			"covered_distance", s.Distance,
			"sensor_entropy", s.Entropy,
			"cluster_ratio", s.Ratio,
		)
	}
}

// Score computes a genome's fitness and swarm metrics over the ticks run
// since its last reset.
func (g *Game) Score(gen *genome.Genome) (evolve.Scores, error) {
	elapsed, err := g.world.Elapsed(gen.ID)
	if err != nil {
		return evolve.Scores{}, err
	}
	if elapsed == 0 {
		return evolve.Scores{}, fmt.Errorf("genome %q has not run yet", gen.Name)
	}

	var s evolve.Scores
	if s.Fitness, err = gen.ComputeFitness(elapsed); err != nil {
		return evolve.Scores{}, err
	}
	agents := gen.Agents()
	length := g.world.RingLength()
	if s.Distance, err = evolve.CoveredDistance(agents, length); err != nil {
		return evolve.Scores{}, err
	}
	if s.Entropy, err = evolve.SensorEntropy(agents, elapsed); err != nil {
		return evolve.Scores{}, err
	}
	if s.Ratio, err = evolve.LargestClusterRatio(agents, length, agents[0].OuterRange()); err != nil {
		return evolve.Scores{}, err
	}
	return s, nil
}

// ExportHistory writes each genome's recorded positions to
// {dir}/history_{genome}.csv. Trajectories are cut into segments wherever an
// agent wraps around the ring (a jump of more than twice its speed).
func (g *Game) ExportHistory(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating history dir: %w", err)
	}
	for _, gen := range g.genomes {
		elapsed, err := g.world.Elapsed(gen.ID)
		if err != nil {
			return err
		}
		var rows []telemetry.HistoryRow
		for _, a := range gen.Agents() {
			positions := a.History.Values()
			first := elapsed - len(positions) + 1
			rows = append(rows, telemetry.HistoryRows(uint32(a.ID), positions, 2*a.Speed, first)...)
		}
		path := filepath.Join(dir, fmt.Sprintf("history_%s.csv", gen.Name))
		if err := telemetry.WriteHistoryFile(path, rows); err != nil {
			return err
		}
		slog.Info("history exported", "path", path, "rows", len(rows))
	}
	return nil
}
