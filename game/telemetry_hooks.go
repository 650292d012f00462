package game

import (
	"log/slog"

	"github.com/pthm-cable/ringsoup/genome"
	"github.com/pthm-cable/ringsoup/telemetry"
)

// flushTelemetry logs and writes perf stats once per window.
func (g *Game) flushTelemetry() {
	if g.perfWindow <= 0 || g.tick%g.perfWindow != 0 {
		return
	}

	perfStats := g.perfCollector.Stats()
	if g.logStats {
		perfStats.LogStats()
		g.logWorldState()
	}

	if err := g.outputManager.WritePerf(perfStats, int64(g.tick)); err != nil {
		slog.Error("failed to write perf", "error", err)
	}
}

// SaveSnapshots writes one snapshot per hosted genome.
func (g *Game) SaveSnapshots() {
	if g.snapshotDir == "" {
		return
	}
	for _, gen := range g.genomes {
		path, err := telemetry.SaveSnapshot(g.createSnapshot(gen), g.snapshotDir)
		if err != nil {
			slog.Error("failed to save snapshot", "genome", gen.Name, "error", err)
			continue
		}
		slog.Info("snapshot saved", "path", path, "tick", g.tick)
	}
}

// createSnapshot builds a snapshot of one genome's agents.
func (g *Game) createSnapshot(gen *genome.Genome) *telemetry.Snapshot {
	snapshot := &telemetry.Snapshot{
		Version:    telemetry.SnapshotVersion,
		Seed:       g.rngSeed,
		RingLength: g.world.RingLength(),
		Tick:       g.tick,
		Genome:     gen.Name,
		Fitness:    gen.Fitness,
	}

	for _, a := range gen.Agents() {
		snapshot.Agents = append(snapshot.Agents, telemetry.AgentState{
			ID:               uint32(a.ID),
			Position:         a.Position,
			Direction:        a.Direction,
			Surprise:         a.Surprise,
			Activation:       append([]bool(nil), a.Activation()...),
			Predicted:        append([]bool(nil), a.Predicted...),
			ActivationCounts: append([]int(nil), a.ActivationCounts...),
			Recurrent:        append([]float64(nil), a.Recurrent...),
		})
	}
	return snapshot
}
