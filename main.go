package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/pthm-cable/ringsoup/config"
	"github.com/pthm-cable/ringsoup/game"
	"github.com/pthm-cable/ringsoup/genome"
	"github.com/pthm-cable/ringsoup/storage"
	"github.com/pthm-cable/ringsoup/telemetry"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	logStats := flag.Bool("log-stats", false, "Output per-window stats via slog")
	snapshotDir := flag.String("snapshot-dir", "", "Directory for end-of-run snapshot files")
	outputDir := flag.String("output-dir", "", "Output directory for CSV logs and config snapshot")
	historyDir := flag.String("history-dir", "", "Directory for per-genome position histories")
	seed := flag.Int64("seed", 0, "RNG seed (0 = time-based)")
	maxTicks := flag.Int("max-ticks", 500, "Stop after N ticks")
	stepsPerUpdate := flag.Int("steps-per-update", 1, "Simulation ticks per update call")
	length := flag.Float64("length", 0, "Ring length (0 = use config)")
	freeze := flag.Bool("freeze", false, "Keep every agent's initial direction")
	genomes := flag.Int("genomes", 1, "Number of genomes to host")
	controllers := flag.String("controllers", "", "Name of stored controllers to load (empty = random)")
	storeKind := flag.String("store", "", "Controller store backend: memory or sqlite (empty = use config)")
	storePath := flag.String("store-path", "", "SQLite database path (empty = use config)")
	hallPath := flag.String("hall-of-fame", "", "Hall of fame JSON to sample controllers from")

	flag.Parse()

	// Set up slog (JSON to stdout for structured logging)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := config.Init(*configPath); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg := config.Cfg()

	rngSeed := *seed
	if rngSeed == 0 {
		rngSeed = time.Now().UnixNano()
	}

	opts := game.Options{
		Seed:             rngSeed,
		LogStats:         *logStats,
		SnapshotDir:      *snapshotDir,
		OutputDir:        *outputDir,
		StepsPerUpdate:   *stepsPerUpdate,
		RingLength:       *length,
		FreezeDirections: *freeze,
	}

	if err := run(cfg, opts, *genomes, *maxTicks, *historyDir, source{
		controllers: *controllers,
		storeKind:   *storeKind,
		storePath:   *storePath,
		hallPath:    *hallPath,
	}); err != nil {
		slog.Error("run failed", "error", err)
		os.Exit(1)
	}
}

// source says where hosted controllers come from.
type source struct {
	controllers string
	storeKind   string
	storePath   string
	hallPath    string
}

func run(cfg *config.Config, opts game.Options, count, maxTicks int, historyDir string, src source) error {
	g, err := game.NewGameWithOptions(cfg, opts)
	if err != nil {
		return err
	}
	defer func() {
		if err := g.Unload(); err != nil {
			slog.Error("failed to close output", "error", err)
		}
	}()

	if err := spawn(g, cfg, count, src); err != nil {
		return err
	}

	slog.Info("starting headless simulation",
		"seed", opts.Seed,
		"ring_length", g.World().RingLength(),
		"genomes", count,
		"max_ticks", maxTicks,
		"steps_per_update", opts.StepsPerUpdate,
		"freeze", opts.FreezeDirections,
	)

	for g.Tick() < maxTicks {
		if err := g.UpdateHeadless(); err != nil {
			return err
		}
	}
	slog.Info("max ticks reached", "tick", g.Tick())

	for _, gen := range g.Genomes() {
		s, err := g.Score(gen)
		if err != nil {
			slog.Warn("score unavailable", "genome", gen.Name, "error", err)
			continue
		}
		slog.Info("final score",
			"genome", gen.Name,
			"fitness", s.Fitness,
			"covered_distance", s.Distance,
			"sensor_entropy", s.Entropy,
			"cluster_ratio", s.Ratio,
		)
	}

	if historyDir != "" {
		if err := g.ExportHistory(historyDir); err != nil {
			return err
		}
	}
	g.SaveSnapshots()
	return nil
}

func spawn(g *game.Game, cfg *config.Config, count int, src source) error {
	spawnOne := func(name string) (*genome.Genome, error) {
		return g.SpawnRandom(name)
	}

	switch {
	case src.controllers != "":
		kind := src.storeKind
		if kind == "" {
			kind = cfg.Storage.Kind
		}
		path := src.storePath
		if path == "" {
			path = cfg.Storage.Path
		}
		store, err := storage.NewStore(kind, path)
		if err != nil {
			return err
		}
		ctx := context.Background()
		if err := store.Init(ctx); err != nil {
			return err
		}
		defer store.Close()
		spawnOne = func(name string) (*genome.Genome, error) {
			gen, err := g.SpawnStored(ctx, store, src.controllers)
			if err != nil {
				return nil, err
			}
			gen.Name = name
			return gen, nil
		}

	case src.hallPath != "":
		hof, err := telemetry.LoadHallOfFameFromFile(src.hallPath, nil)
		if err != nil {
			return err
		}
		slog.Info("loaded hall of fame", "path", src.hallPath, "entries", hof.Size())
		spawnOne = func(name string) (*genome.Genome, error) {
			return g.SpawnFromHall(hof, name)
		}
	}

	for i := 0; i < count; i++ {
		name := fmt.Sprintf("genome%d", i)
		if count == 1 && src.controllers != "" {
			name = src.controllers
		}
		if _, err := spawnOne(name); err != nil {
			return fmt.Errorf("spawning %s: %w", name, err)
		}
	}
	return nil
}
