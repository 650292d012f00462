// Package main evolves ring-swarm controllers with CMA-ES over a sweep of
// ring lengths and records fitness and swarm metrics per length.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/google/uuid"

	"github.com/pthm-cable/ringsoup/config"
	"github.com/pthm-cable/ringsoup/storage"
	"github.com/pthm-cable/ringsoup/telemetry"
)

// formatDuration formats a duration as HH:MM:SS or MM:SS for shorter durations.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	return fmt.Sprintf("%dm%02ds", m, s)
}

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Base config YAML file (empty = use defaults)")
	lengthsFlag := flag.String("lengths", "", "Comma-separated ring lengths (empty = use config)")
	outputDir := flag.String("out", "", "Output directory for results (empty = use config)")
	prefix := flag.String("prefix", "", "File name prefix for output files (empty = config, else a timestamp)")
	storeKind := flag.String("store", "", "Controller store backend: memory or sqlite (empty = use config)")
	storePath := flag.String("store-path", "", "SQLite database path (empty = use config)")
	replace := flag.Bool("replace", false, "Overwrite stored controllers even when they score higher")
	seed := flag.Int64("seed", -1, "Base evaluation seed (-1 = use config)")

	overrides := make(map[string]*float64, len(overrideSpecs))
	for _, spec := range overrideSpecs {
		overrides[spec.Name] = flag.Float64(spec.Name, -1, fmt.Sprintf("Override %s (-1 = use config)", spec.Path))
	}
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := config.Init(*configPath); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg := config.Cfg()

	values := make(map[string]float64, len(overrides))
	for name, v := range overrides {
		values[name] = *v
	}
	applied, err := ApplyOverrides(cfg, values)
	if err != nil {
		slog.Error("invalid flag", "error", err)
		os.Exit(2)
	}
	lengths, err := parseLengths(*lengthsFlag)
	if err != nil {
		slog.Error("invalid flag", "error", err)
		os.Exit(2)
	}
	if lengths != nil {
		cfg.Evolution.Lengths = lengths
	}
	if *seed >= 0 {
		cfg.Evolution.Seed = *seed
	}
	if *outputDir != "" {
		cfg.Telemetry.OutputDir = *outputDir
	}
	if *prefix != "" {
		cfg.Telemetry.Prefix = *prefix
	}
	if cfg.Telemetry.Prefix == "" {
		cfg.Telemetry.Prefix = time.Now().Format("20060102_150405")
	}
	if *storeKind != "" {
		cfg.Storage.Kind = *storeKind
	}
	if *storePath != "" {
		cfg.Storage.Path = *storePath
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(2)
	}
	cfg.ComputeDerived()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, cfg, *replace, applied); err != nil {
		if errors.Is(err, context.Canceled) {
			slog.Warn("interrupted")
			os.Exit(130)
		}
		slog.Error("optimization failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, replace bool, overrides []string) error {
	runID := uuid.NewString()
	logger := slog.Default().With("run_id", runID)

	om, err := telemetry.NewOutputManager(cfg.Telemetry.OutputDir, cfg.Telemetry.Prefix)
	if err != nil {
		return err
	}
	defer om.Close()
	if err := om.WriteConfig(cfg); err != nil {
		return err
	}

	store, err := storage.NewStore(cfg.Storage.Kind, cfg.Storage.Path)
	if err != nil {
		return err
	}
	if err := store.Init(ctx); err != nil {
		return err
	}
	defer store.Close()

	hof := telemetry.NewHallOfFame(cfg.Evolution.HallOfFame, nil)
	r := &Runner{
		Config:     cfg,
		RunID:      runID,
		Output:     om,
		Store:      store,
		HallOfFame: hof,
		Replace:    replace,
		Logger:     logger,
	}

	lengths := cfg.RingLengths()
	if replace {
		if err := r.ResetStored(ctx, lengths); err != nil {
			return err
		}
	}

	total := len(lengths) * cfg.Evolution.Runs
	logger.Info("starting CMA-ES optimization",
		"lengths", lengths,
		"runs", cfg.Evolution.Runs,
		"generations", cfg.Evolution.MaxGenerations,
		"agents", cfg.Agents.Count,
		"workers", cfg.Derived.Workers,
		"store", cfg.Storage.Kind,
		"overrides", overrides,
	)

	start := time.Now()
	done := 0
	for _, length := range lengths {
		for run := 0; run < cfg.Evolution.Runs; run++ {
			s, err := r.Evolve(ctx, length, run)
			if err != nil {
				return fmt.Errorf("L=%g run %d: %w", length, run, err)
			}
			done++

			elapsed := time.Since(start)
			remaining := time.Duration(total-done) * (elapsed / time.Duration(done))
			logger.Info("run complete",
				"ring_length", length,
				"run", run,
				"progress", fmt.Sprintf("%d/%d", done, total),
				"generations", s.Generations,
				"converged", s.Converged,
				"best_fitness", s.BestFitness,
				"covered_distance", s.Mean.Distance,
				"sensor_entropy", s.Mean.Entropy,
				"cluster_ratio", s.Mean.Ratio,
				"elapsed", formatDuration(elapsed),
				"eta", formatDuration(remaining),
			)
		}
	}

	if err := om.WriteHallOfFame(hof); err != nil {
		return err
	}
	names, err := store.ListControllers(ctx)
	if err != nil {
		return err
	}
	logger.Info("optimization complete",
		"duration", formatDuration(time.Since(start)),
		"hall_of_fame_best", hof.TopFitness(),
		"stored_controllers", names,
	)
	return nil
}
