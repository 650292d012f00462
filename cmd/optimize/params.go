package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pthm-cable/ringsoup/config"
)

// OverrideSpec describes one config field that can be set from the command line.
type OverrideSpec struct {
	Name string  // Flag name
	Path string  // Config path for logging
	Min  float64 // Lower bound
	Max  float64 // Upper bound
	set  func(cfg *config.Config, v float64)
}

// overrideSpecs lists the numeric evolution settings exposed as flags.
// A negative flag value means "keep the config value".
var overrideSpecs = []OverrideSpec{
	{Name: "generations", Path: "evolution.max_generations", Min: 1, Max: 1e6,
		set: func(cfg *config.Config, v float64) { cfg.Evolution.MaxGenerations = int(v) }},
	{Name: "runs", Path: "evolution.runs", Min: 1, Max: 1e6,
		set: func(cfg *config.Config, v float64) { cfg.Evolution.Runs = int(v) }},
	{Name: "population", Path: "evolution.population", Min: 0, Max: 1e4,
		set: func(cfg *config.Config, v float64) { cfg.Evolution.Population = int(v) }},
	{Name: "step-size", Path: "evolution.step_size", Min: 1e-6, Max: 100,
		set: func(cfg *config.Config, v float64) { cfg.Evolution.StepSize = v }},
	{Name: "fitness-length", Path: "evolution.fitness_length", Min: 1, Max: 1e7,
		set: func(cfg *config.Config, v float64) { cfg.Evolution.FitnessLength = int(v) }},
	{Name: "score-length", Path: "evolution.score_length", Min: 1, Max: 1e7,
		set: func(cfg *config.Config, v float64) { cfg.Evolution.ScoreLength = int(v) }},
	{Name: "workers", Path: "evolution.workers", Min: 0, Max: 4096,
		set: func(cfg *config.Config, v float64) { cfg.Evolution.Workers = int(v) }},
	{Name: "agents", Path: "agents.count", Min: 1, Max: 1e6,
		set: func(cfg *config.Config, v float64) { cfg.Agents.Count = int(v) }},
}

// ApplyOverrides writes every non-negative value to its config field.
// values is keyed by OverrideSpec.Name.
func ApplyOverrides(cfg *config.Config, values map[string]float64) ([]string, error) {
	var applied []string
	for _, spec := range overrideSpecs {
		v, ok := values[spec.Name]
		if !ok || v < 0 {
			continue
		}
		if v < spec.Min || v > spec.Max {
			return applied, fmt.Errorf("-%s: %g outside [%g, %g]", spec.Name, v, spec.Min, spec.Max)
		}
		spec.set(cfg, v)
		applied = append(applied, fmt.Sprintf("%s=%g", spec.Path, v))
	}
	return applied, nil
}

// parseLengths parses a comma-separated list of positive ring lengths.
func parseLengths(s string) ([]float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var out []float64
	for _, field := range strings.Split(s, ",") {
		v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
		if err != nil {
			return nil, fmt.Errorf("ring length %q: %w", field, err)
		}
		if v <= 0 {
			return nil, fmt.Errorf("ring length must be positive, got %g", v)
		}
		out = append(out, v)
	}
	return out, nil
}
