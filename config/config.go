// Package config provides configuration loading and access for the ring simulation.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"math"
	"os"
	"runtime"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config holds all simulation and evolution parameters.
type Config struct {
	World     WorldConfig     `yaml:"world"`
	Agents    AgentsConfig    `yaml:"agents"`
	Neural    NeuralConfig    `yaml:"neural"`
	Evolution EvolutionConfig `yaml:"evolution"`
	Display   DisplayConfig   `yaml:"display"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Storage   StorageConfig   `yaml:"storage"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// WorldConfig holds ring geometry.
type WorldConfig struct {
	RingLength float64 `yaml:"ring_length"`
	Noise      float64 `yaml:"noise"`      // World-wide movement noise amplitude, added to each agent's own
	Directions int     `yaml:"directions"` // Size of the direction-to-displacement table
}

// SensorConfig is one half-open distance band [Low, High).
type SensorConfig struct {
	Low  float64 `yaml:"low"`
	High float64 `yaml:"high"`
}

// AgentsConfig holds the construction parameters shared by every agent of a genome.
type AgentsConfig struct {
	Count         int            `yaml:"count"`
	Speed         float64        `yaml:"speed"`
	Noise         float64        `yaml:"noise"`
	HistoryLength int            `yaml:"history_length"`
	Sensors       []SensorConfig `yaml:"sensors"` // Nearest band first
}

// NeuralConfig holds controller architecture parameters.
type NeuralConfig struct {
	ActionHidden     int     `yaml:"action_hidden"`
	PredictionHidden int     `yaml:"prediction_hidden"`
	InitSigma        float64 `yaml:"init_sigma"` // Std-dev of the random initial weights
}

// EvolutionConfig holds optimizer and evaluation parameters.
type EvolutionConfig struct {
	StepSize       float64   `yaml:"step_size"`
	Population     int       `yaml:"population"`
	MaxGenerations int       `yaml:"max_generations"`
	FitnessLength  int       `yaml:"fitness_length"`   // Ticks per candidate run
	ScoreLength    int       `yaml:"score_length"`     // Ticks per post-evolution scoring run
	RunsPerFitness int       `yaml:"runs_per_fitness"` // Runs averaged per candidate
	Runs           int       `yaml:"runs"`             // Independent evolutions per ring length
	Lengths        []float64 `yaml:"lengths"`          // Ring lengths to sweep (empty = world.ring_length)
	Workers        int       `yaml:"workers"`
	HallOfFame     int       `yaml:"hall_of_fame"`
	Seed           int64     `yaml:"seed"`
}

// DisplayConfig holds the 2-D projection used by external viewers.
type DisplayConfig struct {
	Radius   float64 `yaml:"radius"` // Clamped so the ring stays inside the viewport
	CenterX  float64 `yaml:"center_x"`
	CenterY  float64 `yaml:"center_y"`
	Rotation float64 `yaml:"rotation"` // Screen angle of ring position 0, radians
}

// TelemetryConfig holds output parameters.
type TelemetryConfig struct {
	OutputDir  string `yaml:"output_dir"`
	Prefix     string `yaml:"prefix"`
	PerfWindow int    `yaml:"perf_window"`
}

// StorageConfig selects the controller store backend.
type StorageConfig struct {
	Kind string `yaml:"kind"` // memory | sqlite
	Path string `yaml:"path"`
}

// DerivedConfig holds computed values derived from the loaded config.
type DerivedConfig struct {
	NbSensors       int     // len(Agents.Sensors)
	ObservationSize int     // 1 + 2*NbSensors
	PredictionSize  int     // 2*NbSensors
	OuterRange      float64 // High of the last sensor band
	HistoryLength   int     // Effective position history horizon
	Workers         int     // Effective evaluation workers
}

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid config")

// global holds the loaded configuration.
var global *Config

// Init loads configuration from the given path, or uses embedded defaults if path is empty.
// Must be called before Cfg().
func Init(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	global = cfg
	return nil
}

// MustInit is like Init but panics on error.
func MustInit(path string) {
	if err := Init(path); err != nil {
		panic(fmt.Sprintf("config: failed to initialize: %v", err))
	}
}

// Cfg returns the global configuration. Panics if Init was not called.
func Cfg() *Config {
	if global == nil {
		panic("config: Cfg() called before Init()")
	}
	return global
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Unmarshal into same struct - only overwrites fields present in file
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.ComputeDerived()

	return cfg, nil
}

// Validate checks the invariants the simulation relies on.
func (c *Config) Validate() error {
	if c.World.RingLength <= 0 {
		return fmt.Errorf("%w: world.ring_length must be positive, got %v", ErrInvalid, c.World.RingLength)
	}
	if c.World.Directions < 1 {
		return fmt.Errorf("%w: world.directions must be >= 1, got %d", ErrInvalid, c.World.Directions)
	}
	if c.Agents.Speed < 0 {
		return fmt.Errorf("%w: agents.speed must be >= 0", ErrInvalid)
	}
	if len(c.Agents.Sensors) == 0 {
		return fmt.Errorf("%w: at least one sensor band is required", ErrInvalid)
	}
	prevHigh := 0.0
	for i, s := range c.Agents.Sensors {
		if s.Low < 0 || s.High <= s.Low {
			return fmt.Errorf("%w: sensor %d has empty band [%v, %v)", ErrInvalid, i, s.Low, s.High)
		}
		if i > 0 && s.Low < prevHigh {
			return fmt.Errorf("%w: sensor %d overlaps sensor %d", ErrInvalid, i, i-1)
		}
		prevHigh = s.High
	}
	for _, l := range c.Evolution.Lengths {
		if l <= 0 {
			return fmt.Errorf("%w: evolution.lengths entries must be positive, got %v", ErrInvalid, l)
		}
	}
	if c.Evolution.RunsPerFitness < 1 {
		return fmt.Errorf("%w: evolution.runs_per_fitness must be >= 1", ErrInvalid)
	}
	return nil
}

// ComputeDerived calculates values derived from loaded config.
// Callers that modify fields after Load must call it again.
func (c *Config) ComputeDerived() {
	n := len(c.Agents.Sensors)
	c.Derived.NbSensors = n
	c.Derived.ObservationSize = 1 + 2*n
	c.Derived.PredictionSize = 2 * n
	if n > 0 {
		c.Derived.OuterRange = c.Agents.Sensors[n-1].High
	}

	// History must cover the longest run so that covered-distance lookups succeed
	hist := c.Agents.HistoryLength
	if hist <= 0 {
		hist = c.Evolution.ScoreLength
		if c.Evolution.FitnessLength > hist {
			hist = c.Evolution.FitnessLength
		}
	}
	// and long enough to look back the half-ring crossing time of every swept length
	if c.Agents.Speed > 0 {
		for _, l := range c.RingLengths() {
			if tau := int(math.Ceil(0.5 * l / c.Agents.Speed)); tau > hist {
				hist = tau
			}
		}
	}
	if hist < 1 {
		hist = 1
	}
	c.Derived.HistoryLength = hist

	workers := c.Evolution.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	c.Derived.Workers = workers
}

// RingLengths returns the ring lengths an evolution sweep covers.
func (c *Config) RingLengths() []float64 {
	if len(c.Evolution.Lengths) == 0 {
		return []float64{c.World.RingLength}
	}
	return c.Evolution.Lengths
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	out := *c
	out.Agents.Sensors = append([]SensorConfig(nil), c.Agents.Sensors...)
	out.Evolution.Lengths = append([]float64(nil), c.Evolution.Lengths...)
	return &out
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
