// Package genome groups agents that share one pair of controllers.
package genome

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync/atomic"

	"github.com/pthm-cable/ringsoup/agent"
	"github.com/pthm-cable/ringsoup/config"
	"github.com/pthm-cable/ringsoup/neural"
)

var (
	// ErrNotFound is returned for unknown genome or agent ids.
	ErrNotFound = errors.New("not found")
	// ErrEmptyPopulation is returned when a computation needs at least one agent.
	ErrEmptyPopulation = errors.New("empty population")
)

// ID identifies a genome.
type ID uint64

// AgentParams are the construction parameters of a genome's agents.
type AgentParams = agent.Params

// IDAllocator hands out unique genome ids. Safe for concurrent use.
type IDAllocator struct {
	next atomic.Uint64
}

// NewIDAllocator creates an allocator whose first id is 1.
func NewIDAllocator() *IDAllocator {
	return &IDAllocator{}
}

// Next returns the next unique id.
func (a *IDAllocator) Next() ID {
	return ID(a.next.Add(1))
}

// Genome owns the controllers shared by all of its agents.
// Agents never own controllers; they are driven by the genome's.
type Genome struct {
	ID         ID
	Name       string
	Action     *neural.ActionController
	Prediction *neural.PredictionController
	Params     AgentParams // Used by Populate
	Fitness    float64

	agents    map[agent.ID]*agent.Agent
	nextAgent agent.ID
}

// New creates a genome with no agents.
func New(alloc *IDAllocator, name string, action *neural.ActionController, prediction *neural.PredictionController, params AgentParams) *Genome {
	return &Genome{
		ID:         alloc.Next(),
		Name:       name,
		Action:     action,
		Prediction: prediction,
		Params:     params,
		agents:     make(map[agent.ID]*agent.Agent),
	}
}

// ParamsFromConfig builds agent parameters from cfg.
func ParamsFromConfig(cfg *config.Config) AgentParams {
	sensors := make([]agent.SensorRange, len(cfg.Agents.Sensors))
	for i, s := range cfg.Agents.Sensors {
		sensors[i] = agent.SensorRange{Low: s.Low, High: s.High}
	}
	return AgentParams{
		Speed:        cfg.Agents.Speed,
		Noise:        cfg.Agents.Noise,
		Sensors:      sensors,
		NbDirections: cfg.World.Directions,
		HistoryLen:   cfg.Derived.HistoryLength,
	}
}

// Architectures returns the action and prediction architectures for cfg.
func Architectures(cfg *config.Config) (action, prediction neural.Architecture) {
	action = neural.Architecture{
		Inputs:  cfg.Derived.ObservationSize,
		Hidden:  cfg.Neural.ActionHidden,
		Outputs: cfg.World.Directions,
	}
	prediction = neural.Architecture{
		Inputs:    cfg.Derived.ObservationSize,
		Hidden:    cfg.Neural.PredictionHidden,
		Outputs:   cfg.Derived.PredictionSize,
		Recurrent: true,
	}
	return action, prediction
}

// FromConfig creates a genome with randomly initialised controllers and
// cfg.Agents.Count agents. A nil rng leaves all weights at zero.
func FromConfig(alloc *IDAllocator, name string, cfg *config.Config, rng *rand.Rand) (*Genome, error) {
	aa, pa := Architectures(cfg)
	action, err := neural.NewActionController(aa.Inputs, aa.Hidden, aa.Outputs)
	if err != nil {
		return nil, fmt.Errorf("action controller: %w", err)
	}
	prediction, err := neural.NewPredictionController(pa.Inputs, pa.Hidden, pa.Outputs)
	if err != nil {
		return nil, fmt.Errorf("prediction controller: %w", err)
	}
	if rng != nil {
		action.Randomize(rng, cfg.Neural.InitSigma)
		prediction.Randomize(rng, cfg.Neural.InitSigma)
	}

	g := New(alloc, name, action, prediction, ParamsFromConfig(cfg))
	g.Populate(cfg.Agents.Count)
	return g, nil
}

// CheckShape reports, wrapping neural.ErrShapeMismatch, whether a controller
// does not fit the genome's parameters or one of its agents. Nil controllers are skipped.
func (g *Genome) CheckShape() error {
	if err := checkShape(g.Action, g.Prediction, len(g.Params.Sensors), g.Params.NbDirections); err != nil {
		return err
	}
	for _, a := range g.Agents() {
		if err := checkShape(g.Action, g.Prediction, len(a.Sensors), a.NbDirections); err != nil {
			return fmt.Errorf("agent %d: %w", a.ID, err)
		}
	}
	return nil
}

func checkShape(action *neural.ActionController, prediction *neural.PredictionController, sensors, directions int) error {
	obs := 1 + 2*sensors
	if action != nil {
		arch := action.Architecture()
		if arch.Inputs != obs || arch.Outputs != directions {
			return fmt.Errorf("%w: action controller %d-%d-%d, agents need %d inputs and %d directions",
				neural.ErrShapeMismatch, arch.Inputs, arch.Hidden, arch.Outputs, obs, directions)
		}
	}
	if prediction != nil {
		arch := prediction.Architecture()
		if arch.Inputs != obs || arch.Outputs != 2*sensors {
			return fmt.Errorf("%w: prediction controller %d-%d-%d, agents need %d inputs and %d flags",
				neural.ErrShapeMismatch, arch.Inputs, arch.Hidden, arch.Outputs, obs, 2*sensors)
		}
	}
	return nil
}

// AddAgent creates an agent with p and attaches it to the genome.
func (g *Genome) AddAgent(p AgentParams) *agent.Agent {
	g.nextAgent++
	a := agent.New(g.nextAgent, p)
	if g.Prediction != nil {
		a.Recurrent = g.Prediction.NewState()
	}
	g.agents[a.ID] = a
	return a
}

// Populate adds n agents built from the genome's own Params.
func (g *Genome) Populate(n int) []*agent.Agent {
	out := make([]*agent.Agent, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, g.AddAgent(g.Params))
	}
	return out
}

// RemoveAgent detaches an agent.
func (g *Genome) RemoveAgent(id agent.ID) error {
	if _, ok := g.agents[id]; !ok {
		return fmt.Errorf("agent %d in genome %d: %w", id, g.ID, ErrNotFound)
	}
	delete(g.agents, id)
	return nil
}

// Agent returns the agent with the given id.
func (g *Genome) Agent(id agent.ID) (*agent.Agent, error) {
	a, ok := g.agents[id]
	if !ok {
		return nil, fmt.Errorf("agent %d in genome %d: %w", id, g.ID, ErrNotFound)
	}
	return a, nil
}

// Agents returns all agents in ascending id order.
func (g *Genome) Agents() []*agent.Agent {
	out := make([]*agent.Agent, 0, len(g.agents))
	for _, a := range g.agents {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of agents.
func (g *Genome) Len() int { return len(g.agents) }

// ComputeFitness sets and returns Σ surprise / (agents × runLength).
func (g *Genome) ComputeFitness(runLength int) (float64, error) {
	if len(g.agents) == 0 {
		return 0, fmt.Errorf("fitness of genome %d: %w", g.ID, ErrEmptyPopulation)
	}
	if runLength <= 0 {
		return 0, fmt.Errorf("fitness of genome %d: run length must be positive, got %d", g.ID, runLength)
	}
	total := 0
	for _, a := range g.agents {
		total += a.Surprise
	}
	g.Fitness = float64(total) / float64(len(g.agents)*runLength)
	return g.Fitness, nil
}

// Size returns the length of ToVector.
func (g *Genome) Size() int {
	return g.Action.TotalSize() + g.Prediction.TotalSize()
}

// ToVector returns the action parameters followed by the prediction parameters.
func (g *Genome) ToVector() []float64 {
	return append(g.Action.ToVector(), g.Prediction.ToVector()...)
}

// FromVector loads parameters produced by ToVector. The length must match exactly.
func (g *Genome) FromVector(v []float64) error {
	if len(v) != g.Size() {
		return fmt.Errorf("genome %d: %w: got %d parameters, want %d", g.ID, neural.ErrShapeMismatch, len(v), g.Size())
	}
	n := g.Action.TotalSize()
	if err := g.Action.FromVector(v[:n]); err != nil {
		return err
	}
	return g.Prediction.FromVector(v[n:])
}

// Clone returns a new genome with copied controllers and parameters and no agents.
func (g *Genome) Clone(alloc *IDAllocator, name string) *Genome {
	return New(alloc, name, g.Action.Clone(), g.Prediction.Clone(), g.Params)
}

// Materialize returns a clone of g whose parameters are v, populated with n agents.
func (g *Genome) Materialize(alloc *IDAllocator, name string, v []float64, n int) (*Genome, error) {
	out := g.Clone(alloc, name)
	if err := out.FromVector(v); err != nil {
		return nil, err
	}
	out.Populate(n)
	return out, nil
}
