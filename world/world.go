// Package world hosts genomes on a ring and advances them tick by tick.
package world

import (
	"fmt"
	"math/rand"

	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/ringsoup/agent"
	"github.com/pthm-cable/ringsoup/camera"
	"github.com/pthm-cable/ringsoup/components"
	"github.com/pthm-cable/ringsoup/genome"
	"github.com/pthm-cable/ringsoup/systems"
	"github.com/pthm-cable/ringsoup/telemetry"
)

// ErrNotFound is returned for genomes the world does not host.
var ErrNotFound = fmt.Errorf("world: %w", genome.ErrNotFound)

// Options configures a RingWorld.
type Options struct {
	RingLength float64
	Noise      float64    // World movement noise amplitude, added to each agent's own
	Rng        *rand.Rand // Nil uses a source seeded with Seed
	Seed       int64

	// FreezeDirections keeps every agent's direction; the action controller is not consulted.
	FreezeDirections bool

	// Perf receives decide/move/sense timings when set.
	Perf *telemetry.PerfCollector
}

// hosted is the per-genome state kept by the world.
type hosted struct {
	g        *genome.Genome
	entities map[agent.ID]ecs.Entity
	scratch  systems.Scratch
	elapsed  int
}

// RingWorld holds genomes whose agents live on one ring.
// Not safe for concurrent use; callers serialise Step, Run and Reset.
type RingWorld struct {
	world  *ecs.World
	topo   systems.Topology
	noise  float64
	rng    *rand.Rand
	freeze bool
	perf   *telemetry.PerfCollector

	entityMapper *ecs.Map2[components.Position, components.Occupant]
	entityFilter *ecs.Filter2[components.Position, components.Occupant]
	posMap       *ecs.Map1[components.Position]

	hosted map[genome.ID]*hosted
	order  []genome.ID
}

// New creates an empty world.
func New(opts Options) (*RingWorld, error) {
	if opts.RingLength <= 0 {
		return nil, fmt.Errorf("ring length must be positive, got %v", opts.RingLength)
	}
	rng := opts.Rng
	if rng == nil {
		rng = rand.New(rand.NewSource(opts.Seed))
	}

	world := ecs.NewWorld()
	return &RingWorld{
		world:        world,
		topo:         systems.Ring{L: opts.RingLength},
		noise:        opts.Noise,
		rng:          rng,
		freeze:       opts.FreezeDirections,
		perf:         opts.Perf,
		entityMapper: ecs.NewMap2[components.Position, components.Occupant](world),
		entityFilter: ecs.NewFilter2[components.Position, components.Occupant](world),
		posMap:       ecs.NewMap1[components.Position](world),
		hosted:       make(map[genome.ID]*hosted),
	}, nil
}

// RingLength returns the current ring circumference.
func (w *RingWorld) RingLength() float64 { return w.topo.Length() }

// SetRingLength changes the circumference and resets every hosted genome.
func (w *RingWorld) SetRingLength(l float64) error {
	if l <= 0 {
		return fmt.Errorf("ring length must be positive, got %v", l)
	}
	w.topo = systems.Ring{L: l}
	w.ResetAll()
	return nil
}

// AddGenome hosts g and resets its agents onto the ring.
// Genomes whose controllers do not fit their agent parameters are rejected.
func (w *RingWorld) AddGenome(g *genome.Genome) error {
	if _, ok := w.hosted[g.ID]; ok {
		return fmt.Errorf("genome %d already hosted", g.ID)
	}
	if err := g.CheckShape(); err != nil {
		return fmt.Errorf("genome %d: %w", g.ID, err)
	}
	h := &hosted{g: g, entities: make(map[agent.ID]ecs.Entity)}
	w.hosted[g.ID] = h
	w.order = append(w.order, g.ID)
	w.reset(h)
	return nil
}

// RemoveGenome stops hosting a genome and removes its entities.
func (w *RingWorld) RemoveGenome(id genome.ID) error {
	h, err := w.lookup(id)
	if err != nil {
		return err
	}
	for _, e := range h.entities {
		w.world.RemoveEntity(e)
	}
	delete(w.hosted, id)
	for i, gid := range w.order {
		if gid == id {
			w.order = append(w.order[:i], w.order[i+1:]...)
			break
		}
	}
	return nil
}

// Genome returns a hosted genome.
func (w *RingWorld) Genome(id genome.ID) (*genome.Genome, error) {
	h, err := w.lookup(id)
	if err != nil {
		return nil, err
	}
	return h.g, nil
}

// Genomes returns all hosted genomes in the order they were added.
func (w *RingWorld) Genomes() []*genome.Genome {
	out := make([]*genome.Genome, 0, len(w.order))
	for _, id := range w.order {
		out = append(out, w.hosted[id].g)
	}
	return out
}

// AddAgent adds an agent to a hosted genome at a random position and direction.
func (w *RingWorld) AddAgent(id genome.ID, p genome.AgentParams) (*agent.Agent, error) {
	h, err := w.lookup(id)
	if err != nil {
		return nil, err
	}
	a := h.g.AddAgent(p)
	a.Reset(w.rng, w.topo.InitPosition(w.rng))
	w.sync(h)
	return a, nil
}

// RemoveAgent removes an agent from a hosted genome.
func (w *RingWorld) RemoveAgent(id genome.ID, agentID agent.ID) error {
	h, err := w.lookup(id)
	if err != nil {
		return err
	}
	if err := h.g.RemoveAgent(agentID); err != nil {
		return err
	}
	w.sync(h)
	return nil
}

// Place moves an agent to pos (wrapped onto the ring) facing direction,
// then refreshes the genome's sensors.
func (w *RingWorld) Place(id genome.ID, agentID agent.ID, pos float64, direction int) error {
	h, err := w.lookup(id)
	if err != nil {
		return err
	}
	a, err := h.g.Agent(agentID)
	if err != nil {
		return err
	}
	if direction < 0 || direction >= a.NbDirections {
		return fmt.Errorf("direction %d out of range [0, %d)", direction, a.NbDirections)
	}
	agents := w.sync(h)
	x := systems.Wrap(pos, w.topo.Length())
	w.posMap.Get(h.entities[a.ID]).X = x
	a.Position = x
	a.Direction = direction
	a.History.Clear()
	a.History.Push(x)

	systems.Sense(w.topo, agents, w.positions(h), &h.scratch)
	return nil
}

// Step advances one genome by one tick: decide, move, sense.
func (w *RingWorld) Step(id genome.ID) error {
	h, err := w.lookup(id)
	if err != nil {
		return err
	}
	return w.step(h, w.sync(h))
}

// Run advances one genome by length ticks.
func (w *RingWorld) Run(id genome.ID, length int) error {
	h, err := w.lookup(id)
	if err != nil {
		return err
	}
	agents := w.sync(h)
	for i := 0; i < length; i++ {
		if err := w.step(h, agents); err != nil {
			return err
		}
	}
	return nil
}

// Elapsed returns the ticks run by a genome since its last reset.
func (w *RingWorld) Elapsed(id genome.ID) (int, error) {
	h, err := w.lookup(id)
	if err != nil {
		return 0, err
	}
	return h.elapsed, nil
}

// Reset re-randomises every agent of a genome and clears its run state.
func (w *RingWorld) Reset(id genome.ID) error {
	h, err := w.lookup(id)
	if err != nil {
		return err
	}
	w.reset(h)
	return nil
}

// ResetAll resets every hosted genome.
func (w *RingWorld) ResetAll() {
	for _, id := range w.order {
		w.reset(w.hosted[id])
	}
}

// Evaluate resets a genome, runs it for length ticks and returns its fitness.
func (w *RingWorld) Evaluate(id genome.ID, length int) (float64, error) {
	h, err := w.lookup(id)
	if err != nil {
		return 0, err
	}
	w.reset(h)
	agents := w.sync(h)
	for i := 0; i < length; i++ {
		if err := w.step(h, agents); err != nil {
			return 0, err
		}
	}
	return h.g.ComputeFitness(length)
}

// AgentPositions returns the positions of a genome's agents in ascending agent id order.
func (w *RingWorld) AgentPositions(id genome.ID) ([]float64, error) {
	h, err := w.lookup(id)
	if err != nil {
		return nil, err
	}
	agents := w.sync(h)
	out := make([]float64, len(agents))
	for i, a := range agents {
		out[i] = w.posMap.Get(h.entities[a.ID]).X
	}
	return out, nil
}

// Positions projects a genome's agents onto view, in ascending agent id order.
func (w *RingWorld) Positions(id genome.ID, view *camera.RingView) ([]camera.Point, error) {
	pos, err := w.AgentPositions(id)
	if err != nil {
		return nil, err
	}
	return view.ProjectAll(nil, pos, w.topo.Length()), nil
}

func (w *RingWorld) lookup(id genome.ID) (*hosted, error) {
	h, ok := w.hosted[id]
	if !ok {
		return nil, fmt.Errorf("genome %d: %w", id, ErrNotFound)
	}
	return h, nil
}

func (w *RingWorld) step(h *hosted, agents []*agent.Agent) error {
	if w.perf != nil {
		w.perf.StartTick()
		w.perf.StartPhase(telemetry.PhaseDecide)
	}
	action := h.g.Action
	if w.freeze {
		action = nil
	}
	if err := systems.Decide(action, h.g.Prediction, agents, &h.scratch); err != nil {
		return fmt.Errorf("genome %d tick %d: %w", h.g.ID, h.elapsed, err)
	}

	if w.perf != nil {
		w.perf.StartPhase(telemetry.PhaseMove)
	}
	w.move(h)

	if w.perf != nil {
		w.perf.StartPhase(telemetry.PhaseSense)
	}
	systems.Sense(w.topo, agents, w.positions(h), &h.scratch)
	systems.Count(agents)

	if w.perf != nil {
		w.perf.EndTick()
	}
	h.elapsed++
	return nil
}

// move displaces every entity of the genome and mirrors the new coordinate
// into its agent. Entities are visited in storage order, so rng draws follow it.
func (w *RingWorld) move(h *hosted) {
	query := w.entityFilter.Query()
	for query.Next() {
		pos, occ := query.Get()
		if occ.Genome != h.g.ID {
			continue
		}
		pos.X = systems.Displace(w.topo, pos.X, occ.Agent, w.rng, w.noise)
		occ.Agent.MoveTo(pos.X)
	}
}

func (w *RingWorld) reset(h *hosted) {
	agents := w.sync(h)
	for _, a := range agents {
		x := w.topo.InitPosition(w.rng)
		a.Reset(w.rng, x)
		w.posMap.Get(h.entities[a.ID]).X = x
	}
	h.elapsed = 0
	systems.Sense(w.topo, agents, w.positions(h), &h.scratch)
}

// sync reconciles the genome's entities with its current agent set and
// returns the agents in id order. New entities start at their agent's
// position; existing entities keep their own.
func (w *RingWorld) sync(h *hosted) []*agent.Agent {
	agents := h.g.Agents()
	for _, a := range agents {
		if _, ok := h.entities[a.ID]; ok {
			continue
		}
		pos := components.Position{X: a.Position}
		occ := components.Occupant{Genome: h.g.ID, Agent: a}
		h.entities[a.ID] = w.entityMapper.NewEntity(&pos, &occ)
	}

	// Every agent now has an entity; any extra entity belongs to a removed agent
	if len(h.entities) > len(agents) {
		live := make(map[agent.ID]bool, len(agents))
		for _, a := range agents {
			live[a.ID] = true
		}
		for id, e := range h.entities {
			if !live[id] {
				w.world.RemoveEntity(e)
				delete(h.entities, id)
			}
		}
	}
	return agents
}

// positions collects the coordinates of the genome's entities.
func (w *RingWorld) positions(h *hosted) []float64 {
	out := h.scratch.Positions[:0]
	query := w.entityFilter.Query()
	for query.Next() {
		pos, occ := query.Get()
		if occ.Genome == h.g.ID {
			out = append(out, pos.X)
		}
	}
	h.scratch.Positions = out
	return out
}
