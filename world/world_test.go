package world

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/pthm-cable/ringsoup/camera"
	"github.com/pthm-cable/ringsoup/config"
	"github.com/pthm-cable/ringsoup/genome"
	"github.com/pthm-cable/ringsoup/neural"
	"github.com/pthm-cable/ringsoup/systems"
	"github.com/pthm-cable/ringsoup/telemetry"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("loading defaults: %v", err)
	}
	return cfg
}

func testGenome(t *testing.T, cfg *config.Config, alloc *genome.IDAllocator, seed int64) *genome.Genome {
	t.Helper()
	g, err := genome.FromConfig(alloc, "test", cfg, rand.New(rand.NewSource(seed)))
	if err != nil {
		t.Fatalf("FromConfig failed: %v", err)
	}
	return g
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}

func TestFixedDirectionScenario(t *testing.T) {
	cfg := testConfig(t)
	cfg.Agents.Count = 2
	cfg.Agents.Speed = 0.25
	cfg.Agents.Noise = 0
	g := testGenome(t, cfg, genome.NewIDAllocator(), 42)

	w, err := New(Options{RingLength: 10, FreezeDirections: true, Seed: 42})
	if err != nil {
		t.Fatal(err)
	}
	if err := w.AddGenome(g); err != nil {
		t.Fatal(err)
	}
	if err := w.Place(g.ID, 1, 0, 0); err != nil {
		t.Fatal(err)
	}
	if err := w.Place(g.ID, 2, 5, 1); err != nil {
		t.Fatal(err)
	}

	if err := w.Step(g.ID); err != nil {
		t.Fatal(err)
	}

	pos, err := w.AgentPositions(g.ID)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(pos[0]-9.75) > 1e-12 || math.Abs(pos[1]-5.25) > 1e-12 {
		t.Errorf("positions after one tick = %v, want [9.75 5.25]", pos)
	}
}

func TestSensorScenario(t *testing.T) {
	tests := []struct {
		name     string
		distance float64
		sensor   int
	}{
		{"inner", 0.3, 0},
		{"outer", 0.7, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			cfg.Agents.Count = 2
			g := testGenome(t, cfg, genome.NewIDAllocator(), 42)
			w, _ := New(Options{RingLength: 25, Seed: 1})
			if err := w.AddGenome(g); err != nil {
				t.Fatal(err)
			}
			must(t, w.Place(g.ID, 1, 3, 0))
			must(t, w.Place(g.ID, 2, 3+tt.distance, 0))

			trailing, _ := g.Agent(1)
			leading, _ := g.Agent(2)
			for i, s := range trailing.Sensors {
				wantFront := i == tt.sensor
				if s.Front != wantFront || s.Back {
					t.Errorf("trailing sensor %d = front %v back %v", i, s.Front, s.Back)
				}
			}
			for i, s := range leading.Sensors {
				wantBack := i == tt.sensor
				if s.Back != wantBack || s.Front {
					t.Errorf("leading sensor %d = front %v back %v", i, s.Front, s.Back)
				}
			}
		})
	}
}

func TestPositionsStayOnRing(t *testing.T) {
	cfg := testConfig(t)
	cfg.Agents.Noise = 0.5
	g := testGenome(t, cfg, genome.NewIDAllocator(), 7)

	w, _ := New(Options{RingLength: 3, Noise: 0.5, Seed: 3})
	if err := w.AddGenome(g); err != nil {
		t.Fatal(err)
	}

	for tick := 0; tick < 300; tick++ {
		if err := w.Step(g.ID); err != nil {
			t.Fatal(err)
		}
		pos, _ := w.AgentPositions(g.ID)
		for i, a := range g.Agents() {
			if a.Position < 0 || a.Position >= 3 {
				t.Fatalf("tick %d: agent %d at %v", tick, a.ID, a.Position)
			}
			if pos[i] != a.Position {
				t.Fatalf("tick %d: entity position %v differs from agent %v", tick, pos[i], a.Position)
			}
		}
	}
}

func TestSurpriseBoundedPerTick(t *testing.T) {
	cfg := testConfig(t)
	g := testGenome(t, cfg, genome.NewIDAllocator(), 11)
	w, _ := New(Options{RingLength: 5, Seed: 5})
	if err := w.AddGenome(g); err != nil {
		t.Fatal(err)
	}

	maxPerTick := 2 * cfg.Derived.NbSensors
	prev := make(map[uint32]int)
	for tick := 0; tick < 100; tick++ {
		must(t, w.Step(g.ID))
		for _, a := range g.Agents() {
			d := a.Surprise - prev[uint32(a.ID)]
			if d < 0 || d > maxPerTick {
				t.Fatalf("tick %d: agent %d surprise moved by %d", tick, a.ID, d)
			}
			prev[uint32(a.ID)] = a.Surprise
		}
	}

	elapsed, _ := w.Elapsed(g.ID)
	if elapsed != 100 {
		t.Errorf("Elapsed = %d, want 100", elapsed)
	}
	f, err := g.ComputeFitness(elapsed)
	if err != nil {
		t.Fatal(err)
	}
	if f < 0 || f > float64(maxPerTick) {
		t.Errorf("fitness %v outside [0, %d]", f, maxPerTick)
	}
}

func TestEvaluateDeterministic(t *testing.T) {
	cfg := testConfig(t)
	run := func() float64 {
		g := testGenome(t, cfg, genome.NewIDAllocator(), 21)
		w, _ := New(Options{RingLength: 25, Seed: 99})
		if err := w.AddGenome(g); err != nil {
			t.Fatal(err)
		}
		f, err := w.Evaluate(g.ID, 50)
		if err != nil {
			t.Fatal(err)
		}
		return f
	}

	if a, b := run(), run(); a != b {
		t.Errorf("same seeds gave different fitness: %v vs %v", a, b)
	}
}

func TestActivationCountsMatchRunLength(t *testing.T) {
	cfg := testConfig(t)
	cfg.Agents.Count = 2
	cfg.Agents.Speed = 0
	cfg.Agents.Noise = 0
	g := testGenome(t, cfg, genome.NewIDAllocator(), 42)

	w, _ := New(Options{RingLength: 25, FreezeDirections: true})
	must(t, w.AddGenome(g))
	must(t, w.Place(g.ID, 1, 1, 0))
	must(t, w.Place(g.ID, 2, 1.3, 0))
	must(t, w.Run(g.ID, 20))

	a, _ := g.Agent(1)
	if a.ActivationCounts[0] != 20 {
		t.Errorf("front0 count = %d, want 20", a.ActivationCounts[0])
	}
}

func TestGenomesDoNotSenseEachOther(t *testing.T) {
	cfg := testConfig(t)
	cfg.Agents.Count = 1
	alloc := genome.NewIDAllocator()
	a := testGenome(t, cfg, alloc, 1)
	b := testGenome(t, cfg, alloc, 2)

	w, _ := New(Options{RingLength: 25})
	must(t, w.AddGenome(a))
	must(t, w.AddGenome(b))
	must(t, w.Place(a.ID, 1, 4, 0))
	must(t, w.Place(b.ID, 1, 4.1, 0))

	ag, _ := a.Agent(1)
	for _, f := range ag.Activation() {
		if f {
			t.Fatal("agent sensed an agent of another genome")
		}
	}

	if got := len(w.Genomes()); got != 2 {
		t.Errorf("Genomes() has %d entries, want 2", got)
	}
	if err := w.RemoveGenome(b.ID); err != nil {
		t.Fatal(err)
	}
	if got := len(w.Genomes()); got != 1 {
		t.Errorf("Genomes() has %d entries after removal, want 1", got)
	}
}

func TestNotFound(t *testing.T) {
	w, _ := New(Options{RingLength: 10})

	tests := []struct {
		name string
		call func() error
	}{
		{"step", func() error { return w.Step(42) }},
		{"run", func() error { return w.Run(42, 3) }},
		{"reset", func() error { return w.Reset(42) }},
		{"remove", func() error { return w.RemoveGenome(42) }},
		{"genome", func() error { _, err := w.Genome(42); return err }},
		{"positions", func() error { _, err := w.Positions(42, camera.New(100, 100)); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			if !errors.Is(err, ErrNotFound) {
				t.Errorf("expected ErrNotFound, got %v", err)
			}
			if !errors.Is(err, genome.ErrNotFound) {
				t.Errorf("expected error to wrap genome.ErrNotFound, got %v", err)
			}
		})
	}
}

func TestAgentLifecycle(t *testing.T) {
	cfg := testConfig(t)
	cfg.Agents.Count = 3
	g := testGenome(t, cfg, genome.NewIDAllocator(), 42)
	w, _ := New(Options{RingLength: 10})
	must(t, w.AddGenome(g))

	added, err := w.AddAgent(g.ID, g.Params)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.RemoveAgent(g.ID, 2); err != nil {
		t.Fatal(err)
	}
	if err := w.RemoveAgent(g.ID, 2); !errors.Is(err, genome.ErrNotFound) {
		t.Errorf("second removal: expected ErrNotFound, got %v", err)
	}

	pos, _ := w.AgentPositions(g.ID)
	if len(pos) != 3 {
		t.Fatalf("got %d positions, want 3", len(pos))
	}
	if pos[2] != added.Position {
		t.Errorf("added agent entity at %v, agent at %v", pos[2], added.Position)
	}

	// Removing through the genome directly is picked up on the next step
	must(t, g.RemoveAgent(1))
	must(t, w.Step(g.ID))
	pos, _ = w.AgentPositions(g.ID)
	if len(pos) != 2 {
		t.Errorf("got %d positions after direct removal, want 2", len(pos))
	}
}

func TestSetRingLengthResets(t *testing.T) {
	cfg := testConfig(t)
	g := testGenome(t, cfg, genome.NewIDAllocator(), 42)
	w, _ := New(Options{RingLength: 25})
	must(t, w.AddGenome(g))
	must(t, w.Run(g.ID, 10))

	if err := w.SetRingLength(2); err != nil {
		t.Fatal(err)
	}
	if w.RingLength() != 2 {
		t.Errorf("RingLength() = %v", w.RingLength())
	}
	if e, _ := w.Elapsed(g.ID); e != 0 {
		t.Errorf("Elapsed = %d after resize, want 0", e)
	}
	for _, a := range g.Agents() {
		if a.Position >= 2 || a.Surprise != 0 {
			t.Errorf("agent %d not reset: pos %v surprise %d", a.ID, a.Position, a.Surprise)
		}
	}
	if err := w.SetRingLength(0); err == nil {
		t.Error("expected error for zero ring length")
	}
}

func TestPositionsIsPure(t *testing.T) {
	cfg := testConfig(t)
	g := testGenome(t, cfg, genome.NewIDAllocator(), 42)
	w, _ := New(Options{RingLength: 25})
	must(t, w.AddGenome(g))

	view := &camera.RingView{CenterX: 0, CenterY: 0, Radius: 1}
	before, _ := w.AgentPositions(g.ID)
	pts, err := w.Positions(g.ID, view)
	if err != nil {
		t.Fatal(err)
	}
	after, _ := w.AgentPositions(g.ID)

	if len(pts) != len(before) {
		t.Fatalf("got %d points, want %d", len(pts), len(before))
	}
	for i := range before {
		if before[i] != after[i] {
			t.Fatal("Positions changed simulation state")
		}
		if r := math.Hypot(pts[i].X, pts[i].Y); math.Abs(r-1) > 1e-9 {
			t.Errorf("point %d at radius %v, want 1", i, r)
		}
	}
}

func TestPerfCollectorReceivesPhases(t *testing.T) {
	cfg := testConfig(t)
	g := testGenome(t, cfg, genome.NewIDAllocator(), 42)
	perf := telemetry.NewPerfCollector(10)
	w, _ := New(Options{RingLength: 25, Perf: perf})
	must(t, w.AddGenome(g))
	must(t, w.Run(g.ID, 4))

	if perf.Ticks() != 4 {
		t.Errorf("perf recorded %d ticks, want 4", perf.Ticks())
	}
	stats := perf.Stats()
	for _, phase := range []telemetry.Phase{telemetry.PhaseDecide, telemetry.PhaseMove, telemetry.PhaseSense} {
		if stats.PhaseAvg[phase] <= 0 {
			t.Errorf("phase %s not recorded", phase)
		}
	}
}

func TestEntityPositionDrivesMovement(t *testing.T) {
	cfg := testConfig(t)
	cfg.Agents.Count = 1
	cfg.Agents.Speed = 0.25
	cfg.Agents.Noise = 0
	g := testGenome(t, cfg, genome.NewIDAllocator(), 42)

	w, _ := New(Options{RingLength: 10, FreezeDirections: true})
	must(t, w.AddGenome(g))
	must(t, w.Place(g.ID, 1, 2, 1))

	// Writes to the agent mirror are overwritten by the next tick
	a, _ := g.Agent(1)
	a.Position = 7

	must(t, w.Step(g.ID))
	pos, _ := w.AgentPositions(g.ID)
	if math.Abs(pos[0]-2.25) > 1e-12 {
		t.Errorf("entity at %v, want 2.25", pos[0])
	}
	if a.Position != pos[0] {
		t.Errorf("agent mirror at %v, entity at %v", a.Position, pos[0])
	}
	if last, _ := a.History.Back(0); last != pos[0] {
		t.Errorf("history ends at %v, want %v", last, pos[0])
	}
}

func TestResetDrawsFromTopology(t *testing.T) {
	cfg := testConfig(t)
	cfg.Agents.Count = 5
	g := testGenome(t, cfg, genome.NewIDAllocator(), 42)

	w, _ := New(Options{RingLength: 25, Seed: 9})
	must(t, w.AddGenome(g))

	rng := rand.New(rand.NewSource(9))
	ring := systems.Ring{L: 25}
	pos, _ := w.AgentPositions(g.ID)
	for i, a := range g.Agents() {
		want := ring.InitPosition(rng)
		dir := rng.Intn(a.NbDirections)
		if pos[i] != want || a.Position != want {
			t.Errorf("agent %d at %v (entity %v), want %v", a.ID, a.Position, pos[i], want)
		}
		if a.Direction != dir {
			t.Errorf("agent %d direction %d, want %d", a.ID, a.Direction, dir)
		}
	}
}

func TestAddGenomeRejectsMismatchedControllers(t *testing.T) {
	cfg := testConfig(t)
	g := testGenome(t, cfg, genome.NewIDAllocator(), 42)
	wide, err := neural.NewActionController(cfg.Derived.ObservationSize+4, 4, cfg.World.Directions)
	if err != nil {
		t.Fatal(err)
	}
	g.Action = wide

	w, _ := New(Options{RingLength: 25})
	if err := w.AddGenome(g); !errors.Is(err, neural.ErrShapeMismatch) {
		t.Fatalf("expected ErrShapeMismatch, got %v", err)
	}
	if len(w.Genomes()) != 0 {
		t.Error("mismatched genome was hosted")
	}
}
