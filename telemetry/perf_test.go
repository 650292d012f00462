package telemetry

import (
	"testing"
	"time"
)

func TestPerfCollector_BasicTiming(t *testing.T) {
	pc := NewPerfCollector(10)

	for i := 0; i < 5; i++ {
		pc.StartTick()
		pc.StartPhase(PhaseDecide)
		time.Sleep(100 * time.Microsecond)
		pc.StartPhase(PhaseMove)
		time.Sleep(50 * time.Microsecond)
		pc.StartPhase(PhaseSense)
		time.Sleep(200 * time.Microsecond)
		pc.EndTick()
	}

	stats := pc.Stats()
	if stats.Samples != 5 {
		t.Errorf("Samples = %d, want 5", stats.Samples)
	}
	if stats.AvgTickDuration <= 0 {
		t.Error("expected positive average tick duration")
	}
	if stats.MinTickDuration > stats.AvgTickDuration || stats.AvgTickDuration > stats.MaxTickDuration {
		t.Errorf("min/avg/max out of order: %v %v %v", stats.MinTickDuration, stats.AvgTickDuration, stats.MaxTickDuration)
	}
	for _, phase := range []Phase{PhaseDecide, PhaseMove, PhaseSense} {
		if stats.PhaseAvg[phase] <= 0 {
			t.Errorf("expected %s phase to be tracked", phase)
		}
	}
	if pc.Ticks() != 5 {
		t.Errorf("Ticks() = %d, want 5", pc.Ticks())
	}
}

func TestPerfCollector_RollingWindow(t *testing.T) {
	pc := NewPerfCollector(5)

	for i := 0; i < 10; i++ {
		pc.StartTick()
		pc.StartPhase(PhaseSense)
		time.Sleep(10 * time.Microsecond)
		pc.EndTick()
	}

	stats := pc.Stats()
	if stats.Samples != 5 {
		t.Errorf("Samples = %d, want the window size 5", stats.Samples)
	}
	if stats.TicksPerSecond <= 0 {
		t.Error("expected positive ticks per second")
	}
	if pc.Ticks() != 10 {
		t.Errorf("Ticks() = %d, want 10 (window does not cap the total)", pc.Ticks())
	}
}

func TestPerfCollector_PhasePercentages(t *testing.T) {
	pc := NewPerfCollector(10)

	for i := 0; i < 5; i++ {
		pc.StartTick()
		pc.StartPhase(PhaseMove)
		time.Sleep(10 * time.Microsecond)
		pc.StartPhase(PhaseSense)
		time.Sleep(500 * time.Microsecond)
		pc.EndTick()
	}

	stats := pc.Stats()
	if stats.PhasePct[PhaseSense] <= stats.PhasePct[PhaseMove] {
		t.Errorf("expected sense (%v%%) > move (%v%%)", stats.PhasePct[PhaseSense], stats.PhasePct[PhaseMove])
	}
	if stats.PhaseAvg[PhaseDecide] != 0 {
		t.Errorf("untimed decide phase = %v", stats.PhaseAvg[PhaseDecide])
	}

	row := stats.Record(pc.Ticks())
	if row.WindowEnd != 5 || row.SensePct != stats.PhasePct[PhaseSense] {
		t.Errorf("Record = %+v", row)
	}
}

func TestPerfCollector_EmptyStats(t *testing.T) {
	stats := NewPerfCollector(10).Stats()
	if stats.Samples != 0 || stats.AvgTickDuration != 0 || stats.TicksPerSecond != 0 {
		t.Errorf("expected zero stats for empty collector, got %+v", stats)
	}
}

func TestPhaseString(t *testing.T) {
	tests := []struct {
		phase Phase
		want  string
	}{
		{PhaseDecide, "decide"},
		{PhaseMove, "move"},
		{PhaseSense, "sense"},
		{NumPhases, "unknown"},
	}
	for _, tt := range tests {
		if got := tt.phase.String(); got != tt.want {
			t.Errorf("Phase(%d).String() = %q, want %q", int(tt.phase), got, tt.want)
		}
	}
}
