package telemetry

import (
	"log/slog"
	"time"

	"gonum.org/v1/gonum/floats"
)

// Phase identifies one part of a world step.
type Phase int

// Step phases in execution order.
const (
	PhaseDecide Phase = iota
	PhaseMove
	PhaseSense
	NumPhases
)

var phaseNames = [NumPhases]string{"decide", "move", "sense"}

func (p Phase) String() string {
	if p < 0 || p >= NumPhases {
		return "unknown"
	}
	return phaseNames[p]
}

// PhaseDurations holds one duration per step phase.
type PhaseDurations [NumPhases]time.Duration

// PerfCollector keeps the last windowSize step timings in a ring buffer.
// Attach one collector per world; it is not safe for concurrent use.
type PerfCollector struct {
	ticks  []float64 // Tick durations in nanoseconds
	phases [NumPhases][]float64
	next   int
	filled int
	total  int64

	tickStart  time.Time
	phaseStart time.Time
	current    Phase
	inPhase    bool
	pending    PhaseDurations
}

// NewPerfCollector creates a collector averaging over windowSize ticks.
func NewPerfCollector(windowSize int) *PerfCollector {
	if windowSize < 1 {
		windowSize = 100
	}
	p := &PerfCollector{ticks: make([]float64, windowSize)}
	for i := range p.phases {
		p.phases[i] = make([]float64, windowSize)
	}
	return p
}

// StartTick begins timing a new tick.
func (p *PerfCollector) StartTick() {
	p.tickStart = time.Now()
	p.pending = PhaseDurations{}
	p.inPhase = false
}

// StartPhase closes the running phase, if any, and starts timing phase.
func (p *PerfCollector) StartPhase(phase Phase) {
	now := time.Now()
	p.closePhase(now)
	p.phaseStart = now
	p.current = phase
	p.inPhase = true
}

func (p *PerfCollector) closePhase(now time.Time) {
	if p.inPhase {
		p.pending[p.current] += now.Sub(p.phaseStart)
	}
}

// EndTick closes the running phase and stores the tick in the window.
func (p *PerfCollector) EndTick() {
	now := time.Now()
	p.closePhase(now)
	p.inPhase = false

	p.ticks[p.next] = float64(now.Sub(p.tickStart))
	for i, d := range p.pending {
		p.phases[i][p.next] = float64(d)
	}
	p.next = (p.next + 1) % len(p.ticks)
	if p.filled < len(p.ticks) {
		p.filled++
	}
	p.total++
}

// Ticks returns the number of ticks recorded since creation.
func (p *PerfCollector) Ticks() int64 { return p.total }

// PerfStats aggregates the timings of the current window.
type PerfStats struct {
	Samples         int
	AvgTickDuration time.Duration
	MinTickDuration time.Duration
	MaxTickDuration time.Duration
	TicksPerSecond  float64

	PhaseAvg PhaseDurations
	PhasePct [NumPhases]float64 // Share of the average tick, in percent
}

// Stats computes aggregated statistics over the current window.
func (p *PerfCollector) Stats() PerfStats {
	n := p.filled
	if n == 0 {
		return PerfStats{}
	}
	window := p.ticks[:n]
	avg := floats.Sum(window) / float64(n)

	s := PerfStats{
		Samples:         n,
		AvgTickDuration: time.Duration(avg),
		MinTickDuration: time.Duration(floats.Min(window)),
		MaxTickDuration: time.Duration(floats.Max(window)),
	}
	if avg > 0 {
		s.TicksPerSecond = float64(time.Second) / avg
	}
	for i := range p.phases {
		phaseAvg := floats.Sum(p.phases[i][:n]) / float64(n)
		s.PhaseAvg[i] = time.Duration(phaseAvg)
		if avg > 0 {
			s.PhasePct[i] = phaseAvg / avg * 100
		}
	}
	return s
}

// LogStats logs the window summary, omitting phases below 0.1%.
func (s PerfStats) LogStats() {
	attrs := []any{
		"avg_tick_us", s.AvgTickDuration.Microseconds(),
		"max_tick_us", s.MaxTickDuration.Microseconds(),
		"ticks_per_sec", int(s.TicksPerSecond),
	}
	for i, pct := range s.PhasePct {
		if pct > 0.1 {
			attrs = append(attrs, Phase(i).String()+"_pct", int(pct*10)/10.0)
		}
	}
	slog.Info("perf", attrs...)
}

// LogValue implements slog.LogValuer.
func (s PerfStats) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Int("samples", s.Samples),
		slog.Int64("avg_tick_us", s.AvgTickDuration.Microseconds()),
		slog.Int64("min_tick_us", s.MinTickDuration.Microseconds()),
		slog.Int64("max_tick_us", s.MaxTickDuration.Microseconds()),
		slog.Float64("ticks_per_sec", s.TicksPerSecond),
	}
	for i, pct := range s.PhasePct {
		attrs = append(attrs, slog.Float64(Phase(i).String()+"_pct", pct))
	}
	return slog.GroupValue(attrs...)
}

// PerfRecord is one row of perf.csv.
type PerfRecord struct {
	WindowEnd   int64   `csv:"window_end"`
	Samples     int     `csv:"samples"`
	AvgTickUS   int64   `csv:"avg_tick_us"`
	MinTickUS   int64   `csv:"min_tick_us"`
	MaxTickUS   int64   `csv:"max_tick_us"`
	TicksPerSec float64 `csv:"ticks_per_sec"`
	DecidePct   float64 `csv:"decide_pct"`
	MovePct     float64 `csv:"move_pct"`
	SensePct    float64 `csv:"sense_pct"`
}

// Record flattens the stats of the window ending at tick windowEnd.
func (s PerfStats) Record(windowEnd int64) PerfRecord {
	return PerfRecord{
		WindowEnd:   windowEnd,
		Samples:     s.Samples,
		AvgTickUS:   s.AvgTickDuration.Microseconds(),
		MinTickUS:   s.MinTickDuration.Microseconds(),
		MaxTickUS:   s.MaxTickDuration.Microseconds(),
		TicksPerSec: s.TicksPerSecond,
		DecidePct:   s.PhasePct[PhaseDecide],
		MovePct:     s.PhasePct[PhaseMove],
		SensePct:    s.PhasePct[PhaseSense],
	}
}
