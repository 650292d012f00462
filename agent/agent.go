// Package agent holds the per-agent state of the ring simulation.
package agent

import (
	"math/rand"
)

// ID identifies an agent within its genome.
type ID uint32

// SensorRange is a half-open distance band [Low, High).
type SensorRange struct {
	Low  float64 `json:"low" yaml:"low"`
	High float64 `json:"high" yaml:"high"`
}

// Contains reports whether Low <= d < High.
func (r SensorRange) Contains(d float64) bool {
	return d >= r.Low && d < r.High
}

// Sensor is a distance band with its current front/back activation.
type Sensor struct {
	SensorRange
	Front bool // A neighbour ahead of (or level with) the agent is in range
	Back  bool // A neighbour behind the agent is in range
}

// Params are the construction parameters shared by every agent of a genome.
type Params struct {
	Speed        float64
	Noise        float64
	Sensors      []SensorRange // Nearest band first
	NbDirections int
	HistoryLen   int
}

// Agent is one simulated individual on the ring.
type Agent struct {
	ID           ID
	Position     float64 // In [0, ring length) after any world step
	Direction    int     // Index into the displacement table
	NbDirections int
	Speed        float64
	Noise        float64
	Sensors      []Sensor

	// Predicted holds the last forecast flags, ordered front0, back0, front1, back1, ...
	Predicted []bool
	// Surprise counts matched predictions since the last reset.
	Surprise int
	History  *History
	// ActivationCounts counts ticks each flag was on, same order as Predicted.
	ActivationCounts []int
	// Recurrent is the prediction controller state carried between ticks.
	Recurrent []float64

	flags []bool
}

// New creates an agent at position 0 facing direction 0.
func New(id ID, p Params) *Agent {
	nbDirections := p.NbDirections
	if nbDirections < 1 {
		nbDirections = 1
	}
	a := &Agent{
		ID:               id,
		NbDirections:     nbDirections,
		Speed:            p.Speed,
		Noise:            p.Noise,
		Sensors:          make([]Sensor, len(p.Sensors)),
		Predicted:        make([]bool, 2*len(p.Sensors)),
		ActivationCounts: make([]int, 2*len(p.Sensors)),
		History:          NewHistory(p.HistoryLen),
		flags:            make([]bool, 2*len(p.Sensors)),
	}
	for i, r := range p.Sensors {
		a.Sensors[i].SensorRange = r
	}
	return a
}

// Reset re-randomises the direction, places the agent at position and clears
// all run state. Identity and parameters are kept.
func (a *Agent) Reset(rng *rand.Rand, position float64) {
	a.Direction = rng.Intn(a.NbDirections)
	a.Position = position
	a.Surprise = 0
	a.History.Clear()
	a.History.Push(a.Position)
	a.ClearActivations()
	for i := range a.Predicted {
		a.Predicted[i] = false
		a.ActivationCounts[i] = 0
	}
	for i := range a.Recurrent {
		a.Recurrent[i] = 0
	}
}

// MoveTo sets the position and records it in the history.
func (a *Agent) MoveTo(x float64) {
	a.Position = x
	a.History.Push(x)
}

// Displacement returns the signed unit step of the current direction.
func (a *Agent) Displacement() float64 {
	return Displacement(a.Direction, a.NbDirections)
}

// Displacement maps a direction index onto evenly spaced steps in [-1, 1].
// Two directions give {-1, +1}; a single direction is stationary.
func Displacement(direction, nbDirections int) float64 {
	if nbDirections < 2 {
		return 0
	}
	return -1 + 2*float64(direction)/float64(nbDirections-1)
}

// Activation returns the sensor flags flattened as front0, back0, front1, back1, ...
// The slice is reused by the next call.
func (a *Agent) Activation() []bool {
	for i, s := range a.Sensors {
		a.flags[2*i] = s.Front
		a.flags[2*i+1] = s.Back
	}
	return a.flags
}

// ClearActivations turns every sensor off.
func (a *Agent) ClearActivations() {
	for i := range a.Sensors {
		a.Sensors[i].Front = false
		a.Sensors[i].Back = false
	}
}

// AllActivated reports whether every flag of every sensor is on.
func (a *Agent) AllActivated() bool {
	for _, s := range a.Sensors {
		if !s.Front || !s.Back {
			return false
		}
	}
	return true
}

// CountActivations adds the current flags to ActivationCounts.
func (a *Agent) CountActivations() {
	for i, f := range a.Activation() {
		if f {
			a.ActivationCounts[i]++
		}
	}
}

// Matches counts the flags whose prediction equals the current activation.
func (a *Agent) Matches() int {
	n := 0
	for i, f := range a.Activation() {
		if a.Predicted[i] == f {
			n++
		}
	}
	return n
}

// OuterRange returns the High bound of the farthest sensor, or 0 without sensors.
func (a *Agent) OuterRange() float64 {
	if len(a.Sensors) == 0 {
		return 0
	}
	return a.Sensors[len(a.Sensors)-1].High
}
