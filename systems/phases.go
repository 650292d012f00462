package systems

import (
	"fmt"
	"math/rand"

	"github.com/pthm-cable/ringsoup/agent"
	"github.com/pthm-cable/ringsoup/neural"
)

// Scratch holds buffers reused across ticks by one caller.
type Scratch struct {
	Obs       []float64
	Positions []float64
	Diffs     []float64
}

// Decide scores each agent's last prediction against its current activation,
// picks a new direction and forecasts the next activation.
//
// A nil action keeps every direction unchanged; a nil prediction leaves
// Predicted untouched. The prediction sees the observation built after the
// direction update. Controllers whose shape does not fit the agents yield an
// error wrapping neural.ErrShapeMismatch and stop the phase.
func Decide(action *neural.ActionController, prediction *neural.PredictionController, agents []*agent.Agent, s *Scratch) error {
	for _, a := range agents {
		a.Surprise += a.Matches()

		s.Obs = neural.Observation(s.Obs, a.Displacement(), a.Activation())
		if action != nil {
			dir, err := action.Decide(s.Obs)
			if err != nil {
				return fmt.Errorf("agent %d: %w", a.ID, err)
			}
			if dir >= a.NbDirections {
				return fmt.Errorf("agent %d: %w: direction %d of %d", a.ID, neural.ErrShapeMismatch, dir, a.NbDirections)
			}
			a.Direction = dir
			s.Obs[0] = a.Displacement()
		}

		if prediction != nil {
			pred, next, err := prediction.Predict(s.Obs, a.Recurrent)
			if err != nil {
				return fmt.Errorf("agent %d: %w", a.ID, err)
			}
			if len(pred) != len(a.Predicted) {
				return fmt.Errorf("agent %d: %w: %d predicted flags, want %d", a.ID, neural.ErrShapeMismatch, len(pred), len(a.Predicted))
			}
			copy(a.Predicted, pred)
			a.Recurrent = next
		}
	}
	return nil
}

// Displace returns the position reached from x by one step of a, plus uniform
// noise of amplitude a.Noise+worldNoise. The agent itself is not modified.
func Displace(topo Topology, x float64, a *agent.Agent, rng *rand.Rand, worldNoise float64) float64 {
	noise := (a.Noise + worldNoise) * (2*rng.Float64() - 1)
	return topo.Move(x, a.Displacement()*a.Speed+noise)
}

// Sense recomputes every agent's sensor flags from positions, which must hold
// the post-move coordinate of every agent of the genome (the agent's own included).
//
// Each agent skips its own coordinate exactly once. For every other position
// and each of its periodic images, the first sensor whose band contains
// |mine - image| turns on Front when the difference is <= 0 and Back otherwise.
// Scanning stops early once all flags are on.
func Sense(topo Topology, agents []*agent.Agent, positions []float64, s *Scratch) {
	for _, a := range agents {
		a.ClearActivations()
		skipped := false

		for _, p := range positions {
			if !skipped && p == a.Position {
				skipped = true
				continue
			}

			s.Diffs = topo.Detect(s.Diffs[:0], a.Position, p)
			for _, diff := range s.Diffs {
				activate(a, diff)
			}
			if a.AllActivated() {
				break
			}
		}
	}
}

// Count adds each agent's current flags to its activation counters.
func Count(agents []*agent.Agent) {
	for _, a := range agents {
		a.CountActivations()
	}
}

func activate(a *agent.Agent, diff float64) {
	d := diff
	if d < 0 {
		d = -d
	}
	for i := range a.Sensors {
		if !a.Sensors[i].Contains(d) {
			continue
		}
		if diff <= 0 {
			a.Sensors[i].Front = true
		} else {
			a.Sensors[i].Back = true
		}
		return
	}
}
