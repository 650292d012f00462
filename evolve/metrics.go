package evolve

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/pthm-cable/ringsoup/agent"
	"github.com/pthm-cable/ringsoup/genome"
	"github.com/pthm-cable/ringsoup/systems"
)

// referenceFlags normalises the summed flag entropy of one agent.
const referenceFlags = 4

// BinaryEntropy returns the Shannon entropy in bits of a Bernoulli(p) variable.
// p is clamped to [0, 1]; BinaryEntropy(0) = BinaryEntropy(1) = 0.
func BinaryEntropy(p float64) float64 {
	p = math.Max(0, math.Min(1, p))
	return stat.Entropy([]float64{p, 1 - p}) / math.Ln2
}

// ErrShortHistory is returned when an agent's history horizon cannot reach
// back the ticks a metric needs.
var ErrShortHistory = errors.New("history horizon too short")

// CoveredDistance measures how far agents travel in the time needed to cross
// half the ring at cruising speed. For each agent the distance between its
// current position and its position tau ticks earlier is averaged and divided
// by tau, where tau = 0.5 * ringLength / speed of the first agent.
//
// A run shorter than tau clamps the look-back to the oldest recorded position.
// A history horizon shorter than tau yields ErrShortHistory.
func CoveredDistance(agents []*agent.Agent, ringLength float64) (float64, error) {
	if len(agents) == 0 {
		return 0, fmt.Errorf("covered distance: %w", genome.ErrEmptyPopulation)
	}
	speed := agents[0].Speed
	if speed <= 0 {
		return 0, fmt.Errorf("covered distance: speed must be positive, got %v", speed)
	}
	tau := 0.5 * ringLength / speed

	back := int(tau) - 1
	if back < 0 {
		back = 0
	}
	var sum float64
	for _, a := range agents {
		if a.History.Cap() < back+1 {
			return 0, fmt.Errorf("covered distance: agent %d: %w: keeps %d positions, needs %d",
				a.ID, ErrShortHistory, a.History.Cap(), back+1)
		}
		then, ok := a.History.Back(back)
		if !ok {
			then = a.Position
		}
		sum += math.Abs(a.Position - then)
	}
	return sum / (float64(len(agents)) * tau), nil
}

// SensorEntropy averages the binary entropy of every activation flag over the
// run and normalises it against four reference flags per agent.
func SensorEntropy(agents []*agent.Agent, runLength int) (float64, error) {
	if len(agents) == 0 {
		return 0, fmt.Errorf("sensor entropy: %w", genome.ErrEmptyPopulation)
	}
	if runLength <= 0 {
		return 0, fmt.Errorf("sensor entropy: run length must be positive, got %d", runLength)
	}
	var sum float64
	for _, a := range agents {
		for _, c := range a.ActivationCounts {
			sum += BinaryEntropy(float64(c) / float64(runLength))
		}
	}
	return sum / float64(referenceFlags*len(agents)), nil
}

// LargestClusterRatio returns the share of agents in the largest cluster.
// Agents are sorted by position; neighbours in that order, including the pair
// across the wrap point, share a cluster when their ring distance is at most
// outerRange.
func LargestClusterRatio(agents []*agent.Agent, ringLength, outerRange float64) (float64, error) {
	n := len(agents)
	if n == 0 {
		return 0, fmt.Errorf("cluster ratio: %w", genome.ErrEmptyPopulation)
	}
	pos := make([]float64, n)
	for i, a := range agents {
		pos[i] = a.Position
	}
	sort.Float64s(pos)

	// linked[i]: pos[i] and its successor are in the same cluster
	linked := make([]bool, n)
	brk := -1
	for i := range pos {
		d := systems.WrappedDistance(pos[i], pos[(i+1)%n], ringLength)
		linked[i] = n > 1 && d <= outerRange
		if !linked[i] && brk < 0 {
			brk = i
		}
	}
	if brk < 0 {
		return 1, nil
	}

	// Walk once around the ring starting just after a break
	largest, size := 0, 0
	for k := 1; k <= n; k++ {
		i := (brk + k) % n
		size++
		if !linked[i] {
			largest = max(largest, size)
			size = 0
		}
	}
	return float64(largest) / float64(n), nil
}
