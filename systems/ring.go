// Package systems provides the per-tick phases of the ring simulation.
package systems

import (
	"math"
	"math/rand"
)

// Topology is the geometry agents live on.
type Topology interface {
	// InitPosition draws a uniform starting coordinate.
	InitPosition(rng *rand.Rand) float64
	// Move returns pos displaced by delta, folded back into the domain.
	Move(pos, delta float64) float64
	// Detect appends to dst the signed differences mine - image for every
	// image of other that sensing must consider.
	Detect(dst []float64, mine, other float64) []float64
	// Length returns the domain length.
	Length() float64
}

// Ring is a closed 1-D domain of circumference L with periodic boundary.
type Ring struct {
	L float64
}

// InitPosition draws a coordinate in [0, L).
func (r Ring) InitPosition(rng *rand.Rand) float64 {
	return Wrap(rng.Float64()*r.L, r.L)
}

// Move returns Wrap(pos+delta).
func (r Ring) Move(pos, delta float64) float64 {
	return Wrap(pos+delta, r.L)
}

// Detect appends mine minus each of the three periodic images of other.
func (r Ring) Detect(dst []float64, mine, other float64) []float64 {
	for _, img := range Images(other, r.L) {
		dst = append(dst, mine-img)
	}
	return dst
}

// Length returns L.
func (r Ring) Length() float64 { return r.L }

// Wrap folds x into [0, L).
func Wrap(x, L float64) float64 {
	x = math.Mod(x, L)
	if x < 0 {
		x += L
	}
	// x+L can round up to exactly L for tiny negative x
	if x >= L {
		x = 0
	}
	return x
}

// Images returns the three periodic images of x: x-L, x, x+L.
func Images(x, L float64) [3]float64 {
	return [3]float64{x - L, x, x + L}
}

// WrappedDistance returns the shortest distance between a and b along the ring.
func WrappedDistance(a, b, L float64) float64 {
	d := math.Abs(Wrap(a, L) - Wrap(b, L))
	if L-d < d {
		return L - d
	}
	return d
}
