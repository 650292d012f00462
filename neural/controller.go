// Package neural provides the controllers that steer agents and forecast their sensors.
//
// Both controllers are small dense networks whose parameters are exposed as a
// flat vector so that a continuous optimizer can search them directly.
package neural

import (
	"errors"
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// ErrShapeMismatch is returned when a parameter vector does not match a controller's size.
var ErrShapeMismatch = errors.New("parameter vector shape mismatch")

// Architecture describes a controller's layer sizes.
type Architecture struct {
	Inputs    int  `json:"inputs"`
	Hidden    int  `json:"hidden"`
	Outputs   int  `json:"outputs"`
	Recurrent bool `json:"recurrent"` // Hidden layer feeds back into itself
}

// TotalSize returns the number of parameters (weights and biases) of the architecture.
func (a Architecture) TotalSize() int {
	n := a.Hidden*(a.Inputs+1) + a.Outputs*(a.Hidden+1)
	if a.Recurrent {
		n += a.Hidden * a.Hidden
	}
	return n
}

// Validate reports whether every layer has at least one unit.
func (a Architecture) Validate() error {
	if a.Inputs < 1 || a.Hidden < 1 || a.Outputs < 1 {
		return fmt.Errorf("architecture %d-%d-%d: every layer needs at least one unit", a.Inputs, a.Hidden, a.Outputs)
	}
	return nil
}

// Controller is the parameter surface shared by all controllers.
type Controller interface {
	Architecture() Architecture
	TotalSize() int
	ToVector() []float64
	FromVector(v []float64) error
}

// New builds a zero-weight controller for the architecture:
// a PredictionController when Recurrent is set, an ActionController otherwise.
func New(arch Architecture) (Controller, error) {
	if arch.Recurrent {
		return NewPredictionController(arch.Inputs, arch.Hidden, arch.Outputs)
	}
	return NewActionController(arch.Inputs, arch.Hidden, arch.Outputs)
}

// Observation builds a controller input: the signed displacement of the current
// direction followed by the flattened sensor flags (1 for activated, 0 otherwise).
// dst is reused when it has enough capacity.
func Observation(dst []float64, displacement float64, flags []bool) []float64 {
	dst = append(dst[:0], displacement)
	for _, f := range flags {
		if f {
			dst = append(dst, 1)
		} else {
			dst = append(dst, 0)
		}
	}
	return dst
}

// layered exposes a controller's weight matrices in vector order.
type layered interface {
	layers() []*mat.Dense
}

// flatten copies all layer weights into one vector, row-major, layer by layer.
func flatten(c layered, size int) []float64 {
	out := make([]float64, 0, size)
	for _, m := range c.layers() {
		out = append(out, m.RawMatrix().Data...)
	}
	return out
}

// unflatten is the inverse of flatten. The length must already be checked.
func unflatten(c layered, v []float64) {
	off := 0
	for _, m := range c.layers() {
		data := m.RawMatrix().Data
		copy(data, v[off:off+len(data)])
		off += len(data)
	}
}

// randomize fills every layer with N(0, sigma) draws.
func randomize(c layered, rng *rand.Rand, sigma float64) {
	for _, m := range c.layers() {
		data := m.RawMatrix().Data
		for i := range data {
			data[i] = rng.NormFloat64() * sigma
		}
	}
}

func checkLength(arch Architecture, v []float64) error {
	if want := arch.TotalSize(); len(v) != want {
		return fmt.Errorf("%w: got %d parameters, want %d", ErrShapeMismatch, len(v), want)
	}
	return nil
}

func checkInputs(arch Architecture, obs []float64) error {
	if len(obs) != arch.Inputs {
		return fmt.Errorf("%w: observation has %d entries, want %d", ErrShapeMismatch, len(obs), arch.Inputs)
	}
	return nil
}

// withBias writes [1, x...] into dst and returns it as a vector.
func withBias(dst []float64, x []float64) *mat.VecDense {
	dst[0] = 1
	copy(dst[1:], x)
	return mat.NewVecDense(len(dst), dst)
}

// tanh uses a fast rational approximation, saturating beyond |x| > 4.
func tanh(x float64) float64 {
	if x > 4 {
		return 1
	}
	if x < -4 {
		return -1
	}
	x2 := x * x
	return x * (27 + x2) / (27 + 9*x2)
}
