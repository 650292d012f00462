package neural

import (
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// ActionController maps an observation to a direction index.
// One tanh hidden layer, linear outputs, biases folded into the weight matrices.
// Not safe for concurrent use: forward passes reuse internal buffers.
type ActionController struct {
	arch Architecture
	w1   *mat.Dense // Hidden x (Inputs+1)
	w2   *mat.Dense // Outputs x (Hidden+1)

	in  []float64
	hid []float64
}

// NewActionController creates a zero-weight controller with one output per direction.
func NewActionController(inputs, hidden, directions int) (*ActionController, error) {
	arch := Architecture{Inputs: inputs, Hidden: hidden, Outputs: directions}
	if err := arch.Validate(); err != nil {
		return nil, err
	}
	return &ActionController{
		arch: arch,
		w1:   mat.NewDense(hidden, inputs+1, nil),
		w2:   mat.NewDense(directions, hidden+1, nil),
		in:   make([]float64, inputs+1),
		hid:  make([]float64, hidden+1),
	}, nil
}

// Randomize draws every weight from N(0, sigma).
func (c *ActionController) Randomize(rng *rand.Rand, sigma float64) {
	randomize(c, rng, sigma)
}

// Outputs computes the raw output activations for obs.
// obs must have exactly Architecture().Inputs entries.
func (c *ActionController) Outputs(obs []float64) ([]float64, error) {
	if err := checkInputs(c.arch, obs); err != nil {
		return nil, err
	}
	var h mat.VecDense
	h.MulVec(c.w1, withBias(c.in, obs))
	c.hid[0] = 1
	for i := 0; i < c.arch.Hidden; i++ {
		c.hid[i+1] = tanh(h.AtVec(i))
	}

	out := mat.NewVecDense(c.arch.Outputs, nil)
	out.MulVec(c.w2, mat.NewVecDense(len(c.hid), c.hid))
	return out.RawVector().Data, nil
}

// Decide returns the index of the strongest output, in [0, Outputs).
func (c *ActionController) Decide(obs []float64) (int, error) {
	out, err := c.Outputs(obs)
	if err != nil {
		return 0, err
	}
	return floats.MaxIdx(out), nil
}

// Architecture returns the layer sizes.
func (c *ActionController) Architecture() Architecture { return c.arch }

// TotalSize returns the number of parameters.
func (c *ActionController) TotalSize() int { return c.arch.TotalSize() }

// ToVector returns a copy of all parameters.
func (c *ActionController) ToVector() []float64 { return flatten(c, c.TotalSize()) }

// FromVector overwrites all parameters. v must have exactly TotalSize() entries.
func (c *ActionController) FromVector(v []float64) error {
	if err := checkLength(c.arch, v); err != nil {
		return err
	}
	unflatten(c, v)
	return nil
}

// Clone returns an independent copy with the same weights.
func (c *ActionController) Clone() *ActionController {
	out, _ := NewActionController(c.arch.Inputs, c.arch.Hidden, c.arch.Outputs)
	out.w1.Copy(c.w1)
	out.w2.Copy(c.w2)
	return out
}

func (c *ActionController) layers() []*mat.Dense { return []*mat.Dense{c.w1, c.w2} }
