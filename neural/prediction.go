package neural

import (
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// PredictionController forecasts the next sensor activation with an Elman cell:
//
//	h' = tanh(Win·[1, obs] + Wrec·h)
//	y  = Wout·[1, h']
//	pred[i] = y[i] > 0
//
// The recurrent state h belongs to the caller, so one controller can serve many agents.
type PredictionController struct {
	arch Architecture
	win  *mat.Dense // Hidden x (Inputs+1)
	wrec *mat.Dense // Hidden x Hidden
	wout *mat.Dense // Outputs x (Hidden+1)

	in  []float64
	hid []float64
}

// NewPredictionController creates a zero-weight controller with one output per sensor flag.
func NewPredictionController(inputs, hidden, flags int) (*PredictionController, error) {
	arch := Architecture{Inputs: inputs, Hidden: hidden, Outputs: flags, Recurrent: true}
	if err := arch.Validate(); err != nil {
		return nil, err
	}
	return &PredictionController{
		arch: arch,
		win:  mat.NewDense(hidden, inputs+1, nil),
		wrec: mat.NewDense(hidden, hidden, nil),
		wout: mat.NewDense(flags, hidden+1, nil),
		in:   make([]float64, inputs+1),
		hid:  make([]float64, hidden+1),
	}, nil
}

// Randomize draws every weight from N(0, sigma).
func (c *PredictionController) Randomize(rng *rand.Rand, sigma float64) {
	randomize(c, rng, sigma)
}

// NewState returns a zero recurrent state.
func (c *PredictionController) NewState() []float64 {
	return make([]float64, c.arch.Hidden)
}

// Predict returns the predicted flags for obs and the next recurrent state.
// obs must have exactly Architecture().Inputs entries; a state of the wrong
// length is treated as zero. The returned slices are freshly allocated.
func (c *PredictionController) Predict(obs []float64, state []float64) ([]bool, []float64, error) {
	if err := checkInputs(c.arch, obs); err != nil {
		return nil, nil, err
	}
	var h mat.VecDense
	h.MulVec(c.win, withBias(c.in, obs))
	if len(state) == c.arch.Hidden {
		var r mat.VecDense
		r.MulVec(c.wrec, mat.NewVecDense(len(state), state))
		h.AddVec(&h, &r)
	}

	next := make([]float64, c.arch.Hidden)
	c.hid[0] = 1
	for i := range next {
		next[i] = tanh(h.AtVec(i))
		c.hid[i+1] = next[i]
	}

	var y mat.VecDense
	y.MulVec(c.wout, mat.NewVecDense(len(c.hid), c.hid))
	pred := make([]bool, c.arch.Outputs)
	for i := range pred {
		pred[i] = y.AtVec(i) > 0
	}
	return pred, next, nil
}

// Architecture returns the layer sizes.
func (c *PredictionController) Architecture() Architecture { return c.arch }

// TotalSize returns the number of parameters.
func (c *PredictionController) TotalSize() int { return c.arch.TotalSize() }

// ToVector returns a copy of all parameters.
func (c *PredictionController) ToVector() []float64 { return flatten(c, c.TotalSize()) }

// FromVector overwrites all parameters. v must have exactly TotalSize() entries.
func (c *PredictionController) FromVector(v []float64) error {
	if err := checkLength(c.arch, v); err != nil {
		return err
	}
	unflatten(c, v)
	return nil
}

// Clone returns an independent copy with the same weights.
func (c *PredictionController) Clone() *PredictionController {
	out, _ := NewPredictionController(c.arch.Inputs, c.arch.Hidden, c.arch.Outputs)
	out.win.Copy(c.win)
	out.wrec.Copy(c.wrec)
	out.wout.Copy(c.wout)
	return out
}

func (c *PredictionController) layers() []*mat.Dense {
	return []*mat.Dense{c.win, c.wrec, c.wout}
}
