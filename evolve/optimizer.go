// Package evolve searches controller parameters with a black-box optimizer.
package evolve

import (
	"errors"
	"math"
)

// ErrStopped is returned by Ask once the optimizer has terminated.
var ErrStopped = errors.New("optimizer stopped")

// Optimizer is a batch ask/tell minimizer.
//
// Ask returns one generation of candidate vectors. Tell reports the objective
// value of each candidate of that generation, in the same order; lower is
// better. Stop reports whether the optimizer has converged or otherwise ended.
type Optimizer interface {
	Ask() ([][]float64, error)
	Tell(batch [][]float64, scores []float64) error
	Stop() bool
	Close() error
}

// AutoPopulation returns the default CMA-ES population size for dim parameters.
func AutoPopulation(dim int) int {
	if dim < 1 {
		dim = 1
	}
	return 4 + int(3*math.Log(float64(dim)))
}
