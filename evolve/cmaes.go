package evolve

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"gonum.org/v1/gonum/optimize"
)

// CMAESOptions configures the CMA-ES optimizer.
type CMAESOptions struct {
	StepSize   float64 // Initial search step size (sigma)
	Population int     // Candidates per generation; 0 = AutoPopulation
	// Patience is the number of generations without improvement of the best
	// objective value after which the search converges. 0 keeps gonum's default.
	Patience int
}

// CMAES adapts gonum's CmaEsChol to the Optimizer interface.
//
// optimize.Minimize runs in its own goroutine with one concurrent evaluation
// per population member. Each evaluation is handed to Ask as a request and
// blocks until Tell answers it, so a generation is exactly one Ask/Tell pair.
type CMAES struct {
	pop int
	dim int

	requests chan request
	quit     chan struct{}
	done     chan struct{}
	once     sync.Once

	mu      sync.Mutex
	pending []request
	result  *optimize.Result
	err     error
}

type request struct {
	x     []float64
	reply chan float64
}

// NewCMAES starts a search around x0.
func NewCMAES(x0 []float64, opts CMAESOptions) (*CMAES, error) {
	if len(x0) == 0 {
		return nil, errors.New("cmaes: empty starting point")
	}
	if opts.StepSize <= 0 {
		return nil, fmt.Errorf("cmaes: step size must be positive, got %v", opts.StepSize)
	}
	pop := opts.Population
	if pop <= 0 {
		pop = AutoPopulation(len(x0))
	}

	c := &CMAES{
		pop:      pop,
		dim:      len(x0),
		requests: make(chan request),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}

	problem := optimize.Problem{
		Func:   c.evaluate,
		Status: c.status,
	}
	settings := &optimize.Settings{
		Concurrent: pop,
	}
	if opts.Patience > 0 {
		settings.Converger = &optimize.FunctionConverge{
			Absolute:   1e-10,
			Iterations: opts.Patience,
		}
	}
	method := &optimize.CmaEsChol{
		InitStepSize: opts.StepSize,
		Population:   pop,
	}

	initX := append([]float64(nil), x0...)
	go func() {
		defer close(c.done)
		result, err := optimize.Minimize(problem, initX, settings, method)
		c.mu.Lock()
		c.result, c.err = result, err
		c.mu.Unlock()
	}()
	return c, nil
}

// Population returns the number of candidates per generation.
func (c *CMAES) Population() int { return c.pop }

// Dim returns the search space dimension.
func (c *CMAES) Dim() int { return c.dim }

// evaluate is called concurrently by optimize.Minimize.
func (c *CMAES) evaluate(x []float64) float64 {
	req := request{x: append([]float64(nil), x...), reply: make(chan float64, 1)}
	select {
	case c.requests <- req:
	case <-c.quit:
		return math.Inf(1)
	}
	select {
	case f := <-req.reply:
		return f
	case <-c.quit:
		return math.Inf(1)
	}
}

func (c *CMAES) status() (optimize.Status, error) {
	select {
	case <-c.quit:
		return optimize.Failure, ErrStopped
	default:
		return optimize.NotTerminated, nil
	}
}

// Ask blocks until the optimizer has proposed a full generation.
// Returns ErrStopped once the search has ended.
func (c *CMAES) Ask() ([][]float64, error) {
	select {
	case <-c.quit:
		return nil, ErrStopped
	case <-c.done:
		return nil, ErrStopped
	default:
	}

	c.mu.Lock()
	if len(c.pending) > 0 {
		c.mu.Unlock()
		return nil, errors.New("cmaes: ask before tell")
	}
	c.mu.Unlock()

	batch := make([]request, 0, c.pop)
	for len(batch) < c.pop {
		select {
		case req := <-c.requests:
			batch = append(batch, req)
		case <-c.done:
			return nil, ErrStopped
		case <-c.quit:
			return nil, ErrStopped
		}
	}

	out := make([][]float64, len(batch))
	for i, req := range batch {
		out[i] = append([]float64(nil), req.x...)
	}
	c.mu.Lock()
	c.pending = batch
	c.mu.Unlock()
	return out, nil
}

// Tell answers the generation returned by the last Ask.
func (c *CMAES) Tell(batch [][]float64, scores []float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.pending) == 0 {
		return errors.New("cmaes: tell without ask")
	}
	if len(batch) != len(c.pending) || len(scores) != len(c.pending) {
		return fmt.Errorf("cmaes: got %d candidates and %d scores, want %d", len(batch), len(scores), len(c.pending))
	}
	for i, s := range scores {
		if math.IsNaN(s) {
			return fmt.Errorf("cmaes: score %d is NaN", i)
		}
	}
	for i, req := range c.pending {
		req.reply <- scores[i]
	}
	c.pending = nil
	return nil
}

// Stop reports whether the search has ended.
func (c *CMAES) Stop() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Result returns gonum's result once the search has ended, nil before.
func (c *CMAES) Result() *optimize.Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result
}

// Close stops the search and waits for the optimizer goroutine to exit.
// Errors are only reported for searches that ended on their own.
func (c *CMAES) Close() error {
	finished := c.Stop()
	c.once.Do(func() { close(c.quit) })
	<-c.done
	if !finished {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil && !errors.Is(c.err, ErrStopped) {
		return fmt.Errorf("cmaes: %w", c.err)
	}
	return nil
}
