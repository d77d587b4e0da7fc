// Package earlystop implements patience-based early stopping for iterative
// learners.
//
// A Monitor tracks the minimum validation loss seen so far. An update counts
// as an improvement only when loss < best - Tol. After Patience consecutive
// updates without improvement the monitor reports stop, so the stop
// iteration is always BestIteration + Patience. Learners snapshot their state
// whenever an update improves and restore that snapshot when training ends.
package earlystop

import (
	"math"

	"github.com/YuminosukeSato/soilspec/pkg/errors"
)

// Monitor handles early stopping logic
type Monitor struct {
	Patience        int     // Number of updates without improvement to stop
	Tol             float64 // Minimum decrease that counts as an improvement
	BestScore       float64 // Best validation loss so far
	BestIteration   int     // Iteration with best loss, -1 before the first update
	RoundsNoImprove int     // Current updates without improvement
	Enabled         bool    // Whether stopping is enabled
}

// New creates a monitor. patience <= 0 disables stopping; the monitor still
// tracks the best iteration.
func New(patience int, tol float64) *Monitor {
	if tol < 0 {
		tol = 0
	}
	return &Monitor{
		Patience:      patience,
		Tol:           tol,
		BestScore:     math.Inf(1),
		BestIteration: -1,
		Enabled:       patience > 0,
	}
}

// Update records the validation loss for iteration and reports whether it
// improved on the best so far and whether training should stop now.
func (m *Monitor) Update(iteration int, loss float64) (improved, stop bool) {
	if loss < m.BestScore-m.Tol || m.BestIteration < 0 {
		m.BestScore = loss
		m.BestIteration = iteration
		m.RoundsNoImprove = 0
		improved = true
	} else {
		m.RoundsNoImprove++
	}
	return improved, m.ShouldStop()
}

// ShouldStop returns whether training should stop
func (m *Monitor) ShouldStop() bool {
	return m.Enabled && m.RoundsNoImprove >= m.Patience
}

// Result summarizes a Run.
type Result struct {
	StoppedIteration int     // last iteration executed
	BestIteration    int     // iteration whose state was kept
	BestLoss         float64 // validation loss at BestIteration
	EarlyStopped     bool    // true when patience ran out before maxIter
}

// Run drives an iterative fit for up to maxIter iterations.
//
// step performs iteration i and returns the validation loss. snapshot is
// called after every improving step; restore is called once at the end so
// the learner holds the best state rather than the last one. A non-finite
// loss aborts with a NumericalInstabilityError.
func (m *Monitor) Run(maxIter int, step func(i int) (float64, error), snapshot, restore func()) (Result, error) {
	res := Result{StoppedIteration: -1, BestIteration: -1}
	for i := 0; i < maxIter; i++ {
		loss, err := step(i)
		if err != nil {
			return res, err
		}
		if err := errors.CheckScalar("validation_loss", loss, i); err != nil {
			return res, err
		}
		res.StoppedIteration = i

		improved, stop := m.Update(i, loss)
		if improved && snapshot != nil {
			snapshot()
		}
		if stop {
			res.EarlyStopped = true
			break
		}
	}

	if res.StoppedIteration >= 0 && restore != nil {
		restore()
	}
	res.BestIteration = m.BestIteration
	res.BestLoss = m.BestScore
	return res, nil
}
