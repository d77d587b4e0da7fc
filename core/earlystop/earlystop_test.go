package earlystop

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/soilspec/pkg/errors"
)

func TestMonitorUpdate(t *testing.T) {
	tests := []struct {
		name      string
		patience  int
		tol       float64
		losses    []float64
		wantStop  int // index at which stop is first reported, -1 for never
		wantBest  int
		wantScore float64
	}{
		{
			name:      "improves then plateaus",
			patience:  3,
			losses:    []float64{10, 8, 6, 5, 5, 5.5, 5.2, 5.1, 4},
			wantStop:  6,
			wantBest:  3,
			wantScore: 5,
		},
		{
			name:      "improvement below tolerance counts as plateau",
			patience:  2,
			tol:       0.1,
			losses:    []float64{1.0, 0.95, 0.92, 0.5},
			wantStop:  2,
			wantBest:  0,
			wantScore: 1.0,
		},
		{
			name:      "never plateaus",
			patience:  2,
			losses:    []float64{5, 4, 3, 2, 1},
			wantStop:  -1,
			wantBest:  4,
			wantScore: 1,
		},
		{
			name:      "disabled never stops",
			patience:  0,
			losses:    []float64{1, 2, 3, 4},
			wantStop:  -1,
			wantBest:  0,
			wantScore: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New(tt.patience, tt.tol)
			stopAt := -1
			for i, loss := range tt.losses {
				if _, stop := m.Update(i, loss); stop {
					stopAt = i
					break
				}
			}
			assert.Equal(t, tt.wantStop, stopAt)
			assert.Equal(t, tt.wantBest, m.BestIteration)
			assert.Equal(t, tt.wantScore, m.BestScore)
			if stopAt >= 0 {
				assert.Equal(t, m.BestIteration+tt.patience, stopAt)
			}
		})
	}
}

// fakeLearner's state is the index of the last completed step.
type fakeLearner struct {
	state    int
	snapshot int
}

func TestRunStopsAtPlateauStartPlusPatience(t *testing.T) {
	losses := []float64{9, 7, 4, 2, 2.5, 2.1, 3, 2.2, 2.05, 1.0, 0.5}
	const patience = 4
	plateauStart := 3

	learner := &fakeLearner{snapshot: -1}
	m := New(patience, 0)
	res, err := m.Run(len(losses),
		func(i int) (float64, error) {
			learner.state = i
			return losses[i], nil
		},
		func() { learner.snapshot = learner.state },
		func() { learner.state = learner.snapshot },
	)
	require.NoError(t, err)

	assert.True(t, res.EarlyStopped)
	assert.Equal(t, plateauStart+patience, res.StoppedIteration)
	assert.Equal(t, plateauStart, res.BestIteration)
	assert.Equal(t, 2.0, res.BestLoss)
	assert.Equal(t, plateauStart, learner.state, "learner must hold the state captured at plateau start")
}

func TestRunWithoutStopRestoresBest(t *testing.T) {
	losses := []float64{3, 1, 2}
	learner := &fakeLearner{}
	res, err := New(5, 0).Run(len(losses),
		func(i int) (float64, error) {
			learner.state = i
			return losses[i], nil
		},
		func() { learner.snapshot = learner.state },
		func() { learner.state = learner.snapshot },
	)
	require.NoError(t, err)
	assert.False(t, res.EarlyStopped)
	assert.Equal(t, 2, res.StoppedIteration)
	assert.Equal(t, 1, res.BestIteration)
	assert.Equal(t, 1, learner.state)
}

func TestRunDivergence(t *testing.T) {
	_, err := New(3, 0).Run(5, func(i int) (float64, error) {
		if i == 2 {
			return math.NaN(), nil
		}
		return 1, nil
	}, nil, nil)

	var numErr *errors.NumericalInstabilityError
	require.True(t, errors.As(err, &numErr))
	assert.Equal(t, 2, numErr.Iteration)
}
