package model_selection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/soilspec/pkg/errors"
)

func TestKFold(t *testing.T) {
	t.Run("Basic KFold split", func(t *testing.T) {
		kf := NewKFold(5, false, 42)
		assert.Equal(t, 5, kf.GetNSplits())

		folds, err := kf.Split(100)
		require.NoError(t, err)
		assert.Len(t, folds, 5)

		coverage := make(map[int]int)
		for i, fold := range folds {
			assert.Len(t, fold.TrainIndices, 80, "Fold %d train size", i)
			assert.Len(t, fold.TestIndices, 20, "Fold %d test size", i)

			testSet := make(map[int]bool)
			for _, idx := range fold.TestIndices {
				testSet[idx] = true
				coverage[idx]++
			}
			for _, idx := range fold.TrainIndices {
				assert.False(t, testSet[idx], "Train index %d in test set", idx)
			}
		}
		for i := 0; i < 100; i++ {
			assert.Equal(t, 1, coverage[i], "Index %d coverage", i)
		}
	})

	t.Run("Uneven split", func(t *testing.T) {
		folds, err := NewKFold(3, true, 1).Split(10)
		require.NoError(t, err)
		sizes := []int{len(folds[0].TestIndices), len(folds[1].TestIndices), len(folds[2].TestIndices)}
		assert.Equal(t, []int{4, 3, 3}, sizes)
	})

	t.Run("Shuffle is deterministic per seed", func(t *testing.T) {
		a, err := NewKFold(4, true, 7).Split(40)
		require.NoError(t, err)
		b, err := NewKFold(4, true, 7).Split(40)
		require.NoError(t, err)
		c, err := NewKFold(4, true, 8).Split(40)
		require.NoError(t, err)
		assert.Equal(t, a, b)
		assert.NotEqual(t, a, c)
	})

	t.Run("Too few samples", func(t *testing.T) {
		_, err := NewKFold(5, false, 0).Split(3)
		var ve *errors.ValidationError
		require.ErrorAs(t, err, &ve)
	})

	t.Run("Default splits", func(t *testing.T) {
		assert.Equal(t, 5, NewKFold(1, false, 0).GetNSplits())
	})
}

func TestTrainTestSplit(t *testing.T) {
	tests := []struct {
		name     string
		n        int
		fraction float64
		wantTest int
		wantErr  bool
	}{
		{"20 percent of 100", 100, 0.2, 20, false},
		{"rounds", 7, 0.3, 2, false},
		{"at least one test sample", 3, 0.01, 1, false},
		{"at least one train sample", 3, 0.99, 2, false},
		{"fraction zero", 10, 0, 0, true},
		{"fraction one", 10, 1, 0, true},
		{"single sample", 1, 0.5, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			train, test, err := TrainTestSplit(tt.n, tt.fraction, 42)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, test, tt.wantTest)
			assert.Len(t, train, tt.n-tt.wantTest)

			seen := make(map[int]bool)
			for _, idx := range append(append([]int{}, train...), test...) {
				assert.False(t, seen[idx], "index %d appears twice", idx)
				seen[idx] = true
			}
			assert.Len(t, seen, tt.n)
		})
	}
}

func TestTrainTestSplitDeterministic(t *testing.T) {
	train1, test1, err := TrainTestSplit(50, 0.2, 99)
	require.NoError(t, err)
	train2, test2, err := TrainTestSplit(50, 0.2, 99)
	require.NoError(t, err)
	assert.Equal(t, train1, train2)
	assert.Equal(t, test1, test2)
}

func TestSubsetRows(t *testing.T) {
	X := mat.NewDense(4, 2, []float64{
		1, 2,
		3, 4,
		5, 6,
		7, 8,
	})
	got := SubsetRows(X, []int{3, 1})
	assert.True(t, mat.Equal(mat.NewDense(2, 2, []float64{7, 8, 3, 4}), got))

	empty := SubsetRows(X, nil)
	assert.True(t, empty.IsEmpty())

	assert.Equal(t, []float64{30, 10}, SubsetValues([]float64{10, 20, 30}, []int{2, 0}))
	assert.Equal(t, []string{"b"}, SubsetStrings([]string{"a", "b"}, []int{1}))
}
