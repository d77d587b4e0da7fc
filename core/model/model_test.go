package model

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/soilspec/pkg/errors"
)

type fittedStub struct {
	State *StateManager
	Coefs []float64
}

func TestStateManager(t *testing.T) {
	s := NewStateManager()
	assert.False(t, s.IsFitted())

	err := s.RequireFitted("PLSRegression", "Predict")
	var nf *errors.NotFittedError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "Predict", nf.Method)

	s.SetFitted(50, 80)
	assert.True(t, s.IsFitted())
	assert.NoError(t, s.RequireFitted("PLSRegression", "Predict"))

	nFeatures, nSamples := s.GetDimensions()
	assert.Equal(t, 50, nFeatures)
	assert.Equal(t, 80, nSamples)

	assert.NoError(t, s.CheckFeatures("Predict", mat.NewDense(2, 50, nil)))
	var dim *errors.DimensionError
	require.True(t, errors.As(s.CheckFeatures("Predict", mat.NewDense(2, 49, nil)), &dim))
	assert.Equal(t, 50, dim.Expected)
	assert.Equal(t, 49, dim.Got)

	s.Reset()
	assert.False(t, s.IsFitted())
}

func TestSaveLoadModel(t *testing.T) {
	stub := fittedStub{State: NewStateManager(), Coefs: []float64{0.5, -1.25, 3}}
	stub.State.SetFitted(3, 10)

	path := filepath.Join(t.TempDir(), "stub.gob")
	require.NoError(t, SaveModel(&stub, path))

	var loaded fittedStub
	require.NoError(t, LoadModel(&loaded, path))
	assert.Equal(t, stub.Coefs, loaded.Coefs)
	assert.True(t, loaded.State.IsFitted())
	nFeatures, _ := loaded.State.GetDimensions()
	assert.Equal(t, 3, nFeatures)
}

func TestLoadModelErrors(t *testing.T) {
	var loaded fittedStub
	assert.Error(t, LoadModel(&loaded, filepath.Join(t.TempDir(), "missing.gob")))
	assert.Error(t, LoadModelFromReader(&loaded, bytes.NewReader([]byte("not gob"))))
}

func TestColumnHelpers(t *testing.T) {
	v := []float64{1, 2, 3}
	col := SliceToColumn(v)
	v[0] = 100
	assert.Equal(t, []float64{1, 2, 3}, ColumnToSlice(col))
}
