package neural_network

import (
	"bytes"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/soilspec/core/model"
	"github.com/YuminosukeSato/soilspec/pkg/errors"
)

func sineData(n int, offset float64) (*mat.Dense, *mat.Dense) {
	X := mat.NewDense(n, 1, nil)
	y := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		x := -3 + 6*(float64(i)+offset)/float64(n)
		X.Set(i, 0, x)
		y.Set(i, 0, math.Sin(x)*5+10)
	}
	return X, y
}

func rSquared(y, pred mat.Matrix) float64 {
	n, _ := y.Dims()
	var mean float64
	for i := 0; i < n; i++ {
		mean += y.At(i, 0) / float64(n)
	}
	var ssRes, ssTot float64
	for i := 0; i < n; i++ {
		ssRes += math.Pow(y.At(i, 0)-pred.At(i, 0), 2)
		ssTot += math.Pow(y.At(i, 0)-mean, 2)
	}
	return 1 - ssRes/ssTot
}

func TestMLPFitsSine(t *testing.T) {
	X, y := sineData(200, 0)
	mlp := NewMLPRegressor(
		WithHidden(32),
		WithActivation(ActivationTanh),
		WithLearningRate(0.01),
		WithMaxIter(300),
		WithEarlyStopping(0, 0),
		WithSeed(1),
	)
	require.NoError(t, mlp.Fit(X, y))

	Xte, yte := sineData(50, 0.5)
	pred, err := mlp.Predict(Xte)
	require.NoError(t, err)
	assert.Greater(t, rSquared(yte, pred), 0.9)
	assert.Len(t, mlp.LossCurve, 300)
}

func TestMLPDeterministic(t *testing.T) {
	X, y := sineData(60, 0)
	fit := func() mat.Matrix {
		mlp := NewMLPRegressor(WithHidden(8, 4), WithMaxIter(20), WithSeed(7), WithEarlyStopping(0, 0))
		require.NoError(t, mlp.Fit(X, y))
		pred, err := mlp.Predict(X)
		require.NoError(t, err)
		return pred
	}
	assert.True(t, mat.Equal(fit(), fit()))
}

func TestMLPEarlyStoppingKeepsBestEpoch(t *testing.T) {
	X, y := sineData(120, 0)
	Xval, yval := sineData(40, 0.25)

	mlp := NewMLPRegressor(
		WithHidden(16),
		WithLearningRate(0.05),
		WithMaxIter(400),
		WithEarlyStopping(5, 1e-3),
		WithSeed(3),
	)
	errors.SetWarningHandler(func(error) {})
	defer errors.SetWarningHandler(nil)
	require.NoError(t, mlp.FitWithValidation(X, y, Xval, yval))

	assert.Len(t, mlp.LossCurve, mlp.StoppedIteration()+1)
	if mlp.StoppedIteration() < 399 {
		assert.Equal(t, mlp.BestIteration()+5, mlp.StoppedIteration())
	}

	// 復元された重みの検証損失は記録された最良値と一致する
	pred, err := mlp.Predict(Xval)
	require.NoError(t, err)
	var mse float64
	for i := 0; i < 40; i++ {
		mse += math.Pow(yval.At(i, 0)-pred.At(i, 0), 2) / 40
	}
	assert.InDelta(t, mlp.LossCurve[mlp.BestIteration()], mse, 1e-9)
}

func TestEnhancedNN(t *testing.T) {
	nn := NewEnhancedNN(WithSeed(4))
	assert.Equal(t, "EnhancedNN", nn.Name)
	assert.Equal(t, []int{256, 128, 64}, nn.Hidden)
	assert.Equal(t, 20, nn.Patience)
	assert.Equal(t, uint64(4), nn.Seed)
}

func TestMLPValidation(t *testing.T) {
	X, y := sineData(10, 0)
	tests := []struct {
		name  string
		opt   Option
		param string
	}{
		{"no hidden", WithHidden(), "hidden"},
		{"zero width", WithHidden(4, 0), "hidden"},
		{"bad activation", WithActivation("sigmoid"), "activation"},
		{"zero lr", WithLearningRate(0), "learning_rate"},
		{"zero batch", WithBatchSize(0), "batch_size"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewMLPRegressor(tt.opt).Fit(X, y)
			var ve *errors.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.param, ve.ParamName)
		})
	}

	_, err := NewMLPRegressor().Predict(X)
	var nf *errors.NotFittedError
	require.ErrorAs(t, err, &nf)
}

func TestMLPPersistence(t *testing.T) {
	X, y := sineData(40, 0)
	mlp := NewMLPRegressor(WithHidden(4), WithMaxIter(5), WithEarlyStopping(0, 0))
	require.NoError(t, mlp.Fit(X, y))

	var buf bytes.Buffer
	require.NoError(t, model.SaveModelToWriter(mlp, &buf))
	restored := &MLPRegressor{}
	require.NoError(t, model.LoadModelFromReader(restored, &buf))

	p1, err := mlp.Predict(X)
	require.NoError(t, err)
	p2, err := restored.Predict(X)
	require.NoError(t, err)
	assert.True(t, mat.Equal(p1, p2))
}
