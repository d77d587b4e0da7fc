package cross_decomposition

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/soilspec/pkg/errors"
)

func linearData(n int) (*mat.Dense, *mat.Dense) {
	rng := rand.New(rand.NewPCG(1, 2))
	X := mat.NewDense(n, 3, nil)
	y := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < 3; j++ {
			X.Set(i, j, rng.NormFloat64())
		}
		y.Set(i, 0, 2*X.At(i, 0)-X.At(i, 1)+0.5*X.At(i, 2)+4)
	}
	return X, y
}

// spectraLike は潜在変数2つから生成した高次元データ
func spectraLike(n, p int, seed uint64) (*mat.Dense, *mat.Dense) {
	rng := rand.New(rand.NewPCG(seed, seed))
	X := mat.NewDense(n, p, nil)
	y := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		a, b := rng.NormFloat64(), rng.NormFloat64()
		for j := 0; j < p; j++ {
			wl := float64(j) / float64(p)
			X.Set(i, j, a*math.Sin(3*wl)+b*math.Cos(5*wl)+0.01*rng.NormFloat64())
		}
		y.Set(i, 0, 3*a-2*b+0.05*rng.NormFloat64())
	}
	return X, y
}

func TestPLSFullRankMatchesOLS(t *testing.T) {
	X, y := linearData(50)
	pls := NewPLSRegression(3)
	require.NoError(t, pls.Fit(X, y))

	want := []float64{2, -1, 0.5}
	for j, c := range pls.Coef() {
		assert.InDelta(t, want[j], c, 1e-8, "coef[%d]", j)
	}
	assert.InDelta(t, 4.0, pls.Intercept(), 1e-8)
}

func TestPLSScoresAreOrthogonal(t *testing.T) {
	X, y := spectraLike(40, 60, 3)
	pls := NewPLSRegression(4)
	require.NoError(t, pls.Fit(X, y))

	scores, err := pls.Transform(X)
	require.NoError(t, err)
	var gram mat.Dense
	gram.Mul(scores.T(), scores)
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			if i != j {
				assert.InDelta(t, 0, gram.At(i, j), 1e-6, "scores %d and %d", i, j)
			}
		}
	}
}

func TestPLSWideDataPredicts(t *testing.T) {
	X, y := spectraLike(40, 120, 4)
	pls := NewPLSRegression(2)
	require.NoError(t, pls.Fit(X, y))

	pred, err := pls.Predict(X)
	require.NoError(t, err)
	r, c := pred.Dims()
	assert.Equal(t, 40, r)
	assert.Equal(t, 1, c)

	var ssRes, ssTot, mean float64
	for i := 0; i < 40; i++ {
		mean += y.At(i, 0) / 40
	}
	for i := 0; i < 40; i++ {
		ssRes += math.Pow(y.At(i, 0)-pred.At(i, 0), 2)
		ssTot += math.Pow(y.At(i, 0)-mean, 2)
	}
	assert.Greater(t, 1-ssRes/ssTot, 0.95)
}

func TestPLSValidation(t *testing.T) {
	X, y := linearData(10)
	tests := []struct {
		name string
		k    int
	}{
		{"zero components", 0},
		{"more than features", 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewPLSRegression(tt.k).Fit(X, y)
			var ve *errors.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, "n_components", ve.ParamName)
		})
	}

	_, err := NewPLSRegression(2).Predict(X)
	var nf *errors.NotFittedError
	require.ErrorAs(t, err, &nf)
}

func TestEnhancedPLSSelectsComponentCount(t *testing.T) {
	X, y := spectraLike(60, 80, 5)
	Xval, yval := spectraLike(30, 80, 6)

	e := NewEnhancedPLS(15, 3)
	require.NoError(t, e.FitWithValidation(X, y, Xval, yval))

	assert.Equal(t, e.BestIteration()+1, e.NComponents)
	assert.GreaterOrEqual(t, e.NComponents, 2, "two latent variables drive y")
	assert.LessOrEqual(t, e.BestIteration(), e.StoppedIteration())
	if e.StoppedIteration() < 14 {
		assert.Equal(t, e.BestIteration()+3, e.StoppedIteration())
	}

	pred, err := e.Predict(Xval)
	require.NoError(t, err)
	r, _ := pred.Dims()
	assert.Equal(t, 30, r)
}

func TestEnhancedPLSCapsComponentsAtData(t *testing.T) {
	X, y := spectraLike(6, 4, 7)
	e := NewEnhancedPLS(20, 0)
	require.NoError(t, e.Fit(X, y))
	assert.LessOrEqual(t, e.NComponents, 4)
}
