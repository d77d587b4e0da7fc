// Package linear_model implements linear regressors: ordinary least squares,
// ridge regression and a linear support vector regressor trained with
// passive-aggressive updates.
package linear_model

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/soilspec/pkg/errors"
)

// checkFitInput validates the shapes and values passed to Fit.
func checkFitInput(op string, X, y mat.Matrix) (rows, cols int, err error) {
	rows, cols = X.Dims()
	yRows, yCols := y.Dims()
	if rows == 0 || cols == 0 {
		return 0, 0, errors.NewModelError(op, "empty data", errors.ErrEmptyData)
	}
	if rows != yRows {
		return 0, 0, errors.NewDimensionError(op, rows, yRows, 0)
	}
	if yCols != 1 {
		return 0, 0, errors.NewDimensionError(op, 1, yCols, 1)
	}
	if err := errors.CheckMatrix(op+" X", X, rows, cols, 0); err != nil {
		return 0, 0, err
	}
	if err := errors.CheckMatrix(op+" y", y, yRows, 1, 0); err != nil {
		return 0, 0, err
	}
	return rows, cols, nil
}

// center returns X and y with column means removed, plus the means.
func center(X, y mat.Matrix) (*mat.Dense, *mat.Dense, []float64, float64) {
	rows, cols := X.Dims()
	xMean := make([]float64, cols)
	col := make([]float64, rows)
	for j := 0; j < cols; j++ {
		mat.Col(col, j, X)
		xMean[j] = floats.Sum(col) / float64(rows)
	}
	yCol := mat.Col(nil, 0, y)
	yMean := floats.Sum(yCol) / float64(rows)

	Xc := mat.NewDense(rows, cols, nil)
	Xc.Apply(func(i, j int, v float64) float64 { return v - xMean[j] }, X)
	yc := mat.NewDense(rows, 1, nil)
	yc.Apply(func(i, j int, v float64) float64 { return v - yMean }, y)
	return Xc, yc, xMean, yMean
}

// predictLinear computes X·w + b as an n×1 matrix.
func predictLinear(X mat.Matrix, w []float64, b float64) *mat.Dense {
	rows, _ := X.Dims()
	out := mat.NewDense(rows, 1, nil)
	out.Mul(X, mat.NewVecDense(len(w), w))
	for i := 0; i < rows; i++ {
		out.Set(i, 0, out.At(i, 0)+b)
	}
	return out
}
