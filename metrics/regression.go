// Package metrics provides the regression scores used to compare soil
// property predictions: R², MSE, RMSE, MAE and explained variance.
package metrics

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/soilspec/pkg/errors"
)

// Vec wraps v as a vector without copying. An empty slice yields an empty
// vector, which the metrics reject with a ValueError.
func Vec(v []float64) *mat.VecDense {
	if len(v) == 0 {
		return &mat.VecDense{}
	}
	return mat.NewVecDense(len(v), v)
}

// pairs は実測値と予測値を検証し、コピーしたスライスで返す
func pairs(op string, yTrue, yPred *mat.VecDense) (yt, yp []float64, err error) {
	n := yTrue.Len()
	if n == 0 {
		return nil, nil, errors.NewValueError(op, "empty vector")
	}
	if yPred.Len() != n {
		return nil, nil, errors.NewDimensionError(op, n, yPred.Len(), 0)
	}
	return mat.Col(nil, 0, yTrue), mat.Col(nil, 0, yPred), nil
}

// sumSquaredResiduals は Σ(yTrue - yPred)² を返す
func sumSquaredResiduals(yt, yp []float64) float64 {
	var ss float64
	for i, v := range yt {
		d := v - yp[i]
		ss += d * d
	}
	return ss
}

// MSE は平均二乗誤差を計算する
func MSE(yTrue, yPred *mat.VecDense) (float64, error) {
	yt, yp, err := pairs("MSE", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return sumSquaredResiduals(yt, yp) / float64(len(yt)), nil
}

// MSEMatrix is MSE for n×1 column matrices such as model predictions.
func MSEMatrix(yTrue, yPred mat.Matrix) (float64, error) {
	rTrue, cTrue := yTrue.Dims()
	rPred, cPred := yPred.Dims()
	if rTrue == 0 || cTrue == 0 {
		return 0, errors.NewValueError("MSEMatrix", "empty matrix")
	}
	if rTrue != rPred || cTrue != cPred {
		return 0, errors.NewDimensionError("MSEMatrix", rTrue, rPred, 0)
	}
	if cTrue != 1 {
		return 0, errors.NewValueError("MSEMatrix", "must be a column vector (n×1 matrix)")
	}
	return MSE(Vec(mat.Col(nil, 0, yTrue)), Vec(mat.Col(nil, 0, yPred)))
}

// RMSE は MSE の平方根。予測誤差を目的変数と同じ単位で表す
func RMSE(yTrue, yPred *mat.VecDense) (float64, error) {
	mse, err := MSE(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return math.Sqrt(mse), nil
}

// MAE は平均絶対誤差を計算する
func MAE(yTrue, yPred *mat.VecDense) (float64, error) {
	yt, yp, err := pairs("MAE", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return floats.Distance(yt, yp, 1) / float64(len(yt)), nil
}

// R2Score computes the coefficient of determination 1 - SS_res/SS_tot.
// A constant yTrue has no defined R² and yields a ValueError.
func R2Score(yTrue, yPred *mat.VecDense) (float64, error) {
	yt, yp, err := pairs("R2Score", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	mean := floats.Sum(yt) / float64(len(yt))
	var ssTot float64
	for _, v := range yt {
		ssTot += (v - mean) * (v - mean)
	}
	if ssTot == 0 {
		return 0, errors.NewValueError("R2Score", "total sum of squares is zero (no variance in yTrue)")
	}
	return 1 - sumSquaredResiduals(yt, yp)/ssTot, nil
}

// ExplainedVarianceScore は 1 - Var(yTrue - yPred) / Var(yTrue) を返す。
// 予測の一定のずれ（バイアス）は減点しない。
func ExplainedVarianceScore(yTrue, yPred *mat.VecDense) (float64, error) {
	yt, yp, err := pairs("ExplainedVarianceScore", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	if len(yt) < 2 {
		return 0, errors.NewValueError("ExplainedVarianceScore", "no variance in yTrue")
	}
	resid := make([]float64, len(yt))
	floats.SubTo(resid, yt, yp)

	// 不偏分散同士の比なので n-1 は打ち消し合う
	_, varTrue := stat.MeanVariance(yt, nil)
	_, varResid := stat.MeanVariance(resid, nil)
	if varTrue == 0 {
		return 0, errors.NewValueError("ExplainedVarianceScore", "no variance in yTrue")
	}
	return 1 - varResid/varTrue, nil
}
