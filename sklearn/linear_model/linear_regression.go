package linear_model

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/soilspec/core/model"
	"github.com/YuminosukeSato/soilspec/pkg/errors"
)

// LinearRegression is ordinary least squares.
//
// The system is solved through a thin SVD truncated at Rcond, which gives the
// minimum-norm solution when there are more bands than samples.
type LinearRegression struct {
	State *model.StateManager

	// Hyperparameters
	FitIntercept bool
	Rcond        float64 // relative singular value cutoff

	// Learned parameters
	Weights []float64
	Bias    float64
	Rank    int
}

// LinearRegressionOption は設定オプション
type LinearRegressionOption func(*LinearRegression)

// WithFitIntercept は切片の学習有無を設定
func WithFitIntercept(fit bool) LinearRegressionOption {
	return func(lr *LinearRegression) {
		lr.FitIntercept = fit
	}
}

// WithRcond は特異値の打ち切り閾値を設定
func WithRcond(rcond float64) LinearRegressionOption {
	return func(lr *LinearRegression) {
		lr.Rcond = rcond
	}
}

// NewLinearRegression は新しいLinearRegressionモデルを作成
func NewLinearRegression(options ...LinearRegressionOption) *LinearRegression {
	lr := &LinearRegression{
		State:        model.NewStateManager(),
		FitIntercept: true,
		Rcond:        1e-10,
	}
	for _, opt := range options {
		opt(lr)
	}
	return lr
}

// Fit はモデルを訓練データで学習
func (lr *LinearRegression) Fit(X, y mat.Matrix) error {
	rows, cols, err := checkFitInput("LinearRegression.Fit", X, y)
	if err != nil {
		return err
	}

	var Xw, yw *mat.Dense
	var xMean []float64
	var yMean float64
	if lr.FitIntercept {
		Xw, yw, xMean, yMean = center(X, y)
	} else {
		Xw, yw = mat.DenseCopyOf(X), mat.DenseCopyOf(y)
		xMean = make([]float64, cols)
	}

	var svd mat.SVD
	if ok := svd.Factorize(Xw, mat.SVDThin); !ok {
		return errors.NewModelError("LinearRegression.Fit", "SVD did not converge", errors.ErrSingularMatrix)
	}
	lr.Rank = svd.Rank(lr.Rcond)

	lr.Weights = make([]float64, cols)
	if lr.Rank > 0 {
		var w mat.Dense
		svd.SolveTo(&w, yw, lr.Rank)
		mat.Col(lr.Weights, 0, &w)
	}
	lr.Bias = yMean - floats.Dot(lr.Weights, xMean)

	if err := errors.CheckNumericalStability("LinearRegression.Fit", lr.Weights, 0); err != nil {
		return err
	}
	lr.State.SetFitted(cols, rows)
	return nil
}

// Predict は入力データに対する予測を行う
func (lr *LinearRegression) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := lr.State.RequireFitted("LinearRegression", "Predict"); err != nil {
		return nil, err
	}
	if err := lr.State.CheckFeatures("LinearRegression.Predict", X); err != nil {
		return nil, err
	}
	return predictLinear(X, lr.Weights, lr.Bias), nil
}

// Coef returns the learned coefficients.
func (lr *LinearRegression) Coef() []float64 { return append([]float64(nil), lr.Weights...) }

// Intercept returns the learned intercept.
func (lr *LinearRegression) Intercept() float64 { return lr.Bias }

// GetParams returns the hyperparameters.
func (lr *LinearRegression) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"fit_intercept": lr.FitIntercept,
		"rcond":         lr.Rcond,
	}
}

// String returns a short description.
func (lr *LinearRegression) String() string {
	if !lr.State.IsFitted() {
		return fmt.Sprintf("LinearRegression(fit_intercept=%t)", lr.FitIntercept)
	}
	return fmt.Sprintf("LinearRegression(fit_intercept=%t, rank=%d)", lr.FitIntercept, lr.Rank)
}

var (
	_ model.LinearModel     = (*LinearRegression)(nil)
	_ model.ParameterGetter = (*LinearRegression)(nil)
)
