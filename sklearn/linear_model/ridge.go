package linear_model

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/soilspec/core/model"
	"github.com/YuminosukeSato/soilspec/pkg/errors"
)

// Ridge is L2-regularized least squares.
// With more features than samples the dual (kernel) form is solved instead
// of the primal normal equations; both give the same coefficients.
type Ridge struct {
	State *model.StateManager

	Alpha        float64
	FitIntercept bool

	Weights []float64
	Bias    float64
}

// NewRidge creates a Ridge regressor with regularization strength alpha.
func NewRidge(alpha float64) *Ridge {
	return &Ridge{State: model.NewStateManager(), Alpha: alpha, FitIntercept: true}
}

// Fit solves (XᵀX + αI)w = Xᵀy on centered data.
func (r *Ridge) Fit(X, y mat.Matrix) error {
	if r.Alpha <= 0 {
		return errors.NewValidationError("alpha", "must be positive", r.Alpha)
	}
	rows, cols, err := checkFitInput("Ridge.Fit", X, y)
	if err != nil {
		return err
	}

	var Xw, yw *mat.Dense
	var xMean []float64
	var yMean float64
	if r.FitIntercept {
		Xw, yw, xMean, yMean = center(X, y)
	} else {
		Xw, yw = mat.DenseCopyOf(X), mat.DenseCopyOf(y)
		xMean = make([]float64, cols)
	}

	w := mat.NewDense(cols, 1, nil)
	if cols <= rows {
		gram := mat.NewSymDense(cols, nil)
		gram.SymOuterK(1, Xw.T())
		addDiag(gram, r.Alpha)
		var rhs mat.Dense
		rhs.Mul(Xw.T(), yw)
		if err := solveSPD(gram, &rhs, w); err != nil {
			return err
		}
	} else {
		kernel := mat.NewSymDense(rows, nil)
		kernel.SymOuterK(1, Xw)
		addDiag(kernel, r.Alpha)
		dual := mat.NewDense(rows, 1, nil)
		if err := solveSPD(kernel, yw, dual); err != nil {
			return err
		}
		w.Mul(Xw.T(), dual)
	}

	r.Weights = mat.Col(nil, 0, w)
	r.Bias = yMean - floats.Dot(r.Weights, xMean)
	if err := errors.CheckNumericalStability("Ridge.Fit", r.Weights, 0); err != nil {
		return err
	}
	r.State.SetFitted(cols, rows)
	return nil
}

func addDiag(s *mat.SymDense, v float64) {
	n := s.SymmetricDim()
	for i := 0; i < n; i++ {
		s.SetSym(i, i, s.At(i, i)+v)
	}
}

func solveSPD(a *mat.SymDense, b mat.Matrix, dst *mat.Dense) error {
	var chol mat.Cholesky
	if ok := chol.Factorize(a); !ok {
		return errors.NewModelError("Ridge.Fit", "matrix is not positive definite", errors.ErrSingularMatrix)
	}
	if err := chol.SolveTo(dst, b); err != nil {
		return errors.Wrap(err, "ridge solve")
	}
	return nil
}

// Predict returns X·w + b.
func (r *Ridge) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := r.State.RequireFitted("Ridge", "Predict"); err != nil {
		return nil, err
	}
	if err := r.State.CheckFeatures("Ridge.Predict", X); err != nil {
		return nil, err
	}
	return predictLinear(X, r.Weights, r.Bias), nil
}

// Coef returns the learned coefficients.
func (r *Ridge) Coef() []float64 { return append([]float64(nil), r.Weights...) }

// Intercept returns the learned intercept.
func (r *Ridge) Intercept() float64 { return r.Bias }

// GetParams returns the hyperparameters.
func (r *Ridge) GetParams() map[string]interface{} {
	return map[string]interface{}{"alpha": r.Alpha, "fit_intercept": r.FitIntercept}
}

var (
	_ model.LinearModel     = (*Ridge)(nil)
	_ model.ParameterGetter = (*Ridge)(nil)
)
