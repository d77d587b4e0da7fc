// Package cross_decomposition implements partial least squares regression
// for a single response (PLS1, NIPALS).
package cross_decomposition

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/soilspec/core/model"
	"github.com/YuminosukeSato/soilspec/pkg/errors"
)

// PLSRegression projects X onto latent components that maximize covariance
// with y and regresses y on those components.
type PLSRegression struct {
	State *model.StateManager

	NComponents int
	Scale       bool

	// 学習済みパラメータ
	XMean, XStd []float64
	YMean, YStd float64
	XWeights    *mat.Dense // p×k
	XLoadings   *mat.Dense // p×k
	YLoadings   []float64  // k
	Weights     []float64  // coefficients in the original feature scale
	Bias        float64
}

// NewPLSRegression creates a PLS model with nComponents latent variables.
func NewPLSRegression(nComponents int) *PLSRegression {
	return &PLSRegression{State: model.NewStateManager(), NComponents: nComponents, Scale: true}
}

// Fit extracts NComponents latent variables with NIPALS.
func (p *PLSRegression) Fit(X, y mat.Matrix) error {
	rows, cols := X.Dims()
	if p.NComponents < 1 {
		return errors.NewValidationError("n_components", "must be at least 1", p.NComponents)
	}
	if p.NComponents > cols || p.NComponents > rows {
		return errors.NewValidationError("n_components",
			fmt.Sprintf("must not exceed min(n_samples, n_features) = %d", min(rows, cols)), p.NComponents)
	}
	k, err := p.extract(X, y, p.NComponents)
	if err != nil {
		return err
	}
	if err := p.setCoefficients(k); err != nil {
		return err
	}
	p.State.SetFitted(cols, rows)
	return nil
}

// extract runs NIPALS for up to k components and returns how many were
// extracted. Extraction stops early when the residual response is exhausted.
func (p *PLSRegression) extract(X, y mat.Matrix, k int) (int, error) {
	rows, cols := X.Dims()
	if rows < 2 {
		return 0, errors.NewModelError("PLSRegression.Fit", "need at least 2 samples", errors.ErrEmptyData)
	}
	if yr, yc := y.Dims(); yr != rows || yc != 1 {
		return 0, errors.NewDimensionError("PLSRegression.Fit", rows, yr, 0)
	}
	if err := errors.CheckMatrix("PLSRegression.Fit", X, rows, cols, 0); err != nil {
		return 0, err
	}

	Xk := mat.DenseCopyOf(X)
	p.XMean = make([]float64, cols)
	p.XStd = make([]float64, cols)
	col := make([]float64, rows)
	for j := 0; j < cols; j++ {
		mat.Col(col, j, Xk)
		mean, std := stat.MeanStdDev(col, nil)
		if !p.Scale || std == 0 || math.IsNaN(std) {
			std = 1
		}
		p.XMean[j], p.XStd[j] = mean, std
	}
	Xk.Apply(func(_, j int, v float64) float64 { return (v - p.XMean[j]) / p.XStd[j] }, Xk)

	yk := model.ColumnToSlice(y)
	yMean, yStd := stat.MeanStdDev(yk, nil)
	if !p.Scale || yStd == 0 || math.IsNaN(yStd) {
		yStd = 1
	}
	p.YMean, p.YStd = yMean, yStd
	for i := range yk {
		yk[i] = (yk[i] - yMean) / yStd
	}

	W := mat.NewDense(cols, k, nil)
	P := mat.NewDense(cols, k, nil)
	q := make([]float64, 0, k)

	yVec := mat.NewVecDense(rows, yk)
	w := mat.NewVecDense(cols, nil)
	t := mat.NewVecDense(rows, nil)
	pl := mat.NewVecDense(cols, nil)

	a := 0
	for ; a < k; a++ {
		w.MulVec(Xk.T(), yVec)
		norm := floats.Norm(w.RawVector().Data, 2)
		if norm < 1e-12 {
			break
		}
		w.ScaleVec(1/norm, w)
		t.MulVec(Xk, w)
		tt := mat.Dot(t, t)
		if tt < 1e-12 {
			break
		}
		pl.MulVec(Xk.T(), t)
		pl.ScaleVec(1/tt, pl)
		qa := mat.Dot(yVec, t) / tt

		// 残差を更新
		var outer mat.Dense
		outer.Outer(1, t, pl)
		Xk.Sub(Xk, &outer)
		yVec.AddScaledVec(yVec, -qa, t)

		W.SetCol(a, w.RawVector().Data)
		P.SetCol(a, pl.RawVector().Data)
		q = append(q, qa)
	}
	if a == 0 {
		return 0, errors.NewModelError("PLSRegression.Fit", "response has no variance explained by X", errors.ErrSingularMatrix)
	}

	p.XWeights = mat.DenseCopyOf(W.Slice(0, cols, 0, a))
	p.XLoadings = mat.DenseCopyOf(P.Slice(0, cols, 0, a))
	p.YLoadings = q
	return a, nil
}

// coefficientsFor returns the scaled-space regression vector using the first
// a components: W (PᵀW)⁻¹ q.
func (p *PLSRegression) coefficientsFor(a int) ([]float64, error) {
	cols, _ := p.XWeights.Dims()
	W := p.XWeights.Slice(0, cols, 0, a)
	P := p.XLoadings.Slice(0, cols, 0, a)

	var ptw mat.Dense
	ptw.Mul(P.T(), W)
	var z mat.VecDense
	if err := z.SolveVec(&ptw, mat.NewVecDense(a, append([]float64(nil), p.YLoadings[:a]...))); err != nil {
		return nil, errors.Wrap(err, "pls coefficients")
	}
	var b mat.VecDense
	b.MulVec(W, &z)
	return b.RawVector().Data, nil
}

// setCoefficients maps the a-component solution back to the original scale.
func (p *PLSRegression) setCoefficients(a int) error {
	b, err := p.coefficientsFor(a)
	if err != nil {
		return err
	}
	p.Weights = make([]float64, len(b))
	for j := range b {
		p.Weights[j] = b[j] * p.YStd / p.XStd[j]
	}
	p.Bias = p.YMean - floats.Dot(p.Weights, p.XMean)
	p.NComponents = a
	return errors.CheckNumericalStability("PLSRegression.Fit", p.Weights, a)
}

// Predict returns X·coef + intercept.
func (p *PLSRegression) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := p.State.RequireFitted("PLSRegression", "Predict"); err != nil {
		return nil, err
	}
	if err := p.State.CheckFeatures("PLSRegression.Predict", X); err != nil {
		return nil, err
	}
	rows, _ := X.Dims()
	out := mat.NewDense(rows, 1, nil)
	out.Mul(X, mat.NewVecDense(len(p.Weights), p.Weights))
	for i := 0; i < rows; i++ {
		out.Set(i, 0, out.At(i, 0)+p.Bias)
	}
	return out, nil
}

// Transform projects X onto the latent scores.
func (p *PLSRegression) Transform(X mat.Matrix) (mat.Matrix, error) {
	if err := p.State.RequireFitted("PLSRegression", "Transform"); err != nil {
		return nil, err
	}
	if err := p.State.CheckFeatures("PLSRegression.Transform", X); err != nil {
		return nil, err
	}
	Xs := mat.DenseCopyOf(X)
	Xs.Apply(func(_, j int, v float64) float64 { return (v - p.XMean[j]) / p.XStd[j] }, Xs)

	// rotations = W (PᵀW)⁻¹
	_, a := p.XWeights.Dims()
	var ptw, inv, rot mat.Dense
	ptw.Mul(p.XLoadings.T(), p.XWeights)
	if err := inv.Inverse(&ptw); err != nil {
		return nil, errors.Wrap(err, "pls rotations")
	}
	rot.Mul(p.XWeights, &inv)
	rows, _ := Xs.Dims()
	scores := mat.NewDense(rows, a, nil)
	scores.Mul(Xs, &rot)
	return scores, nil
}

// Coef returns the coefficients in the original feature scale.
func (p *PLSRegression) Coef() []float64 { return append([]float64(nil), p.Weights...) }

// Intercept returns the intercept.
func (p *PLSRegression) Intercept() float64 { return p.Bias }

// GetParams returns the hyperparameters.
func (p *PLSRegression) GetParams() map[string]interface{} {
	return map[string]interface{}{"n_components": p.NComponents, "scale": p.Scale}
}

func (p *PLSRegression) String() string {
	return fmt.Sprintf("PLSRegression(n_components=%d)", p.NComponents)
}

var (
	_ model.LinearModel     = (*PLSRegression)(nil)
	_ model.ParameterGetter = (*PLSRegression)(nil)
	_ model.ParameterGetter = (*EnhancedPLS)(nil)
)
