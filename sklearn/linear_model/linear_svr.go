package linear_model

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/soilspec/core/earlystop"
	"github.com/YuminosukeSato/soilspec/core/model"
	"github.com/YuminosukeSato/soilspec/pkg/errors"
)

// LinearSVR is a linear support vector regressor fitted with passive-aggressive
// updates on the epsilon-insensitive loss (PA-II).
//
// Each epoch visits every training row once in a seeded random order. Fit stops
// when the training loss has not improved for Patience epochs;
// FitWithValidation uses the validation MSE instead and keeps the weights of the
// best epoch.
type LinearSVR struct {
	State *model.StateManager

	C            float64 // 正則化パラメータ
	Epsilon      float64 // 不感帯の幅
	MaxIter      int     // 最大エポック数
	Tol          float64
	Patience     int
	FitIntercept bool
	Shuffle      bool
	Seed         uint64

	Weights []float64
	Bias    float64

	Stopped int
	Best    int
}

// LinearSVROption は設定オプション
type LinearSVROption func(*LinearSVR)

// WithSVRC はCパラメータを設定
func WithSVRC(c float64) LinearSVROption {
	return func(s *LinearSVR) { s.C = c }
}

// WithSVREpsilon は不感帯の幅を設定
func WithSVREpsilon(eps float64) LinearSVROption {
	return func(s *LinearSVR) { s.Epsilon = eps }
}

// WithSVRMaxIter は最大エポック数を設定
func WithSVRMaxIter(n int) LinearSVROption {
	return func(s *LinearSVR) { s.MaxIter = n }
}

// WithSVREarlyStopping は早期終了のpatienceとtolを設定
func WithSVREarlyStopping(patience int, tol float64) LinearSVROption {
	return func(s *LinearSVR) {
		s.Patience = patience
		s.Tol = tol
	}
}

// WithSVRSeed は乱数シードを設定
func WithSVRSeed(seed uint64) LinearSVROption {
	return func(s *LinearSVR) { s.Seed = seed }
}

// NewLinearSVR creates a LinearSVR with C=1, epsilon=0.1 and 200 epochs.
func NewLinearSVR(options ...LinearSVROption) *LinearSVR {
	s := &LinearSVR{
		State:        model.NewStateManager(),
		C:            1.0,
		Epsilon:      0.1,
		MaxIter:      200,
		Tol:          1e-4,
		Patience:     5,
		FitIntercept: true,
		Shuffle:      true,
		Stopped:      -1,
		Best:         -1,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

func (s *LinearSVR) validate() error {
	if s.C <= 0 {
		return errors.NewValidationError("C", "must be positive", s.C)
	}
	if s.Epsilon < 0 {
		return errors.NewValidationError("epsilon", "must be non-negative", s.Epsilon)
	}
	if s.MaxIter < 1 {
		return errors.NewValidationError("max_iter", "must be at least 1", s.MaxIter)
	}
	return nil
}

// Fit trains on (X, y) with the mean epsilon-insensitive training loss as the
// stopping criterion.
func (s *LinearSVR) Fit(X, y mat.Matrix) error {
	return s.fit(X, y, func() float64 { return s.epsilonLoss(X, y) })
}

// FitWithValidation trains on (X, y) and stops on the MSE of (Xval, yval).
func (s *LinearSVR) FitWithValidation(X, y, Xval, yval mat.Matrix) error {
	_, cols := X.Dims()
	if _, vc := Xval.Dims(); vc != cols {
		return errors.NewDimensionError("LinearSVR.FitWithValidation", cols, vc, 1)
	}
	return s.fit(X, y, func() float64 { return s.squaredLoss(Xval, yval) })
}

func (s *LinearSVR) fit(X, y mat.Matrix, lossFn func() float64) error {
	if err := s.validate(); err != nil {
		return err
	}
	rows, cols, err := checkFitInput("LinearSVR.Fit", X, y)
	if err != nil {
		return err
	}

	s.Weights = make([]float64, cols)
	s.Bias = 0
	rng := rand.New(rand.NewPCG(s.Seed, s.Seed^0x9e3779b97f4a7c15))
	order := make([]int, rows)
	for i := range order {
		order[i] = i
	}
	row := make([]float64, cols)

	var bestW []float64
	var bestB float64
	monitor := earlystop.New(s.Patience, s.Tol)
	res, err := monitor.Run(s.MaxIter,
		func(epoch int) (float64, error) {
			if s.Shuffle {
				rng.Shuffle(rows, func(i, j int) { order[i], order[j] = order[j], order[i] })
			}
			for _, i := range order {
				mat.Row(row, i, X)
				s.updateWeights(row, y.At(i, 0))
			}
			if err := errors.CheckNumericalStability("LinearSVR.Fit", s.Weights, epoch); err != nil {
				return 0, err
			}
			return lossFn(), nil
		},
		func() {
			bestW = append(bestW[:0], s.Weights...)
			bestB = s.Bias
		},
		func() {
			copy(s.Weights, bestW)
			s.Bias = bestB
		})
	if err != nil {
		return err
	}

	s.Stopped = res.StoppedIteration
	s.Best = res.BestIteration
	if !res.EarlyStopped && monitor.Enabled {
		errors.Warn(errors.NewConvergenceWarning("LinearSVR", s.MaxIter, ""))
	}
	s.State.SetFitted(cols, rows)
	return nil
}

// updateWeights は1サンプルでPA-II更新を行う
func (s *LinearSVR) updateWeights(x []float64, y float64) {
	pred := floats.Dot(s.Weights, x) + s.Bias
	loss := math.Max(0, math.Abs(y-pred)-s.Epsilon)
	if loss == 0 {
		return
	}

	norm := floats.Dot(x, x)
	if s.FitIntercept {
		norm++
	}
	tau := loss / (norm + 1.0/(2.0*s.C))
	if y < pred {
		tau = -tau
	}

	floats.AddScaled(s.Weights, tau, x)
	if s.FitIntercept {
		s.Bias += tau
	}
}

func (s *LinearSVR) epsilonLoss(X, y mat.Matrix) float64 {
	pred := predictLinear(X, s.Weights, s.Bias)
	rows, _ := X.Dims()
	var sum float64
	for i := 0; i < rows; i++ {
		sum += math.Max(0, math.Abs(y.At(i, 0)-pred.At(i, 0))-s.Epsilon)
	}
	return sum / float64(rows)
}

func (s *LinearSVR) squaredLoss(X, y mat.Matrix) float64 {
	pred := predictLinear(X, s.Weights, s.Bias)
	rows, _ := X.Dims()
	var sum float64
	for i := 0; i < rows; i++ {
		d := y.At(i, 0) - pred.At(i, 0)
		sum += d * d
	}
	return sum / float64(rows)
}

// Predict returns X·w + b.
func (s *LinearSVR) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := s.State.RequireFitted("LinearSVR", "Predict"); err != nil {
		return nil, err
	}
	if err := s.State.CheckFeatures("LinearSVR.Predict", X); err != nil {
		return nil, err
	}
	return predictLinear(X, s.Weights, s.Bias), nil
}

// Coef returns the learned coefficients.
func (s *LinearSVR) Coef() []float64 { return append([]float64(nil), s.Weights...) }

// Intercept returns the learned intercept.
func (s *LinearSVR) Intercept() float64 { return s.Bias }

// StoppedIteration returns the last epoch run.
func (s *LinearSVR) StoppedIteration() int { return s.Stopped }

// BestIteration returns the epoch whose weights were kept.
func (s *LinearSVR) BestIteration() int { return s.Best }

// GetParams returns the hyperparameters.
func (s *LinearSVR) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"C":             s.C,
		"epsilon":       s.Epsilon,
		"max_iter":      s.MaxIter,
		"tol":           s.Tol,
		"patience":      s.Patience,
		"fit_intercept": s.FitIntercept,
		"seed":          s.Seed,
	}
}

func (s *LinearSVR) String() string {
	return fmt.Sprintf("LinearSVR(C=%g, epsilon=%g, max_iter=%d)", s.C, s.Epsilon, s.MaxIter)
}

var (
	_ model.LinearModel     = (*LinearSVR)(nil)
	_ model.ParameterGetter = (*LinearSVR)(nil)
)
