package cross_decomposition

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/soilspec/core/earlystop"
	"github.com/YuminosukeSato/soilspec/pkg/errors"
)

// EnhancedPLS searches the number of PLS components on a validation split.
//
// Components are added one at a time up to MaxComponents; each count is
// scored by validation MSE and the search stops after Patience counts
// without improvement. The model keeps the best count.
type EnhancedPLS struct {
	PLSRegression

	MaxComponents int
	Patience      int
	Tol           float64

	Stopped int
	Best    int
}

// NewEnhancedPLS creates a component search over 1..maxComponents.
func NewEnhancedPLS(maxComponents, patience int) *EnhancedPLS {
	return &EnhancedPLS{
		PLSRegression: *NewPLSRegression(maxComponents),
		MaxComponents: maxComponents,
		Patience:      patience,
		Tol:           1e-6,
		Stopped:       -1,
		Best:          -1,
	}
}

// Fit uses (X, y) for both extraction and scoring, which always selects the
// largest count; FitWithValidation is the intended entry point.
func (e *EnhancedPLS) Fit(X, y mat.Matrix) error {
	return e.FitWithValidation(X, y, X, y)
}

// FitWithValidation extracts up to MaxComponents on (X, y) and picks the
// count that minimizes MSE on (Xval, yval).
func (e *EnhancedPLS) FitWithValidation(X, y, Xval, yval mat.Matrix) error {
	if e.MaxComponents < 1 {
		return errors.NewValidationError("max_components", "must be at least 1", e.MaxComponents)
	}
	rows, cols := X.Dims()
	if _, vc := Xval.Dims(); vc != cols {
		return errors.NewDimensionError("EnhancedPLS.FitWithValidation", cols, vc, 1)
	}
	limit := min(e.MaxComponents, cols, rows-1)
	if limit < 1 {
		limit = 1
	}

	extracted, err := e.extract(X, y, limit)
	if err != nil {
		return err
	}

	bestCount := 1
	monitor := earlystop.New(e.Patience, e.Tol)
	res, err := monitor.Run(extracted,
		func(i int) (float64, error) {
			if err := e.setCoefficients(i + 1); err != nil {
				return 0, err
			}
			return e.mse(Xval, yval), nil
		},
		func() { bestCount = e.NComponents },
		func() {})
	if err != nil {
		return err
	}
	if err := e.setCoefficients(bestCount); err != nil {
		return err
	}

	e.Stopped = res.StoppedIteration
	e.Best = res.BestIteration
	e.State.SetFitted(cols, rows)
	return nil
}

func (e *EnhancedPLS) mse(X, y mat.Matrix) float64 {
	rows, cols := X.Dims()
	row := make([]float64, cols)
	var sum float64
	for i := 0; i < rows; i++ {
		mat.Row(row, i, X)
		pred := e.Bias
		for j, v := range row {
			pred += e.Weights[j] * v
		}
		d := y.At(i, 0) - pred
		sum += d * d
	}
	return sum / float64(rows)
}

// StoppedIteration returns the last component index scored (0-based).
func (e *EnhancedPLS) StoppedIteration() int { return e.Stopped }

// BestIteration returns the selected component index (0-based); the model
// uses BestIteration()+1 components.
func (e *EnhancedPLS) BestIteration() int { return e.Best }

// GetParams returns the hyperparameters.
func (e *EnhancedPLS) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"max_components": e.MaxComponents,
		"patience":       e.Patience,
		"tol":            e.Tol,
		"scale":          e.Scale,
	}
}

func (e *EnhancedPLS) String() string {
	return fmt.Sprintf("EnhancedPLS(max_components=%d, selected=%d)", e.MaxComponents, e.NComponents)
}
