package ensemble

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/soilspec/core/earlystop"
	"github.com/YuminosukeSato/soilspec/core/model"
	"github.com/YuminosukeSato/soilspec/pkg/errors"
	"github.com/YuminosukeSato/soilspec/sklearn/tree"
)

// GradientBoostingRegressor fits shallow regression trees to the residuals
// of the running prediction (least-squares boosting).
//
// FitWithValidation evaluates the validation MSE after every stage and keeps
// only the trees up to the best stage.
type GradientBoostingRegressor struct {
	State *model.StateManager

	NEstimators    int
	LearningRate   float64
	MaxDepth       int
	MinSamplesLeaf int
	Subsample      float64 // fraction of rows drawn per stage, 1 = all
	Seed           uint64
	Patience       int
	Tol            float64

	Init    float64
	Trees   []*tree.DecisionTreeRegressor
	Stopped int
	Best    int
}

// GBOption configures a GradientBoostingRegressor.
type GBOption func(*GradientBoostingRegressor)

// WithStages sets the maximum number of boosting stages.
func WithStages(n int) GBOption {
	return func(g *GradientBoostingRegressor) { g.NEstimators = n }
}

// WithLearningRate sets the shrinkage applied to every stage.
func WithLearningRate(lr float64) GBOption {
	return func(g *GradientBoostingRegressor) { g.LearningRate = lr }
}

// WithStageDepth sets the depth of every stage tree.
func WithStageDepth(depth int) GBOption {
	return func(g *GradientBoostingRegressor) { g.MaxDepth = depth }
}

// WithSubsample sets the row fraction drawn per stage.
func WithSubsample(frac float64) GBOption {
	return func(g *GradientBoostingRegressor) { g.Subsample = frac }
}

// WithGBSeed sets the random seed.
func WithGBSeed(seed uint64) GBOption {
	return func(g *GradientBoostingRegressor) { g.Seed = seed }
}

// WithGBEarlyStopping sets patience and tolerance for validation early stopping.
func WithGBEarlyStopping(patience int, tol float64) GBOption {
	return func(g *GradientBoostingRegressor) {
		g.Patience = patience
		g.Tol = tol
	}
}

// NewGradientBoostingRegressor creates a booster with 100 depth-3 stages.
func NewGradientBoostingRegressor(options ...GBOption) *GradientBoostingRegressor {
	g := &GradientBoostingRegressor{
		State:          model.NewStateManager(),
		NEstimators:    100,
		LearningRate:   0.1,
		MaxDepth:       3,
		MinSamplesLeaf: 1,
		Subsample:      1.0,
		Patience:       10,
		Tol:            1e-6,
		Stopped:        -1,
		Best:           -1,
	}
	for _, opt := range options {
		opt(g)
	}
	return g
}

func (g *GradientBoostingRegressor) validate() error {
	if g.NEstimators < 1 {
		return errors.NewValidationError("n_estimators", "must be at least 1", g.NEstimators)
	}
	if g.LearningRate <= 0 {
		return errors.NewValidationError("learning_rate", "must be positive", g.LearningRate)
	}
	if g.Subsample <= 0 || g.Subsample > 1 {
		return errors.NewValidationError("subsample", "must be in (0, 1]", g.Subsample)
	}
	return nil
}

// Fit runs all stages on (X, y).
func (g *GradientBoostingRegressor) Fit(X, y mat.Matrix) error {
	return g.fit(X, y, nil, nil, earlystop.New(0, 0))
}

// FitWithValidation boosts on (X, y) and stops when the validation MSE has
// not improved for Patience stages.
func (g *GradientBoostingRegressor) FitWithValidation(X, y, Xval, yval mat.Matrix) error {
	_, cols := X.Dims()
	if _, vc := Xval.Dims(); vc != cols {
		return errors.NewDimensionError("GradientBoostingRegressor.FitWithValidation", cols, vc, 1)
	}
	return g.fit(X, y, Xval, yval, earlystop.New(g.Patience, g.Tol))
}

func (g *GradientBoostingRegressor) fit(X, y, Xval, yval mat.Matrix, monitor *earlystop.Monitor) error {
	if err := g.validate(); err != nil {
		return err
	}
	rows, cols := X.Dims()
	if rows == 0 {
		return errors.NewModelError("GradientBoostingRegressor.Fit", "empty data", errors.ErrEmptyData)
	}
	if yr, _ := y.Dims(); yr != rows {
		return errors.NewDimensionError("GradientBoostingRegressor.Fit", rows, yr, 0)
	}

	Xd := mat.DenseCopyOf(X)
	yv := model.ColumnToSlice(y)
	var sum float64
	for _, v := range yv {
		sum += v
	}
	g.Init = sum / float64(rows)
	g.Trees = g.Trees[:0]

	pred := make([]float64, rows)
	for i := range pred {
		pred[i] = g.Init
	}
	residual := make([]float64, rows)

	// 検証データを使わない場合は訓練データの損失を監視する
	evalX, evalY := Xd, yv
	if Xval != nil {
		evalX = mat.DenseCopyOf(Xval)
		evalY = model.ColumnToSlice(yval)
	}
	evalPred := make([]float64, len(evalY))
	for i := range evalPred {
		evalPred[i] = g.Init
	}

	rng := rand.New(rand.NewPCG(g.Seed, g.Seed^0xda3e39cb94b95bdb))
	nSub := max(1, int(g.Subsample*float64(rows)))
	all := make([]int, rows)
	for i := range all {
		all[i] = i
	}
	_, evalCols := evalX.Dims()
	row := make([]float64, evalCols)

	bestStages := 0
	res, err := monitor.Run(g.NEstimators,
		func(stage int) (float64, error) {
			for i := range residual {
				residual[i] = yv[i] - pred[i]
			}
			sample := all
			if nSub < rows {
				sample = rng.Perm(rows)[:nSub]
			}
			dt := tree.NewDecisionTreeRegressor(
				tree.WithMaxDepth(g.MaxDepth),
				tree.WithMinSamplesLeaf(g.MinSamplesLeaf),
				tree.WithSeed(g.Seed+uint64(stage)),
			)
			if err := dt.FitSubset(Xd, residual, sample); err != nil {
				return 0, errors.Wrapf(err, "boosting stage %d", stage)
			}
			g.Trees = append(g.Trees, dt)

			for i := 0; i < rows; i++ {
				pred[i] += g.LearningRate * dt.PredictRow(Xd.RawRowView(i))
			}
			var loss float64
			for i := range evalPred {
				mat.Row(row, i, evalX)
				evalPred[i] += g.LearningRate * dt.PredictRow(row)
				d := evalY[i] - evalPred[i]
				loss += d * d
			}
			return loss / float64(len(evalPred)), nil
		},
		func() { bestStages = len(g.Trees) },
		func() { g.Trees = g.Trees[:bestStages] })
	if err != nil {
		return err
	}

	g.Stopped = res.StoppedIteration
	g.Best = res.BestIteration
	g.State.SetFitted(cols, rows)
	return nil
}

// Predict returns Init + LearningRate * Σ tree(x).
func (g *GradientBoostingRegressor) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := g.State.RequireFitted("GradientBoostingRegressor", "Predict"); err != nil {
		return nil, err
	}
	if err := g.State.CheckFeatures("GradientBoostingRegressor.Predict", X); err != nil {
		return nil, err
	}
	rows, cols := X.Dims()
	out := mat.NewDense(rows, 1, nil)
	row := make([]float64, cols)
	for i := 0; i < rows; i++ {
		mat.Row(row, i, X)
		v := g.Init
		for _, t := range g.Trees {
			v += g.LearningRate * t.PredictRow(row)
		}
		out.Set(i, 0, v)
	}
	return out, nil
}

// StoppedIteration returns the last stage fitted.
func (g *GradientBoostingRegressor) StoppedIteration() int { return g.Stopped }

// BestIteration returns the stage whose ensemble was kept.
func (g *GradientBoostingRegressor) BestIteration() int { return g.Best }

// GetParams returns the hyperparameters.
func (g *GradientBoostingRegressor) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"n_estimators":  g.NEstimators,
		"learning_rate": g.LearningRate,
		"max_depth":     g.MaxDepth,
		"subsample":     g.Subsample,
		"patience":      g.Patience,
		"tol":           g.Tol,
		"seed":          g.Seed,
	}
}

func (g *GradientBoostingRegressor) String() string {
	return fmt.Sprintf("GradientBoostingRegressor(n_estimators=%d, learning_rate=%g)", g.NEstimators, g.LearningRate)
}

var _ model.ParameterGetter = (*GradientBoostingRegressor)(nil)
