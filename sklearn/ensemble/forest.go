// Package ensemble implements tree ensembles: bagged random forests,
// extremely randomized trees and least-squares gradient boosting.
package ensemble

import (
	"context"
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/soilspec/core/model"
	"github.com/YuminosukeSato/soilspec/core/parallel"
	"github.com/YuminosukeSato/soilspec/pkg/errors"
	"github.com/YuminosukeSato/soilspec/sklearn/tree"
)

// treeSeed derives an independent seed for tree i so that results do not
// depend on the order in which trees are fitted.
func treeSeed(seed uint64, i int) uint64 {
	return seed ^ (uint64(i+1) * 0x9e3779b97f4a7c15)
}

// ForestRegressor averages the predictions of independently grown trees.
// RandomForest and ExtraTrees differ only in Bootstrap and Splitter.
type ForestRegressor struct {
	State *model.StateManager

	Name            string
	NEstimators     int
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int
	MaxFeatures     int // 0 = p/3 for bootstrap forests, all features otherwise
	Bootstrap       bool
	Splitter        string
	Seed            uint64
	Workers         int

	Trees []*tree.DecisionTreeRegressor
}

// ForestOption configures a ForestRegressor.
type ForestOption func(*ForestRegressor)

// WithNEstimators sets the number of trees.
func WithNEstimators(n int) ForestOption {
	return func(f *ForestRegressor) { f.NEstimators = n }
}

// WithMaxDepth sets the maximum depth of every tree.
func WithMaxDepth(depth int) ForestOption {
	return func(f *ForestRegressor) { f.MaxDepth = depth }
}

// WithMinSamplesLeaf sets the minimum leaf size of every tree.
func WithMinSamplesLeaf(n int) ForestOption {
	return func(f *ForestRegressor) { f.MinSamplesLeaf = n }
}

// WithMaxFeatures sets the number of features examined per split.
func WithMaxFeatures(n int) ForestOption {
	return func(f *ForestRegressor) { f.MaxFeatures = n }
}

// WithSeed sets the random seed.
func WithSeed(seed uint64) ForestOption {
	return func(f *ForestRegressor) { f.Seed = seed }
}

// WithWorkers sets the number of goroutines used to grow trees.
func WithWorkers(n int) ForestOption {
	return func(f *ForestRegressor) { f.Workers = n }
}

func newForest(name string, bootstrap bool, splitter string, options []ForestOption) *ForestRegressor {
	f := &ForestRegressor{
		State:           model.NewStateManager(),
		Name:            name,
		NEstimators:     100,
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
		Bootstrap:       bootstrap,
		Splitter:        splitter,
		Workers:         1,
	}
	for _, opt := range options {
		opt(f)
	}
	return f
}

// NewRandomForestRegressor creates a bagged forest of best-split trees.
func NewRandomForestRegressor(options ...ForestOption) *ForestRegressor {
	return newForest("RandomForestRegressor", true, tree.SplitterBest, options)
}

// NewExtraTreesRegressor creates a forest of random-split trees grown on the
// full training set.
func NewExtraTreesRegressor(options ...ForestOption) *ForestRegressor {
	return newForest("ExtraTreesRegressor", false, tree.SplitterRandom, options)
}

// Fit grows NEstimators trees, in parallel when Workers > 1.
func (f *ForestRegressor) Fit(X, y mat.Matrix) error {
	if f.NEstimators < 1 {
		return errors.NewValidationError("n_estimators", "must be at least 1", f.NEstimators)
	}
	rows, cols := X.Dims()
	yRows, _ := y.Dims()
	if rows == 0 {
		return errors.NewModelError(f.Name+".Fit", "empty data", errors.ErrEmptyData)
	}
	if rows != yRows {
		return errors.NewDimensionError(f.Name+".Fit", rows, yRows, 0)
	}

	maxFeatures := f.MaxFeatures
	if maxFeatures == 0 && f.Bootstrap {
		maxFeatures = max(1, cols/3)
	}

	Xd := mat.DenseCopyOf(X)
	yv := model.ColumnToSlice(y)
	trees := make([]*tree.DecisionTreeRegressor, f.NEstimators)

	errs, err := parallel.ForEach(context.Background(), f.NEstimators, f.Workers, func(_ context.Context, i int) error {
		seed := treeSeed(f.Seed, i)
		dt := tree.NewDecisionTreeRegressor(
			tree.WithMaxDepth(f.MaxDepth),
			tree.WithMinSamplesSplit(f.MinSamplesSplit),
			tree.WithMinSamplesLeaf(f.MinSamplesLeaf),
			tree.WithMaxFeatures(maxFeatures),
			tree.WithSplitter(f.Splitter),
			tree.WithSeed(seed),
		)
		sample := make([]int, rows)
		if f.Bootstrap {
			rng := rand.New(rand.NewPCG(seed, seed+1))
			for j := range sample {
				sample[j] = rng.IntN(rows)
			}
		} else {
			for j := range sample {
				sample[j] = j
			}
		}
		if err := dt.FitSubset(Xd, yv, sample); err != nil {
			return errors.Wrapf(err, "tree %d", i)
		}
		trees[i] = dt
		return nil
	})
	if err != nil {
		return err
	}
	for _, e := range errs {
		if e != nil {
			return e
		}
	}

	f.Trees = trees
	f.State.SetFitted(cols, rows)
	return nil
}

// Predict averages the tree predictions.
func (f *ForestRegressor) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := f.State.RequireFitted(f.Name, "Predict"); err != nil {
		return nil, err
	}
	if err := f.State.CheckFeatures(f.Name+".Predict", X); err != nil {
		return nil, err
	}
	rows, cols := X.Dims()
	out := mat.NewDense(rows, 1, nil)
	row := make([]float64, cols)
	for i := 0; i < rows; i++ {
		mat.Row(row, i, X)
		var sum float64
		for _, t := range f.Trees {
			sum += t.PredictRow(row)
		}
		out.Set(i, 0, sum/float64(len(f.Trees)))
	}
	return out, nil
}

// FeatureImportances averages the per-tree importances.
func (f *ForestRegressor) FeatureImportances() []float64 {
	if len(f.Trees) == 0 {
		return nil
	}
	out := make([]float64, len(f.Trees[0].Importances))
	for _, t := range f.Trees {
		for j, v := range t.Importances {
			out[j] += v / float64(len(f.Trees))
		}
	}
	return out
}

// GetParams returns the hyperparameters.
func (f *ForestRegressor) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"n_estimators":     f.NEstimators,
		"max_depth":        f.MaxDepth,
		"min_samples_leaf": f.MinSamplesLeaf,
		"max_features":     f.MaxFeatures,
		"bootstrap":        f.Bootstrap,
		"splitter":         f.Splitter,
		"seed":             f.Seed,
	}
}

func (f *ForestRegressor) String() string {
	return fmt.Sprintf("%s(n_estimators=%d, max_depth=%d)", f.Name, f.NEstimators, f.MaxDepth)
}

var _ model.ParameterGetter = (*ForestRegressor)(nil)
