package evaluation

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/soilspec/core/parallel"
	"github.com/YuminosukeSato/soilspec/dataset"
	"github.com/YuminosukeSato/soilspec/pkg/errors"
	"github.com/YuminosukeSato/soilspec/pkg/log"
	"github.com/YuminosukeSato/soilspec/preprocessing"
	"github.com/YuminosukeSato/soilspec/sklearn/model_selection"
	"github.com/YuminosukeSato/soilspec/training"
)

// CVOptions controls CrossValidate.
type CVOptions struct {
	Folds   int  // default 5
	Shuffle bool // shuffle before splitting, seeded by the trainer seed
	Workers int  // folds fitted concurrently; <= 1 is sequential
}

// FoldScore is the test score of one fold.
type FoldScore struct {
	Fold   int `json:"fold"`
	NTrain int `json:"n_train"`
	Metrics
}

// CVResult summarizes a k-fold run.
type CVResult struct {
	Target        string               `json:"target"`
	Algorithm     string               `json:"algorithm"`
	Preprocessing preprocessing.Config `json:"preprocessing"`
	Folds         []FoldScore          `json:"folds"`
	MeanR2        float64              `json:"mean_r2"`
	StdR2         float64              `json:"std_r2"`
	MeanRMSE      float64              `json:"mean_rmse"`
}

// R2Scores returns the per-fold R² in fold order.
func (r *CVResult) R2Scores() []float64 {
	out := make([]float64, len(r.Folds))
	for i, f := range r.Folds {
		out[i] = f.R2
	}
	return out
}

// CrossValidate fits a fresh pipeline and model on the training rows of every
// fold and scores it on the held-out rows. Folds depend only on the sample
// count, the fold count and the trainer seed, so identical inputs give
// identical folds and scores regardless of Workers.
func CrossValidate(ctx context.Context, tr *training.Trainer, ds *dataset.Dataset, target, algorithm string,
	cfg preprocessing.Config, hp training.Hyperparams, opts CVOptions) (*CVResult, error) {
	if opts.Folds == 0 {
		opts.Folds = 5
	}
	if opts.Folds < 2 {
		return nil, errors.NewValidationError("cv_folds", "must be at least 2", opts.Folds)
	}
	if _, err := tr.Registry().Lookup(algorithm); err != nil {
		return nil, err
	}
	X, y, _, err := ds.Target(target)
	if err != nil {
		return nil, errors.NewTrainingError(target, algorithm, "cannot extract target", err)
	}
	if minSamples := tr.Options().MinSamples; len(y) < minSamples {
		return nil, errors.NewTrainingError(target, algorithm,
			fmt.Sprintf("too few samples: %d with measured values, need %d", len(y), minSamples), nil)
	}
	seed := tr.Options().Seed
	folds, err := model_selection.NewKFold(opts.Folds, opts.Shuffle, seed).Split(len(y))
	if err != nil {
		return nil, errors.NewTrainingError(target, algorithm, "cannot build folds", err)
	}

	scores := make([]FoldScore, len(folds))
	errs, ctxErr := parallel.ForEach(ctx, len(folds), opts.Workers, func(_ context.Context, i int) error {
		f := folds[i]
		fitted, err := tr.Fit(
			model_selection.SubsetRows(X, f.TrainIndices),
			model_selection.SubsetValues(y, f.TrainIndices),
			target, algorithm, cfg, hp, seed,
		)
		if err != nil {
			return err
		}
		pred, err := fitted.Predict(model_selection.SubsetRows(X, f.TestIndices))
		if err != nil {
			return errors.NewTrainingError(target, algorithm, "prediction failed", err)
		}
		m, err := Evaluate(model_selection.SubsetValues(y, f.TestIndices), pred)
		if err != nil {
			return errors.NewTrainingError(target, algorithm, "cannot score fold", err)
		}
		scores[i] = FoldScore{Fold: i, NTrain: len(f.TrainIndices), Metrics: m}
		return nil
	})
	if ctxErr != nil {
		return nil, ctxErr
	}
	for i, err := range errs {
		if err != nil {
			return nil, errors.Wrapf(err, "fold %d", i)
		}
	}

	res := &CVResult{Target: target, Algorithm: algorithm, Preprocessing: cfg.Normalize(), Folds: scores}
	r2 := res.R2Scores()
	rmse := make([]float64, len(scores))
	for i, s := range scores {
		rmse[i] = s.RMSE
	}
	res.MeanR2, res.StdR2 = stat.PopMeanStdDev(r2, nil)
	res.MeanRMSE = stat.Mean(rmse, nil)

	if logger := tr.Options().Logger; logger != nil {
		logger.Info("cross-validation finished",
			log.TargetKey, target,
			log.AlgorithmKey, algorithm,
			log.PreprocessingKey, cfg.Label(),
			log.R2ScoreKey, res.MeanR2,
			"cv.folds", len(folds),
		)
	}
	return res, nil
}
