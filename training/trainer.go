// Package training fits one (target, algorithm, preprocessing) combination:
// it splits the samples, fits the feature pipeline on the training rows only,
// fits the model with optional validation early stopping and scores the
// held-out split.
package training

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/soilspec/core/model"
	"github.com/YuminosukeSato/soilspec/dataset"
	"github.com/YuminosukeSato/soilspec/metrics"
	"github.com/YuminosukeSato/soilspec/pkg/errors"
	"github.com/YuminosukeSato/soilspec/pkg/log"
	"github.com/YuminosukeSato/soilspec/preprocessing"
	"github.com/YuminosukeSato/soilspec/sklearn/model_selection"
)

// validationSalt decorrelates the validation split from the test split.
const validationSalt = 0x5bd1e9955bd1e995

// Options controls splitting and early stopping. The zero value is not
// valid; start from DefaultOptions.
type Options struct {
	Seed               uint64
	TestFraction       float64
	ValidationFraction float64 // 0 disables the validation split
	MinSamples         int
	// Patience and Tol override the learners' own defaults when positive.
	Patience int
	Tol      float64
	// Workers bounds the goroutines a single model may use.
	Workers int
	Logger  log.Logger
}

// DefaultOptions returns seed 42, a 20% test split and a 15% validation split.
func DefaultOptions() Options {
	return Options{
		Seed:               42,
		TestFraction:       0.2,
		ValidationFraction: 0.15,
		MinSamples:         10,
		Workers:            1,
	}
}

// Validate checks the fractions and minimum sample count.
func (o Options) Validate() error {
	if o.TestFraction <= 0 || o.TestFraction >= 1 {
		return errors.NewValidationError("test_fraction", "must be in (0, 1)", o.TestFraction)
	}
	if o.ValidationFraction < 0 || o.ValidationFraction >= 1 {
		return errors.NewValidationError("validation_fraction", "must be in [0, 1)", o.ValidationFraction)
	}
	if o.MinSamples < 2 {
		return errors.NewValidationError("min_samples", "must be at least 2", o.MinSamples)
	}
	if o.Patience < 0 {
		return errors.NewValidationError("patience", "must not be negative", o.Patience)
	}
	if o.Tol < 0 {
		return errors.NewValidationError("tol", "must not be negative", o.Tol)
	}
	return nil
}

// Trainer trains models from a Registry. It holds no per-run state and may be
// shared by concurrent jobs.
type Trainer struct {
	registry *Registry
	opts     Options
	logger   log.Logger
	now      func() time.Time
}

// NewTrainer validates opts and returns a Trainer.
func NewTrainer(registry *Registry, opts Options) (*Trainer, error) {
	if registry == nil {
		registry = DefaultRegistry()
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Nop()
	}
	return &Trainer{registry: registry, opts: opts, logger: logger, now: time.Now}, nil
}

// Registry returns the algorithm registry.
func (t *Trainer) Registry() *Registry { return t.registry }

// Options returns a copy of the options.
func (t *Trainer) Options() Options { return t.opts }

// Fitted is a feature pipeline and model fitted on one set of rows.
type Fitted struct {
	Pipeline    *preprocessing.FeaturePipeline
	Model       model.Regressor
	NFit        int
	NValidation int
	Stopped     int
	Best        int
}

// Predict transforms raw spectra X with the fitted pipeline and predicts.
// Non-finite predictions are reported as a NumericalInstabilityError and a
// panic as a PanicError.
func (f *Fitted) Predict(X mat.Matrix) (out []float64, err error) {
	defer errors.Recover(&err, "Fitted.Predict")
	features, err := f.Pipeline.Transform(X)
	if err != nil {
		return nil, err
	}
	pred, err := f.Model.Predict(features)
	if err != nil {
		return nil, err
	}
	out = model.ColumnToSlice(pred)
	if err := errors.CheckNumericalStability("predict", out, 0); err != nil {
		return nil, err
	}
	return out, nil
}

// Fit fits cfg and algorithm on raw spectra X and targets y. Learners that
// use validation get a seeded split of the rows; the pipeline only ever sees
// the fitting rows.
func (t *Trainer) Fit(X *mat.Dense, y []float64, target, algorithm string, cfg preprocessing.Config, hp Hyperparams, seed uint64) (*Fitted, error) {
	alg, err := t.registry.Lookup(algorithm)
	if err != nil {
		return nil, err
	}
	n := len(y)
	if r, _ := X.Dims(); r != n {
		return nil, errors.NewDimensionError("Trainer.Fit", r, n, 0)
	}

	fitIdx := model_selection.Permutation(n, 0, false)
	var valIdx []int
	if alg.UsesValidation && t.opts.ValidationFraction > 0 && n >= 4 {
		fitIdx, valIdx, err = model_selection.TrainTestSplit(n, t.opts.ValidationFraction, seed^validationSalt)
		if err != nil {
			return nil, err
		}
	}

	pipeline, err := preprocessing.NewFeaturePipeline(cfg)
	if err != nil {
		return nil, err
	}
	var Ffit mat.Matrix
	err = errors.SafeTrain(target, algorithm, func() error {
		var perr error
		Ffit, perr = pipeline.FitTransform(model_selection.SubsetRows(X, fitIdx))
		return perr
	})
	if err != nil {
		var te *errors.TrainingError
		if errors.As(err, &te) {
			return nil, err
		}
		return nil, errors.Wrapf(err, "preprocess %s for %s", cfg.Label(), target)
	}
	_, nFeatures := Ffit.Dims()
	yFit := model.SliceToColumn(model_selection.SubsetValues(y, fitIdx))

	m, err := alg.New(Params{
		Hyperparams: hp,
		Seed:        seed,
		NSamples:    len(fitIdx),
		NFeatures:   nFeatures,
		Patience:    t.opts.Patience,
		Tol:         t.opts.Tol,
		Workers:     t.opts.Workers,
	})
	if err != nil {
		return nil, errors.NewTrainingError(target, algorithm, "invalid hyperparameters", err)
	}

	err = errors.SafeTrain(target, algorithm, func() error {
		if vf, ok := m.(model.ValidationFitter); ok && len(valIdx) > 0 {
			Fval, err := pipeline.Transform(model_selection.SubsetRows(X, valIdx))
			if err != nil {
				return err
			}
			yVal := model.SliceToColumn(model_selection.SubsetValues(y, valIdx))
			return vf.FitWithValidation(Ffit, yFit, Fval, yVal)
		}
		return m.Fit(Ffit, yFit)
	})
	if err != nil {
		var te *errors.TrainingError
		if errors.As(err, &te) {
			return nil, err
		}
		return nil, errors.NewTrainingError(target, algorithm, "fit failed", err)
	}

	// a diverged learner shows up as non-finite predictions on its own data
	err = errors.SafeTrain(target, algorithm, func() error {
		pred, err := m.Predict(Ffit)
		if err != nil {
			return err
		}
		return errors.CheckNumericalStability(algorithm+".predict", model.ColumnToSlice(pred), 0)
	})
	if err != nil {
		var te *errors.TrainingError
		if errors.As(err, &te) {
			return nil, err
		}
		return nil, errors.NewTrainingError(target, algorithm, "model diverged", err)
	}

	fitted := &Fitted{
		Pipeline:    pipeline,
		Model:       m,
		NFit:        len(fitIdx),
		NValidation: len(valIdx),
		Stopped:     -1,
		Best:        -1,
	}
	if ir, ok := m.(model.IterationReporter); ok {
		fitted.Stopped, fitted.Best = ir.StoppedIteration(), ir.BestIteration()
	}
	return fitted, nil
}

// Train runs one (target, algorithm, preprocessing) job on ds.
func (t *Trainer) Train(ds *dataset.Dataset, target, algorithm string, cfg preprocessing.Config, hp Hyperparams) (*TrainedModelRecord, error) {
	start := t.now()
	logger := t.logger.With(
		log.TargetKey, target,
		log.AlgorithmKey, algorithm,
		log.PreprocessingKey, cfg.Label(),
		log.RandomSeedKey, t.opts.Seed,
	)
	logger.Debug("training started", log.HyperParamsKey, hp)

	if _, err := t.registry.Lookup(algorithm); err != nil {
		return nil, err
	}
	X, y, ids, err := ds.Target(target)
	if err != nil {
		if errors.Is(err, errors.ErrEmptyData) {
			return nil, errors.NewTrainingError(target, algorithm,
				fmt.Sprintf("too few samples: 0 with measured values, need %d", t.opts.MinSamples), err)
		}
		return nil, errors.NewTrainingError(target, algorithm, "unknown target", err)
	}
	if len(y) < t.opts.MinSamples {
		return nil, errors.NewTrainingError(target, algorithm,
			fmt.Sprintf("too few samples: %d with measured values, need %d", len(y), t.opts.MinSamples), nil)
	}

	trainIdx, testIdx, err := model_selection.TrainTestSplit(len(y), t.opts.TestFraction, t.opts.Seed)
	if err != nil {
		return nil, errors.NewTrainingError(target, algorithm, "cannot split samples", err)
	}

	fitted, err := t.Fit(
		model_selection.SubsetRows(X, trainIdx),
		model_selection.SubsetValues(y, trainIdx),
		target, algorithm, cfg, hp, t.opts.Seed,
	)
	if err != nil {
		logger.Warn("training failed", "error", err)
		return nil, err
	}

	if pg, ok := fitted.Model.(model.ParameterGetter); ok {
		logger.Debug("model fitted", log.HyperParamsKey, pg.GetParams())
	}

	yTest := model_selection.SubsetValues(y, testIdx)
	pred, err := fitted.Predict(model_selection.SubsetRows(X, testIdx))
	if err != nil {
		return nil, errors.NewTrainingError(target, algorithm, "model diverged on the test split", err)
	}
	r2, err := metrics.R2Score(metrics.Vec(yTest), metrics.Vec(pred))
	if err != nil {
		return nil, errors.NewTrainingError(target, algorithm, "cannot score test split", err)
	}
	rmse, err := metrics.RMSE(metrics.Vec(yTest), metrics.Vec(pred))
	if err != nil {
		return nil, errors.NewTrainingError(target, algorithm, "cannot score test split", err)
	}
	mae, err := metrics.MAE(metrics.Vec(yTest), metrics.Vec(pred))
	if err != nil {
		return nil, errors.NewTrainingError(target, algorithm, "cannot score test split", err)
	}

	testIDs := model_selection.SubsetStrings(ids, testIdx)
	pairs := make([]PredictionPair, len(testIdx))
	for i := range pairs {
		pairs[i] = PredictionPair{ID: testIDs[i], Actual: yTest[i], Predicted: pred[i]}
	}

	rec := &TrainedModelRecord{
		id:            uuid.NewString(),
		target:        target,
		algorithm:     algorithm,
		preprocessing: fitted.Pipeline.Config,
		hyperparams:   hp.Clone(),
		seed:          t.opts.Seed,
		wavelengths:   append([]float64(nil), ds.Wavelengths...),
		nSamples:      len(y),
		nTrain:        fitted.NFit,
		nValidation:   fitted.NValidation,
		nTest:         len(testIdx),
		r2:            r2,
		rmse:          rmse,
		mae:           mae,
		pairs:         pairs,
		stopped:       fitted.Stopped,
		best:          fitted.Best,
		createdAt:     t.now().UTC(),
		model:         fitted.Model,
		pipeline:      fitted.Pipeline,
	}

	fields := []any{
		log.SamplesKey, len(y),
		log.R2ScoreKey, r2,
		log.RMSEKey, rmse,
		log.DurationMsKey, t.now().Sub(start).Milliseconds(),
	}
	if rec.best >= 0 {
		fields = append(fields, log.BestIterationKey, rec.best, log.IterationKey, rec.stopped)
	}
	logger.Info("model trained", fields...)
	return rec, nil
}
