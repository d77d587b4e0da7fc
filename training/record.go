package training

import (
	"time"

	"github.com/YuminosukeSato/soilspec/core/model"
	"github.com/YuminosukeSato/soilspec/preprocessing"
	"github.com/YuminosukeSato/soilspec/report"
)

// PredictionPair is one held-out sample.
type PredictionPair struct {
	ID        string
	Actual    float64
	Predicted float64
}

// TrainedModelRecord is the immutable outcome of one Train call. Fields are
// set once by the Trainer and exposed through accessors only.
type TrainedModelRecord struct {
	id            string
	target        string
	algorithm     string
	preprocessing preprocessing.Config
	hyperparams   Hyperparams
	seed          uint64
	wavelengths   []float64

	nSamples    int
	nTrain      int
	nValidation int
	nTest       int

	r2, rmse, mae float64
	pairs         []PredictionPair

	stopped, best int
	createdAt     time.Time

	model    model.Regressor
	pipeline *preprocessing.FeaturePipeline
}

func (r *TrainedModelRecord) ID() string                          { return r.id }
func (r *TrainedModelRecord) Target() string                      { return r.target }
func (r *TrainedModelRecord) Algorithm() string                   { return r.algorithm }
func (r *TrainedModelRecord) Preprocessing() preprocessing.Config { return r.preprocessing }
func (r *TrainedModelRecord) Hyperparams() Hyperparams            { return r.hyperparams.Clone() }
func (r *TrainedModelRecord) Seed() uint64                        { return r.seed }
func (r *TrainedModelRecord) NSamples() int                       { return r.nSamples }
func (r *TrainedModelRecord) NTrain() int                         { return r.nTrain }
func (r *TrainedModelRecord) NValidation() int                    { return r.nValidation }
func (r *TrainedModelRecord) NTest() int                          { return r.nTest }
func (r *TrainedModelRecord) TestR2() float64                     { return r.r2 }
func (r *TrainedModelRecord) TestRMSE() float64                   { return r.rmse }
func (r *TrainedModelRecord) TestMAE() float64                    { return r.mae }
func (r *TrainedModelRecord) CreatedAt() time.Time                { return r.createdAt }

// Wavelengths returns a copy of the band centres the model was trained on.
func (r *TrainedModelRecord) Wavelengths() []float64 {
	return append([]float64(nil), r.wavelengths...)
}

// Pairs returns a copy of the held-out predictions in test split order.
func (r *TrainedModelRecord) Pairs() []PredictionPair {
	return append([]PredictionPair(nil), r.pairs...)
}

// StoppedIteration and BestIteration are -1 for non-iterative learners.
func (r *TrainedModelRecord) StoppedIteration() int { return r.stopped }
func (r *TrainedModelRecord) BestIteration() int    { return r.best }

// Model returns the fitted model. It must not be refitted.
func (r *TrainedModelRecord) Model() model.Regressor { return r.model }

// Pipeline returns the fitted feature pipeline.
func (r *TrainedModelRecord) Pipeline() *preprocessing.FeaturePipeline { return r.pipeline }

// Summary returns the metrics-only form used by the result aggregator.
func (r *TrainedModelRecord) Summary() report.Record {
	return report.Record{
		Target:        r.target,
		Algorithm:     r.algorithm,
		Preprocessing: r.preprocessing,
		R2:            report.Float(r.r2),
		RMSE:          report.Float(r.rmse),
		MAE:           report.Float(r.mae),
		NSamples:      r.nSamples,
		CreatedAt:     r.createdAt,
	}
}
