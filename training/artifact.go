package training

import (
	"encoding/gob"
	"os"
	"path/filepath"
	"slices"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/soilspec/core/model"
	"github.com/YuminosukeSato/soilspec/dataset"
	"github.com/YuminosukeSato/soilspec/pkg/errors"
	"github.com/YuminosukeSato/soilspec/preprocessing"
	"github.com/YuminosukeSato/soilspec/sklearn/cross_decomposition"
	"github.com/YuminosukeSato/soilspec/sklearn/ensemble"
	"github.com/YuminosukeSato/soilspec/sklearn/linear_model"
	"github.com/YuminosukeSato/soilspec/sklearn/neighbors"
	"github.com/YuminosukeSato/soilspec/sklearn/neural_network"
)

func init() {
	// Artifact.Model is an interface; gob needs every concrete type.
	gob.Register(&linear_model.LinearRegression{})
	gob.Register(&linear_model.Ridge{})
	gob.Register(&linear_model.LinearSVR{})
	gob.Register(&cross_decomposition.PLSRegression{})
	gob.Register(&cross_decomposition.EnhancedPLS{})
	gob.Register(&ensemble.ForestRegressor{})
	gob.Register(&ensemble.GradientBoostingRegressor{})
	gob.Register(&neighbors.KNeighborsRegressor{})
	gob.Register(&neural_network.MLPRegressor{})
}

// Artifact is the persisted form of a trained model: the fitted pipeline and
// model plus enough of the record to identify it.
type Artifact struct {
	ID            string
	Target        string
	Algorithm     string
	Preprocessing preprocessing.Config
	Hyperparams   map[string]string
	Seed          uint64
	Wavelengths   []float64
	TestR2        float64
	NSamples      int
	CreatedAt     time.Time

	Pipeline *preprocessing.FeaturePipeline
	Model    model.Regressor
}

// NewArtifact copies the persistable parts of rec.
func NewArtifact(rec *TrainedModelRecord) *Artifact {
	return &Artifact{
		ID:            rec.id,
		Target:        rec.target,
		Algorithm:     rec.algorithm,
		Preprocessing: rec.preprocessing,
		Hyperparams:   rec.hyperparams.Strings(),
		Seed:          rec.seed,
		Wavelengths:   rec.Wavelengths(),
		TestR2:        rec.r2,
		NSamples:      rec.nSamples,
		CreatedAt:     rec.createdAt,
		Pipeline:      rec.pipeline,
		Model:         rec.model,
	}
}

// SaveArtifact gob-encodes rec to path, creating parent directories.
func SaveArtifact(path string, rec *TrainedModelRecord) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "create artifact directory for %s", path)
	}
	return model.SaveModel(NewArtifact(rec), path)
}

// LoadArtifact reads an artifact written by SaveArtifact.
func LoadArtifact(path string) (*Artifact, error) {
	var a Artifact
	if err := model.LoadModel(&a, path); err != nil {
		return nil, err
	}
	if a.Pipeline == nil || a.Model == nil {
		return nil, errors.NewModelError("LoadArtifact", "incomplete artifact "+path, nil)
	}
	return &a, nil
}

// Predict applies the training-time transform to raw spectra (samples ×
// bands) and returns one prediction per row.
func (a *Artifact) Predict(spectra mat.Matrix) ([]float64, error) {
	f := Fitted{Pipeline: a.Pipeline, Model: a.Model}
	return f.Predict(spectra)
}

// PredictDataset predicts every sample of ds after checking that its
// wavelength axis matches the training data.
func (a *Artifact) PredictDataset(ds *dataset.Dataset) ([]float64, error) {
	if ds.NBands() != len(a.Wavelengths) {
		return nil, errors.NewDimensionError("Artifact.PredictDataset", len(a.Wavelengths), ds.NBands(), 1)
	}
	if !slices.Equal(ds.Wavelengths, a.Wavelengths) {
		return nil, errors.NewValidationError("wavelengths", "do not match the training spectra", ds.Wavelengths[0])
	}
	if ds.Len() == 0 {
		return nil, errors.ErrEmptyData
	}
	return a.Predict(ds.Spectra())
}
