package preprocessing

import (
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/soilspec/core/model"
	"github.com/YuminosukeSato/soilspec/pkg/errors"
)

// FeaturePipeline applies derivative, scaling and PCA in that order.
// Fit learns statistics from the training rows only; Transform applies the
// frozen transform to any split, including inference spectra.
type FeaturePipeline struct {
	Config Config
	Scaler *StandardScaler
	PCA    *PCA
	State  *model.StateManager

	// NOutput is the feature count produced by Transform.
	NOutput int
}

// NewFeaturePipeline validates cfg and returns an unfitted pipeline.
func NewFeaturePipeline(cfg Config) (*FeaturePipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &FeaturePipeline{Config: cfg.Normalize(), State: model.NewStateManager()}, nil
}

// Fit learns the scaler and PCA parameters from X (raw spectra).
func (p *FeaturePipeline) Fit(X mat.Matrix) error {
	_, err := p.FitTransform(X)
	return err
}

// FitTransform fits on X and returns the transformed training features.
func (p *FeaturePipeline) FitTransform(X mat.Matrix) (mat.Matrix, error) {
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return nil, errors.NewModelError("FeaturePipeline.Fit", "empty data", errors.ErrEmptyData)
	}

	var cur mat.Matrix
	cur, err := Derivative(X, p.Config.DerivativeOrder)
	if err != nil {
		return nil, err
	}

	p.Scaler = nil
	if p.Config.Scale {
		p.Scaler = NewStandardScalerDefault()
		if cur, err = p.Scaler.FitTransform(cur); err != nil {
			return nil, err
		}
	}

	p.PCA = nil
	if p.Config.UsePCA {
		p.PCA = NewPCA(p.Config.NComponents)
		if cur, err = p.PCA.FitTransform(cur); err != nil {
			return nil, err
		}
	}

	_, p.NOutput = cur.Dims()
	p.State.SetFitted(c, r)
	return cur, nil
}

// Transform applies the fitted transform to raw spectra X.
func (p *FeaturePipeline) Transform(X mat.Matrix) (mat.Matrix, error) {
	if err := p.State.RequireFitted("FeaturePipeline", "Transform"); err != nil {
		return nil, err
	}
	if err := p.State.CheckFeatures("FeaturePipeline.Transform", X); err != nil {
		return nil, err
	}

	var cur mat.Matrix
	cur, err := Derivative(X, p.Config.DerivativeOrder)
	if err != nil {
		return nil, err
	}
	if p.Scaler != nil {
		if cur, err = p.Scaler.Transform(cur); err != nil {
			return nil, err
		}
	}
	if p.PCA != nil {
		if cur, err = p.PCA.Transform(cur); err != nil {
			return nil, err
		}
	}
	return cur, nil
}

// NInput returns the raw spectral band count seen during Fit.
func (p *FeaturePipeline) NInput() int {
	n, _ := p.State.GetDimensions()
	return n
}

var _ model.Transformer = (*FeaturePipeline)(nil)
var _ model.InverseTransformer = (*StandardScaler)(nil)
var _ model.InverseTransformer = (*PCA)(nil)
