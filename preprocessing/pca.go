package preprocessing

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/soilspec/core/model"
	"github.com/YuminosukeSato/soilspec/pkg/errors"
)

// PCA projects centered data onto its leading principal directions.
// Components are ordered by descending explained variance.
type PCA struct {
	State *model.StateManager

	NComponents int

	// Mean は学習データの列平均
	Mean []float64
	// Components は NComponents×NFeatures の主成分（行優先）
	Components []float64
	// ExplainedVar は各主成分の分散（不偏）
	ExplainedVar []float64
	// ExplainedRatio は全分散に対する各主成分の分散比
	ExplainedRatio []float64
}

// NewPCA creates a PCA keeping nComponents directions.
func NewPCA(nComponents int) *PCA {
	return &PCA{State: model.NewStateManager(), NComponents: nComponents}
}

// Fit learns the principal directions of X using gonum's stat.PC.
func (p *PCA) Fit(X mat.Matrix) error {
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return errors.NewModelError("PCA.Fit", "empty data", errors.ErrEmptyData)
	}
	if p.NComponents < 1 {
		return errors.NewPreprocessingError("n_components", "must be at least 1", p.NComponents)
	}
	if p.NComponents > r {
		return errors.NewPreprocessingError("n_components",
			fmt.Sprintf("exceeds training sample count %d", r), p.NComponents)
	}
	if p.NComponents > c {
		return errors.NewPreprocessingError("n_components",
			fmt.Sprintf("exceeds feature count %d", c), p.NComponents)
	}
	if r < 2 {
		return errors.NewPreprocessingError("n_samples", "PCA needs at least 2 training samples", r)
	}

	var pc stat.PC
	if ok := pc.PrincipalComponents(X, nil); !ok {
		return errors.NewModelError("PCA.Fit", "SVD did not converge", errors.ErrSingularMatrix)
	}

	var vecs mat.Dense
	pc.VectorsTo(&vecs)
	vars := pc.VarsTo(nil)

	p.Mean = make([]float64, c)
	col := make([]float64, r)
	for j := 0; j < c; j++ {
		mat.Col(col, j, X)
		p.Mean[j] = stat.Mean(col, nil)
	}

	k := p.NComponents
	p.Components = make([]float64, k*c)
	for i := 0; i < k; i++ {
		for j := 0; j < c; j++ {
			p.Components[i*c+j] = vecs.At(j, i)
		}
	}

	total := floats.Sum(vars)
	p.ExplainedVar = make([]float64, k)
	p.ExplainedRatio = make([]float64, k)
	copy(p.ExplainedVar, vars[:k])
	for i := range p.ExplainedRatio {
		if total > 0 {
			p.ExplainedRatio[i] = p.ExplainedVar[i] / total
		}
	}

	p.State.SetFitted(c, r)
	return nil
}

func (p *PCA) components() *mat.Dense {
	c, _ := p.State.GetDimensions()
	return mat.NewDense(p.NComponents, c, p.Components)
}

// Transform projects X onto the fitted components.
func (p *PCA) Transform(X mat.Matrix) (mat.Matrix, error) {
	if err := p.State.RequireFitted("PCA", "Transform"); err != nil {
		return nil, err
	}
	if err := p.State.CheckFeatures("PCA.Transform", X); err != nil {
		return nil, err
	}

	r, c := X.Dims()
	centered := mat.NewDense(r, c, nil)
	centered.Apply(func(i, j int, v float64) float64 { return v - p.Mean[j] }, X)

	var out mat.Dense
	out.Mul(centered, p.components().T())
	return &out, nil
}

// FitTransform fits on X and projects it.
func (p *PCA) FitTransform(X mat.Matrix) (mat.Matrix, error) {
	if err := p.Fit(X); err != nil {
		return nil, err
	}
	return p.Transform(X)
}

// InverseTransform maps component scores back to the original feature space.
func (p *PCA) InverseTransform(Z mat.Matrix) (mat.Matrix, error) {
	if err := p.State.RequireFitted("PCA", "InverseTransform"); err != nil {
		return nil, err
	}
	_, k := Z.Dims()
	if k != p.NComponents {
		return nil, errors.NewDimensionError("PCA.InverseTransform", p.NComponents, k, 1)
	}

	var out mat.Dense
	out.Mul(Z, p.components())
	out.Apply(func(i, j int, v float64) float64 { return v + p.Mean[j] }, &out)
	return &out, nil
}

// ExplainedVariance returns the variance captured by each kept component.
func (p *PCA) ExplainedVariance() []float64 {
	return append([]float64(nil), p.ExplainedVar...)
}

// ExplainedVarianceRatio returns the share of total variance per kept component.
func (p *PCA) ExplainedVarianceRatio() []float64 {
	return append([]float64(nil), p.ExplainedRatio...)
}
