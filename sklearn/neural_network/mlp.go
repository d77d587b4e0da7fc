// Package neural_network implements a fully connected multi-layer perceptron
// regressor trained with Adam on mini-batches.
package neural_network

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/soilspec/core/earlystop"
	"github.com/YuminosukeSato/soilspec/core/model"
	"github.com/YuminosukeSato/soilspec/pkg/errors"
)

// Activation functions for hidden layers
const (
	ActivationReLU = "relu"
	ActivationTanh = "tanh"
)

// Layer is one dense layer: out = in·W + B.
type Layer struct {
	W *mat.Dense // in×out
	B []float64
}

// MLPRegressor is a feed-forward network with a linear output unit.
//
// The target is standardized internally. Each epoch shuffles the training
// rows with a seeded PCG stream. Fit monitors the training MSE and
// FitWithValidation the validation MSE; the weights of the best epoch are kept.
type MLPRegressor struct {
	State *model.StateManager

	Name         string
	Hidden       []int
	Activation   string
	LearningRate float64
	Alpha        float64 // L2 penalty
	BatchSize    int
	MaxIter      int
	Patience     int
	Tol          float64
	MaxGradNorm  float64
	Seed         uint64

	Layers    []Layer
	YMean     float64
	YStd      float64
	LossCurve []float64
	Stopped   int
	Best      int

	adam *adamState
}

// Option configures an MLPRegressor.
type Option func(*MLPRegressor)

// WithHidden sets the hidden layer sizes.
func WithHidden(sizes ...int) Option {
	return func(m *MLPRegressor) { m.Hidden = append([]int(nil), sizes...) }
}

// WithActivation sets the hidden activation.
func WithActivation(a string) Option {
	return func(m *MLPRegressor) { m.Activation = a }
}

// WithLearningRate sets the Adam step size.
func WithLearningRate(lr float64) Option {
	return func(m *MLPRegressor) { m.LearningRate = lr }
}

// WithAlpha sets the L2 penalty.
func WithAlpha(alpha float64) Option {
	return func(m *MLPRegressor) { m.Alpha = alpha }
}

// WithBatchSize sets the mini-batch size.
func WithBatchSize(n int) Option {
	return func(m *MLPRegressor) { m.BatchSize = n }
}

// WithMaxIter sets the maximum number of epochs.
func WithMaxIter(n int) Option {
	return func(m *MLPRegressor) { m.MaxIter = n }
}

// WithEarlyStopping sets patience and tolerance.
func WithEarlyStopping(patience int, tol float64) Option {
	return func(m *MLPRegressor) {
		m.Patience = patience
		m.Tol = tol
	}
}

// WithSeed sets the random seed for initialization and shuffling.
func WithSeed(seed uint64) Option {
	return func(m *MLPRegressor) { m.Seed = seed }
}

// NewMLPRegressor creates a network with one hidden layer of 100 ReLU units.
func NewMLPRegressor(options ...Option) *MLPRegressor {
	m := &MLPRegressor{
		State:        model.NewStateManager(),
		Name:         "MLPRegressor",
		Hidden:       []int{100},
		Activation:   ActivationReLU,
		LearningRate: 1e-3,
		Alpha:        1e-4,
		BatchSize:    32,
		MaxIter:      200,
		Patience:     10,
		Tol:          1e-4,
		MaxGradNorm:  10,
		Stopped:      -1,
		Best:         -1,
	}
	for _, opt := range options {
		opt(m)
	}
	return m
}

// NewEnhancedNN creates a deeper network with a smaller step size and longer
// patience, intended for use with FitWithValidation.
func NewEnhancedNN(options ...Option) *MLPRegressor {
	base := []Option{
		WithHidden(256, 128, 64),
		WithLearningRate(5e-4),
		WithMaxIter(500),
		WithEarlyStopping(20, 1e-5),
		WithAlpha(1e-3),
	}
	m := NewMLPRegressor(append(base, options...)...)
	m.Name = "EnhancedNN"
	return m
}

func (m *MLPRegressor) validate() error {
	if len(m.Hidden) == 0 {
		return errors.NewValidationError("hidden", "need at least one hidden layer", m.Hidden)
	}
	for _, h := range m.Hidden {
		if h < 1 {
			return errors.NewValidationError("hidden", "layer sizes must be positive", m.Hidden)
		}
	}
	if m.Activation != ActivationReLU && m.Activation != ActivationTanh {
		return errors.NewValidationError("activation", "must be 'relu' or 'tanh'", m.Activation)
	}
	if m.LearningRate <= 0 {
		return errors.NewValidationError("learning_rate", "must be positive", m.LearningRate)
	}
	if m.MaxIter < 1 {
		return errors.NewValidationError("max_iter", "must be at least 1", m.MaxIter)
	}
	if m.BatchSize < 1 {
		return errors.NewValidationError("batch_size", "must be at least 1", m.BatchSize)
	}
	return nil
}

// Fit trains on (X, y) and monitors the training MSE.
func (m *MLPRegressor) Fit(X, y mat.Matrix) error {
	Xd := mat.DenseCopyOf(X)
	yv := model.ColumnToSlice(y)
	return m.fit(Xd, yv, Xd, yv)
}

// FitWithValidation trains on (X, y) and monitors the MSE on (Xval, yval).
func (m *MLPRegressor) FitWithValidation(X, y, Xval, yval mat.Matrix) error {
	_, cols := X.Dims()
	if _, vc := Xval.Dims(); vc != cols {
		return errors.NewDimensionError(m.Name+".FitWithValidation", cols, vc, 1)
	}
	return m.fit(mat.DenseCopyOf(X), model.ColumnToSlice(y), mat.DenseCopyOf(Xval), model.ColumnToSlice(yval))
}

func (m *MLPRegressor) fit(X *mat.Dense, y []float64, Xeval *mat.Dense, yeval []float64) error {
	if err := m.validate(); err != nil {
		return err
	}
	rows, cols := X.Dims()
	if rows == 0 {
		return errors.NewModelError(m.Name+".Fit", "empty data", errors.ErrEmptyData)
	}
	if len(y) != rows {
		return errors.NewDimensionError(m.Name+".Fit", rows, len(y), 0)
	}
	if err := errors.CheckMatrix(m.Name+".Fit", X, rows, cols, 0); err != nil {
		return err
	}

	m.YMean, m.YStd = stat.MeanStdDev(y, nil)
	if m.YStd == 0 || math.IsNaN(m.YStd) {
		m.YStd = 1
	}
	ys := make([]float64, rows)
	for i, v := range y {
		ys[i] = (v - m.YMean) / m.YStd
	}

	rng := rand.New(rand.NewPCG(m.Seed, m.Seed^0xbf58476d1ce4e5b9))
	m.initLayers(cols, rng)
	m.adam = newAdamState(m.Layers)
	m.LossCurve = m.LossCurve[:0]

	order := make([]int, rows)
	for i := range order {
		order[i] = i
	}
	batch := min(m.BatchSize, rows)

	var best []Layer
	monitor := earlystop.New(m.Patience, m.Tol)
	res, err := monitor.Run(m.MaxIter,
		func(epoch int) (float64, error) {
			rng.Shuffle(rows, func(i, j int) { order[i], order[j] = order[j], order[i] })
			for start := 0; start < rows; start += batch {
				end := min(start+batch, rows)
				if err := m.step(X, ys, order[start:end], epoch); err != nil {
					return 0, err
				}
			}
			loss := m.mse(Xeval, yeval)
			m.LossCurve = append(m.LossCurve, loss)
			return loss, nil
		},
		func() { best = cloneLayers(m.Layers) },
		func() { m.Layers = best })
	if err != nil {
		return err
	}

	m.Stopped = res.StoppedIteration
	m.Best = res.BestIteration
	if monitor.Enabled && !res.EarlyStopped {
		errors.Warn(errors.NewConvergenceWarning(m.Name, m.MaxIter, "maximum epochs reached before the loss plateaued"))
	}
	m.adam = nil
	m.State.SetFitted(cols, rows)
	return nil
}

func (m *MLPRegressor) initLayers(nIn int, rng *rand.Rand) {
	sizes := append(append([]int{nIn}, m.Hidden...), 1)
	m.Layers = make([]Layer, len(sizes)-1)
	for l := range m.Layers {
		in, out := sizes[l], sizes[l+1]
		// Glorot uniform
		limit := math.Sqrt(6 / float64(in+out))
		data := make([]float64, in*out)
		for i := range data {
			data[i] = (rng.Float64()*2 - 1) * limit
		}
		m.Layers[l] = Layer{W: mat.NewDense(in, out, data), B: make([]float64, out)}
	}
}

// forward returns the activations of every layer; acts[0] is the input.
func (m *MLPRegressor) forward(X mat.Matrix) []*mat.Dense {
	acts := make([]*mat.Dense, len(m.Layers)+1)
	acts[0] = mat.DenseCopyOf(X)
	last := len(m.Layers) - 1
	for l, layer := range m.Layers {
		var z mat.Dense
		z.Mul(acts[l], layer.W)
		b := layer.B
		hidden := l < last
		act := m.Activation
		z.Apply(func(_, j int, v float64) float64 {
			v += b[j]
			if !hidden {
				return v
			}
			if act == ActivationTanh {
				return math.Tanh(v)
			}
			return math.Max(0, v)
		}, &z)
		acts[l+1] = &z
	}
	return acts
}

// step runs one Adam update on the rows in idx.
func (m *MLPRegressor) step(X *mat.Dense, y []float64, idx []int, epoch int) error {
	_, cols := X.Dims()
	n := len(idx)
	Xb := mat.NewDense(n, cols, nil)
	for i, r := range idx {
		Xb.SetRow(i, X.RawRowView(r))
	}
	acts := m.forward(Xb)

	out := acts[len(acts)-1]
	delta := mat.NewDense(n, 1, nil)
	for i, r := range idx {
		delta.Set(i, 0, (out.At(i, 0)-y[r])/float64(n))
	}

	grads := make([]Layer, len(m.Layers))
	for l := len(m.Layers) - 1; l >= 0; l-- {
		var gw mat.Dense
		gw.Mul(acts[l].T(), delta)
		if m.Alpha > 0 {
			gw.Apply(func(i, j int, v float64) float64 {
				return v + m.Alpha*m.Layers[l].W.At(i, j)/float64(n)
			}, &gw)
		}
		_, outDim := delta.Dims()
		gb := make([]float64, outDim)
		for j := 0; j < outDim; j++ {
			gb[j] = floats.Sum(mat.Col(nil, j, delta))
		}
		grads[l] = Layer{W: &gw, B: gb}

		if l > 0 {
			var prev mat.Dense
			prev.Mul(delta, m.Layers[l].W.T())
			a := acts[l]
			act := m.Activation
			prev.Apply(func(i, j int, v float64) float64 {
				h := a.At(i, j)
				if act == ActivationTanh {
					return v * (1 - h*h)
				}
				if h <= 0 {
					return 0
				}
				return v
			}, &prev)
			delta = &prev
		}
	}

	for l := range grads {
		g := grads[l].W.RawMatrix().Data
		if m.MaxGradNorm > 0 {
			errors.ClipGradient(g, m.MaxGradNorm)
		}
		if err := errors.CheckNumericalStability(m.Name+" gradient", g, epoch); err != nil {
			return err
		}
	}
	m.adam.update(m.Layers, grads, m.LearningRate)
	return nil
}

// mse returns the mean squared error in the original target scale.
func (m *MLPRegressor) mse(X *mat.Dense, y []float64) float64 {
	acts := m.forward(X)
	out := acts[len(acts)-1]
	var sum float64
	for i, v := range y {
		d := v - (out.At(i, 0)*m.YStd + m.YMean)
		sum += d * d
	}
	return sum / float64(len(y))
}

// Predict runs the network forward and undoes the target scaling.
func (m *MLPRegressor) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := m.State.RequireFitted(m.Name, "Predict"); err != nil {
		return nil, err
	}
	if err := m.State.CheckFeatures(m.Name+".Predict", X); err != nil {
		return nil, err
	}
	acts := m.forward(X)
	out := acts[len(acts)-1]
	rows, _ := out.Dims()
	pred := mat.NewDense(rows, 1, nil)
	for i := 0; i < rows; i++ {
		pred.Set(i, 0, out.At(i, 0)*m.YStd+m.YMean)
	}
	return pred, nil
}

// StoppedIteration returns the last epoch run.
func (m *MLPRegressor) StoppedIteration() int { return m.Stopped }

// BestIteration returns the epoch whose weights were kept.
func (m *MLPRegressor) BestIteration() int { return m.Best }

// GetParams returns the hyperparameters.
func (m *MLPRegressor) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"hidden":        append([]int(nil), m.Hidden...),
		"activation":    m.Activation,
		"learning_rate": m.LearningRate,
		"alpha":         m.Alpha,
		"batch_size":    m.BatchSize,
		"max_iter":      m.MaxIter,
		"patience":      m.Patience,
		"tol":           m.Tol,
		"seed":          m.Seed,
	}
}

func (m *MLPRegressor) String() string {
	return fmt.Sprintf("%s(hidden=%v, activation=%s)", m.Name, m.Hidden, m.Activation)
}

func cloneLayers(layers []Layer) []Layer {
	out := make([]Layer, len(layers))
	for i, l := range layers {
		out[i] = Layer{W: mat.DenseCopyOf(l.W), B: append([]float64(nil), l.B...)}
	}
	return out
}

var _ model.ParameterGetter = (*MLPRegressor)(nil)
