package neural_network

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

const (
	adamBeta1   = 0.9
	adamBeta2   = 0.999
	adamEpsilon = 1e-8
)

// adamState holds the first and second moment estimates per parameter.
type adamState struct {
	t    int
	m, v []Layer
}

func newAdamState(layers []Layer) *adamState {
	zeros := func() []Layer {
		out := make([]Layer, len(layers))
		for i, l := range layers {
			r, c := l.W.Dims()
			out[i] = Layer{W: mat.NewDense(r, c, nil), B: make([]float64, len(l.B))}
		}
		return out
	}
	return &adamState{m: zeros(), v: zeros()}
}

func (a *adamState) update(layers, grads []Layer, lr float64) {
	a.t++
	stepSize := lr * math.Sqrt(1-math.Pow(adamBeta2, float64(a.t))) / (1 - math.Pow(adamBeta1, float64(a.t)))
	for l := range layers {
		adamStep(layers[l].W.RawMatrix().Data, grads[l].W.RawMatrix().Data,
			a.m[l].W.RawMatrix().Data, a.v[l].W.RawMatrix().Data, stepSize)
		adamStep(layers[l].B, grads[l].B, a.m[l].B, a.v[l].B, stepSize)
	}
}

func adamStep(param, grad, m, v []float64, stepSize float64) {
	for i, g := range grad {
		m[i] = adamBeta1*m[i] + (1-adamBeta1)*g
		v[i] = adamBeta2*v[i] + (1-adamBeta2)*g*g
		param[i] -= stepSize * m[i] / (math.Sqrt(v[i]) + adamEpsilon)
	}
}
