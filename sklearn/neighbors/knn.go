// Package neighbors implements k-nearest-neighbour regression.
package neighbors

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/soilspec/core/model"
	"github.com/YuminosukeSato/soilspec/core/parallel"
	"github.com/YuminosukeSato/soilspec/pkg/errors"
)

// Weighting schemes
const (
	WeightsUniform  = "uniform"
	WeightsDistance = "distance"
)

// KNeighborsRegressor predicts the (optionally distance-weighted) mean target
// of the K nearest training samples in Euclidean distance.
type KNeighborsRegressor struct {
	State *model.StateManager

	K       int
	Weights string

	TrainX []float64 // row-major copy of the training matrix
	TrainY []float64
}

// NewKNeighborsRegressor creates a regressor using k neighbours.
func NewKNeighborsRegressor(k int, weights string) *KNeighborsRegressor {
	if weights == "" {
		weights = WeightsUniform
	}
	return &KNeighborsRegressor{State: model.NewStateManager(), K: k, Weights: weights}
}

// Fit memorizes the training data.
func (kn *KNeighborsRegressor) Fit(X, y mat.Matrix) error {
	if kn.Weights != WeightsUniform && kn.Weights != WeightsDistance {
		return errors.NewValidationError("weights", "must be 'uniform' or 'distance'", kn.Weights)
	}
	rows, cols := X.Dims()
	if kn.K < 1 || kn.K > rows {
		return errors.NewValidationError("n_neighbors",
			fmt.Sprintf("must be in [1, %d]", rows), kn.K)
	}
	if yr, _ := y.Dims(); yr != rows {
		return errors.NewDimensionError("KNeighborsRegressor.Fit", rows, yr, 0)
	}
	if err := errors.CheckMatrix("KNeighborsRegressor.Fit", X, rows, cols, 0); err != nil {
		return err
	}

	kn.TrainX = make([]float64, 0, rows*cols)
	row := make([]float64, cols)
	for i := 0; i < rows; i++ {
		mat.Row(row, i, X)
		kn.TrainX = append(kn.TrainX, row...)
	}
	kn.TrainY = model.ColumnToSlice(y)
	kn.State.SetFitted(cols, rows)
	return nil
}

type neighbor struct {
	index int
	dist  float64
}

// Predict averages the targets of the K nearest training rows. Distance ties
// are broken by training order.
func (kn *KNeighborsRegressor) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := kn.State.RequireFitted("KNeighborsRegressor", "Predict"); err != nil {
		return nil, err
	}
	if err := kn.State.CheckFeatures("KNeighborsRegressor.Predict", X); err != nil {
		return nil, err
	}
	rows, cols := X.Dims()
	nTrain := len(kn.TrainY)
	out := mat.NewDense(rows, 1, nil)

	parallel.ParallelizeWithThreshold(rows, 64, func(start, end int) {
		query := make([]float64, cols)
		cands := make([]neighbor, nTrain)
		for i := start; i < end; i++ {
			mat.Row(query, i, X)
			for j := 0; j < nTrain; j++ {
				cands[j] = neighbor{index: j, dist: floats.Distance(query, kn.TrainX[j*cols:(j+1)*cols], 2)}
			}
			sort.SliceStable(cands, func(a, b int) bool { return cands[a].dist < cands[b].dist })
			out.Set(i, 0, kn.aggregate(cands[:kn.K]))
		}
	})
	return out, nil
}

func (kn *KNeighborsRegressor) aggregate(nb []neighbor) float64 {
	if kn.Weights == WeightsDistance {
		// 距離0の近傍があればそれらだけの平均を返す
		var exact []float64
		for _, n := range nb {
			if n.dist == 0 {
				exact = append(exact, kn.TrainY[n.index])
			}
		}
		if len(exact) > 0 {
			return floats.Sum(exact) / float64(len(exact))
		}
		var num, den float64
		for _, n := range nb {
			w := 1 / n.dist
			num += w * kn.TrainY[n.index]
			den += w
		}
		return num / den
	}
	var sum float64
	for _, n := range nb {
		sum += kn.TrainY[n.index]
	}
	return sum / float64(len(nb))
}

// GetParams returns the hyperparameters.
func (kn *KNeighborsRegressor) GetParams() map[string]interface{} {
	return map[string]interface{}{"n_neighbors": kn.K, "weights": kn.Weights}
}

func (kn *KNeighborsRegressor) String() string {
	return fmt.Sprintf("KNeighborsRegressor(n_neighbors=%d, weights=%s)", kn.K, kn.Weights)
}

var _ model.ParameterGetter = (*KNeighborsRegressor)(nil)
