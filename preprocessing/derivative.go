package preprocessing

import (
	"strconv"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/soilspec/pkg/errors"
)

// Derivative replaces each spectrum by its order-th finite difference along
// the wavelength axis. Each application drops one feature.
// order 0 returns a copy of X.
func Derivative(X mat.Matrix, order int) (*mat.Dense, error) {
	if order < 0 || order > 2 {
		return nil, errors.NewPreprocessingError("derivative_order", "must be 0, 1 or 2", order)
	}
	r, c := X.Dims()
	if c-order < 1 {
		return nil, errors.NewPreprocessingError("derivative_order",
			"leaves no features for spectra with "+strconv.Itoa(c)+" bands", order)
	}

	cur := mat.DenseCopyOf(X)
	for o := 0; o < order; o++ {
		_, width := cur.Dims()
		next := mat.NewDense(r, width-1, nil)
		for i := 0; i < r; i++ {
			row := cur.RawRowView(i)
			for j := 0; j < width-1; j++ {
				next.Set(i, j, row[j+1]-row[j])
			}
		}
		cur = next
	}
	return cur, nil
}
