// Package model_selection provides seeded train/test splitting, k-fold
// cross-validation splitters and row subsetting helpers.
//
// Every split is a pure function of the sample count and the seed, so the
// same inputs always produce the same partition.
package model_selection

import (
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/soilspec/pkg/errors"
)

// Fold represents a single fold in cross-validation
type Fold struct {
	TrainIndices []int
	TestIndices  []int
}

// KFold implements k-fold cross-validation splitter
type KFold struct {
	NSplits int
	Shuffle bool
	Seed    uint64
}

// NewKFold creates a new k-fold splitter. nSplits < 2 falls back to 5.
func NewKFold(nSplits int, shuffle bool, seed uint64) *KFold {
	if nSplits < 2 {
		nSplits = 5
	}
	return &KFold{NSplits: nSplits, Shuffle: shuffle, Seed: seed}
}

// GetNSplits returns the number of splits
func (kf *KFold) GetNSplits() int {
	return kf.NSplits
}

// Split partitions n samples into NSplits folds. The first n%NSplits folds
// get one extra test sample. Indices within each fold are sorted.
func (kf *KFold) Split(n int) ([]Fold, error) {
	if n < kf.NSplits {
		return nil, errors.NewValidationError("n_splits",
			"cannot be greater than the number of samples", kf.NSplits)
	}

	indices := Permutation(n, kf.Seed, kf.Shuffle)
	folds := make([]Fold, kf.NSplits)
	foldSize := n / kf.NSplits
	remainder := n % kf.NSplits

	current := 0
	for i := 0; i < kf.NSplits; i++ {
		testSize := foldSize
		if i < remainder {
			testSize++
		}
		test := append([]int(nil), indices[current:current+testSize]...)
		train := make([]int, 0, n-testSize)
		train = append(train, indices[:current]...)
		train = append(train, indices[current+testSize:]...)
		sort.Ints(test)
		sort.Ints(train)
		folds[i] = Fold{TrainIndices: train, TestIndices: test}
		current += testSize
	}
	return folds, nil
}

// Permutation returns 0..n-1, shuffled with a PCG stream seeded by seed when
// shuffle is true.
func Permutation(n int, seed uint64, shuffle bool) []int {
	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}
	if shuffle {
		r := rand.New(rand.NewPCG(seed, seed))
		r.Shuffle(n, func(i, j int) {
			indices[i], indices[j] = indices[j], indices[i]
		})
	}
	return indices
}

// TrainTestSplit returns sorted train and test index sets for n samples.
// The test set holds round(n*testFraction) samples, clamped to [1, n-1].
func TrainTestSplit(n int, testFraction float64, seed uint64) (train, test []int, err error) {
	if testFraction <= 0 || testFraction >= 1 {
		return nil, nil, errors.NewValidationError("test_fraction", "must be in (0, 1)", testFraction)
	}
	if n < 2 {
		return nil, nil, errors.NewValidationError("n_samples", "need at least 2 samples to split", n)
	}

	nTest := int(math.Round(float64(n) * testFraction))
	nTest = max(1, min(nTest, n-1))

	perm := Permutation(n, seed, true)
	test = append([]int(nil), perm[:nTest]...)
	train = append([]int(nil), perm[nTest:]...)
	sort.Ints(test)
	sort.Ints(train)
	return train, test, nil
}

// SubsetRows copies the rows of X selected by indices, in index order.
func SubsetRows(X mat.Matrix, indices []int) *mat.Dense {
	if len(indices) == 0 {
		return &mat.Dense{}
	}
	_, cols := X.Dims()
	out := mat.NewDense(len(indices), cols, nil)
	row := make([]float64, cols)
	for i, idx := range indices {
		mat.Row(row, idx, X)
		out.SetRow(i, row)
	}
	return out
}

// SubsetValues copies the values selected by indices.
func SubsetValues(v []float64, indices []int) []float64 {
	out := make([]float64, len(indices))
	for i, idx := range indices {
		out[i] = v[idx]
	}
	return out
}

// SubsetStrings copies the strings selected by indices.
func SubsetStrings(v []string, indices []int) []string {
	out := make([]string, len(indices))
	for i, idx := range indices {
		out[i] = v[idx]
	}
	return out
}
