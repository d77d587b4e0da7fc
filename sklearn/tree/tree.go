// Package tree implements CART regression trees grown by variance reduction.
//
// Trees are stored as a flat node slice so fitted models gob-encode without
// pointers. The random splitter draws one threshold per candidate feature and
// is what ExtraTrees uses.
package tree

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/soilspec/core/model"
	"github.com/YuminosukeSato/soilspec/pkg/errors"
)

const leafFeature = -1

// Splitter strategies
const (
	SplitterBest   = "best"
	SplitterRandom = "random"
)

// Node is one tree node. Feature == -1 marks a leaf.
type Node struct {
	Feature   int
	Threshold float64
	Left      int
	Right     int
	Value     float64
	NSamples  int
	Impurity  float64
}

// IsLeaf reports whether the node has no children.
func (n Node) IsLeaf() bool { return n.Feature == leafFeature }

// DecisionTreeRegressor は回帰木
type DecisionTreeRegressor struct {
	State *model.StateManager

	// Hyperparameters
	MaxDepth        int // 0 means unlimited
	MinSamplesSplit int
	MinSamplesLeaf  int
	MaxFeatures     int // features examined per split, 0 means all
	Splitter        string
	Seed            uint64

	// Learned
	Nodes       []Node
	Importances []float64
	Depth       int
}

// Option configures a DecisionTreeRegressor.
type Option func(*DecisionTreeRegressor)

// WithMaxDepth sets the maximum depth (0 = unlimited).
func WithMaxDepth(depth int) Option {
	return func(dt *DecisionTreeRegressor) { dt.MaxDepth = depth }
}

// WithMinSamplesSplit sets the minimum node size that may be split.
func WithMinSamplesSplit(n int) Option {
	return func(dt *DecisionTreeRegressor) { dt.MinSamplesSplit = n }
}

// WithMinSamplesLeaf sets the minimum number of samples in each leaf.
func WithMinSamplesLeaf(n int) Option {
	return func(dt *DecisionTreeRegressor) { dt.MinSamplesLeaf = n }
}

// WithMaxFeatures sets the number of features considered per split.
func WithMaxFeatures(n int) Option {
	return func(dt *DecisionTreeRegressor) { dt.MaxFeatures = n }
}

// WithSplitter selects "best" or "random" thresholds.
func WithSplitter(s string) Option {
	return func(dt *DecisionTreeRegressor) { dt.Splitter = s }
}

// WithSeed sets the random seed used for feature sampling and random thresholds.
func WithSeed(seed uint64) Option {
	return func(dt *DecisionTreeRegressor) { dt.Seed = seed }
}

// NewDecisionTreeRegressor creates a tree with sklearn-like defaults.
func NewDecisionTreeRegressor(options ...Option) *DecisionTreeRegressor {
	dt := &DecisionTreeRegressor{
		State:           model.NewStateManager(),
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
		Splitter:        SplitterBest,
	}
	for _, opt := range options {
		opt(dt)
	}
	return dt
}

func (dt *DecisionTreeRegressor) validate() error {
	if dt.MaxDepth < 0 {
		return errors.NewValidationError("max_depth", "must be non-negative", dt.MaxDepth)
	}
	if dt.MinSamplesSplit < 2 {
		return errors.NewValidationError("min_samples_split", "must be at least 2", dt.MinSamplesSplit)
	}
	if dt.MinSamplesLeaf < 1 {
		return errors.NewValidationError("min_samples_leaf", "must be at least 1", dt.MinSamplesLeaf)
	}
	if dt.MaxFeatures < 0 {
		return errors.NewValidationError("max_features", "must be non-negative", dt.MaxFeatures)
	}
	if dt.Splitter != SplitterBest && dt.Splitter != SplitterRandom {
		return errors.NewValidationError("splitter", "must be 'best' or 'random'", dt.Splitter)
	}
	return nil
}

// Fit grows the tree on all rows of X.
func (dt *DecisionTreeRegressor) Fit(X, y mat.Matrix) error {
	rows, _ := X.Dims()
	yRows, yCols := y.Dims()
	if rows != yRows {
		return errors.NewDimensionError("DecisionTreeRegressor.Fit", rows, yRows, 0)
	}
	if yCols != 1 {
		return errors.NewDimensionError("DecisionTreeRegressor.Fit", 1, yCols, 1)
	}
	indices := make([]int, rows)
	for i := range indices {
		indices[i] = i
	}
	return dt.FitSubset(mat.DenseCopyOf(X), model.ColumnToSlice(y), indices)
}

// FitSubset grows the tree on the given rows of X. Rows may repeat, which is
// how bootstrap samples are passed in by the forests.
func (dt *DecisionTreeRegressor) FitSubset(X *mat.Dense, y []float64, rows []int) error {
	if err := dt.validate(); err != nil {
		return err
	}
	if len(rows) == 0 {
		return errors.NewModelError("DecisionTreeRegressor.Fit", "empty data", errors.ErrEmptyData)
	}
	nSamples, nFeatures := X.Dims()
	if len(y) != nSamples {
		return errors.NewDimensionError("DecisionTreeRegressor.Fit", nSamples, len(y), 0)
	}
	if err := errors.CheckNumericalStability("DecisionTreeRegressor.Fit", y, 0); err != nil {
		return err
	}

	b := &builder{
		tree:     dt,
		X:        X,
		y:        y,
		nFeature: nFeatures,
		rng:      rand.New(rand.NewPCG(dt.Seed, dt.Seed^0x5851f42d4c957f2d)),
	}
	dt.Nodes = dt.Nodes[:0]
	dt.Importances = make([]float64, nFeatures)
	dt.Depth = 0
	b.build(append([]int(nil), rows...), 0)

	var total float64
	for _, v := range dt.Importances {
		total += v
	}
	if total > 0 {
		for i := range dt.Importances {
			dt.Importances[i] /= total
		}
	}
	dt.State.SetFitted(nFeatures, len(rows))
	return nil
}

type builder struct {
	tree     *DecisionTreeRegressor
	X        *mat.Dense
	y        []float64
	nFeature int
	rng      *rand.Rand
}

type split struct {
	feature   int
	threshold float64
	gain      float64
}

// build appends the subtree for rows and returns its node index.
func (b *builder) build(rows []int, depth int) int {
	dt := b.tree
	var sum, sumSq float64
	for _, r := range rows {
		sum += b.y[r]
		sumSq += b.y[r] * b.y[r]
	}
	n := float64(len(rows))
	sse := math.Max(0, sumSq-sum*sum/n)

	idx := len(dt.Nodes)
	dt.Nodes = append(dt.Nodes, Node{
		Feature:  leafFeature,
		Value:    sum / n,
		NSamples: len(rows),
		Impurity: sse / n,
	})
	if depth > dt.Depth {
		dt.Depth = depth
	}

	if len(rows) < dt.MinSamplesSplit || len(rows) < 2*dt.MinSamplesLeaf ||
		(dt.MaxDepth > 0 && depth >= dt.MaxDepth) || sse <= 1e-12 {
		return idx
	}

	best, ok := b.findSplit(rows, sum, sse)
	if !ok {
		return idx
	}

	left := make([]int, 0, len(rows))
	right := make([]int, 0, len(rows))
	for _, r := range rows {
		if b.X.At(r, best.feature) <= best.threshold {
			left = append(left, r)
		} else {
			right = append(right, r)
		}
	}

	dt.Importances[best.feature] += best.gain
	l := b.build(left, depth+1)
	r := b.build(right, depth+1)
	dt.Nodes[idx].Feature = best.feature
	dt.Nodes[idx].Threshold = best.threshold
	dt.Nodes[idx].Left = l
	dt.Nodes[idx].Right = r
	return idx
}

func (b *builder) candidateFeatures() []int {
	k := b.tree.MaxFeatures
	if k <= 0 || k >= b.nFeature {
		features := make([]int, b.nFeature)
		for i := range features {
			features[i] = i
		}
		return features
	}
	return b.rng.Perm(b.nFeature)[:k]
}

func (b *builder) findSplit(rows []int, sum, sse float64) (split, bool) {
	best := split{gain: 1e-12}
	found := false
	for _, f := range b.candidateFeatures() {
		var s split
		var ok bool
		if b.tree.Splitter == SplitterRandom {
			s, ok = b.randomSplit(rows, f, sum, sse)
		} else {
			s, ok = b.bestSplit(rows, f, sum, sse)
		}
		if ok && s.gain > best.gain {
			best = s
			found = true
		}
	}
	return best, found
}

// bestSplit sweeps the sorted feature values with running sums.
func (b *builder) bestSplit(rows []int, f int, sum, sse float64) (split, bool) {
	sorted := append([]int(nil), rows...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return b.X.At(sorted[i], f) < b.X.At(sorted[j], f)
	})

	minLeaf := b.tree.MinSamplesLeaf
	n := len(sorted)
	best := split{feature: f}
	found := false
	var leftSum, leftSq float64
	totalSq := sse + sum*sum/float64(n)
	for i := 0; i < n-1; i++ {
		yi := b.y[sorted[i]]
		leftSum += yi
		leftSq += yi * yi
		nl := i + 1
		nr := n - nl
		if nl < minLeaf || nr < minLeaf {
			continue
		}
		xi, xn := b.X.At(sorted[i], f), b.X.At(sorted[i+1], f)
		if xi == xn {
			continue
		}
		rightSum := sum - leftSum
		rightSq := totalSq - leftSq
		child := (leftSq - leftSum*leftSum/float64(nl)) + (rightSq - rightSum*rightSum/float64(nr))
		gain := sse - child
		if !found || gain > best.gain {
			best.gain = gain
			best.threshold = xi + (xn-xi)/2
			found = true
		}
	}
	return best, found
}

// randomSplit draws one threshold uniformly between the node's min and max.
func (b *builder) randomSplit(rows []int, f int, sum, sse float64) (split, bool) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, r := range rows {
		v := b.X.At(r, f)
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if hi <= lo {
		return split{}, false
	}
	threshold := lo + b.rng.Float64()*(hi-lo)
	if threshold >= hi {
		threshold = lo
	}

	var leftSum, leftSq, rightSum, rightSq float64
	var nl, nr int
	for _, r := range rows {
		yv := b.y[r]
		if b.X.At(r, f) <= threshold {
			leftSum += yv
			leftSq += yv * yv
			nl++
		} else {
			rightSum += yv
			rightSq += yv * yv
			nr++
		}
	}
	if nl < b.tree.MinSamplesLeaf || nr < b.tree.MinSamplesLeaf {
		return split{}, false
	}
	child := (leftSq - leftSum*leftSum/float64(nl)) + (rightSq - rightSum*rightSum/float64(nr))
	return split{feature: f, threshold: threshold, gain: sse - child}, true
}

// Predict returns the leaf mean for each row.
func (dt *DecisionTreeRegressor) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := dt.State.RequireFitted("DecisionTreeRegressor", "Predict"); err != nil {
		return nil, err
	}
	if err := dt.State.CheckFeatures("DecisionTreeRegressor.Predict", X); err != nil {
		return nil, err
	}
	rows, cols := X.Dims()
	out := mat.NewDense(rows, 1, nil)
	row := make([]float64, cols)
	for i := 0; i < rows; i++ {
		mat.Row(row, i, X)
		out.Set(i, 0, dt.PredictRow(row))
	}
	return out, nil
}

// PredictRow walks the tree for a single sample.
func (dt *DecisionTreeRegressor) PredictRow(x []float64) float64 {
	i := 0
	for !dt.Nodes[i].IsLeaf() {
		n := dt.Nodes[i]
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
	return dt.Nodes[i].Value
}

// GetDepth returns the depth of the deepest leaf.
func (dt *DecisionTreeRegressor) GetDepth() int { return dt.Depth }

// GetNLeaves returns the number of leaves.
func (dt *DecisionTreeRegressor) GetNLeaves() int {
	n := 0
	for _, node := range dt.Nodes {
		if node.IsLeaf() {
			n++
		}
	}
	return n
}

// GetFeatureImportances returns the normalized impurity decrease per feature.
func (dt *DecisionTreeRegressor) GetFeatureImportances() []float64 {
	return append([]float64(nil), dt.Importances...)
}

// GetParams returns the hyperparameters.
func (dt *DecisionTreeRegressor) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"max_depth":         dt.MaxDepth,
		"min_samples_split": dt.MinSamplesSplit,
		"min_samples_leaf":  dt.MinSamplesLeaf,
		"max_features":      dt.MaxFeatures,
		"splitter":          dt.Splitter,
		"seed":              dt.Seed,
	}
}

// SetParams updates hyperparameters by name.
func (dt *DecisionTreeRegressor) SetParams(params map[string]interface{}) error {
	for key, value := range params {
		switch key {
		case "max_depth", "min_samples_split", "min_samples_leaf", "max_features":
			v, ok := value.(int)
			if !ok {
				return errors.NewValidationError(key, "must be an int", value)
			}
			switch key {
			case "max_depth":
				dt.MaxDepth = v
			case "min_samples_split":
				dt.MinSamplesSplit = v
			case "min_samples_leaf":
				dt.MinSamplesLeaf = v
			default:
				dt.MaxFeatures = v
			}
		case "splitter":
			v, ok := value.(string)
			if !ok {
				return errors.NewValidationError(key, "must be a string", value)
			}
			dt.Splitter = v
		default:
			return errors.NewValidationError(key, "unknown parameter", value)
		}
	}
	return dt.validate()
}

func (dt *DecisionTreeRegressor) String() string {
	return fmt.Sprintf("DecisionTreeRegressor(max_depth=%d, splitter=%s)", dt.MaxDepth, dt.Splitter)
}

var _ model.ParameterGetter = (*DecisionTreeRegressor)(nil)
