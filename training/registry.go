package training

import (
	"sort"
	"strings"
	"sync"

	"github.com/YuminosukeSato/soilspec/core/model"
	"github.com/YuminosukeSato/soilspec/pkg/errors"
	"github.com/YuminosukeSato/soilspec/sklearn/cross_decomposition"
	"github.com/YuminosukeSato/soilspec/sklearn/ensemble"
	"github.com/YuminosukeSato/soilspec/sklearn/linear_model"
	"github.com/YuminosukeSato/soilspec/sklearn/neighbors"
	"github.com/YuminosukeSato/soilspec/sklearn/neural_network"
)

// Params is everything a constructor may use besides the hyperparameters.
// NSamples and NFeatures describe the matrix the model will be fitted on,
// after preprocessing.
type Params struct {
	Hyperparams Hyperparams
	Seed        uint64
	NSamples    int
	NFeatures   int
	// Patience and Tol override the early stopping defaults of iterative
	// learners when positive and not set in Hyperparams.
	Patience int
	Tol      float64
	// Workers bounds the goroutines a single model may use.
	Workers int
}

// Factory builds an unfitted model.
type Factory func(p Params) (model.Regressor, error)

// Algorithm is a registry entry.
type Algorithm struct {
	ID          string
	Description string
	// UsesValidation marks learners whose FitWithValidation should receive a
	// validation split carved from the training rows.
	UsesValidation bool
	New            Factory
}

// Registry maps algorithm IDs to constructors. It is safe for concurrent use.
type Registry struct {
	mu   sync.RWMutex
	algs map[string]Algorithm
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{algs: make(map[string]Algorithm)}
}

// Register adds alg. IDs must be unique and non-empty.
func (r *Registry) Register(alg Algorithm) error {
	if strings.TrimSpace(alg.ID) == "" || alg.New == nil {
		return errors.NewValidationError("algorithm", "id and constructor are required", alg.ID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.algs[alg.ID]; dup {
		return errors.NewValidationError("algorithm", "already registered", alg.ID)
	}
	r.algs[alg.ID] = alg
	return nil
}

// Lookup returns the entry for id.
func (r *Registry) Lookup(id string) (Algorithm, error) {
	r.mu.RLock()
	alg, ok := r.algs[id]
	r.mu.RUnlock()
	if !ok {
		return Algorithm{}, errors.Mark(
			errors.NewValidationError("algorithm", errors.ErrUnknownAlgorithm.Error(), id),
			errors.ErrUnknownAlgorithm)
	}
	return alg, nil
}

// New builds an unfitted model for id.
func (r *Registry) New(id string, p Params) (model.Regressor, error) {
	alg, err := r.Lookup(id)
	if err != nil {
		return nil, err
	}
	return alg.New(p)
}

// IDs returns the registered IDs in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.algs))
	for id := range r.algs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Has reports whether id is registered.
func (r *Registry) Has(id string) bool {
	_, err := r.Lookup(id)
	return err == nil
}

// Validate fails on the first unknown ID. The error is a ValidationError
// naming the ID and matches ErrUnknownAlgorithm with errors.Is.
func (r *Registry) Validate(ids []string) error {
	for _, id := range ids {
		if _, err := r.Lookup(id); err != nil {
			return err
		}
	}
	return nil
}

// Catalog returns the IDs used by the automated benchmark: everything except
// the "enhanced_" variants, which are slow.
func (r *Registry) Catalog() []string {
	var out []string
	for _, id := range r.IDs() {
		if !strings.HasPrefix(id, "enhanced_") {
			out = append(out, id)
		}
	}
	return out
}

// Algorithm IDs registered by DefaultRegistry.
const (
	LinearRegressionID = "linear_regression"
	RidgeID            = "ridge"
	PLSID              = "pls"
	EnhancedPLSID      = "enhanced_pls"
	RandomForestID     = "random_forest"
	ExtraTreesID       = "extra_trees"
	GradientBoostingID = "gradient_boosting"
	KNNID              = "knn"
	LinearSVRID        = "linear_svr"
	MLPID              = "mlp"
	EnhancedNNID       = "enhanced_nn"
)

// DefaultRegistry returns a registry with every built-in algorithm.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, alg := range builtins() {
		if err := r.Register(alg); err != nil {
			panic(err)
		}
	}
	return r
}

func patienceOr(rd *reader, p Params, def int) int {
	if p.Patience > 0 && !rd.has("patience") {
		def = p.Patience
	}
	return rd.int("patience", def)
}

func tolOr(rd *reader, p Params, def float64) float64 {
	if p.Tol > 0 && !rd.has("tol") {
		def = p.Tol
	}
	return rd.float("tol", def)
}

func builtins() []Algorithm {
	return []Algorithm{
		{
			ID:          LinearRegressionID,
			Description: "ordinary least squares (minimum norm solution)",
			New: func(p Params) (model.Regressor, error) {
				rd := newReader(p.Hyperparams)
				fit := rd.bool("fit_intercept", true)
				if err := rd.done(); err != nil {
					return nil, err
				}
				return linear_model.NewLinearRegression(linear_model.WithFitIntercept(fit)), nil
			},
		},
		{
			ID:          RidgeID,
			Description: "L2 regularized least squares",
			New: func(p Params) (model.Regressor, error) {
				rd := newReader(p.Hyperparams)
				alpha := rd.float("alpha", 1.0)
				fit := rd.bool("fit_intercept", true)
				if err := rd.done(); err != nil {
					return nil, err
				}
				m := linear_model.NewRidge(alpha)
				m.FitIntercept = fit
				return m, nil
			},
		},
		{
			ID:          PLSID,
			Description: "partial least squares (NIPALS)",
			New: func(p Params) (model.Regressor, error) {
				rd := newReader(p.Hyperparams)
				// the default adapts to small or heavily reduced inputs,
				// an explicit n_components does not
				def := 10
				if p.NSamples > 0 && p.NFeatures > 0 {
					def = max(1, min(def, p.NSamples, p.NFeatures))
				}
				k := rd.int("n_components", def)
				if err := rd.done(); err != nil {
					return nil, err
				}
				return cross_decomposition.NewPLSRegression(k), nil
			},
		},
		{
			ID:             EnhancedPLSID,
			Description:    "PLS with the component count chosen on a validation split",
			UsesValidation: true,
			New: func(p Params) (model.Regressor, error) {
				rd := newReader(p.Hyperparams)
				maxK := rd.int("max_components", 30)
				patience := patienceOr(rd, p, 5)
				tol := tolOr(rd, p, 1e-6)
				if err := rd.done(); err != nil {
					return nil, err
				}
				m := cross_decomposition.NewEnhancedPLS(maxK, patience)
				m.Tol = tol
				return m, nil
			},
		},
		{
			ID:          RandomForestID,
			Description: "bagged CART trees",
			New: func(p Params) (model.Regressor, error) {
				opts, err := forestOptions(p, 100)
				if err != nil {
					return nil, err
				}
				return ensemble.NewRandomForestRegressor(opts...), nil
			},
		},
		{
			ID:          ExtraTreesID,
			Description: "extremely randomized trees",
			New: func(p Params) (model.Regressor, error) {
				opts, err := forestOptions(p, 100)
				if err != nil {
					return nil, err
				}
				return ensemble.NewExtraTreesRegressor(opts...), nil
			},
		},
		{
			ID:             GradientBoostingID,
			Description:    "least squares gradient boosting with validation early stopping",
			UsesValidation: true,
			New: func(p Params) (model.Regressor, error) {
				rd := newReader(p.Hyperparams)
				opts := []ensemble.GBOption{
					ensemble.WithStages(rd.int("n_estimators", 100)),
					ensemble.WithLearningRate(rd.float("learning_rate", 0.1)),
					ensemble.WithStageDepth(rd.int("max_depth", 3)),
					ensemble.WithSubsample(rd.float("subsample", 1.0)),
					ensemble.WithGBEarlyStopping(patienceOr(rd, p, 10), tolOr(rd, p, 1e-6)),
					ensemble.WithGBSeed(p.Seed),
				}
				if err := rd.done(); err != nil {
					return nil, err
				}
				return ensemble.NewGradientBoostingRegressor(opts...), nil
			},
		},
		{
			ID:          KNNID,
			Description: "k nearest neighbours",
			New: func(p Params) (model.Regressor, error) {
				rd := newReader(p.Hyperparams)
				def := 5
				if p.NSamples > 0 {
					def = min(def, p.NSamples)
				}
				k := rd.int("n_neighbors", def)
				weights := rd.string("weights", neighbors.WeightsUniform)
				if err := rd.done(); err != nil {
					return nil, err
				}
				return neighbors.NewKNeighborsRegressor(k, weights), nil
			},
		},
		{
			ID:             LinearSVRID,
			Description:    "linear epsilon-insensitive SVR (passive aggressive)",
			UsesValidation: true,
			New: func(p Params) (model.Regressor, error) {
				rd := newReader(p.Hyperparams)
				opts := []linear_model.LinearSVROption{
					linear_model.WithSVRC(rd.float("C", 1.0)),
					linear_model.WithSVREpsilon(rd.float("epsilon", 0.1)),
					linear_model.WithSVRMaxIter(rd.int("max_iter", 200)),
					linear_model.WithSVREarlyStopping(patienceOr(rd, p, 5), tolOr(rd, p, 1e-4)),
					linear_model.WithSVRSeed(p.Seed),
				}
				if err := rd.done(); err != nil {
					return nil, err
				}
				return linear_model.NewLinearSVR(opts...), nil
			},
		},
		{
			ID:             MLPID,
			Description:    "multi-layer perceptron (Adam)",
			UsesValidation: true,
			New: func(p Params) (model.Regressor, error) {
				opts, err := mlpOptions(p, neural_network.NewMLPRegressor())
				if err != nil {
					return nil, err
				}
				return neural_network.NewMLPRegressor(opts...), nil
			},
		},
		{
			ID:             EnhancedNNID,
			Description:    "deep MLP with long patience",
			UsesValidation: true,
			New: func(p Params) (model.Regressor, error) {
				opts, err := mlpOptions(p, neural_network.NewEnhancedNN())
				if err != nil {
					return nil, err
				}
				return neural_network.NewEnhancedNN(opts...), nil
			},
		},
	}
}

func forestOptions(p Params, trees int) ([]ensemble.ForestOption, error) {
	rd := newReader(p.Hyperparams)
	opts := []ensemble.ForestOption{
		ensemble.WithNEstimators(rd.int("n_estimators", trees)),
		ensemble.WithMaxDepth(rd.int("max_depth", 0)),
		ensemble.WithMinSamplesLeaf(rd.int("min_samples_leaf", 1)),
		ensemble.WithMaxFeatures(rd.int("max_features", 0)),
		ensemble.WithSeed(p.Seed),
		ensemble.WithWorkers(max(1, p.Workers)),
	}
	return opts, rd.done()
}

// mlpOptions reads the MLP settings, falling back to the fields of base.
func mlpOptions(p Params, base *neural_network.MLPRegressor) ([]neural_network.Option, error) {
	rd := newReader(p.Hyperparams)
	opts := []neural_network.Option{
		neural_network.WithHidden(rd.ints("hidden", base.Hidden)...),
		neural_network.WithActivation(rd.string("activation", base.Activation)),
		neural_network.WithLearningRate(rd.float("learning_rate", base.LearningRate)),
		neural_network.WithAlpha(rd.float("alpha", base.Alpha)),
		neural_network.WithBatchSize(rd.int("batch_size", base.BatchSize)),
		neural_network.WithMaxIter(rd.int("max_iter", base.MaxIter)),
		neural_network.WithEarlyStopping(patienceOr(rd, p, base.Patience), tolOr(rd, p, base.Tol)),
		neural_network.WithSeed(p.Seed),
	}
	return opts, rd.done()
}
