// Standard attribute keys. Keys follow a dotted hierarchy ("soil.target",
// "data.samples") so logs can be filtered by prefix.

package log

// Model and Operation Context
const (
	// OperationKey specifies the operation being performed.
	OperationKey = "ml.operation"

	// ComponentKey identifies the component emitting the record.
	ComponentKey = "ml.component"

	// PhaseKey indicates the phase of the pipeline.
	PhaseKey = "ml.phase"
)

// Soil prediction context
const (
	// TargetKey is the soil property being predicted, e.g. "Organic_Carbon".
	TargetKey = "soil.target"

	// AlgorithmKey is the registry identifier of the algorithm.
	AlgorithmKey = "soil.algorithm"

	// PreprocessingKey is the preprocessing label, e.g. "StndScale_PCA10".
	PreprocessingKey = "soil.preprocessing"

	// RunIDKey is the identifier of an experiment run.
	RunIDKey = "run.id"

	// JobKey is the "target/algorithm/preprocessing" identifier of one job.
	JobKey = "run.job"

	// FilePathKey is the path of a file being read or written.
	FilePathKey = "file.path"
)

// Data Shape
const (
	// SamplesKey indicates the number of samples (rows).
	SamplesKey = "data.samples"

	// FeaturesKey indicates the number of features (columns).
	FeaturesKey = "data.features"

	// DroppedKey counts rows excluded because of missing values or failed joins.
	DroppedKey = "data.dropped"
)

// Performance Metrics
const (
	// DurationMsKey records the execution time of an operation in milliseconds.
	DurationMsKey = "perf.duration_ms"

	// R2ScoreKey records the coefficient of determination.
	R2ScoreKey = "metrics.r2_score"

	// RMSEKey records the root mean squared error.
	RMSEKey = "metrics.rmse"

	// IterationKey records the current iteration number.
	IterationKey = "training.iteration"

	// BestIterationKey records the iteration with the best validation score.
	BestIterationKey = "training.best_iteration"
)

// Configuration
const (
	// HyperParamsKey contains model hyperparameters.
	HyperParamsKey = "model.hyperparams"

	// RandomSeedKey records the random seed for reproducibility.
	RandomSeedKey = "config.random_seed"

	// WorkerIDKey identifies the worker goroutine running a job.
	WorkerIDKey = "infra.worker_id"
)

const (
	OperationFit       = "fit"
	OperationPredict   = "predict"
	OperationTransform = "transform"
	OperationScore     = "score"
	OperationLoad      = "load"
	OperationMerge     = "merge"

	PhaseLoading       = "loading"
	PhasePreprocessing = "preprocessing"
	PhaseTraining      = "training"
	PhaseValidation    = "validation"
	PhaseTesting       = "testing"
	PhaseAggregation   = "aggregation"
)
