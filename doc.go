// Package soilspec predicts soil chemical and physical properties from
// visible and near-infrared (VNIR) reflectance spectra.
//
// The module is organised the way a scikit-learn user would expect, on top of
// gonum:
//
//   - dataset loads the spectra, chemical, physical and sample link tables and
//     joins them into a Dataset.
//   - preprocessing holds the spectral derivative, StandardScaler and PCA, and
//     the FeaturePipeline that chains them.
//   - sklearn/... contains the estimators (linear models, PLS, trees and
//     ensembles, k-nearest neighbours, MLP).
//   - training fits one (target, algorithm, preprocessing) combination with
//     optional validation early stopping and saves model artifacts.
//   - evaluation scores models, cross-validates and benchmarks the catalog.
//   - report merges runs into a ResultsReport and renders JSON, LaTeX tables
//     and a text summary.
//   - experiment expands a plan into jobs and runs them; resultstore keeps a
//     SQLite ledger of runs.
//
// # Quick Start
//
//	ds, _, err := dataset.Load("data", dataset.Files{}, dataset.DefaultLoaderOptions())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	tr, err := training.NewTrainer(training.DefaultRegistry(), training.DefaultOptions())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	rec, err := tr.Train(ds, "Organic_Carbon", training.RandomForestID,
//	    preprocessing.Config{Scale: true, UsePCA: true, NComponents: 10}, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("test R² = %.3f\n", rec.TestR2())
//
// The soilspec command (cmd/soilspec) wraps the same flow: train, benchmark,
// predict and combine.
//
// # Error Handling
//
// Errors carry a stack trace (github.com/cockroachdb/errors) and use the typed
// errors of pkg/errors: DataLoadError, PreprocessingError, TrainingError and
// MergeError name the offending file, column, target or algorithm.
//
//	var te *errors.TrainingError
//	if errors.As(err, &te) {
//	    fmt.Println(te.Target, te.Algorithm, te.Reason)
//	}
package soilspec
