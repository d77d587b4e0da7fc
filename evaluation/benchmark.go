package evaluation

import (
	"context"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/YuminosukeSato/soilspec/core/parallel"
	"github.com/YuminosukeSato/soilspec/dataset"
	"github.com/YuminosukeSato/soilspec/pkg/errors"
	"github.com/YuminosukeSato/soilspec/pkg/log"
	"github.com/YuminosukeSato/soilspec/preprocessing"
	"github.com/YuminosukeSato/soilspec/report"
	"github.com/YuminosukeSato/soilspec/training"
)

// QuickHyperparams are the small settings used by the automated benchmark.
func QuickHyperparams() map[string]training.Hyperparams {
	return map[string]training.Hyperparams{
		training.RandomForestID:     {"n_estimators": 50},
		training.ExtraTreesID:       {"n_estimators": 50},
		training.GradientBoostingID: {"n_estimators": 100, "learning_rate": 0.1},
		training.MLPID:              {"hidden": []any{64}, "max_iter": 100},
		training.LinearSVRID:        {"max_iter": 100},
	}
}

// BenchmarkOptions controls Benchmark.
type BenchmarkOptions struct {
	// Algorithms defaults to the registry catalog.
	Algorithms []string
	// Hyperparams defaults to QuickHyperparams.
	Hyperparams map[string]training.Hyperparams
	// Workers is the number of algorithms fitted concurrently.
	Workers int
}

// BenchmarkEntry is the outcome of one algorithm. Err is set for failures,
// in which case Record is nil.
type BenchmarkEntry struct {
	Algorithm string
	Record    *training.TrainedModelRecord
	Duration  time.Duration
	Err       error
}

// OK reports whether the algorithm produced a model.
func (e BenchmarkEntry) OK() bool { return e.Err == nil && e.Record != nil }

// BenchmarkResult ranks every algorithm on one target and configuration:
// successes by test R² descending then name, failures after them by name.
type BenchmarkResult struct {
	Target        string
	Preprocessing preprocessing.Config
	Entries       []BenchmarkEntry
}

// Benchmark trains each algorithm once on target with cfg and ranks them.
// A failing algorithm does not abort the others.
func Benchmark(ctx context.Context, tr *training.Trainer, ds *dataset.Dataset, target string,
	cfg preprocessing.Config, opts BenchmarkOptions) (*BenchmarkResult, error) {
	algs := opts.Algorithms
	if len(algs) == 0 {
		algs = tr.Registry().Catalog()
	}
	if err := tr.Registry().Validate(algs); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !ds.HasProperty(target) {
		return nil, errors.NewValidationError("target", "unknown property", target)
	}
	hps := opts.Hyperparams
	if hps == nil {
		hps = QuickHyperparams()
	}

	entries := make([]BenchmarkEntry, len(algs))
	_, ctxErr := parallel.ForEach(ctx, len(algs), opts.Workers, func(_ context.Context, i int) error {
		alg := algs[i]
		start := time.Now()
		var rec *training.TrainedModelRecord
		err := errors.SafeTrain(target, alg, func() error {
			var err error
			rec, err = tr.Train(ds, target, alg, cfg, hps[alg])
			return err
		})
		entries[i] = BenchmarkEntry{Algorithm: alg, Record: rec, Duration: time.Since(start), Err: err}
		return err
	})
	if ctxErr != nil {
		return nil, ctxErr
	}

	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.OK() != b.OK() {
			return a.OK()
		}
		if a.OK() && a.Record.TestR2() != b.Record.TestR2() {
			return a.Record.TestR2() > b.Record.TestR2()
		}
		return a.Algorithm < b.Algorithm
	})

	res := &BenchmarkResult{Target: target, Preprocessing: cfg.Normalize(), Entries: entries}
	if logger := tr.Options().Logger; logger != nil {
		if best, ok := res.Best(); ok {
			logger.Info("benchmark finished",
				log.TargetKey, target,
				log.PreprocessingKey, cfg.Label(),
				log.AlgorithmKey, best.Algorithm,
				log.R2ScoreKey, best.Record.TestR2(),
				"benchmark.failed", len(res.Failed()),
			)
		}
	}
	return res, nil
}

// Best returns the top ranked successful entry.
func (b *BenchmarkResult) Best() (BenchmarkEntry, bool) {
	if len(b.Entries) == 0 || !b.Entries[0].OK() {
		return BenchmarkEntry{}, false
	}
	return b.Entries[0], true
}

// Failed returns the entries that produced no model.
func (b *BenchmarkResult) Failed() []BenchmarkEntry {
	var out []BenchmarkEntry
	for _, e := range b.Entries {
		if !e.OK() {
			out = append(out, e)
		}
	}
	return out
}

// Records returns report records for every entry; failures have a nil R².
func (b *BenchmarkResult) Records() []report.Record {
	out := make([]report.Record, len(b.Entries))
	for i, e := range b.Entries {
		if e.OK() {
			out[i] = e.Record.Summary()
			continue
		}
		out[i] = report.Record{
			Target:        b.Target,
			Algorithm:     e.Algorithm,
			Preprocessing: b.Preprocessing,
			Error:         e.Err.Error(),
			CreatedAt:     time.Now().UTC(),
		}
	}
	return out
}

// WriteTable prints the ranking as an aligned text table.
func (b *BenchmarkResult) WriteTable(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "RANK\tALGORITHM\tR2\tRMSE\tMAE\tTIME\n")
	for i, e := range b.Entries {
		if !e.OK() {
			fmt.Fprintf(tw, "-\t%s\tfailed: %v\t\t\t%s\n", e.Algorithm, e.Err, e.Duration.Round(time.Millisecond))
			continue
		}
		r := e.Record
		fmt.Fprintf(tw, "%d\t%s\t%.4f\t%.4f\t%.4f\t%s\n", i+1, e.Algorithm, r.TestR2(), r.TestRMSE(), r.TestMAE(),
			e.Duration.Round(time.Millisecond))
	}
	return tw.Flush()
}
