package cli

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/soilspec/evaluation"
	"github.com/YuminosukeSato/soilspec/internal/config"
	"github.com/YuminosukeSato/soilspec/pkg/log"
	"github.com/YuminosukeSato/soilspec/preprocessing"
	"github.com/YuminosukeSato/soilspec/report"
)

var (
	benchTarget     string
	benchAlgorithms []string
	benchPrep       string
	benchSave       bool
)

var benchmarkCmd = &cobra.Command{
	Use:   "benchmark",
	Short: "Rank the quick algorithm catalog on one target",
	Long: `Fit every catalog algorithm with small hyperparameters on one target and print
them ranked by test R². Failed algorithms are listed after the ranking.

Examples:
  soilspec benchmark --target pH
  soilspec benchmark --target Clay_Content --preprocessing StndScale_PCA20 --save`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireConfig()
		if err != nil {
			return err
		}
		prep, err := preprocessing.ParseLabel(benchPrep)
		if err != nil {
			return err
		}
		return runBenchmark(cmd.Context(), c, benchTarget, prep, benchAlgorithms, benchSave, cmd.OutOrStdout(), logger)
	},
}

func init() {
	rootCmd.AddCommand(benchmarkCmd)
	benchmarkCmd.Flags().StringVarP(&benchTarget, "target", "t", "", "target property")
	benchmarkCmd.Flags().StringSliceVarP(&benchAlgorithms, "algorithms", "a", nil, "algorithm IDs (default: catalog)")
	benchmarkCmd.Flags().StringVarP(&benchPrep, "preprocessing", "p", "StndScale", "preprocessing label, e.g. StndScale_PCA10_deriv1")
	benchmarkCmd.Flags().BoolVar(&benchSave, "save", false, "write the ranking as a run file for combine")
	_ = benchmarkCmd.MarkFlagRequired("target")
}

func runBenchmark(ctx context.Context, c *config.Global, target string, prep preprocessing.Config,
	algs []string, save bool, out io.Writer, logger log.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ds, err := loadDataset(c, logger)
	if err != nil {
		return err
	}
	tr, err := newTrainer(c, logger)
	if err != nil {
		return err
	}
	res, err := evaluation.Benchmark(ctx, tr, ds, target, prep, evaluation.BenchmarkOptions{
		Algorithms: algs,
		Workers:    c.Workers,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Benchmark %s (%s, %d samples)\n", target, prep.Label(), ds.Len()-ds.MissingCount(target))
	if err := res.WriteTable(out); err != nil {
		return err
	}
	if !save {
		return nil
	}
	run := report.NewRun(time.Now())
	run.Source = "benchmark"
	for _, rec := range res.Records() {
		run.Add(rec)
	}
	path := filepath.Join(c.ResultsDir, RunFileName(run.ID))
	if err := report.WriteRunFile(path, run); err != nil {
		return err
	}
	fmt.Fprintf(out, "\nRun %s saved to: %s\n", run.ID, path)
	return nil
}
