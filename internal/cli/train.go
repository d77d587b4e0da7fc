package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/soilspec/dataset"
	"github.com/YuminosukeSato/soilspec/evaluation"
	"github.com/YuminosukeSato/soilspec/experiment"
	"github.com/YuminosukeSato/soilspec/internal/config"
	"github.com/YuminosukeSato/soilspec/pkg/errors"
	"github.com/YuminosukeSato/soilspec/pkg/log"
	"github.com/YuminosukeSato/soilspec/report"
	"github.com/YuminosukeSato/soilspec/resultstore"
	"github.com/YuminosukeSato/soilspec/training"
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train every job of the experiment plan",
	Long: `Load the dataset, expand the plan (targets x algorithms x preprocessing) and
train every job. The run is written to the results directory as run-<id>.json and,
when store_path is set, to the SQLite ledger.

Examples:
  soilspec train
  soilspec train --plan plan.yaml --workers 4`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireConfig()
		if err != nil {
			return err
		}
		plan := &c.Plan
		if trainPlanFile != "" {
			if plan, err = experiment.LoadPlan(trainPlanFile); err != nil {
				return err
			}
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runTrain(ctx, c, plan, cmd.OutOrStdout(), logger)
	},
}

var trainPlanFile string

func init() {
	rootCmd.AddCommand(trainCmd)
	trainCmd.Flags().StringVar(&trainPlanFile, "plan", "", "experiment plan YAML (default: plan section of the config)")
}

// loadDataset reads the four input tables named by c.
func loadDataset(c *config.Global, logger log.Logger) (*dataset.Dataset, error) {
	ds, _, err := dataset.Load(c.DataDir, c.Files(), c.LoaderOptions(logger))
	return ds, err
}

func newTrainer(c *config.Global, logger log.Logger) (*training.Trainer, error) {
	return training.NewTrainer(training.DefaultRegistry(), c.TrainingOptions(logger))
}

// RunFileName returns the run file name written by train.
func RunFileName(id string) string {
	return "run-" + id + ".json"
}

func runTrain(ctx context.Context, c *config.Global, plan *experiment.Plan, out io.Writer, logger log.Logger) error {
	ds, err := loadDataset(c, logger)
	if err != nil {
		return err
	}
	tr, err := newTrainer(c, logger)
	if err != nil {
		return err
	}
	// fail before opening the ledger or touching the results directory
	if err := plan.Validate(tr.Registry(), ds); err != nil {
		return err
	}

	runner := &experiment.Runner{
		Trainer:      tr,
		Workers:      c.Workers,
		ArtifactsDir: c.ArtifactsDir,
		Source:       c.DataDir,
		Logger:       logger,
	}
	if c.StorePath != "" {
		if err := os.MkdirAll(filepath.Dir(c.StorePath), 0o755); err != nil {
			return errors.Wrapf(err, "create ledger directory for %s", c.StorePath)
		}
		st, err := resultstore.Open(c.StorePath, resultstore.WithLogger(logger))
		if err != nil {
			return err
		}
		defer st.Close()
		runner.Store = st
	}

	res, runErr := runner.Run(ctx, ds, plan)
	if res == nil {
		return runErr
	}
	if len(res.Run.Records) > 0 {
		path := filepath.Join(c.ResultsDir, RunFileName(res.Run.ID))
		if err := report.WriteRunFile(path, res.Run); err != nil {
			return err
		}
		fmt.Fprintf(out, "Run %s saved to: %s\n", res.Run.ID, path)
	}
	if err := writeRunTable(out, res); err != nil {
		return err
	}
	return runErr
}

func writeRunTable(w io.Writer, res *experiment.Result) error {
	rankings, err := evaluation.Compare(res.Run.Records)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "TARGET\tMETHOD\tR2\tN\n")
	for _, rk := range rankings {
		for _, r := range rk.Records {
			if r.R2 == nil {
				fmt.Fprintf(tw, "%s\t%s\tfailed\t%d\n", r.Target, r.Method(), r.NSamples)
				continue
			}
			fmt.Fprintf(tw, "%s\t%s\t%.4f\t%d\n", r.Target, r.Method(), *r.R2, r.NSamples)
		}
	}
	for _, cv := range res.CV {
		fmt.Fprintf(tw, "%s\t%s (cv %d folds)\t%.4f ± %.4f\t\n", cv.Target, cv.Algorithm, len(cv.Folds), cv.MeanR2, cv.StdR2)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	for _, b := range res.Benchmarks {
		fmt.Fprintf(w, "\nBenchmark %s (%s)\n", b.Target, b.Preprocessing.Label())
		if err := b.WriteTable(w); err != nil {
			return err
		}
	}
	if n := len(res.Failures); n > 0 {
		fmt.Fprintf(w, "\n%d job(s) failed\n", n)
	}
	return nil
}
