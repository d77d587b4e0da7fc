package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/soilspec/internal/config"
	"github.com/YuminosukeSato/soilspec/pkg/errors"
	"github.com/YuminosukeSato/soilspec/pkg/log"
	"github.com/YuminosukeSato/soilspec/preprocessing"
	"github.com/YuminosukeSato/soilspec/report"
	"github.com/YuminosukeSato/soilspec/resultstore"
)

// File names inside the results directory.
const (
	CombinedFile      = "results_combined.json"
	LatexFile         = "results_latex_table.txt"
	LegacyFullrunFile = "results_fullrun_Rsq.json"
	LegacyDerivFile   = "results_derivatives.json"
)

// legacyConfigs assigns a preprocessing configuration to the two files of
// the older format.
var legacyConfigs = map[string]preprocessing.Config{
	LegacyFullrunFile: {},
	LegacyDerivFile:   {DerivativeOrder: 1},
}

var combineCmd = &cobra.Command{
	Use:   "combine",
	Short: "Merge result files into one report",
	Long: `Merge every run file in the results directory (plus the SQLite ledger when
store_path is set) into results_combined.json and results_latex_table.txt, then
print a summary.

Examples:
  soilspec combine
  soilspec combine --results-dir runs --merge-policy latest`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireConfig()
		if err != nil {
			return err
		}
		return runCombine(cmd.Context(), c, cmd.OutOrStdout(), logger)
	},
}

func init() {
	rootCmd.AddCommand(combineCmd)
}

// runCombine reads, merges and writes. It fails with ErrNoResults when no
// run was found and with the MergeError of the first malformed input.
func runCombine(ctx context.Context, c *config.Global, out io.Writer, logger log.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	runs, err := collectRuns(ctx, c, logger)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		return errors.Wrapf(errors.ErrNoResults, "no result files found in %s", c.ResultsDir)
	}

	rep, err := report.Merge(c.MergePolicyValue(), runs, report.WithLogger(logger))
	if err != nil {
		return err
	}

	combined := filepath.Join(c.ResultsDir, CombinedFile)
	if err := rep.WriteJSON(combined); err != nil {
		return err
	}
	latexPath := filepath.Join(c.ResultsDir, LatexFile)
	if err := writeLatexFile(latexPath, rep, c.LatexOptions()); err != nil {
		return err
	}
	logger.Info("results combined",
		"combine.runs", len(runs),
		"combine.records", rep.Len(),
		log.FilePathKey, combined,
	)

	if err := report.Summary(out, rep); err != nil {
		return err
	}
	fmt.Fprintf(out, "\nCombined results saved to: %s\n", combined)
	fmt.Fprintf(out, "LaTeX tables saved to: %s\n", latexPath)
	return nil
}

func writeLatexFile(path string, rep *report.ResultsReport, opts report.LatexOptions) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = errors.Wrapf(cerr, "close %s", path)
		}
	}()
	return report.WriteLatex(f, rep, opts)
}

// collectRuns loads run files in name order, then the ledger runs. A missing
// results directory is treated as empty.
func collectRuns(ctx context.Context, c *config.Global, logger log.Logger) ([]*report.Run, error) {
	var runs []*report.Run

	paths, err := filepath.Glob(filepath.Join(c.ResultsDir, "*.json"))
	if err != nil {
		return nil, errors.Wrap(err, "list result files")
	}
	sort.Strings(paths)
	for _, p := range paths {
		name := filepath.Base(p)
		if name == CombinedFile {
			continue
		}
		var run *report.Run
		if base, ok := legacyConfigs[name]; ok {
			run, err = report.ReadLegacyFile(p, base)
		} else {
			run, err = report.ReadRunFile(p)
		}
		if err != nil {
			return nil, err
		}
		logger.Debug("loaded result file", log.FilePathKey, p, "run.records", len(run.Records))
		runs = append(runs, run)
	}

	if c.StorePath != "" {
		if _, err := os.Stat(c.StorePath); err == nil {
			stored, err := storedRuns(ctx, c.StorePath, logger)
			if err != nil {
				return nil, err
			}
			runs = append(runs, stored...)
		}
	}
	return runs, nil
}

func storedRuns(ctx context.Context, path string, logger log.Logger) ([]*report.Run, error) {
	st, err := resultstore.Open(path, resultstore.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	defer st.Close()
	return st.Runs(ctx)
}
