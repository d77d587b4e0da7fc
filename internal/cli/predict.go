package cli

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/soilspec/dataset"
	"github.com/YuminosukeSato/soilspec/pkg/errors"
	"github.com/YuminosukeSato/soilspec/pkg/log"
	"github.com/YuminosukeSato/soilspec/training"
)

var (
	predictArtifact string
	predictSpectra  string
	predictOutput   string
)

var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Predict a property for new spectra with a saved model",
	Long: `Apply a model artifact written by train to a spectra table with the same
wavelength header. Predictions are written as CSV (sample_id,<target>).

Examples:
  soilspec predict --artifact artifacts/pH_pls_StndScale.gob --spectra new.csv
  soilspec predict --artifact model.gob --spectra new.csv --output pred.csv`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if predictOutput != "" {
			f, err := os.Create(predictOutput)
			if err != nil {
				return errors.Wrapf(err, "create %s", predictOutput)
			}
			defer f.Close()
			out = f
		}
		return runPredict(predictArtifact, predictSpectra, out, logger)
	},
}

func init() {
	rootCmd.AddCommand(predictCmd)
	predictCmd.Flags().StringVar(&predictArtifact, "artifact", "", "model artifact (.gob)")
	predictCmd.Flags().StringVar(&predictSpectra, "spectra", "", "spectra CSV (sample_id,<wavelength>...)")
	predictCmd.Flags().StringVarP(&predictOutput, "output", "o", "", "write predictions to this file instead of stdout")
	_ = predictCmd.MarkFlagRequired("artifact")
	_ = predictCmd.MarkFlagRequired("spectra")
}

func runPredict(artifactPath, spectraPath string, out io.Writer, logger log.Logger) error {
	a, err := training.LoadArtifact(artifactPath)
	if err != nil {
		return err
	}
	opts := dataset.DefaultLoaderOptions()
	if cfg != nil {
		opts = cfg.LoaderOptions(logger)
	}
	opts.ExpectedBands = len(a.Wavelengths)
	ds, err := dataset.LoadSpectra(spectraPath, opts)
	if err != nil {
		return err
	}
	pred, err := a.PredictDataset(ds)
	if err != nil {
		return err
	}
	logger.Info("prediction finished",
		log.TargetKey, a.Target,
		log.AlgorithmKey, a.Algorithm,
		log.SamplesKey, len(pred),
		log.FilePathKey, spectraPath,
	)

	w := csv.NewWriter(out)
	if err := w.Write([]string{"sample_id", a.Target}); err != nil {
		return errors.Wrap(err, "write predictions")
	}
	for i, id := range ds.IDs() {
		if err := w.Write([]string{id, strconv.FormatFloat(pred[i], 'g', -1, 64)}); err != nil {
			return errors.Wrap(err, "write predictions")
		}
	}
	w.Flush()
	return errors.Wrap(w.Error(), "write predictions")
}
