package cli

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/soilspec/experiment"
	"github.com/YuminosukeSato/soilspec/internal/config"
	"github.com/YuminosukeSato/soilspec/internal/testutil"
	"github.com/YuminosukeSato/soilspec/pkg/errors"
	"github.com/YuminosukeSato/soilspec/pkg/log"
	"github.com/YuminosukeSato/soilspec/preprocessing"
	"github.com/YuminosukeSato/soilspec/report"
	"github.com/YuminosukeSato/soilspec/resultstore"
	"github.com/YuminosukeSato/soilspec/training"
)

func testConfig(t *testing.T) *config.Global {
	t.Helper()
	root := t.TempDir()
	c := config.Default()
	c.DataDir = filepath.Join(root, "data")
	c.ResultsDir = filepath.Join(root, "results")
	require.NoError(t, os.MkdirAll(c.DataDir, 0o755))
	require.NoError(t, os.MkdirAll(c.ResultsDir, 0o755))
	return c
}

func writeResult(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func readCombined(t *testing.T, dir string) map[string][]map[string]any {
	t.Helper()
	b, err := os.ReadFile(filepath.Join(dir, CombinedFile))
	require.NoError(t, err)
	var out map[string][]map[string]any
	require.NoError(t, json.Unmarshal(b, &out))
	return out
}

func TestCombineLegacyFiles(t *testing.T) {
	c := testConfig(t)
	writeResult(t, c.ResultsDir, LegacyFullrunFile,
		`{"pH": {"PLSRegression_StndScale": 0.55, "RandomForest_StndScale": 0.62}, "Sand_Content": {"KNeighbors": null}}`)
	writeResult(t, c.ResultsDir, LegacyDerivFile,
		`{"pH": {"PLSRegression_StndScale": 0.71}}`)

	var out bytes.Buffer
	require.NoError(t, runCombine(context.Background(), c, &out, log.Nop()))

	combined := readCombined(t, c.ResultsDir)
	require.Len(t, combined["pH"], 3)
	assert.Equal(t, "PLSRegression_StndScale_deriv1", combined["pH"][0]["method"])
	assert.InDelta(t, 0.71, combined["pH"][0]["r2"], 1e-12)
	require.Len(t, combined["Sand_Content"], 1)
	assert.Nil(t, combined["Sand_Content"][0]["r2"])

	latex, err := os.ReadFile(filepath.Join(c.ResultsDir, LatexFile))
	require.NoError(t, err)
	assert.Contains(t, string(latex), `\begin{table}`)
	assert.Contains(t, string(latex), "PLSRegression Standard Scaling (Deriv)")

	assert.Contains(t, out.String(), "COMBINED RESULTS SUMMARY REPORT")
	assert.Contains(t, out.String(), CombinedFile)
}

func TestCombineIsRepeatable(t *testing.T) {
	c := testConfig(t)
	writeResult(t, c.ResultsDir, LegacyFullrunFile, `{"pH": {"RandomForest_StndScale": 0.62}}`)

	require.NoError(t, runCombine(context.Background(), c, &bytes.Buffer{}, log.Nop()))
	first := readCombined(t, c.ResultsDir)
	// the combined output sitting next to the inputs must not be read back
	require.NoError(t, runCombine(context.Background(), c, &bytes.Buffer{}, log.Nop()))
	assert.Equal(t, first, readCombined(t, c.ResultsDir))
}

func TestCombineNoResults(t *testing.T) {
	c := testConfig(t)
	err := runCombine(context.Background(), c, &bytes.Buffer{}, log.Nop())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNoResults))
	assert.Contains(t, err.Error(), c.ResultsDir)

	c.ResultsDir = filepath.Join(c.ResultsDir, "absent")
	err = runCombine(context.Background(), c, &bytes.Buffer{}, log.Nop())
	assert.True(t, errors.Is(err, errors.ErrNoResults))
}

func TestCombineMalformedInput(t *testing.T) {
	tests := []struct {
		name  string
		file  string
		body  string
		field string
	}{
		{"invalid json", "run-a.json", `{"id": `, ""},
		{"missing target", "run-b.json", `{"id": "b", "records": [{"algorithm": "pls", "r2": 0.5}]}`, "target"},
		{"missing algorithm", LegacyFullrunFile, `{"pH": {"": 0.5}}`, "algorithm"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := testConfig(t)
			writeResult(t, c.ResultsDir, tt.file, tt.body)

			err := runCombine(context.Background(), c, &bytes.Buffer{}, log.Nop())
			var me *errors.MergeError
			require.True(t, errors.As(err, &me), "got %v", err)
			assert.Equal(t, tt.field, me.Field)
			_, statErr := os.Stat(filepath.Join(c.ResultsDir, CombinedFile))
			assert.True(t, os.IsNotExist(statErr))
		})
	}
}

func TestTrainPredictCombine(t *testing.T) {
	c := testConfig(t)
	ds, err := testutil.Dataset(testutil.Spectra{Samples: 40, Bands: 20, Seed: 5})
	require.NoError(t, err)
	require.NoError(t, testutil.WriteTables(c.DataDir, ds))
	c.ArtifactsDir = filepath.Join(filepath.Dir(c.ResultsDir), "artifacts")
	c.StorePath = filepath.Join(filepath.Dir(c.ResultsDir), "ledger", "runs.db")

	plan := &experiment.Plan{
		Targets:       []string{"Organic_Carbon", "pH"},
		Algorithms:    []string{training.RidgeID, training.PLSID},
		Preprocessing: []preprocessing.Config{{Scale: true}},
	}
	var out bytes.Buffer
	require.NoError(t, runTrain(context.Background(), c, plan, &out, log.Nop()))
	assert.Contains(t, out.String(), "Organic_Carbon")

	runFiles, err := filepath.Glob(filepath.Join(c.ResultsDir, "run-*.json"))
	require.NoError(t, err)
	require.Len(t, runFiles, 1)
	run, err := report.ReadRunFile(runFiles[0])
	require.NoError(t, err)
	assert.Len(t, run.Records, 4)

	st, err := resultstore.Open(c.StorePath)
	require.NoError(t, err)
	stored, err := st.Runs(context.Background())
	require.NoError(t, err)
	require.NoError(t, st.Close())
	require.Len(t, stored, 1)
	assert.Equal(t, run.ID, stored[0].ID)

	// predict with one of the saved artifacts
	job := experiment.Job{Target: "pH", Algorithm: training.PLSID, Preprocessing: preprocessing.Config{Scale: true}}
	var pred bytes.Buffer
	require.NoError(t, runPredict(
		filepath.Join(c.ArtifactsDir, experiment.ArtifactName(job)),
		filepath.Join(c.DataDir, "spectra.csv"),
		&pred, log.Nop(),
	))
	rows, err := csv.NewReader(&pred).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, ds.Len()+1)
	assert.Equal(t, []string{"sample_id", "pH"}, rows[0])
	assert.Equal(t, ds.IDs()[0], rows[1][0])

	// the same run from the file and the ledger merges to one record per key
	out.Reset()
	require.NoError(t, runCombine(context.Background(), c, &out, log.Nop()))
	combined := readCombined(t, c.ResultsDir)
	assert.Len(t, combined["Organic_Carbon"], 2)
	assert.Len(t, combined["pH"], 2)
}

func TestTrainRejectsInvalidPlan(t *testing.T) {
	c := testConfig(t)
	ds, err := testutil.Dataset(testutil.Spectra{Samples: 20, Bands: 10, Seed: 5})
	require.NoError(t, err)
	require.NoError(t, testutil.WriteTables(c.DataDir, ds))

	err = runTrain(context.Background(), c, &experiment.Plan{Algorithms: []string{"svm"}}, &bytes.Buffer{}, log.Nop())
	assert.True(t, errors.Is(err, errors.ErrUnknownAlgorithm))
	files, _ := filepath.Glob(filepath.Join(c.ResultsDir, "*.json"))
	assert.Empty(t, files)
}

func TestTrainMissingData(t *testing.T) {
	c := testConfig(t)
	err := runTrain(context.Background(), c, &experiment.Plan{}, &bytes.Buffer{}, log.Nop())
	var de *errors.DataLoadError
	require.True(t, errors.As(err, &de), "got %v", err)
	assert.True(t, strings.HasPrefix(de.Path, c.DataDir))
}

func TestBenchmarkSave(t *testing.T) {
	c := testConfig(t)
	ds, err := testutil.Dataset(testutil.Spectra{Samples: 40, Bands: 20, Seed: 9})
	require.NoError(t, err)
	require.NoError(t, testutil.WriteTables(c.DataDir, ds))

	var out bytes.Buffer
	err = runBenchmark(context.Background(), c, "Clay_Content", preprocessing.Config{Scale: true},
		[]string{training.RidgeID, training.LinearRegressionID}, true, &out, log.Nop())
	require.NoError(t, err)
	assert.Contains(t, out.String(), "RANK")
	assert.Contains(t, out.String(), training.RidgeID)

	files, err := filepath.Glob(filepath.Join(c.ResultsDir, "run-*.json"))
	require.NoError(t, err)
	require.Len(t, files, 1)
	run, err := report.ReadRunFile(files[0])
	require.NoError(t, err)
	assert.Len(t, run.Records, 2)
	assert.Equal(t, "benchmark", run.Source)
}

func TestConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "soilspec.yaml")
	require.NoError(t, initConfig(path, false))
	assert.Error(t, initConfig(path, false))
	require.NoError(t, initConfig(path, true))

	c, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{training.PLSID, training.RandomForestID, training.GradientBoostingID, training.MLPID},
		c.Plan.Algorithms)
	assert.Len(t, c.Plan.Preprocessing, 3)
	require.NoError(t, c.Plan.Validate(training.DefaultRegistry(), nil))

	hidden, err := c.Plan.Hyperparams[training.MLPID].Ints("hidden", nil)
	require.NoError(t, err)
	assert.Equal(t, []int{64, 32}, hidden)

	var out bytes.Buffer
	require.NoError(t, showConfig(&out, c))
	assert.Contains(t, out.String(), "merge_policy: best")
}
