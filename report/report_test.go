package report

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/soilspec/pkg/errors"
	"github.com/YuminosukeSato/soilspec/pkg/log"
	"github.com/YuminosukeSato/soilspec/preprocessing"
)

var (
	t0      = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	t1      = t0.Add(time.Hour)
	scaled  = preprocessing.Config{Scale: true}
	derived = preprocessing.Config{Scale: true, DerivativeOrder: 1}
)

func rec(target, alg string, cfg preprocessing.Config, r2 *float64, runID string, at time.Time) Record {
	return Record{Target: target, Algorithm: alg, Preprocessing: cfg, R2: r2, RunID: runID, CreatedAt: at}
}

func sampleRuns() []*Run {
	a := &Run{ID: "run-a", CreatedAt: t0, Source: "a.json", Records: []Record{
		rec("pH", "pls", scaled, Float(0.71), "run-a", t0),
		rec("pH", "random_forest", scaled, Float(0.64), "run-a", t0),
		rec("pH", "mlp", scaled, nil, "run-a", t0),
		rec("Organic_Carbon", "pls", scaled, Float(0.82), "run-a", t0),
	}}
	b := &Run{ID: "run-b", CreatedAt: t1, Source: "b.json", Records: []Record{
		rec("pH", "pls", scaled, Float(0.69), "run-b", t1),
		rec("pH", "mlp", scaled, Float(0.40), "run-b", t1),
		rec("pH", "pls", derived, Float(0.75), "run-b", t1),
		rec("Organic_Carbon", "knn", derived, Float(0.55), "run-b", t1),
	}}
	return []*Run{a, b}
}

func TestRecordMethod(t *testing.T) {
	tests := []struct {
		cfg  preprocessing.Config
		want string
	}{
		{preprocessing.Config{}, "pls"},
		{preprocessing.Config{Scale: true}, "pls_StndScale"},
		{preprocessing.Config{Scale: true, UsePCA: true, NComponents: 10}, "pls_StndScale_PCA10"},
		{preprocessing.Config{DerivativeOrder: 2}, "pls_deriv2"},
		{preprocessing.Config{NComponents: 5}, "pls"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			r := Record{Algorithm: "pls", Preprocessing: tt.cfg}
			assert.Equal(t, tt.want, r.Method())
		})
	}
}

func TestMergeKeepBest(t *testing.T) {
	r, err := Merge(KeepBest, sampleRuns())
	require.NoError(t, err)
	assert.Equal(t, 6, r.Len())

	got := r.Ranked("pH")
	methods := make([]string, len(got))
	for i, rec := range got {
		methods[i] = rec.Method()
	}
	want := []string{"pls_StndScale_deriv1", "pls_StndScale", "random_forest_StndScale", "mlp_StndScale"}
	if diff := cmp.Diff(want, methods); diff != "" {
		t.Errorf("ranking mismatch (-want +got):\n%s", diff)
	}
	// 0.71 from run-a beats 0.69 from run-b.
	assert.Equal(t, "run-a", got[1].RunID)
	// scored beats unscored
	assert.InDelta(t, 0.40, *got[3].R2, 1e-12)
}

func TestMergeKeepLatest(t *testing.T) {
	r, err := Merge(KeepLatest, sampleRuns())
	require.NoError(t, err)
	for _, rec := range r.Ranked("pH") {
		if rec.Algorithm == "pls" && !rec.Preprocessing.IsDerivative() {
			assert.Equal(t, "run-b", rec.RunID)
			assert.InDelta(t, 0.69, *rec.R2, 1e-12)
		}
	}
}

func TestMergeOrderIndependentAndIdempotent(t *testing.T) {
	for _, policy := range []Policy{KeepBest, KeepLatest} {
		t.Run(policy.String(), func(t *testing.T) {
			runs := sampleRuns()
			forward, err := Merge(policy, runs)
			require.NoError(t, err)
			backward, err := Merge(policy, []*Run{runs[1], runs[0]})
			require.NoError(t, err)
			twice, err := Merge(policy, []*Run{runs[0], runs[1], runs[0], runs[1]})
			require.NoError(t, err)

			if diff := cmp.Diff(forward.Records(), backward.Records()); diff != "" {
				t.Errorf("merge depends on order (-forward +backward):\n%s", diff)
			}
			if diff := cmp.Diff(forward.Records(), twice.Records()); diff != "" {
				t.Errorf("merge is not idempotent (-once +twice):\n%s", diff)
			}
		})
	}
}

func TestMergeTieBreak(t *testing.T) {
	a := rec("pH", "pls", scaled, Float(0.5), "aaa", t0)
	b := rec("pH", "pls", scaled, Float(0.5), "bbb", t0)
	c := rec("pH", "pls", scaled, Float(0.5), "ccc", t1)

	for _, order := range [][]Record{{a, b, c}, {c, b, a}, {b, c, a}} {
		r := New(KeepBest)
		for _, x := range order {
			require.NoError(t, r.Add(x))
		}
		best, ok := r.Best("pH")
		require.True(t, ok)
		assert.Equal(t, "ccc", best.RunID)
	}
}

func TestMergeErrors(t *testing.T) {
	tests := []struct {
		name  string
		rec   Record
		field string
	}{
		{"missing target", rec("", "pls", scaled, Float(1), "x", t0), "target"},
		{"missing algorithm", rec("pH", " ", scaled, Float(1), "x", t0), "algorithm"},
		{"bad preprocessing", rec("pH", "pls", preprocessing.Config{DerivativeOrder: 3}, Float(1), "x", t0), "preprocessing"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			run := &Run{ID: "x", Source: "bad.json", Records: []Record{rec("pH", "pls", scaled, Float(0.1), "x", t0), tt.rec}}
			_, err := Merge(KeepBest, []*Run{run})
			require.Error(t, err)
			var me *errors.MergeError
			require.True(t, errors.As(err, &me))
			assert.Equal(t, "bad.json", me.Source)
			assert.Equal(t, 1, me.Index)
			assert.Equal(t, tt.field, me.Field)
		})
	}
}

func TestTopAndBest(t *testing.T) {
	r, err := Merge(KeepBest, sampleRuns())
	require.NoError(t, err)

	top := r.Top("pH", 2)
	require.Len(t, top, 2)
	assert.InDelta(t, 0.75, *top[0].R2, 1e-12)

	_, ok := r.Best("Sodium")
	assert.False(t, ok)
	assert.Equal(t, []string{"Organic_Carbon", "pH"}, r.Targets())

	only := New(KeepBest)
	require.NoError(t, only.Add(rec("Sodium", "knn", scaled, nil, "x", t0)))
	assert.Empty(t, only.Top("Sodium", 5))
}

func TestRunFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	run := NewRun(t0)
	run.Add(Record{Target: "pH", Algorithm: "pls", Preprocessing: scaled, R2: Float(0.7), NSamples: 40})
	path := filepath.Join(dir, "runs", "run.json")
	require.NoError(t, WriteRunFile(path, run))

	got, err := ReadRunFile(path)
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, path, got.Source)
	require.Len(t, got.Records, 1)
	assert.Equal(t, run.ID, got.Records[0].RunID)
	assert.True(t, got.Records[0].CreatedAt.Equal(t0))
}

func TestReadRunFileKeepsSource(t *testing.T) {
	dir := t.TempDir()
	run := NewRun(t0)
	run.Source = "benchmark"
	run.Add(Record{Target: "pH", Algorithm: "ridge", Preprocessing: scaled, R2: Float(0.4)})
	path := filepath.Join(dir, "run-bench.json")
	require.NoError(t, WriteRunFile(path, run))

	got, err := ReadRunFile(path)
	require.NoError(t, err)
	assert.Equal(t, "benchmark", got.Source)

	// invalid records are still reported against the file
	run.Records[0].Target = ""
	require.NoError(t, WriteRunFile(path, run))
	_, err = ReadRunFile(path)
	var me *errors.MergeError
	require.True(t, errors.As(err, &me), "got %v", err)
	assert.Equal(t, path, me.Source)
	assert.Equal(t, "target", me.Field)
}

func TestReadRunFileInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := ReadRunFile(path)
	var me *errors.MergeError
	require.True(t, errors.As(err, &me))
	assert.Equal(t, -1, me.Index)
	assert.Contains(t, err.Error(), "invalid JSON")
}

func TestReadLegacyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results_derivatives.json")
	doc := `{
		"pH": {"PLSRegression_StndScale": 0.61, "MLPRegressor_StndScale_PCA20": null},
		"Clay_Content": {"RandomForest": 0.8}
	}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	run, err := ReadLegacyFile(path, preprocessing.Config{DerivativeOrder: 1})
	require.NoError(t, err)
	require.Len(t, run.Records, 3)

	byMethod := map[string]Record{}
	for _, r := range run.Records {
		byMethod[r.Method()] = r
	}
	pls, ok := byMethod["PLSRegression_StndScale_deriv1"]
	require.True(t, ok, "got %v", byMethod)
	assert.Equal(t, "PLSRegression", pls.Algorithm)
	assert.Equal(t, "results_derivatives", pls.RunID)

	mlp := byMethod["MLPRegressor_StndScale_PCA20_deriv1"]
	assert.Nil(t, mlp.R2)
	assert.Equal(t, 20, mlp.Preprocessing.NComponents)

	assert.Contains(t, byMethod, "RandomForest_deriv1")
}

func TestCleanMethodName(t *testing.T) {
	tests := []struct{ in, want string }{
		{"random_forest_StndScale", "Random Forest Standard Scaling"},
		{"pls_StndScale_PCA10_deriv1", "PLS Standard Scaling PCA10 (Deriv)"},
		{"knn", "K-Neighbors"},
		{"enhanced_nn_deriv", "Enhanced NN (Deriv)"},
		{"ExtraTreesRegressor_noScale", "Extra Trees No Scaling"},
		{"Enhanced_Neural_Network_StndScale_deriv", "Enhanced NN Standard Scaling (Deriv)"},
		{"linear_svr", "Linear SVR"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanMethodName(tt.in))
		})
	}
	assert.Equal(t, "pH", CleanPropertyName("pH"))
	assert.Equal(t, "Organic Carbon", CleanPropertyName("Organic_Carbon"))
}

func TestLatexTables(t *testing.T) {
	r, err := Merge(KeepBest, sampleRuns())
	require.NoError(t, err)
	require.NoError(t, r.Add(rec("Sodium", "pls", scaled, Float(-5000), "x", t0)))

	out := LatexTables(r, LatexOptions{TopN: 2})

	assert.Contains(t, out, `\label{tab:best_methods_summary}`)
	assert.Contains(t, out, `Organic Carbon & PLS Standard Scaling & 0.820 \\`)
	assert.Contains(t, out, `Sodium & No valid results & --- \\`)
	assert.Contains(t, out, `Calcium & Not available & --- \\`)
	assert.Contains(t, out, `\caption{Top models for predicting pH}`)
	assert.Contains(t, out, `\label{tab:organiccarbon}`)
	assert.Contains(t, out, "% No valid methods found for Sodium")

	// Organic_Carbon (0.82) comes before pH (0.75).
	assert.Less(t, strings.Index(out, `tab:organiccarbon`), strings.Index(out, `tab:ph}`))

	// TopN limits pH to two rows.
	phTable := out[strings.Index(out, `tab:ph}`):]
	phTable = phTable[:strings.Index(phTable, `\end{table}`)]
	assert.Equal(t, 2, strings.Count(phTable, `\\`)-1)
	assert.Contains(t, phTable, "PLS Standard Scaling (Deriv) & 0.750")
}

func TestSummary(t *testing.T) {
	r, err := Merge(KeepBest, sampleRuns())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Summary(&buf, r))
	out := buf.String()

	assert.Contains(t, out, "Total soil properties analyzed: 2")
	assert.Contains(t, out, "Methods: 4 total (3 fullrun, 1 derivatives)")
	assert.Contains(t, out, "Valid results: 4/4 (100.0%)")
	assert.Contains(t, out, "Best method: pls_StndScale_deriv1 (R² = 0.7500)")
	assert.Contains(t, out, "Total methods tested: 6")
	assert.Contains(t, out, "PERFORMANCE COMPARISON:")
}

func TestMarshalJSON(t *testing.T) {
	r, err := Merge(KeepBest, sampleRuns())
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "results_combined.json")
	require.NoError(t, r.WriteJSON(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc map[string][]struct {
		Method string   `json:"method"`
		R2     *float64 `json:"r2"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))
	require.Len(t, doc["pH"], 4)
	assert.Equal(t, "pls_StndScale_deriv1", doc["pH"][0].Method)
	assert.Equal(t, "knn_StndScale_deriv1", doc["Organic_Carbon"][1].Method)
}

func TestDuplicateReplacementIsLogged(t *testing.T) {
	logger, _ := log.NewTestLogger(log.LevelDebug)
	r := New(KeepBest, WithLogger(logger))
	require.NoError(t, r.Add(rec("pH", "pls", scaled, Float(0.1), "a", t0)))
	require.NoError(t, r.Add(rec("pH", "pls", scaled, Float(0.2), "b", t0)))
	assert.True(t, logger.ContainsMessage("replacing duplicate result"))
	assert.True(t, logger.ContainsField(log.TargetKey, "pH"))
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("latest")
	require.NoError(t, err)
	assert.Equal(t, KeepLatest, p)
	p, err = ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, KeepBest, p)
	_, err = ParsePolicy("newest")
	assert.Error(t, err)
}
