package experiment

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/soilspec/dataset"
	"github.com/YuminosukeSato/soilspec/internal/testutil"
	"github.com/YuminosukeSato/soilspec/pkg/errors"
	"github.com/YuminosukeSato/soilspec/pkg/log"
	"github.com/YuminosukeSato/soilspec/preprocessing"
	"github.com/YuminosukeSato/soilspec/report"
	"github.com/YuminosukeSato/soilspec/training"
)

func spectra(t *testing.T) *dataset.Dataset {
	t.Helper()
	ds, err := testutil.Dataset(testutil.Spectra{Samples: 40, Bands: 20, Seed: 11})
	require.NoError(t, err)
	return ds
}

func newTrainer(t *testing.T) *training.Trainer {
	t.Helper()
	tr, err := training.NewTrainer(training.DefaultRegistry(), training.DefaultOptions())
	require.NoError(t, err)
	return tr
}

type scored struct {
	Target string
	Method string
	R2     *float64
	Error  bool
}

func scores(run *report.Run) []scored {
	out := make([]scored, len(run.Records))
	for i, r := range run.Records {
		out[i] = scored{Target: r.Target, Method: r.Method(), R2: r.R2, Error: r.Error != ""}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Target != out[j].Target {
			return out[i].Target < out[j].Target
		}
		return out[i].Method < out[j].Method
	})
	return out
}

func basePlan() *Plan {
	return &Plan{
		Targets:    []string{"Organic_Carbon", "Clay_Content"},
		Algorithms: []string{training.RidgeID, training.KNNID},
		Preprocessing: []preprocessing.Config{
			{Scale: true},
			{Scale: true, UsePCA: true, NComponents: 5, DerivativeOrder: 1},
		},
	}
}

func TestPlanJobs(t *testing.T) {
	p := Plan{
		Targets:    []string{"pH"},
		Algorithms: []string{"ridge", "pls"},
		Preprocessing: []preprocessing.Config{
			{Scale: true},
			{Scale: true, NComponents: 7}, // same transform once normalized
			{DerivativeOrder: 1},
		},
	}
	jobs := p.Jobs()
	require.Len(t, jobs, 4)

	got := make([]string, len(jobs))
	for i, j := range jobs {
		assert.Equal(t, i, j.Index)
		got[i] = j.Algorithm + "/" + j.Preprocessing.Label()
	}
	want := []string{"ridge/StndScale", "pls/StndScale", "ridge/noScale_deriv1", "pls/noScale_deriv1"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("jobs mismatch (-want +got):\n%s", diff)
	}
}

func TestPlanResolveDefaults(t *testing.T) {
	ds := spectra(t)
	reg := training.DefaultRegistry()

	p := Plan{CV: true}.Resolve(reg, ds)
	assert.Equal(t, ds.PropertyNames(), p.Targets)
	assert.Equal(t, reg.Catalog(), p.Algorithms)
	assert.Equal(t, []preprocessing.Config{{Scale: true}}, p.Preprocessing)
	assert.Equal(t, 5, p.CVFolds)
}

func TestPlanValidate(t *testing.T) {
	ds := spectra(t)
	reg := training.DefaultRegistry()

	tests := []struct {
		name  string
		plan  Plan
		check func(t *testing.T, err error)
	}{
		{
			name: "valid",
			plan: *basePlan(),
			check: func(t *testing.T, err error) {
				assert.NoError(t, err)
			},
		},
		{
			name: "unknown algorithm",
			plan: Plan{Algorithms: []string{"ridge", "xgboost"}},
			check: func(t *testing.T, err error) {
				require.Error(t, err)
				assert.True(t, errors.Is(err, errors.ErrUnknownAlgorithm))
				assert.Contains(t, err.Error(), "xgboost")
			},
		},
		{
			name: "unknown hyperparams algorithm",
			plan: Plan{Algorithms: []string{"ridge"}, Hyperparams: map[string]training.Hyperparams{"svm": {"c": 1}}},
			check: func(t *testing.T, err error) {
				assert.True(t, errors.Is(err, errors.ErrUnknownAlgorithm))
			},
		},
		{
			name: "invalid preprocessing",
			plan: Plan{Preprocessing: []preprocessing.Config{{UsePCA: true}}},
			check: func(t *testing.T, err error) {
				var pe *errors.PreprocessingError
				require.True(t, errors.As(err, &pe))
				assert.Equal(t, "n_components", pe.Param)
			},
		},
		{
			name: "unknown target",
			plan: Plan{Targets: []string{"Nitrogen"}},
			check: func(t *testing.T, err error) {
				var ve *errors.ValidationError
				require.True(t, errors.As(err, &ve))
				assert.Equal(t, "Nitrogen", ve.Value)
			},
		},
		{
			name: "bad fold count",
			plan: Plan{CV: true, CVFolds: 1},
			check: func(t *testing.T, err error) {
				var ve *errors.ValidationError
				require.True(t, errors.As(err, &ve))
				assert.Equal(t, "cv_folds", ve.ParamName)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, tt.plan.Validate(reg, ds))
		})
	}
}

func TestLoadPlan(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.yaml")
	body := `targets: [Organic_Carbon]
algorithms: [random_forest, mlp]
preprocessing:
  - scale: true
    use_pca: true
    n_components: 10
    derivative_order: 1
hyperparams:
  random_forest:
    n_estimators: 20
  mlp:
    hidden: [32, 16]
    learning_rate: 0.005
cv: true
cv_folds: 3
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	p, err := LoadPlan(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"Organic_Carbon"}, p.Targets)
	assert.Equal(t, []preprocessing.Config{{Scale: true, UsePCA: true, NComponents: 10, DerivativeOrder: 1}}, p.Preprocessing)
	assert.True(t, p.CV)
	assert.Equal(t, 3, p.CVFolds)

	n, err := p.Hyperparams[training.RandomForestID].Int("n_estimators", 0)
	require.NoError(t, err)
	assert.Equal(t, 20, n)
	hidden, err := p.Hyperparams[training.MLPID].Ints("hidden", nil)
	require.NoError(t, err)
	assert.Equal(t, []int{32, 16}, hidden)

	out := filepath.Join(t.TempDir(), "copy.yaml")
	require.NoError(t, SavePlan(out, p))
	again, err := LoadPlan(out)
	require.NoError(t, err)
	assert.Equal(t, p.Targets, again.Targets)
	assert.Equal(t, p.Preprocessing, again.Preprocessing)

	_, err = LoadPlan(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestRunnerRun(t *testing.T) {
	ds := spectra(t)
	dir := t.TempDir()
	logger, _ := log.NewTestLogger(log.LevelDebug)

	r := &Runner{Trainer: newTrainer(t), ArtifactsDir: dir, Source: "unit", Logger: logger}
	res, err := r.Run(context.Background(), ds, basePlan())
	require.NoError(t, err)

	require.Len(t, res.Run.Records, 8)
	assert.Len(t, res.Models, 8)
	assert.Empty(t, res.Failures)
	assert.Equal(t, "unit", res.Run.Source)
	for _, rec := range res.Run.Records {
		assert.Equal(t, res.Run.ID, rec.RunID)
		require.NotNil(t, rec.R2, rec.Method())
	}
	assert.True(t, logger.ContainsMessage("experiment finished"))

	job := Job{Target: "Organic_Carbon", Algorithm: training.RidgeID, Preprocessing: preprocessing.Config{Scale: true}}
	a, err := training.LoadArtifact(filepath.Join(dir, ArtifactName(job)))
	require.NoError(t, err)
	assert.Equal(t, "Organic_Carbon", a.Target)
	pred, err := a.PredictDataset(ds)
	require.NoError(t, err)
	assert.Len(t, pred, ds.Len())

	rep, err := report.Merge(report.KeepBest, []*report.Run{res.Run})
	require.NoError(t, err)
	assert.Equal(t, []string{"Clay_Content", "Organic_Carbon"}, rep.Targets())
}

func TestRunnerWorkersDeterministic(t *testing.T) {
	ds := spectra(t)
	tr := newTrainer(t)

	seq, err := (&Runner{Trainer: tr}).Run(context.Background(), ds, basePlan())
	require.NoError(t, err)
	par, err := (&Runner{Trainer: tr, Workers: 4}).Run(context.Background(), ds, basePlan())
	require.NoError(t, err)

	if diff := cmp.Diff(scores(seq.Run), scores(par.Run)); diff != "" {
		t.Errorf("parallel run differs (-seq +par):\n%s", diff)
	}
}

func TestRunnerRecordsFailures(t *testing.T) {
	ds := spectra(t)
	logger, _ := log.NewTestLogger(log.LevelDebug)
	plan := &Plan{
		Targets:       []string{"Organic_Carbon"},
		Algorithms:    []string{training.RidgeID, training.KNNID},
		Preprocessing: []preprocessing.Config{{Scale: true}},
		Hyperparams:   map[string]training.Hyperparams{training.KNNID: {"n_neighbors": 200}},
	}

	res, err := (&Runner{Trainer: newTrainer(t), Logger: logger}).Run(context.Background(), ds, plan)
	require.NoError(t, err)

	require.Len(t, res.Failures, 1)
	assert.Equal(t, training.KNNID, res.Failures[0].Job.Algorithm)
	var te *errors.TrainingError
	assert.True(t, errors.As(res.Failures[0].Err, &te))

	require.Len(t, res.Run.Records, 2)
	failed := res.Run.Records[1]
	assert.Equal(t, training.KNNID, failed.Algorithm)
	assert.Nil(t, failed.R2)
	assert.NotEmpty(t, failed.Error)
	assert.NotNil(t, res.Run.Records[0].R2)
	assert.True(t, logger.ContainsMessage("job failed"))
	assert.True(t, logger.ContainsField(log.AlgorithmKey, training.KNNID))
}

func TestRunnerCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := (&Runner{Trainer: newTrainer(t)}).Run(ctx, spectra(t), basePlan())
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	require.NotNil(t, res)
	assert.Empty(t, res.Run.Records)
}

type memStore struct {
	runs []*report.Run
}

func (m *memStore) SaveRun(_ context.Context, run *report.Run) error {
	m.runs = append(m.runs, run)
	return nil
}

func TestRunnerCrossValidationAndStore(t *testing.T) {
	store := &memStore{}
	plan := &Plan{
		Targets:       []string{"Organic_Carbon"},
		Algorithms:    []string{training.RidgeID},
		Preprocessing: []preprocessing.Config{{Scale: true}},
		CV:            true,
		CVFolds:       4,
	}

	res, err := (&Runner{Trainer: newTrainer(t), Store: store}).Run(context.Background(), spectra(t), plan)
	require.NoError(t, err)

	require.Len(t, res.CV, 1)
	assert.Len(t, res.CV[0].Folds, 4)
	require.Len(t, store.runs, 1)
	assert.Equal(t, res.Run.ID, store.runs[0].ID)
}

func TestRunnerRejectsInvalidPlan(t *testing.T) {
	store := &memStore{}
	_, err := (&Runner{Trainer: newTrainer(t), Store: store}).Run(context.Background(), spectra(t),
		&Plan{Algorithms: []string{"nope"}})
	assert.True(t, errors.Is(err, errors.ErrUnknownAlgorithm))
	assert.Empty(t, store.runs)

	_, err = (&Runner{}).Run(context.Background(), spectra(t), basePlan())
	assert.Error(t, err)
}
