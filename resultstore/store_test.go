package resultstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/soilspec/pkg/errors"
	"github.com/YuminosukeSato/soilspec/preprocessing"
	"github.com/YuminosukeSato/soilspec/report"
)

func openStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "results.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, path
}

func sampleRun(id string, at time.Time) *report.Run {
	run := &report.Run{ID: id, CreatedAt: at, Source: "test"}
	run.Add(report.Record{
		Target:        "pH",
		Algorithm:     "pls",
		Preprocessing: preprocessing.Config{Scale: true, UsePCA: true, NComponents: 10},
		R2:            report.Float(0.71),
		RMSE:          report.Float(0.3),
		MAE:           report.Float(0.2),
		NSamples:      120,
	})
	run.Add(report.Record{
		Target:        "pH",
		Algorithm:     "mlp",
		Preprocessing: preprocessing.Config{DerivativeOrder: 1},
		Error:         "soilspec: training mlp for target \"pH\" failed: model diverged",
	})
	return run
}

func TestOpenAppliesMigrations(t *testing.T) {
	s, path := openStore(t)
	v, dirty, err := s.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(1), v)
	assert.False(t, dirty)
	require.NoError(t, s.Close())

	// reopening an up-to-date database is a no-op
	again, err := Open(path)
	require.NoError(t, err)
	defer again.Close()
	v, _, err = again.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(1), v)
}

func TestSaveAndLoadRuns(t *testing.T) {
	s, _ := openStore(t)
	ctx := context.Background()
	t0 := time.Date(2025, 5, 1, 9, 30, 0, 123456789, time.UTC)

	later := sampleRun("run-2", t0.Add(time.Hour))
	earlier := sampleRun("run-1", t0)
	require.NoError(t, s.SaveRun(ctx, later))
	require.NoError(t, s.SaveRun(ctx, earlier))

	runs, err := s.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-1", runs[0].ID)
	assert.Equal(t, "run-2", runs[1].ID)

	if diff := cmp.Diff(earlier, runs[0]); diff != "" {
		t.Errorf("round trip mismatch (-saved +loaded):\n%s", diff)
	}
	assert.Nil(t, runs[0].Records[1].R2)
}

func TestSaveRunRejectsDuplicatesAtomically(t *testing.T) {
	s, _ := openStore(t)
	ctx := context.Background()
	run := sampleRun("run-1", time.Now().UTC())
	require.NoError(t, s.SaveRun(ctx, run))
	assert.Error(t, s.SaveRun(ctx, run))

	runs, err := s.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Len(t, runs[0].Records, 2)
}

func TestSaveRunValidates(t *testing.T) {
	s, _ := openStore(t)
	run := &report.Run{ID: "bad", Source: "bad-run", Records: []report.Record{{Algorithm: "pls"}}}
	err := s.SaveRun(context.Background(), run)
	var me *errors.MergeError
	require.True(t, errors.As(err, &me))
	assert.Equal(t, "target", me.Field)

	runs, err := s.Runs(context.Background())
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestStoredRunsMerge(t *testing.T) {
	s, _ := openStore(t)
	ctx := context.Background()
	t0 := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	a := sampleRun("a", t0)
	b := sampleRun("b", t0.Add(time.Minute))
	b.Records[0].R2 = report.Float(0.9)
	require.NoError(t, s.SaveRun(ctx, a))
	require.NoError(t, s.SaveRun(ctx, b))

	runs, err := s.Runs(ctx)
	require.NoError(t, err)
	r, err := report.Merge(report.KeepBest, runs)
	require.NoError(t, err)
	best, ok := r.Best("pH")
	require.True(t, ok)
	assert.Equal(t, "b", best.RunID)
	assert.Equal(t, 2, r.Len())
}
