package log

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/soilspec/pkg/errors"
)

// TestLoggerInterface tests the Logger interface implementation
func TestLoggerInterface(t *testing.T) {
	testLogger, buffer := NewTestLogger(LevelDebug)

	testLogger.Debug("debug message", "key1", "value1", "number", 42)
	testLogger.Info("info message", "operation", "test")
	testLogger.Warn("warning message", "warning_code", "TEST_WARNING")
	testLogger.Error("error message", fmt.Errorf("test error"), "error_code", "TEST_ERROR")

	if buffer.String() == "" {
		t.Fatal("Expected log output, got empty string")
	}

	for _, msg := range []string{"debug message", "info message", "warning message", "error message"} {
		if !testLogger.ContainsMessage(msg) {
			t.Errorf("%q not found in output", msg)
		}
	}

	if !testLogger.ContainsField("key1", "value1") {
		t.Error("Expected field key1=value1 not found")
	}
	if !testLogger.ContainsField("number", 42.0) { // JSON unmarshaling converts numbers to float64
		t.Error("Expected field number=42 not found")
	}
	if !testLogger.ContainsField(ErrAttrKey, "test error") {
		t.Error("Expected leading error to be stored under the error key")
	}
}

// TestLoggerWith tests the With method for context-aware logging
func TestLoggerWith(t *testing.T) {
	testLogger, _ := NewTestLogger(LevelDebug)

	contextLogger := testLogger.With(
		TargetKey, "Organic_Carbon",
		AlgorithmKey, "pls",
		PreprocessingKey, "StndScale_PCA10",
	)
	contextLogger.Info("contextual message", OperationKey, OperationFit)

	assert.True(t, testLogger.ContainsField(TargetKey, "Organic_Carbon"))
	assert.True(t, testLogger.ContainsField(AlgorithmKey, "pls"))
	assert.True(t, testLogger.ContainsField(PreprocessingKey, "StndScale_PCA10"))
	assert.True(t, testLogger.ContainsField(OperationKey, OperationFit))
}

// TestLoggerEnabled tests the Enabled method
func TestLoggerEnabled(t *testing.T) {
	testLogger, _ := NewTestLogger(LevelInfo)
	ctx := context.Background()

	assert.True(t, testLogger.Enabled(ctx, LevelInfo))
	assert.True(t, testLogger.Enabled(ctx, LevelError))
	assert.False(t, testLogger.Enabled(ctx, LevelDebug))

	testLogger.Debug("this should not appear")
	testLogger.Info("this should appear")

	assert.False(t, testLogger.ContainsMessage("this should not appear"))
	assert.True(t, testLogger.ContainsMessage("this should appear"))
}

func TestSoilAttributeKeys(t *testing.T) {
	testLogger, _ := NewTestLogger(LevelInfo)

	testLogger.Info("Training completed",
		TargetKey, "pH",
		AlgorithmKey, "random_forest",
		SamplesKey, 412,
		FeaturesKey, 2151,
		R2ScoreKey, 0.81,
		BestIterationKey, 37,
	)

	entries, err := testLogger.GetLogEntries()
	require.NoError(t, err)
	require.Len(t, entries, 1)

	want := map[string]interface{}{
		TargetKey:        "pH",
		AlgorithmKey:     "random_forest",
		SamplesKey:       412.0,
		FeaturesKey:      2151.0,
		R2ScoreKey:       0.81,
		BestIterationKey: 37.0,
		"level":          "INFO",
	}
	for key, expected := range want {
		assert.Equal(t, expected, entries[0][key], "field %s", key)
	}
}

// TestLoggerProviderIntegration tests the LoggerProvider interface
func TestLoggerProviderIntegration(t *testing.T) {
	provider, buffer := NewTestLoggerProvider(LevelDebug)

	provider.GetLogger().Info("provider test message")
	provider.GetLoggerWithName("aggregation").Info("named logger message")

	lines := buffer.String()
	assert.Contains(t, lines, "provider test message")
	assert.Contains(t, lines, "named logger message")
	assert.Contains(t, lines, "aggregation")

	provider.SetLevel(LevelError)
	provider.GetLogger().Info("suppressed")
	assert.NotContains(t, buffer.String(), "suppressed")
}

// TestConcurrentLogging tests thread safety of logging
func TestConcurrentLogging(t *testing.T) {
	testLogger, _ := NewTestLogger(LevelInfo)
	child := testLogger.With(RunIDKey, "run-1")

	const numGoroutines, messagesPerGoroutine = 8, 20
	var wg sync.WaitGroup
	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < messagesPerGoroutine; j++ {
				child.Info(fmt.Sprintf("worker %d job %d", id, j), WorkerIDKey, id)
			}
		}(i)
	}
	wg.Wait()

	entries, err := testLogger.GetLogEntries()
	require.NoError(t, err)
	assert.Len(t, entries, numGoroutines*messagesPerGoroutine)
}

func TestZerologProvider(t *testing.T) {
	var buf bytes.Buffer
	provider := NewZerologProviderWithWriter(&buf, slog.LevelInfo)
	defer errors.SetZerologWarnFunc(nil)

	logger := provider.GetLoggerWithName("training").With(TargetKey, "Calcium")
	logger.Debug("hidden")
	logger.Info("fitted", AlgorithmKey, "knn", R2ScoreKey, 0.5)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "fitted", entry["message"])
	assert.Equal(t, "training", entry[ComponentKey])
	assert.Equal(t, "Calcium", entry[TargetKey])
	assert.Equal(t, "knn", entry[AlgorithmKey])
	assert.Equal(t, 0.5, entry[R2ScoreKey])

	buf.Reset()
	provider.SetLevel(LevelDebug)
	logger.Debug("now visible")
	assert.Contains(t, buf.String(), "now visible")
}

func TestZerologProviderErrorAndWarnings(t *testing.T) {
	var buf bytes.Buffer
	provider := NewZerologProviderWithWriter(&buf, slog.LevelDebug)
	defer errors.SetZerologWarnFunc(nil)

	trainErr := errors.NewTrainingError("pH", "mlp", "diverged", nil)
	provider.GetLogger().Error("job failed", trainErr, JobKey, "pH/mlp/noScale")

	out := buf.String()
	assert.Contains(t, out, `"error":"soilspec: training mlp for target \"pH\" failed: diverged"`)
	assert.Contains(t, out, `"run.job":"pH/mlp/noScale"`)

	buf.Reset()
	errors.Warn(errors.NewConvergenceWarning("MLPRegressor", 200, "validation loss plateaued"))
	out = buf.String()
	assert.Contains(t, out, `"level":"warn"`)
	assert.Contains(t, out, `"algorithm":"MLPRegressor"`)
	assert.Contains(t, out, `"type":"ConvergenceWarning"`)
}

func TestNop(t *testing.T) {
	logger := Nop().With(TargetKey, "pH")
	logger.Error("nothing", fmt.Errorf("x"))
	assert.False(t, logger.Enabled(context.Background(), LevelError))
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"warn", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLogLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Panics(t, func() { ToLogLevel(tt.in) })
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSetupLoggerAddsStacktrace(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	defer slog.SetDefault(prev)

	SetupLoggerTo(&buf, "info")
	slog.Error("load failed", ErrAttr(errors.NewDataLoadError("spectra.csv", "file not found", nil)))

	out := buf.String()
	assert.Contains(t, out, `"severity":"ERROR"`)
	assert.Contains(t, out, `"message":"load failed"`)
	assert.Contains(t, out, StacktraceAttrKey)
}

// BenchmarkLogging benchmarks logging performance
func BenchmarkLogging(b *testing.B) {
	var buf bytes.Buffer
	logger := NewZerologProviderWithWriter(&buf, slog.LevelInfo).GetLogger()
	defer errors.SetZerologWarnFunc(nil)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		logger.Info("benchmark message",
			IterationKey, i,
			OperationKey, OperationPredict,
			SamplesKey, 1000,
		)
	}
}
