package errors

import (
	"fmt"
	"strings"
	"testing"
)

func TestNewModelError(t *testing.T) {
	tests := []struct {
		name     string
		op       string
		kind     string
		err      error
		wantMsg  string
		hasStack bool
	}{
		{
			name:     "with original error",
			op:       "Fit",
			kind:     "invalid input",
			err:      fmt.Errorf("test error"),
			wantMsg:  "soilspec: Fit: invalid input: test error",
			hasStack: true,
		},
		{
			name:     "without original error",
			op:       "Predict",
			kind:     "not fitted",
			err:      nil,
			wantMsg:  "soilspec: Predict: not fitted",
			hasStack: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewModelError(tt.op, tt.kind, tt.err)

			if err.Error() != tt.wantMsg {
				t.Errorf("Error() = %v, want %v", err.Error(), tt.wantMsg)
			}

			// スタックトレースの存在確認
			if tt.hasStack {
				formatted := fmt.Sprintf("%+v", err)
				if !strings.Contains(formatted, "errors_test.go") {
					t.Error("Expected stack trace to contain test file name")
				}
			}

			var modelErr *ModelError
			if !As(err, &modelErr) {
				t.Error("Error should be castable to *ModelError")
			}
		})
	}
}

func TestNewDimensionError(t *testing.T) {
	err := NewDimensionError("Predict", 10, 8, 1)

	want := "soilspec: Predict: dimension mismatch on axis 1 (features). Expected 10, got 8"
	if err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}

	var dimErr *DimensionError
	if !As(err, &dimErr) {
		t.Error("Error should be castable to *DimensionError")
	}
}

func TestNewNotFittedError(t *testing.T) {
	err := NewNotFittedError("PLSRegression", "Predict")

	want := "soilspec: PLSRegression: this model is not fitted yet. Call Fit() before using Predict()"
	if err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}

	var notFittedErr *NotFittedError
	if !As(err, &notFittedErr) {
		t.Error("Error should be castable to *NotFittedError")
	}
}

func TestDomainErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		contains []string
		check    func(error) bool
	}{
		{
			name:     "data load with row and column",
			err:      NewDataLoadErrorAt("data/spectra.csv", 3, "2500", "expected 2152 values, got 2151"),
			contains: []string{"data/spectra.csv", "row 3", `"2500"`, "expected 2152 values"},
			check: func(err error) bool {
				var target *DataLoadError
				return As(err, &target) && target.Row == 3
			},
		},
		{
			name:     "data load wrapping cause",
			err:      NewDataLoadError("chemical.csv", "file not found", fmt.Errorf("no such file")),
			contains: []string{"chemical.csv", "file not found", "no such file"},
			check: func(err error) bool {
				var target *DataLoadError
				return As(err, &target) && target.Err != nil
			},
		},
		{
			name:     "preprocessing",
			err:      NewPreprocessingError("n_components", "exceeds training sample count 40", 50),
			contains: []string{"n_components", "exceeds training sample count 40", "50"},
			check: func(err error) bool {
				var target *PreprocessingError
				return As(err, &target) && target.Param == "n_components"
			},
		},
		{
			name:     "training",
			err:      NewTrainingError("pH", "mlp", "non-finite validation loss", nil),
			contains: []string{"mlp", `"pH"`, "non-finite validation loss"},
			check: func(err error) bool {
				var target *TrainingError
				return As(err, &target) && target.Algorithm == "mlp"
			},
		},
		{
			name:     "merge",
			err:      NewMergeError("results_a.json", 4, "target", "is required"),
			contains: []string{"results_a.json", "record 4", `"target"`},
			check: func(err error) bool {
				var target *MergeError
				return As(err, &target) && target.Index == 4
			},
		},
		{
			name:     "merge whole source",
			err:      NewMergeError("results_b.json", -1, "", "invalid JSON"),
			contains: []string{"results_b.json: invalid JSON"},
			check: func(err error) bool {
				return !strings.Contains(err.Error(), "record")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("Error() = %q, want it to contain %q", msg, s)
				}
			}
			if !tt.check(tt.err) {
				t.Errorf("error %T did not match expected type/fields", tt.err)
			}
		})
	}
}

func TestTrainingErrorUnwrap(t *testing.T) {
	cause := NewNumericalInstabilityError("mlp_loss", []float64{1, 2, 3, 4, 5, 6}, 7)
	err := NewTrainingError("Clay_Content", "enhanced_nn", "diverged", cause)

	var numErr *NumericalInstabilityError
	if !As(err, &numErr) {
		t.Fatal("Expected cause to be reachable via As")
	}
	if numErr.Iteration != 7 {
		t.Errorf("Iteration = %d, want 7", numErr.Iteration)
	}
	if !strings.Contains(err.Error(), "...") {
		t.Error("Expected long value lists to be truncated")
	}
}

func TestNewConvergenceWarning(t *testing.T) {
	warn := NewConvergenceWarning("MLPRegressor", 200, "validation loss did not decrease")

	want := "MLPRegressor failed to converge after 200 iterations: validation loss did not decrease"
	if warn.Error() != want {
		t.Errorf("Error() = %v, want %v", warn.Error(), want)
	}
}

func TestWarnUsesZerologFunc(t *testing.T) {
	var got error
	SetZerologWarnFunc(func(w error) { got = w })
	defer SetZerologWarnFunc(nil)

	warn := NewConvergenceWarning("LinearSVR", 10, "")
	Warn(warn)

	if got != warn {
		t.Errorf("Warn() forwarded %v, want %v", got, warn)
	}
}

func TestWrapAndIs(t *testing.T) {
	wrapped := Wrap(ErrUnknownAlgorithm, "registry lookup")

	if !Is(wrapped, ErrUnknownAlgorithm) {
		t.Error("Expected Is(wrapped, ErrUnknownAlgorithm) to be true")
	}

	if !strings.Contains(wrapped.Error(), "registry lookup") {
		t.Error("Expected wrapped error to contain wrapping message")
	}
}

func TestWrapf(t *testing.T) {
	wrapped := Wrapf(ErrEmptyData, "in %s: expected %d, got %d", "Predict", 10, 5)

	if !Is(wrapped, ErrEmptyData) {
		t.Error("Expected Is(wrapped, ErrEmptyData) to be true")
	}

	expectedMsg := "in Predict: expected 10, got 5"
	if !strings.Contains(wrapped.Error(), expectedMsg) {
		t.Errorf("Expected wrapped error to contain %q", expectedMsg)
	}
}

func TestCheckScalar(t *testing.T) {
	tests := []struct {
		name    string
		value   float64
		wantErr bool
	}{
		{"finite", 1.5, false},
		{"nan", nanValue(), true},
		{"inf", infValue(), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckScalar("loss", tt.value, 3)
			if (err != nil) != tt.wantErr {
				t.Errorf("CheckScalar() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestClipGradient(t *testing.T) {
	g := []float64{3, 4}
	norm := ClipGradient(g, 1)
	if norm != 5 {
		t.Errorf("norm = %v, want 5", norm)
	}
	if g[0] < 0.599 || g[0] > 0.601 || g[1] < 0.799 || g[1] > 0.801 {
		t.Errorf("clipped gradient = %v, want [0.6 0.8]", g)
	}
}

func TestCheckMatrix(t *testing.T) {
	m := [][]float64{
		{0.31, 0.32, 0.33},
		{0.29, nanValue(), infValue()},
		{nanValue(), 0.3, 0.3},
	}
	at := matrixFunc(func(i, j int) float64 { return m[i][j] })

	err := CheckMatrix("reflectance", at, 3, 3, 0)
	var ne *NumericalInstabilityError
	if !As(err, &ne) {
		t.Fatalf("CheckMatrix() error = %v, want NumericalInstabilityError", err)
	}
	if len(ne.Values) != 2 {
		t.Errorf("CheckMatrix() reported %d values, want the 2 of the first bad row", len(ne.Values))
	}
	if err := CheckMatrix("reflectance", at, 1, 3, 0); err != nil {
		t.Errorf("CheckMatrix() on finite rows = %v", err)
	}
}

type matrixFunc func(i, j int) float64

func (f matrixFunc) At(i, j int) float64 { return f(i, j) }
