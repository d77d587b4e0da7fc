// Package report merges metrics records from independent runs into a single
// ResultsReport and renders it as combined JSON, LaTeX tables and a plain
// text summary.
package report

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/YuminosukeSato/soilspec/pkg/errors"
	"github.com/YuminosukeSato/soilspec/preprocessing"
)

// Record is the metrics-only summary of one trained model.
// A nil R2 marks a run that failed to produce a score.
type Record struct {
	Target        string               `json:"target"`
	Algorithm     string               `json:"algorithm"`
	Preprocessing preprocessing.Config `json:"preprocessing"`
	R2            *float64             `json:"r2"`
	RMSE          *float64             `json:"rmse,omitempty"`
	MAE           *float64             `json:"mae,omitempty"`
	NSamples      int                  `json:"n_samples,omitempty"`
	RunID         string               `json:"run_id,omitempty"`
	CreatedAt     time.Time            `json:"created_at"`
	Error         string               `json:"error,omitempty"`
}

// Key identifies a record in a ResultsReport.
type Key struct {
	Target        string
	Algorithm     string
	Preprocessing string
}

// Key returns the (target, algorithm, preprocessing) key of r.
func (r Record) Key() Key {
	return Key{Target: r.Target, Algorithm: r.Algorithm, Preprocessing: r.Preprocessing.Key()}
}

// Method returns the combined method name used in reports, e.g.
// "random_forest_StndScale_PCA10_deriv1". Unscaled raw spectra add no suffix.
func (r Record) Method() string {
	var b strings.Builder
	b.WriteString(r.Algorithm)
	c := r.Preprocessing.Normalize()
	if c.Scale {
		b.WriteString("_StndScale")
	}
	if c.UsePCA {
		b.WriteString("_PCA")
		b.WriteString(strconv.Itoa(c.NComponents))
	}
	if c.DerivativeOrder > 0 {
		b.WriteString("_deriv")
		b.WriteString(strconv.Itoa(c.DerivativeOrder))
	}
	return b.String()
}

// HasScore reports whether R2 is set.
func (r Record) HasScore() bool { return r.R2 != nil }

// Score returns R2, or -Inf when unset.
func (r Record) Score() float64 {
	if r.R2 == nil {
		return math.Inf(-1)
	}
	return *r.R2
}

// Validate reports the first missing or malformed field as a MergeError.
func (r Record) Validate(source string, index int) error {
	if strings.TrimSpace(r.Target) == "" {
		return errors.NewMergeError(source, index, "target", "is required")
	}
	if strings.TrimSpace(r.Algorithm) == "" {
		return errors.NewMergeError(source, index, "algorithm", "is required")
	}
	if err := r.Preprocessing.Validate(); err != nil {
		return errors.NewMergeError(source, index, "preprocessing", err.Error())
	}
	if r.R2 != nil && (math.IsNaN(*r.R2) || math.IsInf(*r.R2, 0)) {
		return errors.NewMergeError(source, index, "r2", "must be finite")
	}
	return nil
}

// Float returns a pointer to v, for building records.
func Float(v float64) *float64 { return &v }
