// Package evaluation scores predictions, cross-validates a single
// configuration and benchmarks the algorithm catalog on one target.
package evaluation

import (
	"sort"

	"github.com/YuminosukeSato/soilspec/metrics"
	"github.com/YuminosukeSato/soilspec/pkg/errors"
	"github.com/YuminosukeSato/soilspec/report"
)

// Metrics are the regression scores of one prediction set.
type Metrics struct {
	R2   float64 `json:"r2"`
	MSE  float64 `json:"mse"`
	RMSE float64 `json:"rmse"`
	MAE  float64 `json:"mae"`
	N    int     `json:"n"`
}

// Evaluate computes R² = 1 - SS_res/SS_tot, MSE, RMSE and MAE. Neither slice
// is modified. A constant yTrue makes R² undefined and returns an error.
func Evaluate(yTrue, yPred []float64) (Metrics, error) {
	if len(yTrue) == 0 {
		return Metrics{}, errors.NewModelError("Evaluate", "empty data", errors.ErrEmptyData)
	}
	if len(yPred) != len(yTrue) {
		return Metrics{}, errors.NewDimensionError("Evaluate", len(yTrue), len(yPred), 0)
	}
	yt, yp := metrics.Vec(yTrue), metrics.Vec(yPred)

	var m Metrics
	var err error
	if m.R2, err = metrics.R2Score(yt, yp); err != nil {
		return Metrics{}, err
	}
	if m.MSE, err = metrics.MSE(yt, yp); err != nil {
		return Metrics{}, err
	}
	if m.RMSE, err = metrics.RMSE(yt, yp); err != nil {
		return Metrics{}, err
	}
	if m.MAE, err = metrics.MAE(yt, yp); err != nil {
		return Metrics{}, err
	}
	m.N = len(yTrue)
	return m, nil
}

// Ranking is the records of one target, best first.
type Ranking struct {
	Target  string
	Records []report.Record
}

// Compare groups records by target and ranks each group by R² (unscored
// last). Duplicate keys keep the best record. Targets are sorted by name.
func Compare(records []report.Record) ([]Ranking, error) {
	r := report.New(report.KeepBest)
	for _, rec := range records {
		if err := r.Add(rec); err != nil {
			return nil, err
		}
	}
	targets := r.Targets()
	sort.Strings(targets)
	out := make([]Ranking, len(targets))
	for i, t := range targets {
		out[i] = Ranking{Target: t, Records: r.Ranked(t)}
	}
	return out, nil
}
