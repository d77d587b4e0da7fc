package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	"github.com/YuminosukeSato/soilspec/pkg/errors"
	"github.com/YuminosukeSato/soilspec/pkg/log"
)

// ResultsReport holds at most one record per (target, algorithm,
// preprocessing) key. The zero value is not usable; use New or Merge.
type ResultsReport struct {
	policy  Policy
	records map[Key]Record
	logger  log.Logger
}

// Option configures a ResultsReport.
type Option func(*ResultsReport)

// WithLogger sets the logger used to report replaced duplicates.
func WithLogger(l log.Logger) Option {
	return func(r *ResultsReport) {
		if l != nil {
			r.logger = l
		}
	}
}

// New creates an empty report that resolves duplicates with policy.
func New(policy Policy, opts ...Option) *ResultsReport {
	r := &ResultsReport{policy: policy, records: make(map[Key]Record), logger: log.Nop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Merge validates every run and combines them into a new report.
func Merge(policy Policy, runs []*Run, opts ...Option) (*ResultsReport, error) {
	r := New(policy, opts...)
	for _, run := range runs {
		if err := r.AddRun(run); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Policy returns the duplicate resolution policy.
func (r *ResultsReport) Policy() Policy { return r.policy }

// Len returns the number of distinct keys.
func (r *ResultsReport) Len() int { return len(r.records) }

// AddRun validates run and adds all its records. Nothing is added when any
// record is invalid.
func (r *ResultsReport) AddRun(run *Run) error {
	if run == nil {
		return nil
	}
	if err := run.Validate(); err != nil {
		return err
	}
	for _, rec := range run.Records {
		r.add(rec)
	}
	return nil
}

// Add adds a single record after validating it.
func (r *ResultsReport) Add(rec Record) error {
	if err := rec.Validate("record", 0); err != nil {
		return err
	}
	r.add(rec)
	return nil
}

func (r *ResultsReport) add(rec Record) {
	rec.Preprocessing = rec.Preprocessing.Normalize()
	k := rec.Key()
	cur, ok := r.records[k]
	if !ok {
		r.records[k] = rec
		return
	}
	if r.policy.prefers(rec, cur) {
		r.logger.Debug("replacing duplicate result",
			log.TargetKey, rec.Target,
			log.AlgorithmKey, rec.Algorithm,
			log.PreprocessingKey, k.Preprocessing,
			"policy", r.policy.String(),
		)
		r.records[k] = rec
	}
}

// Records returns all records sorted by target, algorithm and preprocessing.
func (r *ResultsReport) Records() []Record {
	out := make([]Record, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Key(), out[j].Key()
		if a.Target != b.Target {
			return a.Target < b.Target
		}
		if a.Algorithm != b.Algorithm {
			return a.Algorithm < b.Algorithm
		}
		return a.Preprocessing < b.Preprocessing
	})
	return out
}

// Targets returns the sorted target names present in the report.
func (r *ResultsReport) Targets() []string {
	seen := make(map[string]struct{})
	for k := range r.records {
		seen[k.Target] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Ranked returns the records of target ordered by R² descending, unscored
// records last, ties by method name.
func (r *ResultsReport) Ranked(target string) []Record {
	var out []Record
	for k, rec := range r.records {
		if k.Target == target {
			out = append(out, rec)
		}
	}
	sortByScore(out)
	return out
}

func sortByScore(recs []Record) {
	sort.SliceStable(recs, func(i, j int) bool {
		if c := compareScore(recs[i], recs[j]); c != 0 {
			return c > 0
		}
		return recs[i].Method() < recs[j].Method()
	})
}

// Top returns at most n scored records of target, best first.
func (r *ResultsReport) Top(target string, n int) []Record {
	ranked := r.Ranked(target)
	out := make([]Record, 0, n)
	for _, rec := range ranked {
		if len(out) == n || !rec.HasScore() {
			break
		}
		out = append(out, rec)
	}
	return out
}

// Best returns the highest scoring record of target.
func (r *ResultsReport) Best(target string) (Record, bool) {
	top := r.Top(target, 1)
	if len(top) == 0 {
		return Record{}, false
	}
	return top[0], true
}

// combinedEntry is one method in the combined JSON output.
type combinedEntry struct {
	Method        string   `json:"method"`
	Algorithm     string   `json:"algorithm"`
	Preprocessing string   `json:"preprocessing"`
	R2            *float64 `json:"r2"`
	RMSE          *float64 `json:"rmse,omitempty"`
	MAE           *float64 `json:"mae,omitempty"`
	NSamples      int      `json:"n_samples,omitempty"`
	RunID         string   `json:"run_id,omitempty"`
}

// MarshalJSON writes {target: [entries ranked by R²]}.
func (r *ResultsReport) MarshalJSON() ([]byte, error) {
	out := make(map[string][]combinedEntry, len(r.records))
	for _, t := range r.Targets() {
		ranked := r.Ranked(t)
		entries := make([]combinedEntry, len(ranked))
		for i, rec := range ranked {
			entries[i] = combinedEntry{
				Method:        rec.Method(),
				Algorithm:     rec.Algorithm,
				Preprocessing: rec.Preprocessing.Label(),
				R2:            rec.R2,
				RMSE:          rec.RMSE,
				MAE:           rec.MAE,
				NSamples:      rec.NSamples,
				RunID:         rec.RunID,
			}
		}
		out[t] = entries
	}
	return json.Marshal(out)
}

// WriteJSON writes the combined JSON document to path.
func (r *ResultsReport) WriteJSON(path string) error {
	data, err := json.MarshalIndent(r, "", "    ")
	if err != nil {
		return errors.Wrap(err, "marshal combined results")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "create directory for %s", path)
	}
	return errors.Wrapf(os.WriteFile(path, data, 0o644), "write %s", path)
}
