package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/YuminosukeSato/soilspec/pkg/errors"
	"github.com/YuminosukeSato/soilspec/preprocessing"
)

// Run is the output of one experiment run: the records it produced plus
// where it came from.
type Run struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Source    string    `json:"source,omitempty"`
	Records   []Record  `json:"records"`
}

// NewRun creates an empty run with a fresh ID.
func NewRun(createdAt time.Time) *Run {
	return &Run{ID: uuid.NewString(), CreatedAt: createdAt.UTC()}
}

// Add appends rec, stamping the run ID and creation time when unset.
func (r *Run) Add(rec Record) {
	if rec.RunID == "" {
		rec.RunID = r.ID
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = r.CreatedAt
	}
	r.Records = append(r.Records, rec)
}

// Validate checks every record, naming the run source and record index.
func (r *Run) Validate() error {
	src := r.Source
	if src == "" {
		src = r.ID
	}
	return r.validate(src)
}

func (r *Run) validate(src string) error {
	for i, rec := range r.Records {
		if err := rec.Validate(src, i); err != nil {
			return err
		}
	}
	return nil
}

// WriteRunFile writes run as indented JSON.
func WriteRunFile(path string, run *Run) error {
	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal run")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "create directory for %s", path)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "write run file %s", path)
	}
	return nil
}

// ReadRunFile reads a run written by WriteRunFile. A run without a recorded
// source gets path as its Source; merge errors always name path. Records
// without a run ID or timestamp inherit them from the run.
func ReadRunFile(path string) (*Run, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewMergeError(path, -1, "", "cannot read file: "+err.Error())
	}
	var run Run
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, errors.NewMergeError(path, -1, "", "invalid JSON: "+err.Error())
	}
	if run.ID == "" {
		run.ID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if run.Source == "" {
		run.Source = path
	}
	for i := range run.Records {
		if run.Records[i].RunID == "" {
			run.Records[i].RunID = run.ID
		}
		if run.Records[i].CreatedAt.IsZero() {
			run.Records[i].CreatedAt = run.CreatedAt
		}
	}
	return &run, run.validate(path)
}

// ReadLegacyFile reads the older {property: {method: r2|null}} result format.
// Preprocessing suffixes embedded in a method name (StndScale, noScale, PCA<n>,
// deriv<k>) override base; everything before them is the algorithm. The file
// modification time becomes the records' CreatedAt.
func ReadLegacyFile(path string, base preprocessing.Config) (*Run, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewMergeError(path, -1, "", "cannot read file: "+err.Error())
	}
	var raw map[string]map[string]*float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.NewMergeError(path, -1, "", "invalid JSON: "+err.Error())
	}
	created := time.Time{}
	if info, err := os.Stat(path); err == nil {
		created = info.ModTime().UTC()
	}

	run := &Run{
		ID:        strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		CreatedAt: created,
		Source:    path,
	}

	props := make([]string, 0, len(raw))
	for p := range raw {
		props = append(props, p)
	}
	sort.Strings(props)
	for _, prop := range props {
		methods := make([]string, 0, len(raw[prop]))
		for m := range raw[prop] {
			methods = append(methods, m)
		}
		sort.Strings(methods)
		for _, m := range methods {
			alg, cfg := splitLegacyMethod(m, base)
			run.Add(Record{
				Target:        prop,
				Algorithm:     alg,
				Preprocessing: cfg,
				R2:            raw[prop][m],
			})
		}
	}
	return run, run.Validate()
}

func splitLegacyMethod(method string, cfg preprocessing.Config) (string, preprocessing.Config) {
	parts := strings.Split(method, "_")
	end := len(parts)
	for end > 1 {
		p := parts[end-1]
		switch {
		case p == "StndScale":
			cfg.Scale = true
		case p == "noScale":
			cfg.Scale = false
		case strings.HasPrefix(p, "PCA"):
			n, err := strconv.Atoi(strings.TrimPrefix(p, "PCA"))
			if err != nil {
				return strings.Join(parts[:end], "_"), cfg.Normalize()
			}
			cfg.UsePCA, cfg.NComponents = true, n
		case strings.HasPrefix(p, "deriv"):
			k := 1
			if s := strings.TrimPrefix(p, "deriv"); s != "" {
				n, err := strconv.Atoi(s)
				if err != nil {
					return strings.Join(parts[:end], "_"), cfg.Normalize()
				}
				k = n
			}
			cfg.DerivativeOrder = k
		default:
			return strings.Join(parts[:end], "_"), cfg.Normalize()
		}
		end--
	}
	return strings.Join(parts[:end], "_"), cfg.Normalize()
}
