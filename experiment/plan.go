// Package experiment expands a plan of targets, algorithms and preprocessing
// configurations into independent training jobs and runs them.
package experiment

import (
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/YuminosukeSato/soilspec/dataset"
	"github.com/YuminosukeSato/soilspec/pkg/errors"
	"github.com/YuminosukeSato/soilspec/preprocessing"
	"github.com/YuminosukeSato/soilspec/training"
)

// Plan describes one experiment. Empty Targets means every property of the
// dataset, empty Algorithms the registry catalog and empty Preprocessing a
// single standard-scaled configuration.
type Plan struct {
	Targets       []string                        `yaml:"targets" mapstructure:"targets"`
	Algorithms    []string                        `yaml:"algorithms" mapstructure:"algorithms"`
	Preprocessing []preprocessing.Config          `yaml:"preprocessing" mapstructure:"preprocessing"`
	Hyperparams   map[string]training.Hyperparams `yaml:"hyperparams,omitempty" mapstructure:"hyperparams"`
	// CV additionally cross-validates every job with CVFolds folds.
	CV      bool `yaml:"cv" mapstructure:"cv"`
	CVFolds int  `yaml:"cv_folds,omitempty" mapstructure:"cv_folds"`
	// Benchmark additionally runs the quick benchmark per target and configuration.
	Benchmark bool `yaml:"benchmark" mapstructure:"benchmark"`
}

// Job is one (target, algorithm, preprocessing) combination.
type Job struct {
	Index         int
	Target        string
	Algorithm     string
	Preprocessing preprocessing.Config
}

// LoadPlan reads a YAML plan file.
func LoadPlan(path string) (*Plan, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read plan %s", path)
	}
	var p Plan
	if err := yaml.Unmarshal(b, &p); err != nil {
		return nil, errors.Wrapf(err, "parse plan %s", path)
	}
	return &p, nil
}

// SavePlan writes p as YAML.
func SavePlan(path string, p *Plan) error {
	b, err := yaml.Marshal(p)
	if err != nil {
		return errors.Wrap(err, "marshal plan")
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return errors.Wrapf(err, "write plan %s", path)
	}
	return nil
}

// Resolve returns a copy of p with the defaults filled in from reg and ds.
func (p Plan) Resolve(reg *training.Registry, ds *dataset.Dataset) Plan {
	out := p
	if len(out.Targets) == 0 && ds != nil {
		out.Targets = ds.PropertyNames()
	}
	if len(out.Algorithms) == 0 && reg != nil {
		out.Algorithms = reg.Catalog()
	}
	if len(out.Preprocessing) == 0 {
		out.Preprocessing = []preprocessing.Config{{Scale: true}}
	}
	if out.CV && out.CVFolds == 0 {
		out.CVFolds = 5
	}
	return out
}

// Validate fails on the first unknown algorithm, invalid configuration or
// unknown target, before any model is trained. Targets are only checked when
// ds is non-nil.
func (p Plan) Validate(reg *training.Registry, ds *dataset.Dataset) error {
	if reg == nil {
		return errors.NewValidationError("registry", "is required", nil)
	}
	r := p.Resolve(reg, ds)
	if err := reg.Validate(r.Algorithms); err != nil {
		return err
	}
	hpAlgs := make([]string, 0, len(r.Hyperparams))
	for id := range r.Hyperparams {
		hpAlgs = append(hpAlgs, id)
	}
	sort.Strings(hpAlgs)
	if err := reg.Validate(hpAlgs); err != nil {
		return errors.Wrap(err, "hyperparams")
	}
	for i, cfg := range r.Preprocessing {
		if err := cfg.Validate(); err != nil {
			return errors.Wrapf(err, "preprocessing[%d]", i)
		}
	}
	if ds != nil {
		if len(r.Targets) == 0 {
			return errors.NewValidationError("targets", "no target properties to train", nil)
		}
		for _, t := range r.Targets {
			if !ds.HasProperty(t) {
				return errors.NewValidationError("targets", "unknown target property", t)
			}
		}
	}
	if r.CV && r.CVFolds < 2 {
		return errors.NewValidationError("cv_folds", "must be at least 2", r.CVFolds)
	}
	return nil
}

// Jobs expands a resolved plan in target, preprocessing, algorithm order.
// Configurations are normalized and duplicates removed.
func (p Plan) Jobs() []Job {
	var cfgs []preprocessing.Config
	seen := make(map[string]bool)
	for _, c := range p.Preprocessing {
		c = c.Normalize()
		if seen[c.Key()] {
			continue
		}
		seen[c.Key()] = true
		cfgs = append(cfgs, c)
	}
	var jobs []Job
	for _, t := range p.Targets {
		for _, c := range cfgs {
			for _, a := range p.Algorithms {
				jobs = append(jobs, Job{Index: len(jobs), Target: t, Algorithm: a, Preprocessing: c})
			}
		}
	}
	return jobs
}

// hyperparams returns the plan's settings for alg, or nil.
func (p Plan) hyperparams(alg string) training.Hyperparams {
	if p.Hyperparams == nil {
		return nil
	}
	return p.Hyperparams[alg].Clone()
}
