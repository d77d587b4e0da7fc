package experiment

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"time"

	"github.com/YuminosukeSato/soilspec/core/parallel"
	"github.com/YuminosukeSato/soilspec/dataset"
	"github.com/YuminosukeSato/soilspec/evaluation"
	"github.com/YuminosukeSato/soilspec/pkg/errors"
	"github.com/YuminosukeSato/soilspec/pkg/log"
	"github.com/YuminosukeSato/soilspec/report"
	"github.com/YuminosukeSato/soilspec/training"
)

// RunSaver persists a finished run. *resultstore.Store implements it.
type RunSaver interface {
	SaveRun(ctx context.Context, run *report.Run) error
}

// Runner executes plans. Jobs share only the immutable dataset and the
// trainer; every job writes its own slot of the result.
type Runner struct {
	Trainer *training.Trainer
	// Workers is the number of jobs run concurrently; <= 1 is sequential.
	Workers int
	// ArtifactsDir receives one gob artifact per successful job when set.
	ArtifactsDir string
	// Store receives the finished run when set.
	Store  RunSaver
	Source string
	Logger log.Logger
	now    func() time.Time
}

// Failure is a job that produced no model.
type Failure struct {
	Job Job
	Err error
}

// Result collects everything one Run produced.
type Result struct {
	Run        *report.Run
	Models     []*training.TrainedModelRecord // successful jobs, job order
	Failures   []Failure
	CV         []*evaluation.CVResult
	Benchmarks []*evaluation.BenchmarkResult
}

type jobOutcome struct {
	rec      *training.TrainedModelRecord
	err      error
	artifact error
	cv       *evaluation.CVResult
	done     bool
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// ArtifactName returns the file name used for a job's artifact.
func ArtifactName(j Job) string {
	name := fmt.Sprintf("%s_%s_%s.gob", j.Target, j.Algorithm, j.Preprocessing.Label())
	return unsafeName.ReplaceAllString(name, "-")
}

func (r *Runner) logger() log.Logger {
	if r.Logger == nil {
		return log.Nop()
	}
	return r.Logger
}

// Run validates plan against ds, trains every job and returns the run.
// A failing job is recorded with a nil R² and does not stop the others.
// Cancelling ctx skips jobs that have not started; the partial result is
// returned together with the context error.
func (r *Runner) Run(ctx context.Context, ds *dataset.Dataset, plan *Plan) (*Result, error) {
	if r.Trainer == nil {
		return nil, errors.NewValidationError("trainer", "is required", nil)
	}
	if plan == nil {
		return nil, errors.NewValidationError("plan", "is required", nil)
	}
	reg := r.Trainer.Registry()
	if err := plan.Validate(reg, ds); err != nil {
		return nil, err
	}
	p := plan.Resolve(reg, ds)
	jobs := p.Jobs()

	now := time.Now
	if r.now != nil {
		now = r.now
	}
	run := report.NewRun(now())
	run.Source = r.Source
	logger := r.logger().With(log.RunIDKey, run.ID)
	logger.Info("experiment started",
		"run.jobs", len(jobs),
		log.SamplesKey, ds.Len(),
		log.FeaturesKey, ds.NBands(),
	)

	outcomes := make([]jobOutcome, len(jobs))
	_, ctxErr := parallel.ForEach(ctx, len(jobs), r.Workers, func(ctx context.Context, i int) error {
		outcomes[i] = r.runJob(ctx, ds, p, jobs[i], logger)
		return outcomes[i].err
	})

	res := &Result{Run: run}
	for i, j := range jobs {
		o := outcomes[i]
		if !o.done {
			continue
		}
		if o.err != nil {
			res.Failures = append(res.Failures, Failure{Job: j, Err: o.err})
			run.Add(report.Record{
				Target:        j.Target,
				Algorithm:     j.Algorithm,
				Preprocessing: j.Preprocessing,
				Error:         o.err.Error(),
			})
			continue
		}
		if o.artifact != nil {
			res.Failures = append(res.Failures, Failure{Job: j, Err: o.artifact})
		}
		res.Models = append(res.Models, o.rec)
		run.Add(o.rec.Summary())
		if o.cv != nil {
			res.CV = append(res.CV, o.cv)
		}
	}

	if ctxErr == nil && p.Benchmark {
		if err := r.benchmark(ctx, ds, p, res); err != nil {
			ctxErr = err
		}
	}

	logger.Info("experiment finished",
		"run.records", len(run.Records),
		"run.failures", len(res.Failures),
	)
	if ctxErr != nil {
		return res, errors.Wrap(ctxErr, "experiment interrupted")
	}
	if r.Store != nil {
		if err := r.Store.SaveRun(ctx, run); err != nil {
			return res, errors.Wrap(err, "save run")
		}
	}
	return res, nil
}

func (r *Runner) runJob(ctx context.Context, ds *dataset.Dataset, p Plan, j Job, logger log.Logger) jobOutcome {
	out := jobOutcome{done: true}
	hp := p.hyperparams(j.Algorithm)
	start := time.Now()
	out.err = errors.SafeTrain(j.Target, j.Algorithm, func() error {
		var err error
		out.rec, err = r.Trainer.Train(ds, j.Target, j.Algorithm, j.Preprocessing, hp)
		return err
	})
	jl := logger.With(
		log.JobKey, j.Index,
		log.TargetKey, j.Target,
		log.AlgorithmKey, j.Algorithm,
		log.PreprocessingKey, j.Preprocessing.Label(),
	)
	if out.err != nil {
		jl.Error("job failed", out.err)
		return out
	}
	jl.Debug("job finished", log.DurationMsKey, time.Since(start).Milliseconds())

	if r.ArtifactsDir != "" {
		path := filepath.Join(r.ArtifactsDir, ArtifactName(j))
		if err := training.SaveArtifact(path, out.rec); err != nil {
			out.artifact = errors.Wrapf(err, "save artifact %s", path)
			jl.Error("artifact not saved", err, log.FilePathKey, path)
		}
	}

	if p.CV {
		err := errors.SafeTrain(j.Target, j.Algorithm, func() error {
			var err error
			out.cv, err = evaluation.CrossValidate(ctx, r.Trainer, ds, j.Target, j.Algorithm, j.Preprocessing, hp,
				evaluation.CVOptions{Folds: p.CVFolds, Shuffle: true})
			return err
		})
		if err != nil {
			jl.Warn("cross-validation failed", log.ErrAttrKey, err)
		} else {
			jl.Info("cross-validation finished", "cv.mean_r2", out.cv.MeanR2, "cv.std_r2", out.cv.StdR2)
		}
	}
	return out
}

func (r *Runner) benchmark(ctx context.Context, ds *dataset.Dataset, p Plan, res *Result) error {
	for _, t := range p.Targets {
		for _, c := range p.Preprocessing {
			b, err := evaluation.Benchmark(ctx, r.Trainer, ds, t, c, evaluation.BenchmarkOptions{Workers: r.Workers})
			if err != nil {
				return err
			}
			res.Benchmarks = append(res.Benchmarks, b)
		}
	}
	return nil
}
