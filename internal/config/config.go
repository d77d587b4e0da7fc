// Package config loads the soilspec configuration from file, environment and
// defaults.
package config

import (
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/YuminosukeSato/soilspec/dataset"
	"github.com/YuminosukeSato/soilspec/experiment"
	"github.com/YuminosukeSato/soilspec/pkg/errors"
	"github.com/YuminosukeSato/soilspec/pkg/log"
	"github.com/YuminosukeSato/soilspec/report"
	"github.com/YuminosukeSato/soilspec/training"
)

// EnvPrefix is the prefix of environment overrides, e.g. SOILSPEC_SEED.
const EnvPrefix = "SOILSPEC"

// Global configuration structure.
type Global struct {
	// Input tables
	DataDir          string `mapstructure:"data_dir" yaml:"data_dir"`
	SpectraFile      string `mapstructure:"spectra_file" yaml:"spectra_file"`
	ChemicalFile     string `mapstructure:"chemical_file" yaml:"chemical_file"`
	PhysicalFile     string `mapstructure:"physical_file" yaml:"physical_file"`
	LinkFile         string `mapstructure:"link_file" yaml:"link_file"`
	SpectraIDColumn  string `mapstructure:"spectra_id_column" yaml:"spectra_id_column"`
	LinkCodeColumn   string `mapstructure:"link_code_column" yaml:"link_code_column"`
	PropertyIDColumn string `mapstructure:"property_id_column" yaml:"property_id_column"`
	ExpectedBands    int    `mapstructure:"expected_bands" yaml:"expected_bands"`
	JoinPolicy       string `mapstructure:"join_policy" yaml:"join_policy"`

	// Outputs
	ResultsDir   string `mapstructure:"results_dir" yaml:"results_dir"`
	ArtifactsDir string `mapstructure:"artifacts_dir" yaml:"artifacts_dir"`
	StorePath    string `mapstructure:"store_path" yaml:"store_path"`

	// Training
	Seed               uint64  `mapstructure:"seed" yaml:"seed"`
	TestFraction       float64 `mapstructure:"test_fraction" yaml:"test_fraction"`
	ValidationFraction float64 `mapstructure:"validation_fraction" yaml:"validation_fraction"`
	MinSamples         int     `mapstructure:"min_samples" yaml:"min_samples"`
	CVFolds            int     `mapstructure:"cv_folds" yaml:"cv_folds"`
	Workers            int     `mapstructure:"workers" yaml:"workers"`

	// Reporting
	MergePolicy    string   `mapstructure:"merge_policy" yaml:"merge_policy"`
	TopN           int      `mapstructure:"top_n" yaml:"top_n"`
	SummaryTargets []string `mapstructure:"summary_targets" yaml:"summary_targets"`

	LogLevel string `mapstructure:"log_level" yaml:"log_level"`

	Plan experiment.Plan `mapstructure:"plan" yaml:"plan"`
}

// Default returns the built-in configuration.
func Default() *Global {
	files := dataset.DefaultFiles()
	lo := dataset.DefaultLoaderOptions()
	to := training.DefaultOptions()
	return &Global{
		DataDir:            "data",
		SpectraFile:        files.Spectra,
		ChemicalFile:       files.Chemical,
		PhysicalFile:       files.Physical,
		LinkFile:           files.Link,
		SpectraIDColumn:    lo.SpectraIDColumn,
		LinkCodeColumn:     lo.LinkCodeColumn,
		PropertyIDColumn:   lo.PropertyIDColumn,
		JoinPolicy:         dataset.JoinStrict.String(),
		ResultsDir:         "results",
		ArtifactsDir:       "",
		StorePath:          "",
		Seed:               to.Seed,
		TestFraction:       to.TestFraction,
		ValidationFraction: to.ValidationFraction,
		MinSamples:         to.MinSamples,
		CVFolds:            5,
		Workers:            1,
		MergePolicy:        report.KeepBest.String(),
		TopN:               10,
		SummaryTargets:     append([]string(nil), report.DefaultSummaryTargets...),
		LogLevel:           "info",
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("data_dir", d.DataDir)
	v.SetDefault("spectra_file", d.SpectraFile)
	v.SetDefault("chemical_file", d.ChemicalFile)
	v.SetDefault("physical_file", d.PhysicalFile)
	v.SetDefault("link_file", d.LinkFile)
	v.SetDefault("spectra_id_column", d.SpectraIDColumn)
	v.SetDefault("link_code_column", d.LinkCodeColumn)
	v.SetDefault("property_id_column", d.PropertyIDColumn)
	v.SetDefault("expected_bands", d.ExpectedBands)
	v.SetDefault("join_policy", d.JoinPolicy)
	v.SetDefault("results_dir", d.ResultsDir)
	v.SetDefault("artifacts_dir", d.ArtifactsDir)
	v.SetDefault("store_path", d.StorePath)
	v.SetDefault("seed", d.Seed)
	v.SetDefault("test_fraction", d.TestFraction)
	v.SetDefault("validation_fraction", d.ValidationFraction)
	v.SetDefault("min_samples", d.MinSamples)
	v.SetDefault("cv_folds", d.CVFolds)
	v.SetDefault("workers", d.Workers)
	v.SetDefault("merge_policy", d.MergePolicy)
	v.SetDefault("top_n", d.TopN)
	v.SetDefault("summary_targets", d.SummaryTargets)
	v.SetDefault("log_level", d.LogLevel)
}

// Load loads configuration from file, env, and defaults.
// Precedence: env > config file > defaults; flags are applied by the caller.
// An empty cfgFile looks for soilspec.yaml in the working directory and
// tolerates its absence; an explicit cfgFile must exist.
func Load(cfgFile string) (*Global, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config %s", cfgFile)
		}
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("soilspec")
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var nf viper.ConfigFileNotFoundError
			if !errors.As(err, &nf) {
				return nil, errors.Wrap(err, "read config")
			}
		}
	}

	var c Global
	if err := v.Unmarshal(&c); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Save writes the given configuration to path as YAML, creating the parent
// directory if necessary.
func Save(c *Global, path string) error {
	if path == "" {
		path = "soilspec.yaml"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, "mkdir config dir %s", dir)
		}
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "marshal yaml")
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return errors.Wrapf(err, "write config %s", path)
	}
	return nil
}

// Validate checks the enumerated fields and the training options.
func (c *Global) Validate() error {
	if _, err := dataset.ParseJoinPolicy(c.JoinPolicy); err != nil {
		return err
	}
	if _, err := report.ParsePolicy(c.MergePolicy); err != nil {
		return err
	}
	if _, err := log.ParseLogLevel(c.LogLevel); err != nil {
		return errors.NewValidationError("log_level", "must be debug, info, warn or error", c.LogLevel)
	}
	if c.CVFolds < 2 {
		return errors.NewValidationError("cv_folds", "must be at least 2", c.CVFolds)
	}
	if c.TopN < 1 {
		return errors.NewValidationError("top_n", "must be at least 1", c.TopN)
	}
	return c.TrainingOptions(nil).Validate()
}

// Files returns the input table names.
func (c *Global) Files() dataset.Files {
	return dataset.Files{
		Spectra:  c.SpectraFile,
		Chemical: c.ChemicalFile,
		Physical: c.PhysicalFile,
		Link:     c.LinkFile,
	}
}

// LoaderOptions returns the loader settings. The join policy must already
// have been validated.
func (c *Global) LoaderOptions(logger log.Logger) dataset.LoaderOptions {
	jp, _ := dataset.ParseJoinPolicy(c.JoinPolicy)
	return dataset.LoaderOptions{
		SpectraIDColumn:   c.SpectraIDColumn,
		LinkSpectraColumn: c.SpectraIDColumn,
		LinkCodeColumn:    c.LinkCodeColumn,
		PropertyIDColumn:  c.PropertyIDColumn,
		ExpectedBands:     c.ExpectedBands,
		JoinPolicy:        jp,
		Logger:            logger,
	}
}

// TrainingOptions returns the trainer options.
func (c *Global) TrainingOptions(logger log.Logger) training.Options {
	o := training.DefaultOptions()
	o.Seed = c.Seed
	o.TestFraction = c.TestFraction
	o.ValidationFraction = c.ValidationFraction
	o.MinSamples = c.MinSamples
	o.Logger = logger
	return o
}

// MergePolicyValue returns the parsed merge policy.
func (c *Global) MergePolicyValue() report.Policy {
	p, _ := report.ParsePolicy(c.MergePolicy)
	return p
}

// LatexOptions returns the LaTeX rendering settings.
func (c *Global) LatexOptions() report.LatexOptions {
	return report.LatexOptions{TopN: c.TopN, SummaryTargets: c.SummaryTargets}
}
