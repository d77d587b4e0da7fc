package cli

import (
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/YuminosukeSato/soilspec/internal/config"
	"github.com/YuminosukeSato/soilspec/pkg/errors"
	"github.com/YuminosukeSato/soilspec/preprocessing"
	"github.com/YuminosukeSato/soilspec/training"
)

var configForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or create the soilspec configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	Long: `Write the built-in configuration, including an example experiment plan, to
--config (default ./soilspec.yaml). An existing file is kept unless --force is set.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfgFile
		if path == "" {
			path = "soilspec.yaml"
		}
		if err := initConfig(path, configForce); err != nil {
			return err
		}
		cmd.Printf("Configuration written to %s\n", path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireConfig()
		if err != nil {
			return err
		}
		return showConfig(cmd.OutOrStdout(), c)
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "overwrite an existing file")
}

// exampleConfig is the default configuration plus the example plan written by config init.
func exampleConfig() *config.Global {
	c := config.Default()
	c.Plan.Algorithms = []string{training.PLSID, training.RandomForestID, training.GradientBoostingID, training.MLPID}
	c.Plan.Preprocessing = []preprocessing.Config{
		{Scale: true},
		{Scale: true, UsePCA: true, NComponents: 20},
		{Scale: true, DerivativeOrder: 1},
	}
	c.Plan.Hyperparams = map[string]training.Hyperparams{
		training.RandomForestID: {"n_estimators": 100},
		training.MLPID:          {"hidden": []int{64, 32}, "max_iter": 300},
	}
	return c
}

func initConfig(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return errors.Newf("%s already exists (use --force to overwrite)", path)
	}
	return config.Save(exampleConfig(), path)
}

func showConfig(w io.Writer, c *config.Global) error {
	b, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "marshal config")
	}
	_, err = w.Write(b)
	return err
}
