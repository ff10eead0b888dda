// Package commands implements the table-extractor CLI.
package commands

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/spherical/table-extractor/cmd/table-extractor/ui"
	"github.com/spherical/table-extractor/internal/config"
	"github.com/spherical/table-extractor/internal/observability"
)

// ErrReported marks a failure that was already shown to the user.
var ErrReported = errors.New("failure already reported")

var (
	cfgFile string
	verbose bool
	noColor bool

	appVersion = "dev"
	cfg        *config.Config
	logger     *observability.Logger
)

var rootCmd = &cobra.Command{
	Use:   "table-extractor",
	Short: "Extract tables from images with a vision model",
	Long: `table-extractor sends an image of a table to a vision model, parses the
CSV it answers with, lets you pick the columns to keep and writes them to
results.csv.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config.LoadDotEnv()

		loaded, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		cfg = loaded

		level := cfg.Observability.LogLevel
		if verbose {
			level = "debug"
		}
		logger = observability.NewLogger(observability.LogConfig{
			Level:  level,
			Format: cfg.Observability.LogFormat,
		})

		ui.InitUI(noColor, verbose)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (default $"+config.EnvConfigPath+")")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
}

// Execute runs the root command.
func Execute(version string) error {
	appVersion = version
	rootCmd.Version = version
	return rootCmd.Execute()
}
