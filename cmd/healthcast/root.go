package main

import (
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "healthcast",
		Short: "District outbreak forecasting pipeline",
		Long: `healthcast turns daily district disease reports into a 7-day outbreak forecast.

Stages: clean the raw dataset, build per-district lag and rolling features,
train the gradient-boosted outbreak classifier, score a feature table and
summarise the cleaned data. "serve" exposes the artifacts over HTTP.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to YAML configuration file (overrides CONFIG_FILE)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(
		newCleanCmd(opts),
		newFeaturesCmd(opts),
		newTrainCmd(opts),
		newPredictCmd(opts),
		newSummaryCmd(opts),
		newPipelineCmd(opts),
		newServeCmd(opts),
		newModelsCmd(opts),
		newGenerateCmd(opts),
	)
	return rootCmd
}

// withApp loads the app for one command invocation.
func withApp(opts *rootOptions, fn func(a *app) error) error {
	a, err := newApp(*opts)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}
