package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"healthcast/internal/ml"
	"healthcast/internal/sample"
	"healthcast/internal/server"
)

// orFlag returns the flag value when set, else the configured default.
func orFlag(flag, configured string) string {
	if flag != "" {
		return flag
	}
	return configured
}

func newCleanCmd(opts *rootOptions) *cobra.Command {
	var source, output string
	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Clean the raw dataset (file path or http(s) URL)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app) error {
				return a.runClean(cmd.Context(), orFlag(source, a.settings.RawDataPath), orFlag(output, a.settings.CleanedPath))
			})
		},
	}
	cmd.Flags().StringVar(&source, "source", "", "Raw dataset path or URL")
	cmd.Flags().StringVar(&output, "output", "", "Cleaned dataset path")
	return cmd
}

func newFeaturesCmd(opts *rootOptions) *cobra.Command {
	var input, output string
	cmd := &cobra.Command{
		Use:   "features",
		Short: "Build per-district daily lag and rolling features",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app) error {
				return a.runFeatures(orFlag(input, a.settings.CleanedPath), orFlag(output, a.settings.FeaturesPath))
			})
		},
	}
	cmd.Flags().StringVar(&input, "input", "", "Cleaned dataset path")
	cmd.Flags().StringVar(&output, "output", "", "Feature table path")
	return cmd
}

func newTrainCmd(opts *rootOptions) *cobra.Command {
	var input, model string
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train the outbreak classifier on the feature table",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app) error {
				if model != "" {
					a.settings.ModelPath = model
				}
				return a.runTrain(orFlag(input, a.settings.FeaturesPath), a.settings.ModelPath)
			})
		},
	}
	cmd.Flags().StringVar(&input, "input", "", "Feature table path")
	cmd.Flags().StringVar(&model, "model", "", "Model artifact path")
	return cmd
}

func newPredictCmd(opts *rootOptions) *cobra.Command {
	var input, output string
	var drift float64
	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Score a feature table with the trained model",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app) error {
				return a.runPredict(orFlag(input, a.settings.PredictInput()), orFlag(output, a.settings.PredictionsPath), drift)
			})
		},
	}
	cmd.Flags().StringVar(&input, "input", "", "Table to score (defaults to the feature table)")
	cmd.Flags().StringVar(&output, "output", "", "Predictions path")
	cmd.Flags().Float64Var(&drift, "drift-threshold", 0, "Input drift alert threshold (0 uses the default)")
	return cmd
}

func newSummaryCmd(opts *rootOptions) *cobra.Command {
	var input, output string
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Summarise the cleaned dataset for the dashboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app) error {
				return a.runSummary(orFlag(input, a.settings.CleanedPath), orFlag(output, a.settings.SummaryPath))
			})
		},
	}
	cmd.Flags().StringVar(&input, "input", "", "Cleaned dataset path")
	cmd.Flags().StringVar(&output, "output", "", "Summary JSON path")
	return cmd
}

func newPipelineCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "pipeline",
		Short: "Run clean, features, train, predict and summary in order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app) error {
				return a.runPipeline(cmd.Context())
			})
		},
	}
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve pipeline artifacts over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app) error {
				s := a.settings
				if port == 0 {
					port = s.ServerPort
				}
				srv, err := server.New(server.Config{
					Port:            port,
					FeaturesPath:    s.FeaturesPath,
					PredictionsPath: s.PredictionsPath,
					SummaryPath:     s.SummaryPath,
					ModelPath:       s.ModelPath,
				}, a.store, a.metrics, a.registry)
				if err != nil {
					return err
				}

				ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
				defer stop()
				return srv.Run(ctx)
			})
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "Listen port (defaults to the configured port)")
	return cmd
}

func newModelsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "Inspect and restore archived model versions",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List archived model versions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app) error {
				mm, err := ml.NewModelManager(a.settings.ModelPath)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "VERSION\tCREATED\tACCURACY\tF1\tROUNDS\tACTIVE")
				for _, v := range mm.ListVersions() {
					fmt.Fprintf(w, "%s\t%s\t%.4f\t%.4f\t%d\t%t\n",
						v.Version, v.CreatedAt.Format("2006-01-02 15:04:05"), v.Metrics.Accuracy, v.Metrics.F1Score, v.Metrics.Rounds, v.IsActive)
				}
				return w.Flush()
			})
		},
	})

	var best bool
	rollback := &cobra.Command{
		Use:   "rollback [version]",
		Short: "Restore the previous model version, or the named one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app) error {
				mm, err := ml.NewModelManager(a.settings.ModelPath)
				if err != nil {
					return err
				}
				switch {
				case len(args) == 1:
					err = mm.ActivateVersion(args[0])
				case best:
					v := mm.BestVersion()
					if v == nil {
						return errors.New("no archived model versions")
					}
					err = mm.ActivateVersion(v.Version)
				default:
					err = mm.Rollback()
				}
				if err != nil {
					return err
				}
				if cur := mm.GetCurrentVersion(); cur != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "active model version: %s\n", cur.Version)
				}
				return nil
			})
		},
	}
	rollback.Flags().BoolVar(&best, "best", false, "Activate the version with the highest outbreak F1")
	cmd.AddCommand(rollback)
	return cmd
}

func newGenerateCmd(opts *rootOptions) *cobra.Command {
	var output string
	gen := sample.DefaultOptions()
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write a synthetic raw dataset for demos",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app) error {
				path := orFlag(output, a.settings.RawDataPath)
				f, err := sample.Write(path, gen)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "generated %d rows for %d districts into %s\n", f.Len(), len(gen.Districts), path)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&output, "output", "", "Raw dataset path")
	cmd.Flags().IntVar(&gen.Days, "days", gen.Days, "Number of days to simulate")
	cmd.Flags().Int64Var(&gen.Seed, "seed", gen.Seed, "Random seed")
	cmd.Flags().Float64Var(&gen.OutbreakChance, "outbreak-chance", gen.OutbreakChance, "Daily outbreak start probability")
	return cmd
}
