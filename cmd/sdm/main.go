package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Syedinzimam/SDM-Himalayan-Ibex/pkg/config"
	"github.com/Syedinzimam/SDM-Himalayan-Ibex/pkg/pipeline"
)

var (
	configPath   string
	verbose      bool
	seedOverride int64
	outputDir    string

	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "sdm",
	Short: "Species distribution modeling pipeline for the Himalayan ibex",
	Long: `sdm builds a habitat suitability model for Capra sibirica over the
western Himalaya.

The pipeline runs in stages, each writing its artifacts to the output
directory so later stages (or re-runs) can pick up where it left off:

  occurrences  fetch and clean GBIF occurrence records
  climate      download and crop the bioclim predictor stack
  predictors   correlation diagnostics and variable selection
  background   seeded pseudo-absence sampling
  fit          train, evaluate, and predict suitability
  classify     threshold to binary habitat and aggregate by country
  crossval     k-fold spatial cross-validation
  report       assemble the markdown summary
  run          all of the above, in order`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := zap.NewProductionConfig()
		if verbose {
			cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = cfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// stage builds a subcommand that opens the pipeline and runs one stage.
func stage(use, short string, fn func(*pipeline.Pipeline, *cobra.Command) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if rootCmd.PersistentFlags().Changed("seed") {
				cfg.Seed = seedOverride
			}
			if outputDir != "" {
				cfg.OutputDir = outputDir
			}
			p, err := pipeline.New(cfg, logger.Sugar())
			if err != nil {
				return err
			}
			defer p.Close()
			return fn(p, cmd)
		},
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML configuration file (defaults apply when omitted)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().Int64Var(&seedOverride, "seed", 0, "override the configured random seed")
	rootCmd.PersistentFlags().StringVar(&outputDir, "output", "", "override the configured output directory")

	rootCmd.AddCommand(
		stage("occurrences", "Fetch and clean GBIF occurrence records",
			func(p *pipeline.Pipeline, cmd *cobra.Command) error { return p.Occurrences(cmd.Context()) }),
		stage("climate", "Download and crop the bioclim predictor stack",
			func(p *pipeline.Pipeline, cmd *cobra.Command) error { return p.Climate(cmd.Context()) }),
		stage("predictors", "Run correlation diagnostics and select variables",
			func(p *pipeline.Pipeline, cmd *cobra.Command) error { return p.Predictors() }),
		stage("background", "Sample seeded pseudo-absence points",
			func(p *pipeline.Pipeline, cmd *cobra.Command) error { return p.BackgroundSample() }),
		stage("fit", "Train, evaluate, and predict habitat suitability",
			func(p *pipeline.Pipeline, cmd *cobra.Command) error { return p.Fit() }),
		stage("classify", "Threshold suitability and aggregate by country",
			func(p *pipeline.Pipeline, cmd *cobra.Command) error { return p.Classify() }),
		stage("crossval", "Run k-fold spatial cross-validation",
			func(p *pipeline.Pipeline, cmd *cobra.Command) error { return p.CrossValidate() }),
		stage("report", "Assemble the markdown run summary",
			func(p *pipeline.Pipeline, cmd *cobra.Command) error { return p.Report() }),
		stage("run", "Run every stage in order",
			func(p *pipeline.Pipeline, cmd *cobra.Command) error { return p.Run(cmd.Context()) }),
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "sdm: %v\n", err)
		os.Exit(1)
	}
}
