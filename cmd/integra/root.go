package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/copyleftdev/integra/internal/config"
	"github.com/copyleftdev/integra/internal/logging"
)

// app carries what every subcommand needs once the root command has run.
type app struct {
	cfg    *config.Config
	logger *logging.Logger

	logLevel string
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "integra",
		Short: "Estimate definite integrals numerically",
		Long: `integra estimates definite integrals of single-variable functions.

Fixed-partition rules (simpson, trapezium, left, right, midpoint, average) give
one estimate for a given number of rectangles. The refine command narrows the
gap between left and right sums until it meets a tolerance, asking how many
rectangles to add each round.

Environment variables (QUAD_DEFAULT_METHOD, QUAD_DEFAULT_RECTANGLES,
QUAD_WORKERS, QUAD_SEED, LOG_FORMAT, ...) set the defaults.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
	}

	rootCmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(
		newEstimateCmd(a),
		newRefineCmd(a),
		newBatchCmd(a),
		newMethodsCmd(),
		newSyntaxCmd(),
		newAboutCmd(),
	)
	return rootCmd
}

func (a *app) init() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(&logging.Config{
		Level:  a.logLevel,
		Format: cfg.Logging.Format,
		Output: "stderr",
	})
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.logger = logger.WithField("pid", os.Getpid())
	return nil
}
