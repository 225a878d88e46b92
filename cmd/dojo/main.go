package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Global flags
	verbose  bool
	workRoot string

	// Logger
	logger *zap.Logger
)

// version is set at build time.
var version = "dev"

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:     "dojo",
	Short:   "Staged validation of pseudopotential files",
	Version: version,
	Long: `dojo takes a pseudopotential through a level-ordered sequence of
validation trials. Each level drives an external calculation workflow,
interprets the numbers and writes its verdict into the DOJO_REPORT
section of the potential file.

Level 0 (hints) brackets and refines the energy-cutoff convergence
window; level 1 (delta_factor) runs the equation-of-state benchmark.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config := zap.NewProductionConfig()
		if verbose {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = config.Build()
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

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&workRoot, "work-root", "", "directory for DOJO_<name> work trees (overrides dojo.yml)")

	rootCmd.AddCommand(challengeCmd)
	rootCmd.AddCommand(statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
