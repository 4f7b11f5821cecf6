// Package cmd implements the matrixgen command-line interface: generate
// (the main operation), validate (offline registry file check) and
// version.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var exitFunc = os.Exit

var (
	verboseFlag bool
	configFlag  string

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "matrixgen",
	Short: "Generate the plugkit plugin support matrix",
	Long: `matrixgen reads a static plugin registry file, gathers version facts
from GitHub and the npm registry for every plugin, classifies which of the
two plugkit core major tracks (v0, v1) each plugin supports, and writes a
consolidated JSON report.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config := zap.NewProductionConfig()
		if verboseFlag {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = config.Build()
		if err != nil {
			return fmt.Errorf("initializing logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// Execute runs the root command. Exit code 0 on success; 1 for input,
// configuration, credential or write failures. Per-plugin fetch failures
// never fail the process.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		exitFunc(1)
	}
}

// executeTest runs the root command with the given arguments and returns
// the error instead of exiting. Test seam.
func executeTest(args ...string) error {
	rootCmd.SetArgs(args)
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&verboseFlag, "verbose", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "config file (default .matrixgen.yml when present)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(generateCmd)
}
