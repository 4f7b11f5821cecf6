package cmd

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/plugkit/matrixgen/internal/config"
	"github.com/plugkit/matrixgen/internal/github"
	"github.com/plugkit/matrixgen/internal/httpx"
	"github.com/plugkit/matrixgen/internal/npm"
	"github.com/plugkit/matrixgen/internal/output"
	"github.com/plugkit/matrixgen/internal/registry"
	"github.com/plugkit/matrixgen/internal/report"
	"github.com/plugkit/matrixgen/internal/scan"
)

// tokenEnv holds the GitHub credential. It is required: unauthenticated
// GitHub quota is 60 requests/hour, useless for any real registry size.
const tokenEnv = "GITHUB_TOKEN"

var (
	registryFlag string
	outputFlag   string
	summaryFlag  bool
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Gather version facts and write the registry report",
	Long: `Gather branch, tag and manifest facts from GitHub and published
versions from the npm registry for every plugin in the registry file,
classify major-track support, and write the JSON report.

Plugins whose sources are unreachable stay in the report with null
versions and supported:false; only an unreadable input file, a missing
` + tokenEnv + ` or an unwritable output file fail the run.`,
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().StringVar(&registryFlag, "registry", "", "plugin registry file (overrides config)")
	generateCmd.Flags().StringVarP(&outputFlag, "output", "o", "", "report file (overrides config)")
	generateCmd.Flags().BoolVar(&summaryFlag, "summary", false, "print a per-plugin summary table")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFlag)
	if err != nil {
		return err
	}
	if registryFlag != "" {
		cfg.RegistryFile = registryFlag
	}
	if outputFlag != "" {
		cfg.OutputFile = outputFlag
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	token := os.Getenv(tokenEnv)
	if token == "" {
		return errors.New(tokenEnv + " is not set")
	}

	entries, rejected, err := registry.Load(cfg.RegistryFile)
	if err != nil {
		return err
	}
	for _, rej := range rejected {
		logger.Warn("skipping registry entry",
			zap.String("plugin", rej.ID),
			zap.String("ref", rej.Ref),
			zap.String("reason", rej.Reason))
	}
	logger.Info("loaded plugin registry",
		zap.String("file", cfg.RegistryFile),
		zap.Int("accepted", len(entries)),
		zap.Int("rejected", len(rejected)))

	client := httpx.NewClient(
		httpx.WithMaxRetries(cfg.MaxRetries),
		httpx.WithBaseDelay(cfg.BaseDelay.Duration),
		httpx.WithTimeout(cfg.Timeout.Duration),
	)
	git, err := github.NewSource(client, token, cfg.GitHubAPIURL)
	if err != nil {
		return err
	}
	pkgs := npm.NewSource(cfg.NpmRegistry, client)

	scanner := scan.New(git, pkgs, scan.Options{
		BatchSize:  cfg.BatchSize,
		BatchDelay: cfg.BatchDelay.Duration,
	}, logger)
	results := scanner.Run(cmd.Context(), entries)

	rep := report.Build(results, time.Now())
	if err := rep.Write(cfg.OutputFile); err != nil {
		return err
	}
	logger.Info("report written",
		zap.String("path", cfg.OutputFile),
		zap.Int("plugins", len(results)))

	if summaryFlag {
		return output.WriteSummary(cmd.OutOrStdout(), results)
	}
	return nil
}
