package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/plugkit/matrixgen/internal/config"
	"github.com/plugkit/matrixgen/internal/registry"
)

var validateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Check the plugin registry file without touching the network",
	Long: `Parse the plugin registry file and report how many entries would be
accepted and which would be rejected during a generate run. No network
access, no credential needed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	var path string
	if len(args) == 1 {
		path = args[0]
	} else {
		cfg, err := config.Load(configFlag)
		if err != nil {
			return err
		}
		path = cfg.RegistryFile
	}

	entries, rejected, err := registry.Load(path)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s: %d accepted, %d rejected\n", path, len(entries), len(rejected))
	for _, rej := range rejected {
		fmt.Fprintf(out, "  rejected %q -> %q: %s\n", rej.ID, rej.Ref, rej.Reason)
	}
	return nil
}
