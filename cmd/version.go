package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// Build metadata, set via ldflags:
//
//	go build -ldflags="-X github.com/plugkit/matrixgen/cmd.Version=1.2.0"
var (
	Version   = "dev"
	GitCommit = ""
	BuildDate = ""
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version and build information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "matrixgen %s\n", Version)
		if GitCommit != "" {
			fmt.Fprintf(out, "  commit: %s\n", GitCommit)
		}
		if BuildDate != "" {
			fmt.Fprintf(out, "  built:  %s\n", BuildDate)
		}
		fmt.Fprintf(out, "  go:     %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
	},
}
