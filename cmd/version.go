package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// Build info, set from main via Execute.
var (
	buildVersion = "dev"
	buildCommit  = "none"
	buildDate    = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(ui.Out, "rqc %s (commit %s, built %s, %s/%s)\n",
			buildVersion, buildCommit, buildDate, runtime.GOOS, runtime.GOARCH)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
