package cmd

import (
	"github.com/ska-telescope/ska-pst-send/internal/version"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Display version information",
	Long:  `Display the version of ska-pst-send and build information.`,
	Run: func(_ *cobra.Command, _ []string) {
		version.PrintVersion()
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
