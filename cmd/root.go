package main

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "fbpscheduler",
	Short: "File-configuration-driven workflow scheduler",
	Long:  "fbpscheduler <start|version> [flags]",
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(startCmd())
	rootCmd.AddCommand(versionCmd())
}
