package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "costwise",
	Short: "Costwise - cost accounting and budget enforcement for AI APIs",
	Long: `Costwise tracks the cost of AI API usage and enforces budgets before
requests reach a provider.

It provides:
  - Per-request cost attribution across owner, project, and organization
  - Budget limits per scope over per-request, daily, and monthly windows
  - Pre-flight admission checks with conservative cost estimation
  - Threshold alerting with cross-instance deduplication
  - Pre-aggregated usage analytics`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
