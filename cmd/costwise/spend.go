package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"costwise-hq/costwise/pkg/analytics"
	"costwise-hq/costwise/pkg/config"
)

var spendFlags struct {
	scope  string
	window string
	format string
}

var spendCmd = &cobra.Command{
	Use:   "spend",
	Short: "Query aggregated spend summaries",
	Long: `Query the analytics database for aggregated spend summaries.

Summaries are grouped by bucket, provider, and model for a given scope
and window. The service must have analytics enabled for summaries to
exist.

Examples:
  # Daily spend for a project
  costwise spend --scope project:checkout --window daily

  # Monthly spend for the organization, as JSON
  costwise spend --scope organization:acme --window monthly --format json`,
	RunE: querySpend,
}

func init() {
	rootCmd.AddCommand(spendCmd)

	spendCmd.Flags().StringVar(&spendFlags.scope, "scope", "", "scope key, e.g. project:checkout (required)")
	spendCmd.Flags().StringVar(&spendFlags.window, "window", "daily", "window: daily, monthly")
	spendCmd.Flags().StringVar(&spendFlags.format, "format", "table", "output format: table, json")
	spendCmd.MarkFlagRequired("scope")
}

func querySpend(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if !cfg.Analytics.Enabled {
		return fmt.Errorf("analytics is disabled in configuration")
	}

	store, err := analytics.NewStore(analytics.StoreConfig{Path: cfg.Analytics.Path})
	if err != nil {
		return fmt.Errorf("failed to open analytics store: %w", err)
	}
	defer store.Close()

	summaries, err := store.Summaries(context.Background(), spendFlags.scope, spendFlags.window)
	if err != nil {
		return fmt.Errorf("failed to query summaries: %w", err)
	}

	switch spendFlags.format {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summaries)
	case "table":
		if len(summaries) == 0 {
			fmt.Println("No spend recorded for this scope and window.")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "BUCKET\tPROVIDER\tMODEL\tREQUESTS\tINPUT\tOUTPUT\tCOST")
		for _, s := range summaries {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%.4f\n",
				s.Bucket, s.Provider, s.Model, s.RequestCount, s.InputUnits, s.OutputUnits, s.Cost)
		}
		return w.Flush()
	default:
		return fmt.Errorf("unsupported format: %s", spendFlags.format)
	}
}
