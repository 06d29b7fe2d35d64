package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"costwise-hq/costwise/pkg/config"
	"costwise-hq/costwise/pkg/pricing"
)

var validateFlags struct {
	feed string
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration and pricing feed",
	Long: `Validate the configuration file and, when configured, the dynamic
pricing feed.

The validate command checks:
  - Budget scopes, windows, and amounts
  - Currency consistency between budgets and pricing
  - Alert threshold ordering
  - The rollover cron schedule
  - Pricing feed entries (rates, units, effective dates)

Examples:
  # Validate the default config
  costwise validate

  # Validate a specific config file
  costwise validate --config /etc/costwise/config.yaml

  # Validate a pricing feed directly
  costwise validate --feed pricing.yaml`,
	RunE: validateConfig,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVar(&validateFlags.feed, "feed", "", "pricing feed file to validate (overrides config)")
}

func validateConfig(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	fmt.Printf("✓ Configuration valid (%d budgets)\n", len(cfg.Budgets))

	feedPath := validateFlags.feed
	if feedPath == "" {
		feedPath = cfg.Pricing.FeedPath
	}
	if feedPath != "" {
		entries, err := pricing.LoadFeed(feedPath)
		if err != nil {
			return fmt.Errorf("invalid pricing feed: %w", err)
		}
		fmt.Printf("✓ Pricing feed valid (%d entries)\n", len(entries))
	}

	return nil
}
