package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/modelpulse/tracker-cli/internal/classify"
	"github.com/modelpulse/tracker-cli/internal/config"
)

var (
	cfg   *config.Config
	rules classify.Rules
)

var rootCmd = &cobra.Command{
	Use:   "modelpulse",
	Short: "Track model download counts across hosting platforms",
	Long:  "Scrapes hosting platforms for model download counts, stores daily observations, and builds weekly growth reports for a release family.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		rules = classify.DefaultRules()
		if cfg.RulesFile != "" {
			r, err := classify.LoadRules(cfg.RulesFile)
			if err != nil {
				return fmt.Errorf("load rules: %w", err)
			}
			rules = r
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
