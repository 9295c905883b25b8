// Package cli implements the trader command line.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"kalshi-trader/internal/config"
)

// globals are the persistent flags shared by every subcommand.
type globals struct {
	configPath string
	envFile    string
	dryRun     bool
	logLevel   string
}

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	g := &globals{}

	rootCmd := &cobra.Command{
		Use:   "trader",
		Short: "Kalshi prediction-market trader",
		Long: `trader scans Kalshi markets for price reversions, mispriced
multi-outcome events and mention markets near their live event, enters
positions with depth-aware limit orders and manages their exits.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.LoadEnvFile(g.envFile)
		},
	}

	rootCmd.PersistentFlags().StringVar(&g.configPath, "config", "", "YAML configuration file (defaults only when empty)")
	rootCmd.PersistentFlags().StringVar(&g.envFile, "env-file", "", "dotenv file to load before reading the environment (./.env when empty)")
	rootCmd.PersistentFlags().BoolVar(&g.dryRun, "dry-run", false, "Paper trade against live market data")
	rootCmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "Override the configured log level")

	rootCmd.AddCommand(newRunCmd(g))
	rootCmd.AddCommand(newPositionsCmd(g))
	rootCmd.AddCommand(newEventsCmd(g))
	rootCmd.AddCommand(newMigrateCmd(g))
	rootCmd.AddCommand(newConfigCmd(g))

	return rootCmd
}

// load reads the configuration and applies flag overrides.
func (g *globals) load(cmd *cobra.Command) (*config.Config, error) {
	dryRun := cmd.Flags().Changed("dry-run")
	cfg, err := config.Load(g.configPath, func(c *config.Config) {
		if dryRun {
			c.App.DryRun = g.dryRun
		}
		if g.logLevel != "" {
			c.App.LogLevel = g.logLevel
		}
	})
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
