package commands

import (
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "lixifeed",
	Short: "Streaming tick aggregation and liquidity scoring",
	Long: `lixifeed ingests brokerage quote ticks, aggregates them into
fixed-count windows and scores each window: microstructure features,
the LIXI liquidity index and a direction label.

Usage:
  go run ./cmd/lixifeed [command]

Examples:
  go run ./cmd/lixifeed run --symbol SPY
  go run ./cmd/lixifeed run --simulate
  go run ./cmd/lixifeed status`,
}

// Execute runs the root command. Called once from main.
func Execute() error {
	return rootCmd.Execute()
}
