package commands

import (
	"context"
	"fmt"

	"github.com/dyluth/tally/internal/printer"
	"github.com/dyluth/tally/internal/summary"
	"github.com/spf13/cobra"
)

var (
	totalsSession string
	totalsItem    string
	totalsOutput  string
)

var totalsCmd = &cobra.Command{
	Use:   "totals",
	Short: "Show counted totals for a session",
	Long: `Show the counted quantity of every item in a session, broken down by location.

Examples:
  tally totals --session 2024-q3
  tally totals -s 2024-q3 --item SKU-1
  tally totals -s 2024-q3 --output jsonl | jq '.total_counted'`,
	Args: cobra.NoArgs,
	RunE: runTotals,
}

func init() {
	totalsCmd.Flags().StringVarP(&totalsSession, "session", "s", "", "Cycle-count session ID (required)")
	totalsCmd.Flags().StringVarP(&totalsItem, "item", "i", "", "Only show this item")
	totalsCmd.Flags().StringVarP(&totalsOutput, "output", "o", "default", "Output format (default or jsonl)")
	totalsCmd.MarkFlagRequired("session")
	rootCmd.AddCommand(totalsCmd)
}

func runTotals(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	format, err := summary.ParseFormat(totalsOutput)
	if err != nil {
		return printer.Error(
			"invalid output format",
			fmt.Sprintf("Unknown format: %s", totalsOutput),
			[]string{"Valid formats: default, jsonl"},
		)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	return summary.WriteTotals(ctx, client, totalsSession, totalsItem, format, printer.Stdout)
}
