package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dyluth/tally/internal/printer"
	"github.com/dyluth/tally/internal/watch"
	"github.com/spf13/cobra"
)

var (
	watchSession      string
	watchOutputFormat string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream count changes for a session",
	Long: `Stream every count record insert, update and delete of a session as it happens.

Output Formats:
  default - Human-readable output with timestamps and emojis
  json    - Line-delimited JSON for programmatic processing

Examples:
  tally watch --session 2024-q3
  tally watch -s 2024-q3 --output=json > events.jsonl`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVarP(&watchSession, "session", "s", "", "Cycle-count session ID (required)")
	watchCmd.Flags().StringVarP(&watchOutputFormat, "output", "o", "default", "Output format (default or json)")
	watchCmd.MarkFlagRequired("session")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var outputFormat watch.OutputFormat
	switch watchOutputFormat {
	case "default":
		outputFormat = watch.OutputFormatDefault
	case "json":
		outputFormat = watch.OutputFormatJSON
	default:
		return printer.Error(
			"invalid output format",
			fmt.Sprintf("Unknown format: %s", watchOutputFormat),
			[]string{"Valid formats: default, json"},
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

	locations, err := client.ListLocations(ctx)
	if err != nil {
		return err
	}

	if outputFormat == watch.OutputFormatDefault {
		printer.Step("Watching session '%s' (Ctrl+C to stop)\n", watchSession)
	}
	return watch.StreamCountEvents(ctx, client, watchSession, watch.LocationNames(locations), outputFormat, printer.Stdout)
}
