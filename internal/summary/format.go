// Package summary renders count totals and locations for the command line.
package summary

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/dyluth/tally/internal/countindex"
	"github.com/dyluth/tally/pkg/ledger"
)

// OutputFormat specifies how to format list output.
type OutputFormat string

const (
	// OutputFormatDefault uses a table format with truncated expressions
	OutputFormatDefault OutputFormat = "default"

	// OutputFormatJSONL outputs complete objects as line-delimited JSON
	OutputFormatJSONL OutputFormat = "jsonl"
)

// ParseFormat validates a --output flag value.
func ParseFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case OutputFormatDefault, OutputFormatJSONL:
		return OutputFormat(s), nil
	}
	return "", fmt.Errorf("unknown output format: %s", s)
}

// FormatTotals writes item totals as a table, one row per location with a
// total line per item. Returns the number of items formatted.
func FormatTotals(w io.Writer, totals []countindex.Totals, sessionID string) int {
	if len(totals) == 0 {
		fmt.Fprintf(w, "No counts found for session '%s'\n", sessionID)
		return 0
	}

	fmt.Fprintf(w, "Counts for session '%s':\n\n", sessionID)

	fmt.Fprintf(w, "%-16s %-10s %10s  %s\n", "ITEM", "LOCATION", "QUANTITY", "EXPRESSION")
	fmt.Fprintf(w, "%-16s %-10s %10s  %s\n",
		"----------------", "----------", "----------", "------------------------------")

	for _, t := range totals {
		for _, l := range t.ByLocation {
			fmt.Fprintf(w, "%-16s %-10s %10d  %s\n",
				truncate(t.ItemID, 16),
				truncate(l.Location, 10),
				l.Quantity,
				formatExpression(l.Expression),
			)
		}
		fmt.Fprintf(w, "%-16s %-10s %10d\n", "", "TOTAL", t.TotalCounted)
	}

	countMsg := "item"
	if len(totals) != 1 {
		countMsg = "items"
	}
	fmt.Fprintf(w, "\n%d %s counted\n", len(totals), countMsg)

	return len(totals)
}

// FormatJSONL writes each value as a single JSON object on its own line.
// Suitable for piping to jq.
func FormatJSONL[T any](w io.Writer, values []T) error {
	for _, v := range values {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to marshal to JSON: %w", err)
		}

		if _, err := fmt.Fprintf(w, "%s\n", data); err != nil {
			return fmt.Errorf("failed to write JSONL output: %w", err)
		}
	}
	return nil
}

// FormatLocations writes locations as a table. Returns the number formatted.
func FormatLocations(w io.Writer, locations []*ledger.Location, namespace string) int {
	if len(locations) == 0 {
		fmt.Fprintf(w, "No locations found in namespace '%s'\n", namespace)
		return 0
	}

	fmt.Fprintf(w, "%-10s %-20s %s\n", "ID", "NAME", "STATUS")
	fmt.Fprintf(w, "%-10s %-20s %s\n", "----------", "--------------------", "--------")

	for _, l := range locations {
		status := "active"
		if !l.IsActive {
			status = "inactive"
		}
		fmt.Fprintf(w, "%-10s %-20s %s\n", formatID(l.ID), truncate(l.Name, 20), status)
	}

	countMsg := "location"
	if len(locations) != 1 {
		countMsg = "locations"
	}
	fmt.Fprintf(w, "\n%d %s\n", len(locations), countMsg)

	return len(locations)
}

// formatID truncates an ID to its first 8 characters for compact display.
func formatID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// formatExpression shows "-" for records saved without an expression and
// truncates long ones to 30 characters.
func formatExpression(expression string) string {
	if expression == "" {
		return "-"
	}
	return truncate(expression, 30)
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-3]) + "..."
}
