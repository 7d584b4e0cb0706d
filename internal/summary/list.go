package summary

import (
	"context"
	"fmt"
	"io"

	"github.com/dyluth/tally/internal/countindex"
	"github.com/dyluth/tally/internal/reconciler"
)

// LoadTotals reads the session's records once and aggregates them per item.
// Items are sorted by id.
func LoadTotals(ctx context.Context, store reconciler.Store, sessionID string) ([]countindex.Totals, error) {
	r, err := reconciler.New(store, sessionID)
	if err != nil {
		return nil, err
	}
	if err := r.Load(ctx); err != nil {
		return nil, err
	}
	return r.AllTotals(), nil
}

// WriteTotals loads the session's totals and writes them in the given format.
// An itemID narrows the output to one item.
func WriteTotals(ctx context.Context, store reconciler.Store, sessionID, itemID string, format OutputFormat, w io.Writer) error {
	totals, err := LoadTotals(ctx, store, sessionID)
	if err != nil {
		return fmt.Errorf("failed to load totals: %w", err)
	}

	if itemID != "" {
		filtered := totals[:0]
		for _, t := range totals {
			if t.ItemID == itemID {
				filtered = append(filtered, t)
			}
		}
		totals = filtered
	}

	switch format {
	case OutputFormatJSONL:
		return FormatJSONL(w, totals)
	default:
		FormatTotals(w, totals, sessionID)
		return nil
	}
}
