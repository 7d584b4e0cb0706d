// Package watch streams a session's count changes to a terminal or a pipe.
package watch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/dyluth/tally/pkg/ledger"
)

// OutputFormat selects how events are written.
type OutputFormat string

const (
	// OutputFormatDefault writes one human-readable line per event
	OutputFormatDefault OutputFormat = "default"

	// OutputFormatJSON writes line-delimited JSON
	OutputFormatJSON OutputFormat = "json"
)

// Source opens a session's change feed.
type Source interface {
	SubscribeCountEvents(ctx context.Context, sessionID string) (*ledger.Subscription, error)
}

// LocationNamer maps location IDs to display names. Unknown IDs are shown as is.
type LocationNamer func(locationID string) string

// Event is the JSON form of one streamed change.
type Event struct {
	Type       ledger.EventType    `json:"event_type"`
	SessionID  string              `json:"session_id"`
	ItemID     string              `json:"item_id"`
	Location   string              `json:"location"`
	Quantity   int64               `json:"quantity"`
	Previous   *int64              `json:"previous,omitempty"`
	Expression string              `json:"expression,omitempty"`
	UserID     string              `json:"user_id"`
	Revision   int64               `json:"revision"`
	Record     *ledger.CountRecord `json:"record"`
}

// StreamCountEvents writes every change of the session until ctx is cancelled
// or the feed closes. Malformed feed messages are reported to w in the
// default format and skipped.
func StreamCountEvents(ctx context.Context, src Source, sessionID string, names LocationNamer, format OutputFormat, w io.Writer) error {
	sub, err := src.SubscribeCountEvents(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to subscribe to count events: %w", err)
	}
	defer sub.Close()

	if names == nil {
		names = func(id string) string { return id }
	}

	events := sub.Events()
	errs := sub.Errors()
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := writeEvent(w, toEvent(ev, names), format); err != nil {
				return err
			}

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if format == OutputFormatDefault {
				fmt.Fprintf(w, "⚠️  %v\n", err)
			}
		}
	}
}

func toEvent(ev *ledger.ChangeEvent, names LocationNamer) Event {
	rec := ev.Record()
	out := Event{
		Type:       ev.Type,
		SessionID:  rec.SessionID,
		ItemID:     rec.ItemID,
		Location:   names(rec.LocationID),
		Quantity:   rec.CountedQuantity,
		Expression: rec.CountedExpression,
		UserID:     rec.LastWriterUserID,
		Revision:   rec.Revision,
		Record:     rec,
	}
	if ev.Type == ledger.EventUpdate && ev.Before != nil {
		prev := ev.Before.CountedQuantity
		out.Previous = &prev
	}
	return out
}

func writeEvent(w io.Writer, ev Event, format OutputFormat) error {
	if format == OutputFormatJSON {
		data, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("failed to marshal event: %w", err)
		}
		_, err = fmt.Fprintf(w, "%s\n", data)
		return err
	}

	_, err := fmt.Fprintln(w, formatLine(ev))
	return err
}

func formatLine(ev Event) string {
	ts := time.UnixMilli(ev.Record.UpdatedAtMs).Format("15:04:05")

	switch ev.Type {
	case ledger.EventInsert:
		return fmt.Sprintf("[%s] ✨ %s @ %s counted %d by %s%s",
			ts, ev.ItemID, ev.Location, ev.Quantity, ev.UserID, expressionSuffix(ev.Expression))
	case ledger.EventUpdate:
		prev := ev.Quantity
		if ev.Previous != nil {
			prev = *ev.Previous
		}
		return fmt.Sprintf("[%s] ✏️  %s @ %s %d → %d by %s%s",
			ts, ev.ItemID, ev.Location, prev, ev.Quantity, ev.UserID, expressionSuffix(ev.Expression))
	default:
		return fmt.Sprintf("[%s] 🗑️  %s @ %s removed", ts, ev.ItemID, ev.Location)
	}
}

func expressionSuffix(expression string) string {
	if expression == "" {
		return ""
	}
	return fmt.Sprintf(" (%s)", expression)
}

// LocationNames builds a LocationNamer from a location list.
func LocationNames(locations []*ledger.Location) LocationNamer {
	names := make(map[string]string, len(locations))
	for _, l := range locations {
		names[l.ID] = l.Name
	}
	return func(id string) string {
		if name, ok := names[id]; ok {
			return name
		}
		return id
	}
}
