// Package resolver turns user-supplied location references into locations.
package resolver

import (
	"context"
	"fmt"
	"strings"

	"github.com/dyluth/tally/pkg/ledger"
)

// MinShortIDLength is the minimum required length for short ID prefixes.
const MinShortIDLength = 6

// Locations is the subset of the ledger client needed to resolve references.
type Locations interface {
	GetLocation(ctx context.Context, locationID string) (*ledger.Location, error)
	FindLocationByName(ctx context.Context, name string) (*ledger.Location, error)
	ListLocations(ctx context.Context) ([]*ledger.Location, error)
}

// ResolveLocation resolves a location name, full UUID or short ID prefix.
//
// A name match wins over an ID match. Prefixes shorter than MinShortIDLength
// are only tried as names.
func ResolveLocation(ctx context.Context, store Locations, ref string) (*ledger.Location, error) {
	if ref == "" {
		return nil, fmt.Errorf("location reference cannot be empty")
	}

	loc, err := store.FindLocationByName(ctx, ref)
	if err == nil {
		return loc, nil
	}
	if !ledger.IsNotFound(err) {
		return nil, fmt.Errorf("failed to look up location name: %w", err)
	}

	if len(ref) == 36 && strings.Count(ref, "-") == 4 {
		loc, err := store.GetLocation(ctx, ref)
		if err != nil {
			if ledger.IsNotFound(err) {
				return nil, &NotFoundError{Ref: ref}
			}
			return nil, fmt.Errorf("failed to verify location existence: %w", err)
		}
		return loc, nil
	}

	if len(ref) < MinShortIDLength {
		return nil, &NotFoundError{Ref: ref}
	}

	all, err := store.ListLocations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to search for location: %w", err)
	}

	var matches []*ledger.Location
	for _, l := range all {
		if strings.HasPrefix(l.ID, ref) {
			matches = append(matches, l)
		}
	}

	switch len(matches) {
	case 0:
		return nil, &NotFoundError{Ref: ref}
	case 1:
		return matches[0], nil
	default:
		ids := make([]string, len(matches))
		for i, m := range matches {
			ids[i] = m.ID
		}
		return nil, &AmbiguousError{Ref: ref, Matches: ids}
	}
}

// NotFoundError indicates no location matched the reference.
type NotFoundError struct {
	Ref string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no location found matching '%s'", e.Ref)
}

// AmbiguousError indicates multiple locations matched the short ID.
type AmbiguousError struct {
	Ref     string
	Matches []string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("ambiguous short ID '%s' matches %d locations", e.Ref, len(e.Matches))
}

// FormatAmbiguousError creates a user-friendly message listing the matching
// IDs (up to 10, then "...and N more").
func FormatAmbiguousError(err *AmbiguousError) string {
	var b strings.Builder
	fmt.Fprintf(&b, "ambiguous short ID '%s' matches %d locations:\n", err.Ref, len(err.Matches))

	displayCount := len(err.Matches)
	if displayCount > 10 {
		displayCount = 10
	}
	for _, id := range err.Matches[:displayCount] {
		fmt.Fprintf(&b, "  %s\n", id)
	}
	if len(err.Matches) > 10 {
		fmt.Fprintf(&b, "  ...and %d more\n", len(err.Matches)-10)
	}

	b.WriteString("\nUse a longer prefix or the location name.")
	return b.String()
}
