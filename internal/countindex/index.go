// Package countindex holds the in-memory view of a session's count records,
// grouped by item, and derives per-item totals from it.
package countindex

import (
	"sort"
	"sync"

	"github.com/dyluth/tally/pkg/ledger"
)

// Entry is a count record with its location name resolved.
type Entry struct {
	ledger.CountRecord
	Location string `json:"location"`
}

// LocationTotal is one row of an item's per-location breakdown.
type LocationTotal struct {
	Location   string `json:"location"`
	LocationID string `json:"location_id"`
	Quantity   int64  `json:"quantity"`
	Expression string `json:"expression,omitempty"`
}

// Totals is the aggregate view of one item.
type Totals struct {
	ItemID       string          `json:"item_id"`
	TotalCounted int64           `json:"total_counted"`
	IsCounted    bool            `json:"is_counted"`
	ByLocation   []LocationTotal `json:"by_location"`
}

// Index maps item IDs to their records in insertion order. Safe for concurrent use.
type Index struct {
	mu    sync.RWMutex
	items map[string][]Entry
}

// New creates an empty index.
func New() *Index {
	return &Index{items: make(map[string][]Entry)}
}

// Insert appends e unless a record with the same ID is already present.
// Returns false when the record was already known.
func (x *Index) Insert(e Entry) bool {
	x.mu.Lock()
	defer x.mu.Unlock()

	if _, _, ok := x.locate(e.ID); ok {
		return false
	}
	x.items[e.ItemID] = append(x.items[e.ItemID], e)
	return true
}

// Upsert replaces the record with e's ID in place, or appends it when absent.
// A record whose item changed moves to the new item.
func (x *Index) Upsert(e Entry) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if item, i, ok := x.locate(e.ID); ok {
		if item == e.ItemID {
			x.items[item][i] = e
			return
		}
		x.removeAt(item, i)
	}
	x.items[e.ItemID] = append(x.items[e.ItemID], e)
}

// Remove deletes the record with the given ID. An item left with no records
// is dropped entirely. Returns false when the ID was unknown.
func (x *Index) Remove(recordID string) bool {
	x.mu.Lock()
	defer x.mu.Unlock()

	item, i, ok := x.locate(recordID)
	if !ok {
		return false
	}
	x.removeAt(item, i)
	return true
}

// Get returns the record with the given ID.
func (x *Index) Get(recordID string) (Entry, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	item, i, ok := x.locate(recordID)
	if !ok {
		return Entry{}, false
	}
	return x.items[item][i], true
}

// Find returns the record for an item at a named location.
func (x *Index) Find(itemID, location string) (Entry, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	for _, e := range x.items[itemID] {
		if e.Location == location {
			return e, true
		}
	}
	return Entry{}, false
}

// Records returns a copy of an item's records.
func (x *Index) Records(itemID string) []Entry {
	x.mu.RLock()
	defer x.mu.RUnlock()

	return append([]Entry(nil), x.items[itemID]...)
}

// Items returns the IDs of every counted item, sorted.
func (x *Index) Items() []string {
	x.mu.RLock()
	defer x.mu.RUnlock()

	ids := make([]string, 0, len(x.items))
	for id := range x.items {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Replace discards the current contents and loads entries in order.
func (x *Index) Replace(entries []Entry) {
	items := make(map[string][]Entry)
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		if seen[e.ID] {
			continue
		}
		seen[e.ID] = true
		items[e.ItemID] = append(items[e.ItemID], e)
	}

	x.mu.Lock()
	x.items = items
	x.mu.Unlock()
}

// Aggregate computes the totals of one item from its current records.
func (x *Index) Aggregate(itemID string) Totals {
	return Aggregate(itemID, x.Records(itemID))
}

// All computes the totals of every counted item, ordered by item ID.
func (x *Index) All() []Totals {
	ids := x.Items()
	all := make([]Totals, 0, len(ids))
	for _, id := range ids {
		all = append(all, x.Aggregate(id))
	}
	return all
}

// Aggregate sums records into the totals of one item.
func Aggregate(itemID string, records []Entry) Totals {
	t := Totals{
		ItemID:     itemID,
		IsCounted:  len(records) > 0,
		ByLocation: make([]LocationTotal, 0, len(records)),
	}
	for _, e := range records {
		t.TotalCounted += e.CountedQuantity
		t.ByLocation = append(t.ByLocation, LocationTotal{
			Location:   e.Location,
			LocationID: e.LocationID,
			Quantity:   e.CountedQuantity,
			Expression: e.CountedExpression,
		})
	}
	return t
}

// locate must be called with the lock held.
func (x *Index) locate(recordID string) (string, int, bool) {
	for item, entries := range x.items {
		for i, e := range entries {
			if e.ID == recordID {
				return item, i, true
			}
		}
	}
	return "", 0, false
}

// removeAt must be called with the write lock held.
func (x *Index) removeAt(item string, i int) {
	entries := x.items[item]
	entries = append(entries[:i], entries[i+1:]...)
	if len(entries) == 0 {
		delete(x.items, item)
		return
	}
	x.items[item] = entries
}
