package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// CountRecord is the durable count for one (session, item, location) slot.
// At most one record is current per slot; subsequent saves mutate it in place.
type CountRecord struct {
	ID                string `json:"id"`                  // UUID - unique identifier for this record
	SessionID         string `json:"session_id"`          // Cycle-count session the record belongs to
	ItemID            string `json:"item_id"`             // Item being counted
	LocationID        string `json:"location_id"`         // UUID of the storage location
	CountedQuantity   int64  `json:"counted_quantity"`    // Evaluated quantity, always >= 0
	CountedExpression string `json:"counted_expression"`  // Expression the quantity was computed from (may be empty)
	LastWriterUserID  string `json:"last_writer_user_id"` // User who performed the last write
	Revision          int64  `json:"revision"`            // Store-assigned commit counter, starts at 1
	CreatedAtMs       int64  `json:"created_at_ms"`       // Unix timestamp in milliseconds of the first save
	UpdatedAtMs       int64  `json:"updated_at_ms"`       // Unix timestamp in milliseconds of the last save
}

// Location is a storage location a record can be counted against.
// Inactive locations are soft-deleted and cannot receive new records.
type Location struct {
	ID       string `json:"id"`        // UUID
	Name     string `json:"name"`      // Human-readable, unique name (e.g. "A1")
	IsActive bool   `json:"is_active"` // False once the location is retired
}

// EventType is the kind of change carried by a ChangeEvent.
type EventType string

const (
	// EventInsert is emitted when a record is created
	EventInsert EventType = "insert"

	// EventUpdate is emitted when a record's quantity or expression changes
	EventUpdate EventType = "update"

	// EventDelete is emitted when a record is removed
	EventDelete EventType = "delete"
)

// ChangeEvent is one entry of the count change feed.
// Insert carries After, delete carries Before, update carries both.
type ChangeEvent struct {
	Type   EventType    `json:"event_type"`
	Before *CountRecord `json:"before,omitempty"`
	After  *CountRecord `json:"after,omitempty"`
}

// Record returns the post-image when present, otherwise the pre-image.
func (e *ChangeEvent) Record() *CountRecord {
	if e.After != nil {
		return e.After
	}
	return e.Before
}

// CountUpdate is the set of fields a save may change on an existing record.
type CountUpdate struct {
	CountedQuantity   int64
	CountedExpression string
	LastWriterUserID  string
	UpdatedAtMs       int64
}

// Validate checks if the CountRecord has valid field values.
func (r *CountRecord) Validate() error {
	if !isValidUUID(r.ID) {
		return fmt.Errorf("invalid count record ID: not a valid UUID")
	}

	if r.SessionID == "" {
		return fmt.Errorf("session_id cannot be empty")
	}

	if r.ItemID == "" {
		return fmt.Errorf("item_id cannot be empty")
	}

	if !isValidUUID(r.LocationID) {
		return fmt.Errorf("invalid location ID: not a valid UUID")
	}

	if r.CountedQuantity < 0 {
		return fmt.Errorf("invalid counted_quantity: must be >= 0, got %d", r.CountedQuantity)
	}

	if r.LastWriterUserID == "" {
		return fmt.Errorf("last_writer_user_id cannot be empty")
	}

	return nil
}

// Validate checks the update fields.
func (u CountUpdate) Validate() error {
	if u.CountedQuantity < 0 {
		return fmt.Errorf("invalid counted_quantity: must be >= 0, got %d", u.CountedQuantity)
	}
	if u.LastWriterUserID == "" {
		return fmt.Errorf("last_writer_user_id cannot be empty")
	}
	return nil
}

// Validate checks if the Location has valid field values.
func (l *Location) Validate() error {
	if !isValidUUID(l.ID) {
		return fmt.Errorf("invalid location ID: not a valid UUID")
	}

	if l.Name == "" {
		return fmt.Errorf("location name cannot be empty")
	}

	return nil
}

// Validate checks if the EventType is a valid enum value.
func (t EventType) Validate() error {
	switch t {
	case EventInsert, EventUpdate, EventDelete:
		return nil
	default:
		return fmt.Errorf("unknown event type: %q", t)
	}
}

// isValidUUID checks if a string is a valid UUID format.
func isValidUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
