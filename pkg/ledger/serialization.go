package ledger

import (
	"fmt"
	"strconv"
)

// Serialization helpers for converting between Go structs and Redis hashes
//
// Redis stores data as string-to-string maps (hashes). Every field of a count
// record is a scalar, so each maps onto one hash field.

// CountToHash converts a CountRecord struct to a Redis hash format.
func CountToHash(r *CountRecord) map[string]interface{} {
	return map[string]interface{}{
		"id":                  r.ID,
		"session_id":          r.SessionID,
		"item_id":             r.ItemID,
		"location_id":         r.LocationID,
		"counted_quantity":    r.CountedQuantity,
		"counted_expression":  r.CountedExpression,
		"last_writer_user_id": r.LastWriterUserID,
		"revision":            r.Revision,
		"created_at_ms":       r.CreatedAtMs,
		"updated_at_ms":       r.UpdatedAtMs,
	}
}

// HashToCount converts a Redis hash to a CountRecord struct.
func HashToCount(hash map[string]string) (*CountRecord, error) {
	quantity, err := strconv.ParseInt(hash["counted_quantity"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid counted_quantity field: %w", err)
	}

	revision, err := strconv.ParseInt(hash["revision"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid revision field: %w", err)
	}

	// Timestamps are informational; tolerate missing values
	createdAtMs, _ := strconv.ParseInt(hash["created_at_ms"], 10, 64)
	updatedAtMs, _ := strconv.ParseInt(hash["updated_at_ms"], 10, 64)

	record := &CountRecord{
		ID:                hash["id"],
		SessionID:         hash["session_id"],
		ItemID:            hash["item_id"],
		LocationID:        hash["location_id"],
		CountedQuantity:   quantity,
		CountedExpression: hash["counted_expression"],
		LastWriterUserID:  hash["last_writer_user_id"],
		Revision:          revision,
		CreatedAtMs:       createdAtMs,
		UpdatedAtMs:       updatedAtMs,
	}

	return record, nil
}

// flatToHash converts a flat [field, value, field, value...] reply, as returned
// by HGETALL inside a Lua script, into a hash map.
func flatToHash(flat []interface{}) (map[string]string, error) {
	if len(flat)%2 != 0 {
		return nil, fmt.Errorf("odd number of hash elements: %d", len(flat))
	}

	hash := make(map[string]string, len(flat)/2)
	for i := 0; i < len(flat); i += 2 {
		field, ok := flat[i].(string)
		if !ok {
			return nil, fmt.Errorf("hash field at %d is %T, not string", i, flat[i])
		}
		value, ok := flat[i+1].(string)
		if !ok {
			return nil, fmt.Errorf("hash value for %q is %T, not string", field, flat[i+1])
		}
		hash[field] = value
	}
	return hash, nil
}

// LocationToHash converts a Location struct to a Redis hash format.
func LocationToHash(l *Location) map[string]interface{} {
	return map[string]interface{}{
		"id":        l.ID,
		"name":      l.Name,
		"is_active": strconv.FormatBool(l.IsActive),
	}
}

// HashToLocation converts a Redis hash to a Location struct.
func HashToLocation(hash map[string]string) (*Location, error) {
	active, err := strconv.ParseBool(hash["is_active"])
	if err != nil {
		return nil, fmt.Errorf("invalid is_active field: %w", err)
	}

	return &Location{
		ID:       hash["id"],
		Name:     hash["name"],
		IsActive: active,
	}, nil
}
