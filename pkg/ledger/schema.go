package ledger

import "fmt"

// Redis key pattern helpers
//
// All keys and Pub/Sub channels are namespaced so several tally deployments can
// share one Redis server.
//
// Key pattern: tally:{namespace}:{entity}:{id}
// Channel pattern: tally:{namespace}:session:{session_id}:count_events

// CountKey returns the Redis key for a count record hash.
// Pattern: tally:{namespace}:count:{record_id}
func CountKey(namespace, recordID string) string {
	return fmt.Sprintf("tally:%s:count:%s", namespace, recordID)
}

// SessionCountsKey returns the Redis key for the set of record IDs in a session.
// Pattern: tally:{namespace}:session:{session_id}:counts
func SessionCountsKey(namespace, sessionID string) string {
	return fmt.Sprintf("tally:%s:session:%s:counts", namespace, sessionID)
}

// SlotIndexKey returns the Redis key for the slot uniqueness hash of a session.
// Fields are SlotField values, values are record IDs.
// Pattern: tally:{namespace}:session:{session_id}:slots
func SlotIndexKey(namespace, sessionID string) string {
	return fmt.Sprintf("tally:%s:session:%s:slots", namespace, sessionID)
}

// SlotField returns the field identifying an (item, location) slot in the slot index.
func SlotField(itemID, locationID string) string {
	return itemID + "|" + locationID
}

// LocationKey returns the Redis key for a location hash.
// Pattern: tally:{namespace}:location:{location_id}
func LocationKey(namespace, locationID string) string {
	return fmt.Sprintf("tally:%s:location:%s", namespace, locationID)
}

// LocationsKey returns the Redis key for the set of all location IDs.
// Pattern: tally:{namespace}:locations
func LocationsKey(namespace string) string {
	return fmt.Sprintf("tally:%s:locations", namespace)
}

// LocationByNameKey returns the Redis key for the name -> location ID hash.
// Pattern: tally:{namespace}:location_by_name
func LocationByNameKey(namespace string) string {
	return fmt.Sprintf("tally:%s:location_by_name", namespace)
}

// CountEventsChannel returns the Pub/Sub channel carrying change events for one session.
// Pattern: tally:{namespace}:session:{session_id}:count_events
func CountEventsChannel(namespace, sessionID string) string {
	return fmt.Sprintf("tally:%s:session:%s:count_events", namespace, sessionID)
}
