// Package ledger is the durable store for cycle-count records and storage
// locations, backed by Redis.
//
// # Overview
//
// A CountRecord holds the counted quantity for one (session, item, location)
// slot together with the expression it was computed from. Records are created
// on the first save for a slot and mutated in place afterwards; the last write
// to reach Redis wins.
//
// Every count write publishes a ChangeEvent (insert, update or delete) on the
// session's change feed. Clients subscribe with SubscribeCountEvents and fold
// the feed into their local view; see internal/reconciler.
//
// # Usage Example
//
//	client, err := ledger.NewClient(&redis.Options{Addr: "localhost:6379"}, "warehouse-1")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	record := &ledger.CountRecord{
//		ID:                uuid.New().String(),
//		SessionID:         "session-7",
//		ItemID:            "SKU-1001",
//		LocationID:        locationID,
//		CountedQuantity:   100,
//		CountedExpression: "20*5",
//		LastWriterUserID:  "alice",
//	}
//	if err := client.CreateCount(ctx, record); err != nil {
//		log.Fatal(err)
//	}
//
// # Redis Schema
//
// Count records: tally:{namespace}:count:{record_id}
// Session members: tally:{namespace}:session:{session_id}:counts
// Slot index: tally:{namespace}:session:{session_id}:slots ({item}|{location_id} -> record_id)
// Locations: tally:{namespace}:location:{location_id}
// Location set: tally:{namespace}:locations
// Location names: tally:{namespace}:location_by_name
//
// Change feed: tally:{namespace}:session:{session_id}:count_events
//
// # Consistency
//
// The slot index is claimed with HSETNX, so the store itself refuses a
// second record for the same slot. Updates run as a Lua script that bumps the
// record's Revision, giving readers a commit order for out-of-order events.
// There are no version checks on write.
package ledger
