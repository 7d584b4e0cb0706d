// Package collab mirrors in-progress edits between clients viewing the same
// count-entry field, over Redis Pub/Sub.
//
// A topic is keyed by (session, item). The location being edited travels
// inside every message, so switching location keeps the same subscription.
// Every EditBroadcast is a complete snapshot of the sender's expression;
// delivery is at-most-once and unordered, and receivers discard stale or
// duplicate snapshots by comparing TimestampMs.
//
// Presence entries are kept in a per-topic hash so peers can show "also
// editing" hints. Entries older than the presence TTL are ignored.
//
// # Redis Schema
//
// Topic channel: tally:{namespace}:collab:{session_id}:{item_id}
// Presence hash: tally:{namespace}:presence:{session_id}:{item_id} ({client_id} -> Presence JSON)
package collab
