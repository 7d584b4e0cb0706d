package collab

import "fmt"

// TopicChannel returns the Pub/Sub channel for one (session, item) topic.
// Pattern: tally:{namespace}:collab:{session_id}:{item_id}
func TopicChannel(namespace string, t Topic) string {
	return fmt.Sprintf("tally:%s:collab:%s:%s", namespace, t.SessionID, t.ItemID)
}

// PresenceKey returns the Redis key for the presence hash of a topic.
// Pattern: tally:{namespace}:presence:{session_id}:{item_id}
func PresenceKey(namespace string, t Topic) string {
	return fmt.Sprintf("tally:%s:presence:%s:%s", namespace, t.SessionID, t.ItemID)
}
