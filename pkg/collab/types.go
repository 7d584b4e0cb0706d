package collab

import "fmt"

// Topic identifies the field being mirrored. Location is not part of the key.
type Topic struct {
	SessionID string
	ItemID    string
}

// Validate checks that both parts of the topic are set.
func (t Topic) Validate() error {
	if t.SessionID == "" {
		return fmt.Errorf("session_id cannot be empty")
	}
	if t.ItemID == "" {
		return fmt.Errorf("item_id cannot be empty")
	}
	return nil
}

func (t Topic) String() string {
	return t.SessionID + "/" + t.ItemID
}

// EditBroadcast is a complete snapshot of one client's expression for a triple.
// It is never persisted.
type EditBroadcast struct {
	SessionID      string `json:"session_id"`
	ItemID         string `json:"item_id"`
	Location       string `json:"location"`
	Expression     string `json:"expression"`
	SenderClientID string `json:"sender_client_id"`
	SenderUserID   string `json:"sender_user_id"`
	TimestampMs    int64  `json:"timestamp_ms"`
}

// Topic returns the topic the broadcast belongs to.
func (b *EditBroadcast) Topic() Topic {
	return Topic{SessionID: b.SessionID, ItemID: b.ItemID}
}

// Validate checks the identifying fields. Expression may be empty.
func (b *EditBroadcast) Validate() error {
	if err := b.Topic().Validate(); err != nil {
		return err
	}
	if b.SenderClientID == "" {
		return fmt.Errorf("sender_client_id cannot be empty")
	}
	if b.TimestampMs <= 0 {
		return fmt.Errorf("timestamp_ms must be positive, got %d", b.TimestampMs)
	}
	return nil
}

// Presence announces that a client is editing a triple.
type Presence struct {
	ClientID  string `json:"client_id"`
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	ItemID    string `json:"item_id"`
	Location  string `json:"location"`
	SeenAtMs  int64  `json:"seen_at_ms"`
}

// Validate checks the identifying fields.
func (p *Presence) Validate() error {
	if p.ClientID == "" {
		return fmt.Errorf("client_id cannot be empty")
	}
	if p.UserID == "" {
		return fmt.Errorf("user_id cannot be empty")
	}
	return Topic{SessionID: p.SessionID, ItemID: p.ItemID}.Validate()
}

type messageKind string

const (
	kindEdit     messageKind = "edit"
	kindPresence messageKind = "presence"
)

// envelope is the wire format on a topic channel.
type envelope struct {
	Kind     messageKind    `json:"kind"`
	Edit     *EditBroadcast `json:"edit,omitempty"`
	Presence *Presence      `json:"presence,omitempty"`
}
