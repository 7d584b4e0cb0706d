// Package identity defines who a client is: a stable user ID supplied by the
// caller and a random client ID generated once per tab or process.
package identity

import (
	"fmt"

	"github.com/google/uuid"
)

// Identity is constructed once at client startup and injected wherever a
// sender or writer must be named.
type Identity struct {
	UserID   string `json:"user_id"`
	ClientID string `json:"client_id"`
}

// New creates an identity for userID with a fresh random client ID.
func New(userID string) (Identity, error) {
	id := Identity{UserID: userID, ClientID: uuid.New().String()}
	if err := id.Validate(); err != nil {
		return Identity{}, err
	}
	return id, nil
}

// Validate checks that both IDs are set.
func (id Identity) Validate() error {
	if id.UserID == "" {
		return fmt.Errorf("user ID cannot be empty")
	}
	if id.ClientID == "" {
		return fmt.Errorf("client ID cannot be empty")
	}
	return nil
}

func (id Identity) String() string {
	return id.UserID + "@" + id.ClientID
}
