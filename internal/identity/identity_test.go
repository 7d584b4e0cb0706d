package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	a, err := New("alice")
	require.NoError(t, err)
	b, err := New("alice")
	require.NoError(t, err)

	assert.Equal(t, "alice", a.UserID)
	assert.NotEmpty(t, a.ClientID)
	assert.NotEqual(t, a.ClientID, b.ClientID, "each client gets its own ID")

	_, err = New("")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	assert.Error(t, Identity{UserID: "alice"}.Validate())
	assert.NoError(t, Identity{UserID: "alice", ClientID: "tab-1"}.Validate())
	assert.Equal(t, "alice@tab-1", Identity{UserID: "alice", ClientID: "tab-1"}.String())
}
