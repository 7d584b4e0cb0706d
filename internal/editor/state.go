package editor

import (
	"github.com/dyluth/tally/pkg/collab"
	"github.com/dyluth/tally/pkg/expr"
)

// Mode says whether a save will update an existing record or create one.
type Mode string

const (
	ModeCreate Mode = "create"
	ModeEdit   Mode = "edit"
)

// Triple identifies one countable slot.
type Triple struct {
	SessionID string `json:"session_id"`
	ItemID    string `json:"item_id"`
	Location  string `json:"location"`
}

// State is a snapshot of an editor for rendering. Version increases with
// every delivered snapshot; a renderer drops any snapshot older than the one
// it holds.
type State struct {
	Version    uint64      `json:"version"`
	Open       bool        `json:"open"`
	Triple     Triple      `json:"triple"`
	Mode       Mode        `json:"mode,omitempty"`
	RecordID   string      `json:"record_id,omitempty"`
	Expression string      `json:"expression"`
	Result     expr.Result `json:"result"`
	Error      *expr.Error `json:"error,omitempty"`

	// Quantity is the value a save would persist, which differs from
	// Result.Value while the expression ends in the continuation marker.
	Quantity int64 `json:"quantity"`

	Saving       bool              `json:"saving"`
	CanSave      bool              `json:"can_save"`
	DirtySinceMs int64             `json:"dirty_since_ms,omitempty"`
	Mirroring    bool              `json:"mirroring"`
	Peers        []collab.Presence `json:"peers,omitempty"`
}
