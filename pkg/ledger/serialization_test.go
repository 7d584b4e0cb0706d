package ledger

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashToCount(t *testing.T) {
	t.Run("parses a full hash", func(t *testing.T) {
		id := uuid.New().String()
		loc := uuid.New().String()
		record, err := HashToCount(map[string]string{
			"id":                  id,
			"session_id":          "s1",
			"item_id":             "SKU-1",
			"location_id":         loc,
			"counted_quantity":    "160",
			"counted_expression":  "20*5+3*20",
			"last_writer_user_id": "alice",
			"revision":            "3",
			"created_at_ms":       "1000",
			"updated_at_ms":       "2000",
		})
		require.NoError(t, err)
		assert.Equal(t, id, record.ID)
		assert.Equal(t, loc, record.LocationID)
		assert.Equal(t, int64(160), record.CountedQuantity)
		assert.Equal(t, int64(3), record.Revision)
		assert.Equal(t, int64(2000), record.UpdatedAtMs)
	})

	t.Run("rejects bad quantity", func(t *testing.T) {
		_, err := HashToCount(map[string]string{"counted_quantity": "lots", "revision": "1"})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "counted_quantity")
	})

	t.Run("rejects missing revision", func(t *testing.T) {
		_, err := HashToCount(map[string]string{"counted_quantity": "1"})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "revision")
	})

	t.Run("tolerates missing timestamps", func(t *testing.T) {
		record, err := HashToCount(map[string]string{"counted_quantity": "1", "revision": "1"})
		require.NoError(t, err)
		assert.Zero(t, record.CreatedAtMs)
	})
}

func TestFlatToHash(t *testing.T) {
	hash, err := flatToHash([]interface{}{"a", "1", "b", "2"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, hash)

	_, err = flatToHash([]interface{}{"a"})
	assert.Error(t, err)

	_, err = flatToHash([]interface{}{int64(1), "x"})
	assert.Error(t, err)
}

func TestLocationHash(t *testing.T) {
	loc := &Location{ID: uuid.New().String(), Name: "A1", IsActive: true}
	hash := LocationToHash(loc)
	assert.Equal(t, "true", hash["is_active"])

	strHash := make(map[string]string, len(hash))
	for k, v := range hash {
		strHash[k] = v.(string)
	}
	parsed, err := HashToLocation(strHash)
	require.NoError(t, err)
	assert.Equal(t, loc, parsed)

	_, err = HashToLocation(map[string]string{"is_active": "maybe"})
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *CountRecord {
		return &CountRecord{
			ID:               uuid.New().String(),
			SessionID:        "s1",
			ItemID:           "SKU-1",
			LocationID:       uuid.New().String(),
			LastWriterUserID: "alice",
		}
	}

	tests := []struct {
		name    string
		mutate  func(r *CountRecord)
		wantErr string
	}{
		{"valid", func(r *CountRecord) {}, ""},
		{"bad id", func(r *CountRecord) { r.ID = "x" }, "record ID"},
		{"no session", func(r *CountRecord) { r.SessionID = "" }, "session_id"},
		{"no item", func(r *CountRecord) { r.ItemID = "" }, "item_id"},
		{"bad location", func(r *CountRecord) { r.LocationID = "A1" }, "location ID"},
		{"negative", func(r *CountRecord) { r.CountedQuantity = -1 }, "counted_quantity"},
		{"no writer", func(r *CountRecord) { r.LastWriterUserID = "" }, "last_writer_user_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := valid()
			tt.mutate(r)
			err := r.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	assert.Error(t, EventType("upsert").Validate())
	assert.NoError(t, EventDelete.Validate())
}
