package gateway

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dyluth/tally/internal/editor"
	"github.com/dyluth/tally/internal/logging"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dial(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	ws, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { ws.Close() })
	return ws
}

// readUntil reads frames until match returns true or two seconds pass.
func readUntil(t *testing.T, ws *websocket.Conn, match func(Frame) bool) Frame {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		require.NoError(t, ws.SetReadDeadline(deadline))
		var f Frame
		require.NoError(t, ws.ReadJSON(&f), "no matching frame before deadline")
		if match(f) {
			return f
		}
	}
}

func isType(typ string) func(Frame) bool {
	return func(f Frame) bool { return f.Type == typ }
}

func TestWebSocketRequiresUser(t *testing.T) {
	_, _, srv := setupServer(t)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/s1"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWebSocketCountFlow(t *testing.T) {
	env, s, srv := setupServer(t)
	env.AddLocation("A1", true)

	alice := dial(t, srv, "/ws/s1?user=alice")
	bob := dial(t, srv, "/ws/s1?user=bob")

	open := Command{Type: CommandOpen, ItemID: "SKU-1", Location: "A1"}
	require.NoError(t, alice.WriteJSON(open))
	readUntil(t, alice, func(f Frame) bool { return f.Type == FrameState && f.State.Open && f.State.Mirroring })

	require.NoError(t, bob.WriteJSON(open))
	readUntil(t, bob, func(f Frame) bool { return f.Type == FrameState && f.State.Open && f.State.Mirroring })
	totals := readUntil(t, bob, isType(FrameTotals))
	assert.False(t, totals.Totals.IsCounted)

	require.NoError(t, alice.WriteJSON(Command{Type: CommandUpdate, Expression: "20*5"}))

	mirrored := readUntil(t, bob, func(f Frame) bool {
		return f.Type == FrameState && f.State.Expression == "20*5"
	})
	assert.Equal(t, int64(100), mirrored.State.Result.Value)

	require.NoError(t, alice.WriteJSON(Command{Type: CommandSave}))
	saved := readUntil(t, alice, isType(FrameSaved))
	require.NotNil(t, saved.Record)
	assert.Equal(t, int64(100), saved.Record.CountedQuantity)
	assert.Equal(t, "alice", saved.Record.LastWriterUserID)

	updated := readUntil(t, bob, func(f Frame) bool {
		return f.Type == FrameTotals && f.Totals.TotalCounted == 100
	})
	assert.True(t, updated.Totals.IsCounted)

	t.Run("pool shares one reconciler per session", func(t *testing.T) {
		assert.Equal(t, 1, s.pool.active())
	})
}

func TestWebSocketErrors(t *testing.T) {
	env, _, srv := setupServer(t)
	env.AddLocation("A1", true)

	ws := dial(t, srv, "/ws/s1?user=alice")

	t.Run("unknown command", func(t *testing.T) {
		require.NoError(t, ws.WriteJSON(Command{Type: "explode"}))
		f := readUntil(t, ws, isType(FrameError))
		assert.Equal(t, "unknown_command", f.Error.Code)
	})

	t.Run("update before open", func(t *testing.T) {
		require.NoError(t, ws.WriteJSON(Command{Type: CommandUpdate, Expression: "1"}))
		f := readUntil(t, ws, isType(FrameError))
		assert.Equal(t, "not_open", f.Error.Code)
	})

	t.Run("save rejected while expression is invalid", func(t *testing.T) {
		require.NoError(t, ws.WriteJSON(Command{Type: CommandOpen, ItemID: "SKU-1", Location: "A1"}))
		require.NoError(t, ws.WriteJSON(Command{Type: CommandUpdate, Expression: "5**"}))
		state := readUntil(t, ws, func(f Frame) bool {
			return f.Type == FrameState && f.State.Expression == "5**"
		})
		assert.NotNil(t, state.State.Result.Err)
		assert.False(t, state.State.CanSave)

		require.NoError(t, ws.WriteJSON(Command{Type: CommandSave}))
		f := readUntil(t, ws, isType(FrameError))
		assert.Equal(t, CommandSave, f.Error.Command)
		assert.Equal(t, "expression_invalid", f.Error.Code)
	})

	t.Run("open without item", func(t *testing.T) {
		require.NoError(t, ws.WriteJSON(Command{Type: CommandOpen}))
		f := readUntil(t, ws, isType(FrameError))
		assert.Equal(t, "validation", f.Error.Code)
		assert.Equal(t, "item_id", f.Error.Field)
	})
}

func TestToErrorFrame(t *testing.T) {
	f := toErrorFrame(CommandSave, &editor.ValidationError{Field: "location", Message: "location is inactive"})
	assert.Equal(t, "validation", f.Code)
	assert.Equal(t, "location", f.Field)
	assert.Equal(t, "location is inactive", f.Message)

	assert.Equal(t, "save_timeout", toErrorFrame(CommandSave, editor.ErrSaveTimeout).Code)
	assert.Equal(t, "stale", toErrorFrame(CommandSave, editor.ErrStaleEditor).Code)
	assert.Equal(t, "internal", toErrorFrame(CommandSave, assert.AnError).Code)
}

func TestOnStateDropsOlderSnapshots(t *testing.T) {
	c := &conn{
		logger: logging.NewNop(),
		out:    make(chan Frame, frameBuffer),
		done:   make(chan struct{}),
	}

	c.onState(editor.State{Version: 2, Expression: "99", Triple: editor.Triple{ItemID: "SKU-1"}})
	c.onState(editor.State{Version: 1, Expression: "12", Triple: editor.Triple{ItemID: "SKU-2"}})
	c.onState(editor.State{Version: 2, Expression: "99"})

	require.Len(t, c.out, 1)
	f := <-c.out
	assert.Equal(t, "99", f.State.Expression)
	assert.Equal(t, "SKU-1", c.item, "an older snapshot does not move the tracked item")
}
