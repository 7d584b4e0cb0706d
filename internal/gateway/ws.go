package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/dyluth/tally/internal/countindex"
	"github.com/dyluth/tally/internal/editor"
	"github.com/dyluth/tally/internal/identity"
	"github.com/dyluth/tally/internal/reconciler"
	"github.com/dyluth/tally/pkg/ledger"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

const (
	frameBuffer  = 64
	writeTimeout = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Command types sent by the browser.
const (
	CommandOpen      = "open"
	CommandUpdate    = "update"
	CommandFocus     = "focus"
	CommandLocation  = "location"
	CommandSave      = "save"
	CommandCancel    = "cancel"
	CommandReconnect = "reconnect"
)

// Frame types sent to the browser.
const (
	FrameState  = "state"
	FrameTotals = "totals"
	FrameSaved  = "saved"
	FrameError  = "error"
)

// Command is one message from the browser.
type Command struct {
	Type       string `json:"type"`
	ItemID     string `json:"item_id,omitempty"`
	Location   string `json:"location,omitempty"`
	Expression string `json:"expression,omitempty"`
	Focused    bool   `json:"focused,omitempty"`
}

// Frame is one message to the browser.
type Frame struct {
	Type   string              `json:"type"`
	State  *editor.State       `json:"state,omitempty"`
	Totals *countindex.Totals  `json:"totals,omitempty"`
	Record *ledger.CountRecord `json:"record,omitempty"`
	Error  *ErrorFrame         `json:"error,omitempty"`
}

// ErrorFrame reports a failed command.
type ErrorFrame struct {
	Command string `json:"command"`
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// conn is one browser tab: a socket, an editor and the session's reconciler.
type conn struct {
	ws     *websocket.Conn
	editor *editor.Editor
	recon  *reconciler.Reconciler
	logger *slog.Logger

	out  chan Frame
	done chan struct{}

	mu      sync.Mutex
	item    string
	version uint64
}

// handleWebSocket handles GET /ws/{session}?user=<id>.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session")
	id, err := identity.New(r.URL.Query().Get("user"))
	if err != nil {
		http.Error(w, "user query parameter is required", http.StatusBadRequest)
		return
	}

	recon, release, err := s.pool.acquire(r.Context(), sessionID)
	if err != nil {
		s.logger.Error("loading session failed", "session", sessionID, "error", err)
		http.Error(w, "failed to load session", http.StatusServiceUnavailable)
		return
	}
	defer release()

	opts := append([]editor.Option{
		editor.WithChannel(s.channel),
		editor.WithLogger(s.logger),
		editor.WithMetrics(s.metrics),
	}, s.editorOpts...)
	e, err := editor.New(id, recon, opts...)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer e.Close()

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &conn{
		ws:     ws,
		editor: e,
		recon:  recon,
		logger: s.logger.With("session", sessionID, "user", id.UserID, "client", id.ClientID),
		out:    make(chan Frame, frameBuffer),
		done:   make(chan struct{}),
	}
	c.logger.Info("websocket connected")

	stopState := e.OnChange(c.onState)
	stopTotals := recon.OnChange(c.onTotals)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writePump()
	}()

	c.readPump(r.Context(), sessionID)

	stopState()
	stopTotals()
	close(c.done)
	<-writerDone
	ws.Close()
	c.logger.Info("websocket disconnected")
}

func (c *conn) readPump(ctx context.Context, sessionID string) {
	for {
		var cmd Command
		if err := c.ws.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("websocket read failed", "error", err)
			}
			return
		}
		c.handle(ctx, sessionID, cmd)
	}
}

func (c *conn) handle(ctx context.Context, sessionID string, cmd Command) {
	var err error
	switch cmd.Type {
	case CommandOpen:
		err = c.editor.Open(ctx, sessionID, cmd.ItemID, cmd.Location)
		if err == nil || errors.Is(err, editor.ErrMirroringUnavailable) {
			c.pushTotals(cmd.ItemID)
		}

	case CommandUpdate:
		err = c.editor.UpdateExpression(ctx, cmd.Expression)

	case CommandFocus:
		c.editor.SetFocus(cmd.Focused)

	case CommandLocation:
		err = c.editor.SetLocation(ctx, cmd.Location)

	case CommandSave:
		// Saves run beside the read loop so the tab can keep typing or cancel.
		go func() {
			rec, err := c.editor.Save(ctx)
			if err != nil {
				c.send(Frame{Type: FrameError, Error: toErrorFrame(CommandSave, err)})
				return
			}
			c.send(Frame{Type: FrameSaved, Record: rec})
		}()

	case CommandCancel:
		err = c.editor.Cancel()

	case CommandReconnect:
		err = c.editor.Reconnect(ctx)

	default:
		c.send(Frame{Type: FrameError, Error: &ErrorFrame{
			Command: cmd.Type,
			Code:    "unknown_command",
			Message: "unknown command type",
		}})
		return
	}

	if err != nil {
		c.send(Frame{Type: FrameError, Error: toErrorFrame(cmd.Type, err)})
	}
}

// onState queues s unless a newer snapshot was already queued.
func (c *conn) onState(s editor.State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s.Version <= c.version {
		return
	}
	c.version = s.Version
	c.item = s.Triple.ItemID

	c.send(Frame{Type: FrameState, State: &s})
}

func (c *conn) onTotals(itemID string) {
	c.mu.Lock()
	current := c.item
	c.mu.Unlock()

	if itemID == current {
		c.pushTotals(itemID)
	}
}

func (c *conn) pushTotals(itemID string) {
	if itemID == "" {
		return
	}
	t := c.recon.Totals(itemID)
	c.send(Frame{Type: FrameTotals, Totals: &t})
}

// send queues f without blocking. A full queue drops the frame; the next
// state or totals frame supersedes it.
func (c *conn) send(f Frame) {
	select {
	case <-c.done:
	case c.out <- f:
	default:
		c.logger.Warn("dropping frame for slow client", "type", f.Type)
	}
}

func (c *conn) writePump() {
	for {
		select {
		case <-c.done:
			return
		case f := <-c.out:
			c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.ws.WriteJSON(f); err != nil {
				c.logger.Debug("websocket write failed", "error", err)
				c.ws.Close()
				return
			}
		}
	}
}

func toErrorFrame(command string, err error) *ErrorFrame {
	f := &ErrorFrame{Command: command, Code: "internal", Message: err.Error()}

	var v *editor.ValidationError
	switch {
	case errors.As(err, &v):
		f.Code = "validation"
		f.Field = v.Field
		f.Message = v.Message
	case errors.Is(err, editor.ErrExpressionInvalid):
		f.Code = "expression_invalid"
	case errors.Is(err, editor.ErrSaveTimeout):
		f.Code = "save_timeout"
	case errors.Is(err, editor.ErrSaveInProgress):
		f.Code = "save_in_progress"
	case errors.Is(err, editor.ErrStaleEditor):
		f.Code = "stale"
	case errors.Is(err, editor.ErrMirroringUnavailable):
		f.Code = "mirroring_unavailable"
	case errors.Is(err, editor.ErrNotOpen):
		f.Code = "not_open"
	}
	return f
}
