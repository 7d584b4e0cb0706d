// Package editor holds the local edit state of one client: the expression
// being typed for a (session, item, location) triple, its live evaluation,
// mirroring to peers on the collaboration channel and the save path.
//
// An Editor has at most one open session at a time. Opening another triple
// closes the current one.
package editor

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/dyluth/tally/internal/countindex"
	"github.com/dyluth/tally/internal/identity"
	"github.com/dyluth/tally/internal/logging"
	"github.com/dyluth/tally/internal/metrics"
	"github.com/dyluth/tally/pkg/collab"
	"github.com/dyluth/tally/pkg/expr"
	"github.com/dyluth/tally/pkg/ledger"
)

const (
	// DefaultTypingGrace is how long after a local keystroke incoming
	// broadcasts are dropped while the input has focus.
	DefaultTypingGrace = 250 * time.Millisecond

	// DefaultSaveTimeout bounds how long a save may stay unacknowledged.
	DefaultSaveTimeout = 10 * time.Second
)

// Counts is the reconciled view a session reads from and saves through.
type Counts interface {
	Find(itemID, location string) (countindex.Entry, bool)
	Save(ctx context.Context, itemID, location string, quantity int64, expression, userID string) (*ledger.CountRecord, error)
}

// Channel joins collaboration topics.
type Channel interface {
	Join(ctx context.Context, topic collab.Topic, p collab.Presence) (*collab.Membership, error)
	Peers(ctx context.Context, topic collab.Topic) ([]collab.Presence, error)
}

// Editor is the edit state of one client. It is safe for concurrent use.
type Editor struct {
	id          identity.Identity
	counts      Counts
	channel     Channel
	logger      *slog.Logger
	metrics     *metrics.Metrics
	now         func() time.Time
	grace       time.Duration
	saveTimeout time.Duration
	peerTTL     time.Duration

	mu         sync.Mutex
	open       bool
	generation uint64
	triple     Triple
	mode       Mode
	recordID   string
	expression string
	result     expr.Result
	focused    bool
	saving     bool
	dirtySince int64

	// lastKeyMs is the wall-clock time of the last local keystroke.
	lastKeyMs int64
	// lastLocalTs and lastRemoteTs are broadcast timestamps.
	lastLocalTs  int64
	lastRemoteTs int64

	membership *collab.Membership
	peers      map[string]collab.Presence

	listeners map[int]func(State)
	nextID    int
	version   uint64

	// notifyMu orders snapshots with their delivery.
	notifyMu sync.Mutex
}

// Option configures an Editor.
type Option func(*Editor)

// WithChannel enables live mirroring. Without it the editor works locally only.
func WithChannel(c Channel) Option {
	return func(e *Editor) { e.channel = c }
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Editor) { e.logger = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Editor) { e.metrics = m }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Editor) { e.now = now }
}

// WithTypingGrace overrides DefaultTypingGrace.
func WithTypingGrace(d time.Duration) Option {
	return func(e *Editor) {
		if d >= 0 {
			e.grace = d
		}
	}
}

// WithSaveTimeout overrides DefaultSaveTimeout.
func WithSaveTimeout(d time.Duration) Option {
	return func(e *Editor) {
		if d > 0 {
			e.saveTimeout = d
		}
	}
}

// WithPeerTTL sets how long a peer stays listed without re-announcing.
func WithPeerTTL(d time.Duration) Option {
	return func(e *Editor) {
		if d > 0 {
			e.peerTTL = d
		}
	}
}

// New creates an editor for one client.
func New(id identity.Identity, counts Counts, opts ...Option) (*Editor, error) {
	if err := id.Validate(); err != nil {
		return nil, fmt.Errorf("invalid identity: %w", err)
	}
	if counts == nil {
		return nil, fmt.Errorf("counts cannot be nil")
	}

	e := &Editor{
		id:          id,
		counts:      counts,
		logger:      logging.NewNop(),
		now:         time.Now,
		grace:       DefaultTypingGrace,
		saveTimeout: DefaultSaveTimeout,
		peerTTL:     collab.DefaultPresenceTTL,
		peers:       make(map[string]collab.Presence),
		listeners:   make(map[int]func(State)),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("user", id.UserID, "client", id.ClientID)
	return e, nil
}

// Identity returns the client identity the editor publishes and saves as.
func (e *Editor) Identity() identity.Identity {
	return e.id
}

// Open starts an edit session for a triple, closing any open one. An existing
// record for the triple puts the editor in edit mode with its expression
// prefilled and ready for the next term. Location may be empty and chosen
// later with SetLocation.
//
// When the collaboration topic cannot be joined the session is still open and
// the returned error wraps ErrMirroringUnavailable.
func (e *Editor) Open(ctx context.Context, sessionID, itemID, location string) error {
	if sessionID == "" {
		return &ValidationError{Field: "session_id", Message: "session is required"}
	}
	if itemID == "" {
		return &ValidationError{Field: "item_id", Message: "item is required"}
	}

	e.mu.Lock()
	old := e.resetLocked()
	e.open = true
	e.triple = Triple{SessionID: sessionID, ItemID: itemID, Location: location}
	e.loadSlotLocked()
	gen := e.generation
	e.mu.Unlock()

	closeMembership(old, e.logger)

	err := e.join(ctx, gen)
	e.notify()
	return err
}

// SetLocation switches the open session to another location of the same item.
// The slot lookup runs again, so the mode and prefilled expression follow the
// new location. The collaboration topic is kept.
func (e *Editor) SetLocation(ctx context.Context, location string) error {
	e.mu.Lock()
	if !e.open {
		e.mu.Unlock()
		return ErrNotOpen
	}
	if e.saving {
		e.mu.Unlock()
		return ErrSaveInProgress
	}
	if e.triple.Location == location {
		e.mu.Unlock()
		return nil
	}

	e.triple.Location = location
	e.loadSlotLocked()
	m := e.membership
	p := e.presenceLocked()
	e.mu.Unlock()

	if m != nil {
		if err := m.Announce(ctx, p); err != nil {
			e.logger.Warn("presence announce failed", "error", err)
		}
	}
	e.notify()
	return nil
}

// UpdateExpression records a local keystroke: the text is evaluated, stored
// and published to peers. A failed publish is logged and otherwise ignored.
func (e *Editor) UpdateExpression(ctx context.Context, text string) error {
	e.mu.Lock()
	if !e.open {
		e.mu.Unlock()
		return ErrNotOpen
	}

	nowMs := e.now().UnixMilli()
	e.expression = text
	e.result = expr.Evaluate(text)
	e.lastKeyMs = nowMs
	if e.dirtySince == 0 {
		e.dirtySince = nowMs
	}

	ts := nowMs
	if ts <= e.lastLocalTs {
		ts = e.lastLocalTs + 1
	}
	if ts <= e.lastRemoteTs {
		ts = e.lastRemoteTs + 1
	}
	e.lastLocalTs = ts

	m := e.membership
	b := collab.EditBroadcast{
		SessionID:      e.triple.SessionID,
		ItemID:         e.triple.ItemID,
		Location:       e.triple.Location,
		Expression:     text,
		SenderClientID: e.id.ClientID,
		SenderUserID:   e.id.UserID,
		TimestampMs:    ts,
	}
	e.mu.Unlock()

	e.notify()

	if m != nil {
		if err := m.Publish(ctx, b); err != nil {
			e.logger.Warn("broadcast publish failed", "item", b.ItemID, "error", err)
		} else {
			e.metrics.BroadcastPublished()
		}
	}
	return nil
}

// SetFocus records whether the expression input has focus.
func (e *Editor) SetFocus(focused bool) {
	e.mu.Lock()
	e.focused = focused
	e.mu.Unlock()
}

// Cancel closes the open session without saving.
func (e *Editor) Cancel() error {
	e.mu.Lock()
	if !e.open {
		e.mu.Unlock()
		return ErrNotOpen
	}
	old := e.resetLocked()
	e.mu.Unlock()

	closeMembership(old, e.logger)
	e.notify()
	return nil
}

// Close ends any open session. Safe to call at any time.
func (e *Editor) Close() error {
	if err := e.Cancel(); err != nil && err != ErrNotOpen {
		return err
	}
	return nil
}

// Reconnect joins the collaboration topic of the open session if it is not
// joined already.
func (e *Editor) Reconnect(ctx context.Context) error {
	e.mu.Lock()
	if !e.open {
		e.mu.Unlock()
		return ErrNotOpen
	}
	if e.membership != nil {
		e.mu.Unlock()
		return nil
	}
	gen := e.generation
	e.mu.Unlock()

	err := e.join(ctx, gen)
	e.notify()
	return err
}

// State returns a snapshot of the editor.
func (e *Editor) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stateLocked()
}

// OnChange registers fn to receive a snapshot after every state change.
// The returned function unregisters it.
//
// Snapshots reach listeners one at a time in Version order, and the last one
// delivered reflects the latest change. fn may read State but must not change
// the editor synchronously.
func (e *Editor) OnChange(fn func(State)) func() {
	e.mu.Lock()
	id := e.nextID
	e.nextID++
	e.listeners[id] = fn
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		delete(e.listeners, id)
		e.mu.Unlock()
	}
}

func (e *Editor) notify() {
	e.notifyMu.Lock()
	defer e.notifyMu.Unlock()

	e.mu.Lock()
	e.version++
	s := e.stateLocked()
	fns := make([]func(State), 0, len(e.listeners))
	for _, fn := range e.listeners {
		fns = append(fns, fn)
	}
	e.mu.Unlock()

	for _, fn := range fns {
		fn(s)
	}
}

func (e *Editor) stateLocked() State {
	s := State{
		Version:      e.version,
		Open:         e.open,
		Triple:       e.triple,
		Mode:         e.mode,
		RecordID:     e.recordID,
		Expression:   e.expression,
		Result:       e.result,
		Error:        e.result.Err,
		Saving:       e.saving,
		DirtySinceMs: e.dirtySince,
		Mirroring:    e.membership != nil,
	}
	if !e.open {
		return s
	}

	body, committed := expr.Commit(e.expression)
	if committed.Err == nil {
		s.Quantity = committed.Value
	}
	s.CanSave = !e.saving && e.result.Err == nil && body != "" && e.triple.Location != ""

	cutoff := e.now().Add(-e.peerTTL).UnixMilli()
	for _, p := range e.peers {
		if p.Location == e.triple.Location && p.SeenAtMs >= cutoff {
			s.Peers = append(s.Peers, p)
		}
	}
	sort.Slice(s.Peers, func(i, j int) bool { return s.Peers[i].ClientID < s.Peers[j].ClientID })
	return s
}

// loadSlotLocked runs the read-before-write lookup for the current triple and
// repopulates the expression from the stored record.
func (e *Editor) loadSlotLocked() {
	e.mode = ModeCreate
	e.recordID = ""
	e.expression = ""
	e.dirtySince = 0

	if e.triple.Location != "" {
		if existing, ok := e.counts.Find(e.triple.ItemID, e.triple.Location); ok {
			e.mode = ModeEdit
			e.recordID = existing.ID
			e.expression = Prefill(existing.CountRecord)
		}
	}
	e.result = expr.Evaluate(e.expression)
}

// resetLocked ends the current session and returns its membership for the
// caller to close once the lock is released.
func (e *Editor) resetLocked() *collab.Membership {
	m := e.membership
	e.generation++
	e.open = false
	e.triple = Triple{}
	e.mode = ""
	e.recordID = ""
	e.expression = ""
	e.result = expr.Result{}
	e.saving = false
	e.dirtySince = 0
	e.lastKeyMs = 0
	e.lastRemoteTs = 0
	e.membership = nil
	e.peers = make(map[string]collab.Presence)
	return m
}

func (e *Editor) presenceLocked() collab.Presence {
	return collab.Presence{
		ClientID: e.id.ClientID,
		UserID:   e.id.UserID,
		Location: e.triple.Location,
	}
}

// Prefill returns the text an editor starts from for a stored record: its
// expression, or the quantity as a literal, followed by the continuation marker.
func Prefill(r ledger.CountRecord) string {
	if r.CountedExpression != "" {
		return expr.Continue(r.CountedExpression)
	}
	return expr.Continue(strconv.FormatInt(r.CountedQuantity, 10))
}

func closeMembership(m *collab.Membership, logger *slog.Logger) {
	if m == nil {
		return
	}
	if err := m.Close(); err != nil {
		logger.Warn("leaving collaboration topic failed", "topic", m.Topic().String(), "error", err)
	}
}
