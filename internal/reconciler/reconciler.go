// Package reconciler keeps a session's CountIndex consistent with the durable
// store. It merges two sources: acknowledged local writes, applied immediately,
// and the store's change feed, which may deliver events late, twice or out of order.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dyluth/tally/internal/countindex"
	"github.com/dyluth/tally/internal/logging"
	"github.com/dyluth/tally/internal/metrics"
	"github.com/dyluth/tally/pkg/ledger"
	"github.com/google/uuid"
)

var (
	// ErrLocationNotFound is returned when a save names a location that does not exist.
	ErrLocationNotFound = errors.New("location not found")

	// ErrLocationInactive is returned when a save names a soft-deleted location.
	ErrLocationInactive = errors.New("location is inactive")

	// ErrNotStarted is returned by Close before Start.
	ErrNotStarted = errors.New("reconciler not started")
)

// DefaultResubscribeInterval is the wait between attempts to restore a lost change feed.
const DefaultResubscribeInterval = time.Second

// Store is the subset of the ledger the reconciler needs.
type Store interface {
	ListLocations(ctx context.Context) ([]*ledger.Location, error)
	GetLocation(ctx context.Context, locationID string) (*ledger.Location, error)
	FindLocationByName(ctx context.Context, name string) (*ledger.Location, error)
	ListCounts(ctx context.Context, sessionID string) ([]*ledger.CountRecord, error)
	CreateCount(ctx context.Context, r *ledger.CountRecord) error
	UpdateCount(ctx context.Context, recordID string, u ledger.CountUpdate) (*ledger.CountRecord, error)
	SubscribeCountEvents(ctx context.Context, sessionID string) (*ledger.Subscription, error)
}

// Reconciler owns the CountIndex of one session.
type Reconciler struct {
	store     Store
	sessionID string
	index     *countindex.Index
	logger    *slog.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
	retry     time.Duration

	mu         sync.Mutex
	locations  map[string]*ledger.Location
	revisions  map[string]int64
	tombstones map[string]struct{}
	listeners  map[int]func(itemID string)
	nextID     int

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Reconciler) { r.logger = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Reconciler) { r.metrics = m }
}

// WithClock replaces time.Now for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

// WithResubscribeInterval overrides DefaultResubscribeInterval.
func WithResubscribeInterval(d time.Duration) Option {
	return func(r *Reconciler) {
		if d > 0 {
			r.retry = d
		}
	}
}

// New creates a reconciler for one session. Call Start to load and follow the feed.
func New(store Store, sessionID string, opts ...Option) (*Reconciler, error) {
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if sessionID == "" {
		return nil, fmt.Errorf("session ID cannot be empty")
	}

	r := &Reconciler{
		store:      store,
		sessionID:  sessionID,
		index:      countindex.New(),
		logger:     logging.NewNop(),
		now:        time.Now,
		retry:      DefaultResubscribeInterval,
		locations:  make(map[string]*ledger.Location),
		revisions:  make(map[string]int64),
		tombstones: make(map[string]struct{}),
		listeners:  make(map[int]func(string)),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("session", sessionID)
	return r, nil
}

// SessionID returns the session this reconciler follows.
func (r *Reconciler) SessionID() string {
	return r.sessionID
}

// Index exposes the reconciled view. Callers must not mutate it.
func (r *Reconciler) Index() *countindex.Index {
	return r.index
}

// Start subscribes to the change feed, performs the initial full fetch and then
// applies events in the background until ctx is cancelled or Close is called.
// Subscribing first means no write that lands during the fetch is missed.
func (r *Reconciler) Start(ctx context.Context) error {
	r.runMu.Lock()
	defer r.runMu.Unlock()

	if r.cancel != nil {
		return fmt.Errorf("reconciler already started")
	}

	sub, err := r.store.SubscribeCountEvents(ctx, r.sessionID)
	if err != nil {
		return err
	}
	if err := r.Load(ctx); err != nil {
		sub.Close()
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	go r.run(runCtx, sub)

	r.logger.Debug("reconciler started", "items", len(r.index.Items()))
	return nil
}

// Close stops the background loop and waits for it to exit.
func (r *Reconciler) Close() error {
	r.runMu.Lock()
	defer r.runMu.Unlock()

	if r.cancel == nil {
		return ErrNotStarted
	}
	r.cancel()
	<-r.done
	r.cancel = nil
	return nil
}

// Load replaces the index with a full fetch of locations and the session's counts.
func (r *Reconciler) Load(ctx context.Context) error {
	locations, err := r.store.ListLocations(ctx)
	if err != nil {
		return fmt.Errorf("failed to load locations: %w", err)
	}
	records, err := r.store.ListCounts(ctx, r.sessionID)
	if err != nil {
		return fmt.Errorf("failed to load counts: %w", err)
	}

	r.mu.Lock()
	for _, l := range locations {
		r.locations[l.ID] = l
	}
	r.mu.Unlock()

	entries := make([]countindex.Entry, 0, len(records))
	revisions := make(map[string]int64, len(records))
	for _, rec := range records {
		entries = append(entries, countindex.Entry{
			CountRecord: *rec,
			Location:    r.locationName(ctx, rec.LocationID),
		})
		revisions[rec.ID] = rec.Revision
	}

	r.mu.Lock()
	r.revisions = revisions
	r.index.Replace(entries)
	r.mu.Unlock()

	r.notifyAll()
	return nil
}

// Apply folds one change event into the index. Returns true when the index changed.
//
// Events for other sessions are ignored. An event older than the revision
// already held for its record is skipped, and a deleted record is never
// brought back by a late insert or update.
func (r *Reconciler) Apply(ctx context.Context, ev *ledger.ChangeEvent) bool {
	rec := ev.Record()
	if rec == nil || rec.SessionID != r.sessionID {
		return false
	}

	changed := r.apply(ctx, ev, rec)
	r.metrics.ChangeEvent(string(ev.Type), changed)
	if changed {
		r.notify(rec.ItemID)
		if ev.Before != nil && ev.After != nil && ev.Before.ItemID != ev.After.ItemID {
			r.notify(ev.Before.ItemID)
		}
	}
	return changed
}

func (r *Reconciler) apply(ctx context.Context, ev *ledger.ChangeEvent, rec *ledger.CountRecord) bool {
	if ev.Type == ledger.EventDelete {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.tombstones[rec.ID] = struct{}{}
		delete(r.revisions, rec.ID)
		return r.index.Remove(rec.ID)
	}

	// Resolve outside the lock, it may hit the store
	name := r.locationName(ctx, rec.LocationID)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, gone := r.tombstones[rec.ID]; gone {
		return false
	}
	if known, ok := r.revisions[rec.ID]; ok && known >= rec.Revision {
		return false
	}

	entry := countindex.Entry{CountRecord: *rec, Location: name}
	r.revisions[rec.ID] = rec.Revision
	switch ev.Type {
	case ledger.EventInsert:
		if !r.index.Insert(entry) {
			r.index.Upsert(entry)
		}
	default:
		r.index.Upsert(entry)
	}
	return true
}

// Find is the read-before-write lookup: the current record for an item at a named location.
func (r *Reconciler) Find(itemID, location string) (countindex.Entry, bool) {
	return r.index.Find(itemID, location)
}

// Save writes a count for a triple. It updates the record already known for the
// slot, otherwise creates one. The acknowledged record is applied to the index
// before returning.
func (r *Reconciler) Save(ctx context.Context, itemID, location string, quantity int64, expression, userID string) (*ledger.CountRecord, error) {
	if existing, ok := r.Find(itemID, location); ok {
		rec, err := r.Update(ctx, existing.ID, quantity, expression, userID)
		if err == nil || !ledger.IsNotFound(err) {
			return rec, err
		}
		// Deleted behind our back; fall through to create
		r.logger.Info("record vanished before update, creating", "record", existing.ID)
	}
	return r.Create(ctx, itemID, location, quantity, expression, userID)
}

// Create inserts a new record. Only active locations are accepted. If the store
// reports the slot is already taken, the existing record is updated instead.
func (r *Reconciler) Create(ctx context.Context, itemID, location string, quantity int64, expression, userID string) (*ledger.CountRecord, error) {
	loc, err := r.store.FindLocationByName(ctx, location)
	if err != nil {
		if ledger.IsNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrLocationNotFound, location)
		}
		return nil, fmt.Errorf("failed to resolve location: %w", err)
	}
	if !loc.IsActive {
		return nil, fmt.Errorf("%w: %s", ErrLocationInactive, location)
	}

	r.mu.Lock()
	r.locations[loc.ID] = loc
	r.mu.Unlock()

	nowMs := r.now().UnixMilli()
	rec := &ledger.CountRecord{
		ID:                uuid.New().String(),
		SessionID:         r.sessionID,
		ItemID:            itemID,
		LocationID:        loc.ID,
		CountedQuantity:   quantity,
		CountedExpression: expression,
		LastWriterUserID:  userID,
		Revision:          1,
		CreatedAtMs:       nowMs,
		UpdatedAtMs:       nowMs,
	}

	if err := r.store.CreateCount(ctx, rec); err != nil {
		var dup *ledger.DuplicateCountError
		if errors.As(err, &dup) {
			r.logger.Info("slot already counted, updating existing record", "item", itemID, "location", location, "record", dup.ExistingID)
			return r.Update(ctx, dup.ExistingID, quantity, expression, userID)
		}
		return nil, err
	}

	r.applyLocal(rec, loc.Name)
	return rec, nil
}

// Update writes new values to an existing record. Returns an error satisfying
// ledger.IsNotFound when the record no longer exists.
func (r *Reconciler) Update(ctx context.Context, recordID string, quantity int64, expression, userID string) (*ledger.CountRecord, error) {
	rec, err := r.store.UpdateCount(ctx, recordID, ledger.CountUpdate{
		CountedQuantity:   quantity,
		CountedExpression: expression,
		LastWriterUserID:  userID,
		UpdatedAtMs:       r.now().UnixMilli(),
	})
	if rec == nil {
		return nil, err
	}
	// A publish failure still leaves the write committed
	if err != nil {
		r.logger.Warn("change event not published", "record", recordID, "error", err)
	}

	r.applyLocal(rec, r.locationName(ctx, rec.LocationID))
	return rec, nil
}

// applyLocal applies an acknowledged write ahead of its change event.
func (r *Reconciler) applyLocal(rec *ledger.CountRecord, location string) {
	r.mu.Lock()
	if known, ok := r.revisions[rec.ID]; ok && known >= rec.Revision {
		r.mu.Unlock()
		return
	}
	delete(r.tombstones, rec.ID)
	r.revisions[rec.ID] = rec.Revision
	r.index.Upsert(countindex.Entry{CountRecord: *rec, Location: location})
	r.mu.Unlock()

	r.notify(rec.ItemID)
}

// Totals returns the aggregate view of one item.
func (r *Reconciler) Totals(itemID string) countindex.Totals {
	return r.index.Aggregate(itemID)
}

// AllTotals returns the aggregate view of every counted item.
func (r *Reconciler) AllTotals() []countindex.Totals {
	return r.index.All()
}

// OnChange registers fn to be called with the item ID after every index
// mutation. The returned function unregisters it. fn runs on the goroutine
// that changed the index and must not block.
func (r *Reconciler) OnChange(fn func(itemID string)) func() {
	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.listeners[id] = fn
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		delete(r.listeners, id)
		r.mu.Unlock()
	}
}

func (r *Reconciler) notify(itemID string) {
	r.mu.Lock()
	fns := make([]func(string), 0, len(r.listeners))
	for _, fn := range r.listeners {
		fns = append(fns, fn)
	}
	r.mu.Unlock()

	for _, fn := range fns {
		fn(itemID)
	}
}

func (r *Reconciler) notifyAll() {
	for _, item := range r.index.Items() {
		r.notify(item)
	}
}

// locationName resolves a location ID, falling back to the ID itself when the
// location cannot be read.
func (r *Reconciler) locationName(ctx context.Context, locationID string) string {
	r.mu.Lock()
	loc, ok := r.locations[locationID]
	r.mu.Unlock()
	if ok {
		return loc.Name
	}

	loc, err := r.store.GetLocation(ctx, locationID)
	if err != nil {
		r.logger.Warn("failed to resolve location", "location_id", locationID, "error", err)
		return locationID
	}

	r.mu.Lock()
	r.locations[locationID] = loc
	r.mu.Unlock()
	return loc.Name
}
