package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrDuplicateCount is returned when a slot already holds a different record.
	// The concrete error is a *DuplicateCountError carrying the existing record ID.
	ErrDuplicateCount = errors.New("count record already exists for slot")

	// ErrDuplicateLocation is returned when a location name is already taken.
	ErrDuplicateLocation = errors.New("location name already exists")
)

// DuplicateCountError reports the record that already occupies a slot.
type DuplicateCountError struct {
	ExistingID string
}

func (e *DuplicateCountError) Error() string {
	return fmt.Sprintf("%s: %s", ErrDuplicateCount, e.ExistingID)
}

// Is lets errors.Is(err, ErrDuplicateCount) match.
func (e *DuplicateCountError) Is(target error) bool {
	return target == ErrDuplicateCount
}

// updateScript applies a save to an existing record and bumps its revision in
// one step so concurrent writers cannot interleave field writes. Returns nil
// when the record is absent, otherwise {before, after} as flat HGETALL replies.
var updateScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
	return false
end
local before = redis.call("HGETALL", KEYS[1])
redis.call("HSET", KEYS[1],
	"counted_quantity", ARGV[1],
	"counted_expression", ARGV[2],
	"last_writer_user_id", ARGV[3],
	"updated_at_ms", ARGV[4])
redis.call("HINCRBY", KEYS[1], "revision", 1)
local after = redis.call("HGETALL", KEYS[1])
return {before, after}
`)

// Client provides namespace-scoped Redis operations for count records and locations.
// Every count write publishes a ChangeEvent on the session's count_events channel.
// The client is thread-safe and can be used concurrently from multiple goroutines.
type Client struct {
	rdb       *redis.Client
	namespace string
}

// NewClient creates a new ledger client for the specified namespace.
//
// Parameters:
//   - redisOpts: Redis connection options (address, password, DB, etc.)
//   - namespace: deployment identifier (must not be empty)
//
// Returns an error if namespace is empty.
func NewClient(redisOpts *redis.Options, namespace string) (*Client, error) {
	if namespace == "" {
		return nil, fmt.Errorf("namespace cannot be empty")
	}

	return &Client{
		rdb:       redis.NewClient(redisOpts),
		namespace: namespace,
	}, nil
}

// Close closes the Redis connection. Implements io.Closer.
// After calling Close(), the client should not be used.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping verifies Redis connectivity. Useful for health checks.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Namespace returns the namespace all keys are scoped to.
func (c *Client) Namespace() string {
	return c.namespace
}

// RedisClient exposes the underlying connection so the collaboration channel
// can share it.
func (c *Client) RedisClient() *redis.Client {
	return c.rdb
}

// CreateCount writes a new count record and publishes an insert event.
//
// The (session, item, location) slot is claimed with HSETNX before the record is
// written, so a second record for the same slot is rejected with a
// *DuplicateCountError. Writing the same record ID twice is safe.
// Revision and timestamps are filled in when zero.
func (c *Client) CreateCount(ctx context.Context, r *CountRecord) error {
	if r.Revision == 0 {
		r.Revision = 1
	}
	if r.CreatedAtMs == 0 {
		r.CreatedAtMs = time.Now().UnixMilli()
	}
	if r.UpdatedAtMs == 0 {
		r.UpdatedAtMs = r.CreatedAtMs
	}

	if err := r.Validate(); err != nil {
		return fmt.Errorf("invalid count record: %w", err)
	}

	// Claim the slot
	slotKey := SlotIndexKey(c.namespace, r.SessionID)
	field := SlotField(r.ItemID, r.LocationID)
	claimed, err := c.rdb.HSetNX(ctx, slotKey, field, r.ID).Result()
	if err != nil {
		return fmt.Errorf("failed to claim count slot: %w", err)
	}
	if !claimed {
		existing, err := c.rdb.HGet(ctx, slotKey, field).Result()
		if err != nil {
			return fmt.Errorf("failed to read count slot: %w", err)
		}
		if existing != r.ID {
			return &DuplicateCountError{ExistingID: existing}
		}
	}

	// Write record and session membership together
	pipe := c.rdb.TxPipeline()
	pipe.HSet(ctx, CountKey(c.namespace, r.ID), CountToHash(r))
	pipe.SAdd(ctx, SessionCountsKey(c.namespace, r.SessionID), r.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		if claimed {
			c.rdb.HDel(ctx, slotKey, field)
		}
		return fmt.Errorf("failed to write count record to Redis: %w", err)
	}

	return c.publish(ctx, r.SessionID, &ChangeEvent{Type: EventInsert, After: r})
}

// GetCount retrieves a count record by ID.
// Returns (nil, redis.Nil) if the record doesn't exist.
// Use IsNotFound() to check for not-found errors.
func (c *Client) GetCount(ctx context.Context, recordID string) (*CountRecord, error) {
	hashData, err := c.rdb.HGetAll(ctx, CountKey(c.namespace, recordID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read count record from Redis: %w", err)
	}

	// HGetAll returns an empty map for non-existent keys
	if len(hashData) == 0 {
		return nil, redis.Nil
	}

	record, err := HashToCount(hashData)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize count record: %w", err)
	}

	return record, nil
}

// UpdateCount applies a save to an existing record and publishes an update event
// carrying both images. Concurrent updates are applied in commit order and the
// last one wins. Returns (nil, redis.Nil) if the record doesn't exist.
func (c *Client) UpdateCount(ctx context.Context, recordID string, u CountUpdate) (*CountRecord, error) {
	if u.UpdatedAtMs == 0 {
		u.UpdatedAtMs = time.Now().UnixMilli()
	}
	if err := u.Validate(); err != nil {
		return nil, fmt.Errorf("invalid count update: %w", err)
	}

	reply, err := updateScript.Run(ctx, c.rdb,
		[]string{CountKey(c.namespace, recordID)},
		strconv.FormatInt(u.CountedQuantity, 10),
		u.CountedExpression,
		u.LastWriterUserID,
		strconv.FormatInt(u.UpdatedAtMs, 10),
	).Slice()
	if err != nil {
		if IsNotFound(err) {
			return nil, redis.Nil
		}
		return nil, fmt.Errorf("failed to update count record in Redis: %w", err)
	}
	if len(reply) != 2 {
		return nil, fmt.Errorf("unexpected update reply length: %d", len(reply))
	}

	before, err := replyToCount(reply[0])
	if err != nil {
		return nil, fmt.Errorf("failed to decode previous record: %w", err)
	}
	after, err := replyToCount(reply[1])
	if err != nil {
		return nil, fmt.Errorf("failed to decode updated record: %w", err)
	}

	if err := c.publish(ctx, after.SessionID, &ChangeEvent{Type: EventUpdate, Before: before, After: after}); err != nil {
		return after, err
	}
	return after, nil
}

// DeleteCount removes a record, frees its slot and publishes a delete event.
// Returns redis.Nil if the record doesn't exist.
func (c *Client) DeleteCount(ctx context.Context, recordID string) error {
	record, err := c.GetCount(ctx, recordID)
	if err != nil {
		return err
	}

	pipe := c.rdb.TxPipeline()
	pipe.Del(ctx, CountKey(c.namespace, recordID))
	pipe.SRem(ctx, SessionCountsKey(c.namespace, record.SessionID), recordID)
	pipe.HDel(ctx, SlotIndexKey(c.namespace, record.SessionID), SlotField(record.ItemID, record.LocationID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete count record: %w", err)
	}

	return c.publish(ctx, record.SessionID, &ChangeEvent{Type: EventDelete, Before: record})
}

// ListCounts returns every record of a session ordered by creation time.
// Set members whose record has vanished are skipped.
func (c *Client) ListCounts(ctx context.Context, sessionID string) ([]*CountRecord, error) {
	ids, err := c.rdb.SMembers(ctx, SessionCountsKey(c.namespace, sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list session counts: %w", err)
	}
	if len(ids) == 0 {
		return []*CountRecord{}, nil
	}

	pipe := c.rdb.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, CountKey(c.namespace, id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to read session counts: %w", err)
	}

	records := make([]*CountRecord, 0, len(ids))
	for _, cmd := range cmds {
		hash := cmd.Val()
		if len(hash) == 0 {
			continue
		}
		record, err := HashToCount(hash)
		if err != nil {
			return nil, fmt.Errorf("failed to deserialize count record: %w", err)
		}
		records = append(records, record)
	}

	sort.Slice(records, func(i, j int) bool {
		if records[i].CreatedAtMs != records[j].CreatedAtMs {
			return records[i].CreatedAtMs < records[j].CreatedAtMs
		}
		return records[i].ID < records[j].ID
	})

	return records, nil
}

// CreateLocation registers a location. Names are unique across the namespace.
func (c *Client) CreateLocation(ctx context.Context, l *Location) error {
	if err := l.Validate(); err != nil {
		return fmt.Errorf("invalid location: %w", err)
	}

	claimed, err := c.rdb.HSetNX(ctx, LocationByNameKey(c.namespace), l.Name, l.ID).Result()
	if err != nil {
		return fmt.Errorf("failed to claim location name: %w", err)
	}
	if !claimed {
		existing, err := c.rdb.HGet(ctx, LocationByNameKey(c.namespace), l.Name).Result()
		if err != nil {
			return fmt.Errorf("failed to read location name index: %w", err)
		}
		if existing != l.ID {
			return fmt.Errorf("%w: %s", ErrDuplicateLocation, l.Name)
		}
	}

	pipe := c.rdb.TxPipeline()
	pipe.HSet(ctx, LocationKey(c.namespace, l.ID), LocationToHash(l))
	pipe.SAdd(ctx, LocationsKey(c.namespace), l.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to write location to Redis: %w", err)
	}

	return nil
}

// GetLocation retrieves a location by ID.
// Returns (nil, redis.Nil) if the location doesn't exist.
func (c *Client) GetLocation(ctx context.Context, locationID string) (*Location, error) {
	hashData, err := c.rdb.HGetAll(ctx, LocationKey(c.namespace, locationID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read location from Redis: %w", err)
	}

	if len(hashData) == 0 {
		return nil, redis.Nil
	}

	location, err := HashToLocation(hashData)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize location: %w", err)
	}

	return location, nil
}

// FindLocationByName resolves a location name.
// Returns (nil, redis.Nil) if no location has that name.
func (c *Client) FindLocationByName(ctx context.Context, name string) (*Location, error) {
	id, err := c.rdb.HGet(ctx, LocationByNameKey(c.namespace), name).Result()
	if err != nil {
		if IsNotFound(err) {
			return nil, redis.Nil
		}
		return nil, fmt.Errorf("failed to read location name index: %w", err)
	}

	return c.GetLocation(ctx, id)
}

// ListLocations returns every location ordered by name.
func (c *Client) ListLocations(ctx context.Context) ([]*Location, error) {
	ids, err := c.rdb.SMembers(ctx, LocationsKey(c.namespace)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list locations: %w", err)
	}

	locations := make([]*Location, 0, len(ids))
	for _, id := range ids {
		location, err := c.GetLocation(ctx, id)
		if err != nil {
			if IsNotFound(err) {
				continue
			}
			return nil, err
		}
		locations = append(locations, location)
	}

	sort.Slice(locations, func(i, j int) bool {
		return locations[i].Name < locations[j].Name
	})

	return locations, nil
}

// SetLocationActive flips the soft-delete flag of a location.
// Returns redis.Nil if the location doesn't exist.
func (c *Client) SetLocationActive(ctx context.Context, locationID string, active bool) error {
	key := LocationKey(c.namespace, locationID)
	exists, err := c.rdb.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("failed to check location existence: %w", err)
	}
	if exists == 0 {
		return redis.Nil
	}

	if err := c.rdb.HSet(ctx, key, "is_active", strconv.FormatBool(active)).Err(); err != nil {
		return fmt.Errorf("failed to update location: %w", err)
	}
	return nil
}

// publish sends a change event on the session's count_events channel.
func (c *Client) publish(ctx context.Context, sessionID string, ev *ChangeEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal change event: %w", err)
	}

	if err := c.rdb.Publish(ctx, CountEventsChannel(c.namespace, sessionID), data).Err(); err != nil {
		return fmt.Errorf("failed to publish change event: %w", err)
	}
	return nil
}

func replyToCount(v interface{}) (*CountRecord, error) {
	flat, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("hash reply is %T, not an array", v)
	}
	hash, err := flatToHash(flat)
	if err != nil {
		return nil, err
	}
	return HashToCount(hash)
}

// IsNotFound returns true if the error is a Redis "key not found" error (redis.Nil).
// Use this to check if GetCount, GetLocation or FindLocationByName returned "not found".
func IsNotFound(err error) bool {
	return errors.Is(err, redis.Nil)
}
