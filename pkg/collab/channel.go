package collab

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultPresenceTTL is how long a presence entry stays visible without a re-announce.
	DefaultPresenceTTL = 2 * time.Minute

	// DefaultBuffer is the capacity of each membership delivery channel.
	DefaultBuffer = 32

	leaveTimeout = 2 * time.Second
)

// Channel joins clients to collaboration topics. It is safe for concurrent use.
type Channel struct {
	rdb         *redis.Client
	namespace   string
	presenceTTL time.Duration
	buffer      int
	now         func() time.Time
}

// Option configures a Channel.
type Option func(*Channel)

// WithPresenceTTL overrides DefaultPresenceTTL.
func WithPresenceTTL(ttl time.Duration) Option {
	return func(c *Channel) {
		if ttl > 0 {
			c.presenceTTL = ttl
		}
	}
}

// WithBuffer overrides DefaultBuffer.
func WithBuffer(n int) Option {
	return func(c *Channel) {
		if n > 0 {
			c.buffer = n
		}
	}
}

// WithClock replaces time.Now for presence timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Channel) {
		c.now = now
	}
}

// NewChannel creates a collaboration channel on an existing Redis connection.
// The connection is shared and not closed by the channel.
func NewChannel(rdb *redis.Client, namespace string, opts ...Option) (*Channel, error) {
	if rdb == nil {
		return nil, fmt.Errorf("redis client cannot be nil")
	}
	if namespace == "" {
		return nil, fmt.Errorf("namespace cannot be empty")
	}

	c := &Channel{
		rdb:         rdb,
		namespace:   namespace,
		presenceTTL: DefaultPresenceTTL,
		buffer:      DefaultBuffer,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// PresenceTTL returns the configured presence expiry.
func (c *Channel) PresenceTTL() time.Duration {
	return c.presenceTTL
}

// Join subscribes to a topic and announces the caller's presence.
// It returns once Redis has confirmed the subscription, so broadcasts published
// by peers afterwards are delivered. The caller must Close the membership.
func (c *Channel) Join(ctx context.Context, topic Topic, p Presence) (*Membership, error) {
	if err := topic.Validate(); err != nil {
		return nil, fmt.Errorf("invalid topic: %w", err)
	}
	p.SessionID = topic.SessionID
	p.ItemID = topic.ItemID
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid presence: %w", err)
	}

	pubsub := c.rdb.Subscribe(ctx, TopicChannel(c.namespace, topic))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to topic %s: %w", topic, err)
	}

	pumpCtx, cancel := context.WithCancel(context.Background())
	m := &Membership{
		channel:    c,
		topic:      topic,
		clientID:   p.ClientID,
		broadcasts: make(chan *EditBroadcast, c.buffer),
		presence:   make(chan *Presence, c.buffer),
		errors:     make(chan error, c.buffer),
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	go m.pump(pumpCtx, pubsub)

	if err := m.Announce(ctx, p); err != nil {
		m.Close()
		return nil, err
	}
	return m, nil
}

// Peers lists the live presence entries of a topic ordered by client ID.
func (c *Channel) Peers(ctx context.Context, topic Topic) ([]Presence, error) {
	entries, err := c.rdb.HGetAll(ctx, PresenceKey(c.namespace, topic)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read presence: %w", err)
	}

	cutoff := c.now().Add(-c.presenceTTL).UnixMilli()
	peers := make([]Presence, 0, len(entries))
	for _, raw := range entries {
		var p Presence
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			continue
		}
		if p.SeenAtMs < cutoff {
			continue
		}
		peers = append(peers, p)
	}

	sort.Slice(peers, func(i, j int) bool {
		return peers[i].ClientID < peers[j].ClientID
	})
	return peers, nil
}

// Membership is one client's subscription to a topic.
type Membership struct {
	channel  *Channel
	topic    Topic
	clientID string

	broadcasts chan *EditBroadcast
	presence   chan *Presence
	errors     chan error
	dropped    atomic.Uint64

	cancel func()
	done   chan struct{}
	once   sync.Once
}

// Topic returns the joined topic.
func (m *Membership) Topic() Topic {
	return m.topic
}

// Broadcasts returns incoming edit snapshots, including the member's own.
// The channel is closed by Close.
func (m *Membership) Broadcasts() <-chan *EditBroadcast {
	return m.broadcasts
}

// Presence returns incoming presence announcements.
func (m *Membership) Presence() <-chan *Presence {
	return m.presence
}

// Errors returns decoding failures. Bad messages are skipped.
func (m *Membership) Errors() <-chan error {
	return m.errors
}

// Dropped returns the number of messages discarded because a consumer fell behind.
func (m *Membership) Dropped() uint64 {
	return m.dropped.Load()
}

// Publish sends an edit snapshot to every member of the topic.
func (m *Membership) Publish(ctx context.Context, b EditBroadcast) error {
	if err := b.Validate(); err != nil {
		return fmt.Errorf("invalid broadcast: %w", err)
	}
	if b.Topic() != m.topic {
		return fmt.Errorf("broadcast for %s published on topic %s", b.Topic(), m.topic)
	}
	return m.send(ctx, &envelope{Kind: kindEdit, Edit: &b})
}

// Announce records presence and tells the topic about it. Call again after a
// location switch or to keep the entry alive.
func (m *Membership) Announce(ctx context.Context, p Presence) error {
	p.ClientID = m.clientID
	p.SessionID = m.topic.SessionID
	p.ItemID = m.topic.ItemID
	if p.SeenAtMs == 0 {
		p.SeenAtMs = m.channel.now().UnixMilli()
	}
	if err := p.Validate(); err != nil {
		return fmt.Errorf("invalid presence: %w", err)
	}

	data, err := json.Marshal(&p)
	if err != nil {
		return fmt.Errorf("failed to marshal presence: %w", err)
	}

	key := PresenceKey(m.channel.namespace, m.topic)
	pipe := m.channel.rdb.TxPipeline()
	pipe.HSet(ctx, key, p.ClientID, data)
	pipe.Expire(ctx, key, m.channel.presenceTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record presence: %w", err)
	}

	return m.send(ctx, &envelope{Kind: kindPresence, Presence: &p})
}

// Close unsubscribes and removes the presence entry. Safe to call multiple times.
func (m *Membership) Close() error {
	var err error
	m.once.Do(func() {
		m.cancel()
		<-m.done

		ctx, cancel := context.WithTimeout(context.Background(), leaveTimeout)
		defer cancel()
		key := PresenceKey(m.channel.namespace, m.topic)
		if hdelErr := m.channel.rdb.HDel(ctx, key, m.clientID).Err(); hdelErr != nil {
			err = fmt.Errorf("failed to remove presence: %w", hdelErr)
		}
	})
	return err
}

func (m *Membership) send(ctx context.Context, env *envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal %s message: %w", env.Kind, err)
	}
	if err := m.channel.rdb.Publish(ctx, TopicChannel(m.channel.namespace, m.topic), data).Err(); err != nil {
		return fmt.Errorf("failed to publish %s message: %w", env.Kind, err)
	}
	return nil
}

// pump decodes topic messages until cancelled. Sends never block: a full
// delivery channel loses the message.
func (m *Membership) pump(ctx context.Context, pubsub *redis.PubSub) {
	defer close(m.done)
	defer close(m.broadcasts)
	defer close(m.presence)
	defer close(m.errors)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}

			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				m.offerError(fmt.Errorf("failed to unmarshal topic message: %w", err))
				continue
			}

			switch {
			case env.Kind == kindEdit && env.Edit != nil:
				select {
				case m.broadcasts <- env.Edit:
				default:
					m.dropped.Add(1)
				}
			case env.Kind == kindPresence && env.Presence != nil:
				select {
				case m.presence <- env.Presence:
				default:
					m.dropped.Add(1)
				}
			default:
				m.offerError(fmt.Errorf("malformed topic message: kind=%q", env.Kind))
			}
		}
	}
}

func (m *Membership) offerError(err error) {
	select {
	case m.errors <- err:
	default:
		m.dropped.Add(1)
	}
}
