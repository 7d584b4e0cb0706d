package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// subscriptionBuffer is the capacity of the events and errors channels.
const subscriptionBuffer = 64

// Subscription represents an active Pub/Sub subscription to one session's change feed.
// Caller must call Close() when done to clean up resources.
type Subscription struct {
	events <-chan *ChangeEvent
	errors <-chan error
	cancel func()
	once   sync.Once
}

// Events returns the channel of change events.
// The channel will be closed when the subscription is closed or the context is cancelled.
func (s *Subscription) Events() <-chan *ChangeEvent {
	return s.events
}

// Errors returns the channel of subscription errors.
// Errors include JSON unmarshaling failures and other non-fatal issues.
// The subscription continues after errors - messages are skipped.
func (s *Subscription) Errors() <-chan error {
	return s.errors
}

// Close stops the subscription and cleans up resources. Implements io.Closer.
// Safe to call multiple times - subsequent calls are no-ops.
func (s *Subscription) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// SubscribeCountEvents subscribes to the change feed of one session.
// The call returns once Redis has confirmed the subscription, so every write
// issued afterwards is observed. Context cancellation also stops the subscription.
//
// Delivery is at-most-once: Redis Pub/Sub drops messages for slow subscribers
// and events published while disconnected are never replayed.
func (c *Client) SubscribeCountEvents(ctx context.Context, sessionID string) (*Subscription, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session ID cannot be empty")
	}

	pubsub := c.rdb.Subscribe(ctx, CountEventsChannel(c.namespace, sessionID))

	// Wait for the subscribe confirmation
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to count events: %w", err)
	}

	eventsChan := make(chan *ChangeEvent, subscriptionBuffer)
	errorsChan := make(chan error, subscriptionBuffer)

	subCtx, cancelFunc := context.WithCancel(ctx)

	go func() {
		defer close(eventsChan)
		defer close(errorsChan)
		defer pubsub.Close()

		ch := pubsub.Channel()

		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				var ev ChangeEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					select {
					case errorsChan <- fmt.Errorf("failed to unmarshal change event: %w", err):
					case <-subCtx.Done():
						return
					}
					continue
				}

				if err := ev.Type.Validate(); err != nil || ev.Record() == nil {
					select {
					case errorsChan <- fmt.Errorf("malformed change event: type=%q", ev.Type):
					case <-subCtx.Done():
						return
					}
					continue
				}

				select {
				case eventsChan <- &ev:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return &Subscription{
		events: eventsChan,
		errors: errorsChan,
		cancel: cancelFunc,
	}, nil
}
