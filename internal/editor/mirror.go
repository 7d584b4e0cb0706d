package editor

import (
	"context"
	"fmt"

	"github.com/dyluth/tally/internal/metrics"
	"github.com/dyluth/tally/pkg/collab"
	"github.com/dyluth/tally/pkg/expr"
)

// join subscribes the session identified by gen to its topic. A session that
// changed while joining gets the membership closed again.
func (e *Editor) join(ctx context.Context, gen uint64) error {
	if e.channel == nil {
		return nil
	}

	e.mu.Lock()
	topic := collab.Topic{SessionID: e.triple.SessionID, ItemID: e.triple.ItemID}
	p := e.presenceLocked()
	e.mu.Unlock()

	m, err := e.channel.Join(ctx, topic, p)
	if err != nil {
		e.logger.Warn("joining collaboration topic failed", "topic", topic.String(), "error", err)
		return fmt.Errorf("%w: %v", ErrMirroringUnavailable, err)
	}

	peers, err := e.channel.Peers(ctx, topic)
	if err != nil {
		e.logger.Debug("listing peers failed", "topic", topic.String(), "error", err)
	}

	e.mu.Lock()
	if !e.open || e.generation != gen || e.membership != nil {
		e.mu.Unlock()
		closeMembership(m, e.logger)
		return nil
	}
	e.membership = m
	for _, peer := range peers {
		if peer.ClientID != e.id.ClientID {
			e.peers[peer.ClientID] = peer
		}
	}
	e.mu.Unlock()

	go e.pump(m)
	return nil
}

// pump delivers a membership's messages until it is closed.
func (e *Editor) pump(m *collab.Membership) {
	broadcasts := m.Broadcasts()
	presence := m.Presence()
	errs := m.Errors()

	for broadcasts != nil || presence != nil {
		select {
		case b, ok := <-broadcasts:
			if !ok {
				broadcasts = nil
				continue
			}
			e.applyFrom(m, b)

		case p, ok := <-presence:
			if !ok {
				presence = nil
				continue
			}
			e.trackPeer(m, p)

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			e.logger.Debug("collaboration message error", "error", err)
		}
	}
}

// ApplyBroadcast merges a peer's snapshot into the open session. Returns true
// when the local expression was replaced.
//
// A broadcast is dropped when it was sent by this client, targets another
// triple or is not newer than the last applied remote edit. Within the typing
// grace window of the last local keystroke it is also dropped when it is not
// newer than that keystroke, or unconditionally while the input has focus.
// Once the window has passed, a peer whose clock lags ours still gets through.
func (e *Editor) ApplyBroadcast(b *collab.EditBroadcast) bool {
	return e.applyFrom(nil, b)
}

func (e *Editor) applyFrom(m *collab.Membership, b *collab.EditBroadcast) bool {
	e.mu.Lock()
	reason := e.dropReasonLocked(m, b)
	if reason != "" {
		e.mu.Unlock()
		e.metrics.BroadcastDropped(reason)
		return false
	}

	e.expression = b.Expression
	e.result = expr.Evaluate(b.Expression)
	e.lastRemoteTs = b.TimestampMs
	e.mu.Unlock()

	e.metrics.BroadcastApplied()
	e.notify()
	return true
}

func (e *Editor) dropReasonLocked(m *collab.Membership, b *collab.EditBroadcast) string {
	switch {
	case !e.open || (m != nil && m != e.membership):
		return metrics.DropClosed
	case b.SenderClientID == e.id.ClientID:
		return metrics.DropSelf
	case b.SessionID != e.triple.SessionID || b.ItemID != e.triple.ItemID || b.Location != e.triple.Location:
		return metrics.DropOtherField
	case b.TimestampMs <= e.lastRemoteTs:
		return metrics.DropStale
	}

	recent := e.now().UnixMilli()-e.lastKeyMs < e.grace.Milliseconds()
	switch {
	case recent && b.TimestampMs <= e.lastLocalTs:
		return metrics.DropStale
	case recent && e.focused:
		return metrics.DropTyping
	}
	return ""
}

func (e *Editor) trackPeer(m *collab.Membership, p *collab.Presence) {
	e.mu.Lock()
	if !e.open || m != e.membership || p.ClientID == e.id.ClientID {
		e.mu.Unlock()
		return
	}
	e.peers[p.ClientID] = *p
	e.mu.Unlock()

	e.notify()
}
