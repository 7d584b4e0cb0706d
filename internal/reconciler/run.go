package reconciler

import (
	"context"
	"time"

	"github.com/dyluth/tally/pkg/ledger"
)

// run applies change events until ctx is cancelled. A lost subscription is
// re-established and followed by a full reload, since Pub/Sub does not replay
// what was published in between.
func (r *Reconciler) run(ctx context.Context, sub *ledger.Subscription) {
	defer close(r.done)

	for {
		if r.follow(ctx, sub) {
			return
		}

		r.logger.Warn("change feed lost, resubscribing")
		sub = r.resubscribe(ctx)
		if sub == nil {
			return
		}
	}
}

// follow consumes one subscription. Returns true when ctx is done.
func (r *Reconciler) follow(ctx context.Context, sub *ledger.Subscription) bool {
	defer sub.Close()

	errs := sub.Errors()
	for {
		select {
		case <-ctx.Done():
			return true

		case ev, ok := <-sub.Events():
			if !ok {
				return ctx.Err() != nil
			}
			if r.Apply(ctx, ev) {
				r.logger.Debug("change event applied", "type", ev.Type, "record", ev.Record().ID)
			}

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			r.logger.Warn("change feed error", "error", err)
		}
	}
}

// resubscribe retries until a subscription and reload succeed, or ctx is done.
func (r *Reconciler) resubscribe(ctx context.Context) *ledger.Subscription {
	ticker := time.NewTicker(r.retry)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		sub, err := r.store.SubscribeCountEvents(ctx, r.sessionID)
		if err != nil {
			r.logger.Warn("resubscribe failed", "error", err)
			continue
		}
		if err := r.Load(ctx); err != nil {
			sub.Close()
			r.logger.Warn("reload after resubscribe failed", "error", err)
			continue
		}
		r.logger.Info("change feed restored")
		return sub
	}
}
