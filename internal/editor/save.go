package editor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dyluth/tally/internal/metrics"
	"github.com/dyluth/tally/internal/reconciler"
	"github.com/dyluth/tally/pkg/expr"
	"github.com/dyluth/tally/pkg/ledger"
)

type saveResult struct {
	record *ledger.CountRecord
	err    error
}

// Save persists the open session's expression and closes the session.
//
// Nothing is written while the expression has an error or when the location
// or expression is missing. The store call is bounded by the save timeout;
// on timeout the editor leaves the saving state, keeps the expression and
// returns ErrSaveTimeout. If the session was closed or replaced while the
// save was in flight, the result is dropped and ErrStaleEditor returned.
// On any other failure the session stays open so the save can be retried.
func (e *Editor) Save(ctx context.Context) (*ledger.CountRecord, error) {
	e.mu.Lock()
	if !e.open {
		e.mu.Unlock()
		return nil, ErrNotOpen
	}
	if e.saving {
		e.mu.Unlock()
		return nil, ErrSaveInProgress
	}

	triple := e.triple
	body, res, err := e.validateLocked()
	if err != nil {
		e.mu.Unlock()
		e.metrics.SaveFinished(metrics.SaveInvalid, 0)
		return nil, err
	}

	e.saving = true
	gen := e.generation
	e.mu.Unlock()
	e.notify()

	started := e.now()
	saveCtx, cancel := context.WithTimeout(ctx, e.saveTimeout)
	defer cancel()

	done := make(chan saveResult, 1)
	go func() {
		rec, err := e.counts.Save(saveCtx, triple.ItemID, triple.Location, res.Value, body, e.id.UserID)
		done <- saveResult{record: rec, err: err}
	}()

	var out saveResult
	select {
	case out = <-done:
	case <-saveCtx.Done():
	}
	if out.record == nil && saveCtx.Err() != nil {
		e.finishSaving(gen)
		if ctx.Err() != nil {
			e.metrics.SaveFinished(metrics.SaveFailed, 0)
			return nil, ctx.Err()
		}
		e.metrics.SaveFinished(metrics.SaveTimeout, 0)
		e.logger.Warn("save timed out", "item", triple.ItemID, "location", triple.Location, "timeout", e.saveTimeout)
		return nil, ErrSaveTimeout
	}
	elapsed := e.now().Sub(started)

	e.mu.Lock()
	if e.generation != gen {
		e.mu.Unlock()
		e.metrics.SaveFinished(metrics.SaveStale, elapsed)
		return out.record, ErrStaleEditor
	}

	if out.err != nil {
		e.saving = false
		e.mu.Unlock()
		e.notify()
		e.metrics.SaveFinished(metrics.SaveFailed, elapsed)
		return nil, mapSaveError(out.err)
	}

	old := e.resetLocked()
	e.mu.Unlock()

	closeMembership(old, e.logger)
	e.metrics.SaveFinished(metrics.SaveOK, elapsed)
	e.logger.Info("count saved", "item", triple.ItemID, "location", triple.Location,
		"quantity", out.record.CountedQuantity, "record", out.record.ID)
	e.notify()
	return out.record, nil
}

// validateLocked returns the persistable expression and its value, or the
// reason a save is blocked.
func (e *Editor) validateLocked() (string, expr.Result, error) {
	if e.triple.Location == "" {
		return "", expr.Result{}, &ValidationError{Field: "location", Message: "location is required"}
	}
	if e.result.Err != nil {
		return "", expr.Result{}, fmt.Errorf("%w: %s", ErrExpressionInvalid, e.result.Err.Error())
	}

	body, res := expr.Commit(e.expression)
	if res.Err != nil {
		return "", expr.Result{}, fmt.Errorf("%w: %s", ErrExpressionInvalid, res.Err.Error())
	}
	if strings.TrimSpace(body) == "" {
		return "", expr.Result{}, &ValidationError{Field: "expression", Message: "expression is required"}
	}
	return body, res, nil
}

// finishSaving leaves the saving state if gen is still the current session.
func (e *Editor) finishSaving(gen uint64) {
	e.mu.Lock()
	changed := e.generation == gen && e.saving
	if changed {
		e.saving = false
	}
	e.mu.Unlock()

	if changed {
		e.notify()
	}
}

func mapSaveError(err error) error {
	switch {
	case errors.Is(err, reconciler.ErrLocationNotFound):
		return &ValidationError{Field: "location", Message: "location does not exist", Err: err}
	case errors.Is(err, reconciler.ErrLocationInactive):
		return &ValidationError{Field: "location", Message: "location is inactive", Err: err}
	}
	return fmt.Errorf("failed to save count: %w", err)
}
