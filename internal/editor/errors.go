package editor

import (
	"errors"
	"fmt"
)

var (
	// ErrNotOpen is returned by operations that need an open edit session.
	ErrNotOpen = errors.New("no edit session open")

	// ErrExpressionInvalid blocks a save while the expression has an error.
	ErrExpressionInvalid = errors.New("expression is invalid")

	// ErrSaveInProgress is returned when a save is requested while one is in flight.
	ErrSaveInProgress = errors.New("save already in progress")

	// ErrSaveTimeout is returned when the store does not acknowledge a save in time.
	// The editor leaves the saving state and keeps the expression.
	ErrSaveTimeout = errors.New("save timed out")

	// ErrStaleEditor is returned when a save completes after the session that
	// issued it was closed or replaced. The result is not applied to the editor.
	ErrStaleEditor = errors.New("edit session changed before save completed")

	// ErrMirroringUnavailable means the session is open but not joined to its
	// collaboration topic. Reconnect retries the join.
	ErrMirroringUnavailable = errors.New("live mirroring unavailable")
)

// ValidationError is a field-level problem that blocks a save.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// IsValidation reports whether err is a *ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
