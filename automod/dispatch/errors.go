package dispatch

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/modwarden/warden/automod/escalation"
	"github.com/modwarden/warden/automod/event"
)

type ErrorKind string

const (
	ErrPermissionDenied ErrorKind = "permission-denied"
	ErrNotFound         ErrorKind = "not-found"
	ErrRateLimited      ErrorKind = "rate-limited"
	ErrFailed           ErrorKind = "failed"
)

// A platform action failed. Logged and audited; never rolls back the ledger, and never retried automatically.
type DispatchError struct {
	Kind       ErrorKind
	Scope      event.Scope
	Action     escalation.Action
	StatusCode int
	Err        error
}

func (e *DispatchError) Error() string {
	msg := fmt.Sprintf("dispatch %s for %s: %s", e.Action, e.Scope, e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

// Extracts the error kind, or "" if err is not a DispatchError.
func KindOf(err error) ErrorKind {
	var de *DispatchError
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

func kindFromStatus(code int) ErrorKind {
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrPermissionDenied
	case http.StatusNotFound, http.StatusGone:
		return ErrNotFound
	case http.StatusTooManyRequests:
		return ErrRateLimited
	default:
		return ErrFailed
	}
}
