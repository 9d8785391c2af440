package ledger

import (
	"errors"
	"fmt"

	"github.com/modwarden/warden/automod/event"
)

// Matches any persistence failure from the ledger, via errors.Is.
var ErrLedgerIO = errors.New("ledger i/o failure")

// A violation could not be durably read or recorded. Callers must not proceed to irreversible sanctions on this error.
type IOError struct {
	Op    string
	Scope event.Scope
	Err   error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("ledger %s %s: %v", e.Op, e.Scope, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

func (e *IOError) Is(target error) bool {
	return target == ErrLedgerIO
}
