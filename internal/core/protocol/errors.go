package protocol

import (
	"errors"
	"fmt"
)

// Connection layer errors.
var (
	ErrInvalidAddress    = errors.New("invalid address")
	ErrInvalidConnection = errors.New("invalid connection")
	ErrSessionClosed     = errors.New("session is closed")

	errNoMembers = errors.New("no cluster members known")
)

// ExhaustedError reports that every candidate failed on every retry pass up
// to the configured limit. Err aggregates the per-candidate errors observed
// during the final pass.
type ExhaustedError struct {
	Passes uint
	Err    error
}

func (e *ExhaustedError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("no leader found after %d passes", e.Passes)
	}
	return fmt.Sprintf("no leader found after %d passes: %v", e.Passes, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}
