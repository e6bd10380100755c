package cluster

import "errors"

// Store errors a caller can branch on without string-matching.
var (
	ErrNotFound        = errors.New("node not found")
	ErrVersionConflict = errors.New("concurrent modification detected")
	ErrSerialization   = errors.New("serialization failed")
	ErrIO              = errors.New("io failure")
	ErrStore           = errors.New("store failure")
)

// InvalidNodeError reports a record that failed validation: a malformed
// address, an out-of-range role, or a uniqueness violation.
type InvalidNodeError struct {
	Reason string
}

func (e *InvalidNodeError) Error() string {
	return "invalid node: " + e.Reason
}
