package versioned

import (
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("versioned record not found")

// ConflictError reports a lost compare-and-swap race. It carries the
// authoritative version and data so the caller can re-read without another
// round trip; it is never a silent overwrite.
type ConflictError struct {
	Key            string
	CurrentVersion int64
	CurrentData    []byte
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("version conflict on %q: current version is %d", e.Key, e.CurrentVersion)
}
