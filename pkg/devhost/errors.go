package devhost

import (
	"errors"
	"fmt"

	"github.com/devhost-project/devhost-go/pkg/wire"
)

// Recoverable errors. Each maps to one wire.Status.
var (
	ErrInvalidArgs    = errors.New("invalid arguments")
	ErrNotFound       = errors.New("not found")
	ErrAlreadyExists  = errors.New("already exists")
	ErrBusy           = errors.New("device busy")
	ErrNoResources    = errors.New("no resources")
	ErrPeerClosed     = errors.New("peer closed")
	ErrBadState       = errors.New("bad state")
	ErrNotSupported   = errors.New("not supported")
	ErrIO             = errors.New("i/o error")
	ErrBufferTooSmall = errors.New("buffer too small")
	ErrInternal       = errors.New("internal error")

	// ErrLockReentrant is returned instead of deadlocking when the tree lock
	// is requested by a context that already holds it and lock debugging
	// is off.
	ErrLockReentrant = errors.New("tree lock acquired re-entrantly")
)

var statusErrors = []struct {
	err    error
	status wire.Status
}{
	{ErrInvalidArgs, wire.StatusInvalidArgs},
	{ErrNotFound, wire.StatusNotFound},
	{ErrAlreadyExists, wire.StatusAlreadyExists},
	{ErrBusy, wire.StatusBusy},
	{ErrNoResources, wire.StatusNoResources},
	{ErrPeerClosed, wire.StatusPeerClosed},
	{ErrBadState, wire.StatusBadState},
	{ErrNotSupported, wire.StatusNotSupported},
	{ErrIO, wire.StatusIO},
	{ErrBufferTooSmall, wire.StatusBufferTooSmall},
	{ErrInternal, wire.StatusInternal},
}

// StatusOf translates an error into the shared status space. Errors that do
// not wrap one of the package sentinels become StatusInternal.
func StatusOf(err error) wire.Status {
	if err == nil {
		return wire.StatusOK
	}
	for _, se := range statusErrors {
		if errors.Is(err, se.err) {
			return se.status
		}
	}
	return wire.StatusInternal
}

// ErrorOf returns the sentinel error for a status, or nil for StatusOK.
func ErrorOf(status wire.Status) error {
	if status == wire.StatusOK {
		return nil
	}
	for _, se := range statusErrors {
		if se.status == status {
			return se.err
		}
	}
	return fmt.Errorf("%w: unknown status %d", ErrInternal, status)
}

// InvariantError reports a violated locking or reference contract. It is
// raised with panic, never returned: the calling code is broken.
type InvariantError struct {
	Op     string
	Detail string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("devhost invariant violated in %s: %s", e.Op, e.Detail)
}

func invariant(op, format string, args ...any) {
	panic(&InvariantError{Op: op, Detail: fmt.Sprintf(format, args...)})
}
