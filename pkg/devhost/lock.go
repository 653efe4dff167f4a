package devhost

import (
	"context"
	"sync"
	"sync/atomic"
)

type lockKey struct{}

// lockToken marks one acquisition of a TreeLock. It is stored in the
// context handed to code running under the lock and deactivated on unlock,
// so a context that outlives its critical section no longer counts as
// holding the lock.
type lockToken struct {
	lock   *TreeLock
	active atomic.Bool
}

// TreeLock is the global mutex serializing tree-shape mutations and the
// driver callbacks invoked during them.
type TreeLock struct {
	mu    sync.Mutex
	held  atomic.Bool
	token *lockToken // guarded by mu
	debug bool
}

// NewTreeLock creates a lock. With debug set, re-entrant acquisition panics
// instead of returning ErrLockReentrant.
func NewTreeLock(debug bool) *TreeLock {
	return &TreeLock{debug: debug}
}

// Lock acquires the lock and returns a context marked as holding it.
//
// Acquiring with a context that already holds the lock is a re-entrant
// structural call from inside a callback. It traps in debug mode and fails
// with ErrLockReentrant otherwise; it never deadlocks.
func (l *TreeLock) Lock(ctx context.Context) (context.Context, error) {
	if l.HeldBy(ctx) {
		if l.debug {
			invariant("Lock", "tree lock acquired while already held by the caller")
		}
		return ctx, ErrLockReentrant
	}

	l.mu.Lock()
	if !l.held.CompareAndSwap(false, true) {
		invariant("Lock", "held flag set while mutex was free")
	}
	t := &lockToken{lock: l}
	t.active.Store(true)
	l.token = t
	return context.WithValue(ctx, lockKey{}, t), nil
}

// Unlock releases the lock. Releasing a lock that is not held is always
// fatal.
func (l *TreeLock) Unlock() {
	if !l.held.Load() {
		invariant("Unlock", "tree lock released while not held")
	}
	l.token.active.Store(false)
	l.token = nil
	l.held.Store(false)
	l.mu.Unlock()
}

// Held reports whether anyone holds the lock. It is meant for assertions.
func (l *TreeLock) Held() bool {
	return l.held.Load()
}

// HeldBy reports whether ctx carries an active acquisition of this lock.
func (l *TreeLock) HeldBy(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	t, ok := ctx.Value(lockKey{}).(*lockToken)
	return ok && t.lock == l && t.active.Load()
}

// Debug reports whether re-entrancy traps are enabled.
func (l *TreeLock) Debug() bool {
	return l.debug
}
