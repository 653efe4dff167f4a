// Package devhost implements the device host runtime: the device tree, its
// lifecycle state machine, the global tree lock, and the reference model
// that keeps devices alive while remote connections or callbacks use them.
//
// # Locking
//
// Every structural operation (Create, Add, Install, Bind, Rebind, Unbind,
// Remove) runs under a single process-wide TreeLock. Driver callbacks invoked
// during those operations run with the lock held and receive a *Tx, which
// exposes the same operations without re-acquiring the lock. Calling the
// Host API with the callback's context instead is a re-entrant acquisition:
// with HostConfig.LockDebug it panics with an *InvariantError, otherwise it
// fails with ErrLockReentrant.
//
// # References
//
// A device starts with one reference owned by its creator. Add or Install
// hands that reference to the tree; Remove releases it. Remote connections
// and in-flight dispatches hold their own references through Ref. A device is
// destroyed when its count reaches zero, which is only legal once it has been
// detached from the tree and has no children.
//
// # Lifecycle
//
//	Created ──Add──► Added ──Bind──► Bound ◄──Rebind──► Unbound
//	   │               │                │                  │
//	   └──Install──► Installed          └───────Remove─────┴──► Removed ──(refs=0)──► Destroyed
package devhost
