package devhost

import (
	"strings"
	"sync"
	"sync/atomic"

	"github.com/devhost-project/devhost-go/pkg/resource"
	"github.com/devhost-project/devhost-go/pkg/wire"
)

// DeviceID identifies a device within one host. IDs are never reused.
type DeviceID uint64

// NoDevice is the zero DeviceID, used as the parent of the root.
const NoDevice DeviceID = 0

// State is a device lifecycle state.
type State uint32

const (
	StateCreated State = iota
	StateInstalled
	StateAdded
	StateBound
	StateUnbound
	StateRemoved
	StateDestroyed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "CREATED"
	case StateInstalled:
		return "INSTALLED"
	case StateAdded:
		return "ADDED"
	case StateBound:
		return "BOUND"
	case StateUnbound:
		return "UNBOUND"
	case StateRemoved:
		return "REMOVED"
	case StateDestroyed:
		return "DESTROYED"
	default:
		return "UNKNOWN"
	}
}

// resident reports whether the state is linked into the tree.
func (s State) resident() bool {
	return s == StateInstalled || s == StateAdded || s == StateBound || s == StateUnbound
}

// Flags is a bitmask of lifecycle flags.
type Flags uint32

const (
	// FlagDead rejects all new dispatch to the device.
	FlagDead Flags = 1 << iota

	// FlagUnbound marks a device whose unbind callback has run.
	FlagUnbound

	// FlagRemovePending marks a removed device waiting for references to drain.
	FlagRemovePending

	// FlagUncoordinated marks a device the coordinator does not know about.
	FlagUncoordinated
)

// String returns the set flag names joined by '|'.
func (f Flags) String() string {
	if f == 0 {
		return "-"
	}
	var names []string
	if f&FlagDead != 0 {
		names = append(names, "DEAD")
	}
	if f&FlagUnbound != 0 {
		names = append(names, "UNBOUND")
	}
	if f&FlagRemovePending != 0 {
		names = append(names, "REMOVE_PENDING")
	}
	if f&FlagUncoordinated != 0 {
		names = append(names, "UNCOORDINATED")
	}
	return strings.Join(names, "|")
}

// Property is a binding property used for driver matching.
type Property struct {
	ID    uint32
	Value uint32
}

func wireProps(props []Property) []wire.Property {
	if len(props) == 0 {
		return nil
	}
	out := make([]wire.Property, len(props))
	for i, p := range props {
		out[i] = wire.Property{ID: p.ID, Value: p.Value}
	}
	return out
}

// Device is a node in the device tree.
//
// Tree links (parent, children), props and the bound driver are guarded by
// the tree lock. The refcount, state, flags and remote ID are atomic and may
// be read without it.
type Device struct {
	id   DeviceID
	name string
	host *Host
	ops  Ops

	owner *Driver // driver that created the device
	bound *Driver // driver bound to the device

	parent   DeviceID // set while linked into the tree
	children []DeviceID
	intended DeviceID // parent named at create time

	props    []Property
	busInfo  string
	resource *resource.Handle

	refs     atomic.Int64
	state    atomic.Uint32
	flags    atomic.Uint32
	remoteID atomic.Uint64

	watchMu   sync.Mutex
	watchers  map[uint64]func(signals uint32)
	nextWatch uint64

	done chan struct{}
}

// ID returns the host-local device ID.
func (d *Device) ID() DeviceID { return d.id }

// Name returns the device name.
func (d *Device) Name() string { return d.name }

// Ops returns the device's callback table.
func (d *Device) Ops() Ops { return d.ops }

// Owner returns the driver that created the device, if any.
func (d *Device) Owner() *Driver { return d.owner }

// State returns the current lifecycle state.
func (d *Device) State() State { return State(d.state.Load()) }

func (d *Device) setState(s State) { d.state.Store(uint32(s)) }

// Flags returns the current flags.
func (d *Device) Flags() Flags { return Flags(d.flags.Load()) }

func (d *Device) setFlags(f Flags) {
	for {
		old := d.flags.Load()
		if d.flags.CompareAndSwap(old, old|uint32(f)) {
			return
		}
	}
}

func (d *Device) clearFlags(f Flags) {
	for {
		old := d.flags.Load()
		if d.flags.CompareAndSwap(old, old&^uint32(f)) {
			return
		}
	}
}

// Dead reports whether new dispatch to the device is rejected.
func (d *Device) Dead() bool { return d.Flags()&FlagDead != 0 }

// RemoteID returns the coordinator-assigned ID, or 0 before the coordinator
// replied.
func (d *Device) RemoteID() uint64 { return d.remoteID.Load() }

// Refs returns the current reference count.
func (d *Device) Refs() int64 { return d.refs.Load() }

// Done is closed when the device is destroyed.
func (d *Device) Done() <-chan struct{} { return d.done }

// Acquire takes a reference. Acquiring a destroyed device is a contract
// violation.
func (d *Device) Acquire() {
	if d.refs.Add(1) <= 1 {
		invariant("Acquire", "device %d (%s) acquired with no live reference", d.id, d.name)
	}
}

// TryAcquire takes a reference unless the count already reached zero, in
// which case the device is being destroyed and false is returned.
func (d *Device) TryAcquire() bool {
	for {
		n := d.refs.Load()
		if n <= 0 {
			return false
		}
		if d.refs.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// Release drops a reference. The last release destroys the device, which
// must already be detached from the tree.
func (d *Device) Release() {
	n := d.refs.Add(-1)
	switch {
	case n < 0:
		invariant("Release", "device %d (%s) reference count underflow", d.id, d.name)
	case n == 0:
		d.host.destroy(d)
	}
}

// Ref acquires a reference wrapped in a handle whose Drop is idempotent.
func (d *Device) Ref() *Ref {
	d.Acquire()
	return &Ref{dev: d}
}

// TryRef is Ref for callers that do not already hold a reference. It fails
// once the last reference has been dropped.
func (d *Device) TryRef() (*Ref, bool) {
	if !d.TryAcquire() {
		return nil, false
	}
	return &Ref{dev: d}, true
}

// Ref is a shared-ownership handle on a device.
type Ref struct {
	dev  *Device
	once sync.Once
}

// Device returns the referenced device.
func (r *Ref) Device() *Device { return r.dev }

// Drop releases the reference. Only the first call has an effect.
func (r *Ref) Drop() {
	r.once.Do(r.dev.Release)
}

// Watch registers fn for device-initiated signals. fn runs on the
// signalling goroutine, possibly under the tree lock, and must not block.
func (d *Device) Watch(fn func(signals uint32)) (cancel func()) {
	d.watchMu.Lock()
	defer d.watchMu.Unlock()
	if d.watchers == nil {
		d.watchers = make(map[uint64]func(uint32))
	}
	d.nextWatch++
	id := d.nextWatch
	d.watchers[id] = fn
	return func() {
		d.watchMu.Lock()
		delete(d.watchers, id)
		d.watchMu.Unlock()
	}
}

// Signal delivers signals to every watcher.
func (d *Device) Signal(signals uint32) {
	d.watchMu.Lock()
	fns := make([]func(uint32), 0, len(d.watchers))
	for _, fn := range d.watchers {
		fns = append(fns, fn)
	}
	d.watchMu.Unlock()

	for _, fn := range fns {
		fn(signals)
	}
}

// validName rejects names that cannot appear as a topological path segment.
func validName(name string) bool {
	return name != "" && !strings.ContainsRune(name, '/') && name != "." && name != ".."
}
