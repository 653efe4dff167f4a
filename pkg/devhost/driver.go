package devhost

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// DriverOps is the driver-wide callback set.
type DriverOps interface {
	// Init runs once, on first load.
	Init(ctx context.Context) error

	// Bind attaches the driver to parent. It runs under the tree lock and
	// publishes child devices through tx.
	Bind(ctx context.Context, tx *Tx, parent *Device) error

	// Release runs when the driver is unloaded.
	Release()
}

// DriverFactory creates the callback set of a driver on first load.
type DriverFactory func() DriverOps

// Driver is a loaded (or registered, not yet loaded) driver module.
type Driver struct {
	Name    string
	LibName string

	reg     *Registry
	factory DriverFactory
	refs    atomic.Int64

	// Guarded by reg.mu.
	ops    DriverOps
	loaded bool
	status error
}

// Status returns the cached load result.
func (d *Driver) Status() error {
	d.reg.mu.Lock()
	defer d.reg.mu.Unlock()
	return d.status
}

// Loaded reports whether the driver has been initialized successfully.
func (d *Driver) Loaded() bool {
	d.reg.mu.Lock()
	defer d.reg.mu.Unlock()
	return d.loaded && d.status == nil
}

// Refs returns the number of devices created by or bound to the driver.
func (d *Driver) Refs() int64 { return d.refs.Load() }

func (d *Driver) acquire() {
	if d != nil {
		d.refs.Add(1)
	}
}

func (d *Driver) release() {
	if d == nil {
		return
	}
	if d.refs.Add(-1) < 0 {
		invariant("Driver.release", "driver %s reference count underflow", d.LibName)
	}
}

// Registry is the process-scoped set of known drivers.
type Registry struct {
	mu      sync.Mutex
	drivers []*Driver
	byLib   map[string]*Driver
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byLib: make(map[string]*Driver)}
}

// Register adds a driver under libname.
func (r *Registry) Register(libname, name string, factory DriverFactory) error {
	if libname == "" || factory == nil {
		return fmt.Errorf("%w: driver needs a library name and factory", ErrInvalidArgs)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byLib[libname]; ok {
		return fmt.Errorf("%w: driver %s", ErrAlreadyExists, libname)
	}
	drv := &Driver{Name: name, LibName: libname, reg: r, factory: factory}
	r.drivers = append(r.drivers, drv)
	r.byLib[libname] = drv
	return nil
}

// Load returns the driver for libname, initializing it on first use. A
// failed load is cached and returned on later calls.
func (r *Registry) Load(ctx context.Context, libname string) (*Driver, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	drv, ok := r.byLib[libname]
	if !ok {
		return nil, fmt.Errorf("%w: driver %s", ErrNotFound, libname)
	}
	if !drv.loaded {
		drv.loaded = true
		drv.ops = drv.factory()
		if err := drv.ops.Init(ctx); err != nil {
			drv.status = fmt.Errorf("init %s: %w", libname, err)
		}
	}
	if drv.status != nil {
		return nil, drv.status
	}
	return drv, nil
}

// Lookup returns a registered driver without loading it.
func (r *Registry) Lookup(libname string) (*Driver, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	drv, ok := r.byLib[libname]
	return drv, ok
}

// Drivers enumerates registered drivers in registration order.
func (r *Registry) Drivers() []*Driver {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Driver(nil), r.drivers...)
}

// Unload releases an initialized driver. Drivers still referenced by a
// device are never unloaded.
func (r *Registry) Unload(libname string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	drv, ok := r.byLib[libname]
	if !ok {
		return fmt.Errorf("%w: driver %s", ErrNotFound, libname)
	}
	if drv.refs.Load() > 0 {
		return fmt.Errorf("%w: driver %s has %d references", ErrBusy, libname, drv.refs.Load())
	}
	if !drv.loaded {
		return nil
	}
	if drv.status == nil {
		drv.ops.Release()
	}
	drv.loaded = false
	drv.ops = nil
	drv.status = nil
	return nil
}

func (d *Driver) callbacks() DriverOps {
	d.reg.mu.Lock()
	defer d.reg.mu.Unlock()
	return d.ops
}
