package devhost

import (
	"context"

	"github.com/devhost-project/devhost-go/pkg/resource"
)

// Tx is the view of the host available while the tree lock is held. Driver
// callbacks receive one and use it for structural operations; it must not be
// retained after the callback returns.
type Tx struct {
	host   *Host
	ctx    context.Context
	driver *Driver
}

// Context returns the lock-holding context.
func (tx *Tx) Context() context.Context { return tx.ctx }

// Host returns the owning host.
func (tx *Tx) Host() *Host { return tx.host }

// Driver returns the driver whose callback received the Tx, if any.
func (tx *Tx) Driver() *Driver { return tx.driver }

func (tx *Tx) check(op string) {
	if !tx.host.lock.HeldBy(tx.ctx) {
		invariant(op, "tx used after its tree lock section ended")
	}
}

// withDriver returns a Tx for a callback of drv.
func (tx *Tx) withDriver(drv *Driver) *Tx {
	return &Tx{host: tx.host, ctx: tx.ctx, driver: drv}
}

// Parent returns the device's parent, or nil for the root and detached
// devices.
func (tx *Tx) Parent(d *Device) *Device {
	tx.check("Parent")
	if d.parent == NoDevice {
		return nil
	}
	p, _ := tx.host.Device(d.parent)
	return p
}

// Children returns the device's children in insertion order.
func (tx *Tx) Children(d *Device) []*Device {
	tx.check("Children")
	out := make([]*Device, 0, len(d.children))
	for _, id := range d.children {
		if c, err := tx.host.Device(id); err == nil {
			out = append(out, c)
		}
	}
	return out
}

// Child returns the named child of d.
func (tx *Tx) Child(d *Device, name string) (*Device, bool) {
	tx.check("Child")
	for _, id := range d.children {
		if c, err := tx.host.Device(id); err == nil && c.name == name {
			return c, true
		}
	}
	return nil, false
}

// Props returns a copy of the device's binding properties.
func (tx *Tx) Props(d *Device) []Property {
	tx.check("Props")
	return append([]Property(nil), d.props...)
}

// BusInfo returns the device's bus info.
func (tx *Tx) BusInfo(d *Device) string {
	tx.check("BusInfo")
	return d.busInfo
}

// Resource returns the grant the device was added with, if any.
func (tx *Tx) Resource(d *Device) *resource.Handle {
	tx.check("Resource")
	return d.resource
}

// RootResource returns the host's bootstrap resource, or nil when grants
// are disabled.
func (tx *Tx) RootResource() *resource.Root { return tx.host.rootRes }

// BoundDriver returns the driver bound to the device, if any.
func (tx *Tx) BoundDriver(d *Device) *Driver {
	tx.check("BoundDriver")
	return d.bound
}

// Release drops a reference held by the caller.
func (tx *Tx) Release(d *Device) {
	tx.check("Release")
	d.Release()
}
