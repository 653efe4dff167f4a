package drivers

import (
	"context"
	"fmt"

	"github.com/devhost-project/devhost-go/pkg/devhost"
	"github.com/devhost-project/devhost-go/pkg/resource"
)

// Library names of the built-in drivers.
const (
	LibRoot = "root"
	LibNull = "null"
	LibZero = "zero"
)

// RootName is the name of the root device.
const RootName = "root"

// Register adds the built-in drivers to reg.
func Register(reg *devhost.Registry) error {
	for _, d := range []struct {
		lib, name string
		factory   devhost.DriverFactory
	}{
		{LibRoot, "root bus", func() devhost.DriverOps { return &rootDriver{} }},
		{LibNull, "null device", func() devhost.DriverOps { return publisher{name: "null", ops: NullOps{}} }},
		{LibZero, "zero device", func() devhost.DriverOps { return publisher{name: "zero", ops: ZeroOps{}} }},
	} {
		if err := reg.Register(d.lib, d.name, d.factory); err != nil {
			return err
		}
	}
	return nil
}

// Bootstrap adds the root device to h and binds the root driver to it,
// which publishes null and zero below it. The built-in drivers must be
// registered with h's registry.
func Bootstrap(ctx context.Context, h *devhost.Host) (*devhost.Device, error) {
	root, err := h.AddRoot(ctx, nil, RootName, nil)
	if err != nil {
		return nil, fmt.Errorf("add root: %w", err)
	}
	if err := h.Bind(ctx, root, LibRoot); err != nil {
		return nil, fmt.Errorf("bind root: %w", err)
	}
	return root, nil
}

// rootDriver publishes the built-in leaf devices below the root.
type rootDriver struct{}

func (*rootDriver) Init(context.Context) error { return nil }

func (*rootDriver) Bind(_ context.Context, tx *devhost.Tx, parent *devhost.Device) error {
	if err := publish(tx, parent, "null", NullOps{}); err != nil {
		return err
	}
	return publish(tx, parent, "zero", ZeroOps{})
}

func (*rootDriver) Release() {}

// publisher is a driver that adds one named leaf below whatever it is
// bound to.
type publisher struct {
	name string
	ops  devhost.Ops
}

func (publisher) Init(context.Context) error { return nil }

func (p publisher) Bind(_ context.Context, tx *devhost.Tx, parent *devhost.Device) error {
	return publish(tx, parent, p.name, p.ops)
}

func (publisher) Release() {}

func publish(tx *devhost.Tx, parent *devhost.Device, name string, ops devhost.Ops) error {
	grant, err := grantFor(tx, parent, name)
	if err != nil {
		return fmt.Errorf("publish %s: %w", name, err)
	}
	dev, err := tx.Create(parent, name, ops)
	if err != nil {
		return err
	}
	if err := tx.Add(dev, parent, devhost.AddArgs{Resource: grant}); err != nil {
		tx.Release(dev)
		return fmt.Errorf("publish %s: %w", name, err)
	}
	return nil
}

// grantFor narrows the parent's grant to name. Below a parent without a
// grant, such as the root, the scope is derived from the root resource as
// "<parent>/<name>". Without a root resource there is nothing to grant.
func grantFor(tx *devhost.Tx, parent *devhost.Device, name string) (*resource.Handle, error) {
	if h := tx.Resource(parent); h != nil {
		return h.Child(name)
	}
	root := tx.RootResource()
	if root == nil {
		return nil, nil
	}
	return root.Grant(parent.Name() + "/" + name)
}
