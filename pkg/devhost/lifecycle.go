package devhost

import (
	"context"
	"fmt"

	"github.com/devhost-project/devhost-go/pkg/resource"
	"github.com/devhost-project/devhost-go/pkg/wire"
)

// AddArgs carries what Add attaches to a device besides its parent.
type AddArgs struct {
	Props    []Property
	BusInfo  string
	Resource *resource.Handle
}

// Create allocates a device owned by drv below parent. The device starts in
// StateCreated with one reference owned by the caller and is invisible until
// Add or Install.
func (h *Host) Create(ctx context.Context, drv *Driver, parent *Device, name string, ops Ops) (*Device, error) {
	var dev *Device
	err := h.Do(ctx, func(tx *Tx) error {
		var err error
		dev, err = tx.create(drv, parent, name, ops)
		return err
	})
	return dev, err
}

// Create allocates a device owned by the callback's driver.
func (tx *Tx) Create(parent *Device, name string, ops Ops) (*Device, error) {
	tx.check("Create")
	return tx.create(tx.driver, parent, name, ops)
}

func (tx *Tx) create(drv *Driver, parent *Device, name string, ops Ops) (*Device, error) {
	h := tx.host
	if !validName(name) {
		return nil, fmt.Errorf("%w: device name %q", ErrInvalidArgs, name)
	}
	if parent == nil {
		return nil, fmt.Errorf("%w: device %q needs a parent", ErrInvalidArgs, name)
	}
	if parent.Dead() || parent.State() == StateDestroyed {
		return nil, fmt.Errorf("%w: parent %s is dead", ErrBadState, parent.name)
	}
	dev := h.newDevice(drv, name, ops)
	dev.intended = parent.id
	h.debugLog("device created", "deviceID", dev.id, "name", name, "parentID", parent.id)
	return dev, nil
}

func (h *Host) newDevice(drv *Driver, name string, ops Ops) *Device {
	if ops == nil {
		ops = DefaultOps{}
	}
	dev := &Device{
		id:    DeviceID(h.nextID.Add(1)),
		name:  name,
		host:  h,
		ops:   ops,
		owner: drv,
		done:  make(chan struct{}),
	}
	dev.refs.Store(1)
	drv.acquire()

	h.arenaMu.Lock()
	h.devices[dev.id] = dev
	h.arenaMu.Unlock()

	h.logState(dev, StateCreated, StateCreated, "create")
	return dev
}

// AddRoot creates the root device and adds it to the empty tree.
func (h *Host) AddRoot(ctx context.Context, drv *Driver, name string, ops Ops) (*Device, error) {
	var dev *Device
	err := h.Do(ctx, func(tx *Tx) error {
		if !validName(name) {
			return fmt.Errorf("%w: device name %q", ErrInvalidArgs, name)
		}
		if h.Root() != nil {
			return fmt.Errorf("%w: root device", ErrAlreadyExists)
		}
		if h.shuttingDown.Load() {
			return fmt.Errorf("%w: host is shutting down", ErrBadState)
		}
		dev = h.newDevice(drv, name, ops)
		h.arenaMu.Lock()
		h.root = dev
		h.arenaMu.Unlock()
		h.resident++
		dev.setState(StateAdded)
		h.logState(dev, StateCreated, StateAdded, "root")
		tx.notifyAdd(dev)
		return nil
	})
	return dev, err
}

// Add links dev under parent, attaches its properties and reports it to the
// coordinator. On failure dev stays in StateCreated with no linkage.
func (h *Host) Add(ctx context.Context, dev, parent *Device, args AddArgs) error {
	return h.Do(ctx, func(tx *Tx) error { return tx.Add(dev, parent, args) })
}

// Add links dev under parent. See Host.Add.
func (tx *Tx) Add(dev, parent *Device, args AddArgs) error {
	tx.check("Add")
	if err := tx.link(dev, parent); err != nil {
		return err
	}
	dev.props = append([]Property(nil), args.Props...)
	dev.busInfo = args.BusInfo
	dev.resource = args.Resource
	dev.setState(StateAdded)

	tx.host.debugLog("device added", "deviceID", dev.id, "name", dev.name, "parentID", parent.id)
	tx.host.logState(dev, StateCreated, StateAdded, "")
	tx.notifyAdd(dev)
	return nil
}

// Install links dev under its create-time parent without reporting it to
// the coordinator. The device is reachable for I/O immediately, including
// from inside its own bind callback.
func (h *Host) Install(ctx context.Context, dev *Device) error {
	return h.Do(ctx, func(tx *Tx) error { return tx.Install(dev) })
}

// Install links dev under its create-time parent. See Host.Install.
func (tx *Tx) Install(dev *Device) error {
	tx.check("Install")
	parent, err := tx.host.Device(dev.intended)
	if err != nil {
		return fmt.Errorf("%w: parent of %s", ErrBadState, dev.name)
	}
	if err := tx.link(dev, parent); err != nil {
		return err
	}
	dev.setState(StateInstalled)
	tx.host.debugLog("device installed", "deviceID", dev.id, "name", dev.name, "parentID", parent.id)
	tx.host.logState(dev, StateCreated, StateInstalled, "")
	return nil
}

// link validates and performs the parent/child linkage shared by Add and
// Install. Nothing is modified unless every check passes.
func (tx *Tx) link(dev, parent *Device) error {
	h := tx.host
	if dev == nil || parent == nil || dev.host != h || parent.host != h {
		return fmt.Errorf("%w: device and parent must belong to this host", ErrInvalidArgs)
	}
	switch st := dev.State(); {
	case st == StateDestroyed || dev.Dead():
		return fmt.Errorf("%w: device %s is dead", ErrBadState, dev.name)
	case st != StateCreated:
		return fmt.Errorf("%w: device %s is %s", ErrAlreadyExists, dev.name, st)
	}
	if dev.intended != NoDevice && dev.intended != parent.id {
		return fmt.Errorf("%w: device %s was created under another parent", ErrInvalidArgs, dev.name)
	}
	if parent.Dead() || !parent.State().resident() {
		return fmt.Errorf("%w: parent %s is not live", ErrBadState, parent.name)
	}
	if _, dup := tx.Child(parent, dev.name); dup {
		return fmt.Errorf("%w: %s already has a child named %s", ErrAlreadyExists, parent.name, dev.name)
	}
	if h.maxDevs > 0 && h.resident >= h.maxDevs {
		return fmt.Errorf("%w: device limit %d reached", ErrNoResources, h.maxDevs)
	}

	dev.parent = parent.id
	dev.intended = parent.id
	parent.children = append(parent.children, dev.id)
	h.resident++
	return nil
}

func (tx *Tx) notifyAdd(dev *Device) {
	h := tx.host
	msg := wire.AddDevice{
		DeviceID: uint64(dev.id),
		ParentID: uint64(dev.parent),
		Name:     dev.name,
		Props:    wireProps(dev.props),
		BusInfo:  dev.busInfo,
	}
	if path, _, err := tx.TopoPath(dev, 0); err == nil {
		msg.TopoPath = path
	}
	if dev.resource != nil {
		if data, err := dev.resource.Encode(); err == nil {
			msg.Resource = data
		}
	}
	if err := h.coord.NotifyAdd(msg); err != nil {
		dev.setFlags(FlagUncoordinated)
		h.warnLog("coordinator add notification failed", "deviceID", dev.id, "name", dev.name, "error", err)
	}
}
