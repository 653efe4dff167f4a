package devhost

import (
	"context"
	"fmt"

	"github.com/devhost-project/devhost-go/pkg/wire"
)

// Bind attaches a driver to dev. With a library name the driver is loaded
// from the registry and its bind callback runs under the tree lock. With an
// empty name the coordinator is asked to choose; its answer arrives later as
// a BindDriver instruction. A failed bind leaves dev usable and driverless.
func (h *Host) Bind(ctx context.Context, dev *Device, libname string) error {
	return h.Do(ctx, func(tx *Tx) error { return tx.Bind(dev, libname) })
}

// Bind attaches a driver to dev. See Host.Bind.
func (tx *Tx) Bind(dev *Device, libname string) error {
	tx.check("Bind")
	h := tx.host

	if dev.Dead() {
		return fmt.Errorf("%w: device %s is dead", ErrBadState, dev.name)
	}
	switch st := dev.State(); st {
	case StateInstalled, StateAdded, StateUnbound:
	case StateBound:
		return fmt.Errorf("%w: device %s already bound", ErrAlreadyExists, dev.name)
	default:
		return fmt.Errorf("%w: cannot bind device %s in state %s", ErrBadState, dev.name, st)
	}

	if libname == "" {
		if err := h.coord.RequestBind(wire.BindDevice{DeviceID: uint64(dev.id)}); err != nil {
			dev.setFlags(FlagUncoordinated)
			return fmt.Errorf("%w: bind request for %s: %v", ErrPeerClosed, dev.name, err)
		}
		h.debugLog("coordinator bind requested", "deviceID", dev.id, "name", dev.name)
		return nil
	}

	drv, err := h.registry.Load(tx.ctx, libname)
	if err != nil {
		h.warnLog("driver load failed", "libname", libname, "error", err)
		return err
	}

	drv.acquire()
	if err := drv.callbacks().Bind(tx.ctx, tx.withDriver(drv), dev); err != nil {
		drv.release()
		h.warnLog("driver bind failed", "libname", libname, "deviceID", dev.id, "error", err)
		return fmt.Errorf("bind %s to %s: %w", libname, dev.name, err)
	}
	if dev.Dead() {
		// The bind callback removed the device it was bound to.
		drv.release()
		return fmt.Errorf("%w: device %s removed during bind", ErrBadState, dev.name)
	}

	old := dev.State()
	dev.bound = drv
	dev.clearFlags(FlagUnbound)
	dev.setState(StateBound)
	h.debugLog("driver bound", "libname", libname, "deviceID", dev.id, "name", dev.name)
	h.logState(dev, old, StateBound, libname)
	return nil
}

// Unbind runs the device's unbind callback and marks it unbound. The device
// stays in the tree. Callback errors are logged, not returned. Unbinding an
// unbound device does nothing.
func (h *Host) Unbind(ctx context.Context, dev *Device) error {
	return h.Do(ctx, func(tx *Tx) error { return tx.Unbind(dev) })
}

// Unbind marks dev unbound. See Host.Unbind.
func (tx *Tx) Unbind(dev *Device) error {
	tx.check("Unbind")
	if dev.Dead() || !dev.State().resident() {
		return fmt.Errorf("%w: device %s is %s", ErrBadState, dev.name, dev.State())
	}
	if dev.Flags()&FlagUnbound != 0 {
		return nil
	}
	tx.unbind(dev)
	return nil
}

// unbind tears down the binding of dev. The flag is set before the callback
// runs so a callback that removes its own device does not unbind twice.
func (tx *Tx) unbind(dev *Device) {
	h := tx.host
	dev.setFlags(FlagUnbound)
	if err := dev.ops.Unbind(tx.ctx, tx.withDriver(dev.owner)); err != nil {
		h.warnLog("unbind callback failed", "deviceID", dev.id, "name", dev.name, "error", err)
	}
	if dev.bound != nil {
		dev.bound.release()
		dev.bound = nil
	}
	if !dev.Dead() {
		old := dev.State()
		dev.setState(StateUnbound)
		h.logState(dev, old, StateUnbound, "")
	}
}

// Rebind tears down the current binding and asks the coordinator for a new
// one. Devices with live children are rejected with ErrBusy: the children
// belong to the binding being replaced.
func (h *Host) Rebind(ctx context.Context, dev *Device) error {
	return h.Do(ctx, func(tx *Tx) error { return tx.Rebind(dev) })
}

// Rebind replaces the binding of dev. See Host.Rebind.
func (tx *Tx) Rebind(dev *Device) error {
	tx.check("Rebind")
	if dev.Dead() || !dev.State().resident() {
		return fmt.Errorf("%w: device %s is %s", ErrBadState, dev.name, dev.State())
	}
	if len(dev.children) > 0 {
		return fmt.Errorf("%w: device %s has %d children", ErrBusy, dev.name, len(dev.children))
	}
	if dev.Flags()&FlagUnbound == 0 {
		tx.unbind(dev)
	}
	if dev.Dead() {
		return fmt.Errorf("%w: device %s removed during unbind", ErrBadState, dev.name)
	}
	dev.clearFlags(FlagUnbound)
	return tx.Bind(dev, "")
}

// BindDriver handles a coordinator instruction to bind libname to a device.
func (h *Host) BindDriver(ctx context.Context, id DeviceID, libname string) error {
	if libname == "" {
		return fmt.Errorf("%w: empty library name", ErrInvalidArgs)
	}
	dev, err := h.Device(id)
	if err != nil {
		return err
	}
	return h.Bind(ctx, dev, libname)
}

// HandleBindDriver implements coordinator.InstructionHandler.
func (h *Host) HandleBindDriver(ctx context.Context, msg wire.BindDriver) error {
	return h.BindDriver(ctx, DeviceID(msg.DeviceID), msg.LibName)
}

// HandleAddDeviceReply implements coordinator.InstructionHandler. It records
// the coordinator's ID for the device, or marks it uncoordinated when the
// coordinator refused it.
func (h *Host) HandleAddDeviceReply(_ context.Context, msg wire.AddDeviceReply) error {
	dev, err := h.Device(DeviceID(msg.DeviceID))
	if err != nil {
		return err
	}
	if msg.Status != wire.StatusOK {
		dev.setFlags(FlagUncoordinated)
		h.warnLog("coordinator refused device", "deviceID", dev.id, "status", msg.Status)
		return nil
	}
	dev.remoteID.Store(msg.RemoteID)
	dev.clearFlags(FlagUncoordinated)
	h.debugLog("coordinator accepted device", "deviceID", dev.id, "remoteID", msg.RemoteID)
	return nil
}
