package devhost

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/devhost-project/devhost-go/pkg/wire"
)

// Remove takes dev out of the tree: children are handled per RemovePolicy,
// the unbind callback runs, the device is marked dead and detached, the
// coordinator is notified and the tree's reference is released. The device
// is destroyed once every other reference is dropped; Done reports it.
//
// The root can only be removed by Shutdown.
func (h *Host) Remove(ctx context.Context, dev *Device) error {
	return h.Do(ctx, func(tx *Tx) error { return tx.Remove(dev) })
}

// Remove takes dev out of the tree. See Host.Remove.
func (tx *Tx) Remove(dev *Device) error {
	tx.check("Remove")
	if dev == tx.host.Root() && !tx.host.shuttingDown.Load() {
		return fmt.Errorf("%w: the root device is removed by shutdown only", ErrInvalidArgs)
	}
	return tx.remove(dev, tx.host.policy == RemoveCascade)
}

func (tx *Tx) remove(dev *Device, cascade bool) error {
	h := tx.host
	if dev.Dead() {
		return fmt.Errorf("%w: device %s already removed", ErrBadState, dev.name)
	}
	st := dev.State()
	if !st.resident() {
		return fmt.Errorf("%w: device %s is %s", ErrBadState, dev.name, st)
	}

	if len(dev.children) > 0 {
		if !cascade {
			return fmt.Errorf("%w: device %s has %d children", ErrBusy, dev.name, len(dev.children))
		}
		children := tx.Children(dev)
		for i := len(children) - 1; i >= 0; i-- {
			if err := tx.remove(children[i], true); err != nil && !errors.Is(err, ErrBadState) {
				return err
			}
		}
	}

	if dev.Flags()&FlagUnbound == 0 {
		tx.unbind(dev)
	}
	if dev.Dead() {
		// The unbind callback removed the device itself.
		return nil
	}
	if len(dev.children) > 0 {
		return fmt.Errorf("%w: device %s gained children during unbind", ErrBusy, dev.name)
	}

	dev.setFlags(FlagDead | FlagRemovePending)
	dev.setState(StateRemoved)

	if parent := tx.Parent(dev); parent != nil {
		parent.children = slices.DeleteFunc(parent.children, func(id DeviceID) bool { return id == dev.id })
	}
	dev.parent = NoDevice
	h.resident--

	if st != StateInstalled {
		msg := wire.RemoveDevice{DeviceID: uint64(dev.id), RemoteID: dev.RemoteID()}
		if err := h.coord.NotifyRemove(msg); err != nil {
			h.warnLog("coordinator remove notification failed", "deviceID", dev.id, "error", err)
		}
	}

	h.debugLog("device removed", "deviceID", dev.id, "name", dev.name, "refs", dev.Refs()-1)
	h.logState(dev, st, StateRemoved, "")
	dev.Signal(wire.SignalHangup)

	dev.Release()
	return nil
}

// Shutdown removes the whole tree, cascading regardless of RemovePolicy, and
// waits until every removed device is destroyed or ctx expires. Unreferenced
// drivers are unloaded afterwards.
func (h *Host) Shutdown(ctx context.Context) error {
	h.shuttingDown.Store(true)

	var removed []*Device
	err := h.Do(ctx, func(tx *Tx) error {
		root := h.Root()
		if root == nil || root.Dead() {
			return nil
		}
		tx.walk(root, 0, func(d *Device, _ int) error {
			removed = append(removed, d)
			return nil
		})
		return tx.remove(root, true)
	})
	if err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	for _, d := range removed {
		select {
		case <-d.Done():
		case <-ctx.Done():
			return fmt.Errorf("shutdown: device %s still referenced: %w", d.name, ctx.Err())
		}
	}

	for _, drv := range h.registry.Drivers() {
		if err := h.registry.Unload(drv.LibName); err != nil {
			h.warnLog("driver unload failed", "libname", drv.LibName, "error", err)
		}
	}
	h.debugLog("host shut down", "devices", len(removed))
	return nil
}

// ShuttingDown reports whether Shutdown has been called.
func (h *Host) ShuttingDown() bool {
	return h.shuttingDown.Load()
}

// Walk visits the tree depth-first from the root under the tree lock. fn
// must not call back into the Host.
func (h *Host) Walk(ctx context.Context, fn func(tx *Tx, dev *Device, depth int) error) error {
	return h.Do(ctx, func(tx *Tx) error {
		root := h.Root()
		if root == nil {
			return nil
		}
		return tx.walk(root, 0, func(d *Device, depth int) error { return fn(tx, d, depth) })
	})
}

func (tx *Tx) walk(dev *Device, depth int, fn func(*Device, int) error) error {
	if err := fn(dev, depth); err != nil {
		return err
	}
	for _, c := range tx.Children(dev) {
		if err := tx.walk(c, depth+1, fn); err != nil {
			return err
		}
	}
	return nil
}
