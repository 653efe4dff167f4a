package devhost

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/devhost-project/devhost-go/pkg/devhost/mocks"
	"github.com/devhost-project/devhost-go/pkg/wire"
)

func TestBindPublishesChildrenThroughTx(t *testing.T) {
	reg := NewRegistry()
	drv := &funcDriver{bind: func(_ context.Context, tx *Tx, parent *Device) error {
		for _, name := range []string{"port0", "port1"} {
			child, err := tx.Create(parent, name, nil)
			if err != nil {
				return err
			}
			if err := tx.Add(child, parent, AddArgs{BusInfo: "usb"}); err != nil {
				return err
			}
		}
		return nil
	}}
	require.NoError(t, reg.Register("hub", "usb hub", func() DriverOps { return drv }))

	h, root := newTestHost(t, HostConfig{Registry: reg})
	ctx := context.Background()
	hub := addDevice(t, h, root, "hub", nil)

	require.NoError(t, h.Bind(ctx, hub, "hub"))
	assert.Equal(t, StateBound, hub.State())

	kids := children(t, h, hub)
	require.Len(t, kids, 2)
	d, _ := reg.Lookup("hub")
	for _, k := range kids {
		assert.Same(t, d, k.Owner())
	}
	// One reference for the binding, one per created child.
	assert.Equal(t, int64(3), d.Refs())

	assert.ErrorIs(t, h.Bind(ctx, hub, "hub"), ErrAlreadyExists)

	require.NoError(t, h.Remove(ctx, hub))
	waitDestroyed(t, hub)
	assert.Zero(t, d.Refs())
}

func TestBindFailureLeavesDeviceUsable(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register("flaky", "flaky", func() DriverOps {
		return &funcDriver{bind: func(context.Context, *Tx, *Device) error {
			return errors.New("bind refused")
		}}
	}))
	h, root := newTestHost(t, HostConfig{Registry: reg})
	ctx := context.Background()
	dev := addDevice(t, h, root, "dev", nil)

	err := h.Bind(ctx, dev, "flaky")
	require.Error(t, err)
	assert.Equal(t, StateAdded, dev.State())

	ref, err := h.Lookup(ctx, root, "dev", 0)
	require.NoError(t, err)
	ref.Drop()

	assert.ErrorIs(t, h.Bind(ctx, dev, "missing"), ErrNotFound)
}

func TestDriverInitFailureIsCached(t *testing.T) {
	reg := NewRegistry()
	calls := 0
	require.NoError(t, reg.Register("broken", "broken", func() DriverOps {
		calls++
		return &funcDriver{init: func(context.Context) error { return errors.New("no hardware") }}
	}))

	ctx := context.Background()
	_, err1 := reg.Load(ctx, "broken")
	_, err2 := reg.Load(ctx, "broken")
	require.Error(t, err1)
	assert.Equal(t, err1, err2)
	assert.Equal(t, 1, calls)

	drv, ok := reg.Lookup("broken")
	require.True(t, ok)
	assert.False(t, drv.Loaded())
	assert.Error(t, drv.Status())
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	drv := &funcDriver{}
	require.NoError(t, reg.Register("a", "driver a", func() DriverOps { return drv }))
	require.NoError(t, reg.Register("b", "driver b", func() DriverOps { return &funcDriver{} }))

	assert.ErrorIs(t, reg.Register("a", "dup", func() DriverOps { return nil }), ErrAlreadyExists)
	assert.ErrorIs(t, reg.Register("", "anon", func() DriverOps { return nil }), ErrInvalidArgs)

	drivers := reg.Drivers()
	require.Len(t, drivers, 2)
	assert.Equal(t, "a", drivers[0].LibName)
	assert.Equal(t, "b", drivers[1].LibName)

	loaded, err := reg.Load(context.Background(), "a")
	require.NoError(t, err)
	assert.True(t, loaded.Loaded())

	loaded.acquire()
	assert.ErrorIs(t, reg.Unload("a"), ErrBusy)
	loaded.release()

	require.NoError(t, reg.Unload("a"))
	assert.Equal(t, int32(1), drv.released.Load())
	assert.False(t, loaded.Loaded())
	assert.ErrorIs(t, reg.Unload("zzz"), ErrNotFound)
}

func TestUnbindIsIdempotent(t *testing.T) {
	ops := &testOps{onUnbind: func(context.Context, *Tx) error {
		return errors.New("teardown glitch")
	}}
	h, root := newTestHost(t, HostConfig{})
	ctx := context.Background()
	dev := addDevice(t, h, root, "dev", ops)

	require.NoError(t, h.Unbind(ctx, dev))
	require.NoError(t, h.Unbind(ctx, dev))
	assert.Equal(t, 1, ops.unbindCount())
	assert.Equal(t, StateUnbound, dev.State())

	// Remove does not unbind a second time.
	require.NoError(t, h.Remove(ctx, dev))
	assert.Equal(t, 1, ops.unbindCount())
}

func TestRebind(t *testing.T) {
	coord := mocks.NewMockCoordinator(t)
	coord.EXPECT().NotifyAdd(mock.Anything).Return(nil)
	coord.EXPECT().NotifyRemove(mock.Anything).Return(nil)

	reg := NewRegistry()
	require.NoError(t, reg.Register("drv", "drv", func() DriverOps { return &funcDriver{} }))
	h, root := newTestHost(t, HostConfig{Registry: reg, Coordinator: coord})
	ctx := context.Background()

	dev := addDevice(t, h, root, "dev", nil)
	require.NoError(t, h.Bind(ctx, dev, "drv"))
	child := addDevice(t, h, dev, "child", nil)

	assert.ErrorIs(t, h.Rebind(ctx, dev), ErrBusy)
	assert.Equal(t, StateBound, dev.State())

	require.NoError(t, h.Remove(ctx, child))

	coord.EXPECT().RequestBind(wire.BindDevice{DeviceID: uint64(dev.ID())}).Return(nil).Once()
	require.NoError(t, h.Rebind(ctx, dev))
	assert.Equal(t, StateUnbound, dev.State())
	assert.Zero(t, dev.Flags()&FlagUnbound, "rebind clears the unbound flag for the next binding")

	drv, _ := reg.Lookup("drv")
	assert.Zero(t, drv.Refs())

	// The coordinator answers with a driver.
	require.NoError(t, h.HandleBindDriver(ctx, wire.BindDriver{DeviceID: uint64(dev.ID()), LibName: "drv"}))
	assert.Equal(t, StateBound, dev.State())
	assert.Equal(t, int64(1), drv.Refs())
}

func TestBindWithoutCoordinator(t *testing.T) {
	h, root := newTestHost(t, HostConfig{})
	dev := addDevice(t, h, root, "dev", nil)

	assert.ErrorIs(t, h.Bind(context.Background(), dev, ""), ErrPeerClosed)
	assert.NotZero(t, dev.Flags()&FlagUncoordinated)
	assert.Equal(t, StateAdded, dev.State())

	assert.ErrorIs(t, h.BindDriver(context.Background(), dev.ID(), ""), ErrInvalidArgs)
	assert.ErrorIs(t, h.BindDriver(context.Background(), 999, "x"), ErrNotFound)
}

func TestBindCallbackRemovingItsDevice(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register("eject", "eject", func() DriverOps {
		return &funcDriver{bind: func(_ context.Context, tx *Tx, parent *Device) error {
			return tx.Remove(parent)
		}}
	}))
	h, root := newTestHost(t, HostConfig{Registry: reg})
	dev := addDevice(t, h, root, "dev", nil)

	assert.ErrorIs(t, h.Bind(context.Background(), dev, "eject"), ErrBadState)
	assert.True(t, destroyed(dev))
	drv, _ := reg.Lookup("eject")
	assert.Zero(t, drv.Refs())
}
