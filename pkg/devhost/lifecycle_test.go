package devhost

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/devhost-project/devhost-go/pkg/devhost/mocks"
	"github.com/devhost-project/devhost-go/pkg/resource"
	"github.com/devhost-project/devhost-go/pkg/wire"
)

func TestAddThenRemoveChild(t *testing.T) {
	h, root := newTestHost(t, HostConfig{})

	ops := &testOps{}
	child := addDevice(t, h, root, "child", ops, Property{ID: 1, Value: 5})

	assert.Equal(t, int64(1), child.Refs())
	assert.Equal(t, StateAdded, child.State())
	require.Len(t, children(t, h, root), 1)

	require.NoError(t, h.Do(context.Background(), func(tx *Tx) error {
		assert.Equal(t, []Property{{ID: 1, Value: 5}}, tx.Props(child))
		assert.Same(t, root, tx.Parent(child))
		return nil
	}))

	require.NoError(t, h.Remove(context.Background(), child))
	waitDestroyed(t, child)
	assert.Equal(t, int64(0), child.Refs())
	assert.Equal(t, StateDestroyed, child.State())
	assert.Equal(t, int32(1), ops.released.Load())
	assert.Empty(t, children(t, h, root))

	_, err := h.Device(child.ID())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRemoveWaitsForOpenReferences(t *testing.T) {
	h, root := newTestHost(t, HostConfig{})
	child := addDevice(t, h, root, "child", nil)

	conn := child.Ref()
	assert.Equal(t, int64(2), child.Refs())

	require.NoError(t, h.Remove(context.Background(), child))
	assert.True(t, child.Dead())
	assert.Equal(t, FlagDead|FlagRemovePending|FlagUnbound|FlagUncoordinated, child.Flags())
	assert.Equal(t, int64(1), child.Refs())
	assert.False(t, destroyed(child))
	assert.Empty(t, children(t, h, root))

	conn.Drop()
	assert.True(t, destroyed(child))

	// A second Drop must not release again.
	conn.Drop()
	assert.Equal(t, int64(0), child.Refs())
}

func TestCreateValidation(t *testing.T) {
	h, root := newTestHost(t, HostConfig{})
	ctx := context.Background()

	for _, name := range []string{"", "a/b", ".", ".."} {
		_, err := h.Create(ctx, nil, root, name, nil)
		assert.ErrorIs(t, err, ErrInvalidArgs, "name %q", name)
	}
	_, err := h.Create(ctx, nil, nil, "orphan", nil)
	assert.ErrorIs(t, err, ErrInvalidArgs)

	dev, err := h.Create(ctx, nil, root, "fresh", nil)
	require.NoError(t, err)
	assert.Equal(t, StateCreated, dev.State())
	assert.Equal(t, int64(1), dev.Refs())
	assert.Empty(t, children(t, h, root), "created devices are not linked")

	// The creator can drop an unadded device.
	dev.Release()
	assert.True(t, destroyed(dev))
}

func TestAddFailuresLeaveNoLinkage(t *testing.T) {
	ctx := context.Background()

	t.Run("duplicate name", func(t *testing.T) {
		h, root := newTestHost(t, HostConfig{})
		addDevice(t, h, root, "dup", nil)

		dev, err := h.Create(ctx, nil, root, "dup", nil)
		require.NoError(t, err)
		assert.ErrorIs(t, h.Add(ctx, dev, root, AddArgs{}), ErrAlreadyExists)
		assert.Equal(t, StateCreated, dev.State())
		assert.Len(t, children(t, h, root), 1)
	})

	t.Run("added twice", func(t *testing.T) {
		h, root := newTestHost(t, HostConfig{})
		dev := addDevice(t, h, root, "once", nil)
		assert.ErrorIs(t, h.Add(ctx, dev, root, AddArgs{}), ErrAlreadyExists)
	})

	t.Run("dead parent", func(t *testing.T) {
		h, root := newTestHost(t, HostConfig{})
		parent := addDevice(t, h, root, "parent", nil)
		dev, err := h.Create(ctx, nil, parent, "late", nil)
		require.NoError(t, err)

		require.NoError(t, h.Remove(ctx, parent))
		assert.ErrorIs(t, h.Add(ctx, dev, parent, AddArgs{}), ErrBadState)
		assert.Equal(t, StateCreated, dev.State())
	})

	t.Run("other parent", func(t *testing.T) {
		h, root := newTestHost(t, HostConfig{})
		a := addDevice(t, h, root, "a", nil)
		b := addDevice(t, h, root, "b", nil)
		dev, err := h.Create(ctx, nil, a, "x", nil)
		require.NoError(t, err)
		assert.ErrorIs(t, h.Add(ctx, dev, b, AddArgs{}), ErrInvalidArgs)
		assert.Empty(t, children(t, h, b))
	})

	t.Run("device limit", func(t *testing.T) {
		h, root := newTestHost(t, HostConfig{MaxDevices: 2})
		addDevice(t, h, root, "one", nil)

		dev, err := h.Create(ctx, nil, root, "two", nil)
		require.NoError(t, err)
		assert.ErrorIs(t, h.Add(ctx, dev, root, AddArgs{}), ErrNoResources)
		assert.Len(t, children(t, h, root), 1)
	})
}

func TestRemoveCascadesDepthFirst(t *testing.T) {
	h, root := newTestHost(t, HostConfig{RemovePolicy: RemoveCascade})
	ctx := context.Background()

	var order []string
	record := func(name string) *testOps {
		return &testOps{onUnbind: func(context.Context, *Tx) error {
			order = append(order, name)
			return nil
		}}
	}

	bus := addDevice(t, h, root, "bus", record("bus"))
	a := addDevice(t, h, bus, "a", record("a"))
	a1 := addDevice(t, h, a, "a1", record("a1"))
	b := addDevice(t, h, bus, "b", record("b"))

	require.NoError(t, h.Remove(ctx, bus))
	assert.Equal(t, []string{"b", "a1", "a", "bus"}, order)
	for _, d := range []*Device{bus, a, a1, b} {
		assert.True(t, destroyed(d), d.Name())
	}
	assert.Empty(t, children(t, h, root))
}

func TestRemoveRejectsParents(t *testing.T) {
	h, root := newTestHost(t, HostConfig{RemovePolicy: RemoveReject})
	ctx := context.Background()

	parent := addDevice(t, h, root, "parent", nil)
	child := addDevice(t, h, parent, "child", nil)

	assert.ErrorIs(t, h.Remove(ctx, parent), ErrBusy)
	assert.False(t, parent.Dead())
	assert.Len(t, children(t, h, parent), 1)

	require.NoError(t, h.Remove(ctx, child))
	require.NoError(t, h.Remove(ctx, parent))
	assert.True(t, destroyed(parent))
}

func TestRemoveRootNeedsShutdown(t *testing.T) {
	h, root := newTestHost(t, HostConfig{})
	assert.ErrorIs(t, h.Remove(context.Background(), root), ErrInvalidArgs)
	assert.False(t, root.Dead())
}

func TestRemoveTwice(t *testing.T) {
	h, root := newTestHost(t, HostConfig{})
	dev := addDevice(t, h, root, "dev", nil)
	ref := dev.Ref()
	defer ref.Drop()

	require.NoError(t, h.Remove(context.Background(), dev))
	assert.ErrorIs(t, h.Remove(context.Background(), dev), ErrBadState)
	assert.Equal(t, int64(1), dev.Refs())
}

func TestUnbindCallbackRemovingItsDevice(t *testing.T) {
	h, root := newTestHost(t, HostConfig{})
	ops := &testOps{}
	dev := addDevice(t, h, root, "self", ops)
	ops.onUnbind = func(_ context.Context, tx *Tx) error {
		return tx.Remove(dev)
	}

	require.NoError(t, h.Remove(context.Background(), dev))
	assert.Equal(t, 1, ops.unbindCount())
	assert.True(t, destroyed(dev))
}

func TestInstallSkipsCoordinator(t *testing.T) {
	coord := mocks.NewMockCoordinator(t)
	coord.EXPECT().NotifyAdd(mock.MatchedBy(func(m wire.AddDevice) bool { return m.Name == "root" })).Return(nil).Once()

	h, root := newTestHost(t, HostConfig{Coordinator: coord})
	ctx := context.Background()

	dev, err := h.Create(ctx, nil, root, "proxy", nil)
	require.NoError(t, err)
	require.NoError(t, h.Install(ctx, dev))
	assert.Equal(t, StateInstalled, dev.State())
	assert.Zero(t, dev.Flags()&FlagUncoordinated)

	ref, err := h.Lookup(ctx, root, "proxy", 0)
	require.NoError(t, err)
	assert.Same(t, dev, ref.Device())
	ref.Drop()

	assert.ErrorIs(t, h.Install(ctx, dev), ErrAlreadyExists)
	require.NoError(t, h.Remove(ctx, dev))
	assert.True(t, destroyed(dev))
}

func TestCoordinatorNotifications(t *testing.T) {
	root, _ := resource.NewRoot([]byte("secret"))
	grant, err := root.Grant("pci/00:02.0")
	require.NoError(t, err)
	encoded, err := grant.Encode()
	require.NoError(t, err)

	coord := mocks.NewMockCoordinator(t)
	coord.EXPECT().NotifyAdd(mock.MatchedBy(func(m wire.AddDevice) bool { return m.Name == "root" })).Return(nil).Once()
	coord.EXPECT().NotifyAdd(wire.AddDevice{
		DeviceID: 2,
		ParentID: 1,
		Name:     "gpu",
		Props:    []wire.Property{{ID: 1, Value: 5}},
		BusInfo:  "pci",
		Resource: encoded,
		TopoPath: "/dev/root/gpu",
	}).Return(nil).Once()
	coord.EXPECT().NotifyRemove(wire.RemoveDevice{DeviceID: 2, RemoteID: 42}).Return(nil).Once()

	h, rootDev := newTestHost(t, HostConfig{Coordinator: coord})
	ctx := context.Background()

	dev, err := h.Create(ctx, nil, rootDev, "gpu", nil)
	require.NoError(t, err)
	require.NoError(t, h.Add(ctx, dev, rootDev, AddArgs{
		Props:    []Property{{ID: 1, Value: 5}},
		BusInfo:  "pci",
		Resource: grant,
	}))
	assert.Zero(t, dev.Flags()&FlagUncoordinated)

	require.NoError(t, h.HandleAddDeviceReply(ctx, wire.AddDeviceReply{DeviceID: 2, RemoteID: 42}))
	assert.Equal(t, uint64(42), dev.RemoteID())

	require.NoError(t, h.Remove(ctx, dev))
}

func TestNotifyFailureDegradesToUncoordinated(t *testing.T) {
	// The default coordinator is coordinator.Nop, which refuses everything.
	h, root := newTestHost(t, HostConfig{})
	ctx := context.Background()

	dev := addDevice(t, h, root, "local", nil)
	assert.Equal(t, StateAdded, dev.State())
	assert.NotZero(t, dev.Flags()&FlagUncoordinated)

	// A late reply from a coordinator clears the flag.
	require.NoError(t, h.HandleAddDeviceReply(ctx, wire.AddDeviceReply{DeviceID: uint64(dev.ID()), RemoteID: 9}))
	assert.Zero(t, dev.Flags()&FlagUncoordinated)

	require.NoError(t, h.HandleAddDeviceReply(ctx, wire.AddDeviceReply{DeviceID: uint64(dev.ID()), Status: wire.StatusNoResources}))
	assert.NotZero(t, dev.Flags()&FlagUncoordinated)

	assert.ErrorIs(t, h.HandleAddDeviceReply(ctx, wire.AddDeviceReply{DeviceID: 999}), ErrNotFound)
}

func TestAddRoot(t *testing.T) {
	h, root := newTestHost(t, HostConfig{})
	assert.Same(t, root, h.Root())
	assert.Equal(t, StateAdded, root.State())

	_, err := h.AddRoot(context.Background(), nil, "again", nil)
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestShutdownDrainsReferences(t *testing.T) {
	reg := NewRegistry()
	drv := &funcDriver{}
	require.NoError(t, reg.Register("bus", "bus", func() DriverOps { return drv }))

	h, root := newTestHost(t, HostConfig{Registry: reg, RemovePolicy: RemoveReject})
	ctx := context.Background()
	bus := addDevice(t, h, root, "bus", nil)
	leaf := addDevice(t, h, bus, "leaf", nil)
	require.NoError(t, h.Bind(ctx, bus, "bus"))

	conn := leaf.Ref()
	done := make(chan error, 1)
	go func() { done <- h.Shutdown(ctx) }()

	// Shutdown cascades regardless of the reject policy, then waits on leaf.
	waitDestroyed(t, bus)
	assert.True(t, leaf.Dead())
	select {
	case err := <-done:
		t.Fatalf("shutdown returned early: %v", err)
	default:
	}

	conn.Drop()
	require.NoError(t, <-done)
	assert.True(t, destroyed(root))
	assert.Nil(t, h.Root())
	assert.Zero(t, h.Len())
	assert.Equal(t, int32(1), drv.released.Load())

	_, err := h.AddRoot(ctx, nil, "root", nil)
	assert.ErrorIs(t, err, ErrBadState)
}

func TestShutdownTimesOut(t *testing.T) {
	h, root := newTestHost(t, HostConfig{})
	leaf := addDevice(t, h, root, "leaf", nil)
	conn := leaf.Ref()
	defer conn.Drop()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, h.Shutdown(ctx), context.Canceled)
	assert.True(t, h.ShuttingDown())
}

func TestWalk(t *testing.T) {
	h, root := newTestHost(t, HostConfig{})
	a := addDevice(t, h, root, "a", nil)
	addDevice(t, h, a, "a1", nil)
	addDevice(t, h, root, "b", nil)

	var got []string
	require.NoError(t, h.Walk(context.Background(), func(_ *Tx, d *Device, depth int) error {
		got = append(got, string(rune('0'+depth))+d.Name())
		return nil
	}))
	assert.Equal(t, []string{"0root", "1a", "2a1", "1b"}, got)
}
