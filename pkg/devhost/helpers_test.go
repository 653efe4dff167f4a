package devhost

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// testOps is a callback table that records what the host invoked.
type testOps struct {
	DefaultOps

	mu       sync.Mutex
	unbinds  int
	released atomic.Int32
	opens    atomic.Int32
	closes   atomic.Int32

	onUnbind func(ctx context.Context, tx *Tx) error
	openAt   func(ctx context.Context, path string) (*Device, error)
}

func (o *testOps) Open(context.Context, uint32) error {
	o.opens.Add(1)
	return nil
}

func (o *testOps) Close(context.Context, uint32) error {
	o.closes.Add(1)
	return nil
}

func (o *testOps) OpenAt(ctx context.Context, path string, _ uint32) (*Device, error) {
	if o.openAt == nil {
		return nil, ErrNotSupported
	}
	return o.openAt(ctx, path)
}

func (o *testOps) Unbind(ctx context.Context, tx *Tx) error {
	o.mu.Lock()
	o.unbinds++
	fn := o.onUnbind
	o.mu.Unlock()
	if fn != nil {
		return fn(ctx, tx)
	}
	return nil
}

func (o *testOps) Release() { o.released.Add(1) }

func (o *testOps) unbindCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.unbinds
}

// funcDriver adapts functions to DriverOps.
type funcDriver struct {
	init     func(ctx context.Context) error
	bind     func(ctx context.Context, tx *Tx, parent *Device) error
	released atomic.Int32
}

func (d *funcDriver) Init(ctx context.Context) error {
	if d.init != nil {
		return d.init(ctx)
	}
	return nil
}

func (d *funcDriver) Bind(ctx context.Context, tx *Tx, parent *Device) error {
	if d.bind != nil {
		return d.bind(ctx, tx, parent)
	}
	return nil
}

func (d *funcDriver) Release() { d.released.Add(1) }

func newTestHost(t *testing.T, cfg HostConfig) (*Host, *Device) {
	t.Helper()
	h := NewHost(cfg)
	root, err := h.AddRoot(context.Background(), nil, "root", &testOps{})
	require.NoError(t, err)
	return h, root
}

// addDevice creates and adds a device in one step.
func addDevice(t *testing.T, h *Host, parent *Device, name string, ops Ops, props ...Property) *Device {
	t.Helper()
	ctx := context.Background()
	if ops == nil {
		ops = &testOps{}
	}
	dev, err := h.Create(ctx, nil, parent, name, ops)
	require.NoError(t, err)
	require.NoError(t, h.Add(ctx, dev, parent, AddArgs{Props: props}))
	return dev
}

func children(t *testing.T, h *Host, dev *Device) []*Device {
	t.Helper()
	var out []*Device
	require.NoError(t, h.Do(context.Background(), func(tx *Tx) error {
		out = tx.Children(dev)
		return nil
	}))
	return out
}

func destroyed(dev *Device) bool {
	select {
	case <-dev.Done():
		return true
	default:
		return false
	}
}

func waitDestroyed(t *testing.T, dev *Device) {
	t.Helper()
	select {
	case <-dev.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("device %s not destroyed (refs=%d)", dev.Name(), dev.Refs())
	}
}

// recoverInvariant runs fn and returns the *InvariantError it panicked with.
func recoverInvariant(fn func()) (ie *InvariantError) {
	defer func() {
		if r := recover(); r != nil {
			ie, _ = r.(*InvariantError)
		}
	}()
	fn()
	return nil
}
