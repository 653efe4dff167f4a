package rpc

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/devhost-project/devhost-go/pkg/devhost"
	"github.com/devhost-project/devhost-go/pkg/drivers"
	"github.com/devhost-project/devhost-go/pkg/transport"
	"github.com/devhost-project/devhost-go/pkg/wire"
)

// memOps is a byte-slice backed device.
type memOps struct {
	devhost.DefaultOps

	mu     sync.Mutex
	data   []byte
	opens  atomic.Int32
	closes atomic.Int32
}

func (m *memOps) Open(context.Context, uint32) error {
	m.opens.Add(1)
	return nil
}

func (m *memOps) Close(context.Context, uint32) error {
	m.closes.Add(1)
	return nil
}

func (m *memOps) Read(_ context.Context, buf []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if off >= int64(len(m.data)) {
		return 0, nil
	}
	return copy(buf, m.data[off:]), nil
}

func (m *memOps) Write(_ context.Context, buf []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if end := off + int64(len(buf)); end > int64(len(m.data)) {
		m.data = append(m.data, make([]byte, end-int64(len(m.data)))...)
	}
	return copy(m.data[off:], buf), nil
}

func (m *memOps) GetSize() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.data))
}

// Ioctl 1 echoes its input.
func (m *memOps) Ioctl(_ context.Context, op uint32, in, out []byte) (int, error) {
	if op != 1 {
		return 0, devhost.ErrNotSupported
	}
	if len(out) < len(in) {
		return 0, devhost.ErrBufferTooSmall
	}
	return copy(out, in), nil
}

type testTree struct {
	host *devhost.Host
	root *devhost.Device
	mem  *devhost.Device
	ops  *memOps
}

func newTestTree(t *testing.T) *testTree {
	t.Helper()
	ctx := context.Background()
	reg := devhost.NewRegistry()
	require.NoError(t, drivers.Register(reg))
	h := devhost.NewHost(devhost.HostConfig{Registry: reg})
	root, err := drivers.Bootstrap(ctx, h)
	require.NoError(t, err)

	ops := &memOps{data: []byte("hello world")}
	mem, err := h.Create(ctx, nil, root, "mem", ops)
	require.NoError(t, err)
	require.NoError(t, h.Add(ctx, mem, root, devhost.AddArgs{}))
	return &testTree{host: h, root: root, mem: mem, ops: ops}
}

// fakeConn records frames a session sends.
type fakeConn struct {
	frames chan []byte
	closed atomic.Bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{frames: make(chan []byte, 64)}
}

func (c *fakeConn) ConnID() string { return "test-conn" }

func (c *fakeConn) Send(data []byte) error {
	if c.closed.Load() {
		return transport.ErrConnectionClosed
	}
	c.frames <- data
	return nil
}

func (c *fakeConn) Close() error {
	c.closed.Store(true)
	return nil
}

func (c *fakeConn) nextEvent(t *testing.T) wire.Event {
	t.Helper()
	for {
		select {
		case data := <-c.frames:
			if kind, _ := wire.PeekKind(data); kind != wire.MessageKindEvent {
				continue
			}
			ev, err := wire.DecodeEvent(data)
			require.NoError(t, err)
			return *ev
		case <-time.After(2 * time.Second):
			t.Fatal("no event received")
		}
	}
}

func (c *fakeConn) nextResponse(t *testing.T) *wire.Response {
	t.Helper()
	select {
	case data := <-c.frames:
		resp, err := wire.DecodeResponse(data)
		require.NoError(t, err)
		return resp
	case <-time.After(2 * time.Second):
		t.Fatal("no response received")
		return nil
	}
}

func waitDestroyed(t *testing.T, dev *devhost.Device) {
	t.Helper()
	select {
	case <-dev.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("device %s not destroyed (refs=%d)", dev.Name(), dev.Refs())
	}
}
