package rpc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/devhost-project/devhost-go/pkg/devhost"
	"github.com/devhost-project/devhost-go/pkg/transport"
	"github.com/devhost-project/devhost-go/pkg/wire"
)

// Client errors.
var (
	ErrRequestTimeout = errors.New("request timed out")
	ErrClientClosed   = errors.New("client is closed")
)

// StatusError is a failed response. It unwraps to the devhost sentinel for
// its status, so errors.Is(err, devhost.ErrNotFound) works on the client.
type StatusError struct {
	Status  wire.Status
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Status.String()
}

func (e *StatusError) Unwrap() error {
	return devhost.ErrorOf(e.Status)
}

// Client issues remote I/O requests over one connection.
type Client struct {
	conn    *transport.ClientConn
	timeout time.Duration

	nextMsgID atomic.Uint32

	pendingMu sync.Mutex
	pending   map[uint32]chan *wire.Response
	closed    bool

	eventMu      sync.RWMutex
	eventHandler func(wire.Event)

	done chan struct{}
}

// Dial connects to a devhost RPC server.
func Dial(ctx context.Context, network, address string) (*Client, error) {
	conn, err := transport.Dial(ctx, address, transport.ClientConfig{Network: network})
	if err != nil {
		return nil, err
	}
	return NewClient(conn), nil
}

// NewClient wraps an established connection and starts reading responses.
func NewClient(conn *transport.ClientConn) *Client {
	c := &Client{
		conn:    conn,
		timeout: 30 * time.Second,
		pending: make(map[uint32]chan *wire.Response),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// SetTimeout sets the per-request timeout.
func (c *Client) SetTimeout(timeout time.Duration) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	c.timeout = timeout
}

// SetEventHandler sets the handler for device events. It runs on the
// client's read goroutine.
func (c *Client) SetEventHandler(fn func(wire.Event)) {
	c.eventMu.Lock()
	defer c.eventMu.Unlock()
	c.eventHandler = fn
}

// Done is closed when the connection is gone.
func (c *Client) Done() <-chan struct{} { return c.done }

// Close closes the connection. Pending requests fail with ErrClientClosed.
func (c *Client) Close() error {
	err := c.conn.Close()
	<-c.done
	return err
}

func (c *Client) readLoop() {
	defer close(c.done)
	defer c.failPending()

	for {
		data, err := c.conn.Receive(0)
		if err != nil {
			return
		}
		kind, err := wire.PeekKind(data)
		if err != nil {
			continue
		}
		switch kind {
		case wire.MessageKindEvent:
			ev, err := wire.DecodeEvent(data)
			if err != nil {
				continue
			}
			c.eventMu.RLock()
			fn := c.eventHandler
			c.eventMu.RUnlock()
			if fn != nil {
				fn(*ev)
			}
		case wire.MessageKindMessage:
			resp, err := wire.DecodeResponse(data)
			if err != nil {
				continue
			}
			c.pendingMu.Lock()
			ch, ok := c.pending[resp.MessageID]
			c.pendingMu.Unlock()
			if ok {
				ch <- resp
			}
		}
	}
}

func (c *Client) failPending() {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	c.closed = true
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}

func (c *Client) nextMessageID() uint32 {
	for {
		if id := c.nextMsgID.Add(1); id != wire.EventMessageID {
			return id
		}
	}
}

// Do sends a request and waits for its response. The request's MessageID
// is assigned here. Failed statuses are returned as *StatusError.
func (c *Client) Do(ctx context.Context, req *wire.Request) (*wire.Response, error) {
	req.MessageID = c.nextMessageID()
	respCh := make(chan *wire.Response, 1)

	c.pendingMu.Lock()
	if c.closed {
		c.pendingMu.Unlock()
		return nil, ErrClientClosed
	}
	timeout := c.timeout
	c.pending[req.MessageID] = respCh
	c.pendingMu.Unlock()

	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, req.MessageID)
		c.pendingMu.Unlock()
	}()

	data, err := wire.EncodeRequest(req)
	if err != nil {
		return nil, err
	}
	if err := c.conn.Send(data); err != nil {
		return nil, fmt.Errorf("send %s: %w", req.Op, err)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(timeout):
		return nil, ErrRequestTimeout
	case resp, ok := <-respCh:
		if !ok {
			return nil, ErrClientClosed
		}
		if !resp.IsSuccess() {
			return resp, &StatusError{Status: resp.Status, Message: resp.Message}
		}
		return resp, nil
	}
}

// SendRaw writes an arbitrary frame. It exists for protocol tests.
func (c *Client) SendRaw(data []byte) error {
	return c.conn.Send(data)
}

// Open opens path relative to handle and returns the new handle.
func (c *Client) Open(ctx context.Context, handle uint32, path string, flags uint32) (uint32, error) {
	resp, err := c.Do(ctx, &wire.Request{Op: wire.OpOpen, Handle: handle, Path: path, Flags: flags})
	if err != nil {
		return 0, err
	}
	return resp.Handle, nil
}

// Clone opens a second handle on the same device.
func (c *Client) Clone(ctx context.Context, handle uint32) (uint32, error) {
	resp, err := c.Do(ctx, &wire.Request{Op: wire.OpClone, Handle: handle})
	if err != nil {
		return 0, err
	}
	return resp.Handle, nil
}

// CloseHandle closes a handle.
func (c *Client) CloseHandle(ctx context.Context, handle uint32) error {
	_, err := c.Do(ctx, &wire.Request{Op: wire.OpClose, Handle: handle})
	return err
}

// Read reads up to n bytes at the handle's offset.
func (c *Client) Read(ctx context.Context, handle uint32, n int) ([]byte, error) {
	resp, err := c.Do(ctx, &wire.Request{Op: wire.OpRead, Handle: handle, Length: uint32(n)})
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// ReadAt reads up to n bytes at off.
func (c *Client) ReadAt(ctx context.Context, handle uint32, n int, off int64) ([]byte, error) {
	resp, err := c.Do(ctx, &wire.Request{Op: wire.OpReadAt, Handle: handle, Length: uint32(n), Offset: off})
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// Write writes data at the handle's offset and returns the bytes written.
func (c *Client) Write(ctx context.Context, handle uint32, data []byte) (int, error) {
	resp, err := c.Do(ctx, &wire.Request{Op: wire.OpWrite, Handle: handle, Data: data})
	if err != nil {
		return 0, err
	}
	return int(resp.Size), nil
}

// WriteAt writes data at off.
func (c *Client) WriteAt(ctx context.Context, handle uint32, data []byte, off int64) (int, error) {
	resp, err := c.Do(ctx, &wire.Request{Op: wire.OpWriteAt, Handle: handle, Data: data, Offset: off})
	if err != nil {
		return 0, err
	}
	return int(resp.Size), nil
}

// Seek moves the handle's offset and returns the new one.
func (c *Client) Seek(ctx context.Context, handle uint32, delta int64, origin uint32) (int64, error) {
	resp, err := c.Do(ctx, &wire.Request{Op: wire.OpSeek, Handle: handle, Offset: delta, Arg: origin})
	if err != nil {
		return 0, err
	}
	return resp.Offset, nil
}

// Stat returns the device size.
func (c *Client) Stat(ctx context.Context, handle uint32) (int64, error) {
	resp, err := c.Do(ctx, &wire.Request{Op: wire.OpStat, Handle: handle})
	if err != nil {
		return 0, err
	}
	return resp.Size, nil
}

// Ioctl runs a device-specific operation with an output buffer of outLen
// bytes.
func (c *Client) Ioctl(ctx context.Context, handle, op uint32, in []byte, outLen int) ([]byte, error) {
	resp, err := c.Do(ctx, &wire.Request{Op: wire.OpIoctl, Handle: handle, Arg: op, Data: in, Length: uint32(outLen)})
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}
