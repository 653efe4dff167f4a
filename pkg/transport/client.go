package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/devhost-project/devhost-go/pkg/log"
)

// ErrConnectionClosed is returned when using a closed connection.
var ErrConnectionClosed = errors.New("connection closed")

// ClientConfig configures a dialing client.
type ClientConfig struct {
	// Network is "tcp" or "unix" (default: unix).
	Network string

	// MaxMessageSize is the maximum message size (default: 64KB).
	MaxMessageSize uint32

	// ConnectTimeout is the connection timeout (default: 30s).
	ConnectTimeout time.Duration

	// Channel tags protocol log events produced by this connection.
	Channel log.Channel

	// Logger for protocol logging (optional).
	Logger log.Logger
}

// Dial connects to a frame server.
func Dial(ctx context.Context, address string, config ClientConfig) (*ClientConn, error) {
	if config.Network == "" {
		config.Network = DefaultNetwork
	}
	if config.MaxMessageSize == 0 {
		config.MaxMessageSize = DefaultMaxMessageSize
	}
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = 30 * time.Second
	}

	// Apply timeout from config if context doesn't have one
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, config.ConnectTimeout)
		defer cancel()
	}

	dialer := &net.Dialer{}
	conn, err := dialer.DialContext(ctx, config.Network, address)
	if err != nil {
		return nil, fmt.Errorf("dial failed: %w", err)
	}

	return NewClientConn(conn, config), nil
}

// NewClientConn wraps an established connection, for example one end of
// a net.Pipe.
func NewClientConn(conn net.Conn, config ClientConfig) *ClientConn {
	if config.MaxMessageSize == 0 {
		config.MaxMessageSize = DefaultMaxMessageSize
	}
	connID := uuid.New().String()
	framer := NewFramer(conn, config.MaxMessageSize)
	if config.Logger != nil {
		framer.SetLogger(config.Logger, connID, config.Channel)
	}
	return &ClientConn{
		conn:    conn,
		framer:  framer,
		connID:  connID,
		closeCh: make(chan struct{}),
	}
}

// ClientConn represents a connection from client to server.
type ClientConn struct {
	conn    net.Conn
	framer  *Framer
	connID  string
	closeCh chan struct{}

	closeOnce sync.Once
	writeMu   sync.Mutex
	readMu    sync.Mutex
}

// ConnID returns the unique connection identifier.
func (c *ClientConn) ConnID() string {
	return c.connID
}

// LocalAddr returns the local network address.
func (c *ClientConn) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// RemoteAddr returns the remote network address.
func (c *ClientConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Done is closed once the connection is closed locally.
func (c *ClientConn) Done() <-chan struct{} {
	return c.closeCh
}

// Send sends a message to the server.
func (c *ClientConn) Send(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	select {
	case <-c.closeCh:
		return ErrConnectionClosed
	default:
	}

	return c.framer.WriteFrame(data)
}

// Receive receives a message from the server with timeout.
// A zero timeout blocks until a frame arrives or the connection closes.
func (c *ClientConn) Receive(timeout time.Duration) ([]byte, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	select {
	case <-c.closeCh:
		return nil, ErrConnectionClosed
	default:
	}

	if timeout > 0 {
		c.conn.SetReadDeadline(time.Now().Add(timeout))
		defer c.conn.SetReadDeadline(time.Time{})
	}

	return c.framer.ReadFrame()
}

// Close closes the connection.
func (c *ClientConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closeCh)
		err = c.conn.Close()
	})
	return err
}

// SendPing sends a ping control message.
func (c *ClientConn) SendPing(seq uint32) error {
	msg, err := EncodePing(seq)
	if err != nil {
		return err
	}
	return c.Send(msg)
}

// SendClose sends a close control message.
func (c *ClientConn) SendClose() error {
	msg, err := EncodeClose()
	if err != nil {
		return err
	}
	return c.Send(msg)
}
