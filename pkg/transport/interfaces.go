package transport

// Conn is the frame-level view of either end of a connection.
type Conn interface {
	ConnID() string
	Send(data []byte) error

	// Done is closed once the connection is closed.
	Done() <-chan struct{}

	Close() error
}

var (
	_ Conn = (*ServerConn)(nil)
	_ Conn = (*ClientConn)(nil)
)
