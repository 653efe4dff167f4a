package coordinator

import (
	"context"
	"time"

	"github.com/devhost-project/devhost-go/pkg/log"
	"github.com/devhost-project/devhost-go/pkg/transport"
)

// StreamTransport reaches the coordinator over a tcp or unix socket using
// the length-prefixed framing of the transport package.
type StreamTransport struct {
	Network        string
	Address        string
	ConnectTimeout time.Duration

	// Logger receives frame events tagged with the coordinator channel.
	Logger log.Logger
}

// Connect dials the coordinator.
func (t *StreamTransport) Connect(ctx context.Context) (Channel, error) {
	conn, err := transport.Dial(ctx, t.Address, transport.ClientConfig{
		Network:        t.Network,
		ConnectTimeout: t.ConnectTimeout,
		Channel:        log.ChannelCoordinator,
		Logger:         t.Logger,
	})
	if err != nil {
		return nil, err
	}
	return &streamChannel{conn: conn}, nil
}

func (t *StreamTransport) String() string {
	network := t.Network
	if network == "" {
		network = transport.DefaultNetwork
	}
	return network + "://" + t.Address
}

type streamChannel struct {
	conn *transport.ClientConn
}

func (c *streamChannel) Send(data []byte) error { return c.conn.Send(data) }

func (c *streamChannel) Receive() ([]byte, error) { return c.conn.Receive(0) }

func (c *streamChannel) Close() error { return c.conn.Close() }
