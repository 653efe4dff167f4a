package coordinator

import (
	"context"
	"errors"

	"github.com/devhost-project/devhost-go/pkg/wire"
)

var (
	// ErrClosed is returned once the link has been closed.
	ErrClosed = errors.New("coordinator link closed")

	// ErrQueueFull is returned when too many notifications are unacknowledged.
	ErrQueueFull = errors.New("coordinator queue full")

	// ErrNoCoordinator is returned by Nop.
	ErrNoCoordinator = errors.New("no coordinator configured")
)

// Transport opens channels to the coordinator.
type Transport interface {
	// Connect establishes a new channel.
	Connect(ctx context.Context) (Channel, error)

	// String describes the endpoint for logs.
	String() string
}

// Channel carries encoded envelopes in both directions.
type Channel interface {
	// Send transmits one envelope.
	Send(data []byte) error

	// Receive blocks for the next inbound envelope. It fails once the
	// channel is closed or broken.
	Receive() ([]byte, error)

	// Close closes the channel and unblocks Receive.
	Close() error
}

// InstructionHandler executes coordinator instructions.
type InstructionHandler interface {
	HandleBindDriver(ctx context.Context, msg wire.BindDriver) error
	HandleAddDeviceReply(ctx context.Context, msg wire.AddDeviceReply) error
}

// Nop stands in when no coordinator is configured. Every notification fails,
// leaving devices usable but uncoordinated.
type Nop struct{}

func (Nop) NotifyAdd(wire.AddDevice) error       { return ErrNoCoordinator }
func (Nop) NotifyRemove(wire.RemoveDevice) error { return ErrNoCoordinator }
func (Nop) RequestBind(wire.BindDevice) error    { return ErrNoCoordinator }
