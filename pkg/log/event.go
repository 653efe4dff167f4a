package log

import (
	"time"

	"github.com/devhost-project/devhost-go/pkg/wire"
)

// Event is a protocol log event captured at any layer.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID identifies the channel (UUID), empty for tree events.
	ConnectionID string `cbor:"2,keyasint,omitempty"`

	// Direction indicates message flow.
	Direction Direction `cbor:"3,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"4,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"5,keyasint"`

	// Channel tells remote I/O traffic from coordinator traffic.
	Channel Channel `cbor:"6,keyasint,omitempty"`

	// RemoteAddr is the peer address.
	RemoteAddr string `cbor:"7,keyasint,omitempty"`

	// DeviceID is the host-local device ID the event concerns, if any.
	DeviceID uint64 `cbor:"8,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Frame       *FrameEvent       `cbor:"10,keyasint,omitempty"`
	Message     *MessageEvent     `cbor:"11,keyasint,omitempty"`
	StateChange *StateChangeEvent `cbor:"12,keyasint,omitempty"`
	ControlMsg  *ControlMsgEvent  `cbor:"13,keyasint,omitempty"`
	Error       *ErrorEventData   `cbor:"14,keyasint,omitempty"`
}

// Direction indicates the direction of message flow.
type Direction uint8

const (
	DirectionIn  Direction = 0
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates which layer captured the event.
type Layer uint8

const (
	// LayerTransport is the framing layer (raw bytes).
	LayerTransport Layer = 0
	// LayerWire is the message encoding layer (decoded CBOR).
	LayerWire Layer = 1
	// LayerHost is the device tree and dispatch layer.
	LayerHost Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerWire:
		return "WIRE"
	case LayerHost:
		return "HOST"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	CategoryMessage Category = 0
	CategoryControl Category = 1
	CategoryState   Category = 2
	CategoryError   Category = 3
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategoryControl:
		return "CONTROL"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Channel identifies which protocol an event belongs to.
type Channel uint8

const (
	ChannelNone        Channel = 0
	ChannelRemoteIO    Channel = 1
	ChannelCoordinator Channel = 2
)

// String returns the channel name.
func (c Channel) String() string {
	switch c {
	case ChannelNone:
		return "NONE"
	case ChannelRemoteIO:
		return "RIO"
	case ChannelCoordinator:
		return "COORDINATOR"
	default:
		return "UNKNOWN"
	}
}

// FrameEvent captures raw frame data at the transport layer.
type FrameEvent struct {
	// Size is the frame size in bytes (including length prefix).
	Size int `cbor:"1,keyasint"`

	// Data is the raw frame bytes (may be truncated for large frames).
	Data []byte `cbor:"2,keyasint,omitempty"`

	// Truncated indicates if Data was truncated.
	Truncated bool `cbor:"3,keyasint,omitempty"`
}

// MessageEvent captures a decoded message at the wire layer.
type MessageEvent struct {
	Type MessageType `cbor:"1,keyasint"`

	// MessageID correlates remote I/O request/response pairs.
	MessageID uint32 `cbor:"2,keyasint,omitempty"`

	// Remote I/O fields.
	Op     *wire.Op     `cbor:"3,keyasint,omitempty"`
	Handle *uint32      `cbor:"4,keyasint,omitempty"`
	Status *wire.Status `cbor:"5,keyasint,omitempty"`

	// Coordinator fields.
	Kind *wire.Kind `cbor:"6,keyasint,omitempty"`
	Seq  *uint64    `cbor:"7,keyasint,omitempty"`

	// ProcessingTime from request receipt to response send (responses only).
	ProcessingTime *time.Duration `cbor:"9,keyasint,omitempty"`
}

// MessageType distinguishes message shapes.
type MessageType uint8

const (
	MessageTypeRequest  MessageType = 0
	MessageTypeResponse MessageType = 1
	MessageTypeEvent    MessageType = 2
	MessageTypeEnvelope MessageType = 3
)

// String returns the message type name.
func (m MessageType) String() string {
	switch m {
	case MessageTypeRequest:
		return "REQUEST"
	case MessageTypeResponse:
		return "RESPONSE"
	case MessageTypeEvent:
		return "EVENT"
	case MessageTypeEnvelope:
		return "ENVELOPE"
	default:
		return "UNKNOWN"
	}
}

// StateChangeEvent captures connection, device and link lifecycle events.
type StateChangeEvent struct {
	Entity   StateEntity `cbor:"1,keyasint"`
	OldState string      `cbor:"2,keyasint,omitempty"`
	NewState string      `cbor:"3,keyasint"`
	Reason   string      `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what changed state.
type StateEntity uint8

const (
	StateEntityConnection  StateEntity = 0
	StateEntityDevice      StateEntity = 1
	StateEntityCoordinator StateEntity = 2
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityConnection:
		return "CONNECTION"
	case StateEntityDevice:
		return "DEVICE"
	case StateEntityCoordinator:
		return "COORDINATOR"
	default:
		return "UNKNOWN"
	}
}

// ControlMsgEvent captures channel control messages.
type ControlMsgEvent struct {
	Type     wire.ControlMessageType `cbor:"1,keyasint"`
	Sequence uint32                  `cbor:"2,keyasint,omitempty"`
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	Layer   Layer        `cbor:"1,keyasint"`
	Message string       `cbor:"2,keyasint"`
	Status  *wire.Status `cbor:"3,keyasint,omitempty"`
	Context string       `cbor:"4,keyasint,omitempty"`
}
