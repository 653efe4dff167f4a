package wire

import (
	"fmt"
)

// EventMessageID is the reserved message ID of device-initiated events.
const EventMessageID uint32 = 0

// MaxPathLen bounds the path carried by an Open request.
const MaxPathLen = 1024

// MaxDataLen bounds inline data in a single request or response.
const MaxDataLen = 32 * 1024

// Request is a remote I/O request from a client to the device host.
//
// CBOR encoding:
//
//	{
//	  1: messageId,  // uint32, never 0
//	  2: op,         // uint8
//	  3: handle,     // uint32: handle the operation targets
//	  4: offset,     // int64: ReadAt/WriteAt offset, Seek delta
//	  5: length,     // uint32: bytes to read, ioctl out-buffer size
//	  6: flags,      // uint32: open/close flags
//	  7: path,       // string: Open path
//	  8: data,       // bytes: write payload, ioctl input
//	  9: arg         // uint32: ioctl op, seek origin
//	}
type Request struct {
	MessageID uint32 `cbor:"1,keyasint"`
	Op        Op     `cbor:"2,keyasint"`
	Handle    uint32 `cbor:"3,keyasint"`
	Offset    int64  `cbor:"4,keyasint,omitempty"`
	Length    uint32 `cbor:"5,keyasint,omitempty"`
	Flags     uint32 `cbor:"6,keyasint,omitempty"`
	Path      string `cbor:"7,keyasint,omitempty"`
	Data      []byte `cbor:"8,keyasint,omitempty"`
	Arg       uint32 `cbor:"9,keyasint,omitempty"`
}

// Validate checks the request framing.
func (r *Request) Validate() error {
	if r.MessageID == EventMessageID {
		return fmt.Errorf("messageId 0 is reserved for events")
	}
	if !r.Op.IsValid() {
		return fmt.Errorf("invalid op: %d", r.Op)
	}
	if len(r.Path) > MaxPathLen {
		return fmt.Errorf("path too long: %d > %d", len(r.Path), MaxPathLen)
	}
	if len(r.Data) > MaxDataLen || r.Length > MaxDataLen {
		return fmt.Errorf("data too large")
	}
	return nil
}

// Response is the host's reply to a Request.
//
// CBOR encoding:
//
//	{
//	  1: messageId,  // uint32: matches request
//	  2: status,     // uint8
//	  3: handle,     // uint32: new handle for Open/Clone
//	  4: offset,     // int64: offset after Read/Write/Seek
//	  5: size,       // int64: Stat size, bytes written
//	  8: data,       // bytes: read payload, ioctl output
//	  10: message    // string: error detail
//	}
type Response struct {
	MessageID uint32 `cbor:"1,keyasint"`
	Status    Status `cbor:"2,keyasint"`
	Handle    uint32 `cbor:"3,keyasint,omitempty"`
	Offset    int64  `cbor:"4,keyasint,omitempty"`
	Size      int64  `cbor:"5,keyasint,omitempty"`
	Data      []byte `cbor:"8,keyasint,omitempty"`
	Message   string `cbor:"10,keyasint,omitempty"`
}

// IsSuccess returns true if the response indicates success.
func (r *Response) IsSuccess() bool {
	return r.Status.IsSuccess()
}

// ErrorResponse builds a failed response for a request.
func ErrorResponse(req *Request, status Status, msg string) *Response {
	return &Response{
		MessageID: req.MessageID,
		Status:    status,
		Message:   msg,
	}
}

// Event is a device-initiated notification pushed to a handle.
//
// CBOR encoding:
//
//	{
//	  1: 0,        // messageId 0 = event
//	  3: handle,   // uint32
//	  12: signals  // uint32 bitmask
//	}
type Event struct {
	Handle  uint32 `cbor:"3,keyasint"`
	Signals uint32 `cbor:"12,keyasint"`
}

// Device signal bits carried by Event.Signals.
const (
	SignalReadable uint32 = 1 << 0
	SignalWritable uint32 = 1 << 1
	SignalError    uint32 = 1 << 2
	SignalHangup   uint32 = 1 << 3
)

// ControlMessage is a channel-level control message.
//
// CBOR encoding:
//
//	{
//	  20: type,     // uint8
//	  21: sequence  // uint32
//	}
type ControlMessage struct {
	Type     ControlMessageType `cbor:"20,keyasint"`
	Sequence uint32             `cbor:"21,keyasint,omitempty"`
}

// ControlMessageType represents the type of control message.
type ControlMessageType uint8

const (
	// ControlPing is sent to check channel liveness.
	ControlPing ControlMessageType = 1

	// ControlPong is the response to a ping.
	ControlPong ControlMessageType = 2

	// ControlClose announces an orderly channel close.
	ControlClose ControlMessageType = 3
)

// String returns the control message type name.
func (t ControlMessageType) String() string {
	switch t {
	case ControlPing:
		return "ping"
	case ControlPong:
		return "pong"
	case ControlClose:
		return "close"
	default:
		return "unknown"
	}
}
