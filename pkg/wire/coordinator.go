package wire

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Kind identifies the body carried by a coordinator Envelope.
type Kind uint8

const (
	// KindHello is sent by the host when a coordinator channel comes up.
	KindHello Kind = 1

	// KindAddDevice reports a device that entered the visible tree.
	KindAddDevice Kind = 2

	// KindRemoveDevice reports a device that left the tree.
	KindRemoveDevice Kind = 3

	// KindBindDevice asks the coordinator to pick a driver for a device.
	KindBindDevice Kind = 4

	// KindAck acknowledges delivery of the envelope with the same sequence.
	KindAck Kind = 5

	// KindAddDeviceReply acknowledges an AddDevice and carries the assigned ID.
	KindAddDeviceReply Kind = 6

	// KindBindDriver instructs the host to bind a driver to a device.
	KindBindDriver Kind = 7
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindHello:
		return "Hello"
	case KindAddDevice:
		return "AddDevice"
	case KindRemoveDevice:
		return "RemoveDevice"
	case KindBindDevice:
		return "BindDevice"
	case KindAck:
		return "Ack"
	case KindAddDeviceReply:
		return "AddDeviceReply"
	case KindBindDriver:
		return "BindDriver"
	default:
		return "Unknown"
	}
}

// Envelope frames every coordinator message.
//
// CBOR encoding:
//
//	{
//	  1: seq,   // uint64: host-assigned for upstream, echoed by Ack/Reply
//	  2: kind,  // uint8
//	  3: body   // kind-specific map
//	}
type Envelope struct {
	Seq  uint64          `cbor:"1,keyasint"`
	Kind Kind            `cbor:"2,keyasint"`
	Body cbor.RawMessage `cbor:"3,keyasint,omitempty"`
}

// Property is a binding property attached to a device.
type Property struct {
	ID    uint32 `cbor:"1,keyasint"`
	Value uint32 `cbor:"2,keyasint"`
}

// Hello identifies the host on a fresh coordinator channel. The
// coordinator may answer with its own Hello carrying only Version.
type Hello struct {
	HostID  string `cbor:"1,keyasint"`
	Name    string `cbor:"2,keyasint,omitempty"`
	Version string `cbor:"3,keyasint,omitempty"`
}

// AddDevice reports a device added to the tree.
type AddDevice struct {
	DeviceID uint64     `cbor:"1,keyasint"`
	ParentID uint64     `cbor:"2,keyasint"`
	Name     string     `cbor:"3,keyasint"`
	Props    []Property `cbor:"4,keyasint,omitempty"`
	BusInfo  string     `cbor:"5,keyasint,omitempty"`
	Resource []byte     `cbor:"6,keyasint,omitempty"`
	TopoPath string     `cbor:"7,keyasint,omitempty"`
}

// RemoveDevice reports a device removed from the tree.
type RemoveDevice struct {
	DeviceID uint64 `cbor:"1,keyasint"`
	RemoteID uint64 `cbor:"2,keyasint,omitempty"`
}

// BindDevice asks the coordinator for a driver. An empty LibName requests
// coordinator-directed matching.
type BindDevice struct {
	DeviceID uint64 `cbor:"1,keyasint"`
	LibName  string `cbor:"2,keyasint,omitempty"`
}

// AddDeviceReply carries the coordinator-assigned ID of an added device.
type AddDeviceReply struct {
	DeviceID uint64 `cbor:"1,keyasint"`
	RemoteID uint64 `cbor:"2,keyasint"`
	Status   Status `cbor:"3,keyasint"`
}

// BindDriver instructs the host to bind LibName to a device.
type BindDriver struct {
	DeviceID uint64 `cbor:"1,keyasint"`
	LibName  string `cbor:"2,keyasint"`
}

// EncodeEnvelope wraps a body in an envelope and encodes it.
func EncodeEnvelope(seq uint64, kind Kind, body any) ([]byte, error) {
	env := Envelope{Seq: seq, Kind: kind}
	if body != nil {
		raw, err := Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s body: %w", kind, err)
		}
		env.Body = raw
	}
	return Marshal(&env)
}

// DecodeEnvelope decodes an envelope without decoding its body.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to decode envelope: %w", err)
	}
	if env.Kind < KindHello || env.Kind > KindBindDriver {
		return nil, fmt.Errorf("invalid envelope kind: %d", env.Kind)
	}
	return &env, nil
}

// DecodeBody decodes the envelope body into v.
func (e *Envelope) DecodeBody(v any) error {
	if len(e.Body) == 0 {
		return fmt.Errorf("%s envelope has no body", e.Kind)
	}
	if err := Unmarshal(e.Body, v); err != nil {
		return fmt.Errorf("failed to decode %s body: %w", e.Kind, err)
	}
	return nil
}
