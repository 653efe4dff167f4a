package wire

import (
	"bytes"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// encMode is the CBOR encoder mode for device host messages.
// Configured for deterministic encoding with integer keys.
var encMode cbor.EncMode

// decMode is the CBOR decoder mode for device host messages.
var decMode cbor.DecMode

func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeUnix,
	}
	encMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR encoder mode: %v", err))
	}

	// Lenient decoding for forward compatibility, bounded sizes for safety.
	decOpts := cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyQuiet,
		IndefLength:       cbor.IndefLengthAllowed,
		ExtraReturnErrors: cbor.ExtraDecErrorNone,
		MaxArrayElements:  4096,
		MaxMapPairs:       4096,
	}
	decMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR decoder mode: %v", err))
	}
}

// Marshal encodes a value to CBOR bytes.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR bytes into a value.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// NewEncoder creates a new CBOR encoder that writes to w.
func NewEncoder(w io.Writer) *cbor.Encoder {
	return encMode.NewEncoder(w)
}

// NewDecoder creates a new CBOR decoder that reads from r.
func NewDecoder(r io.Reader) *cbor.Decoder {
	return decMode.NewDecoder(r)
}

// EncodeRequest encodes a request message to CBOR bytes.
func EncodeRequest(req *Request) ([]byte, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	return Marshal(req)
}

// DecodeRequest decodes CBOR bytes into a request message.
func DecodeRequest(data []byte) (*Request, error) {
	var req Request
	if err := Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("failed to decode request: %w", err)
	}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	return &req, nil
}

// EncodeResponse encodes a response message to CBOR bytes.
func EncodeResponse(resp *Response) ([]byte, error) {
	return Marshal(resp)
}

// DecodeResponse decodes CBOR bytes into a response message.
func DecodeResponse(data []byte) (*Response, error) {
	var resp Response
	if err := Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if resp.MessageID == EventMessageID {
		return nil, fmt.Errorf("not a response: messageId=0")
	}
	return &resp, nil
}

// EncodeEvent encodes a device event. Events always carry messageId 0.
func EncodeEvent(ev *Event) ([]byte, error) {
	wireMsg := struct {
		MessageID uint32 `cbor:"1,keyasint"`
		Handle    uint32 `cbor:"3,keyasint"`
		Signals   uint32 `cbor:"12,keyasint"`
	}{
		MessageID: EventMessageID,
		Handle:    ev.Handle,
		Signals:   ev.Signals,
	}
	return Marshal(wireMsg)
}

// DecodeEvent decodes CBOR bytes into an event.
func DecodeEvent(data []byte) (*Event, error) {
	var wireMsg struct {
		MessageID uint32 `cbor:"1,keyasint"`
		Handle    uint32 `cbor:"3,keyasint"`
		Signals   uint32 `cbor:"12,keyasint"`
	}
	if err := Unmarshal(data, &wireMsg); err != nil {
		return nil, fmt.Errorf("failed to decode event: %w", err)
	}
	if wireMsg.MessageID != EventMessageID {
		return nil, fmt.Errorf("not an event message: messageId=%d", wireMsg.MessageID)
	}
	return &Event{Handle: wireMsg.Handle, Signals: wireMsg.Signals}, nil
}

// EncodeControlMessage encodes a control message (ping/pong/close) to CBOR bytes.
func EncodeControlMessage(msg *ControlMessage) ([]byte, error) {
	return Marshal(msg)
}

// DecodeControlMessage decodes CBOR bytes into a control message.
func DecodeControlMessage(data []byte) (*ControlMessage, error) {
	var msg ControlMessage
	if err := Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to decode control message: %w", err)
	}
	return &msg, nil
}

// MessageKind classifies a remote I/O frame.
type MessageKind int

const (
	MessageKindUnknown MessageKind = iota
	MessageKindMessage             // request or response, by direction
	MessageKindEvent
	MessageKindControl
)

// PeekKind examines CBOR data to classify a remote I/O frame without
// decoding it fully. Control messages carry key 20, events carry
// messageId 0, everything else is a request or response depending on the
// direction the frame travels.
func PeekKind(data []byte) (MessageKind, error) {
	var peek struct {
		MessageID uint32             `cbor:"1,keyasint"`
		Control   ControlMessageType `cbor:"20,keyasint,omitempty"`
	}
	if err := Unmarshal(data, &peek); err != nil {
		return MessageKindUnknown, fmt.Errorf("failed to peek message: %w", err)
	}
	if peek.Control != 0 {
		return MessageKindControl, nil
	}
	if peek.MessageID == EventMessageID {
		return MessageKindEvent, nil
	}
	return MessageKindMessage, nil
}

// Equal compares two values by their CBOR encoding.
func Equal(a, b any) bool {
	dataA, errA := Marshal(a)
	dataB, errB := Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(dataA, dataB)
}
