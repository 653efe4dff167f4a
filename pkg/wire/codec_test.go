package wire

import (
	"bytes"
	"testing"
)

func TestRequestRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		req  Request
	}{
		{
			name: "open request",
			req: Request{
				MessageID: 1,
				Op:        OpOpen,
				Handle:    1,
				Flags:     0x3,
				Path:      "bus/child",
			},
		},
		{
			name: "write at offset",
			req: Request{
				MessageID: 2,
				Op:        OpWriteAt,
				Handle:    4,
				Offset:    512,
				Data:      []byte("hello"),
			},
		},
		{
			name: "ioctl request",
			req: Request{
				MessageID: 3,
				Op:        OpIoctl,
				Handle:    2,
				Arg:       0x1001,
				Length:    64,
				Data:      []byte{0x01, 0x02},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := EncodeRequest(&tt.req)
			if err != nil {
				t.Fatalf("EncodeRequest failed: %v", err)
			}

			decoded, err := DecodeRequest(data)
			if err != nil {
				t.Fatalf("DecodeRequest failed: %v", err)
			}

			if decoded.MessageID != tt.req.MessageID {
				t.Errorf("MessageID mismatch: got %d, want %d", decoded.MessageID, tt.req.MessageID)
			}
			if decoded.Op != tt.req.Op {
				t.Errorf("Op mismatch: got %v, want %v", decoded.Op, tt.req.Op)
			}
			if decoded.Handle != tt.req.Handle {
				t.Errorf("Handle mismatch: got %d, want %d", decoded.Handle, tt.req.Handle)
			}
			if decoded.Offset != tt.req.Offset {
				t.Errorf("Offset mismatch: got %d, want %d", decoded.Offset, tt.req.Offset)
			}
			if decoded.Path != tt.req.Path {
				t.Errorf("Path mismatch: got %q, want %q", decoded.Path, tt.req.Path)
			}
			if !bytes.Equal(decoded.Data, tt.req.Data) {
				t.Errorf("Data mismatch: got %x, want %x", decoded.Data, tt.req.Data)
			}
			if decoded.Arg != tt.req.Arg {
				t.Errorf("Arg mismatch: got %d, want %d", decoded.Arg, tt.req.Arg)
			}
		})
	}
}

func TestRequestValidation(t *testing.T) {
	tests := []struct {
		name    string
		req     Request
		wantErr bool
	}{
		{"valid", Request{MessageID: 1, Op: OpRead, Handle: 1, Length: 16}, false},
		{"reserved message id", Request{MessageID: 0, Op: OpRead}, true},
		{"invalid op zero", Request{MessageID: 1, Op: 0}, true},
		{"invalid op high", Request{MessageID: 1, Op: OpIoctl + 1}, true},
		{"oversized read", Request{MessageID: 1, Op: OpRead, Length: MaxDataLen + 1}, true},
		{"oversized path", Request{MessageID: 1, Op: OpOpen, Path: string(make([]byte, MaxPathLen+1))}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestResponseDecodeRejectsEvent(t *testing.T) {
	data, err := EncodeEvent(&Event{Handle: 3, Signals: SignalReadable})
	if err != nil {
		t.Fatalf("EncodeEvent failed: %v", err)
	}
	if _, err := DecodeResponse(data); err == nil {
		t.Error("expected DecodeResponse to reject an event frame")
	}
}

func TestEventRoundTrip(t *testing.T) {
	data, err := EncodeEvent(&Event{Handle: 7, Signals: SignalReadable | SignalHangup})
	if err != nil {
		t.Fatalf("EncodeEvent failed: %v", err)
	}

	ev, err := DecodeEvent(data)
	if err != nil {
		t.Fatalf("DecodeEvent failed: %v", err)
	}
	if ev.Handle != 7 {
		t.Errorf("Handle: got %d, want 7", ev.Handle)
	}
	if ev.Signals != SignalReadable|SignalHangup {
		t.Errorf("Signals: got %#x", ev.Signals)
	}
}

func TestPeekKind(t *testing.T) {
	req, _ := EncodeRequest(&Request{MessageID: 9, Op: OpStat, Handle: 1})
	resp, _ := EncodeResponse(&Response{MessageID: 9, Status: StatusOK, Size: 10})
	ev, _ := EncodeEvent(&Event{Handle: 1, Signals: SignalWritable})
	ctrl, _ := EncodeControlMessage(&ControlMessage{Type: ControlPing, Sequence: 4})

	tests := []struct {
		name string
		data []byte
		want MessageKind
	}{
		{"request", req, MessageKindMessage},
		{"response", resp, MessageKindMessage},
		{"event", ev, MessageKindEvent},
		{"control", ctrl, MessageKindControl},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PeekKind(tt.data)
			if err != nil {
				t.Fatalf("PeekKind failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("PeekKind = %v, want %v", got, tt.want)
			}
		})
	}

	if _, err := PeekKind([]byte{0xff, 0x00}); err == nil {
		t.Error("expected error for garbage input")
	}
}

func TestEnvelopeBody(t *testing.T) {
	add := AddDevice{
		DeviceID: 5,
		ParentID: 1,
		Name:     "child",
		Props:    []Property{{ID: 1, Value: 5}},
		BusInfo:  "pci:00:1f.3",
	}

	data, err := EncodeEnvelope(42, KindAddDevice, &add)
	if err != nil {
		t.Fatalf("EncodeEnvelope failed: %v", err)
	}

	env, err := DecodeEnvelope(data)
	if err != nil {
		t.Fatalf("DecodeEnvelope failed: %v", err)
	}
	if env.Seq != 42 || env.Kind != KindAddDevice {
		t.Fatalf("envelope header mismatch: seq=%d kind=%s", env.Seq, env.Kind)
	}

	var got AddDevice
	if err := env.DecodeBody(&got); err != nil {
		t.Fatalf("DecodeBody failed: %v", err)
	}
	if got.Name != "child" || got.ParentID != 1 || len(got.Props) != 1 || got.Props[0].Value != 5 {
		t.Errorf("body mismatch: %+v", got)
	}
}

func TestEnvelopeWithoutBody(t *testing.T) {
	data, err := EncodeEnvelope(3, KindAck, nil)
	if err != nil {
		t.Fatalf("EncodeEnvelope failed: %v", err)
	}
	env, err := DecodeEnvelope(data)
	if err != nil {
		t.Fatalf("DecodeEnvelope failed: %v", err)
	}
	var reply AddDeviceReply
	if err := env.DecodeBody(&reply); err == nil {
		t.Error("expected error decoding missing body")
	}
}

func TestDecodeEnvelopeRejectsUnknownKind(t *testing.T) {
	data, _ := Marshal(&Envelope{Seq: 1, Kind: 99})
	if _, err := DecodeEnvelope(data); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestStatusString(t *testing.T) {
	if StatusBusy.String() != "BUSY" {
		t.Errorf("got %s", StatusBusy.String())
	}
	if Status(200).String() != "UNKNOWN" {
		t.Errorf("got %s", Status(200).String())
	}
	if !StatusOK.IsSuccess() || StatusOK.IsError() {
		t.Error("StatusOK classification wrong")
	}
}

func TestUnknownFieldsIgnored(t *testing.T) {
	raw := map[uint64]any{
		1:  uint64(5),
		2:  uint64(OpRead),
		3:  uint64(1),
		5:  uint64(8),
		99: "future field",
	}
	data, err := Marshal(raw)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	req, err := DecodeRequest(data)
	if err != nil {
		t.Fatalf("DecodeRequest failed: %v", err)
	}
	if req.Length != 8 {
		t.Errorf("Length: got %d, want 8", req.Length)
	}
}

func TestEqual(t *testing.T) {
	a := Property{ID: 1, Value: 2}
	b := Property{ID: 1, Value: 2}
	c := Property{ID: 1, Value: 3}
	if !Equal(a, b) {
		t.Error("expected equal")
	}
	if Equal(a, c) {
		t.Error("expected not equal")
	}
}
