package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/devhost-project/devhost-go/pkg/log"
)

const (
	// LengthPrefixSize is the width of the big-endian frame header.
	LengthPrefixSize = 4

	// DefaultMaxMessageSize fits wire.MaxDataLen plus the request envelope.
	DefaultMaxMessageSize = 64 << 10

	// MaxLogFrameDataSize caps the payload bytes copied into capture events.
	MaxLogFrameDataSize = 4 << 10
)

var (
	ErrMessageTooLarge = errors.New("message too large")
	ErrMessageEmpty    = errors.New("message is empty")
	ErrFrameTruncated  = errors.New("frame truncated")
)

// Framer reads and writes length-prefixed frames on one stream. Writes
// are serialized; reads must come from a single goroutine.
type Framer struct {
	rw    io.ReadWriter
	limit uint32

	wmu    sync.Mutex
	header [LengthPrefixSize]byte

	logger  log.Logger
	connID  string
	channel log.Channel
}

// NewFramer wraps rw. A zero limit selects DefaultMaxMessageSize.
func NewFramer(rw io.ReadWriter, limit uint32) *Framer {
	if limit == 0 {
		limit = DefaultMaxMessageSize
	}
	return &Framer{rw: rw, limit: limit}
}

// SetLogger records every frame to logger, tagged with the connection.
// A nil logger turns capture off.
func (f *Framer) SetLogger(logger log.Logger, connID string, channel log.Channel) {
	f.logger = logger
	f.connID = connID
	f.channel = channel
}

func (f *Framer) checkSize(n uint64) error {
	switch {
	case n == 0:
		return ErrMessageEmpty
	case n > uint64(f.limit):
		return fmt.Errorf("%w: %d > %d", ErrMessageTooLarge, n, f.limit)
	}
	return nil
}

// WriteFrame sends data as a single frame.
func (f *Framer) WriteFrame(data []byte) error {
	if err := f.checkSize(uint64(len(data))); err != nil {
		return err
	}

	frame := make([]byte, LengthPrefixSize+len(data))
	binary.BigEndian.PutUint32(frame, uint32(len(data)))
	copy(frame[LengthPrefixSize:], data)

	f.wmu.Lock()
	_, err := f.rw.Write(frame)
	f.wmu.Unlock()
	if err != nil {
		return fmt.Errorf("write frame: %w", err)
	}

	f.trace(data, log.DirectionOut)
	return nil
}

// ReadFrame returns the next frame payload. A clean end of stream is
// io.EOF; a stream cut inside a frame is ErrFrameTruncated.
func (f *Framer) ReadFrame() ([]byte, error) {
	if _, err := io.ReadFull(f.rw, f.header[:]); err != nil {
		return nil, readErr(err, true)
	}

	n := binary.BigEndian.Uint32(f.header[:])
	if err := f.checkSize(uint64(n)); err != nil {
		return nil, err
	}

	payload := make([]byte, n)
	if _, err := io.ReadFull(f.rw, payload); err != nil {
		return nil, readErr(err, false)
	}

	f.trace(payload, log.DirectionIn)
	return payload, nil
}

func readErr(err error, atBoundary bool) error {
	switch {
	case err == io.EOF && atBoundary:
		return io.EOF
	case err == io.EOF, errors.Is(err, io.ErrUnexpectedEOF):
		return ErrFrameTruncated
	default:
		return fmt.Errorf("read frame: %w", err)
	}
}

func (f *Framer) trace(data []byte, dir log.Direction) {
	if f.logger != nil {
		f.logger.Log(frameEvent(f.connID, f.channel, data, dir))
	}
}

func frameEvent(connID string, channel log.Channel, data []byte, dir log.Direction) log.Event {
	fe := &log.FrameEvent{Size: LengthPrefixSize + len(data), Data: data}
	if len(data) > MaxLogFrameDataSize {
		fe.Data = data[:MaxLogFrameDataSize]
		fe.Truncated = true
	}
	return log.Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Direction:    dir,
		Layer:        log.LayerTransport,
		Category:     log.CategoryMessage,
		Channel:      channel,
		Frame:        fe,
	}
}
