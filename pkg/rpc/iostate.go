package rpc

import (
	"context"
	"fmt"
	"sync"

	"github.com/devhost-project/devhost-go/pkg/devhost"
	"github.com/devhost-project/devhost-go/pkg/wire"
)

// IOState is one open connection to a device.
//
// Offset-advancing operations on the same IOState are serialized. The
// device callbacks themselves run without the tree lock, each holding its
// own device reference so a concurrent close cannot destroy the device
// under a running callback.
type IOState struct {
	ref   *devhost.Ref
	flags uint32

	mu     sync.Mutex
	offset int64
	dead   bool
}

// Open resolves path relative to base, takes a reference on the result and
// runs its open callback. A removed device fails with devhost.ErrBadState,
// a missing one with devhost.ErrNotFound.
func Open(ctx context.Context, h *devhost.Host, base *devhost.Device, path string, flags uint32) (*IOState, error) {
	ref, err := h.Lookup(ctx, base, path, flags)
	if err != nil {
		return nil, err
	}
	return open(ctx, ref, flags)
}

func open(ctx context.Context, ref *devhost.Ref, flags uint32) (*IOState, error) {
	dev := ref.Device()
	if err := dev.Ops().Open(ctx, flags); err != nil {
		ref.Drop()
		return nil, fmt.Errorf("open %s: %w", dev.Name(), err)
	}
	return &IOState{ref: ref, flags: flags}, nil
}

// Device returns the device the IOState refers to.
func (s *IOState) Device() *devhost.Device { return s.ref.Device() }

// Flags returns the open flags.
func (s *IOState) Flags() uint32 { return s.flags }

// Offset returns the current byte offset.
func (s *IOState) Offset() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.offset
}

// Dead reports whether the IOState has been closed.
func (s *IOState) Dead() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dead
}

// Close runs the close callback and drops the device reference. Closing a
// closed IOState succeeds and does nothing.
func (s *IOState) Close(ctx context.Context, flags uint32) error {
	s.mu.Lock()
	if s.dead {
		s.mu.Unlock()
		return nil
	}
	s.dead = true
	s.mu.Unlock()

	err := s.Device().Ops().Close(ctx, flags|s.flags)
	s.ref.Drop()
	return err
}

// Clone opens a second IOState on the same device with the same flags and
// a fresh offset.
func (s *IOState) Clone(ctx context.Context) (*IOState, error) {
	ref, err := s.pin()
	if err != nil {
		return nil, err
	}
	return open(ctx, ref, s.flags)
}

// pin checks that new dispatch is allowed and takes a reference that keeps
// the device alive until the caller drops it, even if the handle is closed
// meanwhile. Callers must not hold mu.
func (s *IOState) pin() (*devhost.Ref, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pinLocked()
}

func (s *IOState) pinLocked() (*devhost.Ref, error) {
	if err := s.liveLocked(); err != nil {
		return nil, err
	}
	dev := s.Device()
	ref, ok := dev.TryRef()
	if !ok {
		return nil, fmt.Errorf("%w: device %s destroyed", devhost.ErrBadState, dev.Name())
	}
	return ref, nil
}

func (s *IOState) liveLocked() error {
	if s.dead {
		return fmt.Errorf("%w: handle closed", devhost.ErrBadState)
	}
	if dev := s.Device(); dev.Dead() {
		return fmt.Errorf("%w: device %s removed", devhost.ErrBadState, dev.Name())
	}
	return nil
}

// Read reads up to n bytes at the current offset and advances it.
func (s *IOState) Read(ctx context.Context, n int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ref, err := s.pinLocked()
	if err != nil {
		return nil, err
	}
	defer ref.Drop()
	data, err := s.readAt(ctx, n, s.offset)
	if err != nil {
		return nil, err
	}
	s.offset += int64(len(data))
	return data, nil
}

// ReadAt reads up to n bytes at off without moving the offset.
func (s *IOState) ReadAt(ctx context.Context, n int, off int64) ([]byte, error) {
	ref, err := s.pin()
	if err != nil {
		return nil, err
	}
	defer ref.Drop()
	return s.readAt(ctx, n, off)
}

func (s *IOState) readAt(ctx context.Context, n int, off int64) ([]byte, error) {
	if n < 0 || n > wire.MaxDataLen || off < 0 {
		return nil, fmt.Errorf("%w: read of %d bytes at %d", devhost.ErrInvalidArgs, n, off)
	}
	buf := make([]byte, n)
	got, err := s.Device().Ops().Read(ctx, buf, off)
	if err != nil {
		return nil, err
	}
	if got < 0 || got > n {
		return nil, fmt.Errorf("%w: read callback returned %d of %d bytes", devhost.ErrInternal, got, n)
	}
	return buf[:got], nil
}

// Write writes data at the current offset and advances it by the bytes
// written.
func (s *IOState) Write(ctx context.Context, data []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ref, err := s.pinLocked()
	if err != nil {
		return 0, err
	}
	defer ref.Drop()
	n, err := s.writeAt(ctx, data, s.offset)
	if err != nil {
		return 0, err
	}
	s.offset += int64(n)
	return n, nil
}

// WriteAt writes data at off without moving the offset.
func (s *IOState) WriteAt(ctx context.Context, data []byte, off int64) (int, error) {
	ref, err := s.pin()
	if err != nil {
		return 0, err
	}
	defer ref.Drop()
	return s.writeAt(ctx, data, off)
}

func (s *IOState) writeAt(ctx context.Context, data []byte, off int64) (int, error) {
	if len(data) > wire.MaxDataLen || off < 0 {
		return 0, fmt.Errorf("%w: write of %d bytes at %d", devhost.ErrInvalidArgs, len(data), off)
	}
	n, err := s.Device().Ops().Write(ctx, data, off)
	if err != nil {
		return 0, err
	}
	if n < 0 || n > len(data) {
		return 0, fmt.Errorf("%w: write callback returned %d of %d bytes", devhost.ErrInternal, n, len(data))
	}
	return n, nil
}

// Seek moves the offset relative to origin (wire.SeekStart, SeekCurrent or
// SeekEnd) and returns the new offset.
func (s *IOState) Seek(delta int64, origin uint32) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.liveLocked(); err != nil {
		return 0, err
	}

	var base int64
	switch origin {
	case wire.SeekStart:
	case wire.SeekCurrent:
		base = s.offset
	case wire.SeekEnd:
		base = s.Device().Ops().GetSize()
	default:
		return 0, fmt.Errorf("%w: seek origin %d", devhost.ErrInvalidArgs, origin)
	}
	off := base + delta
	if off < 0 {
		return 0, fmt.Errorf("%w: seek to negative offset %d", devhost.ErrInvalidArgs, off)
	}
	s.offset = off
	return off, nil
}

// Stat returns the device size.
func (s *IOState) Stat() (int64, error) {
	ref, err := s.pin()
	if err != nil {
		return 0, err
	}
	defer ref.Drop()
	return s.Device().Ops().GetSize(), nil
}

// Ioctl forwards op to the device with an output buffer of outLen bytes.
func (s *IOState) Ioctl(ctx context.Context, op uint32, in []byte, outLen int) ([]byte, error) {
	ref, err := s.pin()
	if err != nil {
		return nil, err
	}
	defer ref.Drop()
	if outLen < 0 || outLen > wire.MaxDataLen {
		return nil, fmt.Errorf("%w: ioctl output of %d bytes", devhost.ErrInvalidArgs, outLen)
	}
	out := make([]byte, outLen)
	n, err := s.Device().Ops().Ioctl(ctx, op, in, out)
	if err != nil {
		return nil, err
	}
	if n < 0 || n > outLen {
		return nil, fmt.Errorf("%w: ioctl callback returned %d of %d bytes", devhost.ErrBufferTooSmall, n, outLen)
	}
	return out[:n], nil
}
