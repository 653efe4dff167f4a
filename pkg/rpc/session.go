package rpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/devhost-project/devhost-go/pkg/devhost"
	"github.com/devhost-project/devhost-go/pkg/log"
	"github.com/devhost-project/devhost-go/pkg/wire"
)

// Session errors.
var (
	ErrSessionDead = errors.New("session is dead")
)

// DefaultMaxHandles bounds the open handles of one session.
const DefaultMaxHandles = 1024

// RootHandle is the handle every session opens on the server's root device.
const RootHandle uint32 = 1

// Conn is what a session writes to. transport.ServerConn implements it.
type Conn interface {
	ConnID() string
	Send(data []byte) error
	Close() error
}

// SessionConfig configures a Session.
type SessionConfig struct {
	// Host owns the devices the session opens (required).
	Host *devhost.Host

	// Conn carries responses and events (required).
	Conn Conn

	// MaxHandles bounds open handles (default: DefaultMaxHandles).
	MaxHandles int

	// Logger is the optional logger for debug output.
	// If nil, logging is disabled.
	Logger *slog.Logger

	// ProtocolLogger receives request, response and event records (optional).
	ProtocolLogger log.Logger
}

type handleEntry struct {
	io     *IOState
	cancel func()
}

// Session multiplexes open devices over one connection.
type Session struct {
	cfg SessionConfig

	mu         sync.Mutex
	handles    map[uint32]*handleEntry
	nextHandle uint32
	dead       bool

	// Device signals queued by watchers, drained by eventLoop.
	evMu    sync.Mutex
	pending []wire.Event
	wake    chan struct{}

	done chan struct{}
	wg   sync.WaitGroup
}

// NewSession creates a session and starts its event loop.
func NewSession(cfg SessionConfig) *Session {
	if cfg.MaxHandles <= 0 {
		cfg.MaxHandles = DefaultMaxHandles
	}
	s := &Session{
		cfg:        cfg,
		handles:    make(map[uint32]*handleEntry),
		nextHandle: RootHandle,
		wake:       make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
	s.wg.Add(1)
	go s.eventLoop()
	return s
}

// ConnID returns the connection ID of the session's channel.
func (s *Session) ConnID() string { return s.cfg.Conn.ConnID() }

// Bootstrap opens dev and returns its handle. The first handle of a
// session is RootHandle.
func (s *Session) Bootstrap(ctx context.Context, dev *devhost.Device) (uint32, error) {
	io, err := Open(ctx, s.cfg.Host, dev, "", 0)
	if err != nil {
		return 0, err
	}
	return s.register(ctx, io)
}

// Len returns the number of open handles.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handles)
}

// Dead reports whether the session has been closed.
func (s *Session) Dead() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dead
}

// IOState returns the IOState behind a handle.
func (s *Session) IOState(handle uint32) (*IOState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.handles[handle]
	if !ok {
		return nil, false
	}
	return e.io, true
}

func (s *Session) register(ctx context.Context, io *IOState) (uint32, error) {
	s.mu.Lock()
	if s.dead {
		s.mu.Unlock()
		io.Close(ctx, 0)
		return 0, fmt.Errorf("%w: %w", devhost.ErrPeerClosed, ErrSessionDead)
	}
	if len(s.handles) >= s.cfg.MaxHandles {
		s.mu.Unlock()
		io.Close(ctx, 0)
		return 0, fmt.Errorf("%w: %d handles open", devhost.ErrNoResources, s.cfg.MaxHandles)
	}
	h := s.nextHandle
	s.nextHandle++
	e := &handleEntry{io: io}
	s.handles[h] = e
	s.mu.Unlock()

	e.cancel = io.Device().Watch(func(signals uint32) { s.queueEvent(h, signals) })
	if io.Device().Dead() {
		// Removed between open and watch: the hangup was missed.
		s.queueEvent(h, wire.SignalHangup)
	}
	return h, nil
}

func (s *Session) lookup(handle uint32) (*IOState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dead {
		return nil, fmt.Errorf("%w: %w", devhost.ErrPeerClosed, ErrSessionDead)
	}
	e, ok := s.handles[handle]
	if !ok {
		return nil, fmt.Errorf("%w: handle %d", devhost.ErrNotFound, handle)
	}
	return e.io, nil
}

// closeHandle removes a handle from the table and closes its IOState.
// Handles that were issued and already closed succeed.
func (s *Session) closeHandle(ctx context.Context, handle, flags uint32) error {
	s.mu.Lock()
	e, ok := s.handles[handle]
	if !ok {
		issued := handle != 0 && handle < s.nextHandle
		s.mu.Unlock()
		if issued {
			return nil
		}
		return fmt.Errorf("%w: handle %d", devhost.ErrNotFound, handle)
	}
	delete(s.handles, handle)
	s.mu.Unlock()

	if e.cancel != nil {
		e.cancel()
	}
	return e.io.Close(ctx, flags)
}

// HandleFrame decodes one request frame, dispatches it and sends the
// response. An undecodable frame kills the session.
func (s *Session) HandleFrame(ctx context.Context, data []byte) error {
	// Only undecodable framing is fatal; invalid fields get an error reply.
	var req wire.Request
	if err := wire.Unmarshal(data, &req); err != nil {
		s.logError("corrupt request frame", err)
		s.Kill(ctx)
		return fmt.Errorf("%w: %w", ErrSessionDead, err)
	}

	start := time.Now()
	s.logRequest(&req)
	resp := s.Handle(ctx, &req)
	s.logResponse(resp, time.Since(start))

	out, err := wire.EncodeResponse(resp)
	if err != nil {
		return fmt.Errorf("encode response: %w", err)
	}
	return s.cfg.Conn.Send(out)
}

// Handle dispatches one request and builds its response.
func (s *Session) Handle(ctx context.Context, req *wire.Request) *wire.Response {
	if err := req.Validate(); err != nil {
		return wire.ErrorResponse(req, wire.StatusInvalidArgs, err.Error())
	}
	resp, err := s.dispatch(ctx, req)
	if err != nil {
		status := devhost.StatusOf(err)
		s.debugLog("request failed", "op", req.Op, "handle", req.Handle, "status", status, "error", err)
		return wire.ErrorResponse(req, status, err.Error())
	}
	resp.MessageID = req.MessageID
	resp.Status = wire.StatusOK
	return resp
}

func (s *Session) dispatch(ctx context.Context, req *wire.Request) (*wire.Response, error) {
	if req.Op == wire.OpClose {
		return &wire.Response{}, s.closeHandle(ctx, req.Handle, req.Flags)
	}

	io, err := s.lookup(req.Handle)
	if err != nil {
		return nil, err
	}

	switch req.Op {
	case wire.OpOpen:
		base, err := io.pin()
		if err != nil {
			return nil, err
		}
		child, err := Open(ctx, s.cfg.Host, base.Device(), req.Path, req.Flags)
		base.Drop()
		if err != nil {
			return nil, err
		}
		h, err := s.register(ctx, child)
		if err != nil {
			return nil, err
		}
		return &wire.Response{Handle: h}, nil

	case wire.OpClone:
		clone, err := io.Clone(ctx)
		if err != nil {
			return nil, err
		}
		h, err := s.register(ctx, clone)
		if err != nil {
			return nil, err
		}
		return &wire.Response{Handle: h}, nil

	case wire.OpRead:
		data, err := io.Read(ctx, int(req.Length))
		if err != nil {
			return nil, err
		}
		return &wire.Response{Data: data, Offset: io.Offset(), Size: int64(len(data))}, nil

	case wire.OpReadAt:
		data, err := io.ReadAt(ctx, int(req.Length), req.Offset)
		if err != nil {
			return nil, err
		}
		return &wire.Response{Data: data, Offset: io.Offset(), Size: int64(len(data))}, nil

	case wire.OpWrite:
		n, err := io.Write(ctx, req.Data)
		if err != nil {
			return nil, err
		}
		return &wire.Response{Offset: io.Offset(), Size: int64(n)}, nil

	case wire.OpWriteAt:
		n, err := io.WriteAt(ctx, req.Data, req.Offset)
		if err != nil {
			return nil, err
		}
		return &wire.Response{Offset: io.Offset(), Size: int64(n)}, nil

	case wire.OpSeek:
		off, err := io.Seek(req.Offset, req.Arg)
		if err != nil {
			return nil, err
		}
		return &wire.Response{Offset: off}, nil

	case wire.OpStat:
		size, err := io.Stat()
		if err != nil {
			return nil, err
		}
		return &wire.Response{Size: size}, nil

	case wire.OpIoctl:
		out, err := io.Ioctl(ctx, req.Arg, req.Data, int(req.Length))
		if err != nil {
			return nil, err
		}
		return &wire.Response{Data: out, Size: int64(len(out))}, nil

	default:
		return nil, fmt.Errorf("%w: op %s", devhost.ErrNotSupported, req.Op)
	}
}

// Kill marks the session dead, closes the connection and every handle.
func (s *Session) Kill(ctx context.Context) {
	s.Close(ctx)
	s.cfg.Conn.Close()
}

// Close closes every handle and stops the event loop. The connection is
// left open. Closing twice does nothing.
func (s *Session) Close(ctx context.Context) {
	s.mu.Lock()
	if s.dead {
		s.mu.Unlock()
		return
	}
	s.dead = true
	entries := s.handles
	s.handles = make(map[uint32]*handleEntry)
	s.mu.Unlock()

	close(s.done)
	s.wg.Wait()

	for h, e := range entries {
		if e.cancel != nil {
			e.cancel()
		}
		if err := e.io.Close(ctx, 0); err != nil {
			s.debugLog("close callback failed", "handle", h, "error", err)
		}
	}
	s.debugLog("session closed", "connID", s.ConnID(), "handles", len(entries))
}

// queueEvent runs on the signalling goroutine, possibly under the tree
// lock, so it only appends and wakes the event loop.
func (s *Session) queueEvent(handle, signals uint32) {
	s.evMu.Lock()
	s.pending = append(s.pending, wire.Event{Handle: handle, Signals: signals})
	s.evMu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Session) eventLoop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}

		s.evMu.Lock()
		batch := s.pending
		s.pending = nil
		s.evMu.Unlock()

		for _, ev := range batch {
			s.deliver(ev)
		}
	}
}

// deliver sends one event. A hangup also releases the handle's device
// reference; the handle stays in the table until the client closes it.
func (s *Session) deliver(ev wire.Event) {
	s.mu.Lock()
	e, ok := s.handles[ev.Handle]
	s.mu.Unlock()
	if !ok {
		return
	}

	if ev.Signals&wire.SignalHangup != 0 {
		if err := e.io.Close(context.Background(), 0); err != nil {
			s.debugLog("close on hangup failed", "handle", ev.Handle, "error", err)
		}
	}

	data, err := wire.EncodeEvent(&ev)
	if err != nil {
		s.logError("encode event", err)
		return
	}
	s.logEvent(ev)
	if err := s.cfg.Conn.Send(data); err != nil {
		s.debugLog("event send failed", "handle", ev.Handle, "error", err)
	}
}

func (s *Session) logRequest(req *wire.Request) {
	if s.cfg.ProtocolLogger == nil {
		return
	}
	op, handle := req.Op, req.Handle
	s.cfg.ProtocolLogger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: s.ConnID(),
		Direction:    log.DirectionIn,
		Layer:        log.LayerWire,
		Category:     log.CategoryMessage,
		Channel:      log.ChannelRemoteIO,
		Message: &log.MessageEvent{
			Type:      log.MessageTypeRequest,
			MessageID: req.MessageID,
			Op:        &op,
			Handle:    &handle,
		},
	})
}

func (s *Session) logResponse(resp *wire.Response, elapsed time.Duration) {
	if s.cfg.ProtocolLogger == nil {
		return
	}
	status := resp.Status
	s.cfg.ProtocolLogger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: s.ConnID(),
		Direction:    log.DirectionOut,
		Layer:        log.LayerWire,
		Category:     log.CategoryMessage,
		Channel:      log.ChannelRemoteIO,
		Message: &log.MessageEvent{
			Type:           log.MessageTypeResponse,
			MessageID:      resp.MessageID,
			Status:         &status,
			ProcessingTime: &elapsed,
		},
	})
}

func (s *Session) logEvent(ev wire.Event) {
	if s.cfg.ProtocolLogger == nil {
		return
	}
	handle := ev.Handle
	s.cfg.ProtocolLogger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: s.ConnID(),
		Direction:    log.DirectionOut,
		Layer:        log.LayerWire,
		Category:     log.CategoryMessage,
		Channel:      log.ChannelRemoteIO,
		Message: &log.MessageEvent{
			Type:   log.MessageTypeEvent,
			Handle: &handle,
		},
	})
}

func (s *Session) logError(what string, err error) {
	if s.cfg.Logger != nil {
		s.cfg.Logger.Warn(what, "connID", s.ConnID(), "error", err)
	}
	if s.cfg.ProtocolLogger == nil {
		return
	}
	s.cfg.ProtocolLogger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: s.ConnID(),
		Layer:        log.LayerWire,
		Category:     log.CategoryError,
		Channel:      log.ChannelRemoteIO,
		Error: &log.ErrorEventData{
			Layer:   log.LayerWire,
			Message: err.Error(),
			Context: what,
		},
	})
}

func (s *Session) debugLog(msg string, args ...any) {
	if s.cfg.Logger != nil {
		s.cfg.Logger.Debug(msg, args...)
	}
}
