package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/devhost-project/devhost-go/pkg/log"
	"github.com/devhost-project/devhost-go/pkg/version"
	"github.com/devhost-project/devhost-go/pkg/wire"
)

// DefaultMaxPending bounds the unacknowledged queue.
const DefaultMaxPending = 4096

// State is the link connection state.
type State uint8

const (
	StateDisconnected State = iota
	StateConnected
	StateClosed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnected:
		return "CONNECTED"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Config configures a Link.
type Config struct {
	// HostID and Name identify the host in the Hello message.
	HostID string
	Name   string

	// Transport opens channels to the coordinator (required).
	Transport Transport

	// Handler executes inbound instructions. It can also be set later with
	// SetHandler; instructions arriving without a handler are dropped.
	Handler InstructionHandler

	// Backoff configures reconnection timing.
	Backoff BackoffConfig

	// MaxPending bounds unacknowledged notifications (default: 4096).
	MaxPending int

	// Logger is the optional logger for debug output.
	// If nil, logging is disabled.
	Logger *slog.Logger

	// ProtocolLogger receives envelope and link state events (optional).
	ProtocolLogger log.Logger
}

type outbound struct {
	seq  uint64
	kind wire.Kind
	data []byte
}

// Link is the ordered, acknowledged notification channel to the coordinator.
// Its Notify methods never block, so they are safe to call with the tree
// lock held.
type Link struct {
	cfg     Config
	backoff *Backoff
	wake    chan struct{}

	mu      sync.Mutex
	handler InstructionHandler
	pending []outbound // unacknowledged, in sequence order
	sent    int        // pending[:sent] went out on the current channel
	nextSeq uint64
	state   State
	closed  bool
	cancel  context.CancelFunc
}

// NewLink creates a link. Call Run to connect.
func NewLink(cfg Config) (*Link, error) {
	if cfg.Transport == nil {
		return nil, fmt.Errorf("coordinator transport is required")
	}
	if cfg.MaxPending <= 0 {
		cfg.MaxPending = DefaultMaxPending
	}
	return &Link{
		cfg:     cfg,
		backoff: NewBackoff(cfg.Backoff),
		wake:    make(chan struct{}, 1),
		handler: cfg.Handler,
	}, nil
}

// SetHandler sets the instruction handler.
func (l *Link) SetHandler(h InstructionHandler) {
	l.mu.Lock()
	l.handler = h
	l.mu.Unlock()
}

// NotifyAdd queues an AddDevice notification.
func (l *Link) NotifyAdd(msg wire.AddDevice) error {
	return l.enqueue(wire.KindAddDevice, &msg)
}

// NotifyRemove queues a RemoveDevice notification.
func (l *Link) NotifyRemove(msg wire.RemoveDevice) error {
	return l.enqueue(wire.KindRemoveDevice, &msg)
}

// RequestBind queues a BindDevice request.
func (l *Link) RequestBind(msg wire.BindDevice) error {
	return l.enqueue(wire.KindBindDevice, &msg)
}

func (l *Link) enqueue(kind wire.Kind, body any) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrClosed
	}
	if len(l.pending) >= l.cfg.MaxPending {
		return fmt.Errorf("%w: %d unacknowledged", ErrQueueFull, len(l.pending))
	}
	seq := l.nextSeq + 1
	data, err := wire.EncodeEnvelope(seq, kind, body)
	if err != nil {
		return err
	}
	l.nextSeq = seq
	l.pending = append(l.pending, outbound{seq: seq, kind: kind, data: data})

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return nil
}

// Pending returns the number of unacknowledged notifications.
func (l *Link) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

// State returns the connection state.
func (l *Link) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *Link) setState(s State, reason string) {
	l.mu.Lock()
	old := l.state
	if old == StateClosed {
		l.mu.Unlock()
		return
	}
	l.state = s
	l.mu.Unlock()

	if old == s || l.cfg.ProtocolLogger == nil {
		return
	}
	l.cfg.ProtocolLogger.Log(log.Event{
		Timestamp: time.Now(),
		Layer:     log.LayerTransport,
		Category:  log.CategoryState,
		Channel:   log.ChannelCoordinator,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityCoordinator,
			OldState: old.String(),
			NewState: s.String(),
			Reason:   reason,
		},
	})
}

// Close stops the link. Unacknowledged notifications are dropped.
func (l *Link) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	cancel := l.cancel
	l.mu.Unlock()

	l.setState(StateClosed, "closed")
	if cancel != nil {
		cancel()
	}
	return nil
}

// Run connects and keeps the link connected until ctx is cancelled or Close
// is called, reconnecting with exponential backoff.
func (l *Link) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	l.cancel = cancel
	l.mu.Unlock()

	for ctx.Err() == nil {
		ch, err := l.cfg.Transport.Connect(ctx)
		if err != nil {
			l.warnLog("coordinator connect failed", "endpoint", l.cfg.Transport.String(), "error", err)
			l.sleep(ctx)
			continue
		}
		l.backoff.Reset()
		l.debugLog("coordinator connected", "endpoint", l.cfg.Transport.String())

		err = l.serve(ctx, ch)
		ch.Close()
		l.setState(StateDisconnected, fmt.Sprint(err))
		if ctx.Err() != nil {
			break
		}
		l.warnLog("coordinator channel lost", "error", err, "pending", l.Pending())
		l.sleep(ctx)
	}
	return nil
}

func (l *Link) sleep(ctx context.Context) {
	t := time.NewTimer(l.backoff.Next())
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// serve runs one channel: it replays every unacknowledged notification, then
// sends new ones as they are queued while a reader handles inbound traffic.
func (l *Link) serve(ctx context.Context, ch Channel) error {
	hello, err := wire.EncodeEnvelope(0, wire.KindHello, &wire.Hello{
		HostID:  l.cfg.HostID,
		Name:    l.cfg.Name,
		Version: version.Current,
	})
	if err != nil {
		return err
	}
	if err := ch.Send(hello); err != nil {
		return fmt.Errorf("hello: %w", err)
	}
	l.logEnvelope(log.DirectionOut, 0, wire.KindHello)

	l.mu.Lock()
	l.sent = 0
	l.mu.Unlock()
	l.setState(StateConnected, "")

	errCh := make(chan error, 1)
	go func() {
		for {
			data, err := ch.Receive()
			if err != nil {
				errCh <- err
				return
			}
			l.handleInbound(ctx, ch, data)
		}
	}()

	for {
		for {
			l.mu.Lock()
			if l.sent >= len(l.pending) {
				l.mu.Unlock()
				break
			}
			msg := l.pending[l.sent]
			l.sent++
			l.mu.Unlock()

			if err := ch.Send(msg.data); err != nil {
				return fmt.Errorf("send %s #%d: %w", msg.kind, msg.seq, err)
			}
			l.logEnvelope(log.DirectionOut, msg.seq, msg.kind)
		}

		select {
		case <-l.wake:
		case err := <-errCh:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (l *Link) handleInbound(ctx context.Context, ch Channel, data []byte) {
	env, err := wire.DecodeEnvelope(data)
	if err != nil {
		l.warnLog("dropping malformed coordinator message", "error", err)
		return
	}
	l.logEnvelope(log.DirectionIn, env.Seq, env.Kind)

	l.mu.Lock()
	handler := l.handler
	l.mu.Unlock()

	switch env.Kind {
	case wire.KindHello:
		var hello wire.Hello
		if err := env.DecodeBody(&hello); err != nil {
			l.warnLog("bad Hello", "error", err)
			return
		}
		if err := version.CheckPeer(hello.Version); err != nil {
			l.warnLog("dropping coordinator channel", "error", err)
			ch.Close()
		}

	case wire.KindAck:
		l.ack(env.Seq)

	case wire.KindAddDeviceReply:
		l.ack(env.Seq)
		var reply wire.AddDeviceReply
		if err := env.DecodeBody(&reply); err != nil {
			l.warnLog("bad AddDeviceReply", "seq", env.Seq, "error", err)
			return
		}
		if handler == nil {
			return
		}
		if err := handler.HandleAddDeviceReply(ctx, reply); err != nil {
			l.warnLog("AddDeviceReply failed", "deviceID", reply.DeviceID, "error", err)
		}

	case wire.KindBindDriver:
		var msg wire.BindDriver
		if err := env.DecodeBody(&msg); err != nil {
			l.warnLog("bad BindDriver", "seq", env.Seq, "error", err)
			return
		}
		if handler != nil {
			if err := handler.HandleBindDriver(ctx, msg); err != nil {
				l.warnLog("BindDriver failed", "deviceID", msg.DeviceID, "libname", msg.LibName, "error", err)
			}
		}
		ack, err := wire.EncodeEnvelope(env.Seq, wire.KindAck, nil)
		if err == nil && ch.Send(ack) == nil {
			l.logEnvelope(log.DirectionOut, env.Seq, wire.KindAck)
		}

	default:
		l.warnLog("unexpected coordinator message", "kind", env.Kind, "seq", env.Seq)
	}
}

// ack drops the acknowledged message from the queue.
func (l *Link) ack(seq uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	i := slices.IndexFunc(l.pending, func(m outbound) bool { return m.seq == seq })
	if i < 0 {
		return
	}
	l.pending = slices.Delete(l.pending, i, i+1)
	if i < l.sent {
		l.sent--
	}
}

func (l *Link) logEnvelope(dir log.Direction, seq uint64, kind wire.Kind) {
	if l.cfg.ProtocolLogger == nil {
		return
	}
	l.cfg.ProtocolLogger.Log(log.Event{
		Timestamp: time.Now(),
		Direction: dir,
		Layer:     log.LayerWire,
		Category:  log.CategoryMessage,
		Channel:   log.ChannelCoordinator,
		Message: &log.MessageEvent{
			Type: log.MessageTypeEnvelope,
			Kind: &kind,
			Seq:  &seq,
		},
	})
}

func (l *Link) debugLog(msg string, args ...any) {
	if l.cfg.Logger != nil {
		l.cfg.Logger.Debug(msg, args...)
	}
}

func (l *Link) warnLog(msg string, args ...any) {
	if l.cfg.Logger != nil {
		l.cfg.Logger.Warn(msg, args...)
	}
}
