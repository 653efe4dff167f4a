package coordinator_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/devhost-project/devhost-go/pkg/coordinator"
	"github.com/devhost-project/devhost-go/pkg/coordinator/mocks"
	"github.com/devhost-project/devhost-go/pkg/version"
	"github.com/devhost-project/devhost-go/pkg/wire"
)

// fakeChannel is an in-memory coordinator channel.
type fakeChannel struct {
	up     chan []byte
	down   chan []byte
	closed chan struct{}
	once   sync.Once
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{
		up:     make(chan []byte, 16),
		down:   make(chan []byte, 16),
		closed: make(chan struct{}),
	}
}

func (f *fakeChannel) Send(data []byte) error {
	select {
	case <-f.closed:
		return io.ErrClosedPipe
	default:
	}
	select {
	case f.up <- data:
		return nil
	case <-f.closed:
		return io.ErrClosedPipe
	}
}

func (f *fakeChannel) Receive() ([]byte, error) {
	select {
	case data := <-f.down:
		return data, nil
	case <-f.closed:
		return nil, io.EOF
	}
}

func (f *fakeChannel) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

// next reads the next envelope the host sent.
func (f *fakeChannel) next(t *testing.T) *wire.Envelope {
	t.Helper()
	select {
	case data := <-f.up:
		env, err := wire.DecodeEnvelope(data)
		require.NoError(t, err)
		return env
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for envelope")
		return nil
	}
}

// reply sends an envelope to the host.
func (f *fakeChannel) reply(t *testing.T, seq uint64, kind wire.Kind, body any) {
	t.Helper()
	data, err := wire.EncodeEnvelope(seq, kind, body)
	require.NoError(t, err)
	f.down <- data
}

func newLink(t *testing.T, tr coordinator.Transport, h coordinator.InstructionHandler) *coordinator.Link {
	t.Helper()
	link, err := coordinator.NewLink(coordinator.Config{
		HostID:    "host-1",
		Name:      "test",
		Transport: tr,
		Handler:   h,
		Backoff:   coordinator.BackoffConfig{Initial: time.Millisecond, Max: 5 * time.Millisecond},
	})
	require.NoError(t, err)
	return link
}

func runLink(t *testing.T, link *coordinator.Link) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		link.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestNewLinkRequiresTransport(t *testing.T) {
	_, err := coordinator.NewLink(coordinator.Config{})
	assert.Error(t, err)
}

func TestLinkDeliversInOrderUntilAcked(t *testing.T) {
	ch := newFakeChannel()
	tr := mocks.NewMockTransport(t)
	tr.EXPECT().Connect(mock.Anything).Return(ch, nil).Once()
	tr.EXPECT().String().Return("fake").Maybe()

	link := newLink(t, tr, nil)
	require.NoError(t, link.NotifyAdd(wire.AddDevice{DeviceID: 1, Name: "root"}))
	require.NoError(t, link.NotifyAdd(wire.AddDevice{DeviceID: 2, ParentID: 1, Name: "child"}))
	require.NoError(t, link.NotifyRemove(wire.RemoveDevice{DeviceID: 2}))
	assert.Equal(t, 3, link.Pending())

	runLink(t, link)

	hello := ch.next(t)
	assert.Equal(t, wire.KindHello, hello.Kind)
	var h wire.Hello
	require.NoError(t, hello.DecodeBody(&h))
	assert.Equal(t, "host-1", h.HostID)
	assert.Equal(t, version.Current, h.Version)

	kinds := []wire.Kind{wire.KindAddDevice, wire.KindAddDevice, wire.KindRemoveDevice}
	for i, kind := range kinds {
		env := ch.next(t)
		assert.Equal(t, uint64(i+1), env.Seq)
		assert.Equal(t, kind, env.Kind)
	}

	for seq := uint64(1); seq <= 3; seq++ {
		ch.reply(t, seq, wire.KindAck, nil)
	}
	assert.Eventually(t, func() bool { return link.Pending() == 0 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, coordinator.StateConnected, link.State())
}

func TestLinkResendsUnackedAfterReconnect(t *testing.T) {
	first, second := newFakeChannel(), newFakeChannel()
	tr := mocks.NewMockTransport(t)
	tr.EXPECT().Connect(mock.Anything).Return(first, nil).Once()
	tr.EXPECT().Connect(mock.Anything).Return(second, nil).Once()
	tr.EXPECT().String().Return("fake").Maybe()

	link := newLink(t, tr, nil)
	require.NoError(t, link.NotifyAdd(wire.AddDevice{DeviceID: 1, Name: "a"}))
	require.NoError(t, link.NotifyAdd(wire.AddDevice{DeviceID: 2, Name: "b"}))
	runLink(t, link)

	assert.Equal(t, wire.KindHello, first.next(t).Kind)
	assert.Equal(t, uint64(1), first.next(t).Seq)
	assert.Equal(t, uint64(2), first.next(t).Seq)

	first.reply(t, 1, wire.KindAck, nil)
	require.Eventually(t, func() bool { return link.Pending() == 1 }, 2*time.Second, 5*time.Millisecond)
	first.Close()

	assert.Equal(t, wire.KindHello, second.next(t).Kind)
	resent := second.next(t)
	assert.Equal(t, uint64(2), resent.Seq)
	var body wire.AddDevice
	require.NoError(t, resent.DecodeBody(&body))
	assert.Equal(t, "b", body.Name)

	require.NoError(t, link.RequestBind(wire.BindDevice{DeviceID: 2}))
	next := second.next(t)
	assert.Equal(t, uint64(3), next.Seq)
	assert.Equal(t, wire.KindBindDevice, next.Kind)
}

func TestLinkDispatchesInstructions(t *testing.T) {
	ch := newFakeChannel()
	tr := mocks.NewMockTransport(t)
	tr.EXPECT().Connect(mock.Anything).Return(ch, nil).Once()
	tr.EXPECT().String().Return("fake").Maybe()

	handled := make(chan struct{}, 2)
	handler := mocks.NewMockInstructionHandler(t)
	handler.EXPECT().HandleBindDriver(mock.Anything, wire.BindDriver{DeviceID: 7, LibName: "null"}).
		Run(func(context.Context, wire.BindDriver) { handled <- struct{}{} }).
		Return(nil).Once()
	handler.EXPECT().HandleAddDeviceReply(mock.Anything, wire.AddDeviceReply{DeviceID: 7, RemoteID: 99}).
		Run(func(context.Context, wire.AddDeviceReply) { handled <- struct{}{} }).
		Return(errors.New("ignored")).Once()

	link := newLink(t, tr, handler)
	require.NoError(t, link.NotifyAdd(wire.AddDevice{DeviceID: 7, Name: "dev"}))
	runLink(t, link)

	assert.Equal(t, wire.KindHello, ch.next(t).Kind)
	add := ch.next(t)
	require.Equal(t, wire.KindAddDevice, add.Kind)

	ch.reply(t, add.Seq, wire.KindAddDeviceReply, &wire.AddDeviceReply{DeviceID: 7, RemoteID: 99})
	<-handled
	assert.Eventually(t, func() bool { return link.Pending() == 0 }, 2*time.Second, 5*time.Millisecond)

	ch.reply(t, 41, wire.KindBindDriver, &wire.BindDriver{DeviceID: 7, LibName: "null"})
	<-handled
	ack := ch.next(t)
	assert.Equal(t, wire.KindAck, ack.Kind)
	assert.Equal(t, uint64(41), ack.Seq)
}

func TestLinkDropsIncompatibleCoordinator(t *testing.T) {
	first, second := newFakeChannel(), newFakeChannel()
	tr := mocks.NewMockTransport(t)
	tr.EXPECT().Connect(mock.Anything).Return(first, nil).Once()
	tr.EXPECT().Connect(mock.Anything).Return(second, nil).Once()
	tr.EXPECT().String().Return("fake").Maybe()

	link := newLink(t, tr, nil)
	require.NoError(t, link.NotifyAdd(wire.AddDevice{DeviceID: 1, Name: "a"}))
	runLink(t, link)

	assert.Equal(t, wire.KindHello, first.next(t).Kind)
	assert.Equal(t, uint64(1), first.next(t).Seq)

	first.reply(t, 0, wire.KindHello, &wire.Hello{Version: "9.0"})
	select {
	case <-first.closed:
	case <-time.After(2 * time.Second):
		t.Fatal("incompatible channel not closed")
	}

	// The unacknowledged notification is replayed on the next channel.
	assert.Equal(t, wire.KindHello, second.next(t).Kind)
	assert.Equal(t, uint64(1), second.next(t).Seq)
	second.reply(t, 0, wire.KindHello, &wire.Hello{Version: version.Current})
	second.reply(t, 1, wire.KindAck, nil)
	assert.Eventually(t, func() bool { return link.Pending() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestLinkRetriesFailedConnect(t *testing.T) {
	ch := newFakeChannel()
	tr := mocks.NewMockTransport(t)
	tr.EXPECT().Connect(mock.Anything).Return(nil, errors.New("refused")).Twice()
	tr.EXPECT().Connect(mock.Anything).Return(ch, nil).Once()
	tr.EXPECT().String().Return("fake").Maybe()

	link := newLink(t, tr, nil)
	runLink(t, link)

	assert.Equal(t, wire.KindHello, ch.next(t).Kind)
}

func TestLinkClose(t *testing.T) {
	tr := mocks.NewMockTransport(t)
	link := newLink(t, tr, nil)

	require.NoError(t, link.Close())
	assert.Equal(t, coordinator.StateClosed, link.State())
	assert.ErrorIs(t, link.NotifyAdd(wire.AddDevice{DeviceID: 1}), coordinator.ErrClosed)
	assert.ErrorIs(t, link.Run(context.Background()), coordinator.ErrClosed)
	assert.NoError(t, link.Close())
}

func TestLinkQueueFull(t *testing.T) {
	tr := mocks.NewMockTransport(t)
	link, err := coordinator.NewLink(coordinator.Config{Transport: tr, MaxPending: 2})
	require.NoError(t, err)

	require.NoError(t, link.NotifyRemove(wire.RemoveDevice{DeviceID: 1}))
	require.NoError(t, link.NotifyRemove(wire.RemoveDevice{DeviceID: 2}))
	assert.ErrorIs(t, link.NotifyRemove(wire.RemoveDevice{DeviceID: 3}), coordinator.ErrQueueFull)
}

func TestNop(t *testing.T) {
	var n coordinator.Nop
	assert.ErrorIs(t, n.NotifyAdd(wire.AddDevice{}), coordinator.ErrNoCoordinator)
	assert.ErrorIs(t, n.NotifyRemove(wire.RemoveDevice{}), coordinator.ErrNoCoordinator)
	assert.ErrorIs(t, n.RequestBind(wire.BindDevice{}), coordinator.ErrNoCoordinator)
}
