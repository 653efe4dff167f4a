package rpc

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devhost-project/devhost-go/pkg/devhost"
	"github.com/devhost-project/devhost-go/pkg/wire"
)

func TestOpenTakesReference(t *testing.T) {
	tr := newTestTree(t)
	ctx := context.Background()

	io, err := Open(ctx, tr.host, tr.root, "mem", 0x2)
	require.NoError(t, err)
	assert.Same(t, tr.mem, io.Device())
	assert.Equal(t, uint32(0x2), io.Flags())
	assert.Equal(t, int64(2), tr.mem.Refs())
	assert.Equal(t, int32(1), tr.ops.opens.Load())

	require.NoError(t, io.Close(ctx, 0))
	assert.True(t, io.Dead())
	assert.Equal(t, int64(1), tr.mem.Refs())

	// A second close neither calls the driver nor releases again.
	require.NoError(t, io.Close(ctx, 0))
	assert.Equal(t, int32(1), tr.ops.closes.Load())
	assert.Equal(t, int64(1), tr.mem.Refs())
}

func TestOpenErrors(t *testing.T) {
	tr := newTestTree(t)
	ctx := context.Background()

	_, err := Open(ctx, tr.host, tr.root, "nope", 0)
	assert.ErrorIs(t, err, devhost.ErrNotFound)
	_, err = Open(ctx, tr.host, tr.root, "../x", 0)
	assert.ErrorIs(t, err, devhost.ErrInvalidArgs)

	hold := tr.mem.Ref()
	defer hold.Drop()
	require.NoError(t, tr.host.Remove(ctx, tr.mem))
	_, err = Open(ctx, tr.host, tr.mem, "", 0)
	assert.ErrorIs(t, err, devhost.ErrBadState)
}

func TestIOStateOffsets(t *testing.T) {
	tr := newTestTree(t)
	ctx := context.Background()
	io, err := Open(ctx, tr.host, tr.root, "mem", 0)
	require.NoError(t, err)
	defer io.Close(ctx, 0)

	data, err := io.Read(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	assert.Equal(t, int64(5), io.Offset())

	data, err = io.ReadAt(ctx, 5, 6)
	require.NoError(t, err)
	assert.Equal(t, "world", string(data))
	assert.Equal(t, int64(5), io.Offset(), "ReadAt leaves the offset")

	n, err := io.Write(ctx, []byte("!!"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, int64(7), io.Offset())

	off, err := io.Seek(-3, wire.SeekEnd)
	require.NoError(t, err)
	assert.Equal(t, int64(8), off)
	data, err = io.Read(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, "rld", string(data))

	data, err = io.Read(ctx, 100)
	require.NoError(t, err)
	assert.Empty(t, data, "end of data")
	assert.Equal(t, int64(11), io.Offset())

	_, err = io.Seek(-100, wire.SeekCurrent)
	assert.ErrorIs(t, err, devhost.ErrInvalidArgs)
	_, err = io.Seek(0, 7)
	assert.ErrorIs(t, err, devhost.ErrInvalidArgs)
	_, err = io.ReadAt(ctx, 1, -1)
	assert.ErrorIs(t, err, devhost.ErrInvalidArgs)

	size, err := io.Stat()
	require.NoError(t, err)
	assert.Equal(t, int64(11), size)

	out, err := io.Ioctl(ctx, 1, []byte("ping"), 16)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(out))
	_, err = io.Ioctl(ctx, 1, []byte("ping"), 2)
	assert.ErrorIs(t, err, devhost.ErrBufferTooSmall)
	_, err = io.Ioctl(ctx, 9, nil, 0)
	assert.ErrorIs(t, err, devhost.ErrNotSupported)
}

func TestIndependentOpensKeepSeparateOffsets(t *testing.T) {
	tr := newTestTree(t)
	ctx := context.Background()

	a, err := Open(ctx, tr.host, tr.root, "mem", 0)
	require.NoError(t, err)
	defer a.Close(ctx, 0)
	b, err := a.Clone(ctx)
	require.NoError(t, err)
	defer b.Close(ctx, 0)

	_, err = a.Read(ctx, 6)
	require.NoError(t, err)
	data, err := b.Read(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	assert.Equal(t, int64(6), a.Offset())
	assert.Equal(t, int64(5), b.Offset())
	assert.Equal(t, int64(3), tr.mem.Refs())
}

func TestIOStateAfterRemove(t *testing.T) {
	tr := newTestTree(t)
	ctx := context.Background()
	io, err := Open(ctx, tr.host, tr.root, "mem", 0)
	require.NoError(t, err)

	require.NoError(t, tr.host.Remove(ctx, tr.mem))
	_, err = io.Read(ctx, 1)
	assert.ErrorIs(t, err, devhost.ErrBadState)
	_, err = io.Clone(ctx)
	assert.ErrorIs(t, err, devhost.ErrBadState)

	select {
	case <-tr.mem.Done():
		t.Fatal("device destroyed while open")
	default:
	}
	require.NoError(t, io.Close(ctx, 0))
	waitDestroyed(t, tr.mem)
}

func TestOpenRacingRemove(t *testing.T) {
	tr := newTestTree(t)
	ctx := context.Background()

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		opened []*IOState
	)
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			io, err := Open(ctx, tr.host, tr.root, "mem", 0)
			if err != nil {
				if !errors.Is(err, devhost.ErrNotFound) && !errors.Is(err, devhost.ErrBadState) {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if io.Device().State() == devhost.StateDestroyed {
				t.Error("opened a destroyed device")
			}
			mu.Lock()
			opened = append(opened, io)
			mu.Unlock()
		}()
	}
	require.NoError(t, tr.host.Remove(ctx, tr.mem))
	wg.Wait()

	assert.Equal(t, int64(len(opened)), tr.mem.Refs())
	for _, io := range opened {
		require.NoError(t, io.Close(ctx, 0))
	}
	waitDestroyed(t, tr.mem)
	assert.Equal(t, tr.ops.opens.Load(), tr.ops.closes.Load())
}
