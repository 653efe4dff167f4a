package devhost

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTreeLockReentryTrapsInDebug(t *testing.T) {
	l := NewTreeLock(true)
	ctx, err := l.Lock(context.Background())
	require.NoError(t, err)
	defer l.Unlock()

	ie := recoverInvariant(func() { _, _ = l.Lock(ctx) })
	require.NotNil(t, ie)
	assert.Equal(t, "Lock", ie.Op)
	assert.True(t, l.Held(), "the trap must not release the lock")
}

func TestTreeLockReentryFailsWithoutDebug(t *testing.T) {
	l := NewTreeLock(false)
	ctx, err := l.Lock(context.Background())
	require.NoError(t, err)
	defer l.Unlock()

	_, err = l.Lock(ctx)
	assert.ErrorIs(t, err, ErrLockReentrant)
}

func TestTreeLockUnlockNotHeld(t *testing.T) {
	l := NewTreeLock(false)
	ie := recoverInvariant(l.Unlock)
	require.NotNil(t, ie)
	assert.Equal(t, "Unlock", ie.Op)
}

func TestTreeLockStaleContext(t *testing.T) {
	l := NewTreeLock(true)
	ctx, err := l.Lock(context.Background())
	require.NoError(t, err)
	assert.True(t, l.HeldBy(ctx))
	l.Unlock()

	assert.False(t, l.HeldBy(ctx))
	ctx2, err := l.Lock(ctx)
	require.NoError(t, err)
	assert.True(t, l.HeldBy(ctx2))
	assert.False(t, l.HeldBy(ctx))
	l.Unlock()
}

func TestTreeLockSerializes(t *testing.T) {
	l := NewTreeLock(true)
	var (
		wg     sync.WaitGroup
		inside int
		max    int
		mu     sync.Mutex
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				_, err := l.Lock(context.Background())
				if err != nil {
					t.Error(err)
					return
				}
				mu.Lock()
				inside++
				if inside > max {
					max = inside
				}
				mu.Unlock()
				time.Sleep(time.Microsecond)
				mu.Lock()
				inside--
				mu.Unlock()
				l.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, max)
	assert.False(t, l.Held())
}

func TestCallbackReentryTraps(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register("bad", "bad", func() DriverOps {
		return &funcDriver{bind: func(ctx context.Context, tx *Tx, parent *Device) error {
			// Structural calls from a callback must go through tx.
			_, err := tx.Host().Create(ctx, tx.Driver(), parent, "child", nil)
			return err
		}}
	}))
	h, root := newTestHost(t, HostConfig{Registry: reg, LockDebug: true})
	dev := addDevice(t, h, root, "dev", nil)

	ie := recoverInvariant(func() { _ = h.Bind(context.Background(), dev, "bad") })
	require.NotNil(t, ie)
	assert.False(t, h.Lock().Held(), "the lock is released while the panic unwinds")
}

func TestCallbackReentryFailsWithoutDebug(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register("bad", "bad", func() DriverOps {
		return &funcDriver{bind: func(ctx context.Context, tx *Tx, parent *Device) error {
			return tx.Host().Remove(ctx, parent)
		}}
	}))
	h, root := newTestHost(t, HostConfig{Registry: reg})
	dev := addDevice(t, h, root, "dev", nil)

	err := h.Bind(context.Background(), dev, "bad")
	assert.ErrorIs(t, err, ErrLockReentrant)
	assert.Equal(t, StateAdded, dev.State())
	assert.False(t, dev.Dead())

	drv, ok := reg.Lookup("bad")
	require.True(t, ok)
	assert.Zero(t, drv.Refs())
}

func TestTxUseAfterSection(t *testing.T) {
	h, root := newTestHost(t, HostConfig{})
	var leaked *Tx
	require.NoError(t, h.Do(context.Background(), func(tx *Tx) error {
		leaked = tx
		return nil
	}))

	ie := recoverInvariant(func() { leaked.Children(root) })
	require.NotNil(t, ie)
	assert.Equal(t, "Children", ie.Op)
}

func TestLoadFirmwareUnderLock(t *testing.T) {
	h, root := newTestHost(t, HostConfig{})
	ctx := context.Background()

	require.NoError(t, h.Do(ctx, func(tx *Tx) error {
		_, err := h.LoadFirmware(tx.Context(), root, "fw.bin")
		assert.ErrorIs(t, err, ErrLockReentrant)
		return nil
	}))

	_, err := h.LoadFirmware(ctx, root, "fw.bin")
	assert.ErrorIs(t, err, ErrNotSupported)
}

type mapFirmware map[string][]byte

func (m mapFirmware) LoadFirmware(_ context.Context, dev *Device, path string) ([]byte, error) {
	if dev.Refs() < 2 {
		return nil, ErrBadState
	}
	if data, ok := m[path]; ok {
		return data, nil
	}
	return nil, ErrNotFound
}

func TestLoadFirmware(t *testing.T) {
	h, root := newTestHost(t, HostConfig{Firmware: mapFirmware{"gpu.bin": {0xde, 0xad}}})
	ctx := context.Background()

	data, err := h.LoadFirmware(ctx, root, "gpu.bin")
	require.NoError(t, err)
	assert.Equal(t, []byte{0xde, 0xad}, data)
	assert.Equal(t, int64(1), root.Refs(), "the load reference is dropped")

	_, err = h.LoadFirmware(ctx, root, "missing.bin")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = h.LoadFirmware(ctx, root, "")
	assert.ErrorIs(t, err, ErrInvalidArgs)
}

func TestDirFirmware(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "intel"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "intel", "ucode.bin"), []byte{1, 2, 3}, 0o644))

	h, root := newTestHost(t, HostConfig{Firmware: NewDirFirmware(dir)})
	ctx := context.Background()

	data, err := h.LoadFirmware(ctx, root, "intel/ucode.bin")
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, data)

	_, err = h.LoadFirmware(ctx, root, "intel/missing.bin")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = h.LoadFirmware(ctx, root, "../etc/passwd")
	assert.ErrorIs(t, err, ErrInvalidArgs)

	_, err = h.LoadFirmware(ctx, root, "/intel/ucode.bin")
	assert.ErrorIs(t, err, ErrInvalidArgs)
}
