package devhost

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/devhost-project/devhost-go/pkg/wire"
)

// FirmwareLoader fetches firmware blobs for drivers. The mechanism lives
// outside the host.
type FirmwareLoader interface {
	LoadFirmware(ctx context.Context, dev *Device, path string) ([]byte, error)
}

// NoFirmware is the default loader; it supports nothing.
type NoFirmware struct{}

// LoadFirmware always fails with ErrNotSupported.
func (NoFirmware) LoadFirmware(context.Context, *Device, string) ([]byte, error) {
	return nil, ErrNotSupported
}

// DirFirmware loads firmware files from a directory. Paths are slash
// separated and may not leave the directory.
type DirFirmware struct {
	fsys fs.FS
}

// NewDirFirmware creates a loader rooted at dir.
func NewDirFirmware(dir string) *DirFirmware {
	return &DirFirmware{fsys: os.DirFS(dir)}
}

// LoadFirmware reads path below the directory.
func (f *DirFirmware) LoadFirmware(_ context.Context, _ *Device, path string) ([]byte, error) {
	if !fs.ValidPath(path) {
		return nil, fmt.Errorf("%w: firmware path %q", ErrInvalidArgs, path)
	}
	data, err := fs.ReadFile(f.fsys, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}
	return data, nil
}

// LoadFirmware loads a firmware blob for dev. Loading is an external wait,
// so it is refused while the caller holds the tree lock.
func (h *Host) LoadFirmware(ctx context.Context, dev *Device, path string) ([]byte, error) {
	if h.lock.HeldBy(ctx) {
		if h.lock.Debug() {
			invariant("LoadFirmware", "firmware load while holding the tree lock")
		}
		return nil, ErrLockReentrant
	}
	if path == "" || len(path) > wire.MaxPathLen {
		return nil, fmt.Errorf("%w: firmware path %q", ErrInvalidArgs, path)
	}
	ref, ok := dev.TryRef()
	if !ok {
		return nil, fmt.Errorf("%w: device %s is destroyed", ErrBadState, dev.name)
	}
	defer ref.Drop()
	if dev.Dead() {
		return nil, fmt.Errorf("%w: device %s is dead", ErrBadState, dev.name)
	}
	data, err := h.firmware.LoadFirmware(ctx, dev, path)
	if err != nil {
		return nil, fmt.Errorf("load firmware %s for %s: %w", path, dev.name, err)
	}
	return data, nil
}
