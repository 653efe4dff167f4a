package devhost

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/devhost-project/devhost-go/pkg/wire"
)

// Lookup resolves path relative to base and returns a reference on the
// result. Leading path segments are matched against child names; the
// remainder, if any, is handed to the deepest device's OpenAt callback. The
// whole resolution runs under the tree lock, so a device being removed is
// either found live or not found at all.
func (h *Host) Lookup(ctx context.Context, base *Device, path string, flags uint32) (*Ref, error) {
	var ref *Ref
	err := h.Do(ctx, func(tx *Tx) error {
		var err error
		ref, err = tx.Lookup(base, path, flags)
		return err
	})
	return ref, err
}

// Lookup resolves path relative to base. See Host.Lookup.
func (tx *Tx) Lookup(base *Device, path string, flags uint32) (*Ref, error) {
	tx.check("Lookup")
	if len(path) > wire.MaxPathLen {
		return nil, fmt.Errorf("%w: path too long", ErrInvalidArgs)
	}
	if base.Dead() {
		return nil, fmt.Errorf("%w: device %s is dead", ErrBadState, base.name)
	}

	dev := base
	rest := strings.TrimPrefix(path, "/")
	for rest != "" {
		seg, tail, _ := strings.Cut(rest, "/")
		if seg == "" || seg == "." {
			rest = tail
			continue
		}
		if seg == ".." {
			return nil, fmt.Errorf("%w: path %q escapes its base", ErrInvalidArgs, path)
		}
		child, ok := tx.Child(dev, seg)
		if !ok {
			break
		}
		dev, rest = child, tail
	}

	if rest != "" {
		target, err := dev.ops.OpenAt(tx.ctx, rest, flags)
		switch {
		case errors.Is(err, ErrNotSupported):
			return nil, fmt.Errorf("%w: %s has no %q", ErrNotFound, dev.name, rest)
		case err != nil:
			return nil, err
		case target == nil:
			return nil, fmt.Errorf("%w: %s has no %q", ErrNotFound, dev.name, rest)
		}
		dev = target
	}

	if dev.Dead() || !dev.State().resident() {
		return nil, fmt.Errorf("%w: device %s is %s", ErrBadState, dev.name, dev.State())
	}
	return dev.Ref(), nil
}
