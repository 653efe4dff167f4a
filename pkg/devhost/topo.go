package devhost

import (
	"context"
	"fmt"
	"strings"

	"github.com/devhost-project/devhost-go/pkg/wire"
)

// TopoPrefix prefixes every topological path.
const TopoPrefix = "/dev"

// TopoPath returns the device's topological path, such as
// "/dev/root/pci/00:1f.3". max bounds the result in bytes (0 means
// wire.MaxPathLen). When the path does not fit, the required length is
// returned together with ErrBufferTooSmall.
func (h *Host) TopoPath(ctx context.Context, dev *Device, max int) (string, int, error) {
	var (
		path string
		n    int
	)
	err := h.Do(ctx, func(tx *Tx) error {
		var err error
		path, n, err = tx.TopoPath(dev, max)
		return err
	})
	return path, n, err
}

// TopoPath returns the device's topological path. See Host.TopoPath.
func (tx *Tx) TopoPath(dev *Device, max int) (string, int, error) {
	if max <= 0 {
		max = wire.MaxPathLen
	}
	if dev.Dead() {
		return "", 0, fmt.Errorf("%w: device %s is dead", ErrBadState, dev.name)
	}

	var names []string
	for d := dev; d != nil; d = tx.Parent(d) {
		names = append(names, d.name)
	}

	need := len(TopoPrefix)
	for _, name := range names {
		need += 1 + len(name)
	}
	if need > max {
		return "", need, fmt.Errorf("%w: path needs %d bytes, have %d", ErrBufferTooSmall, need, max)
	}

	var b strings.Builder
	b.Grow(need)
	b.WriteString(TopoPrefix)
	for i := len(names) - 1; i >= 0; i-- {
		b.WriteByte('/')
		b.WriteString(names[i])
	}
	return b.String(), need, nil
}
