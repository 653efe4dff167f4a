package drivers

import (
	"context"

	"github.com/devhost-project/devhost-go/pkg/devhost"
)

// NullOps discards writes and reads end of data.
type NullOps struct {
	devhost.DefaultOps
}

func (NullOps) Read(context.Context, []byte, int64) (int, error) {
	return 0, nil
}

func (NullOps) Write(_ context.Context, buf []byte, _ int64) (int, error) {
	return len(buf), nil
}

// ZeroOps reads zero bytes and discards writes.
type ZeroOps struct {
	devhost.DefaultOps
}

func (ZeroOps) Read(_ context.Context, buf []byte, _ int64) (int, error) {
	clear(buf)
	return len(buf), nil
}

func (ZeroOps) Write(_ context.Context, buf []byte, _ int64) (int, error) {
	return len(buf), nil
}
