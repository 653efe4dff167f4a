package interactive

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devhost-project/devhost-go/pkg/devhost"
	"github.com/devhost-project/devhost-go/pkg/drivers"
	"github.com/devhost-project/devhost-go/pkg/resource"
)

func newTestShell(t *testing.T) (*Shell, *devhost.Host, *bytes.Buffer) {
	t.Helper()
	reg := devhost.NewRegistry()
	require.NoError(t, drivers.Register(reg))
	h := devhost.NewHost(devhost.HostConfig{Registry: reg})
	_, err := drivers.Bootstrap(context.Background(), h)
	require.NoError(t, err)

	grants, err := resource.NewRoot([]byte("test secret"))
	require.NoError(t, err)

	var out bytes.Buffer
	return New(Config{Host: h, Grants: grants, Out: &out}), h, &out
}

func TestShellTree(t *testing.T) {
	sh, _, out := newTestShell(t)
	ctx := context.Background()

	require.NoError(t, sh.Exec(ctx, "tree"))
	assert.Contains(t, out.String(), "root [id=")
	assert.Contains(t, out.String(), "driver=root")
	assert.Contains(t, out.String(), "  null [id=")
	assert.Contains(t, out.String(), "  zero [id=")
}

func TestShellAddRemove(t *testing.T) {
	sh, h, out := newTestShell(t)
	ctx := context.Background()
	before := h.Len()

	require.NoError(t, sh.Exec(ctx, "add / bus"))
	require.NoError(t, sh.Exec(ctx, "add bus slot0 pci/00:1f.3"))
	assert.Contains(t, out.String(), "added slot0")
	assert.Equal(t, before+2, h.Len())

	out.Reset()
	require.NoError(t, sh.Exec(ctx, "path bus/slot0"))
	assert.Equal(t, "/dev/root/bus/slot0\n", out.String())

	require.NoError(t, sh.Exec(ctx, "remove bus"))
	assert.Error(t, sh.Exec(ctx, "path bus/slot0"))
}

func TestShellBindUnbind(t *testing.T) {
	sh, _, out := newTestShell(t)
	ctx := context.Background()

	require.NoError(t, sh.Exec(ctx, "add / slot"))
	require.NoError(t, sh.Exec(ctx, "bind slot null"))
	require.NoError(t, sh.Exec(ctx, "path slot/null"))
	assert.Contains(t, out.String(), "/dev/root/slot/null")

	out.Reset()
	require.NoError(t, sh.Exec(ctx, "unbind slot"))
	require.NoError(t, sh.Exec(ctx, "tree"))
	assert.Contains(t, out.String(), "slot [id=")
	assert.Contains(t, out.String(), "driver=-")

	// Published children belong to the binding; rebind refuses while they live.
	assert.Error(t, sh.Exec(ctx, "rebind slot"))

	assert.Error(t, sh.Exec(ctx, "bind slot"))
	assert.Error(t, sh.Exec(ctx, "bind slot nosuchdriver"))
}

func TestShellIO(t *testing.T) {
	sh, _, out := newTestShell(t)
	ctx := context.Background()

	require.NoError(t, sh.Exec(ctx, "open zero"))
	assert.Contains(t, out.String(), "handle 1 -> zero")

	out.Reset()
	require.NoError(t, sh.Exec(ctx, "read 1 4"))
	assert.Equal(t, "4 bytes: \"\\x00\\x00\\x00\\x00\"\n", out.String())

	out.Reset()
	require.NoError(t, sh.Exec(ctx, "refs zero"))
	assert.Equal(t, "zero: 2\n", out.String())

	require.NoError(t, sh.Exec(ctx, "open null"))
	out.Reset()
	require.NoError(t, sh.Exec(ctx, "write 2 hello world"))
	assert.Equal(t, "wrote 11 bytes\n", out.String())

	out.Reset()
	require.NoError(t, sh.Exec(ctx, "handles"))
	assert.Contains(t, out.String(), "1: zero offset=4 open")
	assert.Contains(t, out.String(), "2: null offset=11 open")

	require.NoError(t, sh.Exec(ctx, "close 1"))
	assert.Error(t, sh.Exec(ctx, "read 1 4"))

	sh.Close(ctx)
	assert.Empty(t, sh.handles)
}

func TestShellErrors(t *testing.T) {
	sh, _, _ := newTestShell(t)
	ctx := context.Background()

	assert.NoError(t, sh.Exec(ctx, ""))
	assert.Error(t, sh.Exec(ctx, "frobnicate"))
	assert.Error(t, sh.Exec(ctx, "remove"))
	assert.Error(t, sh.Exec(ctx, "open missing"))
	assert.Error(t, sh.Exec(ctx, "read x 1"))
	assert.Error(t, sh.Exec(ctx, "add /"))
	assert.ErrorIs(t, sh.Exec(ctx, "quit"), errQuit)
}

func TestShellAddWithoutGrants(t *testing.T) {
	reg := devhost.NewRegistry()
	require.NoError(t, drivers.Register(reg))
	h := devhost.NewHost(devhost.HostConfig{Registry: reg})
	_, err := drivers.Bootstrap(context.Background(), h)
	require.NoError(t, err)

	sh := New(Config{Host: h, Out: &bytes.Buffer{}})
	assert.Error(t, sh.Exec(context.Background(), "add / dev pci/0"))
}
