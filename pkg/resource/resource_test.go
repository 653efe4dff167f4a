package resource

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRootRejectsEmptySecret(t *testing.T) {
	_, err := NewRoot(nil)
	assert.ErrorIs(t, err, ErrNoSecret)
}

func TestGrantIsDeterministic(t *testing.T) {
	root, err := NewRoot([]byte("secret"))
	require.NoError(t, err)

	a, err := root.Grant("pci/00:1f.3")
	require.NoError(t, err)
	b, err := root.Grant("pci/00:1f.3")
	require.NoError(t, err)
	assert.Equal(t, a.Token, b.Token)

	c, err := root.Grant("pci/00:1f.4")
	require.NoError(t, err)
	assert.NotEqual(t, a.Token, c.Token)
}

func TestChildMatchesGrant(t *testing.T) {
	root, err := NewRoot([]byte("secret"))
	require.NoError(t, err)

	pci, err := root.Grant("pci")
	require.NoError(t, err)
	child, err := pci.Child("00:1f.3")
	require.NoError(t, err)

	direct, err := root.Grant("pci/00:1f.3")
	require.NoError(t, err)
	assert.Equal(t, direct, child)
	assert.True(t, child.Verify(root))
	assert.True(t, pci.Covers("pci/00:1f.3"))
	assert.False(t, child.Covers("pci"))
	assert.False(t, pci.Covers("pcie"))
}

func TestVerifyRejectsForeignRoot(t *testing.T) {
	root, _ := NewRoot([]byte("secret"))
	other, _ := NewRoot([]byte("other"))

	h, err := root.Grant("mmio")
	require.NoError(t, err)
	assert.False(t, h.Verify(other))

	h.Token[0] ^= 0xFF
	assert.False(t, h.Verify(root))
}

func TestInvalidScopes(t *testing.T) {
	root, _ := NewRoot([]byte("secret"))
	for _, scope := range []string{"", "/", "a//b", "a/"} {
		_, err := root.Grant(scope)
		assert.ErrorIs(t, err, ErrInvalidScope, scope)
	}

	h, _ := root.Grant("a")
	_, err := h.Child("b/c")
	assert.ErrorIs(t, err, ErrInvalidScope)
}

func TestEncodeDecode(t *testing.T) {
	root, _ := NewRoot([]byte("secret"))
	h, err := root.Grant("irq/7")
	require.NoError(t, err)

	data, err := h.Encode()
	require.NoError(t, err)
	got, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, h, got)
	assert.True(t, got.Verify(root))

	var nilHandle *Handle
	data, err = nilHandle.Encode()
	assert.NoError(t, err)
	assert.Nil(t, data)
}

func TestBootstrapRunsOnce(t *testing.T) {
	calls := 0
	secret := func() ([]byte, error) {
		calls++
		return []byte("boot"), nil
	}
	first, err := Bootstrap(secret)
	require.NoError(t, err)
	second, err := Bootstrap(func() ([]byte, error) {
		calls++
		return nil, errors.New("must not be called")
	})
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, calls)
}
