// Package resource derives scoped hardware-access grants from the host's
// bootstrap root resource.
//
// The root is obtained once at process start. Every grant is an HKDF-SHA256
// derivation of its parent, so a handle can be verified against the root
// without a lookup table, and a handle cannot be widened into its parent.
package resource

import (
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"golang.org/x/crypto/hkdf"

	"github.com/devhost-project/devhost-go/pkg/wire"
)

// TokenSize is the size of a derived grant token in bytes.
const TokenSize = 32

const infoPrefix = "devhost-resource:"

var (
	// ErrNoSecret indicates the bootstrap secret is empty.
	ErrNoSecret = errors.New("bootstrap secret is empty")

	// ErrInvalidScope indicates a malformed scope string.
	ErrInvalidScope = errors.New("invalid resource scope")
)

// Root is the privileged bootstrap resource.
type Root struct {
	secret []byte
}

// NewRoot creates a root resource from a secret. Most callers want
// Bootstrap instead.
func NewRoot(secret []byte) (*Root, error) {
	if len(secret) == 0 {
		return nil, ErrNoSecret
	}
	return &Root{secret: append([]byte(nil), secret...)}, nil
}

var (
	bootstrapOnce sync.Once
	bootstrapRoot *Root
	bootstrapErr  error
)

// Bootstrap returns the process-wide root resource. The secret function is
// consulted only on the first call; later calls return the same root (or
// the same error).
func Bootstrap(secret func() ([]byte, error)) (*Root, error) {
	bootstrapOnce.Do(func() {
		s, err := secret()
		if err != nil {
			bootstrapErr = fmt.Errorf("failed to obtain bootstrap secret: %w", err)
			return
		}
		bootstrapRoot, bootstrapErr = NewRoot(s)
	})
	return bootstrapRoot, bootstrapErr
}

// Grant derives a handle for scope. Scopes are '/'-separated paths such as
// "pci/00:1f.3"; each segment narrows the grant.
func (r *Root) Grant(scope string) (*Handle, error) {
	segments, err := splitScope(scope)
	if err != nil {
		return nil, err
	}
	h := &Handle{Scope: segments[0], Token: derive(r.secret, segments[0])}
	for _, seg := range segments[1:] {
		h = h.child(seg)
	}
	return h, nil
}

// Handle is a scoped grant.
type Handle struct {
	Scope string          `cbor:"1,keyasint"`
	Token [TokenSize]byte `cbor:"2,keyasint"`
}

// Child narrows the handle to a sub-scope.
func (h *Handle) Child(segment string) (*Handle, error) {
	if segment == "" || strings.Contains(segment, "/") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidScope, segment)
	}
	return h.child(segment), nil
}

func (h *Handle) child(segment string) *Handle {
	return &Handle{
		Scope: h.Scope + "/" + segment,
		Token: derive(h.Token[:], segment),
	}
}

// Verify reports whether the handle was derived from root.
func (h *Handle) Verify(root *Root) bool {
	if h == nil || root == nil {
		return false
	}
	want, err := root.Grant(h.Scope)
	if err != nil {
		return false
	}
	return hmac.Equal(want.Token[:], h.Token[:])
}

// Covers reports whether scope lies within the handle's scope.
func (h *Handle) Covers(scope string) bool {
	return scope == h.Scope || strings.HasPrefix(scope, h.Scope+"/")
}

// Encode returns the CBOR form carried in coordinator messages.
func (h *Handle) Encode() ([]byte, error) {
	if h == nil {
		return nil, nil
	}
	return wire.Marshal(h)
}

// Decode parses a handle produced by Encode.
func Decode(data []byte) (*Handle, error) {
	var h Handle
	if err := wire.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("failed to decode resource handle: %w", err)
	}
	if _, err := splitScope(h.Scope); err != nil {
		return nil, err
	}
	return &h, nil
}

func splitScope(scope string) ([]string, error) {
	if scope == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidScope)
	}
	segments := strings.Split(scope, "/")
	for _, seg := range segments {
		if seg == "" {
			return nil, fmt.Errorf("%w: %q", ErrInvalidScope, scope)
		}
	}
	return segments, nil
}

func derive(secret []byte, segment string) [TokenSize]byte {
	var out [TokenSize]byte
	r := hkdf.New(sha256.New, secret, nil, []byte(infoPrefix+segment))
	if _, err := io.ReadFull(r, out[:]); err != nil {
		// HKDF-SHA256 can produce up to 255*32 bytes.
		panic(fmt.Sprintf("resource: hkdf: %v", err))
	}
	return out
}
