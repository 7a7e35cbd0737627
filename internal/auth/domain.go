// Package auth implements the two-layer connection handshake (spec §4.2):
// a shared domain key authenticates the transport connection itself, and a
// per-agent keyId/secretKey credential then authenticates the principal
// that connection speaks for.
package auth

import (
	"crypto/subtle"
	"strings"
	"sync"

	"github.com/mxf-project/mxf/internal/mxferrors"
)

// DomainAuthenticator validates the first handshake layer: a single shared
// secret every connecting transport must present before any session or
// agent identity is considered. Comparison is constant-time to avoid
// leaking key material through timing (mirrors the teacher's API-key
// comparison in internal/auth/auth.go).
type DomainAuthenticator struct {
	mu  sync.RWMutex
	key []byte
}

// NewDomainAuthenticator builds an authenticator for the given domain key.
// An empty key disables the domain-key layer entirely (single-tenant /
// development mode).
func NewDomainAuthenticator(domainKey string) *DomainAuthenticator {
	return &DomainAuthenticator{key: []byte(strings.TrimSpace(domainKey))}
}

// Enabled reports whether the domain-key layer is active.
func (d *DomainAuthenticator) Enabled() bool {
	if d == nil {
		return false
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.key) > 0
}

// Rotate replaces the active domain key. Connections authenticated under
// the previous key remain valid; only new handshakes observe the change.
func (d *DomainAuthenticator) Rotate(newKey string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.key = []byte(strings.TrimSpace(newKey))
}

// Validate checks presented against the configured domain key in constant
// time. When the layer is disabled, any value (including empty) passes.
func (d *DomainAuthenticator) Validate(presented string) error {
	if d == nil || !d.Enabled() {
		return nil
	}
	d.mu.RLock()
	key := d.key
	d.mu.RUnlock()

	candidate := []byte(strings.TrimSpace(presented))
	if len(candidate) != len(key) || subtle.ConstantTimeCompare(candidate, key) != 1 {
		return mxferrors.New(mxferrors.AuthInvalidKey, "invalid domain key")
	}
	return nil
}
