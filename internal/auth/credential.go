package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"strings"
	"sync"
	"time"

	"github.com/mxf-project/mxf/internal/mxferrors"
)

// Credential binds an agent to a keyId/secretKey pair (spec §4.2 layer 2).
// SecretHash stores sha256(secretKey); the plaintext secret is never
// retained once issued.
type Credential struct {
	KeyID      string
	AgentID    string
	SecretHash [32]byte
	IssuedAt   time.Time
	Revoked    bool
}

// CredentialStore resolves keyId/secretKey pairs to an AgentID. It is safe
// for concurrent use; mirrors the teacher's api-key map in
// internal/auth/auth.go generalized to per-agent session credentials
// instead of per-user API keys, plus explicit revocation.
type CredentialStore struct {
	mu   sync.RWMutex
	byID map[string]*Credential
}

// NewCredentialStore returns an empty store.
func NewCredentialStore() *CredentialStore {
	return &CredentialStore{byID: make(map[string]*Credential)}
}

// Issue registers the caller-supplied keyID/secretKey pair as a credential
// for agentID, replacing any credential already stored under keyID, and
// returns it. Only the secret's hash is retained.
func (s *CredentialStore) Issue(agentID, keyID, secretKey string) *Credential {
	cred := &Credential{
		KeyID:      keyID,
		AgentID:    agentID,
		SecretHash: sha256.Sum256([]byte(secretKey)),
		IssuedAt:   time.Now(),
	}
	s.mu.Lock()
	s.byID[keyID] = cred
	s.mu.Unlock()
	return cred
}

// Revoke marks a credential permanently invalid. Revocation is immediate
// and does not require the credential to be currently in use.
func (s *CredentialStore) Revoke(keyID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cred, ok := s.byID[keyID]; ok {
		cred.Revoked = true
	}
}

// Authenticate validates a keyId/secretKey pair and returns the bound
// AgentID. Secret comparison is constant-time over the stored hash.
func (s *CredentialStore) Authenticate(keyID, secretKey string) (string, error) {
	s.mu.RLock()
	cred, ok := s.byID[strings.TrimSpace(keyID)]
	s.mu.RUnlock()

	if !ok {
		return "", mxferrors.New(mxferrors.AuthInvalidKey, "unknown keyId")
	}
	if cred.Revoked {
		return "", mxferrors.New(mxferrors.AuthExpired, "credential revoked")
	}
	sum := sha256.Sum256([]byte(secretKey))
	if subtle.ConstantTimeCompare(sum[:], cred.SecretHash[:]) != 1 {
		return "", mxferrors.New(mxferrors.AuthInvalidKey, "invalid secretKey")
	}
	return cred.AgentID, nil
}
