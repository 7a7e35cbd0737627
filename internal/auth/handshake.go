package auth

import (
	"context"

	"github.com/mxf-project/mxf/internal/mxferrors"
)

// HandshakeRequest carries both auth layers a connecting transport must
// present before a session is established.
type HandshakeRequest struct {
	DomainKey string
	KeyID     string
	SecretKey string
}

// Identity is the principal resolved from a successful handshake.
type Identity struct {
	AgentID string
}

// Service composes the domain-key and credential layers into the single
// handshake operation transports call on connect (spec §4.2).
type Service struct {
	domain      *DomainAuthenticator
	credentials *CredentialStore
}

// NewService builds a handshake service. domainKey may be empty to
// disable the first layer (development mode).
func NewService(domainKey string) *Service {
	return &Service{
		domain:      NewDomainAuthenticator(domainKey),
		credentials: NewCredentialStore(),
	}
}

// Credentials exposes the underlying credential store for issuance and
// revocation by session management code.
func (s *Service) Credentials() *CredentialStore { return s.credentials }

// Domain exposes the underlying domain authenticator for key rotation.
func (s *Service) Domain() *DomainAuthenticator { return s.domain }

// Authenticate runs both handshake layers in order: a domain-key mismatch
// fails before the per-agent credential is even considered, so that an
// invalid domain key never leaks information about which keyIds exist.
func (s *Service) Authenticate(ctx context.Context, req HandshakeRequest) (*Identity, error) {
	if err := s.domain.Validate(req.DomainKey); err != nil {
		return nil, err
	}
	if req.KeyID == "" || req.SecretKey == "" {
		return nil, mxferrors.New(mxferrors.AuthMissing, "keyId and secretKey are required")
	}
	agentID, err := s.credentials.Authenticate(req.KeyID, req.SecretKey)
	if err != nil {
		return nil, err
	}
	return &Identity{AgentID: agentID}, nil
}
