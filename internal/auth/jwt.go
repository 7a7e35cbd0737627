package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mxf-project/mxf/internal/mxferrors"
)

// JWTService issues and validates session tokens handed to a connection
// after it completes the handshake (spec §4.2), so a transport can resume
// a session without repeating the keyId/secretKey exchange on every
// reconnect. Grounded on the teacher's JWTService (internal/auth/jwt.go)
// generalized from a user-subject claim to an agent-subject claim and
// given an explicit issuer, since MXF has no user/email concept.
type JWTService struct {
	secret []byte
	issuer string
	expiry time.Duration
}

// NewJWTService builds a token service signing with secret (HS256),
// stamping iss as issuer, and setting tokens to expire after expiry (0
// disables expiry; a negative expiry issues tokens that are already expired).
func NewJWTService(secret, issuer string, expiry time.Duration) *JWTService {
	return &JWTService{secret: []byte(secret), issuer: issuer, expiry: expiry}
}

// Claims is the JWT payload MXF issues: just enough to re-identify the
// agent and the channel its session was bound to.
type Claims struct {
	ChannelID string `json:"channel_id,omitempty"`
	jwt.RegisteredClaims
}

// Generate issues a signed session token for agentID scoped to channelID.
func (s *JWTService) Generate(agentID, channelID string) (string, error) {
	if s == nil || len(s.secret) == 0 {
		return "", mxferrors.New(mxferrors.OperationFailed, "jwt signing is not configured")
	}
	if strings.TrimSpace(agentID) == "" {
		return "", mxferrors.New(mxferrors.MissingRequired, "agentID is required")
	}

	now := time.Now()
	claims := Claims{
		ChannelID: channelID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  agentID,
			Issuer:   s.issuer,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if s.expiry != 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(s.expiry))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Validate parses and verifies a session token, returning the identity it
// carries.
func (s *JWTService) Validate(token string) (*Identity, error) {
	if s == nil || len(s.secret) == 0 {
		return nil, mxferrors.New(mxferrors.OperationFailed, "jwt signing is not configured")
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, mxferrors.Wrap(mxferrors.AuthInvalidKey, err, "invalid session token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || strings.TrimSpace(claims.Subject) == "" {
		return nil, mxferrors.New(mxferrors.AuthInvalidKey, "invalid session token")
	}
	return &Identity{AgentID: claims.Subject}, nil
}
