package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTServiceGenerateAndValidate(t *testing.T) {
	svc := NewJWTService("s3cret", "mxf", time.Hour)

	token, err := svc.Generate("agent-1", "ch-1")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	ident, err := svc.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "agent-1", ident.AgentID)
}

func TestJWTServiceRejectsTamperedToken(t *testing.T) {
	svc := NewJWTService("s3cret", "mxf", time.Hour)
	token, err := svc.Generate("agent-1", "ch-1")
	require.NoError(t, err)

	_, err = svc.Validate(token + "x")
	assert.Error(t, err)
}

func TestJWTServiceRejectsWrongSecret(t *testing.T) {
	issuer := NewJWTService("s3cret", "mxf", time.Hour)
	token, err := issuer.Generate("agent-1", "ch-1")
	require.NoError(t, err)

	other := NewJWTService("different", "mxf", time.Hour)
	_, err = other.Validate(token)
	assert.Error(t, err)
}

func TestJWTServiceRejectsExpiredToken(t *testing.T) {
	svc := NewJWTService("s3cret", "mxf", -time.Minute)
	token, err := svc.Generate("agent-1", "ch-1")
	require.NoError(t, err)

	_, err = svc.Validate(token)
	assert.Error(t, err)
}

func TestJWTServiceRequiresAgentID(t *testing.T) {
	svc := NewJWTService("s3cret", "mxf", time.Hour)
	_, err := svc.Generate("", "ch-1")
	assert.Error(t, err)
}
