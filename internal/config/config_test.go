package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "mxf.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "auth:\n  jwt_secret: s3cret\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, 10, cfg.ORPAR.MaxIterations)
	assert.Equal(t, "node:20-slim", cfg.Sandbox.Image)
	assert.Equal(t, "UTC", cfg.Prompt.TimeZone)
}

func TestLoadRejectsMissingJWTSecret(t *testing.T) {
	path := writeConfig(t, "server:\n  host: 127.0.0.1\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jwt_secret")
}

func TestLoadRejectsSandboxTimeoutInversion(t *testing.T) {
	path := writeConfig(t, `
auth:
  jwt_secret: s3cret
sandbox:
  default_timeout: 2m
  max_timeout: 30s
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sandbox.default_timeout")
}

func TestLoadResolvesIncludes(t *testing.T) {
	dir := t.TempDir()
	basePath := filepath.Join(dir, "base.yaml")
	require.NoError(t, os.WriteFile(basePath, []byte("server:\n  host: 10.0.0.1\n"), 0o600))

	mainPath := filepath.Join(dir, "mxf.yaml")
	require.NoError(t, os.WriteFile(mainPath, []byte("$include: base.yaml\nauth:\n  jwt_secret: s3cret\n"), 0o600))

	cfg, err := Load(mainPath)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1", cfg.Server.Host)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
}

func TestLoadDetectsIncludeCycle(t *testing.T) {
	dir := t.TempDir()
	aPath := filepath.Join(dir, "a.yaml")
	bPath := filepath.Join(dir, "b.yaml")
	require.NoError(t, os.WriteFile(aPath, []byte("$include: b.yaml\n"), 0o600))
	require.NoError(t, os.WriteFile(bPath, []byte("$include: a.yaml\n"), 0o600))

	_, err := LoadRaw(aPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestLoadExpandsEnvironmentVariables(t *testing.T) {
	t.Setenv("MXF_TEST_SECRET", "from-env")
	path := writeConfig(t, "auth:\n  jwt_secret: ${MXF_TEST_SECRET}\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
}

func TestApplyEnvOverridesSetsProviderAPIKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")
	path := writeConfig(t, "auth:\n  jwt_secret: s3cret\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Contains(t, cfg.ORPAR.Providers, "anthropic")
	assert.Equal(t, "sk-test", cfg.ORPAR.Providers["anthropic"].APIKey)
}
