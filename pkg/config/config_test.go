package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "lenient", cfg.Auth.Mode)
	assert.Equal(t, ClockConfig{Mode: "real", Multiplier: 1}, cfg.Clock)
	assert.True(t, cfg.Billing.Enabled)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Empty(t, cfg.Logging.LokiURL)
}

func TestLoad_NoPathReturnsDefault(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	assert.ErrorIs(t, err, ErrFileNotFound)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: [not a map"), 0o644))

	_, err := Load(path)
	assert.ErrorIs(t, err, ErrInvalidYAML)
}

func TestLoad_ParsesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := []byte(`
listen:
  port: 4242
auth:
  mode: strict
  admin_secret: s3cr3t
webhooks:
  - id: wh_1
    url: https://example.com/hook
    secret: whsec_abc
    events: ["charge.succeeded"]
clock:
  mode: accelerated
  multiplier: 60
billing:
  enabled: false
`)
	require.NoError(t, os.WriteFile(path, body, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 4242, cfg.Listen.Port)
	assert.Equal(t, "strict", cfg.Auth.Mode)
	assert.Equal(t, "s3cr3t", cfg.Auth.AdminSecret)
	require.Len(t, cfg.Webhooks, 1)
	assert.Equal(t, "wh_1", cfg.Webhooks[0].ID)
	assert.Equal(t, []string{"charge.succeeded"}, cfg.Webhooks[0].Events)
	assert.Equal(t, ClockConfig{Mode: "accelerated", Multiplier: 60}, cfg.Clock)
	assert.False(t, cfg.Billing.Enabled)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen:\n  port: 1111\n"), 0o644))

	t.Setenv("PAPER_TIGER_PORT", "2222")
	t.Setenv("PAPER_TIGER_AUTO_START", "false")
	t.Setenv("PAPER_TIGER_LOKI_URL", "http://localhost:3100/loki/api/v1/push")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2222, cfg.Listen.Port)
	assert.False(t, cfg.Billing.Enabled)
	assert.Equal(t, "http://localhost:3100/loki/api/v1/push", cfg.Logging.LokiURL)
}

func TestStartTime(t *testing.T) {
	t.Setenv("PAPER_TIGER_START", "")
	_, ok := StartTime()
	assert.False(t, ok)

	t.Setenv("PAPER_TIGER_START", "1700000000")
	v, ok := StartTime()
	require.True(t, ok)
	assert.EqualValues(t, 1700000000, v)

	t.Setenv("PAPER_TIGER_START", "not-a-number")
	_, ok = StartTime()
	assert.False(t, ok)
}

func TestLoadErrorsWrapUnderlyingCause(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, errors.Is(err, ErrFileNotFound))
}
