package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
state:
  path: /tmp/test-shellgw.db
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Service.LogLevel)
	assert.Equal(t, 5, cfg.Service.Workers)
	assert.Equal(t, 24*time.Hour, cfg.Service.StaleAfter)
	assert.Equal(t, "/tmp/test-shellgw.db", cfg.State.Path)
	assert.True(t, cfg.API.Enabled)
	assert.Equal(t, "127.0.0.1:8420", cfg.API.Listen)
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
service:
  log_level: debug
  workers: 2
state:
  path: /tmp/db.sqlite
api:
  enabled: true
  listen: 0.0.0.0:9000
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Service.LogLevel)
	assert.Equal(t, 2, cfg.Service.Workers)
	assert.Equal(t, "0.0.0.0:9000", cfg.API.Listen)
}

func TestLoadHonorsExplicitAPIDisable(t *testing.T) {
	path := writeConfig(t, `
state:
  path: /tmp/db.sqlite
api:
  enabled: false
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.False(t, cfg.API.Enabled, "api.enabled: false in the config file must stay disabled")
}

func TestLoadFillsListenForPartialAPISection(t *testing.T) {
	path := writeConfig(t, `
state:
  path: /tmp/db.sqlite
api:
  enabled: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.API.Enabled)
	assert.Equal(t, "127.0.0.1:8420", cfg.API.Listen)
}

func TestLoadInterpolatesEnv(t *testing.T) {
	t.Setenv("SHELLGW_TEST_DB", "/tmp/env-db.sqlite")
	path := writeConfig(t, `
state:
  path: ${SHELLGW_TEST_DB}
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/env-db.sqlite", cfg.State.Path)
}

func TestLoadRejectsBadLogLevel(t *testing.T) {
	path := writeConfig(t, `
service:
  log_level: loud
state:
  path: /tmp/db.sqlite
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log_level")
}

func TestLoadRejectsUnresolvedListenVar(t *testing.T) {
	path := writeConfig(t, `
state:
  path: /tmp/db.sqlite
api:
  enabled: true
  listen: ${SHELLGW_UNSET_LISTEN_VAR}
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unresolved environment variable")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
