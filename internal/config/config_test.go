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
	path := filepath.Join(t.TempDir(), "tillsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
registry:
  path: /etc/tillsync/pos.cue
remote:
  url: https://example.supabase.co/rest/v1
  api_key: secret
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "tillsync.db", cfg.Database.Path)
	assert.Equal(t, 30*time.Second, cfg.Remote.Timeout)
	assert.Equal(t, 60*time.Second, cfg.Sync.Interval)
	assert.Equal(t, 500, cfg.Sync.PushBatchSize)
	assert.Equal(t, "last-pull-wins", cfg.Sync.ConflictPolicy)
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, "localhost:9184", cfg.Metrics.Addr)
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
database:
  path: /var/lib/tillsync/till.db
registry:
  path: /etc/tillsync/pos.cue
remote:
  url: https://example.supabase.co/rest/v1
  api_key: secret
  timeout: 10s
sync:
  interval: 5m
  push_batch_size: 100
  conflict_policy: prefer-newer
metrics:
  enabled: true
  addr: 0.0.0.0:9999
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/tillsync/till.db", cfg.Database.Path)
	assert.Equal(t, 10*time.Second, cfg.Remote.Timeout)
	assert.Equal(t, 5*time.Minute, cfg.Sync.Interval)
	assert.Equal(t, 100, cfg.Sync.PushBatchSize)
	assert.Equal(t, "prefer-newer", cfg.Sync.ConflictPolicy)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read")
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeConfig(t, "registry: [unclosed")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse")
}

func TestValidateRequiresRegistryPath(t *testing.T) {
	path := writeConfig(t, `
remote:
  url: https://example.supabase.co/rest/v1
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "registry.path is required")
}

func TestValidateRequiresRemoteURL(t *testing.T) {
	path := writeConfig(t, `
registry:
  path: /etc/tillsync/pos.cue
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "remote.url is required")
}

func TestValidateRejectsUnknownPolicy(t *testing.T) {
	path := writeConfig(t, `
registry:
  path: /etc/tillsync/pos.cue
remote:
  url: https://example.supabase.co/rest/v1
sync:
  conflict_policy: coin-flip
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown conflict policy")
}

func TestValidateRejectsSubSecondInterval(t *testing.T) {
	path := writeConfig(t, `
registry:
  path: /etc/tillsync/pos.cue
remote:
  url: https://example.supabase.co/rest/v1
sync:
  interval: 100ms
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least 1s")
}
