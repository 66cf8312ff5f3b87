package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "acs.yml")
	content := `
system:
  debug: true
database:
  dsn: /tmp/test.db
tr069:
  listen: ":9106"
  username: cpe
  password: secret
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.System.Debug)
	assert.Equal(t, "/tmp/test.db", cfg.Database.DSN)
	assert.Equal(t, ":9106", cfg.Tr069.Listen)
	assert.Equal(t, "cpe", cfg.Tr069.Username)
	// Unset realm falls back.
	assert.Equal(t, "acs", cfg.Tr069.Realm)
}

func TestLoadRejectsIncompleteConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "acs.yml")
	require.NoError(t, os.WriteFile(path, []byte("tr069:\n  listen: \":9106\"\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/does/not/exist.yml")
	require.Error(t, err)
}
