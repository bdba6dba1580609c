package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()
	assert.Equal(t, "pagetree.db", cfg.DatabasePath)
	assert.Equal(t, 3, cfg.FetchRetries)
	assert.Equal(t, 30*time.Second, cfg.FetchTimeout)
	require.NoError(t, cfg.Validate())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_PATH", "/tmp/x.db")
	t.Setenv("FETCH_RETRIES", "5")
	t.Setenv("DEPLOYMENT_MODE", "true")
	t.Setenv("FETCH_TIMEOUT", "not-a-duration")

	cfg := Load()
	assert.Equal(t, "/tmp/x.db", cfg.DatabasePath)
	assert.Equal(t, 5, cfg.FetchRetries)
	assert.True(t, cfg.DeploymentMode)
	assert.Equal(t, 30*time.Second, cfg.FetchTimeout, "unparseable values keep the fallback")
}

func TestLoadFile_YAMLThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pagetree.yaml")
	data := []byte("database_path: site.db\nfetch_timeout: 5s\npublic_visible: true\nbase_url: https://example.com/\n")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	t.Setenv("FILES_DIR", "/srv/files")

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "site.db", cfg.DatabasePath)
	assert.Equal(t, 5*time.Second, cfg.FetchTimeout)
	assert.True(t, cfg.PublicVisible)
	assert.Equal(t, "/srv/files", cfg.FilesDir)
	assert.Equal(t, "info", cfg.LogLevel)
	require.NoError(t, cfg.Validate())
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "verbose"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LOG_LEVEL")

	cfg = Default()
	cfg.DatabasePath = ""
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_PATH")

	cfg = Default()
	cfg.BaseURL = "not a url"
	require.Error(t, cfg.Validate())
}
