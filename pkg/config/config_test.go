package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("MTUI_CONF", filepath.Join(t.TempDir(), "missing.yaml"))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 300, cfg.ConnectionTimeout)
	assert.Equal(t, "/tmp", cfg.TargetTempDir)
	assert.Equal(t, "default", cfg.Location)
	assert.Equal(t, 300*time.Second, cfg.Timeout())
	assert.Equal(t, 10*time.Second, cfg.ReconnectDelay)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mtui.yaml")
	require.NoError(t, os.WriteFile(path, []byte("location: prague\nconnection_timeout: 60\nconcurrency: 0\n"), 0o600))
	t.Setenv("MTUI_TARGET_TEMPDIR", "/var/tmp")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "prague", cfg.Location)
	assert.Equal(t, 60, cfg.ConnectionTimeout)
	assert.Equal(t, "/var/tmp", cfg.TargetTempDir)
	assert.Equal(t, 1, cfg.Concurrency)
}

func TestLoadExplicitMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestMergeFlags(t *testing.T) {
	cfg := &Config{Location: "default", ConnectionTimeout: 300, TemplateDir: "/a"}
	cfg.MergeFlags(Overrides{Location: "nue", Timeout: 30})
	assert.Equal(t, "nue", cfg.Location)
	assert.Equal(t, 30, cfg.ConnectionTimeout)
	assert.Equal(t, "/a", cfg.TemplateDir)
	assert.False(t, cfg.Auto)
}
