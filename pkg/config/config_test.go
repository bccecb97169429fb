package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/adrg/xdg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/miketth/micboard/pkg/micboard"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, micboard.DefaultDebounce, cfg.Debounce)
	assert.Equal(t, micboard.DefaultExcludePattern, cfg.ExcludePattern)
	assert.Equal(t, "sqlite", cfg.Store.Backend)
	assert.Equal(t, "dbus", cfg.Notify.Backend)
	assert.Empty(t, cfg.Metrics.Listen)
	assert.True(t, cfg.Control.Enabled)
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
debounce: 750ms
exclude_pattern: "(?i)(iphone|ipad)"
store:
  backend: json
  path: /tmp/micboard.json
notify:
  backend: log
  sound: device-added
metrics:
  listen: 127.0.0.1:9090
  enabled: [microphone_switches_total, connected_devices]
control:
  enabled: false
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 750*time.Millisecond, cfg.Debounce)
	assert.Equal(t, "(?i)(iphone|ipad)", cfg.ExcludePattern)
	assert.Equal(t, StoreConfig{Backend: "json", Path: "/tmp/micboard.json"}, cfg.Store)
	assert.Equal(t, "log", cfg.Notify.Backend)
	assert.Equal(t, "device-added", cfg.Notify.Sound)
	assert.Equal(t, 16, cfg.Notify.QueueSize, "unset keys keep their default")
	assert.Equal(t, "127.0.0.1:9090", cfg.Metrics.Listen)
	assert.Len(t, cfg.Metrics.Enabled, 2)
	assert.False(t, cfg.Control.Enabled)
	assert.Equal(t, "pactl", cfg.Pactl.Path)
}

func TestLoad_EmptyExcludePatternDisablesExclusion(t *testing.T) {
	cfg, err := Load(writeConfig(t, `exclude_pattern: ""`))
	require.NoError(t, err)
	assert.Empty(t, cfg.ExcludePattern)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	assert.Error(t, err)
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "invalid: [yaml: content"))
	assert.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, `
store:
  backend: json
`)
	t.Setenv("MICBOARD_STORE_BACKEND", "memory")
	t.Setenv("MICBOARD_DEBOUNCE", "2s")
	t.Setenv("MICBOARD_METRICS_LISTEN", ":9100")
	t.Setenv("MICBOARD_PACTL_PATH", "/usr/local/bin/pactl")
	t.Setenv("MICBOARD_EXCLUDE_PATTERN", "")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, 2*time.Second, cfg.Debounce)
	assert.Equal(t, ":9100", cfg.Metrics.Listen)
	assert.Equal(t, "/usr/local/bin/pactl", cfg.Pactl.Path)
	assert.Empty(t, cfg.ExcludePattern)
}

func TestLoad_BadEnvDuration(t *testing.T) {
	t.Setenv("MICBOARD_DEBOUNCE", "soon")

	_, err := Load("")
	assert.ErrorContains(t, err, "MICBOARD_DEBOUNCE")
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.Debounce = 0
	cfg.ExcludePattern = "(["
	cfg.Store.Backend = "postgres"
	cfg.Notify.Backend = "carrier-pigeon"
	cfg.Metrics.Enabled = []string{"bogus_total"}
	cfg.Pactl.Path = ""

	err := cfg.Validate()
	require.Error(t, err)

	msg := err.Error()
	for _, want := range []string{
		"debounce",
		"exclude_pattern",
		"store.backend",
		"notify.backend",
		"bogus_total",
		"pactl.path",
	} {
		assert.True(t, strings.Contains(msg, want), "missing %q in %q", want, msg)
	}
}

func TestStorePath(t *testing.T) {
	cfg := Default()
	cfg.Store.Path = "/var/lib/micboard.db"

	path, err := cfg.StorePath()
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/micboard.db", path)

	dataHome := t.TempDir()
	t.Cleanup(xdg.Reload)
	t.Setenv("XDG_DATA_HOME", dataHome)
	xdg.Reload()

	cfg.Store.Path = ""
	cfg.Store.Backend = "json"
	path, err = cfg.StorePath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dataHome, "micboard", "state.json"), path)
	assert.DirExists(t, filepath.Join(dataHome, "micboard"))
}
