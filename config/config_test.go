package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
printer:
  host: 10.0.0.7
  password: "12345678"
server:
  addr: ":8080"
telemetry:
  enabled: true
  url: http://influx:8086
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.7", cfg.Printer.Host)
	assert.Equal(t, "12345678", cfg.Printer.Password)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.True(t, cfg.Telemetry.Enabled)

	// Defaults fill the rest.
	assert.Equal(t, 8883, cfg.Printer.Port)
	assert.Equal(t, "bblp", cfg.Printer.Username)
	assert.Equal(t, 30, cfg.Printer.ConnectTimeoutSeconds)
	assert.Equal(t, 60, cfg.Printer.ReplyTimeoutSeconds)
	assert.Equal(t, ":9932", cfg.Metrics.Addr)
}

func TestLoadJSON(t *testing.T) {
	path := writeConfig(t, "config.json", `{"printer":{"host":"h","password":"p"}}`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "h", cfg.Printer.Host)
	assert.Equal(t, ":9931", cfg.Server.Addr)
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
printer:
  host: from-file
  password: p
`)
	t.Setenv("TL_PRINTER__HOST", "from-env")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Printer.Host)
}

func TestLoadUnsupportedFormat(t *testing.T) {
	path := writeConfig(t, "config.toml", "")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
