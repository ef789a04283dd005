package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const baseConfig = `
server:
  name: edge
tenants:
  - id: acme
    sources:
      - id: tcp
        decoder: {type: json}
        receivers:
          - type: socket
            params: {address: "127.0.0.1:0"}
    inbound:
      - type: event-storage
`

// writeFile writes below the working directory; config paths must not escape it.
func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	dir, err := os.MkdirTemp(".", "pipeline-test-")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestParseFlags(t *testing.T) {
	cfg, err := parseFlags([]string{
		"-c", "base.yaml",
		"-layer", "a.yaml", "-layer", "b.yaml",
		"-debug",
		"-shutdown-timeout", "5s",
	})
	require.NoError(t, err)

	assert.Equal(t, "base.yaml", cfg.ConfigPath)
	assert.Equal(t, []string{"a.yaml", "b.yaml"}, cfg.Layers)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 5*time.Second, cfg.ShutdownTimeout)

	_, err = parseFlags([]string{"-no-such-flag"})
	assert.Error(t, err)
}

func TestValidateFlags(t *testing.T) {
	path := writeFile(t, "pipeline.yaml", baseConfig)

	tests := []struct {
		name    string
		cfg     CLIConfig
		wantErr string
	}{
		{"valid", CLIConfig{ConfigPath: path, LogLevel: "info", LogFormat: "json"}, ""},
		{"version skips checks", CLIConfig{ShowVersion: true}, ""},
		{"missing config", CLIConfig{ConfigPath: "nope.yaml", LogLevel: "info", LogFormat: "json"}, "config file not found"},
		{"missing layer", CLIConfig{ConfigPath: path, Layers: []string{"nope.yaml"}, LogLevel: "info", LogFormat: "json"}, "config layer not found"},
		{"bad level", CLIConfig{ConfigPath: path, LogLevel: "loud", LogFormat: "json"}, "invalid log level"},
		{"bad format", CLIConfig{ConfigPath: path, LogLevel: "info", LogFormat: "xml"}, "invalid log format"},
		{"negative timeout", CLIConfig{ConfigPath: path, LogLevel: "info", LogFormat: "json", ShutdownTimeout: -time.Second}, "invalid shutdown timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateFlags(&tt.cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestLoadConfig_Layers(t *testing.T) {
	base := writeFile(t, "pipeline.yaml", baseConfig)
	override := writeFile(t, "site.yaml", "server:\n  shutdown_timeout: 3s\nmetrics:\n  port: 9191\n")

	cfg, err := loadConfig(base, []string{override})
	require.NoError(t, err)
	assert.Equal(t, "edge", cfg.Server.Name)
	assert.Equal(t, 3*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, 9191, cfg.Metrics.Port)
	require.Len(t, cfg.Tenants, 1)
}

func TestRun_Validate(t *testing.T) {
	path := writeFile(t, "pipeline.yaml", baseConfig)

	var out bytes.Buffer
	require.NoError(t, run([]string{"-config", path, "-validate", "-log-format", "text"}, &out))
	assert.Contains(t, out.String(), "Configuration is valid")

	bad := writeFile(t, "bad.yaml", baseConfig+"\n    outbound:\n      - type: carrier-pigeon\n")
	err := run([]string{"-config", bad, "-validate"}, &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "carrier-pigeon")
}

func TestRun_InfoFlags(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run([]string{"-version"}, &out))
	assert.Contains(t, out.String(), "pipeline version")

	out.Reset()
	require.NoError(t, run([]string{"-types"}, &out))
	assert.Contains(t, out.String(), "receivers:")
	assert.Contains(t, out.String(), "jetstream-queue")
}
