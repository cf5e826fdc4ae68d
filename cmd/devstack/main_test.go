package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_InvalidLogLevel(t *testing.T) {
	var stdout, stderr bytes.Buffer

	exitCode := run([]string{"devstack", "--no-browser", "--log-level", "invalid-level"}, &stdout, &stderr)
	require.Equal(t, 1, exitCode)
	assert.Contains(t, stderr.String(), "unrecognized level")
}

func TestRun_MissingConfigFile(t *testing.T) {
	var stdout, stderr bytes.Buffer

	exitCode := run([]string{"devstack", "--config", filepath.Join(t.TempDir(), "missing.yaml")}, &stdout, &stderr)
	require.Equal(t, 1, exitCode)
	assert.Contains(t, stderr.String(), "missing.yaml")
}

func TestRun_HealthCheckFailureExitsNonZero(t *testing.T) {
	f := filepath.Join(t.TempDir(), "stack.yaml")
	require.NoError(t, os.WriteFile(f, []byte(`
stages:
  - name: backend
    command: ["sleep", "30"]
    health_check:
      url: http://127.0.0.1:1/health
      timeout: 200ms
      poll_interval: 50ms
  - name: frontend
    command: ["sleep", "30"]
`), 0o644))

	var stdout, stderr bytes.Buffer
	exitCode := run([]string{"devstack", "--config", f, "--log-level", "error"}, &stdout, &stderr)
	require.Equal(t, 1, exitCode)
	assert.Contains(t, stderr.String(), `"backend" not healthy`)
}

func TestRun_PrintConfig(t *testing.T) {
	var stdout, stderr bytes.Buffer

	exitCode := run([]string{"devstack", "print-config", "--no-browser", "--root-dir", "/srv/app"}, &stdout, &stderr)
	require.Equal(t, 0, exitCode, stderr.String())
	assert.Contains(t, stdout.String(), "name: backend")
	assert.Contains(t, stdout.String(), "workdir: /srv/app/frontend")
	assert.NotContains(t, stdout.String(), "name: browser")
}

func TestRun_Version(t *testing.T) {
	var stdout, stderr bytes.Buffer

	exitCode := run([]string{"devstack", "version"}, &stdout, &stderr)
	require.Equal(t, 0, exitCode)
	assert.Contains(t, stdout.String(), "github.com/leptonai/devstack")
}
