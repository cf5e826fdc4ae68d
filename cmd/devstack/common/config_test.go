package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leptonai/devstack/pkg/config"
)

func TestLoadConfigDefaultStack(t *testing.T) {
	cfg, err := LoadConfig(StackOptions{
		RootDir:           "/srv/app",
		BrowserExecutable: "/usr/bin/chromium",
		BrowserProfileDir: filepath.Join(t.TempDir(), "profile"),
		HealthTimeout:     7 * time.Second,
	})
	require.NoError(t, err)
	require.Len(t, cfg.Stages, 3)

	backend, ok := cfg.FindStage(config.StageBackend)
	require.True(t, ok)
	assert.Equal(t, 7*time.Second, backend.HealthCheck.Timeout.Duration)
	assert.Equal(t, "/usr/bin/chromium", cfg.Stages[0].Command[0])
}

func TestLoadConfigNoBrowser(t *testing.T) {
	cfg, err := LoadConfig(StackOptions{NoBrowser: true})
	require.NoError(t, err)

	_, ok := cfg.FindStage(config.StageBrowser)
	assert.False(t, ok)
}

func TestLoadConfigFromFile(t *testing.T) {
	f := filepath.Join(t.TempDir(), "stack.yaml")
	require.NoError(t, os.WriteFile(f, []byte("stages:\n  - name: api\n    command: [\"sleep\", \"1\"]\n"), 0o644))

	cfg, err := LoadConfig(StackOptions{ConfigFile: f, NoBrowser: true})
	require.NoError(t, err)
	require.Len(t, cfg.Stages, 1)
	assert.Equal(t, "api", cfg.Stages[0].Name)
}

func TestLoadConfigFileInvalid(t *testing.T) {
	f := filepath.Join(t.TempDir(), "stack.yaml")
	require.NoError(t, os.WriteFile(f, []byte("stages:\n  - name: api\n"), 0o644))

	_, err := LoadConfig(StackOptions{ConfigFile: f})
	require.ErrorIs(t, err, config.ErrNoCommandOrScript)
}
