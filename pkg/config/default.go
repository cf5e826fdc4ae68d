package config

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	"github.com/mitchellh/go-homedir"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

const (
	DefaultAPIVersion = "v1"

	DefaultBackendPort         = 8000
	DefaultFrontendPort        = 3000
	DefaultRemoteDebuggingPort = 9222

	StageBrowser  = "browser"
	StageBackend  = "backend"
	StageFrontend = "frontend"
)

var (
	DefaultBackendStartupDelay  = metav1.Duration{Duration: 3 * time.Second}
	DefaultFrontendStartupDelay = metav1.Duration{Duration: 2 * time.Second}

	DefaultHealthTimeout      = metav1.Duration{Duration: 30 * time.Second}
	DefaultHealthPollInterval = metav1.Duration{Duration: 500 * time.Millisecond}

	DefaultShutdownTimeout = metav1.Duration{Duration: 10 * time.Second}
)

// The backend lives in a local virtualenv next to the api server.
const defaultBackendScript = `source venv/bin/activate
exec python api_server.py
`

// DefaultConfig returns the browser, backend and frontend stack
// with all ports hardcoded to their defaults.
func DefaultConfig(opts ...OpOption) (*Config, error) {
	options := &Op{}
	if err := options.ApplyOpts(opts); err != nil {
		return nil, err
	}

	cfg := &Config{
		APIVersion:      DefaultAPIVersion,
		ShutdownTimeout: DefaultShutdownTimeout,
	}

	if !options.DisableBrowser {
		cfg.Stages = append(cfg.Stages, Stage{
			Name: StageBrowser,
			Command: []string{
				options.BrowserExecutable,
				fmt.Sprintf("--remote-debugging-port=%d", DefaultRemoteDebuggingPort),
				"--user-data-dir=" + options.BrowserProfileDir,
				"--no-first-run",
				"--no-default-browser-check",
			},
			Detached: true,
			Port:     DefaultRemoteDebuggingPort,
		})
	}

	cfg.Stages = append(cfg.Stages,
		Stage{
			Name:         StageBackend,
			Script:       defaultBackendScript,
			WorkDir:      options.RootDir,
			StartupDelay: DefaultBackendStartupDelay,
			HealthCheck: &HealthCheck{
				URL:          fmt.Sprintf("http://localhost:%d/health", DefaultBackendPort),
				Timeout:      metav1.Duration{Duration: options.HealthTimeout},
				PollInterval: DefaultHealthPollInterval,
			},
			Port: DefaultBackendPort,
		},
		Stage{
			Name:         StageFrontend,
			Command:      []string{"npm", "run", "dev"},
			WorkDir:      filepath.Join(options.RootDir, "frontend"),
			StartupDelay: DefaultFrontendStartupDelay,
			Port:         DefaultFrontendPort,
		},
	)

	return cfg, nil
}

// DefaultDataDir returns "~/.devstack", creating it if missing.
func DefaultDataDir() (string, error) {
	homeDir, err := homedir.Dir()
	if err != nil {
		return "", err
	}
	d := filepath.Join(homeDir, ".devstack")
	if _, err := os.Stat(d); os.IsNotExist(err) {
		if err = os.MkdirAll(d, 0755); err != nil {
			return "", err
		}
	}
	return d, nil
}

// DefaultBrowserProfileDir is the isolated profile for the debug browser,
// so it never touches the user's regular browser profile.
func DefaultBrowserProfileDir() (string, error) {
	dir, err := DefaultDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "chrome-profile"), nil
}

const macChrome = "/Applications/Google Chrome.app/Contents/MacOS/Google Chrome"

var linuxBrowsers = []string{
	"google-chrome",
	"google-chrome-stable",
	"chromium",
	"chromium-browser",
}

// DefaultBrowserExecutable returns the Chrome executable for the OS.
func DefaultBrowserExecutable() string {
	return defaultBrowserExecutable(runtime.GOOS, exec.LookPath)
}

func defaultBrowserExecutable(goos string, lookPath func(string) (string, error)) string {
	if goos == "darwin" {
		return macChrome
	}
	for _, name := range linuxBrowsers {
		if p, err := lookPath(name); err == nil && p != "" {
			return p
		}
	}
	return linuxBrowsers[0]
}
