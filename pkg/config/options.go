package config

import (
	"time"

	"github.com/mitchellh/go-homedir"
)

type Op struct {
	// RootDir is the project root holding the backend
	// and the "frontend" directory. Empty for the current directory.
	RootDir string

	BrowserExecutable string
	BrowserProfileDir string
	DisableBrowser    bool

	HealthTimeout time.Duration
}

type OpOption func(*Op)

func (op *Op) ApplyOpts(opts []OpOption) error {
	for _, opt := range opts {
		opt(op)
	}

	var err error
	if op.RootDir, err = homedir.Expand(op.RootDir); err != nil {
		return err
	}

	if !op.DisableBrowser {
		if op.BrowserExecutable == "" {
			op.BrowserExecutable = DefaultBrowserExecutable()
		}
		if op.BrowserProfileDir == "" {
			op.BrowserProfileDir, err = DefaultBrowserProfileDir()
			if err != nil {
				return err
			}
		} else if op.BrowserProfileDir, err = homedir.Expand(op.BrowserProfileDir); err != nil {
			return err
		}
	}

	if op.HealthTimeout <= 0 {
		op.HealthTimeout = DefaultHealthTimeout.Duration
	}

	return nil
}

// Specifies the project root directory.
func WithRootDir(dir string) OpOption {
	return func(op *Op) {
		op.RootDir = dir
	}
}

// Overrides the browser executable path.
func WithBrowserExecutable(p string) OpOption {
	return func(op *Op) {
		op.BrowserExecutable = p
	}
}

// Overrides the browser profile directory ("~" is expanded).
func WithBrowserProfileDir(dir string) OpOption {
	return func(op *Op) {
		op.BrowserProfileDir = dir
	}
}

// Drops the browser stage from the default stack.
func WithoutBrowser() OpOption {
	return func(op *Op) {
		op.DisableBrowser = true
	}
}

// Sets the backend health check timeout.
func WithHealthTimeout(d time.Duration) OpOption {
	return func(op *Op) {
		op.HealthTimeout = d
	}
}
