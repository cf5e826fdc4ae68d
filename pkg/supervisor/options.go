package supervisor

import (
	"context"
	"io"
	"os"

	"github.com/leptonai/devstack/pkg/healthcheck"
)

type Op struct {
	launcher       Launcher
	checker        healthcheck.Checker
	out            io.Writer
	notifyReady    func(ctx context.Context) error
	notifyStopping func(ctx context.Context) error
}

type OpOption func(*Op)

func (op *Op) applyOpts(opts []OpOption) {
	for _, opt := range opts {
		opt(op)
	}

	if op.launcher == nil {
		op.launcher = NewExecLauncher(os.Stdout, os.Stderr)
	}
	if op.checker == nil {
		op.checker = &healthcheck.HTTPChecker{}
	}
	if op.out == nil {
		op.out = os.Stdout
	}
	if op.notifyReady == nil {
		op.notifyReady = noopNotify
	}
	if op.notifyStopping == nil {
		op.notifyStopping = noopNotify
	}
}

func noopNotify(context.Context) error { return nil }

// Sets the launcher for the stage processes.
func WithLauncher(l Launcher) OpOption {
	return func(op *Op) {
		op.launcher = l
	}
}

// Sets the health checker used for gated stages.
func WithChecker(c healthcheck.Checker) OpOption {
	return func(op *Op) {
		op.checker = c
	}
}

// Sets the writer for the human-readable status lines.
func WithOutput(w io.Writer) OpOption {
	return func(op *Op) {
		op.out = w
	}
}

// Sets the hooks called once the stack is up and when it stops,
// e.g., the systemd readiness notifications.
func WithNotifiers(ready func(ctx context.Context) error, stopping func(ctx context.Context) error) OpOption {
	return func(op *Op) {
		op.notifyReady = ready
		op.notifyStopping = stopping
	}
}
