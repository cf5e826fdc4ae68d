package process

import (
	"context"

	"github.com/leptonai/devstack/pkg/log"

	procs "github.com/shirou/gopsutil/v4/process"
)

// Exists returns true if a process with the pid is currently running.
// Lookup failures are treated as "not running".
func Exists(ctx context.Context, pid int32) bool {
	return existsImpl(ctx, pid, procs.PidExistsWithContext)
}

// existsImpl takes the lookup function to make it easier to test.
func existsImpl(ctx context.Context, pid int32, pidExists func(context.Context, int32) (bool, error)) bool {
	if pid <= 0 {
		return false
	}
	ok, err := pidExists(ctx, pid)
	if err != nil {
		log.Logger.Debugw("failed to check pid -- assuming process is not running", "pid", pid, "error", err)
		return false
	}
	return ok
}
