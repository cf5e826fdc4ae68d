package supervisor

import (
	"context"
	"io"
	"sync/atomic"

	"github.com/leptonai/devstack/pkg/config"
	"github.com/leptonai/devstack/pkg/log"
	"github.com/leptonai/devstack/pkg/process"
)

// Launcher starts the process of a stage.
type Launcher interface {
	Launch(ctx context.Context, stage config.Stage) (process.Process, error)
}

// Handle is a successfully launched stage.
type Handle struct {
	Stage   config.Stage
	Process process.Process

	signaled atomic.Bool
}

// Signaled returns true once the handle was targeted by a shutdown.
func (h *Handle) Signaled() bool {
	return h.signaled.Load()
}

var _ Launcher = &execLauncher{}

// execLauncher runs stages as host processes.
type execLauncher struct {
	stdout io.Writer
	stderr io.Writer
}

// NewExecLauncher returns a launcher that forwards the child output
// to stdout/stderr unless the stage sets a log file.
func NewExecLauncher(stdout io.Writer, stderr io.Writer) Launcher {
	return &execLauncher{stdout: stdout, stderr: stderr}
}

func (l *execLauncher) Launch(ctx context.Context, stage config.Stage) (process.Process, error) {
	opts := []process.OpOption{
		process.WithName(stage.Name),
		process.WithWorkDir(stage.WorkDir),
		process.WithEnvs(stage.Envs...),
	}
	if stage.Script != "" {
		opts = append(opts, process.WithBashScriptContentsToRun(stage.Script))
	} else {
		opts = append(opts, process.WithCommand(stage.Command...))
	}

	var logWriter io.WriteCloser
	if stage.LogFile != "" {
		logWriter = log.NewRotatingWriter(stage.LogFile, 32)
		opts = append(opts, process.WithOutput(logWriter, logWriter))
	} else {
		opts = append(opts, process.WithOutput(l.stdout, l.stderr))
	}

	p, err := process.New(opts...)
	if err != nil {
		closeWriter(logWriter)
		return nil, err
	}
	if err := p.Start(ctx); err != nil {
		closeWriter(logWriter)
		return nil, err
	}

	if logWriter != nil {
		go func() {
			<-p.Done()
			closeWriter(logWriter)
		}()
	}
	return p, nil
}

func closeWriter(w io.Closer) {
	if w == nil {
		return
	}
	if err := w.Close(); err != nil {
		log.Logger.Warnw("failed to close stage log file", "error", err)
	}
}
