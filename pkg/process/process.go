// Package process provides the managed child process implementation on the host.
package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/leptonai/devstack/pkg/log"
)

type Process interface {
	// Name returns the human-readable name of the process.
	Name() string
	// Command returns the command line that is executed.
	Command() []string
	// WorkDir returns the working directory, empty for the caller's.
	WorkDir() string

	// Starts the process but does not wait for it to exit.
	Start(ctx context.Context) error
	// Returns true if the process is started.
	Started() bool
	// Returns the time the process was started, zero if not started.
	StartedAt() time.Time

	// Sends SIGTERM to the process group and waits for the process
	// to exit or the context to be done, whichever comes first.
	// Never escalates to SIGKILL. Safe to call more than once;
	// only the first call signals.
	Close(ctx context.Context) error
	// Returns true if the process is closed.
	Closed() bool

	// Stops tracking the process without signaling it.
	// Subsequent Close calls are no-ops. The process keeps running
	// and is still reaped when it exits.
	Release() error

	// Receives the exit error, if any, once the process exits.
	// If the command completes successfully, nil is sent.
	// The channel is closed on the process exit.
	Wait() <-chan error
	// Closed once the process has exited.
	Done() <-chan struct{}

	// Returns the current pid of the process.
	PID() int32

	// Returns the exit code of the process.
	// Returns 0 if the process has not exited yet.
	// Returns -1 if the process was terminated by a signal.
	ExitCode() int32
}

// ExecutableNotFoundError is returned when the executable
// cannot be resolved on the PATH.
type ExecutableNotFoundError struct {
	Name string
}

func (e *ExecutableNotFoundError) Error() string {
	return fmt.Sprintf("command not found: %q", e.Name)
}

var (
	ErrProcessAlreadyStarted = errors.New("process already started")
	ErrProcessClosed         = errors.New("process closed")
)

type process struct {
	name    string
	workDir string

	cmdMu sync.RWMutex
	cmd   *exec.Cmd

	startedMu sync.RWMutex
	started   bool
	startedAt time.Time

	closeOnce sync.Once
	closedMu  sync.RWMutex
	closed    bool
	released  bool

	// error streaming channel, closed on command exit
	errc chan error
	done chan struct{}

	pid      int32
	exitCode int32

	commandArgs []string
	envs        []string
	runBashFile *os.File

	stdout io.Writer
	stderr io.Writer
}

func New(opts ...OpOption) (Process, error) {
	op := &Op{}
	if err := op.applyOpts(opts); err != nil {
		return nil, err
	}

	var cmdArgs []string
	var bashFile *os.File
	if op.runAsBashScript {
		// may fail if the disk is full
		// e.g.,
		// "open /tmp/devstack-453112547.bash: no space left on device"
		var err error
		bashFile, err = os.CreateTemp(op.bashScriptTmpDirectory, "devstack-*.bash")
		if err != nil {
			return nil, err
		}

		contents := op.bashScriptContentsToRun
		if contents == "" {
			var b strings.Builder
			b.WriteString(bashScriptHeader)
			for _, args := range op.commandsToRun {
				b.WriteString(strings.Join(args, " "))
				b.WriteByte('\n')
			}
			contents = b.String()
		}
		if _, err := bashFile.WriteString(contents); err != nil {
			_ = bashFile.Close()
			_ = os.Remove(bashFile.Name())
			return nil, err
		}
		_ = bashFile.Sync()

		cmdArgs = []string{"bash", bashFile.Name()}
	} else {
		cmdArgs = op.commandsToRun[0]
	}

	return &process{
		name:    op.name,
		workDir: op.workDir,

		errc: make(chan error, 1),
		done: make(chan struct{}),

		commandArgs: cmdArgs,
		envs:        op.envs,
		runBashFile: bashFile,

		stdout: op.stdout,
		stderr: op.stderr,
	}, nil
}

func (p *process) Name() string {
	return p.name
}

func (p *process) Command() []string {
	return append([]string(nil), p.commandArgs...)
}

func (p *process) WorkDir() string {
	return p.workDir
}

// Start spawns the command. The context is only checked before spawning:
// the child is not killed on its cancellation, Close stops it.
func (p *process) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.Closed() {
		return ErrProcessClosed
	}

	p.cmdMu.Lock()
	defer p.cmdMu.Unlock()

	if p.cmd != nil {
		return ErrProcessAlreadyStarted
	}

	if err := p.startCommand(); err != nil {
		p.cmd = nil
		p.removeBashFile()
		return err
	}

	go p.watchCmd()

	return nil
}

func (p *process) Started() bool {
	p.startedMu.RLock()
	defer p.startedMu.RUnlock()

	return p.started
}

func (p *process) StartedAt() time.Time {
	p.startedMu.RLock()
	defer p.startedMu.RUnlock()

	return p.startedAt
}

func (p *process) startCommand() error {
	log.Logger.Debugw("starting command", "name", p.name, "command", p.commandArgs, "workDir", p.workDir)

	p.cmd = exec.Command(p.commandArgs[0], p.commandArgs[1:]...)
	p.cmd.Dir = p.workDir
	if len(p.envs) > 0 {
		p.cmd.Env = append(os.Environ(), p.envs...)
	}
	p.cmd.Stdout = p.stdout
	p.cmd.Stderr = p.stderr

	// Put the child and everything it spawns (e.g., "npm run dev" forks node)
	// into its own process group, so that a single kill(-pgid) reaches all of
	// them and a terminal Ctrl-C is delivered only to the supervisor.
	p.cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := p.cmd.Start(); err != nil {
		return fmt.Errorf("failed to start command: %w", err)
	}
	atomic.StoreInt32(&p.pid, int32(p.cmd.Process.Pid))

	p.startedMu.Lock()
	p.started = true
	p.startedAt = time.Now().UTC()
	p.startedMu.Unlock()

	return nil
}

func (p *process) Wait() <-chan error {
	return p.errc
}

func (p *process) Done() <-chan struct{} {
	return p.done
}

func (p *process) watchCmd() {
	defer func() {
		close(p.errc)
		close(p.done)
	}()

	p.cmdMu.RLock()
	cmd := p.cmd
	p.cmdMu.RUnlock()

	err := cmd.Wait()
	p.errc <- err

	if err == nil {
		log.Logger.Debugw("process exited successfully", "name", p.name)
		return
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		exitCode := exitErr.ExitCode()
		atomic.StoreInt32(&p.exitCode, int32(exitCode))

		if exitCode == -1 {
			if p.Closed() {
				log.Logger.Debugw("process was terminated by close", "name", p.name, "cmd", cmd.String())
			} else {
				log.Logger.Warnw("process was terminated (exit code -1) for unknown reasons", "name", p.name, "cmd", cmd.String())
			}
		} else {
			log.Logger.Debugw("process exited with non-zero status", "name", p.name, "error", err, "exitCode", exitCode)
		}
		return
	}

	log.Logger.Warnw("error waiting for process to finish", "name", p.name, "error", err)
}

func (p *process) Close(ctx context.Context) error {
	if !p.Started() { // has not started yet
		return nil
	}

	signaled := false
	p.closeOnce.Do(func() {
		p.closedMu.Lock()
		released := p.released
		p.closed = true
		p.closedMu.Unlock()
		if released {
			return
		}

		p.terminate()
		signaled = true
	})
	if !signaled {
		return nil
	}

	select {
	case <-p.done:
	case <-ctx.Done():
		log.Logger.Warnw("process did not exit before close deadline", "name", p.name, "pid", p.PID(), "error", ctx.Err())
	}

	p.removeBashFile()
	return nil
}

// terminate sends SIGTERM to the entire process group.
// The negative pid addresses every process whose PGID equals the
// child's pid (set via Setpgid in startCommand).
func (p *process) terminate() {
	pgid := int(p.PID())
	if pgid <= 0 {
		return
	}

	select {
	case <-p.done:
		log.Logger.Debugw("process already exited, skipping SIGTERM", "name", p.name, "pid", pgid)
		return
	default:
	}

	if err := syscall.Kill(-pgid, syscall.SIGTERM); err != nil {
		if errors.Is(err, syscall.ESRCH) {
			// no such process: the group already exited
			log.Logger.Debugw("process group already exited", "name", p.name, "pgid", pgid)
			return
		}
		log.Logger.Warnw("failed to send SIGTERM to process group", "name", p.name, "pgid", pgid, "error", err)
		return
	}
	log.Logger.Debugw("sent SIGTERM to process group", "name", p.name, "pgid", pgid)
}

func (p *process) Closed() bool {
	p.closedMu.RLock()
	defer p.closedMu.RUnlock()

	return p.closed
}

func (p *process) Release() error {
	p.closedMu.Lock()
	defer p.closedMu.Unlock()

	if p.closed {
		return ErrProcessClosed
	}
	p.released = true
	return nil
}

func (p *process) removeBashFile() {
	if p.runBashFile == nil {
		return
	}
	_ = p.runBashFile.Close()
	if err := os.RemoveAll(p.runBashFile.Name()); err != nil {
		log.Logger.Warnw("failed to remove bash file", "error", err)
	}
}

func (p *process) PID() int32 {
	return atomic.LoadInt32(&p.pid)
}

func (p *process) ExitCode() int32 {
	return atomic.LoadInt32(&p.exitCode)
}

const bashScriptHeader = `#!/bin/bash

# do not mask errors in a pipeline
set -o pipefail

# treat unset variables as an error
set -o nounset

# exit script whenever it errs
set -o errexit

`
