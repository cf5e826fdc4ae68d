package process

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

type OpOption func(*Op)

type Op struct {
	name    string
	workDir string
	envs    []string

	stdout io.Writer
	stderr io.Writer

	commandsToRun           [][]string
	bashScriptContentsToRun string
	runAsBashScript         bool
	bashScriptTmpDirectory  string
}

var ErrNoCommand = errors.New("no command(s) or bash script contents provided")

func (op *Op) applyOpts(opts []OpOption) error {
	for _, opt := range opts {
		opt(op)
	}

	if len(op.commandsToRun) == 0 && op.bashScriptContentsToRun == "" {
		return ErrNoCommand
	}
	if op.bashScriptContentsToRun != "" && !op.runAsBashScript {
		op.runAsBashScript = true
	}
	if !op.runAsBashScript && len(op.commandsToRun) > 1 {
		return errors.New("cannot run multiple commands without a bash script mode")
	}

	if op.runAsBashScript {
		if !commandExists("bash", "") {
			return &ExecutableNotFoundError{Name: "bash"}
		}
	} else {
		args := op.commandsToRun[0]
		if len(args) == 0 || args[0] == "" {
			return ErrNoCommand
		}
		if !commandExists(args[0], op.workDir) {
			return &ExecutableNotFoundError{Name: args[0]}
		}
	}

	if op.workDir != "" {
		fi, err := os.Stat(op.workDir)
		if err != nil {
			return fmt.Errorf("invalid working directory %q: %w", op.workDir, err)
		}
		if !fi.IsDir() {
			return fmt.Errorf("working directory %q is not a directory", op.workDir)
		}
	}

	foundEnvs := make(map[string]any)
	for _, env := range op.envs {
		parts := strings.SplitN(env, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid environment variable format: %s", env)
		}
		if _, ok := foundEnvs[parts[0]]; ok {
			return fmt.Errorf("duplicate environment variable: %s", parts[0])
		}
		foundEnvs[parts[0]] = parts[1]
	}

	if op.name == "" {
		if op.runAsBashScript {
			op.name = "bash"
		} else {
			op.name = op.commandsToRun[0][0]
		}
	}

	return nil
}

// Sets the human-readable name used in logs.
// Defaults to the executable name.
func WithName(name string) OpOption {
	return func(op *Op) {
		op.name = name
	}
}

// Sets the working directory of the process.
// Defaults to the working directory of the calling process.
func WithWorkDir(dir string) OpOption {
	return func(op *Op) {
		op.workDir = dir
	}
}

// Add a new environment variable to the process
// in the format of `KEY=VALUE`. The process always inherits
// the environment of the calling process; these are appended.
func WithEnvs(envs ...string) OpOption {
	return func(op *Op) {
		op.envs = append(op.envs, envs...)
	}
}

// Add a new command to run.
func WithCommand(args ...string) OpOption {
	return func(op *Op) {
		op.commandsToRun = append(op.commandsToRun, args)
	}
}

// Sets the bash script contents to run.
// This is useful for running multiple/complicated commands,
// e.g., activating a virtualenv before starting a server.
func WithBashScriptContentsToRun(script string) OpOption {
	return func(op *Op) {
		op.bashScriptContentsToRun = script
	}
}

// Set true to run commands as a bash script.
func WithRunAsBashScript() OpOption {
	return func(op *Op) {
		op.runAsBashScript = true
	}
}

// Sets the directory for the generated bash script file.
// Defaults to os.TempDir.
func WithBashScriptTmpDirectory(dir string) OpOption {
	return func(op *Op) {
		op.bashScriptTmpDirectory = dir
	}
}

// Sets the writers for the process stdout and stderr.
// A nil writer discards the stream.
func WithOutput(stdout io.Writer, stderr io.Writer) OpOption {
	return func(op *Op) {
		op.stdout = stdout
		op.stderr = stderr
	}
}

// commandExists resolves a relative path containing a separator
// against dir, matching how the child resolves it after chdir.
func commandExists(name string, dir string) bool {
	if dir != "" && strings.Contains(name, string(filepath.Separator)) && !filepath.IsAbs(name) {
		name = filepath.Join(dir, name)
	}
	p, err := exec.LookPath(name)
	if err != nil {
		return false
	}
	return p != ""
}
