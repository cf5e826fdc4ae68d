// Package config provides the devstack stack definition.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/mitchellh/go-homedir"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/yaml"
)

// Config describes the stack to supervise.
type Config struct {
	APIVersion string `json:"api_version"`

	// Logging level of the supervisor itself.
	LogLevel string `json:"log_level,omitempty"`
	// If non-empty, the supervisor logs go to this file (rotated).
	LogFile string `json:"log_file,omitempty"`

	// Upper bound for waiting on the children to exit after SIGTERM.
	// Children still running afterwards are left alone (no SIGKILL).
	ShutdownTimeout metav1.Duration `json:"shutdown_timeout"`

	// Stages are started in order.
	Stages []Stage `json:"stages"`
}

// Stage is one managed process of the stack.
type Stage struct {
	Name string `json:"name"`

	// Command is the argv to execute. Mutually exclusive with Script.
	Command []string `json:"command,omitempty"`
	// Script is run with bash. Mutually exclusive with Command.
	Script string `json:"script,omitempty"`

	WorkDir string   `json:"workdir,omitempty"`
	Envs    []string `json:"envs,omitempty"`

	// Detached stages are fire-and-forget: they are never recorded
	// by the supervisor and never signaled on shutdown.
	Detached bool `json:"detached,omitempty"`

	// Fixed pause after the launch, before the health check (if any).
	StartupDelay metav1.Duration `json:"startup_delay,omitempty"`

	// If set, the stage must become healthy before the next stage launches.
	HealthCheck *HealthCheck `json:"health_check,omitempty"`

	// If non-empty, the stage stdout/stderr go to this file (rotated)
	// instead of the supervisor stdout/stderr.
	LogFile string `json:"log_file,omitempty"`

	// Port the stage listens on, for display only.
	Port int `json:"port,omitempty"`
}

// HealthCheck is an HTTP liveness probe.
type HealthCheck struct {
	URL          string          `json:"url"`
	Timeout      metav1.Duration `json:"timeout,omitempty"`
	PollInterval metav1.Duration `json:"poll_interval,omitempty"`
}

var (
	ErrNoStages          = errors.New("at least one stage is required")
	ErrEmptyStageName    = errors.New("stage name is required")
	ErrEmptyHealthURL    = errors.New("health_check url is required")
	ErrCommandAndScript  = errors.New("only one of command or script may be set")
	ErrNoCommandOrScript = errors.New("one of command or script is required")
)

// Validate performs presence checks only.
func (config *Config) Validate() error {
	if config.APIVersion == "" {
		return errors.New("api_version is required")
	}
	if len(config.Stages) == 0 {
		return ErrNoStages
	}

	seen := make(map[string]struct{}, len(config.Stages))
	for i, st := range config.Stages {
		if st.Name == "" {
			return fmt.Errorf("stage %d: %w", i, ErrEmptyStageName)
		}
		if _, ok := seen[st.Name]; ok {
			return fmt.Errorf("duplicate stage name %q", st.Name)
		}
		seen[st.Name] = struct{}{}

		if err := st.Validate(); err != nil {
			return fmt.Errorf("stage %q: %w", st.Name, err)
		}
	}
	return nil
}

func (st *Stage) Validate() error {
	hasCommand := len(st.Command) > 0 && st.Command[0] != ""
	switch {
	case hasCommand && st.Script != "":
		return ErrCommandAndScript
	case !hasCommand && st.Script == "":
		return ErrNoCommandOrScript
	}
	if st.HealthCheck != nil && st.HealthCheck.URL == "" {
		return ErrEmptyHealthURL
	}
	return nil
}

// FindStage returns the stage with the name, or false if not found.
func (config *Config) FindStage(name string) (Stage, bool) {
	for _, st := range config.Stages {
		if st.Name == name {
			return st, true
		}
	}
	return Stage{}, false
}

// LoadConfig reads a YAML stack file and fills in the defaults
// for the fields left empty.
func LoadConfig(file string) (*Config, error) {
	b, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.UnmarshalStrict(b, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %q: %w", file, err)
	}
	if err := cfg.setDefaults(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// YAML returns the YAML encoding of the config.
func (config *Config) YAML() ([]byte, error) {
	return yaml.Marshal(config)
}

func (config *Config) setDefaults() error {
	if config.APIVersion == "" {
		config.APIVersion = DefaultAPIVersion
	}
	if config.ShutdownTimeout.Duration == 0 {
		config.ShutdownTimeout = DefaultShutdownTimeout
	}

	var err error
	if config.LogFile, err = homedir.Expand(config.LogFile); err != nil {
		return err
	}
	for i := range config.Stages {
		st := &config.Stages[i]
		if st.WorkDir, err = homedir.Expand(st.WorkDir); err != nil {
			return err
		}
		if st.LogFile, err = homedir.Expand(st.LogFile); err != nil {
			return err
		}
		if st.HealthCheck != nil {
			if st.HealthCheck.Timeout.Duration == 0 {
				st.HealthCheck.Timeout = DefaultHealthTimeout
			}
			if st.HealthCheck.PollInterval.Duration == 0 {
				st.HealthCheck.PollInterval = DefaultHealthPollInterval
			}
		}
	}
	return nil
}
