// Package common implements the flags and config loading shared by the
// devstack commands.
package common

import (
	"github.com/urfave/cli"

	"github.com/leptonai/devstack/pkg/config"
)

const (
	FlagConfig        = "config"
	FlagRootDir       = "root-dir"
	FlagNoBrowser     = "no-browser"
	FlagBrowser       = "browser"
	FlagBrowserProf   = "browser-profile-dir"
	FlagHealthTimeout = "health-timeout"
	FlagLogLevel      = "log-level"
	FlagLogFile       = "log-file"
)

// StackFlags are the flags selecting and tuning the stack.
func StackFlags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{
			Name:  FlagConfig + ",c",
			Usage: "(optional) YAML stack file; the built-in browser/backend/frontend stack is used if empty",
		},
		cli.StringFlag{
			Name:  FlagRootDir,
			Usage: "(optional) project root containing the backend and the 'frontend' directory (default: current directory)",
		},
		cli.BoolFlag{
			Name:  FlagNoBrowser,
			Usage: "do not launch the remote-debugging browser",
		},
		cli.StringFlag{
			Name:  FlagBrowser,
			Usage: "(optional) browser executable (default: Google Chrome for the OS)",
		},
		cli.StringFlag{
			Name:  FlagBrowserProf,
			Usage: "(optional) isolated browser profile directory (default: ~/.devstack/chrome-profile)",
		},
		cli.DurationFlag{
			Name:  FlagHealthTimeout,
			Usage: "backend health check timeout",
			Value: config.DefaultHealthTimeout.Duration,
		},
	}
}

// LogFlags are the supervisor logging flags.
func LogFlags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{
			Name:  FlagLogLevel + ",l",
			Usage: "set the logging level [debug, info, warn, error, fatal, panic, dpanic]",
		},
		cli.StringFlag{
			Name:  FlagLogFile,
			Usage: "set the log file path (set empty to stdout/stderr)",
		},
	}
}
