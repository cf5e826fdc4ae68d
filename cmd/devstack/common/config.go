package common

import (
	"time"

	"github.com/urfave/cli"

	"github.com/leptonai/devstack/pkg/config"
)

// StackOptions are the parsed stack flags.
type StackOptions struct {
	ConfigFile        string
	RootDir           string
	NoBrowser         bool
	BrowserExecutable string
	BrowserProfileDir string
	HealthTimeout     time.Duration
}

func ParseStackOptions(cliContext *cli.Context) StackOptions {
	return StackOptions{
		ConfigFile:        cliContext.String(FlagConfig),
		RootDir:           cliContext.String(FlagRootDir),
		NoBrowser:         cliContext.Bool(FlagNoBrowser),
		BrowserExecutable: cliContext.String(FlagBrowser),
		BrowserProfileDir: cliContext.String(FlagBrowserProf),
		HealthTimeout:     cliContext.Duration(FlagHealthTimeout),
	}
}

// LoadConfig returns the stack from the file if set,
// otherwise the default stack tuned by the flags.
func LoadConfig(opts StackOptions) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if opts.ConfigFile != "" {
		cfg, err = config.LoadConfig(opts.ConfigFile)
	} else {
		cfgOpts := []config.OpOption{
			config.WithRootDir(opts.RootDir),
			config.WithBrowserExecutable(opts.BrowserExecutable),
			config.WithBrowserProfileDir(opts.BrowserProfileDir),
			config.WithHealthTimeout(opts.HealthTimeout),
		}
		if opts.NoBrowser {
			cfgOpts = append(cfgOpts, config.WithoutBrowser())
		}
		cfg, err = config.DefaultConfig(cfgOpts...)
	}
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
