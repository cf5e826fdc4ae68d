// Package printconfig implements the "print-config" command.
package printconfig

import (
	"fmt"

	"github.com/urfave/cli"

	"github.com/leptonai/devstack/cmd/devstack/common"
)

// Command prints the resolved stack as YAML, without starting it.
func Command(cliContext *cli.Context) error {
	cfg, err := common.LoadConfig(common.ParseStackOptions(cliContext))
	if err != nil {
		return err
	}

	b, err := cfg.YAML()
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(cliContext.App.Writer, string(b))
	return err
}
