package command

import (
	"fmt"

	"github.com/urfave/cli"

	"github.com/leptonai/devstack/cmd/devstack/common"
	cmdprintconfig "github.com/leptonai/devstack/cmd/devstack/print-config"
	cmdrun "github.com/leptonai/devstack/cmd/devstack/run"
	"github.com/leptonai/devstack/version"
)

const usage = `
# to start the browser, the backend and the frontend from the project root
devstack

# to start a custom stack
devstack --config stack.yaml

# to inspect the stack without starting it
devstack print-config --no-browser
`

func App() *cli.App {
	app := cli.NewApp()

	app.Name = "devstack"
	app.Version = version.Version
	app.Usage = usage
	app.Description = "local development stack supervisor"

	app.Flags = append(common.StackFlags(), common.LogFlags()...)
	app.Action = cmdrun.Command

	app.Commands = []cli.Command{
		{
			Name:   "print-config",
			Usage:  "print the resolved stack as YAML",
			Action: cmdprintconfig.Command,
			Flags:  common.StackFlags(),
		},
		{
			Name:  "version",
			Usage: "print the version",
			Action: func(cliContext *cli.Context) error {
				_, err := fmt.Fprintln(cliContext.App.Writer, version.String())
				return err
			},
		},
	}

	return app
}
