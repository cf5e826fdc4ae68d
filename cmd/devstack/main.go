package main

import (
	"fmt"
	"io"
	"os"

	"github.com/leptonai/devstack/cmd/devstack/command"
	"github.com/leptonai/devstack/pkg/supervisor"
)

func main() {
	os.Exit(run(os.Args, os.Stdout, os.Stderr))
}

func run(args []string, stdout io.Writer, stderr io.Writer) int {
	app := command.App()
	app.Writer = stdout
	app.ErrWriter = stderr
	if err := app.Run(args); err != nil {
		fmt.Fprintf(stderr, "%s %s\n", supervisor.WarningSign, err)
		return 1
	}
	return 0
}
