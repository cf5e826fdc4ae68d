package supervisor

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"

	"github.com/leptonai/devstack/pkg/process"
)

// PrintStatus renders the handles as a table.
func PrintStatus(ctx context.Context, wr io.Writer, handles []*Handle) {
	printStatus(wr, handles, time.Now().UTC(), func(pid int32) bool {
		return process.Exists(ctx, pid)
	})
}

func printStatus(wr io.Writer, handles []*Handle, now time.Time, alive func(pid int32) bool) {
	table := tablewriter.NewWriter(wr)
	table.SetAlignment(tablewriter.ALIGN_CENTER)
	table.SetHeader([]string{"Stage", "PID", "Port", "Alive", "Started", "Command"})

	for _, h := range handles {
		port := "-"
		if h.Stage.Port > 0 {
			port = fmt.Sprintf("%d", h.Stage.Port)
		}

		started := "-"
		if t := h.Process.StartedAt(); !t.IsZero() {
			started = humanize.RelTime(t, now, "ago", "from now")
		}

		cmd := h.Stage.Name
		if args := h.Process.Command(); len(args) > 0 {
			cmd = args[0]
			if h.Stage.Script != "" {
				cmd = "bash script"
			}
		}

		table.Append([]string{
			h.Stage.Name,
			fmt.Sprintf("%d", h.Process.PID()),
			port,
			fmt.Sprintf("%v", alive(h.Process.PID())),
			started,
			cmd,
		})
	}

	table.Render()
}
