package supervisor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"golang.org/x/sys/unix"

	"github.com/leptonai/devstack/pkg/log"
)

var DefaultSignalsToHandle = []os.Signal{
	unix.SIGTERM,
	unix.SIGINT,
	unix.SIGUSR1,
	unix.SIGPIPE,
}

// HandleSignals cancels the root context on the first SIGINT or SIGTERM.
// The returned channel is closed right after. Signals received later are
// left unhandled in the buffered channel, so a repeated Ctrl-C neither
// kills the supervisor abruptly nor triggers a second shutdown.
func HandleSignals(ctx context.Context, cancel context.CancelFunc, signals chan os.Signal) chan struct{} {
	done := make(chan struct{}, 1)
	go func() {
		for {
			select {
			case <-ctx.Done():
				close(done)
				return

			case s := <-signals:
				// Do not print message when dealing with SIGPIPE, which may cause
				// nested signals and consume lots of cpu bandwidth.
				if s == unix.SIGPIPE {
					continue
				}

				switch s {
				case unix.SIGUSR1:
					file := filepath.Join(os.TempDir(), fmt.Sprintf("devstack.%d.stacks.log", os.Getpid()))
					dumpStacks(file)

				default:
					log.Logger.Warnw("received signal -- stopping all processes", "signal", s)
					cancel()
					close(done)
					return
				}
			}
		}
	}()
	return done
}

func dumpStacks(file string) {
	var (
		buf       []byte
		stackSize int
	)
	bufferLen := 16384
	for stackSize == len(buf) {
		buf = make([]byte, bufferLen)
		stackSize = runtime.Stack(buf, true)
		bufferLen *= 2
	}
	buf = buf[:stackSize]
	log.Logger.Debugf("=== BEGIN goroutine stack dump ===\n%s\n=== END goroutine stack dump ===", buf)

	f, err := os.Create(file)
	if err != nil {
		return
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			log.Logger.Errorw("failed to close stack trace file", "error", cerr)
		}
	}()

	if _, err = f.Write(buf); err != nil {
		log.Logger.Errorw("failed to write stack trace to file", "error", err)
	} else {
		log.Logger.Debugw("goroutine stack dump written to file", "file", file)
	}
}
