// Package run implements the default command that starts the stack
// and blocks until it is interrupted.
package run

import (
	"context"
	"os"
	"os/signal"
	"time"

	"github.com/urfave/cli"

	"github.com/leptonai/devstack/cmd/devstack/common"
	"github.com/leptonai/devstack/pkg/log"
	"github.com/leptonai/devstack/pkg/supervisor"
	pkgsystemd "github.com/leptonai/devstack/pkg/systemd"
	"github.com/leptonai/devstack/version"
)

func Command(cliContext *cli.Context) error {
	logLevel := cliContext.String(common.FlagLogLevel)
	logFile := cliContext.String(common.FlagLogFile)
	if _, err := log.ParseLogLevel(logLevel); err != nil {
		return err
	}

	cfg, err := common.LoadConfig(common.ParseStackOptions(cliContext))
	if err != nil {
		return err
	}

	// flags override the stack file
	if logLevel == "" {
		logLevel = cfg.LogLevel
	}
	if logFile == "" {
		logFile = cfg.LogFile
	}
	zapLvl, err := log.ParseLogLevel(logLevel)
	if err != nil {
		return err
	}
	log.Logger = log.CreateLogger(zapLvl, logFile)
	defer func() {
		_ = log.Logger.Sync()
	}()

	log.Logger.Infof("starting devstack %v", version.Version)

	out := cliContext.App.Writer
	opts := []supervisor.OpOption{
		supervisor.WithOutput(out),
		supervisor.WithLauncher(supervisor.NewExecLauncher(out, cliContext.App.ErrWriter)),
	}
	if pkgsystemd.UnderSystemd() {
		opts = append(opts, supervisor.WithNotifiers(pkgsystemd.NotifyReady, pkgsystemd.NotifyStopping))
	} else {
		log.Logger.Debugw("skipped sd notify as systemd is not available")
	}

	sup, err := supervisor.New(cfg, opts...)
	if err != nil {
		return err
	}
	log.Logger.Infow("created supervisor", "session", sup.SessionID(), "stages", len(cfg.Stages))

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	// start the signal handler as soon as we can to make sure that
	// we don't miss any signals during boot
	signals := make(chan os.Signal, 2048)
	done := supervisor.HandleSignals(rootCtx, rootCancel, signals)
	signal.Notify(signals, supervisor.DefaultSignalsToHandle...)
	defer signal.Stop(signals)

	start := time.Now()
	statusDone := make(chan struct{})
	go func() {
		defer close(statusDone)
		select {
		case <-rootCtx.Done():
		case <-sup.Ready():
			log.Logger.Infow("successfully booted", "tookSeconds", time.Since(start).Seconds())
			supervisor.PrintStatus(rootCtx, out, sup.Handles())
		}
	}()

	err = sup.Run(rootCtx)

	rootCancel()
	<-statusDone
	<-done

	return err
}
