// Package systemd implements the readiness notifications for running
// devstack as a systemd "Type=notify" unit.
package systemd

import (
	"context"
	"os"

	sd "github.com/coreos/go-systemd/v22/daemon"

	"github.com/leptonai/devstack/pkg/log"
)

// UnderSystemd returns true if the supervisor was started by systemd
// with a notification socket.
func UnderSystemd() bool {
	return os.Getenv("NOTIFY_SOCKET") != ""
}

// NotifyReady notifies systemd that every stage is up.
func NotifyReady(_ context.Context) error {
	return sdNotify(sd.SdNotifyReady)
}

// NotifyStopping notifies systemd that the stages are being stopped.
func NotifyStopping(_ context.Context) error {
	return sdNotify(sd.SdNotifyStopping)
}

// sdNotify is a no-op (false, nil) when NOTIFY_SOCKET is unset.
func sdNotify(state string) error {
	notified, err := sd.SdNotify(false, state)
	log.Logger.Debugw("sd notification", "state", state, "notified", notified, "error", err)
	return err
}
