// Package systemd wraps the sd_notify protocol. Every call is a no-op when
// the process is not started by systemd (NOTIFY_SOCKET unset).
package systemd

import (
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

// notify is swapped in tests.
var notify = daemon.SdNotify

// Ready reports READY=1. The bool is false when no notify socket exists.
func Ready() (bool, error) { return notify(false, daemon.SdNotifyReady) }

// Stopping reports STOPPING=1.
func Stopping() (bool, error) { return notify(false, daemon.SdNotifyStopping) }

// Watchdog pings the systemd watchdog (WATCHDOG=1).
func Watchdog() (bool, error) { return notify(false, daemon.SdNotifyWatchdog) }

// Status sets the free-form unit status line shown by systemctl status.
func Status(s string) (bool, error) { return notify(false, "STATUS="+s) }

// WatchdogInterval returns the configured WatchdogSec, or 0 when the
// watchdog is disabled for this process.
func WatchdogInterval() time.Duration {
	d, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		return 0
	}
	return d
}
