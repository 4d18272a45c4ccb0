// Package systemd reports service state to the systemd service manager
// (sd_notify). Every call is a no-op when NOTIFY_SOCKET is not set, so the
// bot runs unchanged outside a systemd unit.
package systemd

import (
	"fmt"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

// Notifier sends sd_notify states. The zero value is ready to use.
type Notifier struct{}

// Ready tells systemd that startup finished (Type=notify units).
func (Notifier) Ready() error { return notify(daemon.SdNotifyReady) }

// Stopping tells systemd that shutdown has begun.
func (Notifier) Stopping() error { return notify(daemon.SdNotifyStopping) }

// Watchdog pings the unit's watchdog.
func (Notifier) Watchdog() error { return notify(daemon.SdNotifyWatchdog) }

// Status sets the free-form status line shown by systemctl status.
func (Notifier) Status(msg string) error { return notify("STATUS=" + msg) }

// WatchdogInterval returns the unit's WatchdogSec, or 0 when the watchdog
// is disabled for this process.
func (Notifier) WatchdogInterval() time.Duration {
	d, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		return 0
	}
	return d
}

func notify(state string) error {
	if _, err := daemon.SdNotify(false, state); err != nil {
		return fmt.Errorf("sd_notify %q: %w", state, err)
	}
	return nil
}
