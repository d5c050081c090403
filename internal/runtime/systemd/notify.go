// Package systemd reports service state to systemd (Type=notify units) and
// keeps the watchdog fed. Without NOTIFY_SOCKET every call is a no-op.
package systemd

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"newsrelay/pkg/logx"
)

// notify is swapped in tests.
var notify = daemon.SdNotify

type Notifier struct {
	log logx.Logger
}

func New(log logx.Logger) *Notifier {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Notifier{log: log}
}

func (n *Notifier) send(state string) bool {
	sent, err := notify(false, state)
	if err != nil {
		n.log.Warn("sd_notify failed", logx.String("state", state), logx.Err(err))
		return false
	}
	return sent
}

// Ready reports READY=1 and returns whether systemd was listening.
func (n *Notifier) Ready() bool {
	sent := n.send(daemon.SdNotifyReady)
	if sent {
		n.log.Debug("systemd notified ready")
	}
	return sent
}

func (n *Notifier) Stopping() bool { return n.send(daemon.SdNotifyStopping) }

func (n *Notifier) Status(s string) bool { return n.send("STATUS=" + s) }

// WatchdogInterval returns half the unit's WatchdogSec, or 0 when the
// watchdog is off.
func WatchdogInterval() time.Duration {
	d, err := daemon.SdWatchdogEnabled(false)
	if err != nil || d <= 0 {
		return 0
	}
	return d / 2
}

// RunWatchdog pings WATCHDOG=1 every interval until ctx is done. A
// non-positive interval returns immediately.
func (n *Notifier) RunWatchdog(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	n.log.Info("systemd watchdog enabled", logx.Duration("interval", interval))
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n.send(daemon.SdNotifyWatchdog)
		}
	}
}
