package app

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	logx "quipbot/pkg/logx"
)

// notifyReady tells systemd startup finished. Outside a Type=notify unit
// (NOTIFY_SOCKET unset) SdNotify reports false and this is a no-op.
func notifyReady(log logx.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	if err != nil {
		log.Warn("systemd notify failed", logx.Any("err", err))
		return
	}
	if sent {
		log.Debug("systemd notified", logx.String("state", "ready"))
	}
}

func notifyStopping(log logx.Logger) {
	if _, err := daemon.SdNotify(false, daemon.SdNotifyStopping); err != nil {
		log.Warn("systemd notify failed", logx.Any("err", err))
	}
}

// startWatchdog pings the systemd watchdog at half the configured interval.
// Without WatchdogSec in the unit it does nothing.
func (a *App) startWatchdog() {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		a.log.Warn("systemd watchdog probe failed", logx.Any("err", err))
		return
	}
	if interval <= 0 {
		return
	}

	tick := interval / 2
	a.sup.Go0("systemd.watchdog", func(c context.Context) {
		a.log.Info("systemd watchdog enabled", logx.Duration("interval", interval))
		t := time.NewTicker(tick)
		defer t.Stop()
		for {
			select {
			case <-c.Done():
				return
			case <-t.C:
				if _, err := daemon.SdNotify(false, daemon.SdNotifyWatchdog); err != nil {
					a.log.Warn("systemd watchdog ping failed", logx.Any("err", err))
				}
			}
		}
	})
}
