package framework

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/golang/glog"
)

// Watchdog is a supervising deadline. The loop touches it on every
// iteration; if it is not touched within Timeout, OnExpire is invoked
// from the watchdog goroutine.
type Watchdog struct {
	Timeout  time.Duration
	OnExpire func()

	lastTouch int64
}

// DefaultWatchdogTimeout matches the 2 s hardware watchdog on the
// reference boards.
const DefaultWatchdogTimeout = 2 * time.Second

// NewWatchdog creates a Watchdog.
func NewWatchdog(timeout time.Duration, onExpire func()) *Watchdog {
	if timeout <= 0 {
		timeout = DefaultWatchdogTimeout
	}
	return &Watchdog{Timeout: timeout, OnExpire: onExpire}
}

// Name implements Named.
func (w *Watchdog) Name() string {
	return "watchdog"
}

// Touch re-arms the deadline.
func (w *Watchdog) Touch() {
	atomic.StoreInt64(&w.lastTouch, time.Now().UnixNano())
}

// Expired reports whether the deadline passed at now.
func (w *Watchdog) Expired(now time.Time) bool {
	last := atomic.LoadInt64(&w.lastTouch)
	return now.UnixNano()-last > int64(w.Timeout)
}

// Run implements Runnable.
func (w *Watchdog) Run(ctx context.Context) error {
	period := w.Timeout / 4
	if period <= 0 {
		period = time.Millisecond
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			if !w.Expired(now) {
				continue
			}
			glog.Errorf("watchdog expired: loop stalled for more than %s", w.Timeout)
			if fn := w.OnExpire; fn != nil {
				fn()
			}
			w.Touch()
		}
	}
}
