package attendance

import (
	"context"
	"sync"
	"time"
)

// watchdog is the periodic presence check attached to one session.
type watchdog struct {
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// cancel stops the watchdog. It is safe to call more than once and never
// blocks, so it may be called with the tracker's mutex held.
func (w *watchdog) cancel() {
	w.once.Do(func() { close(w.stop) })
}

func (w *watchdog) stopped() bool {
	select {
	case <-w.stop:
		return true
	default:
		return false
	}
}

// startWatchdog launches the check loop for s. Ticks that race with a
// transition are resolved in checkPresence, which re-validates s under
// the tracker's mutex before acting.
func (t *Tracker) startWatchdog(s *session) *watchdog {
	w := &watchdog{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		defer close(w.done)
		defer cancel()

		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()

		for {
			select {
			case <-w.stop:
				return
			case <-ticker.C:
				t.checkPresence(ctx, s)
			}
		}
	}()
	go func() {
		// Abort an in-flight lookup as soon as the session ends.
		select {
		case <-w.stop:
			cancel()
		case <-ctx.Done():
		}
	}()
	return w
}
