// Package notify delivers session notifications to one or more sinks.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"tools.zach/dev/clockcord/internal/attendance"
	"tools.zach/dev/clockcord/internal/metrics"
)

// Fanout delivers each notification to every registered sink. A failing
// sink does not stop the others.
type Fanout struct {
	sinks []sink
	log   *slog.Logger
}

type sink struct {
	name string
	n    attendance.Notifier
}

// NewFanout returns an empty Fanout.
func NewFanout(logger *slog.Logger) *Fanout {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fanout{log: logger.With("component", "notify")}
}

// Add registers a sink under name. Nil notifiers are ignored.
func (f *Fanout) Add(name string, n attendance.Notifier) {
	if n == nil {
		return
	}
	f.sinks = append(f.sinks, sink{name: name, n: n})
}

// Len returns the number of sinks.
func (f *Fanout) Len() int { return len(f.sinks) }

// Notify sends n to every sink in registration order. The returned error
// joins every sink failure.
func (f *Fanout) Notify(ctx context.Context, n attendance.Notification) error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.n.Notify(ctx, n); err != nil {
			metrics.NotificationsSent.WithLabelValues(s.name, "error").Inc()
			f.log.Debug("sink failed", "sink", s.name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
			continue
		}
		metrics.NotificationsSent.WithLabelValues(s.name, "ok").Inc()
	}
	return errors.Join(errs...)
}
