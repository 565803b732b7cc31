package status

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Activity emits a periodic "still working" indicator on its own
// timer. It is started at agent loop entry and must be stopped on
// every exit path, including errors and the iteration bound.
type Activity struct {
	reporter Reporter
	interval time.Duration
	logger   *slog.Logger

	stopOnce sync.Once
	stopC    chan struct{}
	doneC    chan struct{}
}

// StartActivity launches the periodic indicator. With a non-positive
// interval it returns an inert Activity whose Stop is still safe to
// call, so callers can defer Stop unconditionally.
func StartActivity(reporter Reporter, interval time.Duration, logger *slog.Logger) *Activity {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Activity{
		reporter: reporter,
		interval: interval,
		logger:   logger,
		stopC:    make(chan struct{}),
		doneC:    make(chan struct{}),
	}
	if reporter == nil || interval <= 0 {
		close(a.doneC)
		return a
	}
	go a.run()
	return a
}

// Stop cancels the indicator timer and waits for the goroutine to
// exit. Safe to call more than once.
func (a *Activity) Stop() {
	a.stopOnce.Do(func() { close(a.stopC) })
	<-a.doneC
}

func (a *Activity) run() {
	defer close(a.doneC)

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-a.stopC:
			return
		case <-ticker.C:
			if err := a.reporter.Show(context.Background(), KindWorking, ""); err != nil {
				// Best-effort by contract: log and keep ticking.
				a.logger.Debug("activity indicator failed", "error", err)
			}
		}
	}
}
