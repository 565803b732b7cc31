package backend

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Monitor watches the shared base session with a fixed-interval
// liveness probe and repairs it when the probe fails. Reconnection
// attempts are spaced by the backoff Policy; after Policy.MaxAttempts
// consecutive failures the Monitor marks the connection Failed and
// exits permanently. At most one reconnect wait is pending at a time
// because the whole cycle runs in a single goroutine.
type Monitor struct {
	interval time.Duration
	policy   Policy
	logger   *slog.Logger

	// Hooks into the owning Manager.
	probe     func(ctx context.Context) error
	teardown  func()
	reconnect func(ctx context.Context) error
	failed    func()

	// failC receives out-of-band failure reports from per-user
	// invocations. Buffered so reporting never blocks a caller.
	failC chan struct{}

	mu       sync.Mutex
	attempts int
	running  bool
	cancel   context.CancelFunc
	done     chan struct{}
}

func newMonitor(interval time.Duration, policy Policy, logger *slog.Logger) *Monitor {
	return &Monitor{
		interval: interval,
		policy:   policy,
		logger:   logger,
		failC:    make(chan struct{}, 1),
	}
}

// Start launches the probe loop. Calling Start on a running Monitor is
// a no-op. A Monitor that was stopped or that fail-stopped can be
// started again; re-Initialize from the Failed state relies on this.
func (mon *Monitor) Start() {
	mon.mu.Lock()
	defer mon.mu.Unlock()
	if mon.running {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	mon.running = true
	mon.cancel = cancel
	mon.done = make(chan struct{})
	go mon.run(ctx, cancel, mon.done)
}

// Stop cancels the probe loop and any pending reconnect wait, then
// waits for the goroutine to exit. Idempotent.
func (mon *Monitor) Stop() {
	mon.mu.Lock()
	if !mon.running {
		mon.mu.Unlock()
		return
	}
	mon.running = false
	cancel := mon.cancel
	done := mon.done
	mon.mu.Unlock()

	cancel()
	<-done
}

// ReportFailure feeds an externally observed transport failure into
// the monitor. Non-blocking: when a recovery cycle is already in
// flight the report is dropped, which is fine because recovery will
// re-establish the base session anyway.
func (mon *Monitor) ReportFailure() {
	select {
	case mon.failC <- struct{}{}:
	default:
	}
}

// Attempts returns the current consecutive reconnect failure count.
func (mon *Monitor) Attempts() int {
	mon.mu.Lock()
	defer mon.mu.Unlock()
	return mon.attempts
}

func (mon *Monitor) resetAttempts() {
	mon.mu.Lock()
	mon.attempts = 0
	mon.mu.Unlock()
}

func (mon *Monitor) bumpAttempts() int {
	mon.mu.Lock()
	mon.attempts++
	n := mon.attempts
	mon.mu.Unlock()
	return n
}

func (mon *Monitor) run(ctx context.Context, cancel context.CancelFunc, done chan struct{}) {
	defer func() {
		cancel()
		// A fail-stop exits this goroutine on its own, without anyone
		// calling Stop; mark the monitor stopped so the next Start
		// launches a fresh loop. The done check keeps a dying goroutine
		// from clobbering the state of a successor that Start has
		// already launched.
		mon.mu.Lock()
		if mon.done == done {
			mon.running = false
			mon.cancel = nil
		}
		mon.mu.Unlock()
		close(done)
	}()

	ticker := time.NewTicker(mon.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			err := mon.probe(ctx)
			if err == nil {
				continue
			}
			var authErr *AuthError
			if errors.As(err, &authErr) {
				// The service credential was rejected. Retrying is
				// harmless and rotation is an operator action, so the
				// probe schedules recovery like any other failure but
				// shouts about it.
				mon.logger.Error("health probe rejected by backend", "error", err)
			} else {
				mon.logger.Warn("health probe failed", "error", err)
			}
			if !mon.recover(ctx) {
				return
			}
			mon.drainReports()
			ticker.Reset(mon.interval)

		case <-mon.failC:
			mon.logger.Warn("transport failure reported by invocation")
			if !mon.recover(ctx) {
				return
			}
			mon.drainReports()
			ticker.Reset(mon.interval)
		}
	}
}

// recover tears down the base session and retries the connect sequence
// with capped exponential backoff. Returns false when recovery is
// abandoned (max attempts reached or the monitor was stopped): the
// caller must exit the loop.
func (mon *Monitor) recover(ctx context.Context) bool {
	mon.teardown()

	for {
		mon.mu.Lock()
		attempt := mon.attempts
		mon.mu.Unlock()

		if attempt >= mon.policy.MaxAttempts {
			mon.logger.Error("reconnection abandoned",
				"attempts", attempt,
				"max_attempts", mon.policy.MaxAttempts)
			// Stopped before the state flips to Failed, so a caller
			// that observes Failed and re-Initializes always gets a
			// restartable monitor.
			mon.mu.Lock()
			mon.running = false
			mon.mu.Unlock()
			mon.failed()
			return false
		}

		delay := mon.policy.Delay(attempt)
		mon.logger.Info("scheduling reconnect",
			"attempt", attempt,
			"delay", delay)

		select {
		case <-ctx.Done():
			return false
		case <-time.After(delay):
		}

		if err := mon.reconnect(ctx); err != nil {
			n := mon.bumpAttempts()
			mon.logger.Warn("reconnect attempt failed",
				"attempt", n,
				"error", err)
			continue
		}

		mon.resetAttempts()
		mon.logger.Info("reconnected to backend")
		return true
	}
}

// drainReports discards failure reports queued while recovery ran;
// the session they complained about no longer exists.
func (mon *Monitor) drainReports() {
	for {
		select {
		case <-mon.failC:
		default:
			return
		}
	}
}
