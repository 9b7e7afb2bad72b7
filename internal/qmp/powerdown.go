package qmp

import (
	"context"
	"time"
)

// PowerdownOutcome reports how a guest powerdown request resolved
// (spec.md §4.6 "Powerdown sequence").
type PowerdownOutcome int

const (
	// PowerdownShutdown means the monitor observed a SHUTDOWN event — the
	// guest powered off.
	PowerdownShutdown PowerdownOutcome = iota
	// PowerdownUnresponsive means QEMU never acknowledged system_powerdown
	// within the 5s confirmation window; the guest is presumed wedged or
	// ACPI-unaware.
	PowerdownUnresponsive
	// PowerdownTimeout means the guest acknowledged but never shut down
	// within the configured powerdownTimeout.
	PowerdownTimeout
)

const confirmationWindow = 5 * time.Second

// Powerdown issues system_powerdown and waits for it to resolve: a 5s
// confirmation timer for the command's own reply, then a second timer of
// timeout for the guest to actually exit. shutdownCh receives a value when
// the caller's event handler observes a SHUTDOWN event; reschedule allows
// the caller to extend the timeout if powerdownTimeout changes while the
// wait is pending (spec.md §4.6 step 3).
func (m *Monitor) Powerdown(ctx context.Context, timeout time.Duration, shutdownCh <-chan struct{}, reschedule <-chan time.Duration) (PowerdownOutcome, error) {
	confirmCtx, cancel := context.WithTimeout(ctx, confirmationWindow)
	defer cancel()

	_, err := m.Execute(confirmCtx, "system_powerdown", nil)
	if err != nil {
		if confirmCtx.Err() != nil {
			return PowerdownUnresponsive, nil
		}
		return PowerdownUnresponsive, err
	}

	powerdownStartedAt := time.Now()
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-shutdownCh:
			return PowerdownShutdown, nil
		case <-timer.C:
			return PowerdownTimeout, nil
		case d := <-reschedule:
			if !timer.Stop() {
				<-timer.C
			}
			// spec.md §4.6 step 3: the new timeout is an absolute deadline
			// measured from when the powerdown sequence started, not a
			// fresh relative wait from the moment of rescheduling.
			timer.Reset(time.Until(powerdownStartedAt.Add(d)))
		case <-ctx.Done():
			return PowerdownTimeout, ctx.Err()
		}
	}
}
