package qmp

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestPowerdownShutdownObserved(t *testing.T) {
	fs := startFakeServer(t, func(cmd string, args json.RawMessage) (json.RawMessage, *qmpError) {
		if cmd != "system_powerdown" {
			t.Fatalf("unexpected command %s", cmd)
		}
		return json.RawMessage(`{}`), nil
	})
	m := dialFake(t, fs)

	shutdownCh := make(chan struct{}, 1)
	shutdownCh <- struct{}{}

	outcome, err := m.Powerdown(context.Background(), time.Second, shutdownCh, nil)
	if err != nil {
		t.Fatalf("powerdown: %v", err)
	}
	if outcome != PowerdownShutdown {
		t.Fatalf("expected PowerdownShutdown, got %v", outcome)
	}
}

func TestPowerdownTimesOutWaitingForGuest(t *testing.T) {
	fs := startFakeServer(t, func(cmd string, args json.RawMessage) (json.RawMessage, *qmpError) {
		return json.RawMessage(`{}`), nil
	})
	m := dialFake(t, fs)

	outcome, err := m.Powerdown(context.Background(), 20*time.Millisecond, make(chan struct{}), nil)
	if err != nil {
		t.Fatalf("powerdown: %v", err)
	}
	if outcome != PowerdownTimeout {
		t.Fatalf("expected PowerdownTimeout, got %v", outcome)
	}
}

func TestPowerdownUnresponsiveWhenCommandNeverAcked(t *testing.T) {
	block := make(chan struct{})
	t.Cleanup(func() { close(block) })
	fs := startFakeServer(t, func(cmd string, args json.RawMessage) (json.RawMessage, *qmpError) {
		<-block
		return json.RawMessage(`{}`), nil
	})
	m := dialFake(t, fs)

	outcome, err := m.Powerdown(context.Background(), time.Second, make(chan struct{}), nil)
	if err != nil {
		t.Fatalf("powerdown: %v", err)
	}
	if outcome != PowerdownUnresponsive {
		t.Fatalf("expected PowerdownUnresponsive, got %v", outcome)
	}
}

func TestPowerdownRescheduleExtendsTimeout(t *testing.T) {
	fs := startFakeServer(t, func(cmd string, args json.RawMessage) (json.RawMessage, *qmpError) {
		return json.RawMessage(`{}`), nil
	})
	m := dialFake(t, fs)

	reschedule := make(chan time.Duration, 1)
	shutdownCh := make(chan struct{}, 1)

	go func() {
		time.Sleep(20 * time.Millisecond)
		reschedule <- 80 * time.Millisecond
		time.Sleep(30 * time.Millisecond)
		shutdownCh <- struct{}{}
	}()

	start := time.Now()
	outcome, err := m.Powerdown(context.Background(), 25*time.Millisecond, shutdownCh, reschedule)
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("powerdown: %v", err)
	}
	if outcome != PowerdownShutdown {
		t.Fatalf("expected PowerdownShutdown after reschedule, got %v", outcome)
	}
	if elapsed < 40*time.Millisecond {
		t.Fatalf("expected reschedule to extend the wait past the original timeout, elapsed %v", elapsed)
	}
}
