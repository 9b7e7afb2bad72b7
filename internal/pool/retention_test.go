package pool

import (
	"testing"
	"time"
)

func TestParseRetentionDuration(t *testing.T) {
	r, err := ParseRetention("PT1H")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.isInstant {
		t.Fatalf("expected a duration retention")
	}
	if r.duration != time.Hour {
		t.Fatalf("expected 1h, got %v", r.duration)
	}
}

func TestParseRetentionInstant(t *testing.T) {
	r, err := ParseRetention("2026-01-01T00:00:00Z")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !r.isInstant {
		t.Fatalf("expected an instant retention")
	}
}

func TestParseRetentionRejectsGarbage(t *testing.T) {
	if _, err := ParseRetention("not-a-retention"); err == nil {
		t.Fatalf("expected an error")
	}
	if _, err := ParseRetention("P"); err == nil {
		t.Fatalf("expected an error for an empty duration")
	}
}

func TestDurationRetentionExpired(t *testing.T) {
	r, err := ParseRetention("PT1H")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	lastUsed := time.Now().Add(-2 * time.Hour)
	if !r.Expired(lastUsed, time.Now()) {
		t.Fatalf("expected assignment from 2h ago to be expired under a 1h retention")
	}
	if r.Expired(time.Now(), time.Now()) {
		t.Fatalf("expected a fresh assignment to not be expired")
	}
}

func TestInstantRetentionExpired(t *testing.T) {
	r, err := ParseRetention("2000-01-01T00:00:00Z")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !r.Expired(time.Now(), time.Now()) {
		t.Fatalf("expected a past instant retention to be already expired")
	}
}
