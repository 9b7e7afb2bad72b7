package livemutation

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestBalloonControllerAppliesTargetBytes(t *testing.T) {
	var gotBytes int64
	fs, mon := startFakeQMPServer(t, func(cmd string, args json.RawMessage) (json.RawMessage, bool) {
		if cmd != "balloon" {
			t.Fatalf("unexpected command %s", cmd)
		}
		var a struct {
			Value int64 `json:"value"`
		}
		json.Unmarshal(args, &a)
		gotBytes = a.Value
		return json.RawMessage(`{}`), true
	})
	_ = fs

	b := &BalloonController{}
	if err := b.Apply(context.Background(), mon, "2Gi"); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if gotBytes != 2*1024*1024*1024 {
		t.Fatalf("expected 2Gi in bytes, got %d", gotBytes)
	}
}

func TestBalloonControllerRetriesOnce(t *testing.T) {
	attempts := 0
	_, mon := startFakeQMPServer(t, func(cmd string, args json.RawMessage) (json.RawMessage, bool) {
		attempts++
		if attempts == 1 {
			return nil, false
		}
		return json.RawMessage(`{}`), true
	})

	b := &BalloonController{}
	start := time.Now()
	if err := b.Apply(context.Background(), mon, "1Gi"); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if attempts != 2 {
		t.Fatalf("expected exactly one retry (2 attempts), got %d", attempts)
	}
	if time.Since(start) < time.Second {
		t.Fatalf("expected the retry to wait roughly a second")
	}
}

func TestBalloonControllerInvalidQuantity(t *testing.T) {
	b := &BalloonController{}
	if err := b.Apply(context.Background(), nil, "not-a-quantity"); err == nil {
		t.Fatalf("expected an error for an invalid quantity")
	}
}
