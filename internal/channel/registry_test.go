package channel

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/gorilla/websocket"
)

func TestRegistryGetOrCreateReturnsSameChannel(t *testing.T) {
	reg := NewRegistry()
	a := reg.GetOrCreate("default", "vm-a")
	b := reg.GetOrCreate("default", "vm-a")
	if a != b {
		t.Fatalf("expected GetOrCreate to return the same channel instance")
	}
	if len(reg.Values()) != 1 {
		t.Fatalf("expected exactly one registered channel, got %d", len(reg.Values()))
	}
}

func TestRegistryRemoveDeletesChannel(t *testing.T) {
	reg := NewRegistry()
	reg.GetOrCreate("default", "vm-a")
	reg.Remove("default", "vm-a")
	if _, ok := reg.Get("default", "vm-a"); ok {
		t.Fatalf("expected channel to be removed")
	}
}

func TestChannelDispatchWithoutConnectionFails(t *testing.T) {
	ch := newChannel("default", "vm-a")
	if err := ch.Dispatch(FrameResetVm, ResetVmPayload{ResetCount: 1}); err != ErrNotConnected {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

// TestConnectHandlerRoundTrip exercises the full accept path: a fake runner
// dials ConnectHandler, the registry attaches it to a Channel, a dispatch
// reaches the socket, and a status_report frame reaches the StatusHandler.
func TestConnectHandlerRoundTrip(t *testing.T) {
	reg := NewRegistry()
	reported := make(chan StatusReportPayload, 1)
	reg.StatusHandler = func(namespace, name string, payload StatusReportPayload) {
		reported <- payload
	}

	srv := httptest.NewServer(reg.ConnectHandler(logr.Discard()))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + RunnerConnectPath + "?namespace=default&name=vm-a"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer ws.Close()

	// give the server goroutine a moment to attach the connection.
	var ch *Channel
	for i := 0; i < 50; i++ {
		if c, ok := reg.Get("default", "vm-a"); ok && c.Connected() {
			ch = c
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if ch == nil {
		t.Fatalf("channel never attached")
	}

	if err := ch.Dispatch(FrameResetVm, ResetVmPayload{ResetCount: 3}); err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if env.Type != FrameResetVm {
		t.Fatalf("expected reset_vm frame, got %s", env.Type)
	}

	status := Envelope{Type: FrameStatusReport}
	status.Payload, _ = json.Marshal(StatusReportPayload{Running: true, Cpus: 2})
	payload, _ := json.Marshal(status)
	if err := ws.WriteMessage(websocket.TextMessage, payload); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	select {
	case got := <-reported:
		if !got.Running || got.Cpus != 2 {
			t.Fatalf("unexpected status payload: %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("status handler was never invoked")
	}
}
