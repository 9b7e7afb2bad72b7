package runner

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/gorilla/websocket"

	"vmoperator.jdrupes.org/vm-operator/internal/channel"
)

func startFakeController(t *testing.T, onConnect func(ws *websocket.Conn)) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		onConnect(ws)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestConnectionSendDeliversFrame(t *testing.T) {
	received := make(chan channel.Envelope, 1)
	url := startFakeController(t, func(ws *websocket.Conn) {
		defer ws.Close()
		_, raw, err := ws.ReadMessage()
		if err != nil {
			return
		}
		var env channel.Envelope
		json.Unmarshal(raw, &env)
		received <- env
		time.Sleep(200 * time.Millisecond)
	})

	cfg := Config{Namespace: "default", Name: "vm-a", ControllerURL: url}
	conn := NewConnection(cfg, logr.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go conn.Run(ctx)

	var sendErr error
	for i := 0; i < 100; i++ {
		sendErr = conn.Send(channel.FrameStatusReport, channel.StatusReportPayload{Running: true})
		if sendErr == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if sendErr != nil {
		t.Fatalf("send never succeeded: %v", sendErr)
	}

	select {
	case env := <-received:
		if env.Type != channel.FrameStatusReport {
			t.Fatalf("expected status_report, got %s", env.Type)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("controller never received the frame")
	}
}

func TestConnectionDispatchesModifyVm(t *testing.T) {
	url := startFakeController(t, func(ws *websocket.Conn) {
		defer ws.Close()
		env := channel.Envelope{Type: channel.FrameModifyVm}
		env.Payload, _ = json.Marshal(channel.ModifyVmPayload{Path: "vm.currentCpus", Value: "4"})
		raw, _ := json.Marshal(env)
		ws.WriteMessage(websocket.TextMessage, raw)
		time.Sleep(300 * time.Millisecond)
	})

	cfg := Config{Namespace: "default", Name: "vm-a", ControllerURL: url}
	conn := NewConnection(cfg, logr.Discard())

	applied := make(chan string, 1)
	conn.OnModify = func(ctx context.Context, path, value string) error {
		applied <- path + "=" + value
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go conn.Run(ctx)

	select {
	case got := <-applied:
		if got != "vm.currentCpus=4" {
			t.Fatalf("unexpected modify dispatch: %s", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("OnModify was never invoked")
	}
}

func TestConnectionDispatchesResetVm(t *testing.T) {
	url := startFakeController(t, func(ws *websocket.Conn) {
		defer ws.Close()
		env := channel.Envelope{Type: channel.FrameResetVm}
		env.Payload, _ = json.Marshal(channel.ResetVmPayload{ResetCount: 5})
		raw, _ := json.Marshal(env)
		ws.WriteMessage(websocket.TextMessage, raw)
		time.Sleep(300 * time.Millisecond)
	})

	cfg := Config{Namespace: "default", Name: "vm-a", ControllerURL: url}
	conn := NewConnection(cfg, logr.Discard())

	reset := make(chan int64, 1)
	conn.OnReset = func(ctx context.Context, resetCount int64) error {
		reset <- resetCount
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go conn.Run(ctx)

	select {
	case got := <-reset:
		if got != 5 {
			t.Fatalf("expected reset count 5, got %d", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("OnReset was never invoked")
	}
}
