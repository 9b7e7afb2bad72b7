package runner

import (
	"context"
	"encoding/json"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/gorilla/websocket"

	"vmoperator.jdrupes.org/vm-operator/internal/channel"
	"vmoperator.jdrupes.org/vm-operator/internal/qmp"
)

func startFakeMonitor(t *testing.T, cpus int, running bool) *qmp.Monitor {
	t.Helper()
	sock := filepath.Join(t.TempDir(), "qmp.sock")
	ln, err := net.Listen("unix", sock)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		conn.Write([]byte(`{"QMP": {"version": {}, "capabilities": []}}` + "\n"))
		dec := json.NewDecoder(conn)
		for {
			var frame struct {
				Execute string `json:"execute"`
			}
			if err := dec.Decode(&frame); err != nil {
				return
			}
			switch frame.Execute {
			case "qmp_capabilities":
				conn.Write([]byte(`{"return": {}}` + "\n"))
			case "query-cpus-fast":
				entries := make([]queryCpusFastEntry, cpus)
				raw, _ := json.Marshal(entries)
				resp, _ := json.Marshal(struct {
					Return json.RawMessage `json:"return"`
				}{raw})
				conn.Write(append(resp, '\n'))
			case "query-status":
				raw, _ := json.Marshal(queryStatusResult{Running: running, Status: "running"})
				resp, _ := json.Marshal(struct {
					Return json.RawMessage `json:"return"`
				}{raw})
				conn.Write(append(resp, '\n'))
			case "query-memory-size-summary":
				raw, _ := json.Marshal(queryMemorySizeSummaryResult{BaseMemory: 2 << 30})
				resp, _ := json.Marshal(struct {
					Return json.RawMessage `json:"return"`
				}{raw})
				conn.Write(append(resp, '\n'))
			}
		}
	}()

	mon, err := qmp.Dial(context.Background(), sock, logr.Discard())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { mon.Close() })
	return mon
}

func startFakeConnection(t *testing.T) (*Connection, chan channel.StatusReportPayload) {
	t.Helper()
	reports := make(chan channel.StatusReportPayload, 8)
	url := startFakeController(t, func(ws *websocket.Conn) {
		defer ws.Close()
		for {
			_, raw, err := ws.ReadMessage()
			if err != nil {
				return
			}
			var env channel.Envelope
			if json.Unmarshal(raw, &env) != nil {
				continue
			}
			if env.Type != channel.FrameStatusReport {
				continue
			}
			var payload channel.StatusReportPayload
			json.Unmarshal(env.Payload, &payload)
			reports <- payload
		}
	})

	cfg := Config{Namespace: "default", Name: "vm-a", ControllerURL: url}
	conn := NewConnection(cfg, logr.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go conn.Run(ctx)
	return conn, reports
}

func TestStatusReporterReportsQMPObservedState(t *testing.T) {
	mon := startFakeMonitor(t, 3, true)
	conn, reports := startFakeConnection(t)

	// give the connection goroutine time to dial and register before the
	// first report is sent.
	time.Sleep(50 * time.Millisecond)

	reporter := NewStatusReporter(conn, mon, Config{}, logr.Discard())
	reporter.SetConsoleUser("alice")
	reporter.SetResetCount(2)
	reporter.report(context.Background())

	var got channel.StatusReportPayload
	select {
	case got = <-reports:
	case <-time.After(2 * time.Second):
		t.Fatalf("status report never reached the controller")
	}

	if got.Cpus != 3 {
		t.Fatalf("expected 3 cpus, got %d", got.Cpus)
	}
	if !got.Running {
		t.Fatalf("expected running=true")
	}
	if got.ConsoleUser != "alice" {
		t.Fatalf("expected console user alice, got %s", got.ConsoleUser)
	}
	if got.ResetCount != 2 {
		t.Fatalf("expected reset count 2, got %d", got.ResetCount)
	}
	if got.RamBytes != 2<<30 {
		t.Fatalf("expected 2GiB ram, got %d", got.RamBytes)
	}
}

func TestStatusReporterSetResetCountIsMonotonic(t *testing.T) {
	reporter := &StatusReporter{resetCount: 5}
	reporter.SetResetCount(3)
	if reporter.resetCount != 5 {
		t.Fatalf("expected resetCount to stay at 5, got %d", reporter.resetCount)
	}
	reporter.SetResetCount(7)
	if reporter.resetCount != 7 {
		t.Fatalf("expected resetCount to advance to 7, got %d", reporter.resetCount)
	}
}
