package qmp

import (
	"context"
	"encoding/json"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-logr/logr"
)

// fakeServer is a minimal QMP peer: it writes the greeting banner on accept,
// acknowledges qmp_capabilities, and otherwise replies through the supplied
// handler or emits events pushed on demand.
type fakeServer struct {
	ln      net.Listener
	conn    net.Conn
	handler func(command string, args json.RawMessage) (json.RawMessage, *qmpError)
}

func startFakeServer(t *testing.T, handler func(command string, args json.RawMessage) (json.RawMessage, *qmpError)) *fakeServer {
	t.Helper()
	sock := filepath.Join(t.TempDir(), "qmp.sock")
	ln, err := net.Listen("unix", sock)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	fs := &fakeServer{ln: ln, handler: handler}

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		fs.conn = conn
		conn.Write([]byte(`{"QMP": {"version": {}, "capabilities": []}}` + "\n"))
		fs.serve(conn)
	}()

	t.Cleanup(func() { ln.Close() })
	return fs
}

func (fs *fakeServer) serve(conn net.Conn) {
	dec := json.NewDecoder(conn)
	for {
		var frame struct {
			Execute   string          `json:"execute"`
			Arguments json.RawMessage `json:"arguments"`
		}
		if err := dec.Decode(&frame); err != nil {
			return
		}
		if frame.Execute == "qmp_capabilities" {
			conn.Write([]byte(`{"return": {}}` + "\n"))
			continue
		}
		result, qerr := fs.handler(frame.Execute, frame.Arguments)
		if qerr != nil {
			raw, _ := json.Marshal(struct {
				Error *qmpError `json:"error"`
			}{qerr})
			conn.Write(append(raw, '\n'))
			continue
		}
		raw, _ := json.Marshal(struct {
			Return json.RawMessage `json:"return"`
		}{result})
		conn.Write(append(raw, '\n'))
	}
}

func (fs *fakeServer) emit(event string, data any) {
	raw, _ := json.Marshal(data)
	frame, _ := json.Marshal(struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}{event, raw})
	fs.conn.Write(append(frame, '\n'))
}

func dialFake(t *testing.T, fs *fakeServer) *Monitor {
	t.Helper()
	m, err := Dial(context.Background(), fs.ln.Addr().String(), logr.Discard())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}

func TestDialNegotiatesCapabilities(t *testing.T) {
	fs := startFakeServer(t, func(cmd string, args json.RawMessage) (json.RawMessage, *qmpError) {
		t.Fatalf("unexpected command %s", cmd)
		return nil, nil
	})
	dialFake(t, fs)
}

func TestExecuteReturnsResult(t *testing.T) {
	fs := startFakeServer(t, func(cmd string, args json.RawMessage) (json.RawMessage, *qmpError) {
		if cmd != "query-status" {
			t.Fatalf("unexpected command %s", cmd)
		}
		return json.RawMessage(`{"status": "running"}`), nil
	})
	m := dialFake(t, fs)

	raw, err := m.Execute(context.Background(), "query-status", nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	var result struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if result.Status != "running" {
		t.Fatalf("expected running, got %s", result.Status)
	}
}

func TestExecuteReturnsQMPError(t *testing.T) {
	fs := startFakeServer(t, func(cmd string, args json.RawMessage) (json.RawMessage, *qmpError) {
		return nil, &qmpError{Class: "GenericError", Desc: "device not found"}
	})
	m := dialFake(t, fs)

	_, err := m.Execute(context.Background(), "device_del", map[string]any{"id": "nope"})
	if err == nil {
		t.Fatalf("expected error")
	}
	if err.Error() != "qmp error (GenericError): device not found" {
		t.Fatalf("unexpected error message: %v", err)
	}
}

func TestExecuteOrdersRepliesFIFO(t *testing.T) {
	fs := startFakeServer(t, func(cmd string, args json.RawMessage) (json.RawMessage, *qmpError) {
		return json.RawMessage(`"` + cmd + `"`), nil
	})
	m := dialFake(t, fs)

	type result struct {
		command string
		value   string
	}
	results := make(chan result, 2)
	for _, cmd := range []string{"cmd-a", "cmd-b"} {
		cmd := cmd
		go func() {
			raw, err := m.Execute(context.Background(), cmd, nil)
			if err != nil {
				t.Errorf("execute %s: %v", cmd, err)
				return
			}
			var v string
			json.Unmarshal(raw, &v)
			results <- result{cmd, v}
		}()
	}

	for i := 0; i < 2; i++ {
		select {
		case r := <-results:
			if r.command != r.value {
				t.Fatalf("expected reply for %s to echo its own command, got %s", r.command, r.value)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for results")
		}
	}
}

func TestOnEventDispatchesEvents(t *testing.T) {
	fs := startFakeServer(t, func(cmd string, args json.RawMessage) (json.RawMessage, *qmpError) {
		return json.RawMessage(`{}`), nil
	})
	m := dialFake(t, fs)

	events := make(chan Event, 1)
	m.OnEvent(func(ev Event) { events <- ev })
	fs.emit("SHUTDOWN", map[string]any{"guest": true})

	select {
	case ev := <-events:
		if ev.Name != "SHUTDOWN" {
			t.Fatalf("expected SHUTDOWN, got %s", ev.Name)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("event was never dispatched")
	}
}

func TestCloseFailsPendingCommands(t *testing.T) {
	block := make(chan struct{})
	fs := startFakeServer(t, func(cmd string, args json.RawMessage) (json.RawMessage, *qmpError) {
		<-block // never reply
		return nil, nil
	})
	m := dialFake(t, fs)

	done := make(chan error, 1)
	go func() {
		_, err := m.Execute(context.Background(), "query-status", nil)
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	m.Close()
	close(block)

	select {
	case err := <-done:
		if err == nil {
			t.Fatalf("expected an error after close")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("execute never returned after close")
	}
}

func TestExecuteAfterCloseReturnsErrDisconnected(t *testing.T) {
	fs := startFakeServer(t, func(cmd string, args json.RawMessage) (json.RawMessage, *qmpError) {
		return json.RawMessage(`{}`), nil
	})
	m := dialFake(t, fs)
	m.Close()

	_, err := m.Execute(context.Background(), "query-status", nil)
	if err != ErrDisconnected {
		t.Fatalf("expected ErrDisconnected, got %v", err)
	}
}
