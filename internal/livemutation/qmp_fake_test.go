package livemutation

import (
	"context"
	"encoding/json"
	"net"
	"path/filepath"
	"testing"

	"github.com/go-logr/logr"

	"vmoperator.jdrupes.org/vm-operator/internal/qmp"
)

// fakeQMPServer is a minimal QEMU monitor peer used to exercise the
// sub-controllers against a real qmp.Monitor without a running VM.
type fakeQMPServer struct {
	conn    net.Conn
	handler func(command string, args json.RawMessage) (json.RawMessage, bool)
}

func startFakeQMPServer(t *testing.T, handler func(command string, args json.RawMessage) (json.RawMessage, bool)) (*fakeQMPServer, *qmp.Monitor) {
	t.Helper()
	sock := filepath.Join(t.TempDir(), "qmp.sock")
	ln, err := net.Listen("unix", sock)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	fs := &fakeQMPServer{handler: handler}
	accepted := make(chan struct{})
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		fs.conn = conn
		close(accepted)
		conn.Write([]byte(`{"QMP": {"version": {}, "capabilities": []}}` + "\n"))
		fs.serve(conn)
	}()

	mon, err := qmp.Dial(context.Background(), sock, logr.Discard())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { mon.Close() })
	<-accepted
	return fs, mon
}

func (fs *fakeQMPServer) serve(conn net.Conn) {
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
		result, ok := fs.handler(frame.Execute, frame.Arguments)
		if !ok {
			conn.Write([]byte(`{"error": {"class": "GenericError", "desc": "rejected"}}` + "\n"))
			continue
		}
		raw, _ := json.Marshal(struct {
			Return json.RawMessage `json:"return"`
		}{result})
		conn.Write(append(raw, '\n'))
	}
}

func (fs *fakeQMPServer) emit(event string, data any) {
	raw, _ := json.Marshal(data)
	frame, _ := json.Marshal(struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}{event, raw})
	fs.conn.Write(append(frame, '\n'))
}
