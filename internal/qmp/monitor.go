// Package qmp implements the QEMU Machine Protocol monitor client (R6):
// line-delimited JSON over a UNIX stream socket, command/response
// correlation, and asynchronous event dispatch (spec.md §4.6).
//
// There is no QMP client anywhere in the retrieval pack; this is built on
// net + bufio.Scanner directly (DESIGN.md: stdlib justification — the wire
// format is a a few lines of scanning, not worth a dependency).
package qmp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/go-logr/logr"
)

// ErrDisconnected is returned to outstanding commands when the socket
// closes before a reply arrives (spec.md §4.6 "Ordering guarantees").
var ErrDisconnected = errors.New("qmp: monitor disconnected")

// Event is one asynchronous {"event": ..., "data": ...} frame.
type Event struct {
	Name      string          `json:"event"`
	Data      json.RawMessage `json:"data"`
	Timestamp struct {
		Seconds      int64 `json:"seconds"`
		Microseconds int64 `json:"microseconds"`
	} `json:"timestamp"`
}

// EventHandler is invoked for every event received; handlers run on the
// monitor's read loop goroutine and must not block.
type EventHandler func(Event)

type pendingCommand struct {
	replyCh chan rawReply
}

type rawReply struct {
	result       json.RawMessage
	errMsg       *qmpError
	disconnected bool
}

type qmpError struct {
	Class string `json:"class"`
	Desc  string `json:"desc"`
}

func (e *qmpError) Error() string { return fmt.Sprintf("qmp error (%s): %s", e.Class, e.Desc) }

// Monitor is one connected QMP session. Commands are serialised: execute
// blocks until its own reply is read, but callers may call execute
// concurrently from multiple goroutines — the FIFO queue pairs replies to
// the correct waiter in issue order.
type Monitor struct {
	conn net.Conn
	log  logr.Logger

	// mu guards both the pending queue and the wire write in Execute: the
	// two must happen atomically with respect to other Execute callers, or
	// two concurrent commands can enqueue in one order and hit the socket
	// in the other, breaking the FIFO reply-ordering guarantee (spec.md
	// §4.6). It also guards closed and onEvent.
	mu      sync.Mutex
	pending []*pendingCommand
	closed  bool

	onEvent EventHandler
}

// Dial connects to the QMP UNIX socket at path, reads the greeting banner,
// and negotiates capabilities before returning (spec.md §4.6 "Protocol").
func Dial(ctx context.Context, path string, log logr.Logger) (*Monitor, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return nil, fmt.Errorf("dial qmp socket %s: %w", path, err)
	}

	m := &Monitor{conn: conn, log: log}
	reader := bufio.NewScanner(conn)
	reader.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	if !reader.Scan() {
		conn.Close()
		return nil, fmt.Errorf("read qmp greeting: %w", reader.Err())
	}
	var greeting struct {
		QMP json.RawMessage `json:"QMP"`
	}
	if err := json.Unmarshal(reader.Bytes(), &greeting); err != nil || greeting.QMP == nil {
		conn.Close()
		return nil, fmt.Errorf("unexpected qmp greeting: %s", reader.Text())
	}

	go m.readLoop(reader)

	if _, err := m.Execute(ctx, "qmp_capabilities", nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("qmp_capabilities: %w", err)
	}
	return m, nil
}

// OnEvent registers the handler invoked for every incoming event frame.
// Only one handler is supported; callers that need fan-out dispatch from
// within it.
func (m *Monitor) OnEvent(h EventHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onEvent = h
}

// Execute sends {"execute": command, "arguments": args} and waits for the
// matching reply. Commands complete in issue order (spec.md §4.6).
func (m *Monitor) Execute(ctx context.Context, command string, args any) (json.RawMessage, error) {
	frame := struct {
		Execute   string `json:"execute"`
		Arguments any    `json:"arguments,omitempty"`
	}{Execute: command, Arguments: args}

	raw, err := json.Marshal(frame)
	if err != nil {
		return nil, fmt.Errorf("marshal qmp command %s: %w", command, err)
	}

	pc := &pendingCommand{replyCh: make(chan rawReply, 1)}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrDisconnected
	}
	m.pending = append(m.pending, pc)
	_, writeErr := m.conn.Write(append(raw, '\n'))
	m.mu.Unlock()
	if writeErr != nil {
		return nil, fmt.Errorf("write qmp command %s: %w", command, writeErr)
	}

	select {
	case reply := <-pc.replyCh:
		if reply.disconnected {
			return nil, ErrDisconnected
		}
		if reply.errMsg != nil {
			return nil, reply.errMsg
		}
		return reply.result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close closes the underlying socket; any commands still awaiting a reply
// fail with ErrDisconnected.
func (m *Monitor) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return m.conn.Close()
}

func (m *Monitor) readLoop(scanner *bufio.Scanner) {
	defer m.failPending()

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var probe struct {
			Event  string          `json:"event"`
			Return json.RawMessage `json:"return"`
			Error  *qmpError       `json:"error"`
		}
		if err := json.Unmarshal(line, &probe); err != nil {
			m.log.Error(err, "malformed qmp frame", "line", string(line))
			continue
		}

		switch {
		case probe.Event != "":
			var ev Event
			if err := json.Unmarshal(line, &ev); err != nil {
				m.log.Error(err, "malformed qmp event")
				continue
			}
			m.dispatchEvent(ev)
		default:
			m.completeNext(rawReply{result: probe.Return, errMsg: probe.Error})
		}
	}
}

func (m *Monitor) dispatchEvent(ev Event) {
	m.mu.Lock()
	h := m.onEvent
	m.mu.Unlock()
	if h != nil {
		h(ev)
	}
}

// completeNext pairs the next outstanding command with reply — replies and
// commands are strictly FIFO (spec.md §4.6).
func (m *Monitor) completeNext(reply rawReply) {
	m.mu.Lock()
	if len(m.pending) == 0 {
		m.mu.Unlock()
		m.log.Info("qmp reply with no outstanding command")
		return
	}
	pc := m.pending[0]
	m.pending = m.pending[1:]
	m.mu.Unlock()
	pc.replyCh <- reply
}

func (m *Monitor) failPending() {
	m.mu.Lock()
	m.closed = true
	pending := m.pending
	m.pending = nil
	m.mu.Unlock()
	for _, pc := range pending {
		pc.replyCh <- rawReply{disconnected: true}
	}
}
