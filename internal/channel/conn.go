package channel

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"github.com/gorilla/websocket"
)

// ErrNotConnected is returned by Channel.Dispatch when no runner is attached.
var ErrNotConnected = errors.New("channel: no runner connected")

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// runnerConn is the server side of one runner's WebSocket connection: a
// buffered write queue drained by a single writePump goroutine, grounded on
// the teacher's writeChan/writePump single-writer pattern
// (agents/k8s-agent/main.go) but running server-side and scoped to exactly
// one Channel rather than one shared control-plane connection.
type runnerConn struct {
	ws        *websocket.Conn
	channel   *Channel
	registry  *Registry
	log       logr.Logger
	writeChan chan Envelope
	done      chan struct{}
}

func newRunnerConn(ws *websocket.Conn, ch *Channel, reg *Registry, log logr.Logger) *runnerConn {
	return &runnerConn{
		ws:        ws,
		channel:   ch,
		registry:  reg,
		log:       log,
		writeChan: make(chan Envelope, 64),
		done:      make(chan struct{}),
	}
}

// enqueue queues env for transmission. It never blocks indefinitely: a full
// queue after writeWait indicates a stuck connection, which readPump/
// writePump will already be tearing down.
func (c *runnerConn) enqueue(env Envelope) error {
	select {
	case c.writeChan <- env:
		return nil
	case <-time.After(writeWait):
		return fmt.Errorf("channel %s/%s: write queue full", c.channel.Namespace, c.channel.Name)
	case <-c.done:
		return ErrNotConnected
	}
}

// run drives the connection until it closes, then detaches it from its
// Channel. Callers spawn run in its own goroutine per accepted connection.
func (c *runnerConn) run() {
	defer c.teardown()
	go c.writePump()
	c.readPump()
}

func (c *runnerConn) teardown() {
	c.channel.detach(c)
	close(c.done)
	c.ws.Close()
}

func (c *runnerConn) readPump() {
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Info("runner connection closed unexpectedly", "error", err)
			}
			return
		}
		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			c.log.Error(err, "malformed frame from runner")
			continue
		}
		c.handle(env)
	}
}

func (c *runnerConn) handle(env Envelope) {
	switch env.Type {
	case FrameStatusReport:
		var payload StatusReportPayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			c.log.Error(err, "malformed status_report payload")
			return
		}
		if c.registry.StatusHandler != nil {
			c.registry.StatusHandler(c.channel.Namespace, c.channel.Name, payload)
		}
	case FramePong:
		// a JSON pong carries nothing to act on; the read deadline is
		// extended only by WebSocket control pongs.
	default:
		c.log.Info("unexpected frame type from runner", "type", env.Type)
	}
}

func (c *runnerConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case env, ok := <-c.writeChan:
			if !ok {
				return
			}
			raw, err := json.Marshal(env)
			if err != nil {
				c.log.Error(err, "failed to marshal envelope")
				continue
			}
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, raw); err != nil {
				c.log.Error(err, "write failed, closing connection")
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}
