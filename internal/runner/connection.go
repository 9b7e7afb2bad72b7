package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/go-logr/logr"
	"github.com/gorilla/websocket"

	"vmoperator.jdrupes.org/vm-operator/internal/channel"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// defaultReconnectBackoff mirrors the teacher's static reconnect-attempt
// schedule (agents/k8s-agent/internal/config/config.go's ReconnectBackoff),
// expressed in seconds.
var defaultReconnectBackoff = []int{1, 2, 5, 10, 30, 30, 30}

// ModifyHandler applies one hot-applicable field change.
type ModifyHandler func(ctx context.Context, path, value string) error

// ResetHandler applies a guest reset request.
type ResetHandler func(ctx context.Context, resetCount int64) error

// Connection is the runner's outbound WebSocket connection to the
// Controller: dial (naming the VM in the URL's query), then a single-writer write pump and a read
// pump dispatching ModifyVm/ResetVm frames — grounded on
// agents/k8s-agent/connection.go's Connect/readPump/writePump/Reconnect,
// adapted from one shared control-plane socket to one Controller connection
// scoped to the single VM this runner supervises.
type Connection struct {
	cfg Config
	log logr.Logger

	OnModify ModifyHandler
	OnReset  ResetHandler

	ws        *websocket.Conn
	writeChan chan channel.Envelope
	done      chan struct{}
}

// NewConnection constructs an unconnected Connection; callers set OnModify
// and OnReset before calling Run.
func NewConnection(cfg Config, log logr.Logger) *Connection {
	return &Connection{cfg: cfg, log: log}
}

// Run dials the Controller and serves the connection until ctx is
// cancelled, reconnecting with the configured backoff schedule on failure.
func (c *Connection) Run(ctx context.Context) {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}
		if err := c.connectAndServe(ctx); err != nil {
			c.log.Error(err, "controller connection lost")
		}
		if ctx.Err() != nil {
			return
		}

		wait := defaultReconnectBackoff[attempt]
		if attempt < len(defaultReconnectBackoff)-1 {
			attempt++
		}
		c.log.Info("reconnecting to controller", "waitSeconds", wait)
		select {
		case <-time.After(time.Duration(wait) * time.Second):
		case <-ctx.Done():
			return
		}
	}
}

func (c *Connection) connectAndServe(ctx context.Context) error {
	dialURL := fmt.Sprintf("%s%s?namespace=%s&name=%s",
		c.cfg.ControllerURL, channel.RunnerConnectPath,
		url.QueryEscape(c.cfg.Namespace), url.QueryEscape(c.cfg.Name))

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	ws, _, err := dialer.DialContext(ctx, dialURL, nil)
	if err != nil {
		return fmt.Errorf("dial controller: %w", err)
	}
	c.log.Info("connected to controller", "url", dialURL)

	c.ws = ws
	c.writeChan = make(chan channel.Envelope, 64)
	c.done = make(chan struct{})
	defer func() {
		close(c.done)
		ws.Close()
	}()

	go c.writePump()
	return c.readPump()
}

// Send enqueues a frame for transmission; it is the only way the rest of
// the runner talks back to the Controller (status reports).
func (c *Connection) Send(t channel.FrameType, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", t, err)
	}
	env := channel.Envelope{Type: t, Payload: raw}
	select {
	case c.writeChan <- env:
		return nil
	case <-c.done:
		return fmt.Errorf("connection closed")
	case <-time.After(writeWait):
		return fmt.Errorf("write queue full")
	}
}

func (c *Connection) readPump() error {
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		var env channel.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			c.log.Error(err, "malformed frame from controller")
			continue
		}
		c.handle(env)
	}
}

func (c *Connection) handle(env channel.Envelope) {
	ctx := context.Background()
	switch env.Type {
	case channel.FrameModifyVm:
		var payload channel.ModifyVmPayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			c.log.Error(err, "malformed modify_vm payload")
			return
		}
		if c.OnModify == nil {
			return
		}
		if err := c.OnModify(ctx, payload.Path, payload.Value); err != nil {
			c.log.Error(err, "modify_vm failed", "path", payload.Path)
		}
	case channel.FrameResetVm:
		var payload channel.ResetVmPayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			c.log.Error(err, "malformed reset_vm payload")
			return
		}
		if c.OnReset == nil {
			return
		}
		if err := c.OnReset(ctx, payload.ResetCount); err != nil {
			c.log.Error(err, "reset_vm failed")
		}
	case channel.FramePing:
		// the gorilla ping/pong handshake already answered at the protocol
		// level; nothing application-level to do.
	default:
		c.log.Info("unexpected frame from controller", "type", env.Type)
	}
}

func (c *Connection) writePump() {
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
