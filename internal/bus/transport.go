package bus

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mxf-project/mxf/internal/observability"
)

// Transport settings mirroring the teacher's duplex websocket control
// plane (internal/gateway/ws_control_plane.go).
const (
	maxPayloadBytes  = 1 << 20
	writeWait        = 10 * time.Second
	pongWait         = 45 * time.Second
	pingInterval     = 15 * time.Second
)

// Frame is the wire-level JSON envelope used by the duplex transport. It
// carries the same logical schema as Envelope, plus request/response
// bookkeeping for handshake and RPC-style calls.
type Frame struct {
	Type      string          `json:"type"`
	ChannelID string          `json:"channelId,omitempty"`
	AgentID   string          `json:"agentId,omitempty"`
	RequestID string          `json:"requestId,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Conn wraps one duplex websocket connection, translating between wire
// Frames and bus Envelopes.
type Conn struct {
	ws     *websocket.Conn
	logger *observability.Logger
}

// Upgrader builds gorilla/websocket upgraders configured per the
// teacher's buffer sizing.
var Upgrader = websocket.Upgrader{
	ReadBufferSize:  8192,
	WriteBufferSize: 8192,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// NewConn upgrades an HTTP request to a duplex websocket connection.
func NewConn(w http.ResponseWriter, r *http.Request, logger *observability.Logger) (*Conn, error) {
	ws, err := Upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	ws.SetReadLimit(maxPayloadBytes)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	return &Conn{ws: ws, logger: logger}, nil
}

// ReadFrame blocks for the next inbound frame.
func (c *Conn) ReadFrame() (*Frame, error) {
	var f Frame
	if err := c.ws.ReadJSON(&f); err != nil {
		return nil, err
	}
	return &f, nil
}

// WriteFrame sends a frame to the client, honoring the write deadline.
func (c *Conn) WriteFrame(f *Frame) error {
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteJSON(f)
}

// WriteEnvelope adapts a bus Envelope onto the wire as a Frame.
func (c *Conn) WriteEnvelope(env *Envelope) error {
	data, err := json.Marshal(env.Data)
	if err != nil {
		return err
	}
	return c.WriteFrame(&Frame{
		Type:      env.Type,
		ChannelID: env.ChannelID,
		AgentID:   env.AgentID,
		Data:      data,
		Timestamp: env.Timestamp,
	})
}

// Pump relays every envelope from sub onto the wire until ctx is done or
// the subscription is closed. Intended to run in its own goroutine per
// connection.
func (c *Conn) Pump(ctx context.Context, sub *Subscription) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := c.WriteEnvelope(env); err != nil {
				if c.logger != nil {
					c.logger.Warn(ctx, "transport write failed", "error", err)
				}
				return
			}
		case <-ticker.C:
			_ = c.ws.WriteMessage(websocket.PingMessage, nil)
		}
	}
}

// Close closes the underlying websocket connection.
func (c *Conn) Close() error { return c.ws.Close() }
