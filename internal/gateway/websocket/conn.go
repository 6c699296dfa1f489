// Package websocket pushes live snapshots to widget and admin browsers.
// Each connection owns its subscriptions and releases them when it closes.
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"support_chat_server/pkg/constants"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxFrameSize   = 4096
	frameMessages  = "messages"
	frameSessions  = "sessions"
	frameError     = "error"
	frameSelected  = "selected"
	actionSelect   = "select"
	actionUnselect = "unselect"
)

// Frame is one server push.
type Frame struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId,omitempty"`
	Data      any    `json:"data,omitempty"`
	Error     string `json:"error,omitempty"`
}

// ClientFrame is a request sent by an admin connection.
type ClientFrame struct {
	Action    string `json:"action"`
	SessionID string `json:"sessionId"`
	Limit     int    `json:"limit"`
}

// Conn is one browser connection. Snapshots are queued on send and written by
// writeLoop; a client that cannot keep up is disconnected.
type Conn struct {
	ws     *websocket.Conn
	send   chan []byte
	ctx    context.Context
	cancel context.CancelFunc
	kind   string

	mu     sync.Mutex
	unsubs map[string]func()
}

func newConn(ws *websocket.Conn, kind string) *Conn {
	ctx, cancel := context.WithCancel(context.Background())
	return &Conn{
		ws:     ws,
		send:   make(chan []byte, constants.CHANNEL_SIZE),
		ctx:    ctx,
		cancel: cancel,
		kind:   kind,
		unsubs: make(map[string]func()),
	}
}

// push queues a frame without blocking the caller, which is a store dispatcher.
func (c *Conn) push(f Frame) {
	raw, err := json.Marshal(f)
	if err != nil {
		zap.L().Error("encode ws frame failed", zap.String("type", f.Type), zap.Error(err))
		return
	}
	select {
	case <-c.ctx.Done():
	case c.send <- raw:
	default:
		zap.L().Warn("ws client too slow, closing", zap.String("kind", c.kind))
		c.close()
	}
}

// track stores the unsubscribe func of a named subscription, releasing the previous one.
func (c *Conn) track(name string, unsub func()) {
	c.mu.Lock()
	prev := c.unsubs[name]
	c.unsubs[name] = unsub
	c.mu.Unlock()
	if prev != nil {
		prev()
	}
}

func (c *Conn) release(name string) {
	c.mu.Lock()
	unsub := c.unsubs[name]
	delete(c.unsubs, name)
	c.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

// close cancels every subscription and ends both loops.
func (c *Conn) close() {
	c.cancel()
	c.mu.Lock()
	unsubs := c.unsubs
	c.unsubs = map[string]func(){}
	c.mu.Unlock()
	for _, unsub := range unsubs {
		unsub()
	}
}

// readLoop hands client frames to handle until the connection fails.
func (c *Conn) readLoop(handle func(ClientFrame)) {
	defer c.close()
	c.ws.SetReadLimit(maxFrameSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				zap.L().Warn("ws read failed", zap.String("kind", c.kind), zap.Error(err))
			}
			return
		}
		if handle == nil {
			continue
		}
		var f ClientFrame
		if err := json.Unmarshal(raw, &f); err != nil {
			c.push(Frame{Type: frameError, Error: "malformed frame"})
			continue
		}
		handle(f)
	}
}

func (c *Conn) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()
	for {
		select {
		case <-c.ctx.Done():
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		case raw := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, raw); err != nil {
				zap.L().Warn("ws write failed", zap.String("kind", c.kind), zap.Error(err))
				c.close()
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		}
	}
}

// fail writes one frame directly and closes; used before the loops start.
func (c *Conn) fail(f Frame) {
	c.close()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	_ = c.ws.WriteJSON(f)
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, f.Error), time.Now().Add(writeWait))
	_ = c.ws.Close()
}

func newUpgrader(allowOrigins []string) websocket.Upgrader {
	allowAll := len(allowOrigins) == 0
	allowed := make(map[string]bool, len(allowOrigins))
	for _, o := range allowOrigins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = true
	}
	return websocket.Upgrader{
		ReadBufferSize:  2048,
		WriteBufferSize: 2048,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return allowAll || origin == "" || allowed[origin]
		},
	}
}
