package websocket

import (
	"context"
	"net/http"

	"support_chat_server/internal/model"
	"support_chat_server/pkg/errorx"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WidgetFeed is the customer subscription surface.
type WidgetFeed interface {
	Subscribe(ctx context.Context, sessionID string, limit int, fn func([]model.Message, error)) (func(), error)
}

// InboxFeed is the admin subscription surface.
type InboxFeed interface {
	SubscribeSessions(ctx context.Context, fn func([]model.Session, error)) (func(), error)
	SubscribeMessages(ctx context.Context, sessionID string, limit int, fn func([]model.Message, error)) (func(), error)
}

// Gateway upgrades HTTP requests and wires connections to live subscriptions.
type Gateway struct {
	widget   WidgetFeed
	inbox    InboxFeed
	upgrader websocket.Upgrader
}

func NewGateway(widget WidgetFeed, inbox InboxFeed, allowOrigins []string) *Gateway {
	return &Gateway{widget: widget, inbox: inbox, upgrader: newUpgrader(allowOrigins)}
}

// ServeWidget streams the newest window of one session until the browser goes away.
func (g *Gateway) ServeWidget(w http.ResponseWriter, r *http.Request, sessionID string, limit int) {
	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader already answered with an HTTP error
		zap.L().Warn("ws upgrade failed", zap.Error(err))
		return
	}
	c := newConn(ws, "widget")
	unsub, err := g.widget.Subscribe(c.ctx, sessionID, limit, messagesPusher(c, sessionID))
	if err != nil {
		c.fail(Frame{Type: frameError, SessionID: sessionID, Error: errorText(err)})
		return
	}
	c.track("messages", unsub)
	zap.L().Info("widget ws connected", zap.String("session_id", sessionID))

	go c.writeLoop()
	c.readLoop(nil)
	zap.L().Info("widget ws closed", zap.String("session_id", sessionID))
}

// ServeAdmin streams the session list and, after a select frame, the window of the
// selected session. Selecting another session replaces the previous subscription;
// message frames carry their session id so a late frame of the old one can be told apart.
func (g *Gateway) ServeAdmin(w http.ResponseWriter, r *http.Request) {
	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		zap.L().Warn("ws upgrade failed", zap.Error(err))
		return
	}
	c := newConn(ws, "admin")
	unsub, err := g.inbox.SubscribeSessions(c.ctx, func(sessions []model.Session, err error) {
		if err != nil {
			c.push(Frame{Type: frameError, Error: errorText(err)})
			return
		}
		c.push(Frame{Type: frameSessions, Data: sessions})
	})
	if err != nil {
		c.fail(Frame{Type: frameError, Error: errorText(err)})
		return
	}
	c.track("sessions", unsub)
	zap.L().Info("admin ws connected")

	go c.writeLoop()
	c.readLoop(func(f ClientFrame) {
		switch f.Action {
		case actionSelect:
			if f.SessionID == "" {
				c.push(Frame{Type: frameError, Error: "sessionId is required"})
				return
			}
			c.release("messages")
			unsub, err := g.inbox.SubscribeMessages(c.ctx, f.SessionID, f.Limit, messagesPusher(c, f.SessionID))
			if err != nil {
				c.push(Frame{Type: frameError, SessionID: f.SessionID, Error: errorText(err)})
				return
			}
			c.track("messages", unsub)
			c.push(Frame{Type: frameSelected, SessionID: f.SessionID})
		case actionUnselect:
			c.release("messages")
		default:
			c.push(Frame{Type: frameError, Error: "unknown action"})
		}
	})
	zap.L().Info("admin ws closed")
}

func messagesPusher(c *Conn, sessionID string) func([]model.Message, error) {
	return func(msgs []model.Message, err error) {
		if err != nil {
			c.push(Frame{Type: frameError, SessionID: sessionID, Error: errorText(err)})
			return
		}
		c.push(Frame{Type: frameMessages, SessionID: sessionID, Data: msgs})
	}
}

func errorText(err error) string {
	if errorx.HasCode(err, errorx.CodeServerBusy) {
		return errorx.ErrServerBusy.Msg
	}
	return err.Error()
}
