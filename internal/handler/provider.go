// Package handler holds the gin handlers of the widget, admin and Telegram endpoints.
package handler

import (
	"net/http"

	"support_chat_server/internal/gateway/websocket"
	"support_chat_server/internal/service"
)

// Handlers aggregates every handler for the router.
type Handlers struct {
	Widget   *WidgetHandler
	Admin    *AdminHandler
	Telegram *TelegramHandler // nil unless the bot runs in webhook mode
}

// NewHandlers builds the handlers. webhook is nil when Telegram updates are polled.
func NewHandlers(svc *service.Services, gateway *websocket.Gateway, webhook http.Handler, webhookSecret string) *Handlers {
	h := &Handlers{
		Widget: NewWidgetHandler(svc.Widget, gateway),
		Admin:  NewAdminHandler(svc.Inbox, gateway),
	}
	if webhook != nil {
		h.Telegram = NewTelegramHandler(webhook, webhookSecret)
	}
	return h
}
