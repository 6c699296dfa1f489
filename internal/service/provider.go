package service

import (
	"support_chat_server/internal/dao/docstore"
	"support_chat_server/internal/service/inbox"
	"support_chat_server/internal/service/message"
	"support_chat_server/internal/service/relay"
	"support_chat_server/internal/service/session"
	"support_chat_server/internal/service/widget"
)

// Services aggregates every service built on one store.
type Services struct {
	Session SessionService
	Message MessageService
	Relay   *relay.Relay
	Widget  WidgetService
	Inbox   InboxService
}

// NewServices builds the services on store. client is nil when Telegram is
// disabled; alerter receives new customer messages.
func NewServices(store docstore.Store, client relay.TelegramClient, alerter relay.Alerter) *Services {
	sessionSvc := session.NewSessionService(store)
	messageSvc := message.NewMessageService(store, sessionSvc)
	relaySvc := relay.New(client, sessionSvc, messageSvc, alerter)

	return &Services{
		Session: sessionSvc,
		Message: messageSvc,
		Relay:   relaySvc,
		Widget:  widget.NewService(sessionSvc, messageSvc, alerter),
		Inbox:   inbox.NewService(sessionSvc, messageSvc, relaySvc),
	}
}
