// Package service wires the chat services together.
// The interfaces here are what the handler and gateway layers depend on.
package service

import (
	"context"
	"iter"
	"time"

	"support_chat_server/internal/model"
	"support_chat_server/internal/service/message"
	"support_chat_server/internal/service/relay"
	"support_chat_server/internal/service/session"
)

// SessionService is the session registry.
type SessionService interface {
	Create(ctx context.Context, req session.CreateRequest) (*model.Session, error)
	Ensure(ctx context.Context, id, userName, phone string) (*model.Session, error)
	Get(ctx context.Context, id string) (*model.Session, error)
	List(ctx context.Context) iter.Seq2[model.Session, error]
	Touch(ctx context.Context, id, preview string, at time.Time, incrementUnread bool) error
	TouchExisting(ctx context.Context, id, preview string, at time.Time, incrementUnread bool) error
	MarkRead(ctx context.Context, id string) error
	SetBlocked(ctx context.Context, id string, blocked bool) (bool, error)
	ToggleBlocked(ctx context.Context, id string) (bool, error)
	Delete(ctx context.Context, id string) error
	Subscribe(ctx context.Context, fn func([]model.Session, error)) (func(), error)
}

// MessageService is the per-session message log.
type MessageService interface {
	Append(ctx context.Context, req message.AppendRequest) (*model.Message, error)
	Edit(ctx context.Context, sessionID, messageID, newText string) (*model.Message, bool, error)
	Delete(ctx context.Context, sessionID, messageID string) error
	Get(ctx context.Context, sessionID, messageID string) (*model.Message, error)
	Page(ctx context.Context, req message.PageRequest) (*message.Page, error)
	LinkTelegram(ctx context.Context, sessionID, messageID string, telegramMessageID int) error
	MarkRead(ctx context.Context, sessionID string, messageIDs []string) error
	Subscribe(ctx context.Context, sessionID string, limit int, fn func([]model.Message, error)) (func(), error)
}

// WidgetService is the customer surface.
type WidgetService interface {
	StartSession(ctx context.Context, req session.CreateRequest) (*model.Session, error)
	Send(ctx context.Context, sessionID, text string, media *model.Media) (*model.Message, error)
	History(ctx context.Context, sessionID, before string, limit int) (*message.Page, error)
	Subscribe(ctx context.Context, sessionID string, limit int, fn func([]model.Message, error)) (func(), error)
}

// InboxService is the admin surface.
type InboxService interface {
	Sessions(ctx context.Context, limit int) ([]model.Session, error)
	SubscribeSessions(ctx context.Context, fn func([]model.Session, error)) (func(), error)
	Open(ctx context.Context, sessionID string, visibleIDs []string) error
	LoadMore(ctx context.Context, sessionID, before string, limit int) (*message.Page, error)
	SubscribeMessages(ctx context.Context, sessionID string, limit int, fn func([]model.Message, error)) (func(), error)
	Reply(ctx context.Context, sessionID, text string, media *model.Media) (*relay.Outcome, error)
	Edit(ctx context.Context, sessionID, messageID, text string) (*relay.Outcome, error)
	Delete(ctx context.Context, sessionID, messageID string) error
	ToggleBlock(ctx context.Context, sessionID string) (bool, error)
	DeleteSession(ctx context.Context, sessionID string) error
}
