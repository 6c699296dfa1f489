// Package widget is the customer side of the chat: one session, its own history.
package widget

import (
	"context"

	"support_chat_server/internal/model"
	"support_chat_server/internal/service/message"
	"support_chat_server/internal/service/relay"
	"support_chat_server/internal/service/session"
	"support_chat_server/pkg/errorx"

	"go.uber.org/zap"
)

type Sessions interface {
	Create(ctx context.Context, req session.CreateRequest) (*model.Session, error)
	Get(ctx context.Context, id string) (*model.Session, error)
}

type Messages interface {
	Append(ctx context.Context, req message.AppendRequest) (*model.Message, error)
	Page(ctx context.Context, req message.PageRequest) (*message.Page, error)
	Subscribe(ctx context.Context, sessionID string, limit int, fn func([]model.Message, error)) (func(), error)
}

type Service struct {
	sessions Sessions
	messages Messages
	alerter  relay.Alerter
}

func NewService(sessions Sessions, messages Messages, alerter relay.Alerter) *Service {
	return &Service{sessions: sessions, messages: messages, alerter: alerter}
}

// StartSession creates the customer's session, or returns it when req.ID already exists.
func (s *Service) StartSession(ctx context.Context, req session.CreateRequest) (*model.Session, error) {
	if req.ID != "" && model.IsTelegramSessionID(req.ID) {
		return nil, errorx.New(errorx.CodeInvalidParam, "telegram sessions cannot be opened from the widget")
	}
	return s.sessions.Create(ctx, req)
}

// Send stores a customer message and alerts the admin. A blocked session is
// rejected before anything is written.
func (s *Service) Send(ctx context.Context, sessionID, text string, media *model.Media) (*model.Message, error) {
	sess, err := s.ownSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Blocked {
		zap.L().Info("message from blocked session rejected", zap.String("session_id", sessionID))
		return nil, errorx.ErrBlocked
	}
	msg, err := s.messages.Append(ctx, message.AppendRequest{
		SessionID:      sessionID,
		Sender:         model.SenderUser,
		Text:           text,
		Media:          media,
		SessionChecked: true,
	})
	if err != nil {
		return nil, err
	}
	if s.alerter != nil {
		s.alerter.NewMessage(sess, msg)
	}
	return msg, nil
}

// History returns a window of the customer's own messages.
func (s *Service) History(ctx context.Context, sessionID, before string, limit int) (*message.Page, error) {
	if _, err := s.ownSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.messages.Page(ctx, message.PageRequest{SessionID: sessionID, Before: before, Limit: limit})
}

// Subscribe pushes the newest window of the session after every change.
func (s *Service) Subscribe(ctx context.Context, sessionID string, limit int, fn func([]model.Message, error)) (func(), error) {
	if _, err := s.ownSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.messages.Subscribe(ctx, sessionID, limit, fn)
}

// ownSession loads a session the widget may act on. Telegram sessions belong to
// the relay and are never reachable from the public widget.
func (s *Service) ownSession(ctx context.Context, sessionID string) (*model.Session, error) {
	if model.IsTelegramSessionID(sessionID) {
		return nil, errorx.New(errorx.CodeForbidden, "telegram sessions are not accessible from the widget")
	}
	return s.sessions.Get(ctx, sessionID)
}
