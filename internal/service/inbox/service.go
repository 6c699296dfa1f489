// Package inbox is the admin side of the chat: every session, replies through the
// relay, moderation.
package inbox

import (
	"context"
	"iter"

	"support_chat_server/internal/model"
	"support_chat_server/internal/service/message"
	"support_chat_server/internal/service/relay"
	"support_chat_server/pkg/constants"
	"support_chat_server/pkg/errorx"

	"go.uber.org/zap"
)

type Sessions interface {
	Get(ctx context.Context, id string) (*model.Session, error)
	List(ctx context.Context) iter.Seq2[model.Session, error]
	MarkRead(ctx context.Context, id string) error
	ToggleBlocked(ctx context.Context, id string) (bool, error)
	Delete(ctx context.Context, id string) error
	Subscribe(ctx context.Context, fn func([]model.Session, error)) (func(), error)
}

type Messages interface {
	Get(ctx context.Context, sessionID, messageID string) (*model.Message, error)
	Delete(ctx context.Context, sessionID, messageID string) error
	Page(ctx context.Context, req message.PageRequest) (*message.Page, error)
	MarkRead(ctx context.Context, sessionID string, messageIDs []string) error
	Subscribe(ctx context.Context, sessionID string, limit int, fn func([]model.Message, error)) (func(), error)
}

type Relay interface {
	SendAdmin(ctx context.Context, sessionID, text string, media *model.Media) (*relay.Outcome, error)
	EditAdmin(ctx context.Context, sessionID, messageID, text string) (*relay.Outcome, error)
}

type Service struct {
	sessions Sessions
	messages Messages
	relay    Relay
}

func NewService(sessions Sessions, messages Messages, relay Relay) *Service {
	return &Service{sessions: sessions, messages: messages, relay: relay}
}

// Sessions returns up to limit sessions, most recent activity first.
func (s *Service) Sessions(ctx context.Context, limit int) ([]model.Session, error) {
	if limit <= 0 || limit > constants.SESSION_FEED_LIMIT {
		limit = constants.SESSION_FEED_LIMIT
	}
	out := make([]model.Session, 0, min(limit, constants.SESSION_PAGE_SIZE))
	for sess, err := range s.sessions.List(ctx) {
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// SubscribeSessions pushes the session list after every change.
func (s *Service) SubscribeSessions(ctx context.Context, fn func([]model.Session, error)) (func(), error) {
	return s.sessions.Subscribe(ctx, fn)
}

// Open marks a session as read: the unread counter is reset and the given
// messages, or the newest window when none are given, are flagged read.
func (s *Service) Open(ctx context.Context, sessionID string, visibleIDs []string) error {
	if err := s.sessions.MarkRead(ctx, sessionID); err != nil {
		return err
	}
	if len(visibleIDs) == 0 {
		page, err := s.messages.Page(ctx, message.PageRequest{SessionID: sessionID})
		if err != nil {
			return err
		}
		for _, m := range page.Messages {
			if m.Sender == model.SenderUser && !m.Read {
				visibleIDs = append(visibleIDs, m.ID)
			}
		}
	}
	return s.messages.MarkRead(ctx, sessionID, visibleIDs)
}

// LoadMore returns a window of older messages.
func (s *Service) LoadMore(ctx context.Context, sessionID, before string, limit int) (*message.Page, error) {
	return s.messages.Page(ctx, message.PageRequest{SessionID: sessionID, Before: before, Limit: limit})
}

// SubscribeMessages pushes the newest window of a session after every change.
func (s *Service) SubscribeMessages(ctx context.Context, sessionID string, limit int, fn func([]model.Message, error)) (func(), error) {
	return s.messages.Subscribe(ctx, sessionID, limit, fn)
}

// Reply sends an admin message through the relay.
func (s *Service) Reply(ctx context.Context, sessionID, text string, media *model.Media) (*relay.Outcome, error) {
	return s.relay.SendAdmin(ctx, sessionID, text, media)
}

// Edit changes the text of an admin message. Customer messages cannot be edited.
func (s *Service) Edit(ctx context.Context, sessionID, messageID, text string) (*relay.Outcome, error) {
	msg, err := s.messages.Get(ctx, sessionID, messageID)
	if err != nil {
		return nil, err
	}
	if msg.Sender != model.SenderAdmin {
		return nil, errorx.New(errorx.CodeForbidden, "only admin messages can be edited")
	}
	return s.relay.EditAdmin(ctx, sessionID, messageID, text)
}

// Delete removes any message of the session from the local log.
func (s *Service) Delete(ctx context.Context, sessionID, messageID string) error {
	if err := s.messages.Delete(ctx, sessionID, messageID); err != nil {
		return err
	}
	zap.L().Info("message deleted by admin", zap.String("session_id", sessionID), zap.String("message_id", messageID))
	return nil
}

// ToggleBlock flips the blocked flag and returns the new value.
func (s *Service) ToggleBlock(ctx context.Context, sessionID string) (bool, error) {
	return s.sessions.ToggleBlocked(ctx, sessionID)
}

// DeleteSession removes the session and all its messages.
func (s *Service) DeleteSession(ctx context.Context, sessionID string) error {
	return s.sessions.Delete(ctx, sessionID)
}
