// Package session keeps the registry of customer conversations: one document per
// session holding the identity, the last message preview, the unread counter and
// the blocked flag.
package session

import (
	"context"
	"iter"
	"strings"
	"time"
	"unicode/utf8"

	"support_chat_server/internal/dao/docstore"
	"support_chat_server/internal/model"
	"support_chat_server/pkg/constants"
	"support_chat_server/pkg/errorx"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CreateRequest opens a conversation. An empty ID creates a new web session.
type CreateRequest struct {
	ID       string
	UserName string
	Phone    string
}

// sessionFields is the stored shape; id and createdAt come from the document itself.
type sessionFields struct {
	UserName        string    `json:"userName"`
	Phone           string    `json:"phone,omitempty"`
	LastMessage     string    `json:"lastMessage"`
	LastMessageTime time.Time `json:"lastMessageTime"`
	UnreadCount     int       `json:"unreadCount"`
	Blocked         bool      `json:"blocked"`
}

type sessionService struct {
	store docstore.Store
	now   func() time.Time
}

// NewSessionService builds the registry on store.
func NewSessionService(store docstore.Store) *sessionService {
	return &sessionService{store: store, now: time.Now}
}

// Create registers a session, or returns the existing one with the same id.
func (s *sessionService) Create(ctx context.Context, req CreateRequest) (*model.Session, error) {
	id := req.ID
	if id == "" {
		id = model.WebSessionID(uuid.NewString())
	}
	if !strings.HasPrefix(id, constants.WEB_SESSION_PREFIX) && !model.IsTelegramSessionID(id) {
		return nil, errorx.Newf(errorx.CodeInvalidParam, "invalid session id %q", id)
	}
	userName := strings.TrimSpace(req.UserName)
	if userName == "" {
		userName = defaultUserName(id)
	}

	existing, err := s.Get(ctx, id)
	if err == nil {
		return existing, nil
	}
	if !errorx.IsNotFound(err) {
		return nil, err
	}

	now := s.now()
	data, err := docstore.Encode(sessionFields{
		UserName:        userName,
		Phone:           strings.TrimSpace(req.Phone),
		LastMessageTime: now,
	})
	if err != nil {
		return nil, err
	}
	doc, err := s.store.Append(ctx, docstore.SessionsPath, docstore.Document{
		ID:         id,
		SortKey:    now.UnixNano(),
		Data:       data,
		CreateTime: now,
	})
	if errorx.HasCode(err, errorx.CodeConflict) {
		// created concurrently, e.g. two Telegram updates of a new chat
		return s.Get(ctx, id)
	}
	if err != nil {
		zap.L().Error("create session failed", zap.String("session_id", id), zap.Error(err))
		return nil, err
	}
	zap.L().Info("session created", zap.String("session_id", id), zap.String("origin", string(model.OriginOf(id))))
	return fromDocument(doc)
}

// Ensure returns the session with id, creating it when it does not exist yet.
func (s *sessionService) Ensure(ctx context.Context, id, userName, phone string) (*model.Session, error) {
	if id == "" {
		return nil, errorx.New(errorx.CodeInvalidParam, "session id is required")
	}
	return s.Create(ctx, CreateRequest{ID: id, UserName: userName, Phone: phone})
}

// Get loads one session; CodeNotFound when it does not exist.
func (s *sessionService) Get(ctx context.Context, id string) (*model.Session, error) {
	doc, err := s.store.Get(ctx, docstore.SessionsPath, id)
	if err != nil {
		return nil, err
	}
	return fromDocument(doc)
}

// List yields every session, most recent activity first. Sessions are fetched lazily
// in windows; ranging again starts over from the top.
func (s *sessionService) List(ctx context.Context) iter.Seq2[model.Session, error] {
	return func(yield func(model.Session, error) bool) {
		var before *docstore.Cursor
		for {
			docs, err := s.store.Query(ctx, docstore.SessionsPath, docstore.Query{
				Desc:   true,
				Before: before,
				Limit:  constants.SESSION_PAGE_SIZE,
			})
			if err != nil {
				yield(model.Session{}, err)
				return
			}
			for _, doc := range docs {
				sess, err := fromDocument(doc)
				if err != nil {
					if !yield(model.Session{}, err) {
						return
					}
					continue
				}
				if !yield(*sess, nil) {
					return
				}
			}
			if len(docs) < constants.SESSION_PAGE_SIZE {
				return
			}
			cursor := docs[len(docs)-1].Cursor()
			before = &cursor
		}
	}
}

// Touch records a new message on the session, creating the session when needed.
// The unread counter only grows for customer messages.
func (s *sessionService) Touch(ctx context.Context, id, preview string, at time.Time, incrementUnread bool) error {
	return s.touch(ctx, id, preview, at, incrementUnread, false)
}

// TouchExisting is Touch for a session the caller already loaded. A session
// deleted in the meantime stays deleted and CodeNotFound is returned.
func (s *sessionService) TouchExisting(ctx context.Context, id, preview string, at time.Time, incrementUnread bool) error {
	return s.touch(ctx, id, preview, at, incrementUnread, true)
}

func (s *sessionService) touch(ctx context.Context, id, preview string, at time.Time, incrementUnread, mustExist bool) error {
	sortKey := at.UnixNano()
	fields := map[string]any{
		"lastMessage":     Preview(preview),
		"lastMessageTime": at,
	}
	if incrementUnread {
		fields["unreadCount"] = docstore.Increment(1)
	}
	_, err := s.store.Put(ctx, docstore.SessionsPath, id, docstore.Patch{
		Fields:    fields,
		SortKey:   &sortKey,
		MustExist: mustExist,
		Check: func(_ docstore.Document, exists bool) error {
			if !exists {
				zap.L().Warn("touch created a missing session", zap.String("session_id", id))
			}
			return nil
		},
	})
	if err != nil && !(mustExist && errorx.IsNotFound(err)) {
		zap.L().Error("touch session failed", zap.String("session_id", id), zap.Error(err))
	}
	return err
}

// MarkRead resets the unread counter.
func (s *sessionService) MarkRead(ctx context.Context, id string) error {
	_, err := s.store.Put(ctx, docstore.SessionsPath, id, docstore.Patch{
		Fields:    map[string]any{"unreadCount": 0},
		MustExist: true,
	})
	return err
}

// SetBlocked sets the blocked flag and returns the new state.
func (s *sessionService) SetBlocked(ctx context.Context, id string, blocked bool) (bool, error) {
	doc, err := s.store.Put(ctx, docstore.SessionsPath, id, docstore.Patch{
		Fields:    map[string]any{"blocked": blocked},
		MustExist: true,
	})
	if err != nil {
		return false, err
	}
	zap.L().Info("session block state changed", zap.String("session_id", id), zap.Bool("blocked", blocked))
	sess, err := fromDocument(doc)
	if err != nil {
		return false, err
	}
	return sess.Blocked, nil
}

// ToggleBlocked flips the blocked flag and returns the new state. The flip is
// rejected inside the write if another writer changed the flag in between, and is
// then retried once against the fresh state.
func (s *sessionService) ToggleBlocked(ctx context.Context, id string) (bool, error) {
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		var sess *model.Session
		if sess, err = s.Get(ctx, id); err != nil {
			return false, err
		}
		seen := sess.Blocked
		var doc docstore.Document
		doc, err = s.store.Put(ctx, docstore.SessionsPath, id, docstore.Patch{
			Fields:    map[string]any{"blocked": !seen},
			MustExist: true,
			Check: func(cur docstore.Document, _ bool) error {
				if blocked, _ := cur.Data["blocked"].(bool); blocked != seen {
					return errorx.New(errorx.CodeConflict, "blocked flag changed concurrently")
				}
				return nil
			},
		})
		if errorx.HasCode(err, errorx.CodeConflict) {
			continue
		}
		if err != nil {
			return false, err
		}
		zap.L().Info("session block state toggled", zap.String("session_id", id), zap.Bool("blocked", !seen))
		blocked, _ := doc.Data["blocked"].(bool)
		return blocked, nil
	}
	return false, err
}

// Delete removes the session and all of its messages, messages first. When the
// messages are gone but the session document survives, CodeCascadePartial is returned
// and deleting again completes the cascade.
func (s *sessionService) Delete(ctx context.Context, id string) error {
	removed, err := s.store.RemoveAll(ctx, docstore.MessagesPath(id))
	if err != nil {
		zap.L().Error("delete session messages failed", zap.String("session_id", id), zap.Error(err))
		return err
	}
	if err := s.store.Remove(ctx, docstore.SessionsPath, id); err != nil {
		zap.L().Error("session cascade stopped after messages were removed",
			zap.String("session_id", id),
			zap.Int64("messages_removed", removed),
			zap.Error(err),
		)
		return errorx.Wrapf(err, errorx.CodeCascadePartial, "session %s: messages deleted, session kept", id)
	}
	zap.L().Info("session deleted", zap.String("session_id", id), zap.Int64("messages_removed", removed))
	return nil
}

// Subscribe pushes the most recently active sessions to fn after every change.
func (s *sessionService) Subscribe(ctx context.Context, fn func([]model.Session, error)) (func(), error) {
	return s.store.Subscribe(ctx, docstore.SessionsPath, docstore.Query{
		Desc:  true,
		Limit: constants.SESSION_FEED_LIMIT,
	}, func(docs []docstore.Document, err error) {
		if err != nil {
			fn(nil, err)
			return
		}
		fn(fromDocuments(docs))
	})
}

// Preview shortens text for the session list.
func Preview(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(text) <= constants.PREVIEW_MAX_RUNES {
		return text
	}
	runes := []rune(text)
	return string(runes[:constants.PREVIEW_MAX_RUNES-1]) + "…"
}

func defaultUserName(id string) string {
	if model.IsTelegramSessionID(id) {
		return "Telegram user"
	}
	return "Guest"
}

func fromDocument(doc docstore.Document) (*model.Session, error) {
	var f sessionFields
	if err := docstore.Decode(doc.Data, &f); err != nil {
		return nil, err
	}
	if f.UnreadCount < 0 {
		f.UnreadCount = 0
	}
	return &model.Session{
		ID:              doc.ID,
		UserName:        f.UserName,
		Phone:           f.Phone,
		Origin:          model.OriginOf(doc.ID),
		LastMessage:     f.LastMessage,
		LastMessageTime: f.LastMessageTime,
		UnreadCount:     f.UnreadCount,
		Blocked:         f.Blocked,
		CreatedAt:       doc.CreateTime,
	}, nil
}

func fromDocuments(docs []docstore.Document) ([]model.Session, error) {
	sessions := make([]model.Session, 0, len(docs))
	for _, doc := range docs {
		sess, err := fromDocument(doc)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *sess)
	}
	return sessions, nil
}
