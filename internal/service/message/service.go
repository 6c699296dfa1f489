// Package message is the per-session message log: append, edit, delete, windowed
// history and live windows, plus the Telegram correlation id.
package message

import (
	"context"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"support_chat_server/internal/dao/docstore"
	"support_chat_server/internal/model"
	"support_chat_server/pkg/constants"
	"support_chat_server/pkg/errorx"
	"support_chat_server/pkg/util/snowflake"

	"go.uber.org/zap"
)

// SessionToucher is the part of the session registry the log updates on append.
type SessionToucher interface {
	Touch(ctx context.Context, id, preview string, at time.Time, incrementUnread bool) error
	TouchExisting(ctx context.Context, id, preview string, at time.Time, incrementUnread bool) error
}

// AppendRequest is a new message. Text or Media must be set.
type AppendRequest struct {
	SessionID      string
	Sender         model.Sender
	Text           string
	Media          *model.Media
	// SessionChecked is set by callers that loaded the session first. The append
	// is then undone when the session was deleted before it finished.
	SessionChecked bool
}

// PageRequest asks for the newest Limit messages older than Before.
type PageRequest struct {
	SessionID string
	Before    string // opaque cursor from a previous Page, empty for the newest window
	Limit     int
}

// Page is a window of messages, oldest first.
type Page struct {
	Messages   []model.Message `json:"messages"`
	NextCursor string          `json:"nextCursor,omitempty"` // pass as Before to load older messages
	HasMore    bool            `json:"hasMore"`
}

type messageFields struct {
	Sender            model.Sender    `json:"sender"`
	Text              string          `json:"text"`
	MediaURL          string          `json:"mediaUrl,omitempty"`
	MediaType         model.MediaType `json:"mediaType,omitempty"`
	TelegramMessageID *int            `json:"telegramMessageId,omitempty"`
	Read              bool            `json:"read"`
	EditedAt          *time.Time      `json:"editedAt,omitempty"`
}

type messageService struct {
	store    docstore.Store
	sessions SessionToucher
	now      func() time.Time
}

// NewMessageService builds the log on store; sessions is touched after every append.
func NewMessageService(store docstore.Store, sessions SessionToucher) *messageService {
	return &messageService{store: store, sessions: sessions, now: time.Now}
}

// Append validates, stores and returns a new message, then updates the session
// preview. A failed preview update is logged; the message itself is already stored.
func (m *messageService) Append(ctx context.Context, req AppendRequest) (*model.Message, error) {
	msg, err := m.build(req)
	if err != nil {
		return nil, err
	}
	data, err := docstore.Encode(fieldsOf(msg))
	if err != nil {
		return nil, err
	}
	doc, err := m.store.Append(ctx, docstore.MessagesPath(msg.SessionID), docstore.Document{
		ID:         msg.ID,
		SortKey:    msg.CreatedAt.UnixNano(),
		Data:       data,
		CreateTime: msg.CreatedAt,
	})
	if err != nil {
		zap.L().Error("append message failed",
			zap.String("session_id", msg.SessionID),
			zap.String("sender", string(msg.Sender)),
			zap.Error(err),
		)
		return nil, err
	}

	updateSession := m.sessions.Touch
	if req.SessionChecked {
		updateSession = m.sessions.TouchExisting
	}
	if err := updateSession(ctx, msg.SessionID, previewOf(msg), msg.CreatedAt, msg.Sender == model.SenderUser); err != nil {
		if req.SessionChecked && errorx.IsNotFound(err) {
			if rmErr := m.store.Remove(ctx, docstore.MessagesPath(msg.SessionID), doc.ID); rmErr != nil {
				zap.L().Error("remove message of deleted session",
					zap.String("session_id", msg.SessionID),
					zap.String("message_id", doc.ID),
					zap.Error(rmErr),
				)
			}
			return nil, errorx.Newf(errorx.CodeNotFound, "session %s was deleted", msg.SessionID)
		}
		zap.L().Warn("message stored but session preview not updated",
			zap.String("session_id", msg.SessionID),
			zap.String("message_id", doc.ID),
			zap.Error(err),
		)
	}
	return fromDocument(msg.SessionID, doc)
}

func (m *messageService) build(req AppendRequest) (*model.Message, error) {
	if req.SessionID == "" {
		return nil, errorx.New(errorx.CodeValidation, "session id is required")
	}
	if !req.Sender.Valid() {
		return nil, errorx.Newf(errorx.CodeValidation, "unknown sender %q", req.Sender)
	}
	text := strings.TrimSpace(req.Text)
	if utf8.RuneCountInString(text) > constants.MAX_TEXT_RUNES {
		return nil, errorx.Newf(errorx.CodeValidation, "text longer than %d characters", constants.MAX_TEXT_RUNES)
	}
	media, err := normalizeMedia(req.Media)
	if err != nil {
		return nil, err
	}
	if text == "" && media == nil {
		return nil, errorx.New(errorx.CodeValidation, "a message needs text or media")
	}

	msg := &model.Message{
		ID:        snowflake.GenerateIDString(),
		SessionID: req.SessionID,
		Sender:    req.Sender,
		Text:      text,
		Read:      req.Sender == model.SenderAdmin,
		CreatedAt: m.now(),
	}
	if media != nil {
		msg.MediaType = media.Type
		msg.MediaURL = media.URL
	}
	return msg, nil
}

// normalizeMedia applies the attachment policy: only photos may carry an inline
// data: payload, other types keep their type and a non-inline URL.
func normalizeMedia(media *model.Media) (*model.Media, error) {
	if media == nil || (media.Type == "" && media.URL == "") {
		return nil, nil
	}
	if !media.Type.Valid() {
		return nil, errorx.Newf(errorx.CodeValidation, "unknown media type %q", media.Type)
	}
	out := &model.Media{Type: media.Type, URL: strings.TrimSpace(media.URL)}
	if IsInline(out.URL) {
		if out.Type != model.MediaPhoto {
			zap.L().Info("inline payload stripped", zap.String("media_type", string(out.Type)))
			out.URL = ""
		} else if len(out.URL) > constants.INLINE_PHOTO_MAX_SIZE {
			return nil, errorx.Newf(errorx.CodeValidation, "inline photo larger than %d bytes", constants.INLINE_PHOTO_MAX_SIZE)
		}
	}
	return out, nil
}

// IsInline reports whether url is an embedded data: payload.
func IsInline(url string) bool {
	return strings.HasPrefix(url, "data:")
}

// Edit replaces the text of a message and reports whether it changed. Editing
// to the same text is a no-op; the Telegram correlation id is never touched.
func (m *messageService) Edit(ctx context.Context, sessionID, messageID, newText string) (*model.Message, bool, error) {
	current, err := m.Get(ctx, sessionID, messageID)
	if err != nil {
		return nil, false, err
	}
	text := strings.TrimSpace(newText)
	if text == current.Text {
		return current, false, nil
	}
	if text == "" && !current.HasMedia() {
		return nil, false, errorx.New(errorx.CodeValidation, "text of a message without media cannot be empty")
	}
	if utf8.RuneCountInString(text) > constants.MAX_TEXT_RUNES {
		return nil, false, errorx.Newf(errorx.CodeValidation, "text longer than %d characters", constants.MAX_TEXT_RUNES)
	}

	doc, err := m.store.Put(ctx, docstore.MessagesPath(sessionID), messageID, docstore.Patch{
		Fields: map[string]any{
			"text":     text,
			"editedAt": m.now(),
		},
		MustExist: true,
	})
	if err != nil {
		return nil, false, err
	}
	msg, err := fromDocument(sessionID, doc)
	if err != nil {
		return nil, false, err
	}
	return msg, true, nil
}

// Delete removes a message from the local log only.
func (m *messageService) Delete(ctx context.Context, sessionID, messageID string) error {
	if err := m.store.Remove(ctx, docstore.MessagesPath(sessionID), messageID); err != nil {
		zap.L().Error("delete message failed",
			zap.String("session_id", sessionID),
			zap.String("message_id", messageID),
			zap.Error(err),
		)
		return err
	}
	return nil
}

// Get loads one message.
func (m *messageService) Get(ctx context.Context, sessionID, messageID string) (*model.Message, error) {
	doc, err := m.store.Get(ctx, docstore.MessagesPath(sessionID), messageID)
	if err != nil {
		return nil, err
	}
	return fromDocument(sessionID, doc)
}

// Page returns the newest window older than req.Before, oldest first.
func (m *messageService) Page(ctx context.Context, req PageRequest) (*Page, error) {
	limit := ClampLimit(req.Limit)
	q := docstore.Query{Desc: true, Limit: limit + 1}
	if req.Before != "" {
		cursor, err := ParseCursor(req.Before)
		if err != nil {
			return nil, err
		}
		q.Before = &cursor
	}
	docs, err := m.store.Query(ctx, docstore.MessagesPath(req.SessionID), q)
	if err != nil {
		return nil, err
	}

	page := &Page{}
	if len(docs) > limit {
		page.HasMore = true
		docs = docs[:limit]
	}
	if page.Messages, err = fromDocumentsOldestFirst(req.SessionID, docs); err != nil {
		return nil, err
	}
	if page.HasMore {
		page.NextCursor = FormatCursor(docs[len(docs)-1].Cursor())
	}
	return page, nil
}

// LinkTelegram stores the Telegram message id of a relayed message. The id is set
// once; linking again to a different id fails with CodeConflict.
func (m *messageService) LinkTelegram(ctx context.Context, sessionID, messageID string, telegramMessageID int) error {
	_, err := m.store.Put(ctx, docstore.MessagesPath(sessionID), messageID, docstore.Patch{
		Fields:    map[string]any{"telegramMessageId": telegramMessageID},
		MustExist: true,
		Check: func(cur docstore.Document, _ bool) error {
			existing, ok := cur.Data["telegramMessageId"]
			if !ok || existing == nil {
				return nil
			}
			if n, ok := existing.(float64); ok && int(n) == telegramMessageID {
				return nil
			}
			return errorx.Newf(errorx.CodeConflict, "message %s already linked to telegram message %v", messageID, existing)
		},
	})
	return err
}

// MarkRead flags the given messages as read. Messages deleted meanwhile are skipped.
func (m *messageService) MarkRead(ctx context.Context, sessionID string, messageIDs []string) error {
	for _, id := range messageIDs {
		_, err := m.store.Put(ctx, docstore.MessagesPath(sessionID), id, docstore.Patch{
			Fields:    map[string]any{"read": true},
			MustExist: true,
		})
		if err != nil && !errorx.IsNotFound(err) {
			return err
		}
	}
	return nil
}

// Subscribe pushes the newest limit messages of the session, oldest first, after every change.
func (m *messageService) Subscribe(ctx context.Context, sessionID string, limit int, fn func([]model.Message, error)) (func(), error) {
	if sessionID == "" {
		return nil, errorx.New(errorx.CodeInvalidParam, "session id is required")
	}
	return m.store.Subscribe(ctx, docstore.MessagesPath(sessionID), docstore.Query{
		Desc:  true,
		Limit: ClampLimit(limit),
	}, func(docs []docstore.Document, err error) {
		if err != nil {
			fn(nil, err)
			return
		}
		fn(fromDocumentsOldestFirst(sessionID, docs))
	})
}

// ClampLimit applies the default and maximum window size.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return constants.DEFAULT_PAGE_SIZE
	case limit > constants.MAX_PAGE_SIZE:
		return constants.MAX_PAGE_SIZE
	}
	return limit
}

// FormatCursor encodes a window position for clients.
func FormatCursor(c docstore.Cursor) string {
	return strconv.FormatInt(c.SortKey, 10) + "_" + c.ID
}

// ParseCursor decodes a cursor produced by FormatCursor.
func ParseCursor(s string) (docstore.Cursor, error) {
	key, id, ok := strings.Cut(s, "_")
	if !ok || id == "" {
		return docstore.Cursor{}, errorx.Newf(errorx.CodeInvalidParam, "invalid cursor %q", s)
	}
	sortKey, err := strconv.ParseInt(key, 10, 64)
	if err != nil {
		return docstore.Cursor{}, errorx.Wrapf(err, errorx.CodeInvalidParam, "invalid cursor %q", s)
	}
	return docstore.Cursor{SortKey: sortKey, ID: id}, nil
}

func previewOf(msg *model.Message) string {
	if msg.Text != "" {
		return msg.Text
	}
	return "[" + string(msg.MediaType) + "]"
}

func fieldsOf(msg *model.Message) messageFields {
	return messageFields{
		Sender:            msg.Sender,
		Text:              msg.Text,
		MediaURL:          msg.MediaURL,
		MediaType:         msg.MediaType,
		TelegramMessageID: msg.TelegramMessageID,
		Read:              msg.Read,
		EditedAt:          msg.EditedAt,
	}
}

func fromDocument(sessionID string, doc docstore.Document) (*model.Message, error) {
	var f messageFields
	if err := docstore.Decode(doc.Data, &f); err != nil {
		return nil, err
	}
	return &model.Message{
		ID:                doc.ID,
		SessionID:         sessionID,
		Sender:            f.Sender,
		Text:              f.Text,
		MediaURL:          f.MediaURL,
		MediaType:         f.MediaType,
		TelegramMessageID: f.TelegramMessageID,
		Read:              f.Read,
		CreatedAt:         doc.CreateTime,
		EditedAt:          f.EditedAt,
	}, nil
}

// fromDocumentsOldestFirst converts a descending window into chronological order.
func fromDocumentsOldestFirst(sessionID string, docs []docstore.Document) ([]model.Message, error) {
	msgs := make([]model.Message, len(docs))
	for i, doc := range docs {
		msg, err := fromDocument(sessionID, doc)
		if err != nil {
			return nil, err
		}
		msgs[len(docs)-1-i] = *msg
	}
	return msgs, nil
}
