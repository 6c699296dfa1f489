// Package model defines the chat records stored in the document store.
package model

import (
	"strconv"
	"strings"
	"time"

	"support_chat_server/pkg/constants"
)

// Origin tells where a conversation started.
type Origin string

const (
	OriginWeb      Origin = "web"
	OriginTelegram Origin = "telegram"
)

// Session is one customer conversation, keyed by its id in the "sessions" collection.
type Session struct {
	ID              string    `json:"id"`
	UserName        string    `json:"userName"`
	Phone           string    `json:"phone,omitempty"`
	Origin          Origin    `json:"origin"`
	LastMessage     string    `json:"lastMessage"`
	LastMessageTime time.Time `json:"lastMessageTime"`
	UnreadCount     int       `json:"unreadCount"`
	Blocked         bool      `json:"blocked"`
	CreatedAt       time.Time `json:"createdAt"`
}

// IsTelegram reports whether replies should be relayed to Telegram.
func (s *Session) IsTelegram() bool {
	return s.Origin == OriginTelegram || IsTelegramSessionID(s.ID)
}

// OriginOf derives the origin from the session id prefix.
func OriginOf(sessionID string) Origin {
	if IsTelegramSessionID(sessionID) {
		return OriginTelegram
	}
	return OriginWeb
}

// TelegramSessionID is the session id of a Telegram chat: "tg-<chatId>".
func TelegramSessionID(chatID int64) string {
	return constants.TELEGRAM_SESSION_PREFIX + strconv.FormatInt(chatID, 10)
}

// IsTelegramSessionID reports whether id has the Telegram prefix.
func IsTelegramSessionID(id string) bool {
	return strings.HasPrefix(id, constants.TELEGRAM_SESSION_PREFIX)
}

// TelegramChatID parses the chat id out of a Telegram session id.
func TelegramChatID(sessionID string) (int64, bool) {
	if !IsTelegramSessionID(sessionID) {
		return 0, false
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(sessionID, constants.TELEGRAM_SESSION_PREFIX), 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// WebSessionID prefixes a generated identifier for widget sessions.
func WebSessionID(uid string) string {
	return constants.WEB_SESSION_PREFIX + uid
}
