package model

import (
	"time"
)

// Sender is the author side of a message.
type Sender string

const (
	SenderUser  Sender = "user"
	SenderAdmin Sender = "admin"
)

// Valid reports whether s is a known sender.
func (s Sender) Valid() bool {
	return s == SenderUser || s == SenderAdmin
}

// MediaType classifies an attachment.
type MediaType string

const (
	MediaPhoto    MediaType = "photo"
	MediaVideo    MediaType = "video"
	MediaAudio    MediaType = "audio"
	MediaDocument MediaType = "document"
)

// Valid reports whether m is a known media type.
func (m MediaType) Valid() bool {
	switch m {
	case MediaPhoto, MediaVideo, MediaAudio, MediaDocument:
		return true
	}
	return false
}

// Media is an attachment reference. URL may be an http(s) link, an inline
// "data:" payload (photos only) or a "tg://file/<id>" reference for files that
// arrived from Telegram.
type Media struct {
	Type MediaType `json:"type"`
	URL  string    `json:"url"`
}

// Message lives in "sessions/{sessionId}/messages".
type Message struct {
	ID                string     `json:"id"`
	SessionID         string     `json:"sessionId"`
	Sender            Sender     `json:"sender"`
	Text              string     `json:"text"`
	MediaURL          string     `json:"mediaUrl,omitempty"`
	MediaType         MediaType  `json:"mediaType,omitempty"`
	TelegramMessageID *int       `json:"telegramMessageId,omitempty"`
	Read              bool       `json:"read"`
	CreatedAt         time.Time  `json:"createdAt"`
	EditedAt          *time.Time `json:"editedAt,omitempty"`
}

// HasMedia reports whether the message carries an attachment.
func (m *Message) HasMedia() bool {
	return m.MediaType != ""
}

// Media returns the attachment, nil when there is none.
func (m *Message) Media() *Media {
	if !m.HasMedia() {
		return nil
	}
	return &Media{Type: m.MediaType, URL: m.MediaURL}
}
