// Package telegram talks to the Telegram Bot API for the relay: outbound sends and
// edits go through a circuit breaker, inbound updates arrive by long polling or webhook.
package telegram

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"support_chat_server/internal/config"
	"support_chat_server/internal/model"
	"support_chat_server/internal/service/relay"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// FileURLPrefix marks media that lives on Telegram's servers; the rest is the file id.
const FileURLPrefix = "tg://file/"

// Client implements relay.TelegramClient.
type Client struct {
	bot *bot.Bot
	cb  *gobreaker.CircuitBreaker
}

var _ relay.TelegramClient = (*Client)(nil)

// NewClient creates the bot. Updates are dispatched to inbound, which may be nil for a send-only client.
func NewClient(conf *config.TelegramConfig, inbound InboundHandler, extra ...bot.Option) (*Client, error) {
	opts := []bot.Option{
		bot.WithDefaultHandler(updateHandler(inbound)),
	}
	if conf.APIServerURL != "" {
		opts = append(opts, bot.WithServerURL(conf.APIServerURL))
	}
	if conf.WebhookSecret != "" {
		opts = append(opts, bot.WithWebhookSecretToken(conf.WebhookSecret))
	}
	opts = append(opts, extra...)

	b, err := bot.New(conf.Token, opts...)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &Client{bot: b, cb: newBreaker(conf)}, nil
}

func newBreaker(conf *config.TelegramConfig) *gobreaker.CircuitBreaker {
	maxFailures := uint32(conf.BreakerMaxFailures)
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "telegram",
		MaxRequests: 1,
		Timeout:     time.Duration(conf.BreakerOpenSeconds) * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		// rejected requests mean the API is up
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, bot.ErrorBadRequest) ||
				errors.Is(err, bot.ErrorForbidden) ||
				errors.Is(err, bot.ErrorNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			zap.L().Warn("circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
}

// Bot exposes the underlying bot for the update loop.
func (c *Client) Bot() *bot.Bot {
	return c.bot
}

func (c *Client) call(fn func() (*models.Message, error)) (*models.Message, error) {
	res, err := c.cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %v", relay.ErrUnavailable, err)
	}
	if err != nil {
		return nil, err
	}
	msg, _ := res.(*models.Message)
	return msg, nil
}

// SendText sends a plain text message and returns its Telegram id.
func (c *Client) SendText(ctx context.Context, chatID int64, text string) (int, error) {
	msg, err := c.call(func() (*models.Message, error) {
		return c.bot.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: text})
	})
	return messageID(msg), err
}

// SendMedia sends an attachment with an optional caption, choosing the Bot API
// method from the media type.
func (c *Client) SendMedia(ctx context.Context, chatID int64, media model.Media, caption string) (int, error) {
	file, err := inputFile(media)
	if err != nil {
		return 0, err
	}
	msg, err := c.call(func() (*models.Message, error) {
		switch media.Type {
		case model.MediaPhoto:
			return c.bot.SendPhoto(ctx, &bot.SendPhotoParams{ChatID: chatID, Photo: file, Caption: caption})
		case model.MediaVideo:
			return c.bot.SendVideo(ctx, &bot.SendVideoParams{ChatID: chatID, Video: file, Caption: caption})
		case model.MediaAudio:
			return c.bot.SendAudio(ctx, &bot.SendAudioParams{ChatID: chatID, Audio: file, Caption: caption})
		default:
			return c.bot.SendDocument(ctx, &bot.SendDocumentParams{ChatID: chatID, Document: file, Caption: caption})
		}
	})
	return messageID(msg), err
}

// EditText edits a text message.
func (c *Client) EditText(ctx context.Context, chatID int64, messageID int, text string) error {
	_, err := c.call(func() (*models.Message, error) {
		return c.bot.EditMessageText(ctx, &bot.EditMessageTextParams{ChatID: chatID, MessageID: messageID, Text: text})
	})
	return err
}

// EditCaption edits the caption of a media message.
func (c *Client) EditCaption(ctx context.Context, chatID int64, messageID int, caption string) error {
	_, err := c.call(func() (*models.Message, error) {
		return c.bot.EditMessageCaption(ctx, &bot.EditMessageCaptionParams{ChatID: chatID, MessageID: messageID, Caption: caption})
	})
	return err
}

func messageID(msg *models.Message) int {
	if msg == nil {
		return 0
	}
	return msg.ID
}

// inputFile turns a stored media URL into something the Bot API accepts:
// inline photos are uploaded, tg://file/ ids are reused, anything else is fetched by Telegram.
func inputFile(media model.Media) (models.InputFile, error) {
	switch {
	case strings.HasPrefix(media.URL, FileURLPrefix):
		return &models.InputFileString{Data: strings.TrimPrefix(media.URL, FileURLPrefix)}, nil
	case strings.HasPrefix(media.URL, "data:"):
		data, ext, err := decodeDataURL(media.URL)
		if err != nil {
			return nil, err
		}
		return &models.InputFileUpload{Filename: string(media.Type) + ext, Data: bytes.NewReader(data)}, nil
	default:
		return &models.InputFileString{Data: media.URL}, nil
	}
}

// decodeDataURL handles the base64 form "data:<mime>;base64,<payload>".
func decodeDataURL(url string) ([]byte, string, error) {
	header, payload, ok := strings.Cut(strings.TrimPrefix(url, "data:"), ",")
	if !ok || !strings.HasSuffix(header, ";base64") {
		return nil, "", errors.New("inline media must be a base64 data URL")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("decode inline media: %w", err)
	}
	ext := ""
	if _, sub, ok := strings.Cut(strings.TrimSuffix(header, ";base64"), "/"); ok && sub != "" {
		ext = "." + sub
	}
	return data, ext, nil
}
