package telegram

import (
	"context"
	"net/http"
	"strings"

	"support_chat_server/internal/model"
	"support_chat_server/internal/service/relay"
	"support_chat_server/pkg/errorx"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"
)

// InboundHandler stores customer messages received from Telegram.
type InboundHandler interface {
	HandleInbound(ctx context.Context, in relay.Inbound) (*model.Message, error)
}

func updateHandler(inbound InboundHandler) bot.HandlerFunc {
	return func(ctx context.Context, _ *bot.Bot, update *models.Update) {
		if inbound == nil {
			return
		}
		in, ok := ToInbound(update)
		if !ok {
			return
		}
		if _, err := inbound.HandleInbound(ctx, in); err != nil {
			if errorx.HasCode(err, errorx.CodeBlocked) {
				return
			}
			zap.L().Error("handle telegram update failed",
				zap.Int64("update_id", update.ID),
				zap.Int64("chat_id", in.ChatID),
				zap.Error(err),
			)
		}
	}
}

// ToInbound converts a private-chat message update. Other updates are ignored.
func ToInbound(update *models.Update) (relay.Inbound, bool) {
	if update == nil || update.Message == nil {
		return relay.Inbound{}, false
	}
	m := update.Message
	if m.Chat.Type != "" && m.Chat.Type != models.ChatTypePrivate {
		return relay.Inbound{}, false
	}

	in := relay.Inbound{
		ChatID:            m.Chat.ID,
		UserName:          displayName(m),
		Text:              m.Text,
		TelegramMessageID: m.ID,
	}
	if m.Contact != nil {
		in.Phone = m.Contact.PhoneNumber
	}
	if media := mediaOf(m); media != nil {
		in.Media = media
		in.Text = m.Caption
	}
	if in.Text == "" && in.Media == nil {
		return relay.Inbound{}, false
	}
	return in, true
}

func mediaOf(m *models.Message) *model.Media {
	switch {
	case len(m.Photo) > 0:
		// sizes are ordered smallest first
		return fileMedia(model.MediaPhoto, m.Photo[len(m.Photo)-1].FileID)
	case m.Video != nil:
		return fileMedia(model.MediaVideo, m.Video.FileID)
	case m.Audio != nil:
		return fileMedia(model.MediaAudio, m.Audio.FileID)
	case m.Voice != nil:
		return fileMedia(model.MediaAudio, m.Voice.FileID)
	case m.Document != nil:
		return fileMedia(model.MediaDocument, m.Document.FileID)
	}
	return nil
}

func fileMedia(t model.MediaType, fileID string) *model.Media {
	return &model.Media{Type: t, URL: FileURLPrefix + fileID}
}

func displayName(m *models.Message) string {
	if m.From != nil {
		name := strings.TrimSpace(m.From.FirstName + " " + m.From.LastName)
		if name != "" {
			return name
		}
		if m.From.Username != "" {
			return m.From.Username
		}
	}
	return strings.TrimSpace(m.Chat.FirstName + " " + m.Chat.LastName)
}

// Poll consumes updates by long polling until ctx is done.
func (c *Client) Poll(ctx context.Context) error {
	zap.L().Info("telegram long polling started")
	c.bot.Start(ctx)
	zap.L().Info("telegram long polling stopped")
	return nil
}

// ServeWebhook processes updates pushed to WebhookHandler until ctx is done.
func (c *Client) ServeWebhook(ctx context.Context) error {
	zap.L().Info("telegram webhook processing started")
	c.bot.StartWebhook(ctx)
	zap.L().Info("telegram webhook processing stopped")
	return nil
}

// WebhookHandler accepts updates posted by Telegram. The secret token header is
// checked by the bot when one is configured.
func (c *Client) WebhookHandler() http.HandlerFunc {
	return c.bot.WebhookHandler()
}
