// Package notify alerts the admin about new customer messages through a separate
// Telegram bot. Alerts are best effort: they run on the worker pool and failures
// are only logged.
package notify

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"support_chat_server/internal/config"
	"support_chat_server/internal/infrastructure/worker"
	"support_chat_server/internal/model"
	"support_chat_server/internal/service/relay"
	"support_chat_server/pkg/constants"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Notifier delivers one alert text.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// Nop drops every alert; used when no admin chat is configured.
type Nop struct{}

func (Nop) Notify(context.Context, string) error { return nil }

// TelegramNotifier sends alerts to a fixed admin chat.
type TelegramNotifier struct {
	api    *tgbotapi.BotAPI
	chatID int64
}

// NewNotifier returns a TelegramNotifier, or Nop when the side channel is not configured.
func NewNotifier(conf *config.TelegramConfig) (Notifier, error) {
	if conf.NotifyToken == "" || conf.AdminChatID == 0 {
		zap.L().Info("admin notifications disabled (notifyToken or adminChatId empty)")
		return Nop{}, nil
	}
	endpoint := conf.NotifyAPIEndpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	api, err := tgbotapi.NewBotAPIWithClient(conf.NotifyToken, endpoint, &http.Client{Timeout: constants.NOTIFY_TIMEOUT})
	if err != nil {
		return nil, fmt.Errorf("create notification bot: %w", err)
	}
	zap.L().Info("admin notification bot authorized", zap.String("username", api.Self.UserName))
	return &TelegramNotifier{api: api, chatID: conf.AdminChatID}, nil
}

// Notify sends text to the admin chat. The Bot API client has no context
// support; the HTTP client timeout bounds the call instead.
func (n *TelegramNotifier) Notify(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(n.chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := n.api.Send(msg); err != nil {
		return fmt.Errorf("send admin notification: %w", err)
	}
	return nil
}

// Dispatcher implements relay.Alerter on top of a worker pool.
type Dispatcher struct {
	notifier Notifier
	pool     *worker.Pool
}

var _ relay.Alerter = (*Dispatcher)(nil)

func NewDispatcher(notifier Notifier, pool *worker.Pool) *Dispatcher {
	return &Dispatcher{notifier: notifier, pool: pool}
}

// NewMessage queues an alert for msg and returns immediately.
func (d *Dispatcher) NewMessage(sess *model.Session, msg *model.Message) {
	if _, nop := d.notifier.(Nop); nop {
		return
	}
	text := FormatAlert(sess, msg)
	accepted := d.pool.Submit(func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, constants.NOTIFY_TIMEOUT)
		defer cancel()
		if err := d.notifier.Notify(ctx, text); err != nil {
			zap.L().Warn("admin notification failed",
				zap.String("session_id", msg.SessionID),
				zap.String("message_id", msg.ID),
				zap.Error(err),
			)
		}
	})
	if !accepted {
		zap.L().Warn("admin notification not queued", zap.String("session_id", msg.SessionID))
	}
}

// FormatAlert renders the alert text for a customer message.
func FormatAlert(sess *model.Session, msg *model.Message) string {
	var b strings.Builder
	b.WriteString("New message from ")
	name := ""
	if sess != nil {
		name = sess.UserName
	}
	if name == "" {
		name = "customer"
	}
	b.WriteString(name)
	fmt.Fprintf(&b, " (%s)", msg.SessionID)
	if sess != nil && sess.IsTelegram() {
		b.WriteString(" via Telegram")
	}
	b.WriteString(":\n")

	body := msg.Text
	if msg.HasMedia() {
		marker := "[" + string(msg.MediaType) + "]"
		if body == "" {
			body = marker
		} else {
			body = marker + " " + body
		}
	}
	if utf8.RuneCountInString(body) > constants.PREVIEW_MAX_RUNES {
		body = string([]rune(body)[:constants.PREVIEW_MAX_RUNES]) + "…"
	}
	b.WriteString(body)
	return b.String()
}
