// Package relay bridges admin replies to Telegram and Telegram messages into the log.
//
// An outbound admin message moves through
//
//	Composed -> LocallyPersisted -> RemoteSendAttempted -> RemoteLinked | RemoteFailed
//
// and ends in NotApplicable for web sessions. Remote failures are reported as a
// status string on the Outcome and never returned as errors: the local message
// stays stored and editable.
package relay

import (
	"context"
	"errors"
	"fmt"

	"support_chat_server/internal/model"
	"support_chat_server/internal/service/message"
	"support_chat_server/pkg/constants"
	"support_chat_server/pkg/errorx"

	"go.uber.org/zap"
)

// State of an outbound admin message.
type State string

const (
	StateComposed            State = "composed"
	StateLocallyPersisted    State = "locally_persisted"
	StateRemoteSendAttempted State = "remote_send_attempted"
	StateRemoteLinked        State = "remote_linked"
	StateRemoteFailed        State = "remote_failed"
	StateNotApplicable       State = "not_applicable"
)

// Status strings shown to the admin.
const (
	StatusSent           = "sent to Telegram"
	StatusEdited         = "edit mirrored to Telegram"
	StatusNotTelegram    = "not a Telegram session"
	StatusUnavailable    = "telegram unavailable"
	StatusNotLinked      = "not linked to a Telegram message, edited locally"
	StatusUnchanged      = "nothing changed"
	statusProxyErrPrefix = "telegram proxy error: "
)

// ErrUnavailable is returned by a TelegramClient that refuses calls, e.g. an open circuit breaker.
var ErrUnavailable = errors.New("telegram unavailable")

// TelegramClient is the outbound Bot API surface. Message ids are Telegram's.
type TelegramClient interface {
	SendText(ctx context.Context, chatID int64, text string) (int, error)
	SendMedia(ctx context.Context, chatID int64, media model.Media, caption string) (int, error)
	EditText(ctx context.Context, chatID int64, messageID int, text string) error
	EditCaption(ctx context.Context, chatID int64, messageID int, caption string) error
}

// Sessions is the registry surface the relay needs.
type Sessions interface {
	Get(ctx context.Context, id string) (*model.Session, error)
	Ensure(ctx context.Context, id, userName, phone string) (*model.Session, error)
}

// Messages is the log surface the relay needs.
type Messages interface {
	Append(ctx context.Context, req message.AppendRequest) (*model.Message, error)
	Edit(ctx context.Context, sessionID, messageID, newText string) (*model.Message, bool, error)
	Get(ctx context.Context, sessionID, messageID string) (*model.Message, error)
	LinkTelegram(ctx context.Context, sessionID, messageID string, telegramMessageID int) error
}

// Alerter tells the admin about a new customer message. It must not block.
type Alerter interface {
	NewMessage(sess *model.Session, msg *model.Message)
}

// Outcome reports what happened to an admin send or edit.
type Outcome struct {
	Message *model.Message `json:"message"`
	State   State          `json:"state"`
	Status  string         `json:"status,omitempty"`
}

// Inbound is a customer message received from Telegram.
type Inbound struct {
	ChatID            int64
	UserName          string
	Phone             string
	Text              string
	Media             *model.Media
	TelegramMessageID int
}

// Relay implements both directions.
type Relay struct {
	client   TelegramClient // nil when Telegram is disabled
	sessions Sessions
	messages Messages
	alerter  Alerter
}

// New builds a relay. client may be nil, in which case Telegram sessions end in StateRemoteFailed.
func New(client TelegramClient, sessions Sessions, messages Messages, alerter Alerter) *Relay {
	return &Relay{client: client, sessions: sessions, messages: messages, alerter: alerter}
}

// SendAdmin stores an admin reply and, for Telegram sessions, sends it to the chat.
// Blocked sessions are rejected before anything is stored.
func (r *Relay) SendAdmin(ctx context.Context, sessionID, text string, media *model.Media) (*Outcome, error) {
	sess, err := r.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Blocked {
		return nil, errorx.ErrBlocked
	}

	out := &Outcome{State: StateComposed}
	msg, err := r.messages.Append(ctx, message.AppendRequest{
		SessionID:      sessionID,
		Sender:         model.SenderAdmin,
		Text:           text,
		Media:          media,
		SessionChecked: true,
	})
	if err != nil {
		return nil, err
	}
	out.Message = msg
	out.State = StateLocallyPersisted

	if !sess.IsTelegram() {
		out.State = StateNotApplicable
		return out, nil
	}
	chatID, ok := model.TelegramChatID(sessionID)
	if !ok {
		out.State = StateRemoteFailed
		out.Status = StatusNotTelegram
		return out, nil
	}
	if r.client == nil {
		out.State = StateRemoteFailed
		out.Status = StatusUnavailable
		return out, nil
	}

	out.State = StateRemoteSendAttempted
	tgID, err := r.send(ctx, chatID, msg)
	if err != nil {
		out.State = StateRemoteFailed
		out.Status = remoteStatus(err)
		zap.L().Warn("relay send failed",
			zap.String("session_id", sessionID),
			zap.String("message_id", msg.ID),
			zap.Error(err),
		)
		return out, nil
	}

	if err := r.messages.LinkTelegram(ctx, sessionID, msg.ID, tgID); err != nil {
		// delivered but not correlated; later edits stay local
		zap.L().Error("relay link failed",
			zap.String("session_id", sessionID),
			zap.String("message_id", msg.ID),
			zap.Int("telegram_message_id", tgID),
			zap.Error(err),
		)
		out.State = StateRemoteFailed
		out.Status = fmt.Sprintf("sent to Telegram but not linked: %v", err)
		return out, nil
	}
	linked := tgID
	msg.TelegramMessageID = &linked
	out.State = StateRemoteLinked
	out.Status = StatusSent
	return out, nil
}

func (r *Relay) send(ctx context.Context, chatID int64, msg *model.Message) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.TELEGRAM_CALL_TIMEOUT)
	defer cancel()
	media := msg.Media()
	if media == nil {
		return r.client.SendText(ctx, chatID, msg.Text)
	}
	if media.URL == "" {
		// inline payload stripped by the log; the customer still gets the text
		return r.client.SendText(ctx, chatID, withMarker(msg.Text, media.Type))
	}
	return r.client.SendMedia(ctx, chatID, *media, msg.Text)
}

// EditAdmin edits a message locally and mirrors the edit when the session is a
// Telegram session and the message was linked. The remote call follows what send
// delivered: a caption edit for media, a text edit for text and stripped attachments.
// An edit that changes nothing stays local.
func (r *Relay) EditAdmin(ctx context.Context, sessionID, messageID, text string) (*Outcome, error) {
	msg, changed, err := r.messages.Edit(ctx, sessionID, messageID, text)
	if err != nil {
		return nil, err
	}
	out := &Outcome{Message: msg, State: StateLocallyPersisted}
	if !changed {
		out.State = StateNotApplicable
		out.Status = StatusUnchanged
		return out, nil
	}

	if !model.IsTelegramSessionID(sessionID) {
		out.State = StateNotApplicable
		return out, nil
	}
	if msg.TelegramMessageID == nil {
		out.State = StateNotApplicable
		out.Status = StatusNotLinked
		return out, nil
	}
	chatID, ok := model.TelegramChatID(sessionID)
	if !ok {
		out.State = StateRemoteFailed
		out.Status = StatusNotTelegram
		return out, nil
	}
	if r.client == nil {
		out.State = StateRemoteFailed
		out.Status = StatusUnavailable
		return out, nil
	}

	out.State = StateRemoteSendAttempted
	callCtx, cancel := context.WithTimeout(ctx, constants.TELEGRAM_CALL_TIMEOUT)
	defer cancel()
	switch media := msg.Media(); {
	case media == nil:
		err = r.client.EditText(callCtx, chatID, *msg.TelegramMessageID, msg.Text)
	case media.URL == "":
		err = r.client.EditText(callCtx, chatID, *msg.TelegramMessageID, withMarker(msg.Text, media.Type))
	default:
		err = r.client.EditCaption(callCtx, chatID, *msg.TelegramMessageID, msg.Text)
	}
	if err != nil {
		out.State = StateRemoteFailed
		out.Status = remoteStatus(err)
		zap.L().Warn("relay edit failed",
			zap.String("session_id", sessionID),
			zap.String("message_id", messageID),
			zap.Error(err),
		)
		return out, nil
	}
	out.State = StateRemoteLinked
	out.Status = StatusEdited
	return out, nil
}

// HandleInbound stores a Telegram message as a customer message of session
// "tg-<chatId>" and alerts the admin. Messages of blocked sessions are dropped.
func (r *Relay) HandleInbound(ctx context.Context, in Inbound) (*model.Message, error) {
	sessionID := model.TelegramSessionID(in.ChatID)
	sess, err := r.sessions.Ensure(ctx, sessionID, in.UserName, in.Phone)
	if err != nil {
		return nil, err
	}
	if sess.Blocked {
		zap.L().Info("inbound message from blocked session dropped",
			zap.String("session_id", sessionID),
			zap.Int("telegram_message_id", in.TelegramMessageID),
		)
		return nil, errorx.ErrBlocked
	}

	msg, err := r.messages.Append(ctx, message.AppendRequest{
		SessionID:      sessionID,
		Sender:         model.SenderUser,
		Text:           in.Text,
		Media:          in.Media,
		SessionChecked: true,
	})
	if err != nil {
		return nil, err
	}
	if r.alerter != nil {
		r.alerter.NewMessage(sess, msg)
	}
	return msg, nil
}

func remoteStatus(err error) string {
	if errors.Is(err, ErrUnavailable) {
		return StatusUnavailable
	}
	return statusProxyErrPrefix + err.Error()
}

func withMarker(text string, mediaType model.MediaType) string {
	marker := "[" + string(mediaType) + " attachment]"
	if text == "" {
		return marker
	}
	return text + "\n" + marker
}
