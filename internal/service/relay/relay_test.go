package relay

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"support_chat_server/internal/dao/docstore"
	"support_chat_server/internal/dao/sqlite"
	"support_chat_server/internal/model"
	"support_chat_server/internal/service/message"
	"support_chat_server/internal/service/session"
	"support_chat_server/pkg/errorx"
)

type call struct {
	method    string
	chatID    int64
	messageID int
	text      string
	media     *model.Media
}

type fakeTelegram struct {
	mu     sync.Mutex
	calls  []call
	nextID int
	err    error
}

func (f *fakeTelegram) record(c call) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
	if f.err != nil {
		return 0, f.err
	}
	f.nextID++
	return 1000 + f.nextID, nil
}

func (f *fakeTelegram) SendText(_ context.Context, chatID int64, text string) (int, error) {
	return f.record(call{method: "sendMessage", chatID: chatID, text: text})
}

func (f *fakeTelegram) SendMedia(_ context.Context, chatID int64, media model.Media, caption string) (int, error) {
	return f.record(call{method: "sendMedia", chatID: chatID, text: caption, media: &media})
}

func (f *fakeTelegram) EditText(_ context.Context, chatID int64, messageID int, text string) error {
	_, err := f.record(call{method: "editMessageText", chatID: chatID, messageID: messageID, text: text})
	return err
}

func (f *fakeTelegram) EditCaption(_ context.Context, chatID int64, messageID int, caption string) error {
	_, err := f.record(call{method: "editMessageCaption", chatID: chatID, messageID: messageID, text: caption})
	return err
}

func (f *fakeTelegram) last() call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

type fakeAlerter struct {
	mu   sync.Mutex
	msgs []*model.Message
}

func (a *fakeAlerter) NewMessage(_ *model.Session, msg *model.Message) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.msgs = append(a.msgs, msg)
}

type fixture struct {
	relay    *Relay
	tg       *fakeTelegram
	alerter  *fakeAlerter
	sessions interface {
		Sessions
		SetBlocked(ctx context.Context, id string, blocked bool) (bool, error)
	}
	messages Messages
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	backend, err := sqlite.Open(filepath.Join(t.TempDir(), "relay.db"))
	if err != nil {
		t.Fatalf("sqlite.Open: %v", err)
	}
	store := docstore.New(backend)
	t.Cleanup(func() { _ = store.Close() })

	sessions := session.NewSessionService(store)
	messages := message.NewMessageService(store, sessions)
	f := &fixture{tg: &fakeTelegram{}, alerter: &fakeAlerter{}, sessions: sessions, messages: messages}
	f.relay = New(f.tg, sessions, messages, f.alerter)
	return f
}

func TestSendAdminToTelegramLinks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.sessions.Ensure(ctx, "tg-77", "Bob", ""); err != nil {
		t.Fatal(err)
	}

	out, err := f.relay.SendAdmin(ctx, "tg-77", "hello", nil)
	if err != nil {
		t.Fatalf("SendAdmin: %v", err)
	}
	if out.State != StateRemoteLinked || out.Status != StatusSent {
		t.Fatalf("outcome = %+v", out)
	}
	if c := f.tg.last(); c.method != "sendMessage" || c.chatID != 77 || c.text != "hello" {
		t.Errorf("telegram call = %+v", c)
	}
	stored, err := f.messages.Get(ctx, "tg-77", out.Message.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.TelegramMessageID == nil || *stored.TelegramMessageID != 1001 {
		t.Errorf("stored telegram id = %v, want 1001", stored.TelegramMessageID)
	}
}

func TestSendAdminRemoteFailureKeepsLocalMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.sessions.Ensure(ctx, "tg-5", "Bob", "")
	f.tg.err = errors.New("connection refused")

	out, err := f.relay.SendAdmin(ctx, "tg-5", "hello", nil)
	if err != nil {
		t.Fatalf("remote failure returned as error: %v", err)
	}
	if out.State != StateRemoteFailed || !strings.HasPrefix(out.Status, "telegram proxy error: ") {
		t.Errorf("outcome = %+v", out)
	}
	stored, err := f.messages.Get(ctx, "tg-5", out.Message.ID)
	if err != nil {
		t.Fatalf("message not kept after remote failure: %v", err)
	}
	if stored.TelegramMessageID != nil {
		t.Error("failed send linked a telegram id")
	}

	f.tg.err = fmt.Errorf("breaker: %w", ErrUnavailable)
	out, _ = f.relay.SendAdmin(ctx, "tg-5", "again", nil)
	if out.Status != StatusUnavailable {
		t.Errorf("status = %q, want %q", out.Status, StatusUnavailable)
	}
}

func TestSendAdminWebSessionIsLocalOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.sessions.Ensure(ctx, "web-abc", "Ann", "")

	out, err := f.relay.SendAdmin(ctx, "web-abc", "hi", nil)
	if err != nil {
		t.Fatal(err)
	}
	if out.State != StateNotApplicable {
		t.Errorf("state = %s, want not applicable", out.State)
	}
	if len(f.tg.calls) != 0 {
		t.Errorf("web session reached telegram: %+v", f.tg.calls)
	}
}

func TestSendAdminBlockedRejectedBeforePersistence(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.sessions.Ensure(ctx, "tg-9", "Bob", "")
	f.sessions.SetBlocked(ctx, "tg-9", true)

	if _, err := f.relay.SendAdmin(ctx, "tg-9", "hi", nil); !errorx.HasCode(err, errorx.CodeBlocked) {
		t.Fatalf("error = %v, want blocked", err)
	}
	if len(f.tg.calls) != 0 {
		t.Error("blocked session reached telegram")
	}
}

func TestSendAdminMedia(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.sessions.Ensure(ctx, "tg-3", "Bob", "")

	out, err := f.relay.SendAdmin(ctx, "tg-3", "look", &model.Media{Type: model.MediaDocument, URL: "https://x/doc.pdf"})
	if err != nil {
		t.Fatal(err)
	}
	if c := f.tg.last(); c.method != "sendMedia" || c.media.Type != model.MediaDocument || c.text != "look" {
		t.Errorf("telegram call = %+v", c)
	}
	if out.State != StateRemoteLinked {
		t.Errorf("state = %s", out.State)
	}

	// non-photo inline payloads are stripped, the text goes out with a marker
	if _, err := f.relay.SendAdmin(ctx, "tg-3", "", &model.Media{Type: model.MediaVideo, URL: "data:video/mp4;base64,AA"}); err != nil {
		t.Fatal(err)
	}
	if c := f.tg.last(); c.method != "sendMessage" || !strings.Contains(c.text, "video") {
		t.Errorf("telegram call = %+v", c)
	}
}

func TestEditAdminChoosesTelegramCall(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.sessions.Ensure(ctx, "tg-4", "Bob", "")

	text, _ := f.relay.SendAdmin(ctx, "tg-4", "helo", nil)
	photo, _ := f.relay.SendAdmin(ctx, "tg-4", "cap", &model.Media{Type: model.MediaPhoto, URL: "https://x/p.png"})

	out, err := f.relay.EditAdmin(ctx, "tg-4", text.Message.ID, "hello")
	if err != nil {
		t.Fatal(err)
	}
	if c := f.tg.last(); c.method != "editMessageText" || c.messageID != *text.Message.TelegramMessageID {
		t.Errorf("text edit call = %+v", c)
	}
	if out.State != StateRemoteLinked || out.Message.Text != "hello" {
		t.Errorf("outcome = %+v", out)
	}

	if _, err := f.relay.EditAdmin(ctx, "tg-4", photo.Message.ID, "caption"); err != nil {
		t.Fatal(err)
	}
	if c := f.tg.last(); c.method != "editMessageCaption" || c.text != "caption" {
		t.Errorf("caption edit call = %+v", c)
	}
}

func TestEditAdminStrippedAttachmentEditsText(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.sessions.Ensure(ctx, "tg-9", "Bob", "")

	sent, err := f.relay.SendAdmin(ctx, "tg-9", "see file", &model.Media{Type: model.MediaDocument, URL: "data:application/pdf;base64,AAAA"})
	if err != nil {
		t.Fatal(err)
	}
	if c := f.tg.last(); c.method != "sendMessage" {
		t.Fatalf("send call = %+v, want sendMessage", c)
	}

	out, err := f.relay.EditAdmin(ctx, "tg-9", sent.Message.ID, "see attached file")
	if err != nil {
		t.Fatal(err)
	}
	c := f.tg.last()
	if c.method != "editMessageText" || c.text != "see attached file\n[document attachment]" {
		t.Errorf("edit call = %+v, want editMessageText with the attachment marker", c)
	}
	if out.State != StateRemoteLinked {
		t.Errorf("outcome = %+v", out)
	}
}

func TestEditAdminSameTextStaysLocal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.sessions.Ensure(ctx, "tg-5", "Bob", "")
	sent, _ := f.relay.SendAdmin(ctx, "tg-5", "hi", nil)

	if _, err := f.relay.EditAdmin(ctx, "tg-5", sent.Message.ID, "hello"); err != nil {
		t.Fatal(err)
	}
	calls := len(f.tg.calls)
	out, err := f.relay.EditAdmin(ctx, "tg-5", sent.Message.ID, "hello")
	if err != nil {
		t.Fatal(err)
	}
	if len(f.tg.calls) != calls {
		t.Errorf("unchanged edit reached telegram: %d calls, want %d", len(f.tg.calls), calls)
	}
	if out.State != StateNotApplicable || out.Status != StatusUnchanged {
		t.Errorf("outcome = %+v", out)
	}
}

func TestEditAdminUnlinkedStaysLocal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.sessions.Ensure(ctx, "tg-6", "Bob", "")
	f.tg.err = errors.New("down")
	sent, _ := f.relay.SendAdmin(ctx, "tg-6", "x", nil)
	f.tg.err = nil
	calls := len(f.tg.calls)

	out, err := f.relay.EditAdmin(ctx, "tg-6", sent.Message.ID, "y")
	if err != nil {
		t.Fatal(err)
	}
	if out.State != StateNotApplicable || len(f.tg.calls) != calls {
		t.Errorf("unlinked edit reached telegram: %+v", out)
	}
}

func TestHandleInbound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	msg, err := f.relay.HandleInbound(ctx, Inbound{ChatID: 12, UserName: "Carl", Text: "help"})
	if err != nil {
		t.Fatalf("HandleInbound: %v", err)
	}
	if msg.SessionID != "tg-12" || msg.Sender != model.SenderUser {
		t.Errorf("message = %+v", msg)
	}
	sess, err := f.sessions.Get(ctx, "tg-12")
	if err != nil {
		t.Fatal(err)
	}
	if sess.UserName != "Carl" || sess.UnreadCount != 1 {
		t.Errorf("session = %+v", sess)
	}
	if len(f.alerter.msgs) != 1 {
		t.Errorf("alerts = %d, want 1", len(f.alerter.msgs))
	}

	f.sessions.SetBlocked(ctx, "tg-12", true)
	if _, err := f.relay.HandleInbound(ctx, Inbound{ChatID: 12, Text: "spam"}); !errorx.HasCode(err, errorx.CodeBlocked) {
		t.Errorf("blocked inbound error = %v, want blocked", err)
	}
	if len(f.alerter.msgs) != 1 {
		t.Error("blocked inbound alerted the admin")
	}
}

func TestNilClient(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.sessions.Ensure(ctx, "tg-8", "Bob", "")
	r := New(nil, f.relay.sessions, f.relay.messages, nil)

	out, err := r.SendAdmin(ctx, "tg-8", "hi", nil)
	if err != nil {
		t.Fatal(err)
	}
	if out.State != StateRemoteFailed || out.Status != StatusUnavailable {
		t.Errorf("outcome = %+v", out)
	}
}
