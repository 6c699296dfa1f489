package message

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"support_chat_server/internal/dao/docstore"
	"support_chat_server/internal/dao/sqlite"
	"support_chat_server/internal/model"
	"support_chat_server/pkg/constants"
	"support_chat_server/pkg/errorx"
)

type touch struct {
	id      string
	preview string
	unread  bool
}

type fakeSessions struct {
	mu      sync.Mutex
	touches []touch
	deleted map[string]bool
}

func (f *fakeSessions) Touch(_ context.Context, id, preview string, _ time.Time, incrementUnread bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touches = append(f.touches, touch{id: id, preview: preview, unread: incrementUnread})
	return nil
}

func (f *fakeSessions) TouchExisting(ctx context.Context, id, preview string, at time.Time, incrementUnread bool) error {
	if f.deleted[id] {
		return errorx.ErrNotFound
	}
	return f.Touch(ctx, id, preview, at, incrementUnread)
}

func newTestService(t *testing.T) (*messageService, *fakeSessions) {
	t.Helper()
	backend, err := sqlite.Open(filepath.Join(t.TempDir(), "messages.db"))
	if err != nil {
		t.Fatalf("sqlite.Open: %v", err)
	}
	store := docstore.New(backend)
	t.Cleanup(func() { _ = store.Close() })
	sessions := &fakeSessions{}
	svc := NewMessageService(store, sessions)
	// strictly increasing clock so ordering does not depend on timer resolution
	base := time.Now()
	var tick time.Duration
	var mu sync.Mutex
	svc.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		tick += time.Millisecond
		return base.Add(tick)
	}
	return svc, sessions
}

func TestAppendStoresAndTouches(t *testing.T) {
	svc, sessions := newTestService(t)
	ctx := context.Background()

	msg, err := svc.Append(ctx, AppendRequest{SessionID: "web-1", Sender: model.SenderUser, Text: "  hello  "})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if msg.ID == "" || msg.Text != "hello" || msg.Read {
		t.Errorf("message = %+v", msg)
	}
	if _, err := svc.Append(ctx, AppendRequest{SessionID: "web-1", Sender: model.SenderAdmin, Text: "hi"}); err != nil {
		t.Fatal(err)
	}

	if len(sessions.touches) != 2 {
		t.Fatalf("touches = %d, want 2", len(sessions.touches))
	}
	if !sessions.touches[0].unread || sessions.touches[1].unread {
		t.Errorf("unread increments = %+v, want only for user messages", sessions.touches)
	}
	got, err := svc.Get(ctx, "web-1", msg.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Sender != model.SenderUser || got.SessionID != "web-1" {
		t.Errorf("Get = %+v", got)
	}
}

func TestAppendValidation(t *testing.T) {
	svc, sessions := newTestService(t)
	ctx := context.Background()
	tests := []struct {
		name string
		req  AppendRequest
	}{
		{"empty", AppendRequest{SessionID: "web-1", Sender: model.SenderUser, Text: "   "}},
		{"no session", AppendRequest{Sender: model.SenderUser, Text: "x"}},
		{"bad sender", AppendRequest{SessionID: "web-1", Sender: "bot", Text: "x"}},
		{"bad media", AppendRequest{SessionID: "web-1", Sender: model.SenderUser, Media: &model.Media{Type: "sticker", URL: "u"}}},
		{"too long", AppendRequest{SessionID: "web-1", Sender: model.SenderUser, Text: strings.Repeat("a", constants.MAX_TEXT_RUNES+1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Append(ctx, tt.req); !errorx.HasCode(err, errorx.CodeValidation) {
				t.Fatalf("error = %v, want validation", err)
			}
		})
	}
	if len(sessions.touches) != 0 {
		t.Errorf("rejected appends touched the session")
	}
}

func TestMediaPolicy(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	photo, err := svc.Append(ctx, AppendRequest{SessionID: "web-1", Sender: model.SenderUser,
		Media: &model.Media{Type: model.MediaPhoto, URL: "data:image/png;base64,AAAA"}})
	if err != nil {
		t.Fatalf("inline photo: %v", err)
	}
	if photo.MediaURL != "data:image/png;base64,AAAA" {
		t.Errorf("inline photo payload dropped: %q", photo.MediaURL)
	}

	video, err := svc.Append(ctx, AppendRequest{SessionID: "web-1", Sender: model.SenderUser,
		Media: &model.Media{Type: model.MediaVideo, URL: "data:video/mp4;base64,AAAA"}})
	if err != nil {
		t.Fatalf("inline video: %v", err)
	}
	if video.MediaURL != "" || video.MediaType != model.MediaVideo {
		t.Errorf("inline video = %+v, want type only", video)
	}

	huge := "data:image/png;base64," + strings.Repeat("A", constants.INLINE_PHOTO_MAX_SIZE)
	if _, err := svc.Append(ctx, AppendRequest{SessionID: "web-1", Sender: model.SenderUser,
		Media: &model.Media{Type: model.MediaPhoto, URL: huge}}); !errorx.HasCode(err, errorx.CodeValidation) {
		t.Errorf("oversized inline photo error = %v, want validation", err)
	}
}

func TestEdit(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	msg, _ := svc.Append(ctx, AppendRequest{SessionID: "tg-1", Sender: model.SenderAdmin, Text: "helo"})
	if err := svc.LinkTelegram(ctx, "tg-1", msg.ID, 55); err != nil {
		t.Fatal(err)
	}

	edited, changed, err := svc.Edit(ctx, "tg-1", msg.ID, "hello")
	if err != nil || !changed {
		t.Fatalf("Edit: %v", err)
	}
	if edited.Text != "hello" || edited.EditedAt == nil {
		t.Errorf("edited = %+v", edited)
	}
	if edited.TelegramMessageID == nil || *edited.TelegramMessageID != 55 {
		t.Errorf("edit changed telegram id: %v", edited.TelegramMessageID)
	}

	same, changed, err := svc.Edit(ctx, "tg-1", msg.ID, "hello")
	if err != nil || changed || !same.EditedAt.Equal(*edited.EditedAt) {
		t.Errorf("same-text edit was not a no-op: %+v, %v", same, err)
	}

	if _, _, err := svc.Edit(ctx, "tg-1", msg.ID, " "); !errorx.HasCode(err, errorx.CodeValidation) {
		t.Errorf("empty edit error = %v, want validation", err)
	}
	if _, _, err := svc.Edit(ctx, "tg-1", "missing", "x"); !errorx.IsNotFound(err) {
		t.Errorf("edit missing error = %v, want not found", err)
	}

	captioned, _ := svc.Append(ctx, AppendRequest{SessionID: "tg-1", Sender: model.SenderAdmin, Text: "cap",
		Media: &model.Media{Type: model.MediaPhoto, URL: "https://x/y.png"}})
	if _, _, err := svc.Edit(ctx, "tg-1", captioned.ID, ""); err != nil {
		t.Errorf("clearing a caption: %v", err)
	}
}

func TestLinkTelegramIsSetOnce(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	msg, _ := svc.Append(ctx, AppendRequest{SessionID: "tg-1", Sender: model.SenderAdmin, Text: "x"})

	if err := svc.LinkTelegram(ctx, "tg-1", msg.ID, 10); err != nil {
		t.Fatal(err)
	}
	if err := svc.LinkTelegram(ctx, "tg-1", msg.ID, 10); err != nil {
		t.Errorf("relinking the same id: %v", err)
	}
	if err := svc.LinkTelegram(ctx, "tg-1", msg.ID, 11); !errorx.HasCode(err, errorx.CodeConflict) {
		t.Errorf("relinking another id error = %v, want conflict", err)
	}
}

func TestPageWalksBackwards(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	var ids []string
	for i := 0; i < 7; i++ {
		msg, err := svc.Append(ctx, AppendRequest{SessionID: "web-1", Sender: model.SenderUser, Text: "m"})
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, msg.ID)
	}

	page, err := svc.Page(ctx, PageRequest{SessionID: "web-1", Limit: 3})
	if err != nil {
		t.Fatalf("Page: %v", err)
	}
	if !page.HasMore || len(page.Messages) != 3 {
		t.Fatalf("first page = %+v", page)
	}
	if page.Messages[0].ID != ids[4] || page.Messages[2].ID != ids[6] {
		t.Errorf("first page not the newest window oldest-first")
	}

	var seen []string
	for page.HasMore {
		page, err = svc.Page(ctx, PageRequest{SessionID: "web-1", Limit: 3, Before: page.NextCursor})
		if err != nil {
			t.Fatal(err)
		}
		for _, m := range page.Messages {
			seen = append(seen, m.ID)
		}
	}
	want := []string{ids[1], ids[2], ids[3], ids[0]}
	if strings.Join(seen, ",") != strings.Join(want, ",") {
		t.Errorf("older pages = %v, want %v", seen, want)
	}

	if _, err := svc.Page(ctx, PageRequest{SessionID: "web-1", Before: "garbage"}); !errorx.HasCode(err, errorx.CodeInvalidParam) {
		t.Errorf("bad cursor error = %v, want invalid param", err)
	}
}

func TestPageStableUnderAppend(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	var ids []string
	for i := 0; i < 8; i++ {
		msg, err := svc.Append(ctx, AppendRequest{SessionID: "web-1", Sender: model.SenderUser, Text: "m"})
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, msg.ID)
	}

	page, err := svc.Page(ctx, PageRequest{SessionID: "web-1", Limit: 3})
	if err != nil {
		t.Fatal(err)
	}
	seen := map[string]int{}
	for _, m := range page.Messages {
		seen[m.ID]++
	}

	late, err := svc.Append(ctx, AppendRequest{SessionID: "web-1", Sender: model.SenderAdmin, Text: "late"})
	if err != nil {
		t.Fatal(err)
	}

	for page.HasMore {
		page, err = svc.Page(ctx, PageRequest{SessionID: "web-1", Limit: 3, Before: page.NextCursor})
		if err != nil {
			t.Fatal(err)
		}
		for _, m := range page.Messages {
			seen[m.ID]++
		}
	}

	if len(seen) != len(ids) {
		t.Errorf("walked %d messages, want %d", len(seen), len(ids))
	}
	for _, id := range ids {
		if seen[id] != 1 {
			t.Errorf("message %s seen %d times", id, seen[id])
		}
	}
	if seen[late.ID] != 0 {
		t.Error("message appended after the first page showed up in older pages")
	}

	newest, err := svc.Page(ctx, PageRequest{SessionID: "web-1", Limit: 3})
	if err != nil {
		t.Fatal(err)
	}
	if n := len(newest.Messages); n == 0 || newest.Messages[n-1].ID != late.ID {
		t.Errorf("fresh first page does not end with the late message")
	}
}

func TestAppendToDeletedSessionIsUndone(t *testing.T) {
	svc, sessions := newTestService(t)
	ctx := context.Background()
	sessions.deleted = map[string]bool{"web-gone": true}

	_, err := svc.Append(ctx, AppendRequest{SessionID: "web-gone", Sender: model.SenderUser, Text: "late", SessionChecked: true})
	if !errorx.IsNotFound(err) {
		t.Fatalf("error = %v, want not found", err)
	}
	page, err := svc.Page(ctx, PageRequest{SessionID: "web-gone"})
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Messages) != 0 {
		t.Errorf("message of a deleted session kept: %+v", page.Messages)
	}

	// unchecked appends keep the upsert behaviour
	if _, err := svc.Append(ctx, AppendRequest{SessionID: "web-gone", Sender: model.SenderUser, Text: "x"}); err != nil {
		t.Errorf("unchecked append: %v", err)
	}
}

func TestMarkReadAndDelete(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	a, _ := svc.Append(ctx, AppendRequest{SessionID: "web-1", Sender: model.SenderUser, Text: "a"})
	b, _ := svc.Append(ctx, AppendRequest{SessionID: "web-1", Sender: model.SenderUser, Text: "b"})

	if err := svc.Delete(ctx, "web-1", b.ID); err != nil {
		t.Fatal(err)
	}
	if err := svc.MarkRead(ctx, "web-1", []string{a.ID, b.ID}); err != nil {
		t.Fatalf("MarkRead with a deleted id: %v", err)
	}
	got, _ := svc.Get(ctx, "web-1", a.ID)
	if !got.Read {
		t.Error("message not marked read")
	}
	if _, err := svc.Get(ctx, "web-1", b.ID); !errorx.IsNotFound(err) {
		t.Errorf("deleted message still present: %v", err)
	}
}

func TestSubscribeWindow(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	got := make(chan []model.Message, 8)
	unsub, err := svc.Subscribe(ctx, "web-1", 2, func(msgs []model.Message, err error) {
		if err == nil {
			got <- msgs
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	defer unsub()
	<-got

	for _, text := range []string{"one", "two", "three"} {
		if _, err := svc.Append(ctx, AppendRequest{SessionID: "web-1", Sender: model.SenderUser, Text: text}); err != nil {
			t.Fatal(err)
		}
	}
	deadline := time.After(2 * time.Second)
	for {
		select {
		case msgs := <-got:
			if len(msgs) == 2 && msgs[0].Text == "two" && msgs[1].Text == "three" {
				return
			}
		case <-deadline:
			t.Fatal("window never showed the two newest messages")
		}
	}
}

func TestCursorRoundTrip(t *testing.T) {
	c, err := ParseCursor(FormatCursor(docstore.Cursor{SortKey: 42, ID: "abc"}))
	if err != nil || c.SortKey != 42 || c.ID != "abc" {
		t.Fatalf("ParseCursor = %+v, %v", c, err)
	}
}
