package docstore_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"support_chat_server/internal/dao/docstore"
	"support_chat_server/internal/dao/sqlite"
	"support_chat_server/pkg/errorx"
)

func newAdapter(t *testing.T, opts ...docstore.Option) *docstore.Adapter {
	t.Helper()
	backend, err := sqlite.Open(filepath.Join(t.TempDir(), "docs.db"))
	if err != nil {
		t.Fatalf("sqlite.Open: %v", err)
	}
	a := docstore.New(backend, opts...)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestAppendAssignsOrPreservesID(t *testing.T) {
	a := newAdapter(t, docstore.WithIDGenerator(func() string { return "generated" }))
	ctx := context.Background()

	doc, err := a.Append(ctx, "sessions", docstore.Document{Data: map[string]any{"userName": "x"}})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if doc.ID != "generated" {
		t.Errorf("ID = %q, want generated", doc.ID)
	}

	doc, err = a.Append(ctx, "sessions", docstore.Document{ID: "web-1"})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if doc.ID != "web-1" {
		t.Errorf("ID = %q, want web-1", doc.ID)
	}
	if doc.CreateTime.IsZero() || doc.UpdateTime.IsZero() {
		t.Error("timestamps not assigned")
	}
}

func TestInvalidPaths(t *testing.T) {
	a := newAdapter(t)
	ctx := context.Background()
	for _, path := range []string{"", "sessions/s1", "sessions//messages", "/sessions"} {
		if _, err := a.Append(ctx, path, docstore.Document{}); !errorx.HasCode(err, errorx.CodeValidation) {
			t.Errorf("Append(%q) error = %v, want validation", path, err)
		}
	}
	if _, err := a.Put(ctx, "sessions", "a/b", docstore.Patch{}); !errorx.HasCode(err, errorx.CodeValidation) {
		t.Errorf("Put with slash id error = %v, want validation", err)
	}
}

func TestPutCheckRunsInsideWrite(t *testing.T) {
	a := newAdapter(t)
	ctx := context.Background()
	path := docstore.MessagesPath("tg-1")
	if _, err := a.Append(ctx, path, docstore.Document{ID: "m1", Data: map[string]any{}}); err != nil {
		t.Fatal(err)
	}

	setOnce := func(v int) docstore.Patch {
		return docstore.Patch{
			Fields:    map[string]any{"telegramMessageId": v},
			MustExist: true,
			Check: func(cur docstore.Document, _ bool) error {
				if cur.Data["telegramMessageId"] != nil {
					return errorx.New(errorx.CodeConflict, "already linked")
				}
				return nil
			},
		}
	}
	if _, err := a.Put(ctx, path, "m1", setOnce(7)); err != nil {
		t.Fatalf("first link: %v", err)
	}
	if _, err := a.Put(ctx, path, "m1", setOnce(8)); !errorx.HasCode(err, errorx.CodeConflict) {
		t.Fatalf("second link error = %v, want conflict", err)
	}
	doc, err := a.Get(ctx, path, "m1")
	if err != nil {
		t.Fatal(err)
	}
	if doc.Data["telegramMessageId"] != float64(7) {
		t.Errorf("telegramMessageId = %v, want 7", doc.Data["telegramMessageId"])
	}
}

type recorder struct {
	mu    sync.Mutex
	snaps [][]docstore.Document
	ch    chan struct{}
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan struct{}, 16)}
}

func (r *recorder) fn(docs []docstore.Document, err error) {
	if err != nil {
		return
	}
	r.mu.Lock()
	r.snaps = append(r.snaps, docs)
	r.mu.Unlock()
	r.ch <- struct{}{}
}

func (r *recorder) wait(t *testing.T) []docstore.Document {
	t.Helper()
	select {
	case <-r.ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snaps[len(r.snaps)-1]
}

func TestSubscribeDeliversSnapshots(t *testing.T) {
	a := newAdapter(t)
	ctx := context.Background()
	path := docstore.MessagesPath("web-1")
	if _, err := a.Append(ctx, path, docstore.Document{ID: "1", SortKey: 1}); err != nil {
		t.Fatal(err)
	}

	rec := newRecorder()
	unsub, err := a.Subscribe(ctx, path, docstore.Query{}, rec.fn)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if got := rec.wait(t); len(got) != 1 {
		t.Fatalf("initial snapshot has %d docs, want 1", len(got))
	}

	if _, err := a.Append(ctx, path, docstore.Document{ID: "2", SortKey: 2}); err != nil {
		t.Fatal(err)
	}
	got := rec.wait(t)
	for len(got) != 2 {
		got = rec.wait(t)
	}

	// writes to other paths do not wake the subscription
	if _, err := a.Append(ctx, docstore.MessagesPath("web-2"), docstore.Document{ID: "x"}); err != nil {
		t.Fatal(err)
	}
	select {
	case <-rec.ch:
		t.Fatal("unexpected snapshot for unrelated path")
	case <-time.After(100 * time.Millisecond):
	}

	unsub()
	unsub()
	deadline := time.Now().Add(2 * time.Second)
	for a.Subscriptions() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscription not released after unsubscribe")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestSubscribeEndsWithContext(t *testing.T) {
	a := newAdapter(t)
	ctx, cancel := context.WithCancel(context.Background())
	rec := newRecorder()
	unsub, err := a.Subscribe(ctx, docstore.SessionsPath, docstore.Query{Desc: true}, rec.fn)
	if err != nil {
		t.Fatal(err)
	}
	defer unsub()
	rec.wait(t)

	cancel()
	deadline := time.Now().Add(2 * time.Second)
	for a.Subscriptions() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscription not released after cancel")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

type fakeFeed struct {
	mu        sync.Mutex
	published []docstore.Change
	incoming  chan docstore.Change
}

func (f *fakeFeed) Publish(_ context.Context, c docstore.Change) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, c)
	return nil
}

func (f *fakeFeed) Run(ctx context.Context, deliver func(docstore.Change)) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case c := <-f.incoming:
			deliver(c)
		}
	}
}

func (f *fakeFeed) Close() error { return nil }

func TestRemoteChangesWakeSubscriptions(t *testing.T) {
	feed := &fakeFeed{incoming: make(chan docstore.Change)}
	a := newAdapter(t, docstore.WithFeed(feed))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = a.Run(ctx) }()

	rec := newRecorder()
	unsub, err := a.Subscribe(ctx, docstore.SessionsPath, docstore.Query{}, rec.fn)
	if err != nil {
		t.Fatal(err)
	}
	defer unsub()
	rec.wait(t)

	if _, err := a.Put(ctx, docstore.SessionsPath, "web-1", docstore.Patch{Fields: map[string]any{"a": 1}}); err != nil {
		t.Fatal(err)
	}
	rec.wait(t)
	feed.mu.Lock()
	if len(feed.published) != 1 || feed.published[0].Path != docstore.SessionsPath {
		t.Errorf("published = %+v", feed.published)
	}
	feed.mu.Unlock()

	feed.incoming <- docstore.Change{Path: docstore.SessionsPath, ID: "web-9", Op: docstore.OpPut, Origin: "other-instance"}
	rec.wait(t)
}
