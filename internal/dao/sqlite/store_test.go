package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"support_chat_server/internal/dao/docstore"
	"support_chat_server/internal/dao/sqlite"
	"support_chat_server/pkg/errorx"
)

func openStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "nested", "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestInsertGet(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	now := time.Now()

	doc := docstore.Document{ID: "m1", SortKey: 10, Data: map[string]any{"text": "hi"}, CreateTime: now, UpdateTime: now}
	if _, err := store.Insert(ctx, "sessions/s1/messages", doc); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	got, err := store.Get(ctx, "sessions/s1/messages", "m1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Data["text"] != "hi" || got.SortKey != 10 {
		t.Errorf("Get = %+v", got)
	}
	if !got.CreateTime.Equal(time.Unix(0, now.UnixNano())) {
		t.Errorf("CreateTime = %v, want %v", got.CreateTime, now)
	}

	if _, err := store.Insert(ctx, "sessions/s1/messages", doc); !errorx.HasCode(err, errorx.CodeConflict) {
		t.Errorf("duplicate Insert error = %v, want conflict", err)
	}
	if _, err := store.Get(ctx, "sessions/s1/messages", "missing"); !errorx.IsNotFound(err) {
		t.Errorf("Get missing error = %v, want not found", err)
	}
}

func TestUpdateMergesAndIncrements(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	key := int64(5)
	patch := docstore.Patch{
		Fields:  map[string]any{"userName": "Ann", "unreadCount": docstore.Increment(1)},
		SortKey: &key,
	}
	if _, err := store.Update(ctx, "sessions", "web-1", patch, time.Now()); err != nil {
		t.Fatalf("Update create: %v", err)
	}
	if _, err := store.Update(ctx, "sessions", "web-1", docstore.Patch{
		Fields: map[string]any{"unreadCount": docstore.Increment(2)},
	}, time.Now()); err != nil {
		t.Fatalf("Update merge: %v", err)
	}

	got, err := store.Get(ctx, "sessions", "web-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Data["userName"] != "Ann" {
		t.Errorf("userName = %v, want Ann", got.Data["userName"])
	}
	if got.Data["unreadCount"] != float64(3) {
		t.Errorf("unreadCount = %v, want 3", got.Data["unreadCount"])
	}
	if got.SortKey != 5 {
		t.Errorf("SortKey = %d, want 5", got.SortKey)
	}
}

func TestUpdateMustExist(t *testing.T) {
	store := openStore(t)
	_, err := store.Update(context.Background(), "sessions", "nope", docstore.Patch{
		Fields:    map[string]any{"blocked": true},
		MustExist: true,
	}, time.Now())
	if !errorx.IsNotFound(err) {
		t.Fatalf("error = %v, want not found", err)
	}
}

func TestQueryWindowAndDeleteAll(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	now := time.Now()
	path := "sessions/s1/messages"
	for i, id := range []string{"a", "b", "c", "d"} {
		doc := docstore.Document{ID: id, SortKey: int64(i / 2), CreateTime: now, UpdateTime: now}
		if _, err := store.Insert(ctx, path, doc); err != nil {
			t.Fatalf("Insert %s: %v", id, err)
		}
	}

	docs, err := store.Query(ctx, path, docstore.Query{Desc: true, Limit: 3})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if ids := idsOf(docs); ids != "dcb" {
		t.Errorf("desc window = %s, want dcb", ids)
	}

	before := docs[len(docs)-1].Cursor()
	docs, err = store.Query(ctx, path, docstore.Query{Desc: true, Before: &before, Limit: 3})
	if err != nil {
		t.Fatalf("Query before: %v", err)
	}
	if ids := idsOf(docs); ids != "a" {
		t.Errorf("older window = %s, want a", ids)
	}

	n, err := store.DeleteAll(ctx, path)
	if err != nil || n != 4 {
		t.Fatalf("DeleteAll = %d, %v", n, err)
	}
}

func TestMaintain(t *testing.T) {
	if err := openStore(t).Maintain(context.Background()); err != nil {
		t.Fatalf("Maintain: %v", err)
	}
}

func idsOf(docs []docstore.Document) string {
	s := ""
	for _, d := range docs {
		s += d.ID
	}
	return s
}
