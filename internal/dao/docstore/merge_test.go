package docstore

import (
	"encoding/json"
	"testing"
	"time"

	"support_chat_server/pkg/errorx"
)

func TestMergeCreatesAndIncrements(t *testing.T) {
	now := time.Unix(100, 0)
	doc, err := Merge(Document{}, false, "s1", Patch{
		Fields: map[string]any{"unreadCount": Increment(1), "lastMessage": "hi"},
	}, now)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if doc.Data["unreadCount"] != int64(1) {
		t.Errorf("unreadCount = %v, want 1", doc.Data["unreadCount"])
	}
	if !doc.CreateTime.Equal(now) {
		t.Errorf("CreateTime = %v, want %v", doc.CreateTime, now)
	}

	// values decoded from storage come back as float64 or json.Number
	for _, stored := range []any{float64(4), json.Number("4"), int64(4)} {
		cur := Document{ID: "s1", Data: map[string]any{"unreadCount": stored}, CreateTime: now}
		next, err := Merge(cur, true, "s1", Patch{Fields: map[string]any{"unreadCount": Increment(2)}}, now.Add(time.Second))
		if err != nil {
			t.Fatalf("Merge(%T): %v", stored, err)
		}
		if next.Data["unreadCount"] != int64(6) {
			t.Errorf("Merge(%T) unreadCount = %v, want 6", stored, next.Data["unreadCount"])
		}
		if !next.CreateTime.Equal(now) {
			t.Errorf("CreateTime changed on update")
		}
		if cur.Data["unreadCount"] != stored {
			t.Errorf("Merge mutated the current document")
		}
	}
}

func TestMergeRejects(t *testing.T) {
	if _, err := Merge(Document{}, false, "x", Patch{MustExist: true}, time.Now()); !errorx.IsNotFound(err) {
		t.Errorf("MustExist error = %v, want not found", err)
	}
	cur := Document{Data: map[string]any{"n": "text"}}
	if _, err := Merge(cur, true, "x", Patch{Fields: map[string]any{"n": Increment(1)}}, time.Now()); !errorx.HasCode(err, errorx.CodeValidation) {
		t.Errorf("increment of a string error = %v, want validation", err)
	}
}

func TestWindowClause(t *testing.T) {
	conds, args, order := WindowClause(Query{Desc: true, Before: &Cursor{SortKey: 3, ID: "b"}})
	if len(conds) != 1 || len(args) != 3 {
		t.Fatalf("conds = %v args = %v", conds, args)
	}
	if order != "sort_key DESC, id DESC" {
		t.Errorf("order = %q", order)
	}
}
