// Package docstore is the document-oriented persistence contract used by the chat services.
// Documents live in collections addressed by slash separated paths ("sessions",
// "sessions/{id}/messages"). The storage engine is a Backend; live updates are
// fanned out in process by a LocalBus and across instances by an optional Feed.
package docstore

import (
	"context"
	"strings"
	"time"

	"support_chat_server/pkg/errorx"
)

const (
	// SessionsPath is the collection holding one document per conversation.
	SessionsPath = "sessions"
)

// MessagesPath is the message sub-collection of a session.
func MessagesPath(sessionID string) string {
	return SessionsPath + "/" + sessionID + "/messages"
}

// Document is one stored record.
type Document struct {
	ID         string
	SortKey    int64 // primary ordering key, ties broken by ID
	Data       map[string]any
	CreateTime time.Time
	UpdateTime time.Time
}

// Cursor returns the ordering position of the document.
func (d Document) Cursor() Cursor {
	return Cursor{SortKey: d.SortKey, ID: d.ID}
}

// Cursor is an explicit position in (SortKey, ID) order.
type Cursor struct {
	SortKey int64  `json:"sortKey"`
	ID      string `json:"id"`
}

// Less orders cursors by SortKey, then ID.
func (c Cursor) Less(o Cursor) bool {
	if c.SortKey != o.SortKey {
		return c.SortKey < o.SortKey
	}
	return c.ID < o.ID
}

// Query selects a window of a collection.
// Before and After are exclusive bounds in ascending (SortKey, ID) order.
type Query struct {
	Desc   bool
	Before *Cursor
	After  *Cursor
	Limit  int // 0 means no limit
}

// Patch is a top-level merge applied to one document.
type Patch struct {
	Fields    map[string]any // values may be Increment(n)
	SortKey   *int64         // moves the document when set
	MustExist bool           // fail with CodeNotFound instead of creating
	// Check runs inside the write transaction against the current state.
	// exists is false when the document is about to be created.
	Check func(current Document, exists bool) error
}

type increment struct {
	n int64
}

// Increment adds n to a numeric field atomically when used as a Patch value.
// A missing field counts as zero.
func Increment(n int64) any {
	return increment{n: n}
}

// Change describes one mutation, used to wake subscriptions.
type Change struct {
	Path   string    `json:"path"`
	ID     string    `json:"id"`
	Op     string    `json:"op"`     // "put", "remove", "remove_all"
	Origin string    `json:"origin"` // instance that performed the write
	At     time.Time `json:"at"`
}

const (
	OpPut       = "put"
	OpRemove    = "remove"
	OpRemoveAll = "remove_all"
)

// Backend is a storage engine. Implementations must apply Merge inside a transaction
// for Update and translate their errors into errorx codes
// (CodeNotFound, CodeConflict, CodeStoreUnavailable).
type Backend interface {
	Insert(ctx context.Context, path string, doc Document) (Document, error)
	Update(ctx context.Context, path, id string, patch Patch, now time.Time) (Document, error)
	Get(ctx context.Context, path, id string) (Document, error)
	Delete(ctx context.Context, path, id string) error
	DeleteAll(ctx context.Context, path string) (int64, error)
	Query(ctx context.Context, path string, q Query) ([]Document, error)
	Close() error
}

// Feed carries changes between server instances.
// Run blocks, delivering every change received from other instances, until ctx ends.
type Feed interface {
	Publish(ctx context.Context, change Change) error
	Run(ctx context.Context, deliver func(Change)) error
	Close() error
}

// ValidatePath checks that path addresses a collection: an odd number of non-empty segments.
func ValidatePath(path string) error {
	if path == "" {
		return errorx.New(errorx.CodeValidation, "empty collection path")
	}
	segments := strings.Split(path, "/")
	if len(segments)%2 == 0 {
		return errorx.Newf(errorx.CodeValidation, "%q is a document path, not a collection", path)
	}
	for _, s := range segments {
		if s == "" {
			return errorx.Newf(errorx.CodeValidation, "invalid collection path %q", path)
		}
	}
	return nil
}

func validateID(id string) error {
	if id == "" || strings.Contains(id, "/") {
		return errorx.Newf(errorx.CodeValidation, "invalid document id %q", id)
	}
	return nil
}

// Store is the persistence surface the services depend on; *Adapter implements it.
type Store interface {
	Append(ctx context.Context, path string, doc Document) (Document, error)
	Put(ctx context.Context, path, id string, patch Patch) (Document, error)
	Get(ctx context.Context, path, id string) (Document, error)
	Remove(ctx context.Context, path, id string) error
	RemoveAll(ctx context.Context, path string) (int64, error)
	Query(ctx context.Context, path string, q Query) ([]Document, error)
	Subscribe(ctx context.Context, path string, q Query, fn func([]Document, error)) (func(), error)
}

var _ Store = (*Adapter)(nil)
