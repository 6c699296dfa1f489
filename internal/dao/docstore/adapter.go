package docstore

import (
	"context"
	"sync"
	"time"

	"support_chat_server/pkg/constants"
	"support_chat_server/pkg/errorx"
	"support_chat_server/pkg/util/snowflake"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Adapter is the single entry point to persistence. It is built once in main and injected.
type Adapter struct {
	backend Backend
	bus     *LocalBus
	feed    Feed
	origin  string
	newID   func() string
	now     func() time.Time
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithFeed propagates changes to other server instances.
func WithFeed(feed Feed) Option {
	return func(a *Adapter) { a.feed = feed }
}

// WithOrigin sets the instance id stamped on published changes.
func WithOrigin(instanceID string) Option {
	return func(a *Adapter) { a.origin = instanceID }
}

// WithIDGenerator replaces the snowflake id generator.
func WithIDGenerator(fn func() string) Option {
	return func(a *Adapter) { a.newID = fn }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(a *Adapter) { a.now = now }
}

// New wraps backend.
func New(backend Backend, opts ...Option) *Adapter {
	a := &Adapter{
		backend: backend,
		bus:     NewLocalBus(),
		origin:  uuid.NewString(),
		newID:   snowflake.GenerateIDString,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run consumes the change feed until ctx ends. Without a feed it just waits.
func (a *Adapter) Run(ctx context.Context) error {
	if a.feed == nil {
		<-ctx.Done()
		return nil
	}
	return a.feed.Run(ctx, func(c Change) {
		if c.Origin == a.origin {
			return
		}
		a.bus.Notify(c)
	})
}

// Close releases the backend and the feed.
func (a *Adapter) Close() error {
	if a.feed != nil {
		if err := a.feed.Close(); err != nil {
			zap.L().Warn("close change feed", zap.Error(err))
		}
	}
	return a.backend.Close()
}

// Subscriptions reports the number of live subscriptions of this process.
func (a *Adapter) Subscriptions() int {
	return a.bus.Count()
}

// Append stores a new document. An empty ID is assigned, a given one is preserved;
// CodeConflict is returned when the ID is taken.
func (a *Adapter) Append(ctx context.Context, path string, doc Document) (Document, error) {
	if err := ValidatePath(path); err != nil {
		return Document{}, err
	}
	if doc.ID == "" {
		doc.ID = a.newID()
	}
	if err := validateID(doc.ID); err != nil {
		return Document{}, err
	}
	now := a.now()
	if doc.CreateTime.IsZero() {
		doc.CreateTime = now
	}
	doc.UpdateTime = now
	if doc.Data == nil {
		doc.Data = map[string]any{}
	}

	ctx, cancel := context.WithTimeout(ctx, constants.STORE_WRITE_TIMEOUT)
	defer cancel()
	stored, err := a.backend.Insert(ctx, path, doc)
	if err != nil {
		return Document{}, err
	}
	a.publish(ctx, path, stored.ID, OpPut)
	return stored, nil
}

// Put merges patch into the document, creating it unless patch.MustExist.
func (a *Adapter) Put(ctx context.Context, path, id string, patch Patch) (Document, error) {
	if err := ValidatePath(path); err != nil {
		return Document{}, err
	}
	if err := validateID(id); err != nil {
		return Document{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, constants.STORE_WRITE_TIMEOUT)
	defer cancel()
	stored, err := a.backend.Update(ctx, path, id, patch, a.now())
	if err != nil {
		return Document{}, err
	}
	a.publish(ctx, path, id, OpPut)
	return stored, nil
}

// Get loads one document; CodeNotFound when absent.
func (a *Adapter) Get(ctx context.Context, path, id string) (Document, error) {
	if err := ValidatePath(path); err != nil {
		return Document{}, err
	}
	if err := validateID(id); err != nil {
		return Document{}, err
	}
	return a.backend.Get(ctx, path, id)
}

// Remove deletes one document. Removing a missing document is not an error.
func (a *Adapter) Remove(ctx context.Context, path, id string) error {
	if err := ValidatePath(path); err != nil {
		return err
	}
	if err := validateID(id); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, constants.STORE_WRITE_TIMEOUT)
	defer cancel()
	if err := a.backend.Delete(ctx, path, id); err != nil {
		return err
	}
	a.publish(ctx, path, id, OpRemove)
	return nil
}

// RemoveAll deletes every document of a collection and returns how many were removed.
func (a *Adapter) RemoveAll(ctx context.Context, path string) (int64, error) {
	if err := ValidatePath(path); err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(ctx, constants.STORE_WRITE_TIMEOUT)
	defer cancel()
	n, err := a.backend.DeleteAll(ctx, path)
	if err != nil {
		return 0, err
	}
	a.publish(ctx, path, "", OpRemoveAll)
	return n, nil
}

// Query returns a window of a collection.
func (a *Adapter) Query(ctx context.Context, path string, q Query) ([]Document, error) {
	if err := ValidatePath(path); err != nil {
		return nil, err
	}
	if q.Limit < 0 {
		return nil, errorx.New(errorx.CodeValidation, "negative query limit")
	}
	return a.backend.Query(ctx, path, q)
}

// Subscribe delivers the current result of q to fn, then a fresh result after every
// mutation of path by any writer. Each subscription has one dispatcher goroutine and
// at most one pending re-query. The returned function unsubscribes; it is idempotent
// and must be called. Cancelling ctx unsubscribes as well.
func (a *Adapter) Subscribe(ctx context.Context, path string, q Query, fn func([]Document, error)) (func(), error) {
	if err := ValidatePath(path); err != nil {
		return nil, err
	}

	// register first so a write racing the initial query still wakes us
	subID, wake := a.bus.register(path)
	docs, err := a.Query(ctx, path, q)
	if err != nil {
		a.bus.unregister(path, subID)
		return nil, err
	}

	subCtx, cancel := context.WithCancel(ctx)
	go func() {
		defer a.bus.unregister(path, subID)
		fn(docs, nil)
		for {
			select {
			case <-subCtx.Done():
				return
			case <-wake:
			}
			docs, err := a.backend.Query(subCtx, path, q)
			if subCtx.Err() != nil {
				return
			}
			if err != nil {
				zap.L().Warn("subscription re-query failed", zap.String("path", path), zap.Error(err))
			}
			fn(docs, err)
		}
	}()

	var once sync.Once
	return func() { once.Do(cancel) }, nil
}

func (a *Adapter) publish(ctx context.Context, path, id, op string) {
	change := Change{Path: path, ID: id, Op: op, Origin: a.origin, At: a.now()}
	a.bus.Notify(change)
	if a.feed == nil {
		return
	}
	if err := a.feed.Publish(ctx, change); err != nil {
		// the write is committed; remote subscribers catch up on the next change
		zap.L().Warn("publish change failed",
			zap.String("path", path),
			zap.String("id", id),
			zap.Error(err),
		)
	}
}
