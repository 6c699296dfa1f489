package redis

import (
	"context"
	"encoding/json"

	"support_chat_server/internal/dao/docstore"
	"support_chat_server/pkg/errorx"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Feed publishes every change on one pub/sub channel and delivers the changes
// published by other instances. Pub/sub is fire-and-forget: an instance that is
// disconnected misses changes, and its subscribers catch up on the next one.
type Feed struct {
	client  *redis.Client
	channel string
}

var _ docstore.Feed = (*Feed)(nil)

// NewFeed creates a feed on channel.
func NewFeed(client *redis.Client, channel string) *Feed {
	return &Feed{client: client, channel: channel}
}

// Publish sends change to every instance, including this one.
func (f *Feed) Publish(ctx context.Context, change docstore.Change) error {
	payload, err := json.Marshal(change)
	if err != nil {
		return errorx.Wrap(err, errorx.CodeFeedError, "encode change")
	}
	if err := f.client.Publish(ctx, f.channel, payload).Err(); err != nil {
		return errorx.Wrapf(err, errorx.CodeFeedError, "redis publish %s", f.channel)
	}
	return nil
}

// Run subscribes to the channel and delivers changes until ctx ends.
func (f *Feed) Run(ctx context.Context, deliver func(docstore.Change)) error {
	sub := f.client.Subscribe(ctx, f.channel)
	defer func() {
		if err := sub.Close(); err != nil {
			zap.L().Warn("close redis subscription", zap.Error(err))
		}
	}()
	// wait for the subscription to be confirmed before reporting ready
	if _, err := sub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return errorx.Wrapf(err, errorx.CodeFeedError, "redis subscribe %s", f.channel)
	}
	zap.L().Info("redis change feed subscribed", zap.String("channel", f.channel))

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return errorx.New(errorx.CodeFeedError, "redis subscription closed")
			}
			var change docstore.Change
			if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
				zap.L().Warn("drop malformed change", zap.String("payload", msg.Payload), zap.Error(err))
				continue
			}
			deliver(change)
		}
	}
}

// Close closes the client.
func (f *Feed) Close() error {
	return f.client.Close()
}
