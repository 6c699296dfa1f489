// Package mq carries document store changes between server instances over Kafka.
package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"support_chat_server/internal/config"
	"support_chat_server/internal/dao/docstore"
	"support_chat_server/pkg/errorx"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// KafkaFeed writes changes to a topic and reads them back under a consumer group that
// is unique to this instance, so every instance sees every change.
type KafkaFeed struct {
	Producer *kafka.Writer
	Consumer *kafka.Reader
}

var _ docstore.Feed = (*KafkaFeed)(nil)

// NewKafkaFeed builds the writer and reader. instanceID separates the consumer groups.
func NewKafkaFeed(conf *config.KafkaConfig, instanceID string) *KafkaFeed {
	timeout := conf.Timeout * time.Second
	return &KafkaFeed{
		Producer: &kafka.Writer{
			Addr:                   kafka.TCP(conf.HostPort),
			Topic:                  conf.ChangeTopic,
			Balancer:               &kafka.Hash{}, // same path, same partition
			WriteTimeout:           timeout,
			RequiredAcks:           kafka.RequireOne,
			AllowAutoTopicCreation: true,
		},
		Consumer: kafka.NewReader(kafka.ReaderConfig{
			Brokers:        []string{conf.HostPort},
			Topic:          conf.ChangeTopic,
			GroupID:        fmt.Sprintf("%s-%s", conf.GroupPrefix, instanceID),
			CommitInterval: timeout,
			StartOffset:    kafka.LastOffset, // older changes are already reflected in the store
		}),
	}
}

// Publish writes change keyed by its collection path.
func (k *KafkaFeed) Publish(ctx context.Context, change docstore.Change) error {
	value, err := json.Marshal(change)
	if err != nil {
		return errorx.Wrap(err, errorx.CodeFeedError, "encode change")
	}
	if err := k.Producer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(change.Path),
		Value: value,
	}); err != nil {
		return errorx.Wrap(err, errorx.CodeFeedError, "kafka write change")
	}
	return nil
}

// Run reads changes until ctx ends.
func (k *KafkaFeed) Run(ctx context.Context, deliver func(docstore.Change)) error {
	zap.L().Info("kafka change feed started", zap.String("topic", k.Consumer.Config().Topic))
	for {
		msg, err := k.Consumer.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return errorx.Wrap(err, errorx.CodeFeedError, "kafka read change")
		}
		var change docstore.Change
		if err := json.Unmarshal(msg.Value, &change); err != nil {
			zap.L().Warn("drop malformed change",
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
				zap.Error(err),
			)
			continue
		}
		deliver(change)
	}
}

// Close closes producer and consumer.
func (k *KafkaFeed) Close() error {
	return errors.Join(k.Producer.Close(), k.Consumer.Close())
}
