package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bharathbbg/awb-reconciler/internal/config"
	"github.com/bharathbbg/awb-reconciler/internal/logger"
	skafka "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Writer is the part of kafka.Writer the publisher uses.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...skafka.Message) error
	Close() error
}

// KafkaPublisher writes lifecycle events as JSON, keyed by order id so one
// order's events stay on one partition.
type KafkaPublisher struct {
	writer Writer
	topic  string
}

func NewKafkaPublisher(cfg config.KafkaConfig) *KafkaPublisher {
	w := &skafka.Writer{
		Addr:                   skafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &skafka.Hash{},
		AllowAutoTopicCreation: true,
	}
	return &KafkaPublisher{writer: w, topic: cfg.Topic}
}

func NewKafkaPublisherWithWriter(w Writer, topic string) *KafkaPublisher {
	return &KafkaPublisher{writer: w, topic: topic}
}

func (p *KafkaPublisher) Publish(ctx context.Context, key string, value interface{}) error {
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := skafka.Message{Key: []byte(key), Value: b}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write event to %s: %w", p.topic, err)
	}
	logger.GetLoggerFromCtx(ctx).Debug(ctx, "lifecycle event published",
		zap.String("topic", p.topic),
		zap.String("key", key),
	)
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// Discard drops events. It stands in when no brokers are configured.
type Discard struct{}

func (Discard) Publish(context.Context, string, interface{}) error { return nil }

func (Discard) Close() error { return nil }
