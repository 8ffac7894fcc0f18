// Package kafka carries filter change notifications over Kafka.
package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/segmentio/kafka-go"

	"alertscope/internal/config"
	"alertscope/internal/queue"
)

// Producer implements queue.Producer on a kafka.Writer. Messages are
// partitioned by key so that the changes of one space stay ordered.
type Producer struct {
	writer *kafka.Writer
	logger *slog.Logger
}

// NewProducer creates a producer writing to cfg.Topic.
func NewProducer(cfg *config.KafkaConfig, logger *slog.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           10 * time.Millisecond,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}

	return &Producer{
		writer: writer,
		logger: logger,
	}
}

// Publish writes msg to the topic.
func (p *Producer) Publish(ctx context.Context, msg *queue.Message) error {
	if err := p.writer.WriteMessages(ctx, toKafka(msg)); err != nil {
		return fmt.Errorf("failed to write message to kafka: %w", err)
	}
	return nil
}

// Close flushes pending writes and closes the writer.
func (p *Producer) Close() error {
	if p.writer == nil {
		return nil
	}
	p.logger.Info("closing kafka producer", "topic", p.writer.Topic)
	return p.writer.Close()
}

// toKafka converts msg, ordering headers by key.
func toKafka(msg *queue.Message) kafka.Message {
	km := kafka.Message{
		Key:   msg.Key,
		Value: msg.Value,
	}
	if len(msg.Headers) == 0 {
		return km
	}

	keys := make([]string, 0, len(msg.Headers))
	for k := range msg.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	km.Headers = make([]kafka.Header, 0, len(keys))
	for _, k := range keys {
		km.Headers = append(km.Headers, kafka.Header{Key: k, Value: []byte(msg.Headers[k])})
	}
	return km
}

// fromKafka converts a fetched message.
func fromKafka(km kafka.Message) *queue.Message {
	msg := &queue.Message{
		Key:     km.Key,
		Value:   km.Value,
		Headers: make(map[string]string, len(km.Headers)),
	}
	for _, h := range km.Headers {
		msg.Headers[h.Key] = string(h.Value)
	}
	return msg
}
