package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dhima/mysql-connector/internal/logging"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// KafkaPublisher writes audit events to a Kafka topic.
type KafkaPublisher struct {
	writer *kafka.Writer
	logger logging.Logger
}

// NewKafkaPublisher builds a publisher that waits for all in-sync replicas
// and retries a write up to three times.
func NewKafkaPublisher(brokers []string, topic string, logger logging.Logger) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		MaxAttempts:            3,
		WriteTimeout:           10 * time.Second,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}

	return &KafkaPublisher{
		writer: writer,
		logger: logger.With(zap.String("component", "audit"), zap.String("topic", topic)),
	}
}

// Publish serializes the event as JSON and writes it keyed by Event.Key.
// Write failures are returned to the caller, not logged here.
func (p *KafkaPublisher) Publish(ctx context.Context, event Event) error {
	msg, err := buildMessage(event)
	if err != nil {
		return err
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write audit event %s: %w", event.ID, err)
	}

	p.logger.Debug("audit event published",
		zap.String("event_id", event.ID),
		zap.String("type", string(event.Type)))
	return nil
}

// Close flushes pending writes and releases broker connections.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func buildMessage(event Event) (kafka.Message, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal audit event: %w", err)
	}

	return kafka.Message{
		Key:   []byte(event.Key()),
		Value: payload,
		Time:  event.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
			{Key: "event_id", Value: []byte(event.ID)},
		},
	}, nil
}
