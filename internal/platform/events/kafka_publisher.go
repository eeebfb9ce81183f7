package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/maison-luxe/storefront/internal/services"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaOrderPublisher writes order.completed events to a Kafka topic keyed by order id.
type KafkaOrderPublisher struct {
	writer  messageWriter
	marshal func(any) ([]byte, error)
}

var _ services.OrderEventPublisher = (*KafkaOrderPublisher)(nil)

// KafkaOption customises the underlying kafka writer.
type KafkaOption func(*kafka.Writer)

// WithKafkaErrorLogger routes writer errors to logger.
func WithKafkaErrorLogger(logger kafka.Logger) KafkaOption {
	return func(w *kafka.Writer) {
		w.ErrorLogger = logger
	}
}

// NewKafkaOrderPublisher constructs a publisher writing to topic on brokers.
func NewKafkaOrderPublisher(topic string, brokers []string, opts ...KafkaOption) (*KafkaOrderPublisher, error) {
	if topic == "" {
		return nil, errors.New("kafka order publisher: topic is required")
	}
	if len(brokers) == 0 {
		return nil, errors.New("kafka order publisher: at least one broker is required")
	}
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(writer)
		}
	}
	return newKafkaOrderPublisher(writer), nil
}

func newKafkaOrderPublisher(writer messageWriter) *KafkaOrderPublisher {
	return &KafkaOrderPublisher{writer: writer, marshal: json.Marshal}
}

// PublishOrderCompleted writes one message. Kafka assigns no message id, so the order id is
// returned as the reference.
func (p *KafkaOrderPublisher) PublishOrderCompleted(ctx context.Context, event services.OrderCompletedEvent) (string, error) {
	if p == nil || p.writer == nil {
		return "", errors.New("kafka order publisher: not initialised")
	}
	data, err := p.marshal(event)
	if err != nil {
		return "", fmt.Errorf("marshal order event: %w", err)
	}

	// keyed by order id so every event of an order lands on one partition
	msg := kafka.Message{
		Key:   []byte(event.OrderID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "idempotency_key", Value: []byte(event.AttemptID)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return "", fmt.Errorf("publish order event: %w", err)
	}
	return event.OrderID, nil
}

// Close flushes pending writes.
func (p *KafkaOrderPublisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
