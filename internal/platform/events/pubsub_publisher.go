// Package events announces completed orders to downstream consumers such as fulfilment and
// CRM. Publishing is best-effort: the order recorder logs failures and never rolls back.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/pubsub"

	"github.com/maison-luxe/storefront/internal/services"
)

// PubSubOrderPublisher publishes order.completed events to a Pub/Sub topic.
type PubSubOrderPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

var _ services.OrderEventPublisher = (*PubSubOrderPublisher)(nil)

// NewPubSubOrderPublisher constructs a Pub/Sub backed order event publisher.
func NewPubSubOrderPublisher(topic *pubsub.Topic) (*PubSubOrderPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub order publisher: topic is required")
	}
	return &PubSubOrderPublisher{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

// PublishOrderCompleted sends the event and waits for the server-assigned message id.
func (p *PubSubOrderPublisher) PublishOrderCompleted(ctx context.Context, event services.OrderCompletedEvent) (string, error) {
	if p == nil || p.topic == nil {
		return "", errors.New("pubsub order publisher: not initialised")
	}

	data, err := p.marshal(event)
	if err != nil {
		return "", fmt.Errorf("marshal order event: %w", err)
	}

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: eventAttributes(event),
	})

	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish order event: %w", err)
	}
	return id, nil
}

// eventAttributes exposes routing fields so subscribers can filter without decoding.
func eventAttributes(event services.OrderCompletedEvent) map[string]string {
	attrs := make(map[string]string)
	setAttr(attrs, "eventType", event.EventType)
	setAttr(attrs, "orderId", event.OrderID)
	setAttr(attrs, "paymentMethod", event.PaymentMethodKind)
	// consumers deduplicate redeliveries on the attempt id
	setAttr(attrs, "idempotencyKey", event.AttemptID)
	return attrs
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
