package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/maison-luxe/storefront/internal/services"
)

func sampleEvent() services.OrderCompletedEvent {
	return services.OrderCompletedEvent{
		EventType:         services.OrderCompletedEventType,
		OrderID:           "01JORDER",
		SessionID:         "sess-1",
		AttemptID:         "01JATTEMPT",
		Total:             "150.00",
		PaymentMethodKind: "card",
		ItemCount:         2,
		CreatedAt:         time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	}
}

func TestPubSubOrderPublisherPublishesMessage(t *testing.T) {
	ctx := context.Background()
	srv := pstest.NewServer()
	defer srv.Close()

	client, err := pubsub.NewClient(ctx, "test-project",
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	if err != nil {
		t.Fatalf("pubsub.NewClient: %v", err)
	}
	defer func() {
		_ = client.Close()
	}()

	topic, err := client.CreateTopic(ctx, "orders-completed")
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}

	publisher, err := NewPubSubOrderPublisher(topic)
	if err != nil {
		t.Fatalf("NewPubSubOrderPublisher: %v", err)
	}

	event := sampleEvent()
	if _, err := publisher.PublishOrderCompleted(ctx, event); err != nil {
		t.Fatalf("PublishOrderCompleted: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}

	var payload services.OrderCompletedEvent
	if err := json.Unmarshal(messages[0].Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.OrderID != event.OrderID || payload.Total != "150.00" {
		t.Fatalf("unexpected payload %#v", payload)
	}
	if attr := messages[0].Attributes["idempotencyKey"]; attr != "01JATTEMPT" {
		t.Fatalf("expected idempotency key attribute, got %q", attr)
	}
	if _, ok := messages[0].Attributes["discountCode"]; ok {
		t.Fatalf("discount code attribute should not be present")
	}
}

func TestNewPubSubOrderPublisherRequiresTopic(t *testing.T) {
	if _, err := NewPubSubOrderPublisher(nil); err == nil {
		t.Fatalf("expected error without topic")
	}
}
