package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/segmentio/kafka-go"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/Abdullah97825/Matjary-sub000/internal/services"
)

var acceptedEvent = services.OrderEvent{
	Type:           "order.status.changed",
	OrderID:        "ord_1",
	CustomerID:     "user_1",
	PreviousStatus: "ADMIN_PENDING",
	CurrentStatus:  "ACCEPTED",
	ActorID:        "admin_1",
	OccurredAt:     time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
}

func TestPubSubPublisherPublishesMessage(t *testing.T) {
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

	topic, err := client.CreateTopic(ctx, "order-events")
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}

	publisher, err := NewPubSubPublisher(topic)
	if err != nil {
		t.Fatalf("NewPubSubPublisher: %v", err)
	}
	defer publisher.Close()

	if err := publisher.PublishOrderEvent(ctx, acceptedEvent); err != nil {
		t.Fatalf("PublishOrderEvent: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}

	var payload Message
	if err := json.Unmarshal(messages[0].Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.OrderID != "ord_1" || payload.NewStatus != "ACCEPTED" || payload.PreviousStatus != "ADMIN_PENDING" {
		t.Fatalf("unexpected payload %#v", payload)
	}
	if !payload.OccurredAt.Equal(acceptedEvent.OccurredAt) {
		t.Fatalf("unexpected occurredAt %s", payload.OccurredAt)
	}
	if attr := messages[0].Attributes["newStatus"]; attr != "ACCEPTED" {
		t.Fatalf("expected newStatus attribute, got %q", attr)
	}
	if messages[0].OrderingKey != "ord_1" {
		t.Fatalf("expected ordering key ord_1, got %q", messages[0].OrderingKey)
	}
}

func TestPubSubPublisherRequiresTopic(t *testing.T) {
	if _, err := NewPubSubPublisher(nil); err == nil {
		t.Fatal("expected error for nil topic")
	}
}

type stubWriter struct {
	writeFn func(ctx context.Context, msgs ...kafka.Message) error
	closed  bool
}

func (s *stubWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	return s.writeFn(ctx, msgs...)
}

func (s *stubWriter) Close() error {
	s.closed = true
	return nil
}

func TestKafkaPublisherKeysByOrder(t *testing.T) {
	var captured []kafka.Message
	writer := &stubWriter{writeFn: func(_ context.Context, msgs ...kafka.Message) error {
		captured = append(captured, msgs...)
		return nil
	}}
	publisher, err := NewKafkaPublisher(writer)
	if err != nil {
		t.Fatalf("NewKafkaPublisher: %v", err)
	}

	if err := publisher.PublishOrderEvent(context.Background(), acceptedEvent); err != nil {
		t.Fatalf("PublishOrderEvent: %v", err)
	}
	if len(captured) != 1 {
		t.Fatalf("expected 1 message, got %d", len(captured))
	}
	msg := captured[0]
	if string(msg.Key) != "ord_1" {
		t.Fatalf("expected key ord_1, got %q", msg.Key)
	}
	var payload Message
	if err := json.Unmarshal(msg.Value, &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if payload.ActorID != "admin_1" || payload.Type != "order.status.changed" {
		t.Fatalf("unexpected payload %#v", payload)
	}
	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	if headers["type"] != "order.status.changed" || headers["orderId"] != "ord_1" {
		t.Fatalf("unexpected headers %v", headers)
	}

	if err := publisher.Close(); err != nil || !writer.closed {
		t.Fatalf("expected writer closed, err %v", err)
	}
}

func TestKafkaPublisherWrapsWriteError(t *testing.T) {
	boom := errors.New("leader not available")
	publisher, _ := NewKafkaPublisher(&stubWriter{writeFn: func(context.Context, ...kafka.Message) error { return boom }})
	err := publisher.PublishOrderEvent(context.Background(), acceptedEvent)
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped write error, got %v", err)
	}
}

func TestNewKafkaWriterUsesHashBalancer(t *testing.T) {
	writer := NewKafkaWriter([]string{"kafka-1:9092"}, "order-events")
	defer writer.Close()
	if _, ok := writer.Balancer.(*kafka.Hash); !ok {
		t.Fatalf("expected hash balancer, got %T", writer.Balancer)
	}
	if writer.Topic != "order-events" {
		t.Fatalf("unexpected topic %s", writer.Topic)
	}
}
