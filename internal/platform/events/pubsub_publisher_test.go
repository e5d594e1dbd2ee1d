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

	"github.com/kaigo-note/api/internal/services"
)

func TestPubSubImportPublisherPublishesMessage(t *testing.T) {
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

	topic, err := client.CreateTopic(ctx, "import-events")
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}

	publisher, err := NewPubSubImportPublisher(topic, WithStaticAttributes(map[string]string{"source": " scheduler-export "}))
	if err != nil {
		t.Fatalf("NewPubSubImportPublisher: %v", err)
	}

	startedAt := time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)
	msg := services.ImportCompletedMessage{
		ImportID:     "imp_test",
		Total:        12,
		Imported:     10,
		Rejected:     2,
		ManualReview: 1,
		StartedAt:    startedAt,
		CompletedAt:  startedAt.Add(3 * time.Second),
	}

	if _, err := publisher.PublishImportCompleted(ctx, msg); err != nil {
		t.Fatalf("PublishImportCompleted: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}

	var payload services.ImportCompletedMessage
	if err := json.Unmarshal(messages[0].Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.ImportID != msg.ImportID || payload.Imported != msg.Imported {
		t.Fatalf("unexpected payload %#v", payload)
	}
	if attr := messages[0].Attributes["event"]; attr != "import.completed" {
		t.Fatalf("event attribute = %q", attr)
	}
	if attr := messages[0].Attributes["source"]; attr != "scheduler-export" {
		t.Fatalf("source attribute = %q", attr)
	}
}

func TestNewPubSubImportPublisherRequiresTopic(t *testing.T) {
	if _, err := NewPubSubImportPublisher(nil); err == nil {
		t.Fatal("expected an error for nil topic")
	}
}
