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

	"github.com/matica-life/storefront/internal/services"
)

func newTestTopic(t *testing.T, srv *pstest.Server) *pubsub.Topic {
	t.Helper()
	ctx := context.Background()
	client, err := pubsub.NewClient(ctx, "test-project",
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	if err != nil {
		t.Fatalf("pubsub.NewClient: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	topic, err := client.CreateTopic(ctx, "wishlist-events")
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}
	t.Cleanup(topic.Stop)
	return topic
}

func TestPubSubWishlistPublisherPublishesMessage(t *testing.T) {
	srv := pstest.NewServer()
	defer srv.Close()

	publisher, err := NewPubSubWishlistPublisher(newTestTopic(t, srv))
	if err != nil {
		t.Fatalf("NewPubSubWishlistPublisher: %v", err)
	}

	event := services.WishlistEvent{
		EventID:    "01J0WISH",
		UserID:     "user-1",
		ProductID:  42,
		Action:     services.WishlistActionAdded,
		OccurredAt: time.Date(2026, 5, 6, 9, 0, 0, 0, time.UTC),
	}
	id, err := publisher.PublishWishlistEvent(context.Background(), event)
	if err != nil {
		t.Fatalf("PublishWishlistEvent: %v", err)
	}
	if id == "" {
		t.Fatalf("expected message id")
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}

	var payload services.WishlistEvent
	if err := json.Unmarshal(messages[0].Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.EventID != event.EventID || payload.ProductID != 42 || !payload.OccurredAt.Equal(event.OccurredAt) {
		t.Fatalf("unexpected payload %#v", payload)
	}
	attrs := messages[0].Attributes
	if attrs["productId"] != "42" || attrs["userId"] != "user-1" || attrs["action"] != "added" || attrs["eventId"] != "01J0WISH" {
		t.Fatalf("unexpected attributes %#v", attrs)
	}
}

func TestPubSubWishlistPublisherOmitsBlankAttributes(t *testing.T) {
	srv := pstest.NewServer()
	defer srv.Close()

	publisher, err := NewPubSubWishlistPublisher(newTestTopic(t, srv))
	if err != nil {
		t.Fatalf("NewPubSubWishlistPublisher: %v", err)
	}
	if _, err := publisher.PublishWishlistEvent(context.Background(), services.WishlistEvent{UserID: " ", Action: "removed"}); err != nil {
		t.Fatalf("PublishWishlistEvent: %v", err)
	}

	attrs := srv.Messages()[0].Attributes
	if _, ok := attrs["userId"]; ok {
		t.Fatalf("blank userId attribute should be omitted")
	}
	if _, ok := attrs["productId"]; ok {
		t.Fatalf("zero productId attribute should be omitted")
	}
}

func TestNewPubSubWishlistPublisherRequiresTopic(t *testing.T) {
	if _, err := NewPubSubWishlistPublisher(nil); err == nil {
		t.Fatalf("expected error for nil topic")
	}
}
