package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"cloud.google.com/go/pubsub"

	"github.com/matica-life/storefront/internal/services"
)

// PubSubWishlistPublisher publishes wishlist toggle events to a Pub/Sub topic.
type PubSubWishlistPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

var _ services.WishlistEventPublisher = (*PubSubWishlistPublisher)(nil)

// NewPubSubWishlistPublisher constructs a Pub/Sub backed wishlist event publisher.
func NewPubSubWishlistPublisher(topic *pubsub.Topic) (*PubSubWishlistPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub wishlist publisher: topic is required")
	}
	return &PubSubWishlistPublisher{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

// PublishWishlistEvent sends the event and waits for the server-assigned message id.
func (p *PubSubWishlistPublisher) PublishWishlistEvent(ctx context.Context, event services.WishlistEvent) (string, error) {
	if p == nil || p.topic == nil {
		return "", errors.New("pubsub wishlist publisher: not initialised")
	}

	data, err := p.marshal(event)
	if err != nil {
		return "", fmt.Errorf("marshal wishlist event: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "eventId", event.EventID)
	setAttr(attrs, "userId", event.UserID)
	setAttr(attrs, "action", event.Action)
	if event.ProductID > 0 {
		attrs["productId"] = strconv.FormatInt(event.ProductID, 10)
	}

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})

	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish wishlist event: %w", err)
	}
	return id, nil
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
