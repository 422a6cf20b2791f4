package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/pubsub"

	"github.com/vitrine-field/api/internal/services"
)

const promotionStatusChangedEvent = "promotion.status_changed"

// PubSubPromotionPublisher publishes promotion status changes to a Pub/Sub topic.
type PubSubPromotionPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

var _ services.PromotionEventPublisher = (*PubSubPromotionPublisher)(nil)

// NewPubSubPromotionPublisher constructs a Pub/Sub backed promotion event publisher.
func NewPubSubPromotionPublisher(topic *pubsub.Topic) (*PubSubPromotionPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub promotion publisher: topic is required")
	}
	return &PubSubPromotionPublisher{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

// PublishPromotionStatusChanged sends the event. Messages of one tenant share an ordering key so
// consumers observe transitions in sweep order when ordering is enabled on the topic.
func (p *PubSubPromotionPublisher) PublishPromotionStatusChanged(ctx context.Context, message services.PromotionStatusChangedMessage) (string, error) {
	if p == nil || p.topic == nil {
		return "", errors.New("pubsub promotion publisher: not initialised")
	}

	data, err := p.marshal(message)
	if err != nil {
		return "", fmt.Errorf("marshal promotion event: %w", err)
	}

	attrs := map[string]string{"event": promotionStatusChangedEvent}
	setAttr(attrs, "eventId", message.EventID)
	setAttr(attrs, "tenantId", message.TenantID)
	setAttr(attrs, "promotionId", message.PromotionID)
	setAttr(attrs, "to", string(message.To))

	msg := &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	}
	if p.topic.EnableMessageOrdering {
		msg.OrderingKey = strings.TrimSpace(message.TenantID)
	}

	id, err := p.topic.Publish(ctx, msg).Get(ctx)
	if err != nil {
		if msg.OrderingKey != "" {
			p.topic.ResumePublish(msg.OrderingKey)
		}
		return "", fmt.Errorf("publish promotion event: %w", err)
	}
	return id, nil
}

// Stop flushes pending messages.
func (p *PubSubPromotionPublisher) Stop() {
	if p != nil && p.topic != nil {
		p.topic.Stop()
	}
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
