package jobs

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

	"github.com/vitrine-field/api/internal/domain"
	"github.com/vitrine-field/api/internal/services"
)

// fakeTopic starts an in-process Pub/Sub server and returns a topic on it.
func fakeTopic(t *testing.T, ordered bool) (*pubsub.Topic, *pstest.Server) {
	t.Helper()
	ctx := context.Background()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	client, err := pubsub.NewClient(ctx, "vitrine-test",
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	if err != nil {
		t.Fatalf("pubsub client: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	topic, err := client.CreateTopic(ctx, "promotion-status")
	if err != nil {
		t.Fatalf("create topic: %v", err)
	}
	topic.EnableMessageOrdering = ordered
	return topic, srv
}

func statusChange(tenantID string) services.PromotionStatusChangedMessage {
	return services.PromotionStatusChangedMessage{
		EventID:     "01JEVENT",
		TenantID:    tenantID,
		PromotionID: "black-friday",
		From:        domain.PromotionStatusScheduled,
		To:          domain.PromotionStatusActive,
		ChangedAt:   time.Date(2025, time.November, 28, 3, 0, 0, 0, time.UTC),
	}
}

func TestPublishPromotionStatusChanged(t *testing.T) {
	topic, srv := fakeTopic(t, false)
	publisher, err := NewPubSubPromotionPublisher(topic)
	if err != nil {
		t.Fatalf("NewPubSubPromotionPublisher: %v", err)
	}
	defer publisher.Stop()

	sent := statusChange("loja-centro")
	id, err := publisher.PublishPromotionStatusChanged(context.Background(), sent)
	if err != nil || id == "" {
		t.Fatalf("publish: id=%q err=%v", id, err)
	}

	msgs := srv.Messages()
	if len(msgs) != 1 {
		t.Fatalf("expected one message, got %d", len(msgs))
	}
	var got services.PromotionStatusChangedMessage
	if err := json.Unmarshal(msgs[0].Data, &got); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if got.PromotionID != sent.PromotionID || got.To != sent.To || !got.ChangedAt.Equal(sent.ChangedAt) {
		t.Fatalf("payload mismatch: %+v", got)
	}
	wantAttrs := map[string]string{
		"event":       "promotion.status_changed",
		"eventId":     "01JEVENT",
		"tenantId":    "loja-centro",
		"promotionId": "black-friday",
		"to":          "active",
	}
	for k, v := range wantAttrs {
		if msgs[0].Attributes[k] != v {
			t.Errorf("attribute %s = %q, want %q", k, msgs[0].Attributes[k], v)
		}
	}
	if msgs[0].OrderingKey != "" {
		t.Errorf("unordered topic must not set an ordering key, got %q", msgs[0].OrderingKey)
	}
}

func TestPublishUsesTenantAsOrderingKey(t *testing.T) {
	topic, srv := fakeTopic(t, true)
	publisher, err := NewPubSubPromotionPublisher(topic)
	if err != nil {
		t.Fatalf("NewPubSubPromotionPublisher: %v", err)
	}
	defer publisher.Stop()

	if _, err := publisher.PublishPromotionStatusChanged(context.Background(), statusChange(" loja-sul ")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	msgs := srv.Messages()
	if len(msgs) != 1 || msgs[0].OrderingKey != "loja-sul" {
		t.Fatalf("expected ordering key loja-sul, got %+v", msgs)
	}
}

func TestPublisherGuards(t *testing.T) {
	if _, err := NewPubSubPromotionPublisher(nil); err == nil {
		t.Fatal("expected error without topic")
	}
	var nilPublisher *PubSubPromotionPublisher
	if _, err := nilPublisher.PublishPromotionStatusChanged(context.Background(), statusChange("t")); err == nil {
		t.Fatal("expected error from nil publisher")
	}
	nilPublisher.Stop()
}
