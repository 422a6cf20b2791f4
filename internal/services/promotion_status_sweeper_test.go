package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/vitrine-field/api/internal/domain"
)

type capturePromotionEvents struct {
	messages []PromotionStatusChangedMessage
	err      error
}

func (c *capturePromotionEvents) PublishPromotionStatusChanged(_ context.Context, message PromotionStatusChangedMessage) (string, error) {
	c.messages = append(c.messages, message)
	return "msg-1", c.err
}

func windowPromotion(id string, status domain.PromotionStatus, start, end time.Time) domain.Promotion {
	return domain.Promotion{ID: id, TenantID: "tenant-1", Status: status, StartDate: start, EndDate: end, IsActive: true}
}

func TestDerivePromotionStatus(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		name  string
		start time.Time
		end   time.Time
		want  domain.PromotionStatus
	}{
		{"future", now.Add(time.Hour), now.Add(2 * time.Hour), domain.PromotionStatusScheduled},
		{"running", now.Add(-time.Hour), now.Add(time.Hour), domain.PromotionStatusActive},
		{"start boundary", now, now.Add(time.Hour), domain.PromotionStatusActive},
		{"end boundary", now.Add(-time.Hour), now, domain.PromotionStatusActive},
		{"past", now.Add(-2 * time.Hour), now.Add(-time.Hour), domain.PromotionStatusExpired},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := DerivePromotionStatus(domain.Promotion{StartDate: tc.start, EndDate: tc.end}, now)
			if got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestPromotionStatusSweeperTransitionsAndPublishes(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	tenants := &fakeTenantRepository{tenants: map[string]domain.Tenant{"tenant-1": {ID: "tenant-1"}}}
	promos := &fakePromotionRepository{
		all: map[string][]domain.Promotion{
			"tenant-1": {
				windowPromotion("starts", domain.PromotionStatusScheduled, now.Add(-time.Hour), now.Add(time.Hour)),
				windowPromotion("ends", domain.PromotionStatusActive, now.Add(-2*time.Hour), now.Add(-time.Hour)),
				windowPromotion("steady", domain.PromotionStatusActive, now.Add(-time.Hour), now.Add(time.Hour)),
				windowPromotion("raced", domain.PromotionStatusScheduled, now.Add(-time.Hour), now.Add(time.Hour)),
			},
		},
		staleIDs: map[string]bool{"raced": true},
	}
	events := &capturePromotionEvents{}

	sweeper, err := NewPromotionStatusSweeper(PromotionStatusSweeperDeps{
		Tenants:    tenants,
		Promotions: promos,
		Publisher:  events,
		Clock:      func() time.Time { return now },
		IDGen:      func() string { return "evt-1" },
	})
	if err != nil {
		t.Fatalf("NewPromotionStatusSweeper: %v", err)
	}

	result, err := sweeper.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if result.Tenants != 1 || result.Examined != 4 {
		t.Fatalf("unexpected counts %+v", result)
	}
	if len(result.Transitions) != 2 {
		t.Fatalf("expected two transitions, got %+v", result.Transitions)
	}
	if result.Transitions[0].PromotionID != "starts" || result.Transitions[0].To != domain.PromotionStatusActive {
		t.Fatalf("unexpected first transition %+v", result.Transitions[0])
	}
	if result.Transitions[1].PromotionID != "ends" || result.Transitions[1].To != domain.PromotionStatusExpired {
		t.Fatalf("unexpected second transition %+v", result.Transitions[1])
	}
	if len(events.messages) != 2 || events.messages[0].EventID != "evt-1" || events.messages[1].From != domain.PromotionStatusActive {
		t.Fatalf("unexpected events %+v", events.messages)
	}
}

func TestPromotionStatusSweeperPublishFailureDoesNotAbort(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	tenants := &fakeTenantRepository{tenants: map[string]domain.Tenant{"tenant-1": {ID: "tenant-1"}}}
	promos := &fakePromotionRepository{all: map[string][]domain.Promotion{
		"tenant-1": {windowPromotion("ends", domain.PromotionStatusActive, now.Add(-2*time.Hour), now.Add(-time.Hour))},
	}}
	sweeper, err := NewPromotionStatusSweeper(PromotionStatusSweeperDeps{
		Tenants:    tenants,
		Promotions: promos,
		Publisher:  &capturePromotionEvents{err: errors.New("pubsub down")},
		Clock:      func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("NewPromotionStatusSweeper: %v", err)
	}

	result, err := sweeper.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if len(result.Transitions) != 1 {
		t.Fatalf("expected transition persisted, got %+v", result.Transitions)
	}
}

func TestPromotionStatusSweeperReportsTenantFailure(t *testing.T) {
	tenants := &fakeTenantRepository{tenants: map[string]domain.Tenant{"tenant-1": {ID: "tenant-1"}}}
	promos := &fakePromotionRepository{err: errors.New("firestore down")}
	sweeper, err := NewPromotionStatusSweeper(PromotionStatusSweeperDeps{Tenants: tenants, Promotions: promos})
	if err != nil {
		t.Fatalf("NewPromotionStatusSweeper: %v", err)
	}

	if _, err := sweeper.Sweep(context.Background()); err == nil {
		t.Fatal("expected tenant failure to be reported")
	}

	failing := &fakeTenantRepository{err: errors.New("unavailable")}
	sweeper, err = NewPromotionStatusSweeper(PromotionStatusSweeperDeps{Tenants: failing, Promotions: promos})
	if err != nil {
		t.Fatalf("NewPromotionStatusSweeper: %v", err)
	}
	if _, err := sweeper.Sweep(context.Background()); err == nil {
		t.Fatal("expected list failure")
	}
}
