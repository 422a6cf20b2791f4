package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "github.com/vitrine-field/api/internal/domain"
	"github.com/vitrine-field/api/internal/repositories"
)

// PromotionStatusChangedMessage is the event emitted for every persisted status transition.
type PromotionStatusChangedMessage struct {
	EventID     string                 `json:"eventId"`
	TenantID    string                 `json:"tenantId"`
	PromotionID string                 `json:"promotionId"`
	From        domain.PromotionStatus `json:"from"`
	To          domain.PromotionStatus `json:"to"`
	StartDate   time.Time              `json:"startDate"`
	EndDate     time.Time              `json:"endDate"`
	ChangedAt   time.Time              `json:"changedAt"`
}

// PromotionEventPublisher delivers promotion status events to downstream consumers.
type PromotionEventPublisher interface {
	PublishPromotionStatusChanged(ctx context.Context, message PromotionStatusChangedMessage) (string, error)
}

// PromotionStatusSweeperDeps wires the dependencies required by the sweeper.
type PromotionStatusSweeperDeps struct {
	Tenants    repositories.TenantRepository
	Promotions repositories.PromotionRepository
	Publisher  PromotionEventPublisher
	Clock      func() time.Time
	IDGen      func() string
	Logger     func(ctx context.Context, event string, fields map[string]any)
}

type promotionStatusSweeper struct {
	tenants    repositories.TenantRepository
	promotions repositories.PromotionRepository
	publisher  PromotionEventPublisher
	now        func() time.Time
	newID      func() string
	logger     func(ctx context.Context, event string, fields map[string]any)
}

// NewPromotionStatusSweeper constructs the sweeper. The publisher is optional.
func NewPromotionStatusSweeper(deps PromotionStatusSweeperDeps) (PromotionStatusSweeper, error) {
	if deps.Tenants == nil {
		return nil, errors.New("promotion sweeper: tenant repository is required")
	}
	if deps.Promotions == nil {
		return nil, errors.New("promotion sweeper: promotion repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGen
	if idGen == nil {
		idGen = func() string { return "" }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &promotionStatusSweeper{
		tenants:    deps.Tenants,
		promotions: deps.Promotions,
		publisher:  deps.Publisher,
		now: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

// DerivePromotionStatus maps the promotion window onto a lifecycle status. It ignores IsActive;
// the resolver alone decides whether a promotion applies.
func DerivePromotionStatus(promo domain.Promotion, now time.Time) domain.PromotionStatus {
	switch {
	case !promo.StartDate.IsZero() && now.Before(promo.StartDate):
		return domain.PromotionStatusScheduled
	case !promo.EndDate.IsZero() && now.After(promo.EndDate):
		return domain.PromotionStatusExpired
	default:
		return domain.PromotionStatusActive
	}
}

// Sweep refreshes stored statuses for every tenant. A failing tenant is logged and skipped so one
// store cannot block the others; the first such error is returned after the sweep completes.
func (s *promotionStatusSweeper) Sweep(ctx context.Context) (SweepResult, error) {
	tenants, err := s.tenants.List(ctx)
	if err != nil {
		return SweepResult{}, fmt.Errorf("promotion sweeper: list tenants: %w", err)
	}

	now := s.now()
	result := SweepResult{Tenants: len(tenants)}
	var firstErr error
	for _, tenant := range tenants {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := s.sweepTenant(ctx, tenant.ID, now, &result); err != nil {
			s.logger(ctx, "promotion_sweeper.tenant_failed", map[string]any{
				"tenantId": tenant.ID,
				"error":    err.Error(),
			})
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	s.logger(ctx, "promotion_sweeper.completed", map[string]any{
		"tenants":     result.Tenants,
		"examined":    result.Examined,
		"transitions": len(result.Transitions),
	})
	return result, firstErr
}

func (s *promotionStatusSweeper) sweepTenant(ctx context.Context, tenantID string, now time.Time, result *SweepResult) error {
	promos, err := s.promotions.ListAll(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("list promotions: %w", err)
	}

	for _, promo := range promos {
		result.Examined++
		next := DerivePromotionStatus(promo, now)
		if next == promo.Status {
			continue
		}

		changed, err := s.promotions.TransitionStatus(ctx, tenantID, promo.ID, promo.Status, next)
		if err != nil {
			return fmt.Errorf("transition %s: %w", promo.ID, err)
		}
		if !changed {
			continue
		}

		transition := PromotionTransition{
			TenantID:    tenantID,
			PromotionID: promo.ID,
			From:        promo.Status,
			To:          next,
			ChangedAt:   now,
		}
		result.Transitions = append(result.Transitions, transition)
		s.publish(ctx, promo, transition)
	}
	return nil
}

func (s *promotionStatusSweeper) publish(ctx context.Context, promo domain.Promotion, transition PromotionTransition) {
	if s.publisher == nil {
		return
	}
	_, err := s.publisher.PublishPromotionStatusChanged(ctx, PromotionStatusChangedMessage{
		EventID:     s.newID(),
		TenantID:    transition.TenantID,
		PromotionID: transition.PromotionID,
		From:        transition.From,
		To:          transition.To,
		StartDate:   promo.StartDate,
		EndDate:     promo.EndDate,
		ChangedAt:   transition.ChangedAt,
	})
	if err != nil {
		s.logger(ctx, "promotion_sweeper.publish_failed", map[string]any{
			"tenantId":    transition.TenantID,
			"promotionId": transition.PromotionID,
			"error":       err.Error(),
		})
	}
}
