package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/guinardelli/sheet-guardian-sub000/internal/entitlement"
	"github.com/guinardelli/sheet-guardian-sub000/internal/server/models"
	"github.com/guinardelli/sheet-guardian-sub000/internal/server/repositories/repomanager"
)

// QuotaSummary is the read-side view a caller renders: plan limits plus
// effective usage for the current periods (reset-on-read already applied).
type QuotaSummary struct {
	Plan          entitlement.Plan
	Limits        entitlement.Limits
	UsedThisWeek  int
	UsedThisMonth int
}

// SubscriptionService exposes read-only subscription state.
type SubscriptionService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
}

// NewSubscriptionService wires the service.
func NewSubscriptionService(db *sql.DB, m repomanager.RepositoryManager) *SubscriptionService {
	return &SubscriptionService{db: db, repomanager: m}
}

// Get returns the raw subscription row.
func (s *SubscriptionService) Get(ctx context.Context, userID string) (*models.Subscription, error) {
	sub, err := s.repomanager.Subscriptions(s.db).Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error reading subscription: %w", err)
	}
	return sub, nil
}

// Quota returns the effective quota summary at time now.
func (s *SubscriptionService) Quota(ctx context.Context, userID string, now time.Time) (*QuotaSummary, error) {
	sub, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	snap := sub.Snapshot()
	return &QuotaSummary{
		Plan:          sub.Plan,
		Limits:        entitlement.LimitsFor(sub.Plan),
		UsedThisWeek:  snap.UsedThisWeek(now),
		UsedThisMonth: snap.UsedThisMonth(now),
	}, nil
}
