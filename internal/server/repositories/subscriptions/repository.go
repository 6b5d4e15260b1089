package subscriptions

import (
	"context"

	"github.com/guinardelli/sheet-guardian-sub000/internal/entitlement"
	"github.com/guinardelli/sheet-guardian-sub000/internal/server/models"
)

// Repository stores subscription rows. Implementations must make
// UpdateUsage a conditional single-statement update so concurrent
// completions for the same user cannot lose increments.
type Repository interface {
	Get(ctx context.Context, userID string) (*models.Subscription, error)
	Create(ctx context.Context, sub *models.Subscription) error
	// UpdateUsage writes the next counter state, conditioned on the
	// previously observed counters. Returns common.ErrorConflict when the
	// row changed underneath the caller.
	UpdateUsage(ctx context.Context, userID string, prev entitlement.Snapshot, next entitlement.Usage) error
	// UpdatePlan applies a billing-sync result (plan, payment status,
	// provider identifiers).
	UpdatePlan(ctx context.Context, userID string, plan entitlement.Plan, paymentStatus, customerID, subscriptionID string) error
}
