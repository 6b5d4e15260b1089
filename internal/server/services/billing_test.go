package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guinardelli/sheet-guardian-sub000/internal/entitlement"
	"github.com/guinardelli/sheet-guardian-sub000/internal/server/models"
)

type fakeOracle struct {
	status *PaymentStatus
	// failures is the number of calls that error before one succeeds.
	failures int
	calls    int
}

func (f *fakeOracle) CheckStatus(ctx context.Context, userID string) (*PaymentStatus, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("oracle timeout")
	}
	return f.status, nil
}

func newBillingService(t *testing.T, rm *fakeRepoManager, oracle PaymentOracle) *BillingService {
	t.Helper()
	db, _ := newSQLMockDB(t)
	t.Cleanup(func() { db.Close() })
	svc := NewBillingService(db, rm, oracle)
	svc.retryBase = time.Millisecond
	return svc
}

func TestApplyWebhook_UpdatesExistingRow(t *testing.T) {
	rm := &fakeRepoManager{
		subs:   &fakeSubsRepo{sub: models.NewFreeSubscription("u-1")},
		tokens: &fakeTokensRepo{},
	}
	svc := newBillingService(t, rm, nil)

	err := svc.ApplyWebhook(context.Background(), WebhookEvent{
		UserID:         "u-1",
		EventType:      "customer.subscription.updated",
		Plan:           entitlement.PlanProfessional,
		Status:         "active",
		CustomerID:     "cus_123",
		SubscriptionID: "sub_456",
	})

	require.NoError(t, err)
	assert.Equal(t, entitlement.PlanProfessional, rm.subs.sub.Plan)
	assert.Equal(t, "active", rm.subs.sub.PaymentStatus)
	assert.Equal(t, "cus_123", rm.subs.sub.StripeCustomerID)
	assert.Equal(t, "sub_456", rm.subs.sub.StripeSubscriptionID)
}

func TestApplyWebhook_CreatesMissingRow(t *testing.T) {
	rm := &fakeRepoManager{subs: &fakeSubsRepo{}, tokens: &fakeTokensRepo{}}
	svc := newBillingService(t, rm, nil)

	err := svc.ApplyWebhook(context.Background(), WebhookEvent{
		UserID: "u-new",
		Plan:   entitlement.PlanPremium,
		Status: "active",
	})

	require.NoError(t, err)
	require.Len(t, rm.subs.created, 1)
	assert.Equal(t, entitlement.PlanPremium, rm.subs.sub.Plan)
}

func TestSyncStatus_RetriesTransientOracleErrors(t *testing.T) {
	oracle := &fakeOracle{
		failures: 2,
		status:   &PaymentStatus{Plan: entitlement.PlanProfessional, Status: "active"},
	}
	rm := &fakeRepoManager{
		subs:   &fakeSubsRepo{sub: models.NewFreeSubscription("u-1")},
		tokens: &fakeTokensRepo{},
	}
	svc := newBillingService(t, rm, oracle)

	sub, err := svc.SyncStatus(context.Background(), "u-1")

	require.NoError(t, err)
	assert.Equal(t, 3, oracle.calls)
	assert.Equal(t, entitlement.PlanProfessional, sub.Plan)
	assert.Equal(t, "active", sub.PaymentStatus)
}

func TestSyncStatus_GivesUpAfterBoundedRetries(t *testing.T) {
	oracle := &fakeOracle{failures: 10}
	rm := &fakeRepoManager{
		subs:   &fakeSubsRepo{sub: models.NewFreeSubscription("u-1")},
		tokens: &fakeTokensRepo{},
	}
	svc := newBillingService(t, rm, oracle)

	_, err := svc.SyncStatus(context.Background(), "u-1")

	require.Error(t, err)
	assert.Equal(t, 4, oracle.calls, "initial attempt plus three retries")
	assert.Equal(t, entitlement.PlanFree, rm.subs.sub.Plan, "row untouched when the oracle never answers")
}

func TestSyncStatus_TerminalAnswerIsNotRetried(t *testing.T) {
	oracle := &fakeOracle{
		status: &PaymentStatus{Plan: entitlement.PlanFree, Status: "canceled"},
	}
	rm := &fakeRepoManager{
		subs:   &fakeSubsRepo{sub: &models.Subscription{UserID: "u-1", Plan: entitlement.PlanProfessional, PaymentStatus: "active"}},
		tokens: &fakeTokensRepo{},
	}
	svc := newBillingService(t, rm, oracle)

	sub, err := svc.SyncStatus(context.Background(), "u-1")

	require.NoError(t, err)
	assert.Equal(t, 1, oracle.calls, "a definitive answer ends the exchange")
	assert.Equal(t, entitlement.PlanFree, sub.Plan)
	assert.Equal(t, "canceled", sub.PaymentStatus)
}
