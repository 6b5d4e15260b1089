package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/guinardelli/sheet-guardian-sub000/internal/common"
	"github.com/guinardelli/sheet-guardian-sub000/internal/entitlement"
	"github.com/guinardelli/sheet-guardian-sub000/internal/server/models"
	"github.com/guinardelli/sheet-guardian-sub000/internal/server/repositories/repomanager"
)

// PaymentStatus is the payment oracle's answer about a user. A terminal
// negative answer (canceled, past_due) is expressed here, never as an
// error; oracle errors mean "no answer" and are safe to retry.
type PaymentStatus struct {
	Plan           entitlement.Plan
	Status         string
	CustomerID     string
	SubscriptionID string
}

// PaymentOracle is the external payment-status source, reachable only
// through a webhook callback and this check call.
type PaymentOracle interface {
	CheckStatus(ctx context.Context, userID string) (*PaymentStatus, error)
}

// WebhookEvent is a payment-provider callback after it changed a user's
// subscription.
type WebhookEvent struct {
	UserID         string
	EventType      string
	Plan           entitlement.Plan
	Status         string
	CustomerID     string
	SubscriptionID string
	OccurredAt     time.Time
}

// BillingService reconciles subscription rows with the external payment
// oracle. It is the only writer of plan and payment-status fields.
type BillingService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	oracle      PaymentOracle

	retryBase     time.Duration
	retryAttempts uint64
}

// NewBillingService wires the service. Retry settings bound the status
// re-check: exponential backoff, a handful of attempts, then give up.
func NewBillingService(db *sql.DB, m repomanager.RepositoryManager, oracle PaymentOracle) *BillingService {
	return &BillingService{
		db:            db,
		repomanager:   m,
		oracle:        oracle,
		retryBase:     200 * time.Millisecond,
		retryAttempts: 3,
	}
}

// ApplyWebhook applies a provider webhook to the subscription row, creating
// the row first if the provider knows the user before we do.
func (s *BillingService) ApplyWebhook(ctx context.Context, ev WebhookEvent) error {
	repo := s.repomanager.Subscriptions(s.db)

	err := repo.UpdatePlan(ctx, ev.UserID, ev.Plan, ev.Status, ev.CustomerID, ev.SubscriptionID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, common.ErrorNotFound) {
		return fmt.Errorf("error applying webhook: %w", err)
	}

	if err := repo.Create(ctx, models.NewFreeSubscription(ev.UserID)); err != nil {
		return fmt.Errorf("error creating subscription: %w", err)
	}
	if err := repo.UpdatePlan(ctx, ev.UserID, ev.Plan, ev.Status, ev.CustomerID, ev.SubscriptionID); err != nil {
		return fmt.Errorf("error applying webhook: %w", err)
	}
	return nil
}

// SyncStatus re-checks the payment oracle and writes the answer to the
// subscription row. Oracle errors are retried with bounded exponential
// backoff; a terminal answer is applied exactly as given and never
// re-queried.
func (s *BillingService) SyncStatus(ctx context.Context, userID string) (*models.Subscription, error) {
	var status *PaymentStatus

	backoff := retry.WithMaxRetries(s.retryAttempts, retry.NewExponential(s.retryBase))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		st, err := s.oracle.CheckStatus(ctx, userID)
		if err != nil {
			// No answer from the oracle: transient, retry.
			return retry.RetryableError(err)
		}
		status = st
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("payment oracle unavailable: %w", err)
	}

	if err := s.ApplyWebhook(ctx, WebhookEvent{
		UserID:         userID,
		EventType:      "status.sync",
		Plan:           status.Plan,
		Status:         status.Status,
		CustomerID:     status.CustomerID,
		SubscriptionID: status.SubscriptionID,
		OccurredAt:     time.Now(),
	}); err != nil {
		return nil, err
	}

	sub, err := s.repomanager.Subscriptions(s.db).Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error reading subscription: %w", err)
	}
	return sub, nil
}
