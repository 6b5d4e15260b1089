// Package subscriptions provides the PostgreSQL-backed store for
// subscription rows and their usage counters.
package subscriptions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/guinardelli/sheet-guardian-sub000/internal/common"
	"github.com/guinardelli/sheet-guardian-sub000/internal/dbx"
	"github.com/guinardelli/sheet-guardian-sub000/internal/entitlement"
	"github.com/guinardelli/sheet-guardian-sub000/internal/server/models"
)

// PostgresRepository implements Repository over dbx.DBTX (satisfied by
// *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Get returns the subscription row for userID, or common.ErrorNotFound.
func (r *PostgresRepository) Get(ctx context.Context, userID string) (*models.Subscription, error) {
	query :=
		`SELECT user_id, plan, sheets_used_today, sheets_used_week, sheets_used_month,
		        last_sheet_date, last_reset_date, payment_status,
		        stripe_customer_id, stripe_subscription_id, updated_at
		 FROM subscriptions
		 WHERE user_id = $1
		 `

	sub := &models.Subscription{}
	var plan string
	var lastSheet, lastReset sql.NullTime
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&sub.UserID, &plan, &sub.SheetsUsedToday, &sub.SheetsUsedWeek, &sub.SheetsUsedMonth,
		&lastSheet, &lastReset, &sub.PaymentStatus,
		&sub.StripeCustomerID, &sub.StripeSubscriptionID, &sub.UpdatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	sub.Plan = entitlement.Plan(plan)
	if lastSheet.Valid {
		sub.LastSheetDate = &lastSheet.Time
	}
	if lastReset.Valid {
		sub.LastResetDate = &lastReset.Time
	}
	return sub, nil
}

// Create inserts a new subscription row.
func (r *PostgresRepository) Create(ctx context.Context, sub *models.Subscription) error {
	query :=
		`INSERT INTO subscriptions (user_id, plan, payment_status)
		 VALUES ($1, $2, $3)
		 `

	if _, err := r.db.ExecContext(ctx, query, sub.UserID, string(sub.Plan), sub.PaymentStatus); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// UpdateUsage writes next conditioned on the counters that were read as
// prev. The WHERE clause makes this a compare-and-swap: if a concurrent
// completion already moved the counters, zero rows match and the caller
// gets common.ErrorConflict to re-read and retry.
func (r *PostgresRepository) UpdateUsage(ctx context.Context, userID string, prev entitlement.Snapshot, next entitlement.Usage) error {
	query :=
		`UPDATE subscriptions
		 SET sheets_used_today = $2, sheets_used_week = $3, sheets_used_month = $4,
		     last_sheet_date = $5, last_reset_date = $6, updated_at = now()
		 WHERE user_id = $1
		   AND sheets_used_today = $7 AND sheets_used_week = $8 AND sheets_used_month = $9
		 `

	res, err := r.db.ExecContext(ctx, query, userID,
		next.SheetsUsedToday, next.SheetsUsedWeek, next.SheetsUsedMonth,
		next.LastSheetDate, next.LastResetDate,
		prev.SheetsUsedToday, prev.SheetsUsedWeek, prev.SheetsUsedMonth)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if affected == 0 {
		return common.ErrorConflict
	}
	return nil
}

// UpdatePlan applies the billing sync result to the row.
func (r *PostgresRepository) UpdatePlan(ctx context.Context, userID string, plan entitlement.Plan, paymentStatus, customerID, subscriptionID string) error {
	query :=
		`UPDATE subscriptions
		 SET plan = $2, payment_status = $3, stripe_customer_id = $4,
		     stripe_subscription_id = $5, updated_at = now()
		 WHERE user_id = $1
		 `

	res, err := r.db.ExecContext(ctx, query, userID, string(plan), paymentStatus, customerID, subscriptionID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if affected == 0 {
		return common.ErrorNotFound
	}
	return nil
}
