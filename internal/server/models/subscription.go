// Package models defines server-side data models persisted in the database.
package models

import (
	"time"

	"github.com/guinardelli/sheet-guardian-sub000/internal/entitlement"
)

// Subscription is a user's subscription row. It is owned by the entitlement
// store and mutated only through the usage-increment transition or the
// billing sync; nothing else writes to it.
type Subscription struct {
	UserID          string
	Plan            entitlement.Plan
	SheetsUsedToday int
	SheetsUsedWeek  int
	SheetsUsedMonth int
	// LastSheetDate is nil until the first processed sheet.
	LastSheetDate *time.Time
	LastResetDate *time.Time
	// PaymentStatus mirrors the payment provider's last known answer
	// ("active", "past_due", "canceled", ...).
	PaymentStatus        string
	StripeCustomerID     string
	StripeSubscriptionID string
	UpdatedAt            time.Time
}

// NewFreeSubscription returns the default row created for a user on first
// contact.
func NewFreeSubscription(userID string) *Subscription {
	return &Subscription{
		UserID:        userID,
		Plan:          entitlement.PlanFree,
		PaymentStatus: "none",
	}
}

// Snapshot converts the row to the entitlement engine's read-only view.
func (s *Subscription) Snapshot() entitlement.Snapshot {
	snap := entitlement.Snapshot{
		Plan:            s.Plan,
		SheetsUsedToday: s.SheetsUsedToday,
		SheetsUsedWeek:  s.SheetsUsedWeek,
		SheetsUsedMonth: s.SheetsUsedMonth,
	}
	if s.LastSheetDate != nil {
		snap.LastSheetDate = *s.LastSheetDate
	}
	if s.LastResetDate != nil {
		snap.LastResetDate = *s.LastResetDate
	}
	return snap
}
