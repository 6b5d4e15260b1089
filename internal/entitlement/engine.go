package entitlement

import (
	"fmt"
	"time"

	"github.com/guinardelli/sheet-guardian-sub000/internal/common"
)

// Plan identifies a subscription tier.
type Plan string

const (
	PlanFree         Plan = "free"
	PlanProfessional Plan = "professional"
	PlanPremium      Plan = "premium"
)

// Limits describes the caps of one plan. A zero value means unlimited for
// that dimension.
type Limits struct {
	SheetsPerWeek  int
	SheetsPerMonth int
	MaxFileSize    int64
}

// planLimits is the fixed plan table, resolved at startup and never mutated.
var planLimits = map[Plan]Limits{
	PlanFree:         {SheetsPerMonth: 2, MaxFileSize: 1 << 20},
	PlanProfessional: {SheetsPerWeek: 5, MaxFileSize: 3 << 20},
	PlanPremium:      {},
}

// LimitsFor returns the limit table entry for a plan. Unknown plans fall
// back to the free tier, the most restrictive.
func LimitsFor(plan Plan) Limits {
	if l, ok := planLimits[plan]; ok {
		return l
	}
	return planLimits[PlanFree]
}

// Snapshot is a read-only view of a subscription's usage state, as stored.
// Counters may be stale across period boundaries: they are only meaningful
// after recomputation against the current period identifiers (reset-on-read,
// no background job ever zeroes them).
type Snapshot struct {
	Plan            Plan
	SheetsUsedToday int
	SheetsUsedWeek  int
	SheetsUsedMonth int
	// LastSheetDate is the date of the most recent processed sheet; the
	// zero time means the user has never processed one.
	LastSheetDate time.Time
	// LastResetDate anchors the monthly counter's period.
	LastResetDate time.Time
}

// Decision is the outcome of a capacity check. A denial is a valid negative
// decision, not an error; Reason names the limiting dimension and
// SuggestUpgrade is set when a higher tier would remove that limit.
type Decision struct {
	Allowed        bool
	Code           string
	Reason         string
	SuggestUpgrade bool
}

// UsedThisWeek returns the effective weekly usage at time now, treating a
// counter from a different ISO week as zero.
func (s Snapshot) UsedThisWeek(now time.Time) int {
	if s.LastSheetDate.IsZero() || !SameISOWeek(s.LastSheetDate, now) {
		return 0
	}
	return s.SheetsUsedWeek
}

// UsedThisMonth returns the effective monthly usage at time now, keyed by
// the calendar month of LastResetDate.
func (s Snapshot) UsedThisMonth(now time.Time) int {
	if s.LastResetDate.IsZero() || !SameMonth(s.LastResetDate, now) {
		return 0
	}
	return s.SheetsUsedMonth
}

// CanProcess decides whether a file of fileSize bytes may be processed
// right now. Checks short-circuit in order: size, weekly cap, monthly cap.
func CanProcess(s Snapshot, fileSize int64, now time.Time) Decision {
	limits := LimitsFor(s.Plan)

	if limits.MaxFileSize > 0 && fileSize > limits.MaxFileSize {
		return Decision{
			Code:           common.CodeFileTooLarge,
			Reason:         fmt.Sprintf("file size %d exceeds the %s plan limit of %d bytes", fileSize, s.Plan, limits.MaxFileSize),
			SuggestUpgrade: true,
		}
	}

	if limits.SheetsPerWeek > 0 {
		if used := s.UsedThisWeek(now); used >= limits.SheetsPerWeek {
			return Decision{
				Code:           common.CodeWeeklyLimitReached,
				Reason:         fmt.Sprintf("weekly limit of %d sheets reached (%d used)", limits.SheetsPerWeek, used),
				SuggestUpgrade: true,
			}
		}
	}

	if limits.SheetsPerMonth > 0 {
		if used := s.UsedThisMonth(now); used >= limits.SheetsPerMonth {
			return Decision{
				Code:           common.CodeMonthlyLimitReached,
				Reason:         fmt.Sprintf("monthly limit of %d sheets reached (%d used)", limits.SheetsPerMonth, used),
				SuggestUpgrade: true,
			}
		}
	}

	return Decision{Allowed: true}
}

// Usage is the counter state written back after a billable processing
// operation.
type Usage struct {
	SheetsUsedToday int
	SheetsUsedWeek  int
	SheetsUsedMonth int
	LastSheetDate   time.Time
	LastResetDate   time.Time
}

// NextUsage computes the increment transition for a snapshot at time now:
// each counter increments within its current period and resets to 1 when
// the period rolled over since the last use. LastResetDate moves only on a
// month rollover.
func NextUsage(s Snapshot, now time.Time) Usage {
	next := Usage{
		SheetsUsedToday: 1,
		SheetsUsedWeek:  1,
		SheetsUsedMonth: 1,
		LastSheetDate:   now,
		LastResetDate:   s.LastResetDate,
	}

	if !s.LastSheetDate.IsZero() && SameDate(s.LastSheetDate, now) {
		next.SheetsUsedToday = s.SheetsUsedToday + 1
	}
	if !s.LastSheetDate.IsZero() && SameISOWeek(s.LastSheetDate, now) {
		next.SheetsUsedWeek = s.SheetsUsedWeek + 1
	}
	if !s.LastResetDate.IsZero() && SameMonth(s.LastResetDate, now) {
		next.SheetsUsedMonth = s.SheetsUsedMonth + 1
	} else {
		next.LastResetDate = now
	}

	return next
}
