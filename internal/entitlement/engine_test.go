package entitlement

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/guinardelli/sheet-guardian-sub000/internal/common"
)

func TestCanProcess_SizeLimit(t *testing.T) {
	now := date(2025, time.March, 10)

	tests := []struct {
		name    string
		plan    Plan
		size    int64
		allowed bool
	}{
		{name: "free under 1MiB", plan: PlanFree, size: 1 << 20, allowed: true},
		{name: "free over 1MiB", plan: PlanFree, size: 1<<20 + 1, allowed: false},
		{name: "professional under 3MiB", plan: PlanProfessional, size: 3 << 20, allowed: true},
		{name: "professional over 3MiB", plan: PlanProfessional, size: 3<<20 + 1, allowed: false},
		{name: "premium unbounded", plan: PlanPremium, size: 500 << 20, allowed: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := CanProcess(Snapshot{Plan: tt.plan}, tt.size, now)
			assert.Equal(t, tt.allowed, d.Allowed)
			if !tt.allowed {
				assert.Equal(t, common.CodeFileTooLarge, d.Code)
				assert.True(t, d.SuggestUpgrade)
				assert.NotEmpty(t, d.Reason)
			}
		})
	}
}

func TestCanProcess_WeeklyLimit(t *testing.T) {
	now := date(2025, time.March, 12) // Wednesday

	s := Snapshot{
		Plan:           PlanProfessional,
		SheetsUsedWeek: 5,
		LastSheetDate:  date(2025, time.March, 10), // same ISO week
	}
	d := CanProcess(s, 1024, now)
	assert.False(t, d.Allowed)
	assert.Equal(t, common.CodeWeeklyLimitReached, d.Code)
	assert.True(t, d.SuggestUpgrade)

	// Same counter value, but the last use was in the previous ISO week:
	// effective usage is recomputed to zero on read.
	s.LastSheetDate = date(2025, time.March, 7)
	d = CanProcess(s, 1024, now)
	assert.True(t, d.Allowed)
}

func TestCanProcess_FreePlanMonthlyReset(t *testing.T) {
	// User with one sheet used last month: reset-on-read reports zero used
	// this month, so processing is allowed.
	now := date(2025, time.April, 2)
	s := Snapshot{
		Plan:            PlanFree,
		SheetsUsedMonth: 1,
		LastResetDate:   date(2025, time.March, 20),
	}
	assert.True(t, CanProcess(s, 1024, now).Allowed)

	// Same month, cap reached.
	s.SheetsUsedMonth = 2
	s.LastResetDate = date(2025, time.April, 1)
	d := CanProcess(s, 1024, now)
	assert.False(t, d.Allowed)
	assert.Equal(t, common.CodeMonthlyLimitReached, d.Code)
}

func TestCanProcess_SizeCheckShortCircuits(t *testing.T) {
	// Over the size limit and over the monthly cap: size wins.
	now := date(2025, time.April, 2)
	s := Snapshot{
		Plan:            PlanFree,
		SheetsUsedMonth: 99,
		LastResetDate:   now,
	}
	d := CanProcess(s, 10<<20, now)
	assert.Equal(t, common.CodeFileTooLarge, d.Code)
}

func TestCanProcess_UnknownPlanFallsBackToFree(t *testing.T) {
	now := date(2025, time.April, 2)
	d := CanProcess(Snapshot{Plan: Plan("trial")}, 2<<20, now)
	assert.False(t, d.Allowed)
	assert.Equal(t, common.CodeFileTooLarge, d.Code)
}

func TestCanProcess_PremiumNeverDenied(t *testing.T) {
	now := date(2025, time.April, 2)
	s := Snapshot{
		Plan:            PlanPremium,
		SheetsUsedWeek:  1000,
		SheetsUsedMonth: 1000,
		LastSheetDate:   now,
		LastResetDate:   now,
	}
	assert.True(t, CanProcess(s, 100<<20, now).Allowed)
}

func TestNextUsage_SamePeriods(t *testing.T) {
	now := date(2025, time.May, 20)
	s := Snapshot{
		SheetsUsedToday: 2,
		SheetsUsedWeek:  3,
		SheetsUsedMonth: 4,
		LastSheetDate:   now.Add(-2 * time.Hour),
		LastResetDate:   date(2025, time.May, 1),
	}

	u := NextUsage(s, now)

	assert.Equal(t, 3, u.SheetsUsedToday)
	assert.Equal(t, 4, u.SheetsUsedWeek)
	assert.Equal(t, 5, u.SheetsUsedMonth)
	assert.Equal(t, now, u.LastSheetDate)
	assert.Equal(t, s.LastResetDate, u.LastResetDate, "reset date unchanged within the month")
}

func TestNextUsage_AllPeriodsRolledOver(t *testing.T) {
	now := date(2025, time.June, 2)
	s := Snapshot{
		SheetsUsedToday: 9,
		SheetsUsedWeek:  9,
		SheetsUsedMonth: 9,
		LastSheetDate:   date(2025, time.May, 28),
		LastResetDate:   date(2025, time.May, 1),
	}

	u := NextUsage(s, now)

	assert.Equal(t, 1, u.SheetsUsedToday)
	assert.Equal(t, 1, u.SheetsUsedWeek)
	assert.Equal(t, 1, u.SheetsUsedMonth)
	assert.Equal(t, now, u.LastSheetDate)
	assert.Equal(t, now, u.LastResetDate, "month rollover moves the reset date")
}

func TestNextUsage_WeekRolloverWithinMonth(t *testing.T) {
	// Sunday to Monday: new ISO week, same day count resets, month continues.
	s := Snapshot{
		SheetsUsedToday: 1,
		SheetsUsedWeek:  4,
		SheetsUsedMonth: 6,
		LastSheetDate:   date(2025, time.June, 8), // Sunday
		LastResetDate:   date(2025, time.June, 1),
	}
	now := date(2025, time.June, 9) // Monday

	u := NextUsage(s, now)

	assert.Equal(t, 1, u.SheetsUsedToday)
	assert.Equal(t, 1, u.SheetsUsedWeek)
	assert.Equal(t, 7, u.SheetsUsedMonth)
}

func TestNextUsage_FirstEverUse(t *testing.T) {
	now := date(2025, time.June, 9)

	u := NextUsage(Snapshot{}, now)

	assert.Equal(t, 1, u.SheetsUsedToday)
	assert.Equal(t, 1, u.SheetsUsedWeek)
	assert.Equal(t, 1, u.SheetsUsedMonth)
	assert.Equal(t, now, u.LastSheetDate)
	assert.Equal(t, now, u.LastResetDate)
}

func TestLimitsFor(t *testing.T) {
	assert.Equal(t, Limits{SheetsPerMonth: 2, MaxFileSize: 1 << 20}, LimitsFor(PlanFree))
	assert.Equal(t, Limits{SheetsPerWeek: 5, MaxFileSize: 3 << 20}, LimitsFor(PlanProfessional))
	assert.Equal(t, Limits{}, LimitsFor(PlanPremium))
	assert.Equal(t, LimitsFor(PlanFree), LimitsFor(Plan("nonsense")))
}
