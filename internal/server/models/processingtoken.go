package models

import "time"

// ProcessingToken authorizes exactly one billable processing operation. It
// is terminal once UsedAt is set or ExpiresAt has passed; consumption is
// enforced at most once by the backing store's conditional update.
type ProcessingToken struct {
	Token     string
	UserID    string
	IssuedAt  time.Time
	ExpiresAt time.Time
	// UsedAt is nil while the token is still live.
	UsedAt *time.Time
}

// IsExpired reports whether the token's TTL has passed.
func (t *ProcessingToken) IsExpired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// IsUsed reports whether the token has already been consumed.
func (t *ProcessingToken) IsUsed() bool {
	return t.UsedAt != nil
}
