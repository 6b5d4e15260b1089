package proctokens

import (
	"context"
	"time"

	"github.com/guinardelli/sheet-guardian-sub000/internal/server/models"
)

// Repository stores processing tokens. Consume must be atomic at the store
// level: exactly one caller can ever succeed for a given token.
type Repository interface {
	Create(ctx context.Context, token *models.ProcessingToken) error
	// Consume marks the token used at time now. It fails with
	// common.ErrProcessingTokenInvalid, ...Used or ...Expired; only one
	// call per token can ever succeed.
	Consume(ctx context.Context, token, userID string, now time.Time) error
	// DeleteExpired removes tokens whose expiry is before the cutoff and
	// returns how many were removed.
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}
