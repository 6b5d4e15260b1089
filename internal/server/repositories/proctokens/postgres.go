// Package proctokens provides the PostgreSQL-backed store for single-use
// processing tokens.
package proctokens

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/guinardelli/sheet-guardian-sub000/internal/common"
	"github.com/guinardelli/sheet-guardian-sub000/internal/dbx"
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

// Create inserts a freshly issued token row.
func (r *PostgresRepository) Create(ctx context.Context, token *models.ProcessingToken) error {
	query := `
		INSERT INTO processing_tokens (token, user_id, issued_at, expires_at)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := r.db.ExecContext(ctx, query, token.Token, token.UserID, token.IssuedAt, token.ExpiresAt); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Consume atomically marks the token used. The conditional UPDATE is the
// replay defense: it matches only an unused, unexpired token owned by the
// caller, so concurrent or retried consumptions beyond the first affect
// zero rows. On a miss the row is re-read once to classify the failure.
func (r *PostgresRepository) Consume(ctx context.Context, token, userID string, now time.Time) error {
	query := `
		UPDATE processing_tokens
		SET used_at = $3
		WHERE token = $1 AND user_id = $2 AND used_at IS NULL AND expires_at > $3
	`
	res, err := r.db.ExecContext(ctx, query, token, userID, now)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if affected == 1 {
		return nil
	}
	return r.classifyConsumeFailure(ctx, token, userID, now)
}

// classifyConsumeFailure distinguishes INVALID / ALREADY_USED / EXPIRED
// after a conditional consume matched nothing.
func (r *PostgresRepository) classifyConsumeFailure(ctx context.Context, token, userID string, now time.Time) error {
	query := `
		SELECT user_id, expires_at, used_at
		FROM processing_tokens
		WHERE token = $1
	`
	var owner string
	var expiresAt time.Time
	var usedAt sql.NullTime
	err := r.db.QueryRowContext(ctx, query, token).Scan(&owner, &expiresAt, &usedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return common.ErrProcessingTokenInvalid
		}
		return fmt.Errorf("db error: %w", err)
	}
	switch {
	case owner != userID:
		return common.ErrProcessingTokenInvalid
	case usedAt.Valid:
		return common.ErrProcessingTokenUsed
	case !expiresAt.After(now):
		return common.ErrProcessingTokenExpired
	}
	// The conditional update found nothing but the row now looks
	// consumable: another writer raced us between the two statements.
	return common.ErrorConflict
}

// DeleteExpired removes tokens that expired before the cutoff.
func (r *PostgresRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		DELETE FROM processing_tokens
		WHERE expires_at < $1
	`
	res, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return affected, nil
}
