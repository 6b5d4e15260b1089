// Package services contains the server-side application services: processing
// orchestration, artifact storage, billing sync and subscription reads.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/guinardelli/sheet-guardian-sub000/internal/common"
	"github.com/guinardelli/sheet-guardian-sub000/internal/dbx"
	"github.com/guinardelli/sheet-guardian-sub000/internal/entitlement"
	"github.com/guinardelli/sheet-guardian-sub000/internal/server/config"
	"github.com/guinardelli/sheet-guardian-sub000/internal/server/models"
	"github.com/guinardelli/sheet-guardian-sub000/internal/server/repositories/repomanager"
	"github.com/guinardelli/sheet-guardian-sub000/internal/shared"
	"github.com/guinardelli/sheet-guardian-sub000/internal/vba"
)

// ProcessingService gates, runs and settles workbook processing operations.
// A processing token bridges the caller's pre-flight check and the billable
// completion: it is issued only when the entitlement engine allows the
// operation and must be consumed exactly once before usage is counted.
type ProcessingService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	artifacts   *ArtifactService
	tokenTTL    time.Duration
	compression int
	now         func() time.Time
}

// NewProcessingService wires the service from the shared DB handle,
// repository manager, artifact store and config.
func NewProcessingService(db *sql.DB, m repomanager.RepositoryManager, artifacts *ArtifactService, cfg *config.Config) *ProcessingService {
	return &ProcessingService{
		db:          db,
		repomanager: m,
		artifacts:   artifacts,
		tokenTTL:    cfg.ProcessingTokenTTL,
		compression: cfg.CompressionLevel,
		now:         time.Now,
	}
}

// getOrCreateSubscription returns the user's subscription row, creating the
// default free row on first contact.
func (s *ProcessingService) getOrCreateSubscription(ctx context.Context, db dbx.DBTX, userID string) (*models.Subscription, error) {
	repo := s.repomanager.Subscriptions(db)

	sub, err := repo.Get(ctx, userID)
	if err == nil {
		return sub, nil
	}
	if !errors.Is(err, common.ErrorNotFound) {
		return nil, fmt.Errorf("error reading subscription: %w", err)
	}

	sub = models.NewFreeSubscription(userID)
	if err := repo.Create(ctx, sub); err != nil {
		return nil, fmt.Errorf("error creating subscription: %w", err)
	}
	return sub, nil
}

// CheckEntitlement answers "can this user process a file of this size right
// now". Denials are valid decisions, not errors.
func (s *ProcessingService) CheckEntitlement(ctx context.Context, userID string, fileSize int64) (entitlement.Decision, error) {
	sub, err := s.getOrCreateSubscription(ctx, s.db, userID)
	if err != nil {
		return entitlement.Decision{}, err
	}
	return entitlement.CanProcess(sub.Snapshot(), fileSize, s.now()), nil
}

// IssueToken issues a single-use processing token when the entitlement
// check passes. On a denial the decision is returned with a nil token.
func (s *ProcessingService) IssueToken(ctx context.Context, userID string, fileSize int64) (*models.ProcessingToken, entitlement.Decision, error) {
	decision, err := s.CheckEntitlement(ctx, userID, fileSize)
	if err != nil {
		return nil, entitlement.Decision{}, err
	}
	if !decision.Allowed {
		return nil, decision, nil
	}

	value, err := shared.MakeRandHexString(32)
	if err != nil {
		return nil, entitlement.Decision{}, fmt.Errorf("error generating token: %w", err)
	}

	now := s.now()
	token := &models.ProcessingToken{
		Token:     value,
		UserID:    userID,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.tokenTTL),
	}
	if err := s.repomanager.ProcessingTokens(s.db).Create(ctx, token); err != nil {
		return nil, entitlement.Decision{}, fmt.Errorf("error storing token: %w", err)
	}
	return token, decision, nil
}

// Process runs the whole operation behind an already-issued token: the
// rewrite pipeline, the artifact upload and the usage settlement. A
// categorized pipeline failure is a valid outcome with an empty URL; the
// token stays unconsumed so the caller may retry with a corrected file.
func (s *ProcessingService) Process(ctx context.Context, userID, token, filename string, payload []byte, opts ...vba.Option) (*vba.ProcessingResult, string, error) {
	pipeOpts := append([]vba.Option{vba.WithCompressionLevel(s.compression)}, opts...)
	result := vba.NewPipeline(pipeOpts...).Process(filename, payload)
	if !result.Success {
		return result, "", nil
	}

	key := ArtifactKey(userID, result.NewName)
	if err := s.artifacts.Upload(ctx, key, result.Artifact); err != nil {
		return result, "", err
	}
	url, err := s.artifacts.PresignDownload(ctx, key)
	if err != nil {
		return result, "", err
	}

	if err := s.Complete(ctx, userID, token, result); err != nil {
		return result, "", err
	}
	return result, url, nil
}

// Complete settles a finished processing operation: it consumes the token
// and, when the result is billable, applies the usage-increment transition.
// Both writes happen in one transaction so a consumed token without a
// counted usage (or the reverse) cannot be observed. Retried requests fail
// on the token's at-most-once consumption and never double-count.
func (s *ProcessingService) Complete(ctx context.Context, userID, token string, result *vba.ProcessingResult) error {
	if result == nil || !result.Success {
		return fmt.Errorf("cannot settle unsuccessful processing: %w", common.ErrorInternal)
	}

	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		now := s.now()

		if err := s.repomanager.ProcessingTokens(tx).Consume(ctx, token, userID, now); err != nil {
			return err
		}

		if !result.ShouldCountUsage {
			return nil
		}
		return s.incrementUsage(ctx, tx, userID, now)
	})
}

// incrementUsage applies the entitlement engine's increment transition via
// the repository's conditional update, retrying once after re-reading if a
// concurrent completion moved the counters.
func (s *ProcessingService) incrementUsage(ctx context.Context, tx dbx.DBTX, userID string, now time.Time) error {
	repo := s.repomanager.Subscriptions(tx)

	for attempt := 0; attempt < 2; attempt++ {
		sub, err := repo.Get(ctx, userID)
		if err != nil {
			return fmt.Errorf("error reading subscription: %w", err)
		}
		snap := sub.Snapshot()
		err = repo.UpdateUsage(ctx, userID, snap, entitlement.NextUsage(snap, now))
		if err == nil {
			return nil
		}
		if !errors.Is(err, common.ErrorConflict) {
			return fmt.Errorf("error incrementing usage: %w", err)
		}
	}
	return common.ErrorConflict
}

// PurgeExpiredTokens removes tokens whose TTL has passed. Expired tokens
// simply stop being consumable, so this is housekeeping, not correctness.
func (s *ProcessingService) PurgeExpiredTokens(ctx context.Context) (int64, error) {
	return s.repomanager.ProcessingTokens(s.db).DeleteExpired(ctx, s.now())
}
