package repository

import (
	"context"
	"time"

	"content-platform-billing/internal/domain/model"
)

// PromotionRuleRepository is the port for promotion rule storage. ListActive
// is read-mostly and sits behind a cache decorator; write methods must
// invalidate that cache.
type PromotionRuleRepository interface {
	// ListActive returns status=active rules whose window contains now,
	// ordered priority DESC, created_at DESC.
	ListActive(ctx context.Context, tx Tx, now time.Time) ([]*model.PromotionRule, error)

	// FindByID returns one rule or domain.ErrNotFound.
	FindByID(ctx context.Context, tx Tx, id string) (*model.PromotionRule, error)

	// FindByIDs returns the subset of ids that exist and are status=active,
	// preserving the input order.
	FindByIDs(ctx context.Context, tx Tx, ids []string) ([]*model.PromotionRule, error)

	// Save inserts or updates a rule.
	Save(ctx context.Context, tx Tx, rule *model.PromotionRule) error

	// IncrementUsage bumps usage_count by one, store-side.
	IncrementUsage(ctx context.Context, tx Tx, id string) error
}

// RuleCacheControl exposes admin operations on the rule cache decorator.
type RuleCacheControl interface {
	// Refresh drops the cached active-rule set so the next read reloads it.
	Refresh(ctx context.Context) error

	// Stats reports cache reachability, cached rule count, and remaining TTL.
	Stats(ctx context.Context) (connected bool, size int, ttl time.Duration)
}
