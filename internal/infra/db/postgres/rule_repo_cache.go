package postgres

import (
	"context"
	"encoding/json"
	"time"

	"content-platform-billing/internal/domain/model"
	"content-platform-billing/internal/domain/ports/repository"
	"content-platform-billing/internal/infra/metrics"
	red "content-platform-billing/internal/infra/redis"
)

var (
	_ repository.PromotionRuleRepository = (*ruleRepoCacheDecorator)(nil)
	_ repository.RuleCacheControl        = (*ruleRepoCacheDecorator)(nil)
)

const activeRulesKey = "promo:rules:active"

// ruleRepoCacheDecorator caches the active-rule set in Redis. Reads fall
// through to the inner repository on any cache failure; a cache outage must
// never become a pricing outage. Every write path drops the cached set
// immediately; the TTL is only a safety net against missed invalidations.
type ruleRepoCacheDecorator struct {
	inner repository.PromotionRuleRepository
	cache red.RedisClient
	ttl   time.Duration
}

func NewRuleRepoCacheDecorator(inner repository.PromotionRuleRepository, cache red.RedisClient, ttl time.Duration) *ruleRepoCacheDecorator {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &ruleRepoCacheDecorator{inner: inner, cache: cache, ttl: ttl}
}

func (d *ruleRepoCacheDecorator) ListActive(ctx context.Context, tx repository.Tx, now time.Time) ([]*model.PromotionRule, error) {
	if val, err := d.cache.Get(ctx, activeRulesKey); err == nil {
		var rules []*model.PromotionRule
		if json.Unmarshal([]byte(val), &rules) == nil {
			metrics.IncCacheRequest("promotion_rules", "hit")
			// The cached set is window-filtered at cache time; re-filter so
			// a rule expiring mid-TTL stops matching.
			fresh := rules[:0]
			for _, r := range rules {
				if r.InWindow(now) {
					fresh = append(fresh, r)
				}
			}
			return fresh, nil
		}
	}

	metrics.IncCacheRequest("promotion_rules", "miss")
	rules, err := d.inner.ListActive(ctx, tx, now)
	if err != nil {
		return nil, err
	}
	if bytes, err := json.Marshal(rules); err == nil {
		// Best effort; a write failure only costs the next read a miss.
		_ = d.cache.Set(ctx, activeRulesKey, bytes, d.ttl)
	}
	return rules, nil
}

func (d *ruleRepoCacheDecorator) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.PromotionRule, error) {
	// Serve from the cached active set when possible.
	if val, err := d.cache.Get(ctx, activeRulesKey); err == nil {
		var rules []*model.PromotionRule
		if json.Unmarshal([]byte(val), &rules) == nil {
			for _, r := range rules {
				if r.ID == id {
					metrics.IncCacheRequest("promotion_rule", "hit")
					return r, nil
				}
			}
		}
	}
	metrics.IncCacheRequest("promotion_rule", "miss")
	return d.inner.FindByID(ctx, tx, id)
}

func (d *ruleRepoCacheDecorator) FindByIDs(ctx context.Context, tx repository.Tx, ids []string) ([]*model.PromotionRule, error) {
	return d.inner.FindByIDs(ctx, tx, ids)
}

// Write paths: persist first, then invalidate. Stale pricing is
// revenue-affecting, so TTL expiry alone is not acceptable here.
func (d *ruleRepoCacheDecorator) Save(ctx context.Context, tx repository.Tx, rule *model.PromotionRule) error {
	if err := d.inner.Save(ctx, tx, rule); err != nil {
		return err
	}
	_ = d.cache.Del(ctx, activeRulesKey)
	return nil
}

func (d *ruleRepoCacheDecorator) IncrementUsage(ctx context.Context, tx repository.Tx, id string) error {
	if err := d.inner.IncrementUsage(ctx, tx, id); err != nil {
		return err
	}
	_ = d.cache.Del(ctx, activeRulesKey)
	return nil
}

// Refresh drops the cached set; the next ListActive reloads from the store.
func (d *ruleRepoCacheDecorator) Refresh(ctx context.Context) error {
	return d.cache.Del(ctx, activeRulesKey)
}

func (d *ruleRepoCacheDecorator) Stats(ctx context.Context) (bool, int, time.Duration) {
	if err := d.cache.Ping(ctx); err != nil {
		return false, 0, 0
	}
	size := 0
	if val, err := d.cache.Get(ctx, activeRulesKey); err == nil {
		var rules []*model.PromotionRule
		if json.Unmarshal([]byte(val), &rules) == nil {
			size = len(rules)
		}
	}
	ttl, err := d.cache.TTL(ctx, activeRulesKey)
	if err != nil {
		ttl = 0
	}
	return true, size, ttl
}
