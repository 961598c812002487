package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"content-platform-billing/internal/domain"
	"content-platform-billing/internal/domain/model"
	"content-platform-billing/internal/domain/ports/repository"
)

// RuleAdminUseCase is the write path for promotion rules. Every write goes
// through the cache-decorated repository, so the active-rule cache is
// invalidated immediately. TTL expiry alone is not acceptable here, because
// stale rules misprice live checkouts.
type RuleAdminUseCase interface {
	Create(ctx context.Context, rule *model.PromotionRule) (*model.PromotionRule, error)
	Update(ctx context.Context, rule *model.PromotionRule) error

	// Pause sets status=paused; the rule stops matching on the next
	// calculation (eligibility is never cached as a boolean).
	Pause(ctx context.Context, ruleID string) error

	Get(ctx context.Context, ruleID string) (*model.PromotionRule, error)

	// CheckConflicts runs static analysis over the currently active set
	// plus the candidate rule.
	CheckConflicts(ctx context.Context, candidate *model.PromotionRule) (RuleValidationReport, error)

	// RefreshCache drops the cached rule set (admin hook).
	RefreshCache(ctx context.Context) error

	// CacheStats reports rule cache reachability, size and remaining TTL.
	CacheStats(ctx context.Context) (connected bool, size int, ttl time.Duration)
}

var _ RuleAdminUseCase = (*ruleAdminUC)(nil)

type ruleAdminUC struct {
	rules  repository.PromotionRuleRepository
	cache  repository.RuleCacheControl
	engine PromotionEngine
	log    *zerolog.Logger
}

func NewRuleAdminUseCase(rules repository.PromotionRuleRepository, cache repository.RuleCacheControl, engine PromotionEngine, logger *zerolog.Logger) RuleAdminUseCase {
	return &ruleAdminUC{rules: rules, cache: cache, engine: engine, log: logger}
}

func (u *ruleAdminUC) Create(ctx context.Context, rule *model.PromotionRule) (*model.PromotionRule, error) {
	if rule == nil {
		return nil, domain.ErrInvalidArgument
	}
	if err := rule.Validate(); err != nil {
		return nil, err
	}
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	now := time.Now()
	rule.CreatedAt = now
	rule.UpdatedAt = now
	if rule.Status == "" {
		rule.Status = model.RuleStatusActive
	}
	if err := u.rules.Save(ctx, repository.NoTX, rule); err != nil {
		return nil, err
	}
	u.log.Info().Str("rule_id", rule.ID).Str("rule_name", rule.RuleName).Msg("promotion rule created")
	return rule, nil
}

func (u *ruleAdminUC) Update(ctx context.Context, rule *model.PromotionRule) error {
	if rule == nil || rule.ID == "" {
		return domain.ErrInvalidArgument
	}
	if err := rule.Validate(); err != nil {
		return err
	}
	if _, err := u.rules.FindByID(ctx, repository.NoTX, rule.ID); err != nil {
		return err
	}
	rule.UpdatedAt = time.Now()
	return u.rules.Save(ctx, repository.NoTX, rule)
}

func (u *ruleAdminUC) Pause(ctx context.Context, ruleID string) error {
	rule, err := u.rules.FindByID(ctx, repository.NoTX, ruleID)
	if err != nil {
		return err
	}
	if rule.Status == model.RuleStatusPaused {
		return nil
	}
	rule.Status = model.RuleStatusPaused
	rule.UpdatedAt = time.Now()
	return u.rules.Save(ctx, repository.NoTX, rule)
}

func (u *ruleAdminUC) Get(ctx context.Context, ruleID string) (*model.PromotionRule, error) {
	return u.rules.FindByID(ctx, repository.NoTX, ruleID)
}

func (u *ruleAdminUC) CheckConflicts(ctx context.Context, candidate *model.PromotionRule) (RuleValidationReport, error) {
	active, err := u.rules.ListActive(ctx, repository.NoTX, time.Now())
	if err != nil {
		return RuleValidationReport{}, err
	}
	set := active
	if candidate != nil {
		set = append(append([]*model.PromotionRule{}, active...), candidate)
	}
	return u.engine.ValidateRuleCombination(set), nil
}

func (u *ruleAdminUC) RefreshCache(ctx context.Context) error {
	return u.cache.Refresh(ctx)
}

func (u *ruleAdminUC) CacheStats(ctx context.Context) (bool, int, time.Duration) {
	return u.cache.Stats(ctx)
}
