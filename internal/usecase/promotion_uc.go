package usecase

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"content-platform-billing/internal/domain/model"
	"content-platform-billing/internal/domain/ports/repository"
	"content-platform-billing/internal/infra/metrics"
)

// PriceRequest is one item in a batch calculation.
type PriceRequest struct {
	BasePrice   decimal.Decimal
	ItemType    model.ItemType
	ItemDetails model.ItemDetails
}

// RuleValidationReport is the outcome of static rule-set analysis.
type RuleValidationReport struct {
	Valid     bool     `json:"valid"`
	Conflicts []string `json:"conflicts,omitempty"`
	Warnings  []string `json:"warnings,omitempty"`
}

// RuleRecommendation ranks a rule by its estimated saving on a reference price.
type RuleRecommendation struct {
	RuleID            string          `json:"rule_id"`
	RuleName          string          `json:"rule_name"`
	RuleType          model.RuleType  `json:"rule_type"`
	EstimatedSavings  decimal.Decimal `json:"estimated_savings"`
	SavingsPercentage decimal.Decimal `json:"savings_percentage"`
}

// PromotionEngine computes final prices from the active rule set.
//
// The engine is fail-open: it never returns an error to a caller. Any
// internal failure degrades to the undiscounted price with the cause
// recorded in SkippedRules, because blocking checkout over a pricing bug is
// worse than charging full price. It never mutates state: gifts are
// described, not applied, and usage counters are bumped by the checkout
// flow, not here.
type PromotionEngine interface {
	CalculateFinalPrice(ctx context.Context, basePrice decimal.Decimal, itemType model.ItemType, details model.ItemDetails, userID string) model.FinalPriceResult

	// CalculateBatchPrices prices several items against one rule fetch.
	CalculateBatchPrices(ctx context.Context, items []PriceRequest, userID string) []model.FinalPriceResult

	// PreviewPriceEffect runs the same algorithm, optionally against an
	// explicit test rule set instead of the live active set. Side-effect
	// free and idempotent.
	PreviewPriceEffect(ctx context.Context, basePrice decimal.Decimal, itemType model.ItemType, details model.ItemDetails, testRuleIDs []string, userID string) model.FinalPriceResult

	// ValidateRuleCombination flags overlapping non-stackable active rules
	// as conflicts and shared default priorities as warnings.
	ValidateRuleCombination(rules []*model.PromotionRule) RuleValidationReport

	// GetBestPromotionRules returns the top rules by estimated saving on
	// referencePrice.
	GetBestPromotionRules(ctx context.Context, itemType model.ItemType, details model.ItemDetails, referencePrice decimal.Decimal, userID string, limit int) []RuleRecommendation
}

var _ PromotionEngine = (*promotionEngine)(nil)

type promotionEngine struct {
	rules repository.PromotionRuleRepository
	users repository.UserDirectory
	log   *zerolog.Logger
	now   func() time.Time
}

const defaultNewUserWindowDays = 30

func NewPromotionEngine(rules repository.PromotionRuleRepository, users repository.UserDirectory, logger *zerolog.Logger) PromotionEngine {
	return &promotionEngine{rules: rules, users: users, log: logger, now: time.Now}
}

// candidateRule carries a rule with its applicability verdict through the
// filter stages, so skips keep their reasons for diagnostics.
type candidateRule struct {
	rule       *model.PromotionRule
	applicable bool
	reason     string
}

func (e *promotionEngine) CalculateFinalPrice(ctx context.Context, basePrice decimal.Decimal, itemType model.ItemType, details model.ItemDetails, userID string) model.FinalPriceResult {
	rules, err := e.rules.ListActive(ctx, repository.NoTX, e.now())
	if err != nil {
		e.log.Error().Err(err).Str("item_type", string(itemType)).Msg("price calculation degraded to base price")
		metrics.IncPricingFailOpen()
		return errorResult(basePrice, err)
	}
	result := e.calculate(ctx, basePrice, itemType, details, userID, rules)
	metrics.ObservePriceCalculation(string(itemType), len(result.AppliedRules))
	return result
}

func (e *promotionEngine) CalculateBatchPrices(ctx context.Context, items []PriceRequest, userID string) []model.FinalPriceResult {
	rules, err := e.rules.ListActive(ctx, repository.NoTX, e.now())
	if err != nil {
		e.log.Error().Err(err).Int("items", len(items)).Msg("batch price calculation degraded to base prices")
		metrics.IncPricingFailOpen()
		out := make([]model.FinalPriceResult, len(items))
		for i, it := range items {
			out[i] = errorResult(it.BasePrice, err)
		}
		return out
	}
	out := make([]model.FinalPriceResult, len(items))
	for i, it := range items {
		out[i] = e.calculate(ctx, it.BasePrice, it.ItemType, it.ItemDetails, userID, rules)
	}
	return out
}

func (e *promotionEngine) PreviewPriceEffect(ctx context.Context, basePrice decimal.Decimal, itemType model.ItemType, details model.ItemDetails, testRuleIDs []string, userID string) model.FinalPriceResult {
	var (
		rules []*model.PromotionRule
		err   error
	)
	if len(testRuleIDs) > 0 {
		rules, err = e.rules.FindByIDs(ctx, repository.NoTX, testRuleIDs)
	} else {
		rules, err = e.rules.ListActive(ctx, repository.NoTX, e.now())
	}
	if err != nil {
		e.log.Error().Err(err).Msg("price preview degraded to base price")
		metrics.IncPricingFailOpen()
		return errorResult(basePrice, err)
	}
	return e.calculate(ctx, basePrice, itemType, details, userID, rules)
}

// calculate runs the full pipeline: item scope filter, user targeting
// filter, stable priority sort, then the pricing walk.
func (e *promotionEngine) calculate(ctx context.Context, basePrice decimal.Decimal, itemType model.ItemType, details model.ItemDetails, userID string, rules []*model.PromotionRule) model.FinalPriceResult {
	if basePrice.IsNegative() {
		return errorResult(basePrice, fmt.Errorf("negative base price %s", basePrice))
	}

	candidates := make([]candidateRule, 0, len(rules))
	for _, r := range rules {
		ok, reason := r.ApplyTo.Matches(itemType, details)
		candidates = append(candidates, candidateRule{rule: r, applicable: ok, reason: reason})
	}
	candidates = e.applyUserTargeting(ctx, candidates, userID)

	// Stable on ties: input order is priority DESC, created_at DESC.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].rule.Priority > candidates[j].rule.Priority
	})

	return e.walkRules(basePrice, candidates)
}

// applyUserTargeting re-checks each still-applicable candidate against the
// rule's user targeting. An anonymous caller only matches "all". A failed
// directory lookup skips the rule rather than failing the calculation.
func (e *promotionEngine) applyUserTargeting(ctx context.Context, candidates []candidateRule, userID string) []candidateRule {
	out := make([]candidateRule, 0, len(candidates))
	for _, c := range candidates {
		if !c.applicable {
			out = append(out, c)
			continue
		}
		target := c.rule.TargetUsers
		if target.Type == model.TargetAll {
			out = append(out, c)
			continue
		}
		if userID == "" {
			c.applicable = false
			c.reason = "anonymous user cannot match a targeted rule"
			out = append(out, c)
			continue
		}
		ok, reason, err := e.matchTarget(ctx, target, userID)
		if err != nil {
			c.applicable = false
			c.reason = fmt.Sprintf("targeting check failed: %v", err)
			out = append(out, c)
			continue
		}
		if !ok {
			c.applicable = false
			c.reason = reason
		}
		out = append(out, c)
	}
	return out
}

func (e *promotionEngine) matchTarget(ctx context.Context, target model.TargetUsers, userID string) (bool, string, error) {
	switch target.Type {
	case model.TargetNewUsers:
		days := target.RegisteredWithinDays
		if days <= 0 {
			days = defaultNewUserWindowDays
		}
		ok, err := e.users.RegisteredWithinDays(ctx, userID, days)
		if err != nil {
			return false, "", err
		}
		if !ok {
			return false, fmt.Sprintf("user registered more than %d days ago", days), nil
		}
		return true, "", nil
	case model.TargetVIPUsers:
		ok, err := e.users.HasActiveSubscriptionTier(ctx, userID, target.SubscriptionTiers)
		if err != nil {
			return false, "", err
		}
		if !ok {
			return false, "user has no qualifying subscription", nil
		}
		return true, "", nil
	case model.TargetSpecificUsers:
		for _, id := range target.UserIDs {
			if id == userID {
				return true, "", nil
			}
		}
		return false, "user not in the rule's user list", nil
	default:
		return false, fmt.Sprintf("unknown target type %q", target.Type), nil
	}
}

// walkRules applies candidates in order against a running price.
//
// Percentage discounts compound: each is computed against the price at the
// time of application, which makes rule order observable. Fixed discounts
// are capped at the running price. Gifts are recorded whether or not a
// discount also fired. A non-stackable rule, once applied, terminates the
// entire chain, including rules unrelated to it: exclusive rule wins.
func (e *promotionEngine) walkRules(basePrice decimal.Decimal, candidates []candidateRule) model.FinalPriceResult {
	currentPrice := basePrice
	var applied []model.AppliedRule
	var gifts []model.AppliedGift
	var skipped []model.SkippedRule

	for _, c := range candidates {
		rule := c.rule
		if !c.applicable {
			skipped = append(skipped, model.SkippedRule{RuleID: rule.ID, RuleName: rule.RuleName, Reason: c.reason})
			continue
		}
		if rule.UsageExhausted() {
			skipped = append(skipped, model.SkippedRule{RuleID: rule.ID, RuleName: rule.RuleName, Reason: "global usage limit reached"})
			continue
		}

		discountAmount := decimal.Zero
		discountKind := "none"
		if rule.Discount != nil {
			switch rule.Discount.Kind {
			case model.DiscountPercentage:
				discountAmount = currentPrice.Mul(rule.Discount.Value).Div(decimal.NewFromInt(100))
			case model.DiscountFixed:
				discountAmount = decimal.Min(rule.Discount.Value, currentPrice)
			}
			currentPrice = currentPrice.Sub(discountAmount)
			discountKind = string(rule.Discount.Kind)
		}

		giftDescription := ""
		if rule.Gift != nil {
			g := *rule.Gift
			giftDescription = g.Text()
			gifts = append(gifts, model.AppliedGift{
				Kind:         g.Kind,
				Amount:       g.Amount,
				ExtendDays:   g.ExtendDays,
				ExtendMonths: g.ExtendMonths,
				Description:  giftDescription,
				RuleID:       rule.ID,
				RuleName:     rule.RuleName,
			})
		}

		applied = append(applied, model.AppliedRule{
			RuleID:          rule.ID,
			RuleName:        rule.RuleName,
			RuleType:        rule.RuleType,
			DiscountAmount:  discountAmount,
			DiscountKind:    discountKind,
			GiftDescription: giftDescription,
			Stackable:       rule.Stackable,
			Priority:        rule.Priority,
		})

		if !rule.Stackable {
			e.log.Debug().Str("rule_id", rule.ID).Str("rule_name", rule.RuleName).Msg("non-stackable rule applied, chain terminated")
			break
		}
	}

	finalPrice := decimal.Max(currentPrice, decimal.Zero)
	totalDiscount := basePrice.Sub(finalPrice)
	discountPercentage := decimal.Zero
	if basePrice.IsPositive() {
		discountPercentage = totalDiscount.Div(basePrice).Mul(decimal.NewFromInt(100)).Round(2)
	}

	return model.FinalPriceResult{
		FinalPrice:         finalPrice,
		OriginalPrice:      basePrice,
		TotalDiscount:      totalDiscount,
		DiscountPercentage: discountPercentage,
		AppliedRules:       applied,
		AppliedGifts:       gifts,
		SkippedRules:       skipped,
	}
}

func (e *promotionEngine) ValidateRuleCombination(rules []*model.PromotionRule) RuleValidationReport {
	var conflicts, warnings []string

	active := make([]*model.PromotionRule, 0, len(rules))
	for _, r := range rules {
		if r.Status == model.RuleStatusActive {
			active = append(active, r)
		}
	}

	for i := 0; i < len(active); i++ {
		for j := i + 1; j < len(active); j++ {
			a, b := active[i], active[j]
			overlap := !a.StartDate.After(b.EndDate) && !b.StartDate.After(a.EndDate)
			if overlap && !a.Stackable && !b.Stackable {
				conflicts = append(conflicts, fmt.Sprintf("rules %q and %q overlap in time and are both non-stackable", a.RuleName, b.RuleName))
			}
		}
	}

	defaultPriority := 0
	for _, r := range active {
		if r.Priority == 0 {
			defaultPriority++
		}
	}
	if defaultPriority > 1 {
		warnings = append(warnings, fmt.Sprintf("%d rules use default priority 0; tie-break is input-order dependent", defaultPriority))
	}

	return RuleValidationReport{Valid: len(conflicts) == 0, Conflicts: conflicts, Warnings: warnings}
}

func (e *promotionEngine) GetBestPromotionRules(ctx context.Context, itemType model.ItemType, details model.ItemDetails, referencePrice decimal.Decimal, userID string, limit int) []RuleRecommendation {
	if limit <= 0 {
		limit = 3
	}
	// Price a notional 100 so percentage effects are directly comparable.
	probe := e.CalculateFinalPrice(ctx, decimal.NewFromInt(100), itemType, details, userID)

	ranked := make([]model.AppliedRule, 0, len(probe.AppliedRules))
	for _, r := range probe.AppliedRules {
		if r.DiscountAmount.IsPositive() {
			ranked = append(ranked, r)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].DiscountAmount.GreaterThan(ranked[j].DiscountAmount)
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	out := make([]RuleRecommendation, 0, len(ranked))
	for _, r := range ranked {
		saving := r.DiscountAmount.Div(decimal.NewFromInt(100)).Mul(referencePrice)
		pct := decimal.Zero
		if r.DiscountKind == string(model.DiscountPercentage) {
			pct = r.DiscountAmount
		}
		out = append(out, RuleRecommendation{
			RuleID:            r.RuleID,
			RuleName:          r.RuleName,
			RuleType:          r.RuleType,
			EstimatedSavings:  saving,
			SavingsPercentage: pct,
		})
	}
	return out
}

// errorResult is the fail-open conversion: base price unchanged, cause kept
// in SkippedRules for diagnostics.
func errorResult(basePrice decimal.Decimal, err error) model.FinalPriceResult {
	r := model.UnchangedPrice(basePrice)
	r.SkippedRules = []model.SkippedRule{{RuleID: "error", RuleName: "calculation failure", Reason: err.Error()}}
	return r
}
