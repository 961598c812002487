package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"content-platform-billing/internal/domain"
)

type ItemType string

const (
	ItemSubscription ItemType = "subscription"
	ItemPackage      ItemType = "package"
)

// ItemDetails describes the thing being priced.
type ItemDetails struct {
	Tier          string `json:"tier,omitempty"`           // subscription tier: basic, pro, max
	BillingPeriod string `json:"billing_period,omitempty"` // monthly | yearly
	PackageID     string `json:"package_id,omitempty"`     // credit package id
}

type RuleType string

const (
	RuleDiscount              RuleType = "discount"
	RuleBonusCredits          RuleType = "bonus_credits"
	RuleCreditsExtension      RuleType = "credits_extension"
	RuleSubscriptionExtension RuleType = "subscription_extension"
	RuleBundle                RuleType = "bundle"
)

type RuleStatus string

const (
	RuleStatusActive RuleStatus = "active"
	RuleStatusPaused RuleStatus = "paused"
	RuleStatusEnded  RuleStatus = "ended"
)

type ScopeType string

const (
	ScopeAll           ScopeType = "all"
	ScopeSubscriptions ScopeType = "subscriptions"
	ScopePackages      ScopeType = "packages"
)

// ApplyTo is the item scope matcher of a rule (stored as JSONB).
type ApplyTo struct {
	Type           ScopeType `json:"type"`
	Tiers          []string  `json:"tiers,omitempty"`
	BillingPeriods []string  `json:"billing_periods,omitempty"`
	PackageIDs     []string  `json:"package_ids,omitempty"`
}

// Matches reports whether the scope covers the item, with a skip reason for
// diagnostics on non-matches.
func (a ApplyTo) Matches(itemType ItemType, details ItemDetails) (bool, string) {
	switch {
	case a.Type == ScopeAll:
		return true, ""
	case a.Type == ScopeSubscriptions && itemType == ItemSubscription:
		if details.Tier == "" {
			return false, "item is missing subscription tier"
		}
		if len(a.Tiers) > 0 && !contains(a.Tiers, details.Tier) {
			return false, fmt.Sprintf("tier %q not covered by rule", details.Tier)
		}
		if len(a.BillingPeriods) > 0 && details.BillingPeriod != "" && !contains(a.BillingPeriods, details.BillingPeriod) {
			return false, fmt.Sprintf("billing period %q not covered by rule", details.BillingPeriod)
		}
		return true, ""
	case a.Type == ScopePackages && itemType == ItemPackage:
		if details.PackageID == "" {
			return false, "item is missing package id"
		}
		if len(a.PackageIDs) > 0 && !contains(a.PackageIDs, details.PackageID) {
			return false, fmt.Sprintf("package %q not covered by rule", details.PackageID)
		}
		return true, ""
	default:
		return false, fmt.Sprintf("rule applies to %s, item is %s", a.Type, itemType)
	}
}

type TargetType string

const (
	TargetAll           TargetType = "all"
	TargetNewUsers      TargetType = "new_users"
	TargetVIPUsers      TargetType = "vip_users"
	TargetSpecificUsers TargetType = "specific_users"
)

// TargetUsers is the user targeting matcher of a rule (stored as JSONB).
type TargetUsers struct {
	Type                 TargetType `json:"type"`
	RegisteredWithinDays int        `json:"registered_within_days,omitempty"`
	SubscriptionTiers    []string   `json:"subscription_tiers,omitempty"`
	UserIDs              []string   `json:"user_ids,omitempty"`
}

type DiscountKind string

const (
	DiscountPercentage DiscountKind = "percentage"
	DiscountFixed      DiscountKind = "fixed"
)

// DiscountSpec is a closed union: a percentage off the running price, or a
// fixed amount capped at the running price.
type DiscountSpec struct {
	Kind  DiscountKind    `json:"type"`
	Value decimal.Decimal `json:"value"`
}

func (d DiscountSpec) Validate() error {
	switch d.Kind {
	case DiscountPercentage, DiscountFixed:
	default:
		return fmt.Errorf("discount kind %q: %w", d.Kind, domain.ErrInvalidArgument)
	}
	if d.Value.IsNegative() {
		return fmt.Errorf("negative discount value: %w", domain.ErrInvalidArgument)
	}
	return nil
}

type GiftKind string

const (
	GiftBonusCredits          GiftKind = "bonus_credits"
	GiftCreditsExtension      GiftKind = "credits_extension"
	GiftSubscriptionExtension GiftKind = "subscription_extension"
	GiftTrialExtension        GiftKind = "trial_extension"
	GiftFreePackage           GiftKind = "free_package"
)

// GiftSpec is a closed union of non-price rule effects. The engine records
// gifts for the caller to realize; it never applies them itself.
type GiftSpec struct {
	Kind         GiftKind `json:"type"`
	Amount       int64    `json:"amount,omitempty"`        // bonus_credits
	ExtendDays   int      `json:"extend_days,omitempty"`   // credits_extension, trial_extension
	ExtendMonths int      `json:"extend_months,omitempty"` // subscription_extension
	Description  string   `json:"description,omitempty"`   // free_package
}

func (g GiftSpec) Validate() error {
	switch g.Kind {
	case GiftBonusCredits:
		if g.Amount <= 0 {
			return fmt.Errorf("bonus_credits amount must be positive: %w", domain.ErrInvalidArgument)
		}
	case GiftCreditsExtension, GiftTrialExtension:
		if g.ExtendDays <= 0 {
			return fmt.Errorf("%s extend_days must be positive: %w", g.Kind, domain.ErrInvalidArgument)
		}
	case GiftSubscriptionExtension:
		if g.ExtendMonths <= 0 {
			return fmt.Errorf("subscription_extension extend_months must be positive: %w", domain.ErrInvalidArgument)
		}
	case GiftFreePackage:
	default:
		return fmt.Errorf("gift kind %q: %w", g.Kind, domain.ErrInvalidArgument)
	}
	return nil
}

// Text renders the user-facing gift description.
func (g GiftSpec) Text() string {
	switch g.Kind {
	case GiftBonusCredits:
		return fmt.Sprintf("Bonus %d credits", g.Amount)
	case GiftCreditsExtension:
		return fmt.Sprintf("Credits validity extended by %d days", g.ExtendDays)
	case GiftSubscriptionExtension:
		return fmt.Sprintf("Subscription extended by %d months", g.ExtendMonths)
	case GiftTrialExtension:
		return fmt.Sprintf("Trial extended by %d days", g.ExtendDays)
	case GiftFreePackage:
		if g.Description != "" {
			return g.Description
		}
		return "Free package offer"
	default:
		return "Special offer"
	}
}

// PromotionRule is one pricing rule. Eligibility (status, window, scope,
// targeting, usage cap) is re-evaluated per calculation, never cached.
type PromotionRule struct {
	ID           string        `json:"id"` // UUID
	RuleName     string        `json:"rule_name"`
	RuleType     RuleType      `json:"rule_type"`
	ApplyTo      ApplyTo       `json:"apply_to"`
	TargetUsers  TargetUsers   `json:"target_users"`
	Discount     *DiscountSpec `json:"discount,omitempty"` // nil = no price effect
	Gift         *GiftSpec     `json:"gift,omitempty"`     // nil = no gift effect
	StartDate    time.Time     `json:"start_date"`
	EndDate      time.Time     `json:"end_date"`
	Priority     int           `json:"priority"`  // higher applies first
	Stackable    bool          `json:"stackable"` // false terminates the rule chain once applied
	UsageLimit   *int64        `json:"usage_limit,omitempty"`
	UsageCount   int64         `json:"usage_count"`
	PerUserLimit *int64        `json:"per_user_limit,omitempty"`
	Status       RuleStatus    `json:"status"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// InWindow reports whether now falls inside [StartDate, EndDate].
func (r *PromotionRule) InWindow(now time.Time) bool {
	return !now.Before(r.StartDate) && !now.After(r.EndDate)
}

// UsageExhausted reports whether the global usage cap has been reached.
func (r *PromotionRule) UsageExhausted() bool {
	return r.UsageLimit != nil && r.UsageCount >= *r.UsageLimit
}

func (r *PromotionRule) Validate() error {
	if r.RuleName == "" {
		return fmt.Errorf("rule name required: %w", domain.ErrInvalidArgument)
	}
	if r.EndDate.Before(r.StartDate) {
		return fmt.Errorf("rule window ends before it starts: %w", domain.ErrInvalidArgument)
	}
	if r.Discount != nil {
		if err := r.Discount.Validate(); err != nil {
			return err
		}
	}
	if r.Gift != nil {
		if err := r.Gift.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
