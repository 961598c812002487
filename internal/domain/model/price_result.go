package model

import "github.com/shopspring/decimal"

// AppliedRule records one rule that fired during a calculation.
type AppliedRule struct {
	RuleID          string          `json:"rule_id"`
	RuleName        string          `json:"rule_name"`
	RuleType        RuleType        `json:"rule_type"`
	DiscountAmount  decimal.Decimal `json:"discount_amount"`
	DiscountKind    string          `json:"discount_kind"` // percentage | fixed | none
	GiftDescription string          `json:"gift_description,omitempty"`
	Stackable       bool            `json:"stackable"`
	Priority        int             `json:"priority"`
}

// AppliedGift records a gift effect for the caller to realize after purchase.
type AppliedGift struct {
	Kind         GiftKind `json:"kind"`
	Amount       int64    `json:"amount,omitempty"`
	ExtendDays   int      `json:"extend_days,omitempty"`
	ExtendMonths int      `json:"extend_months,omitempty"`
	Description  string   `json:"description,omitempty"`
	RuleID       string   `json:"rule_id"`
	RuleName     string   `json:"rule_name"`
}

// SkippedRule records why a rule did not fire; diagnostics only, never shown
// to the end user.
type SkippedRule struct {
	RuleID   string `json:"rule_id"`
	RuleName string `json:"rule_name"`
	Reason   string `json:"reason"`
}

// FinalPriceResult is the pure value produced by a price calculation.
type FinalPriceResult struct {
	FinalPrice         decimal.Decimal `json:"final_price"`
	OriginalPrice      decimal.Decimal `json:"original_price"`
	TotalDiscount      decimal.Decimal `json:"total_discount"`
	DiscountPercentage decimal.Decimal `json:"discount_percentage"` // 0..100, two decimal places
	AppliedRules       []AppliedRule   `json:"applied_rules"`
	AppliedGifts       []AppliedGift   `json:"applied_gifts,omitempty"`
	SkippedRules       []SkippedRule   `json:"skipped_rules,omitempty"`
}

// UnchangedPrice is the "no rules applied" result for basePrice; also the
// fail-open fallback when the engine hits an internal error.
func UnchangedPrice(basePrice decimal.Decimal) FinalPriceResult {
	return FinalPriceResult{
		FinalPrice:         basePrice,
		OriginalPrice:      basePrice,
		TotalDiscount:      decimal.Zero,
		DiscountPercentage: decimal.Zero,
	}
}
