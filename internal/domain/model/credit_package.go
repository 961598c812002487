package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type BillingCycle string

const (
	BillingMonthly BillingCycle = "monthly"
	BillingYearly  BillingCycle = "yearly"
)

type PlanTier string

const (
	TierBasic PlanTier = "basic"
	TierPro   PlanTier = "pro"
	TierMax   PlanTier = "max"
)

// MonthlyCredits is the per-tier monthly credit allowance.
var MonthlyCredits = map[PlanTier]int64{
	TierBasic: 150,
	TierPro:   800,
	TierMax:   2000,
}

// YearlyBonusRate is the extra credit granted on yearly billing (20%).
const YearlyBonusRate = 0.2

// YearlyCredits returns the 12-month total for a tier, without the bonus.
func YearlyCredits(tier PlanTier) int64 {
	return MonthlyCredits[tier] * 12
}

// YearlyBonusCredits returns the yearly-billing bonus for a tier, floored.
func YearlyBonusCredits(tier PlanTier) int64 {
	return int64(float64(YearlyCredits(tier)) * YearlyBonusRate)
}

// CreditPackage is a purchasable one-off credit bundle.
type CreditPackage struct {
	ID          string
	PackageCode string // starter, growth, professional, enterprise
	Name        string
	Description string
	Credits     int64
	PriceUSD    decimal.Decimal
	Active      bool
	SortOrder   int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// VideoCreditCost computes the credit cost of a video generation:
// duration seconds at the base per-second rate, 1080p costs 1.5x, floored.
func VideoCreditCost(durationSeconds int, resolution string) int64 {
	base := float64(durationSeconds * VideoCreditsPerSecond)
	if resolution == "1080p" {
		base *= Video1080pMultiplier
	}
	return int64(base)
}
