package model

import (
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

type TransactionType string

const (
	TxRegisterBonus       TransactionType = "register_bonus"
	TxSubscriptionRefill  TransactionType = "subscription_refill"
	TxSubscriptionUpgrade TransactionType = "subscription_upgrade"
	TxSubscriptionBonus   TransactionType = "subscription_bonus"
	TxPromotionBonus      TransactionType = "promotion_bonus"
	TxPackagePurchase     TransactionType = "package_purchase"
	TxTextToImage         TransactionType = "text_to_image"
	TxImageToImage        TransactionType = "image_to_image"
	TxVideoGeneration     TransactionType = "video_generation"
	TxVideoExtension      TransactionType = "video_extension"
	TxVideoRefund         TransactionType = "video_refund"
	TxMilestoneReward     TransactionType = "milestone_reward"
	TxAdminAdjustment     TransactionType = "admin_adjustment"
	TxRefund              TransactionType = "refund"
)

type RelatedEntityType string

const (
	EntitySubscription RelatedEntityType = "subscription"
	EntityOrder        RelatedEntityType = "order"
	EntityGeneration   RelatedEntityType = "generation"
	EntityAdmin        RelatedEntityType = "admin"
	EntityOther        RelatedEntityType = "other"
)

// CreditLot is one ledger row. A grant lot carries a positive Amount and a
// RemainingAmount that only ever shrinks through deduction; a debit lot
// carries a negative Amount, is immutable, and references the grant lot it
// drew from via ConsumedFromLotID.
type CreditLot struct {
	ID                string            `json:"id"` // ULID, time-ordered
	UserID            string            `json:"user_id"`
	Amount            int64             `json:"amount"`           // positive = grant, negative = debit
	RemainingAmount   int64             `json:"remaining_amount"` // meaningful on grant lots only
	TransactionType   TransactionType   `json:"transaction_type"`
	ExpiresAt         *time.Time        `json:"expires_at,omitempty"` // nil = never expires
	RelatedEntityID   *string           `json:"related_entity_id,omitempty"`
	RelatedEntityType RelatedEntityType `json:"related_entity_type,omitempty"`
	ConsumedFromLotID *string           `json:"consumed_from_lot_id,omitempty"` // set on debit lots
	Description       string            `json:"description"`
	CreatedAt         time.Time         `json:"created_at"`
}

// Credit validity windows, in days.
const (
	RegistrationBonusCredits   = 50
	RegistrationValidityDays   = 15
	PackageValidityDays        = 365
	SubscriptionYearlyValidity = 365
	SubscriptionMonthlyDays    = 30
)

// Video generation cost formula defaults.
const (
	VideoCreditsPerSecond = 10
	Video1080pMultiplier  = 1.5
)

// NewGrantLot builds a positive lot with RemainingAmount = amount.
func NewGrantLot(userID string, amount int64, txType TransactionType, expiresAt *time.Time, relatedID *string, description string) *CreditLot {
	now := time.Now()
	return &CreditLot{
		ID:                ulid.Make().String(),
		UserID:            userID,
		Amount:            amount,
		RemainingAmount:   amount,
		TransactionType:   txType,
		ExpiresAt:         expiresAt,
		RelatedEntityID:   relatedID,
		RelatedEntityType: RelatedEntityFor(txType),
		Description:       description,
		CreatedAt:         now,
	}
}

// NewDebitLot builds a negative, immutable lot drawn from a single grant lot.
func NewDebitLot(userID string, drawn int64, txType TransactionType, fromLotID string, relatedID *string, description string) *CreditLot {
	now := time.Now()
	from := fromLotID
	return &CreditLot{
		ID:                ulid.Make().String(),
		UserID:            userID,
		Amount:            -drawn,
		RemainingAmount:   0,
		TransactionType:   txType,
		RelatedEntityID:   relatedID,
		RelatedEntityType: RelatedEntityFor(txType),
		ConsumedFromLotID: &from,
		Description:       description,
		CreatedAt:         now,
	}
}

// Expired reports whether the lot's credit can no longer be consumed at t.
func (l *CreditLot) Expired(t time.Time) bool {
	return l.ExpiresAt != nil && !l.ExpiresAt.After(t)
}

// Consumable reports whether the lot still holds spendable credit at t.
func (l *CreditLot) Consumable(t time.Time) bool {
	return l.Amount > 0 && l.RemainingAmount > 0 && !l.Expired(t)
}

// RelatedEntityFor maps a transaction type to the entity kind it references.
func RelatedEntityFor(t TransactionType) RelatedEntityType {
	switch t {
	case TxSubscriptionRefill, TxSubscriptionUpgrade, TxSubscriptionBonus:
		return EntitySubscription
	case TxPackagePurchase:
		return EntityOrder
	case TxTextToImage, TxImageToImage, TxVideoGeneration, TxVideoExtension, TxVideoRefund:
		return EntityGeneration
	case TxAdminAdjustment:
		return EntityAdmin
	default:
		return EntityOther
	}
}

// DefaultDescription returns a human-readable fallback used when the caller
// does not supply one. amount is signed the way it appears on the lot.
func DefaultDescription(t TransactionType, amount int64) string {
	abs := amount
	if abs < 0 {
		abs = -abs
	}
	switch t {
	case TxRegisterBonus:
		return fmt.Sprintf("Registration bonus - %d credits", amount)
	case TxSubscriptionRefill:
		return fmt.Sprintf("Subscription credits refill - %d credits", amount)
	case TxPackagePurchase:
		return fmt.Sprintf("Credit package purchase - %d credits", amount)
	case TxTextToImage:
		return fmt.Sprintf("Text-to-image generation - %d credits", abs)
	case TxImageToImage:
		return fmt.Sprintf("Image-to-image generation - %d credits", abs)
	case TxVideoGeneration:
		return fmt.Sprintf("Video generation - %d credits", abs)
	case TxVideoExtension:
		return fmt.Sprintf("Video extension - %d credits", abs)
	case TxVideoRefund:
		return fmt.Sprintf("Video generation refund - %d credits", amount)
	case TxAdminAdjustment:
		return fmt.Sprintf("Admin adjustment - %d credits", amount)
	case TxRefund:
		return fmt.Sprintf("Refund - %d credits", amount)
	default:
		return fmt.Sprintf("Credit transaction - %d credits", amount)
	}
}

// ExpiryBucket aggregates remaining credit by expiry date; a nil Date is the
// never-expiring bucket and sorts last.
type ExpiryBucket struct {
	Date    *time.Time `json:"date"`
	Credits int64      `json:"credits"`
}
