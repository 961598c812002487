package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"content-platform-billing/internal/domain"
	"content-platform-billing/internal/domain/model"
	"content-platform-billing/internal/domain/ports/repository"
)

// PurchaseOutcome reports what a completed checkout realized.
type PurchaseOutcome struct {
	GrantedCredits   int64               // bonus-credit gifts written to the ledger
	PendingGifts     []model.AppliedGift // gift kinds this core cannot realize itself
	RulesIncremented int
}

// CheckoutUseCase is the composition flow: price via the promotion engine,
// then, only after the purchase succeeded, realize gift credits through
// the ledger and consume rule usage. The engine itself never mutates either.
type CheckoutUseCase interface {
	// Quote prices the item for the user. Safe to call any number of times.
	Quote(ctx context.Context, userID string, basePrice decimal.Decimal, itemType model.ItemType, details model.ItemDetails) model.FinalPriceResult

	// CompletePurchase is called once payment for a quoted price succeeded.
	// It grants bonus-credit gifts (tied to orderID), increments usage on
	// every applied rule, and hands back gift kinds that belong to outside
	// systems (subscription/trial extensions, free packages).
	CompletePurchase(ctx context.Context, userID, orderID string, quote model.FinalPriceResult) (PurchaseOutcome, error)
}

var _ CheckoutUseCase = (*checkoutUC)(nil)

type checkoutUC struct {
	engine PromotionEngine
	ledger CreditLedger
	rules  repository.PromotionRuleRepository
	log    *zerolog.Logger
}

// Gift credits granted at checkout get the standard package validity.
const giftCreditValidityDays = model.PackageValidityDays

func NewCheckoutUseCase(engine PromotionEngine, ledger CreditLedger, rules repository.PromotionRuleRepository, logger *zerolog.Logger) CheckoutUseCase {
	return &checkoutUC{engine: engine, ledger: ledger, rules: rules, log: logger}
}

func (u *checkoutUC) Quote(ctx context.Context, userID string, basePrice decimal.Decimal, itemType model.ItemType, details model.ItemDetails) model.FinalPriceResult {
	return u.engine.CalculateFinalPrice(ctx, basePrice, itemType, details, userID)
}

func (u *checkoutUC) CompletePurchase(ctx context.Context, userID, orderID string, quote model.FinalPriceResult) (PurchaseOutcome, error) {
	if userID == "" || orderID == "" {
		return PurchaseOutcome{}, domain.ErrInvalidArgument
	}

	var out PurchaseOutcome
	for _, gift := range quote.AppliedGifts {
		if gift.Kind != model.GiftBonusCredits {
			out.PendingGifts = append(out.PendingGifts, gift)
			continue
		}
		expiresAt := time.Now().AddDate(0, 0, giftCreditValidityDays)
		oid := orderID
		desc := fmt.Sprintf("Promotion %q - bonus %d credits", gift.RuleName, gift.Amount)
		if _, err := u.ledger.Credit(ctx, userID, gift.Amount, model.TxPromotionBonus, &expiresAt, &oid, desc); err != nil {
			return out, fmt.Errorf("grant gift credits for rule %s: %w", gift.RuleID, err)
		}
		out.GrantedCredits += gift.Amount
	}

	for _, applied := range quote.AppliedRules {
		if err := u.rules.IncrementUsage(ctx, repository.NoTX, applied.RuleID); err != nil {
			// Usage accounting must not claw back an already-completed
			// purchase; log and keep going.
			u.log.Error().Err(err).Str("rule_id", applied.RuleID).Msg("failed to increment rule usage")
			continue
		}
		out.RulesIncremented++
	}

	u.log.Info().
		Str("user_id", userID).
		Str("order_id", orderID).
		Int64("gift_credits", out.GrantedCredits).
		Int("rules", out.RulesIncremented).
		Msg("purchase completed")
	return out, nil
}
