package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"content-platform-billing/internal/domain"
	"content-platform-billing/internal/domain/model"
	"content-platform-billing/internal/domain/ports/repository"
	"content-platform-billing/internal/infra/metrics"
)

// ExpiringCredits is the "expiring soon" aggregation: total, the earliest
// expiry date, and per-date buckets.
type ExpiringCredits struct {
	Credits      int64                `json:"credits"`
	EarliestDate *time.Time           `json:"earliest_date,omitempty"`
	Items        []model.ExpiryBucket `json:"items"`
}

// CreditLedger owns balance semantics for the expiring credit ledger.
//
// The ledger is fail-closed: insufficient balance, duplicate refunds and
// store failures propagate to the caller, because treating a failed
// deduction as success would hand out paid features for free.
type CreditLedger interface {
	// GetAvailableCredits returns the spendable balance: the sum of
	// remaining_amount over unexpired grant lots, in one consistent read.
	GetAvailableCredits(ctx context.Context, userID string) (int64, error)

	// CheckSufficient is advisory; Deduct re-checks atomically.
	CheckSufficient(ctx context.Context, userID string, required int64) (bool, error)

	// Deduct drains `amount` credits first-to-expire-first, all or nothing.
	// Returns domain.ErrInsufficientCredits with no mutation when the
	// balance does not cover the amount.
	Deduct(ctx context.Context, userID string, amount int64, txType model.TransactionType, relatedEntityID *string, description string) error

	// Credit appends one grant lot. The only way new spendable credit
	// enters the ledger.
	Credit(ctx context.Context, userID string, amount int64, txType model.TransactionType, expiresAt *time.Time, relatedEntityID *string, description string) (*model.CreditLot, error)

	// GrantRegistrationBonus grants the signup bonus with its short validity.
	GrantRegistrationBonus(ctx context.Context, userID string) error

	// RefillSubscriptionCredits grants a subscription refill lot. On
	// renewal the new lot's expiry extends from the previous refill lot's
	// expiry, not from now, so early renewal never costs remaining time.
	RefillSubscriptionCredits(ctx context.Context, userID, subscriptionID string, credits int64, tier model.PlanTier, billingCycle model.BillingCycle, isRenewal bool) error

	// CreditPackagePurchase grants a package lot valid for one year.
	CreditPackagePurchase(ctx context.Context, userID, orderID string, credits int64, packageName string) error

	// GetExpiringSoonCredits aggregates credit expiring within windowDays
	// (default 7); never-expiring credit is excluded entirely.
	GetExpiringSoonCredits(ctx context.Context, userID string, windowDays int) (ExpiringCredits, error)

	// GetAllCreditsExpiry aggregates all remaining credit by expiry date
	// ascending, never-expiring lots last.
	GetAllCreditsExpiry(ctx context.Context, userID string) ([]model.ExpiryBucket, error)

	// ValidateVideoTransaction rejects a refund that already exists for the
	// same external task id with domain.ErrDuplicateRefund. This is the
	// retry-safety guard for ambiguous external callbacks.
	ValidateVideoTransaction(ctx context.Context, userID string, txType model.TransactionType, relatedTaskID string) error

	// History returns one page of the user's transaction history plus the
	// total count, newest first.
	History(ctx context.Context, userID string, f repository.HistoryFilter) ([]*model.CreditLot, int64, error)
}

var _ CreditLedger = (*creditLedger)(nil)

type creditLedger struct {
	lots repository.CreditLotRepository
	tm   repository.TransactionManager
	log  *zerolog.Logger
	now  func() time.Time
}

func NewCreditLedger(lots repository.CreditLotRepository, tm repository.TransactionManager, logger *zerolog.Logger) CreditLedger {
	return &creditLedger{lots: lots, tm: tm, log: logger, now: time.Now}
}

func (c *creditLedger) GetAvailableCredits(ctx context.Context, userID string) (int64, error) {
	if userID == "" {
		return 0, domain.ErrInvalidArgument
	}
	return c.lots.AvailableSum(ctx, repository.NoTX, userID, c.now())
}

func (c *creditLedger) CheckSufficient(ctx context.Context, userID string, required int64) (bool, error) {
	available, err := c.GetAvailableCredits(ctx, userID)
	if err != nil {
		return false, err
	}
	return available >= required, nil
}

// deductAttempts bounds the serialization-conflict retries in Deduct.
const deductAttempts = 3

// Deduct walks consumable lots soonest-to-expire first inside one
// repeatable-read transaction, guarded by a per-user advisory lock so two
// racing deductions cannot both spend the same credit. Each drawn lot emits
// one immutable debit row referencing it.
//
// The repeatable-read snapshot is taken at the transaction's first statement,
// before the advisory-lock wait completes. A deduction that blocked behind a
// concurrent winner therefore resumes on a snapshot that predates the winner's
// commit and aborts with a serialization conflict once it touches the updated
// lots. The transaction did not fail; re-running it on a fresh snapshot yields
// the real outcome, so conflicts are retried a bounded number of times.
func (c *creditLedger) Deduct(ctx context.Context, userID string, amount int64, txType model.TransactionType, relatedEntityID *string, description string) error {
	if userID == "" || amount <= 0 {
		return domain.ErrInvalidArgument
	}
	if description == "" {
		description = model.DefaultDescription(txType, -amount)
	}

	var err error
	for attempt := 1; attempt <= deductAttempts; attempt++ {
		err = c.deductOnce(ctx, userID, amount, txType, relatedEntityID, description)
		if !errors.Is(err, domain.ErrTxConflict) {
			break
		}
		c.log.Debug().Str("user_id", userID).Int("attempt", attempt).Msg("deduction hit a serialization conflict, retrying")
	}

	switch {
	case err == nil:
		metrics.IncLedgerOp("deduct", "ok")
		c.log.Info().Str("user_id", userID).Int64("amount", amount).Str("type", string(txType)).Msg("credits deducted")
		return nil
	case err == domain.ErrInsufficientCredits:
		metrics.IncLedgerOp("deduct", "insufficient")
		return err
	default:
		metrics.IncLedgerOp("deduct", "error")
		return fmt.Errorf("deduct credits: %w", err)
	}
}

func (c *creditLedger) deductOnce(ctx context.Context, userID string, amount int64, txType model.TransactionType, relatedEntityID *string, description string) error {
	return c.tm.WithTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead}, func(ctx context.Context, tx repository.Tx) error {
		if err := c.lots.LockUserLedger(ctx, tx, userID); err != nil {
			return err
		}
		now := c.now()
		lots, err := c.lots.SelectConsumableForUpdate(ctx, tx, userID, now)
		if err != nil {
			return err
		}

		var total int64
		for _, lot := range lots {
			total += lot.RemainingAmount
		}
		if total < amount {
			return domain.ErrInsufficientCredits
		}

		needed := amount
		for _, lot := range lots {
			if needed == 0 {
				break
			}
			draw := lot.RemainingAmount
			if draw > needed {
				draw = needed
			}
			if err := c.lots.DecrementRemaining(ctx, tx, lot.ID, draw); err != nil {
				return err
			}
			debit := model.NewDebitLot(userID, draw, txType, lot.ID, relatedEntityID, description)
			if err := c.lots.Insert(ctx, tx, debit); err != nil {
				return err
			}
			needed -= draw
		}
		return nil
	})
}

func (c *creditLedger) Credit(ctx context.Context, userID string, amount int64, txType model.TransactionType, expiresAt *time.Time, relatedEntityID *string, description string) (*model.CreditLot, error) {
	if userID == "" || amount <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	// Refund grants for external tasks are idempotency-guarded: a retried
	// callback must not double-credit.
	if txType == model.TxVideoRefund && relatedEntityID != nil {
		if err := c.ValidateVideoTransaction(ctx, userID, txType, *relatedEntityID); err != nil {
			return nil, err
		}
	}
	if description == "" {
		description = model.DefaultDescription(txType, amount)
	}

	lot := model.NewGrantLot(userID, amount, txType, expiresAt, relatedEntityID, description)
	if err := c.lots.Insert(ctx, repository.NoTX, lot); err != nil {
		metrics.IncLedgerOp("credit", "error")
		return nil, fmt.Errorf("credit grant: %w", err)
	}
	metrics.IncLedgerOp("credit", "ok")
	c.log.Info().Str("user_id", userID).Int64("amount", amount).Str("type", string(txType)).Msg("credits granted")
	return lot, nil
}

func (c *creditLedger) GrantRegistrationBonus(ctx context.Context, userID string) error {
	expiresAt := c.now().AddDate(0, 0, model.RegistrationValidityDays)
	desc := fmt.Sprintf("Registration bonus - %d credits (valid for %d days)", model.RegistrationBonusCredits, model.RegistrationValidityDays)
	_, err := c.Credit(ctx, userID, model.RegistrationBonusCredits, model.TxRegisterBonus, &expiresAt, nil, desc)
	return err
}

func (c *creditLedger) RefillSubscriptionCredits(ctx context.Context, userID, subscriptionID string, credits int64, tier model.PlanTier, billingCycle model.BillingCycle, isRenewal bool) error {
	if subscriptionID == "" || credits <= 0 {
		return domain.ErrInvalidArgument
	}
	now := c.now()
	base := now
	if isRenewal {
		prev, err := c.lots.FindLatestBySubscription(ctx, repository.NoTX, userID, subscriptionID, now)
		switch {
		case err == nil && prev.ExpiresAt != nil:
			// Renewal before expiry: extend from the old lot's expiry so
			// the unused remainder is kept.
			base = *prev.ExpiresAt
		case err != nil && err != domain.ErrNotFound:
			return fmt.Errorf("find previous refill lot: %w", err)
		}
	}

	var expiresAt time.Time
	var desc string
	if billingCycle == model.BillingYearly {
		expiresAt = base.AddDate(1, 0, 0)
		desc = fmt.Sprintf("Yearly subscription refill - %s plan (%d credits, valid for 1 year)", tier, credits)
	} else {
		expiresAt = base.AddDate(0, 0, model.SubscriptionMonthlyDays)
		desc = fmt.Sprintf("Monthly subscription refill - %s plan (%d credits, valid for %d days)", tier, credits, model.SubscriptionMonthlyDays)
	}

	subID := subscriptionID
	_, err := c.Credit(ctx, userID, credits, model.TxSubscriptionRefill, &expiresAt, &subID, desc)
	return err
}

func (c *creditLedger) CreditPackagePurchase(ctx context.Context, userID, orderID string, credits int64, packageName string) error {
	if orderID == "" || credits <= 0 {
		return domain.ErrInvalidArgument
	}
	expiresAt := c.now().AddDate(1, 0, 0)
	desc := fmt.Sprintf("Credit package purchase - %s (%d credits, valid for 1 year)", packageName, credits)
	oid := orderID
	_, err := c.Credit(ctx, userID, credits, model.TxPackagePurchase, &expiresAt, &oid, desc)
	return err
}

func (c *creditLedger) GetExpiringSoonCredits(ctx context.Context, userID string, windowDays int) (ExpiringCredits, error) {
	if windowDays <= 0 {
		windowDays = 7
	}
	now := c.now()
	until := now.AddDate(0, 0, windowDays)
	buckets, err := c.lots.ExpiryBuckets(ctx, repository.NoTX, userID, now, &until)
	if err != nil {
		return ExpiringCredits{}, err
	}

	out := ExpiringCredits{Items: buckets}
	for _, b := range buckets {
		out.Credits += b.Credits
	}
	if len(buckets) > 0 {
		out.EarliestDate = buckets[0].Date
	}
	return out, nil
}

func (c *creditLedger) GetAllCreditsExpiry(ctx context.Context, userID string) ([]model.ExpiryBucket, error) {
	return c.lots.ExpiryBuckets(ctx, repository.NoTX, userID, c.now(), nil)
}

func (c *creditLedger) ValidateVideoTransaction(ctx context.Context, userID string, txType model.TransactionType, relatedTaskID string) error {
	if txType != model.TxVideoRefund || relatedTaskID == "" {
		return nil
	}
	exists, err := c.lots.ExistsRefundForTask(ctx, repository.NoTX, userID, txType, relatedTaskID)
	if err != nil {
		return fmt.Errorf("refund lookup: %w", err)
	}
	if exists {
		metrics.IncLedgerOp("refund", "duplicate")
		return domain.ErrDuplicateRefund
	}
	return nil
}

func (c *creditLedger) History(ctx context.Context, userID string, f repository.HistoryFilter) ([]*model.CreditLot, int64, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return c.lots.ListByUser(ctx, repository.NoTX, userID, f)
}
