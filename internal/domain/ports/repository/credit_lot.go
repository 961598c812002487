package repository

import (
	"context"
	"time"

	"content-platform-billing/internal/domain/model"
)

// HistoryFilter narrows the transaction-history page query.
type HistoryFilter struct {
	Type   *model.TransactionType
	Limit  int
	Offset int
}

// CreditLotRepository is the port for the credit ledger store.
//
// The deduction path composes LockUserLedger, SelectConsumableForUpdate,
// DecrementRemaining and Insert inside one transaction; everything else is
// an ordinary read or append.
type CreditLotRepository interface {
	// Insert appends one lot (grant or debit). Lots are never deleted.
	Insert(ctx context.Context, tx Tx, lot *model.CreditLot) error

	// AvailableSum returns the user's spendable balance in one consistent
	// query: sum of remaining_amount over unexpired positive lots.
	AvailableSum(ctx context.Context, tx Tx, userID string, now time.Time) (int64, error)

	// LockUserLedger serializes concurrent deductions for one user for the
	// duration of the surrounding transaction.
	LockUserLedger(ctx context.Context, tx Tx, userID string) error

	// SelectConsumableForUpdate returns the user's consumable grant lots
	// ordered soonest-to-expire first with never-expiring lots last, locked
	// for update.
	SelectConsumableForUpdate(ctx context.Context, tx Tx, userID string, now time.Time) ([]*model.CreditLot, error)

	// DecrementRemaining draws `amount` from a grant lot's remaining_amount.
	DecrementRemaining(ctx context.Context, tx Tx, lotID string, amount int64) error

	// FindLatestBySubscription returns the most recent still-unexpired
	// refill lot tied to subscriptionID, or domain.ErrNotFound.
	FindLatestBySubscription(ctx context.Context, tx Tx, userID, subscriptionID string, now time.Time) (*model.CreditLot, error)

	// ExpiryBuckets aggregates remaining credit by expiry date ascending,
	// never-expiring lots last. A non-nil until bounds the window and
	// excludes the never-expiring bucket.
	ExpiryBuckets(ctx context.Context, tx Tx, userID string, now time.Time, until *time.Time) ([]model.ExpiryBucket, error)

	// ListByUser returns one history page plus the unpaged total count.
	ListByUser(ctx context.Context, tx Tx, userID string, f HistoryFilter) ([]*model.CreditLot, int64, error)

	// ExistsRefundForTask reports whether a refund of the given type already
	// references relatedTaskID.
	ExistsRefundForTask(ctx context.Context, tx Tx, userID string, txType model.TransactionType, relatedTaskID string) (bool, error)
}
