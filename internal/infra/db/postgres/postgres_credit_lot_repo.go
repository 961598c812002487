package postgres

import (
	"context"
	"errors"
	"hash/fnv"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"content-platform-billing/internal/domain"
	"content-platform-billing/internal/domain/model"
	"content-platform-billing/internal/domain/ports/repository"
)

// Ensure creditLotRepo implements repository.CreditLotRepository
var _ repository.CreditLotRepository = (*creditLotRepo)(nil)

type creditLotRepo struct {
	pool *pgxpool.Pool
}

func NewCreditLotRepo(pool *pgxpool.Pool) *creditLotRepo {
	return &creditLotRepo{pool: pool}
}

const lotColumns = `id, user_id, amount, remaining_amount, transaction_type, expires_at, related_entity_id, related_entity_type, consumed_from_lot_id, description, created_at`

func (r *creditLotRepo) Insert(ctx context.Context, tx repository.Tx, lot *model.CreditLot) error {
	const q = `
INSERT INTO credit_lots (` + lotColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11);`

	_, err := execSQL(ctx, r.pool, tx, q,
		lot.ID, lot.UserID, lot.Amount, lot.RemainingAmount, string(lot.TransactionType),
		lot.ExpiresAt, lot.RelatedEntityID, string(lot.RelatedEntityType), lot.ConsumedFromLotID,
		lot.Description, lot.CreatedAt)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidArgument), errors.Is(err, domain.ErrInvalidExecContext):
			return err
		case isTxConflict(err):
			return domain.ErrTxConflict
		default:
			return domain.ErrOperationFailed
		}
	}
	return nil
}

func (r *creditLotRepo) AvailableSum(ctx context.Context, tx repository.Tx, userID string, now time.Time) (int64, error) {
	// One consistent query; never assembled from separate reads that could
	// race a concurrent deduction.
	const q = `
SELECT COALESCE(SUM(remaining_amount), 0)
  FROM credit_lots
 WHERE user_id = $1
   AND amount > 0
   AND remaining_amount > 0
   AND (expires_at IS NULL OR expires_at > $2);`

	row, err := pickRow(ctx, r.pool, tx, q, userID, now)
	if err != nil {
		return 0, err
	}
	var sum int64
	if err := row.Scan(&sum); err != nil {
		return 0, domain.ErrReadDatabaseRow
	}
	return sum, nil
}

// LockUserLedger takes a transaction-scoped advisory lock keyed on the user,
// serializing concurrent deductions for the same user.
func (r *creditLotRepo) LockUserLedger(ctx context.Context, tx repository.Tx, userID string) error {
	if tx == repository.NoTX || tx == nil {
		return domain.ErrInvalidArgument // only meaningful inside a transaction
	}
	_, err := execSQL(ctx, r.pool, tx, `SELECT pg_advisory_xact_lock($1)`, hashToInt64(userID))
	if err != nil {
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *creditLotRepo) SelectConsumableForUpdate(ctx context.Context, tx repository.Tx, userID string, now time.Time) ([]*model.CreditLot, error) {
	// Soonest-to-expire first; never-expiring lots last, so a user does not
	// lose expiring credit while a permanent lot sits unspent.
	const q = `
SELECT ` + lotColumns + `
  FROM credit_lots
 WHERE user_id = $1
   AND amount > 0
   AND remaining_amount > 0
   AND (expires_at IS NULL OR expires_at > $2)
 ORDER BY expires_at ASC NULLS LAST, created_at ASC
 FOR UPDATE;`

	rows, err := queryRows(ctx, r.pool, tx, q, userID, now)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidArgument), errors.Is(err, domain.ErrInvalidExecContext):
			return nil, err
		case isTxConflict(err):
			return nil, domain.ErrTxConflict
		default:
			return nil, domain.ErrOperationFailed
		}
	}
	defer rows.Close()
	return scanLots(rows)
}

func (r *creditLotRepo) DecrementRemaining(ctx context.Context, tx repository.Tx, lotID string, amount int64) error {
	const q = `
UPDATE credit_lots
   SET remaining_amount = remaining_amount - $2
 WHERE id = $1
   AND remaining_amount >= $2;`

	cmd, err := execSQL(ctx, r.pool, tx, q, lotID, amount)
	if err != nil {
		if isTxConflict(err) {
			return domain.ErrTxConflict
		}
		return domain.ErrOperationFailed
	}
	if cmd.RowsAffected() == 0 {
		// The WHERE guard refused an over-draw; the lot changed under us.
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *creditLotRepo) FindLatestBySubscription(ctx context.Context, tx repository.Tx, userID, subscriptionID string, now time.Time) (*model.CreditLot, error) {
	const q = `
SELECT ` + lotColumns + `
  FROM credit_lots
 WHERE user_id = $1
   AND related_entity_id = $2
   AND transaction_type = $3
   AND amount > 0
   AND expires_at IS NOT NULL
   AND expires_at > $4
 ORDER BY expires_at DESC
 LIMIT 1;`

	row, err := pickRow(ctx, r.pool, tx, q, userID, subscriptionID, string(model.TxSubscriptionRefill), now)
	if err != nil {
		return nil, err
	}
	lot, err := scanLot(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return lot, nil
}

func (r *creditLotRepo) ExpiryBuckets(ctx context.Context, tx repository.Tx, userID string, now time.Time, until *time.Time) ([]model.ExpiryBucket, error) {
	// date_trunc groups per calendar day; the NULL bucket (never expires)
	// sorts last and only appears in the unbounded query.
	const qAll = `
SELECT date_trunc('day', expires_at) AS expiry_day, SUM(remaining_amount)
  FROM credit_lots
 WHERE user_id = $1
   AND amount > 0
   AND remaining_amount > 0
   AND (expires_at IS NULL OR expires_at > $2)
 GROUP BY expiry_day
 ORDER BY expiry_day ASC NULLS LAST;`

	const qWindow = `
SELECT date_trunc('day', expires_at) AS expiry_day, SUM(remaining_amount)
  FROM credit_lots
 WHERE user_id = $1
   AND amount > 0
   AND remaining_amount > 0
   AND expires_at > $2
   AND expires_at <= $3
 GROUP BY expiry_day
 ORDER BY expiry_day ASC;`

	var (
		rows pgx.Rows
		err  error
	)
	if until != nil {
		rows, err = queryRows(ctx, r.pool, tx, qWindow, userID, now, *until)
	} else {
		rows, err = queryRows(ctx, r.pool, tx, qAll, userID, now)
	}
	if err != nil {
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()

	var out []model.ExpiryBucket
	for rows.Next() {
		var b model.ExpiryBucket
		if err := rows.Scan(&b.Date, &b.Credits); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func (r *creditLotRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string, f repository.HistoryFilter) ([]*model.CreditLot, int64, error) {
	const qPage = `
SELECT ` + lotColumns + `
  FROM credit_lots
 WHERE user_id = $1
   AND ($2::text IS NULL OR transaction_type = $2)
 ORDER BY created_at DESC, id DESC
 LIMIT $3 OFFSET $4;`

	const qCount = `
SELECT COUNT(*)
  FROM credit_lots
 WHERE user_id = $1
   AND ($2::text IS NULL OR transaction_type = $2);`

	var typeFilter *string
	if f.Type != nil {
		s := string(*f.Type)
		typeFilter = &s
	}

	rows, err := queryRows(ctx, r.pool, tx, qPage, userID, typeFilter, f.Limit, f.Offset)
	if err != nil {
		return nil, 0, domain.ErrOperationFailed
	}
	defer rows.Close()
	lots, err := scanLots(rows)
	if err != nil {
		return nil, 0, err
	}

	row, err := pickRow(ctx, r.pool, tx, qCount, userID, typeFilter)
	if err != nil {
		return nil, 0, err
	}
	var total int64
	if err := row.Scan(&total); err != nil {
		return nil, 0, domain.ErrReadDatabaseRow
	}
	return lots, total, nil
}

func (r *creditLotRepo) ExistsRefundForTask(ctx context.Context, tx repository.Tx, userID string, txType model.TransactionType, relatedTaskID string) (bool, error) {
	const q = `
SELECT EXISTS (
  SELECT 1
    FROM credit_lots
   WHERE user_id = $1
     AND transaction_type = $2
     AND related_entity_id = $3
);`

	row, err := pickRow(ctx, r.pool, tx, q, userID, string(txType), relatedTaskID)
	if err != nil {
		return false, err
	}
	var exists bool
	if err := row.Scan(&exists); err != nil {
		return false, domain.ErrReadDatabaseRow
	}
	return exists, nil
}

func scanLots(rows pgx.Rows) ([]*model.CreditLot, error) {
	var out []*model.CreditLot
	for rows.Next() {
		lot, err := scanLot(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, lot)
	}
	if err := rows.Err(); err != nil {
		if isTxConflict(err) {
			return nil, domain.ErrTxConflict
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func scanLot(row pgx.Row) (*model.CreditLot, error) {
	l := &model.CreditLot{}
	var txType, entityType string
	if err := row.Scan(&l.ID, &l.UserID, &l.Amount, &l.RemainingAmount, &txType,
		&l.ExpiresAt, &l.RelatedEntityID, &entityType, &l.ConsumedFromLotID,
		&l.Description, &l.CreatedAt); err != nil {
		return nil, err
	}
	l.TransactionType = model.TransactionType(txType)
	l.RelatedEntityType = model.RelatedEntityType(entityType)
	return l, nil
}

func hashToInt64(s string) int64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return int64(h.Sum64() & ((1 << 63) - 1))
}
