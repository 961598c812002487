package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

type Tx interface{}

var NoTX interface{}

// TransactionManager executes a function within a database transaction,
// passing the underlying transaction handle via `tx`.
//
// Repository methods accept a `tx Tx` argument so use cases can compose
// several calls into one atomic unit (the ledger deduction is the critical
// consumer: it needs SELECT ... FOR UPDATE plus writes in one transaction).
// Repositories MUST gracefully accept NoTX for the non-transactional path.
//
// The concrete type of `tx` is infra-defined (pgx.Tx for Postgres).
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
