package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"content-platform-billing/internal/domain"
	"content-platform-billing/internal/domain/ports/repository"
)

// Ensure userDirectory implements repository.UserDirectory
var _ repository.UserDirectory = (*userDirectory)(nil)

// userDirectory is a read-only view over the collaborator tables user
// targeting needs. This core never writes users or subscriptions.
type userDirectory struct {
	pool *pgxpool.Pool
}

func NewUserDirectory(pool *pgxpool.Pool) *userDirectory {
	return &userDirectory{pool: pool}
}

func (d *userDirectory) RegisteredWithinDays(ctx context.Context, userID string, days int) (bool, error) {
	const q = `
SELECT created_at > NOW() - ($2::int * INTERVAL '1 day')
  FROM users
 WHERE id = $1;`

	row, err := pickRow(ctx, d.pool, repository.NoTX, q, userID, days)
	if err != nil {
		return false, err
	}
	var recent bool
	if err := row.Scan(&recent); err != nil {
		// Unknown user: not a system failure, just no match.
		return false, nil
	}
	return recent, nil
}

func (d *userDirectory) HasActiveSubscriptionTier(ctx context.Context, userID string, tiers []string) (bool, error) {
	const q = `
SELECT EXISTS (
  SELECT 1
    FROM user_subscriptions
   WHERE user_id = $1
     AND status = 'active'
     AND (cardinality($2::text[]) = 0 OR plan_tier = ANY($2))
);`

	if tiers == nil {
		tiers = []string{}
	}
	row, err := pickRow(ctx, d.pool, repository.NoTX, q, userID, tiers)
	if err != nil {
		return false, err
	}
	var ok bool
	if err := row.Scan(&ok); err != nil {
		return false, fmt.Errorf("%w: %v", domain.ErrReadDatabaseRow, err)
	}
	return ok, nil
}
