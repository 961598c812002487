package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"content-platform-billing/internal/domain"
	"content-platform-billing/internal/domain/model"
	"content-platform-billing/internal/domain/ports/repository"
)

// Ensure promotionRuleRepo implements repository.PromotionRuleRepository
var _ repository.PromotionRuleRepository = (*promotionRuleRepo)(nil)

type promotionRuleRepo struct {
	pool *pgxpool.Pool
}

func NewPromotionRuleRepo(pool *pgxpool.Pool) *promotionRuleRepo {
	return &promotionRuleRepo{pool: pool}
}

const ruleColumns = `id, rule_name, rule_type, apply_to, target_users, discount_config, gift_config, start_date, end_date, priority, stackable, usage_limit, usage_count, per_user_limit, status, created_at, updated_at`

func (r *promotionRuleRepo) ListActive(ctx context.Context, tx repository.Tx, now time.Time) ([]*model.PromotionRule, error) {
	const q = `
SELECT ` + ruleColumns + `
  FROM promotion_rules
 WHERE status = 'active'
   AND start_date <= $1
   AND end_date >= $1
 ORDER BY priority DESC, created_at DESC;`

	rows, err := queryRows(ctx, r.pool, tx, q, now)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidArgument), errors.Is(err, domain.ErrInvalidExecContext):
			return nil, err
		default:
			return nil, domain.ErrOperationFailed
		}
	}
	defer rows.Close()
	return scanRules(rows)
}

func (r *promotionRuleRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.PromotionRule, error) {
	const q = `SELECT ` + ruleColumns + ` FROM promotion_rules WHERE id = $1;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	rule, err := scanRule(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return rule, nil
}

func (r *promotionRuleRepo) FindByIDs(ctx context.Context, tx repository.Tx, ids []string) ([]*model.PromotionRule, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	const q = `
SELECT ` + ruleColumns + `
  FROM promotion_rules
 WHERE id = ANY($1)
   AND status = 'active';`

	rows, err := queryRows(ctx, r.pool, tx, q, ids)
	if err != nil {
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()
	found, err := scanRules(rows)
	if err != nil {
		return nil, err
	}

	// Preserve the caller's order.
	byID := make(map[string]*model.PromotionRule, len(found))
	for _, rule := range found {
		byID[rule.ID] = rule
	}
	out := make([]*model.PromotionRule, 0, len(found))
	for _, id := range ids {
		if rule, ok := byID[id]; ok {
			out = append(out, rule)
		}
	}
	return out, nil
}

func (r *promotionRuleRepo) Save(ctx context.Context, tx repository.Tx, rule *model.PromotionRule) error {
	const q = `
INSERT INTO promotion_rules (` + ruleColumns + `)
VALUES ($1,$2,$3,$4::jsonb,$5::jsonb,$6::jsonb,$7::jsonb,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
ON CONFLICT (id) DO UPDATE SET
  rule_name=$2, rule_type=$3, apply_to=$4::jsonb, target_users=$5::jsonb,
  discount_config=$6::jsonb, gift_config=$7::jsonb, start_date=$8, end_date=$9,
  priority=$10, stackable=$11, usage_limit=$12, usage_count=$13,
  per_user_limit=$14, status=$15, updated_at=$17;`

	applyTo, err := json.Marshal(rule.ApplyTo)
	if err != nil {
		return domain.ErrInvalidArgument
	}
	targetUsers, err := json.Marshal(rule.TargetUsers)
	if err != nil {
		return domain.ErrInvalidArgument
	}
	var discount, gift *string
	if rule.Discount != nil {
		b, err := json.Marshal(rule.Discount)
		if err != nil {
			return domain.ErrInvalidArgument
		}
		s := string(b)
		discount = &s
	}
	if rule.Gift != nil {
		b, err := json.Marshal(rule.Gift)
		if err != nil {
			return domain.ErrInvalidArgument
		}
		s := string(b)
		gift = &s
	}

	_, err = execSQL(ctx, r.pool, tx, q,
		rule.ID, rule.RuleName, string(rule.RuleType), string(applyTo), string(targetUsers),
		discount, gift, rule.StartDate, rule.EndDate, rule.Priority, rule.Stackable,
		rule.UsageLimit, rule.UsageCount, rule.PerUserLimit, string(rule.Status),
		rule.CreatedAt, rule.UpdatedAt)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidArgument), errors.Is(err, domain.ErrInvalidExecContext):
			return err
		default:
			return domain.ErrOperationFailed
		}
	}
	return nil
}

func (r *promotionRuleRepo) IncrementUsage(ctx context.Context, tx repository.Tx, id string) error {
	const q = `
UPDATE promotion_rules
   SET usage_count = usage_count + 1, updated_at = NOW()
 WHERE id = $1;`

	cmd, err := execSQL(ctx, r.pool, tx, q, id)
	if err != nil {
		return domain.ErrOperationFailed
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanRules(rows pgx.Rows) ([]*model.PromotionRule, error) {
	var out []*model.PromotionRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func scanRule(row pgx.Row) (*model.PromotionRule, error) {
	rule := &model.PromotionRule{}
	var (
		ruleType, status     string
		applyTo, targetUsers []byte
		discountCfg, giftCfg []byte
	)
	if err := row.Scan(&rule.ID, &rule.RuleName, &ruleType, &applyTo, &targetUsers,
		&discountCfg, &giftCfg, &rule.StartDate, &rule.EndDate, &rule.Priority,
		&rule.Stackable, &rule.UsageLimit, &rule.UsageCount, &rule.PerUserLimit,
		&status, &rule.CreatedAt, &rule.UpdatedAt); err != nil {
		return nil, err
	}
	rule.RuleType = model.RuleType(ruleType)
	rule.Status = model.RuleStatus(status)
	if err := json.Unmarshal(applyTo, &rule.ApplyTo); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(targetUsers, &rule.TargetUsers); err != nil {
		return nil, err
	}
	if len(discountCfg) > 0 {
		var d model.DiscountSpec
		if err := json.Unmarshal(discountCfg, &d); err != nil {
			return nil, err
		}
		rule.Discount = &d
	}
	if len(giftCfg) > 0 {
		var g model.GiftSpec
		if err := json.Unmarshal(giftCfg, &g); err != nil {
			return nil, err
		}
		rule.Gift = &g
	}
	return rule, nil
}
