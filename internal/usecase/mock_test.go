//go:build !integration

package usecase_test

import (
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"content-platform-billing/internal/domain"
	"content-platform-billing/internal/domain/model"
	"content-platform-billing/internal/domain/ports/repository"
)

// =============================
// Credit lot repository
// =============================

// MockCreditLotRepo is an in-memory ledger store mirroring the Postgres
// repository's query semantics, with optional error hooks per method.
type MockCreditLotRepo struct {
	mu   sync.RWMutex
	lots []*model.CreditLot

	LockCalls int

	InsertFunc    func(ctx context.Context, tx repository.Tx, lot *model.CreditLot) error
	LockFunc      func(ctx context.Context, tx repository.Tx, userID string) error
	SelectFunc    func(ctx context.Context, tx repository.Tx, userID string, now time.Time) ([]*model.CreditLot, error)
	DecrementFunc func(ctx context.Context, tx repository.Tx, lotID string, amount int64) error
	SumFunc       func(ctx context.Context, tx repository.Tx, userID string, now time.Time) (int64, error)
	ExistsFunc    func(ctx context.Context, tx repository.Tx, userID string, txType model.TransactionType, relatedTaskID string) (bool, error)
}

var _ repository.CreditLotRepository = (*MockCreditLotRepo)(nil)

func NewMockCreditLotRepo() *MockCreditLotRepo {
	return &MockCreditLotRepo{}
}

func (m *MockCreditLotRepo) Insert(ctx context.Context, tx repository.Tx, lot *model.CreditLot) error {
	if m.InsertFunc != nil {
		return m.InsertFunc(ctx, tx, lot)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *lot
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	m.lots = append(m.lots, &cp)
	return nil
}

func (m *MockCreditLotRepo) AvailableSum(ctx context.Context, tx repository.Tx, userID string, now time.Time) (int64, error) {
	if m.SumFunc != nil {
		return m.SumFunc(ctx, tx, userID, now)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var sum int64
	for _, l := range m.lots {
		if consumable(l, userID, now) {
			sum += l.RemainingAmount
		}
	}
	return sum, nil
}

func (m *MockCreditLotRepo) LockUserLedger(ctx context.Context, tx repository.Tx, userID string) error {
	if m.LockFunc != nil {
		return m.LockFunc(ctx, tx, userID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LockCalls++
	return nil
}

func (m *MockCreditLotRepo) SelectConsumableForUpdate(ctx context.Context, tx repository.Tx, userID string, now time.Time) ([]*model.CreditLot, error) {
	if m.SelectFunc != nil {
		return m.SelectFunc(ctx, tx, userID, now)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.CreditLot
	for _, l := range m.lots {
		if consumable(l, userID, now) {
			cp := *l
			out = append(out, &cp)
		}
	}
	// Soonest-to-expire first, never-expiring lots last.
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].ExpiresAt, out[j].ExpiresAt
		switch {
		case a == nil && b == nil:
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		case a == nil:
			return false
		case b == nil:
			return true
		case a.Equal(*b):
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		default:
			return a.Before(*b)
		}
	})
	return out, nil
}

func (m *MockCreditLotRepo) DecrementRemaining(ctx context.Context, tx repository.Tx, lotID string, amount int64) error {
	if m.DecrementFunc != nil {
		return m.DecrementFunc(ctx, tx, lotID, amount)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.lots {
		if l.ID == lotID && l.RemainingAmount >= amount {
			l.RemainingAmount -= amount
			return nil
		}
	}
	return domain.ErrOperationFailed
}

func (m *MockCreditLotRepo) FindLatestBySubscription(ctx context.Context, tx repository.Tx, userID, subscriptionID string, now time.Time) (*model.CreditLot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var latest *model.CreditLot
	for _, l := range m.lots {
		if l.UserID != userID || l.TransactionType != model.TxSubscriptionRefill || l.Amount <= 0 {
			continue
		}
		if l.RelatedEntityID == nil || *l.RelatedEntityID != subscriptionID {
			continue
		}
		if l.ExpiresAt == nil || !l.ExpiresAt.After(now) {
			continue
		}
		if latest == nil || l.ExpiresAt.After(*latest.ExpiresAt) {
			latest = l
		}
	}
	if latest == nil {
		return nil, domain.ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (m *MockCreditLotRepo) ExpiryBuckets(ctx context.Context, tx repository.Tx, userID string, now time.Time, until *time.Time) ([]model.ExpiryBucket, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	byDay := map[time.Time]int64{}
	var forever int64
	for _, l := range m.lots {
		if !consumable(l, userID, now) {
			continue
		}
		if l.ExpiresAt == nil {
			forever += l.RemainingAmount
			continue
		}
		if until != nil && l.ExpiresAt.After(*until) {
			continue
		}
		day := l.ExpiresAt.UTC().Truncate(24 * time.Hour)
		byDay[day] += l.RemainingAmount
	}

	days := make([]time.Time, 0, len(byDay))
	for d := range byDay {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	var out []model.ExpiryBucket
	for _, d := range days {
		day := d
		out = append(out, model.ExpiryBucket{Date: &day, Credits: byDay[d]})
	}
	if until == nil && forever > 0 {
		out = append(out, model.ExpiryBucket{Date: nil, Credits: forever})
	}
	return out, nil
}

func (m *MockCreditLotRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string, f repository.HistoryFilter) ([]*model.CreditLot, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var all []*model.CreditLot
	for _, l := range m.lots {
		if l.UserID != userID {
			continue
		}
		if f.Type != nil && l.TransactionType != *f.Type {
			continue
		}
		cp := *l
		all = append(all, &cp)
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	total := int64(len(all))
	if f.Offset >= len(all) {
		return nil, total, nil
	}
	all = all[f.Offset:]
	if f.Limit > 0 && len(all) > f.Limit {
		all = all[:f.Limit]
	}
	return all, total, nil
}

func (m *MockCreditLotRepo) ExistsRefundForTask(ctx context.Context, tx repository.Tx, userID string, txType model.TransactionType, relatedTaskID string) (bool, error) {
	if m.ExistsFunc != nil {
		return m.ExistsFunc(ctx, tx, userID, txType, relatedTaskID)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, l := range m.lots {
		if l.UserID == userID && l.TransactionType == txType &&
			l.RelatedEntityID != nil && *l.RelatedEntityID == relatedTaskID {
			return true, nil
		}
	}
	return false, nil
}

// Remaining reports a lot's current remaining amount, for assertions.
func (m *MockCreditLotRepo) Remaining(lotID string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, l := range m.lots {
		if l.ID == lotID {
			return l.RemainingAmount
		}
	}
	return -1
}

// SetRemaining overwrites a lot's remaining amount, to simulate a concurrent
// deduction committing between attempts.
func (m *MockCreditLotRepo) SetRemaining(lotID string, remaining int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.lots {
		if l.ID == lotID {
			l.RemainingAmount = remaining
			return
		}
	}
}

// Count returns the number of stored lots, for assertions.
func (m *MockCreditLotRepo) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.lots)
}

// Lots returns a snapshot of all stored lots.
func (m *MockCreditLotRepo) Lots() []*model.CreditLot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*model.CreditLot, len(m.lots))
	for i, l := range m.lots {
		cp := *l
		out[i] = &cp
	}
	return out
}

func consumable(l *model.CreditLot, userID string, now time.Time) bool {
	if l.UserID != userID || l.Amount <= 0 || l.RemainingAmount <= 0 {
		return false
	}
	return l.ExpiresAt == nil || l.ExpiresAt.After(now)
}

// =============================
// Promotion rule repository
// =============================

type MockRuleRepo struct {
	mu    sync.RWMutex
	rules []*model.PromotionRule

	ListActiveFunc func(ctx context.Context, tx repository.Tx, now time.Time) ([]*model.PromotionRule, error)
	SaveFunc       func(ctx context.Context, tx repository.Tx, rule *model.PromotionRule) error
	IncrementFunc  func(ctx context.Context, tx repository.Tx, id string) error
}

var _ repository.PromotionRuleRepository = (*MockRuleRepo)(nil)

func NewMockRuleRepo(rules ...*model.PromotionRule) *MockRuleRepo {
	m := &MockRuleRepo{}
	for _, r := range rules {
		cp := *r
		m.rules = append(m.rules, &cp)
	}
	return m
}

func (m *MockRuleRepo) ListActive(ctx context.Context, tx repository.Tx, now time.Time) ([]*model.PromotionRule, error) {
	if m.ListActiveFunc != nil {
		return m.ListActiveFunc(ctx, tx, now)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.PromotionRule
	for _, r := range m.rules {
		if r.Status == model.RuleStatusActive && r.InWindow(now) {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	return out, nil
}

func (m *MockRuleRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.PromotionRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.rules {
		if r.ID == id {
			cp := *r
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockRuleRepo) FindByIDs(ctx context.Context, tx repository.Tx, ids []string) ([]*model.PromotionRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.PromotionRule
	for _, id := range ids {
		for _, r := range m.rules {
			if r.ID == id && r.Status == model.RuleStatusActive {
				cp := *r
				out = append(out, &cp)
				break
			}
		}
	}
	return out, nil
}

func (m *MockRuleRepo) Save(ctx context.Context, tx repository.Tx, rule *model.PromotionRule) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, tx, rule)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rule
	for i, r := range m.rules {
		if r.ID == rule.ID {
			m.rules[i] = &cp
			return nil
		}
	}
	m.rules = append(m.rules, &cp)
	return nil
}

func (m *MockRuleRepo) IncrementUsage(ctx context.Context, tx repository.Tx, id string) error {
	if m.IncrementFunc != nil {
		return m.IncrementFunc(ctx, tx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rules {
		if r.ID == id {
			r.UsageCount++
			return nil
		}
	}
	return domain.ErrNotFound
}

// UsageCount reports a stored rule's usage counter, for assertions.
func (m *MockRuleRepo) UsageCount(id string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.rules {
		if r.ID == id {
			return r.UsageCount
		}
	}
	return -1
}

// =============================
// User directory
// =============================

type MockUserDirectory struct {
	Recent map[string]bool   // userID -> registered within the asked window
	Tier   map[string]string // userID -> active subscription tier

	RecentErr error
	TierErr   error
}

var _ repository.UserDirectory = (*MockUserDirectory)(nil)

func NewMockUserDirectory() *MockUserDirectory {
	return &MockUserDirectory{Recent: map[string]bool{}, Tier: map[string]string{}}
}

func (m *MockUserDirectory) RegisteredWithinDays(ctx context.Context, userID string, days int) (bool, error) {
	if m.RecentErr != nil {
		return false, m.RecentErr
	}
	return m.Recent[userID], nil
}

func (m *MockUserDirectory) HasActiveSubscriptionTier(ctx context.Context, userID string, tiers []string) (bool, error) {
	if m.TierErr != nil {
		return false, m.TierErr
	}
	tier, ok := m.Tier[userID]
	if !ok {
		return false, nil
	}
	if len(tiers) == 0 {
		return true, nil
	}
	for _, t := range tiers {
		if t == tier {
			return true, nil
		}
	}
	return false, nil
}

// =============================
// Infra helpers
// =============================

type MockTxManager struct {
	WithTxFunc func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error
}

var _ repository.TransactionManager = (*MockTxManager)(nil)

func NewMockTxManager() *MockTxManager {
	return &MockTxManager{}
}

// WithTx runs the function immediately with NoTX unless a test overrides it.
func (m *MockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, txOpt, fn)
	}
	return fn(ctx, repository.NoTX)
}

// MockRuleCache is a no-op RuleCacheControl for admin use case tests.
type MockRuleCache struct {
	RefreshCalls int
	RefreshErr   error
}

var _ repository.RuleCacheControl = (*MockRuleCache)(nil)

func (m *MockRuleCache) Refresh(ctx context.Context) error {
	m.RefreshCalls++
	return m.RefreshErr
}

func (m *MockRuleCache) Stats(ctx context.Context) (bool, int, time.Duration) {
	return true, 0, 0
}

// newTestLogger creates a silent zerolog.Logger for use in tests.
func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}
