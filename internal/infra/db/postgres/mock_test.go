//go:build !integration

package postgres

import (
	"context"
	"errors"
	"time"

	"content-platform-billing/internal/domain/model"
	"content-platform-billing/internal/domain/ports/repository"
	red "content-platform-billing/internal/infra/redis"
)

// --- Mocks for Cache Decorator Tests ---

// mockInnerRuleRepo mocks the database repository that the rule decorator wraps.
type mockInnerRuleRepo struct {
	ListActiveFunc     func(ctx context.Context, tx repository.Tx, now time.Time) ([]*model.PromotionRule, error)
	FindByIDFunc       func(ctx context.Context, tx repository.Tx, id string) (*model.PromotionRule, error)
	FindByIDsFunc      func(ctx context.Context, tx repository.Tx, ids []string) ([]*model.PromotionRule, error)
	SaveFunc           func(ctx context.Context, tx repository.Tx, rule *model.PromotionRule) error
	IncrementUsageFunc func(ctx context.Context, tx repository.Tx, id string) error
}

func (m *mockInnerRuleRepo) ListActive(ctx context.Context, tx repository.Tx, now time.Time) ([]*model.PromotionRule, error) {
	return m.ListActiveFunc(ctx, tx, now)
}
func (m *mockInnerRuleRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.PromotionRule, error) {
	return m.FindByIDFunc(ctx, tx, id)
}
func (m *mockInnerRuleRepo) FindByIDs(ctx context.Context, tx repository.Tx, ids []string) ([]*model.PromotionRule, error) {
	return m.FindByIDsFunc(ctx, tx, ids)
}
func (m *mockInnerRuleRepo) Save(ctx context.Context, tx repository.Tx, rule *model.PromotionRule) error {
	return m.SaveFunc(ctx, tx, rule)
}
func (m *mockInnerRuleRepo) IncrementUsage(ctx context.Context, tx repository.Tx, id string) error {
	return m.IncrementUsageFunc(ctx, tx, id)
}

// mockRedisClient mocks our Redis client wrapper.
type mockRedisClient struct {
	GetFunc  func(ctx context.Context, key string) (string, error)
	SetFunc  func(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	DelFunc  func(ctx context.Context, keys ...string) error
	PingFunc func(ctx context.Context) error
	TTLFunc  func(ctx context.Context, key string) (time.Duration, error)
}

var _ red.RedisClient = &mockRedisClient{}

// errCacheMiss stands in for a key miss when no GetFunc is set.
var errCacheMiss = errors.New("cache miss")

func (m *mockRedisClient) Get(ctx context.Context, key string) (string, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, key)
	}
	return "", errCacheMiss
}
func (m *mockRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if m.SetFunc != nil {
		return m.SetFunc(ctx, key, value, expiration)
	}
	return nil
}
func (m *mockRedisClient) Del(ctx context.Context, keys ...string) error {
	if m.DelFunc != nil {
		return m.DelFunc(ctx, keys...)
	}
	return nil
}
func (m *mockRedisClient) Ping(ctx context.Context) error {
	if m.PingFunc != nil {
		return m.PingFunc(ctx)
	}
	return nil
}
func (m *mockRedisClient) TTL(ctx context.Context, key string) (time.Duration, error) {
	if m.TTLFunc != nil {
		return m.TTLFunc(ctx, key)
	}
	return 0, nil
}
func (m *mockRedisClient) Close() error { return nil }
