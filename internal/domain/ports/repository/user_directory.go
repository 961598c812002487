package repository

import "context"

// UserDirectory answers the user-targeting questions the pricing engine asks.
// It is a read-only view onto collaborator tables (users, subscriptions);
// this core never writes them.
type UserDirectory interface {
	// RegisteredWithinDays reports whether the user registered in the last
	// `days` days.
	RegisteredWithinDays(ctx context.Context, userID string, days int) (bool, error)

	// HasActiveSubscriptionTier reports whether the user holds an active
	// subscription in one of the given tiers. An empty tiers slice matches
	// any active subscription.
	HasActiveSubscriptionTier(ctx context.Context, userID string, tiers []string) (bool, error)
}
