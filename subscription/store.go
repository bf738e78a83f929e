package subscription

import "context"

// Store is the persistence contract for tenant subscription sets.
//
// It is a key-value store keyed by tenant ID. Writes must be atomic: a
// concurrent reader observes either the previous list or the new one, never
// a partial write.
type Store interface {
	// GetSubscriptions returns the tenant's ordered subscriptions, or an
	// empty slice when the tenant has none.
	GetSubscriptions(ctx context.Context, tenantID string) ([]Subscription, error)

	// SetSubscriptions replaces the tenant's ordered subscriptions. An empty
	// list removes the tenant entry entirely.
	SetSubscriptions(ctx context.Context, tenantID string, subs []Subscription) error
}
