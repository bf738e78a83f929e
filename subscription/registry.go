package subscription

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// Registry provides subscription lifecycle operations over a Store.
//
// Writes to the same tenant are serialized; writes to different tenants run
// in parallel. Reads never take a tenant lock and rely on the Store's atomic
// write contract.
type Registry struct {
	store  Store
	logger *slog.Logger

	mu    sync.Mutex
	locks map[string]*tenantLock
}

type tenantLock struct {
	mu   sync.Mutex
	refs int
}

// NewRegistry creates a registry backed by store.
func NewRegistry(store Store, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		store:  store,
		logger: logger,
		locks:  make(map[string]*tenantLock),
	}
}

// Upsert inserts sub for the tenant, or replaces the subscription with the
// same ID in place. New subscriptions are appended.
func (r *Registry) Upsert(ctx context.Context, tenantID string, sub Subscription) error {
	if err := validate(tenantID, sub); err != nil {
		return err
	}

	unlock := r.lock(tenantID)
	defer unlock()

	subs, err := r.store.GetSubscriptions(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("callrelay/subscription: load %s: %w", tenantID, err)
	}

	next := CloneAll(subs)
	replaced := false
	for i := range next {
		if next[i].ID == sub.ID {
			next[i] = sub.Clone()
			replaced = true
			break
		}
	}
	if !replaced {
		next = append(next, sub.Clone())
	}

	if err := r.store.SetSubscriptions(ctx, tenantID, next); err != nil {
		return fmt.Errorf("callrelay/subscription: save %s: %w", tenantID, err)
	}

	r.logger.DebugContext(ctx, "subscription upserted",
		"tenant_id", tenantID,
		"subscription_id", sub.ID,
		"replaced", replaced,
		"count", len(next),
	)
	return nil
}

// Remove deletes the subscription with the given ID. Removing an unknown
// tenant or ID is a no-op. Removing the last subscription drops the tenant.
func (r *Registry) Remove(ctx context.Context, tenantID, subscriptionID string) error {
	unlock := r.lock(tenantID)
	defer unlock()

	subs, err := r.store.GetSubscriptions(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("callrelay/subscription: load %s: %w", tenantID, err)
	}

	next := make([]Subscription, 0, len(subs))
	for _, s := range subs {
		if s.ID != subscriptionID {
			next = append(next, s.Clone())
		}
	}
	if len(next) == len(subs) {
		return nil
	}

	if err := r.store.SetSubscriptions(ctx, tenantID, next); err != nil {
		return fmt.Errorf("callrelay/subscription: save %s: %w", tenantID, err)
	}

	r.logger.DebugContext(ctx, "subscription removed",
		"tenant_id", tenantID,
		"subscription_id", subscriptionID,
		"count", len(next),
	)
	return nil
}

// ListByTenant returns a snapshot of the tenant's subscriptions in insertion
// order. The result is never nil and is safe to modify.
func (r *Registry) ListByTenant(ctx context.Context, tenantID string) ([]Subscription, error) {
	subs, err := r.store.GetSubscriptions(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("callrelay/subscription: list %s: %w", tenantID, err)
	}
	return CloneAll(subs), nil
}

// lock acquires the tenant's write lock and returns its release func.
func (r *Registry) lock(tenantID string) func() {
	r.mu.Lock()
	l, ok := r.locks[tenantID]
	if !ok {
		l = &tenantLock{}
		r.locks[tenantID] = l
	}
	l.refs++
	r.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()

		r.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(r.locks, tenantID)
		}
		r.mu.Unlock()
	}
}

func validate(tenantID string, sub Subscription) error {
	if strings.TrimSpace(tenantID) == "" {
		return &ValidationError{Field: "tenant_id", Message: "required"}
	}
	if strings.TrimSpace(sub.ID) == "" {
		return &ValidationError{Field: "id", Message: "required"}
	}
	if strings.TrimSpace(sub.TargetURL) == "" {
		return &ValidationError{Field: "target_url", Message: "required"}
	}
	return nil
}
