// Package memory provides an in-memory Store implementation for tests and
// single-process deployments that do not need durability.
package memory

import (
	"context"
	"sync"

	"github.com/xraph/callrelay"
	"github.com/xraph/callrelay/store"
	"github.com/xraph/callrelay/subscription"
)

// compile-time interface check.
var _ store.Store = (*Store)(nil)

// Store keeps tenant subscription sets in a map. Every read and write copies,
// so callers never alias stored state.
type Store struct {
	mu      sync.RWMutex
	tenants map[string][]subscription.Subscription
	closed  bool

	// sets counts successful SetSubscriptions calls.
	sets int
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		tenants: make(map[string][]subscription.Subscription),
	}
}

// Migrate is a no-op for the in-memory store.
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping reports whether the store is still open.
func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return callrelay.ErrStoreClosed
	}
	return nil
}

// Close marks the store as closed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// GetSubscriptions returns a copy of the tenant's subscriptions.
func (s *Store) GetSubscriptions(_ context.Context, tenantID string) ([]subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, callrelay.ErrStoreClosed
	}
	return subscription.CloneAll(s.tenants[tenantID]), nil
}

// SetSubscriptions replaces the tenant's subscriptions; an empty list drops
// the tenant.
func (s *Store) SetSubscriptions(_ context.Context, tenantID string, subs []subscription.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return callrelay.ErrStoreClosed
	}
	if len(subs) == 0 {
		delete(s.tenants, tenantID)
	} else {
		s.tenants[tenantID] = subscription.CloneAll(subs)
	}
	s.sets++
	return nil
}

// Tenants returns the number of tenants with at least one subscription.
func (s *Store) Tenants() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tenants)
}

// HasTenant reports whether a tenant entry exists.
func (s *Store) HasTenant(tenantID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.tenants[tenantID]
	return ok
}

// Writes returns how many writes have been applied.
func (s *Store) Writes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sets
}
