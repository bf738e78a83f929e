// Package file provides a Store that persists every tenant's subscriptions
// to one JSON document on disk, shaped {"<tenantId>": [subscription, ...]}.
//
// The document is loaded once at open and cached in memory. Each write
// rewrites the whole document to a temporary file and renames it over the
// original, so a crash leaves either the old or the new state on disk.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/xraph/callrelay"
	"github.com/xraph/callrelay/store"
	"github.com/xraph/callrelay/subscription"
)

// compile-time interface check.
var _ store.Store = (*Store)(nil)

// Store is a JSON-file backed subscription store.
type Store struct {
	path string

	mu      sync.RWMutex
	tenants map[string][]subscription.Subscription
	closed  bool
}

// Open loads the document at path. A missing file is an empty store; the
// file and its directory are created on first write.
func Open(path string) (*Store, error) {
	s := &Store{
		path:    path,
		tenants: make(map[string][]subscription.Subscription),
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("callrelay/file: read %s: %w", path, err)
	case len(data) == 0:
		return s, nil
	}

	if err := json.Unmarshal(data, &s.tenants); err != nil {
		return nil, fmt.Errorf("callrelay/file: decode %s: %w", path, err)
	}
	for tenantID, subs := range s.tenants {
		if len(subs) == 0 {
			delete(s.tenants, tenantID)
		}
	}
	return s, nil
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

// Migrate is a no-op for the file store.
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping reports whether the store is open.
func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return callrelay.ErrStoreClosed
	}
	return nil
}

// Close marks the store closed. Every write is already on disk.
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

// SetSubscriptions replaces the tenant's set and persists the document. The
// in-memory cache only changes once the file has been replaced.
func (s *Store) SetSubscriptions(_ context.Context, tenantID string, subs []subscription.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return callrelay.ErrStoreClosed
	}

	next := make(map[string][]subscription.Subscription, len(s.tenants)+1)
	for k, v := range s.tenants {
		next[k] = v
	}
	if len(subs) == 0 {
		delete(next, tenantID)
	} else {
		next[tenantID] = subscription.CloneAll(subs)
	}

	if err := s.persist(next); err != nil {
		return err
	}
	s.tenants = next
	return nil
}

func (s *Store) persist(tenants map[string][]subscription.Subscription) error {
	data, err := json.Marshal(tenants)
	if err != nil {
		return fmt.Errorf("callrelay/file: encode: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("callrelay/file: mkdir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("callrelay/file: create temp: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("callrelay/file: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("callrelay/file: sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("callrelay/file: close temp: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("callrelay/file: rename: %w", err)
	}
	return nil
}
