package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/grove/kv"
	"github.com/xraph/grove/kv/drivers/redisdriver"

	"github.com/xraph/callrelay/store"
	"github.com/xraph/callrelay/subscription"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

// Store implements store.Store on Redis. Each tenant's set is one JSON
// value; writes go through MULTI/EXEC together with the tenant index so
// readers never see a partial update.
type Store struct {
	rdb    goredis.UniversalClient
	closer io.Closer
}

// New creates a Redis store backed by Grove KV.
func New(store *kv.Store) *Store {
	return &Store{
		rdb:    redisdriver.UnwrapClient(store),
		closer: store,
	}
}

// NewFromClient creates a Redis store on an existing go-redis client. Close
// closes the client.
func NewFromClient(rdb goredis.UniversalClient) *Store {
	return &Store{
		rdb:    rdb,
		closer: rdb,
	}
}

// Migrate is a no-op for Redis (no schema migrations needed).
func (s *Store) Migrate(_ context.Context) error {
	return nil
}

// Ping checks Redis connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.closer.Close()
}

// GetSubscriptions returns the tenant's subscriptions, or an empty slice.
func (s *Store) GetSubscriptions(ctx context.Context, tenantID string) ([]subscription.Subscription, error) {
	raw, err := s.rdb.Get(ctx, tenantKey(tenantID)).Bytes()
	if err != nil {
		if isNotFound(err) || isRedisNil(err) {
			return []subscription.Subscription{}, nil
		}
		return nil, fmt.Errorf("callrelay/redis: get subscriptions: %w", err)
	}

	var subs []subscription.Subscription
	if err := json.Unmarshal(raw, &subs); err != nil {
		return nil, fmt.Errorf("callrelay/redis: unmarshal subscriptions: %w", err)
	}
	return subscription.CloneAll(subs), nil
}

// SetSubscriptions replaces the tenant's set. An empty set deletes the key
// and drops the tenant from the index.
func (s *Store) SetSubscriptions(ctx context.Context, tenantID string, subs []subscription.Subscription) error {
	key := tenantKey(tenantID)

	if len(subs) == 0 {
		_, err := s.rdb.TxPipelined(ctx, func(p goredis.Pipeliner) error {
			p.Del(ctx, key)
			p.SRem(ctx, sTenantIndex, tenantID)
			return nil
		})
		if err != nil {
			return fmt.Errorf("callrelay/redis: delete tenant: %w", err)
		}
		return nil
	}

	raw, err := json.Marshal(subs)
	if err != nil {
		return fmt.Errorf("callrelay/redis: marshal subscriptions: %w", err)
	}

	_, err = s.rdb.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.Set(ctx, key, raw, 0)
		p.SAdd(ctx, sTenantIndex, tenantID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("callrelay/redis: set subscriptions: %w", err)
	}
	return nil
}

// isNotFound checks if an error is a KV not-found sentinel.
func isNotFound(err error) bool {
	return errors.Is(err, kv.ErrNotFound)
}

// isRedisNil checks if an error is a Redis nil (key not found).
func isRedisNil(err error) bool {
	return errors.Is(err, goredis.Nil)
}
