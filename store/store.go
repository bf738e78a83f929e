// Package store defines the aggregate Store interface for call relay
// persistence.
//
// The only persisted state is the tenant subscription sets. Backends live in
// sub-packages: memory, file, redis, sqlite, postgres and mongo.
package store

import (
	"context"

	"github.com/xraph/callrelay/subscription"
)

// Store is the aggregate persistence interface.
type Store interface {
	subscription.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close releases the backend.
	Close() error
}
