package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/callrelay/store"
	"github.com/xraph/callrelay/subscription"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

// Store implements store.Store using SQLite via Grove ORM.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a new SQLite store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("callrelay/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("callrelay/sqlite: migration failed: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// GetSubscriptions returns the tenant's subscriptions, or an empty slice.
func (s *Store) GetSubscriptions(ctx context.Context, tenantID string) ([]subscription.Subscription, error) {
	m := new(tenantModel)
	err := s.sdb.NewSelect(m).
		Where("tenant_id = ?", tenantID).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return []subscription.Subscription{}, nil
		}
		return nil, fmt.Errorf("callrelay/sqlite: get subscriptions: %w", err)
	}
	return fromTenantModel(m)
}

// SetSubscriptions replaces the tenant's set in one statement. An empty set
// deletes the row.
func (s *Store) SetSubscriptions(ctx context.Context, tenantID string, subs []subscription.Subscription) error {
	if len(subs) == 0 {
		_, err := s.sdb.NewDelete((*tenantModel)(nil)).
			Where("tenant_id = ?", tenantID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("callrelay/sqlite: delete tenant: %w", err)
		}
		return nil
	}

	m, err := toTenantModel(tenantID, subs)
	if err != nil {
		return fmt.Errorf("callrelay/sqlite: %w", err)
	}
	_, err = s.sdb.NewInsert(m).
		OnConflict("(tenant_id) DO UPDATE").
		Set("subscriptions = EXCLUDED.subscriptions").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("callrelay/sqlite: set subscriptions: %w", err)
	}
	return nil
}

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
