package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/callrelay/store"
	"github.com/xraph/callrelay/subscription"
)

// Collection name constants.
const colTenants = "callrelay_tenants"

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// Store implements store.Store on MongoDB with one document per tenant.
type Store struct {
	tenants *mongo.Collection
	ping    func(context.Context) error
	close   func() error
}

// New creates a MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	mdb := mongodriver.Unwrap(db)
	return &Store{
		tenants: mdb.Collection(colTenants),
		ping:    db.Ping,
		close:   db.Close,
	}
}

// NewFromDatabase creates a MongoDB store on an existing database handle.
// Close disconnects the database's client.
func NewFromDatabase(db *mongo.Database) *Store {
	return &Store{
		tenants: db.Collection(colTenants),
		ping: func(ctx context.Context) error {
			return db.Client().Ping(ctx, nil)
		},
		close: func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return db.Client().Disconnect(ctx)
		},
	}
}

// Migrate creates indexes for the call relay collections.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.tenants.Indexes().CreateMany(ctx, migrationIndexes()); err != nil {
		return fmt.Errorf("callrelay/mongo: migrate %s indexes: %w", colTenants, err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.close()
}

// GetSubscriptions returns the tenant's subscriptions, or an empty slice.
func (s *Store) GetSubscriptions(ctx context.Context, tenantID string) ([]subscription.Subscription, error) {
	var m tenantModel

	err := s.tenants.FindOne(ctx, bson.M{"_id": tenantID}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return []subscription.Subscription{}, nil
		}

		return nil, fmt.Errorf("callrelay/mongo: get subscriptions: %w", err)
	}

	return fromTenantModel(&m), nil
}

// SetSubscriptions replaces the tenant document with a single upsert, or
// deletes it when subs is empty. Single-document writes are atomic.
func (s *Store) SetSubscriptions(ctx context.Context, tenantID string, subs []subscription.Subscription) error {
	filter := bson.M{"_id": tenantID}

	if len(subs) == 0 {
		if _, err := s.tenants.DeleteOne(ctx, filter); err != nil {
			return fmt.Errorf("callrelay/mongo: delete tenant: %w", err)
		}

		return nil
	}

	_, err := s.tenants.ReplaceOne(ctx, filter, toTenantModel(tenantID, subs),
		options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("callrelay/mongo: set subscriptions: %w", err)
	}

	return nil
}

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for the tenants
// collection. Tenants are keyed by _id.
func migrationIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{Keys: bson.D{{Key: "updated_at", Value: -1}}},
		{
			Keys:    bson.D{{Key: "subscriptions.id", Value: 1}},
			Options: options.Index().SetSparse(true),
		},
	}
}
