package server

import (
	"context"
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"

	"github.com/xraph/callrelay/store"
	"github.com/xraph/callrelay/store/file"
	"github.com/xraph/callrelay/store/memory"
	mongostore "github.com/xraph/callrelay/store/mongo"
	"github.com/xraph/callrelay/store/postgres"
	redisstore "github.com/xraph/callrelay/store/redis"
	"github.com/xraph/callrelay/store/sqlite"
)

// OpenStore connects the backend named by cfg.Driver. The caller owns the
// returned store and must Close it.
func OpenStore(ctx context.Context, cfg StoreConfig, logger *slog.Logger) (store.Store, error) {
	switch cfg.Driver {
	case DriverMemory:
		logger.WarnContext(ctx, "using in-memory store, subscriptions will not survive a restart")
		return memory.New(), nil

	case DriverFile:
		s, err := file.Open(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("callrelay/server: open file store: %w", err)
		}
		logger.InfoContext(ctx, "using file store", "path", cfg.Path)
		return s, nil

	case DriverRedis:
		opt, err := goredis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("callrelay/server: redis url: %w", err)
		}
		s := redisstore.NewFromClient(goredis.NewClient(opt))
		if err := s.Ping(ctx); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("callrelay/server: redis ping: %w", err)
		}
		logger.InfoContext(ctx, "using redis store", "addr", opt.Addr, "db", opt.DB)
		return s, nil

	case DriverMongo:
		client, err := mongo.Connect(options.Client().ApplyURI(cfg.URL))
		if err != nil {
			return nil, fmt.Errorf("callrelay/server: mongo connect: %w", err)
		}
		s := mongostore.NewFromDatabase(client.Database(cfg.Database))
		if err := s.Ping(ctx); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("callrelay/server: mongo ping: %w", err)
		}
		logger.InfoContext(ctx, "using mongo store", "database", cfg.Database)
		return s, nil

	case DriverSQLite, DriverPostgres:
		return nil, fmt.Errorf("callrelay/server: %s driver needs a grove database (WithGroveDB)", cfg.Driver)

	default:
		return nil, fmt.Errorf("callrelay/server: unknown store driver %q", cfg.Driver)
	}
}

// OpenGroveStore builds the backend named by cfg.Driver on an open grove
// database. The store takes ownership of db.
func OpenGroveStore(cfg StoreConfig, db *grove.DB) (store.Store, error) {
	if db == nil {
		return nil, fmt.Errorf("callrelay/server: %s driver: nil grove database", cfg.Driver)
	}
	switch cfg.Driver {
	case DriverSQLite:
		return sqlite.New(db), nil
	case DriverPostgres:
		return postgres.New(db), nil
	case DriverMongo:
		return mongostore.New(db), nil
	default:
		return nil, fmt.Errorf("callrelay/server: driver %q cannot use a grove database", cfg.Driver)
	}
}
