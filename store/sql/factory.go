// Package sqlstore persists rate limit checkpoints in SQLite or PostgreSQL
// through bun.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-clientkit/ratelimit"
	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"

	defaultPingTimeout = 5 * time.Second
)

type Options struct {
	Driver      string
	DSN         string
	Debug       bool
	PingTimeout time.Duration
	// Cache enables a read-through cache in front of the state table.
	Cache *repositorycache.Config
}

type persistenceConfig struct {
	options Options
}

func (c persistenceConfig) GetDebug() bool { return c.options.Debug }

func (c persistenceConfig) GetDriver() string { return c.options.Driver }

func (c persistenceConfig) GetServer() string { return c.options.DSN }

func (c persistenceConfig) GetPingTimeout() time.Duration {
	if c.options.PingTimeout <= 0 {
		return defaultPingTimeout
	}
	return c.options.PingTimeout
}

func (c persistenceConfig) GetOtelIdentifier() string { return "go-clientkit" }

// Store bundles the persistence client with the state store built on it.
type Store struct {
	client *persistence.Client
	state  *RateLimitStateStore
	cached *CachedRateLimitStateStore
}

// Open connects to the database, creates the state table and returns a
// ready store.
func Open(ctx context.Context, opts Options) (*Store, error) {
	opts.Driver = normalizeDriver(opts.Driver)
	dialect, err := dialectFor(opts.Driver)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(opts.DSN) == "" {
		return nil, fmt.Errorf("sqlstore: dsn is required")
	}

	sqlDB, err := sql.Open(opts.Driver, opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open database: %w", err)
	}
	if opts.Driver == DriverSQLite {
		sqlDB.SetMaxOpenConns(1)
	}
	client, err := persistence.New(persistenceConfig{options: opts}, sqlDB, dialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("sqlstore: new persistence client: %w", err)
	}

	store, err := NewStoreFromClient(ctx, client)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	if opts.Cache != nil {
		cacheService, err := repositorycache.NewCacheService(*opts.Cache)
		if err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("sqlstore: new cache service: %w", err)
		}
		cached, err := NewCachedRateLimitStateStore(store.state, cacheService)
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		store.cached = cached
	}
	return store, nil
}

// NewStoreFromClient wires the state store onto an existing persistence
// client or bun database.
func NewStoreFromClient(ctx context.Context, candidate any) (*Store, error) {
	db, err := resolveBunDB(candidate)
	if err != nil {
		return nil, err
	}
	if err := EnsureSchema(ctx, db); err != nil {
		return nil, err
	}
	state, err := NewRateLimitStateStore(db)
	if err != nil {
		return nil, err
	}
	client, _ := candidate.(*persistence.Client)
	return &Store{client: client, state: state}, nil
}

// StateStore returns the cached store when caching is enabled.
func (s *Store) StateStore() ratelimit.StateStore {
	if s.cached != nil {
		return s.cached
	}
	return s.state
}

func (s *Store) DB() *bun.DB {
	if s == nil || s.state == nil {
		return nil
	}
	return s.state.db
}

func (s *Store) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func normalizeDriver(driver string) string {
	switch driver = strings.TrimSpace(strings.ToLower(driver)); driver {
	case "sqlite":
		return DriverSQLite
	case "pg", "postgresql":
		return DriverPostgres
	default:
		return driver
	}
}

func dialectFor(driver string) (schema.Dialect, error) {
	switch driver {
	case DriverSQLite:
		return sqlitedialect.New(), nil
	case DriverPostgres:
		return pgdialect.New(), nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported driver %q", driver)
	}
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
