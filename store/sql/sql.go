// Package sql implements store.Store over postgres or sqlite, the way
// the teacher's stores/utxo/sql package dispatches on DSN scheme and
// embeds its schema as DDL strings executed at first open.
package sql

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	"github.com/jellydator/ttlcache/v3"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/guachain/guachain/errors"
	"github.com/guachain/guachain/store"
	"github.com/guachain/guachain/ulogger"
)

// engine identifies which SQL dialect a Store talks.
type engine int

const (
	enginePostgres engine = iota
	engineSqlite
)

// Store is a dual postgres/sqlite implementation of store.Store.
type Store struct {
	db     *sql.DB
	engine engine
	logger ulogger.Logger

	// tipCache memoizes LastBlock; invalidated by InsertBlock and
	// TruncateFrom. Grounded on GetBestBlockHeader.go's cache-then-
	// fallback pattern.
	tipCache *ttlcache.Cache[string, any]
}

const tipCacheKey = "last-block"
const tipCacheTTL = 30 * time.Second

// New opens a Store for dsn. Schemes "postgres://"/"postgresql://"
// select the postgres engine; "sqlite://" (including "sqlite://:memory:")
// selects the pure-Go sqlite driver.
func New(ctx context.Context, logger ulogger.Logger, dsn string) (*Store, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return nil, errors.New(errors.ErrInvalidArgument, "invalid store dsn %s", dsn, err)
	}

	var eng engine
	var driver, driverDSN string

	switch u.Scheme {
	case "postgres", "postgresql":
		eng = enginePostgres
		driver = "postgres"
		driverDSN = dsn
	case "sqlite":
		eng = engineSqlite
		driver = "sqlite"
		driverDSN = u.Opaque
		if driverDSN == "" {
			driverDSN = u.Host + u.Path
		}
		if driverDSN == ":memory:" || driverDSN == "" {
			driverDSN = "file::memory:?cache=shared"
		}
	default:
		return nil, errors.New(errors.ErrInvalidArgument, "unsupported store scheme %q", u.Scheme)
	}

	db, err := sql.Open(driver, driverDSN)
	if err != nil {
		return nil, errors.New(errors.ErrInvalidArgument, "cannot open store", err)
	}

	if eng == engineSqlite {
		db.SetMaxOpenConns(1)
	}

	s := &Store{
		db:       db,
		engine:   eng,
		logger:   logger,
		tipCache: ttlcache.New[string, any](ttlcache.WithTTL[string, any](tipCacheTTL)),
	}
	go s.tipCache.Start()

	if err := s.createSchema(ctx); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Store) createSchema(ctx context.Context) error {
	var ddl string
	if s.engine == enginePostgres {
		ddl = postgresSchema
	} else {
		ddl = sqliteSchema
	}

	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return errors.New(errors.ErrCorrupt, "cannot create schema", err)
	}

	return nil
}

func (s *Store) Close() error {
	s.tipCache.Stop()
	return s.db.Close()
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS blocks (
	id BIGINT PRIMARY KEY,
	timestamp BIGINT NOT NULL,
	version INT NOT NULL,
	difficulty INT NOT NULL,
	random INT NOT NULL,
	nonce BIGINT NOT NULL,
	prev_hash BYTEA NOT NULL,
	hash BYTEA NOT NULL,
	pub_key BYTEA NOT NULL,
	signature BYTEA NOT NULL,
	tx_class TEXT,
	tx_identity BYTEA,
	tx_confirmation BYTEA,
	tx_data BYTEA,
	tx_pub_key BYTEA
);
CREATE TABLE IF NOT EXISTS domains (
	id BIGINT PRIMARY KEY,
	timestamp BIGINT NOT NULL,
	identity BYTEA NOT NULL,
	confirmation BYTEA NOT NULL,
	data BYTEA NOT NULL,
	pub_key BYTEA NOT NULL
);
CREATE INDEX IF NOT EXISTS domains_identity_idx ON domains (identity);
CREATE INDEX IF NOT EXISTS domains_pub_key_idx ON domains (pub_key);
CREATE TABLE IF NOT EXISTS zones (
	id BIGINT PRIMARY KEY,
	timestamp BIGINT NOT NULL,
	identity BYTEA NOT NULL,
	confirmation BYTEA NOT NULL,
	data BYTEA NOT NULL,
	pub_key BYTEA NOT NULL
);
CREATE INDEX IF NOT EXISTS zones_identity_idx ON zones (identity);
CREATE TABLE IF NOT EXISTS options (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS blocks (
	id INTEGER PRIMARY KEY,
	timestamp INTEGER NOT NULL,
	version INTEGER NOT NULL,
	difficulty INTEGER NOT NULL,
	random INTEGER NOT NULL,
	nonce INTEGER NOT NULL,
	prev_hash BLOB NOT NULL,
	hash BLOB NOT NULL,
	pub_key BLOB NOT NULL,
	signature BLOB NOT NULL,
	tx_class TEXT,
	tx_identity BLOB,
	tx_confirmation BLOB,
	tx_data BLOB,
	tx_pub_key BLOB
);
CREATE TABLE IF NOT EXISTS domains (
	id INTEGER PRIMARY KEY,
	timestamp INTEGER NOT NULL,
	identity BLOB NOT NULL,
	confirmation BLOB NOT NULL,
	data BLOB NOT NULL,
	pub_key BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS domains_identity_idx ON domains (identity);
CREATE INDEX IF NOT EXISTS domains_pub_key_idx ON domains (pub_key);
CREATE TABLE IF NOT EXISTS zones (
	id INTEGER PRIMARY KEY,
	timestamp INTEGER NOT NULL,
	identity BLOB NOT NULL,
	confirmation BLOB NOT NULL,
	data BLOB NOT NULL,
	pub_key BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS zones_identity_idx ON zones (identity);
CREATE TABLE IF NOT EXISTS options (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// placeholder returns the positional-parameter placeholder for arg
// position i (1-based), since postgres uses $1 and sqlite uses ?.
func (s *Store) placeholder(i int) string {
	if s.engine == enginePostgres {
		return fmt.Sprintf("$%d", i)
	}
	return "?"
}

var _ store.Store = (*Store)(nil)
