// Package store defines C3's persistence contract: the Store interface
// consumed by the chain engine, independent of the underlying SQL
// engine.
package store

import (
	"context"

	"github.com/guachain/guachain/chainmodel"
)

// ProjectionRow is a row of the domains or zones projection table —
// redundant with the Transaction field of the owning block, but
// separately indexed for query.
type ProjectionRow struct {
	ID           uint64 // block index
	Timestamp    int64
	Identity     []byte
	Confirmation []byte
	Data         []byte
	PubKey       []byte
}

// Store is the persistence interface the chain engine drives. All
// methods are safe to call concurrently; callers needing cross-call
// consistency serialize through the engine's own mutex.
type Store interface {
	// InsertBlock appends b to the blocks table and, if b carries a
	// transaction, inserts the matching domains/zones projection row,
	// all within a single transaction (resolving the spec's two-table
	// projection race).
	InsertBlock(ctx context.Context, b *chainmodel.Block) error

	// TruncateFrom removes every row with id >= index from blocks,
	// domains, and zones in a single transaction.
	TruncateFrom(ctx context.Context, index uint64) error

	// LastBlock returns the highest-index block, or nil if the store
	// is empty.
	LastBlock(ctx context.Context) (*chainmodel.Block, error)

	// BlockByID returns the block at index, or nil if absent.
	BlockByID(ctx context.Context, index uint64) (*chainmodel.Block, error)

	// LastPayloadBlock returns the highest-index payload block with
	// index < before, optionally filtered to a specific signer key
	// (pass nil for no filter).
	LastPayloadBlock(ctx context.Context, before uint64, key []byte) (*chainmodel.Block, error)

	// PubkeyOfIdentity returns the pub_key of the most recent row with
	// id < before matching (identity, kind), or nil if none exists.
	PubkeyOfIdentity(ctx context.Context, before uint64, identity []byte, kind chainmodel.TransactionClass) ([]byte, error)

	// LastDomainRow returns the most recent domains-table row for
	// identity, or nil if none exists.
	LastDomainRow(ctx context.Context, identity []byte) (*ProjectionRow, error)

	// DomainsByKey returns every domains-table row owned by key.
	DomainsByKey(ctx context.Context, key []byte) ([]ProjectionRow, error)

	// AllZones returns every zones-table row.
	AllZones(ctx context.Context) ([]ProjectionRow, error)

	// ZoneRowByIdentity returns the zones-table row for identity, or
	// nil if none exists.
	ZoneRowByIdentity(ctx context.Context, identity []byte) (*ProjectionRow, error)

	// ReadOptions returns the full options key/value table.
	ReadOptions(ctx context.Context) (map[string]string, error)

	// WriteOptions upserts the given key/value pairs into the options
	// table.
	WriteOptions(ctx context.Context, values map[string]string) error

	// RecentBlocks returns up to n of the most recent blocks, newest
	// first.
	RecentBlocks(ctx context.Context, n int) ([]*chainmodel.Block, error)

	// Wipe empties blocks, domains, zones, and options — used when the
	// configured origin disagrees with the stored origin (the local
	// fork was from a different genesis).
	Wipe(ctx context.Context) error

	Close() error
}
