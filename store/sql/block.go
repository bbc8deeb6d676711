package sql

import (
	"context"
	gosql "database/sql"
	"fmt"

	"github.com/guachain/guachain/chainmodel"
	"github.com/guachain/guachain/errors"
	"github.com/guachain/guachain/metrics"
)

// InsertBlock appends b and, for payload blocks, its projection row, in
// a single transaction — resolving the two-table projection race noted
// in the specification's design notes.
func (s *Store) InsertBlock(ctx context.Context, b *chainmodel.Block) error {
	timer := metrics.StartTimer("InsertBlock")
	defer timer.Observe()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		metrics.StoreOpErrors.WithLabelValues("InsertBlock").Inc()
		return errors.New(errors.ErrCorrupt, "cannot begin transaction", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var txClass, txIdentity, txConfirmation, txData, txPubKey interface{}
	if b.Transaction != nil {
		txClass = string(b.Transaction.Class)
		txIdentity = b.Transaction.Identity
		txConfirmation = b.Transaction.Confirmation
		txData = b.Transaction.Data
		txPubKey = b.Transaction.PubKey
	}

	insertBlockQ := fmt.Sprintf(`
		INSERT INTO blocks
			(id, timestamp, version, difficulty, random, nonce,
			 prev_hash, hash, pub_key, signature,
			 tx_class, tx_identity, tx_confirmation, tx_data, tx_pub_key)
		VALUES (%s,%s,%s,%s,%s,%s,%s,%s,%s,%s,%s,%s,%s,%s,%s)
	`, s.placeholder(1), s.placeholder(2), s.placeholder(3), s.placeholder(4),
		s.placeholder(5), s.placeholder(6), s.placeholder(7), s.placeholder(8),
		s.placeholder(9), s.placeholder(10), s.placeholder(11), s.placeholder(12),
		s.placeholder(13), s.placeholder(14), s.placeholder(15))

	if _, err := tx.ExecContext(ctx, insertBlockQ,
		b.Index, b.Timestamp, b.Version, b.Difficulty, b.Random, b.Nonce,
		b.PrevBlockHash, b.Hash, b.PubKey, b.Signature,
		txClass, txIdentity, txConfirmation, txData, txPubKey,
	); err != nil {
		metrics.StoreOpErrors.WithLabelValues("InsertBlock").Inc()
		return errors.New(errors.ErrConflict, "cannot insert block %d", b.Index, err)
	}

	if b.Transaction != nil {
		projTable := "domains"
		if b.Transaction.Class == chainmodel.ClassZone {
			projTable = "zones"
		}

		insertProjQ := fmt.Sprintf(`
			INSERT INTO %s (id, timestamp, identity, confirmation, data, pub_key)
			VALUES (%s,%s,%s,%s,%s,%s)
		`, projTable, s.placeholder(1), s.placeholder(2), s.placeholder(3),
			s.placeholder(4), s.placeholder(5), s.placeholder(6))

		if _, err := tx.ExecContext(ctx, insertProjQ,
			b.Index, b.Timestamp, b.Transaction.Identity, b.Transaction.Confirmation,
			b.Transaction.Data, b.Transaction.PubKey,
		); err != nil {
			metrics.StoreOpErrors.WithLabelValues("InsertBlock").Inc()
			return errors.New(errors.ErrConflict, "cannot insert %s projection row for block %d", projTable, b.Index, err)
		}
	}

	if err := tx.Commit(); err != nil {
		metrics.StoreOpErrors.WithLabelValues("InsertBlock").Inc()
		return errors.New(errors.ErrCorrupt, "cannot commit block %d", b.Index, err)
	}

	s.tipCache.Delete(tipCacheKey)

	return nil
}

// TruncateFrom removes every row with id >= index from blocks, domains,
// and zones in a single transaction — resolving the three-DELETE race
// noted in the specification's design notes.
func (s *Store) TruncateFrom(ctx context.Context, index uint64) error {
	timer := metrics.StartTimer("TruncateFrom")
	defer timer.Observe()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.New(errors.ErrCorrupt, "cannot begin transaction", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, table := range []string{"blocks", "domains", "zones"} {
		q := fmt.Sprintf("DELETE FROM %s WHERE id >= %s", table, s.placeholder(1))
		if _, err := tx.ExecContext(ctx, q, index); err != nil {
			return errors.New(errors.ErrCorrupt, "cannot truncate %s from %d", table, index, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.New(errors.ErrCorrupt, "cannot commit truncate from %d", index, err)
	}

	s.tipCache.Delete(tipCacheKey)

	return nil
}

const blockColumns = `
	id, timestamp, version, difficulty, random, nonce,
	prev_hash, hash, pub_key, signature,
	tx_class, tx_identity, tx_confirmation, tx_data, tx_pub_key
`

func scanBlock(row interface{ Scan(...interface{}) error }) (*chainmodel.Block, error) {
	b := &chainmodel.Block{}
	var txClass gosql.NullString
	var txIdentity, txConfirmation, txData, txPubKey []byte

	if err := row.Scan(
		&b.Index, &b.Timestamp, &b.Version, &b.Difficulty, &b.Random, &b.Nonce,
		&b.PrevBlockHash, &b.Hash, &b.PubKey, &b.Signature,
		&txClass, &txIdentity, &txConfirmation, &txData, &txPubKey,
	); err != nil {
		return nil, err
	}

	if txClass.Valid {
		b.Transaction = &chainmodel.Transaction{
			Class:        chainmodel.TransactionClass(txClass.String),
			Identity:     txIdentity,
			Confirmation: txConfirmation,
			Data:         txData,
			PubKey:       txPubKey,
		}
	}

	return b, nil
}

// LastBlock returns the highest-index block, consulting the tip cache
// first the way GetBestBlockHeader.go does.
func (s *Store) LastBlock(ctx context.Context) (*chainmodel.Block, error) {
	if item := s.tipCache.Get(tipCacheKey); item != nil {
		if b, ok := item.Value().(*chainmodel.Block); ok {
			return b, nil
		}
		if item.Value() == nil {
			return nil, nil
		}
	}

	q := fmt.Sprintf("SELECT %s FROM blocks ORDER BY id DESC LIMIT 1", blockColumns)
	row := s.db.QueryRowContext(ctx, q)
	b, err := scanBlock(row)
	if err != nil {
		if err == gosql.ErrNoRows {
			s.tipCache.Set(tipCacheKey, (*chainmodel.Block)(nil), tipCacheTTL)
			return nil, nil
		}
		return nil, errors.New(errors.ErrCorrupt, "cannot read last block", err)
	}

	s.tipCache.Set(tipCacheKey, b, tipCacheTTL)
	return b, nil
}

// BlockByID returns the block at index, or nil if absent.
func (s *Store) BlockByID(ctx context.Context, index uint64) (*chainmodel.Block, error) {
	q := fmt.Sprintf("SELECT %s FROM blocks WHERE id = %s", blockColumns, s.placeholder(1))
	row := s.db.QueryRowContext(ctx, q, index)
	b, err := scanBlock(row)
	if err != nil {
		if err == gosql.ErrNoRows {
			return nil, nil
		}
		return nil, errors.New(errors.ErrCorrupt, "cannot read block %d", index, err)
	}
	return b, nil
}

// LastPayloadBlock returns the highest-index payload block with
// index < before, optionally restricted to a specific signer key.
func (s *Store) LastPayloadBlock(ctx context.Context, before uint64, key []byte) (*chainmodel.Block, error) {
	var q string
	var args []interface{}

	if key != nil {
		q = fmt.Sprintf(`
			SELECT %s FROM blocks
			WHERE id < %s AND tx_class IS NOT NULL AND pub_key = %s
			ORDER BY id DESC LIMIT 1
		`, blockColumns, s.placeholder(1), s.placeholder(2))
		args = []interface{}{before, key}
	} else {
		q = fmt.Sprintf(`
			SELECT %s FROM blocks
			WHERE id < %s AND tx_class IS NOT NULL
			ORDER BY id DESC LIMIT 1
		`, blockColumns, s.placeholder(1))
		args = []interface{}{before}
	}

	row := s.db.QueryRowContext(ctx, q, args...)
	b, err := scanBlock(row)
	if err != nil {
		if err == gosql.ErrNoRows {
			return nil, nil
		}
		return nil, errors.New(errors.ErrCorrupt, "cannot read last payload block", err)
	}
	return b, nil
}

// RecentBlocks returns up to n of the most recent blocks, newest first.
func (s *Store) RecentBlocks(ctx context.Context, n int) ([]*chainmodel.Block, error) {
	q := fmt.Sprintf("SELECT %s FROM blocks ORDER BY id DESC LIMIT %s", blockColumns, s.placeholder(1))
	rows, err := s.db.QueryContext(ctx, q, n)
	if err != nil {
		return nil, errors.New(errors.ErrCorrupt, "cannot read recent blocks", err)
	}
	defer rows.Close()

	var out []*chainmodel.Block
	for rows.Next() {
		b, err := scanBlock(rows)
		if err != nil {
			return nil, errors.New(errors.ErrCorrupt, "cannot scan recent block", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// Wipe empties blocks, domains, zones, and options in a single
// transaction.
func (s *Store) Wipe(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.New(errors.ErrCorrupt, "cannot begin transaction", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, table := range []string{"blocks", "domains", "zones", "options"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return errors.New(errors.ErrCorrupt, "cannot wipe %s", table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.New(errors.ErrCorrupt, "cannot commit wipe", err)
	}

	s.tipCache.Delete(tipCacheKey)

	return nil
}
