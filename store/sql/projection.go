package sql

import (
	"context"
	gosql "database/sql"
	"fmt"

	"github.com/guachain/guachain/chainmodel"
	"github.com/guachain/guachain/errors"
	"github.com/guachain/guachain/store"
)

// PubkeyOfIdentity returns the pub_key of the most recent row with
// id < before matching (identity, kind), or nil if none exists.
func (s *Store) PubkeyOfIdentity(ctx context.Context, before uint64, identity []byte, kind chainmodel.TransactionClass) ([]byte, error) {
	table := "domains"
	if kind == chainmodel.ClassZone {
		table = "zones"
	}

	q := fmt.Sprintf(`
		SELECT pub_key FROM %s
		WHERE id < %s AND identity = %s
		ORDER BY id DESC LIMIT 1
	`, table, s.placeholder(1), s.placeholder(2))

	var pubKey []byte
	if err := s.db.QueryRowContext(ctx, q, before, identity).Scan(&pubKey); err != nil {
		if err == gosql.ErrNoRows {
			return nil, nil
		}
		return nil, errors.New(errors.ErrCorrupt, "cannot read pubkey of identity", err)
	}
	return pubKey, nil
}

func scanProjectionRow(row interface{ Scan(...interface{}) error }) (*store.ProjectionRow, error) {
	r := &store.ProjectionRow{}
	if err := row.Scan(&r.ID, &r.Timestamp, &r.Identity, &r.Confirmation, &r.Data, &r.PubKey); err != nil {
		return nil, err
	}
	return r, nil
}

const projectionColumns = "id, timestamp, identity, confirmation, data, pub_key"

// LastDomainRow returns the most recent domains-table row for identity.
func (s *Store) LastDomainRow(ctx context.Context, identity []byte) (*store.ProjectionRow, error) {
	q := fmt.Sprintf(`
		SELECT %s FROM domains WHERE identity = %s ORDER BY id DESC LIMIT 1
	`, projectionColumns, s.placeholder(1))

	row := s.db.QueryRowContext(ctx, q, identity)
	r, err := scanProjectionRow(row)
	if err != nil {
		if err == gosql.ErrNoRows {
			return nil, nil
		}
		return nil, errors.New(errors.ErrCorrupt, "cannot read last domain row", err)
	}
	return r, nil
}

// DomainsByKey returns every domains-table row owned by key.
func (s *Store) DomainsByKey(ctx context.Context, key []byte) ([]store.ProjectionRow, error) {
	q := fmt.Sprintf(`
		SELECT %s FROM domains WHERE pub_key = %s ORDER BY id ASC
	`, projectionColumns, s.placeholder(1))

	rows, err := s.db.QueryContext(ctx, q, key)
	if err != nil {
		return nil, errors.New(errors.ErrCorrupt, "cannot read domains by key", err)
	}
	defer rows.Close()

	var out []store.ProjectionRow
	for rows.Next() {
		r, err := scanProjectionRow(rows)
		if err != nil {
			return nil, errors.New(errors.ErrCorrupt, "cannot scan domain row", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// AllZones returns every zones-table row.
func (s *Store) AllZones(ctx context.Context) ([]store.ProjectionRow, error) {
	q := fmt.Sprintf("SELECT %s FROM zones ORDER BY id ASC", projectionColumns)

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, errors.New(errors.ErrCorrupt, "cannot read zones", err)
	}
	defer rows.Close()

	var out []store.ProjectionRow
	for rows.Next() {
		r, err := scanProjectionRow(rows)
		if err != nil {
			return nil, errors.New(errors.ErrCorrupt, "cannot scan zone row", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// ZoneRowByIdentity returns the zones-table row for identity, or nil.
func (s *Store) ZoneRowByIdentity(ctx context.Context, identity []byte) (*store.ProjectionRow, error) {
	q := fmt.Sprintf(`
		SELECT %s FROM zones WHERE identity = %s ORDER BY id DESC LIMIT 1
	`, projectionColumns, s.placeholder(1))

	row := s.db.QueryRowContext(ctx, q, identity)
	r, err := scanProjectionRow(row)
	if err != nil {
		if err == gosql.ErrNoRows {
			return nil, nil
		}
		return nil, errors.New(errors.ErrCorrupt, "cannot read zone row", err)
	}
	return r, nil
}
