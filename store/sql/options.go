package sql

import (
	"context"
	gosql "database/sql"
	"fmt"

	"github.com/guachain/guachain/errors"
)

// ReadOptions returns the full options key/value table.
func (s *Store) ReadOptions(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT key, value FROM options")
	if err != nil {
		return nil, errors.New(errors.ErrCorrupt, "cannot read options", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, errors.New(errors.ErrCorrupt, "cannot scan option row", err)
		}
		out[k] = v
	}
	return out, rows.Err()
}

// WriteOptions upserts each key/value pair, following State.go's
// probe-then-update-or-insert pattern (no ON CONFLICT, for sqlite/
// postgres portability without relying on a specific upsert dialect).
func (s *Store) WriteOptions(ctx context.Context, values map[string]string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.New(errors.ErrCorrupt, "cannot begin transaction", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for k, v := range values {
		var existing string
		probeQ := fmt.Sprintf("SELECT value FROM options WHERE key = %s", s.placeholder(1))
		err := tx.QueryRowContext(ctx, probeQ, k).Scan(&existing)

		switch {
		case err == nil:
			updateQ := fmt.Sprintf("UPDATE options SET value = %s WHERE key = %s", s.placeholder(1), s.placeholder(2))
			if _, err := tx.ExecContext(ctx, updateQ, v, k); err != nil {
				return errors.New(errors.ErrCorrupt, "cannot update option %s", k, err)
			}
		case err == gosql.ErrNoRows:
			insertQ := fmt.Sprintf("INSERT INTO options (key, value) VALUES (%s, %s)", s.placeholder(1), s.placeholder(2))
			if _, err := tx.ExecContext(ctx, insertQ, k, v); err != nil {
				return errors.New(errors.ErrCorrupt, "cannot insert option %s", k, err)
			}
		default:
			return errors.New(errors.ErrCorrupt, "cannot probe option %s", k, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.New(errors.ErrCorrupt, "cannot commit options write", err)
	}

	return nil
}
