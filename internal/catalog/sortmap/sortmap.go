// Package sortmap maintains the SortMap table every list view in the
// consumer application reads from: a string-to-(order, section, key)
// index with one row per distinct textual attribute the catalog
// surfaces.
package sortmap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"catalogbridge/internal/catalog/dbtx"
	"catalogbridge/internal/sortkey"
)

// Section returns the first-letter section code SortMap.name_section
// stores: the uppercase ASCII letter's ordinal (A=1..Z=26), or 27 for
// anything else (digits, symbols, non-ASCII, empty strings).
func Section(name string) int {
	if len(name) == 0 {
		return 27
	}
	c := name[0]
	if c >= 'a' && c <= 'z' {
		c -= 'a' - 'A'
	}
	if c >= 'A' && c <= 'Z' {
		return int(c-'A') + 1
	}
	return 27
}

// Upsert returns name's existing name_order if a row exists, otherwise
// inserts one with name_order = current max+1 read under the same
// transaction as the caller, so ordering stays dense across an
// entire merge.
func Upsert(ctx context.Context, q dbtx.Queryer, name string) (int64, error) {
	var existing int64
	err := q.QueryRowContext(ctx, `SELECT name_order FROM sort_map WHERE name = ?`, name).Scan(&existing)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("sortmap: lookup %q: %w", name, err)
	}

	var maxOrder sql.NullInt64
	if err := q.QueryRowContext(ctx, `SELECT MAX(name_order) FROM sort_map`).Scan(&maxOrder); err != nil {
		return 0, fmt.Errorf("sortmap: read max order: %w", err)
	}
	next := maxOrder.Int64 + 1

	key := sortkey.Encode(name)
	if _, err := q.ExecContext(ctx,
		`INSERT INTO sort_map (name, name_order, name_section, sort_key) VALUES (?, ?, ?, ?)`,
		name, next, Section(name), key); err != nil {
		return 0, fmt.Errorf("sortmap: insert %q: %w", name, err)
	}
	return next, nil
}
