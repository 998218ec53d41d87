// Package ghost deletes catalog rows whose backing audio file is no
// longer present on the device. Entity rows are left untouched;
// an artist or album with zero items is harmless.
package ghost

import (
	"context"
	"fmt"
	"path/filepath"

	"catalogbridge/internal/catalog/dbtx"
	"catalogbridge/internal/catalog/schema"
)

// Reconcile deletes every music-folder item whose ItemExtra.location
// basename is not present in onDevice, across all per-item tables, and
// returns how many items were removed.
func Reconcile(ctx context.Context, q dbtx.Queryer, onDevice []string) (int, error) {
	present := make(map[string]bool, len(onDevice))
	for _, name := range onDevice {
		present[filepath.Base(name)] = true
	}

	rows, err := q.QueryContext(ctx, `
		SELECT i.item_pid, x.location
		FROM item i
		JOIN item_extra x ON x.item_pid = i.item_pid
		WHERE i.base_location_id = ?`, schema.BaseLocationMusic)
	if err != nil {
		return 0, fmt.Errorf("ghost: list music items: %w", err)
	}

	var orphans []int64
	for rows.Next() {
		var pid int64
		var location string
		if err := rows.Scan(&pid, &location); err != nil {
			rows.Close()
			return 0, fmt.Errorf("ghost: scan item: %w", err)
		}
		if !present[filepath.Base(location)] {
			orphans = append(orphans, pid)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	tables := []string{
		"item_extra", "item_store", "item_stats", "item_playback",
		"item_search", "item_video", "lyrics", "chapter", "item",
	}
	for _, pid := range orphans {
		for _, table := range tables {
			if _, err := q.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE item_pid = ?`, table), pid); err != nil {
				return 0, fmt.Errorf("ghost: delete %s for item %d: %w", table, pid, err)
			}
		}
	}

	return len(orphans), nil
}
