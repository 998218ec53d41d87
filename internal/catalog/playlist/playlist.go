// Package playlist creates containers and appends ordered membership rows
// for user-defined playlists.
package playlist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"catalogbridge/internal/catalog/dbtx"
	"catalogbridge/internal/catalog/schema"
	"catalogbridge/internal/catalog/sortmap"
	"catalogbridge/internal/ids"
)

// Manager creates and appends to playlists, drawing identifiers and
// textual uuids from alloc.
type Manager struct {
	alloc *ids.Allocator
}

// New returns a Manager backed by alloc.
func New(alloc *ids.Allocator) *Manager {
	return &Manager{alloc: alloc}
}

// Summary describes a container for enumeration.
type Summary struct {
	Name         string
	ContainerPID int64
}

// Create allocates a new container named name and appends itemPIDs as
// ContainerItem rows starting at position 0, each with a fresh uuid.
func (m *Manager) Create(ctx context.Context, q dbtx.Queryer, name string, itemPIDs []int64, now int64) (int64, error) {
	containerPID := m.alloc.NextID()
	nameOrder, err := sortmap.Upsert(ctx, q, name)
	if err != nil {
		return 0, fmt.Errorf("playlist: sortmap for container name: %w", err)
	}

	if _, err := q.ExecContext(ctx, `
		INSERT INTO container (
			container_pid, name, name_order, media_kind, owner, editable,
			distinguished_kind, date_added, date_modified
		) VALUES (?, ?, ?, ?, 1, 1, 0, ?, ?)`,
		containerPID, name, nameOrder, schema.MediaKindSong, now, now); err != nil {
		return 0, fmt.Errorf("playlist: insert container: %w", err)
	}

	if err := m.appendAt(ctx, q, containerPID, itemPIDs, 0); err != nil {
		return 0, err
	}
	return containerPID, nil
}

// Append inserts itemPIDs into an existing container starting immediately
// after the current maximum position (absence/NULL treated as -1, so the
// first appended row lands at position 0).
func (m *Manager) Append(ctx context.Context, q dbtx.Queryer, containerPID int64, itemPIDs []int64) error {
	var maxPosition sql.NullInt64
	err := q.QueryRowContext(ctx,
		`SELECT MAX(position) FROM container_item WHERE container_pid = ?`, containerPID).Scan(&maxPosition)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("playlist: read max position: %w", err)
	}

	start := int64(0)
	if maxPosition.Valid {
		start = maxPosition.Int64 + 1
	}
	return m.appendAt(ctx, q, containerPID, itemPIDs, start)
}

func (m *Manager) appendAt(ctx context.Context, q dbtx.Queryer, containerPID int64, itemPIDs []int64, start int64) error {
	for i, itemPID := range itemPIDs {
		if _, err := q.ExecContext(ctx, `
			INSERT INTO container_item (container_pid, item_pid, position, uuid) VALUES (?, ?, ?, ?)`,
			containerPID, itemPID, start+int64(i), m.alloc.NextUUID()); err != nil {
			return fmt.Errorf("playlist: insert container_item: %w", err)
		}
	}
	return nil
}

// List enumerates user playlists, ordered by name, restricted to audio
// containers and excluding distinguished system containers such as the
// seeded "Library".
func List(ctx context.Context, q dbtx.Queryer) ([]Summary, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT name, container_pid FROM container
		WHERE media_kind = ? AND distinguished_kind = 0
		ORDER BY name`, schema.MediaKindSong)
	if err != nil {
		return nil, fmt.Errorf("playlist: list containers: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var s Summary
		if err := rows.Scan(&s.Name, &s.ContainerPID); err != nil {
			return nil, fmt.Errorf("playlist: scan container: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
