// Package ringtone specializes the item inserter for tone files:
// fixed media-kind and base-location, forced AAC audio format, no entity
// linkage, and no artwork.
package ringtone

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	"catalogbridge/internal/catalog/dbtx"
	"catalogbridge/internal/catalog/inserter"
	"catalogbridge/internal/catalog/schema"
	"catalogbridge/internal/catalog/sortmap"
	"catalogbridge/internal/ids"
	"catalogbridge/internal/models"
)

// DefaultDurationMS is substituted when a tone's duration could not be
// determined.
const DefaultDurationMS = 30_000

// TonesBasePath prefixes the remote filename when computing a ringtone's
// integrity blob.
const TonesBasePath = "iTunes_Control/Ringtones/"

// Inserter writes ringtone item rows. It has no resolver dependency: tone
// items carry no artist/album/genre linkage.
type Inserter struct {
	alloc *ids.Allocator
}

// New returns a ringtone Inserter backed by alloc.
func New(alloc *ids.Allocator) *Inserter {
	return &Inserter{alloc: alloc}
}

// Insert writes one ringtone's full row set and returns its item
// identifier for the caller's Ringtones.plist update.
func (ins *Inserter) Insert(ctx context.Context, q dbtx.Queryer, tone models.RingtoneItem, now int64) (int64, error) {
	title := strings.TrimSpace(tone.Title)
	if title == "" {
		title = tone.RemoteFilename
	}
	duration := tone.DurationMS
	if duration <= 0 {
		duration = DefaultDurationMS
	}

	itemPID := ins.alloc.NextID()

	titleOrder, err := sortmap.Upsert(ctx, q, title)
	if err != nil {
		return 0, fmt.Errorf("ringtone: sortmap title: %w", err)
	}

	if _, err := q.ExecContext(ctx, `
		INSERT INTO item (
			item_pid, media_kind, base_location_id, title_order, date_added
		) VALUES (?, ?, ?, ?, ?)`,
		itemPID, schema.MediaKindTone, schema.BaseLocationTones, titleOrder, now); err != nil {
		return 0, fmt.Errorf("ringtone: insert item: %w", err)
	}

	// Tones encode path-then-filename, the reverse of a song's
	// filename-then-path order (inserter.Integrity); hex(TonesBasePath ||
	// filename), not hex(filename || TonesBasePath).
	integrity := hex.EncodeToString([]byte(TonesBasePath + tone.RemoteFilename))
	if _, err := q.ExecContext(ctx, `
		INSERT INTO item_extra (item_pid, title, location, file_size, duration_ms, location_kind, date_modified, integrity)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		itemPID, title, tone.RemoteFilename, tone.FileSize, duration, schema.LocationKindCloud, now, integrity); err != nil {
		return 0, fmt.Errorf("ringtone: insert item_extra: %w", err)
	}

	if _, err := q.ExecContext(ctx,
		`INSERT INTO item_playback (item_pid, audio_format) VALUES (?, ?)`,
		itemPID, inserter.AudioFormatAAC); err != nil {
		return 0, fmt.Errorf("ringtone: insert item_playback: %w", err)
	}

	syncID := ins.alloc.NextID()
	if _, err := q.ExecContext(ctx,
		`INSERT INTO item_store (item_pid, sync_id, sync_in_my_library) VALUES (?, ?, 1)`,
		itemPID, syncID); err != nil {
		return 0, fmt.Errorf("ringtone: insert item_store: %w", err)
	}

	if _, err := q.ExecContext(ctx, `INSERT INTO item_stats (item_pid) VALUES (?)`, itemPID); err != nil {
		return 0, fmt.Errorf("ringtone: insert item_stats: %w", err)
	}
	if _, err := q.ExecContext(ctx, `INSERT INTO item_video (item_pid, has_video) VALUES (?, 0)`, itemPID); err != nil {
		return 0, fmt.Errorf("ringtone: insert item_video: %w", err)
	}
	if _, err := q.ExecContext(ctx, `
		INSERT INTO item_search (item_pid, title_order) VALUES (?, ?)`,
		itemPID, titleOrder); err != nil {
		return 0, fmt.Errorf("ringtone: insert item_search: %w", err)
	}
	if _, err := q.ExecContext(ctx, `INSERT INTO lyrics (item_pid, text) VALUES (?, '')`, itemPID); err != nil {
		return 0, fmt.Errorf("ringtone: insert lyrics: %w", err)
	}

	return itemPID, nil
}
