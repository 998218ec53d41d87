// Package schema declares the on-device media catalog's tables, indices,
// trigger, and seed rows as data: ordered slices of DDL strings executed
// one by one against the database rather than an ORM model.
package schema

import (
	"context"
	"database/sql"
	"fmt"
)

// UserVersion is the sqlite user_version pragma the consumer application
// expects.
const UserVersion = 2320030

// Media-kind tags.
const (
	MediaKindSong = 8
	MediaKindTone = 16384
)

// Base-location codes.
const (
	BaseLocationNone  = 0
	BaseLocationMusic = 3840
	BaseLocationTones = 3900
)

// Artwork linkage entity types: item/album/artist triple, plus entity-type
// 4 for the optional extra compilation-album row.
const (
	ArtworkEntityItem       = 0
	ArtworkEntityAlbum      = 1
	ArtworkEntityArtist     = 2
	ArtworkEntityAlbumExtra = 4
)

// ArtworkSourceType marks an artwork row as sourced from a locally
// provided image rather than a downloaded one.
const ArtworkSourceType = 1

// LocationKindCloud marks an ItemExtra row as cloud-origin, suppressing
// strict local-file signature verification.
const LocationKindCloud = 42

// tableStatements creates every catalog table, in dependency order so
// foreign keys always reference an already-declared table.
var tableStatements = []string{
	`CREATE TABLE base_location (
		base_location_id INTEGER PRIMARY KEY,
		path TEXT NOT NULL
	)`,

	`CREATE TABLE sort_map (
		name TEXT PRIMARY KEY,
		name_order INTEGER NOT NULL UNIQUE,
		name_section INTEGER NOT NULL,
		sort_key BLOB NOT NULL
	)`,

	`CREATE TABLE artist (
		artist_pid INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		sort_name TEXT NOT NULL,
		grouping_key BLOB NOT NULL,
		representative_item_pid INTEGER NOT NULL,
		sync_id INTEGER NOT NULL DEFAULT 0,
		keep_local INTEGER NOT NULL DEFAULT 0
	)`,

	`CREATE TABLE album_artist (
		album_artist_pid INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		sort_name TEXT NOT NULL,
		grouping_key BLOB NOT NULL,
		representative_item_pid INTEGER NOT NULL,
		sync_id INTEGER NOT NULL DEFAULT 0,
		keep_local INTEGER NOT NULL DEFAULT 0,
		name_order INTEGER NOT NULL,
		sort_order INTEGER NOT NULL,
		sort_order_section INTEGER NOT NULL
	)`,

	`CREATE TABLE genre (
		genre_pid INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		sort_name TEXT NOT NULL,
		grouping_key BLOB NOT NULL,
		representative_item_pid INTEGER NOT NULL,
		sync_id INTEGER NOT NULL DEFAULT 0,
		keep_local INTEGER NOT NULL DEFAULT 0
	)`,

	`CREATE TABLE album (
		album_pid INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		sort_name TEXT NOT NULL,
		grouping_key BLOB NOT NULL,
		representative_item_pid INTEGER NOT NULL,
		sync_id INTEGER NOT NULL DEFAULT 0,
		keep_local INTEGER NOT NULL DEFAULT 0,
		album_artist_pid INTEGER NOT NULL DEFAULT 0,
		year INTEGER
	)`,

	`CREATE TABLE item (
		item_pid INTEGER PRIMARY KEY,
		media_kind INTEGER NOT NULL,
		artist_pid INTEGER NOT NULL DEFAULT 0,
		album_pid INTEGER NOT NULL DEFAULT 0,
		album_artist_pid INTEGER NOT NULL DEFAULT 0,
		genre_pid INTEGER NOT NULL DEFAULT 0,
		title_order INTEGER NOT NULL DEFAULT 0,
		item_artist_order INTEGER NOT NULL DEFAULT 0,
		album_order INTEGER NOT NULL DEFAULT 0,
		disc_number INTEGER NOT NULL DEFAULT 1,
		disc_count INTEGER NOT NULL DEFAULT 1,
		track_number INTEGER NOT NULL DEFAULT 1,
		track_count INTEGER NOT NULL DEFAULT 1,
		base_location_id INTEGER NOT NULL DEFAULT 0,
		in_library INTEGER NOT NULL DEFAULT 0,
		is_compilation INTEGER NOT NULL DEFAULT 0,
		date_added INTEGER NOT NULL,
		date_downloaded INTEGER,
		FOREIGN KEY (artist_pid) REFERENCES artist(artist_pid),
		FOREIGN KEY (album_pid) REFERENCES album(album_pid),
		FOREIGN KEY (album_artist_pid) REFERENCES album_artist(album_artist_pid),
		FOREIGN KEY (genre_pid) REFERENCES genre(genre_pid),
		FOREIGN KEY (base_location_id) REFERENCES base_location(base_location_id)
	)`,

	`CREATE TABLE item_extra (
		item_pid INTEGER PRIMARY KEY,
		title TEXT NOT NULL,
		location TEXT NOT NULL,
		file_size INTEGER NOT NULL DEFAULT 0,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		year INTEGER,
		location_kind INTEGER NOT NULL DEFAULT 0,
		date_modified INTEGER NOT NULL,
		integrity TEXT NOT NULL,
		FOREIGN KEY (item_pid) REFERENCES item(item_pid) ON DELETE CASCADE
	)`,

	`CREATE TABLE item_playback (
		item_pid INTEGER PRIMARY KEY,
		audio_format INTEGER NOT NULL,
		sample_rate INTEGER NOT NULL DEFAULT 0,
		bit_rate INTEGER NOT NULL DEFAULT 0,
		FOREIGN KEY (item_pid) REFERENCES item(item_pid) ON DELETE CASCADE
	)`,

	`CREATE TABLE item_store (
		item_pid INTEGER PRIMARY KEY,
		cloud_id INTEGER NOT NULL DEFAULT 0,
		purchase_id INTEGER NOT NULL DEFAULT 0,
		sync_id INTEGER NOT NULL DEFAULT 0,
		sync_in_my_library INTEGER NOT NULL DEFAULT 0,
		home_sharing_id INTEGER NOT NULL DEFAULT 0,
		saga_id INTEGER NOT NULL DEFAULT 0,
		cloud_in_my_library INTEGER NOT NULL DEFAULT 0,
		purchase_history_id INTEGER NOT NULL DEFAULT 0,
		ota_purchased INTEGER NOT NULL DEFAULT 0,
		FOREIGN KEY (item_pid) REFERENCES item(item_pid) ON DELETE CASCADE
	)`,

	`CREATE TABLE item_search (
		item_pid INTEGER PRIMARY KEY,
		title_order INTEGER NOT NULL DEFAULT 0,
		artist_order INTEGER NOT NULL DEFAULT 0,
		album_order INTEGER NOT NULL DEFAULT 0,
		genre_order INTEGER NOT NULL DEFAULT 0,
		album_artist_order INTEGER NOT NULL DEFAULT 0,
		FOREIGN KEY (item_pid) REFERENCES item(item_pid) ON DELETE CASCADE
	)`,

	`CREATE TABLE item_stats (
		item_pid INTEGER PRIMARY KEY,
		play_count INTEGER NOT NULL DEFAULT 0,
		skip_count INTEGER NOT NULL DEFAULT 0,
		last_played_at INTEGER,
		FOREIGN KEY (item_pid) REFERENCES item(item_pid) ON DELETE CASCADE
	)`,

	`CREATE TABLE item_video (
		item_pid INTEGER PRIMARY KEY,
		has_video INTEGER NOT NULL DEFAULT 0,
		FOREIGN KEY (item_pid) REFERENCES item(item_pid) ON DELETE CASCADE
	)`,

	`CREATE TABLE lyrics (
		item_pid INTEGER PRIMARY KEY,
		text TEXT NOT NULL DEFAULT '',
		FOREIGN KEY (item_pid) REFERENCES item(item_pid) ON DELETE CASCADE
	)`,

	`CREATE TABLE chapter (
		item_pid INTEGER NOT NULL,
		position INTEGER NOT NULL DEFAULT 0,
		title TEXT,
		start_ms INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (item_pid, position),
		FOREIGN KEY (item_pid) REFERENCES item(item_pid) ON DELETE CASCADE
	)`,

	`CREATE TABLE artwork (
		artwork_pid INTEGER PRIMARY KEY,
		token TEXT NOT NULL,
		relative_path TEXT NOT NULL,
		source_type INTEGER NOT NULL DEFAULT 1
	)`,

	`CREATE TABLE artwork_token (
		artwork_pid INTEGER NOT NULL,
		entity_pid INTEGER NOT NULL,
		entity_type INTEGER NOT NULL,
		PRIMARY KEY (entity_pid, entity_type),
		FOREIGN KEY (artwork_pid) REFERENCES artwork(artwork_pid) ON DELETE CASCADE
	)`,

	`CREATE TABLE best_artwork_token (
		entity_pid INTEGER NOT NULL,
		entity_type INTEGER NOT NULL,
		artwork_pid INTEGER NOT NULL,
		PRIMARY KEY (entity_pid, entity_type),
		FOREIGN KEY (artwork_pid) REFERENCES artwork(artwork_pid) ON DELETE CASCADE
	)`,

	`CREATE TABLE container (
		container_pid INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		name_order INTEGER NOT NULL DEFAULT 0,
		media_kind INTEGER NOT NULL DEFAULT 8,
		owner INTEGER NOT NULL DEFAULT 1,
		editable INTEGER NOT NULL DEFAULT 1,
		distinguished_kind INTEGER NOT NULL DEFAULT 0,
		date_added INTEGER NOT NULL,
		date_modified INTEGER NOT NULL
	)`,

	`CREATE TABLE container_item (
		container_pid INTEGER NOT NULL,
		item_pid INTEGER NOT NULL,
		position INTEGER NOT NULL,
		uuid TEXT NOT NULL,
		PRIMARY KEY (container_pid, item_pid),
		FOREIGN KEY (container_pid) REFERENCES container(container_pid) ON DELETE CASCADE,
		FOREIGN KEY (item_pid) REFERENCES item(item_pid) ON DELETE CASCADE
	)`,

	`CREATE TABLE database_info (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		schema_version INTEGER NOT NULL
	)`,

	`CREATE TABLE genius_config (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		config TEXT NOT NULL DEFAULT ''
	)`,

	`CREATE TABLE property (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
}

// indexStatements are the composite/browse indices list views query by,
// plus foreign-key and SortMap(name) lookups.
var indexStatements = []string{
	`CREATE INDEX idx_item_artist_order ON item(item_artist_order, artist_pid)`,
	`CREATE INDEX idx_album_browse ON item(album_order, album_pid, disc_number, track_number)`,
	`CREATE INDEX idx_title_artist_order ON item(title_order, item_artist_order)`,
	`CREATE INDEX idx_item_album_pid ON item(album_pid)`,
	`CREATE INDEX idx_item_artist_pid ON item(artist_pid)`,
	`CREATE INDEX idx_item_album_artist_pid ON item(album_artist_pid)`,
	`CREATE INDEX idx_item_genre_pid ON item(genre_pid)`,
	`CREATE INDEX idx_item_base_location ON item(base_location_id)`,
	`CREATE INDEX idx_sort_map_name ON sort_map(name)`,
	`CREATE INDEX idx_container_item_position ON container_item(container_pid, position)`,
}

// triggerStatement is the single required trigger: after an
// item_store insert, set item.in_library = 1 iff any sharing/sync/purchase
// signal is non-zero.
const triggerStatement = `
CREATE TRIGGER trg_item_store_in_library
AFTER INSERT ON item_store
BEGIN
	UPDATE item SET in_library = 1
	WHERE item_pid = NEW.item_pid
	AND (
		NEW.home_sharing_id != 0
		OR (NEW.saga_id != 0 AND NEW.cloud_in_my_library != 0)
		OR NEW.purchase_history_id != 0
		OR (NEW.sync_id != 0 AND NEW.sync_in_my_library != 0)
		OR NEW.ota_purchased != 0
	);
END`

// pragmaStatements set the catalog's on-disk format: DELETE journal
// mode (no persistent WAL file), UTF-8 text encoding, and the fixed
// user_version the consumer application checks.
var pragmaStatements = []string{
	`PRAGMA journal_mode = DELETE`,
	`PRAGMA encoding = "UTF-8"`,
	fmt.Sprintf(`PRAGMA user_version = %d`, UserVersion),
}

// Create builds a fresh catalog against an already-open *sql.DB: pragmas,
// tables, indices, and the trigger, in that order. Each statement runs on
// its own through db.ExecContext; no transaction wraps them.
func Create(ctx context.Context, db *sql.DB) error {
	for _, stmt := range pragmaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema: pragma %q: %w", stmt, err)
		}
	}
	for _, stmt := range tableStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema: create table: %w", err)
		}
	}
	for _, stmt := range indexStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema: create index: %w", err)
		}
	}
	if _, err := db.ExecContext(ctx, triggerStatement); err != nil {
		return fmt.Errorf("schema: create trigger: %w", err)
	}
	return nil
}

// Seed inserts the fixed base-location rows and the miscellaneous seed
// rows a fresh catalog needs: database_info, genius_config, the "Library"
// seed container, and one ordering-language property row.
func Seed(ctx context.Context, db *sql.DB, now int64) error {
	baseLocations := []struct {
		id   int
		path string
	}{
		{BaseLocationNone, ""},
		{BaseLocationMusic, "iTunes_Control/Music/F00"},
		{BaseLocationTones, "iTunes_Control/Ringtones"},
	}
	for _, bl := range baseLocations {
		if _, err := db.ExecContext(ctx,
			`INSERT INTO base_location (base_location_id, path) VALUES (?, ?)`,
			bl.id, bl.path); err != nil {
			return fmt.Errorf("schema: seed base_location: %w", err)
		}
	}

	if _, err := db.ExecContext(ctx,
		`INSERT INTO database_info (id, schema_version) VALUES (1, ?)`, UserVersion); err != nil {
		return fmt.Errorf("schema: seed database_info: %w", err)
	}

	if _, err := db.ExecContext(ctx,
		`INSERT INTO genius_config (id, config) VALUES (1, '')`); err != nil {
		return fmt.Errorf("schema: seed genius_config: %w", err)
	}

	if _, err := db.ExecContext(ctx,
		`INSERT INTO container (container_pid, name, name_order, media_kind, owner, editable, distinguished_kind, date_added, date_modified)
		 VALUES (1, 'Library', 0, ?, 1, 0, 1, ?, ?)`, MediaKindSong, now, now); err != nil {
		return fmt.Errorf("schema: seed container: %w", err)
	}

	if _, err := db.ExecContext(ctx,
		`INSERT INTO property (key, value) VALUES ('ordering_language', 'en')`); err != nil {
		return fmt.Errorf("schema: seed property: %w", err)
	}

	return nil
}

// IsValidCatalogSize reports whether a downloaded catalog's byte length
// clears the "large enough to be valid" threshold; a download at or below
// it is treated as if the device had no catalog.
func IsValidCatalogSize(byteLen int) bool {
	return byteLen > 10_000
}
