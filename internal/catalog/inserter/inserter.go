// Package inserter writes the multi-table row set that represents one
// playable item, including sort-map upserts, entity resolution, and
// artwork linkage. Ringtone-specific insertion lives in
// internal/catalog/ringtone and reuses the helpers exported here.
package inserter

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"catalogbridge/internal/catalog/dbtx"
	"catalogbridge/internal/catalog/resolver"
	"catalogbridge/internal/catalog/schema"
	"catalogbridge/internal/catalog/sortmap"
	"catalogbridge/internal/ids"
	"catalogbridge/internal/models"
)

// Audio-format codes the consumer application reads from
// ItemPlayback.audio_format, derived from the file extension.
const (
	AudioFormatMP3  int64 = 301
	AudioFormatFLAC int64 = 0x664C6143
	AudioFormatAAC  int64 = 0x61616320
	AudioFormatALAC int64 = 0x616C6163
	AudioFormatWAV  int64 = 0x57415645
)

// AudioFormat derives the ItemPlayback.audio_format code from a filename
// extension (dot optional, case-insensitive). Unknown extensions default
// to the MP3 code since that is the most common container this core
// receives.
func AudioFormat(ext string) int64 {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	switch ext {
	case "flac":
		return AudioFormatFLAC
	case "m4a", "aac", "m4r":
		return AudioFormatAAC
	case "alac":
		return AudioFormatALAC
	case "wav":
		return AudioFormatWAV
	default:
		return AudioFormatMP3
	}
}

// Sanitize fills in defaults for a blank title, artist, or album: empty
// title becomes the local file's basename, empty artist becomes "Unknown
// Artist", empty album becomes "Unknown Album". The input is not mutated.
func Sanitize(item models.InputItem) models.InputItem {
	out := item
	if strings.TrimSpace(out.Title) == "" {
		out.Title = filepath.Base(out.LocalPath)
	}
	if strings.TrimSpace(out.Artist) == "" {
		out.Artist = "Unknown Artist"
	}
	if strings.TrimSpace(out.Album) == "" {
		out.Album = "Unknown Album"
	}
	return out
}

// IsUnknownPair reports whether both artist and album are the unknown
// placeholders Sanitize applies; the orchestrator skips such items
// entirely, so unrelated items that all happen to share the unknown
// artist/album pair are never merged into the same entities or artwork.
func IsUnknownPair(item models.InputItem) bool {
	return strings.EqualFold(item.Artist, "Unknown Artist") && strings.EqualFold(item.Album, "Unknown Album")
}

// ArtworkPath computes the token and relative on-device path for artwork
// attached to the trackIndex'th item processed this merge: token is "100"
// followed by the index; path is SHA1(token) hex, split into a
// two-character folder and the remaining filename.
func ArtworkPath(trackIndex int) (token, relativePath string) {
	token = "100" + strconv.Itoa(trackIndex)
	sum := sha1.Sum([]byte(token))
	hexSum := hex.EncodeToString(sum[:])
	return token, hexSum[:2] + "/" + hexSum[2:]
}

// Integrity computes the deliberately-non-signature hex blob the catalog
// stores in ItemExtra.integrity, compensated by LocationKindCloud.
func Integrity(filename, basePath string) string {
	return hex.EncodeToString([]byte(filename + basePath))
}

// Result describes what Insert wrote for one item, so the orchestrator
// knows what to upload and the caller can report counts.
type Result struct {
	ItemPID             int64
	Resurrected         bool
	ArtworkToken        string
	ArtworkRelativePath string
}

// Inserter writes item rows within one merge's worth of calls, tracking
// the running track-index counter that feeds ArtworkPath and which
// entities have already received a best-artwork-token row this merge.
// artwork_token has a PRIMARY KEY of (entity_pid, entity_type), so every
// entity kind an item can attach artwork to needs its own per-merge guard
// against a second track resolving to the same entity.
type Inserter struct {
	alloc             *ids.Allocator
	resolver          *resolver.Resolver
	trackCounter      int
	albumArtwork      map[int64]bool
	artistArtwork     map[int64]bool
	albumExtraArtwork map[int64]bool
}

// New returns an Inserter backed by alloc for identifiers and res for
// entity/resurrection resolution. Both must be fresh-per-merge so their
// internal counters and caches don't leak across unrelated merges.
func New(alloc *ids.Allocator, res *resolver.Resolver) *Inserter {
	return &Inserter{
		alloc:            alloc,
		resolver:         res,
		albumArtwork:     make(map[int64]bool),
		artistArtwork:    make(map[int64]bool),
		albumExtraArtwork: make(map[int64]bool),
	}
}

// Insert writes the full row set for one sanitized item inside q (a
// *sql.DB for fresh catalogs or a *sql.Tx mid-merge — see dbtx.Queryer),
// and returns the identifier assigned plus artwork upload details.
func (ins *Inserter) Insert(ctx context.Context, q dbtx.Queryer, item models.InputItem, basePath string, now int64) (Result, error) {
	item = Sanitize(item)
	effectiveAlbumArtist := resolver.EffectiveAlbumArtist(item.AlbumArtist, item.Artist)

	resolved, err := ins.resolver.Resolve(ctx, item.Title, item.Artist, item.Album, item.AlbumArtist, item.Genre)
	if err != nil {
		return Result{}, fmt.Errorf("inserter: resolve entities: %w", err)
	}

	itemPID := resolved.ResurrectionPID
	resurrected := itemPID != 0
	if itemPID == 0 {
		itemPID = ins.alloc.NextID()
	}
	ins.resolver.SetRepresentative(itemPID)

	if err := deleteExistingItemRows(ctx, q, itemPID); err != nil {
		return Result{}, err
	}

	titleOrder, err := sortmap.Upsert(ctx, q, item.Title)
	if err != nil {
		return Result{}, err
	}
	artistOrder, err := sortmap.Upsert(ctx, q, item.Artist)
	if err != nil {
		return Result{}, err
	}
	albumOrder, err := sortmap.Upsert(ctx, q, item.Album)
	if err != nil {
		return Result{}, err
	}
	genreOrder, err := sortmap.Upsert(ctx, q, item.Genre)
	if err != nil {
		return Result{}, err
	}
	albumArtistOrder, err := sortmap.Upsert(ctx, q, effectiveAlbumArtist)
	if err != nil {
		return Result{}, err
	}

	ins.trackCounter++
	trackNumber := item.TrackNumber
	if trackNumber <= 0 {
		trackNumber = ins.trackCounter
	}
	trackCount := item.TrackCount
	if trackCount <= 0 {
		trackCount = 1
	}
	discNumber := item.DiscNumber
	if discNumber <= 0 {
		discNumber = 1
	}
	discCount := item.DiscCount
	if discCount <= 0 {
		discCount = 1
	}

	isCompilation := 0
	if item.IsCompilation {
		isCompilation = 1
	}

	if _, err := q.ExecContext(ctx, `
		INSERT INTO item (
			item_pid, media_kind, artist_pid, album_pid, album_artist_pid, genre_pid,
			title_order, item_artist_order, album_order,
			disc_number, disc_count, track_number, track_count,
			base_location_id, in_library, is_compilation, date_added
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		itemPID, schema.MediaKindSong, resolved.ArtistPID, resolved.AlbumPID, resolved.AlbumArtistPID, resolved.GenrePID,
		titleOrder, artistOrder, albumOrder,
		discNumber, discCount, trackNumber, trackCount,
		schema.BaseLocationMusic, isCompilation, now); err != nil {
		return Result{}, fmt.Errorf("inserter: insert item: %w", err)
	}

	integrity := Integrity(item.RemoteFilename, basePath)
	if _, err := q.ExecContext(ctx, `
		INSERT INTO item_extra (item_pid, title, location, file_size, duration_ms, year, location_kind, date_modified, integrity)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		itemPID, item.Title, item.RemoteFilename, item.FileSize, item.DurationMS, nullableYear(item.Year), schema.LocationKindCloud, now, integrity); err != nil {
		return Result{}, fmt.Errorf("inserter: insert item_extra: %w", err)
	}

	if _, err := q.ExecContext(ctx,
		`INSERT INTO item_playback (item_pid, audio_format) VALUES (?, ?)`,
		itemPID, AudioFormat(filepath.Ext(item.RemoteFilename))); err != nil {
		return Result{}, fmt.Errorf("inserter: insert item_playback: %w", err)
	}

	syncID := ins.alloc.NextID()
	if _, err := q.ExecContext(ctx,
		`INSERT INTO item_store (item_pid, sync_id, sync_in_my_library) VALUES (?, ?, 1)`,
		itemPID, syncID); err != nil {
		return Result{}, fmt.Errorf("inserter: insert item_store: %w", err)
	}

	if _, err := q.ExecContext(ctx, `INSERT INTO item_stats (item_pid) VALUES (?)`, itemPID); err != nil {
		return Result{}, fmt.Errorf("inserter: insert item_stats: %w", err)
	}
	if _, err := q.ExecContext(ctx, `INSERT INTO item_video (item_pid, has_video) VALUES (?, 0)`, itemPID); err != nil {
		return Result{}, fmt.Errorf("inserter: insert item_video: %w", err)
	}
	if _, err := q.ExecContext(ctx, `
		INSERT INTO item_search (item_pid, title_order, artist_order, album_order, genre_order, album_artist_order)
		VALUES (?, ?, ?, ?, ?, ?)`,
		itemPID, titleOrder, artistOrder, albumOrder, genreOrder, albumArtistOrder); err != nil {
		return Result{}, fmt.Errorf("inserter: insert item_search: %w", err)
	}
	if _, err := q.ExecContext(ctx, `INSERT INTO lyrics (item_pid, text) VALUES (?, ?)`, itemPID, item.Lyrics); err != nil {
		return Result{}, fmt.Errorf("inserter: insert lyrics: %w", err)
	}

	if err := ins.resolver.RegisterSignature(item.Title, item.Artist, item.Album, itemPID); err != nil {
		return Result{}, fmt.Errorf("inserter: register signature: %w", err)
	}

	result := Result{ItemPID: itemPID, Resurrected: resurrected}

	if len(item.Artwork) > 0 {
		token, relPath := ArtworkPath(ins.trackCounter)
		artworkPID, err := insertArtwork(ctx, q, token, relPath)
		if err != nil {
			return Result{}, err
		}

		if err := linkArtwork(ctx, q, artworkPID, itemPID, schema.ArtworkEntityItem); err != nil {
			return Result{}, err
		}
		if !ins.albumArtwork[resolved.AlbumPID] {
			if err := linkArtwork(ctx, q, artworkPID, resolved.AlbumPID, schema.ArtworkEntityAlbum); err != nil {
				return Result{}, err
			}
			ins.albumArtwork[resolved.AlbumPID] = true
		}
		if !ins.artistArtwork[resolved.ArtistPID] {
			if err := linkArtwork(ctx, q, artworkPID, resolved.ArtistPID, schema.ArtworkEntityArtist); err != nil {
				return Result{}, err
			}
			ins.artistArtwork[resolved.ArtistPID] = true
		}
		if item.IsCompilation && !ins.albumExtraArtwork[resolved.AlbumPID] {
			if err := linkArtwork(ctx, q, artworkPID, resolved.AlbumPID, schema.ArtworkEntityAlbumExtra); err != nil {
				return Result{}, err
			}
			ins.albumExtraArtwork[resolved.AlbumPID] = true
		}

		result.ArtworkToken = token
		result.ArtworkRelativePath = relPath
	}

	return result, nil
}

func nullableYear(year int) any {
	if year <= 0 {
		return nil
	}
	return year
}

// deleteExistingItemRows clears any pre-existing per-item rows for
// itemPID before re-inserting, covering both resurrection and the
// (harmless) case of a brand-new id.
func deleteExistingItemRows(ctx context.Context, q dbtx.Queryer, itemPID int64) error {
	tables := []string{
		"item_extra", "item_playback", "item_store", "item_stats",
		"item_search", "item_video", "lyrics", "chapter", "item",
	}
	for _, table := range tables {
		if _, err := q.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE item_pid = ?`, table), itemPID); err != nil {
			return fmt.Errorf("inserter: delete existing %s: %w", table, err)
		}
	}
	return nil
}

func insertArtwork(ctx context.Context, q dbtx.Queryer, token, relativePath string) (int64, error) {
	res, err := q.ExecContext(ctx,
		`INSERT INTO artwork (token, relative_path, source_type) VALUES (?, ?, ?)`,
		token, relativePath, schema.ArtworkSourceType)
	if err != nil {
		return 0, fmt.Errorf("inserter: insert artwork: %w", err)
	}
	return res.LastInsertId()
}

func linkArtwork(ctx context.Context, q dbtx.Queryer, artworkPID, entityPID int64, entityType int) error {
	if _, err := q.ExecContext(ctx,
		`INSERT INTO artwork_token (artwork_pid, entity_pid, entity_type) VALUES (?, ?, ?)`,
		artworkPID, entityPID, entityType); err != nil {
		return fmt.Errorf("inserter: insert artwork_token: %w", err)
	}
	if _, err := q.ExecContext(ctx,
		`INSERT INTO best_artwork_token (entity_pid, entity_type, artwork_pid) VALUES (?, ?, ?)
		 ON CONFLICT (entity_pid, entity_type) DO UPDATE SET artwork_pid = excluded.artwork_pid`,
		entityPID, entityType, artworkPID); err != nil {
		return fmt.Errorf("inserter: insert best_artwork_token: %w", err)
	}
	return nil
}

// WriteNewEntities writes one row per entity the resolver allocated during
// this merge and backfills any existing entity row still missing a sync
// id. Call once after all items in the merge have
// been inserted.
func (ins *Inserter) WriteNewEntities(ctx context.Context, q dbtx.Queryer) error {
	for _, e := range ins.resolver.Created() {
		syncID := ins.alloc.NextID()
		sortName := e.Name
		switch e.Kind {
		case resolver.KindArtist:
			if _, err := q.ExecContext(ctx, `
				INSERT INTO artist (artist_pid, name, sort_name, grouping_key, representative_item_pid, sync_id, keep_local)
				VALUES (?, ?, ?, ?, ?, ?, 1)`,
				e.PID, e.Name, sortName, e.GroupingKey, e.RepresentativeItemPID, syncID); err != nil {
				return fmt.Errorf("inserter: insert artist: %w", err)
			}
		case resolver.KindGenre:
			if _, err := q.ExecContext(ctx, `
				INSERT INTO genre (genre_pid, name, sort_name, grouping_key, representative_item_pid, sync_id, keep_local)
				VALUES (?, ?, ?, ?, ?, ?, 1)`,
				e.PID, e.Name, sortName, e.GroupingKey, e.RepresentativeItemPID, syncID); err != nil {
				return fmt.Errorf("inserter: insert genre: %w", err)
			}
		case resolver.KindAlbum:
			if _, err := q.ExecContext(ctx, `
				INSERT INTO album (album_pid, name, sort_name, grouping_key, representative_item_pid, sync_id, keep_local)
				VALUES (?, ?, ?, ?, ?, ?, 1)`,
				e.PID, e.Name, sortName, e.GroupingKey, e.RepresentativeItemPID, syncID); err != nil {
				return fmt.Errorf("inserter: insert album: %w", err)
			}
		case resolver.KindAlbumArtist:
			order := sortmap.Section(e.Name)
			if _, err := q.ExecContext(ctx, `
				INSERT INTO album_artist (
					album_artist_pid, name, sort_name, grouping_key, representative_item_pid,
					sync_id, keep_local, name_order, sort_order, sort_order_section
				) VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?, ?)`,
				e.PID, e.Name, sortName, e.GroupingKey, e.RepresentativeItemPID,
				syncID, e.PID, e.PID, order); err != nil {
				return fmt.Errorf("inserter: insert album_artist: %w", err)
			}
		}
	}

	return backfillMissingSyncIDs(ctx, q, ins.alloc)
}

func backfillMissingSyncIDs(ctx context.Context, q dbtx.Queryer, alloc *ids.Allocator) error {
	tables := []string{"artist", "album", "album_artist", "genre"}
	pidColumns := map[string]string{
		"artist": "artist_pid", "album": "album_pid",
		"album_artist": "album_artist_pid", "genre": "genre_pid",
	}
	for _, table := range tables {
		pidCol := pidColumns[table]
		rows, err := q.QueryContext(ctx, fmt.Sprintf(`SELECT %s FROM %s WHERE sync_id = 0`, pidCol, table))
		if err != nil {
			return fmt.Errorf("inserter: scan %s missing sync id: %w", table, err)
		}
		var pids []int64
		for rows.Next() {
			var pid int64
			if err := rows.Scan(&pid); err != nil {
				rows.Close()
				return fmt.Errorf("inserter: read %s pid: %w", table, err)
			}
			pids = append(pids, pid)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		for _, pid := range pids {
			if _, err := q.ExecContext(ctx,
				fmt.Sprintf(`UPDATE %s SET sync_id = ?, keep_local = 1 WHERE %s = ?`, table, pidCol),
				alloc.NextID(), pid); err != nil {
				return fmt.Errorf("inserter: backfill %s sync id: %w", table, err)
			}
		}
	}
	return nil
}
