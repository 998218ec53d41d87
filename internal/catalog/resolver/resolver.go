// Package resolver maps the textual attributes of an input item (artist,
// album, album-artist, genre) onto catalog entity identifiers, reusing
// rows that already exist and tracking the ones a merge creates so the
// inserter can write their entity rows and representative-item ids after
// all items have been processed.
package resolver

import (
	"context"
	"fmt"
	"strings"

	"catalogbridge/internal/catalog/dbtx"
	"catalogbridge/internal/ids"
	"catalogbridge/internal/sortkey"
	"catalogbridge/pkg/lazy"
)

// Kind identifies which entity table a NewEntity belongs to.
type Kind int

const (
	KindArtist Kind = iota
	KindAlbum
	KindAlbumArtist
	KindGenre
)

func (k Kind) String() string {
	switch k {
	case KindArtist:
		return "artist"
	case KindAlbum:
		return "album"
	case KindAlbumArtist:
		return "album_artist"
	case KindGenre:
		return "genre"
	default:
		return "unknown"
	}
}

// NewEntity records an entity a merge allocated, for the inserter to write
// as a committed row once the introducing item's identifier is known.
type NewEntity struct {
	Kind                   Kind
	PID                    int64
	Name                   string
	RepresentativeItemPID  int64
	GroupingKey            []byte
}

// Resolved carries the identifiers an item should reference, plus an
// optional pre-existing item identifier when the (title, artist, album)
// signature matches a row already in the catalog ("resurrection"): the
// inserter must delete that item's per-item rows and re-insert under the
// same identifier instead of minting a new one.
type Resolved struct {
	ArtistPID       int64
	AlbumPID        int64
	AlbumArtistPID  int64
	GenrePID        int64
	ResurrectionPID int64
}

// Resolver caches the current catalog's entity maps in-process for the
// duration of one merge, and records newly allocated entities so the
// inserter can write their rows and backfill sync ids once the merge's
// representative items are known.
type Resolver struct {
	db    dbtx.Queryer
	alloc *ids.Allocator

	artists      *lazy.Value[map[string]int64]
	albums       *lazy.Value[map[string]int64]
	albumArtists *lazy.Value[map[string]int64]
	genres       *lazy.Value[map[string]int64]
	signatures   *lazy.Value[map[string]int64]

	created []NewEntity
}

// New preloads nothing eagerly; the four entity maps and the signature
// index are populated lazily on first use via pkg/lazy so a merge that
// never needs, say, genre lookups never pays that query.
func New(db dbtx.Queryer, alloc *ids.Allocator) *Resolver {
	r := &Resolver{db: db, alloc: alloc}
	r.artists = lazy.NewValue(func() (map[string]int64, error) { return r.preload(context.Background(), "artist", "artist_pid") })
	r.albums = lazy.NewValue(func() (map[string]int64, error) { return r.preload(context.Background(), "album", "album_pid") })
	r.albumArtists = lazy.NewValue(func() (map[string]int64, error) { return r.preload(context.Background(), "album_artist", "album_artist_pid") })
	r.genres = lazy.NewValue(func() (map[string]int64, error) { return r.preload(context.Background(), "genre", "genre_pid") })
	r.signatures = lazy.NewValue(func() (map[string]int64, error) { return r.preloadSignatures(context.Background()) })
	return r
}

func (r *Resolver) preload(ctx context.Context, table, pidColumn string) (map[string]int64, error) {
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`SELECT name, %s FROM %s`, pidColumn, table))
	if err != nil {
		return nil, fmt.Errorf("resolver: preload %s: %w", table, err)
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var name string
		var pid int64
		if err := rows.Scan(&name, &pid); err != nil {
			return nil, fmt.Errorf("resolver: scan %s: %w", table, err)
		}
		out[groupingKeyString(name)] = pid
	}
	return out, rows.Err()
}

// preloadSignatures indexes every current item by title|artist|album so
// resurrection lookups are a map hit rather than a query
// per item.
func (r *Resolver) preloadSignatures(ctx context.Context) (map[string]int64, error) {
	const q = `
		SELECT i.item_pid, x.title, COALESCE(ar.name, ''), COALESCE(al.name, '')
		FROM item i
		JOIN item_extra x ON x.item_pid = i.item_pid
		LEFT JOIN artist ar ON ar.artist_pid = i.artist_pid
		LEFT JOIN album al ON al.album_pid = i.album_pid`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("resolver: preload signatures: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var pid int64
		var title, artist, album string
		if err := rows.Scan(&pid, &title, &artist, &album); err != nil {
			return nil, fmt.Errorf("resolver: scan signature: %w", err)
		}
		out[Signature(title, artist, album)] = pid
	}
	return out, rows.Err()
}

// Signature is the title|artist|album resurrection key.
func Signature(title, artist, album string) string {
	return title + "|" + artist + "|" + album
}

// groupingKeyString renders the sort-key encoding as a map key; it makes
// lookup case-insensitive the same way the catalog's grouping_key column
// does.
func groupingKeyString(name string) string {
	return string(sortkey.Encode(name))
}

// EffectiveAlbumArtist falls back to the song artist when album-artist is
// blank or is the literal placeholder "unknown artist".
func EffectiveAlbumArtist(albumArtist, artist string) string {
	trimmed := strings.TrimSpace(albumArtist)
	if trimmed == "" || strings.EqualFold(trimmed, "unknown artist") {
		return artist
	}
	return trimmed
}

// Resolve maps one item's textual attributes onto catalog identifiers,
// allocating and recording new entities as needed, and reports a
// resurrection match when the signature already exists.
func (r *Resolver) Resolve(ctx context.Context, title, artist, album, albumArtist, genre string) (Resolved, error) {
	effectiveAlbumArtist := EffectiveAlbumArtist(albumArtist, artist)

	artistPID, err := r.resolveOne(r.artists, KindArtist, artist)
	if err != nil {
		return Resolved{}, err
	}
	albumPID, err := r.resolveOne(r.albums, KindAlbum, album)
	if err != nil {
		return Resolved{}, err
	}
	albumArtistPID, err := r.resolveOne(r.albumArtists, KindAlbumArtist, effectiveAlbumArtist)
	if err != nil {
		return Resolved{}, err
	}
	genrePID, err := r.resolveOne(r.genres, KindGenre, genre)
	if err != nil {
		return Resolved{}, err
	}

	sigs, err := r.signatures.Get()
	if err != nil {
		return Resolved{}, err
	}
	resurrection := sigs[Signature(title, artist, album)]

	return Resolved{
		ArtistPID:       artistPID,
		AlbumPID:        albumPID,
		AlbumArtistPID:  albumArtistPID,
		GenrePID:        genrePID,
		ResurrectionPID: resurrection,
	}, nil
}

func (r *Resolver) resolveOne(cache *lazy.Value[map[string]int64], kind Kind, name string) (int64, error) {
	m, err := cache.Get()
	if err != nil {
		return 0, err
	}
	key := groupingKeyString(name)
	if pid, ok := m[key]; ok {
		return pid, nil
	}
	pid := r.alloc.NextID()
	m[key] = pid
	r.created = append(r.created, NewEntity{Kind: kind, PID: pid, Name: name, GroupingKey: sortkey.Encode(name)})
	return pid, nil
}

// SetRepresentative records item as the representative for every entity
// this merge created but has not yet assigned one to. The inserter calls
// this immediately after allocating each item's identifier, before
// resolving the next one, so the FIRST item to reference a new entity
// wins.
func (r *Resolver) SetRepresentative(itemPID int64) {
	for i := range r.created {
		if r.created[i].RepresentativeItemPID == 0 {
			r.created[i].RepresentativeItemPID = itemPID
		}
	}
}

// Created returns the entities allocated so far this merge, in allocation
// order, for the inserter's post-pass entity-row write.
func (r *Resolver) Created() []NewEntity {
	return r.created
}

// RegisterSignature records a freshly inserted item's signature so a
// later item in the same batch that collides with it is treated as a
// resurrection too, without a second catalog round-trip.
func (r *Resolver) RegisterSignature(title, artist, album string, itemPID int64) error {
	sigs, err := r.signatures.Get()
	if err != nil {
		return err
	}
	sigs[Signature(title, artist, album)] = itemPID
	return nil
}
