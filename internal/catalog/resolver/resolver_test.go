package resolver

import (
	"context"
	"database/sql"
	"math/rand"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"catalogbridge/internal/catalog/schema"
	"catalogbridge/internal/ids"
)

func openResolverTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, schema.Create(context.Background(), db))
	require.NoError(t, schema.Seed(context.Background(), db, 1000))
	return db
}

func newTestResolver(db *sql.DB) *Resolver {
	return New(db, ids.NewWithSource(rand.NewSource(1)))
}

func TestResolveAllocatesNewEntities(t *testing.T) {
	db := openResolverTestDB(t)
	r := newTestResolver(db)

	got, err := r.Resolve(context.Background(), "Hello", "Adele", "25", "", "Pop")
	require.NoError(t, err)
	require.NotZero(t, got.ArtistPID)
	require.NotZero(t, got.AlbumPID)
	require.NotZero(t, got.AlbumArtistPID)
	require.NotZero(t, got.GenrePID)
	var albumArtistName string
	for _, e := range r.Created() {
		if e.Kind == KindAlbumArtist {
			albumArtistName = e.Name
		}
	}
	require.Equal(t, "Adele", albumArtistName, "empty album-artist falls back to song artist")
	require.Zero(t, got.ResurrectionPID)
	require.Len(t, r.Created(), 4)
}

func TestResolveReusesExistingEntity(t *testing.T) {
	db := openResolverTestDB(t)
	_, err := db.Exec(`INSERT INTO artist (artist_pid, name, sort_name, grouping_key, representative_item_pid) VALUES (9, 'Adele', 'Adele', x'010405', 1)`)
	require.NoError(t, err)

	r := newTestResolver(db)
	got, err := r.Resolve(context.Background(), "Hello", "Adele", "25", "", "Pop")
	require.NoError(t, err)
	require.Equal(t, int64(9), got.ArtistPID)

	for _, e := range r.Created() {
		require.NotEqual(t, KindArtist, e.Kind, "artist already existed, should not be recreated")
	}
}

func TestResolveIsCaseInsensitive(t *testing.T) {
	db := openResolverTestDB(t)
	_, err := db.Exec(`INSERT INTO genre (genre_pid, name, sort_name, grouping_key, representative_item_pid) VALUES (5, 'Pop', 'Pop', x'1619', 1)`)
	require.NoError(t, err)

	r := newTestResolver(db)
	got, err := r.Resolve(context.Background(), "Hello", "Adele", "25", "", "POP")
	require.NoError(t, err)
	require.Equal(t, int64(5), got.GenrePID)
}

func TestEffectiveAlbumArtistFallsBackOnUnknown(t *testing.T) {
	require.Equal(t, "Adele", EffectiveAlbumArtist("", "Adele"))
	require.Equal(t, "Adele", EffectiveAlbumArtist("  ", "Adele"))
	require.Equal(t, "Adele", EffectiveAlbumArtist("Unknown Artist", "Adele"))
	require.Equal(t, "Various Artists", EffectiveAlbumArtist("Various Artists", "Adele"))
}

func TestResurrectionMatchesExistingSignature(t *testing.T) {
	db := openResolverTestDB(t)
	_, err := db.Exec(`INSERT INTO item (item_pid, media_kind, date_added) VALUES (777, 8, 1000)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO item_extra (item_pid, title, location, date_modified, integrity) VALUES (777, 'Hello', 'ABCD.mp3', 1000, 'deadbeef')`)
	require.NoError(t, err)

	r := newTestResolver(db)
	got, err := r.Resolve(context.Background(), "Hello", "", "", "", "")
	require.NoError(t, err)
	require.Equal(t, int64(777), got.ResurrectionPID)
}

func TestSetRepresentativeAssignsFirstItemOnly(t *testing.T) {
	db := openResolverTestDB(t)
	r := newTestResolver(db)

	_, err := r.Resolve(context.Background(), "Hello", "Adele", "25", "", "Pop")
	require.NoError(t, err)
	r.SetRepresentative(100)

	_, err = r.Resolve(context.Background(), "Skyfall", "Adele", "Skyfall", "", "Pop")
	require.NoError(t, err)
	r.SetRepresentative(200)

	for _, e := range r.Created() {
		switch e.Kind {
		case KindArtist:
			require.Equal(t, int64(100), e.RepresentativeItemPID)
		case KindGenre:
			require.Equal(t, int64(100), e.RepresentativeItemPID)
		case KindAlbum:
			require.Contains(t, []int64{100, 200}, e.RepresentativeItemPID)
		}
	}
}

func TestRegisterSignatureDetectsWithinBatchCollision(t *testing.T) {
	db := openResolverTestDB(t)
	r := newTestResolver(db)

	require.NoError(t, r.RegisterSignature("Hello", "Adele", "25", 555))

	got, err := r.Resolve(context.Background(), "Hello", "Adele", "25", "", "Pop")
	require.NoError(t, err)
	require.Equal(t, int64(555), got.ResurrectionPID)
}
