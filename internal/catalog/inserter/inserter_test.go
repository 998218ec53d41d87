package inserter

import (
	"context"
	"database/sql"
	"math/rand"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"catalogbridge/internal/catalog/resolver"
	"catalogbridge/internal/catalog/schema"
	"catalogbridge/internal/ids"
	"catalogbridge/internal/models"
)

func openInserterTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, schema.Create(context.Background(), db))
	require.NoError(t, schema.Seed(context.Background(), db, 1000))
	return db
}

func newTestInserter(db *sql.DB) *Inserter {
	alloc := ids.NewWithSource(rand.NewSource(3))
	res := resolver.New(db, alloc)
	return New(alloc, res)
}

func TestAudioFormatMapping(t *testing.T) {
	require.Equal(t, AudioFormatMP3, AudioFormat("mp3"))
	require.Equal(t, AudioFormatFLAC, AudioFormat(".flac"))
	require.Equal(t, AudioFormatAAC, AudioFormat("m4a"))
	require.Equal(t, AudioFormatAAC, AudioFormat("M4R"))
	require.Equal(t, AudioFormatALAC, AudioFormat("alac"))
	require.Equal(t, AudioFormatWAV, AudioFormat("WAV"))
}

func TestSanitizeAppliesDefaults(t *testing.T) {
	got := Sanitize(models.InputItem{LocalPath: "/x/song.mp3"})
	require.Equal(t, "song.mp3", got.Title)
	require.Equal(t, "Unknown Artist", got.Artist)
	require.Equal(t, "Unknown Album", got.Album)
}

func TestIsUnknownPair(t *testing.T) {
	require.True(t, IsUnknownPair(models.InputItem{Artist: "Unknown Artist", Album: "Unknown Album"}))
	require.False(t, IsUnknownPair(models.InputItem{Artist: "Adele", Album: "Unknown Album"}))
}

func TestArtworkPathIsDeterministic(t *testing.T) {
	token1, path1 := ArtworkPath(1)
	token2, path2 := ArtworkPath(1)
	require.Equal(t, token1, token2)
	require.Equal(t, path1, path2)
	require.Equal(t, "1001", token1)
	require.Len(t, path1, 41) // 2 + '/' + 38
}

func TestInsertWritesFullRowSet(t *testing.T) {
	db := openInserterTestDB(t)
	ins := newTestInserter(db)

	item := models.InputItem{
		LocalPath:      "/local/hello.mp3",
		Title:          "Hello",
		Artist:         "Adele",
		Album:          "25",
		Genre:          "Pop",
		Year:           2015,
		DurationMS:     295000,
		FileSize:       7000000,
		RemoteFilename: "ABCD.mp3",
	}

	result, err := ins.Insert(context.Background(), db, item, "iTunes_Control/Music/F00", 1000)
	require.NoError(t, err)
	require.NotZero(t, result.ItemPID)
	require.False(t, result.Resurrected)

	var mediaKind int
	require.NoError(t, db.QueryRow(`SELECT media_kind FROM item WHERE item_pid=?`, result.ItemPID).Scan(&mediaKind))
	require.Equal(t, schema.MediaKindSong, mediaKind)

	var location string
	var locationKind int
	require.NoError(t, db.QueryRow(`SELECT location, location_kind FROM item_extra WHERE item_pid=?`, result.ItemPID).Scan(&location, &locationKind))
	require.Equal(t, "ABCD.mp3", location)
	require.Equal(t, schema.LocationKindCloud, locationKind)

	var syncID, syncInLib int
	require.NoError(t, db.QueryRow(`SELECT sync_id, sync_in_my_library FROM item_store WHERE item_pid=?`, result.ItemPID).Scan(&syncID, &syncInLib))
	require.NotZero(t, syncID)
	require.Equal(t, 1, syncInLib)

	for _, table := range []string{"item_stats", "item_search", "item_video", "lyrics"} {
		var count int
		require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM `+table+` WHERE item_pid=?`, result.ItemPID).Scan(&count))
		require.Equal(t, 1, count, "table %s", table)
	}

	require.NoError(t, ins.WriteNewEntities(context.Background(), db))

	var artistCount int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM artist WHERE name='Adele'`).Scan(&artistCount))
	require.Equal(t, 1, artistCount)

	var representative int64
	require.NoError(t, db.QueryRow(`SELECT representative_item_pid FROM artist WHERE name='Adele'`).Scan(&representative))
	require.Equal(t, result.ItemPID, representative)
}

func TestInsertWithArtworkWritesLinkageRows(t *testing.T) {
	db := openInserterTestDB(t)
	ins := newTestInserter(db)

	item := models.InputItem{
		Title: "Hello", Artist: "Adele", Album: "25", Genre: "Pop",
		RemoteFilename: "ABCD.mp3", Artwork: []byte{0xFF, 0xD8, 0xFF},
	}
	result, err := ins.Insert(context.Background(), db, item, "iTunes_Control/Music/F00", 1000)
	require.NoError(t, err)
	require.NotEmpty(t, result.ArtworkToken)
	require.NotEmpty(t, result.ArtworkRelativePath)

	var linkCount int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM artwork_token`).Scan(&linkCount))
	require.Equal(t, 3, linkCount) // item, album, artist

	var bestCount int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM best_artwork_token`).Scan(&bestCount))
	require.Equal(t, 3, bestCount)
}

func TestInsertResurrectsExistingSignature(t *testing.T) {
	db := openInserterTestDB(t)
	ins := newTestInserter(db)
	ctx := context.Background()

	item := models.InputItem{Title: "Hello", Artist: "Adele", Album: "25", Genre: "Pop", RemoteFilename: "ABCD.mp3"}
	first, err := ins.Insert(ctx, db, item, "iTunes_Control/Music/F00", 1000)
	require.NoError(t, err)
	require.NoError(t, ins.WriteNewEntities(ctx, db))

	// A fresh inserter simulates a later merge against the same catalog.
	alloc := ids.NewWithSource(rand.NewSource(9))
	res := resolver.New(db, alloc)
	ins2 := New(alloc, res)

	second, err := ins2.Insert(ctx, db, item, "iTunes_Control/Music/F00", 2000)
	require.NoError(t, err)
	require.True(t, second.Resurrected)
	require.Equal(t, first.ItemPID, second.ItemPID)

	var itemCount int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM item`).Scan(&itemCount))
	require.Equal(t, 1, itemCount)

	var artistCount int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM artist`).Scan(&artistCount))
	require.Equal(t, 1, artistCount, "resurrection must not create a duplicate artist")
}

func TestInsertAppliesTrackCounterFallback(t *testing.T) {
	db := openInserterTestDB(t)
	ins := newTestInserter(db)
	ctx := context.Background()

	item1 := models.InputItem{Title: "One", Artist: "Adele", Album: "25", RemoteFilename: "AAAA.mp3"}
	item2 := models.InputItem{Title: "Two", Artist: "Adele", Album: "25", RemoteFilename: "BBBB.mp3"}

	r1, err := ins.Insert(ctx, db, item1, "iTunes_Control/Music/F00", 1000)
	require.NoError(t, err)
	r2, err := ins.Insert(ctx, db, item2, "iTunes_Control/Music/F00", 1000)
	require.NoError(t, err)

	var t1, t2 int
	require.NoError(t, db.QueryRow(`SELECT track_number FROM item WHERE item_pid=?`, r1.ItemPID).Scan(&t1))
	require.NoError(t, db.QueryRow(`SELECT track_number FROM item WHERE item_pid=?`, r2.ItemPID).Scan(&t2))
	require.Equal(t, 1, t1)
	require.Equal(t, 2, t2)
}
