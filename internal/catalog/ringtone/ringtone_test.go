package ringtone

import (
	"context"
	"database/sql"
	"math/rand"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"catalogbridge/internal/catalog/inserter"
	"catalogbridge/internal/catalog/schema"
	"catalogbridge/internal/ids"
	"catalogbridge/internal/models"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, schema.Create(context.Background(), db))
	require.NoError(t, schema.Seed(context.Background(), db, 1000))
	return db
}

func TestInsertWritesToneRowSet(t *testing.T) {
	db := openTestDB(t)
	ins := New(ids.NewWithSource(rand.NewSource(1)))

	itemPID, err := ins.Insert(context.Background(), db, models.RingtoneItem{
		Title: "Alert", RemoteFilename: "WXYZ.m4r", FileSize: 40000,
	}, 1000)
	require.NoError(t, err)
	require.NotZero(t, itemPID)

	var mediaKind, baseLocation int
	require.NoError(t, db.QueryRow(`SELECT media_kind, base_location_id FROM item WHERE item_pid=?`, itemPID).Scan(&mediaKind, &baseLocation))
	require.Equal(t, schema.MediaKindTone, mediaKind)
	require.Equal(t, schema.BaseLocationTones, baseLocation)

	var audioFormat int64
	require.NoError(t, db.QueryRow(`SELECT audio_format FROM item_playback WHERE item_pid=?`, itemPID).Scan(&audioFormat))
	require.Equal(t, inserter.AudioFormatAAC, audioFormat)
}

func TestInsertAppliesDefaultDuration(t *testing.T) {
	db := openTestDB(t)
	ins := New(ids.NewWithSource(rand.NewSource(1)))

	itemPID, err := ins.Insert(context.Background(), db, models.RingtoneItem{
		RemoteFilename: "WXYZ.m4r",
	}, 1000)
	require.NoError(t, err)

	var duration int64
	require.NoError(t, db.QueryRow(`SELECT duration_ms FROM item_extra WHERE item_pid=?`, itemPID).Scan(&duration))
	require.Equal(t, int64(DefaultDurationMS), duration)

	var title string
	require.NoError(t, db.QueryRow(`SELECT title FROM item_extra WHERE item_pid=?`, itemPID).Scan(&title))
	require.Equal(t, "WXYZ.m4r", title, "empty title falls back to remote filename")
}
