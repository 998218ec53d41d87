package localfs

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteAllThenReadAllRoundTrips(t *testing.T) {
	dir := t.TempDir()
	a, err := New(dir)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, a.WriteAll(ctx, "iTunes_Control/Music/F00/ABCD.mp3", []byte("audio-bytes")))

	data, err := a.ReadAll(ctx, "iTunes_Control/Music/F00/ABCD.mp3")
	require.NoError(t, err)
	require.Equal(t, []byte("audio-bytes"), data)
}

func TestListReturnsBaseNames(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "Music"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Music", "a.mp3"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Music", "b.mp3"), []byte("x"), 0o644))

	a, err := New(dir)
	require.NoError(t, err)
	names, err := a.List(context.Background(), "Music")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"a.mp3", "b.mp3"}, names)
}

func TestListOfMissingDirReturnsEmpty(t *testing.T) {
	dir := t.TempDir()
	a, err := New(dir)
	require.NoError(t, err)
	names, err := a.List(context.Background(), "does-not-exist")
	require.NoError(t, err)
	require.Empty(t, names)
}

func TestRenameReplacesDestination(t *testing.T) {
	dir := t.TempDir()
	a, err := New(dir)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, a.WriteAll(ctx, "staging.temp", []byte("v2")))
	require.NoError(t, a.WriteAll(ctx, "live.sqlitedb", []byte("v1")))
	require.NoError(t, a.Rename(ctx, "staging.temp", "live.sqlitedb"))

	data, err := a.ReadAll(ctx, "live.sqlitedb")
	require.NoError(t, err)
	require.Equal(t, []byte("v2"), data)
}

func TestRemoveMissingFileIsNotAnError(t *testing.T) {
	dir := t.TempDir()
	a, err := New(dir)
	require.NoError(t, err)
	require.NoError(t, a.Remove(context.Background(), "nope.txt"))
}

func TestResolveStripsDirectoryTraversal(t *testing.T) {
	dir := t.TempDir()
	a, err := New(dir)
	require.NoError(t, err)

	require.NoError(t, a.WriteAll(context.Background(), "../../etc/passwd", []byte("x")))
	resolved := a.resolve("../../etc/passwd")
	require.True(t, strings.HasPrefix(resolved, dir))
}
