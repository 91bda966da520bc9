package sidecar

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddBookmarkAndReopenReproducesByteForByte(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log.json")
	s := Open(path)
	_, err := s.AddBookmark(10, "interesting")
	require.NoError(t, err)
	_, err = s.AddHighlight(5, 2, 4, "yellow")
	require.NoError(t, err)

	reopened := Open(path)
	assert.Equal(t, s.Bookmarks(), reopened.Bookmarks())
	assert.Equal(t, s.Highlights(), reopened.Highlights())
}

func TestRemoveBookmark(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log.json")
	s := Open(path)
	b, err := s.AddBookmark(1, "")
	require.NoError(t, err)
	require.NoError(t, s.RemoveBookmark(b.ID))
	assert.Empty(t, s.Bookmarks())
}

func TestRemoveMissingBookmarkErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log.json")
	s := Open(path)
	err := s.RemoveBookmark("does-not-exist")
	assert.Error(t, err)
}

func TestActivityHistoryCapAndTrim(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log.json")
	s := Open(path)
	for i := 0; i < maxActivityEntries+1; i++ {
		require.NoError(t, s.RecordActivity("viewed", ""))
	}
	activity := s.Activity()
	assert.LessOrEqual(t, len(activity), maxActivityEntries)
	assert.Len(t, activity, trimmedActivityLen)
}

func TestOpenMissingFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.json")
	s := Open(path)
	assert.Empty(t, s.Bookmarks())
	assert.Empty(t, s.Highlights())
	assert.Empty(t, s.Activity())
}

func TestOpenCorruptFileDegradesToEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log.json")
	require.NoError(t, os.WriteFile(path, []byte("{not valid json"), 0o644))
	s := Open(path)
	assert.Empty(t, s.Bookmarks())
}

func TestPathForBuildsDotAppDirPath(t *testing.T) {
	p := PathFor("logscope", "/var/log/app/service.log")
	assert.Equal(t, "/var/log/app/.logscope/service.log.json", p)
}
