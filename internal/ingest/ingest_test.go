package ingest

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempBackingPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "backing.log")
}

func TestWriteNormalizesLineEndingsAndPrependsTimestamp(t *testing.T) {
	restore := now
	now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	defer func() { now = restore }()

	s, err := Open(tempBackingPath(t))
	require.NoError(t, err)

	err = s.Write([]byte("line one\nline two\r\nline three\r"))
	require.NoError(t, err)

	select {
	case ev := <-s.Events():
		assert.Equal(t, EventLinesAdded, ev.Kind)
		assert.Equal(t, 3, ev.LineCount)
	default:
		t.Fatal("expected a lines-added event")
	}

	require.NoError(t, s.Disconnect())
	contents, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	expected := "2024-05-01 12:00:00.000 line one\n2024-05-01 12:00:00.000 line two\n2024-05-01 12:00:00.000 line three\n"
	assert.Equal(t, expected, string(contents))
}

func TestResidualRetainedAcrossChunks(t *testing.T) {
	s, err := Open(tempBackingPath(t))
	require.NoError(t, err)

	require.NoError(t, s.Write([]byte("partial")))
	require.NoError(t, s.Write([]byte(" line\n")))

	require.NoError(t, s.Disconnect())
	contents, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.Contains(t, string(contents), "partial line")
	assert.Len(t, splitCount(string(contents)), 1)
}

func splitCount(s string) []string {
	var out []string
	cur := ""
	for _, r := range s {
		if r == '\n' {
			if cur != "" {
				out = append(out, cur)
			}
			cur = ""
			continue
		}
		cur += string(r)
	}
	return out
}

func TestFlushOnDisconnectWritesResidual(t *testing.T) {
	s, err := Open(tempBackingPath(t))
	require.NoError(t, err)

	require.NoError(t, s.Write([]byte("no terminator")))
	require.NoError(t, s.Disconnect())

	contents, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.Contains(t, string(contents), "no terminator")
}

func TestDisconnectEmitsEvent(t *testing.T) {
	s, err := Open(tempBackingPath(t))
	require.NoError(t, err)
	require.NoError(t, s.Write([]byte("a\n")))
	<-s.Events() // drain lines-added
	require.NoError(t, s.Disconnect())

	ev := <-s.Events()
	assert.Equal(t, EventDisconnected, ev.Kind)
}

func TestFatalEmitsErrorThenDisconnected(t *testing.T) {
	s, err := Open(tempBackingPath(t))
	require.NoError(t, err)
	s.Fatal(assert.AnError)

	ev1 := <-s.Events()
	assert.Equal(t, EventError, ev1.Kind)
	ev2 := <-s.Events()
	assert.Equal(t, EventDisconnected, ev2.Kind)
}

func TestWriteAfterCloseFails(t *testing.T) {
	s, err := Open(tempBackingPath(t))
	require.NoError(t, err)
	require.NoError(t, s.Disconnect())
	err = s.Write([]byte("too late\n"))
	assert.Error(t, err)
}

func TestBackingFileSurvivesDisconnect(t *testing.T) {
	path := tempBackingPath(t)
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Write([]byte("a\n")))
	require.NoError(t, s.Disconnect())

	_, statErr := os.Stat(path)
	assert.NoError(t, statErr)
}
