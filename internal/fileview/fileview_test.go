package fileview

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/standardbeagle/logscope/internal/lineindex"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildView(t *testing.T, content string, lineCap int) *View {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "test.log")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	idx := lineindex.New(path, lineindex.Config{LineCapBytes: lineCap})
	require.NoError(t, idx.Build(lineindex.Config{ChunkBytes: 64, LineCapBytes: lineCap}, nil, nil))
	idx.FinalizeTrailing()

	v, err := New(idx, lineCap)
	require.NoError(t, err)
	return v
}

func TestGetLinesBasic(t *testing.T) {
	v := buildView(t, "alpha\nbeta\ngamma\n", 5000)
	lines, err := v.GetLines(0, 2, false, nil)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, uint64(0), lines[0].LineNumber)
	assert.Equal(t, "alpha", lines[0].Text)
	assert.Equal(t, "beta", lines[1].Text)
}

func TestGetLinesAtEndIsEmpty(t *testing.T) {
	v := buildView(t, "alpha\nbeta\n", 5000)
	total := v.Info().TotalLines
	lines, err := v.GetLines(total, 1, false, nil)
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestGetLinesPastEndIsError(t *testing.T) {
	v := buildView(t, "alpha\n", 5000)
	_, err := v.GetLines(v.Info().TotalLines+1, 1, false, nil)
	assert.Error(t, err)
}

func TestGetLinesFewerAtEOF(t *testing.T) {
	v := buildView(t, "a\nb\nc\n", 5000)
	lines, err := v.GetLines(1, 10, false, nil)
	require.NoError(t, err)
	assert.Len(t, lines, 2)
}

func TestLevelDetection(t *testing.T) {
	cases := map[string]string{
		"FATAL: disk died":        "error",
		"this is an ERROR state":  "error",
		"PANIC: goroutine":        "error",
		"WARNING: low disk":       "warning",
		"INFO starting up":        "info",
		"DEBUG verbose trace":     "debug",
		"TRACE entering function": "trace",
		"no level keyword here":   "",
	}
	for text, want := range cases {
		lvl, ok := DetectLevel(text)
		if want == "" {
			assert.False(t, ok, text)
			continue
		}
		assert.True(t, ok, text)
		assert.Equal(t, want, string(lvl), text)
	}
}

func TestLevelDetectionWordBoundary(t *testing.T) {
	// "ERRORCODE" should not match ERROR due to word boundary.
	_, ok := DetectLevel("ERRORCODE=5 nothing else")
	assert.False(t, ok)
}

func TestLevelDetectionWithMeta(t *testing.T) {
	v := buildView(t, "ERROR something broke\n", 5000)
	lines, err := v.GetLines(0, 1, true, nil)
	require.NoError(t, err)
	assert.True(t, lines[0].HasLevel)
	assert.Equal(t, "error", string(lines[0].Level))
}

func TestTruncationClampsText(t *testing.T) {
	long := strings.Repeat("x", 100)
	v := buildView(t, long+"\nshort\n", 10)
	lines, err := v.GetLines(0, 1, false, nil)
	require.NoError(t, err)
	assert.Len(t, lines[0].Text, 10)
	assert.True(t, v.Info().Truncated)
}

func TestInvalidUTF8Replaced(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.log")
	raw := append([]byte("prefix "), 0xff, 0xfe)
	raw = append(raw, []byte(" suffix\n")...)
	require.NoError(t, os.WriteFile(path, raw, 0644))

	idx := lineindex.New(path, lineindex.Config{LineCapBytes: 5000})
	require.NoError(t, idx.Build(lineindex.Config{ChunkBytes: 64, LineCapBytes: 5000}, nil, nil))
	idx.FinalizeTrailing()
	v, err := New(idx, 5000)
	require.NoError(t, err)

	lines, err := v.GetLines(0, 1, false, nil)
	require.NoError(t, err)
	assert.Contains(t, lines[0].Text, "�")
	assert.Contains(t, lines[0].Text, "prefix")
	assert.Contains(t, lines[0].Text, "suffix")
}

func TestSplitHeaderHidden(t *testing.T) {
	v := buildView(t, "#SPLIT:part=1,total=3,prev=a.log,next=c.log\nreal line one\nreal line two\n", 5000)
	info := v.Info()
	assert.True(t, info.HasSplitHeader)
	assert.Equal(t, uint64(2), info.TotalLines)

	lines, err := v.GetLines(0, 1, false, nil)
	require.NoError(t, err)
	assert.Equal(t, "real line one", lines[0].Text)
}
