// Package fileview implements spec.md §4.2: decoding a byte range from
// the backing file into a line record, with level detection, overlong-
// line truncation, and lossy UTF-8 decoding.
//
// Grounded on the field/level extraction idiom in
// other_examples/bcbf44f2_bascanada-logviewer__pkg-log-reader-reader.go.go,
// adapted from per-entry JSON/regex field extraction to the simpler
// word-boundary level scan spec.md §4.2 specifies.
package fileview

import (
	"os"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/standardbeagle/logscope/internal/engineerr"
	"github.com/standardbeagle/logscope/internal/lineindex"
	"github.com/standardbeagle/logscope/internal/types"
)

const levelScanBytes = 200

// levelPattern matches the first level keyword encountered, in
// severity order, per spec.md §4.2. Word boundaries and case
// insensitivity are expressed directly in the regex.
var levelPattern = regexp.MustCompile(`(?i)\b(FATAL|CRITICAL|SEVERE|ERROR|EXCEPTION|PANIC|WARN|WARNING|INFO|INFORMATION|DEBUG|TRACE|VERBOSE)\b`)

func classifyLevel(word string) (types.Level, bool) {
	switch strings.ToUpper(word) {
	case "FATAL", "CRITICAL", "SEVERE", "ERROR", "EXCEPTION", "PANIC":
		return types.LevelError, true
	case "WARN", "WARNING":
		return types.LevelWarn, true
	case "INFO", "INFORMATION":
		return types.LevelInfo, true
	case "DEBUG":
		return types.LevelDebug, true
	case "TRACE", "VERBOSE":
		return types.LevelTrace, true
	}
	return "", false
}

// DetectLevel scans the first 200 bytes of text for a level keyword in
// severity order and returns the first match.
func DetectLevel(text string) (types.Level, bool) {
	scan := text
	if len(scan) > levelScanBytes {
		scan = scan[:levelScanBytes]
	}
	found := make(map[types.Level]bool)
	for _, m := range levelPattern.FindAllStringSubmatch(scan, -1) {
		if lvl, ok := classifyLevel(m[1]); ok {
			found[lvl] = true
		}
	}
	for _, lvl := range []types.Level{types.LevelError, types.LevelWarn, types.LevelInfo, types.LevelDebug, types.LevelTrace} {
		if found[lvl] {
			return lvl, true
		}
	}
	return "", false
}

// splitHeaderPattern recognizes the split-file metadata header spec.md
// §6 describes: "#SPLIT:part=K,total=N,prev=<name>,next=<name>".
var splitHeaderPattern = regexp.MustCompile(`^#SPLIT:part=\d+,total=\d+,prev=.*,next=.*$`)

// View serves line records by range over a file backed by a lineindex.Index.
type View struct {
	idx          *lineindex.Index
	lineCapBytes int
	splitHeader  string
	hasSplit     bool
}

// New wraps idx for line retrieval, checking line 0 for a split-file
// header.
func New(idx *lineindex.Index, lineCapBytes int) (*View, error) {
	v := &View{idx: idx, lineCapBytes: lineCapBytes}
	if idx.TotalLines() > 0 {
		start, end, ok := idx.LineBounds(0)
		if ok {
			raw, err := readRaw(idx.Path(), start, end, lineCapBytes)
			if err == nil {
				text := decodeLine(raw)
				if splitHeaderPattern.MatchString(text) {
					v.hasSplit = true
					v.splitHeader = text
				}
			}
		}
	}
	return v, nil
}

// Info returns the current FileInfo snapshot.
func (v *View) Info() types.FileInfo {
	total := v.idx.TotalLines()
	if v.hasSplit {
		total--
	}
	return types.FileInfo{
		Path:            v.idx.Path(),
		SizeBytes:       v.idx.ScannedBytes(),
		TotalLines:      total,
		MaxLineLength:   v.idx.MaxLineLength(),
		Truncated:       v.idx.Truncated(),
		HasSplitHeader:  v.hasSplit,
		SplitHeaderLine: v.splitHeader,
	}
}

// realLine maps a user-visible line number to the underlying index
// line number, skipping a split header at line 0 if present.
func (v *View) realLine(i uint64) uint64 {
	if v.hasSplit {
		return i + 1
	}
	return i
}

// GetLines returns up to count lines starting at start. Fewer are
// returned at end-of-file; a start equal to total-lines returns an
// empty, non-error result per spec.md §4.2.
func (v *View) GetLines(start uint64, count int, withMeta bool, parseTimestamp func(string) (int64, bool)) ([]types.LineRecord, error) {
	if count < 0 {
		return nil, engineerr.InvalidInput("fileview.get_lines", nil)
	}
	total := v.Info().TotalLines
	if start > total {
		return nil, engineerr.InvalidInput("fileview.get_lines", nil)
	}
	if start == total || count == 0 {
		return []types.LineRecord{}, nil
	}

	out := make([]types.LineRecord, 0, count)
	for i := uint64(0); i < uint64(count) && start+i < total; i++ {
		rec, err := v.getLine(start+i, withMeta, parseTimestamp)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (v *View) getLine(lineNumber uint64, withMeta bool, parseTimestamp func(string) (int64, bool)) (types.LineRecord, error) {
	real := v.realLine(lineNumber)
	start, end, ok := v.idx.LineBounds(real)
	if !ok {
		return types.LineRecord{}, engineerr.InvalidInput("fileview.get_line", nil)
	}

	raw, err := readRaw(v.idx.Path(), start, end, v.lineCapBytes)
	if err != nil {
		return types.LineRecord{}, err
	}
	text := decodeLine(raw)

	rec := types.LineRecord{LineNumber: lineNumber, Text: text}
	if withMeta {
		if lvl, ok := DetectLevel(text); ok {
			rec.Level = lvl
			rec.HasLevel = true
		}
		if parseTimestamp != nil {
			if ms, ok := parseTimestamp(text); ok {
				rec.TimestampMs = ms
				rec.HasTimestamp = true
			}
		}
	}
	return rec, nil
}

// readRaw reads [start, end) from path, clamped to lineCapBytes.
func readRaw(path string, start, end int64, lineCapBytes int) ([]byte, error) {
	span := end - start
	if lineCapBytes > 0 && span > int64(lineCapBytes) {
		span = int64(lineCapBytes)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, engineerr.IOErr("fileview.read", err).WithPath(path)
	}
	defer f.Close()

	buf := make([]byte, span)
	n, err := f.ReadAt(buf, start)
	if err != nil && n == 0 {
		return nil, engineerr.IOErr("fileview.read", err).WithPath(path)
	}
	return buf[:n], nil
}

// decodeLine strips trailing \r\n / \n and decodes bytes as UTF-8,
// replacing invalid sequences with the replacement character rather
// than failing, per spec.md §4.2 "Encoding".
func decodeLine(raw []byte) string {
	raw = trimTerminator(raw)
	if utf8.Valid(raw) {
		return string(raw)
	}
	var b strings.Builder
	b.Grow(len(raw))
	for len(raw) > 0 {
		r, size := utf8.DecodeRune(raw)
		b.WriteRune(r)
		raw = raw[size:]
	}
	return b.String()
}

func trimTerminator(raw []byte) []byte {
	n := len(raw)
	if n > 0 && raw[n-1] == '\n' {
		n--
		if n > 0 && raw[n-1] == '\r' {
			n--
		}
	}
	return raw[:n]
}
