// Package lineindex implements spec.md §4.1: a memory-bounded mapping
// from line number to byte offset, built once over an existing file
// and then grown incrementally as a live-tail source appends bytes.
//
// Grounded on the teacher's chunked-scan-with-progress idiom
// (standardbeagle-lci/internal/indexing/pipeline_scanner.go) and the
// offset-indexed access pattern in
// other_examples/a3fc001c_Alain-L-quellog__parser-mmap_parser.go.go.
package lineindex

import (
	"bufio"
	"io"
	"os"
	"sync"
	"time"

	"github.com/standardbeagle/logscope/internal/debug"
	"github.com/standardbeagle/logscope/internal/engineerr"
	"github.com/standardbeagle/logscope/internal/types"
)

// Index maps line_number -> byte_offset for one file snapshot. Offsets
// are strictly non-decreasing; once published, offset[i] never changes
// (spec.md §3 "Line index" invariant).
type Index struct {
	mu            sync.RWMutex
	offsets       []int64 // L+1 entries: [0, off1, off2, ..., N]
	lineCapBytes  int
	maxLineLength int
	truncated     bool
	scannedBytes  int64 // last byte offset scanned (for incremental growth)
	path          string
}

// Config bounds the index build/growth behavior.
type Config struct {
	ChunkBytes      int
	LineCapBytes    int
	ProgressEveryMs int
}

// New returns an empty index ready for Build or GrowFrom.
func New(path string, cfg Config) *Index {
	return &Index{
		offsets:      []int64{0},
		lineCapBytes: cfg.LineCapBytes,
		path:         path,
	}
}

// Build scans the full file sequentially in fixed-size chunks,
// recording the start offset of every line. It is cancellable between
// chunks and reports rate-limited progress.
func (idx *Index) Build(cfg Config, cancel *types.CancelToken, progress types.ProgressFunc) error {
	debug.LogIndex("building index for %s\n", idx.path)
	f, err := os.Open(idx.path)
	if err != nil {
		debug.LogIndex("ERROR: open %s: %v\n", idx.path, err)
		return engineerr.IOErr("index.build", err).WithPath(idx.path)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		debug.LogIndex("ERROR: stat %s: %v\n", idx.path, err)
		return engineerr.IOErr("index.build", err).WithPath(idx.path)
	}
	total := info.Size()

	chunkSize := cfg.ChunkBytes
	if chunkSize <= 0 {
		chunkSize = 1 << 20
	}
	progressEvery := time.Duration(cfg.ProgressEveryMs) * time.Millisecond
	if progressEvery <= 0 {
		progressEvery = 200 * time.Millisecond
	}

	buf := make([]byte, chunkSize)
	var scanned int64
	var lastReport time.Time

	idx.mu.Lock()
	idx.offsets = []int64{0}
	idx.maxLineLength = 0
	idx.truncated = false
	idx.lineCapBytes = cfg.LineCapBytes
	idx.mu.Unlock()

	var curLineStart int64
	var curLineLen int64

	for {
		if cancel.Cancelled() {
			return engineerr.Cancelled("index.build")
		}

		n, readErr := f.Read(buf)
		if n > 0 {
			idx.mu.Lock()
			for i := 0; i < n; i++ {
				b := buf[i]
				if b == '\n' {
					start := scanned + int64(i) + 1
					if curLineLen > int64(idx.maxLineLength) {
						idx.maxLineLength = int(curLineLen)
					}
					idx.offsets = append(idx.offsets, start)
					curLineStart = start
					curLineLen = 0
					continue
				}
				// \r\n is treated as a single terminator by only
				// splitting on \n; a bare \r still counts toward the
				// line's observed length like any other byte.
				curLineLen++
			}
			idx.mu.Unlock()
			scanned += int64(n)
			_ = curLineStart
		}

		now := time.Now()
		if progress != nil && now.Sub(lastReport) >= progressEvery {
			progress(types.Progress{
				Percent: percentOf(scanned, total),
				Scanned: uint64(scanned),
				Total:   uint64(total),
			})
			lastReport = now
		}

		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return engineerr.IOErr("index.build", readErr).WithPath(idx.path)
		}
	}

	idx.mu.Lock()
	if curLineLen > int64(idx.maxLineLength) {
		idx.maxLineLength = int(curLineLen)
	}
	idx.scannedBytes = scanned
	if idx.lineCapBytes > 0 && idx.maxLineLength > idx.lineCapBytes {
		idx.truncated = true
	}
	idx.mu.Unlock()

	if progress != nil {
		progress(types.Progress{Percent: 100, Scanned: uint64(scanned), Total: uint64(total)})
	}

	debug.LogIndex("built index for %s: %d lines, %d bytes\n", idx.path, idx.TotalLines(), scanned)
	return nil
}

func percentOf(scanned, total int64) float64 {
	if total <= 0 {
		return 100
	}
	return float64(scanned) / float64(total) * 100
}

// GrowFrom resumes scanning from the last scanned byte offset, adding
// new line-start offsets for any terminators found in newly appended
// bytes. It is append-only: existing offsets are never modified, per
// spec.md §4.1's "Incremental growth (live mode)".
func (idx *Index) GrowFrom(cfg Config) error {
	f, err := os.Open(idx.path)
	if err != nil {
		debug.LogIndex("ERROR: grow %s: %v\n", idx.path, err)
		return engineerr.IOErr("index.grow", err).WithPath(idx.path)
	}
	defer f.Close()

	idx.mu.Lock()
	from := idx.scannedBytes
	idx.mu.Unlock()

	if _, err := f.Seek(from, io.SeekStart); err != nil {
		return engineerr.IOErr("index.grow", err).WithPath(idx.path)
	}

	reader := bufio.NewReaderSize(f, 64*1024)
	var curLen int64

	idx.mu.Lock()
	defer idx.mu.Unlock()

	scanned := from
	for {
		b, err := reader.ReadByte()
		if err == io.EOF {
			break
		}
		if err != nil {
			return engineerr.IOErr("index.grow", err).WithPath(idx.path)
		}
		scanned++
		if b == '\n' {
			idx.offsets = append(idx.offsets, scanned)
			if curLen > int64(idx.maxLineLength) {
				idx.maxLineLength = int(curLen)
			}
			curLen = 0
			continue
		}
		curLen++
	}
	if curLen > int64(idx.maxLineLength) {
		idx.maxLineLength = int(curLen)
	}
	idx.scannedBytes = scanned
	if idx.lineCapBytes > 0 && idx.maxLineLength > idx.lineCapBytes {
		idx.truncated = true
	}
	debug.LogIndex("grew index for %s to %d lines\n", idx.path, len(idx.offsets)-1)
	return nil
}

// TotalLines returns the number of lines currently published,
// len(offsets)-1. A final line without a trailing newline is counted
// only once FinalizeTrailing has published it.
func (idx *Index) TotalLines() uint64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return uint64(len(idx.offsets) - 1)
}

// FinalizeTrailing accounts for a final line with no trailing
// terminator: if the last recorded offset is before the current
// end-of-scan byte, one more line is implied (spec.md §3: "Trailing
// bytes without a terminator still define a final line").
func (idx *Index) FinalizeTrailing() {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	last := idx.offsets[len(idx.offsets)-1]
	if idx.scannedBytes > last {
		idx.offsets = append(idx.offsets, idx.scannedBytes)
	}
}

// LineBounds returns the [start, end) byte range for line i, including
// its trailing terminator bytes if any were recorded, and whether i is
// in range.
func (idx *Index) LineBounds(i uint64) (start, end int64, ok bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if i+1 >= uint64(len(idx.offsets)) {
		return 0, 0, false
	}
	return idx.offsets[i], idx.offsets[i+1], true
}

// MaxLineLength returns the longest line byte length observed so far.
func (idx *Index) MaxLineLength() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.maxLineLength
}

// Truncated reports whether any observed line exceeded the configured
// line cap.
func (idx *Index) Truncated() bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.truncated
}

// ScannedBytes returns the byte offset up to which the index has been
// built; this is the snapshot length used by FileInfo.SizeBytes for a
// closed, non-live file.
func (idx *Index) ScannedBytes() int64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.scannedBytes
}

// Path returns the backing file path.
func (idx *Index) Path() string {
	return idx.path
}
