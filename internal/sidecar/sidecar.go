// Package sidecar implements spec.md §6's per-file JSON sidecar:
// bookmarks, highlights, and capped activity history, written via
// write-temp-then-rename so readers never observe a partial document.
// CRUD methods are SPEC_FULL.md's "Navigate-to-line bookmarking"
// supplement over the spec's raw key-value JSON passthrough.
package sidecar

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/standardbeagle/logscope/internal/engineerr"
)

const (
	maxActivityEntries = 500
	trimmedActivityLen = 400
)

// Bookmark marks a line of interest in a file.
type Bookmark struct {
	ID        string    `json:"id"`
	Line      uint64    `json:"line"`
	Note      string    `json:"note"`
	CreatedAt time.Time `json:"created_at"`
}

// Highlight marks a byte range within a line for visual emphasis.
type Highlight struct {
	ID        string    `json:"id"`
	Line      uint64    `json:"line"`
	Column    int       `json:"column"`
	Length    int       `json:"length"`
	Color     string    `json:"color"`
	CreatedAt time.Time `json:"created_at"`
}

// ActivityEntry records one user action against the file.
type ActivityEntry struct {
	Action    string    `json:"action"`
	Detail    string    `json:"detail"`
	Timestamp time.Time `json:"timestamp"`
}

// Document is the per-file sidecar persisted at
// <dir>/.<app>/<filename>.json, per spec.md §6.
type Document struct {
	Bookmarks  []Bookmark      `json:"bookmarks"`
	Highlights []Highlight     `json:"highlights"`
	Activity   []ActivityEntry `json:"activity"`
	LastOpened time.Time       `json:"last_opened"`
}

// Sidecar is the single-writer handle over one file's Document.
type Sidecar struct {
	mu   sync.Mutex
	path string
	doc  Document
}

// Open loads the sidecar at path, or starts an empty one if absent.
// Per spec.md §7, sidecar failures are never fatal — a corrupt file
// degrades to an empty in-memory document.
func Open(path string) *Sidecar {
	s := &Sidecar{path: path}
	data, err := os.ReadFile(path)
	if err != nil {
		return s
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return s
	}
	s.doc = doc
	return s
}

// Touch updates the last-opened timestamp and persists.
func (s *Sidecar) Touch() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.LastOpened = time.Now()
	return s.persist()
}

// AddBookmark appends a bookmark and persists.
func (s *Sidecar) AddBookmark(line uint64, note string) (Bookmark, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := Bookmark{ID: newID(), Line: line, Note: note, CreatedAt: time.Now()}
	s.doc.Bookmarks = append(s.doc.Bookmarks, b)
	if err := s.persist(); err != nil {
		return Bookmark{}, err
	}
	return b, nil
}

// RemoveBookmark deletes a bookmark by ID.
func (s *Sidecar) RemoveBookmark(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, b := range s.doc.Bookmarks {
		if b.ID == id {
			s.doc.Bookmarks = append(s.doc.Bookmarks[:i], s.doc.Bookmarks[i+1:]...)
			return s.persist()
		}
	}
	return engineerr.NotFound("sidecar.remove_bookmark", nil)
}

// Bookmarks returns the current bookmark list.
func (s *Sidecar) Bookmarks() []Bookmark {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Bookmark, len(s.doc.Bookmarks))
	copy(out, s.doc.Bookmarks)
	return out
}

// AddHighlight appends a highlight and persists.
func (s *Sidecar) AddHighlight(line uint64, column, length int, color string) (Highlight, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := Highlight{ID: newID(), Line: line, Column: column, Length: length, Color: color, CreatedAt: time.Now()}
	s.doc.Highlights = append(s.doc.Highlights, h)
	if err := s.persist(); err != nil {
		return Highlight{}, err
	}
	return h, nil
}

// RemoveHighlight deletes a highlight by ID.
func (s *Sidecar) RemoveHighlight(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, h := range s.doc.Highlights {
		if h.ID == id {
			s.doc.Highlights = append(s.doc.Highlights[:i], s.doc.Highlights[i+1:]...)
			return s.persist()
		}
	}
	return engineerr.NotFound("sidecar.remove_highlight", nil)
}

// Highlights returns the current highlight list.
func (s *Sidecar) Highlights() []Highlight {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Highlight, len(s.doc.Highlights))
	copy(out, s.doc.Highlights)
	return out
}

// RecordActivity appends an activity entry, trimming to 400 once the
// history exceeds 500 entries, per spec.md §6.
func (s *Sidecar) RecordActivity(action, detail string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.Activity = append(s.doc.Activity, ActivityEntry{Action: action, Detail: detail, Timestamp: time.Now()})
	if len(s.doc.Activity) > maxActivityEntries {
		excess := len(s.doc.Activity) - trimmedActivityLen
		s.doc.Activity = s.doc.Activity[excess:]
	}
	return s.persist()
}

// Activity returns the current activity history.
func (s *Sidecar) Activity() []ActivityEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ActivityEntry, len(s.doc.Activity))
	copy(out, s.doc.Activity)
	return out
}

func (s *Sidecar) persist() error {
	data, err := json.MarshalIndent(s.doc, "", "  ")
	if err != nil {
		return engineerr.InvalidInput("sidecar.persist", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return engineerr.IOErr("sidecar.persist", err).WithPath(dir)
	}
	tmp, err := os.CreateTemp(dir, ".sidecar-*.tmp")
	if err != nil {
		return engineerr.IOErr("sidecar.persist", err).WithPath(dir)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return engineerr.IOErr("sidecar.persist", err).WithPath(tmpPath)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return engineerr.IOErr("sidecar.persist", err).WithPath(tmpPath)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return engineerr.IOErr("sidecar.persist", err).WithPath(s.path)
	}
	return nil
}

// PathFor builds the per-file sidecar path <dir>/.<app>/<filename>.json.
func PathFor(appDirName, filePath string) string {
	dir := filepath.Dir(filePath)
	name := filepath.Base(filePath)
	return filepath.Join(dir, "."+appDirName, name+".json")
}

func newID() string {
	buf := make([]byte, 12)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}
