// Package session owns the engine's per-path mutable state: open file
// handlers and their active filter projections, per spec.md §9 "module
// structure treats as module-level caches (file handlers by path,
// filter state by path)". One mutable reference per operation; no
// global singletons.
package session

import (
	"sync"

	"github.com/standardbeagle/logscope/internal/config"
	"github.com/standardbeagle/logscope/internal/engineerr"
	"github.com/standardbeagle/logscope/internal/fileview"
	"github.com/standardbeagle/logscope/internal/lineindex"
	"github.com/standardbeagle/logscope/internal/sidecar"
	"github.com/standardbeagle/logscope/internal/types"
)

// FileHandle bundles one open file's index, view, and sidecar.
type FileHandle struct {
	Path     string
	Index    *lineindex.Index
	View     *fileview.View
	Sidecar  *sidecar.Sidecar
	Filter   []uint64 // nil = no active filter (all lines visible)
	HasFilter bool
}

// Session is the engine's top-level aggregate: one per running
// process, owning file handlers and filter state by path.
type Session struct {
	mu      sync.RWMutex
	cfg     *config.Config
	appName string
	files   map[string]*FileHandle
}

// New creates a Session under cfg, using appName to derive sidecar
// paths.
func New(cfg *config.Config, appName string) *Session {
	return &Session{
		cfg:     cfg,
		appName: appName,
		files:   make(map[string]*FileHandle),
	}
}

// OpenFile builds a Line Index and File View for path (or returns the
// existing handle if already open), per spec.md §4.1/§4.2.
func (s *Session) OpenFile(path string, cancel *types.CancelToken, progress types.ProgressFunc) (*FileHandle, error) {
	s.mu.Lock()
	if h, ok := s.files[path]; ok {
		s.mu.Unlock()
		return h, nil
	}
	s.mu.Unlock()

	idxCfg := lineindex.Config{
		ChunkBytes:      s.cfg.Index.ChunkBytes,
		LineCapBytes:    s.cfg.Index.LineCapBytes,
		ProgressEveryMs: s.cfg.Index.ProgressEveryMs,
	}
	idx := lineindex.New(path, idxCfg)
	if err := idx.Build(idxCfg, cancel, progress); err != nil {
		return nil, err
	}
	idx.FinalizeTrailing()

	view, err := fileview.New(idx, s.cfg.Index.LineCapBytes)
	if err != nil {
		return nil, err
	}

	sc := sidecar.Open(sidecar.PathFor(s.appName, path))
	_ = sc.Touch()

	h := &FileHandle{Path: path, Index: idx, View: view, Sidecar: sc}

	s.mu.Lock()
	s.files[path] = h
	s.mu.Unlock()
	return h, nil
}

// GrowFile incrementally rescans path's index past its previous
// end-of-file offset, per spec.md §4.5 "The registered Line Index
// responds by incrementally scanning from its previous end-of-file
// offset." The File View reads through the same Index, so it observes
// the new lines without being rebuilt.
func (s *Session) GrowFile(path string) error {
	s.mu.RLock()
	h, ok := s.files[path]
	s.mu.RUnlock()
	if !ok {
		return engineerr.NotFound("session.grow_file", nil)
	}
	idxCfg := lineindex.Config{
		ChunkBytes:      s.cfg.Index.ChunkBytes,
		LineCapBytes:    s.cfg.Index.LineCapBytes,
		ProgressEveryMs: s.cfg.Index.ProgressEveryMs,
	}
	return h.Index.GrowFrom(idxCfg)
}

// Get returns the handle for an already-open path.
func (s *Session) Get(path string) (*FileHandle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.files[path]
	if !ok {
		return nil, engineerr.NotFound("session.get", nil)
	}
	return h, nil
}

// CloseFile discards a file's in-memory state (its filter set, index,
// view); the backing file itself is untouched, per spec.md §3
// "Ownership"/"A filter set ... is discarded when the file is closed."
func (s *Session) CloseFile(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.files, path)
}

// SetFilter atomically swaps in a new filter projection for path.
// Readers observe either the old or the new projection, never a
// partial one, per spec.md §4.4/§5.
func (s *Session) SetFilter(path string, projection []uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.files[path]
	if !ok {
		return engineerr.NotFound("session.set_filter", nil)
	}
	h.Filter = projection
	h.HasFilter = true
	return nil
}

// ClearFilter removes the active filter for path, restoring full
// visibility.
func (s *Session) ClearFilter(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.files[path]
	if !ok {
		return engineerr.NotFound("session.clear_filter", nil)
	}
	h.Filter = nil
	h.HasFilter = false
	return nil
}

// Config returns the session's engine configuration.
func (s *Session) Config() *config.Config {
	return s.cfg
}
