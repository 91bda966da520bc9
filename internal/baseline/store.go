package baseline

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/standardbeagle/logscope/internal/debug"
	"github.com/standardbeagle/logscope/internal/engineerr"
)

// Record is a persisted named fingerprint, per spec.md §3 "Baseline
// record".
type Record struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Tags        []string    `json:"tags"`
	SourceFile  string      `json:"source_file"`
	TotalLines  uint64      `json:"total_lines"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
	Fingerprint Fingerprint `json:"fingerprint"`
}

// Summary is a Record without its fingerprint payload, returned by
// List().
type Summary struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Tags        []string  `json:"tags"`
	SourceFile  string    `json:"source_file"`
	TotalLines  uint64    `json:"total_lines"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type document struct {
	Version   int      `json:"version"`
	Baselines []Record `json:"baselines"`
}

// Store is the single-writer baseline document, persisted atomically
// via write-temp-then-rename (spec.md §5 "Shared-resource policy").
type Store struct {
	mu   sync.Mutex
	path string
	doc  document
}

// Open loads the baseline document at path, or starts an empty store
// if the file does not exist. A corrupt document yields an empty store
// per spec.md §7 "Baseline load errors ... yield an empty store ...
// existing bad file is preserved."
func Open(path string) (*Store, error) {
	s := &Store{path: path, doc: document{Version: 1}}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, engineerr.IOErr("baseline.open", err).WithPath(path)
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		debug.LogBaseline("corrupt document at %s, starting empty: %v\n", path, err)
		return s, nil
	}
	s.doc = doc
	return s, nil
}

// Save prepends a new record and persists the document.
func (s *Store) Save(name, description string, tags []string, sourceFile string, totalLines uint64, fp Fingerprint) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	rec := Record{
		ID:          newID(),
		Name:        name,
		Description: description,
		Tags:        tags,
		SourceFile:  sourceFile,
		TotalLines:  totalLines,
		CreatedAt:   now,
		UpdatedAt:   now,
		Fingerprint: fp,
	}
	s.doc.Baselines = append([]Record{rec}, s.doc.Baselines...)
	if err := s.persist(); err != nil {
		debug.LogBaseline("ERROR: save %q: %v\n", name, err)
		return Record{}, err
	}
	debug.LogBaseline("saved %q (id=%s)\n", name, rec.ID)
	return rec, nil
}

// List returns all records without their fingerprint payload, ordered
// by created_at descending.
func (s *Store) List() []Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Summary, len(s.doc.Baselines))
	for i, r := range s.doc.Baselines {
		out[i] = Summary{
			ID: r.ID, Name: r.Name, Description: r.Description, Tags: r.Tags,
			SourceFile: r.SourceFile, TotalLines: r.TotalLines,
			CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// Get returns the full record, including its fingerprint.
func (s *Store) Get(id string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.doc.Baselines {
		if r.ID == id {
			return r, nil
		}
	}
	return Record{}, engineerr.NotFound("baseline.get", nil)
}

// Update mutates name/description/tags and refreshes updated_at.
func (s *Store) Update(id string, name, description *string, tags []string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.doc.Baselines {
		if s.doc.Baselines[i].ID != id {
			continue
		}
		if name != nil {
			s.doc.Baselines[i].Name = *name
		}
		if description != nil {
			s.doc.Baselines[i].Description = *description
		}
		if tags != nil {
			s.doc.Baselines[i].Tags = tags
		}
		s.doc.Baselines[i].UpdatedAt = time.Now()
		if err := s.persist(); err != nil {
			return Record{}, err
		}
		return s.doc.Baselines[i], nil
	}
	return Record{}, engineerr.NotFound("baseline.update", nil)
}

// Delete removes a record by ID.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.doc.Baselines {
		if r.ID == id {
			s.doc.Baselines = append(s.doc.Baselines[:i], s.doc.Baselines[i+1:]...)
			debug.LogBaseline("deleted id=%s\n", id)
			return s.persist()
		}
	}
	return engineerr.NotFound("baseline.delete", nil)
}

func (s *Store) persist() error {
	data, err := json.MarshalIndent(s.doc, "", "  ")
	if err != nil {
		return engineerr.InvalidInput("baseline.persist", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return engineerr.IOErr("baseline.persist", err).WithPath(dir)
	}
	tmp, err := os.CreateTemp(dir, ".baselines-*.tmp")
	if err != nil {
		return engineerr.IOErr("baseline.persist", err).WithPath(dir)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return engineerr.IOErr("baseline.persist", err).WithPath(tmpPath)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return engineerr.IOErr("baseline.persist", err).WithPath(tmpPath)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return engineerr.IOErr("baseline.persist", err).WithPath(s.path)
	}
	return nil
}

func newID() string {
	buf := make([]byte, 12)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

// MigrateLegacy loads records from a legacy on-disk representation via
// loadLegacy, rewrites the new structured file, and renames the old
// file with a .migrated suffix so migration runs only once, per
// spec.md §4.9 "Migration path".
func MigrateLegacy(legacyPath, newPath string, loadLegacy func(path string) ([]Record, error)) (*Store, error) {
	if _, err := os.Stat(legacyPath); err != nil {
		return Open(newPath)
	}
	records, err := loadLegacy(legacyPath)
	if err != nil {
		return nil, engineerr.IOErr("baseline.migrate", err).WithPath(legacyPath)
	}
	s := &Store{path: newPath, doc: document{Version: 1, Baselines: records}}
	if err := s.persist(); err != nil {
		return nil, err
	}
	if err := os.Rename(legacyPath, legacyPath+".migrated"); err != nil {
		return nil, engineerr.IOErr("baseline.migrate", err).WithPath(legacyPath)
	}
	return s, nil
}
