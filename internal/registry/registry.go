// Package registry tracks live connections and enforces the
// process-wide concurrent-connection cap (spec.md §3 "Live connection",
// §5 "Shared-resource policy"). Admission control is grounded on the
// teacher's internal/indexing/concurrent_operations.go worker-limiting
// pattern, generalized from concurrent index builds to concurrent live
// connections via golang.org/x/sync/semaphore.
package registry

import (
	"context"
	"sync"
	"time"

	"github.com/standardbeagle/logscope/internal/engineerr"
	"github.com/standardbeagle/logscope/internal/ingest"
	"golang.org/x/sync/semaphore"
)

// SourceKind is the producer behind a live connection.
type SourceKind string

const (
	SourceSerial     SourceKind = "serial"
	SourceDeviceLog  SourceKind = "device-log"
	SourceSSH        SourceKind = "ssh"
)

// State is a connection's lifecycle stage.
type State string

const (
	StateCreated      State = "created"
	StateActive       State = "active"
	StateDisconnected State = "disconnected"
)

// Connection is one live connection per spec.md §3.
type Connection struct {
	ID              string
	SourceKind      SourceKind
	DisplayName     string
	Detail          string
	BackingFilePath string
	ConnectedSince  time.Time
	State           State
	LineCount       uint64

	stream *ingest.Stream
}

// Stream returns the connection's ingest stream.
func (c *Connection) Stream() *ingest.Stream {
	return c.stream
}

// Registry tracks live connections and admits at most a fixed number
// concurrently (recommended 4, per spec.md §3).
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*Connection
	sem   *semaphore.Weighted
	maxID int
}

// New creates a Registry capped at maxConnections concurrent live
// connections.
func New(maxConnections int) *Registry {
	if maxConnections <= 0 {
		maxConnections = 4
	}
	return &Registry{
		conns: make(map[string]*Connection),
		sem:   semaphore.NewWeighted(int64(maxConnections)),
	}
}

// Connect admits a new connection if under the concurrency cap,
// opening its backing file and wiring its ingest stream. Returns a
// capacity error if the cap is already reached.
func (r *Registry) Connect(ctx context.Context, kind SourceKind, displayName, detail, backingPath string) (*Connection, error) {
	if !r.sem.TryAcquire(1) {
		return nil, engineerr.Capacity("registry.connect", nil)
	}

	stream, err := ingest.Open(backingPath)
	if err != nil {
		r.sem.Release(1)
		return nil, err
	}

	r.mu.Lock()
	r.maxID++
	id := connID(r.maxID)
	conn := &Connection{
		ID:              id,
		SourceKind:      kind,
		DisplayName:     displayName,
		Detail:          detail,
		BackingFilePath: backingPath,
		ConnectedSince:  time.Now(),
		State:           StateActive,
		stream:          stream,
	}
	r.conns[id] = conn
	r.mu.Unlock()

	return conn, nil
}

// Disconnect stops a connection from receiving new bytes but leaves
// its backing file indexable, per spec.md §3 lifecycle.
func (r *Registry) Disconnect(id string) error {
	r.mu.Lock()
	conn, ok := r.conns[id]
	r.mu.Unlock()
	if !ok {
		return engineerr.NotFound("registry.disconnect", nil)
	}

	err := conn.stream.Disconnect()

	r.mu.Lock()
	conn.State = StateDisconnected
	r.mu.Unlock()
	r.sem.Release(1)
	return err
}

// Remove deletes the backing file and forgets the connection. Only
// valid once disconnected.
func (r *Registry) Remove(id string, removeFile func(path string) error) error {
	r.mu.Lock()
	conn, ok := r.conns[id]
	if ok && conn.State == StateDisconnected {
		delete(r.conns, id)
	}
	r.mu.Unlock()
	if !ok {
		return engineerr.NotFound("registry.remove", nil)
	}
	if conn.State != StateDisconnected {
		return engineerr.InvalidInput("registry.remove", nil)
	}
	return removeFile(conn.BackingFilePath)
}

// Get returns a connection by ID.
func (r *Registry) Get(id string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[id]
	return c, ok
}

// List returns all tracked connections.
func (r *Registry) List() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Connection, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}
	return out
}

// RecordLines adds added to a connection's observed line count. The
// registry does not call it itself; LineCount changes only through it.
func (r *Registry) RecordLines(id string, added int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.conns[id]; ok {
		c.LineCount += uint64(added)
	}
}

func connID(n int) string {
	const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	if n == 0 {
		return "conn-0"
	}
	buf := make([]byte, 0, 8)
	for n > 0 {
		buf = append([]byte{alphabet[n%len(alphabet)]}, buf...)
		n /= len(alphabet)
	}
	return "conn-" + string(buf)
}
