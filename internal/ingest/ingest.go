// Package ingest implements spec.md §4.5: accepting byte chunks from a
// live producer (serial, device log, remote tail), normalizing line
// endings, prefixing a wall-clock timestamp, and appending to a backing
// file. The residual-buffer-across-chunks idiom is grounded on
// other_examples' DataDog file-tailer and CloudWatch agent tail reader.
package ingest

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/standardbeagle/logscope/internal/debug"
	"github.com/standardbeagle/logscope/internal/engineerr"
)

// EventKind distinguishes the three ingest notification kinds, per
// spec.md §4.5 "Notification"/"Error propagation".
type EventKind string

const (
	EventLinesAdded  EventKind = "lines-added"
	EventError       EventKind = "error"
	EventDisconnected EventKind = "disconnected"
)

// Event is published on the stream's event channel.
type Event struct {
	Kind      EventKind
	LineCount int
	Err       error
}

// now is overridable in tests.
var now = time.Now

// Stream accepts byte chunks from a producer and appends normalized,
// timestamped lines to a backing file.
type Stream struct {
	mu       sync.Mutex
	file     *os.File
	path     string
	residual []byte
	events   chan Event
	closed   bool

	watcher  *fsnotify.Watcher
	watchWg  sync.WaitGroup
	sizeMu   sync.Mutex
	lastSize int64
}

// Open creates (or truncates) the backing file at path and returns a
// Stream ready to accept chunks. A background fsnotify watch on path is
// started so growth events reach the caller even if they bypass Write
// (e.g. a producer that appends to the backing file directly), per
// spec.md §4.5's notification-reliability requirement.
func Open(path string) (*Stream, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		debug.LogIngest("ERROR: open %s: %v\n", path, err)
		return nil, engineerr.IOErr("ingest.open", err).WithPath(path)
	}
	s := &Stream{
		file:   f,
		path:   path,
		events: make(chan Event, 16),
	}
	s.startWatch()
	debug.LogIngest("opened backing file %s\n", path)
	return s, nil
}

// startWatch watches the backing file for out-of-band growth. Failure to
// start the watcher is non-fatal: explicit Write calls already emit
// lines-added, so the watcher is a backup notification path, not the
// only one.
func (s *Stream) startWatch() {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return
	}
	if err := w.Add(s.path); err != nil {
		_ = w.Close()
		return
	}
	s.watcher = w
	s.watchWg.Add(1)
	go s.watchLoop(w)
}

func (s *Stream) watchLoop(w *fsnotify.Watcher) {
	defer s.watchWg.Done()
	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				s.checkGrowth()
			}
		case _, ok := <-w.Errors:
			if !ok {
				return
			}
		}
	}
}

// checkGrowth emits lines-added when the backing file's size grew since
// the last check, for growth the Stream's own Write didn't originate.
// LineCount is 0 (unknown): callers that rely on this path re-grow their
// line index from the previous end-of-file offset rather than trusting a
// count.
func (s *Stream) checkGrowth() {
	info, err := os.Stat(s.path)
	if err != nil {
		return
	}
	s.sizeMu.Lock()
	grew := info.Size() > s.lastSize
	s.lastSize = info.Size()
	s.sizeMu.Unlock()
	if grew {
		s.emit(Event{Kind: EventLinesAdded})
	}
}

// Events returns the channel on which lines-added/error/disconnected
// events are published.
func (s *Stream) Events() <-chan Event {
	return s.events
}

// Path returns the backing file path.
func (s *Stream) Path() string {
	return s.path
}

// Write splits chunk into lines on \n, \r, or \r\n, prefixes each
// complete line with a wall-clock timestamp, appends to the backing
// file, and emits a lines-added event. Incomplete residual is retained
// for the next call.
func (s *Stream) Write(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return engineerr.InvalidInput("ingest.write", fmt.Errorf("stream closed"))
	}

	buf := append(s.residual, chunk...)
	lines, residual := splitLines(buf)
	s.residual = residual

	if len(lines) == 0 {
		return nil
	}

	if err := s.appendLines(lines); err != nil {
		debug.LogIngest("ERROR: append to %s: %v\n", s.path, err)
		s.emit(Event{Kind: EventError, Err: err})
		return err
	}
	s.emit(Event{Kind: EventLinesAdded, LineCount: len(lines)})
	return nil
}

// Disconnect flushes any residual as a final line, closes the file,
// and emits disconnected. Graceful per spec.md §4.5 "A disconnect()
// call by the caller".
func (s *Stream) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	if len(s.residual) > 0 {
		if err := s.appendLines([][]byte{s.residual}); err != nil {
			s.residual = nil
			s.closed = true
			_ = s.file.Close()
			s.stopWatch()
			s.emit(Event{Kind: EventError, Err: err})
			s.emit(Event{Kind: EventDisconnected})
			return err
		}
		s.residual = nil
	}
	s.closed = true
	err := s.file.Close()
	s.stopWatch()
	debug.LogIngest("disconnected %s\n", s.path)
	s.emit(Event{Kind: EventDisconnected})
	return err
}

// Fatal reports a non-recoverable producer error: emits error then
// disconnected, per spec.md §4.5 "a fatal producer error also emits
// disconnected".
func (s *Stream) Fatal(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	debug.LogIngest("FATAL: %s: %v\n", s.path, err)
	s.emit(Event{Kind: EventError, Err: err})
	if !s.closed {
		s.closed = true
		_ = s.file.Close()
		s.stopWatch()
	}
	s.emit(Event{Kind: EventDisconnected})
}

// stopWatch closes the fsnotify watcher and waits for watchLoop to exit.
// Called with s.mu held; watchLoop only reads from w's channels so it
// can't deadlock on s.mu during shutdown.
func (s *Stream) stopWatch() {
	if s.watcher == nil {
		return
	}
	_ = s.watcher.Close()
	s.watchWg.Wait()
	s.watcher = nil
}

func (s *Stream) emit(e Event) {
	select {
	case s.events <- e:
	default:
		// Drop rather than block the producer; events are a
		// best-effort notification channel.
	}
}

func (s *Stream) appendLines(lines [][]byte) error {
	ts := now().Format("2006-01-02 15:04:05.000")
	for _, line := range lines {
		record := append([]byte(ts+" "), line...)
		record = append(record, '\n')
		n, err := s.file.Write(record)
		if err != nil {
			return engineerr.IOErr("ingest.append", err).WithPath(s.path)
		}
		s.sizeMu.Lock()
		s.lastSize += int64(n)
		s.sizeMu.Unlock()
	}
	return nil
}

// splitLines splits buf on \n, \r, or \r\n, returning complete lines
// and any trailing residual with no terminator.
func splitLines(buf []byte) ([][]byte, []byte) {
	var lines [][]byte
	start := 0
	for i := 0; i < len(buf); i++ {
		switch buf[i] {
		case '\n':
			lines = append(lines, buf[start:i])
			start = i + 1
		case '\r':
			lines = append(lines, buf[start:i])
			if i+1 < len(buf) && buf[i+1] == '\n' {
				i++
			}
			start = i + 1
		}
	}
	residual := append([]byte(nil), buf[start:]...)
	return lines, residual
}
