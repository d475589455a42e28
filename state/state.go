// Package state remembers which .msg files were already delivered so a
// rerun skips them. Files are keyed by the hash of their bytes.
package state

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const (
	BackendJSONL  = "jsonl"
	BackendSQLite = "sqlite"
)

var ErrUnknownBackend = errors.New("unknown state backend")

type Tracker interface {
	AlreadyProcessed(hash string) bool
	MarkProcessed(hash, source string) error
	Snapshot() Snapshot
	Close() error
}

type Snapshot struct {
	Processed int
}

// Open returns the tracker for backend, storing its data in stateDir. With
// persist false nothing is written; previously recorded files are still
// skipped.
func Open(backend, stateDir string, persist bool) (Tracker, error) {
	switch backend {
	case "", BackendJSONL:
		return NewFileTracker(stateDir, persist)
	case BackendSQLite:
		return NewSQLiteTracker(stateDir, persist)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}

func prepareDir(stateDir string) error {
	if strings.TrimSpace(stateDir) == "" {
		return fmt.Errorf("state directory is empty")
	}
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	return nil
}

type MemoryTracker struct {
	mu        sync.RWMutex
	processed map[string]string
}

func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{processed: make(map[string]string)}
}

func (m *MemoryTracker) AlreadyProcessed(hash string) bool {
	if hash == "" {
		return false
	}

	m.mu.RLock()
	_, ok := m.processed[hash]
	m.mu.RUnlock()
	return ok
}

// mark records hash and reports whether it was new.
func (m *MemoryTracker) mark(hash, source string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.processed[hash]; exists {
		return false
	}
	m.processed[hash] = source
	return true
}

func (m *MemoryTracker) MarkProcessed(hash, source string) error {
	if hash != "" {
		m.mark(hash, source)
	}
	return nil
}

func (m *MemoryTracker) Snapshot() Snapshot {
	m.mu.RLock()
	count := len(m.processed)
	m.mu.RUnlock()
	return Snapshot{Processed: count}
}

func (m *MemoryTracker) Close() error {
	return nil
}

// FileTracker appends one JSON line per delivered file.
type FileTracker struct {
	*MemoryTracker
	path    string
	persist bool
	writer  *bufio.Writer
	file    *os.File
	writeMu sync.Mutex
}

type fileRecord struct {
	Hash   string `json:"hash"`
	Source string `json:"source"`
}

func NewFileTracker(stateDir string, persist bool) (*FileTracker, error) {
	if err := prepareDir(stateDir); err != nil {
		return nil, err
	}

	tracker := &FileTracker{
		MemoryTracker: NewMemoryTracker(),
		path:          filepath.Join(stateDir, "processed-msg.jsonl"),
		persist:       persist,
	}

	if err := tracker.load(); err != nil {
		return nil, err
	}

	if persist {
		file, err := os.OpenFile(tracker.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, fmt.Errorf("open state file for append: %w", err)
		}
		tracker.file = file
		tracker.writer = bufio.NewWriterSize(file, 64*1024)
	}

	return tracker, nil
}

func (f *FileTracker) load() error {
	file, err := os.Open(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open state file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for line := 1; scanner.Scan(); line++ {
		text := scanner.Bytes()
		if len(text) == 0 {
			continue
		}

		var record fileRecord
		if err := json.Unmarshal(text, &record); err != nil {
			return fmt.Errorf("parse state line %d: %w", line, err)
		}
		if record.Hash != "" {
			f.mark(record.Hash, record.Source)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read state file: %w", err)
	}
	return nil
}

func (f *FileTracker) MarkProcessed(hash, source string) error {
	if hash == "" || !f.mark(hash, source) || !f.persist {
		return nil
	}

	data, err := json.Marshal(fileRecord{Hash: hash, Source: source})
	if err != nil {
		return fmt.Errorf("encode state record: %w", err)
	}

	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	if _, err := f.writer.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write state record: %w", err)
	}
	return nil
}

// Flush writes any buffered data to the underlying file.
func (f *FileTracker) Flush() error {
	if !f.persist || f.writer == nil {
		return nil
	}

	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	if err := f.writer.Flush(); err != nil {
		return fmt.Errorf("flush state file: %w", err)
	}
	return f.file.Sync()
}

// Close flushes and closes the state file.
func (f *FileTracker) Close() error {
	if !f.persist || f.file == nil {
		return nil
	}

	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	return errors.Join(
		wrapErr("flush state file", f.writer.Flush()),
		wrapErr("sync state file", f.file.Sync()),
		wrapErr("close state file", f.file.Close()),
	)
}

func wrapErr(msg string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}
