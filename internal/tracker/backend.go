package tracker

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"

	"github.com/aifactory/aifctl/internal/logging"
)

// Backend is the storage layer behind the tracker. The file implementation is
// the production default; the memory implementation exists for tests and for
// tooling that wants a throwaway registry.
type Backend interface {
	// Update runs fn over the decoded store under an exclusive lock and, when
	// fn returns nil, writes the result back with a whole-file atomic replace.
	Update(fn func(jobs map[string]*JobRecord) error) error
	// View runs fn over a decoded snapshot under a shared lock.
	View(fn func(jobs map[string]*JobRecord) error) error
}

// FileBackend persists the registry as a single JSON document. Every cycle is
// read-merge-write under an advisory lock on a sibling lock file, so
// concurrent CLI invocations serialize instead of corrupting the store.
type FileBackend struct {
	path string
	lock *flock.Flock
	log  *logging.Logger
}

// NewFileBackend creates a file backend at path. A missing file is treated as
// an empty registry.
func NewFileBackend(path string, log *logging.Logger) (*FileBackend, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	return &FileBackend{
		path: path,
		lock: flock.New(path + ".lock"),
		log:  log,
	}, nil
}

func (b *FileBackend) Update(fn func(jobs map[string]*JobRecord) error) error {
	if err := b.lock.Lock(); err != nil {
		return fmt.Errorf("failed to lock job store: %w", err)
	}
	defer b.lock.Unlock()

	jobs := b.load()
	if err := fn(jobs); err != nil {
		return err
	}
	return b.save(jobs)
}

func (b *FileBackend) View(fn func(jobs map[string]*JobRecord) error) error {
	if err := b.lock.RLock(); err != nil {
		return fmt.Errorf("failed to lock job store: %w", err)
	}
	defer b.lock.Unlock()

	return fn(b.load())
}

// load decodes the store file. A corrupted document is logged loudly and
// treated as empty: losing history is preferable to the tool becoming
// unusable.
func (b *FileBackend) load() map[string]*JobRecord {
	jobs := make(map[string]*JobRecord)

	data, err := os.ReadFile(b.path)
	if err != nil {
		if !os.IsNotExist(err) && b.log != nil {
			b.log.Warn("Failed to read job store, starting empty", map[string]interface{}{
				"path":  b.path,
				"error": err.Error(),
			})
		}
		return jobs
	}
	if len(data) == 0 {
		return jobs
	}

	if err := json.Unmarshal(data, &jobs); err != nil {
		if b.log != nil {
			b.log.Error("Job store is corrupted, reinitializing empty registry", map[string]interface{}{
				"path":  b.path,
				"error": err.Error(),
			})
		}
		return make(map[string]*JobRecord)
	}
	return jobs
}

// save replaces the store file atomically: write a temp file in the same
// directory, then rename over the old document. A crash mid-write leaves the
// previous file intact.
func (b *FileBackend) save(jobs map[string]*JobRecord) error {
	data, err := json.MarshalIndent(jobs, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode job store: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(b.path), ".jobs-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp store file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write job store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp store file: %w", err)
	}
	if err := os.Rename(tmpPath, b.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace job store: %w", err)
	}
	return nil
}

// MemoryBackend keeps the registry in process memory. Views and updates hand
// out deep copies so callers cannot alias stored records.
type MemoryBackend struct {
	mu   sync.Mutex
	jobs map[string]*JobRecord
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{jobs: make(map[string]*JobRecord)}
}

func (b *MemoryBackend) Update(fn func(jobs map[string]*JobRecord) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	copy := b.snapshot()
	if err := fn(copy); err != nil {
		return err
	}
	b.jobs = copy
	return nil
}

func (b *MemoryBackend) View(fn func(jobs map[string]*JobRecord) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	return fn(b.snapshot())
}

func (b *MemoryBackend) snapshot() map[string]*JobRecord {
	out := make(map[string]*JobRecord, len(b.jobs))
	for id, rec := range b.jobs {
		out[id] = rec.Clone()
	}
	return out
}
