// Package rollback persists the single record describing an unfinished
// compensation so that a later run can resume it.
//
// Backends: FileStore (default, local text file), MemoryStore (tests and
// simulation), and RedisStore, PostgresStore and EtcdStore for operators
// who run groupctl from more than one machine. All of them store the same
// text encoding.
package rollback

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/exp/slices"
)

// Store holds at most one Record. Presence of a record means a compensation
// is unresolved; absence means the cluster was left consistent.
// A Store is owned by one coordinator at a time.
type Store interface {
	// Load returns the stored record, or nil if there is none.
	Load(ctx context.Context) (*Record, error)

	// Save replaces any stored record with r. Either the new record is
	// stored in full or the previous state is left untouched.
	Save(ctx context.Context, r *Record) error

	// Clear removes the stored record. No error if there is none.
	Clear(ctx context.Context) error
}

// FileStore keeps the record in a text file. Writes go to a temporary file
// in the same directory and are renamed into place.
type FileStore struct {
	path string
}

// NewFileStore returns a FileStore backed by path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file path.
func (f *FileStore) Path() string { return f.path }

// Load implements Store.
func (f *FileStore) Load(_ context.Context) (*Record, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read rollback file: %w", err)
	}
	return Decode(data)
}

// Save implements Store.
func (f *FileStore) Save(_ context.Context, r *Record) error {
	data, err := Encode(r)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), "."+filepath.Base(f.path)+".*")
	if err != nil {
		return fmt.Errorf("create temp rollback file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op once renamed

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write rollback file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync rollback file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close rollback file: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("replace rollback file: %w", err)
	}
	return nil
}

// Clear implements Store.
func (f *FileStore) Clear(_ context.Context) error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove rollback file: %w", err)
	}
	return nil
}

// MemoryStore keeps the record in process memory. Useful for tests and for
// simulation runs that should leave nothing behind.
type MemoryStore struct {
	mu  sync.Mutex
	rec *Record
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load implements Store. The returned record is a copy.
func (m *MemoryStore) Load(_ context.Context) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return clone(m.rec), nil
}

// Save implements Store.
func (m *MemoryStore) Save(_ context.Context, r *Record) error {
	if err := r.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rec = clone(r)
	return nil
}

// Clear implements Store.
func (m *MemoryStore) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rec = nil
	return nil
}

func clone(r *Record) *Record {
	if r == nil {
		return nil
	}
	return &Record{
		Operation: r.Operation,
		GroupID:   r.GroupID,
		Hosts:     slices.Clone(r.Hosts),
	}
}
