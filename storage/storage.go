package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/luca-patrignani/popcore/protocol"
)

// ErrNotFound is returned when no snapshot exists for a LAO.
var ErrNotFound = errors.New("snapshot not found")

// Record is one accepted message and the channel it was received on.
type Record struct {
	Channel string                  `msgpack:"channel"`
	Message protocol.MessageGeneral `msgpack:"message"`
}

type Snapshot struct {
	LaoID   string    `msgpack:"lao_id"`
	SavedAt time.Time `msgpack:"saved_at"`
	Records []Record  `msgpack:"records"`
}

// Store loads and saves snapshots by LAO id.
type Store interface {
	Load(laoID string) (Snapshot, error)
	Save(s Snapshot) error
}

func Marshal(s Snapshot) ([]byte, error) {
	b, err := msgpack.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot of %s: %w", s.LaoID, err)
	}
	return b, nil
}

func Unmarshal(b []byte) (Snapshot, error) {
	var s Snapshot
	if err := msgpack.Unmarshal(b, &s); err != nil {
		return Snapshot{}, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return s, nil
}

// FileStore keeps one <laoID>.snapshot file per LAO in a directory.
type FileStore struct {
	dir  string
	mode os.FileMode
	mu   sync.Mutex
}

var _ Store = (*FileStore)(nil)

type FileOption func(*FileStore)

// WithFileMode sets the permissions of snapshot files. Default 0600.
func WithFileMode(mode os.FileMode) FileOption {
	return func(f *FileStore) {
		f.mode = mode
	}
}

// NewFileStore creates dir if needed.
func NewFileStore(dir string, opts ...FileOption) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	f := &FileStore{dir: dir, mode: 0o600}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

func (f *FileStore) path(laoID string) (string, error) {
	if laoID == "" || strings.ContainsAny(laoID, `/\`) || laoID == "." || laoID == ".." {
		return "", fmt.Errorf("invalid lao id %q", laoID)
	}
	return filepath.Join(f.dir, laoID+".snapshot"), nil
}

func (f *FileStore) Load(laoID string) (Snapshot, error) {
	path, err := f.path(laoID)
	if err != nil {
		return Snapshot{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrNotFound, laoID)
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to read snapshot: %w", err)
	}
	s, err := Unmarshal(b)
	if err != nil {
		return Snapshot{}, err
	}
	if s.LaoID != laoID {
		return Snapshot{}, fmt.Errorf("snapshot file %s holds lao %s", path, s.LaoID)
	}
	return s, nil
}

// Save writes the snapshot to a temporary file and renames it over the
// previous one.
func (f *FileStore) Save(s Snapshot) error {
	path, err := f.path(s.LaoID)
	if err != nil {
		return err
	}
	b, err := Marshal(s)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	tmp, err := os.CreateTemp(f.dir, s.LaoID+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close snapshot: %w", err)
	}
	if err := os.Chmod(tmp.Name(), f.mode); err != nil {
		return fmt.Errorf("failed to set snapshot mode: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}
	return nil
}

// MemoryStore keeps encoded snapshots in memory.
type MemoryStore struct {
	mu        sync.Mutex
	snapshots map[string][]byte
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snapshots: map[string][]byte{}}
}

func (m *MemoryStore) Load(laoID string) (Snapshot, error) {
	m.mu.Lock()
	b, ok := m.snapshots[laoID]
	m.mu.Unlock()
	if !ok {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrNotFound, laoID)
	}
	return Unmarshal(b)
}

// Save stores an encoded copy, so later changes to s are not seen.
func (m *MemoryStore) Save(s Snapshot) error {
	b, err := Marshal(s)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[s.LaoID] = b
	return nil
}
