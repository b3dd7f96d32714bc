package selection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
)

// ErrCorrupt is returned when the persisted selection cannot be decoded.
var ErrCorrupt = errors.New("selection file is corrupt")

// Store reads and writes the selected database filename.
type Store interface {
	// Load returns the selected filename, or "" when nothing is selected.
	Load(ctx context.Context) (string, error)

	// Save replaces the selected filename.
	Save(ctx context.Context, name string) error
}

// fileRecord is the on-disk shape: one object with one key.
type fileRecord struct {
	FileName string `json:"file_name"`
}

// FileStore keeps the selection in a small JSON file.
type FileStore struct {
	path string
}

// NewFileStore creates a FileStore backed by path. The file is created on first Save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the selection from disk.
func (s *FileStore) Load(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Debug().Str("path", s.path).Msg("No saved selection found")
			return "", nil
		}
		return "", fmt.Errorf("failed to read selection file: %w", err)
	}

	var record fileRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return "", fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	return record.FileName, nil
}

// Save writes the selection to disk, replacing any previous content.
func (s *FileStore) Save(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(fileRecord{FileName: name})
	if err != nil {
		return fmt.Errorf("failed to marshal selection: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create selection directory: %w", err)
	}

	// Write to a sibling temp file and rename so readers never see a partial object.
	tmp, err := os.CreateTemp(dir, ".selection-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp selection file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write selection: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close selection file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace selection file: %w", err)
	}

	log.Debug().Str("path", s.path).Str("file_name", name).Msg("Selection saved")

	return nil
}

// MemoryStore keeps the selection in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	name string
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load returns the current selection.
func (s *MemoryStore) Load(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.name, nil
}

// Save replaces the current selection.
func (s *MemoryStore) Save(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.name = name
	return nil
}
