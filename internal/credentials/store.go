package credentials

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// FileStore persists a single TokenRecord as a JSON file. One record per
// store; no inter-process locking.
type FileStore struct {
	path string
}

// NewFileStore creates a store backed by the given path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the persisted record. A missing file returns (nil, nil); an
// unreadable or unparseable file returns an error the caller may treat as
// non-fatal.
func (s *FileStore) Load() (*TokenRecord, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read token file %s: %w", s.path, err)
	}

	record := &TokenRecord{}
	if err := json.Unmarshal(data, record); err != nil {
		return nil, fmt.Errorf("failed to parse token file %s: %w", s.path, err)
	}
	return record, nil
}

// Save writes the record and restricts the file to owner read/write.
func (s *FileStore) Save(record *TokenRecord) error {
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return &PersistenceError{Path: s.path, Err: err}
		}
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return &PersistenceError{Path: s.path, Err: err}
	}

	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return &PersistenceError{Path: s.path, Err: err}
	}

	// WriteFile only applies the mode on create; tighten pre-existing files too.
	if err := os.Chmod(s.path, 0o600); err != nil {
		return &PersistenceError{Path: s.path, Err: err}
	}
	return nil
}
