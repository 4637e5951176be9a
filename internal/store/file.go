package store

import (
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
)

type fileStorage struct {
	dir string
}

// NewFileStorage builds a Storage writing one JSON document per key under dir.
func NewFileStorage(dir string) (Storage, error) {
	if dir == "" {
		return nil, errors.New("store: storage directory required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("store: create storage dir: %w", err)
	}
	return &fileStorage{dir: dir}, nil
}

func (s *fileStorage) Load(key string) ([]byte, bool, error) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("store: read %s: %w", key, err)
	}
	return data, true, nil
}

func (s *fileStorage) Save(key string, data []byte) error {
	path := s.path(key)
	// Write to a temporary file first, then rename, so readers never observe
	// a partial document.
	tmpPath := path + fmt.Sprintf(".tmp.%d", rand.Int())
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return fmt.Errorf("store: write %s: %w", key, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("store: rename %s: %w", key, err)
	}
	return nil
}

func (s *fileStorage) Delete(key string) error {
	if err := os.Remove(s.path(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("store: delete %s: %w", key, err)
	}
	return nil
}

func (s *fileStorage) path(key string) string {
	return filepath.Join(s.dir, key+".json")
}
