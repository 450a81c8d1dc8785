package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"commerce-agent/internal/models"
)

// FileStore keeps orders as a JSON array in a single file.
// Every append rewrites the file through a temp file and rename.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates a file store, creating an empty array file if needed
func NewFileStore(path string) (*FileStore, error) {
	s := &FileStore{path: path}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create orders dir: %w", err)
		}
		if err := s.write([]models.OrderRecord{}); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *FileStore) read() ([]models.OrderRecord, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read orders: %w", err)
	}
	orders := make([]models.OrderRecord, 0)
	if err := json.Unmarshal(data, &orders); err != nil {
		return nil, fmt.Errorf("failed to parse orders: %w", err)
	}
	return orders, nil
}

func (s *FileStore) write(orders []models.OrderRecord) error {
	data, err := json.MarshalIndent(orders, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write orders: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace orders: %w", err)
	}
	return nil
}

func (s *FileStore) Append(_ context.Context, record models.OrderRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	orders, err := s.read()
	if err != nil {
		return err
	}
	return s.write(append(orders, record))
}

func (s *FileStore) List(_ context.Context) ([]models.OrderRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}
