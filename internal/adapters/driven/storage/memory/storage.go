package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/custodia-labs/fraktag/internal/core/domain"
	"github.com/custodia-labs/fraktag/internal/core/ports/driven"
)

// Ensure Storage implements the interface.
var _ driven.Storage = (*Storage)(nil)

// Storage is an in-memory implementation of driven.Storage.
// It backs tests and the "memory" storage backend.
type Storage struct {
	mu      sync.RWMutex
	records map[string][]byte

	// FailWrites makes every Write return a storage failure. Tests use it
	// to exercise fatal persistence paths.
	FailWrites bool
}

// NewStorage creates a new in-memory storage.
func NewStorage() *Storage {
	return &Storage{
		records: make(map[string][]byte),
	}
}

// Read returns a copy of the record at path.
func (s *Storage) Read(_ context.Context, path string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.records[path]
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, domain.ErrNotFound)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// Write stores a copy of data at path.
func (s *Storage) Write(_ context.Context, path string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWrites {
		return fmt.Errorf("write %s: %w", path, domain.ErrStorageFailure)
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	s.records[path] = buf
	return nil
}

// Delete removes the record at path if present.
func (s *Storage) Delete(_ context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, path)
	return nil
}

// List returns every path with the given prefix, sorted.
func (s *Storage) List(_ context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var paths []string
	for p := range s.records {
		if strings.HasPrefix(p, prefix) {
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// Exists reports whether a record exists at path.
func (s *Storage) Exists(_ context.Context, path string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.records[path]
	return ok, nil
}

// Len returns the number of stored records.
func (s *Storage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
