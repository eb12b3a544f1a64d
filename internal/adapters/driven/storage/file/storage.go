// Package file provides a filesystem-backed implementation of driven.Storage.
// Every record is one file under the root directory; the record path maps
// directly to the relative file path.
package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/custodia-labs/fraktag/internal/core/domain"
	"github.com/custodia-labs/fraktag/internal/core/ports/driven"
)

// Ensure Storage implements the interface.
var _ driven.Storage = (*Storage)(nil)

// Storage stores records as files below a root directory.
type Storage struct {
	root string
}

// NewStorage creates the root directory if needed and returns a storage.
func NewStorage(root string) (*Storage, error) {
	if root == "" {
		return nil, fmt.Errorf("storage root is empty: %w", domain.ErrInvalidInput)
	}
	if err := os.MkdirAll(root, 0700); err != nil {
		return nil, fmt.Errorf("creating storage root: %w", errors.Join(domain.ErrStorageFailure, err))
	}
	return &Storage{root: root}, nil
}

// Root returns the root directory.
func (s *Storage) Root() string {
	return s.root
}

func (s *Storage) resolve(p string) (string, error) {
	clean := path.Clean("/" + p)
	if clean == "/" || strings.Contains(p, "..") {
		return "", fmt.Errorf("invalid record path %q: %w", p, domain.ErrInvalidInput)
	}
	return filepath.Join(s.root, filepath.FromSlash(strings.TrimPrefix(clean, "/"))), nil
}

func failure(op, p string, err error) error {
	return fmt.Errorf("%s %s: %w", op, p, errors.Join(domain.ErrStorageFailure, err))
}

// Read returns the contents of the record at p.
func (s *Storage) Read(_ context.Context, p string) ([]byte, error) {
	full, err := s.resolve(p)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", p, domain.ErrNotFound)
	}
	if err != nil {
		return nil, failure("read", p, err)
	}
	return data, nil
}

// Write atomically replaces the record at p.
func (s *Storage) Write(_ context.Context, p string, data []byte) error {
	full, err := s.resolve(p)
	if err != nil {
		return err
	}
	dir := filepath.Dir(full)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return failure("write", p, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return failure("write", p, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return failure("write", p, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return failure("write", p, err)
	}
	if err := os.Rename(tmpName, full); err != nil {
		os.Remove(tmpName)
		return failure("write", p, err)
	}
	return nil
}

// Delete removes the record at p. Missing records are ignored.
func (s *Storage) Delete(_ context.Context, p string) error {
	full, err := s.resolve(p)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return failure("delete", p, err)
	}
	return nil
}

// List returns every record path beginning with prefix, sorted.
func (s *Storage) List(_ context.Context, prefix string) ([]string, error) {
	// Walk only the deepest directory the prefix names.
	base := s.root
	if i := strings.LastIndex(prefix, "/"); i >= 0 {
		base = filepath.Join(s.root, filepath.FromSlash(prefix[:i]))
	}

	var out []string
	err := filepath.WalkDir(base, func(full string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".tmp-") {
			return nil
		}
		rel, err := filepath.Rel(s.root, full)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if strings.HasPrefix(rel, prefix) {
			out = append(out, rel)
		}
		return nil
	})
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, failure("list", prefix, err)
	}
	sort.Strings(out)
	return out, nil
}

// Exists reports whether a record exists at p.
func (s *Storage) Exists(_ context.Context, p string) (bool, error) {
	full, err := s.resolve(p)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(full)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, failure("stat", p, err)
	}
	return true, nil
}
