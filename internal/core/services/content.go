package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/fraktag/internal/core/domain"
	"github.com/custodia-labs/fraktag/internal/core/ports/driven"
)

const (
	contentPrefix = "content/"
	hashPrefix    = "content/by-hash/"
)

// ContentStore is the blob store: versioned content atoms addressed by id,
// with hash deduplication for readonly atoms.
type ContentStore struct {
	storage driven.Storage
	now     func() time.Time

	// mu serialises create so two identical readonly payloads cannot race
	// past the hash lookup.
	mu sync.Mutex
}

// NewContentStore creates a blob store on top of storage.
func NewContentStore(storage driven.Storage) *ContentStore {
	return &ContentStore{
		storage: storage,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// HashPayload returns the hex sha256 of a payload.
func HashPayload(payload string) string {
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

func atomPath(id string) string {
	return contentPrefix + id + ".json"
}

// Create stores a new atom. A readonly payload whose hash is already stored
// returns the existing atom instead. Versions (Supersedes set) are always
// new atoms but still register their hash when no other atom owns it, so a
// later readonly create of the same payload shares the version. Editable
// atoms are never shared.
func (s *ContentStore) Create(ctx context.Context, in domain.AtomSpec) (*domain.ContentAtom, error) {
	mode := in.EditMode
	if mode == "" {
		mode = domain.EditModeReadonly
	}
	if !mode.IsValid() {
		return nil, fmt.Errorf("edit mode %q: %w", mode, domain.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	hash := HashPayload(in.Payload)
	readonly := mode == domain.EditModeReadonly
	owned := false
	if readonly {
		existing, err := s.GetByHash(ctx, hash)
		switch {
		case err == nil && in.Supersedes == "":
			return existing, nil
		case err == nil:
			owned = true
		case !errors.Is(err, domain.ErrNotFound):
			return nil, err
		}
	}

	atom := &domain.ContentAtom{
		ID:          uuid.New().String(),
		ContentHash: hash,
		Payload:     in.Payload,
		MediaType:   in.MediaType,
		CreatedBy:   in.CreatedBy,
		CreatedAt:   s.now(),
		SourceURI:   in.SourceURI,
		Supersedes:  in.Supersedes,
		EditMode:    mode,
	}
	if err := s.write(ctx, atom); err != nil {
		return nil, err
	}
	if readonly && !owned {
		if err := s.storage.Write(ctx, hashPrefix+hash, []byte(atom.ID)); err != nil {
			return nil, fmt.Errorf("writing hash pointer: %w", err)
		}
	}
	return atom, nil
}

// Get returns the atom with the given id.
func (s *ContentStore) Get(ctx context.Context, id string) (*domain.ContentAtom, error) {
	if id == "" || strings.Contains(id, "/") {
		return nil, fmt.Errorf("atom %q: %w", id, domain.ErrNotFound)
	}
	data, err := s.storage.Read(ctx, atomPath(id))
	if err != nil {
		return nil, fmt.Errorf("atom %s: %w", id, err)
	}
	var atom domain.ContentAtom
	if err := json.Unmarshal(data, &atom); err != nil {
		return nil, fmt.Errorf("decoding atom %s: %w", id, errors.Join(domain.ErrStorageFailure, err))
	}
	return &atom, nil
}

// GetByHash returns the shared readonly atom for a content hash.
func (s *ContentStore) GetByHash(ctx context.Context, hash string) (*domain.ContentAtom, error) {
	id, err := s.storage.Read(ctx, hashPrefix+hash)
	if err != nil {
		return nil, fmt.Errorf("hash %s: %w", hash, err)
	}
	return s.Get(ctx, string(id))
}

// Update overwrites the payload and hash of an editable atom in place.
// Readonly atoms must be versioned through Create with Supersedes instead.
func (s *ContentStore) Update(ctx context.Context, id, payload string) (*domain.ContentAtom, error) {
	atom, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if atom.EditMode != domain.EditModeEditable {
		return nil, fmt.Errorf("atom %s is readonly: %w", id, domain.ErrInvalidInput)
	}
	atom.Payload = payload
	atom.ContentHash = HashPayload(payload)
	if err := s.write(ctx, atom); err != nil {
		return nil, err
	}
	return atom, nil
}

// IDs returns the id of every stored atom.
func (s *ContentStore) IDs(ctx context.Context) ([]string, error) {
	paths, err := s.storage.List(ctx, contentPrefix)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(paths))
	for _, p := range paths {
		if strings.HasPrefix(p, hashPrefix) || !strings.HasSuffix(p, ".json") {
			continue
		}
		rest := strings.TrimSuffix(strings.TrimPrefix(p, contentPrefix), ".json")
		if strings.Contains(rest, "/") {
			continue
		}
		ids = append(ids, rest)
	}
	return ids, nil
}

// Prune deletes every atom whose id is not in live and returns the number
// removed. Hash pointers to removed atoms are deleted with them.
func (s *ContentStore) Prune(ctx context.Context, live map[string]bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids, err := s.IDs(ctx)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, id := range ids {
		if live[id] {
			continue
		}
		atom, err := s.Get(ctx, id)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return removed, err
		}
		if atom.EditMode == domain.EditModeReadonly {
			if err := s.dropHashPointer(ctx, atom); err != nil {
				return removed, err
			}
		}
		if err := s.storage.Delete(ctx, atomPath(id)); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// History walks the supersession chain starting at id, newest first.
func (s *ContentStore) History(ctx context.Context, id string) ([]*domain.ContentAtom, error) {
	var chain []*domain.ContentAtom
	seen := make(map[string]bool)
	for id != "" && !seen[id] {
		seen[id] = true
		atom, err := s.Get(ctx, id)
		if err != nil {
			// Older versions may already have been pruned.
			if len(chain) > 0 && errors.Is(err, domain.ErrNotFound) {
				break
			}
			return nil, err
		}
		chain = append(chain, atom)
		id = atom.Supersedes
	}
	return chain, nil
}

func (s *ContentStore) dropHashPointer(ctx context.Context, atom *domain.ContentAtom) error {
	owner, err := s.storage.Read(ctx, hashPrefix+atom.ContentHash)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if string(owner) != atom.ID {
		return nil
	}
	return s.storage.Delete(ctx, hashPrefix+atom.ContentHash)
}

func (s *ContentStore) write(ctx context.Context, atom *domain.ContentAtom) error {
	data, err := json.MarshalIndent(atom, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding atom: %w", err)
	}
	if err := s.storage.Write(ctx, atomPath(atom.ID), data); err != nil {
		return fmt.Errorf("writing atom %s: %w", atom.ID, err)
	}
	return nil
}
