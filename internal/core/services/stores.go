package services

import (
	"sync"

	"github.com/custodia-labs/fraktag/internal/core/ports/driven"
)

// Stores bundles the persistent components shared by the services, plus
// the per-tree writer locks that keep one ingestion or maintenance call
// running against a tree at a time.
type Stores struct {
	Trees   *TreeStore
	Content *ContentStore
	Index   *VectorIndex

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewStores creates the tree store, blob store and vector index on a single
// storage backend. The embedder may be nil.
func NewStores(storage driven.Storage, embedder driven.EmbeddingService, metrics driven.Metrics) *Stores {
	return &Stores{
		Trees:   NewTreeStore(storage),
		Content: NewContentStore(storage),
		Index:   NewVectorIndex(storage, embedder, metrics),
		locks:   make(map[string]*sync.Mutex),
	}
}

// Lock acquires the tree's writer lock and returns its release function.
func (s *Stores) Lock(treeID string) func() {
	s.mu.Lock()
	m, ok := s.locks[treeID]
	if !ok {
		m = &sync.Mutex{}
		s.locks[treeID] = m
	}
	s.mu.Unlock()
	m.Lock()
	return m.Unlock
}
