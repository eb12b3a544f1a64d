package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/custodia-labs/fraktag/internal/core/domain"
	"github.com/custodia-labs/fraktag/internal/core/ports/driven"
)

func indexPath(treeID string) string {
	return treesPrefix + treeID + "/index.json"
}

// indexFile is the persisted form of a tree's vector index.
type indexFile struct {
	TreeID     string               `json:"treeId"`
	Model      string               `json:"model,omitempty"`
	Dimensions int                  `json:"dimensions,omitempty"`
	Entries    []domain.VectorEntry `json:"entries"`
}

// VectorIndex holds one exact-scan embedding index per tree. Entries keep
// insertion order, which breaks score ties in Search.
type VectorIndex struct {
	storage  driven.Storage
	embedder driven.EmbeddingService
	metrics  driven.Metrics

	mu      sync.RWMutex
	entries map[string][]domain.VectorEntry
}

// NewVectorIndex creates an index persisted through storage. The embedder
// may be nil, in which case Add and Search return ErrEmbeddingUnavailable.
func NewVectorIndex(storage driven.Storage, embedder driven.EmbeddingService, metrics driven.Metrics) *VectorIndex {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &VectorIndex{
		storage:  storage,
		embedder: embedder,
		metrics:  metrics,
		entries:  make(map[string][]domain.VectorEntry),
	}
}

// Load binds the tree's persisted index, replacing any cached entries.
// A tree without an index file starts empty.
func (v *VectorIndex) Load(ctx context.Context, treeID string) error {
	entries, err := v.read(ctx, treeID)
	if err != nil {
		return err
	}
	v.mu.Lock()
	v.entries[treeID] = entries
	v.mu.Unlock()
	v.metrics.SetIndexEntries(treeID, len(entries))
	return nil
}

func (v *VectorIndex) read(ctx context.Context, treeID string) ([]domain.VectorEntry, error) {
	data, err := v.storage.Read(ctx, indexPath(treeID))
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading index %s: %w", treeID, err)
	}
	var file indexFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decoding index %s: %w", treeID, errors.Join(domain.ErrStorageFailure, err))
	}
	return file.Entries, nil
}

// ensure loads the tree's index on first use. A tree bound by another
// caller while the file was being read keeps its entries.
func (v *VectorIndex) ensure(ctx context.Context, treeID string) error {
	v.mu.RLock()
	_, ok := v.entries[treeID]
	v.mu.RUnlock()
	if ok {
		return nil
	}
	entries, err := v.read(ctx, treeID)
	if err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.entries[treeID]; ok {
		return nil
	}
	v.entries[treeID] = entries
	v.metrics.SetIndexEntries(treeID, len(entries))
	return nil
}

// Save persists the tree's index.
func (v *VectorIndex) Save(ctx context.Context, treeID string) error {
	if err := v.ensure(ctx, treeID); err != nil {
		return err
	}
	v.mu.RLock()
	file := indexFile{TreeID: treeID, Entries: v.entries[treeID]}
	v.mu.RUnlock()
	if file.Entries == nil {
		file.Entries = []domain.VectorEntry{}
	}
	if v.embedder != nil {
		file.Model = v.embedder.ModelName()
		file.Dimensions = v.embedder.Dimensions()
	}
	data, err := json.Marshal(file)
	if err != nil {
		return fmt.Errorf("encoding index: %w", err)
	}
	if err := v.storage.Write(ctx, indexPath(treeID), data); err != nil {
		return fmt.Errorf("saving index %s: %w", treeID, err)
	}
	v.metrics.SetIndexEntries(treeID, len(file.Entries))
	return nil
}

func (v *VectorIndex) embed(ctx context.Context, texts []string) ([][]float32, error) {
	if v.embedder == nil {
		return nil, domain.ErrEmbeddingUnavailable
	}
	start := time.Now()
	vecs, err := v.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		v.metrics.ObserveEmbedding("error", len(texts), time.Since(start))
		if errors.Is(err, domain.ErrEmbeddingFailure) {
			return nil, err
		}
		return nil, errors.Join(domain.ErrEmbeddingFailure, err)
	}
	v.metrics.ObserveEmbedding("ok", len(texts), time.Since(start))
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d texts", domain.ErrEmbeddingFailure, len(vecs), len(texts))
	}
	return vecs, nil
}

// Add indexes a single text for nodeID.
func (v *VectorIndex) Add(ctx context.Context, treeID, nodeID, text string) error {
	return v.AddChunks(ctx, treeID, nodeID, []string{text})
}

// AddChunks indexes several texts for nodeID, numbered after any entries
// the node already owns.
func (v *VectorIndex) AddChunks(ctx context.Context, treeID, nodeID string, texts []string) error {
	if len(texts) == 0 {
		return nil
	}
	if err := v.ensure(ctx, treeID); err != nil {
		return err
	}
	vecs, err := v.embed(ctx, texts)
	if err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	next := 0
	for _, e := range v.entries[treeID] {
		if e.NodeID == nodeID && e.ChunkIndex >= next {
			next = e.ChunkIndex + 1
		}
	}
	for i, text := range texts {
		v.entries[treeID] = append(v.entries[treeID], domain.VectorEntry{
			NodeID:     nodeID,
			Embedding:  vecs[i],
			SourceText: text,
			ChunkIndex: next + i,
		})
	}
	return nil
}

// Remove drops every entry owned by nodeID and returns how many were removed.
func (v *VectorIndex) Remove(ctx context.Context, treeID, nodeID string) (int, error) {
	if err := v.ensure(ctx, treeID); err != nil {
		return 0, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	entries := v.entries[treeID]
	kept := make([]domain.VectorEntry, 0, len(entries))
	for _, e := range entries {
		if e.NodeID != nodeID {
			kept = append(kept, e)
		}
	}
	removed := len(entries) - len(kept)
	v.entries[treeID] = kept
	return removed, nil
}

// Clear drops every entry of the tree.
func (v *VectorIndex) Clear(treeID string) {
	v.mu.Lock()
	v.entries[treeID] = nil
	v.mu.Unlock()
}

// Has reports whether nodeID owns at least one entry.
func (v *VectorIndex) Has(ctx context.Context, treeID, nodeID string) (bool, error) {
	if err := v.ensure(ctx, treeID); err != nil {
		return false, err
	}
	v.mu.RLock()
	defer v.mu.RUnlock()
	for _, e := range v.entries[treeID] {
		if e.NodeID == nodeID {
			return true, nil
		}
	}
	return false, nil
}

// Len returns the number of entries in the tree's index.
func (v *VectorIndex) Len(ctx context.Context, treeID string) (int, error) {
	if err := v.ensure(ctx, treeID); err != nil {
		return 0, err
	}
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.entries[treeID]), nil
}

// Search embeds the query and returns the topK nodes by cosine similarity.
// A node's score is its best entry. Equal scores keep insertion order.
func (v *VectorIndex) Search(ctx context.Context, treeID, query string, topK int) ([]domain.VectorHit, error) {
	if err := v.ensure(ctx, treeID); err != nil {
		return nil, err
	}
	vecs, err := v.embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	q := vecs[0]

	type ranked struct {
		hit   domain.VectorHit
		order int
	}
	v.mu.RLock()
	best := make(map[string]*ranked)
	var order []*ranked
	for _, e := range v.entries[treeID] {
		score := Cosine(q, e.Embedding)
		r, ok := best[e.NodeID]
		if !ok {
			r = &ranked{hit: domain.VectorHit{NodeID: e.NodeID, Score: score}, order: len(order)}
			best[e.NodeID] = r
			order = append(order, r)
			continue
		}
		if score > r.hit.Score {
			r.hit.Score = score
		}
	}
	v.mu.RUnlock()

	sort.SliceStable(order, func(i, j int) bool {
		if order[i].hit.Score != order[j].hit.Score {
			return order[i].hit.Score > order[j].hit.Score
		}
		return order[i].order < order[j].order
	})
	if topK > 0 && len(order) > topK {
		order = order[:topK]
	}
	hits := make([]domain.VectorHit, len(order))
	for i, r := range order {
		hits[i] = r.hit
	}
	return hits, nil
}

// Cosine returns the cosine similarity of two vectors, or 0 when their
// lengths differ or either is zero.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
