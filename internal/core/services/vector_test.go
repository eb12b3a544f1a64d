package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/fraktag/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/fraktag/internal/core/domain"
	"github.com/custodia-labs/fraktag/internal/core/ports/driven"
)

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, Cosine([]float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.InDelta(t, 0.0, Cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Zero(t, Cosine([]float32{1}, []float32{1, 2}))
	assert.Zero(t, Cosine([]float32{0, 0}, []float32{1, 1}))
}

func TestVectorIndex_SearchRanksByBestEntry(t *testing.T) {
	ctx := context.Background()
	index := NewVectorIndex(memory.NewStorage(), &hashEmbedder{}, nil)

	require.NoError(t, index.AddChunks(ctx, "kb", "sky", []string{"unrelated words", "blue sky scattering"}))
	require.NoError(t, index.Add(ctx, "kb", "sea", "ocean waves"))

	hits, err := index.Search(ctx, "kb", "why is the sky blue", 5)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "sky", hits[0].NodeID)
	assert.Greater(t, hits[0].Score, hits[1].Score)
}

func TestVectorIndex_TiesKeepInsertionOrder(t *testing.T) {
	ctx := context.Background()
	index := NewVectorIndex(memory.NewStorage(), &hashEmbedder{}, nil)

	for _, id := range []string{"c", "a", "b"} {
		require.NoError(t, index.Add(ctx, "kb", id, "identical text"))
	}
	hits, err := index.Search(ctx, "kb", "identical text", 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "c", hits[0].NodeID)
	assert.Equal(t, "a", hits[1].NodeID)
}

func TestVectorIndex_RemoveAndChunkNumbering(t *testing.T) {
	ctx := context.Background()
	index := NewVectorIndex(memory.NewStorage(), &hashEmbedder{}, nil)

	require.NoError(t, index.AddChunks(ctx, "kb", "n1", []string{"one", "two"}))
	require.NoError(t, index.Add(ctx, "kb", "n1", "three"))
	require.NoError(t, index.Add(ctx, "kb", "n2", "other"))

	index.mu.RLock()
	var chunkIdx []int
	for _, e := range index.entries["kb"] {
		if e.NodeID == "n1" {
			chunkIdx = append(chunkIdx, e.ChunkIndex)
		}
	}
	index.mu.RUnlock()
	assert.Equal(t, []int{0, 1, 2}, chunkIdx)

	removed, err := index.Remove(ctx, "kb", "n1")
	require.NoError(t, err)
	assert.Equal(t, 3, removed)

	has, err := index.Has(ctx, "kb", "n1")
	require.NoError(t, err)
	assert.False(t, has)
	n, err := index.Len(ctx, "kb")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestVectorIndex_SaveLoad(t *testing.T) {
	ctx := context.Background()
	storage := memory.NewStorage()
	index := NewVectorIndex(storage, &hashEmbedder{}, nil)
	require.NoError(t, index.Add(ctx, "kb", "n1", "persisted text"))
	require.NoError(t, index.Save(ctx, "kb"))

	reopened := NewVectorIndex(storage, &hashEmbedder{}, nil)
	n, err := reopened.Len(ctx, "kb")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	hits, err := reopened.Search(ctx, "kb", "persisted text", 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
}

func TestVectorIndex_MissingIndexIsEmpty(t *testing.T) {
	index := NewVectorIndex(memory.NewStorage(), &hashEmbedder{}, nil)

	n, err := index.Len(context.Background(), "new-tree")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestVectorIndex_EmbeddingErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("no embedder", func(t *testing.T) {
		index := NewVectorIndex(memory.NewStorage(), nil, nil)
		err := index.Add(ctx, "kb", "n1", "text")
		assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)
		_, err = index.Search(ctx, "kb", "text", 3)
		assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)
	})

	t.Run("provider failure", func(t *testing.T) {
		index := NewVectorIndex(memory.NewStorage(), &hashEmbedder{fail: errors.New("boom")}, nil)
		err := index.Add(ctx, "kb", "n1", "text")
		assert.ErrorIs(t, err, domain.ErrEmbeddingFailure)
	})
}

func TestVectorIndex_SaveFailure(t *testing.T) {
	ctx := context.Background()
	storage := memory.NewStorage()
	index := NewVectorIndex(storage, &hashEmbedder{}, nil)
	require.NoError(t, index.Add(ctx, "kb", "n1", "text"))

	storage.FailWrites = true
	assert.ErrorIs(t, index.Save(ctx, "kb"), domain.ErrStorageFailure)
}

// slowIndexStorage holds the first read of an index file until released.
type slowIndexStorage struct {
	driven.Storage
	held    atomic.Bool
	entered chan struct{}
	release chan struct{}
}

func (s *slowIndexStorage) Read(ctx context.Context, path string) ([]byte, error) {
	data, err := s.Storage.Read(ctx, path)
	if path == indexPath("kb") && s.held.CompareAndSwap(false, true) {
		close(s.entered)
		<-s.release
	}
	return data, err
}

func TestVectorIndex_ColdLoadKeepsConcurrentAdds(t *testing.T) {
	ctx := context.Background()
	store := &slowIndexStorage{
		Storage: memory.NewStorage(),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	index := NewVectorIndex(store, &hashEmbedder{}, nil)

	searched := make(chan error, 1)
	go func() {
		_, err := index.Search(ctx, "kb", "anything", 5)
		searched <- err
	}()
	<-store.entered

	require.NoError(t, index.Add(ctx, "kb", "doc1", "fresh content"))
	close(store.release)
	require.NoError(t, <-searched)
	require.NoError(t, index.Save(ctx, "kb"))

	has, err := index.Has(ctx, "kb", "doc1")
	require.NoError(t, err)
	assert.True(t, has)

	reloaded := NewVectorIndex(store.Storage, &hashEmbedder{}, nil)
	has, err = reloaded.Has(ctx, "kb", "doc1")
	require.NoError(t, err)
	assert.True(t, has)
}
