package memory

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigStore_TypedGetters(t *testing.T) {
	store := NewConfigStore()
	require.NoError(t, store.Set("oracle.model", "gpt-4o-mini"))
	require.NoError(t, store.Set("oracle.timeout_seconds", int64(30)))
	require.NoError(t, store.Set("retrieval.relevance_threshold", 7.5))
	require.NoError(t, store.Set("retrieval.max_depth", 4))
	require.NoError(t, store.Set("metrics.enabled", true))

	assert.Equal(t, "gpt-4o-mini", store.GetString("oracle.model"))
	assert.Equal(t, 30, store.GetInt("oracle.timeout_seconds"))
	assert.Equal(t, 7, store.GetInt("retrieval.relevance_threshold"))
	assert.InDelta(t, 7.5, store.GetFloat("retrieval.relevance_threshold"), 1e-9)
	assert.InDelta(t, 4.0, store.GetFloat("retrieval.max_depth"), 1e-9)
	assert.InDelta(t, 30.0, store.GetFloat("oracle.timeout_seconds"), 1e-9)
	assert.True(t, store.GetBool("metrics.enabled"))
}

func TestConfigStore_WrongTypesReadAsZero(t *testing.T) {
	store := NewConfigStore()
	require.NoError(t, store.Set("oracle.model", "gpt-4o-mini"))
	require.NoError(t, store.Set("retrieval.max_depth", 4))

	assert.Empty(t, store.GetString("retrieval.max_depth"))
	assert.Zero(t, store.GetInt("oracle.model"))
	assert.Zero(t, store.GetFloat("oracle.model"))
	assert.False(t, store.GetBool("oracle.model"))
	assert.Nil(t, store.GetStringSlice("oracle.model"))

	_, ok := store.Get("missing")
	assert.False(t, ok)
	assert.Empty(t, store.GetString("missing"))
}

func TestConfigStore_GetStringSlice(t *testing.T) {
	store := NewConfigStore()
	require.NoError(t, store.Set("seeds", []string{"papers", "notes"}))
	require.NoError(t, store.Set("decoded", []any{"a", 1, "b"}))

	assert.Equal(t, []string{"papers", "notes"}, store.GetStringSlice("seeds"))
	assert.Equal(t, []string{"a", "b"}, store.GetStringSlice("decoded"))
}

func TestConfigStore_SetOverwrites(t *testing.T) {
	store := NewConfigStore()
	require.NoError(t, store.Set("storage.backend", "file"))
	require.NoError(t, store.Set("storage.backend", "sqlite"))

	assert.Equal(t, "sqlite", store.GetString("storage.backend"))
	assert.NoError(t, store.Save())
	assert.NoError(t, store.Load())
	assert.Equal(t, "sqlite", store.GetString("storage.backend"))
	assert.Equal(t, ":memory:", store.Path())
}

func TestConfigStore_ConcurrentAccess(t *testing.T) {
	store := NewConfigStore()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = store.Set("retrieval.top_k", i)
			_ = store.GetInt("retrieval.top_k")
		}(i)
	}
	wg.Wait()

	assert.GreaterOrEqual(t, store.GetInt("retrieval.top_k"), 0)
}
