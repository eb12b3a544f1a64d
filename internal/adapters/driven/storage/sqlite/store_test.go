package sqlite

import (
	"context"
	"errors"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/fraktag/internal/core/domain"
)

// setupTestStore creates a temporary SQLite store for testing.
func setupTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	require.NotNil(t, store)

	t.Cleanup(func() {
		assert.NoError(t, store.Close())
	})
	return store
}

func TestNewStore_RunsMigrationsOnce(t *testing.T) {
	dir := t.TempDir()

	store, err := NewStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	// Reopening must not re-run the records migration.
	store, err = NewStore(dir)
	require.NoError(t, err)
	defer store.Close()

	var version int
	require.NoError(t, store.db.QueryRow("SELECT MAX(version) FROM schema_migrations").Scan(&version))
	assert.Equal(t, 1, version)
}

func TestRecordStore_WriteRead(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t).Storage()

	require.NoError(t, s.Write(ctx, "trees/t1/tree.json", []byte(`{"id":"t1"}`)))
	require.NoError(t, s.Write(ctx, "trees/t1/tree.json", []byte(`{"id":"t1","name":"notes"}`)))

	data, err := s.Read(ctx, "trees/t1/tree.json")
	require.NoError(t, err)
	assert.Equal(t, `{"id":"t1","name":"notes"}`, string(data))
}

func TestRecordStore_ReadMissing(t *testing.T) {
	s := setupTestStore(t).Storage()

	_, err := s.Read(context.Background(), "content/missing.json")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestRecordStore_ListDeleteExists(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t).Storage()

	for _, p := range []string{"trees/t1/nodes/b.json", "trees/t1/nodes/a.json", "trees/t2/nodes/c.json"} {
		require.NoError(t, s.Write(ctx, p, []byte("{}")))
	}

	paths, err := s.List(ctx, "trees/t1/")
	require.NoError(t, err)
	assert.Equal(t, []string{"trees/t1/nodes/a.json", "trees/t1/nodes/b.json"}, paths)

	ok, err := s.Exists(ctx, "trees/t2/nodes/c.json")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.Delete(ctx, "trees/t2/nodes/c.json"))
	ok, err = s.Exists(ctx, "trees/t2/nodes/c.json")
	require.NoError(t, err)
	assert.False(t, ok)

	paths, err = s.List(ctx, "nothing/")
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestPending_OrdersAndSkipsApplied(t *testing.T) {
	fsys := fstest.MapFS{
		"010_tags.up.sql":    {Data: []byte("SELECT 1")},
		"002_index.up.sql":   {Data: []byte("SELECT 1")},
		"001_records.up.sql": {Data: []byte("SELECT 1")},
		"002_index.down.sql": {Data: []byte("SELECT 1")},
		"notes.up.sql":       {Data: []byte("SELECT 1")},
	}

	todo, err := pending(fsys, 1)

	require.NoError(t, err)
	require.Len(t, todo, 2)
	assert.Equal(t, "002_index.up.sql", todo[0].name)
	assert.Equal(t, 10, todo[1].version)
}

func TestMigrate_FailedScriptIsNotRecorded(t *testing.T) {
	store := setupTestStore(t)

	err := store.migrate(fstest.MapFS{"002_broken.up.sql": {Data: []byte("NOT SQL")}})
	require.Error(t, err)

	var version int
	require.NoError(t, store.db.QueryRow(`SELECT MAX(version) FROM schema_migrations`).Scan(&version))
	assert.Equal(t, 1, version)
}
