package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/fraktag/internal/core/domain"
)

func TestStorage_ReadWrite(t *testing.T) {
	ctx := context.Background()
	s := NewStorage()

	require.NoError(t, s.Write(ctx, "trees/t1/tree.json", []byte(`{"id":"t1"}`)))

	data, err := s.Read(ctx, "trees/t1/tree.json")
	require.NoError(t, err)
	assert.Equal(t, `{"id":"t1"}`, string(data))

	// Returned slices are copies.
	data[0] = 'X'
	again, err := s.Read(ctx, "trees/t1/tree.json")
	require.NoError(t, err)
	assert.Equal(t, byte('{'), again[0])
}

func TestStorage_ReadMissing(t *testing.T) {
	_, err := NewStorage().Read(context.Background(), "nope")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestStorage_ListAndDelete(t *testing.T) {
	ctx := context.Background()
	s := NewStorage()

	for _, p := range []string{"trees/t1/nodes/b.json", "trees/t1/nodes/a.json", "trees/t2/nodes/c.json", "content/x.json"} {
		require.NoError(t, s.Write(ctx, p, []byte("{}")))
	}

	paths, err := s.List(ctx, "trees/t1/nodes/")
	require.NoError(t, err)
	assert.Equal(t, []string{"trees/t1/nodes/a.json", "trees/t1/nodes/b.json"}, paths)

	require.NoError(t, s.Delete(ctx, "trees/t1/nodes/a.json"))
	require.NoError(t, s.Delete(ctx, "trees/t1/nodes/a.json"))

	ok, err := s.Exists(ctx, "trees/t1/nodes/a.json")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 3, s.Len())
}

func TestStorage_FailWrites(t *testing.T) {
	s := NewStorage()
	s.FailWrites = true

	err := s.Write(context.Background(), "a", []byte("b"))
	assert.True(t, errors.Is(err, domain.ErrStorageFailure))
}
