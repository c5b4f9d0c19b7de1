package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"seqrag/internal/domain"
)

func TestStorage_SearchOrdersByCosine(t *testing.T) {
	ctx := context.Background()
	s := NewStorage()
	require.NoError(t, s.Init(ctx, 2))
	require.NoError(t, s.Upsert(ctx,
		[]domain.Chunk{{ChunkID: "x"}, {ChunkID: "y"}, {ChunkID: "xy"}},
		[][]float64{{1, 0}, {0, 3}, {1, 1}},
	))

	res, err := s.Search(ctx, []float64{2, 0}, 2)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "x", res[0].Chunk.ChunkID)
	assert.InDelta(t, 1.0, res[0].Score, 1e-9)
	assert.Equal(t, "xy", res[1].Chunk.ChunkID)
	assert.Equal(t, 3, s.Len())
}

func TestStorage_RejectsBadInput(t *testing.T) {
	ctx := context.Background()
	s := NewStorage()
	require.Error(t, s.Init(ctx, 0))
	require.NoError(t, s.Init(ctx, 2))
	require.Error(t, s.Upsert(ctx, []domain.Chunk{{}}, nil))
	require.Error(t, s.Upsert(ctx, []domain.Chunk{{}}, [][]float64{{1, 2, 3}}))
}

func TestStorage_Clear(t *testing.T) {
	ctx := context.Background()
	s := NewStorage()
	require.NoError(t, s.Init(ctx, 1))
	require.NoError(t, s.Upsert(ctx, []domain.Chunk{{}}, [][]float64{{1}}))
	require.NoError(t, s.Clear(ctx))

	res, err := s.Search(ctx, []float64{1}, 3)
	require.NoError(t, err)
	assert.Empty(t, res)
}
