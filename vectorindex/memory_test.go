package vectorindex

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"policychat-backend/models"
)

func seedMemory(t *testing.T) *Memory {
	t.Helper()
	m := NewMemory()
	require.NoError(t, m.Recreate(context.Background(), 2))
	chunks := []models.Chunk{
		{Text: "aligned"},
		{Text: "close"},
		{Text: "orthogonal"},
		{Text: "opposite"},
	}
	vectors := [][]float64{
		{1, 0},        // cosine 1.0 against the query
		{1, 0.5},      // cosine ~0.89
		{0, 1},        // cosine 0
		{-1, 0},       // cosine -1
	}
	require.NoError(t, m.Upsert(context.Background(), chunks, vectors))
	return m
}

func TestMemorySearch(t *testing.T) {
	query := []float64{1, 0}

	t.Run("Should order results by similarity", func(t *testing.T) {
		m := seedMemory(t)
		results, err := m.Search(context.Background(), query, 10, -2)
		require.NoError(t, err)
		require.Len(t, results, 4)
		assert.Equal(t, "aligned", results[0].Text)
		assert.Equal(t, "close", results[1].Text)
		assert.Equal(t, "orthogonal", results[2].Text)
		assert.Equal(t, "opposite", results[3].Text)
	})

	t.Run("Should enforce the minimum score threshold", func(t *testing.T) {
		m := seedMemory(t)
		results, err := m.Search(context.Background(), query, 10, 0.4)
		require.NoError(t, err)
		require.Len(t, results, 2)
		for _, r := range results {
			assert.GreaterOrEqual(t, r.Score, 0.4)
		}
	})

	t.Run("Should cap the result count", func(t *testing.T) {
		m := seedMemory(t)
		results, err := m.Search(context.Background(), query, 1, -2)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "aligned", results[0].Text)
	})

	t.Run("Should return nothing from an empty store", func(t *testing.T) {
		m := NewMemory()
		require.NoError(t, m.Recreate(context.Background(), 2))
		results, err := m.Search(context.Background(), query, 4, 0.4)
		require.NoError(t, err)
		assert.Empty(t, results)
	})
}

func TestMemoryUpsert(t *testing.T) {
	t.Run("Should reject mismatched chunk and vector counts", func(t *testing.T) {
		m := NewMemory()
		require.NoError(t, m.Recreate(context.Background(), 2))
		err := m.Upsert(context.Background(), []models.Chunk{{Text: "a"}}, nil)
		assert.Error(t, err)
	})

	t.Run("Should reject wrong-dimension vectors", func(t *testing.T) {
		m := NewMemory()
		require.NoError(t, m.Recreate(context.Background(), 2))
		err := m.Upsert(context.Background(), []models.Chunk{{Text: "a"}}, [][]float64{{1, 2, 3}})
		assert.Error(t, err)
	})

	t.Run("Should drop previous contents on recreate", func(t *testing.T) {
		m := seedMemory(t)
		require.NoError(t, m.Recreate(context.Background(), 2))
		results, err := m.Search(context.Background(), []float64{1, 0}, 10, -2)
		require.NoError(t, err)
		assert.Empty(t, results)
	})
}
