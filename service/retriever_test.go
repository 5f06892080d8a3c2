package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"policychat-backend/models"
	"policychat-backend/vectorindex"
)

type queryEmbedder struct {
	vectors map[string][]float64
}

func (q *queryEmbedder) EmbedQuery(ctx context.Context, text string) ([]float64, error) {
	vector, ok := q.vectors[text]
	if !ok {
		return nil, errors.New("unexpected query: " + text)
	}
	return vector, nil
}

func (q *queryEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float64, error) {
	return nil, errors.New("not used")
}

func seededStore(t *testing.T) *vectorindex.Memory {
	t.Helper()
	store := vectorindex.NewMemory()
	require.NoError(t, store.Recreate(context.Background(), 2))
	chunks := []models.Chunk{
		{Text: "exact match"},
		{Text: "close match"},
		{Text: "orthogonal"},
	}
	vectors := [][]float64{{1, 0}, {1, 0.5}, {0, 1}}
	require.NoError(t, store.Upsert(context.Background(), chunks, vectors))
	return store
}

func TestRetrieverRetrieve(t *testing.T) {
	embedder := &queryEmbedder{vectors: map[string][]float64{"q": {1, 0}}}

	t.Run("Should drop results below the similarity threshold", func(t *testing.T) {
		retriever := NewRetriever(seededStore(t), embedder, DefaultTopK, DefaultMinScore)

		results, err := retriever.Retrieve(context.Background(), "q")
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, "exact match", results[0].Text)
		assert.Equal(t, "close match", results[1].Text)
	})

	t.Run("Should cap results at topK", func(t *testing.T) {
		retriever := NewRetriever(seededStore(t), embedder, 1, DefaultMinScore)

		results, err := retriever.Retrieve(context.Background(), "q")
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "exact match", results[0].Text)
	})

	t.Run("Should wrap embedder failure as a retrieval error", func(t *testing.T) {
		retriever := NewRetriever(seededStore(t), embedder, DefaultTopK, DefaultMinScore)

		_, err := retriever.Retrieve(context.Background(), "unknown")
		assert.ErrorIs(t, err, ErrRetrievalFailed)
	})
}
