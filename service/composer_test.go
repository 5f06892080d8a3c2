package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"policychat-backend/models"
)

type fakeRetriever struct {
	chunks []models.ScoredChunk
	err    error
	calls  int
}

func (f *fakeRetriever) Retrieve(ctx context.Context, query string) ([]models.ScoredChunk, error) {
	f.calls++
	return f.chunks, f.err
}

type fakeGenerator struct {
	answer  string
	err     error
	calls   int
	prompts []string
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	f.calls++
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

func scored(texts ...string) []models.ScoredChunk {
	out := make([]models.ScoredChunk, len(texts))
	for i, text := range texts {
		out[i] = models.ScoredChunk{Chunk: models.Chunk{Text: text}, Score: 0.9}
	}
	return out
}

func TestComposerAnswer(t *testing.T) {
	t.Run("Should build a policy-only prompt without a document retriever", func(t *testing.T) {
		policy := &fakeRetriever{chunks: scored("vacation policy chunk")}
		gen := &fakeGenerator{answer: "Employees accrue 20 days."}

		answer, err := NewComposer(gen, policy, nil).Answer(context.Background(), "What is the vacation policy?")
		require.NoError(t, err)
		assert.Equal(t, "Employees accrue 20 days.", answer)

		require.Len(t, gen.prompts, 1)
		assert.Contains(t, gen.prompts[0], "Question: What is the vacation policy?")
		assert.Contains(t, gen.prompts[0], "Policy Context: vacation policy chunk")
		assert.NotContains(t, gen.prompts[0], "Document Context:")
	})

	t.Run("Should include the document block when a retriever is supplied", func(t *testing.T) {
		policy := &fakeRetriever{chunks: scored("policy chunk")}
		docs := &fakeRetriever{chunks: scored("uploaded chunk")}
		gen := &fakeGenerator{answer: "answer"}

		_, err := NewComposer(gen, policy, docs).Answer(context.Background(), "q")
		require.NoError(t, err)
		require.Len(t, gen.prompts, 1)
		assert.Contains(t, gen.prompts[0], "Document Context: uploaded chunk")
		assert.Equal(t, 1, docs.calls)
	})

	t.Run("Should include the document block even when it retrieves nothing", func(t *testing.T) {
		policy := &fakeRetriever{chunks: scored("policy chunk")}
		docs := &fakeRetriever{}
		gen := &fakeGenerator{answer: "answer"}

		_, err := NewComposer(gen, policy, docs).Answer(context.Background(), "q")
		require.NoError(t, err)
		require.Len(t, gen.prompts, 1)
		assert.Contains(t, gen.prompts[0], "Document Context:")
	})

	t.Run("Should fail before the model call when policy retrieval fails", func(t *testing.T) {
		policy := &fakeRetriever{err: ErrRetrievalFailed}
		gen := &fakeGenerator{answer: "answer"}

		_, err := NewComposer(gen, policy, nil).Answer(context.Background(), "q")
		assert.ErrorIs(t, err, ErrRetrievalFailed)
		assert.Equal(t, 0, gen.calls)
	})

	t.Run("Should propagate generation failure without retry", func(t *testing.T) {
		policy := &fakeRetriever{chunks: scored("policy chunk")}
		gen := &fakeGenerator{err: errors.New("model unavailable")}

		_, err := NewComposer(gen, policy, nil).Answer(context.Background(), "q")
		assert.ErrorIs(t, err, ErrGenerationFailed)
		assert.Equal(t, 1, gen.calls)
	})
}
