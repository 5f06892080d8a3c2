package service

import (
	"context"
	"fmt"

	"policychat-backend/llm"
	"policychat-backend/models"
	"policychat-backend/vectorindex"
)

// Retrieval defaults shared by the policy and document sources.
const (
	DefaultTopK     = 4
	DefaultMinScore = 0.4
)

// ContextRetriever is the read path of one similarity index: thresholded,
// capped nearest-neighbor search for a free-text query.
type ContextRetriever interface {
	Retrieve(ctx context.Context, query string) ([]models.ScoredChunk, error)
}

// Retriever binds an embedder to one vector index with a result cap and a
// minimum similarity score. The policy retriever is a Retriever bound once at
// startup to the shared policy collection; the document retriever is a
// Retriever bound to a fresh in-memory index per query.
type Retriever struct {
	store    vectorindex.Store
	embedder llm.Embedder
	topK     int
	minScore float64
}

// NewRetriever creates a retrieval handle over store. A non-positive topK
// falls back to the default cap.
func NewRetriever(store vectorindex.Store, embedder llm.Embedder, topK int, minScore float64) *Retriever {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Retriever{store: store, embedder: embedder, topK: topK, minScore: minScore}
}

// Retrieve embeds the query and searches the bound index.
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]models.ScoredChunk, error) {
	vector, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRetrievalFailed, err)
	}
	results, err := r.store.Search(ctx, vector, r.topK, r.minScore)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRetrievalFailed, err)
	}
	return results, nil
}
