package service

import (
	"context"
	"fmt"

	"policychat-backend/llm"
	"policychat-backend/loader"
	"policychat-backend/models"
	"policychat-backend/splitter"
	"policychat-backend/vectorindex"
)

// DocumentIndexer builds an ephemeral similarity index over a directory of
// staged documents and returns a retriever bound to it. The index is rebuilt
// from scratch on every call: session corpora are small and short-lived, so
// correctness wins over reuse.
type DocumentIndexer struct {
	embedder llm.Embedder
	splitter *splitter.RecursiveCharacter
	topK     int
	minScore float64
}

// NewDocumentIndexer creates an indexer whose retrievers use the given cap
// and threshold.
func NewDocumentIndexer(embedder llm.Embedder, split *splitter.RecursiveCharacter, topK int, minScore float64) *DocumentIndexer {
	return &DocumentIndexer{embedder: embedder, splitter: split, topK: topK, minScore: minScore}
}

// Index loads, chunks, and embeds every supported file under dir into a fresh
// in-memory index. A directory with zero loadable documents returns
// ErrNoDocuments, never a retriever; embedding or index-build failures wrap
// ErrIndexingFailed.
func (ix *DocumentIndexer) Index(ctx context.Context, dir string) (ContextRetriever, error) {
	docs, err := loader.LoadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIndexingFailed, err)
	}
	if len(docs) == 0 {
		return nil, ErrNoDocuments
	}

	chunks := models.FilterComplexMetadata(ix.splitter.SplitDocuments(docs))
	if len(chunks) == 0 {
		return nil, ErrNoDocuments
	}

	texts := make([]string, len(chunks))
	for i := range chunks {
		texts[i] = chunks[i].Text
	}
	vectors, err := ix.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIndexingFailed, err)
	}
	if len(vectors) != len(chunks) || len(vectors[0]) == 0 {
		return nil, fmt.Errorf("%w: embedder returned %d vectors for %d chunks", ErrIndexingFailed, len(vectors), len(chunks))
	}

	store := vectorindex.NewMemory()
	if err := store.Recreate(ctx, len(vectors[0])); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIndexingFailed, err)
	}
	if err := store.Upsert(ctx, chunks, vectors); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIndexingFailed, err)
	}
	return NewRetriever(store, ix.embedder, ix.topK, ix.minScore), nil
}
