package llm

import "context"

// Embedder converts text into fixed-length vectors for similarity comparison.
// Queries and documents are embedded separately because some backends
// distinguish retrieval task types.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float64, error)
	EmbedDocuments(ctx context.Context, texts []string) ([][]float64, error)
}

// Generator produces a text completion for a fully assembled prompt. The
// output is returned verbatim; callers do not retry failed generations.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}
