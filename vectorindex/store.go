package vectorindex

import (
	"context"

	"policychat-backend/models"
)

// Store supports nearest-neighbor search over embedded chunks. Recreate has
// truncate-and-reload semantics: whatever the collection held before is gone
// afterward. Search never returns more than limit results and never returns a
// result scoring below minScore.
type Store interface {
	Recreate(ctx context.Context, dimension int) error
	Upsert(ctx context.Context, chunks []models.Chunk, vectors [][]float64) error
	Search(ctx context.Context, vector []float64, limit int, minScore float64) ([]models.ScoredChunk, error)
}
