package vectorindex

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"

	"policychat-backend/models"
)

// Memory is a brute-force cosine-similarity store. It backs the ephemeral
// per-query document index: session corpora are small and short-lived, so
// exact search over a slice beats anything cleverer.
type Memory struct {
	mu        sync.RWMutex
	dimension int
	chunks    []models.Chunk
	vectors   [][]float64
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{}
}

// Recreate resets the store for vectors of the given dimension.
func (m *Memory) Recreate(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid vector dimension")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dimension = dimension
	m.chunks = nil
	m.vectors = nil
	return nil
}

// Upsert adds chunks with their vectors.
func (m *Memory) Upsert(ctx context.Context, chunks []models.Chunk, vectors [][]float64) error {
	if len(chunks) != len(vectors) {
		return errors.New("chunks and vectors length mismatch")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range vectors {
		if len(v) != m.dimension {
			return errors.New("vector dimension mismatch")
		}
	}
	m.chunks = append(m.chunks, chunks...)
	m.vectors = append(m.vectors, vectors...)
	return nil
}

// Search returns the closest chunks by cosine similarity, filtered to
// minScore and capped at limit.
func (m *Memory) Search(ctx context.Context, vector []float64, limit int, minScore float64) ([]models.ScoredChunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 {
		limit = 4
	}

	results := make([]models.ScoredChunk, 0, limit)
	for i := range m.vectors {
		score := cosine(m.vectors[i], vector)
		if score < minScore {
			continue
		}
		results = append(results, models.ScoredChunk{Chunk: m.chunks[i], Score: score})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func cosine(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
