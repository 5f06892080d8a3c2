package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"policychat-backend/models"
)

var collectionNameRe = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Pgvector stores a collection in a Postgres table with a pgvector embedding
// column, one table per collection. Similarity is cosine: score is
// 1 - (embedding <=> query).
type Pgvector struct {
	db         *pgxpool.Pool
	collection string
}

// NewPgvector binds a store to the named collection. The collection name
// becomes a table name and must be a plain lowercase identifier.
func NewPgvector(db *pgxpool.Pool, collection string) (*Pgvector, error) {
	if !collectionNameRe.MatchString(collection) {
		return nil, fmt.Errorf("invalid collection name: %q", collection)
	}
	return &Pgvector{db: db, collection: collection}, nil
}

// Recreate drops and recreates the collection table for the given dimension.
func (p *Pgvector) Recreate(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid vector dimension")
	}

	if _, err := p.db.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		// may require superuser privileges; the table create below fails
		// anyway if the extension is genuinely missing
		log.Warn("failed to create pgvector extension", "error", err)
	}
	if _, err := p.db.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", p.collection)); err != nil {
		return fmt.Errorf("failed to drop collection table: %w", err)
	}
	_, err := p.db.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE %s (
			id UUID PRIMARY KEY,
			chunk_text TEXT NOT NULL,
			source TEXT,
			page INT,
			embedding vector(%d)
		)`, p.collection, dimension))
	if err != nil {
		return fmt.Errorf("failed to create collection table: %w", err)
	}
	return nil
}

// Upsert inserts chunks with their vectors.
func (p *Pgvector) Upsert(ctx context.Context, chunks []models.Chunk, vectors [][]float64) error {
	if len(chunks) != len(vectors) {
		return errors.New("chunks and vectors length mismatch")
	}
	query := fmt.Sprintf(
		"INSERT INTO %s (id, chunk_text, source, page, embedding) VALUES ($1, $2, $3, $4, $5::vector)",
		p.collection)

	for i := range chunks {
		source, _ := chunks[i].Metadata["source"].(string)
		var page *int
		if v, ok := chunks[i].Metadata["page"].(int); ok {
			page = &v
		}
		if _, err := p.db.Exec(ctx, query, uuid.New(), chunks[i].Text, source, page, formatVector(vectors[i])); err != nil {
			return fmt.Errorf("failed to insert chunk: %w", err)
		}
	}
	return nil
}

// Search returns the closest chunks above minScore, capped at limit.
func (p *Pgvector) Search(ctx context.Context, vector []float64, limit int, minScore float64) ([]models.ScoredChunk, error) {
	if limit <= 0 {
		limit = 4
	}
	query := fmt.Sprintf(`
		SELECT
			chunk_text,
			source,
			page,
			1 - (embedding <=> $1::vector) AS score
		FROM %s
		WHERE 1 - (embedding <=> $1::vector) >= $2
		ORDER BY embedding <=> $1::vector
		LIMIT $3`, p.collection)

	rows, err := p.db.Query(ctx, query, formatVector(vector), minScore, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query collection: %w", err)
	}
	defer rows.Close()

	var results []models.ScoredChunk
	for rows.Next() {
		var (
			text   string
			source *string
			page   *int
			score  float64
		)
		if err := rows.Scan(&text, &source, &page, &score); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		metadata := make(map[string]any, 2)
		if source != nil {
			metadata["source"] = *source
		}
		if page != nil {
			metadata["page"] = *page
		}
		results = append(results, models.ScoredChunk{
			Chunk: models.Chunk{Text: text, Metadata: metadata},
			Score: score,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating chunks: %w", err)
	}
	return results, nil
}

// formatVector renders an embedding in pgvector's text format.
func formatVector(embedding []float64) string {
	if len(embedding) == 0 {
		return "[]"
	}
	parts := make([]string, len(embedding))
	for i, v := range embedding {
		parts[i] = fmt.Sprintf("%.6f", v)
	}
	return "[" + strings.Join(parts, ",") + "]"
}
