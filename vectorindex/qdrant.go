package vectorindex

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"policychat-backend/models"
)

// Qdrant is a REST client bound to one collection on a Qdrant server. It
// assumes cosine distance; the score threshold is applied server-side.
type Qdrant struct {
	url        string
	apiKey     string
	collection string
	client     *http.Client
}

// QdrantConfig holds connection details for a Qdrant collection.
type QdrantConfig struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

// NewQdrant creates a client for the configured collection.
func NewQdrant(cfg QdrantConfig) *Qdrant {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Qdrant{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		client:     &http.Client{Timeout: timeout},
	}
}

// Recreate drops the collection and creates it fresh for the given dimension.
func (q *Qdrant) Recreate(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid vector dimension")
	}

	// deleting a missing collection returns 404, which is fine here
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, q.collectionURL(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	q.setHeaders(req)
	if resp, err := q.client.Do(req); err == nil {
		resp.Body.Close()
	}

	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	return q.doJSON(ctx, http.MethodPut, q.collectionURL(), body, nil)
}

// Upsert writes chunks with their vectors into the collection. Chunk metadata
// travels in the point payload next to the text.
func (q *Qdrant) Upsert(ctx context.Context, chunks []models.Chunk, vectors [][]float64) error {
	if len(chunks) != len(vectors) {
		return errors.New("chunks and vectors length mismatch")
	}

	points := make([]map[string]any, len(chunks))
	for i := range chunks {
		payload := make(map[string]any, len(chunks[i].Metadata)+1)
		for k, v := range chunks[i].Metadata {
			payload[k] = v
		}
		payload["text"] = chunks[i].Text
		points[i] = map[string]any{
			"id":      uuid.NewString(),
			"vector":  vectors[i],
			"payload": payload,
		}
	}
	body := map[string]any{"points": points}
	return q.doJSON(ctx, http.MethodPut, q.collectionURL()+"/points?wait=true", body, nil)
}

// Search runs a similarity query with the threshold and cap applied by the
// server.
func (q *Qdrant) Search(ctx context.Context, vector []float64, limit int, minScore float64) ([]models.ScoredChunk, error) {
	if limit <= 0 {
		limit = 4
	}
	body := map[string]any{
		"vector":          vector,
		"limit":           limit,
		"with_payload":    true,
		"score_threshold": minScore,
	}
	var resp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := q.doJSON(ctx, http.MethodPost, q.collectionURL()+"/points/search", body, &resp); err != nil {
		return nil, err
	}

	results := make([]models.ScoredChunk, 0, len(resp.Result))
	for _, r := range resp.Result {
		chunk := models.Chunk{Metadata: make(map[string]any, len(r.Payload))}
		for k, v := range r.Payload {
			if k == "text" {
				chunk.Text, _ = v.(string)
				continue
			}
			chunk.Metadata[k] = v
		}
		results = append(results, models.ScoredChunk{Chunk: chunk, Score: r.Score})
	}
	return results, nil
}

func (q *Qdrant) collectionURL() string {
	return fmt.Sprintf("%s/collections/%s", q.url, q.collection)
}

func (q *Qdrant) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if q.apiKey != "" {
		req.Header.Set("api-key", q.apiKey)
	}
}

func (q *Qdrant) doJSON(ctx context.Context, method, url string, body any, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	q.setHeaders(req)

	resp, err := q.client.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant %s %s failed: %s", method, url, resp.Status)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode qdrant response: %w", err)
		}
	}
	return nil
}
