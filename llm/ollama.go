package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	ollamaMaxRetries     = 3
	ollamaInitialBackoff = time.Second
)

// OllamaClient implements Embedder and Generator against an Ollama server's
// REST API. Embedding calls retry on transient failures; generation does not
// retry, a failed model call propagates to the caller.
type OllamaClient struct {
	baseURL         string
	embeddingModel  string
	generationModel string
	temperature     float64
	client          *http.Client
}

// OllamaConfig holds connection details and model names.
type OllamaConfig struct {
	BaseURL         string
	EmbeddingModel  string
	GenerationModel string
	Temperature     float64
	Timeout         time.Duration
}

// NewOllamaClient creates a client with sane defaults for any unset field.
func NewOllamaClient(cfg OllamaConfig) *OllamaClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = "nomic-embed-text"
	}
	if cfg.GenerationModel == "" {
		cfg.GenerationModel = "mistral"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	return &OllamaClient{
		baseURL:         cfg.BaseURL,
		embeddingModel:  cfg.EmbeddingModel,
		generationModel: cfg.GenerationModel,
		temperature:     cfg.Temperature,
		client:          &http.Client{Timeout: timeout},
	}
}

// EmbedQuery embeds a retrieval query.
func (o *OllamaClient) EmbedQuery(ctx context.Context, text string) ([]float64, error) {
	return o.embed(ctx, text)
}

// EmbedDocuments embeds document chunks for indexing.
func (o *OllamaClient) EmbedDocuments(ctx context.Context, texts []string) ([][]float64, error) {
	vectors := make([][]float64, 0, len(texts))
	for _, text := range texts {
		vec, err := o.embed(ctx, text)
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, vec)
	}
	return vectors, nil
}

func (o *OllamaClient) embed(ctx context.Context, text string) ([]float64, error) {
	reqBody := map[string]any{
		"model":  o.embeddingModel,
		"prompt": text,
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var lastErr error
	backoff := ollamaInitialBackoff
	for attempt := 0; attempt < ollamaMaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			backoff *= 2
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/embeddings", bytes.NewReader(jsonData))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := o.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			lastErr = fmt.Errorf("embedding API error: %d - %s", resp.StatusCode, string(body))
			// client errors will not improve with retries
			if resp.StatusCode >= 400 && resp.StatusCode < 500 {
				return nil, lastErr
			}
			continue
		}

		var apiResp struct {
			Embedding []float64 `json:"embedding"`
		}
		err = json.NewDecoder(resp.Body).Decode(&apiResp)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("failed to decode response: %w", err)
			continue
		}
		if len(apiResp.Embedding) == 0 {
			return nil, fmt.Errorf("embedding response contained no values")
		}
		return apiResp.Embedding, nil
	}
	return nil, fmt.Errorf("embedding failed after %d attempts: %w", ollamaMaxRetries, lastErr)
}

// Generate runs one completion and returns the model's text output verbatim.
func (o *OllamaClient) Generate(ctx context.Context, prompt string) (string, error) {
	reqBody := map[string]any{
		"model":  o.generationModel,
		"prompt": prompt,
		"stream": false,
		"options": map[string]any{
			"temperature": o.temperature,
		},
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/generate", bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("generation API error: %d - %s", resp.StatusCode, string(body))
	}

	var apiResp struct {
		Response string `json:"response"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if apiResp.Response == "" {
		return "", fmt.Errorf("model returned empty content")
	}
	return apiResp.Response, nil
}
