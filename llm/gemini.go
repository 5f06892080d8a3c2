package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
)

// GeminiClient implements Embedder and Generator on top of the Gemini SDK.
type GeminiClient struct {
	client          *genai.Client
	embeddingModel  string
	generationModel string
	temperature     float32
}

// GeminiConfig configures model names and generation temperature.
type GeminiConfig struct {
	EmbeddingModel  string
	GenerationModel string
	Temperature     float32
}

// NewGeminiClient wraps an initialized Gemini client.
func NewGeminiClient(client *genai.Client, cfg GeminiConfig) *GeminiClient {
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = "text-embedding-004"
	}
	if cfg.GenerationModel == "" {
		cfg.GenerationModel = "gemini-1.5-flash"
	}
	return &GeminiClient{
		client:          client,
		embeddingModel:  cfg.EmbeddingModel,
		generationModel: cfg.GenerationModel,
		temperature:     cfg.Temperature,
	}
}

// EmbedQuery embeds a retrieval query.
func (g *GeminiClient) EmbedQuery(ctx context.Context, text string) ([]float64, error) {
	em := g.client.EmbeddingModel(g.embeddingModel)
	em.TaskType = genai.TaskTypeRetrievalQuery
	return g.embed(ctx, em, text)
}

// EmbedDocuments embeds document chunks for indexing.
func (g *GeminiClient) EmbedDocuments(ctx context.Context, texts []string) ([][]float64, error) {
	em := g.client.EmbeddingModel(g.embeddingModel)
	em.TaskType = genai.TaskTypeRetrievalDocument
	vectors := make([][]float64, 0, len(texts))
	for _, text := range texts {
		vec, err := g.embed(ctx, em, text)
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, vec)
	}
	return vectors, nil
}

func (g *GeminiClient) embed(ctx context.Context, em *genai.EmbeddingModel, text string) ([]float64, error) {
	resp, err := em.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	if resp.Embedding == nil || len(resp.Embedding.Values) == 0 {
		return nil, fmt.Errorf("embedding response contained no values")
	}
	vec := make([]float64, len(resp.Embedding.Values))
	for i, v := range resp.Embedding.Values {
		vec[i] = float64(v)
	}
	return vec, nil
}

// Generate runs one completion and returns the model's text output verbatim.
func (g *GeminiClient) Generate(ctx context.Context, prompt string) (string, error) {
	gm := g.client.GenerativeModel(g.generationModel)
	gm.SetTemperature(g.temperature)

	resp, err := gm.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("generation request failed: %w", err)
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockReasonUnspecified {
		return "", fmt.Errorf("prompt blocked: %v", resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("model returned no candidates")
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("model returned empty content")
	}
	return b.String(), nil
}
