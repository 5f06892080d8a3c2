package service

import (
	"context"
	"fmt"
	"strings"
	"text/template"

	"policychat-backend/llm"
	"policychat-backend/models"
)

// answerTemplate is the single parameterized prompt. The document block
// renders iff a document retriever was supplied, independent of whether it
// matched anything.
var answerTemplate = template.Must(template.New("answer").Parse(
	`You are an assistant for question-answering tasks. Use the following pieces of retrieved context from policy and uploaded documents to answer the question. If you don't know the answer, just say that you don't know. Use three sentences maximum and keep the answer concise.

Question: {{.Question}}
Policy Context: {{.PolicyContext}}
{{if .HasDocuments}}Document Context: {{.DocumentContext}}
{{end}}Helpful Answer:`))

type promptData struct {
	Question        string
	PolicyContext   string
	HasDocuments    bool
	DocumentContext string
}

// Composer runs one question end to end: policy retrieval, optional document
// retrieval, prompt assembly, one model call. A Composer is constructed per
// query; the document retriever is nil when the session has no staged
// documents.
type Composer struct {
	generator llm.Generator
	policy    ContextRetriever
	documents ContextRetriever
}

// NewComposer creates a composer. documents may be nil.
func NewComposer(generator llm.Generator, policy ContextRetriever, documents ContextRetriever) *Composer {
	return &Composer{generator: generator, policy: policy, documents: documents}
}

// Answer retrieves context from both sources, builds the prompt, and returns
// the model output verbatim. Any downstream failure propagates; no partial
// answer is ever returned and the model is called at most once.
func (c *Composer) Answer(ctx context.Context, question string) (string, error) {
	policyChunks, err := c.policy.Retrieve(ctx, question)
	if err != nil {
		return "", err
	}

	data := promptData{
		Question:      question,
		PolicyContext: joinChunks(policyChunks),
	}
	if c.documents != nil {
		docChunks, err := c.documents.Retrieve(ctx, question)
		if err != nil {
			return "", err
		}
		data.HasDocuments = true
		data.DocumentContext = joinChunks(docChunks)
	}

	var prompt strings.Builder
	if err := answerTemplate.Execute(&prompt, data); err != nil {
		return "", fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	answer, err := c.generator.Generate(ctx, prompt.String())
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	return answer, nil
}

func joinChunks(chunks []models.ScoredChunk) string {
	parts := make([]string, len(chunks))
	for i, ch := range chunks {
		parts[i] = ch.Text
	}
	return strings.Join(parts, "\n\n")
}
