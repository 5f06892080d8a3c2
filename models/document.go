package models

// Document is one loaded source unit: a plain-text file, or a single page of a
// PDF. Metadata carries source attribution ("source", and "page" for PDFs).
type Document struct {
	Text     string
	Metadata map[string]any
}

// Chunk is a bounded slice of a document's text together with its source
// attribution. Chunks are ephemeral; they live for one indexing pass.
type Chunk struct {
	Text     string
	Metadata map[string]any
}

// ScoredChunk pairs a chunk with its similarity score against a query.
type ScoredChunk struct {
	Chunk
	Score float64
}

// FilterComplexMetadata drops metadata values the index backends cannot
// represent. Scalar values survive; slices, maps, and structs are removed from
// the chunk rather than failing the whole indexing pass.
func FilterComplexMetadata(chunks []Chunk) []Chunk {
	out := make([]Chunk, len(chunks))
	for i, ch := range chunks {
		filtered := make(map[string]any, len(ch.Metadata))
		for k, v := range ch.Metadata {
			switch v.(type) {
			case string, bool, int, int32, int64, float32, float64:
				filtered[k] = v
			}
		}
		out[i] = Chunk{Text: ch.Text, Metadata: filtered}
	}
	return out
}
