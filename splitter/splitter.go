package splitter

import (
	"strings"
	"unicode/utf8"

	"policychat-backend/models"
)

// Defaults for chunking staged and policy documents.
const (
	DefaultChunkSize    = 1024
	DefaultChunkOverlap = 100
)

// RecursiveCharacter splits text on a hierarchy of separators, recursing into
// finer separators until pieces fit the chunk size, then merges adjacent
// pieces back together with overlap. Sizes are measured in runes.
type RecursiveCharacter struct {
	chunkSize    int
	chunkOverlap int
	separators   []string
}

// NewRecursiveCharacter creates a splitter with the given chunk size and
// overlap. Non-positive sizes fall back to the defaults.
func NewRecursiveCharacter(chunkSize, chunkOverlap int) *RecursiveCharacter {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkOverlap < 0 {
		chunkOverlap = DefaultChunkOverlap
	}
	if chunkOverlap >= chunkSize {
		chunkOverlap = chunkSize / 2
	}
	return &RecursiveCharacter{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		separators:   []string{"\n\n", "\n", " ", ""},
	}
}

// Split breaks text into chunks of at most the configured size.
func (s *RecursiveCharacter) Split(text string) []string {
	return s.split(text, s.separators)
}

// SplitDocuments splits each document and carries its source metadata onto
// every resulting chunk, adding the chunk's position within the document.
func (s *RecursiveCharacter) SplitDocuments(docs []models.Document) []models.Chunk {
	var chunks []models.Chunk
	for _, d := range docs {
		for i, piece := range s.Split(d.Text) {
			md := make(map[string]any, len(d.Metadata)+1)
			for k, v := range d.Metadata {
				md[k] = v
			}
			md["chunk"] = i
			chunks = append(chunks, models.Chunk{Text: piece, Metadata: md})
		}
	}
	return chunks
}

func (s *RecursiveCharacter) split(text string, separators []string) []string {
	sep := separators[len(separators)-1]
	rest := []string{}
	for i, candidate := range separators {
		if candidate == "" || strings.Contains(text, candidate) {
			sep = candidate
			rest = separators[i+1:]
			break
		}
	}

	splits := strings.Split(text, sep)

	var final []string
	var fitting []string
	for _, piece := range splits {
		if utf8.RuneCountInString(piece) <= s.chunkSize {
			fitting = append(fitting, piece)
			continue
		}
		if len(fitting) > 0 {
			final = append(final, s.merge(fitting, sep)...)
			fitting = nil
		}
		if len(rest) == 0 {
			final = append(final, piece)
		} else {
			final = append(final, s.split(piece, rest)...)
		}
	}
	if len(fitting) > 0 {
		final = append(final, s.merge(fitting, sep)...)
	}
	return final
}

// merge joins small pieces back into chunks up to chunkSize, keeping the
// trailing chunkOverlap runes worth of pieces as the start of the next chunk.
func (s *RecursiveCharacter) merge(pieces []string, sep string) []string {
	sepLen := utf8.RuneCountInString(sep)

	var chunks []string
	var current []string
	total := 0
	for _, piece := range pieces {
		pieceLen := utf8.RuneCountInString(piece)
		if len(current) > 0 && total+pieceLen+len(current)*sepLen > s.chunkSize {
			if chunk := join(current, sep); chunk != "" {
				chunks = append(chunks, chunk)
			}
			for len(current) > 0 &&
				(total > s.chunkOverlap || total+pieceLen+len(current)*sepLen > s.chunkSize) {
				total -= utf8.RuneCountInString(current[0])
				current = current[1:]
			}
		}
		current = append(current, piece)
		total += pieceLen
	}
	if chunk := join(current, sep); chunk != "" {
		chunks = append(chunks, chunk)
	}
	return chunks
}

func join(pieces []string, sep string) string {
	return strings.TrimSpace(strings.Join(pieces, sep))
}
