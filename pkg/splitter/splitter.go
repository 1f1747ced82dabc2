package splitter

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/velding/newsrag/internal/models"
)

// ConfigError reports invalid splitter parameters.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("splitter config: %s", e.Message)
}

type SplitterConfig struct {
	ChunkSize    int // maximum chunk length in characters
	ChunkOverlap int // characters carried over between consecutive chunks
}

type Splitter struct {
	config SplitterConfig
}

func NewWithConfig(config SplitterConfig) (*Splitter, error) {
	if config.ChunkSize == 0 {
		config.ChunkSize = 1000
	}
	if config.ChunkSize < 1 {
		return nil, &ConfigError{Message: "chunk size must be positive"}
	}
	if config.ChunkOverlap < 0 {
		return nil, &ConfigError{Message: "chunk overlap must be non-negative"}
	}
	if config.ChunkOverlap >= config.ChunkSize {
		return nil, &ConfigError{
			Message: fmt.Sprintf("chunk overlap %d must be less than chunk size %d",
				config.ChunkOverlap, config.ChunkSize),
		}
	}

	return &Splitter{config: config}, nil
}

// Split cuts a document into overlapping chunks. Each chunk starts
// size−overlap characters after the previous one, so the tail of every
// chunk repeats at the head of the next. A document shorter than the
// chunk size yields exactly one chunk; empty content yields none.
func (s *Splitter) Split(doc models.Document) []models.Chunk {
	runes := []rune(doc.Content)
	if len(runes) == 0 {
		return nil
	}

	stride := s.config.ChunkSize - s.config.ChunkOverlap

	var chunks []models.Chunk
	for start := 0; ; start += stride {
		end := start + s.config.ChunkSize
		if end > len(runes) {
			end = len(runes)
		}

		chunks = append(chunks, models.Chunk{
			ID:      uuid.NewString(),
			URL:     doc.URL,
			Ordinal: len(chunks),
			Text:    string(runes[start:end]),
		})

		if end == len(runes) {
			break
		}
	}

	return chunks
}
