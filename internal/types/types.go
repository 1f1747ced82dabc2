package types

import (
	"context"

	"github.com/velding/newsrag/internal/models"
)

// Core interfaces. The pipeline depends on these rather than concrete
// clients so tests can substitute deterministic fakes for the embedding
// and language-model services.

type DocumentLoader interface {
	Load(ctx context.Context, urls []string) ([]models.Document, []error)
}

type Splitter interface {
	Split(doc models.Document) []models.Chunk
}

type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

type VectorIndex interface {
	Build(entries []models.Entry) error
	Persist(path string) error
	Load(path string) error
	Search(query []float32, k int) ([]models.Scored, error)
}

type Answerer interface {
	Answer(ctx context.Context, question string, hits []models.Scored) (models.Answer, error)
}
