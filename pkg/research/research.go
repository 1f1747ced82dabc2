// Package research wires the loader, splitter, embedder, index and answer
// engine into the two pipeline actions: process URLs and ask a question.
package research

import (
	"context"
	"errors"
	"fmt"

	"github.com/velding/newsrag/internal/models"
	"github.com/velding/newsrag/internal/types"
	"github.com/velding/newsrag/pkg/index"
)

// ErrNoIndex is returned when a question is asked before any URLs have
// been processed and no persisted index exists.
var ErrNoIndex = errors.New("no index available, process some URLs first")

type ResearcherConfig struct {
	IndexPath string
	TopK      int
	BatchSize int // embedding batch size

	OnStep     func(step string)
	OnProgress func(done, total int)
}

type Researcher struct {
	config   ResearcherConfig
	loader   types.DocumentLoader
	splitter types.Splitter
	embedder types.Embedder
	index    types.VectorIndex
	engine   types.Answerer
}

func New(config ResearcherConfig, loader types.DocumentLoader, splitter types.Splitter,
	embedder types.Embedder, idx types.VectorIndex, engine types.Answerer) *Researcher {
	if config.TopK == 0 {
		config.TopK = 3
	}
	if config.BatchSize == 0 {
		config.BatchSize = 32
	}

	return &Researcher{
		config:   config,
		loader:   loader,
		splitter: splitter,
		embedder: embedder,
		index:    idx,
		engine:   engine,
	}
}

// ProcessURLs runs load -> split -> embed -> build -> persist over the
// given URLs. Unreachable URLs are skipped and reported as warnings in the
// returned report; the index is rebuilt and the previous snapshot is
// overwritten.
func (r *Researcher) ProcessURLs(ctx context.Context, urls []string) (*models.ProcessReport, error) {
	if len(urls) == 0 {
		return nil, fmt.Errorf("no URLs to process")
	}

	r.step("Loading articles")
	docs, failures := r.loader.Load(ctx, urls)

	report := &models.ProcessReport{}
	for _, err := range failures {
		report.Warnings = append(report.Warnings, err.Error())
	}

	if len(docs) == 0 {
		return report, fmt.Errorf("no content could be loaded from the provided URLs")
	}

	r.step("Splitting text into chunks")
	var chunks []models.Chunk
	for _, doc := range docs {
		chunks = append(chunks, r.splitter.Split(doc)...)
		report.IndexedURLs = append(report.IndexedURLs, doc.URL)
	}
	report.ChunkCount = len(chunks)

	if len(chunks) == 0 {
		return report, fmt.Errorf("loaded documents contained no text")
	}

	r.step("Creating embeddings")
	vectors, err := r.embedChunks(ctx, chunks)
	if err != nil {
		return report, err
	}

	entries := make([]models.Entry, len(chunks))
	for i, chunk := range chunks {
		entries[i] = models.Entry{Chunk: chunk, Vector: vectors[i]}
	}

	r.step("Building index")
	if err := r.index.Build(entries); err != nil {
		return report, fmt.Errorf("build index: %w", err)
	}

	r.step("Saving index")
	if err := r.index.Persist(r.config.IndexPath); err != nil {
		return report, err
	}

	return report, nil
}

// embedChunks embeds chunk texts in order-preserving batches.
func (r *Researcher) embedChunks(ctx context.Context, chunks []models.Chunk) ([][]float32, error) {
	vectors := make([][]float32, 0, len(chunks))

	for start := 0; start < len(chunks); start += r.config.BatchSize {
		end := start + r.config.BatchSize
		if end > len(chunks) {
			end = len(chunks)
		}

		texts := make([]string, 0, end-start)
		for _, chunk := range chunks[start:end] {
			texts = append(texts, chunk.Text)
		}

		batch, err := r.embedder.EmbedTexts(ctx, texts)
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, batch...)

		if r.config.OnProgress != nil {
			r.config.OnProgress(end, len(chunks))
		}
	}

	return vectors, nil
}

// Ask answers a question from the indexed articles. When no index is in
// memory it is loaded from the configured path; a missing index is
// reported, never silently answered around.
func (r *Researcher) Ask(ctx context.Context, question string) (models.Answer, error) {
	vectors, err := r.embedder.EmbedTexts(ctx, []string{question})
	if err != nil {
		return models.Answer{}, err
	}

	hits, err := r.index.Search(vectors[0], r.config.TopK)
	if errors.Is(err, index.ErrNotBuilt) {
		if loadErr := r.index.Load(r.config.IndexPath); loadErr != nil {
			if errors.Is(loadErr, index.ErrNotFound) {
				return models.Answer{}, ErrNoIndex
			}
			return models.Answer{}, loadErr
		}
		hits, err = r.index.Search(vectors[0], r.config.TopK)
	}
	if err != nil {
		return models.Answer{}, fmt.Errorf("search index: %w", err)
	}

	return r.engine.Answer(ctx, question, hits)
}

func (r *Researcher) step(name string) {
	if r.config.OnStep != nil {
		r.config.OnStep(name)
	}
}
