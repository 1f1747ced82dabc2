package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// EmbeddingError reports a failed call to the embedding service. There is
// no local fallback; the caller surfaces it.
type EmbeddingError struct {
	Err error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedding service: %v", e.Err)
}

func (e *EmbeddingError) Unwrap() error {
	return e.Err
}

// embeddingClient is the slice of the provider clients the embedder needs,
// so tests can use a deterministic fake.
type embeddingClient interface {
	CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error)
}

type EmbedderConfig struct {
	Provider string // "openai" or "ollama"
	Model    string
	BaseURL  string // Ollama server URL
	APIKey   string // OpenAI key; falls back to OPENAI_API_KEY
}

type Embedder struct {
	Config EmbedderConfig
	client embeddingClient
}

func NewEmbedderWithConfig(config EmbedderConfig) (*Embedder, error) {
	if config.Provider == "" {
		config.Provider = "openai"
	}

	var client embeddingClient
	var err error

	switch config.Provider {
	case "ollama":
		if config.Model == "" {
			config.Model = "nomic-embed-text:latest"
		}
		if config.BaseURL == "" {
			config.BaseURL = "http://localhost:11434"
		}
		client, err = ollama.New(
			ollama.WithModel(config.Model),
			ollama.WithServerURL(config.BaseURL),
		)
	case "openai":
		if config.Model == "" {
			config.Model = "text-embedding-ada-002"
		}
		opts := []openai.Option{openai.WithEmbeddingModel(config.Model)}
		if config.APIKey != "" {
			opts = append(opts, openai.WithToken(config.APIKey))
		}
		client, err = openai.New(opts...)
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", config.Provider)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	return &Embedder{
		Config: config,
		client: client,
	}, nil
}

// NewEmbedderWithClient wires a caller-supplied client, used by tests.
func NewEmbedderWithClient(config EmbedderConfig, client embeddingClient) *Embedder {
	return &Embedder{Config: config, client: client}
}

// EmbedTexts returns one vector per input text, in input order.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors, err := e.client.CreateEmbedding(ctx, texts)
	if err != nil {
		return nil, &EmbeddingError{Err: err}
	}

	if len(vectors) != len(texts) {
		return nil, &EmbeddingError{
			Err: fmt.Errorf("got %d vectors for %d inputs", len(vectors), len(texts)),
		}
	}

	return vectors, nil
}
