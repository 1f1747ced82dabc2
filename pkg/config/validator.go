package config

import (
	"fmt"
	"net/url"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

var knownProviders = map[string]bool{
	"openai": true,
	"ollama": true,
}

func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	if !knownProviders[c.LLM.Provider] {
		errors = append(errors, ValidationError{
			Field:   "llm.provider",
			Message: fmt.Sprintf("unknown provider: %s", c.LLM.Provider),
		})
	}

	if c.LLM.MaxTokens < 1 || c.LLM.MaxTokens > 4096 {
		errors = append(errors, ValidationError{
			Field:   "llm.max_tokens",
			Message: "max_tokens must be between 1 and 4096",
		})
	}

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errors = append(errors, ValidationError{
			Field:   "llm.temperature",
			Message: "temperature must be between 0 and 2",
		})
	}

	if c.LLM.BaseURL != "" {
		if _, err := url.Parse(c.LLM.BaseURL); err != nil {
			errors = append(errors, ValidationError{
				Field:   "llm.base_url",
				Message: "invalid base URL",
			})
		}
	}

	if !knownProviders[c.Embedding.Provider] {
		errors = append(errors, ValidationError{
			Field:   "embedding.provider",
			Message: fmt.Sprintf("unknown provider: %s", c.Embedding.Provider),
		})
	}

	if c.Loader.TimeoutSeconds < 1 {
		errors = append(errors, ValidationError{
			Field:   "loader.timeout_seconds",
			Message: "timeout_seconds must be positive",
		})
	}

	if c.Loader.RateLimit <= 0 {
		errors = append(errors, ValidationError{
			Field:   "loader.rate_limit",
			Message: "rate_limit must be positive",
		})
	}

	if c.Splitter.ChunkSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "splitter.chunk_size",
			Message: "chunk_size must be positive",
		})
	}

	if c.Splitter.ChunkOverlap < 0 || c.Splitter.ChunkOverlap >= c.Splitter.ChunkSize {
		errors = append(errors, ValidationError{
			Field:   "splitter.chunk_overlap",
			Message: "chunk_overlap must be non-negative and less than chunk_size",
		})
	}

	if c.Index.Path == "" && c.Index.DatabaseURL == "" {
		errors = append(errors, ValidationError{
			Field:   "index.path",
			Message: "an index path or database URL is required",
		})
	}

	if c.Index.DatabaseURL != "" {
		if _, err := url.Parse(c.Index.DatabaseURL); err != nil {
			errors = append(errors, ValidationError{
				Field:   "index.database_url",
				Message: "invalid database URL",
			})
		}
	}

	if c.Index.VectorDim < 1 {
		errors = append(errors, ValidationError{
			Field:   "index.vector_dim",
			Message: "vector_dim must be positive",
		})
	}

	if c.Index.TopK < 1 {
		errors = append(errors, ValidationError{
			Field:   "index.top_k",
			Message: "top_k must be positive",
		})
	}

	if c.Index.BatchSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "index.batch_size",
			Message: "batch_size must be positive",
		})
	}

	return errors
}
