package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
	"github.com/velding/newsrag/internal/models"
)

// NoContextAnswer is returned when retrieval finds nothing; the language
// model is not called in that case.
const NoContextAnswer = "I don't have any relevant information about that in the indexed articles."

const sourcesMarker = "SOURCES:"

// CompletionError reports a failed call to the language-model service.
type CompletionError struct {
	Err error
}

func (e *CompletionError) Error() string {
	return fmt.Sprintf("language model: %v", e.Err)
}

func (e *CompletionError) Unwrap() error {
	return e.Err
}

// ChatConfig represents the configuration for an answer engine.
type ChatConfig struct {
	Provider       string // "openai" or "ollama"
	Model          string
	Temperature    float64
	MaxTokens      int
	SystemTemplate string
	BaseURL        string // Ollama server URL
	APIKey         string // OpenAI key; falls back to OPENAI_API_KEY
}

// ChatEngine answers questions from retrieved article chunks.
type ChatEngine struct {
	config ChatConfig
	llm    llms.Model
}

func NewWithConfig(config ChatConfig) (*ChatEngine, error) {
	if config.Provider == "" {
		config.Provider = "openai"
	}
	if config.Temperature < 0 || config.Temperature > 2 {
		return nil, fmt.Errorf("temperature must be between 0 and 2")
	}
	if config.MaxTokens < 0 {
		return nil, fmt.Errorf("max tokens cannot be negative")
	} else if config.MaxTokens == 0 {
		config.MaxTokens = 500
	}
	applyChatDefaults(&config)

	var model llms.Model
	var err error

	switch config.Provider {
	case "ollama":
		model, err = ollama.New(
			ollama.WithModel(config.Model),
			ollama.WithServerURL(config.BaseURL),
		)
	case "openai":
		opts := []openai.Option{openai.WithModel(config.Model)}
		if config.APIKey != "" {
			opts = append(opts, openai.WithToken(config.APIKey))
		}
		model, err = openai.New(opts...)
	default:
		return nil, fmt.Errorf("unknown LLM provider: %s", config.Provider)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM: %w", err)
	}

	return &ChatEngine{
		config: config,
		llm:    model,
	}, nil
}

// NewWithModel wires a caller-supplied model, used by tests.
func NewWithModel(config ChatConfig, model llms.Model) *ChatEngine {
	applyChatDefaults(&config)
	if config.MaxTokens == 0 {
		config.MaxTokens = 500
	}
	return &ChatEngine{config: config, llm: model}
}

func applyChatDefaults(config *ChatConfig) {
	if config.Model == "" {
		switch config.Provider {
		case "ollama":
			config.Model = "mistral"
		default:
			config.Model = "gpt-3.5-turbo-instruct"
		}
	}
	if config.Provider == "ollama" && config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434"
	}
	if config.SystemTemplate == "" {
		config.SystemTemplate = "You are a research assistant. Answer the question using only the " +
			"article extracts provided. If the extracts do not contain the answer, say you do not know. " +
			"After the answer, add a line starting with \"" + sourcesMarker + "\" listing the URLs of the " +
			"extracts you relied on, one per line. Do not list URLs you did not use."
	}
}

// Answer generates a cited answer from the retrieved chunks. Zero hits
// short-circuit to NoContextAnswer without calling the model.
func (ce *ChatEngine) Answer(ctx context.Context, question string, hits []models.Scored) (models.Answer, error) {
	if len(hits) == 0 {
		return models.Answer{Text: NoContextAnswer}, nil
	}

	var contextBuilder strings.Builder
	for _, hit := range hits {
		contextBuilder.WriteString(fmt.Sprintf("Source: %s\n%s\n\n", hit.URL, hit.Text))
	}

	content := []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeSystem, ce.config.SystemTemplate),
		llms.TextParts(schema.ChatMessageTypeHuman,
			fmt.Sprintf("Article extracts:\n\n%sQuestion: %s", contextBuilder.String(), question)),
	}

	response, err := ce.llm.GenerateContent(ctx, content,
		llms.WithTemperature(ce.config.Temperature),
		llms.WithMaxTokens(ce.config.MaxTokens),
	)
	if err != nil {
		return models.Answer{}, &CompletionError{Err: err}
	}
	if response == nil || len(response.Choices) == 0 {
		return models.Answer{}, &CompletionError{Err: fmt.Errorf("no response from LLM")}
	}

	text, cited := splitSources(response.Choices[0].Content)

	return models.Answer{
		Text:    text,
		Sources: filterSources(cited, hits),
	}, nil
}

// splitSources separates the answer body from the SOURCES: trailer.
func splitSources(raw string) (string, []string) {
	idx := strings.LastIndex(raw, sourcesMarker)
	if idx < 0 {
		return strings.TrimSpace(raw), nil
	}

	body := strings.TrimSpace(raw[:idx])
	trailer := raw[idx+len(sourcesMarker):]

	var cited []string
	for _, line := range strings.Split(trailer, "\n") {
		for _, field := range strings.Fields(line) {
			field = strings.Trim(field, ",;")
			if strings.HasPrefix(field, "http://") || strings.HasPrefix(field, "https://") {
				cited = append(cited, field)
			}
		}
	}

	return body, cited
}

// filterSources keeps only URLs that were actually retrieved, deduplicated
// in citation order.
func filterSources(cited []string, hits []models.Scored) []string {
	retrieved := make(map[string]bool, len(hits))
	for _, hit := range hits {
		retrieved[hit.URL] = true
	}

	var sources []string
	seen := make(map[string]bool)
	for _, url := range cited {
		if retrieved[url] && !seen[url] {
			sources = append(sources, url)
			seen[url] = true
		}
	}

	return sources
}
