package llm_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"
	"github.com/velding/newsrag/internal/models"
	"github.com/velding/newsrag/pkg/llm"
)

// fakeModel returns a canned response and records whether it was called.
type fakeModel struct {
	response string
	err      error
	called   bool
	prompt   string
}

func (f *fakeModel) GenerateContent(_ context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	f.called = true
	for _, msg := range messages {
		for _, part := range msg.Parts {
			if text, ok := part.(llms.TextContent); ok {
				f.prompt += text.Text + "\n"
			}
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: f.response}},
	}, nil
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	resp, err := f.GenerateContent(ctx, []llms.MessageContent{llms.TextParts(schema.ChatMessageTypeHuman, prompt)}, options...)
	if err != nil {
		return "", err
	}
	return resp.Choices[0].Content, nil
}

func hitsFor(urls ...string) []models.Scored {
	hits := make([]models.Scored, len(urls))
	for i, url := range urls {
		hits[i] = models.Scored{
			Entry: models.Entry{
				Chunk: models.Chunk{ID: fmt.Sprintf("c%d", i), URL: url, Text: "chunk text"},
			},
			Score: 1 - float32(i)*0.1,
		}
	}
	return hits
}

func TestAnswerParsesSourcesTrailer(t *testing.T) {
	model := &fakeModel{response: "Stock X rose 5% on Tuesday.\nSOURCES:\nhttps://example.com/a"}
	engine := llm.NewWithModel(llm.ChatConfig{}, model)

	answer, err := engine.Answer(context.Background(), "Did stock X rise?",
		hitsFor("https://example.com/a", "https://example.com/b"))
	require.NoError(t, err)

	assert.Equal(t, "Stock X rose 5% on Tuesday.", answer.Text)
	assert.Equal(t, []string{"https://example.com/a"}, answer.Sources)
	assert.Contains(t, model.prompt, "chunk text")
	assert.Contains(t, model.prompt, "Did stock X rise?")
}

func TestAnswerDeduplicatesSources(t *testing.T) {
	model := &fakeModel{response: "Both articles agree.\nSOURCES: https://example.com/a https://example.com/b, https://example.com/a"}
	engine := llm.NewWithModel(llm.ChatConfig{}, model)

	answer, err := engine.Answer(context.Background(), "q",
		hitsFor("https://example.com/a", "https://example.com/b"))
	require.NoError(t, err)

	assert.Equal(t, []string{"https://example.com/a", "https://example.com/b"}, answer.Sources)
}

func TestAnswerIgnoresUnretrievedSources(t *testing.T) {
	model := &fakeModel{response: "An answer.\nSOURCES:\nhttps://example.com/made-up"}
	engine := llm.NewWithModel(llm.ChatConfig{}, model)

	answer, err := engine.Answer(context.Background(), "q", hitsFor("https://example.com/a"))
	require.NoError(t, err)
	assert.Empty(t, answer.Sources)
}

func TestAnswerWithoutTrailer(t *testing.T) {
	model := &fakeModel{response: "I do not know."}
	engine := llm.NewWithModel(llm.ChatConfig{}, model)

	answer, err := engine.Answer(context.Background(), "q", hitsFor("https://example.com/a"))
	require.NoError(t, err)
	assert.Equal(t, "I do not know.", answer.Text)
	assert.Empty(t, answer.Sources)
}

func TestAnswerZeroHitsSkipsModel(t *testing.T) {
	model := &fakeModel{response: "should not be used"}
	engine := llm.NewWithModel(llm.ChatConfig{}, model)

	answer, err := engine.Answer(context.Background(), "q", nil)
	require.NoError(t, err)

	assert.Equal(t, llm.NoContextAnswer, answer.Text)
	assert.Empty(t, answer.Sources)
	assert.False(t, model.called)
}

func TestAnswerServiceFailure(t *testing.T) {
	model := &fakeModel{err: fmt.Errorf("rate limited")}
	engine := llm.NewWithModel(llm.ChatConfig{}, model)

	_, err := engine.Answer(context.Background(), "q", hitsFor("https://example.com/a"))
	require.Error(t, err)

	var compErr *llm.CompletionError
	require.ErrorAs(t, err, &compErr)
	assert.Contains(t, err.Error(), "rate limited")
}

func TestNewWithConfigRejectsBadParams(t *testing.T) {
	_, err := llm.NewWithConfig(llm.ChatConfig{Temperature: 3})
	assert.Error(t, err)

	_, err = llm.NewWithConfig(llm.ChatConfig{MaxTokens: -1})
	assert.Error(t, err)

	_, err = llm.NewWithConfig(llm.ChatConfig{Provider: "watson"})
	assert.Error(t, err)
}
