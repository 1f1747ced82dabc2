package research_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"
	"github.com/velding/newsrag/pkg/index"
	"github.com/velding/newsrag/pkg/llm"
	"github.com/velding/newsrag/pkg/loader"
	"github.com/velding/newsrag/pkg/research"
	"github.com/velding/newsrag/pkg/splitter"
)

// keywordEmbedder produces deterministic vectors from keyword presence so
// retrieval behaves like real semantic search without network calls.
type keywordEmbedder struct{}

var keywords = []string{"x", "y", "rose", "rise", "fell", "fall"}

func (keywordEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		lower := strings.ToLower(text)
		vec := make([]float32, len(keywords))
		for j, kw := range keywords {
			if strings.Contains(lower, kw) {
				vec[j] = 1
			}
		}
		vectors[i] = vec
	}
	return vectors, nil
}

// contextEchoModel answers from the first source in its prompt, citing it,
// the way a well-behaved model follows the sources instruction.
type contextEchoModel struct {
	called int
}

func (m *contextEchoModel) GenerateContent(_ context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	m.called++

	var prompt strings.Builder
	for _, msg := range messages {
		for _, part := range msg.Parts {
			if text, ok := part.(llms.TextContent); ok {
				prompt.WriteString(text.Text)
				prompt.WriteString("\n")
			}
		}
	}

	var source, extract string
	for _, line := range strings.Split(prompt.String(), "\n") {
		if strings.HasPrefix(line, "Source: ") {
			source = strings.TrimPrefix(line, "Source: ")
		} else if source != "" && extract == "" && strings.TrimSpace(line) != "" {
			extract = strings.TrimSpace(line)
		}
	}

	response := fmt.Sprintf("According to the articles, %s\nSOURCES:\n%s", extract, source)
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: response}},
	}, nil
}

func (m *contextEchoModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	resp, err := m.GenerateContent(ctx, []llms.MessageContent{llms.TextParts(schema.ChatMessageTypeHuman, prompt)}, options...)
	if err != nil {
		return "", err
	}
	return resp.Choices[0].Content, nil
}

func articleServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		filler := strings.Repeat("Further market commentary follows in later coverage. ", 3)
		fmt.Fprintf(w, "<html><head><title>News</title></head><body><article>%s %s</article></body></html>", body, filler)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestResearcher(t *testing.T, indexPath string, model *contextEchoModel) *research.Researcher {
	t.Helper()

	textSplitter, err := splitter.NewWithConfig(splitter.SplitterConfig{ChunkSize: 1000, ChunkOverlap: 200})
	require.NoError(t, err)

	return research.New(research.ResearcherConfig{
		IndexPath: indexPath,
		TopK:      3,
	},
		loader.NewWithConfig(loader.LoaderConfig{RateLimit: 1000}),
		textSplitter,
		keywordEmbedder{},
		index.NewFileIndex(),
		llm.NewWithModel(llm.ChatConfig{}, model),
	)
}

func TestProcessThenAsk(t *testing.T) {
	srvA := articleServer(t, "Stock X rose 5%.")
	srvB := articleServer(t, "Stock Y fell 2%.")

	model := &contextEchoModel{}
	r := newTestResearcher(t, filepath.Join(t.TempDir(), "index.db"), model)

	report, err := r.ProcessURLs(context.Background(), []string{srvA.URL, srvB.URL})
	require.NoError(t, err)
	assert.Equal(t, []string{srvA.URL, srvB.URL}, report.IndexedURLs)
	assert.Equal(t, 2, report.ChunkCount)
	assert.Empty(t, report.Warnings)

	answer, err := r.Ask(context.Background(), "Did stock X rise?")
	require.NoError(t, err)

	assert.Contains(t, answer.Text, "rose")
	assert.Equal(t, []string{srvA.URL}, answer.Sources)
	assert.Equal(t, 1, model.called)
}

func TestAskAfterRestartLoadsPersistedIndex(t *testing.T) {
	srvA := articleServer(t, "Stock X rose 5%.")
	srvB := articleServer(t, "Stock Y fell 2%.")

	indexPath := filepath.Join(t.TempDir(), "index.db")

	first := newTestResearcher(t, indexPath, &contextEchoModel{})
	_, err := first.ProcessURLs(context.Background(), []string{srvA.URL, srvB.URL})
	require.NoError(t, err)

	before, err := first.Ask(context.Background(), "Did stock X rise?")
	require.NoError(t, err)

	// A fresh researcher simulates a process restart: its index is empty
	// and must come from disk.
	second := newTestResearcher(t, indexPath, &contextEchoModel{})
	after, err := second.Ask(context.Background(), "Did stock X rise?")
	require.NoError(t, err)

	assert.Equal(t, before, after)
}

func TestAskWithoutIndex(t *testing.T) {
	model := &contextEchoModel{}
	r := newTestResearcher(t, filepath.Join(t.TempDir(), "missing.db"), model)

	_, err := r.Ask(context.Background(), "Did stock X rise?")
	assert.ErrorIs(t, err, research.ErrNoIndex)
	assert.Zero(t, model.called)
}

func TestProcessSkipsUnreachableURLs(t *testing.T) {
	srvA := articleServer(t, "Stock X rose 5%.")
	missing := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(missing.Close)

	r := newTestResearcher(t, filepath.Join(t.TempDir(), "index.db"), &contextEchoModel{})

	report, err := r.ProcessURLs(context.Background(), []string{srvA.URL, missing.URL})
	require.NoError(t, err)

	assert.Equal(t, []string{srvA.URL}, report.IndexedURLs)
	require.Len(t, report.Warnings, 1)
	assert.Contains(t, report.Warnings[0], missing.URL)

	answer, err := r.Ask(context.Background(), "Did stock X rise?")
	require.NoError(t, err)
	assert.Equal(t, []string{srvA.URL}, answer.Sources)
}

func TestProcessAllURLsUnreachable(t *testing.T) {
	missing := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(missing.Close)

	r := newTestResearcher(t, filepath.Join(t.TempDir(), "index.db"), &contextEchoModel{})

	report, err := r.ProcessURLs(context.Background(), []string{missing.URL})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no content could be loaded")
	require.NotNil(t, report)
	assert.Len(t, report.Warnings, 1)
}

func TestProcessNoURLs(t *testing.T) {
	r := newTestResearcher(t, filepath.Join(t.TempDir(), "index.db"), &contextEchoModel{})

	_, err := r.ProcessURLs(context.Background(), nil)
	assert.Error(t, err)
}

func TestProcessReportsSteps(t *testing.T) {
	srvA := articleServer(t, "Stock X rose 5%.")

	var steps []string
	textSplitter, err := splitter.NewWithConfig(splitter.SplitterConfig{ChunkSize: 1000, ChunkOverlap: 200})
	require.NoError(t, err)

	r := research.New(research.ResearcherConfig{
		IndexPath: filepath.Join(t.TempDir(), "index.db"),
		OnStep:    func(step string) { steps = append(steps, step) },
	},
		loader.NewWithConfig(loader.LoaderConfig{RateLimit: 1000}),
		textSplitter,
		keywordEmbedder{},
		index.NewFileIndex(),
		llm.NewWithModel(llm.ChatConfig{}, &contextEchoModel{}),
	)

	_, err = r.ProcessURLs(context.Background(), []string{srvA.URL})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"Loading articles",
		"Splitting text into chunks",
		"Creating embeddings",
		"Building index",
		"Saving index",
	}, steps)
}
