package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/schollz/progressbar/v3"
	"github.com/velding/newsrag/internal/types"
	cfgPkg "github.com/velding/newsrag/pkg/config"
	"github.com/velding/newsrag/pkg/index"
	"github.com/velding/newsrag/pkg/llm"
	"github.com/velding/newsrag/pkg/loader"
	"github.com/velding/newsrag/pkg/research"
	"github.com/velding/newsrag/pkg/splitter"
	"github.com/velding/newsrag/server"
)

var urlRegex = regexp.MustCompile(`https?://[^\s]+`)

func main() {
	_ = godotenv.Load()

	cfg, serve, urlsFile, err := parseFlags()
	if err != nil {
		log.Fatal(err)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		for _, e := range errs {
			color.Red("config: %v", e)
		}
		os.Exit(1)
	}

	if err := run(cfg, serve, urlsFile); err != nil {
		log.Fatal(err)
	}
}

func parseFlags() (*cfgPkg.Config, bool, string, error) {
	var configPath, provider, model, baseURL, indexPath, urlsFile string
	var chunkSize, chunkOverlap, topK, maxTokens int
	var temperature float64
	var serve bool

	flag.StringVar(&configPath, "config", "", "Path to config file")
	flag.StringVar(&provider, "provider", "", "LLM provider (openai or ollama)")
	flag.StringVar(&model, "model", "", "LLM model to use")
	flag.StringVar(&baseURL, "ollama-url", "", "Ollama server URL")
	flag.StringVar(&indexPath, "index", "", "Path to the persisted index file")
	flag.StringVar(&urlsFile, "urls-file", "", "File of newline-separated URLs to process on startup")
	flag.IntVar(&chunkSize, "chunk-size", 0, "Size of text chunks")
	flag.IntVar(&chunkOverlap, "chunk-overlap", 0, "Overlap between consecutive chunks")
	flag.IntVar(&topK, "k", 0, "Number of chunks to retrieve per question")
	flag.IntVar(&maxTokens, "max-tokens", 0, "Maximum tokens for LLM response")
	flag.Float64Var(&temperature, "temperature", 0, "Set the LLM temperature")
	flag.BoolVar(&serve, "serve", false, "Run the websocket server instead of the interactive shell")
	flag.Parse()

	cfg, err := cfgPkg.LoadConfig(configPath)
	if err != nil {
		return nil, false, "", err
	}

	// Command line flags override the config file
	if provider != "" {
		cfg.LLM.Provider = provider
		cfg.Embedding.Provider = provider
	}
	if model != "" {
		cfg.LLM.Model = model
	}
	if baseURL != "" {
		cfg.LLM.BaseURL = baseURL
		cfg.Embedding.BaseURL = baseURL
	}
	if indexPath != "" {
		cfg.Index.Path = indexPath
	}
	if chunkSize != 0 {
		cfg.Splitter.ChunkSize = chunkSize
	}
	if chunkOverlap != 0 {
		cfg.Splitter.ChunkOverlap = chunkOverlap
	}
	if topK != 0 {
		cfg.Index.TopK = topK
	}
	if maxTokens != 0 {
		cfg.LLM.MaxTokens = maxTokens
	}
	if temperature != 0 {
		cfg.LLM.Temperature = temperature
	}

	return cfg, serve, urlsFile, nil
}

func getProgressBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(color.BlueString(description)),
		progressbar.OptionShowCount(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func getSpinner(description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(color.CyanString(description)),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWidth(20),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func buildResearcher(cfg *cfgPkg.Config) (*research.Researcher, error) {
	urlLoader := loader.NewWithConfig(loader.LoaderConfig{
		Timeout:   time.Duration(cfg.Loader.TimeoutSeconds) * time.Second,
		RateLimit: cfg.Loader.RateLimit,
		UserAgent: cfg.Loader.UserAgent,
	})

	textSplitter, err := splitter.NewWithConfig(splitter.SplitterConfig{
		ChunkSize:    cfg.Splitter.ChunkSize,
		ChunkOverlap: cfg.Splitter.ChunkOverlap,
	})
	if err != nil {
		return nil, err
	}

	embedder, err := llm.NewEmbedderWithConfig(llm.EmbedderConfig{
		Provider: cfg.Embedding.Provider,
		Model:    cfg.Embedding.Model,
		BaseURL:  cfg.Embedding.BaseURL,
	})
	if err != nil {
		return nil, err
	}

	chatEngine, err := llm.NewWithConfig(llm.ChatConfig{
		Provider:    cfg.LLM.Provider,
		Model:       cfg.LLM.Model,
		BaseURL:     cfg.LLM.BaseURL,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize chat engine: %v", err)
	}

	var vectorIndex types.VectorIndex
	if cfg.Index.DatabaseURL != "" {
		vectorIndex, err = index.NewPGIndex(index.PGIndexConfig{
			ConnString: cfg.Index.DatabaseURL,
			TableName:  cfg.Index.TableName,
			VectorDim:  cfg.Index.VectorDim,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize vector store: %v", err)
		}
	} else {
		vectorIndex = index.NewFileIndex()
	}

	var embedBar *progressbar.ProgressBar

	return research.New(research.ResearcherConfig{
		IndexPath: cfg.Index.Path,
		TopK:      cfg.Index.TopK,
		BatchSize: cfg.Index.BatchSize,
		OnStep: func(step string) {
			color.Blue("%s...", step)
		},
		OnProgress: func(done, total int) {
			if embedBar == nil {
				embedBar = getProgressBar(total, " Embedding chunks")
			}
			embedBar.Set(done)
			if done == total {
				embedBar.Finish()
				fmt.Println()
				embedBar = nil
			}
		},
	}, urlLoader, textSplitter, embedder, vectorIndex, chatEngine), nil
}

func run(cfg *cfgPkg.Config, serve bool, urlsFile string) error {
	researcher, err := buildResearcher(cfg)
	if err != nil {
		return err
	}

	if serve {
		return server.NewWSServer(researcher).ListenAndServe(cfg.UI.Port)
	}

	if urlsFile != "" {
		urls, err := readURLsFile(urlsFile)
		if err != nil {
			return err
		}
		processURLs(researcher, urls)
	}

	// Interactive loop with colored output
	color.Cyan("\nNews research tool. Paste article URLs to index them, then ask questions.")
	color.Cyan("Commands: 'load <file>' to read URLs from a file, 'exit' to quit.")

	scanner := bufio.NewScanner(os.Stdin)
	userPrompt := color.New(color.FgGreen).PrintfFunc()
	assistantPrompt := color.New(color.FgCyan).PrintfFunc()

	for {
		userPrompt("\nYou: ")
		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case strings.ToLower(line) == "exit":
			return nil
		case strings.HasPrefix(line, "load "):
			urls, err := readURLsFile(strings.TrimSpace(strings.TrimPrefix(line, "load ")))
			if err != nil {
				color.Red("%v", err)
				continue
			}
			processURLs(researcher, urls)
		default:
			if urls := urlRegex.FindAllString(line, -1); len(urls) > 0 {
				processURLs(researcher, urls)
				continue
			}

			spinner := getSpinner(" Searching articles...")
			answer, err := researcher.Ask(context.Background(), line)
			spinner.Finish()
			fmt.Print("\r")

			if err != nil {
				color.Red("Error: %v", err)
				continue
			}

			assistantPrompt("\nAssistant: %s\n", answer.Text)
			if len(answer.Sources) > 0 {
				color.Yellow("\nSources:")
				for _, source := range answer.Sources {
					color.Yellow("  %s", source)
				}
			}
		}
	}

	return nil
}

func processURLs(researcher *research.Researcher, urls []string) {
	color.Blue("\nProcessing %d URL(s)", len(urls))

	report, err := researcher.ProcessURLs(context.Background(), urls)
	if report != nil {
		for _, warning := range report.Warnings {
			color.Yellow("warning: %s", warning)
		}
	}
	if err != nil {
		color.Red("Error: %v", err)
		return
	}

	color.Green("✓ Indexed %d chunks from %d article(s)", report.ChunkCount, len(report.IndexedURLs))
}

func readURLsFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read URLs file: %v", err)
	}

	var urls []string
	for _, line := range strings.Split(string(data), "\n") {
		if line = strings.TrimSpace(line); line != "" && !strings.HasPrefix(line, "#") {
			urls = append(urls, line)
		}
	}

	if len(urls) == 0 {
		return nil, fmt.Errorf("no URLs found in %s", path)
	}

	return urls, nil
}
