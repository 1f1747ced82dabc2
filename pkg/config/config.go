package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

type Config struct {
	LLM struct {
		Provider    string  `yaml:"provider"`
		BaseURL     string  `yaml:"base_url"`
		Model       string  `yaml:"model"`
		MaxTokens   int     `yaml:"max_tokens"`
		Temperature float64 `yaml:"temperature"`
	} `yaml:"llm"`

	Embedding struct {
		Provider string `yaml:"provider"`
		BaseURL  string `yaml:"base_url"`
		Model    string `yaml:"model"`
	} `yaml:"embedding"`

	Loader struct {
		TimeoutSeconds int     `yaml:"timeout_seconds"`
		RateLimit      float64 `yaml:"rate_limit"`
		UserAgent      string  `yaml:"user_agent"`
	} `yaml:"loader"`

	Splitter struct {
		ChunkSize    int `yaml:"chunk_size"`
		ChunkOverlap int `yaml:"chunk_overlap"`
	} `yaml:"splitter"`

	Index struct {
		Path        string `yaml:"path"`
		DatabaseURL string `yaml:"database_url"`
		TableName   string `yaml:"table_name"`
		VectorDim   int    `yaml:"vector_dim"`
		TopK        int    `yaml:"top_k"`
		BatchSize   int    `yaml:"batch_size"`
	} `yaml:"index"`

	UI struct {
		Port string `yaml:"port"`
	} `yaml:"ui"`
}

func LoadConfig(path string) (*Config, error) {
	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"newsrag.yaml",
			"newsrag.yml",
			filepath.Join(os.Getenv("HOME"), ".config/newsrag/config.yaml"),
			"/etc/newsrag/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %v", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %v", err)
	}

	mergeWithEnv(&config)
	applyDefaults(&config)

	return &config, nil
}

func getDefaultConfig() (*Config, error) {
	config := &Config{}
	applyDefaults(config)
	mergeWithEnv(config)
	return config, nil
}

func applyDefaults(config *Config) {
	if config.LLM.Provider == "" {
		config.LLM.Provider = "openai"
	}
	if config.LLM.Model == "" {
		config.LLM.Model = "gpt-3.5-turbo-instruct"
	}
	if config.LLM.MaxTokens == 0 {
		config.LLM.MaxTokens = 500
	}
	if config.LLM.Temperature == 0 {
		config.LLM.Temperature = 0.7
	}
	if config.LLM.Provider == "ollama" && config.LLM.BaseURL == "" {
		config.LLM.BaseURL = "http://localhost:11434"
	}

	if config.Embedding.Provider == "" {
		config.Embedding.Provider = config.LLM.Provider
	}
	if config.Embedding.Model == "" {
		switch config.Embedding.Provider {
		case "ollama":
			config.Embedding.Model = "nomic-embed-text:latest"
		default:
			config.Embedding.Model = "text-embedding-ada-002"
		}
	}
	if config.Embedding.Provider == "ollama" && config.Embedding.BaseURL == "" {
		config.Embedding.BaseURL = config.LLM.BaseURL
	}

	if config.Loader.TimeoutSeconds == 0 {
		config.Loader.TimeoutSeconds = 30
	}
	if config.Loader.RateLimit == 0 {
		config.Loader.RateLimit = 2.0
	}

	if config.Splitter.ChunkSize == 0 {
		config.Splitter.ChunkSize = 1000
	}
	if config.Splitter.ChunkOverlap == 0 {
		config.Splitter.ChunkOverlap = 200
	}

	if config.Index.Path == "" {
		config.Index.Path = "newsrag_index.db"
	}
	if config.Index.TableName == "" {
		config.Index.TableName = "articles"
	}
	if config.Index.VectorDim == 0 {
		config.Index.VectorDim = 1536
	}
	if config.Index.TopK == 0 {
		config.Index.TopK = 3
	}
	if config.Index.BatchSize == 0 {
		config.Index.BatchSize = 32
	}

	if config.UI.Port == "" {
		config.UI.Port = "8080"
	}
}

func mergeWithEnv(config *Config) {
	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
		config.LLM.BaseURL = baseURL
		config.Embedding.BaseURL = baseURL
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Index.DatabaseURL = dbURL
	}
	if indexPath := os.Getenv("NEWSRAG_INDEX_PATH"); indexPath != "" {
		config.Index.Path = indexPath
	}
}
