package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type LLMConfig struct {
	BaseURL        string        `yaml:"base_url"`
	Model          string        `yaml:"model"`
	EmbeddingModel string        `yaml:"embedding_model"`
	MaxTokens      int           `yaml:"max_tokens"`
	Temperature    float64       `yaml:"temperature"`
	EmbedRateLimit float64       `yaml:"embed_rate_limit"`
	Timeout        time.Duration `yaml:"timeout"`
}

type StoreConfig struct {
	Driver      string `yaml:"driver"`
	DataDir     string `yaml:"data_dir"`
	DatabaseURL string `yaml:"database_url"`
	VectorDim   int    `yaml:"vector_dim"`
	BatchSize   int    `yaml:"batch_size"`
}

type ProcessorConfig struct {
	ChunkSize    int      `yaml:"chunk_size"`
	ChunkOverlap int      `yaml:"chunk_overlap"`
	Separators   []string `yaml:"separators"`
}

type RAGConfig struct {
	TopK                 int    `yaml:"top_k"`
	MaxContextLength     int    `yaml:"max_context_length"`
	PreviewLength        int    `yaml:"preview_length"`
	DisplayContextLength int    `yaml:"display_context_length"`
	SystemPrompt         string `yaml:"system_prompt"`
}

type ScraperConfig struct {
	MaxDepth          int      `yaml:"max_depth"`
	RateLimit         float64  `yaml:"rate_limit"`
	IgnorePatterns    []string `yaml:"ignore_patterns"`
	AllowedExtensions []string `yaml:"allowed_extensions"`
}

type ServerConfig struct {
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

type Config struct {
	LLM       LLMConfig       `yaml:"llm"`
	Store     StoreConfig     `yaml:"store"`
	Processor ProcessorConfig `yaml:"processor"`
	RAG       RAGConfig       `yaml:"rag"`
	Scraper   ScraperConfig   `yaml:"scraper"`
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
}

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

func LoadConfig(path string) (*Config, error) {
	// .env is optional; real environment variables take precedence over it.
	_ = godotenv.Load()

	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/mindquery/config.yaml"),
			"/etc/mindquery/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	mergeWithEnv(&config)
	applyDefaults(&config)

	return &config, nil
}

func getDefaultConfig() *Config {
	config := &Config{}
	mergeWithEnv(config)
	applyDefaults(config)
	return config
}

func applyDefaults(config *Config) {
	if config.LLM.BaseURL == "" {
		config.LLM.BaseURL = "http://localhost:11434"
	}
	if config.LLM.Model == "" {
		config.LLM.Model = "mistral"
	}
	if config.LLM.EmbeddingModel == "" {
		config.LLM.EmbeddingModel = "nomic-embed-text:latest"
	}
	if config.LLM.MaxTokens == 0 {
		config.LLM.MaxTokens = 1024
	}
	if config.LLM.Temperature == 0 {
		config.LLM.Temperature = 0.3
	}
	if config.LLM.EmbedRateLimit == 0 {
		config.LLM.EmbedRateLimit = 20
	}
	if config.LLM.Timeout == 0 {
		config.LLM.Timeout = 2 * time.Minute
	}

	if config.Store.Driver == "" {
		config.Store.Driver = DriverSQLite
	}
	if config.Store.DataDir == "" {
		config.Store.DataDir = filepath.Join("data", "knowledge_bases")
	}
	if config.Store.VectorDim == 0 {
		config.Store.VectorDim = 768
	}
	if config.Store.BatchSize == 0 {
		config.Store.BatchSize = 100
	}

	// Overlap defaults only together with the size, so an explicit
	// chunk_size with no overlap stays overlap-free.
	if config.Processor.ChunkSize == 0 {
		config.Processor.ChunkSize = 800
		if config.Processor.ChunkOverlap == 0 {
			config.Processor.ChunkOverlap = 100
		}
	}
	if config.Processor.Separators == nil {
		config.Processor.Separators = []string{"\n\n", "\n", ". ", " ", ""}
	}

	if config.RAG.TopK == 0 {
		config.RAG.TopK = 5
	}
	if config.RAG.MaxContextLength == 0 {
		config.RAG.MaxContextLength = 4000
	}
	if config.RAG.PreviewLength == 0 {
		config.RAG.PreviewLength = 150
	}
	if config.RAG.DisplayContextLength == 0 {
		config.RAG.DisplayContextLength = 500
	}
	if config.RAG.SystemPrompt == "" {
		config.RAG.SystemPrompt = DefaultSystemPrompt
	}

	if config.Scraper.MaxDepth == 0 {
		config.Scraper.MaxDepth = 3
	}
	if config.Scraper.RateLimit == 0 {
		config.Scraper.RateLimit = 2.0
	}
	if len(config.Scraper.AllowedExtensions) == 0 {
		config.Scraper.AllowedExtensions = []string{".html", ".htm", "/", ""}
	}

	if config.Server.Port == "" {
		config.Server.Port = "8082"
	}
	if config.Server.ReadTimeout == 0 {
		config.Server.ReadTimeout = 30 * time.Second
	}
	if config.Server.WriteTimeout == 0 {
		config.Server.WriteTimeout = 3 * time.Minute
	}
	if config.Server.ShutdownTimeout == 0 {
		config.Server.ShutdownTimeout = 10 * time.Second
	}

	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
}

func mergeWithEnv(config *Config) {
	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
		config.LLM.BaseURL = baseURL
	}
	if model := os.Getenv("MINDQUERY_CHAT_MODEL"); model != "" {
		config.LLM.Model = model
	}
	if model := os.Getenv("MINDQUERY_EMBED_MODEL"); model != "" {
		config.LLM.EmbeddingModel = model
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Store.DatabaseURL = dbURL
	}
	if driver := os.Getenv("MINDQUERY_STORE_DRIVER"); driver != "" {
		config.Store.Driver = driver
	}
	if dir := os.Getenv("MINDQUERY_DATA_DIR"); dir != "" {
		config.Store.DataDir = dir
	}
	if level := os.Getenv("MINDQUERY_LOG_LEVEL"); level != "" {
		config.Log.Level = level
	}
	if port := os.Getenv("PORT"); port != "" {
		if _, err := strconv.Atoi(port); err == nil {
			config.Server.Port = port
		}
	}
}

const DefaultSystemPrompt = `You are a careful assistant answering questions about the user's documents.
Answer using only the information in the context below. If the context does not contain the answer, say that you could not find it in the documents.
Be concise and precise.`
