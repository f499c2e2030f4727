package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KANCHARLABRUNDARIKA/KnowledgeBased-MindQuery/internal/apperr"
)

func TestLoadConfig(t *testing.T) {
	// Create temporary config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configData := `
llm:
  base_url: "http://localhost:11434"
  model: "llama3"
  embedding_model: "mxbai-embed-large"
  max_tokens: 1000
  temperature: 0.5
  timeout: 45s

store:
  driver: "postgres"
  database_url: "postgres://localhost:5432/test"
  vector_dim: 1024
  batch_size: 50

processor:
  chunk_size: 500
  chunk_overlap: 50
  separators: ["\n\n", " "]

rag:
  top_k: 3
  max_context_length: 2000

server:
  port: "9000"

log:
  level: "debug"
`
	err := os.WriteFile(configPath, []byte(configData), 0644)
	require.NoError(t, err)

	config, err := LoadConfig(configPath)
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:11434", config.LLM.BaseURL)
	assert.Equal(t, "llama3", config.LLM.Model)
	assert.Equal(t, "mxbai-embed-large", config.LLM.EmbeddingModel)
	assert.Equal(t, 1000, config.LLM.MaxTokens)
	assert.Equal(t, 0.5, config.LLM.Temperature)
	assert.Equal(t, 45*time.Second, config.LLM.Timeout)
	assert.Equal(t, DriverPostgres, config.Store.Driver)
	assert.Equal(t, 1024, config.Store.VectorDim)
	assert.Equal(t, 500, config.Processor.ChunkSize)
	assert.Equal(t, 50, config.Processor.ChunkOverlap)
	assert.Equal(t, []string{"\n\n", " "}, config.Processor.Separators)
	assert.Equal(t, 3, config.RAG.TopK)
	assert.Equal(t, "9000", config.Server.Port)

	// Defaults fill what the file leaves out.
	assert.Equal(t, 150, config.RAG.PreviewLength)
	assert.Equal(t, 500, config.RAG.DisplayContextLength)
	assert.Equal(t, DefaultSystemPrompt, config.RAG.SystemPrompt)
	assert.Empty(t, config.Validate())
}

func TestDefaultConfigIsValid(t *testing.T) {
	config := getDefaultConfig()

	assert.Equal(t, DriverSQLite, config.Store.Driver)
	assert.Equal(t, 800, config.Processor.ChunkSize)
	assert.Equal(t, 100, config.Processor.ChunkOverlap)
	assert.Equal(t, []string{"\n\n", "\n", ". ", " ", ""}, config.Processor.Separators)
	assert.Equal(t, 5, config.RAG.TopK)
	assert.Empty(t, config.Validate())
	assert.NoError(t, config.Check())
}

func TestExplicitChunkSizeKeepsZeroOverlap(t *testing.T) {
	config := &Config{}
	config.Processor.ChunkSize = 300
	applyDefaults(config)

	assert.Equal(t, 0, config.Processor.ChunkOverlap)
}

func TestConfigValidation(t *testing.T) {
	valid := func() *Config {
		c := &Config{}
		applyDefaults(c)
		return c
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
		fields []string
	}{
		{
			name:   "valid config",
			mutate: func(c *Config) {},
		},
		{
			name: "overlap not below chunk size",
			mutate: func(c *Config) {
				c.Processor.ChunkSize = 100
				c.Processor.ChunkOverlap = 100
				c.RAG.MaxContextLength = 1000
			},
			fields: []string{"processor.chunk_overlap"},
		},
		{
			name: "negative overlap",
			mutate: func(c *Config) {
				c.Processor.ChunkOverlap = -1
			},
			fields: []string{"processor.chunk_overlap"},
		},
		{
			name: "invalid llm settings",
			mutate: func(c *Config) {
				c.LLM.BaseURL = "invalid-url"
				c.LLM.MaxTokens = 5000
				c.LLM.Temperature = 3.0
			},
			fields: []string{"llm.base_url", "llm.max_tokens", "llm.temperature"},
		},
		{
			name: "postgres without url",
			mutate: func(c *Config) {
				c.Store.Driver = DriverPostgres
			},
			fields: []string{"store.database_url"},
		},
		{
			name: "unknown driver and empty separators",
			mutate: func(c *Config) {
				c.Store.Driver = "chroma"
				c.Processor.Separators = []string{}
			},
			fields: []string{"store.driver", "processor.separators"},
		},
		{
			name: "context smaller than a chunk",
			mutate: func(c *Config) {
				c.RAG.MaxContextLength = 200
			},
			fields: []string{"rag.max_context_length"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)

			errs := c.Validate()
			require.Len(t, errs, len(tt.fields))
			for i, field := range tt.fields {
				assert.Equal(t, field, errs[i].Field)
			}

			if len(tt.fields) > 0 {
				assert.ErrorIs(t, c.Check(), apperr.Configuration)
			}
		})
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("OLLAMA_BASE_URL", "http://env-ollama:11434")
	t.Setenv("DATABASE_URL", "postgres://env-db:5432/test")
	t.Setenv("MINDQUERY_STORE_DRIVER", "postgres")
	t.Setenv("MINDQUERY_DATA_DIR", "/var/lib/mindquery")
	t.Setenv("PORT", "9090")

	config := &Config{}
	mergeWithEnv(config)

	assert.Equal(t, "http://env-ollama:11434", config.LLM.BaseURL)
	assert.Equal(t, "postgres://env-db:5432/test", config.Store.DatabaseURL)
	assert.Equal(t, DriverPostgres, config.Store.Driver)
	assert.Equal(t, "/var/lib/mindquery", config.Store.DataDir)
	assert.Equal(t, "9090", config.Server.Port)
}
