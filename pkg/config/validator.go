package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/KANCHARLABRUNDARIKA/KnowledgeBased-MindQuery/internal/apperr"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	// Validate LLM config
	if c.LLM.BaseURL == "" {
		errors = append(errors, ValidationError{
			Field:   "llm.base_url",
			Message: "Ollama base URL is required",
		})
	} else if u, err := url.Parse(c.LLM.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errors = append(errors, ValidationError{
			Field:   "llm.base_url",
			Message: "invalid Ollama base URL",
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

	if c.LLM.EmbedRateLimit <= 0 {
		errors = append(errors, ValidationError{
			Field:   "llm.embed_rate_limit",
			Message: "embed_rate_limit must be positive",
		})
	}

	// Validate Store config
	switch c.Store.Driver {
	case DriverSQLite:
		if c.Store.DataDir == "" {
			errors = append(errors, ValidationError{
				Field:   "store.data_dir",
				Message: "data_dir is required for the sqlite driver",
			})
		}
	case DriverPostgres:
		if c.Store.DatabaseURL == "" {
			errors = append(errors, ValidationError{
				Field:   "store.database_url",
				Message: "database_url is required for the postgres driver",
			})
		} else if _, err := url.Parse(c.Store.DatabaseURL); err != nil {
			errors = append(errors, ValidationError{
				Field:   "store.database_url",
				Message: "invalid database URL",
			})
		}
	default:
		errors = append(errors, ValidationError{
			Field:   "store.driver",
			Message: fmt.Sprintf("unknown driver %q (want sqlite or postgres)", c.Store.Driver),
		})
	}

	if c.Store.VectorDim < 1 {
		errors = append(errors, ValidationError{
			Field:   "store.vector_dim",
			Message: "vector_dim must be positive",
		})
	}

	if c.Store.BatchSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "store.batch_size",
			Message: "batch_size must be positive",
		})
	}

	// Validate Processor config
	if c.Processor.ChunkSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "processor.chunk_size",
			Message: "chunk_size must be positive",
		})
	}

	if c.Processor.ChunkOverlap < 0 || c.Processor.ChunkOverlap >= c.Processor.ChunkSize {
		errors = append(errors, ValidationError{
			Field:   "processor.chunk_overlap",
			Message: "chunk_overlap must be non-negative and less than chunk_size",
		})
	}

	if len(c.Processor.Separators) == 0 {
		errors = append(errors, ValidationError{
			Field:   "processor.separators",
			Message: "at least one separator is required",
		})
	}

	// Validate RAG config
	if c.RAG.TopK < 1 {
		errors = append(errors, ValidationError{
			Field:   "rag.top_k",
			Message: "top_k must be positive",
		})
	}

	if c.RAG.MaxContextLength < c.Processor.ChunkSize {
		errors = append(errors, ValidationError{
			Field:   "rag.max_context_length",
			Message: "max_context_length must be at least chunk_size",
		})
	}

	if c.RAG.PreviewLength < 1 || c.RAG.DisplayContextLength < 1 {
		errors = append(errors, ValidationError{
			Field:   "rag.preview_length",
			Message: "preview_length and display_context_length must be positive",
		})
	}

	// Validate Scraper config
	if c.Scraper.MaxDepth < 1 {
		errors = append(errors, ValidationError{
			Field:   "scraper.max_depth",
			Message: "max_depth must be positive",
		})
	}

	if c.Scraper.RateLimit <= 0 {
		errors = append(errors, ValidationError{
			Field:   "scraper.rate_limit",
			Message: "rate_limit must be positive",
		})
	}

	for _, ext := range c.Scraper.AllowedExtensions {
		if !strings.HasPrefix(ext, ".") && ext != "" && ext != "/" {
			errors = append(errors, ValidationError{
				Field:   "scraper.allowed_extensions",
				Message: fmt.Sprintf("invalid extension format: %s", ext),
			})
		}
	}

	// Validate Log config
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errors = append(errors, ValidationError{
			Field:   "log.level",
			Message: fmt.Sprintf("unknown log level %q", c.Log.Level),
		})
	}

	return errors
}

// Check folds the validation errors into a single configuration error.
func (c *Config) Check() error {
	verrs := c.Validate()
	if len(verrs) == 0 {
		return nil
	}
	joined := make([]error, 0, len(verrs))
	for _, v := range verrs {
		joined = append(joined, v)
	}
	return apperr.New(apperr.KindConfiguration, "config", errors.Join(joined...))
}
