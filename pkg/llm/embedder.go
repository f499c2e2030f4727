package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"github.com/tmc/langchaingo/llms/ollama"
	"golang.org/x/time/rate"

	"github.com/KANCHARLABRUNDARIKA/KnowledgeBased-MindQuery/internal/apperr"
)

// EmbeddingModel is the part of *ollama.LLM the embedder uses.
type EmbeddingModel interface {
	CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error)
}

type EmbedderConfig struct {
	Model   string
	BaseURL string // Ollama server URL
	// RateLimit caps embedding requests per second.
	RateLimit float64
	BatchSize int
	Timeout   time.Duration
}

type Embedder struct {
	config  EmbedderConfig
	client  EmbeddingModel
	limiter *rate.Limiter
	log     logr.Logger
}

func NewEmbedderWithConfig(config EmbedderConfig, log logr.Logger) (*Embedder, error) {
	if config.Model == "" || config.BaseURL == "" {
		return nil, apperr.Newf(apperr.KindConfiguration, "embedder", "model and base URL are required")
	}

	emb, err := ollama.New(ollama.WithModel(config.Model),
		ollama.WithServerURL(config.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	return NewEmbedder(emb, config, log), nil
}

func NewEmbedder(client EmbeddingModel, config EmbedderConfig, log logr.Logger) *Embedder {
	if config.BatchSize < 1 {
		config.BatchSize = 100
	}
	limit := rate.Inf
	if config.RateLimit > 0 {
		limit = rate.Limit(config.RateLimit)
	}

	return &Embedder{
		config:  config,
		client:  client,
		limiter: rate.NewLimiter(limit, 1),
		log:     log.WithName("embedder"),
	}
}

// Embed returns one vector per text, in input order. All vectors share one
// dimension; anything else from the server is an embedding_service error.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.config.BatchSize {
		end := start + e.config.BatchSize
		if end > len(texts) {
			end = len(texts)
		}

		batch, err := e.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, batch...)
		e.log.V(1).Info("embedded batch", "done", end, "total", len(texts))
	}

	dim := len(vectors[0])
	for i, v := range vectors {
		if len(v) == 0 || len(v) != dim {
			return nil, apperr.Newf(apperr.KindEmbeddingService, "embed",
				"vector %d has dimension %d, expected %d", i, len(v), dim)
		}
	}
	return vectors, nil
}

func (e *Embedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	// The Ollama client issues one request per text.
	for range texts {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, apperr.New(apperr.KindEmbeddingService, "embed", err)
		}
	}

	if e.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.Timeout)
		defer cancel()
	}

	vectors, err := e.client.CreateEmbedding(ctx, texts)
	if err != nil {
		e.log.Error(err, "embedding request failed", "model", e.config.Model, "texts", len(texts))
		return nil, apperr.New(apperr.KindEmbeddingService, "embed", err)
	}
	if len(vectors) != len(texts) {
		return nil, apperr.Newf(apperr.KindEmbeddingService, "embed",
			"got %d vectors for %d texts", len(vectors), len(texts))
	}
	return vectors, nil
}
