package main

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"

	"github.com/KANCHARLABRUNDARIKA/KnowledgeBased-MindQuery/pkg/config"
	"github.com/KANCHARLABRUNDARIKA/KnowledgeBased-MindQuery/pkg/extract"
	"github.com/KANCHARLABRUNDARIKA/KnowledgeBased-MindQuery/pkg/kb"
	"github.com/KANCHARLABRUNDARIKA/KnowledgeBased-MindQuery/pkg/llm"
	"github.com/KANCHARLABRUNDARIKA/KnowledgeBased-MindQuery/pkg/logger"
	"github.com/KANCHARLABRUNDARIKA/KnowledgeBased-MindQuery/pkg/processor"
	"github.com/KANCHARLABRUNDARIKA/KnowledgeBased-MindQuery/pkg/rag"
	"github.com/KANCHARLABRUNDARIKA/KnowledgeBased-MindQuery/pkg/scraper"
	"github.com/KANCHARLABRUNDARIKA/KnowledgeBased-MindQuery/pkg/service"
	"github.com/KANCHARLABRUNDARIKA/KnowledgeBased-MindQuery/pkg/store"
)

type app struct {
	svc      *service.Service
	registry *kb.Registry
	log      logr.Logger
}

func (a *app) Close() {
	if err := a.registry.Close(); err != nil {
		a.log.Error(err, "closing store")
	}
}

func newBackend(ctx context.Context, c *config.Config, log logr.Logger) (store.Backend, error) {
	switch c.Store.Driver {
	case config.DriverPostgres:
		return store.NewPostgresBackend(ctx, store.PostgresConfig{
			ConnString: c.Store.DatabaseURL,
			VectorDim:  c.Store.VectorDim,
			BatchSize:  c.Store.BatchSize,
		}, log)
	default:
		return store.NewSQLiteBackend(c.Store.DataDir, c.Store.BatchSize, log)
	}
}

// newApp wires every component from the loaded configuration.
func newApp(ctx context.Context, c *config.Config) (*app, error) {
	log := logger.Logr()

	embedder, err := llm.NewEmbedderWithConfig(llm.EmbedderConfig{
		Model:     c.LLM.EmbeddingModel,
		BaseURL:   c.LLM.BaseURL,
		RateLimit: c.LLM.EmbedRateLimit,
		BatchSize: c.Store.BatchSize,
		Timeout:   c.LLM.Timeout,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	chatEngine, err := llm.NewWithConfig(llm.ChatConfig{
		Model:       c.LLM.Model,
		Temperature: c.LLM.Temperature,
		MaxTokens:   c.LLM.MaxTokens,
		BaseURL:     c.LLM.BaseURL,
		Timeout:     c.LLM.Timeout,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize chat engine: %w", err)
	}

	proc, err := processor.NewWithConfig(processor.ProcessorConfig{
		ChunkSize:    c.Processor.ChunkSize,
		ChunkOverlap: c.Processor.ChunkOverlap,
		Separators:   c.Processor.Separators,
	})
	if err != nil {
		return nil, err
	}

	generator, err := rag.New(embedder, chatEngine, rag.Config{
		TopK:                 c.RAG.TopK,
		MaxContextLength:     c.RAG.MaxContextLength,
		PreviewLength:        c.RAG.PreviewLength,
		DisplayContextLength: c.RAG.DisplayContextLength,
		SystemPrompt:         c.RAG.SystemPrompt,
	}, log)
	if err != nil {
		return nil, err
	}

	backend, err := newBackend(ctx, c, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize vector store: %w", err)
	}
	registry := kb.New(backend, embedder, log)

	svc := service.New(service.Config{
		TopK: c.RAG.TopK,
		Scraper: scraper.ScraperConfig{
			MaxDepth:          c.Scraper.MaxDepth,
			RateLimit:         c.Scraper.RateLimit,
			IgnorePatterns:    c.Scraper.IgnorePatterns,
			AllowedExtensions: c.Scraper.AllowedExtensions,
		},
	}, registry, extract.New(log), proc, generator, log)

	return &app{svc: svc, registry: registry, log: log}, nil
}
