package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"

	"github.com/KANCHARLABRUNDARIKA/KnowledgeBased-MindQuery/internal/apperr"
)

// ChatConfig represents the configuration for a chat engine.
type ChatConfig struct {
	Model       string
	Temperature float64
	MaxTokens   int
	BaseURL     string // Ollama server URL
	Timeout     time.Duration
}

// ChatEngine answers prompts with a chat model. It keeps no conversation
// state between calls.
type ChatEngine struct {
	config ChatConfig
	llm    llms.Model
	log    logr.Logger
}

// NewWithConfig creates a ChatEngine backed by an Ollama server.
func NewWithConfig(config ChatConfig, log logr.Logger) (*ChatEngine, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}

	llm, err := ollama.New(ollama.WithModel(config.Model),
		ollama.WithServerURL(config.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM: %w", err)
	}

	return NewChatEngine(llm, config, log), nil
}

// NewChatEngine wraps an existing model, e.g. a fake in tests.
func NewChatEngine(model llms.Model, config ChatConfig, log logr.Logger) *ChatEngine {
	return &ChatEngine{
		config: config,
		llm:    model,
		log:    log.WithName("chat"),
	}
}

func (c ChatConfig) validate() error {
	if c.Model == "" {
		return apperr.Newf(apperr.KindConfiguration, "chat", "model is required")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return apperr.Newf(apperr.KindConfiguration, "chat", "temperature must be between 0 and 2")
	}
	if c.MaxTokens < 1 {
		return apperr.Newf(apperr.KindConfiguration, "chat", "max tokens must be positive")
	}
	if c.BaseURL == "" {
		return apperr.Newf(apperr.KindConfiguration, "chat", "base URL is required")
	}
	return nil
}

// Generate sends one system message and one question and returns the text of
// the first choice. Every failure is a generation error.
func (ce *ChatEngine) Generate(ctx context.Context, systemPrompt, question string) (string, error) {
	if ce.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ce.config.Timeout)
		defer cancel()
	}

	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, question),
	}

	start := time.Now()
	response, err := ce.llm.GenerateContent(ctx, content,
		llms.WithTemperature(ce.config.Temperature),
		llms.WithMaxTokens(ce.config.MaxTokens),
	)
	if err != nil {
		ce.log.Error(err, "generation failed", "model", ce.config.Model)
		return "", apperr.New(apperr.KindGeneration, "generate", err)
	}
	if response == nil || len(response.Choices) == 0 || response.Choices[0] == nil {
		return "", apperr.New(apperr.KindGeneration, "generate", errors.New("empty response from model"))
	}

	ce.log.V(1).Info("generated answer", "model", ce.config.Model, "elapsed", time.Since(start))
	return strings.TrimSpace(response.Choices[0].Content), nil
}
