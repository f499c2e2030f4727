package testutil

import (
	"context"
	"sync"

	"github.com/KANCHARLABRUNDARIKA/KnowledgeBased-MindQuery/internal/apperr"
)

// Prompt is one recorded call to Generator.
type Prompt struct {
	System   string
	Question string
}

// Generator answers every question with Reply and records the prompts.
type Generator struct {
	mu      sync.Mutex
	Reply   string
	err     error
	prompts []Prompt
}

func NewGenerator(reply string) *Generator {
	return &Generator{Reply: reply}
}

func (g *Generator) FailWith(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.err = err
}

func (g *Generator) Prompts() []Prompt {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]Prompt(nil), g.prompts...)
}

func (g *Generator) Generate(_ context.Context, systemPrompt, question string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.prompts = append(g.prompts, Prompt{System: systemPrompt, Question: question})
	if g.err != nil {
		return "", apperr.New(apperr.KindGeneration, "generate", g.err)
	}
	return g.Reply, nil
}
