package types

import (
	"context"
)

// Collaborator interfaces. Implementations live in pkg/llm and pkg/extract;
// tests substitute fakes.

type Embedder interface {
	// Embed returns one vector per input text, in order. Failures are
	// reported as embedding_service errors.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

type Generator interface {
	// Generate answers a single prompt. Failures are reported as generation
	// errors.
	Generate(ctx context.Context, systemPrompt, question string) (string, error)
}

type Extractor interface {
	// ExtractText turns an uploaded file into plain text. Failures are
	// reported as extraction errors.
	ExtractText(fileName string, data []byte) (string, error)
}

// Progress receives ingestion progress updates: done out of total items.
// total is -1 while it is not known yet.
type Progress func(done, total int, item string)
