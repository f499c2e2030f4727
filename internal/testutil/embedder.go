// Package testutil holds fakes shared by the package tests.
package testutil

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
	"sync"
	"unicode"

	"github.com/KANCHARLABRUNDARIKA/KnowledgeBased-MindQuery/internal/apperr"
)

const Dim = 64

// Embedder is a deterministic bag-of-words embedder. Texts listed in Fixed
// get exactly that vector.
type Embedder struct {
	mu    sync.Mutex
	Fixed map[string][]float32
	err   error
	calls int
}

func NewEmbedder() *Embedder {
	return &Embedder{Fixed: make(map[string][]float32)}
}

// FailWith makes every later call fail with an embedding_service error
// wrapping err. A nil err restores normal behaviour.
func (e *Embedder) FailWith(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.err = err
}

func (e *Embedder) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

func (e *Embedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.calls++
	if e.err != nil {
		return nil, apperr.New(apperr.KindEmbeddingService, "embed", e.err)
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		if v, ok := e.Fixed[text]; ok {
			out[i] = v
			continue
		}
		out[i] = BagOfWords(text)
	}
	return out, nil
}

func BagOfWords(text string) []float32 {
	vec := make([]float32, Dim)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		vec[h.Sum32()%Dim]++
	}
	// Keep every vector non-zero so cosine is defined.
	vec[Dim-1] += 0.01
	return vec
}

// ErrDown is a convenient cause for FailWith.
var ErrDown = errors.New("connection refused")
