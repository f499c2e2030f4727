// Package rag answers questions from the chunks stored in one or more
// knowledge bases.
package rag

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/go-logr/logr"

	"github.com/KANCHARLABRUNDARIKA/KnowledgeBased-MindQuery/internal/apperr"
	"github.com/KANCHARLABRUNDARIKA/KnowledgeBased-MindQuery/internal/models"
	"github.com/KANCHARLABRUNDARIKA/KnowledgeBased-MindQuery/internal/types"
	"github.com/KANCHARLABRUNDARIKA/KnowledgeBased-MindQuery/pkg/kb"
)

const (
	NoResultsAnswer   = "I couldn't find relevant information in the knowledge base for your question."
	UnavailableAnswer = "The knowledge service is temporarily unavailable. Please try again later."

	contextTemplate = "%s\n\nContext:\n%s"
	ellipsis        = "..."
)

type Config struct {
	TopK                 int
	MaxContextLength     int
	PreviewLength        int
	DisplayContextLength int
	SystemPrompt         string
}

func (c Config) validate() error {
	switch {
	case c.TopK < 1:
		return apperr.Newf(apperr.KindConfiguration, "rag", "top_k must be positive")
	case c.MaxContextLength < 1:
		return apperr.Newf(apperr.KindConfiguration, "rag", "max_context_length must be positive")
	case c.PreviewLength < 0:
		return apperr.Newf(apperr.KindConfiguration, "rag", "preview_length cannot be negative")
	case c.DisplayContextLength < 0:
		return apperr.Newf(apperr.KindConfiguration, "rag", "display_context_length cannot be negative")
	case strings.TrimSpace(c.SystemPrompt) == "":
		return apperr.Newf(apperr.KindConfiguration, "rag", "system_prompt is required")
	}
	return nil
}

type Generator struct {
	embedder types.Embedder
	llm      types.Generator
	config   Config
	log      logr.Logger
}

func New(embedder types.Embedder, llm types.Generator, config Config, log logr.Logger) (*Generator, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	return &Generator{
		embedder: embedder,
		llm:      llm,
		config:   config,
		log:      log.WithName("rag"),
	}, nil
}

// Ranked is a hit together with the role of the knowledge base it came from.
type Ranked struct {
	models.Hit
	Role string
}

// Merge orders the hits of every healthy result by score. Equal scores keep
// result order first and then the order within each result, so a personal
// hit listed before a default hit wins a tie. At most k entries are kept.
func Merge(results []models.BaseResult, k int) []Ranked {
	var merged []Ranked
	for _, r := range results {
		if r.Err != nil {
			continue
		}
		for _, h := range r.Hits {
			merged = append(merged, Ranked{Hit: h, Role: r.Role})
		}
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Score > merged[j].Score
	})
	if len(merged) > k {
		merged = merged[:k]
	}
	return merged
}

// BuildContext joins chunk contents with a blank line, dropping the lowest
// ranked chunks until the result fits in maxRunes. A chunk is never cut; the
// top-ranked one is always kept. It returns the number of chunks used.
func BuildContext(ranked []Ranked, maxRunes int) (string, int) {
	n := len(ranked)
	length := 0
	for i, r := range ranked {
		length += utf8.RuneCountInString(r.Content)
		if i > 0 {
			length += 2
		}
	}
	for n > 1 && length > maxRunes {
		n--
		length -= utf8.RuneCountInString(ranked[n].Content) + 2
	}

	parts := make([]string, n)
	for i := 0; i < n; i++ {
		parts[i] = ranked[i].Content
	}
	return strings.Join(parts, "\n\n"), n
}

// Truncate returns the first n runes of s, followed by "..." when anything
// was cut.
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + ellipsis
}

// Retrieve embeds the question once and searches every target with it. A
// target that is absent contributes no hits; one that failed to open or to
// search is reported through BaseResult.Err.
func (g *Generator) Retrieve(ctx context.Context, question string, targets []kb.Target, k int) ([]models.BaseResult, error) {
	results := make([]models.BaseResult, len(targets))
	searchable := false
	for i, t := range targets {
		results[i] = models.BaseResult{Role: t.Role, KBID: t.ID, Hits: []models.Hit{}, Err: t.Err}
		if t.Err == nil && t.Index != nil && t.Index.Stats(ctx).ChunkCount > 0 {
			searchable = true
		}
	}
	if !searchable {
		return results, nil
	}

	vectors, err := g.embedder.Embed(ctx, []string{question})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, apperr.Newf(apperr.KindEmbeddingService, "retrieve", "got %d vectors for one question", len(vectors))
	}

	for i, t := range targets {
		if t.Err != nil || t.Index == nil {
			continue
		}
		hits, err := t.Index.SearchVector(ctx, vectors[0], k)
		if err != nil {
			g.log.Error(err, "search failed", "kb", t.ID, "role", t.Role)
			results[i].Err = err
			continue
		}
		results[i].Hits = hits
	}
	return results, nil
}

// Answer retrieves the k best chunks across targets and asks the language
// model to answer from them. Collaborator failures produce an answer with
// status unavailable rather than an error; only invalid input is returned as
// an error.
func (g *Generator) Answer(ctx context.Context, question string, targets []kb.Target, k int) (*models.Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, apperr.Newf(apperr.KindInvalidInput, "answer", "question is empty")
	}
	if k <= 0 {
		k = g.config.TopK
	}

	answer := &models.Answer{
		Question: question,
		Sources:  []models.Source{},
		Status:   models.AnswerOK,
	}

	results, err := g.Retrieve(ctx, question, targets, k)
	if err != nil {
		g.log.Error(err, "retrieval failed")
		return unavailable(answer), nil
	}

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			answer.Notes = append(answer.Notes,
				fmt.Sprintf("%s knowledge base was unavailable; results may be incomplete.", r.Role))
		}
	}
	if len(results) > 0 && failed == len(results) {
		return unavailable(answer), nil
	}

	ranked := Merge(results, k)
	if len(ranked) == 0 {
		answer.Answer = NoResultsAnswer
		answer.Status = models.AnswerNoResults
		return answer, nil
	}

	contextText, used := BuildContext(ranked, g.config.MaxContextLength)
	if used < len(ranked) {
		g.log.V(1).Info("context truncated", "kept", used, "retrieved", len(ranked))
	}

	text, err := g.llm.Generate(ctx, fmt.Sprintf(contextTemplate, g.config.SystemPrompt, contextText), question)
	if err != nil {
		g.log.Error(err, "generation failed")
		return unavailable(answer), nil
	}

	for _, r := range ranked[:used] {
		answer.Sources = append(answer.Sources, models.Source{
			DocumentName:  r.DocumentName,
			ChunkID:       r.ChunkID,
			Preview:       Truncate(r.Content, g.config.PreviewLength),
			Score:         r.Score,
			KnowledgeBase: r.Role,
		})
	}
	answer.Answer = text
	answer.Context = Truncate(contextText, g.config.DisplayContextLength)
	return answer, nil
}

func unavailable(answer *models.Answer) *models.Answer {
	answer.Answer = UnavailableAnswer
	answer.Status = models.AnswerUnavailable
	answer.Sources = []models.Source{}
	answer.Context = ""
	return answer
}
