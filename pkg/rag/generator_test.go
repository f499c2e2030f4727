package rag_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KANCHARLABRUNDARIKA/KnowledgeBased-MindQuery/internal/apperr"
	"github.com/KANCHARLABRUNDARIKA/KnowledgeBased-MindQuery/internal/models"
	"github.com/KANCHARLABRUNDARIKA/KnowledgeBased-MindQuery/internal/testutil"
	"github.com/KANCHARLABRUNDARIKA/KnowledgeBased-MindQuery/pkg/kb"
	"github.com/KANCHARLABRUNDARIKA/KnowledgeBased-MindQuery/pkg/rag"
	"github.com/KANCHARLABRUNDARIKA/KnowledgeBased-MindQuery/pkg/store"
)

var testConfig = rag.Config{
	TopK:                 5,
	MaxContextLength:     4000,
	PreviewLength:        10,
	DisplayContextLength: 20,
	SystemPrompt:         "Answer only from the context.",
}

type fixture struct {
	embedder  *testutil.Embedder
	llm       *testutil.Generator
	backend   *store.SQLiteBackend
	generator *rag.Generator
}

func newFixture(t *testing.T, config rag.Config) *fixture {
	t.Helper()
	backend, err := store.NewSQLiteBackend(t.TempDir(), 100, logr.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })

	f := &fixture{
		embedder: testutil.NewEmbedder(),
		llm:      testutil.NewGenerator("42"),
		backend:  backend,
	}
	f.generator, err = rag.New(f.embedder, f.llm, config, logr.Discard())
	require.NoError(t, err)
	return f
}

func (f *fixture) index(t *testing.T, kbID string) *store.Index {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.backend.Create(ctx, kbID))
	ix, err := store.Open(ctx, kbID, f.backend, f.embedder, logr.Discard())
	require.NoError(t, err)
	return ix
}

func vector(values ...float32) []float32 {
	v := make([]float32, testutil.Dim)
	copy(v, values)
	return v
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	for _, mutate := range []func(*rag.Config){
		func(c *rag.Config) { c.TopK = 0 },
		func(c *rag.Config) { c.MaxContextLength = 0 },
		func(c *rag.Config) { c.PreviewLength = -1 },
		func(c *rag.Config) { c.DisplayContextLength = -1 },
		func(c *rag.Config) { c.SystemPrompt = "  " },
	} {
		config := testConfig
		mutate(&config)
		_, err := rag.New(testutil.NewEmbedder(), testutil.NewGenerator(""), config, logr.Discard())
		assert.ErrorIs(t, err, apperr.Configuration)
	}
}

func TestAnswerEmptyPersonalBase(t *testing.T) {
	f := newFixture(t, testConfig)
	personal := f.index(t, "alice")

	answer, err := f.generator.Answer(context.Background(), "what is the capital?", []kb.Target{
		{Role: kb.RolePersonal, ID: "alice", Index: personal},
	}, 5)
	require.NoError(t, err)

	assert.Equal(t, rag.NoResultsAnswer, answer.Answer)
	assert.Equal(t, models.AnswerNoResults, answer.Status)
	assert.Empty(t, answer.Sources)
	assert.Empty(t, answer.Context)
	assert.Empty(t, f.llm.Prompts(), "language model must not be called")
	assert.Zero(t, f.embedder.Calls())
}

func TestAnswerAbsentBaseHasNoResults(t *testing.T) {
	f := newFixture(t, testConfig)

	answer, err := f.generator.Answer(context.Background(), "anything", []kb.Target{
		{Role: kb.RolePersonal, ID: "nobody"},
	}, 5)
	require.NoError(t, err)
	assert.Equal(t, models.AnswerNoResults, answer.Status)
}

func TestAnswerBuildsPromptAndSources(t *testing.T) {
	f := newFixture(t, testConfig)
	ctx := context.Background()
	personal := f.index(t, "alice")

	_, err := personal.Upsert(ctx, "facts.txt", "", []string{
		"The capital of France is Paris.",
		"Bananas are yellow when ripe.",
	})
	require.NoError(t, err)

	answer, err := f.generator.Answer(ctx, "  What is the capital of France?  ", []kb.Target{
		{Role: kb.RolePersonal, ID: "alice", Index: personal},
	}, 5)
	require.NoError(t, err)

	assert.Equal(t, models.AnswerOK, answer.Status)
	assert.Equal(t, "42", answer.Answer)
	assert.Equal(t, "What is the capital of France?", answer.Question)
	require.Len(t, answer.Sources, 2)
	assert.Equal(t, "facts.txt", answer.Sources[0].DocumentName)
	assert.Equal(t, 0, answer.Sources[0].ChunkID)
	assert.Equal(t, "The capita...", answer.Sources[0].Preview)
	assert.Equal(t, kb.RolePersonal, answer.Sources[0].KnowledgeBase)
	assert.GreaterOrEqual(t, answer.Sources[0].Score, answer.Sources[1].Score)
	assert.Equal(t, "The capital of Franc...", answer.Context)

	prompts := f.llm.Prompts()
	require.Len(t, prompts, 1)
	assert.Equal(t, "What is the capital of France?", prompts[0].Question)
	assert.True(t, strings.HasPrefix(prompts[0].System, testConfig.SystemPrompt))
	assert.Contains(t, prompts[0].System,
		"Context:\nThe capital of France is Paris.\n\nBananas are yellow when ripe.")
}

func TestAnswerCombinedPrefersPersonalOnTie(t *testing.T) {
	f := newFixture(t, testConfig)
	ctx := context.Background()
	same := vector(1, 1)
	f.embedder.Fixed["personal fact"] = same
	f.embedder.Fixed["default fact"] = same
	f.embedder.Fixed["which fact?"] = same

	personal := f.index(t, "alice")
	shared := f.index(t, models.DefaultKnowledgeBaseID)
	_, err := shared.Upsert(ctx, "shared.md", "", []string{"default fact"})
	require.NoError(t, err)
	_, err = personal.Upsert(ctx, "mine.txt", "", []string{"personal fact"})
	require.NoError(t, err)

	answer, err := f.generator.Answer(ctx, "which fact?", []kb.Target{
		{Role: kb.RolePersonal, ID: "alice", Index: personal},
		{Role: kb.RoleDefault, ID: models.DefaultKnowledgeBaseID, Index: shared},
	}, 5)
	require.NoError(t, err)

	require.Len(t, answer.Sources, 2)
	assert.Equal(t, "mine.txt", answer.Sources[0].DocumentName)
	assert.Equal(t, kb.RolePersonal, answer.Sources[0].KnowledgeBase)
	assert.Equal(t, "shared.md", answer.Sources[1].DocumentName)
	assert.Equal(t, 1, f.embedder.Calls()-2, "question embedded once")
}

func TestMergeOrdersByScoreAndCapsAtK(t *testing.T) {
	hit := func(doc string, score float64) models.Hit {
		return models.Hit{Chunk: models.Chunk{DocumentName: doc}, Score: score}
	}
	results := []models.BaseResult{
		{Role: kb.RolePersonal, Hits: []models.Hit{hit("p1", 0.9), hit("p2", 0.5), hit("p3", 0.5)}},
		{Role: kb.RoleDefault, Hits: []models.Hit{hit("d1", 0.95), hit("d2", 0.5)}},
		{Role: "broken", Hits: []models.Hit{hit("x", 1)}, Err: errors.New("down")},
	}

	merged := rag.Merge(results, 4)
	var names []string
	for _, r := range merged {
		names = append(names, r.DocumentName)
	}
	assert.Equal(t, []string{"d1", "p1", "p2", "p3"}, names)

	assert.Len(t, rag.Merge(results, 10), 5)
	assert.Empty(t, rag.Merge(nil, 5))
}

func TestBuildContextDropsLowestRanked(t *testing.T) {
	ranked := []rag.Ranked{
		{Hit: models.Hit{Chunk: models.Chunk{Content: "aaaa"}}},
		{Hit: models.Hit{Chunk: models.Chunk{Content: "bbbb"}}},
		{Hit: models.Hit{Chunk: models.Chunk{Content: "cccc"}}},
	}

	text, used := rag.BuildContext(ranked, 100)
	assert.Equal(t, "aaaa\n\nbbbb\n\ncccc", text)
	assert.Equal(t, 3, used)

	text, used = rag.BuildContext(ranked, 10)
	assert.Equal(t, "aaaa\n\nbbbb", text)
	assert.Equal(t, 2, used)

	text, used = rag.BuildContext(ranked, 9)
	assert.Equal(t, "aaaa", text)
	assert.Equal(t, 1, used)

	// The best chunk is kept whole even when it alone is too long.
	text, used = rag.BuildContext(ranked, 2)
	assert.Equal(t, "aaaa", text)
	assert.Equal(t, 1, used)
}

func TestAnswerContextTruncationLimitsSources(t *testing.T) {
	config := testConfig
	config.MaxContextLength = 12
	f := newFixture(t, config)
	ctx := context.Background()

	f.embedder.Fixed["alpha beta"] = vector(1, 0)
	f.embedder.Fixed["gamma delta"] = vector(1, 1)
	f.embedder.Fixed["alpha?"] = vector(1, 0)

	personal := f.index(t, "alice")
	_, err := personal.Upsert(ctx, "doc.txt", "", []string{"alpha beta", "gamma delta"})
	require.NoError(t, err)

	answer, err := f.generator.Answer(ctx, "alpha?", []kb.Target{
		{Role: kb.RolePersonal, ID: "alice", Index: personal},
	}, 5)
	require.NoError(t, err)

	require.Len(t, answer.Sources, 1)
	assert.Equal(t, 0, answer.Sources[0].ChunkID)
	assert.NotContains(t, f.llm.Prompts()[0].System, "gamma delta")
}

func TestAnswerTruncatesDisplayOnlyWhenLong(t *testing.T) {
	assert.Equal(t, "short", rag.Truncate("short", 10))
	assert.Equal(t, "exactly10!", rag.Truncate("exactly10!", 10))
	assert.Equal(t, "héllo...", rag.Truncate("héllo wörld", 5))
	assert.Equal(t, "...", rag.Truncate("abc", 0))
}

func TestAnswerKCapsSources(t *testing.T) {
	f := newFixture(t, testConfig)
	ctx := context.Background()
	personal := f.index(t, "alice")
	_, err := personal.Upsert(ctx, "a.txt", "", []string{"one", "two", "three", "four"})
	require.NoError(t, err)

	answer, err := f.generator.Answer(ctx, "one two", []kb.Target{
		{Role: kb.RolePersonal, ID: "alice", Index: personal},
	}, 2)
	require.NoError(t, err)
	assert.Len(t, answer.Sources, 2)
}

func TestAnswerEmbeddingFailureIsUnavailable(t *testing.T) {
	f := newFixture(t, testConfig)
	ctx := context.Background()
	personal := f.index(t, "alice")
	_, err := personal.Upsert(ctx, "a.txt", "", []string{"hello"})
	require.NoError(t, err)

	f.embedder.FailWith(testutil.ErrDown)
	answer, err := f.generator.Answer(ctx, "hello?", []kb.Target{
		{Role: kb.RolePersonal, ID: "alice", Index: personal},
	}, 5)
	require.NoError(t, err)

	assert.Equal(t, models.AnswerUnavailable, answer.Status)
	assert.Equal(t, rag.UnavailableAnswer, answer.Answer)
	assert.Empty(t, answer.Sources)
	assert.Empty(t, f.llm.Prompts())
}

func TestAnswerGenerationFailureIsUnavailable(t *testing.T) {
	f := newFixture(t, testConfig)
	ctx := context.Background()
	personal := f.index(t, "alice")
	_, err := personal.Upsert(ctx, "a.txt", "", []string{"hello"})
	require.NoError(t, err)

	f.llm.FailWith(errors.New("model not loaded"))
	answer, err := f.generator.Answer(ctx, "hello?", []kb.Target{
		{Role: kb.RolePersonal, ID: "alice", Index: personal},
	}, 5)
	require.NoError(t, err)

	assert.Equal(t, models.AnswerUnavailable, answer.Status)
	assert.Empty(t, answer.Sources)
	assert.Empty(t, answer.Context)
}

func TestAnswerPartialFailureKeepsHealthyBase(t *testing.T) {
	f := newFixture(t, testConfig)
	ctx := context.Background()
	personal := f.index(t, "alice")
	_, err := personal.Upsert(ctx, "a.txt", "", []string{"hello world"})
	require.NoError(t, err)

	answer, err := f.generator.Answer(ctx, "hello?", []kb.Target{
		{Role: kb.RolePersonal, ID: "alice", Index: personal},
		{Role: kb.RoleDefault, ID: models.DefaultKnowledgeBaseID, Err: errors.New("database is locked")},
	}, 5)
	require.NoError(t, err)

	assert.Equal(t, models.AnswerOK, answer.Status)
	require.Len(t, answer.Sources, 1)
	assert.Equal(t, []string{"default knowledge base was unavailable; results may be incomplete."}, answer.Notes)
}

func TestAnswerEveryBaseFailedIsUnavailable(t *testing.T) {
	f := newFixture(t, testConfig)

	answer, err := f.generator.Answer(context.Background(), "hello?", []kb.Target{
		{Role: kb.RoleDefault, ID: models.DefaultKnowledgeBaseID, Err: errors.New("database is locked")},
	}, 5)
	require.NoError(t, err)
	assert.Equal(t, models.AnswerUnavailable, answer.Status)
}

func TestAnswerRejectsBlankQuestion(t *testing.T) {
	f := newFixture(t, testConfig)
	_, err := f.generator.Answer(context.Background(), " \n ", nil, 5)
	assert.ErrorIs(t, err, apperr.InvalidInput)
}
