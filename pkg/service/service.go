// Package service exposes the knowledge base operations used by the CLI and
// the HTTP server. Every call names the user it acts for; there is no
// current-user state.
package service

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-logr/logr"

	"github.com/KANCHARLABRUNDARIKA/KnowledgeBased-MindQuery/internal/apperr"
	"github.com/KANCHARLABRUNDARIKA/KnowledgeBased-MindQuery/internal/models"
	"github.com/KANCHARLABRUNDARIKA/KnowledgeBased-MindQuery/internal/types"
	"github.com/KANCHARLABRUNDARIKA/KnowledgeBased-MindQuery/pkg/kb"
	"github.com/KANCHARLABRUNDARIKA/KnowledgeBased-MindQuery/pkg/processor"
	"github.com/KANCHARLABRUNDARIKA/KnowledgeBased-MindQuery/pkg/rag"
	"github.com/KANCHARLABRUNDARIKA/KnowledgeBased-MindQuery/pkg/scraper"
	"github.com/KANCHARLABRUNDARIKA/KnowledgeBased-MindQuery/pkg/store"
)

// seedExtensions are the files SeedDefault picks up from a corpus directory.
var seedExtensions = map[string]bool{".md": true, ".txt": true}

type Config struct {
	TopK    int
	Scraper scraper.ScraperConfig
}

type Service struct {
	config    Config
	registry  *kb.Registry
	extractor types.Extractor
	processor *processor.Processor
	generator *rag.Generator
	log       logr.Logger
}

func New(config Config, registry *kb.Registry, extractor types.Extractor, proc *processor.Processor, generator *rag.Generator, log logr.Logger) *Service {
	return &Service{
		config:    config,
		registry:  registry,
		extractor: extractor,
		processor: proc,
		generator: generator,
		log:       log.WithName("service"),
	}
}

// documentName strips any directory from an uploaded file name, whichever
// separator the client used.
func documentName(fileName string) (string, error) {
	name := path.Base(strings.ReplaceAll(strings.TrimSpace(fileName), `\`, "/"))
	if name == "." || name == "/" || name == "" || name == ".." {
		return "", apperr.Newf(apperr.KindInvalidInput, "upload", "invalid file name %q", fileName)
	}
	return name, nil
}

// chunk splits doc. A document without text is an extraction error, raised
// before any knowledge base is touched.
func (s *Service) chunk(doc models.Document) (models.ProcessedDocument, error) {
	processed := s.processor.Process(doc)
	if len(processed.Chunks) == 0 {
		return processed, apperr.Newf(apperr.KindExtraction, "ingest", "document %q has no extractable text", doc.Name)
	}
	return processed, nil
}

func (s *Service) save(ctx context.Context, ix *store.Index, doc models.ProcessedDocument) (int, error) {
	return ix.Upsert(ctx, doc.Name, doc.DocumentType, doc.Chunks)
}

// UploadDocument extracts fileBytes and stores the result in the user's
// knowledge base, replacing any document of the same name.
func (s *Service) UploadDocument(ctx context.Context, userID, fileName string, fileBytes []byte, documentType string) (*models.UploadResult, error) {
	if err := kb.ValidateUserID(userID); err != nil {
		return nil, err
	}
	name, err := documentName(fileName)
	if err != nil {
		return nil, err
	}
	if documentType == "" {
		documentType = models.DefaultDocumentType
	}

	text, err := s.extractor.ExtractText(name, fileBytes)
	if err != nil {
		return nil, err
	}

	processed, err := s.chunk(models.Document{Name: name, DocumentType: documentType, Content: text})
	if err != nil {
		return nil, err
	}

	ix, _, err := s.registry.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}
	n, err := s.save(ctx, ix, processed)
	if err != nil {
		return nil, err
	}

	s.log.Info("uploaded document", "user", userID, "document", name, "chunks", n)
	return &models.UploadResult{DocumentName: name, ChunksCreated: n, UserID: userID}, nil
}

func (s *Service) ListDocuments(ctx context.Context, userID string) (*models.ListResult, error) {
	ix, _, err := s.registry.Lookup(ctx, userID)
	if err != nil {
		return nil, err
	}
	docs := []models.DocumentInfo{}
	if ix != nil {
		docs = ix.List(ctx)
	}
	return &models.ListResult{Documents: docs, TotalDocuments: len(docs)}, nil
}

// existing returns the user's knowledge base or a not_found error.
func (s *Service) existing(ctx context.Context, op, userID string) (*store.Index, error) {
	ix, _, err := s.registry.Lookup(ctx, userID)
	if err != nil {
		return nil, err
	}
	if ix == nil {
		return nil, apperr.Newf(apperr.KindNotFound, op, "no knowledge base for user %q", userID)
	}
	return ix, nil
}

func (s *Service) DeleteDocument(ctx context.Context, userID, documentName string) (*models.DeleteResult, error) {
	ix, err := s.existing(ctx, "delete", userID)
	if err != nil {
		return nil, err
	}
	n, err := ix.Delete(ctx, documentName)
	if err != nil {
		return nil, err
	}
	s.log.Info("deleted document", "user", userID, "document", documentName, "chunks", n)
	return &models.DeleteResult{DeletedChunks: n}, nil
}

func (s *Service) ClearKnowledgeBase(ctx context.Context, userID string) (*models.ClearResult, error) {
	ix, err := s.existing(ctx, "clear", userID)
	if err != nil {
		return nil, err
	}
	n, err := ix.Clear(ctx)
	if err != nil {
		return nil, err
	}
	return &models.ClearResult{ClearedChunks: n}, nil
}

// GetStats reports zeros and status absent for a user who never uploaded.
func (s *Service) GetStats(ctx context.Context, userID string) (*models.StatsResult, error) {
	ix, st, err := s.registry.Lookup(ctx, userID)
	if err != nil {
		return nil, err
	}
	result := &models.StatsResult{UserID: userID, Status: st}
	if ix != nil {
		stats := ix.Stats(ctx)
		result.TotalDocuments = stats.DocumentCount
		result.TotalChunks = stats.ChunkCount
	}
	return result, nil
}

// AskQuestion answers from the knowledge bases selected by mode. userID may
// be empty in default mode.
func (s *Service) AskQuestion(ctx context.Context, userID, question string, mode models.Mode) (*models.Answer, error) {
	if strings.TrimSpace(question) == "" {
		return nil, apperr.Newf(apperr.KindInvalidInput, "ask", "question is empty")
	}
	targets, err := s.registry.Resolve(ctx, userID, mode)
	if err != nil {
		return nil, err
	}
	answer, err := s.generator.Answer(ctx, question, targets, s.config.TopK)
	if err != nil {
		return nil, err
	}
	answer.Mode = mode
	return answer, nil
}

// DeleteKnowledgeBase removes the user's knowledge base entirely.
func (s *Service) DeleteKnowledgeBase(ctx context.Context, userID string) error {
	return s.registry.Destroy(ctx, userID)
}

// SeedDefault ingests every markdown and text file directly inside dir into
// the shared knowledge base. Files are taken in name order; seeding again
// replaces documents of the same name.
func (s *Service) SeedDefault(ctx context.Context, dir string, progress types.Progress) (*models.IngestResult, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, apperr.New(apperr.KindInvalidInput, "seed", err)
	}

	var files []string
	for _, e := range entries {
		if e.Type().IsRegular() && seedExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	if len(files) == 0 {
		return nil, apperr.Newf(apperr.KindInvalidInput, "seed", "no .md or .txt files in %s", dir)
	}

	// The shared knowledge base is created with the first file that has text.
	var ix *store.Index
	result := &models.IngestResult{KnowledgeBase: models.DefaultKnowledgeBaseID}
	for i, name := range files {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return result, fmt.Errorf("read %s: %w", name, err)
		}
		processed, err := s.chunkFile(name, data, models.DefaultDocumentType)
		n := 0
		if err == nil && ix == nil {
			ix, err = s.registry.DefaultForWrite(ctx)
		}
		if err == nil {
			n, err = s.save(ctx, ix, processed)
		}
		switch {
		case apperr.KindOf(err) == apperr.KindExtraction:
			s.log.Error(err, "skipping file", "file", name)
			result.Skipped = append(result.Skipped, name)
		case err != nil:
			return result, err
		default:
			result.Documents++
			result.Chunks += n
		}
		if progress != nil {
			progress(i+1, len(files), name)
		}
	}

	s.log.Info("seeded default knowledge base", "documents", result.Documents, "chunks", result.Chunks)
	return result, nil
}

func (s *Service) chunkFile(name string, data []byte, documentType string) (models.ProcessedDocument, error) {
	text, err := s.extractor.ExtractText(name, data)
	if err != nil {
		return models.ProcessedDocument{}, err
	}
	return s.chunk(models.Document{Name: name, DocumentType: documentType, Content: text})
}

// IngestURL crawls rawURL and stores every page in the user's knowledge
// base as a document of type web named after its URL.
func (s *Service) IngestURL(ctx context.Context, userID, rawURL string, progress types.Progress) (*models.IngestResult, error) {
	if err := kb.ValidateUserID(userID); err != nil {
		return nil, err
	}

	config := s.config.Scraper
	config.BaseURL = rawURL
	crawled := 0
	config.OnProgress = func(pageURL string) {
		crawled++
		if progress != nil {
			progress(crawled, -1, pageURL)
		}
	}
	sc, err := scraper.NewWithConfig(config, s.log)
	if err != nil {
		return nil, apperr.New(apperr.KindInvalidInput, "crawl", err)
	}

	docs, err := sc.Scrape(ctx, rawURL)
	if err != nil {
		return nil, apperr.New(apperr.KindExtraction, "crawl", err)
	}

	var pages []models.ProcessedDocument
	result := &models.IngestResult{KnowledgeBase: userID}
	for _, doc := range docs {
		processed, err := s.chunk(doc)
		if err != nil {
			result.Skipped = append(result.Skipped, doc.Name)
			continue
		}
		pages = append(pages, processed)
	}
	if len(pages) == 0 {
		return nil, apperr.Newf(apperr.KindExtraction, "crawl", "no page with text at %s", rawURL)
	}

	ix, _, err := s.registry.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i, page := range pages {
		n, err := s.save(ctx, ix, page)
		if err != nil {
			return result, err
		}
		result.Documents++
		result.Chunks += n
		if progress != nil {
			progress(i+1, len(pages), page.Name)
		}
	}

	s.log.Info("ingested crawl", "user", userID, "url", rawURL, "documents", result.Documents, "chunks", result.Chunks)
	return result, nil
}
