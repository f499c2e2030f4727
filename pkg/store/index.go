package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"

	"github.com/KANCHARLABRUNDARIKA/KnowledgeBased-MindQuery/internal/apperr"
	"github.com/KANCHARLABRUNDARIKA/KnowledgeBased-MindQuery/internal/models"
	"github.com/KANCHARLABRUNDARIKA/KnowledgeBased-MindQuery/internal/types"
)

// snapshot is an immutable view of one knowledge base. Writers build a new
// snapshot and swap it in; nothing ever mutates a published one.
type snapshot struct {
	version uint64
	docs    []*models.StoredDocument // ordered by Seq
	byName  map[string]*models.StoredDocument
	chunks  int
	dim     int
	nextSeq int64
}

func newSnapshot(version uint64, docs []*models.StoredDocument, nextSeq int64) *snapshot {
	s := &snapshot{
		version: version,
		docs:    docs,
		byName:  make(map[string]*models.StoredDocument, len(docs)),
		nextSeq: nextSeq,
	}
	for _, d := range docs {
		s.byName[d.Name] = d
		s.chunks += len(d.Chunks)
		if s.dim == 0 && len(d.Chunks) > 0 {
			s.dim = len(d.Chunks[0].Embedding)
		}
	}
	return s
}

// with returns a copy that has doc in place of any document of the same name.
func (s *snapshot) with(doc *models.StoredDocument) *snapshot {
	docs := make([]*models.StoredDocument, 0, len(s.docs)+1)
	for _, d := range s.docs {
		if d.Name != doc.Name {
			docs = append(docs, d)
		}
	}
	docs = append(docs, doc)
	return newSnapshot(s.version+1, docs, doc.Seq+1)
}

// dimExcept is the embedding dimension of the documents other than name,
// or 0 if none of them has chunks.
func (s *snapshot) dimExcept(name string) int {
	for _, d := range s.docs {
		if d.Name != name && len(d.Chunks) > 0 {
			return len(d.Chunks[0].Embedding)
		}
	}
	return 0
}

func (s *snapshot) without(name string) *snapshot {
	docs := make([]*models.StoredDocument, 0, len(s.docs))
	for _, d := range s.docs {
		if d.Name != name {
			docs = append(docs, d)
		}
	}
	return newSnapshot(s.version+1, docs, s.nextSeq)
}

// Index is the vector index of one knowledge base. Writes are serialized
// and exclusive with searches; each write commits to the backend first and
// only then publishes a new snapshot, so a failed write leaves the previous
// state in place.
type Index struct {
	id       string
	backend  Backend
	embedder types.Embedder
	log      logr.Logger

	mu      sync.RWMutex
	current atomic.Pointer[snapshot]
	dropped bool
}

// Open loads the knowledge base kbID from backend.
func Open(ctx context.Context, kbID string, backend Backend, embedder types.Embedder, log logr.Logger) (*Index, error) {
	stored, err := backend.Load(ctx, kbID)
	if err != nil {
		return nil, err
	}

	docs := make([]*models.StoredDocument, 0, len(stored))
	var nextSeq int64 = 1
	for i := range stored {
		d := stored[i]
		docs = append(docs, &d)
		if d.Seq >= nextSeq {
			nextSeq = d.Seq + 1
		}
	}

	ix := &Index{
		id:       kbID,
		backend:  backend,
		embedder: embedder,
		log:      log.WithName("index").WithValues("kb", kbID),
	}
	ix.current.Store(newSnapshot(1, docs, nextSeq))
	return ix, nil
}

func (ix *Index) ID() string { return ix.id }

// Version increases by one with every committed write.
func (ix *Index) Version() uint64 { return ix.current.Load().version }

// Upsert embeds chunks and stores them as the complete chunk set of the
// named document, replacing any earlier version. It returns the number of
// chunks committed.
func (ix *Index) Upsert(ctx context.Context, name, documentType string, chunks []string) (int, error) {
	if name == "" {
		return 0, apperr.Newf(apperr.KindInvalidInput, "upsert", "document name is required")
	}
	if len(chunks) == 0 {
		return 0, apperr.Newf(apperr.KindInvalidInput, "upsert", "document %q has no chunks", name)
	}
	if documentType == "" {
		documentType = models.DefaultDocumentType
	}

	// Stage outside the lock; embedding is the slow part.
	vectors, err := ix.embedder.Embed(ctx, chunks)
	if err != nil {
		return 0, err
	}
	if len(vectors) != len(chunks) {
		return 0, apperr.Newf(apperr.KindEmbeddingService, "upsert", "got %d vectors for %d chunks", len(vectors), len(chunks))
	}

	stored := make([]models.StoredChunk, len(chunks))
	for i := range chunks {
		stored[i] = models.StoredChunk{ChunkID: i, Content: chunks[i], Embedding: vectors[i]}
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	if ix.dropped {
		return 0, apperr.Newf(apperr.KindNotFound, "upsert", "knowledge base %q was deleted", ix.id)
	}

	old := ix.current.Load()
	if dim := old.dimExcept(name); dim != 0 && dim != len(vectors[0]) {
		return 0, apperr.Newf(apperr.KindEmbeddingService, "upsert",
			"embedding dimension %d does not match knowledge base dimension %d", len(vectors[0]), dim)
	}

	doc := &models.StoredDocument{
		Name:         name,
		DocumentType: documentType,
		Seq:          old.nextSeq,
		CreatedAt:    time.Now().UTC(),
		Chunks:       stored,
	}

	// A caller that gives up does not abort a commit in progress.
	if err := ix.backend.ReplaceDocument(context.WithoutCancel(ctx), ix.id, *doc); err != nil {
		ix.log.Error(err, "replace failed, keeping previous version", "document", name)
		return 0, fmt.Errorf("store document %q: %w", name, err)
	}

	next := old.with(doc)
	ix.current.Store(next)
	ix.log.V(1).Info("upserted document", "document", name, "chunks", len(stored), "version", next.version)
	return len(stored), nil
}

// Delete removes a document and returns how many chunks it had.
func (ix *Index) Delete(ctx context.Context, name string) (int, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	old := ix.current.Load()
	doc, ok := old.byName[name]
	if ix.dropped || !ok {
		return 0, apperr.Newf(apperr.KindNotFound, "delete", "document %q not found", name)
	}

	if _, err := ix.backend.DeleteDocument(context.WithoutCancel(ctx), ix.id, name); err != nil {
		return 0, fmt.Errorf("delete document %q: %w", name, err)
	}

	ix.current.Store(old.without(name))
	ix.log.V(1).Info("deleted document", "document", name, "chunks", len(doc.Chunks))
	return len(doc.Chunks), nil
}

// Clear removes every document but keeps the knowledge base itself.
func (ix *Index) Clear(ctx context.Context) (int, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if ix.dropped {
		return 0, apperr.Newf(apperr.KindNotFound, "clear", "knowledge base %q was deleted", ix.id)
	}

	old := ix.current.Load()
	if _, err := ix.backend.Clear(context.WithoutCancel(ctx), ix.id); err != nil {
		return 0, fmt.Errorf("clear knowledge base: %w", err)
	}

	ix.current.Store(newSnapshot(old.version+1, nil, old.nextSeq))
	ix.log.Info("cleared knowledge base", "chunks", old.chunks)
	return old.chunks, nil
}

// Drop deletes the knowledge base from the backend. The index is unusable
// for writes afterwards.
func (ix *Index) Drop(ctx context.Context) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if ix.dropped {
		return apperr.Newf(apperr.KindNotFound, "drop", "knowledge base %q was deleted", ix.id)
	}
	if err := ix.backend.Drop(context.WithoutCancel(ctx), ix.id); err != nil {
		return err
	}
	ix.dropped = true
	old := ix.current.Load()
	ix.current.Store(newSnapshot(old.version+1, nil, 1))
	return nil
}

// List reports every document in insertion order.
func (ix *Index) List(_ context.Context) []models.DocumentInfo {
	snap := ix.current.Load()
	out := make([]models.DocumentInfo, 0, len(snap.docs))
	for _, d := range snap.docs {
		out = append(out, models.DocumentInfo{
			Name:         d.Name,
			Chunks:       len(d.Chunks),
			DocumentType: d.DocumentType,
		})
	}
	return out
}

func (ix *Index) Stats(_ context.Context) models.IndexStats {
	snap := ix.current.Load()
	return models.IndexStats{DocumentCount: len(snap.docs), ChunkCount: snap.chunks}
}

// Search embeds query and returns the k most similar chunks. An empty index
// or k <= 0 gives an empty result without calling the embedder.
func (ix *Index) Search(ctx context.Context, query string, k int) ([]models.Hit, error) {
	if k <= 0 || ix.current.Load().chunks == 0 {
		return []models.Hit{}, nil
	}

	vectors, err := ix.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, apperr.Newf(apperr.KindEmbeddingService, "search", "got %d vectors for one query", len(vectors))
	}
	return ix.SearchVector(ctx, vectors[0], k)
}

// SearchVector ranks chunks by cosine similarity to vec. Ties go to the
// lower chunk id, then to the document inserted first.
func (ix *Index) SearchVector(_ context.Context, vec []float32, k int) ([]models.Hit, error) {
	if k <= 0 {
		return []models.Hit{}, nil
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	snap := ix.current.Load()
	if snap.chunks == 0 {
		return []models.Hit{}, nil
	}
	if len(vec) != snap.dim {
		return nil, apperr.Newf(apperr.KindEmbeddingService, "search",
			"query dimension %d does not match knowledge base dimension %d", len(vec), snap.dim)
	}

	hits := make([]models.Hit, 0, snap.chunks)
	for _, d := range snap.docs {
		for _, c := range d.Chunks {
			hits = append(hits, models.Hit{
				Chunk: models.Chunk{
					DocumentName: d.Name,
					ChunkID:      c.ChunkID,
					TotalChunks:  len(d.Chunks),
					Content:      c.Content,
				},
				Score: cosine(vec, c.Embedding),
				Seq:   d.Seq,
			})
		}
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		if hits[i].ChunkID != hits[j].ChunkID {
			return hits[i].ChunkID < hits[j].ChunkID
		}
		return hits[i].Seq < hits[j].Seq
	})

	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}
