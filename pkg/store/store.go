// Package store keeps the chunks and embeddings of every knowledge base.
//
// A Backend is the durable copy, addressed by knowledge base id. An Index
// is the in-memory view of one knowledge base that serves searches and
// funnels every write through its Backend before publishing it.
package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/KANCHARLABRUNDARIKA/KnowledgeBased-MindQuery/internal/models"
)

// Backend persists knowledge bases. Every mutating call has committed
// durably by the time it returns nil.
type Backend interface {
	Exists(ctx context.Context, kbID string) (bool, error)
	// Create makes an empty knowledge base. It is a no-op if one exists.
	Create(ctx context.Context, kbID string) error
	// Load returns all documents ordered by Seq, each with its chunks ordered
	// by ChunkID. A missing knowledge base is a not_found error.
	Load(ctx context.Context, kbID string) ([]models.StoredDocument, error)
	// ReplaceDocument removes any document with the same name and writes doc
	// in one transaction.
	ReplaceDocument(ctx context.Context, kbID string, doc models.StoredDocument) error
	DeleteDocument(ctx context.Context, kbID, name string) (int, error)
	Clear(ctx context.Context, kbID string) (int, error)
	// Drop deletes the knowledge base. A later Create starts from scratch.
	Drop(ctx context.Context, kbID string) error
	Close() error
}

func checkID(kbID string) error {
	if kbID == "" || strings.ContainsAny(kbID, `/\`) || strings.Contains(kbID, "..") {
		return fmt.Errorf("invalid knowledge base id %q", kbID)
	}
	return nil
}
