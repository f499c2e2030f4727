package models

import "time"

// DefaultKnowledgeBaseID is the reserved identifier of the shared knowledge base.
// User ids must start with a letter or digit, so no user can claim it.
const DefaultKnowledgeBaseID = "_default"

const DefaultDocumentType = "generic"

type Document struct {
	Name         string
	DocumentType string
	Content      string
	Metadata     map[string]interface{}
}

type ProcessedDocument struct {
	Document
	Chunks []string
}

// Chunk is one retrievable span of a document.
type Chunk struct {
	DocumentName string
	ChunkID      int
	TotalChunks  int
	Content      string
}

// StoredChunk is a chunk together with its embedding, as persisted by a backend.
type StoredChunk struct {
	ChunkID   int
	Content   string
	Embedding []float32
}

// StoredDocument is the durable form of a document and all of its chunks.
type StoredDocument struct {
	Name         string
	DocumentType string
	// Seq orders documents by insertion; a re-upload gets a new sequence number.
	Seq       int64
	CreatedAt time.Time
	Chunks    []StoredChunk
}

type DocumentInfo struct {
	Name         string `json:"name"`
	Chunks       int    `json:"chunks"`
	DocumentType string `json:"document_type"`
}

type IndexStats struct {
	DocumentCount int
	ChunkCount    int
}

// Hit is a single search result.
type Hit struct {
	Chunk
	Score float64
	// Seq is the insertion sequence of the owning document.
	Seq int64
}
