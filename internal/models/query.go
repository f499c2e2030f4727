package models

import "fmt"

// Mode selects which knowledge bases a question is answered from.
type Mode string

const (
	ModePersonal Mode = "personal"
	ModeCombined Mode = "combined"
	ModeDefault  Mode = "default"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModePersonal, ModeCombined, ModeDefault:
		return Mode(s), nil
	case "":
		return ModePersonal, nil
	}
	return "", fmt.Errorf("unknown mode %q (want personal, combined or default)", s)
}

// NeedsUser reports whether the mode reads the caller's personal knowledge base.
func (m Mode) NeedsUser() bool {
	return m == ModePersonal || m == ModeCombined
}

// KBStatus describes the persisted state of a knowledge base.
type KBStatus string

const (
	StatusAbsent KBStatus = "absent"
	StatusEmpty  KBStatus = "empty"
	StatusReady  KBStatus = "ready"
)

type AnswerStatus string

const (
	AnswerOK          AnswerStatus = "ok"
	AnswerNoResults   AnswerStatus = "no_results"
	AnswerUnavailable AnswerStatus = "unavailable"
)

// Source is a chunk that contributed to an answer.
type Source struct {
	DocumentName  string  `json:"document_name"`
	ChunkID       int     `json:"chunk_id"`
	Preview       string  `json:"content"`
	Score         float64 `json:"score"`
	KnowledgeBase string  `json:"knowledge_base"`
}

type Answer struct {
	Question string       `json:"question"`
	Answer   string       `json:"answer"`
	Sources  []Source     `json:"sources"`
	Context  string       `json:"context"`
	Mode     Mode         `json:"mode"`
	Status   AnswerStatus `json:"status"`
	Notes    []string     `json:"notes,omitempty"`
}

// BaseResult is the outcome of searching one knowledge base. Err is set when
// that base could not be searched; Hits is then empty.
type BaseResult struct {
	Role string
	KBID string
	Hits []Hit
	Err  error
}

type UploadResult struct {
	DocumentName  string `json:"document_name"`
	ChunksCreated int    `json:"chunks_created"`
	UserID        string `json:"user_id"`
}

type ListResult struct {
	Documents      []DocumentInfo `json:"documents"`
	TotalDocuments int            `json:"total_documents"`
}

type DeleteResult struct {
	DeletedChunks int `json:"deleted_chunks"`
}

type ClearResult struct {
	ClearedChunks int `json:"cleared_chunks"`
}

type StatsResult struct {
	UserID         string   `json:"user_id"`
	TotalDocuments int      `json:"total_documents"`
	TotalChunks    int      `json:"total_chunks"`
	Status         KBStatus `json:"status"`
}

// IngestResult summarizes a bulk ingestion (seeding or crawling).
type IngestResult struct {
	KnowledgeBase string   `json:"knowledge_base"`
	Documents     int      `json:"documents"`
	Chunks        int      `json:"chunks"`
	Skipped       []string `json:"skipped,omitempty"`
}
