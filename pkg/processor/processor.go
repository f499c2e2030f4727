package processor

import (
	"strings"
	"unicode/utf8"

	"github.com/KANCHARLABRUNDARIKA/KnowledgeBased-MindQuery/internal/apperr"
	"github.com/KANCHARLABRUNDARIKA/KnowledgeBased-MindQuery/internal/models"
)

type ProcessorConfig struct {
	ChunkSize    int
	ChunkOverlap int
	// Separators are tried in order, most preferred first. The empty string
	// means "cut anywhere".
	Separators []string
}

type Processor struct {
	config ProcessorConfig
}

// NewWithConfig validates the configuration. There are no defaults here;
// callers pass the values from pkg/config.
func NewWithConfig(config ProcessorConfig) (*Processor, error) {
	switch {
	case config.ChunkSize < 1:
		return nil, apperr.Newf(apperr.KindConfiguration, "processor", "chunk size must be positive, got %d", config.ChunkSize)
	case config.ChunkOverlap < 0:
		return nil, apperr.Newf(apperr.KindConfiguration, "processor", "chunk overlap must not be negative, got %d", config.ChunkOverlap)
	case config.ChunkOverlap >= config.ChunkSize:
		return nil, apperr.Newf(apperr.KindConfiguration, "processor",
			"chunk overlap (%d) must be less than chunk size (%d)", config.ChunkOverlap, config.ChunkSize)
	case len(config.Separators) == 0:
		return nil, apperr.Newf(apperr.KindConfiguration, "processor", "at least one separator is required")
	}

	seps := make([]string, len(config.Separators))
	copy(seps, config.Separators)
	config.Separators = seps

	return &Processor{config: config}, nil
}

func (p *Processor) Process(doc models.Document) models.ProcessedDocument {
	content := cleanText(doc.Content)
	doc.Content = content
	return models.ProcessedDocument{
		Document: doc,
		Chunks:   p.Split(content),
	}
}

// cleanText drops invalid UTF-8 and normalizes line endings so that the
// separators match text from any platform.
func cleanText(text string) string {
	text = strings.ToValidUTF8(text, "")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.ReplaceAll(text, "\r", "\n")
}

// Split cuts text into chunks of at most ChunkSize runes. Consecutive chunks
// share ChunkOverlap runes: chunk i+1 starts with the last ChunkOverlap runes
// of chunk i. Dropping that prefix from every chunk but the first and
// concatenating the rest gives back text exactly.
func (p *Processor) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if utf8.RuneCountInString(text) <= p.config.ChunkSize {
		return []string{text}
	}

	step := p.config.ChunkSize - p.config.ChunkOverlap
	pieces := splitPieces(text, p.config.Separators, step)
	bodies := p.pack(pieces, step)

	chunks := make([]string, 0, len(bodies))
	for i, body := range bodies {
		if i == 0 || p.config.ChunkOverlap == 0 {
			chunks = append(chunks, body)
			continue
		}
		chunks = append(chunks, tail(chunks[i-1], p.config.ChunkOverlap)+body)
	}
	return chunks
}

// pack merges adjacent pieces greedily. The first body may use the whole
// chunk size; later bodies leave room for the carried overlap.
func (p *Processor) pack(pieces []string, step int) []string {
	var bodies []string
	var current strings.Builder
	currentLen := 0

	for _, piece := range pieces {
		pieceLen := utf8.RuneCountInString(piece)
		limit := step
		if len(bodies) == 0 {
			limit = p.config.ChunkSize
		}
		if currentLen > 0 && currentLen+pieceLen > limit {
			bodies = append(bodies, current.String())
			current.Reset()
			currentLen = 0
		}
		current.WriteString(piece)
		currentLen += pieceLen
	}
	if currentLen > 0 {
		bodies = append(bodies, current.String())
	}
	return bodies
}

// splitPieces breaks text on the first separator it contains and recurses
// with the remaining separators into any piece still longer than limit.
// The separator stays attached to the end of the piece before it.
func splitPieces(text string, separators []string, limit int) []string {
	if utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}

	for i, sep := range separators {
		if sep == "" {
			return hardCut(text, limit)
		}
		if !strings.Contains(text, sep) {
			continue
		}

		var pieces []string
		for _, part := range strings.SplitAfter(text, sep) {
			if part == "" {
				continue
			}
			if utf8.RuneCountInString(part) <= limit {
				pieces = append(pieces, part)
				continue
			}
			pieces = append(pieces, splitPieces(part, separators[i+1:], limit)...)
		}
		return pieces
	}

	return hardCut(text, limit)
}

func hardCut(text string, limit int) []string {
	runes := []rune(text)
	pieces := make([]string, 0, len(runes)/limit+1)
	for start := 0; start < len(runes); start += limit {
		end := start + limit
		if end > len(runes) {
			end = len(runes)
		}
		pieces = append(pieces, string(runes[start:end]))
	}
	return pieces
}

func tail(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[len(runes)-n:])
}

// Reassemble undoes Split for a given overlap.
func Reassemble(chunks []string, overlap int) string {
	var b strings.Builder
	prevLen := 0
	for i, chunk := range chunks {
		runes := []rune(chunk)
		if i > 0 {
			drop := overlap
			if prevLen < drop {
				drop = prevLen
			}
			runes = runes[drop:]
		}
		b.WriteString(string(runes))
		prevLen = utf8.RuneCountInString(chunk)
	}
	return b.String()
}
