// Package extract turns uploaded files into plain text.
package extract

import (
	"bytes"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-logr/logr"
	"github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"

	"github.com/KANCHARLABRUNDARIKA/KnowledgeBased-MindQuery/internal/apperr"
)

var supported = map[string]string{
	".txt":      "text",
	".md":       "text",
	".markdown": "text",
	".html":     "html",
	".htm":      "html",
	".pdf":      "pdf",
	".xlsx":     "xlsx",
}

// Supported reports whether fileName has an extension the extractor reads.
func Supported(fileName string) bool {
	_, ok := supported[strings.ToLower(filepath.Ext(fileName))]
	return ok
}

type Extractor struct {
	log logr.Logger
}

func New(log logr.Logger) *Extractor {
	return &Extractor{log: log.WithName("extract")}
}

// ExtractText picks a reader by file extension. Unknown extensions and
// unreadable content are extraction errors.
func (e *Extractor) ExtractText(fileName string, data []byte) (string, error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	kind, ok := supported[ext]
	if !ok {
		return "", apperr.Newf(apperr.KindExtraction, "extract", "unsupported file type %q", ext)
	}

	var (
		text string
		err  error
	)
	switch kind {
	case "text":
		text, err = plainText(data)
	case "html":
		text, err = htmlText(data)
	case "pdf":
		text, err = pdfText(data)
	case "xlsx":
		text, err = xlsxText(data)
	}
	if err != nil {
		return "", apperr.New(apperr.KindExtraction, "extract "+fileName, err)
	}

	e.log.V(1).Info("extracted text", "file", fileName, "bytes", len(data), "runes", utf8.RuneCountInString(text))
	return text, nil
}

func plainText(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", fmt.Errorf("file is not valid UTF-8 text")
	}
	return string(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))), nil
}

var blankLines = regexp.MustCompile(`\n{3,}`)

func htmlText(data []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	doc.Find("script, style, nav, footer, noscript").Remove()

	sel := doc.Find("main, article")
	if sel.Length() == 0 {
		sel = doc.Find("body")
	}

	var parts []string
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		parts = append(parts, title)
	}
	sel.Find("h1, h2, h3, h4, h5, h6, p, li, pre, td").Each(func(_ int, s *goquery.Selection) {
		if t := strings.TrimSpace(s.Text()); t != "" {
			parts = append(parts, t)
		}
	})
	if len(parts) == 0 {
		parts = append(parts, strings.TrimSpace(sel.Text()))
	}

	return blankLines.ReplaceAllString(strings.Join(parts, "\n\n"), "\n\n"), nil
}

// pdfText prefixes every page with a "[Page N]" marker.
func pdfText(data []byte) (text string, err error) {
	// The pdf package panics on some malformed files.
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	var b strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("read page %d: %w", i, err)
		}
		fmt.Fprintf(&b, "\n[Page %d]\n%s\n", i, pageText)
	}
	return b.String(), nil
}

// xlsxText renders every sheet as a heading followed by tab separated rows.
func xlsxText(data []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	var b strings.Builder
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return "", fmt.Errorf("read sheet %s: %w", sheet, err)
		}
		if len(rows) == 0 {
			continue
		}
		fmt.Fprintf(&b, "## %s\n", sheet)
		for _, row := range rows {
			line := strings.TrimRight(strings.Join(row, "\t"), "\t")
			if line != "" {
				b.WriteString(line)
				b.WriteString("\n")
			}
		}
		b.WriteString("\n")
	}
	return b.String(), nil
}
