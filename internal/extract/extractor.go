// Package extract converts uploaded documents (PDF, DOCX, TXT, HTML)
// into normalized plain text plus basic metadata.
package extract

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	// ErrUnsupportedType is returned for file extensions the extractor cannot handle.
	ErrUnsupportedType = errors.New("unsupported file type")
	// ErrEmptyDocument is returned when extraction yields no text.
	ErrEmptyDocument = errors.New("document contains no extractable text")
)

// Document is the result of a successful extraction.
type Document struct {
	Text   string
	Pages  int
	Words  int
	Method string
}

// Extractor converts raw file bytes into a normalized Document.
type Extractor struct{}

// New creates an Extractor.
func New() *Extractor {
	return &Extractor{}
}

// SupportedExtensions lists the file extensions Extract accepts, lowercase with dot.
func SupportedExtensions() []string {
	return []string{".pdf", ".docx", ".txt", ".html", ".htm"}
}

// Supported reports whether the filename's extension is handled.
func Supported(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, s := range SupportedExtensions() {
		if ext == s {
			return true
		}
	}
	return false
}

// Extract dispatches on the filename extension, extracts the raw text,
// and normalizes it. Returns ErrUnsupportedType or ErrEmptyDocument as
// appropriate; other errors wrap the format-specific failure.
func (e *Extractor) Extract(ctx context.Context, filename string, data []byte) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}

	ext := strings.ToLower(filepath.Ext(filename))

	var (
		text   string
		pages  int
		method string
		err    error
	)

	switch ext {
	case ".pdf":
		text, pages, err = extractPDF(data)
		method = "pdf"
	case ".docx":
		text, err = extractDOCX(data)
		method = "docx"
	case ".txt":
		text = extractTXT(data)
		method = "plain_text"
	case ".html", ".htm":
		text, err = extractHTML(data)
		method = "html"
	default:
		return Document{}, fmt.Errorf("%w: %s", ErrUnsupportedType, ext)
	}
	if err != nil {
		return Document{}, fmt.Errorf("extracting %s: %w", ext, err)
	}

	text = Normalize(text)
	if text == "" {
		return Document{}, ErrEmptyDocument
	}

	words := len(strings.Fields(text))
	if pages == 0 {
		// Formats without page structure: estimate at 500 words per page.
		pages = (words + 499) / 500
		if pages == 0 {
			pages = 1
		}
	}

	return Document{Text: text, Pages: pages, Words: words, Method: method}, nil
}

// extractTXT decodes plain text, falling back to Latin-1 when the bytes
// are not valid UTF-8.
func extractTXT(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}
	runes := make([]rune, len(data))
	for i, b := range data {
		runes[i] = rune(b)
	}
	return string(runes)
}

var (
	pageArtifactRe = regexp.MustCompile(`(?i)page \d+ of \d+|\[page \d+\]`)
	hspaceRe       = regexp.MustCompile(`[ \t]+`)
	blankRunsRe    = regexp.MustCompile(`\n{3,}`)
	lineTrimRe     = regexp.MustCompile(`(?m)[ \t]+$`)
)

// Normalize cleans extracted text: line endings to LF, page-number
// artifacts removed, horizontal whitespace collapsed, runs of blank
// lines reduced to a single blank line. Paragraph structure (double
// newlines) is preserved because the chunker keys off it.
func Normalize(text string) string {
	if text == "" {
		return ""
	}

	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = pageArtifactRe.ReplaceAllString(text, "")
	text = hspaceRe.ReplaceAllString(text, " ")
	text = lineTrimRe.ReplaceAllString(text, "")
	text = blankRunsRe.ReplaceAllString(text, "\n\n")

	return strings.TrimSpace(text)
}
