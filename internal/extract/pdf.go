package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// extractPDF pulls plain text out of each page. Pages whose content
// cannot be decoded are skipped rather than failing the whole document;
// ErrEmptyDocument surfaces later if nothing was readable.
func extractPDF(data []byte) (text string, pages int, err error) {
	defer func() {
		// The pdf package panics on some malformed files.
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed PDF: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", 0, fmt.Errorf("opening PDF: %w", err)
	}

	pages = r.NumPage()
	var sb strings.Builder
	for i := 1; i <= pages; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		content, err := p.GetPlainText(nil)
		if err != nil {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(content)
	}

	return sb.String(), pages, nil
}
