package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
)

func TestExtractTXT(t *testing.T) {
	e := New()
	doc, err := e.Extract(context.Background(), "lease.txt", []byte("Tenant shall pay rent.\n\nLate fee of $500 per day.\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(doc.Text, "Late fee of $500 per day.") {
		t.Errorf("text missing clause: %q", doc.Text)
	}
	if doc.Words != 10 {
		t.Errorf("Words = %d, want 10", doc.Words)
	}
	if doc.Pages != 1 {
		t.Errorf("Pages = %d, want 1", doc.Pages)
	}
	if doc.Method != "plain_text" {
		t.Errorf("Method = %q, want plain_text", doc.Method)
	}
}

func TestExtractTXTLatin1Fallback(t *testing.T) {
	e := New()
	// 0xE9 is é in Latin-1 and invalid standalone UTF-8.
	doc, err := e.Extract(context.Background(), "doc.txt", []byte{'c', 'a', 'f', 0xE9})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.Text != "café" {
		t.Errorf("Text = %q, want café", doc.Text)
	}
}

func TestExtractUnsupportedType(t *testing.T) {
	e := New()
	_, err := e.Extract(context.Background(), "image.png", []byte("x"))
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("err = %v, want ErrUnsupportedType", err)
	}
}

func TestExtractEmptyDocument(t *testing.T) {
	e := New()
	_, err := e.Extract(context.Background(), "empty.txt", []byte("   \n\n  "))
	if !errors.Is(err, ErrEmptyDocument) {
		t.Fatalf("err = %v, want ErrEmptyDocument", err)
	}
}

func buildDOCX(t *testing.T, documentXML string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte(documentXML)); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestExtractDOCX(t *testing.T) {
	docXML := `<?xml version="1.0"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>This Agreement is made between the parties.</w:t></w:r></w:p>
    <w:p><w:r><w:t>Either party may terminate</w:t></w:r><w:r><w:t> with 30 days notice.</w:t></w:r></w:p>
  </w:body>
</w:document>`

	e := New()
	doc, err := e.Extract(context.Background(), "contract.docx", buildDOCX(t, docXML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(doc.Text, "This Agreement is made between the parties.") {
		t.Errorf("missing first paragraph: %q", doc.Text)
	}
	if !strings.Contains(doc.Text, "Either party may terminate with 30 days notice.") {
		t.Errorf("runs within a paragraph should join without breaks: %q", doc.Text)
	}
	if !strings.Contains(doc.Text, "parties.\n\nEither") {
		t.Errorf("paragraphs should be separated by a blank line: %q", doc.Text)
	}
}

func TestExtractDOCXNotAnArchive(t *testing.T) {
	e := New()
	if _, err := e.Extract(context.Background(), "broken.docx", []byte("plain text, not a zip")); err == nil {
		t.Fatal("expected error for non-zip DOCX")
	}
}

func TestExtractHTML(t *testing.T) {
	page := `<html><head><title>ignore</title><style>p{color:red}</style></head>
<body><script>var x=1;</script>
<h1>Service Agreement</h1>
<p>The provider is not liable for indirect damages.</p>
<p>Fees are due monthly.</p>
</body></html>`

	e := New()
	doc, err := e.Extract(context.Background(), "terms.html", []byte(page))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if strings.Contains(doc.Text, "var x=1") || strings.Contains(doc.Text, "color:red") {
		t.Errorf("script/style leaked into text: %q", doc.Text)
	}
	if !strings.Contains(doc.Text, "Service Agreement") {
		t.Errorf("missing heading: %q", doc.Text)
	}
	if !strings.Contains(doc.Text, "not liable for indirect damages") {
		t.Errorf("missing paragraph: %q", doc.Text)
	}
}

func TestNormalize(t *testing.T) {
	in := "First line  with   gaps\t\r\nPage 3 of 12\r\n\n\n\nNext   paragraph  "
	got := Normalize(in)

	if strings.Contains(got, "  ") {
		t.Errorf("horizontal whitespace not collapsed: %q", got)
	}
	if strings.Contains(got, "Page 3 of 12") {
		t.Errorf("page artifact not stripped: %q", got)
	}
	if strings.Contains(got, "\n\n\n") {
		t.Errorf("blank-line runs not collapsed: %q", got)
	}
	if strings.HasSuffix(got, " ") {
		t.Errorf("not trimmed: %q", got)
	}
}

func TestSupported(t *testing.T) {
	for _, name := range []string{"a.pdf", "b.DOCX", "c.txt", "d.html", "e.htm"} {
		if !Supported(name) {
			t.Errorf("Supported(%q) = false, want true", name)
		}
	}
	for _, name := range []string{"a.png", "b.exe", "noext"} {
		if Supported(name) {
			t.Errorf("Supported(%q) = true, want false", name)
		}
	}
}
