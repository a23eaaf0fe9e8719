package services

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"research-board-platform/internal/config"
)

func TestDocxXMLText(t *testing.T) {
	content := `<w:p><w:r><w:t>Hello</w:t></w:r><w:r><w:t xml:space="preserve"> world</w:t></w:r></w:p>` +
		`<w:p><w:r><w:tab/><w:t>Second &amp; final</w:t></w:r></w:p>` +
		`<w:p><w:r><w:t/></w:r></w:p>`

	got := docxXMLText(content)
	want := "Hello world\nSecond & final"
	if got != want {
		t.Errorf("docxXMLText = %q, want %q", got, want)
	}
}

func TestDocxXMLTextIgnoresNonTextTags(t *testing.T) {
	// <w:tbl>, <w:tr>, <w:tc> share the <w:t prefix and must not be
	// mistaken for text runs.
	content := `<w:p><w:tbl><w:tr><w:tc><w:t>cell</w:t></w:tc></w:tr></w:tbl></w:p>`
	if got := docxXMLText(content); got != "cell" {
		t.Errorf("docxXMLText = %q, want %q", got, "cell")
	}
}

func TestEvaluateTextQuality(t *testing.T) {
	good := "The quick brown fox jumps over the lazy dog. It was the best of times, " +
		"and the worst of times, for every fox in the field at dawn."
	if q := evaluateTextQuality(good); q < 0.7 {
		t.Errorf("expected clean prose to score >= 0.7, got %.2f", q)
	}

	corrupted := strings.Repeat("�� ", 50)
	if q := evaluateTextQuality(corrupted); q > 0.3 {
		t.Errorf("expected corrupted text to score low, got %.2f", q)
	}

	if q := evaluateTextQuality(""); q != 0 {
		t.Errorf("expected empty text to score 0, got %.2f", q)
	}
	if q := evaluateTextQuality("hi"); q != 0.1 {
		t.Errorf("expected tiny text to score 0.1, got %.2f", q)
	}
}

func TestGuessPageCount(t *testing.T) {
	if got := guessPageCount("page one\fpage two\fpage three"); got != 3 {
		t.Errorf("expected 3 pages from form feeds, got %d", got)
	}
	if got := guessPageCount("short"); got != 1 {
		t.Errorf("expected 1 page for short text, got %d", got)
	}
}

func TestDetectLanguage(t *testing.T) {
	english := strings.Repeat("the cat sat on the mat and looked at the dog in the yard ", 5)
	if got := detectLanguage(english); got != "en" {
		t.Errorf("expected en, got %q", got)
	}
	if got := detectLanguage("abc def ghi"); got != "unknown" {
		t.Errorf("expected unknown, got %q", got)
	}
}

func TestExtractMarkdownStripsSyntax(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.md")
	md := "# Retrieval Notes\n\nDense retrieval finds *semantically* similar passages.\n\n" +
		"- first observation\n- second observation\n\n```\nscore = dot(q, d)\n```\n\n" +
		"See [the paper](https://example.com/paper) for details.\n"
	if err := os.WriteFile(path, []byte(md), 0644); err != nil {
		t.Fatal(err)
	}

	ds := NewDocumentService(&config.Config{})
	result, err := ds.ExtractText(context.Background(), path)
	if err != nil {
		t.Fatalf("ExtractText error: %v", err)
	}

	for _, want := range []string{
		"Retrieval Notes",
		"Dense retrieval finds semantically similar passages.",
		"first observation",
		"score = dot(q, d)",
		"See the paper for details.",
	} {
		if !strings.Contains(result.Text, want) {
			t.Errorf("expected %q in extracted text, got %q", want, result.Text)
		}
	}
	for _, banned := range []string{"#", "*", "```", "](", "https://example.com"} {
		if strings.Contains(result.Text, banned) {
			t.Errorf("markdown syntax %q leaked into extracted text %q", banned, result.Text)
		}
	}
	if result.Method != "markdown" {
		t.Errorf("unexpected method %q", result.Method)
	}
}

func TestExtractPlain(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(path, []byte("  plain text content \n"), 0644); err != nil {
		t.Fatal(err)
	}

	ds := NewDocumentService(&config.Config{})
	result, err := ds.ExtractText(context.Background(), path)
	if err != nil {
		t.Fatalf("ExtractText error: %v", err)
	}
	if result.Text != "plain text content" {
		t.Errorf("unexpected text %q", result.Text)
	}
	if result.WordCount != 3 {
		t.Errorf("unexpected word count %d", result.WordCount)
	}
}

func TestExtractTextRejectsUnknownFormat(t *testing.T) {
	ds := NewDocumentService(&config.Config{})
	if _, err := ds.ExtractText(context.Background(), "file.xyz"); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}
