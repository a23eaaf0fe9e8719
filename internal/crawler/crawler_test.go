package crawler

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
)

func TestNormalizeURL(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"https://Example.COM/Posts/", "https://example.com/Posts"},
		{"https://example.com/posts#section-2", "https://example.com/posts"},
		{"https://example.com", "https://example.com/"},
		{"http://example.com:80/a", "http://example.com/a"},
		{"https://example.com:443/a", "https://example.com/a"},
		{"https://example.com:8443/a", "https://example.com:8443/a"},
	}
	for _, c := range cases {
		got, err := normalizeURL(c.in)
		if err != nil {
			t.Fatalf("normalizeURL(%q) error: %v", c.in, err)
		}
		if got != c.want {
			t.Errorf("normalizeURL(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

const articleHTML = `<!DOCTYPE html>
<html>
<head>
  <title>Understanding Attention</title>
  <meta name="description" content="A walkthrough of attention mechanisms.">
  <meta property="og:site_name" content="ML Notes">
  <meta property="og:image" content="/img/cover.png">
  <link rel="canonical" href="/posts/attention">
  <script type="application/ld+json">
  {"@type":"Article","headline":"Understanding Attention","author":{"name":"Dana Smith"},"datePublished":"2024-03-01"}
  </script>
</head>
<body>
  <nav>Home About Contact and lots of other navigation noise here</nav>
  <article>
    <h1>Understanding Attention</h1>
    <p>Attention lets a model weigh parts of the input differently. This paragraph needs to be
    comfortably longer than one hundred characters so the extractor treats the article element
    as the page's main content container.</p>
  </article>
  <footer>Copyright notice that should not appear in the extracted text</footer>
</body>
</html>`

func parseFixture(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatalf("failed to parse fixture: %v", err)
	}
	return doc
}

func TestExtractMainContentPrefersArticle(t *testing.T) {
	doc := parseFixture(t, articleHTML)

	content := extractMainContent(doc.Selection)
	if !strings.Contains(content, "Attention lets a model weigh parts") {
		t.Errorf("expected article text in content, got %q", content)
	}
	if strings.Contains(content, "navigation noise") {
		t.Errorf("expected nav to be stripped, got %q", content)
	}
	if strings.Contains(content, "Copyright notice") {
		t.Errorf("expected footer to be stripped, got %q", content)
	}
}

func TestExtractPageMeta(t *testing.T) {
	doc := parseFixture(t, articleHTML)

	meta := ExtractPageMeta(doc.Selection, "https://mlnotes.dev/posts/attention")
	if meta.Description != "A walkthrough of attention mechanisms." {
		t.Errorf("unexpected description %q", meta.Description)
	}
	if meta.Author != "Dana Smith" {
		t.Errorf("expected JSON-LD author, got %q", meta.Author)
	}
	if meta.Published != "2024-03-01" {
		t.Errorf("expected JSON-LD date, got %q", meta.Published)
	}
	if meta.SiteName != "ML Notes" {
		t.Errorf("unexpected site name %q", meta.SiteName)
	}
	if meta.Canonical != "https://mlnotes.dev/posts/attention" {
		t.Errorf("expected canonical resolved against page URL, got %q", meta.Canonical)
	}
	if meta.Image != "https://mlnotes.dev/img/cover.png" {
		t.Errorf("expected image resolved against page URL, got %q", meta.Image)
	}
}

func TestPageMetaToMapOmitsEmptyFields(t *testing.T) {
	m := PageMeta{Author: "Dana Smith"}.ToMap()
	if len(m) != 1 || m["author"] != "Dana Smith" {
		t.Errorf("unexpected map %v", m)
	}
	if (PageMeta{}).ToMap() != nil {
		t.Error("expected nil map for empty metadata")
	}
}

func TestFetchPageStatic(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(articleHTML))
	}))
	defer srv.Close()

	page, err := FetchPage(PageConfig{URL: srv.URL, Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("FetchPage error: %v", err)
	}
	if page.Title != "Understanding Attention" {
		t.Errorf("unexpected title %q", page.Title)
	}
	if !strings.Contains(page.Text, "Attention lets a model weigh parts") {
		t.Errorf("expected article text, got %q", page.Text)
	}
	if page.Meta.Author != "Dana Smith" {
		t.Errorf("expected metadata extraction, got %q", page.Meta.Author)
	}
	if page.WordCount < minPageWords {
		t.Errorf("unexpected word count %d", page.WordCount)
	}
	if page.RenderedJS {
		t.Error("static fetch should not be marked as rendered")
	}
}

func TestFetchPageRejectsThinContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte("<html><head><title>x</title></head><body>hi</body></html>"))
	}))
	defer srv.Close()

	_, err := FetchPage(PageConfig{URL: srv.URL, Timeout: 5 * time.Second})
	if !errors.Is(err, ErrNoContent) {
		t.Fatalf("expected ErrNoContent, got %v", err)
	}
}

func TestFetchPageRejectsNonHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF-1.4"))
	}))
	defer srv.Close()

	_, err := FetchPage(PageConfig{URL: srv.URL, Timeout: 5 * time.Second})
	if err == nil {
		t.Fatal("expected error for non-HTML content type")
	}
}

// Network/GUI dependent; validate that the JS-rendering path can run and
// returns some content.
func TestFetchPageRenderJS_Shallow(t *testing.T) {
	page, err := FetchPage(PageConfig{
		URL:              "https://example.com/",
		RenderJS:         true,
		RenderTimeout:    10 * time.Second,
		WaitSelector:     "body",
		NetworkIdleAfter: 300 * time.Millisecond,
	})
	if err != nil {
		// In CI/containers without Chrome this may fail; mark as skipped with context
		t.Skipf("JS-render test skipped due to environment: %v", err)
		return
	}
	if page == nil || page.WordCount == 0 {
		t.Fatalf("expected rendered page content")
	}
}
