package crawler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/brotli"
	"github.com/chromedp/chromedp"
	colly "github.com/gocolly/colly/v2"
	"golang.org/x/net/html/charset"
)

var (
	// Global HTTP transport with compression enabled
	httpTransport = &http.Transport{
		DisableCompression: false,
	}
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// A page below this many words has nothing worth chunking.
const minPageWords = 10

// ErrNoContent is returned when a page fetch succeeds but yields no
// extractable text.
var ErrNoContent = errors.New("page contains no extractable text")

// PageConfig holds configuration for fetching a single page
type PageConfig struct {
	URL       string
	UserAgent string
	Timeout   time.Duration
	// Optional JS rendering via headless Chrome, tried before the static fetch
	RenderJS         bool
	RenderTimeout    time.Duration
	WaitSelector     string
	NetworkIdleAfter time.Duration
}

// Page is the extracted content of a single fetched page
type Page struct {
	URL        string
	Title      string
	Text       string
	Meta       PageMeta
	StatusCode int
	WordCount  int
	FetchedAt  time.Time
	RenderedJS bool
}

// normalizeURL normalizes a URL to a canonical form for duplicate detection
func normalizeURL(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}

	// Remove fragment
	parsed.Fragment = ""

	// Normalize path - keep trailing slash as-is for root, remove for others
	path := parsed.Path
	if path == "" {
		path = "/"
	} else if path != "/" {
		path = strings.TrimSuffix(path, "/")
		if path == "" {
			path = "/"
		}
	}
	parsed.Path = path

	// Convert to lowercase scheme and host
	parsed.Scheme = strings.ToLower(parsed.Scheme)
	parsed.Host = strings.ToLower(parsed.Host)

	// Remove default ports
	if parsed.Port() == "80" && parsed.Scheme == "http" {
		host, _, _ := strings.Cut(parsed.Host, ":")
		parsed.Host = host
	}
	if parsed.Port() == "443" && parsed.Scheme == "https" {
		host, _, _ := strings.Cut(parsed.Host, ":")
		parsed.Host = host
	}

	return parsed.String(), nil
}

// FetchPage fetches one page and extracts its readable text and metadata.
// With RenderJS enabled it renders the page in headless Chrome first and
// falls back to a static fetch when rendering fails or comes back thin.
func FetchPage(cfg PageConfig) (*Page, error) {
	parsedURL, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsedURL.Scheme == "" {
		parsedURL.Scheme = "https"
		cfg.URL = parsedURL.String()
	}

	normalizedURL, err := normalizeURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL format: %w", err)
	}

	if cfg.RenderJS {
		page, renderErr := fetchRendered(normalizedURL, cfg)
		if renderErr == nil && page.WordCount >= minPageWords {
			return page, nil
		}
		if renderErr != nil {
			fmt.Printf("⚠️ JS render failed for %s, falling back to static fetch: %v\n", normalizedURL, renderErr)
		}
	}

	return fetchStatic(normalizedURL, cfg)
}

// fetchStatic performs a plain HTTP fetch of the page via colly.
func fetchStatic(normalizedURL string, cfg PageConfig) (*Page, error) {
	c := colly.NewCollector(colly.MaxDepth(1))
	c.WithTransport(httpTransport)

	if cfg.Timeout > 0 {
		c.SetRequestTimeout(cfg.Timeout)
	} else {
		c.SetRequestTimeout(60 * time.Second)
	}

	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	} else {
		c.UserAgent = defaultUserAgent
	}

	var (
		page     *Page
		fetchErr error
	)

	// Browser-like headers avoid 403 Forbidden from bot protection
	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8,application/signed-exchange;v=b3;q=0.7")
		r.Headers.Set("Accept-Language", "en-US,en;q=0.9")
		r.Headers.Set("Accept-Encoding", "gzip, deflate, br, zstd")
		r.Headers.Set("Connection", "keep-alive")
		r.Headers.Set("Upgrade-Insecure-Requests", "1")
		r.Headers.Set("Sec-Fetch-Dest", "document")
		r.Headers.Set("Sec-Fetch-Mode", "navigate")
		r.Headers.Set("Sec-Fetch-Site", "none")
		r.Headers.Set("Sec-Fetch-User", "?1")

		parsedURL, err := url.Parse(r.URL.String())
		if err == nil {
			r.Headers.Set("Referer", fmt.Sprintf("%s://%s/", parsedURL.Scheme, parsedURL.Host))
		}
	})

	// Decode body: brotli is not handled by Go's transport, and charsets
	// other than UTF-8 need converting before goquery sees the bytes.
	c.OnResponse(func(r *colly.Response) {
		contentType := r.Headers.Get("Content-Type")
		if contentType != "" && !strings.Contains(contentType, "text/html") && !strings.Contains(contentType, "application/xhtml+xml") {
			fetchErr = fmt.Errorf("unsupported content type %q, expected an HTML page", contentType)
			return
		}

		contentEncoding := r.Headers.Get("Content-Encoding")
		var bodyReader io.Reader = bytes.NewReader(r.Body)

		if strings.Contains(contentEncoding, "br") {
			brReader := brotli.NewReader(bodyReader)
			decompressed, err := io.ReadAll(brReader)
			if err == nil {
				r.Body = decompressed
				bodyReader = bytes.NewReader(decompressed)
			}
		}

		if len(r.Body) > 0 {
			utf8Reader, err := charset.NewReader(bodyReader, contentType)
			if err == nil {
				decodedBody, readErr := io.ReadAll(utf8Reader)
				if readErr == nil && len(decodedBody) > 0 {
					r.Body = decodedBody
				}
			}
		}
	})

	c.OnHTML("html", func(e *colly.HTMLElement) {
		if page != nil {
			return
		}
		page = buildPage(e.DOM, normalizedURL, e.Response.StatusCode, false)
	})

	c.OnError(func(r *colly.Response, err error) {
		switch {
		case r.StatusCode == 403:
			fetchErr = fmt.Errorf("access forbidden (403): the website blocked the fetch. This could be due to bot protection, Cloudflare, rate limiting, or restricted access")
		case r.StatusCode == 429:
			fetchErr = fmt.Errorf("rate limited (429): too many requests. Please wait and try again later")
		case r.StatusCode >= 500:
			fetchErr = fmt.Errorf("server error (%d): the website server returned an error. Please try again later", r.StatusCode)
		case strings.Contains(err.Error(), "timeout") || strings.Contains(err.Error(), "no such host"):
			fetchErr = fmt.Errorf("network error: %v. Please check the URL", err)
		default:
			fetchErr = fmt.Errorf("failed to fetch %s: %w", normalizedURL, err)
		}
	})

	if err := c.Visit(normalizedURL); err != nil && !strings.Contains(err.Error(), "already visited") {
		// Some sites reject the normalized form; retry the URL as given
		if visitErr := c.Visit(cfg.URL); visitErr != nil && !strings.Contains(visitErr.Error(), "already visited") {
			return nil, fmt.Errorf("failed to fetch page: %w", visitErr)
		}
	}
	c.Wait()

	if page == nil {
		if fetchErr != nil {
			return nil, fetchErr
		}
		return nil, fmt.Errorf("page %s was not processed", normalizedURL)
	}
	if page.WordCount < minPageWords {
		return nil, ErrNoContent
	}
	return page, nil
}

// fetchRendered renders the page in headless Chrome and extracts from the
// final DOM.
func fetchRendered(normalizedURL string, cfg PageConfig) (*Page, error) {
	renderTimeout := cfg.RenderTimeout
	if renderTimeout <= 0 {
		renderTimeout = 45 * time.Second
	}
	networkIdle := cfg.NetworkIdleAfter
	if networkIdle <= 0 {
		networkIdle = 1200 * time.Millisecond
	}

	html, err := renderPageHTML(normalizedURL, renderTimeout, cfg.WaitSelector, networkIdle, cfg.UserAgent)
	if err != nil {
		return nil, err
	}
	if html == "" {
		return nil, fmt.Errorf("render returned empty document")
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse rendered HTML: %w", err)
	}

	page := buildPage(doc.Selection, normalizedURL, http.StatusOK, true)
	return page, nil
}

// buildPage extracts title, main text and metadata from a parsed document.
func buildPage(sel *goquery.Selection, pageURL string, statusCode int, rendered bool) *Page {
	title := strings.TrimSpace(sel.Find("title").First().Text())
	meta := ExtractPageMeta(sel, pageURL)
	if title == "" {
		title = meta.OGTitle
	}

	content := extractMainContent(sel)
	if len(content) < 50 {
		content = strings.TrimSpace(sel.Find("body").Text())
	}

	return &Page{
		URL:        pageURL,
		Title:      title,
		Text:       content,
		Meta:       meta,
		StatusCode: statusCode,
		WordCount:  len(strings.Fields(content)),
		FetchedAt:  time.Now(),
		RenderedJS: rendered,
	}
}

// renderPageHTML launches a headless browser, waits for readiness and network idle, then returns HTML
func renderPageHTML(urlStr string, timeout time.Duration, waitSelector string, networkIdleAfter time.Duration, userAgent string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx,
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.UserAgent(userAgent),
	)
	defer allocCancel()

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	defer browserCancel()

	var html string

	// Step 1: Navigate
	if err := chromedp.Run(browserCtx, chromedp.Navigate(urlStr)); err != nil {
		return "", err
	}

	// Step 2: Quick ready check (soft-fail)
	{
		stepCtx, cancelStep := context.WithTimeout(browserCtx, 10*time.Second)
		defer cancelStep()
		_ = chromedp.Run(stepCtx, chromedp.WaitReady("body", chromedp.ByQuery))
	}

	// Step 3: Optional selector wait (soft-fail)
	if waitSelector != "" {
		stepCtx, cancelStep := context.WithTimeout(browserCtx, 15*time.Second)
		defer cancelStep()
		_ = chromedp.Run(stepCtx, chromedp.WaitVisible(waitSelector, chromedp.ByQuery))
	}

	// Step 4: Optional network idle (soft-fail, cap to 5s)
	if networkIdleAfter > 0 {
		idleCap := networkIdleAfter
		if idleCap > 5*time.Second {
			idleCap = 5 * time.Second
		}
		stepCtx, cancelStep := context.WithTimeout(browserCtx, idleCap+1*time.Second)
		defer cancelStep()
		_ = chromedp.Run(stepCtx, waitForNetworkIdle(idleCap))
	}

	// Step 5: Always attempt to read HTML
	if err := chromedp.Run(browserCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return html, nil
}

// waitForNetworkIdle waits until no network requests are in flight for the given duration
func waitForNetworkIdle(d time.Duration) chromedp.ActionFunc {
	// Heuristic implemented in the page: track last network activity via PerformanceObserver
	js := `(function(waitMs){
      return new Promise((resolve)=>{
        if (!('PerformanceObserver' in window)) {
          setTimeout(resolve, waitMs);
          return;
        }
        let last = Date.now();
        const obs = new PerformanceObserver(()=>{ last = Date.now(); });
        try { obs.observe({entryTypes:['resource','navigation']}); } catch(e) {}
        const tick = () => {
          if (Date.now()-last >= waitMs) { try { obs.disconnect(); } catch(e){} resolve(); return; }
          setTimeout(tick, 100);
        };
        tick();
      });
    })(%d);`
	return func(ctx context.Context) error {
		return chromedp.Run(ctx, chromedp.Evaluate(fmt.Sprintf(js, int(d.Milliseconds())), nil))
	}
}

// extractMainContent extracts readable text from a parsed document,
// preferring semantic content containers over raw body text.
func extractMainContent(selection *goquery.Selection) string {
	doc := selection.Clone()

	// Remove unwanted elements
	doc.Find("script, style, noscript, nav, footer, header, aside, form, .nav, .navbar, .footer, .header, .sidebar, .advertisement, .ads, .skip-link, .cookie-banner, .comments").Remove()

	// Try semantic HTML5 elements first
	contentSelectors := []string{
		"main",
		"article",
		"[role='main']",
		".main-content",
		".content",
		"#content",
		".post",
		".entry",
		"body",
	}

	var content strings.Builder
	contentFound := false

	for _, selector := range contentSelectors {
		doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
			text := strings.TrimSpace(s.Text())
			if len(text) > 100 {
				content.WriteString(text)
				content.WriteString("\n\n")
				contentFound = true
			}
		})

		if contentFound {
			break
		}
	}

	if !contentFound {
		content.WriteString(doc.Find("body").Text())
	}

	text := strings.TrimSpace(content.String())

	// Clean up excessive whitespace
	lines := strings.Split(text, "\n")
	var cleanedLines []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			cleanedLines = append(cleanedLines, line)
		}
	}

	return strings.Join(cleanedLines, "\n")
}
