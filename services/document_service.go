package services

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	gmtext "github.com/yuin/goldmark/text"
	"google.golang.org/api/option"

	"research-board-platform/internal/config"
)

// DocumentService extracts plain text from uploaded documents. PDFs run
// through a cascade of extraction methods with quality scoring; other
// formats have a single extractor each.
type DocumentService struct {
	config       *config.Config
	geminiClient *genai.Client
}

func NewDocumentService(cfg *config.Config) *DocumentService {
	return &DocumentService{config: cfg}
}

// DocumentResult contains the extracted text and extraction diagnostics.
type DocumentResult struct {
	Text      string
	Method    string
	Pages     int
	Quality   float64
	WordCount int
	CharCount int
	Language  string
}

// ExtractText extracts text from a stored document, dispatching on the
// file extension.
func (ds *DocumentService) ExtractText(ctx context.Context, filePath string) (*DocumentResult, error) {
	switch ext := strings.ToLower(filepath.Ext(filePath)); ext {
	case ".pdf":
		return ds.extractPDF(ctx, filePath)
	case ".docx":
		return ds.extractDocx(filePath)
	case ".md", ".markdown":
		return ds.extractMarkdown(filePath)
	case ".txt":
		return ds.extractPlain(filePath)
	default:
		return nil, fmt.Errorf("unsupported document format: %s", ext)
	}
}

// extractPDF tries extraction methods in order of cost and keeps the
// first result whose text quality clears the acceptance threshold.
func (ds *DocumentService) extractPDF(ctx context.Context, filePath string) (*DocumentResult, error) {
	start := time.Now()

	if deadline, ok := ctx.Deadline(); ok {
		if time.Until(deadline) <= 0 {
			return nil, fmt.Errorf("context deadline exceeded before extraction")
		}
	}

	stat, err := os.Stat(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat PDF file: %w", err)
	}
	if stat.Size() > 200<<20 { // 200MB safety cap
		return nil, fmt.Errorf("pdf too large for in-memory extraction")
	}

	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read PDF file: %w", err)
	}

	methods := []struct {
		name    string
		extract func(context.Context, []byte) (*DocumentResult, error)
	}{
		{"poppler", ds.extractWithPoppler},
		{"go-pdf", ds.extractWithGoPDF},
	}
	// Model-based OCR is the expensive last resort for scanned PDFs
	if ds.config.GeminiAPIKey != "" {
		methods = append(methods, struct {
			name    string
			extract func(context.Context, []byte) (*DocumentResult, error)
		}{"gemini-ocr", ds.extractWithGemini})
	}

	var lastErr error
	var bestResult *DocumentResult

	for _, method := range methods {
		result, err := method.extract(ctx, content)
		if err != nil {
			fmt.Printf("%s extraction failed: %v\n", method.name, err)
			lastErr = err
			continue
		}

		result.Method = method.name
		result.Quality = evaluateTextQuality(result.Text)
		fillTextStats(result)

		fmt.Printf("%s extraction: %d chars, quality %.2f in %s\n",
			method.name, len(result.Text), result.Quality, time.Since(start).Round(time.Millisecond))

		if result.Quality >= 0.7 {
			return result, nil
		}
		if bestResult == nil || result.Quality > bestResult.Quality {
			bestResult = result
		}
	}

	if bestResult != nil && bestResult.Quality >= 0.3 {
		fmt.Printf("Using best available extraction (%s) with quality %.2f\n", bestResult.Method, bestResult.Quality)
		return bestResult, nil
	}

	return nil, fmt.Errorf("all extraction methods failed: %v", lastErr)
}

// extractWithPoppler uses poppler-utils (pdftotext) for extraction
func (ds *DocumentService) extractWithPoppler(ctx context.Context, content []byte) (*DocumentResult, error) {
	if _, err := exec.LookPath("pdftotext"); err != nil {
		return nil, fmt.Errorf("pdftotext not available")
	}

	extractCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	cmd := exec.CommandContext(extractCtx, "pdftotext", "-layout", "-", "-")
	cmd.Stdin = bytes.NewReader(content)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("pdftotext failed: %v, stderr: %s", err, stderr.String())
	}

	extractedText := stdout.String()
	if len(extractedText) == 0 {
		return nil, fmt.Errorf("no text extracted by pdftotext")
	}

	return &DocumentResult{
		Text:  extractedText,
		Pages: guessPageCount(extractedText),
	}, nil
}

// extractWithGoPDF uses the pure-Go PDF library for extraction
func (ds *DocumentService) extractWithGoPDF(ctx context.Context, content []byte) (*DocumentResult, error) {
	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("failed to create PDF reader: %w", err)
	}

	var textBuilder strings.Builder
	pages := reader.NumPage()

	for i := 1; i <= pages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		fonts := make(map[string]*pdf.Font)
		text, err := page.GetPlainText(fonts)
		if err != nil {
			fmt.Printf("Warning: failed to extract text from page %d: %v\n", i, err)
			continue
		}

		if textBuilder.Len() > 0 {
			textBuilder.WriteString("\n\n")
		}
		textBuilder.WriteString(text)
	}

	extractedText := textBuilder.String()
	if len(extractedText) == 0 {
		return nil, fmt.Errorf("no text extracted by go-pdf")
	}

	return &DocumentResult{
		Text:  extractedText,
		Pages: pages,
	}, nil
}

// extractWithGemini uploads the PDF and asks the model for a verbatim
// text extraction. Only used when the cheaper local methods come back
// below the quality threshold.
func (ds *DocumentService) extractWithGemini(ctx context.Context, content []byte) (*DocumentResult, error) {
	if ds.geminiClient == nil {
		client, err := genai.NewClient(ctx, option.WithAPIKey(ds.config.GeminiAPIKey))
		if err != nil {
			return nil, fmt.Errorf("failed to create gemini client: %w", err)
		}
		ds.geminiClient = client
	}

	file, err := ds.geminiClient.UploadFile(ctx, "", bytes.NewReader(content), &genai.UploadFileOptions{
		MIMEType: "application/pdf",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload file to gemini: %w", err)
	}
	defer ds.geminiClient.DeleteFile(ctx, file.Name)

	modelName := ds.config.GeminiModel
	if modelName == "" {
		modelName = "gemini-2.0-flash"
	}
	model := ds.geminiClient.GenerativeModel(modelName)
	model.SetTemperature(0.1)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(`You are a precise document text extractor. Extract ALL text content from this PDF exactly as it appears, maintaining original formatting, line breaks, and structure. Do not summarize, interpret, or modify the content. Include headers, footers, captions, and all readable text elements.`)},
	}

	resp, err := model.GenerateContent(ctx,
		genai.FileData{URI: file.URI},
		genai.Text("Extract all text content from this PDF document. Maintain original formatting and structure."),
	)
	if err != nil {
		return nil, fmt.Errorf("gemini text extraction failed: %w", err)
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("no text extracted by gemini")
	}

	var extractedText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if textPart, ok := part.(genai.Text); ok {
			extractedText.WriteString(string(textPart))
		}
	}

	return &DocumentResult{
		Text:  extractedText.String(),
		Pages: guessPageCount(extractedText.String()),
	}, nil
}

// extractDocx pulls the text runs out of the document XML.
func (ds *DocumentService) extractDocx(filePath string) (*DocumentResult, error) {
	r, err := docx.ReadDocxFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open docx: %w", err)
	}
	defer r.Close()

	text := docxXMLText(r.Editable().GetContent())
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("docx contains no extractable text")
	}

	result := &DocumentResult{
		Text:    text,
		Method:  "docx",
		Pages:   1,
		Quality: evaluateTextQuality(text),
	}
	fillTextStats(result)
	return result, nil
}

// extractMarkdown parses the markdown and walks the AST, so formatting
// syntax never leaks into chunks.
func (ds *DocumentService) extractMarkdown(filePath string) (*DocumentResult, error) {
	src, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read markdown file: %w", err)
	}

	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	docNode := md.Parser().Parse(gmtext.NewReader(src))

	var b strings.Builder
	err = ast.Walk(docNode, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Text:
			b.Write(node.Segment.Value(src))
			if node.SoftLineBreak() || node.HardLineBreak() {
				b.WriteByte('\n')
			}
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				b.Write(seg.Value(src))
			}
		default:
			switch n.Kind() {
			case ast.KindParagraph, ast.KindHeading, ast.KindListItem, ast.KindBlockquote:
				if b.Len() > 0 {
					b.WriteByte('\n')
				}
			}
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk markdown AST: %w", err)
	}

	text := strings.TrimSpace(b.String())
	if text == "" {
		return nil, fmt.Errorf("markdown file contains no extractable text")
	}

	result := &DocumentResult{
		Text:    text,
		Method:  "markdown",
		Pages:   1,
		Quality: evaluateTextQuality(text),
	}
	fillTextStats(result)
	return result, nil
}

// extractPlain reads a text file as-is, dropping invalid UTF-8.
func (ds *DocumentService) extractPlain(filePath string) (*DocumentResult, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read text file: %w", err)
	}

	text := strings.TrimSpace(strings.ToValidUTF8(string(data), ""))
	if text == "" {
		return nil, fmt.Errorf("text file is empty")
	}

	result := &DocumentResult{
		Text:    text,
		Method:  "plain",
		Pages:   1,
		Quality: evaluateTextQuality(text),
	}
	fillTextStats(result)
	return result, nil
}

// docxXMLText extracts the text runs (<w:t> elements) from WordprocessingML,
// one line per paragraph.
func docxXMLText(content string) string {
	var lines []string
	for _, para := range strings.Split(content, "</w:p>") {
		var b strings.Builder
		rest := para
		for {
			start := strings.Index(rest, "<w:t")
			if start < 0 {
				break
			}
			rest = rest[start+len("<w:t"):]
			if rest == "" {
				break
			}
			// Reject matches on longer tag names like <w:tab/>
			if c := rest[0]; c != '>' && c != ' ' && c != '/' {
				continue
			}
			open := strings.Index(rest, ">")
			if open < 0 {
				break
			}
			// Self-closing run has no text
			if strings.HasSuffix(rest[:open], "/") {
				rest = rest[open+1:]
				continue
			}
			rest = rest[open+1:]
			end := strings.Index(rest, "</w:t>")
			if end < 0 {
				break
			}
			b.WriteString(html.UnescapeString(rest[:end]))
			rest = rest[end+len("</w:t>"):]
		}
		if line := strings.TrimSpace(b.String()); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

// evaluateTextQuality scores extracted text between 0 and 1, penalizing
// replacement characters and other corruption markers.
func evaluateTextQuality(text string) float64 {
	if len(text) == 0 {
		return 0.0
	}

	text = strings.TrimSpace(text)
	if len(text) < 10 {
		return 0.1
	}

	var alphanumeric, printable, corrupted int

	for _, r := range text {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'):
			alphanumeric++
			printable++
		case r == ' ' || r == '\n' || r == '\t':
			printable++
		case r == '.' || r == ',' || r == ';' || r == ':' || r == '!' || r == '?' || r == '-' || r == '_':
			printable++
		case r == '�':
			corrupted++
		case r >= 32 && r <= 126:
			printable++
		default:
			if r > 127 && !isCommonUnicodeChar(r) {
				corrupted++
			} else {
				printable++
			}
		}
	}

	total := len([]rune(text))
	if total == 0 {
		return 0.0
	}

	alphanumericRatio := float64(alphanumeric) / float64(total)
	printableRatio := float64(printable) / float64(total)
	corruptedRatio := float64(corrupted) / float64(total)

	score := printableRatio * 0.4
	if alphanumericRatio >= 0.3 {
		score += 0.3
	} else {
		score += alphanumericRatio
	}
	score -= corruptedRatio * 2.0
	if len(text) > 100 {
		score += 0.1
	}
	if hasGoodPatterns(text) {
		score += 0.2
	}

	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score
}

func isCommonUnicodeChar(r rune) bool {
	common := []rune{'—', '"', '"', '‘', '’', '…', '€', '£', '¥', '©', '®', '™'}
	for _, c := range common {
		if r == c {
			return true
		}
	}
	return false
}

// hasGoodPatterns checks for patterns that indicate a clean extraction
func hasGoodPatterns(text string) bool {
	patterns := []string{
		`\b[A-Z][a-z]+\b`,       // Capitalized words
		`\b\d{1,3}[,.]?\d{3}\b`, // Numbers with separators
		`[.!?]\s+[A-Z]`,         // Sentence boundaries
		`\b(the|and|or|of|to|in|for|with|on|at|by|from)\b`, // Common words
	}

	goodPatterns := 0
	for _, pattern := range patterns {
		if matched, _ := regexp.MatchString(pattern, text); matched {
			goodPatterns++
		}
	}
	return goodPatterns >= 3
}

// fillTextStats computes word/char counts and a language guess.
func fillTextStats(result *DocumentResult) {
	result.WordCount = len(strings.Fields(result.Text))
	result.CharCount = len(result.Text)
	result.Language = detectLanguage(result.Text)
}

// detectLanguage performs simple stopword-based language detection
func detectLanguage(text string) string {
	lowerText := strings.ToLower(text)

	englishWords := []string{"the", "and", "or", "of", "to", "in", "for", "with", "on", "at"}
	englishCount := 0
	for _, word := range englishWords {
		englishCount += strings.Count(lowerText, " "+word+" ")
	}

	if englishCount > 10 {
		return "en"
	}
	return "unknown"
}

// guessPageCount estimates page count from form feeds or text length.
func guessPageCount(text string) int {
	if feeds := strings.Count(text, "\f"); feeds > 0 {
		return feeds + 1
	}

	charCount := len(text)
	switch {
	case charCount < 1000:
		return 1
	case charCount < 5000:
		return charCount / 2000
	default:
		return charCount / 3000
	}
}
