package services

import (
	"fmt"
	"strings"
	"time"

	"research-board-platform/models"
)

// ChunkingService turns acquired item text into stored chunks. Untimed
// text goes through a fixed overlapping window; timed transcripts are
// merged segment-wise and kept one chunk per merged segment.
type ChunkingService struct {
	maxChars int
	overlap  int
}

// NewChunkingService creates a chunking service. The window must be
// strictly larger than the overlap or the walk would never advance.
func NewChunkingService(maxChars, overlap int) (*ChunkingService, error) {
	if maxChars <= 0 {
		return nil, fmt.Errorf("chunking: max chars must be positive, got %d", maxChars)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("chunking: overlap must not be negative, got %d", overlap)
	}
	if maxChars <= overlap {
		return nil, fmt.Errorf("chunking: max chars (%d) must exceed overlap (%d)", maxChars, overlap)
	}
	return &ChunkingService{maxChars: maxChars, overlap: overlap}, nil
}

// ChunkText splits trimmed text into windows of at most maxChars runes,
// each window sharing overlap runes with its predecessor. Empty or
// whitespace-only input yields no chunks.
func (cs *ChunkingService) ChunkText(text string) []string {
	runes := []rune(strings.TrimSpace(text))
	n := len(runes)
	if n == 0 {
		return nil
	}

	var chunks []string
	start := 0
	for start < n {
		end := start + cs.maxChars
		if end > n {
			end = n
		}
		chunks = append(chunks, string(runes[start:end]))
		if end == n {
			break
		}
		start = end - cs.overlap
		if start < 0 {
			start = 0
		}
	}
	return chunks
}

// MergeSegments greedily coalesces adjacent transcript segments. A
// segment joins the running buffer only when the combined text stays
// within maxChars, the silence between them is at most maxGapSec, and
// the total covered span is at most maxSpanSec. Joined texts are
// separated by a single space. The trailing buffer is always emitted,
// so no input segment is ever dropped.
func MergeSegments(segments []models.Segment, maxChars int, maxGapSec, maxSpanSec float64) []models.Segment {
	if len(segments) == 0 {
		return nil
	}

	merged := make([]models.Segment, 0, len(segments))
	buf := segments[0]
	for _, seg := range segments[1:] {
		spanOK := seg.End-buf.Start <= maxSpanSec
		gapOK := seg.Start-buf.End <= maxGapSec
		charsOK := len([]rune(buf.Text))+1+len([]rune(seg.Text)) <= maxChars
		if spanOK && gapOK && charsOK {
			buf.End = seg.End
			buf.Text = buf.Text + " " + seg.Text
			continue
		}
		merged = append(merged, buf)
		buf = seg
	}
	merged = append(merged, buf)
	return merged
}

// ChunksFromText builds stored chunks for an untimed item. Order is
// dense from 0 and no timestamps are attached.
func (cs *ChunkingService) ChunksFromText(item *models.Item, texts []string) []models.ContentChunk {
	now := time.Now()
	chunks := make([]models.ContentChunk, 0, len(texts))
	for _, text := range texts {
		if strings.TrimSpace(text) == "" {
			continue
		}
		chunks = append(chunks, models.ContentChunk{
			ChunkID:   fmt.Sprintf("%s-%d", item.ID.Hex(), len(chunks)),
			ItemID:    item.ID,
			BoardID:   item.BoardID,
			Text:      text,
			Order:     len(chunks),
			CharCount: len([]rune(text)),
			CreatedAt: now,
		})
	}
	return chunks
}

// ChunksFromSegments builds stored chunks for a timed item, one chunk
// per merged segment, each carrying its span. Order is dense from 0.
func (cs *ChunkingService) ChunksFromSegments(item *models.Item, segments []models.Segment) []models.ContentChunk {
	now := time.Now()
	chunks := make([]models.ContentChunk, 0, len(segments))
	for _, seg := range segments {
		if strings.TrimSpace(seg.Text) == "" {
			continue
		}
		start, end := seg.Start, seg.End
		chunks = append(chunks, models.ContentChunk{
			ChunkID:   fmt.Sprintf("%s-%d", item.ID.Hex(), len(chunks)),
			ItemID:    item.ID,
			BoardID:   item.BoardID,
			Text:      seg.Text,
			Order:     len(chunks),
			CharCount: len([]rune(seg.Text)),
			StartTime: &start,
			EndTime:   &end,
			CreatedAt: now,
		})
	}
	return chunks
}
