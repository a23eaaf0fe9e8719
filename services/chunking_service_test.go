package services

import (
	"strings"
	"testing"

	"research-board-platform/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestNewChunkingServiceValidation(t *testing.T) {
	if _, err := NewChunkingService(100, 100); err == nil {
		t.Fatal("expected error when overlap equals max chars")
	}
	if _, err := NewChunkingService(100, 150); err == nil {
		t.Fatal("expected error when overlap exceeds max chars")
	}
	if _, err := NewChunkingService(0, 0); err == nil {
		t.Fatal("expected error for zero max chars")
	}
	if _, err := NewChunkingService(100, -1); err == nil {
		t.Fatal("expected error for negative overlap")
	}
	if _, err := NewChunkingService(1200, 150); err != nil {
		t.Fatalf("valid settings rejected: %v", err)
	}
}

func TestChunkTextWindowing(t *testing.T) {
	cs, err := NewChunkingService(1200, 150)
	if err != nil {
		t.Fatal(err)
	}

	text := strings.Repeat("A", 2500)
	chunks := cs.ChunkText(text)

	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	wantLens := []int{1200, 1200, 400}
	for i, want := range wantLens {
		if len(chunks[i]) != want {
			t.Errorf("chunk %d: expected length %d, got %d", i, want, len(chunks[i]))
		}
	}

	// Neighbouring windows share exactly the overlap region.
	for i := 1; i < len(chunks); i++ {
		prevTail := chunks[i-1][len(chunks[i-1])-150:]
		nextHead := chunks[i][:150]
		if prevTail != nextHead {
			t.Errorf("chunk %d does not overlap its predecessor by 150 chars", i)
		}
	}
}

func TestChunkTextReconstructsInput(t *testing.T) {
	cs, err := NewChunkingService(50, 10)
	if err != nil {
		t.Fatal(err)
	}

	text := strings.TrimSpace(strings.Repeat("the quick brown fox jumps over the lazy dog ", 20))
	chunks := cs.ChunkText(text)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}

	rebuilt := chunks[0]
	for _, c := range chunks[1:] {
		rebuilt += c[10:]
	}
	if rebuilt != text {
		t.Error("deduplicated windows do not reconstruct the input")
	}
}

func TestChunkTextShortAndEmptyInput(t *testing.T) {
	cs, err := NewChunkingService(1200, 150)
	if err != nil {
		t.Fatal(err)
	}

	if got := cs.ChunkText("hello world"); len(got) != 1 || got[0] != "hello world" {
		t.Errorf("short input: expected single identity chunk, got %v", got)
	}
	if got := cs.ChunkText(""); got != nil {
		t.Errorf("empty input: expected no chunks, got %v", got)
	}
	if got := cs.ChunkText("   \n\t  "); got != nil {
		t.Errorf("whitespace input: expected no chunks, got %v", got)
	}
}

func TestChunkTextMultibyte(t *testing.T) {
	cs, err := NewChunkingService(10, 2)
	if err != nil {
		t.Fatal(err)
	}

	text := strings.Repeat("héllo wörld ", 5)
	chunks := cs.ChunkText(text)
	for i, c := range chunks {
		if !strings.Contains(strings.TrimSpace(text), strings.TrimSpace(c)) && c != "" {
			t.Errorf("chunk %d is not a clean substring: %q", i, c)
		}
		if len([]rune(c)) > 10 {
			t.Errorf("chunk %d exceeds 10 runes: %q", i, c)
		}
	}
}

func TestMergeSegmentsGapAndSpan(t *testing.T) {
	segs := []models.Segment{
		{Start: 0, End: 2, Text: "hi"},
		{Start: 2.1, End: 4, Text: "there"},
		{Start: 70, End: 72, Text: "later"},
	}

	merged := MergeSegments(segs, 600, 2.5, 60)
	if len(merged) != 2 {
		t.Fatalf("expected 2 merged segments, got %d", len(merged))
	}

	first := merged[0]
	if first.Start != 0 || first.End != 4 || first.Text != "hi there" {
		t.Errorf("unexpected first unit: %+v", first)
	}
	second := merged[1]
	if second.Start != 70 || second.End != 72 || second.Text != "later" {
		t.Errorf("unexpected second unit: %+v", second)
	}
}

func TestMergeSegmentsCharBudget(t *testing.T) {
	long := strings.Repeat("x", 400)
	segs := []models.Segment{
		{Start: 0, End: 1, Text: long},
		{Start: 1.2, End: 2, Text: long},
	}

	// 400 + 1 + 400 exceeds the 600-char budget, so no merge happens.
	merged := MergeSegments(segs, 600, 2.5, 60)
	if len(merged) != 2 {
		t.Fatalf("expected char budget to block merge, got %d segments", len(merged))
	}
}

func TestMergeSegmentsPreservesAllText(t *testing.T) {
	segs := []models.Segment{
		{Start: 0, End: 1, Text: "one"},
		{Start: 1.1, End: 2, Text: "two"},
		{Start: 10, End: 11, Text: "three"},
		{Start: 11.1, End: 12, Text: "four"},
	}

	merged := MergeSegments(segs, 600, 2.5, 60)
	var joined []string
	for _, m := range merged {
		joined = append(joined, m.Text)
	}
	if got := strings.Join(joined, " "); got != "one two three four" {
		t.Errorf("merge lost or reordered text: %q", got)
	}
	for _, m := range merged {
		if m.End-m.Start > 60 {
			t.Errorf("merged unit spans %f seconds", m.End-m.Start)
		}
	}
}

func TestMergeSegmentsEmpty(t *testing.T) {
	if got := MergeSegments(nil, 600, 2.5, 60); got != nil {
		t.Errorf("expected nil for empty input, got %v", got)
	}
}

func TestChunksFromSegments(t *testing.T) {
	cs, err := NewChunkingService(1200, 150)
	if err != nil {
		t.Fatal(err)
	}
	item := &models.Item{ID: primitive.NewObjectID(), BoardID: primitive.NewObjectID()}

	segs := []models.Segment{
		{Start: 0, End: 4, Text: "hi there"},
		{Start: 70, End: 72, Text: "later"},
	}
	chunks := cs.ChunksFromSegments(item, segs)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if c.Order != i {
			t.Errorf("chunk %d: order %d not dense", i, c.Order)
		}
		if !c.Timed() {
			t.Errorf("chunk %d: expected both timestamps", i)
		}
		if c.ItemID != item.ID || c.BoardID != item.BoardID {
			t.Errorf("chunk %d: wrong owner ids", i)
		}
	}
	if *chunks[0].StartTime != 0 || *chunks[0].EndTime != 4 {
		t.Errorf("chunk 0 span wrong: %v-%v", *chunks[0].StartTime, *chunks[0].EndTime)
	}
}

func TestChunksFromTextSkipsBlanks(t *testing.T) {
	cs, err := NewChunkingService(1200, 150)
	if err != nil {
		t.Fatal(err)
	}
	item := &models.Item{ID: primitive.NewObjectID(), BoardID: primitive.NewObjectID()}

	chunks := cs.ChunksFromText(item, []string{"alpha", "   ", "beta"})
	if len(chunks) != 2 {
		t.Fatalf("expected blanks skipped, got %d chunks", len(chunks))
	}
	for i, c := range chunks {
		if c.Order != i {
			t.Errorf("chunk %d: order %d not dense after skip", i, c.Order)
		}
		if c.Timed() || c.StartTime != nil || c.EndTime != nil {
			t.Errorf("chunk %d: untimed chunk carries timestamps", i)
		}
	}
}
