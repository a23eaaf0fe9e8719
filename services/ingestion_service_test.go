package services

import (
	"testing"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"research-board-platform/internal/config"
	"research-board-platform/models"
)

func newTestIngestion(t *testing.T) *IngestionService {
	t.Helper()
	chunker, err := NewChunkingService(1200, 200)
	if err != nil {
		t.Fatalf("NewChunkingService: %v", err)
	}
	return &IngestionService{
		config: &config.Config{
			MergeMaxChars:   1000,
			MergeMaxGapSec:  8,
			MergeMaxSpanSec: 120,
		},
		chunker: chunker,
	}
}

func TestBuildChunksFromSegmentsKeepsTimestamps(t *testing.T) {
	is := newTestIngestion(t)
	item := &models.Item{ID: primitive.NewObjectID(), BoardID: primitive.NewObjectID()}
	acquired := &acquiredContent{
		segments: []models.Segment{
			{Start: 0, End: 4, Text: "intro to the lecture"},
			{Start: 4.5, End: 9, Text: "first definition"},
			{Start: 300, End: 305, Text: "closing remarks"},
		},
	}

	chunks := is.buildChunks(item, acquired)
	if len(chunks) != 2 {
		t.Fatalf("expected merge into 2 chunks, got %d", len(chunks))
	}
	first := chunks[0]
	if first.StartTime == nil || first.EndTime == nil {
		t.Fatal("expected timestamps on segment-derived chunks")
	}
	if *first.StartTime != 0 || *first.EndTime != 9 {
		t.Errorf("merged span = [%v, %v], want [0, 9]", *first.StartTime, *first.EndTime)
	}
	if first.Text != "intro to the lecture first definition" {
		t.Errorf("merged text = %q", first.Text)
	}
	if chunks[1].Order != 1 {
		t.Errorf("second chunk order = %d, want 1", chunks[1].Order)
	}
}

func TestBuildChunksFromTextHasNoTimestamps(t *testing.T) {
	is := newTestIngestion(t)
	item := &models.Item{ID: primitive.NewObjectID(), BoardID: primitive.NewObjectID()}
	acquired := &acquiredContent{text: "a plain article body with no timing information"}

	chunks := is.buildChunks(item, acquired)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].StartTime != nil || chunks[0].EndTime != nil {
		t.Error("text-derived chunks must not carry timestamps")
	}
	if chunks[0].ItemID != item.ID || chunks[0].BoardID != item.BoardID {
		t.Error("chunk must inherit item and board ids")
	}
}

func TestBuildChunksEmptyContent(t *testing.T) {
	is := newTestIngestion(t)
	item := &models.Item{ID: primitive.NewObjectID(), BoardID: primitive.NewObjectID()}

	if got := is.buildChunks(item, &acquiredContent{text: "   "}); len(got) != 0 {
		t.Errorf("whitespace text produced %d chunks, want 0", len(got))
	}
	if got := is.buildChunks(item, &acquiredContent{}); len(got) != 0 {
		t.Errorf("empty acquisition produced %d chunks, want 0", len(got))
	}
}

func TestVideoContainerDetection(t *testing.T) {
	cases := map[string]bool{
		"lecture.mp4":  true,
		"LECTURE.MP4":  true,
		"talk.webm":    true,
		"raw.mkv":      true,
		"clip.mov":     true,
		"episode.mp3":  false,
		"memo.m4a":     false,
		"podcast.wav":  false,
		"notes.ogg":    false,
		"no-extension": false,
	}
	for name, want := range cases {
		got := videoContainers[lowerExt(name)]
		if got != want {
			t.Errorf("videoContainers[%q] = %v, want %v", name, got, want)
		}
	}
}
