package services

import (
	"strings"
	"testing"

	"research-board-platform/models"
)

func floatPtr(v float64) *float64 { return &v }

func TestFormatTimestamp(t *testing.T) {
	cases := []struct {
		in   *float64
		want string
	}{
		{nil, "00:00"},
		{floatPtr(0), "00:00"},
		{floatPtr(65), "01:05"},
		{floatPtr(599.9), "09:59"},
		// Minutes keep counting past the hour instead of wrapping.
		{floatPtr(3700), "61:40"},
	}
	for _, c := range cases {
		if got := formatTimestamp(c.in); got != c.want {
			t.Errorf("formatTimestamp(%v) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestFormatContextBlockWithTimestamps(t *testing.T) {
	c := models.ContextPiece{
		Text:      "the speaker introduces the topic",
		StartTime: floatPtr(30),
		EndTime:   floatPtr(95),
	}
	want := "[00:30-01:35] the speaker introduces the topic"
	if got := formatContextBlock(c); got != want {
		t.Errorf("formatContextBlock = %q, want %q", got, want)
	}
}

func TestFormatContextBlockPartialTimestamps(t *testing.T) {
	// One known endpoint is enough to emit the range; the missing side
	// renders as 00:00.
	c := models.ContextPiece{Text: "tail", StartTime: nil, EndTime: floatPtr(12)}
	if got := formatContextBlock(c); got != "[00:00-00:12] tail" {
		t.Errorf("formatContextBlock = %q", got)
	}

	c = models.ContextPiece{Text: "head", StartTime: floatPtr(12), EndTime: nil}
	if got := formatContextBlock(c); got != "[00:12-00:00] head" {
		t.Errorf("formatContextBlock = %q", got)
	}
}

func TestFormatContextBlockBareText(t *testing.T) {
	c := models.ContextPiece{Text: "no timing at all"}
	if got := formatContextBlock(c); got != "no timing at all" {
		t.Errorf("formatContextBlock = %q", got)
	}
}

func TestRenderContextsJoinsWithBlankLine(t *testing.T) {
	contexts := []models.ContextPiece{
		{Text: "first"},
		{Text: "second", StartTime: floatPtr(0), EndTime: floatPtr(4)},
	}
	got := RenderContexts(contexts)
	want := "first\n\n[00:00-00:04] second"
	if got != want {
		t.Errorf("RenderContexts = %q, want %q", got, want)
	}
}

func TestRenderContextsTruncates(t *testing.T) {
	contexts := []models.ContextPiece{
		{Text: strings.Repeat("a", maxContextChars)},
		{Text: "overflow"},
	}
	got := RenderContexts(contexts)
	if len([]rune(got)) != maxContextChars {
		t.Fatalf("expected %d chars, got %d", maxContextChars, len([]rune(got)))
	}
	if strings.Contains(got, "overflow") {
		t.Error("expected overflow text to be cut off")
	}
}

func TestRenderContextsEmpty(t *testing.T) {
	if got := RenderContexts(nil); got != "" {
		t.Errorf("expected empty render, got %q", got)
	}
}
