package transcript

import (
	"strings"
	"testing"
)

func TestParseVTTBasicCue(t *testing.T) {
	doc := "WEBVTT\n\n00:00:01.000 --> 00:00:03.000\nHello world\n"
	segments := ParseVTT(strings.NewReader(doc))
	if len(segments) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(segments))
	}
	s := segments[0]
	if s.Start != 1.0 || s.End != 3.0 {
		t.Errorf("expected span 1.0-3.0, got %v-%v", s.Start, s.End)
	}
	if s.Text != "Hello world" {
		t.Errorf("expected text %q, got %q", "Hello world", s.Text)
	}
}

func TestParseVTTSkipsHeaderMetadataAndCounters(t *testing.T) {
	doc := strings.Join([]string{
		"WEBVTT",
		"Kind: captions",
		"Language: en",
		"",
		"1",
		"00:00:00.000 --> 00:00:02.000",
		"first cue",
		"",
		"2",
		"00:00:02.000 --> 00:00:04.500",
		"second cue",
		"",
	}, "\n")
	segments := ParseVTT(strings.NewReader(doc))
	if len(segments) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(segments))
	}
	if segments[0].Text != "first cue" || segments[1].Text != "second cue" {
		t.Errorf("unexpected texts: %q, %q", segments[0].Text, segments[1].Text)
	}
	if segments[1].End != 4.5 {
		t.Errorf("expected second cue to end at 4.5, got %v", segments[1].End)
	}
}

func TestParseVTTStripsTagsAndEntities(t *testing.T) {
	doc := "WEBVTT\n\n00:00:00.000 --> 00:00:02.000\n<c>Ask</c> &amp; <00:00:01.200>answer\n"
	segments := ParseVTT(strings.NewReader(doc))
	if len(segments) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(segments))
	}
	if segments[0].Text != "Ask & answer" {
		t.Errorf("expected %q, got %q", "Ask & answer", segments[0].Text)
	}
}

func TestParseVTTJoinsMultiLinePayload(t *testing.T) {
	doc := "WEBVTT\n\n00:01:00.000 --> 00:01:04.000\nline one\nline   two\n"
	segments := ParseVTT(strings.NewReader(doc))
	if len(segments) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(segments))
	}
	if segments[0].Text != "line one line two" {
		t.Errorf("expected joined payload, got %q", segments[0].Text)
	}
	if segments[0].Start != 60.0 {
		t.Errorf("expected start 60.0, got %v", segments[0].Start)
	}
}

func TestParseVTTCollapsesRepeatedCues(t *testing.T) {
	// Rolling auto-captions repeat each line in back-to-back cues.
	doc := strings.Join([]string{
		"WEBVTT",
		"",
		"00:00:00.000 --> 00:00:02.000",
		"so today we",
		"",
		"00:00:02.000 --> 00:00:04.000",
		"so today we",
		"",
		"00:00:04.000 --> 00:00:06.000",
		"will look at",
		"",
	}, "\n")
	segments := ParseVTT(strings.NewReader(doc))
	if len(segments) != 2 {
		t.Fatalf("expected duplicates collapsed to 2 segments, got %d", len(segments))
	}
	if segments[0].Start != 0 || segments[0].End != 4.0 {
		t.Errorf("expected collapsed span 0-4, got %v-%v", segments[0].Start, segments[0].End)
	}
	if segments[1].Text != "will look at" {
		t.Errorf("unexpected second segment text %q", segments[1].Text)
	}
}

func TestParseVTTEmptyAndGarbageInput(t *testing.T) {
	if got := ParseVTT(strings.NewReader("")); len(got) != 0 {
		t.Errorf("expected no segments for empty input, got %d", len(got))
	}
	if got := ParseVTT(strings.NewReader("WEBVTT\n\nno timings here\n")); len(got) != 0 {
		t.Errorf("expected no segments without cue timings, got %d", len(got))
	}
}
