package transcript

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestExtractVideoID(t *testing.T) {
	cases := []struct {
		url  string
		want string
	}{
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ&t=42s", "dQw4w9WgXcQ"},
		{"https://youtu.be/dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"https://youtu.be/dQw4w9WgXcQ?si=shared", "dQw4w9WgXcQ"},
		{"https://www.youtube.com/embed/dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"https://www.youtube.com/shorts/dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"https://www.youtube.com/live/dQw4w9WgXcQ", "dQw4w9WgXcQ"},
	}
	for _, tc := range cases {
		got, err := ExtractVideoID(tc.url)
		if err != nil {
			t.Errorf("ExtractVideoID(%q) returned error: %v", tc.url, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ExtractVideoID(%q) = %q, want %q", tc.url, got, tc.want)
		}
	}
}

func TestExtractVideoIDRejectsNonVideoURL(t *testing.T) {
	for _, u := range []string{
		"https://example.com/page",
		"https://www.youtube.com/feed/library",
		"plain text",
	} {
		if _, err := ExtractVideoID(u); err == nil {
			t.Errorf("expected error for %q", u)
		}
	}
}

func TestPickCaptionTrack(t *testing.T) {
	manualEN := captionTrack{LanguageCode: "en", Kind: ""}
	asrEN := captionTrack{LanguageCode: "en", Kind: "asr"}
	manualFR := captionTrack{LanguageCode: "fr", Kind: ""}
	asrDE := captionTrack{LanguageCode: "de", Kind: "asr"}

	got := pickCaptionTrack([]captionTrack{asrDE, manualFR, asrEN, manualEN})
	if got == nil || got.LanguageCode != "en" || got.Kind != "" {
		t.Fatalf("expected manual English track, got %+v", got)
	}

	got = pickCaptionTrack([]captionTrack{manualFR, asrEN})
	if got == nil || got.LanguageCode != "en" {
		t.Fatalf("expected English track over translated manual one, got %+v", got)
	}

	got = pickCaptionTrack([]captionTrack{asrDE, manualFR})
	if got == nil || got.LanguageCode != "fr" {
		t.Fatalf("expected human-authored track over auto-generated, got %+v", got)
	}

	if pickCaptionTrack(nil) != nil {
		t.Fatal("expected nil for empty track list")
	}
}

func TestFetchTrackSegments(t *testing.T) {
	payload := `{"events":[` +
		`{"tStartMs":0,"dDurationMs":2000,"segs":[{"utf8":"Hello "},{"utf8":"world"}]},` +
		`{"tStartMs":2500,"dDurationMs":1500,"segs":[{"utf8":"\n"}]},` +
		`{"tStartMs":4000,"dDurationMs":1000,"segs":[{"utf8":"bye"}]}]}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("fmt") != "json3" {
			t.Errorf("expected fmt=json3 query, got %q", r.URL.RawQuery)
		}
		fmt.Fprint(w, payload)
	}))
	defer srv.Close()

	client := NewCaptionClient("test-agent")
	segments, err := client.fetchTrackSegments(context.Background(), srv.URL+"/timedtext?lang=en")
	if err != nil {
		t.Fatalf("fetchTrackSegments returned error: %v", err)
	}
	if len(segments) != 2 {
		t.Fatalf("expected 2 segments (blank event dropped), got %d", len(segments))
	}
	if segments[0].Text != "Hello world" || segments[0].Start != 0 || segments[0].End != 2 {
		t.Errorf("unexpected first segment: %+v", segments[0])
	}
	if segments[1].Text != "bye" || segments[1].Start != 4 || segments[1].End != 5 {
		t.Errorf("unexpected second segment: %+v", segments[1])
	}
}
