package transcript

import (
	"context"
	"errors"
	"testing"

	"research-board-platform/models"
)

type stubTier struct {
	name  string
	res   *Result
	err   error
	calls int
}

func (s *stubTier) Name() string { return s.name }

func (s *stubTier) Acquire(ctx context.Context, sourceURL string) (*Result, error) {
	s.calls++
	return s.res, s.err
}

func TestCascadeReturnsFirstUsableResult(t *testing.T) {
	first := &stubTier{name: "captions", res: &Result{
		Segments: []models.Segment{{Start: 0, End: 2, Text: "hello"}},
	}}
	second := &stubTier{name: "autosubs", res: &Result{Text: "unused"}}

	c, err := NewCascade(first, second)
	if err != nil {
		t.Fatalf("NewCascade returned error: %v", err)
	}
	res, err := c.Acquire(context.Background(), "https://example.com/v")
	if err != nil {
		t.Fatalf("Acquire returned error: %v", err)
	}
	if res.Tier != "captions" {
		t.Errorf("expected winning tier captions, got %q", res.Tier)
	}
	if second.calls != 0 {
		t.Errorf("expected later tiers untouched, second tier called %d times", second.calls)
	}
}

func TestCascadeFallsThroughOnErrorAndEmptyResult(t *testing.T) {
	failing := &stubTier{name: "captions", err: errors.New("no tracks")}
	empty := &stubTier{name: "autosubs", res: &Result{}}
	last := &stubTier{name: "audio", res: &Result{Text: "transcript"}}

	c, err := NewCascade(failing, empty, last)
	if err != nil {
		t.Fatalf("NewCascade returned error: %v", err)
	}
	res, err := c.Acquire(context.Background(), "https://example.com/v")
	if err != nil {
		t.Fatalf("Acquire returned error: %v", err)
	}
	if res.Tier != "audio" {
		t.Errorf("expected audio tier to win, got %q", res.Tier)
	}
	if failing.calls != 1 || empty.calls != 1 || last.calls != 1 {
		t.Errorf("expected each tier tried once, got %d/%d/%d",
			failing.calls, empty.calls, last.calls)
	}
	if res.PlainText() != "transcript" {
		t.Errorf("unexpected text %q", res.PlainText())
	}
}

func TestCascadeLastTierFailureIsTerminal(t *testing.T) {
	sentinel := errors.New("stt unavailable")
	c, err := NewCascade(
		&stubTier{name: "captions", err: errors.New("no tracks")},
		&stubTier{name: "audio", err: sentinel},
	)
	if err != nil {
		t.Fatalf("NewCascade returned error: %v", err)
	}

	_, err = c.Acquire(context.Background(), "https://example.com/v")
	var tf *TotalFailure
	if !errors.As(err, &tf) {
		t.Fatalf("expected TotalFailure, got %v", err)
	}
	if tf.Tier != "audio" {
		t.Errorf("expected failing tier audio, got %q", tf.Tier)
	}
	if !errors.Is(err, sentinel) {
		t.Errorf("expected last tier error to surface, got %v", err)
	}
}

func TestCascadeEmptyLastTierIsTerminal(t *testing.T) {
	c, err := NewCascade(&stubTier{name: "only", res: &Result{Text: "   "}})
	if err != nil {
		t.Fatalf("NewCascade returned error: %v", err)
	}
	_, err = c.Acquire(context.Background(), "https://example.com/v")
	var tf *TotalFailure
	if !errors.As(err, &tf) {
		t.Fatalf("expected TotalFailure for blank-only output, got %v", err)
	}
}

func TestNewCascadeRequiresTiers(t *testing.T) {
	if _, err := NewCascade(); err == nil {
		t.Fatal("expected error for empty tier list")
	}
}

func TestResultPlainTextJoinsSegments(t *testing.T) {
	r := &Result{Segments: []models.Segment{
		{Start: 0, End: 1, Text: "one"},
		{Start: 1, End: 2, Text: "two"},
	}}
	if got := r.PlainText(); got != "one two" {
		t.Errorf("expected %q, got %q", "one two", got)
	}
}
