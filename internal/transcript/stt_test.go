package transcript

import (
	"context"
	"errors"
	"testing"
)

type scriptedSTT struct {
	calls []string
	errs  []error
	tx    *Transcription
}

func (s *scriptedSTT) Transcribe(ctx context.Context, audioPath, model string) (*Transcription, error) {
	i := len(s.calls)
	s.calls = append(s.calls, model)
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	return s.tx, nil
}

func TestTranscribeWithRetryPrimarySucceeds(t *testing.T) {
	stt := &scriptedSTT{tx: &Transcription{Text: "hello"}}
	tx, err := TranscribeWithRetry(context.Background(), stt, "a.m4a", "model-a", "model-b")
	if err != nil {
		t.Fatalf("TranscribeWithRetry returned error: %v", err)
	}
	if tx.Text != "hello" {
		t.Errorf("unexpected text %q", tx.Text)
	}
	if len(stt.calls) != 1 || stt.calls[0] != "model-a" {
		t.Errorf("expected one primary call, got %v", stt.calls)
	}
}

func TestTranscribeWithRetryFallsBackAfterTwoFailures(t *testing.T) {
	boom := errors.New("boom")
	stt := &scriptedSTT{errs: []error{boom, boom}, tx: &Transcription{Text: "recovered"}}
	tx, err := TranscribeWithRetry(context.Background(), stt, "a.m4a", "model-a", "model-b")
	if err != nil {
		t.Fatalf("TranscribeWithRetry returned error: %v", err)
	}
	if tx.Text != "recovered" {
		t.Errorf("unexpected text %q", tx.Text)
	}
	want := []string{"model-a", "model-a", "model-b"}
	if len(stt.calls) != len(want) {
		t.Fatalf("expected calls %v, got %v", want, stt.calls)
	}
	for i := range want {
		if stt.calls[i] != want[i] {
			t.Errorf("call %d: expected %q, got %q", i, want[i], stt.calls[i])
		}
	}
}

func TestTranscribeWithRetryReportsFinalError(t *testing.T) {
	primaryErr := errors.New("primary down")
	fallbackErr := errors.New("fallback down")
	stt := &scriptedSTT{errs: []error{primaryErr, primaryErr, fallbackErr}}
	_, err := TranscribeWithRetry(context.Background(), stt, "a.m4a", "model-a", "model-b")
	if err == nil {
		t.Fatal("expected error when every attempt fails")
	}
	if !errors.Is(err, fallbackErr) {
		t.Errorf("expected the fallback failure to surface, got %v", err)
	}
	if len(stt.calls) != 3 {
		t.Errorf("expected 3 attempts, got %d", len(stt.calls))
	}
}

func TestTranscribeWithRetrySkipsIdenticalFallback(t *testing.T) {
	boom := errors.New("boom")
	stt := &scriptedSTT{errs: []error{boom, boom, boom}}
	_, err := TranscribeWithRetry(context.Background(), stt, "a.m4a", "model-a", "model-a")
	if err == nil {
		t.Fatal("expected error")
	}
	if len(stt.calls) != 2 {
		t.Errorf("expected fallback skipped when it matches the primary, got %d calls", len(stt.calls))
	}
}

func TestTranscribeWithRetryNilClient(t *testing.T) {
	if _, err := TranscribeWithRetry(context.Background(), nil, "a.m4a", "m", ""); err == nil {
		t.Fatal("expected error for missing client")
	}
}
