package transcript

import (
	"context"
	"fmt"

	"research-board-platform/internal/logger"
	"research-board-platform/models"
)

// Transcription is the speech-to-text output for one audio file.
// Segments may be empty when the provider returns plain text only.
type Transcription struct {
	Text     string
	Segments []models.Segment
}

// SpeechToText transcribes a local audio file with a named model.
type SpeechToText interface {
	Transcribe(ctx context.Context, audioPath, model string) (*Transcription, error)
}

// primary model attempts before switching to the fallback model
const primaryAttempts = 2

// TranscribeWithRetry tries the primary model twice, then the
// fallback model once. The error of the final failed attempt is
// returned, whichever model produced it.
func TranscribeWithRetry(ctx context.Context, stt SpeechToText, audioPath, primaryModel, fallbackModel string) (*Transcription, error) {
	if stt == nil {
		return nil, fmt.Errorf("no speech-to-text client configured")
	}

	var lastErr error
	for attempt := 1; attempt <= primaryAttempts; attempt++ {
		tx, err := stt.Transcribe(ctx, audioPath, primaryModel)
		if err == nil {
			return tx, nil
		}
		lastErr = err
		logger.Warn("Transcription attempt failed",
			"model", primaryModel,
			"attempt", attempt,
			"error", err)
	}

	if fallbackModel != "" && fallbackModel != primaryModel {
		tx, err := stt.Transcribe(ctx, audioPath, fallbackModel)
		if err == nil {
			return tx, nil
		}
		lastErr = err
		logger.Warn("Fallback transcription failed",
			"model", fallbackModel,
			"error", err)
	}

	return nil, fmt.Errorf("transcription failed after retries: %w", lastErr)
}

// NewVideoCascade assembles the standard three-tier video text
// acquisition chain: official captions, downloaded auto-subtitles,
// audio transcription.
func NewVideoCascade(userAgent string, opts YtDlpOptions, stt SpeechToText, primaryModel, fallbackModel string) (*Cascade, error) {
	return NewCascade(
		NewCaptionClient(userAgent),
		NewAutoSubsTier(opts),
		NewAudioTranscriptionTier(opts, stt, primaryModel, fallbackModel),
	)
}
