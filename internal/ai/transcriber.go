package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"research-board-platform/internal/config"
	"research-board-platform/internal/transcript"
	"research-board-platform/models"
)

// TranscriberClient talks to a Whisper-compatible transcription API.
// It implements transcript.SpeechToText.
type TranscriberClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// NewTranscriberClient creates a transcription client. The STT key
// falls back to the OpenAI key when unset.
func NewTranscriberClient(cfg *config.Config) *TranscriberClient {
	baseURL := cfg.STTBaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	apiKey := cfg.STTAPIKey
	if apiKey == "" {
		apiKey = cfg.OpenAIAPIKey
	}
	timeout := time.Duration(cfg.STTTimeout) * time.Second
	if cfg.STTTimeout <= 0 {
		timeout = 5 * time.Minute // long audio takes time
	}

	return &TranscriberClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
	}
}

// transcriptionResponse is the verbose_json payload shape.
type transcriptionResponse struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
}

// IsHealthy checks that the API answers authenticated requests.
func (c *TranscriberClient) IsHealthy(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/v1/models", nil)
	if err != nil {
		return false, fmt.Errorf("failed to create health check request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("health check request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("transcription service unhealthy: status %d", resp.StatusCode)
	}
	return true, nil
}

// Transcribe sends a local audio file for transcription with the given
// model and returns text plus segment timings when the API provides
// them.
func (c *TranscriberClient) Transcribe(ctx context.Context, audioPath, model string) (*transcript.Transcription, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("no transcription API key configured")
	}

	f, err := os.Open(audioPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio file: %w", err)
	}
	defer f.Close()

	// Prepare multipart form data
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	fileWriter, err := writer.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(fileWriter, f); err != nil {
		return nil, fmt.Errorf("failed to copy audio data: %w", err)
	}

	writer.WriteField("model", model)
	writer.WriteField("response_format", "verbose_json")

	writer.Close()

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/v1/audio/transcriptions", &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create transcription request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("transcription request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("transcription failed with status %d: %s", resp.StatusCode, string(body))
	}

	var tr transcriptionResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("failed to decode transcription response: %w", err)
	}

	out := &transcript.Transcription{Text: strings.TrimSpace(tr.Text)}
	for _, s := range tr.Segments {
		text := strings.TrimSpace(s.Text)
		if text == "" {
			continue
		}
		out.Segments = append(out.Segments, models.Segment{
			Start: s.Start,
			End:   s.End,
			Text:  text,
		})
	}
	if out.Text == "" && len(out.Segments) == 0 {
		return nil, fmt.Errorf("transcription returned no text")
	}
	return out, nil
}
