package transcript

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
)

// YtDlpOptions configures the external downloader invocations shared
// by the auto-subtitle and audio tiers.
type YtDlpOptions struct {
	YtDlpPath  string
	FFmpegPath string
	TempDir    string
}

func (o YtDlpOptions) ytDlp() string {
	if o.YtDlpPath != "" {
		return o.YtDlpPath
	}
	return "yt-dlp"
}

// AutoSubsTier downloads auto-generated subtitles with yt-dlp and
// parses the resulting VTT file.
type AutoSubsTier struct {
	opts YtDlpOptions
}

// NewAutoSubsTier creates the auto-subtitle acquisition tier.
func NewAutoSubsTier(opts YtDlpOptions) *AutoSubsTier {
	return &AutoSubsTier{opts: opts}
}

// Name implements Tier.
func (t *AutoSubsTier) Name() string { return "ytdlp-autosubs" }

// Acquire implements Tier.
func (t *AutoSubsTier) Acquire(ctx context.Context, sourceURL string) (*Result, error) {
	workDir, err := os.MkdirTemp(t.opts.TempDir, "autosubs-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	args := []string{
		"--skip-download",
		"--write-subs",
		"--write-auto-subs",
		"--sub-langs", "en,en.*",
		"--sub-format", "vtt",
		"--output", filepath.Join(workDir, "%(id)s.%(ext)s"),
		sourceURL,
	}
	if err := runCommand(ctx, t.opts.ytDlp(), args...); err != nil {
		return nil, err
	}

	vttPath, err := findByExtension(workDir, ".vtt")
	if err != nil {
		return nil, err
	}
	f, err := os.Open(vttPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return &Result{Segments: ParseVTT(f)}, nil
}

// AudioTranscriptionTier downloads the audio track with yt-dlp and
// sends it through speech-to-text. This is the last resort tier.
type AudioTranscriptionTier struct {
	opts          YtDlpOptions
	stt           SpeechToText
	primaryModel  string
	fallbackModel string
}

// NewAudioTranscriptionTier creates the audio download plus
// transcription tier.
func NewAudioTranscriptionTier(opts YtDlpOptions, stt SpeechToText, primaryModel, fallbackModel string) *AudioTranscriptionTier {
	return &AudioTranscriptionTier{
		opts:          opts,
		stt:           stt,
		primaryModel:  primaryModel,
		fallbackModel: fallbackModel,
	}
}

// Name implements Tier.
func (t *AudioTranscriptionTier) Name() string { return "audio-transcription" }

// Acquire implements Tier.
func (t *AudioTranscriptionTier) Acquire(ctx context.Context, sourceURL string) (*Result, error) {
	workDir, err := os.MkdirTemp(t.opts.TempDir, "audiotx-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	args := []string{
		"-f", "bestaudio/best",
		"--extract-audio",
		"--audio-format", "m4a",
		"--output", filepath.Join(workDir, "%(id)s.%(ext)s"),
	}
	if t.opts.FFmpegPath != "" {
		args = append(args, "--ffmpeg-location", t.opts.FFmpegPath)
	}
	args = append(args, sourceURL)
	if err := runCommand(ctx, t.opts.ytDlp(), args...); err != nil {
		return nil, err
	}

	audioPath, err := findByExtension(workDir, ".m4a")
	if err != nil {
		return nil, fmt.Errorf("audio download produced no m4a file: %w", err)
	}

	tx, err := TranscribeWithRetry(ctx, t.stt, audioPath, t.primaryModel, t.fallbackModel)
	if err != nil {
		return nil, err
	}
	return &Result{Segments: tx.Segments, Text: tx.Text}, nil
}

// ExtractAudio converts an uploaded media file to m4a with ffmpeg so
// it can be transcribed. The caller owns both paths.
func ExtractAudio(ctx context.Context, ffmpegPath, inputPath, outputPath string) error {
	bin := ffmpegPath
	if bin == "" {
		bin = "ffmpeg"
	}
	return runCommand(ctx, bin,
		"-y",
		"-i", inputPath,
		"-vn",
		"-acodec", "aac",
		outputPath,
	)
}

// runCommand executes an external binary and folds stderr into the
// returned error on failure.
func runCommand(ctx context.Context, bin string, args ...string) error {
	cmd := exec.CommandContext(ctx, bin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	cmd.Stdout = nil

	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if len(detail) > 500 {
			detail = detail[len(detail)-500:]
		}
		if detail != "" {
			return fmt.Errorf("%s failed: %w: %s", filepath.Base(bin), err, detail)
		}
		return fmt.Errorf("%s failed: %w", filepath.Base(bin), err)
	}
	return nil
}

// findByExtension returns the first file in dir with the given
// extension, in lexical order.
func findByExtension(dir, ext string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	var matches []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(e.Name()), ext) {
			matches = append(matches, filepath.Join(dir, e.Name()))
		}
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("no %s file found in %s", ext, dir)
	}
	sort.Strings(matches)
	return matches[0], nil
}
