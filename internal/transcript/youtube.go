package transcript

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"research-board-platform/models"
)

var videoIDPattern = regexp.MustCompile(`(?:(?:[?&]v=)|(?:/embed/)|(?:/shorts/)|(?:youtu\.be/))([A-Za-z0-9_-]{11})`)

// ExtractVideoID pulls the 11-char video id out of the common URL
// shapes: watch?v=, youtu.be/, /embed/, /shorts/, /live/.
func ExtractVideoID(rawURL string) (string, error) {
	if u, err := url.Parse(rawURL); err == nil {
		if v := u.Query().Get("v"); len(v) >= 11 {
			return v[:11], nil
		}
		host := strings.ToLower(u.Host)
		parts := strings.Split(strings.Trim(u.Path, "/"), "/")
		if strings.Contains(host, "youtu.be") && len(parts) > 0 && len(parts[0]) >= 11 {
			return parts[0][:11], nil
		}
		if len(parts) >= 2 && len(parts[1]) >= 11 {
			switch parts[0] {
			case "embed", "shorts", "live":
				return parts[1][:11], nil
			}
		}
	}
	if m := videoIDPattern.FindStringSubmatch(rawURL); m != nil {
		return m[1], nil
	}
	return "", fmt.Errorf("no video id found in %q", rawURL)
}

// CaptionClient talks to the video platform's caption endpoints: the
// watch page for the track list, then the timedtext URL in json3 form.
type CaptionClient struct {
	httpClient *http.Client
	userAgent  string
}

// NewCaptionClient creates a caption client with the given request
// identity.
func NewCaptionClient(userAgent string) *CaptionClient {
	return &CaptionClient{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		userAgent:  userAgent,
	}
}

// captionTrack is one entry of the player response track list.
type captionTrack struct {
	BaseURL      string `json:"baseUrl"`
	LanguageCode string `json:"languageCode"`
	Kind         string `json:"kind"` // "asr" marks auto-generated tracks
	Name         struct {
		SimpleText string `json:"simpleText"`
	} `json:"name"`
}

type playerResponse struct {
	Captions struct {
		PlayerCaptionsTracklistRenderer struct {
			CaptionTracks []captionTrack `json:"captionTracks"`
		} `json:"playerCaptionsTracklistRenderer"`
	} `json:"captions"`
}

// json3 timedtext payload.
type timedTextEvents struct {
	Events []struct {
		StartMs    int64 `json:"tStartMs"`
		DurationMs int64 `json:"dDurationMs"`
		Segs       []struct {
			UTF8 string `json:"utf8"`
		} `json:"segs"`
	} `json:"events"`
}

// Name implements Tier.
func (c *CaptionClient) Name() string { return "official-captions" }

// Acquire fetches the watch page, picks the best caption track and
// downloads it as json3 events converted to segments.
func (c *CaptionClient) Acquire(ctx context.Context, sourceURL string) (*Result, error) {
	videoID, err := ExtractVideoID(sourceURL)
	if err != nil {
		return nil, err
	}

	tracks, err := c.listCaptionTracks(ctx, videoID)
	if err != nil {
		return nil, err
	}
	track := pickCaptionTrack(tracks)
	if track == nil {
		return nil, fmt.Errorf("video %s has no caption tracks", videoID)
	}

	segments, err := c.fetchTrackSegments(ctx, track.BaseURL)
	if err != nil {
		return nil, err
	}
	return &Result{Segments: segments}, nil
}

func (c *CaptionClient) listCaptionTracks(ctx context.Context, videoID string) ([]captionTrack, error) {
	watchURL := "https://www.youtube.com/watch?v=" + videoID
	body, err := c.get(ctx, watchURL)
	if err != nil {
		return nil, err
	}

	const marker = "ytInitialPlayerResponse = "
	idx := strings.Index(body, marker)
	if idx < 0 {
		return nil, fmt.Errorf("player response not found on watch page for %s", videoID)
	}

	// The decoder stops after the first complete JSON value, so the
	// trailing script text does not matter.
	var pr playerResponse
	dec := json.NewDecoder(strings.NewReader(body[idx+len(marker):]))
	if err := dec.Decode(&pr); err != nil {
		return nil, fmt.Errorf("malformed player response for %s: %w", videoID, err)
	}
	return pr.Captions.PlayerCaptionsTracklistRenderer.CaptionTracks, nil
}

// pickCaptionTrack prefers human-authored tracks over auto-generated
// ones and English over other languages, then falls back to the first
// listed track.
func pickCaptionTrack(tracks []captionTrack) *captionTrack {
	if len(tracks) == 0 {
		return nil
	}
	var bestScore = -1
	var best *captionTrack
	for i := range tracks {
		t := &tracks[i]
		score := 0
		if t.Kind != "asr" {
			score += 2
		}
		if strings.HasPrefix(strings.ToLower(t.LanguageCode), "en") {
			score += 4
		}
		if score > bestScore {
			bestScore = score
			best = t
		}
	}
	return best
}

func (c *CaptionClient) fetchTrackSegments(ctx context.Context, baseURL string) ([]models.Segment, error) {
	sep := "?"
	if strings.Contains(baseURL, "?") {
		sep = "&"
	}
	body, err := c.get(ctx, baseURL+sep+"fmt=json3")
	if err != nil {
		return nil, err
	}

	var tt timedTextEvents
	if err := json.Unmarshal([]byte(body), &tt); err != nil {
		return nil, fmt.Errorf("malformed timedtext payload: %w", err)
	}

	var segments []models.Segment
	for _, ev := range tt.Events {
		var parts []string
		for _, seg := range ev.Segs {
			parts = append(parts, seg.UTF8)
		}
		text := strings.TrimSpace(whitespaceRuns.ReplaceAllString(strings.Join(parts, ""), " "))
		if text == "" {
			continue
		}
		start := float64(ev.StartMs) / 1000.0
		end := start + float64(ev.DurationMs)/1000.0
		segments = append(segments, models.Segment{Start: start, End: end, Text: text})
	}
	return segments, nil
}

func (c *CaptionClient) get(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("GET %s: status %d", rawURL, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 20<<20))
	if err != nil {
		return "", err
	}
	return string(body), nil
}
