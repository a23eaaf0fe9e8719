package transcript

import (
	"bufio"
	"html"
	"io"
	"regexp"
	"strconv"
	"strings"

	"research-board-platform/models"
)

var (
	cueTimingPattern = regexp.MustCompile(`^(\d{2}:\d{2}:\d{2}\.\d{3})\s+-->\s+(\d{2}:\d{2}:\d{2}\.\d{3})`)
	inlineTagPattern = regexp.MustCompile(`<[^>]+>`) // <c>, <00:00:01.000> and friends
	whitespaceRuns   = regexp.MustCompile(`\s+`)
)

// ParseVTT reads a WebVTT document into timed segments. Cue payload
// lines are stripped of inline tags, entity-unescaped and whitespace
// collapsed; multi-line payloads join with a single space. Header,
// metadata and cue-counter lines are skipped. Consecutive cues whose
// cleaned text is identical collapse into one segment, which keeps
// rolling auto-captions from repeating every line twice.
func ParseVTT(r io.Reader) []models.Segment {
	var (
		segments   []models.Segment
		start, end float64
		open       bool
		buf        []string
	)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	flush := func() {
		if !open || len(buf) == 0 {
			return
		}
		text := cleanCueText(strings.Join(buf, " "))
		if text == "" {
			return
		}
		if n := len(segments); n > 0 && segments[n-1].Text == text {
			segments[n-1].End = end
			return
		}
		segments = append(segments, models.Segment{Start: start, End: end, Text: text})
	}

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "WEBVTT") {
			continue
		}
		if m := cueTimingPattern.FindStringSubmatch(line); m != nil {
			flush()
			start = vttTimestampSeconds(m[1])
			end = vttTimestampSeconds(m[2])
			open = true
			buf = buf[:0]
			continue
		}
		if isAllDigits(line) {
			continue
		}
		lower := strings.ToLower(line)
		if strings.HasPrefix(lower, "kind:") || strings.HasPrefix(lower, "language:") {
			continue
		}
		if strings.Contains(line, "-->") {
			continue
		}
		if clean := cleanCueText(line); clean != "" {
			buf = append(buf, clean)
		}
	}
	flush()
	return segments
}

// cleanCueText strips inline markup, unescapes entities and collapses
// whitespace runs to single spaces.
func cleanCueText(s string) string {
	s = inlineTagPattern.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)
	s = whitespaceRuns.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// vttTimestampSeconds converts "HH:MM:SS.mmm" to seconds.
func vttTimestampSeconds(ts string) float64 {
	parts := strings.SplitN(ts, ":", 3)
	if len(parts) != 3 {
		return 0
	}
	hh, _ := strconv.Atoi(parts[0])
	mm, _ := strconv.Atoi(parts[1])
	ss, _ := strconv.ParseFloat(parts[2], 64)
	return float64(hh)*3600 + float64(mm)*60 + ss
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
