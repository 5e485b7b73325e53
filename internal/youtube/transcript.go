package youtube

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// TranscriptEntry is one caption line of a source video.
type TranscriptEntry struct {
	Start    time.Duration
	Duration time.Duration
	Text     string
}

// TranscriptFetcher downloads YouTube captions through yt-dlp, preferring
// uploaded subtitles over automatic ones.
type TranscriptFetcher struct {
	YtdlpPath string
	Timeout   time.Duration
	// Languages is passed to --sub-langs. Defaults to "en.*".
	Languages string
}

// Fetch returns the transcript of videoID, using dir for scratch files.
// It returns ErrNoTranscript when the video has no captions.
func (f *TranscriptFetcher) Fetch(ctx context.Context, videoID, dir string) ([]TranscriptEntry, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create transcript directory: %w", err)
	}
	langs := f.Languages
	if langs == "" {
		langs = "en.*"
	}
	path := f.YtdlpPath
	if path == "" {
		path = defaultYtdlpPath
	}

	args := []string{
		"--skip-download",
		"--no-warnings",
		"--write-subs",
		"--write-auto-subs",
		"--sub-langs", langs,
		"--sub-format", "json3",
		"-o", filepath.Join(dir, videoID+".%(ext)s"),
		VideoURL(videoID),
	}
	if _, err := runYtdlp(ctx, path, f.Timeout, args); err != nil {
		return nil, fmt.Errorf("fetch transcript %s: %w", videoID, err)
	}

	matches, err := filepath.Glob(filepath.Join(dir, videoID+".*.json3"))
	if err != nil {
		return nil, fmt.Errorf("fetch transcript %s: %w", videoID, err)
	}
	if len(matches) == 0 {
		return nil, ErrNoTranscript
	}
	sort.Strings(matches)

	data, err := os.ReadFile(matches[0])
	if err != nil {
		return nil, fmt.Errorf("read transcript: %w", err)
	}
	entries, err := ParseJSON3(data)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, ErrNoTranscript
	}
	return entries, nil
}

// json3 is YouTube's timed text format as written by yt-dlp.
type json3 struct {
	Events []json3Event `json:"events"`
}

type json3Event struct {
	TStartMs    int64 `json:"tStartMs"`
	DDurationMs int64 `json:"dDurationMs"`
	Segs        []struct {
		UTF8 string `json:"utf8"`
	} `json:"segs"`
}

// ParseJSON3 converts json3 caption events into transcript entries.
// Events without text, such as window definitions and line breaks, are dropped.
func ParseJSON3(data []byte) ([]TranscriptEntry, error) {
	var doc json3
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.Join(ErrNoTranscript, fmt.Errorf("parse json3: %w", err))
	}

	entries := make([]TranscriptEntry, 0, len(doc.Events))
	for _, ev := range doc.Events {
		var b strings.Builder
		for _, s := range ev.Segs {
			b.WriteString(s.UTF8)
		}
		text := strings.Join(strings.Fields(b.String()), " ")
		if text == "" {
			continue
		}
		entries = append(entries, TranscriptEntry{
			Start:    time.Duration(ev.TStartMs) * time.Millisecond,
			Duration: time.Duration(ev.DDurationMs) * time.Millisecond,
			Text:     text,
		})
	}
	return entries, nil
}
