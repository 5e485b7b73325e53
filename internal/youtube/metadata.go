package youtube

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"clipsync/internal/retry"
)

// TitleSource looks up the title of a source video.
type TitleSource interface {
	Title(ctx context.Context, videoID string) (string, error)
}

// VideoMetadata contains the metadata fields used when producing clips.
type VideoMetadata struct {
	ID         string        `json:"id"`
	Title      string        `json:"title"`
	Duration   time.Duration `json:"duration"`
	Uploader   string        `json:"uploader"`
	UploadDate string        `json:"upload_date"`
	FetchedAt  time.Time     `json:"fetched_at"`
}

// YtdlpMetadata implements TitleSource by asking yt-dlp for video JSON.
type YtdlpMetadata struct {
	Path        string
	Timeout     time.Duration
	RetryConfig *retry.Config
}

// Title implements TitleSource.
func (m *YtdlpMetadata) Title(ctx context.Context, videoID string) (string, error) {
	md, err := m.Fetch(ctx, videoID)
	if err != nil {
		return "", err
	}
	return md.Title, nil
}

// Fetch retrieves metadata for a video using yt-dlp.
func (m *YtdlpMetadata) Fetch(ctx context.Context, videoID string) (*VideoMetadata, error) {
	if !videoIDRegex.MatchString(videoID) {
		return nil, fmt.Errorf("%w: video id %q", ErrInvalidURL, videoID)
	}

	path := m.Path
	if path == "" {
		path = defaultYtdlpPath
	}
	cfg := retry.DefaultConfig()
	if m.RetryConfig != nil {
		cfg = *m.RetryConfig
	}

	var md *VideoMetadata
	err := retry.Do(ctx, cfg, ytdlpErrorClassifier, func(ctx context.Context) error {
		out, err := runYtdlp(ctx, path, m.Timeout, []string{"-J", "--no-warnings", "--skip-download", VideoURL(videoID)})
		if err != nil {
			return err
		}
		parsed, err := parseMetadata(out)
		if err != nil {
			return retry.Permanent(err)
		}
		md = parsed
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetch metadata %s: %w", videoID, err)
	}
	return md, nil
}

func parseMetadata(data []byte) (*VideoMetadata, error) {
	var raw struct {
		ID         string  `json:"id"`
		Title      string  `json:"title"`
		Duration   float64 `json:"duration"`
		Uploader   string  `json:"uploader"`
		UploadDate string  `json:"upload_date"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse metadata JSON: %w", err)
	}
	if raw.ID == "" || raw.Title == "" {
		return nil, fmt.Errorf("invalid metadata: missing id or title")
	}
	return &VideoMetadata{
		ID:         raw.ID,
		Title:      raw.Title,
		Duration:   time.Duration(raw.Duration * float64(time.Second)).Round(time.Second),
		Uploader:   raw.Uploader,
		UploadDate: raw.UploadDate,
		FetchedAt:  time.Now().UTC(),
	}, nil
}
