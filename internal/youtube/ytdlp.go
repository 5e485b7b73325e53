package youtube

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"clipsync/internal/retry"
)

const (
	defaultYtdlpPath    = "yt-dlp"
	defaultYtdlpTimeout = 10 * time.Minute
)

// YtdlpLister implements VideoLister using yt-dlp as a subprocess.
type YtdlpLister struct {
	// Path is the path to the yt-dlp executable. Defaults to "yt-dlp".
	Path string

	// Timeout is the maximum time to wait for yt-dlp. Defaults to 10 minutes.
	Timeout time.Duration

	// ExtraArgs are additional arguments to pass to yt-dlp.
	ExtraArgs []string

	// RetryConfig holds retry behavior configuration.
	RetryConfig *retry.Config
}

// NewYtdlpLister creates a new yt-dlp based video lister.
func NewYtdlpLister(path string, timeout time.Duration, cfg retry.Config) *YtdlpLister {
	return &YtdlpLister{
		Path:        path,
		Timeout:     timeout,
		RetryConfig: &cfg,
	}
}

// ListVideos fetches the newest uploads of a channel using yt-dlp.
func (y *YtdlpLister) ListVideos(ctx context.Context, channel string, opts *ListOptions) ([]VideoInfo, error) {
	if err := checkYtdlp(ctx, y.path()); err != nil {
		return nil, &ListerError{Source: "ytdlp", Channel: channel, Err: err}
	}

	url := normalizeChannelURL(channel)
	args := []string{"--flat-playlist", "-J", "--no-warnings"}
	if opts != nil && opts.MaxResults > 0 {
		args = append(args, "--playlist-end", strconv.Itoa(opts.MaxResults))
	}
	args = append(args, y.ExtraArgs...)
	args = append(args, url)

	var videos []VideoInfo
	err := retry.Do(ctx, y.retryConfig(), ytdlpErrorClassifier, func(ctx context.Context) error {
		stdout, err := runYtdlp(ctx, y.path(), y.Timeout, args)
		if err != nil {
			return &ListerError{Source: "ytdlp", Channel: channel, Err: err}
		}

		parsed, err := parseYtdlpOutput(stdout)
		if err != nil {
			return &ListerError{Source: "ytdlp", Channel: channel, Err: retry.Permanent(err)}
		}
		videos = parsed
		return nil
	})
	if err != nil {
		return nil, err
	}

	return filterVideos(videos, opts), nil
}

func (y *YtdlpLister) path() string {
	if y.Path != "" {
		return y.Path
	}
	return defaultYtdlpPath
}

func (y *YtdlpLister) retryConfig() retry.Config {
	if y.RetryConfig != nil {
		return *y.RetryConfig
	}
	return retry.DefaultConfig()
}

// checkYtdlp verifies that yt-dlp is available.
func checkYtdlp(ctx context.Context, path string) error {
	cmd := exec.CommandContext(ctx, path, "--version")
	if err := cmd.Run(); err != nil {
		return ErrYtdlpNotInstalled
	}
	return nil
}

// runYtdlp runs yt-dlp with a timeout and maps its failures onto the
// package sentinels.
func runYtdlp(ctx context.Context, path string, timeout time.Duration, args []string) ([]byte, error) {
	if timeout <= 0 {
		timeout = defaultYtdlpTimeout
	}
	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, path, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(cmdCtx.Err(), context.DeadlineExceeded) {
			return nil, ErrNetworkTimeout
		}
		return nil, classifyYtdlpError(err, stderr.String())
	}
	return stdout.Bytes(), nil
}

func classifyYtdlpError(err error, stderr string) error {
	msg := strings.ToLower(stderr)
	switch {
	case strings.Contains(msg, "video unavailable") || strings.Contains(msg, "private video"):
		return ErrVideoUnavailable
	case strings.Contains(msg, "not found") || strings.Contains(msg, "does not exist"):
		return ErrChannelNotFound
	case strings.Contains(msg, "429") || strings.Contains(msg, "rate"):
		return ErrRateLimited
	}
	return fmt.Errorf("yt-dlp failed: %w: %s", err, strings.TrimSpace(stderr))
}

// normalizeChannelURL turns a handle, bare username, channel ID or channel
// URL into the URL of the channel's videos tab.
func normalizeChannelURL(channel string) string {
	channel = strings.TrimSpace(channel)

	if channelIDRegex.MatchString(channel) && !strings.Contains(channel, "youtube.com") {
		return "https://www.youtube.com/channel/" + channel + "/videos"
	}
	if !strings.Contains(channel, "youtube.com") {
		return "https://www.youtube.com/@" + strings.TrimPrefix(channel, "@") + "/videos"
	}

	channel = strings.TrimSuffix(channel, "/")
	if strings.HasSuffix(channel, "/videos") {
		return channel
	}
	return channel + "/videos"
}

// ytdlpPlaylist represents yt-dlp's JSON output for a channel tab.
type ytdlpPlaylist struct {
	ID         string       `json:"id"`
	Title      string       `json:"title"`
	Uploader   string       `json:"uploader"`
	ChannelID  string       `json:"channel_id"`
	ChannelURL string       `json:"channel_url"`
	Entries    []ytdlpEntry `json:"entries"`
}

// ytdlpEntry represents a single video in yt-dlp's JSON output.
type ytdlpEntry struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Duration   float64 `json:"duration"`        // seconds
	DurationS  string  `json:"duration_string"` // "mm:ss" or "HH:mm:ss"
	ViewCount  int64   `json:"view_count"`
	Uploader   string  `json:"uploader"`
	ChannelID  string  `json:"channel_id"`
	UploadDate string  `json:"upload_date"` // YYYYMMDD format
	Timestamp  int64   `json:"timestamp"`   // Unix timestamp
}

// parseYtdlpOutput parses yt-dlp's JSON output into a VideoInfo slice.
func parseYtdlpOutput(data []byte) ([]VideoInfo, error) {
	var playlist ytdlpPlaylist
	if err := json.Unmarshal(data, &playlist); err != nil {
		return nil, fmt.Errorf("parse yt-dlp output: %w", err)
	}

	videos := make([]VideoInfo, 0, len(playlist.Entries))
	for _, entry := range playlist.Entries {
		if entry.ID == "" {
			continue
		}
		videos = append(videos, VideoInfo{
			ID:          entry.ID,
			Title:       entry.Title,
			ChannelID:   coalesce(entry.ChannelID, playlist.ChannelID),
			ChannelName: coalesce(entry.Uploader, playlist.Uploader),
			Duration:    entryDuration(entry),
			ViewCount:   entry.ViewCount,
			Published:   parseYtdlpDate(entry),
		})
	}
	return videos, nil
}

func entryDuration(entry ytdlpEntry) time.Duration {
	if entry.Duration > 0 {
		return time.Duration(entry.Duration * float64(time.Second)).Round(time.Second)
	}
	if d, err := ParseClockDuration(entry.DurationS); err == nil {
		return d
	}
	return 0
}

// parseYtdlpDate extracts the published time from a yt-dlp entry.
func parseYtdlpDate(entry ytdlpEntry) time.Time {
	if entry.Timestamp > 0 {
		return time.Unix(entry.Timestamp, 0).UTC()
	}
	if entry.UploadDate != "" {
		if t, err := time.Parse("20060102", entry.UploadDate); err == nil {
			return t
		}
	}
	return time.Time{}
}

// coalesce returns the first non-empty string.
func coalesce(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// ytdlpErrorClassifier determines if a yt-dlp error is retryable.
func ytdlpErrorClassifier(err error) bool {
	if errors.Is(err, ErrChannelNotFound) || errors.Is(err, ErrVideoUnavailable) ||
		errors.Is(err, ErrYtdlpNotInstalled) {
		return false
	}
	return retry.IsRetryable(err)
}
