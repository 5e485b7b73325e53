package youtube

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	defaultDownloadTimeout = 30 * time.Minute
	// sourceFormat prefers an mp4/m4a pair up to 1080p so the merge needs no re-encode.
	sourceFormat = "bestvideo[height<=1080][ext=mp4]+bestaudio[ext=m4a]/best[height<=1080]/best"
)

// Downloader fetches videos with yt-dlp.
type Downloader struct {
	// YtdlpPath is the path to the yt-dlp executable.
	YtdlpPath string
	// Timeout is the maximum duration for one download.
	Timeout time.Duration
}

// NewDownloader creates a Downloader.
func NewDownloader(ytdlpPath string, timeout time.Duration) *Downloader {
	return &Downloader{YtdlpPath: ytdlpPath, Timeout: timeout}
}

// Download saves the video at url into dir as <name>.mp4 and returns the
// final path. When name is empty the video ID is used.
func (d *Downloader) Download(ctx context.Context, url, dir, name string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}

	template := filepath.Join(dir, "%(id)s.%(ext)s")
	if name != "" {
		template = filepath.Join(dir, sanitizeFilename(name)+".%(ext)s")
	}
	args := []string{
		"-o", template,
		"--no-warnings",
		"--no-playlist",
		"-f", sourceFormat,
		"--merge-output-format", "mp4",
		"--print", "after_move:filepath",
		url,
	}

	timeout := d.Timeout
	if timeout <= 0 {
		timeout = defaultDownloadTimeout
	}
	out, err := runYtdlp(ctx, d.path(), timeout, args)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", url, err)
	}

	path := lastPathLine(string(out))
	if path == "" {
		return "", fmt.Errorf("download %s: yt-dlp did not report an output file", url)
	}
	return path, nil
}

// DownloadVideo downloads a video by ID into dir as <id>.mp4.
func (d *Downloader) DownloadVideo(ctx context.Context, videoID, dir string) (string, error) {
	if !videoIDRegex.MatchString(videoID) {
		return "", fmt.Errorf("%w: video id %q", ErrInvalidURL, videoID)
	}
	return d.Download(ctx, VideoURL(videoID), dir, videoID)
}

func (d *Downloader) path() string {
	if d.YtdlpPath != "" {
		return d.YtdlpPath
	}
	return defaultYtdlpPath
}

// lastPathLine returns the last non-empty line of yt-dlp's --print output.
func lastPathLine(out string) string {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}

// sanitizeFilename removes/replaces characters that are invalid in filenames.
func sanitizeFilename(s string) string {
	replacements := []string{"/", "\\", ":", "*", "?", "\"", "<", ">", "|"}
	result := s
	for _, char := range replacements {
		result = strings.ReplaceAll(result, char, "_")
	}
	return result
}
