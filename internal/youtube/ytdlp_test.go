package youtube

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"clipsync/internal/retry"
)

// writeMockYtdlp writes a shell script standing in for yt-dlp. body runs for
// every invocation except --version.
func writeMockYtdlp(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "yt-dlp")
	script := `#!/bin/sh
if [ "$1" = "--version" ]; then
    echo "2024.01.01"
    exit 0
fi
` + body
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		t.Fatalf("failed to create mock yt-dlp: %v", err)
	}
	return path
}

func noRetry() retry.Config {
	return retry.Config{MaxRetries: 0}
}

func TestNormalizeChannelURL(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "channel ID only",
			input: "UCuAXFkgsw1L7xaCfnd5JJOw",
			want:  "https://www.youtube.com/channel/UCuAXFkgsw1L7xaCfnd5JJOw/videos",
		},
		{
			name:  "bare username",
			input: "testchannel",
			want:  "https://www.youtube.com/@testchannel/videos",
		},
		{
			name:  "handle",
			input: "@testchannel",
			want:  "https://www.youtube.com/@testchannel/videos",
		},
		{
			name:  "channel URL without videos",
			input: "https://www.youtube.com/channel/UCuAXFkgsw1L7xaCfnd5JJOw",
			want:  "https://www.youtube.com/channel/UCuAXFkgsw1L7xaCfnd5JJOw/videos",
		},
		{
			name:  "channel URL with videos",
			input: "https://www.youtube.com/channel/UCuAXFkgsw1L7xaCfnd5JJOw/videos",
			want:  "https://www.youtube.com/channel/UCuAXFkgsw1L7xaCfnd5JJOw/videos",
		},
		{
			name:  "handle URL with trailing slash",
			input: "https://www.youtube.com/@testchannel/",
			want:  "https://www.youtube.com/@testchannel/videos",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := normalizeChannelURL(tt.input)
			if got != tt.want {
				t.Errorf("normalizeChannelURL(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseYtdlpOutput(t *testing.T) {
	videos, err := parseYtdlpOutput([]byte(sampleYtdlpOutput))
	if err != nil {
		t.Fatalf("parseYtdlpOutput() error = %v", err)
	}
	if len(videos) != 3 {
		t.Fatalf("parseYtdlpOutput() len = %d, want 3", len(videos))
	}

	v := videos[0]
	if v.ID != "dQw4w9WgXcQ" {
		t.Errorf("video.ID = %q, want %q", v.ID, "dQw4w9WgXcQ")
	}
	if v.Duration != 212*time.Second {
		t.Errorf("video.Duration = %v, want %v", v.Duration, 212*time.Second)
	}
	if v.ChannelID != "UCuAXFkgsw1L7xaCfnd5JJOw" {
		t.Errorf("video.ChannelID = %q", v.ChannelID)
	}
	if videos[1].Duration != 15*time.Minute {
		t.Errorf("duration_string fallback = %v, want 15m", videos[1].Duration)
	}
	if videos[2].Duration != 0 {
		t.Errorf("unknown duration = %v, want 0", videos[2].Duration)
	}
}

func TestParseYtdlpDate(t *testing.T) {
	tests := []struct {
		name  string
		entry ytdlpEntry
		want  time.Time
	}{
		{"timestamp", ytdlpEntry{Timestamp: 1704067200}, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"upload_date", ytdlpEntry{UploadDate: "20240115"}, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)},
		{"timestamp preferred", ytdlpEntry{Timestamp: 1704067200, UploadDate: "20240115"}, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"no date", ytdlpEntry{}, time.Time{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseYtdlpDate(tt.entry)
			if !got.Equal(tt.want) {
				t.Errorf("parseYtdlpDate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFilterVideos_MaxDuration(t *testing.T) {
	videos := []VideoInfo{
		{ID: "short", Duration: 5 * time.Minute},
		{ID: "exact", Duration: 10 * time.Minute},
		{ID: "long", Duration: 11 * time.Minute},
		{ID: "unknown"},
	}

	got := filterVideos(videos, &ListOptions{MaxDuration: 10 * time.Minute})
	if len(got) != 2 || got[0].ID != "short" || got[1].ID != "exact" {
		t.Errorf("filterVideos() = %+v, want short and exact", got)
	}

	if all := filterVideos(videos, &ListOptions{}); len(all) != 4 {
		t.Errorf("filterVideos() without limit len = %d, want 4", len(all))
	}
}

func TestYtdlpLister_NotInstalled(t *testing.T) {
	lister := NewYtdlpLister("/nonexistent/path/to/yt-dlp", time.Second, noRetry())

	_, err := lister.ListVideos(context.Background(), "@test", nil)
	if !errors.Is(err, ErrYtdlpNotInstalled) {
		t.Errorf("ListVideos() error = %v, want ErrYtdlpNotInstalled", err)
	}
}

func TestYtdlpLister_MockBinary(t *testing.T) {
	argsFile := filepath.Join(t.TempDir(), "args")
	mock := writeMockYtdlp(t, `echo "$@" > `+argsFile+`
cat << 'EOF'
`+sampleYtdlpOutput+`
EOF
`)
	lister := NewYtdlpLister(mock, 30*time.Second, noRetry())

	videos, err := lister.ListVideos(context.Background(), "@test", &ListOptions{
		MaxResults:  60,
		MaxDuration: 10 * time.Minute,
	})
	if err != nil {
		t.Fatalf("ListVideos() error = %v", err)
	}
	if len(videos) != 1 || videos[0].ID != "dQw4w9WgXcQ" {
		t.Errorf("ListVideos() = %+v, want only dQw4w9WgXcQ", videos)
	}

	args, _ := os.ReadFile(argsFile)
	for _, want := range []string{"--flat-playlist", "--playlist-end 60", "https://www.youtube.com/@test/videos"} {
		if !strings.Contains(string(args), want) {
			t.Errorf("yt-dlp args %q missing %q", args, want)
		}
	}
}

func TestYtdlpLister_ChannelNotFound(t *testing.T) {
	mock := writeMockYtdlp(t, `echo "ERROR: [youtube:tab] @gone: This channel does not exist." >&2
exit 1
`)
	lister := NewYtdlpLister(mock, 30*time.Second, retry.Config{MaxRetries: 3, InitialBackoff: time.Millisecond})

	_, err := lister.ListVideos(context.Background(), "@gone", nil)
	if !errors.Is(err, ErrChannelNotFound) {
		t.Errorf("ListVideos() error = %v, want ErrChannelNotFound", err)
	}
	var listerErr *ListerError
	if !errors.As(err, &listerErr) || listerErr.Source != "ytdlp" {
		t.Errorf("ListVideos() error = %v, want *ListerError from ytdlp", err)
	}
}

func TestClassifyYtdlpError(t *testing.T) {
	base := errors.New("exit status 1")
	tests := []struct {
		stderr string
		want   error
	}{
		{"ERROR: Video unavailable", ErrVideoUnavailable},
		{"ERROR: HTTP Error 429: Too Many Requests", ErrRateLimited},
		{"ERROR: channel not found", ErrChannelNotFound},
	}
	for _, tt := range tests {
		if got := classifyYtdlpError(base, tt.stderr); !errors.Is(got, tt.want) {
			t.Errorf("classifyYtdlpError(%q) = %v, want %v", tt.stderr, got, tt.want)
		}
	}
	if got := classifyYtdlpError(base, "something else"); !errors.Is(got, base) {
		t.Errorf("classifyYtdlpError() = %v, want wrapped exit error", got)
	}
}

func TestYtdlpErrorClassifier(t *testing.T) {
	if ytdlpErrorClassifier(&ListerError{Source: "ytdlp", Err: ErrChannelNotFound}) {
		t.Error("channel not found should not be retried")
	}
	if !ytdlpErrorClassifier(&ListerError{Source: "ytdlp", Err: ErrRateLimited}) {
		t.Error("rate limiting should be retried")
	}
	if ytdlpErrorClassifier(context.Canceled) {
		t.Error("context cancellation should not be retried")
	}
}

const sampleYtdlpOutput = `{
  "id": "UCuAXFkgsw1L7xaCfnd5JJOw",
  "title": "Test Channel - Videos",
  "uploader": "Test Channel",
  "channel_id": "UCuAXFkgsw1L7xaCfnd5JJOw",
  "channel_url": "https://www.youtube.com/channel/UCuAXFkgsw1L7xaCfnd5JJOw",
  "entries": [
    {
      "id": "dQw4w9WgXcQ",
      "title": "Test Video 1",
      "duration": 212,
      "view_count": 1000000,
      "upload_date": "20250110",
      "timestamp": 1736505600
    },
    {
      "id": "test123abcd",
      "title": "Test Video 2",
      "duration_string": "15:00",
      "view_count": 5000,
      "upload_date": "20250109"
    },
    {
      "id": "live123abcd",
      "title": "Live Stream"
    }
  ]
}`
