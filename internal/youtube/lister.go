// Package youtube lists source channels, looks up video titles, downloads
// source videos and fetches their transcripts.
package youtube

import (
	"context"
	"errors"
	"regexp"
	"time"
)

// Sentinel errors for YouTube operations.
var (
	ErrChannelNotFound   = errors.New("youtube: channel not found")
	ErrVideoUnavailable  = errors.New("youtube: video unavailable")
	ErrRateLimited       = errors.New("youtube: rate limited")
	ErrNetworkTimeout    = errors.New("youtube: network timeout")
	ErrInvalidURL        = errors.New("youtube: invalid URL")
	ErrYtdlpNotInstalled = errors.New("youtube: yt-dlp not installed")
	ErrNoTranscript      = errors.New("youtube: no transcript available")
)

var (
	channelIDRegex = regexp.MustCompile(`UC[a-zA-Z0-9_-]{22}`)
	videoIDRegex   = regexp.MustCompile(`^[a-zA-Z0-9_-]{11}$`)
)

// VideoLister lists the uploads of one channel.
type VideoLister interface {
	// ListVideos fetches videos from a channel given as a handle, username,
	// channel ID or channel URL.
	ListVideos(ctx context.Context, channel string, opts *ListOptions) ([]VideoInfo, error)
}

// ListOptions configures video listing behavior.
type ListOptions struct {
	// MaxResults limits how many uploads are fetched, newest first. 0 means no limit.
	MaxResults int

	// MaxDuration drops videos longer than this, and videos of unknown
	// length. Zero disables the filter.
	MaxDuration time.Duration
}

// VideoInfo contains metadata about a YouTube video.
type VideoInfo struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	ChannelID   string        `json:"channel_id"`
	ChannelName string        `json:"channel_name"`
	Published   time.Time     `json:"published"`
	Duration    time.Duration `json:"duration,omitempty"`
	ViewCount   int64         `json:"view_count,omitempty"`
}

// VideoURL returns the full YouTube URL for this video.
func (v VideoInfo) VideoURL() string {
	return VideoURL(v.ID)
}

// VideoURL returns the watch URL for a video ID.
func VideoURL(id string) string {
	return "https://www.youtube.com/watch?v=" + id
}

// ListerError wraps errors with context about the listing operation.
type ListerError struct {
	Source  string // "ytdlp" or "api"
	Channel string // channel being listed
	Err     error
}

func (e *ListerError) Error() string {
	return "youtube: " + e.Source + " listing " + e.Channel + ": " + e.Err.Error()
}

func (e *ListerError) Unwrap() error { return e.Err }

// filterVideos applies ListOptions filters that the source cannot apply itself.
func filterVideos(videos []VideoInfo, opts *ListOptions) []VideoInfo {
	if opts == nil {
		return videos
	}
	out := videos[:0:0]
	for _, v := range videos {
		if opts.MaxDuration > 0 && (v.Duration <= 0 || v.Duration > opts.MaxDuration) {
			continue
		}
		out = append(out, v)
	}
	return out
}
