package youtube

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"

	"clipsync/internal/retry"
)

const (
	dailyQuota    = 10000
	apiPageSize   = 50
	searchCost    = 100
	listCallCost  = 1
	videosPerCall = 50
)

// APILister implements VideoLister and TitleSource with the YouTube Data API v3.
// Durations come from videos.list, since playlist items do not carry them.
type APILister struct {
	service      *yt.Service
	quotaReserve int
	logger       *slog.Logger

	mu             sync.Mutex
	estimatedQuota int
	lastQuotaReset time.Time
	quotaExhausted bool
	fallback       VideoLister

	RetryConfig *retry.Config
}

// NewAPILister creates a Data API lister. quotaReserve is the number of quota
// units left untouched before switching to the fallback lister. A nil client
// uses the library's default transport.
func NewAPILister(ctx context.Context, apiKey string, quotaReserve int, client *http.Client, logger *slog.Logger) (*APILister, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("youtube: api key required")
	}

	opts := []option.ClientOption{option.WithAPIKey(apiKey)}
	if client != nil {
		// WithHTTPClient bypasses the key option, so the key rides on the transport.
		opts = []option.ClientOption{option.WithHTTPClient(&http.Client{
			Timeout:   client.Timeout,
			Transport: &apiKeyTransport{key: apiKey, base: client.Transport},
		})}
	}
	service, err := yt.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create youtube service: %w", err)
	}
	return newAPILister(service, quotaReserve, logger), nil
}

func newAPILister(service *yt.Service, quotaReserve int, logger *slog.Logger) *APILister {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	cfg := retry.DefaultConfig()
	return &APILister{
		service:        service,
		quotaReserve:   quotaReserve,
		logger:         logger,
		estimatedQuota: dailyQuota,
		lastQuotaReset: time.Now(),
		RetryConfig:    &cfg,
	}
}

// apiKeyTransport adds the key query parameter to every Data API request.
type apiKeyTransport struct {
	key  string
	base http.RoundTripper
}

func (t *apiKeyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	q := req.URL.Query()
	q.Set("key", t.key)
	req.URL.RawQuery = q.Encode()
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req)
}

// SetFallbackLister sets the lister used once the quota is exhausted.
func (a *APILister) SetFallbackLister(lister VideoLister) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.fallback = lister
}

// ListVideos implements VideoLister.
func (a *APILister) ListVideos(ctx context.Context, channel string, opts *ListOptions) ([]VideoInfo, error) {
	if fb := a.fallbackIfExhausted(); fb != nil {
		a.logger.Warn("youtube api quota exhausted, using fallback lister", "channel", channel)
		return fb.ListVideos(ctx, channel, opts)
	}

	channelID, err := a.resolveChannelID(ctx, channel)
	if err != nil {
		return nil, &ListerError{Source: "api", Channel: channel, Err: err}
	}

	uploads, channelName, err := a.uploadsPlaylist(ctx, channelID)
	if err != nil {
		return nil, &ListerError{Source: "api", Channel: channel, Err: err}
	}

	videos, err := a.listPlaylist(ctx, uploads, channelID, channelName, opts)
	if err != nil {
		return nil, &ListerError{Source: "api", Channel: channel, Err: err}
	}

	if err := a.fillDurations(ctx, videos); err != nil {
		return nil, &ListerError{Source: "api", Channel: channel, Err: err}
	}

	return filterVideos(videos, opts), nil
}

// Title implements TitleSource.
func (a *APILister) Title(ctx context.Context, videoID string) (string, error) {
	var title string
	err := retry.Do(ctx, a.retryConfig(), apiErrorClassifier, func(ctx context.Context) error {
		resp, err := a.service.Videos.List([]string{"snippet"}).Id(videoID).Context(ctx).Do()
		if err != nil {
			return err
		}
		a.trackQuotaUsage(listCallCost)
		if len(resp.Items) == 0 || resp.Items[0].Snippet == nil {
			return ErrVideoUnavailable
		}
		title = resp.Items[0].Snippet.Title
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("youtube: title of %s: %w", videoID, err)
	}
	return title, nil
}

func (a *APILister) fallbackIfExhausted() VideoLister {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.quotaExhausted {
		return a.fallback
	}
	return nil
}

// resolveChannelID converts a channel URL, handle, or ID to a channel ID.
func (a *APILister) resolveChannelID(ctx context.Context, input string) (string, error) {
	if id := channelIDRegex.FindString(input); id != "" {
		return id, nil
	}

	handle := input
	if i := strings.Index(handle, "youtube.com/"); i >= 0 {
		handle = handle[i+len("youtube.com/"):]
		handle = strings.TrimPrefix(handle, "c/")
		handle = strings.TrimPrefix(handle, "user/")
		handle = strings.SplitN(handle, "/", 2)[0]
	}
	handle = strings.TrimPrefix(strings.TrimSpace(handle), "@")
	if handle == "" {
		return "", fmt.Errorf("%w: cannot resolve channel from %q", ErrInvalidURL, input)
	}

	var channelID string
	err := retry.Do(ctx, a.retryConfig(), apiErrorClassifier, func(ctx context.Context) error {
		resp, err := a.service.Channels.List([]string{"id"}).ForHandle(handle).Context(ctx).Do()
		if err != nil {
			return err
		}
		a.trackQuotaUsage(listCallCost)
		if len(resp.Items) > 0 {
			channelID = resp.Items[0].Id
			return nil
		}

		search, err := a.service.Search.List([]string{"id"}).Q(handle).Type("channel").MaxResults(1).Context(ctx).Do()
		if err != nil {
			return err
		}
		a.trackQuotaUsage(searchCost)
		if len(search.Items) == 0 || search.Items[0].Id == nil {
			return ErrChannelNotFound
		}
		channelID = search.Items[0].Id.ChannelId
		return nil
	})
	return channelID, err
}

// uploadsPlaylist gets the uploads playlist ID and title of a channel.
func (a *APILister) uploadsPlaylist(ctx context.Context, channelID string) (string, string, error) {
	var playlistID, channelName string
	err := retry.Do(ctx, a.retryConfig(), apiErrorClassifier, func(ctx context.Context) error {
		resp, err := a.service.Channels.List([]string{"contentDetails", "snippet"}).Id(channelID).Context(ctx).Do()
		if err != nil {
			return err
		}
		a.trackQuotaUsage(listCallCost)
		if len(resp.Items) == 0 || resp.Items[0].ContentDetails == nil || resp.Items[0].ContentDetails.RelatedPlaylists == nil {
			return ErrChannelNotFound
		}
		ch := resp.Items[0]
		playlistID = ch.ContentDetails.RelatedPlaylists.Uploads
		if ch.Snippet != nil {
			channelName = ch.Snippet.Title
		}
		return nil
	})
	return playlistID, channelName, err
}

// listPlaylist pages through a playlist, newest first, up to MaxResults.
func (a *APILister) listPlaylist(ctx context.Context, playlistID, channelID, channelName string, opts *ListOptions) ([]VideoInfo, error) {
	var videos []VideoInfo
	pageToken := ""
	for {
		err := retry.Do(ctx, a.retryConfig(), apiErrorClassifier, func(ctx context.Context) error {
			resp, err := a.service.PlaylistItems.List([]string{"snippet", "contentDetails"}).
				PlaylistId(playlistID).
				MaxResults(apiPageSize).
				PageToken(pageToken).
				Context(ctx).
				Do()
			if err != nil {
				return err
			}
			a.trackQuotaUsage(listCallCost)

			for _, item := range resp.Items {
				if item.ContentDetails == nil {
					continue
				}
				v := VideoInfo{ID: item.ContentDetails.VideoId, ChannelID: channelID, ChannelName: channelName}
				if item.Snippet != nil {
					v.Title = item.Snippet.Title
					if t, err := time.Parse(time.RFC3339, item.Snippet.PublishedAt); err == nil {
						v.Published = t
					}
				}
				videos = append(videos, v)
			}
			pageToken = resp.NextPageToken
			return nil
		})
		if err != nil {
			return nil, err
		}

		if opts != nil && opts.MaxResults > 0 && len(videos) >= opts.MaxResults {
			return videos[:opts.MaxResults], nil
		}
		if pageToken == "" {
			return videos, nil
		}
	}
}

// fillDurations sets Duration on each video with batched videos.list calls.
func (a *APILister) fillDurations(ctx context.Context, videos []VideoInfo) error {
	index := make(map[string]int, len(videos))
	for i, v := range videos {
		index[v.ID] = i
	}

	for start := 0; start < len(videos); start += videosPerCall {
		end := min(start+videosPerCall, len(videos))
		ids := make([]string, 0, end-start)
		for _, v := range videos[start:end] {
			ids = append(ids, v.ID)
		}

		err := retry.Do(ctx, a.retryConfig(), apiErrorClassifier, func(ctx context.Context) error {
			resp, err := a.service.Videos.List([]string{"contentDetails", "statistics"}).Id(ids...).Context(ctx).Do()
			if err != nil {
				return err
			}
			a.trackQuotaUsage(listCallCost)
			for _, item := range resp.Items {
				i, ok := index[item.Id]
				if !ok {
					continue
				}
				if item.ContentDetails != nil {
					if d, err := ParseISODuration(item.ContentDetails.Duration); err == nil {
						videos[i].Duration = d
					}
				}
				if item.Statistics != nil {
					videos[i].ViewCount = int64(item.Statistics.ViewCount)
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// trackQuotaUsage updates the estimated quota and checks if we've exhausted it.
func (a *APILister) trackQuotaUsage(units int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if time.Since(a.lastQuotaReset) > 24*time.Hour {
		a.estimatedQuota = dailyQuota
		a.lastQuotaReset = time.Now()
		a.quotaExhausted = false
		a.logger.Info("youtube api quota reset")
	}

	a.estimatedQuota -= units
	if a.estimatedQuota < a.quotaReserve && !a.quotaExhausted {
		a.logger.Warn("youtube api quota exhausted", "remaining", a.estimatedQuota, "reserve", a.quotaReserve)
		a.quotaExhausted = true
	}
}

// EstimatedQuota returns the estimated remaining quota units.
func (a *APILister) EstimatedQuota() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.estimatedQuota
}

func (a *APILister) retryConfig() retry.Config {
	if a.RetryConfig != nil {
		return *a.RetryConfig
	}
	return retry.DefaultConfig()
}

// apiErrorClassifier determines if an API error is retryable.
func apiErrorClassifier(err error) bool {
	if errors.Is(err, ErrChannelNotFound) || errors.Is(err, ErrInvalidURL) || errors.Is(err, ErrVideoUnavailable) {
		return false
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case 400, 401, 404:
			return false
		case 403:
			// Quota and rate errors clear up, key and permission errors do not.
			msg := apiErr.Error()
			return strings.Contains(msg, "rateLimitExceeded") || strings.Contains(msg, "userRateLimitExceeded")
		}
	}
	return retry.IsRetryable(err)
}
