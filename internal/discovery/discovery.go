// Package discovery finds source videos for new clips on an account's
// channels.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"clipsync/internal/youtube"
)

// DefaultListingLimit is how many of a channel's newest uploads are considered.
const DefaultListingLimit = 60

// Discoverer implements allocator.Discovery over a youtube.VideoLister.
type Discoverer struct {
	Lister youtube.VideoLister
	// Limiter paces channel listings. Nil means unlimited.
	Limiter *rate.Limiter
	// Limit is the number of uploads listed per channel.
	Limit  int
	Logger *slog.Logger

	mu   sync.Mutex
	rand *rand.Rand
}

// New creates a Discoverer allowing requestsPerSecond channel listings.
// A non-positive rate disables pacing.
func New(lister youtube.VideoLister, limit int, requestsPerSecond float64, logger *slog.Logger) *Discoverer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if limit <= 0 {
		limit = DefaultListingLimit
	}
	d := &Discoverer{Lister: lister, Limit: limit, Logger: logger}
	if requestsPerSecond > 0 {
		d.Limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), 1)
	}
	return d
}

// Seed makes the shuffle deterministic.
func (d *Discoverer) Seed(seed uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rand = rand.New(rand.NewPCG(seed, seed))
}

// FindCandidates lists every channel and returns the ids of videos no longer
// than maxDuration. Each channel's videos are shuffled so the newest uploads
// are not always tried first; channels keep their configured order.
// A channel that fails to list is skipped unless every channel fails.
func (d *Discoverer) FindCandidates(ctx context.Context, channels []string, maxDuration time.Duration) ([]string, error) {
	var (
		ids  []string
		seen = make(map[string]bool)
		errs []error
	)
	for _, channel := range channels {
		if d.Limiter != nil {
			if err := d.Limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		videos, err := d.Lister.ListVideos(ctx, channel, &youtube.ListOptions{
			MaxResults:  d.limit(),
			MaxDuration: maxDuration,
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			d.logger().Warn("channel listing failed", "channel", channel, "error", err)
			errs = append(errs, err)
			continue
		}

		found := make([]string, 0, len(videos))
		for _, v := range videos {
			if !seen[v.ID] {
				seen[v.ID] = true
				found = append(found, v.ID)
			}
		}
		d.shuffle(found)
		d.logger().Debug("channel listed", "channel", channel, "videos", len(videos), "candidates", len(found))
		ids = append(ids, found...)
	}

	if len(channels) > 0 && len(errs) == len(channels) {
		return nil, fmt.Errorf("discovery: all channels failed: %w", errors.Join(errs...))
	}
	return ids, nil
}

func (d *Discoverer) shuffle(ids []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.rand != nil {
		d.rand.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
		return
	}
	rand.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
}

func (d *Discoverer) limit() int {
	if d.Limit > 0 {
		return d.Limit
	}
	return DefaultListingLimit
}

func (d *Discoverer) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.New(slog.DiscardHandler)
}
