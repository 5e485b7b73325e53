// Package allocator pairs open posting slots with clips, producing new clips
// from fresh source videos when the rendered pool runs dry.
package allocator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"clipsync/internal/account"
	"clipsync/internal/clip"
)

// ErrNoEligibleContent indicates that slots remain but discovery found no
// source video that was never posted and is not already rendered.
var ErrNoEligibleContent = errors.New("allocator: no eligible content")

// Discovery finds candidate source videos on the account's channels.
type Discovery interface {
	FindCandidates(ctx context.Context, channels []string, maxDuration time.Duration) ([]string, error)
}

// Producer renders every part of one source video.
type Producer interface {
	Produce(ctx context.Context, req clip.Request) ([]clip.Rendered, error)
}

// Assignment schedules one clip for one slot.
type Assignment struct {
	Clip clip.Rendered
	Slot time.Time
}

// Allocator assigns clips to slots.
type Allocator struct {
	Discovery Discovery
	Producer  Producer
	Logger    *slog.Logger
}

// New returns an allocator backed by the given collaborators.
func New(discovery Discovery, producer Producer, logger *slog.Logger) *Allocator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Allocator{Discovery: discovery, Producer: producer, Logger: logger}
}

// Allocate pairs slots, earliest first, with the rendered clips in Queue
// order. While slots remain it discovers one eligible source video at a
// time, produces its parts and keeps pairing.
func (a *Allocator) Allocate(ctx context.Context, acct *account.Account, slots []time.Time, rendered []clip.Rendered) ([]Assignment, error) {
	slots = sortedSlots(slots)
	assignments := make([]Assignment, 0, len(slots))

	pair := func(clips []clip.Rendered) {
		for _, c := range clips {
			if len(assignments) == len(slots) {
				return
			}
			assignments = append(assignments, Assignment{Clip: c, Slot: slots[len(assignments)]})
		}
	}

	pair(Queue(acct, rendered))

	// Content ids that must not be produced again in this run.
	excluded := make(map[string]bool)
	for _, c := range rendered {
		excluded[c.ContentID] = true
	}

	for len(assignments) < len(slots) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		contentID, err := a.discover(ctx, acct, excluded)
		if err != nil {
			return nil, err
		}
		excluded[contentID] = true

		a.Logger.Info("producing clips",
			"account", acct.ID,
			"content_id", contentID,
			"open_slots", len(slots)-len(assignments))

		produced, err := a.Producer.Produce(ctx, clip.Request{
			AccountID: acct.ID,
			ContentID: contentID,
			Options: clip.Options{
				Captions:     acct.Preferences.Captions,
				Overlay:      acct.Preferences.Overlay,
				ClipDuration: acct.Preferences.ClipDuration(),
			},
		})
		if err != nil {
			return nil, fmt.Errorf("produce %s: %w", contentID, err)
		}
		if len(produced) == 0 {
			a.Logger.Warn("production yielded no clips", "account", acct.ID, "content_id", contentID)
		}
		pair(sortedParts(produced))
	}

	return assignments, nil
}

func (a *Allocator) discover(ctx context.Context, acct *account.Account, excluded map[string]bool) (string, error) {
	candidates, err := a.Discovery.FindCandidates(ctx, acct.Channels, acct.Preferences.MaxSourceDuration())
	if err != nil {
		return "", fmt.Errorf("discover content: %w", err)
	}
	for _, id := range candidates {
		if Eligible(acct, id, excluded) {
			return id, nil
		}
	}
	return "", fmt.Errorf("%w for account %s (%d candidates checked)", ErrNoEligibleContent, acct.ID, len(candidates))
}

// Eligible reports whether contentID may be produced: it was never posted by
// the account and does not appear among the excluded (rendered) content ids.
func Eligible(acct *account.Account, contentID string, excluded map[string]bool) bool {
	return contentID != "" && !excluded[contentID] && !acct.Posted(contentID)
}

// Queue orders rendered clips for publication. The group of the most recently
// posted content id comes first so a partially posted series resumes, then
// the remaining groups by content id. Parts ascend within each group.
func Queue(acct *account.Account, rendered []clip.Rendered) []clip.Rendered {
	groups := make(map[string][]clip.Rendered)
	var order []string
	for _, c := range rendered {
		if _, ok := groups[c.ContentID]; !ok {
			order = append(order, c.ContentID)
		}
		groups[c.ContentID] = append(groups[c.ContentID], c)
	}
	sort.Strings(order)

	if last, ok := acct.LastEntry(); ok {
		for i, id := range order {
			if id == last.ContentID {
				order = append([]string{id}, append(order[:i:i], order[i+1:]...)...)
				break
			}
		}
	}

	queue := make([]clip.Rendered, 0, len(rendered))
	for _, id := range order {
		queue = append(queue, sortedParts(groups[id])...)
	}
	return queue
}

func sortedParts(clips []clip.Rendered) []clip.Rendered {
	out := append([]clip.Rendered(nil), clips...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Part < out[j].Part })
	return out
}

func sortedSlots(slots []time.Time) []time.Time {
	out := append([]time.Time(nil), slots...)
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}
