// Package publish posts assigned clips and commits each success to the
// account history before the clip file is deleted.
package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"clipsync/internal/account"
	"clipsync/internal/allocator"
	"clipsync/internal/clip"
	"clipsync/internal/youtube"
)

// ErrPublishFailed marks a failure of the publishing platform step.
var ErrPublishFailed = errors.New("publish: publish failed")

// Agent publishes one clip, scheduled for a slot. Session handling is the
// agent's own concern.
type Agent interface {
	Publish(ctx context.Context, path, caption string, at time.Time) error
}

// AgentError wraps a failed Publish call with the clip and slot.
// It matches both ErrPublishFailed and the agent's error.
type AgentError struct {
	Clip clip.Ref
	Slot time.Time
	Err  error
}

func (e *AgentError) Error() string {
	return fmt.Sprintf("publish: %s at %s: %v", e.Clip, e.Slot.Format(time.RFC3339), e.Err)
}

func (e *AgentError) Unwrap() []error { return []error{ErrPublishFailed, e.Err} }

// Saver persists an account. storage.Store implements it.
type Saver interface {
	Save(ctx context.Context, acct *account.Account) error
}

// Remover deletes a published clip file. *clip.Library implements it.
type Remover interface {
	Remove(c clip.Rendered) error
}

// PartLabeler renders the "Part N" fragment of a caption.
type PartLabeler interface {
	PartLabel(number int) string
}

// Captioner composes clip captions: the source title, the part label and
// the configured hashtags.
type Captioner struct {
	Titles   youtube.TitleSource
	Labels   PartLabeler
	Hashtags []string
	Logger   *slog.Logger
}

// Caption returns the caption for ref. When the title cannot be looked up
// the content id stands in for it.
func (c *Captioner) Caption(ctx context.Context, ref clip.Ref) string {
	title := ref.ContentID
	if c.Titles != nil {
		t, err := c.Titles.Title(ctx, ref.ContentID)
		switch {
		case err != nil:
			c.logger().Warn("title lookup failed, using content id", "content_id", ref.ContentID, "error", err)
		case strings.TrimSpace(t) != "":
			title = strings.TrimSpace(t)
		}
	}

	label := fmt.Sprintf("Part %d", ref.Label())
	if c.Labels != nil {
		label = c.Labels.PartLabel(ref.Label())
	}

	caption := title + " | " + label
	if tags := formatHashtags(c.Hashtags); tags != "" {
		caption += " " + tags
	}
	return caption
}

func (c *Captioner) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.New(slog.DiscardHandler)
}

func formatHashtags(tags []string) string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if !strings.HasPrefix(t, "#") {
			t = "#" + t
		}
		out = append(out, t)
	}
	return strings.Join(out, " ")
}

// Committer runs the publish-and-commit cycle.
type Committer struct {
	Agent     Agent
	Captioner *Captioner
	Store     Saver
	Library   Remover
	Logger    *slog.Logger
}

// Commit publishes assignments in slot order. After each successful publish
// the history entry is appended and the account saved, and only then is the
// clip file deleted. The first failure stops the cycle; entries committed
// before it stay committed. Commit returns the assignments that were
// published.
func (c *Committer) Commit(ctx context.Context, acct *account.Account, assignments []allocator.Assignment) ([]allocator.Assignment, error) {
	ordered := append([]allocator.Assignment(nil), assignments...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Slot.Before(ordered[j].Slot) })

	log := c.logger().With("account", acct.ID)
	published := make([]allocator.Assignment, 0, len(ordered))
	for _, a := range ordered {
		if err := ctx.Err(); err != nil {
			return published, err
		}

		caption := c.Captioner.Caption(ctx, a.Clip.Ref)
		log.Info("publishing clip", "clip", a.Clip.Ref.String(), "slot", a.Slot, "caption", caption)
		if err := c.Agent.Publish(ctx, a.Clip.Path, caption, a.Slot); err != nil {
			return published, &AgentError{Clip: a.Clip.Ref, Slot: a.Slot, Err: err}
		}

		if err := acct.Record(a.Clip.ContentID, a.Slot); err != nil {
			return published, fmt.Errorf("publish: record %s: %w", a.Clip.Ref, err)
		}
		if err := c.Store.Save(ctx, acct); err != nil {
			return published, fmt.Errorf("publish: save after %s: %w", a.Clip.Ref, err)
		}
		published = append(published, a)

		if err := c.Library.Remove(a.Clip); err != nil {
			return published, fmt.Errorf("publish: remove %s: %w", a.Clip.Path, err)
		}
		log.Info("clip committed", "clip", a.Clip.Ref.String(), "slot", a.Slot)
	}
	return published, nil
}

func (c *Committer) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.New(slog.DiscardHandler)
}
