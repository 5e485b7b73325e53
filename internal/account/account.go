// Package account defines the per-account configuration and posting history
// that drive slot planning and clip allocation.
package account

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Default production preferences applied to new accounts.
const (
	DefaultClipDuration      = 60 * time.Second
	DefaultMaxSourceDuration = 600 * time.Second
)

// DefaultSchedule is used when an account is created without posting times.
var DefaultSchedule = []string{"12:00", "16:30"}

var (
	// ErrInvalidAccount indicates a structurally invalid account record.
	ErrInvalidAccount = errors.New("account: invalid account")
	// ErrDuplicateEntry indicates a history entry with the same content and timestamp already exists.
	ErrDuplicateEntry = errors.New("account: duplicate history entry")
)

// Account is one publishing identity with its sources, cadence and history.
type Account struct {
	// ID is the unique account key, usually the login email.
	ID string `json:"id" bson:"_id" yaml:"id"`
	// Channels lists source channel identifiers in priority order.
	Channels []string `json:"channels" bson:"channels" yaml:"channels"`
	// Schedule holds daily posting times as 24-hour HH:MM strings.
	Schedule []string `json:"schedule" bson:"schedule" yaml:"schedule"`
	// History is the append-only record of published content.
	History     []HistoryEntry `json:"history" bson:"history" yaml:"history"`
	Preferences Preferences    `json:"preferences" bson:"preferences" yaml:"preferences"`
	// Session holds the reusable login session for the publishing platform.
	Session   *Session  `json:"session,omitempty" bson:"session,omitempty" yaml:"session,omitempty"`
	CreatedAt time.Time `json:"created_at" bson:"created_at" yaml:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at" yaml:"updated_at"`
}

// HistoryEntry records one published clip of a source video.
type HistoryEntry struct {
	ContentID string    `json:"content_id" bson:"content_id" yaml:"content_id"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp" yaml:"timestamp"`
}

// Preferences controls how clips are produced for the account.
type Preferences struct {
	ClipSeconds      int  `json:"clip_seconds" bson:"clip_seconds" yaml:"clip_seconds"`
	MaxSourceSeconds int  `json:"max_source_seconds" bson:"max_source_seconds" yaml:"max_source_seconds"`
	Captions         bool `json:"captions" bson:"captions" yaml:"captions"`
	Overlay          bool `json:"overlay" bson:"overlay" yaml:"overlay"`
}

// ClipDuration returns the target length of each produced clip.
func (p Preferences) ClipDuration() time.Duration {
	return time.Duration(p.ClipSeconds) * time.Second
}

// MaxSourceDuration returns the longest source video eligible for production.
func (p Preferences) MaxSourceDuration() time.Duration {
	return time.Duration(p.MaxSourceSeconds) * time.Second
}

// Session is a persisted browser session for the publishing platform.
type Session struct {
	Cookies   []Cookie  `json:"cookies" bson:"cookies" yaml:"cookies"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at" yaml:"updated_at"`
}

// Cookie is a single session cookie.
type Cookie struct {
	Name     string    `json:"name" bson:"name" yaml:"name"`
	Value    string    `json:"value" bson:"value" yaml:"value"`
	Domain   string    `json:"domain" bson:"domain" yaml:"domain"`
	Path     string    `json:"path" bson:"path" yaml:"path"`
	Expires  time.Time `json:"expires,omitempty" bson:"expires,omitempty" yaml:"expires,omitempty"`
	HTTPOnly bool      `json:"http_only" bson:"http_only" yaml:"http_only"`
	Secure   bool      `json:"secure" bson:"secure" yaml:"secure"`
}

// New returns an account with default preferences and schedule.
func New(id string) *Account {
	return &Account{
		ID:       id,
		Schedule: append([]string(nil), DefaultSchedule...),
		Preferences: Preferences{
			ClipSeconds:      int(DefaultClipDuration / time.Second),
			MaxSourceSeconds: int(DefaultMaxSourceDuration / time.Second),
		},
	}
}

// Validate checks the account for structural errors, including the schedule.
func (a *Account) Validate() error {
	if strings.TrimSpace(a.ID) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidAccount)
	}
	if strings.ContainsAny(a.ID, `,/\`) {
		return fmt.Errorf("%w: id %q must not contain ',', '/' or '\\'", ErrInvalidAccount, a.ID)
	}
	if a.Preferences.ClipSeconds <= 0 {
		return fmt.Errorf("%w: clip_seconds must be positive", ErrInvalidAccount)
	}
	if a.Preferences.MaxSourceSeconds <= 0 {
		return fmt.Errorf("%w: max_source_seconds must be positive", ErrInvalidAccount)
	}
	if _, err := ParseSchedule(a.Schedule); err != nil {
		return err
	}
	return nil
}

// Times parses the configured schedule.
func (a *Account) Times() ([]TimeOfDay, error) {
	return ParseSchedule(a.Schedule)
}

// LastEntry returns the most recent history entry by timestamp.
// Entries sharing the latest timestamp resolve to the one appended last.
func (a *Account) LastEntry() (HistoryEntry, bool) {
	if len(a.History) == 0 {
		return HistoryEntry{}, false
	}
	last := a.History[0]
	for _, e := range a.History[1:] {
		if !e.Timestamp.Before(last.Timestamp) {
			last = e
		}
	}
	return last, true
}

// Posted reports whether any part of contentID appears in the history.
func (a *Account) Posted(contentID string) bool {
	for _, e := range a.History {
		if e.ContentID == contentID {
			return true
		}
	}
	return false
}

// Record appends a published clip to the history.
func (a *Account) Record(contentID string, ts time.Time) error {
	for _, e := range a.History {
		if e.ContentID == contentID && e.Timestamp.Equal(ts) {
			return fmt.Errorf("%w: %s at %s", ErrDuplicateEntry, contentID, ts.Format(time.RFC3339))
		}
	}
	a.History = append(a.History, HistoryEntry{ContentID: contentID, Timestamp: ts})
	return nil
}

// HasSession reports whether a reusable platform session is stored.
func (a *Account) HasSession() bool {
	return a.Session != nil && len(a.Session.Cookies) > 0
}
