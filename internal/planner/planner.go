// Package planner computes the open posting slots for an account.
//
// A slot is a configured time of day on a calendar date. Slots are scanned
// date by date from an anchor, and only those no later than now plus the
// horizon are offered.
package planner

import (
	"fmt"
	"sort"
	"time"

	"clipsync/internal/account"
)

// HorizonDays is how far ahead the publishing platform accepts scheduled posts.
const HorizonDays = 10

// DefaultHorizon is HorizonDays as a duration.
const DefaultHorizon = HorizonDays * 24 * time.Hour

// ErrEmptySchedule indicates that no posting times were supplied.
var ErrEmptySchedule = fmt.Errorf("planner: %w: empty schedule", account.ErrInvalidSchedule)

// Planner finds open slots. The zero value uses DefaultHorizon, time.Now and
// the local time zone.
type Planner struct {
	Horizon  time.Duration
	Now      func() time.Time
	Location *time.Location
}

// New returns a planner with the given horizon and clock.
func New(horizon time.Duration, now func() time.Time) *Planner {
	return &Planner{Horizon: horizon, Now: now}
}

// NextSlot returns the first slot strictly after the anchor. The anchor is
// after when non-nil, otherwise the later of now and the latest history
// timestamp. A stale history never yields a slot in the past.
// ok is false when that slot lies beyond the horizon.
func (p *Planner) NextSlot(history []account.HistoryEntry, schedule []account.TimeOfDay, after *time.Time) (slot time.Time, ok bool, err error) {
	return p.next(p.now(), history, schedule, after)
}

// Slots enumerates every open slot within the horizon in ascending order.
func (p *Planner) Slots(history []account.HistoryEntry, schedule []account.TimeOfDay) ([]time.Time, error) {
	now := p.now()
	var (
		slots []time.Time
		after *time.Time
	)
	for {
		slot, ok, err := p.next(now, history, schedule, after)
		if err != nil {
			return nil, err
		}
		if !ok {
			return slots, nil
		}
		slots = append(slots, slot)
		after = &slot
	}
}

func (p *Planner) next(now time.Time, history []account.HistoryEntry, schedule []account.TimeOfDay, after *time.Time) (time.Time, bool, error) {
	if len(schedule) == 0 {
		return time.Time{}, false, ErrEmptySchedule
	}

	anchor := now
	if after != nil {
		anchor = *after
	} else if latest, found := latestTimestamp(history); found && latest.After(now) {
		anchor = latest
	}
	anchor = anchor.In(p.location())
	limit := now.Add(p.horizon())

	times := sortedTimes(schedule)

	// A candidate past the anchor always exists by the following day.
	y, m, d := anchor.Date()
	for day := 0; day <= 1; day++ {
		for _, t := range times {
			candidate := time.Date(y, m, d+day, t.Hour, t.Minute, 0, 0, anchor.Location())
			if !candidate.After(anchor) {
				continue
			}
			if candidate.After(limit) {
				return time.Time{}, false, nil
			}
			return candidate, true, nil
		}
	}
	return time.Time{}, false, nil
}

func sortedTimes(schedule []account.TimeOfDay) []account.TimeOfDay {
	times := append([]account.TimeOfDay(nil), schedule...)
	sort.SliceStable(times, func(i, j int) bool { return times[i].Minutes() < times[j].Minutes() })
	return times
}

func latestTimestamp(history []account.HistoryEntry) (time.Time, bool) {
	var latest time.Time
	for i, e := range history {
		if i == 0 || e.Timestamp.After(latest) {
			latest = e.Timestamp
		}
	}
	return latest, len(history) > 0
}

func (p *Planner) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func (p *Planner) horizon() time.Duration {
	if p.Horizon > 0 {
		return p.Horizon
	}
	return DefaultHorizon
}

func (p *Planner) location() *time.Location {
	if p.Location != nil {
		return p.Location
	}
	return time.Local
}
