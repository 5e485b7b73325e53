package planner

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clipsync/internal/account"
)

var (
	testNow      = time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)
	testSchedule = []account.TimeOfDay{{Hour: 12, Minute: 0}, {Hour: 16, Minute: 30}}
)

func newTestPlanner() *Planner {
	return &Planner{
		Horizon:  DefaultHorizon,
		Now:      func() time.Time { return testNow },
		Location: time.UTC,
	}
}

func at(day, hour, minute int) time.Time {
	return time.Date(2024, 5, day, hour, minute, 0, 0, time.UTC)
}

func TestNextSlot_Anchors(t *testing.T) {
	tests := []struct {
		name    string
		history []account.HistoryEntry
		after   *time.Time
		want    time.Time
	}{
		{
			name: "no history anchors on now",
			want: at(10, 12, 0),
		},
		{
			name:  "between times same day",
			after: ptr(at(10, 13, 0)),
			want:  at(10, 16, 30),
		},
		{
			name:  "after last time rolls to next day",
			after: ptr(at(10, 17, 0)),
			want:  at(11, 12, 0),
		},
		{
			name:  "anchor equal to slot is skipped",
			after: ptr(at(10, 12, 0)),
			want:  at(10, 16, 30),
		},
		{
			name: "latest history timestamp wins over insertion order",
			history: []account.HistoryEntry{
				{ContentID: "a", Timestamp: at(12, 16, 30)},
				{ContentID: "b", Timestamp: at(11, 12, 0)},
			},
			want: at(13, 12, 0),
		},
		{
			name: "after overrides history",
			history: []account.HistoryEntry{
				{ContentID: "a", Timestamp: at(15, 12, 0)},
			},
			after: ptr(at(10, 13, 0)),
			want:  at(10, 16, 30),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestPlanner()
			got, ok, err := p.NextSlot(tt.history, testSchedule, tt.after)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNextSlot_UnsortedScheduleUsesEarliestTime(t *testing.T) {
	p := newTestPlanner()
	schedule := []account.TimeOfDay{{Hour: 16, Minute: 30}, {Hour: 12, Minute: 0}}

	got, ok, err := p.NextSlot(nil, schedule, ptr(at(10, 17, 0)))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, at(11, 12, 0), got)
}

func TestNextSlot_BeyondHorizon(t *testing.T) {
	p := newTestPlanner()
	history := []account.HistoryEntry{{ContentID: "a", Timestamp: testNow.Add(DefaultHorizon)}}

	_, ok, err := p.NextSlot(history, testSchedule, nil)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNextSlot_SlotOnHorizonBoundaryIsOffered(t *testing.T) {
	p := newTestPlanner()
	limit := testNow.Add(DefaultHorizon)
	schedule := []account.TimeOfDay{{Hour: limit.Hour(), Minute: limit.Minute()}}

	got, ok, err := p.NextSlot(nil, schedule, ptr(limit.Add(-time.Minute)))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, limit, got)
}

func TestNextSlot_EmptySchedule(t *testing.T) {
	p := newTestPlanner()
	_, _, err := p.NextSlot(nil, nil, nil)
	assert.ErrorIs(t, err, ErrEmptySchedule)
	assert.ErrorIs(t, err, account.ErrInvalidSchedule)
}

func TestNextSlot_StrictlyAfterAnchor(t *testing.T) {
	p := newTestPlanner()
	for minute := 0; minute < 48*60; minute += 7 {
		anchor := testNow.Add(time.Duration(minute) * time.Minute)
		got, ok, err := p.NextSlot(nil, testSchedule, &anchor)
		require.NoError(t, err)
		if ok {
			assert.True(t, got.After(anchor), "slot %v not after anchor %v", got, anchor)
		}
	}
}

func TestSlots_StrictlyIncreasingWithinHorizon(t *testing.T) {
	p := newTestPlanner()
	slots, err := p.Slots(nil, testSchedule)
	require.NoError(t, err)

	// Day 10 at 12:00 through day 20 at 09:00: two per day for ten days.
	require.Len(t, slots, 20)
	assert.Equal(t, at(10, 12, 0), slots[0])
	assert.Equal(t, at(19, 16, 30), slots[len(slots)-1])

	limit := testNow.Add(DefaultHorizon)
	for i, s := range slots {
		assert.False(t, s.After(limit), "slot %v beyond horizon", s)
		if i > 0 {
			assert.True(t, s.After(slots[i-1]), "slots not strictly increasing at %d", i)
		}
	}
}

func TestSlots_ResumesAfterHistory(t *testing.T) {
	p := newTestPlanner()
	history := []account.HistoryEntry{{ContentID: "a", Timestamp: at(18, 16, 30)}}

	slots, err := p.Slots(history, testSchedule)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{at(19, 12, 0), at(19, 16, 30)}, slots)
}

func TestSlots_StaleHistoryStartsFromNow(t *testing.T) {
	p := newTestPlanner()
	history := []account.HistoryEntry{{ContentID: "a", Timestamp: testNow.Add(-5 * 24 * time.Hour)}}

	slots, err := p.Slots(history, testSchedule)
	require.NoError(t, err)
	require.Len(t, slots, 20)
	assert.Equal(t, at(10, 12, 0), slots[0])
	for _, s := range slots {
		assert.True(t, s.After(testNow), "slot %v is in the past", s)
	}
}

func TestNextSlot_StaleHistorySameDay(t *testing.T) {
	p := newTestPlanner()
	p.Now = func() time.Time { return at(10, 13, 0) }
	history := []account.HistoryEntry{{ContentID: "a", Timestamp: at(10, 12, 0)}}

	got, ok, err := p.NextSlot(history, testSchedule, nil)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, at(10, 16, 30), got)
}

func TestSlots_Saturated(t *testing.T) {
	p := newTestPlanner()
	history := []account.HistoryEntry{{ContentID: "a", Timestamp: at(20, 12, 0)}}

	slots, err := p.Slots(history, testSchedule)
	require.NoError(t, err)
	assert.Empty(t, slots)
}

func TestPlanner_ZeroValueDefaults(t *testing.T) {
	var p Planner
	slots, err := p.Slots(nil, testSchedule)
	require.NoError(t, err)
	assert.NotEmpty(t, slots)
	assert.LessOrEqual(t, len(slots), 2*(HorizonDays+1))
}

func ptr(t time.Time) *time.Time { return &t }
