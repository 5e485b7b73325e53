package account

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeOfDay(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    TimeOfDay
		wantErr bool
	}{
		{"noon", "12:00", TimeOfDay{12, 0}, false},
		{"afternoon", "16:30", TimeOfDay{16, 30}, false},
		{"single digit hour", "9:05", TimeOfDay{9, 5}, false},
		{"midnight", "00:00", TimeOfDay{0, 0}, false},
		{"surrounding space", " 23:55 ", TimeOfDay{23, 55}, false},
		{"hour too large", "24:00", TimeOfDay{}, true},
		{"minute too large", "12:60", TimeOfDay{}, true},
		{"missing colon", "1200", TimeOfDay{}, true},
		{"single digit minute", "12:5", TimeOfDay{}, true},
		{"minute off picker step", "12:03", TimeOfDay{}, true},
		{"last minute of day", "23:59", TimeOfDay{}, true},
		{"letters", "ab:cd", TimeOfDay{}, true},
		{"empty", "", TimeOfDay{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTimeOfDay(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidSchedule))
				var schedErr *ScheduleError
				assert.True(t, errors.As(err, &schedErr))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseSchedule_SortsAndDedupes(t *testing.T) {
	times, err := ParseSchedule([]string{"16:30", "12:00", "16:30", "08:15"})
	require.NoError(t, err)

	got := make([]string, len(times))
	for i, tm := range times {
		got[i] = tm.String()
	}
	assert.Equal(t, []string{"08:15", "12:00", "16:30"}, got)
}

func TestParseSchedule_Empty(t *testing.T) {
	_, err := ParseSchedule(nil)
	assert.ErrorIs(t, err, ErrInvalidSchedule)
}

func TestAccount_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(a *Account)
		wantErr error
	}{
		{"defaults", func(a *Account) {}, nil},
		{"empty id", func(a *Account) { a.ID = "" }, ErrInvalidAccount},
		{"comma in id", func(a *Account) { a.ID = "a,b@example.com" }, ErrInvalidAccount},
		{"zero clip length", func(a *Account) { a.Preferences.ClipSeconds = 0 }, ErrInvalidAccount},
		{"zero source length", func(a *Account) { a.Preferences.MaxSourceSeconds = 0 }, ErrInvalidAccount},
		{"empty schedule", func(a *Account) { a.Schedule = nil }, ErrInvalidSchedule},
		{"malformed schedule", func(a *Account) { a.Schedule = []string{"noon"} }, ErrInvalidSchedule},
		{"schedule off picker step", func(a *Account) { a.Schedule = []string{"12:00", "16:32"} }, ErrInvalidSchedule},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := New("creator@example.com")
			tt.mutate(a)
			err := a.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestAccount_LastEntry(t *testing.T) {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	a := New("creator@example.com")

	_, ok := a.LastEntry()
	assert.False(t, ok)

	a.History = []HistoryEntry{
		{ContentID: "late", Timestamp: base.Add(48 * time.Hour)},
		{ContentID: "early", Timestamp: base},
		{ContentID: "middle", Timestamp: base.Add(24 * time.Hour)},
	}
	last, ok := a.LastEntry()
	require.True(t, ok)
	assert.Equal(t, "late", last.ContentID)
}

func TestAccount_Record(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	a := New("creator@example.com")

	require.NoError(t, a.Record("abc", ts))
	require.NoError(t, a.Record("abc", ts.Add(time.Hour)))
	assert.ErrorIs(t, a.Record("abc", ts), ErrDuplicateEntry)
	assert.Len(t, a.History, 2)
	assert.True(t, a.Posted("abc"))
	assert.False(t, a.Posted("xyz"))
}

func TestPreferences_Durations(t *testing.T) {
	p := Preferences{ClipSeconds: 45, MaxSourceSeconds: 900}
	assert.Equal(t, 45*time.Second, p.ClipDuration())
	assert.Equal(t, 15*time.Minute, p.MaxSourceDuration())
}
