package account

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ErrInvalidSchedule indicates an empty or malformed posting schedule.
var ErrInvalidSchedule = errors.New("account: invalid schedule")

// ScheduleError reports the schedule entry that failed to parse.
type ScheduleError struct {
	Value  string
	Reason string
}

func (e *ScheduleError) Error() string {
	return fmt.Sprintf("account: invalid schedule time %q: %s", e.Value, e.Reason)
}

func (e *ScheduleError) Unwrap() error { return ErrInvalidSchedule }

// MinuteStep is the granularity of the publishing platform's time picker.
// Schedule minutes must be a multiple of it.
const MinuteStep = 5

// TimeOfDay is a wall-clock posting time.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// String formats the time as HH:MM.
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// Minutes returns the minutes elapsed since midnight.
func (t TimeOfDay) Minutes() int {
	return t.Hour*60 + t.Minute
}

// ParseTimeOfDay parses a 24-hour HH:MM value. A single-digit hour is accepted.
// The minute must be a multiple of MinuteStep.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	v := strings.TrimSpace(s)
	hh, mm, ok := strings.Cut(v, ":")
	if !ok {
		return TimeOfDay{}, &ScheduleError{Value: s, Reason: "expected HH:MM"}
	}
	if len(hh) < 1 || len(hh) > 2 || len(mm) != 2 {
		return TimeOfDay{}, &ScheduleError{Value: s, Reason: "expected HH:MM"}
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return TimeOfDay{}, &ScheduleError{Value: s, Reason: "hour out of range"}
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return TimeOfDay{}, &ScheduleError{Value: s, Reason: "minute out of range"}
	}
	if m%MinuteStep != 0 {
		return TimeOfDay{}, &ScheduleError{Value: s, Reason: fmt.Sprintf("minute must be a multiple of %d", MinuteStep)}
	}
	return TimeOfDay{Hour: h, Minute: m}, nil
}

// ParseSchedule parses every entry, then returns the distinct times in
// ascending order. An empty schedule is invalid.
func ParseSchedule(values []string) ([]TimeOfDay, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: no posting times configured", ErrInvalidSchedule)
	}
	seen := make(map[int]bool, len(values))
	times := make([]TimeOfDay, 0, len(values))
	for _, v := range values {
		t, err := ParseTimeOfDay(v)
		if err != nil {
			return nil, err
		}
		if seen[t.Minutes()] {
			continue
		}
		seen[t.Minutes()] = true
		times = append(times, t)
	}
	sort.Slice(times, func(i, j int) bool { return times[i].Minutes() < times[j].Minutes() })
	return times, nil
}
