package youtube

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var isoDurationRegex = regexp.MustCompile(`^P(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?)?$`)

// ParseISODuration parses the ISO 8601 durations returned by the Data API,
// such as "PT4M13S" or "P1DT2H".
func ParseISODuration(s string) (time.Duration, error) {
	m := isoDurationRegex.FindStringSubmatch(s)
	if m == nil || s == "P" || s == "PT" {
		return 0, fmt.Errorf("invalid ISO 8601 duration %q", s)
	}
	units := []time.Duration{24 * time.Hour, time.Hour, time.Minute, time.Second}
	var d time.Duration
	for i, unit := range units {
		if m[i+1] == "" {
			continue
		}
		n, err := strconv.Atoi(m[i+1])
		if err != nil {
			return 0, fmt.Errorf("invalid ISO 8601 duration %q: %w", s, err)
		}
		d += time.Duration(n) * unit
	}
	return d, nil
}

// ParseClockDuration parses "ss", "mm:ss" or "HH:mm:ss".
func ParseClockDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}
	parts := strings.Split(s, ":")
	if len(parts) > 3 {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	var total int
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
		total = total*60 + n
	}
	return time.Duration(total) * time.Second, nil
}
