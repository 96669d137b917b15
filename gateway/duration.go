package gateway

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Calendar components use fixed lengths; expiry periods are short enough
// that month drift does not matter for a fridge.
const (
	isoDay   = 24 * time.Hour
	isoWeek  = 7 * isoDay
	isoMonth = 30 * isoDay
	isoYear  = 365 * isoDay
)

// ParseISODuration parses an ISO-8601 duration such as "P7D", "PT12H" or
// "P1DT12H" into a time.Duration. Only integer components are accepted.
func ParseISODuration(s string) (time.Duration, error) {
	orig := s
	if len(s) < 2 || s[0] != 'P' {
		return 0, fmt.Errorf("invalid ISO duration %q", orig)
	}
	s = s[1:]

	datePart := s
	timePart := ""
	if i := strings.IndexByte(s, 'T'); i >= 0 {
		datePart, timePart = s[:i], s[i+1:]
		if timePart == "" {
			return 0, fmt.Errorf("invalid ISO duration %q", orig)
		}
	}

	var total time.Duration
	dateUnits := map[byte]time.Duration{'Y': isoYear, 'M': isoMonth, 'W': isoWeek, 'D': isoDay}
	timeUnits := map[byte]time.Duration{'H': time.Hour, 'M': time.Minute, 'S': time.Second}

	for _, part := range []struct {
		text  string
		units map[byte]time.Duration
	}{{datePart, dateUnits}, {timePart, timeUnits}} {
		rest := part.text
		for rest != "" {
			i := 0
			for i < len(rest) && rest[i] >= '0' && rest[i] <= '9' {
				i++
			}
			if i == 0 || i == len(rest) {
				return 0, fmt.Errorf("invalid ISO duration %q", orig)
			}
			unit, ok := part.units[rest[i]]
			if !ok {
				return 0, fmt.Errorf("invalid ISO duration %q", orig)
			}
			n, err := strconv.ParseInt(rest[:i], 10, 64)
			if err != nil {
				return 0, fmt.Errorf("invalid ISO duration %q: %w", orig, err)
			}
			total += time.Duration(n) * unit
			rest = rest[i+1:]
		}
	}

	return total, nil
}
