package task

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// MinInterval is the smallest accepted interval.
const MinInterval = time.Minute

// MaxInterval keeps next_run_utc well inside the UnixNano range.
const (
	MaxInterval        = 100 * 365 * 24 * time.Hour
	MaxIntervalMinutes = int(MaxInterval / time.Minute)
)

// ComputeNext returns the next eligible run time: exactly ref + interval.
//
// ref is the creation instant for new tasks and the completion instant after a
// run (completion-relative policy), never the missed due time.
func ComputeNext(ref time.Time, interval time.Duration) time.Time {
	return ref.Add(interval)
}

// Advance computes the next run after a completion at now, without ever moving
// next_run_utc backwards (e.g. when the clock stepped back).
func Advance(prevNext, now time.Time, interval time.Duration) time.Time {
	next := ComputeNext(now, interval)
	if next.Before(prevNext) {
		return prevNext
	}
	return next
}

// ValidateInterval rejects intervals outside [MinInterval, MaxInterval].
func ValidateInterval(d time.Duration) error {
	if d <= 0 {
		return invalidf("interval must be > 0 (got %s)", d)
	}
	if d < MinInterval {
		return invalidf("interval must be at least %s (got %s)", MinInterval, d)
	}
	if d > MaxInterval {
		return invalidf("interval must be at most %d minutes (got %s)", MaxIntervalMinutes, d)
	}
	return nil
}

// Minutes converts a whole-minute count to an interval. Counts that do not
// fit a Duration saturate, so ValidateInterval rejects them.
func Minutes(n int) time.Duration {
	if int64(n) > math.MaxInt64/int64(time.Minute) {
		return math.MaxInt64
	}
	if int64(n) < math.MinInt64/int64(time.Minute) {
		return math.MinInt64
	}
	return time.Duration(n) * time.Minute
}

var reHHMM = regexp.MustCompile(`^\s*(\d{1,3}):(\d{2})\s*$`)

// ParseInterval parses a human interval.
//
// Supported forms:
//   - Bare minutes: "30"
//   - Go duration: "45m", "2h30m"
//   - HH:MM: "01:30" (1 hour 30 minutes)
//
// The result is validated with ValidateInterval.
func ParseInterval(raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, invalidf("interval required")
	}

	var d time.Duration
	switch {
	case isDigits(s):
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0, invalidf("interval %q out of range", raw)
		}
		d = Minutes(n)
	case reHHMM.MatchString(s):
		v, err := parseHHMMDuration(s)
		if err != nil {
			return 0, err
		}
		d = v
	default:
		v, err := time.ParseDuration(s)
		if err != nil {
			return 0, invalidf("invalid interval %q (use minutes like '30', HH:MM like '02:30', or duration like '55m')", raw)
		}
		d = v
	}
	if err := ValidateInterval(d); err != nil {
		return 0, err
	}
	return d, nil
}

func parseHHMMDuration(v string) (time.Duration, error) {
	m := reHHMM.FindStringSubmatch(v)
	if len(m) != 3 {
		return 0, invalidf("invalid HH:MM %q", v)
	}
	hh, _ := strconv.Atoi(m[1])
	mm, _ := strconv.Atoi(m[2])
	if mm > 59 {
		return 0, invalidf("invalid minutes in %q", v)
	}
	return time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// FormatInterval renders an interval compactly ("30m", "2h30m", "2h").
func FormatInterval(d time.Duration) string {
	s := d.String()
	if strings.HasSuffix(s, "m0s") {
		s = s[:len(s)-2]
	}
	if strings.HasSuffix(s, "h0m") {
		s = s[:len(s)-2]
	}
	return s
}
