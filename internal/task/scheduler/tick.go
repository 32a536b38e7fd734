package scheduler

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"cronkeep/internal/task"
)

// DefaultTick is used when the driver tick is empty.
const DefaultTick = time.Minute

var tickParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseTick parses the driver tick.
//
// Supported forms:
//   - Cron: "*/5 * * * *", "@every 30s", "@hourly"
//   - Go duration: "30s", "2m"
//   - HH:MM: "00:05"
func ParseTick(raw string) (cron.Schedule, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return cron.Every(DefaultTick), nil
	}
	if strings.ContainsAny(s, " \t") || strings.HasPrefix(s, "@") {
		sched, err := tickParser.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("invalid tick %q: %w", raw, err)
		}
		return sched, nil
	}
	if d, err := time.ParseDuration(s); err == nil {
		if d < time.Second {
			return nil, fmt.Errorf("tick must be >= 1s (got %s)", d)
		}
		return cron.Every(d), nil
	}
	d, err := task.ParseInterval(s)
	if err != nil {
		return nil, fmt.Errorf("invalid tick %q (use cron like '*/5 * * * *', HH:MM, or a duration like '30s')", raw)
	}
	return cron.Every(d), nil
}
