package scheduler

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"cronkeep/internal/task"
)

// Options tunes RunDue.
type Options struct {
	// Workers > 1 dispatches acquired tasks concurrently. Report order is kept.
	Workers int
	// DispatchTimeout bounds one dispatch. 0 means no timeout.
	DispatchTimeout time.Duration
	// HistorySize bounds the in-memory run history exposed by Snapshot.
	HistorySize int
	// ReleaseBackoff is the first wait before retrying a failed Release.
	// It doubles per attempt. 0 means 200ms.
	ReleaseBackoff time.Duration
}

const releaseAttempts = 5

func (o Options) releaseBackoff() time.Duration {
	if o.ReleaseBackoff <= 0 {
		return 200 * time.Millisecond
	}
	return o.ReleaseBackoff
}

func (o Options) historySize() int {
	if o.HistorySize <= 0 {
		return 50
	}
	return o.HistorySize
}

// Entry describes one dispatched task in a Report.
type Entry struct {
	ID         string       `json:"id"`
	Name       string       `json:"name"`
	Outcome    task.Outcome `json:"outcome"`
	Error      string       `json:"error,omitempty"`
	Output     string       `json:"output,omitempty"`
	NextRunUTC time.Time    `json:"next_run_utc,omitempty"`
	Disabled   bool         `json:"disabled,omitempty"`
	// Deleted is set when the task was deleted while it ran.
	Deleted bool `json:"deleted,omitempty"`
}

// Report is the result of one RunDue call, in candidate order.
type Report struct {
	RanAt   time.Time `json:"ran_at"`
	Entries []Entry   `json:"entries"`
}

func (r Report) Failed() int {
	n := 0
	for _, e := range r.Entries {
		if e.Outcome != task.OutcomeSuccess {
			n++
		}
	}
	return n
}

// Text renders the report the way the chat tools print it.
func (r Report) Text() string {
	if len(r.Entries) == 0 {
		return "No due cron tasks."
	}
	var b strings.Builder
	for i, e := range r.Entries {
		if i > 0 {
			b.WriteByte('\n')
		}
		next := ""
		if !e.NextRunUTC.IsZero() {
			next = e.NextRunUTC.Format(time.RFC3339)
		}
		fmt.Fprintf(&b, "- id=%s status=%s next=%s", e.ID, e.Outcome, next)
		switch {
		case e.Deleted:
			b.WriteString(" (deleted)")
		case e.Disabled:
			b.WriteString(" (disabled)")
		}
		result := e.Output
		if e.Error != "" {
			result = e.Error
		}
		if result != "" {
			fmt.Fprintf(&b, "\n  result=%s", clip(result, 600))
		}
	}
	return b.String()
}

// clip cuts s to at most n runes.
func clip(s string, n int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "…"
}
