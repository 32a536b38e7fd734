package task

import "time"

type Status string

const (
	StatusIdle     Status = "idle"
	StatusRunning  Status = "running"
	StatusDisabled Status = "disabled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusIdle, StatusRunning, StatusDisabled:
		return true
	}
	return false
}

// Outcome is the result of one dispatch as seen by the store.
//
// OutcomeFatal is reported to callers as a failure but moves the task to
// StatusDisabled instead of rescheduling it.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeFatal   Outcome = "fatal"
)

// Reported maps an outcome to the two values visible to tool callers.
func (o Outcome) Reported() Outcome {
	if o == OutcomeSuccess {
		return OutcomeSuccess
	}
	return OutcomeFailure
}

// DefaultName is used when a task is created without a name.
const DefaultName = "Unnamed cron task"

// Task is a recurring unit of work.
//
// Only the store mutates a Task; values handed out by the store are copies.
type Task struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Prompt    string        `json:"prompt"`
	Interval  time.Duration `json:"interval"`
	SessionID string        `json:"session_id,omitempty"`

	Status     Status    `json:"status"`
	NextRunUTC time.Time `json:"next_run_utc"`
	LastRunUTC time.Time `json:"last_run_utc,omitempty"`
	CreatedUTC time.Time `json:"created_utc"`

	RunCount    int     `json:"run_count"`
	LastOutcome Outcome `json:"last_outcome,omitempty"`
}

// IntervalMinutes returns the interval in whole minutes (rounded down).
func (t Task) IntervalMinutes() int {
	return int(t.Interval / time.Minute)
}

// Due reports whether the task may be selected at now.
func (t Task) Due(now time.Time) bool {
	return t.Status == StatusIdle && !t.NextRunUTC.After(now)
}

// Spec is the caller-provided part of a new task.
type Spec struct {
	Name      string
	Prompt    string
	Interval  time.Duration
	SessionID string
}

// Run records one dispatch of a task.
type Run struct {
	TaskID      string    `json:"task_id"`
	TaskName    string    `json:"task_name"`
	StartedUTC  time.Time `json:"started_utc"`
	FinishedUTC time.Time `json:"finished_utc"`
	Outcome     Outcome   `json:"outcome"`
	Disabled    bool      `json:"disabled,omitempty"`
	Error       string    `json:"error,omitempty"`
	Output      string    `json:"output,omitempty"`
}

func (r Run) Duration() time.Duration {
	if r.FinishedUTC.Before(r.StartedUTC) {
		return 0
	}
	return r.FinishedUTC.Sub(r.StartedUTC)
}
