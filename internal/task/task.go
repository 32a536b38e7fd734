// Package task defines the recurring task record, its interval arithmetic and
// the error taxonomy shared by the store, scheduler and tool surface.
package task

import (
	"strings"
	"time"
)

// New validates spec and builds an idle task created at now.
// It is the only constructor stores use, so every driver applies the same rules.
func New(id string, spec Spec, now time.Time) (Task, error) {
	if err := ValidateSpec(spec); err != nil {
		return Task{}, err
	}
	if strings.TrimSpace(id) == "" {
		return Task{}, invalidf("id required")
	}
	name := strings.TrimSpace(spec.Name)
	if name == "" {
		name = DefaultName
	}
	now = now.UTC()
	return Task{
		ID:         id,
		Name:       name,
		Prompt:     spec.Prompt,
		Interval:   spec.Interval,
		SessionID:  strings.TrimSpace(spec.SessionID),
		Status:     StatusIdle,
		NextRunUTC: ComputeNext(now, spec.Interval),
		CreatedUTC: now,
	}, nil
}

// ValidateSpec checks the caller-provided fields.
func ValidateSpec(spec Spec) error {
	if strings.TrimSpace(spec.Prompt) == "" {
		return invalidf("prompt must not be empty")
	}
	return ValidateInterval(spec.Interval)
}

// Released applies a dispatch outcome to a running task.
func (t Task) Released(outcome Outcome, now time.Time) Task {
	now = now.UTC()
	t.LastRunUTC = now
	t.NextRunUTC = Advance(t.NextRunUTC, now, t.Interval)
	t.RunCount++
	t.LastOutcome = outcome
	if outcome == OutcomeFatal {
		t.Status = StatusDisabled
	} else {
		t.Status = StatusIdle
	}
	return t
}

// LessDue orders tasks oldest-due first, then by creation, then id.
func LessDue(a, b Task) bool {
	if !a.NextRunUTC.Equal(b.NextRunUTC) {
		return a.NextRunUTC.Before(b.NextRunUTC)
	}
	return LessCreated(a, b)
}

// LessCreated orders tasks by creation time, then id.
func LessCreated(a, b Task) bool {
	if !a.CreatedUTC.Equal(b.CreatedUTC) {
		return a.CreatedUTC.Before(b.CreatedUTC)
	}
	return a.ID < b.ID
}
