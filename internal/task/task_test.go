package task

import (
	"errors"
	"testing"
	"time"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func TestComputeNextIsExact(t *testing.T) {
	t.Parallel()
	for _, mins := range []int{1, 7, 30, 60, 1440} {
		iv := Minutes(mins)
		ref := t0
		for i := 0; i < 100; i++ {
			next := ComputeNext(ref, iv)
			if next.Sub(ref) != iv {
				t.Fatalf("ComputeNext(%v, %v) - ref = %v", ref, iv, next.Sub(ref))
			}
			ref = next
		}
		if want := t0.Add(100 * iv); !ref.Equal(want) {
			t.Fatalf("after 100 steps of %v: %v, want %v", iv, ref, want)
		}
	}
}

func TestAdvanceNeverMovesBackwards(t *testing.T) {
	t.Parallel()
	prev := t0.Add(2 * time.Hour)
	// Clock stepped back an hour: candidate would be t0+30m.
	got := Advance(prev, t0, 30*time.Minute)
	if !got.Equal(prev) {
		t.Fatalf("Advance = %v, want %v", got, prev)
	}
	got = Advance(t0, t0.Add(31*time.Minute), 30*time.Minute)
	if want := t0.Add(61 * time.Minute); !got.Equal(want) {
		t.Fatalf("Advance = %v, want %v", got, want)
	}
}

func TestNewTask(t *testing.T) {
	t.Parallel()
	tk, err := New("id-1", Spec{Prompt: "check mail", Interval: 30 * time.Minute, SessionID: " s1 "}, t0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if tk.Name != DefaultName {
		t.Fatalf("Name = %q, want %q", tk.Name, DefaultName)
	}
	if tk.Status != StatusIdle {
		t.Fatalf("Status = %s, want idle", tk.Status)
	}
	if !tk.NextRunUTC.Equal(t0.Add(30 * time.Minute)) {
		t.Fatalf("NextRunUTC = %v", tk.NextRunUTC)
	}
	if !tk.LastRunUTC.IsZero() {
		t.Fatalf("LastRunUTC should be zero before the first run")
	}
	if tk.SessionID != "s1" {
		t.Fatalf("SessionID = %q", tk.SessionID)
	}
	if tk.IntervalMinutes() != 30 {
		t.Fatalf("IntervalMinutes = %d", tk.IntervalMinutes())
	}
}

func TestNewTaskRejectsBadInput(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		spec Spec
	}{
		{name: "zero interval", spec: Spec{Prompt: "x", Interval: 0}},
		{name: "negative interval", spec: Spec{Prompt: "x", Interval: -time.Minute}},
		{name: "sub-minute interval", spec: Spec{Prompt: "x", Interval: 30 * time.Second}},
		{name: "empty prompt", spec: Spec{Prompt: "  ", Interval: time.Minute}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := New("id", tt.spec, t0)
			if !errors.Is(err, ErrInvalidArgument) {
				t.Fatalf("err = %v, want ErrInvalidArgument", err)
			}
		})
	}
}

func TestReleased(t *testing.T) {
	t.Parallel()
	tk, _ := New("id", Spec{Prompt: "p", Interval: 30 * time.Minute}, t0)
	tk.Status = StatusRunning

	ok := tk.Released(OutcomeSuccess, t0.Add(31*time.Minute))
	if ok.Status != StatusIdle || !ok.LastRunUTC.Equal(t0.Add(31*time.Minute)) || !ok.NextRunUTC.Equal(t0.Add(61*time.Minute)) {
		t.Fatalf("unexpected released task: %+v", ok)
	}
	if ok.RunCount != 1 {
		t.Fatalf("RunCount = %d", ok.RunCount)
	}

	failed := tk.Released(OutcomeFailure, t0.Add(40*time.Minute))
	if failed.Status != StatusIdle {
		t.Fatalf("failure should reschedule, got %s", failed.Status)
	}
	if failed.LastOutcome.Reported() != OutcomeFailure {
		t.Fatalf("LastOutcome = %s", failed.LastOutcome)
	}

	fatal := tk.Released(OutcomeFatal, t0.Add(40*time.Minute))
	if fatal.Status != StatusDisabled {
		t.Fatalf("fatal should disable, got %s", fatal.Status)
	}
	if fatal.LastOutcome.Reported() != OutcomeFailure {
		t.Fatalf("fatal is reported as failure")
	}
}

func TestDue(t *testing.T) {
	t.Parallel()
	tk, _ := New("id", Spec{Prompt: "p", Interval: 30 * time.Minute}, t0)
	if tk.Due(t0.Add(10 * time.Minute)) {
		t.Fatalf("task should not be due before next_run_utc")
	}
	if !tk.Due(t0.Add(30 * time.Minute)) {
		t.Fatalf("task should be due exactly at next_run_utc")
	}
	tk.Status = StatusRunning
	if tk.Due(t0.Add(time.Hour)) {
		t.Fatalf("running task must not be due")
	}
}

func TestValidateLimit(t *testing.T) {
	t.Parallel()
	for _, n := range []int{0, -1} {
		if err := ValidateLimit(n); !errors.Is(err, ErrInvalidArgument) {
			t.Fatalf("ValidateLimit(%d) = %v", n, err)
		}
	}
	if err := ValidateLimit(1); err != nil {
		t.Fatalf("ValidateLimit(1) = %v", err)
	}
}
