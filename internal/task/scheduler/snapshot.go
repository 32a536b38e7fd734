package scheduler

import (
	"time"

	"cronkeep/internal/task"
)

// Snapshot is a diagnostics view of the scheduler.
type Snapshot struct {
	Workers         int           `json:"workers"`
	DispatchTimeout time.Duration `json:"dispatch_timeout"`
	Calls           uint64        `json:"calls"`
	Runs            uint64        `json:"runs"`
	Failures        uint64        `json:"failures"`
	LastCall        time.Time     `json:"last_call,omitempty"`
	// History holds recent runs of this process, newest first.
	History []task.Run `json:"history"`
}

func (s *Scheduler) Snapshot() Snapshot {
	opt := s.options()
	s.hmu.Lock()
	hist := make([]task.Run, 0, len(s.history))
	for i := len(s.history) - 1; i >= 0; i-- {
		hist = append(hist, s.history[i])
	}
	s.hmu.Unlock()

	snap := Snapshot{
		Workers:         max(opt.Workers, 1),
		DispatchTimeout: opt.DispatchTimeout,
		Calls:           s.calls.Load(),
		Runs:            s.runs.Load(),
		Failures:        s.failures.Load(),
		History:         hist,
	}
	if ns := s.lastCall.Load(); ns != 0 {
		snap.LastCall = time.Unix(0, ns).UTC()
	}
	return snap
}

// DriverSnapshot is a diagnostics view of the driver.
type DriverSnapshot struct {
	Running  bool      `json:"running"`
	Tick     string    `json:"tick"`
	Limit    int       `json:"limit"`
	Ticks    uint64    `json:"ticks"`
	LastTick time.Time `json:"last_tick,omitempty"`
	NextTick time.Time `json:"next_tick,omitempty"`
}

func (d *Driver) Snapshot() DriverSnapshot {
	d.mu.Lock()
	snap := DriverSnapshot{
		Running: d.started,
		Tick:    tickLabel(d.cfg.Tick),
		Limit:   d.cfg.limit(),
	}
	if d.c != nil && d.entry != 0 {
		snap.NextTick = d.c.Entry(d.entry).Next
	}
	d.mu.Unlock()
	snap.Ticks = d.ticks.Load()
	if ns := d.lastTick.Load(); ns != 0 {
		snap.LastTick = time.Unix(0, ns).UTC()
	}
	return snap
}
