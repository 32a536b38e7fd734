package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"cronkeep/internal/clock"
	"cronkeep/internal/eventbus"
	"cronkeep/internal/storage"
	"cronkeep/internal/task"
	"cronkeep/internal/task/dispatch"
	logx "cronkeep/pkg/logx"
)

type Scheduler struct {
	store storage.Store
	disp  dispatch.Dispatcher
	clock clock.Clock
	log   logx.Logger
	bus   eventbus.Bus

	mu  sync.Mutex
	opt Options

	hmu     sync.Mutex
	history []task.Run

	calls    atomic.Uint64
	runs     atomic.Uint64
	failures atomic.Uint64
	lastCall atomic.Int64 // unix nanos
}

// New wires a scheduler. bus may be nil.
func New(store storage.Store, disp dispatch.Dispatcher, clk clock.Clock, log logx.Logger, bus eventbus.Bus, opt Options) *Scheduler {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Scheduler{
		store: store,
		disp:  dispatch.Guard(disp),
		clock: clock.Or(clk),
		log:   log.With(logx.String("comp", "scheduler")),
		bus:   bus,
		opt:   opt,
	}
}

// Apply swaps the options used by subsequent RunDue calls.
func (s *Scheduler) Apply(opt Options) {
	s.mu.Lock()
	s.opt = opt
	s.mu.Unlock()
}

func (s *Scheduler) options() Options {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opt
}

// RunDue executes up to limit due tasks and reports each one.
//
// Dispatch failures are reported in the entries, not returned. The error is
// non-nil only for an invalid limit or when due selection itself fails.
func (s *Scheduler) RunDue(ctx context.Context, limit int) (Report, error) {
	if err := task.ValidateLimit(limit); err != nil {
		return Report{}, err
	}
	now := s.clock.Now()
	s.calls.Add(1)
	s.lastCall.Store(now.UnixNano())

	due, err := s.store.GetDue(ctx, now, limit)
	if err != nil {
		return Report{}, fmt.Errorf("select due tasks: %w", err)
	}
	rep := Report{RanAt: now, Entries: []Entry{}}
	if len(due) == 0 {
		return rep, nil
	}

	opt := s.options()
	entries := make([]Entry, len(due))
	ran := make([]bool, len(due))

	if opt.Workers <= 1 || len(due) == 1 {
		for i, t := range due {
			if ctx.Err() != nil {
				break
			}
			entries[i], ran[i] = s.runOne(ctx, t, opt)
		}
	} else {
		var g errgroup.Group
		g.SetLimit(opt.Workers)
		for i, t := range due {
			i, t := i, t
			g.Go(func() error {
				if ctx.Err() != nil {
					return nil
				}
				entries[i], ran[i] = s.runOne(ctx, t, opt)
				return nil
			})
		}
		_ = g.Wait()
	}

	for i := range entries {
		if ran[i] {
			rep.Entries = append(rep.Entries, entries[i])
		}
	}
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: eventbus.TypeRunDue, Time: s.clock.Now(), Data: rep})
	}
	if len(rep.Entries) > 0 {
		s.log.Info("run due finished",
			logx.Int("selected", len(due)),
			logx.Int("ran", len(rep.Entries)),
			logx.Int("failed", rep.Failed()),
		)
	}
	return rep, nil
}

// runOne acquires, dispatches and releases t. It reports false when the task
// was not acquired (another caller holds it, it was deleted, or the store failed).
func (s *Scheduler) runOne(ctx context.Context, t task.Task, opt Options) (Entry, bool) {
	log := s.log.With(logx.String("task_id", t.ID), logx.String("name", t.Name))

	ok, err := s.store.TryAcquire(ctx, t.ID)
	if err != nil {
		log.Warn("acquire failed", logx.Err(err))
		return Entry{}, false
	}
	if !ok {
		log.Debug("task not acquired, skipping")
		return Entry{}, false
	}

	started := s.clock.Now()
	dctx := ctx
	if opt.DispatchTimeout > 0 {
		var cancel context.CancelFunc
		dctx, cancel = context.WithTimeout(ctx, opt.DispatchTimeout)
		defer cancel()
	}
	res, derr := s.disp.Execute(dctx, dispatch.Request{
		TaskID:    t.ID,
		Name:      t.Name,
		Prompt:    t.Prompt,
		SessionID: t.SessionID,
	})

	outcome := task.OutcomeSuccess
	switch {
	case derr == nil:
	case dispatch.IsFatal(derr):
		outcome = task.OutcomeFatal
	default:
		outcome = task.OutcomeFailure
	}
	finished := s.clock.Now()

	// The task must leave running even when the caller's context is gone.
	rctx := context.WithoutCancel(ctx)
	entry := Entry{ID: t.ID, Name: t.Name, Outcome: outcome.Reported(), Output: res.Output}
	if derr != nil {
		entry.Error = derr.Error()
	}

	rel, rerr := s.release(rctx, log, t.ID, outcome, finished, opt.releaseBackoff())
	switch {
	case rerr == nil:
		entry.NextRunUTC = rel.NextRunUTC
		entry.Disabled = rel.Status == task.StatusDisabled
	case errors.Is(rerr, task.ErrNotFound):
		entry.Deleted = true
		log.Debug("task deleted while running")
	default:
		log.Error("release failed", logx.Err(rerr))
		entry.Outcome = task.OutcomeFailure
		if entry.Error == "" {
			entry.Error = "release: " + rerr.Error()
		}
	}

	run := task.Run{
		TaskID:      t.ID,
		TaskName:    t.Name,
		StartedUTC:  started,
		FinishedUTC: finished,
		Outcome:     entry.Outcome,
		Disabled:    entry.Disabled,
		Error:       entry.Error,
		Output:      entry.Output,
	}
	if err := s.store.RecordRun(rctx, run); err != nil {
		log.Warn("record run failed", logx.Err(err))
	}
	s.remember(run, opt.historySize())
	s.runs.Add(1)
	if entry.Outcome != task.OutcomeSuccess {
		s.failures.Add(1)
	}
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: eventbus.TypeTaskRun, Time: finished, Data: run})
	}

	fields := []logx.Field{
		logx.String("outcome", string(entry.Outcome)),
		logx.Duration("took", run.Duration()),
	}
	if !entry.NextRunUTC.IsZero() {
		fields = append(fields, logx.Time("next_run_utc", entry.NextRunUTC))
	}
	switch {
	case entry.Disabled:
		log.Warn("task disabled after fatal dispatch error", append(fields, logx.String("err", entry.Error))...)
	case entry.Outcome != task.OutcomeSuccess:
		log.Warn("task failed", append(fields, logx.String("err", entry.Error))...)
	default:
		log.Debug("task ran", fields...)
	}
	return entry, true
}

// release retries transient store failures so a finished dispatch does not
// leave its task running. NotFound, NotRunning and Closed are final.
func (s *Scheduler) release(ctx context.Context, log logx.Logger, id string, outcome task.Outcome, finished time.Time, wait time.Duration) (task.Task, error) {
	for attempt := 1; ; attempt++ {
		rel, err := s.store.Release(ctx, id, outcome, finished)
		if err == nil || attempt == releaseAttempts ||
			errors.Is(err, task.ErrNotFound) ||
			errors.Is(err, storage.ErrNotRunning) ||
			errors.Is(err, storage.ErrClosed) {
			return rel, err
		}
		log.Warn("release failed, retrying", logx.Int("attempt", attempt), logx.Duration("backoff", wait), logx.Err(err))
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return rel, err
		case <-t.C:
		}
		wait *= 2
	}
}

func (s *Scheduler) remember(r task.Run, keep int) {
	s.hmu.Lock()
	s.history = append(s.history, r)
	if len(s.history) > keep {
		s.history = s.history[len(s.history)-keep:]
	}
	s.hmu.Unlock()
}
