package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"cronkeep/internal/clock"
	"cronkeep/internal/task"
)

// journal persists task mutations for the file driver.
//
// append is called with the store lock held, before the mutation is applied;
// an error aborts the mutation. applied runs afterwards, still under the lock.
type journal interface {
	append(rec journalRecord) error
	applied()
}

type journalOp string

const (
	opPut journalOp = "put"
	opDel journalOp = "del"
)

type journalRecord struct {
	Op   journalOp  `json:"op"`
	ID   string     `json:"id"`
	Task *task.Task `json:"task,omitempty"`
}

// memStore keeps tasks in a map guarded by one mutex.
// The lock is held only for the duration of a single transition, never across a dispatch.
type memStore struct {
	mu     sync.Mutex
	clock  clock.Clock
	tasks  map[string]task.Task
	runs   []task.Run // oldest first
	keep   int
	j      journal
	closed bool
}

func newMemStore(clk clock.Clock, keep int) *memStore {
	if keep <= 0 {
		keep = defaultHistorySize
	}
	return &memStore{
		clock: clock.Or(clk),
		tasks: map[string]task.Task{},
		keep:  keep,
	}
}

// commitLocked journals rec (if a journal is attached) and applies it.
func (s *memStore) commitLocked(rec journalRecord) error {
	if s.j != nil {
		if err := s.j.append(rec); err != nil {
			return err
		}
	}
	switch rec.Op {
	case opPut:
		s.tasks[rec.ID] = *rec.Task
	case opDel:
		delete(s.tasks, rec.ID)
	}
	if s.j != nil {
		s.j.applied()
	}
	return nil
}

func (s *memStore) Create(ctx context.Context, spec task.Spec) (task.Task, error) {
	_ = ctx
	if err := task.ValidateSpec(spec); err != nil {
		return task.Task{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return task.Task{}, ErrClosed
	}
	id := newID()
	for {
		if _, taken := s.tasks[id]; !taken {
			break
		}
		id = newID()
	}
	t, err := task.New(id, spec, s.clock.Now())
	if err != nil {
		return task.Task{}, err
	}
	if err := s.commitLocked(journalRecord{Op: opPut, ID: id, Task: &t}); err != nil {
		return task.Task{}, err
	}
	return t, nil
}

func (s *memStore) Get(ctx context.Context, id string) (task.Task, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return task.Task{}, task.NotFound(id)
	}
	return t, nil
}

func (s *memStore) List(ctx context.Context) ([]task.Task, error) {
	_ = ctx
	s.mu.Lock()
	out := make([]task.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return task.LessCreated(out[i], out[j]) })
	return out, nil
}

func (s *memStore) Delete(ctx context.Context, id string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if _, ok := s.tasks[id]; !ok {
		return task.NotFound(id)
	}
	return s.commitLocked(journalRecord{Op: opDel, ID: id})
}

func (s *memStore) GetDue(ctx context.Context, now time.Time, limit int) ([]task.Task, error) {
	_ = ctx
	if err := task.ValidateLimit(limit); err != nil {
		return nil, err
	}
	s.mu.Lock()
	var due []task.Task
	for _, t := range s.tasks {
		if t.Due(now) {
			due = append(due, t)
		}
	}
	s.mu.Unlock()
	sort.Slice(due, func(i, j int) bool { return task.LessDue(due[i], due[j]) })
	if len(due) > limit {
		due = due[:limit]
	}
	if due == nil {
		due = []task.Task{}
	}
	return due, nil
}

func (s *memStore) TryAcquire(ctx context.Context, id string) (bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrClosed
	}
	t, ok := s.tasks[id]
	if !ok || t.Status != task.StatusIdle {
		return false, nil
	}
	t.Status = task.StatusRunning
	if err := s.commitLocked(journalRecord{Op: opPut, ID: id, Task: &t}); err != nil {
		return false, err
	}
	return true, nil
}

func (s *memStore) Release(ctx context.Context, id string, outcome task.Outcome, now time.Time) (task.Task, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return task.Task{}, ErrClosed
	}
	t, ok := s.tasks[id]
	if !ok {
		return task.Task{}, task.NotFound(id)
	}
	if t.Status != task.StatusRunning {
		return t, ErrNotRunning
	}
	t = t.Released(outcome, now)
	if err := s.commitLocked(journalRecord{Op: opPut, ID: id, Task: &t}); err != nil {
		return task.Task{}, err
	}
	return t, nil
}

func (s *memStore) RecordRun(ctx context.Context, r task.Run) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendRunLocked(r)
	return nil
}

func (s *memStore) appendRunLocked(r task.Run) {
	s.runs = append(s.runs, r)
	if len(s.runs) > s.keep {
		s.runs = append([]task.Run(nil), s.runs[len(s.runs)-s.keep:]...)
	}
}

func (s *memStore) History(ctx context.Context, taskID string, limit int) ([]task.Run, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]task.Run, 0)
	for i := len(s.runs) - 1; i >= 0; i-- {
		r := s.runs[i]
		if taskID != "" && r.TaskID != taskID {
			continue
		}
		out = append(out, r)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *memStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// recoverRunningLocked returns tasks left running by a crash to idle.
// Their next_run_utc is untouched, so they are due again immediately if it has passed.
func (s *memStore) recoverRunningLocked() int {
	n := 0
	for id, t := range s.tasks {
		if t.Status == task.StatusRunning {
			t.Status = task.StatusIdle
			s.tasks[id] = t
			n++
		}
	}
	return n
}
