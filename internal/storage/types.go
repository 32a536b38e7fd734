package storage

import (
	"context"
	"errors"
	"time"

	"cronkeep/internal/task"
)

// ErrNotRunning is returned by Release when the task exists but is not held.
var ErrNotRunning = errors.New("task not running")

// ErrClosed is returned after Close.
var ErrClosed = errors.New("storage closed")

// Config configures storage.
//
// Driver values:
//   - "memory": process-local map, lost on exit (default)
//   - "file": JSON snapshot + append-only journal under Path
//   - "sqlite": SQLite database file at Path
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
	HistorySize int           // runs kept by History; 0 means 200
}

const defaultHistorySize = 200

func (c Config) historySize() int {
	if c.HistorySize <= 0 {
		return defaultHistorySize
	}
	return c.HistorySize
}

// Store is the task persistence contract.
//
// TryAcquire/Release is the only synchronization primitive the scheduler uses:
// every driver implements both as a single atomic transition per task.
// All other writes go through Create and Delete.
type Store interface {
	Create(ctx context.Context, spec task.Spec) (task.Task, error)
	Get(ctx context.Context, id string) (task.Task, error)
	// List returns live tasks ordered by creation time.
	List(ctx context.Context) ([]task.Task, error)
	Delete(ctx context.Context, id string) error

	// GetDue returns up to limit idle tasks with next_run_utc <= now, oldest-due first.
	GetDue(ctx context.Context, now time.Time, limit int) ([]task.Task, error)
	// TryAcquire moves a task from idle to running. It reports false if the task
	// is running, disabled or gone.
	TryAcquire(ctx context.Context, id string) (bool, error)
	// Release returns a running task to idle (disabled for OutcomeFatal), stamps
	// last_run_utc = now and recomputes next_run_utc from now.
	Release(ctx context.Context, id string, outcome task.Outcome, now time.Time) (task.Task, error)

	RecordRun(ctx context.Context, r task.Run) error
	// History returns recent runs, newest first. An empty taskID matches all tasks.
	History(ctx context.Context, taskID string, limit int) ([]task.Run, error)

	Close() error
}
