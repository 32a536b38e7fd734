package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"cronkeep/internal/clock"
	"cronkeep/internal/task"
	logx "cronkeep/pkg/logx"

	_ "modernc.org/sqlite"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db    *sql.DB
	log   logx.Logger
	clock clock.Clock
	keep  int

	runCount   atomic.Uint64
	pruneEvery uint64
}

const taskColumns = `id, name, prompt, interval_ns, session_id, status, next_run_ns, last_run_ns, created_ns, run_count, last_outcome`

func openSQLite(cfg Config, clk clock.Clock, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("storage.path is required for sqlite driver")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection serializes writers; TryAcquire relies on a single UPDATE anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log, clock: clock.Or(clk), keep: cfg.historySize(), pruneEvery: 50}

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()))
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	ctx := context.Background()
	if err := st.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	n, err := st.recoverRunning(ctx)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if n > 0 {
		log.Warn("recovered tasks left running", logx.Int64("count", n))
	}
	log.Debug("sqlite store opened", logx.String("path", path))
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) recoverRunning(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE tasks SET status = ? WHERE status = ?`, task.StatusIdle, task.StatusRunning)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) Create(ctx context.Context, spec task.Spec) (task.Task, error) {
	t, err := task.New(newID(), spec, s.clock.Now())
	if err != nil {
		return task.Task{}, err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO tasks(`+taskColumns+`) VALUES(?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.Name, t.Prompt, int64(t.Interval), t.SessionID, t.Status,
		toNanos(t.NextRunUTC), toNanos(t.LastRunUTC), toNanos(t.CreatedUTC),
		t.RunCount, string(t.LastOutcome),
	)
	if err != nil {
		return task.Task{}, err
	}
	return t, nil
}

func (s *sqliteStore) Get(ctx context.Context, id string) (task.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return task.Task{}, task.NotFound(id)
	}
	return t, err
}

func (s *sqliteStore) List(ctx context.Context) ([]task.Task, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks ORDER BY created_ns, id`)
	if err != nil {
		return nil, err
	}
	return collectTasks(rows)
}

func (s *sqliteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return task.NotFound(id)
	}
	return nil
}

func (s *sqliteStore) GetDue(ctx context.Context, now time.Time, limit int) ([]task.Task, error) {
	if err := task.ValidateLimit(limit); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM tasks
		 WHERE status = ? AND next_run_ns <= ?
		 ORDER BY next_run_ns, created_ns, id
		 LIMIT ?`,
		task.StatusIdle, now.UTC().UnixNano(), limit,
	)
	if err != nil {
		return nil, err
	}
	return collectTasks(rows)
}

func (s *sqliteStore) TryAcquire(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET status = ? WHERE id = ? AND status = ?`,
		task.StatusRunning, id, task.StatusIdle,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *sqliteStore) Release(ctx context.Context, id string, outcome task.Outcome, now time.Time) (task.Task, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return task.Task{}, err
	}
	defer func() { _ = tx.Rollback() }()

	t, err := scanTask(tx.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return task.Task{}, task.NotFound(id)
	}
	if err != nil {
		return task.Task{}, err
	}
	if t.Status != task.StatusRunning {
		return t, ErrNotRunning
	}
	t = t.Released(outcome, now)
	_, err = tx.ExecContext(ctx,
		`UPDATE tasks SET status = ?, next_run_ns = ?, last_run_ns = ?, run_count = ?, last_outcome = ?
		 WHERE id = ? AND status = ?`,
		t.Status, toNanos(t.NextRunUTC), toNanos(t.LastRunUTC), t.RunCount, string(t.LastOutcome),
		id, task.StatusRunning,
	)
	if err != nil {
		return task.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return task.Task{}, err
	}
	return t, nil
}

func (s *sqliteStore) RecordRun(ctx context.Context, r task.Run) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs(task_id, task_name, started_ns, finished_ns, outcome, disabled, err, output)
		 VALUES(?,?,?,?,?,?,?,?)`,
		r.TaskID, r.TaskName, toNanos(r.StartedUTC), toNanos(r.FinishedUTC), string(r.Outcome),
		r.Disabled, nullStr(r.Error), nullStr(r.Output),
	)
	if err == nil && s.runCount.Add(1)%s.pruneEvery == 0 {
		pctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		if perr := s.pruneRuns(pctx); perr != nil {
			s.log.Debug("run history prune failed", logx.Err(perr))
		}
		cancel()
	}
	return err
}

func (s *sqliteStore) pruneRuns(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM runs WHERE seq <= (SELECT COALESCE(MAX(seq), 0) FROM runs) - ?`, s.keep)
	return err
}

func (s *sqliteStore) History(ctx context.Context, taskID string, limit int) ([]task.Run, error) {
	if limit <= 0 || limit > s.keep {
		limit = s.keep
	}
	// Rows past the retention window may linger until the next prune.
	floor := `(SELECT COALESCE(MAX(seq), 0) FROM runs) - ?`
	var (
		rows *sql.Rows
		err  error
	)
	if taskID == "" {
		rows, err = s.db.QueryContext(ctx,
			`SELECT task_id, task_name, started_ns, finished_ns, outcome, disabled, err, output
			 FROM runs WHERE seq > `+floor+` ORDER BY seq DESC LIMIT ?`, s.keep, limit)
	} else {
		rows, err = s.db.QueryContext(ctx,
			`SELECT task_id, task_name, started_ns, finished_ns, outcome, disabled, err, output
			 FROM runs WHERE task_id = ? AND seq > `+floor+` ORDER BY seq DESC LIMIT ?`, taskID, s.keep, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]task.Run, 0)
	for rows.Next() {
		var (
			r                  task.Run
			started, finished  int64
			outcome            string
			errText, outputTxt sql.NullString
		)
		if err := rows.Scan(&r.TaskID, &r.TaskName, &started, &finished, &outcome, &r.Disabled, &errText, &outputTxt); err != nil {
			return nil, err
		}
		r.StartedUTC = fromNanos(started)
		r.FinishedUTC = fromNanos(finished)
		r.Outcome = task.Outcome(outcome)
		r.Error = errText.String
		r.Output = outputTxt.String
		out = append(out, r)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (task.Task, error) {
	var (
		t                        task.Task
		intervalNS               int64
		status, outcome          string
		nextNS, lastNS, createNS int64
	)
	err := row.Scan(&t.ID, &t.Name, &t.Prompt, &intervalNS, &t.SessionID, &status,
		&nextNS, &lastNS, &createNS, &t.RunCount, &outcome)
	if err != nil {
		return task.Task{}, err
	}
	t.Interval = time.Duration(intervalNS)
	t.Status = task.Status(status)
	t.NextRunUTC = fromNanos(nextNS)
	t.LastRunUTC = fromNanos(lastNS)
	t.CreatedUTC = fromNanos(createNS)
	t.LastOutcome = task.Outcome(outcome)
	return t, nil
}

func collectTasks(rows *sql.Rows) ([]task.Task, error) {
	defer rows.Close()
	out := make([]task.Task, 0)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// toNanos stores the zero time as 0.
func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UTC().UnixNano()
}

func fromNanos(ns int64) time.Time {
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns).UTC()
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
