package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"cronkeep/internal/clock"
	"cronkeep/internal/task"
	logx "cronkeep/pkg/logx"
)

const compactEvery = 500

// fileStore is a dependency-free persistence backend layered on memStore.
//
// Files:
//   - <prefix>.tasks.snapshot.json (periodic snapshot)
//   - <prefix>.tasks.journal.jsonl (append-only journal of task mutations)
//   - <prefix>.runs.jsonl          (append-only run history)
//
// The journal is periodically compacted into the snapshot.
type fileStore struct {
	*memStore
	log logx.Logger

	snapshotPath string
	journalFile  *os.File
	writes       int

	runMu    sync.Mutex
	runsPath string
	runsFile *os.File
}

func openFile(cfg Config, clk clock.Clock, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	mem := newMemStore(clk, cfg.historySize())
	fs := &fileStore{
		memStore:     mem,
		log:          log,
		snapshotPath: prefix + ".tasks.snapshot.json",
		runsPath:     prefix + ".runs.jsonl",
	}
	journalPath := prefix + ".tasks.journal.jsonl"

	if err := loadSnapshot(fs.snapshotPath, mem.tasks); err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err := replayJournal(journalPath, mem.tasks); err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if n := mem.recoverRunningLocked(); n > 0 {
		log.Warn("recovered tasks left running", logx.Int("count", n))
	}
	runs, err := loadRuns(fs.runsPath, mem.keep)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	mem.runs = runs

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}
	fs.journalFile = jf
	// Start from a compact state so the journal only holds this process's writes.
	if err := fs.compactLocked(); err != nil {
		_ = jf.Close()
		return nil, err
	}
	if err := fs.rewriteRuns(); err != nil {
		_ = jf.Close()
		return nil, err
	}
	rf, err := os.OpenFile(fs.runsPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		_ = jf.Close()
		return nil, err
	}
	fs.runsFile = rf

	mem.j = fs
	log.Debug("file store opened", logx.String("prefix", prefix), logx.Int("tasks", len(mem.tasks)), logx.Int("runs", len(runs)))
	return fs, nil
}

func (s *fileStore) append(rec journalRecord) error {
	if s.journalFile == nil {
		return ErrClosed
	}
	return json.NewEncoder(s.journalFile).Encode(rec)
}

func (s *fileStore) applied() {
	s.writes++
	if s.writes%compactEvery == 0 {
		// Best-effort compact.
		if err := s.compactLocked(); err != nil {
			s.log.Debug("journal compact failed", logx.Err(err))
		}
	}
}

func (s *fileStore) RecordRun(ctx context.Context, r task.Run) error {
	_ = ctx
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.runsFile == nil {
		return ErrClosed
	}
	if err := json.NewEncoder(s.runsFile).Encode(r); err != nil {
		return err
	}
	s.memStore.mu.Lock()
	s.appendRunLocked(r)
	s.memStore.mu.Unlock()
	return nil
}

func (s *fileStore) Close() error {
	s.memStore.mu.Lock()
	s.closed = true
	var err1, err2 error
	if s.journalFile != nil {
		err1 = s.compactLocked()
		if cerr := s.journalFile.Close(); err1 == nil {
			err1 = cerr
		}
		s.journalFile = nil
	}
	s.memStore.mu.Unlock()

	s.runMu.Lock()
	if s.runsFile != nil {
		err2 = s.runsFile.Close()
		s.runsFile = nil
	}
	s.runMu.Unlock()

	if err1 != nil {
		return err1
	}
	return err2
}

// compactLocked writes the current task map to the snapshot and truncates the journal.
// Call with memStore.mu held (or before the store is shared).
func (s *fileStore) compactLocked() error {
	tmp := s.snapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(s.tasks); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return err
	}
	if err := s.journalFile.Truncate(0); err != nil {
		return err
	}
	_, err = s.journalFile.Seek(0, 2)
	return err
}

// rewriteRuns trims the runs file to the retained history.
func (s *fileStore) rewriteRuns() error {
	tmp := s.runsPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	for _, r := range s.runs {
		if err := enc.Encode(r); err != nil {
			_ = f.Close()
			return err
		}
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, s.runsPath)
}

func loadSnapshot(path string, out map[string]task.Task) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var m map[string]task.Task
	if err := json.NewDecoder(f).Decode(&m); err != nil {
		return err
	}
	for k, v := range m {
		out[k] = v
	}
	return nil
}

func replayJournal(path string, out map[string]task.Task) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		var r journalRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			// A torn final line after a crash is skipped.
			continue
		}
		switch r.Op {
		case opPut:
			if r.Task != nil && r.ID != "" {
				out[r.ID] = *r.Task
			}
		case opDel:
			delete(out, r.ID)
		}
	}
	return sc.Err()
}

func loadRuns(path string, keep int) ([]task.Run, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var runs []task.Run
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		var r task.Run
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			continue
		}
		runs = append(runs, r)
		if len(runs) > 2*keep {
			runs = append([]task.Run(nil), runs[len(runs)-keep:]...)
		}
	}
	if len(runs) > keep {
		runs = runs[len(runs)-keep:]
	}
	return runs, sc.Err()
}
