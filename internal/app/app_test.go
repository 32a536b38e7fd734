package app

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"cronkeep/internal/tools"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "cronkeep.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestNewRejectsBadTick(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, t.TempDir(), "scheduler:\n  tick: sometimes\n")
	if _, err := New(path); err == nil || !strings.Contains(err.Error(), "scheduler.tick") {
		t.Fatalf("err = %v, want tick error", err)
	}
}

func TestToolsPersistAcrossInstances(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := writeConfig(t, dir, "logging:\n  level: error\nstorage:\n  driver: sqlite\n  path: "+filepath.Join(dir, "tasks.db")+"\n")

	a, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	out, err := a.Tools().Call(context.Background(), "cron_create", json.RawMessage(`{"name":"n","prompt":"p","interval_minutes":10}`))
	if err != nil {
		t.Fatalf("cron_create: %v", err)
	}
	id := out.Data.(tools.CreateResult).ID
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	b, err := New(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer b.Close()
	out, err = b.Tools().Call(context.Background(), "cron_list", nil)
	if err != nil {
		t.Fatalf("cron_list: %v", err)
	}
	items := out.Data.([]tools.ListItem)
	if len(items) != 1 || items[0].ID != id {
		t.Fatalf("items = %+v", items)
	}
}

func TestStartReloadStop(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := writeConfig(t, dir, "logging:\n  level: error\nscheduler:\n  enabled: true\n  tick: 1h\n")
	a, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !a.driver.Snapshot().Running {
		t.Fatalf("driver should run")
	}

	time.Sleep(100 * time.Millisecond)
	writeConfig(t, dir, "logging:\n  level: error\nscheduler:\n  enabled: false\n  tick: 1h\n")
	deadline := time.Now().Add(5 * time.Second)
	for a.driver.Snapshot().Running && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if a.driver.Snapshot().Running {
		t.Fatalf("reload should stop the driver")
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	if err := a.Stop(stopCtx, StopSignal); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
