package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	asJSON = false
	err := rootCmd.Execute()
	return buf.String(), err
}

// Commands share package-level flag state, so this test is not parallel.
func TestCommandsAgainstSQLite(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "cronkeep.yaml")
	body := "logging:\n  level: error\nstorage:\n  driver: sqlite\n  path: " + filepath.Join(dir, "tasks.db") + "\n"
	if err := os.WriteFile(cfg, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	out, err := run(t, "list", "-c", cfg)
	if err != nil || strings.TrimSpace(out) != "No cron tasks configured." {
		t.Fatalf("empty list = %q, %v", out, err)
	}

	out, err = run(t, "create", "-c", cfg, "--name", "digest", "--prompt", "summarize inbox", "--every", "01:30")
	if err != nil || !strings.HasPrefix(out, "Cron task created: ") {
		t.Fatalf("create = %q, %v", out, err)
	}

	out, err = run(t, "list", "-c", cfg)
	if err != nil || !strings.Contains(out, "digest") || !strings.Contains(out, "NEXT RUN") {
		t.Fatalf("list = %q, %v", out, err)
	}

	out, err = run(t, "run-due", "-c", cfg, "--limit", "5")
	if err != nil || strings.TrimSpace(out) != "No due cron tasks." {
		t.Fatalf("run-due = %q, %v", out, err)
	}

	if _, err = run(t, "delete", "-c", cfg, "no-such-id"); err == nil {
		t.Fatalf("deleting an unknown id should fail")
	}
	if _, err = run(t, "run-due", "-c", cfg, "--limit", "0"); err == nil {
		t.Fatalf("limit 0 should fail")
	}
}
