package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestDecodeJSONAndYAML(t *testing.T) {
	t.Parallel()
	jsonBody := `{"storage":{"driver":"sqlite","path":"x.db"},"scheduler":{"enabled":true,"tick":"30s","limit":5}}`
	yamlBody := "storage:\n  driver: sqlite\n  path: x.db\nscheduler:\n  enabled: true\n  tick: 30s\n  limit: 5\n"

	for _, tc := range []struct{ path, body string }{
		{"c.json", jsonBody},
		{"c.yaml", yamlBody},
		{"c.yml", yamlBody},
	} {
		cfg, err := Decode(tc.path, []byte(tc.body))
		if err != nil {
			t.Fatalf("Decode(%s): %v", tc.path, err)
		}
		if cfg.Storage.Driver != "sqlite" || !cfg.Scheduler.Enabled || cfg.Scheduler.Tick != "30s" || cfg.Scheduler.Limit != 5 {
			t.Fatalf("%s: unexpected config %+v", tc.path, cfg)
		}
	}
}

func TestDecodeStrict(t *testing.T) {
	t.Parallel()
	if _, err := Decode("c.json", []byte(`{"storage":{"drvier":"file"}}`)); err == nil {
		t.Fatalf("unknown field should fail")
	}
	if _, err := Decode("c.json", []byte(`{} {}`)); err == nil || !strings.Contains(err.Error(), "trailing") {
		t.Fatalf("trailing data should fail, got %v", err)
	}
	if _, err := Decode("c.yaml", []byte("scheduler:\n  bogus: 1\n")); err == nil {
		t.Fatalf("unknown yaml field should fail")
	}
	if _, err := Decode("c.yaml", []byte("")); err != nil {
		t.Fatalf("empty yaml should decode: %v", err)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		cfg  Config
		ok   bool
	}{
		{"zero", Config{}, true},
		{"file without path", Config{Storage: StorageConfig{Driver: "file"}}, false},
		{"unknown driver", Config{Storage: StorageConfig{Driver: "redis"}}, false},
		{"webhook without url", Config{Dispatcher: DispatcherConfig{Kind: "webhook"}}, false},
		{"openai ok", Config{Dispatcher: DispatcherConfig{Kind: "openai", OpenAI: OpenAIConfig{Model: "gpt-4o-mini"}}}, true},
		{"bad duration", Config{Scheduler: SchedulerConfig{DispatchTimeout: "soon"}}, false},
		{"bad reports", Config{Telegram: TelegramConfig{Reports: "some"}}, false},
		{"negative limit", Config{Scheduler: SchedulerConfig{Limit: -1}}, false},
	}
	for _, tc := range cases {
		err := tc.cfg.Validate()
		if (err == nil) != tc.ok {
			t.Fatalf("%s: err = %v, want ok=%v", tc.name, err, tc.ok)
		}
	}
}

func TestParseDurationOrDefault(t *testing.T) {
	t.Parallel()
	d, err := ParseDurationOrDefault("x", "", 3*time.Second)
	if err != nil || d != 3*time.Second {
		t.Fatalf("default: %v %v", d, err)
	}
	d, err = ParseDurationOrDefault("x", "250ms", time.Second)
	if err != nil || d != 250*time.Millisecond {
		t.Fatalf("explicit: %v %v", d, err)
	}
	if _, err := ParseDurationOrDefault("x", "-1s", time.Second); err == nil {
		t.Fatalf("negative should fail")
	}
}

func TestReloadPublishesOnlyChanges(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "cronkeep.json")
	writeFile(t, path, `{"scheduler":{"limit":3}}`)

	m := NewConfigManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)
	ctx := context.Background()

	if changed, err := m.Reload(ctx); err != nil || changed {
		t.Fatalf("unchanged reload: changed=%v err=%v", changed, err)
	}

	writeFile(t, path, `{"scheduler":{"limit":7}}`)
	if changed, err := m.Reload(ctx); err != nil || !changed {
		t.Fatalf("changed reload: changed=%v err=%v", changed, err)
	}
	if got := <-ch; got.Scheduler.Limit != 7 {
		t.Fatalf("published limit = %d", got.Scheduler.Limit)
	}

	m.SetValidator(func(ctx context.Context, cfg *Config) error {
		if cfg.Scheduler.Limit > 10 {
			return os.ErrInvalid
		}
		return nil
	})
	writeFile(t, path, `{"scheduler":{"limit":99}}`)
	if _, err := m.Reload(ctx); err == nil {
		t.Fatalf("validator should reject")
	}
	if m.Get().Scheduler.Limit != 7 {
		t.Fatalf("rejected config was committed")
	}
}

func TestPublishKeepsLatest(t *testing.T) {
	t.Parallel()
	m := NewConfigManager("unused.json")
	ch := m.Subscribe(1)
	for i := 1; i <= 3; i++ {
		m.publish(&Config{Scheduler: SchedulerConfig{Limit: i}})
	}
	if got := <-ch; got.Scheduler.Limit != 3 {
		t.Fatalf("latest = %d, want 3", got.Scheduler.Limit)
	}
	m.Unsubscribe(ch)
	if _, ok := <-ch; ok {
		t.Fatalf("channel should be closed")
	}
}

func TestWatchPicksUpChange(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "cronkeep.yaml")
	writeFile(t, path, "scheduler:\n  limit: 1\n")
	m := NewConfigManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	ch := m.Subscribe(1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Watch(ctx) }()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	writeFile(t, path, "scheduler:\n  limit: 4\n")

	select {
	case cfg := <-ch:
		if cfg.Scheduler.Limit != 4 {
			t.Fatalf("limit = %d", cfg.Scheduler.Limit)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("no reload published")
	}
}

func TestSummarizeChange(t *testing.T) {
	t.Parallel()
	oldCfg := &Config{Scheduler: SchedulerConfig{Limit: 1}, Telegram: TelegramConfig{Token: "secret"}}
	newCfg := &Config{Scheduler: SchedulerConfig{Limit: 2}, Telegram: TelegramConfig{Token: "secret"}, Storage: StorageConfig{Driver: "file", Path: "x"}}
	changed, _, restart := SummarizeChange(oldCfg, newCfg)
	if strings.Join(changed, ",") != "storage,scheduler" || !restart {
		t.Fatalf("changed=%v restart=%v", changed, restart)
	}
}
