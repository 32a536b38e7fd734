package config

// Config is the on-disk configuration (JSON or YAML).
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Logging    LoggingConfig    `json:"logging"`
	Storage    StorageConfig    `json:"storage"`
	Scheduler  SchedulerConfig  `json:"scheduler"`
	Dispatcher DispatcherConfig `json:"dispatcher"`
	API        APIConfig        `json:"api"`
	Telegram   TelegramConfig   `json:"telegram"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingTelegram forwards warn+ log lines to the telegram chat.
type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// StorageConfig selects the task store. Changes need a restart.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/cronkeep.db" }
type StorageConfig struct {
	Driver      string `json:"driver"` // memory (default), file, sqlite
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite
	HistorySize int    `json:"history_size,omitempty"`
}

// SchedulerConfig controls RunDue and the background driver.
//
// Defaults (when fields are omitted/zero):
//   - tick: "1m"
//   - limit: 3
//   - boot_limit: 3
//   - workers: 1
//   - dispatch_timeout: "0s" (disabled)
//   - history_size: 50
type SchedulerConfig struct {
	Enabled         bool   `json:"enabled"`
	Tick            string `json:"tick,omitempty"` // duration, HH:MM or cron expression
	Limit           int    `json:"limit,omitempty"`
	RunOnBoot       bool   `json:"run_on_boot,omitempty"`
	BootLimit       int    `json:"boot_limit,omitempty"`
	Workers         int    `json:"workers,omitempty"`
	DispatchTimeout string `json:"dispatch_timeout,omitempty"`
	HistorySize     int    `json:"history_size,omitempty"`
}

type DispatcherConfig struct {
	Kind           string        `json:"kind"` // log (default), webhook, openai
	DefaultSession string        `json:"default_session,omitempty"`
	RatePerSec     float64       `json:"rate_per_sec,omitempty"`
	Burst          int           `json:"burst,omitempty"`
	Circuit        CircuitConfig `json:"circuit"`
	Webhook        WebhookConfig `json:"webhook"`
	OpenAI         OpenAIConfig  `json:"openai"`
}

// CircuitConfig fails a task fast after Trip consecutive dispatch failures.
// Trip 0 disables it.
type CircuitConfig struct {
	Trip        int    `json:"trip,omitempty"`
	Cooldown    string `json:"cooldown,omitempty"`     // default: 5m
	MaxCooldown string `json:"max_cooldown,omitempty"` // default: 1h
	ResetAfter  string `json:"reset_after,omitempty"`  // default: 24h
}

type WebhookConfig struct {
	URL     string            `json:"url,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Timeout string            `json:"timeout,omitempty"`
}

// OpenAIConfig targets any OpenAI-compatible chat completion endpoint.
// APIKeyEnv names an environment variable read when APIKey is empty.
type OpenAIConfig struct {
	BaseURL      string `json:"base_url,omitempty"`
	APIKey       string `json:"api_key,omitempty"`
	APIKeyEnv    string `json:"api_key_env,omitempty"`
	Model        string `json:"model,omitempty"`
	SystemPrompt string `json:"system_prompt,omitempty"`
	MaxTokens    int    `json:"max_tokens,omitempty"`
}

// APIConfig controls the HTTP API. Changes need a restart.
//
// A non-loopback addr requires token. Requests then need
// "Authorization: Bearer <token>".
type APIConfig struct {
	Enabled      bool   `json:"enabled"`
	Addr         string `json:"addr,omitempty"` // default: "127.0.0.1:8787"
	Token        string `json:"token,omitempty"`
	Pprof        bool   `json:"pprof,omitempty"` // mount /debug/pprof
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
}

// TelegramConfig enables run reports (and the logging sink) in one chat.
type TelegramConfig struct {
	Token    string `json:"token"`
	ChatID   int64  `json:"chat_id"`
	ThreadID int    `json:"thread_id,omitempty"`
	// Reports is "off", "failures" (default) or "all".
	Reports string `json:"reports,omitempty"`
}

func (t TelegramConfig) Enabled() bool { return t.Token != "" && t.ChatID != 0 }
