package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks values that do not depend on other packages.
// The app layer validates the scheduler tick when mapping the config.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	var errs []error

	switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
	case "", "memory", "mem":
	case "file", "sqlite", "sqlite3":
		if strings.TrimSpace(c.Storage.Path) == "" {
			errs = append(errs, fmt.Errorf("storage.path is required when storage.driver=%s", c.Storage.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver))
	}
	if c.Storage.HistorySize < 0 {
		errs = append(errs, errors.New("storage.history_size must be >= 0"))
	}

	if c.Scheduler.Limit < 0 || c.Scheduler.BootLimit < 0 || c.Scheduler.Workers < 0 {
		errs = append(errs, errors.New("scheduler: limit, boot_limit and workers must be >= 0"))
	}

	switch strings.ToLower(strings.TrimSpace(c.Dispatcher.Kind)) {
	case "", "log":
	case "webhook":
		if strings.TrimSpace(c.Dispatcher.Webhook.URL) == "" {
			errs = append(errs, errors.New("dispatcher.webhook.url is required when dispatcher.kind=webhook"))
		}
	case "openai":
		if strings.TrimSpace(c.Dispatcher.OpenAI.Model) == "" {
			errs = append(errs, errors.New("dispatcher.openai.model is required when dispatcher.kind=openai"))
		}
	default:
		errs = append(errs, fmt.Errorf("dispatcher.kind: unknown kind %q", c.Dispatcher.Kind))
	}
	if c.Dispatcher.RatePerSec < 0 {
		errs = append(errs, errors.New("dispatcher.rate_per_sec must be >= 0"))
	}
	if c.Dispatcher.Circuit.Trip < 0 {
		errs = append(errs, errors.New("dispatcher.circuit.trip must be >= 0"))
	}

	switch strings.ToLower(strings.TrimSpace(c.Telegram.Reports)) {
	case "", "off", "failures", "all":
	default:
		errs = append(errs, fmt.Errorf("telegram.reports: unknown mode %q", c.Telegram.Reports))
	}

	durations := []struct{ path, raw string }{
		{"storage.busy_timeout", c.Storage.BusyTimeout},
		{"scheduler.dispatch_timeout", c.Scheduler.DispatchTimeout},
		{"dispatcher.webhook.timeout", c.Dispatcher.Webhook.Timeout},
		{"dispatcher.circuit.cooldown", c.Dispatcher.Circuit.Cooldown},
		{"dispatcher.circuit.max_cooldown", c.Dispatcher.Circuit.MaxCooldown},
		{"dispatcher.circuit.reset_after", c.Dispatcher.Circuit.ResetAfter},
		{"api.read_timeout", c.API.ReadTimeout},
		{"api.write_timeout", c.API.WriteTimeout},
	}
	for _, d := range durations {
		if _, err := ParseDurationField(d.path, d.raw); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
