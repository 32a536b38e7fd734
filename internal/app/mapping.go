package app

import (
	"fmt"
	"os"
	"strings"
	"time"

	"cronkeep/internal/api"
	"cronkeep/internal/config"
	"cronkeep/internal/notifier"
	"cronkeep/internal/storage"
	"cronkeep/internal/task/dispatch"
	"cronkeep/internal/task/scheduler"
	logx "cronkeep/pkg/logx"
)

func mapLogging(cfg *config.Config) logx.Config {
	lc := cfg.Logging
	return logx.Config{
		Level:   lc.Level,
		Console: lc.Console,
		File:    logx.FileConfig{Enabled: lc.File.Enabled, Path: lc.File.Path},
		Notify: logx.NotifyConfig{
			Enabled:    lc.Telegram.Enabled && cfg.Telegram.Enabled(),
			MinLevel:   lc.Telegram.MinLevel,
			RatePerSec: lc.Telegram.RatePerSec,
		},
	}
}

func mapStorage(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, 5*time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:      strings.ToLower(strings.TrimSpace(sc.Driver)),
		Path:        strings.TrimSpace(sc.Path),
		BusyTimeout: busy,
		HistorySize: sc.HistorySize,
	}, nil
}

func mapDispatch(cfg *config.Config) (dispatch.Config, error) {
	dc := cfg.Dispatcher
	timeout, err := config.ParseDurationOrDefault("dispatcher.webhook.timeout", dc.Webhook.Timeout, 30*time.Second)
	if err != nil {
		return dispatch.Config{}, err
	}
	var circuit dispatch.BreakerConfig
	circuit.Trip = dc.Circuit.Trip
	for _, f := range []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"dispatcher.circuit.cooldown", dc.Circuit.Cooldown, &circuit.Cooldown},
		{"dispatcher.circuit.max_cooldown", dc.Circuit.MaxCooldown, &circuit.MaxCooldown},
		{"dispatcher.circuit.reset_after", dc.Circuit.ResetAfter, &circuit.ResetAfter},
	} {
		if *f.dst, err = config.ParseDurationField(f.name, f.raw); err != nil {
			return dispatch.Config{}, err
		}
	}
	key := strings.TrimSpace(dc.OpenAI.APIKey)
	if key == "" && strings.TrimSpace(dc.OpenAI.APIKeyEnv) != "" {
		key = strings.TrimSpace(os.Getenv(strings.TrimSpace(dc.OpenAI.APIKeyEnv)))
	}
	return dispatch.Config{
		Kind:           dc.Kind,
		DefaultSession: dc.DefaultSession,
		RatePerSec:     dc.RatePerSec,
		Burst:          dc.Burst,
		Circuit:        circuit,
		WebhookURL:     dc.Webhook.URL,
		WebhookHeaders: dc.Webhook.Headers,
		WebhookTimeout: timeout,
		OpenAI: dispatch.OpenAIConfig{
			BaseURL:      dc.OpenAI.BaseURL,
			APIKey:       key,
			Model:        dc.OpenAI.Model,
			SystemPrompt: dc.OpenAI.SystemPrompt,
			MaxTokens:    dc.OpenAI.MaxTokens,
		},
	}, nil
}

func mapSchedulerOptions(cfg *config.Config) (scheduler.Options, error) {
	sc := cfg.Scheduler
	timeout, err := config.ParseDurationField("scheduler.dispatch_timeout", sc.DispatchTimeout)
	if err != nil {
		return scheduler.Options{}, err
	}
	return scheduler.Options{
		Workers:         sc.Workers,
		DispatchTimeout: timeout,
		HistorySize:     sc.HistorySize,
	}, nil
}

func mapDriver(cfg *config.Config) (scheduler.DriverConfig, error) {
	sc := cfg.Scheduler
	if _, err := scheduler.ParseTick(sc.Tick); err != nil {
		return scheduler.DriverConfig{}, fmt.Errorf("scheduler.tick: %w", err)
	}
	return scheduler.DriverConfig{
		Enabled:   sc.Enabled,
		Tick:      sc.Tick,
		Limit:     sc.Limit,
		RunOnBoot: sc.RunOnBoot,
		BootLimit: sc.BootLimit,
	}, nil
}

func mapAPI(cfg *config.Config) (api.Config, error) {
	ac := cfg.API
	rt, err := config.ParseDurationOrDefault("api.read_timeout", ac.ReadTimeout, 15*time.Second)
	if err != nil {
		return api.Config{}, err
	}
	// run-due over HTTP waits for dispatches, so the write timeout is generous.
	wt, err := config.ParseDurationOrDefault("api.write_timeout", ac.WriteTimeout, 5*time.Minute)
	if err != nil {
		return api.Config{}, err
	}
	return api.Config{
		Addr:         ac.Addr,
		Token:        ac.Token,
		Pprof:        ac.Pprof,
		ReadTimeout:  rt,
		WriteTimeout: wt,
	}, nil
}

func mapNotifier(cfg *config.Config) notifier.Config {
	tc := cfg.Telegram
	return notifier.Config{
		Enabled:     tc.Enabled(),
		Reports:     tc.Reports,
		RatePerSec:  1,
		RetryMax:    2,
		RetryBase:   2 * time.Second,
		DedupWindow: time.Minute,
	}
}

// validate checks what config.Validate cannot: values owned by other packages.
func validate(cfg *config.Config) error {
	if _, err := mapDriver(cfg); err != nil {
		return err
	}
	if _, err := mapSchedulerOptions(cfg); err != nil {
		return err
	}
	if _, err := mapDispatch(cfg); err != nil {
		return err
	}
	if _, err := mapAPI(cfg); err != nil {
		return err
	}
	_, err := mapStorage(cfg)
	return err
}
