package config

import (
	"reflect"
	"strings"

	logx "cronkeep/pkg/logx"
)

// SummarizeChange lists the changed sections and safe fields for logging
// (tokens and API keys are never included). restart reports whether a changed
// section is only read at startup (storage, dispatcher, api).
func SummarizeChange(oldCfg, newCfg *Config) (changed []string, attrs []logx.Field, restart bool) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.telegram_enabled", newCfg.Logging.Telegram.Enabled),
		)
	}
	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		restart = true
		attrs = append(attrs,
			logx.String("storage.driver", newCfg.Storage.Driver),
			logx.String("storage.path", newCfg.Storage.Path),
		)
	}
	if oldCfg.Scheduler != newCfg.Scheduler {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.Bool("scheduler.enabled", newCfg.Scheduler.Enabled),
			logx.String("scheduler.tick", strings.TrimSpace(newCfg.Scheduler.Tick)),
			logx.Int("scheduler.limit", newCfg.Scheduler.Limit),
			logx.Int("scheduler.workers", newCfg.Scheduler.Workers),
		)
	}
	if !reflect.DeepEqual(oldCfg.Dispatcher, newCfg.Dispatcher) {
		changed = append(changed, "dispatcher")
		restart = true
		attrs = append(attrs,
			logx.String("dispatcher.kind", newCfg.Dispatcher.Kind),
			logx.String("dispatcher.webhook_url", newCfg.Dispatcher.Webhook.URL),
			logx.String("dispatcher.openai_model", newCfg.Dispatcher.OpenAI.Model),
			logx.Bool("dispatcher.openai_key_set", newCfg.Dispatcher.OpenAI.APIKey != "" || newCfg.Dispatcher.OpenAI.APIKeyEnv != ""),
		)
	}
	if oldCfg.API != newCfg.API {
		changed = append(changed, "api")
		restart = true
		attrs = append(attrs, logx.Bool("api.enabled", newCfg.API.Enabled), logx.String("api.addr", newCfg.API.Addr), logx.Bool("api.token_set", newCfg.API.Token != ""))
	}
	if oldCfg.Telegram != newCfg.Telegram {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Bool("telegram.token_set", newCfg.Telegram.Token != ""),
			logx.Int64("telegram.chat_id", newCfg.Telegram.ChatID),
			logx.String("telegram.reports", newCfg.Telegram.Reports),
		)
	}
	return changed, attrs, restart
}
