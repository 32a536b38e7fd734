package dispatch

import (
	"fmt"
	"strings"
	"time"

	"cronkeep/internal/clock"
	logx "cronkeep/pkg/logx"
)

// Config selects and configures the dispatcher built by New.
type Config struct {
	Kind           string // log (default), webhook, openai
	DefaultSession string
	RatePerSec     float64
	Burst          int
	Circuit        BreakerConfig

	WebhookURL     string
	WebhookHeaders map[string]string
	WebhookTimeout time.Duration

	OpenAI OpenAIConfig
}

// New builds the configured dispatcher wrapped with the default session,
// rate limiting and the per-task breaker. The scheduler adds panic recovery.
func New(cfg Config, clk clock.Clock, log logx.Logger) (Dispatcher, error) {
	var base Dispatcher
	switch kind := strings.ToLower(strings.TrimSpace(cfg.Kind)); kind {
	case "", "log":
		base = Log{L: log.With(logx.String("comp", "dispatch"))}
	case "webhook":
		w, err := NewWebhook(cfg.WebhookURL, cfg.WebhookHeaders, cfg.WebhookTimeout)
		if err != nil {
			return nil, err
		}
		base = w
	case "openai":
		o, err := NewOpenAI(cfg.OpenAI)
		if err != nil {
			return nil, err
		}
		base = o
	default:
		return nil, fmt.Errorf("unknown dispatcher kind: %s", kind)
	}
	return WithSession(Breaker(Limited(base, cfg.RatePerSec, cfg.Burst), cfg.Circuit, clk), cfg.DefaultSession), nil
}
