package notifier

import (
	"context"
	"time"
)

// Report modes.
const (
	ReportsOff      = "off"
	ReportsFailures = "failures"
	ReportsAll      = "all"
)

// Sender delivers one text message.
type Sender interface {
	SendText(ctx context.Context, text string) error
}

type Config struct {
	Enabled bool
	// Reports selects which run-due reports are forwarded.
	Reports     string
	QueueSize   int
	RatePerSec  int
	RetryMax    int
	RetryBase   time.Duration
	DedupWindow time.Duration
}

type HistoryItem struct {
	At    time.Time `json:"at"`
	Text  string    `json:"text"`
	Error string    `json:"error,omitempty"`
}
