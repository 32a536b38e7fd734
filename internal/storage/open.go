package storage

import (
	"errors"
	"strings"

	"github.com/google/uuid"

	"cronkeep/internal/clock"
	logx "cronkeep/pkg/logx"
)

// Open initializes the configured store.
// An empty driver selects the in-memory store.
func Open(cfg Config, clk clock.Clock, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if log.IsZero() {
		log = logx.Nop()
	}
	clk = clock.Or(clk)
	log = log.With(logx.String("comp", "storage"), logx.String("driver", driver))

	switch driver {
	case "", "memory", "mem":
		return newMemStore(clk, cfg.historySize()), nil
	case "file":
		return openFile(cfg, clk, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, clk, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}

func newID() string { return uuid.NewString() }
