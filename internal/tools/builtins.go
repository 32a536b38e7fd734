package tools

import (
	"context"

	"cronkeep/internal/eventbus"
	"cronkeep/internal/storage"
	"cronkeep/internal/task/scheduler"
)

// Runner is the part of the scheduler the cron_run_due tool needs.
type Runner interface {
	RunDue(ctx context.Context, limit int) (scheduler.Report, error)
}

// DefaultRunLimit is used when cron_run_due is called without a limit.
const DefaultRunLimit = 3

// Builtins returns the cron tools bound to store and runner. bus may be nil.
func Builtins(store storage.Store, runner Runner, bus eventbus.Bus) []Tool {
	return []Tool{
		&cronCreateTool{store: store, bus: bus},
		&cronListTool{store: store},
		&cronDeleteTool{store: store, bus: bus},
		&cronRunDueTool{runner: runner},
		&cronHistoryTool{store: store},
	}
}
