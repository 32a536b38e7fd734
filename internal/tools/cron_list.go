package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"cronkeep/internal/storage"
	"cronkeep/internal/task"
)

type cronListTool struct {
	store storage.Store
}

// ListItem is one task in the cron_list result.
type ListItem struct {
	ID              string       `json:"id"`
	Name            string       `json:"name"`
	IntervalMinutes int          `json:"interval_minutes"`
	SessionID       string       `json:"session_id"`
	Status          task.Status  `json:"status"`
	NextRunUTC      time.Time    `json:"next_run_utc"`
	LastRunUTC      *time.Time   `json:"last_run_utc,omitempty"`
	RunCount        int          `json:"run_count"`
	LastOutcome     task.Outcome `json:"last_outcome,omitempty"`
}

func (t *cronListTool) Name() string { return "cron_list" }
func (t *cronListTool) Description() string {
	return "List recurring tasks with their interval, status and next run time (UTC)."
}

func (t *cronListTool) InputSchema() json.RawMessage {
	return json.RawMessage(`{"type": "object", "properties": {}}`)
}

func (t *cronListTool) Execute(ctx context.Context, _ json.RawMessage) (Output, error) {
	list, err := t.store.List(ctx)
	if err != nil {
		return Output{}, fmt.Errorf("listing tasks: %w", err)
	}
	items := make([]ListItem, 0, len(list))
	for _, tk := range list {
		it := ListItem{
			ID:              tk.ID,
			Name:            tk.Name,
			IntervalMinutes: tk.IntervalMinutes(),
			SessionID:       tk.SessionID,
			Status:          tk.Status,
			NextRunUTC:      tk.NextRunUTC,
			RunCount:        tk.RunCount,
			LastOutcome:     tk.LastOutcome,
		}
		if !tk.LastRunUTC.IsZero() {
			last := tk.LastRunUTC
			it.LastRunUTC = &last
		}
		items = append(items, it)
	}
	return Output{Data: items, Text: listText(items)}, nil
}

func listText(items []ListItem) string {
	if len(items) == 0 {
		return "No cron tasks configured."
	}
	lines := make([]string, 0, len(items))
	for _, it := range items {
		line := fmt.Sprintf("- id=%s name=%s every=%dm next=%s", it.ID, it.Name, it.IntervalMinutes, it.NextRunUTC.Format(time.RFC3339))
		if it.Status != task.StatusIdle {
			line += " status=" + string(it.Status)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}
