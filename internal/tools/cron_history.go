package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"cronkeep/internal/storage"
)

type cronHistoryTool struct {
	store storage.Store
}

type cronHistoryInput struct {
	TaskID string `json:"task_id"`
	Limit  int    `json:"limit"`
}

func (t *cronHistoryTool) Name() string { return "cron_history" }
func (t *cronHistoryTool) Description() string {
	return "Show recent task runs, newest first, optionally for one task."
}

func (t *cronHistoryTool) InputSchema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"task_id": {"type": "string", "description": "Only runs of this task"},
			"limit": {"type": "integer", "minimum": 1, "maximum": 500, "description": "Maximum runs to return (default 20)"}
		}
	}`)
}

func (t *cronHistoryTool) Execute(ctx context.Context, args json.RawMessage) (Output, error) {
	var in cronHistoryInput
	if err := decode(args, &in); err != nil {
		return Output{}, err
	}
	if in.Limit <= 0 {
		in.Limit = 20
	}
	runs, err := t.store.History(ctx, strings.TrimSpace(in.TaskID), in.Limit)
	if err != nil {
		return Output{}, fmt.Errorf("reading history: %w", err)
	}
	if len(runs) == 0 {
		return Output{Data: runs, Text: "No cron runs recorded."}, nil
	}
	var b strings.Builder
	for i, r := range runs {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "- %s id=%s name=%s status=%s took=%s",
			r.FinishedUTC.Format(time.RFC3339), r.TaskID, r.TaskName, r.Outcome, r.Duration().Round(time.Millisecond))
		if r.Error != "" {
			fmt.Fprintf(&b, " err=%s", r.Error)
		}
	}
	return Output{Data: runs, Text: b.String()}, nil
}
