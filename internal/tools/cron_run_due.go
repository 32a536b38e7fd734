package tools

import (
	"context"
	"encoding/json"
)

type cronRunDueTool struct {
	runner Runner
}

type cronRunDueInput struct {
	Limit *int `json:"limit"`
}

func (t *cronRunDueTool) Name() string { return "cron_run_due" }
func (t *cronRunDueTool) Description() string {
	return "Run up to limit due tasks now (oldest due first) and reschedule them. Returns one entry per task run."
}

func (t *cronRunDueTool) InputSchema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"limit": {"type": "integer", "minimum": 1, "description": "Maximum tasks to run (default 3)"}
		}
	}`)
}

func (t *cronRunDueTool) Execute(ctx context.Context, args json.RawMessage) (Output, error) {
	var in cronRunDueInput
	if err := decode(args, &in); err != nil {
		return Output{}, err
	}
	limit := DefaultRunLimit
	if in.Limit != nil {
		limit = *in.Limit
	}
	rep, err := t.runner.RunDue(ctx, limit)
	if err != nil {
		return Output{}, err
	}
	return Output{Data: rep, Text: rep.Text()}, nil
}
