package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"cronkeep/internal/eventbus"
	"cronkeep/internal/storage"
	"cronkeep/internal/task"
)

type cronCreateTool struct {
	store storage.Store
	bus   eventbus.Bus
}

type cronCreateInput struct {
	Name            string `json:"name"`
	Prompt          string `json:"prompt"`
	IntervalMinutes *int   `json:"interval_minutes"`
	Interval        string `json:"interval"`
	SessionID       string `json:"session_id"`
}

// CreateResult is the structured result of cron_create.
type CreateResult struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	IntervalMinutes int       `json:"interval_minutes"`
	NextRunUTC      time.Time `json:"next_run_utc"`
}

func (t *cronCreateTool) Name() string { return "cron_create" }
func (t *cronCreateTool) Description() string {
	return "Create a recurring task that sends a self-contained prompt to the agent every interval_minutes (minimum 1). The first run is one interval from now."
}

func (t *cronCreateTool) InputSchema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"name": {"type": "string", "description": "Short label for the task"},
			"prompt": {"type": "string", "minLength": 1, "description": "Self-contained instruction executed on every run"},
			"interval_minutes": {"type": "integer", "minimum": 1, "maximum": `+strconv.Itoa(task.MaxIntervalMinutes)+`, "description": "Minutes between runs"},
			"interval": {"type": "string", "description": "Alternative to interval_minutes: '90m', '2h30m' or 'HH:MM'"},
			"session_id": {"type": "string", "description": "Session to run in; empty uses the default session"}
		},
		"required": ["prompt"],
		"anyOf": [
			{"required": ["interval_minutes"]},
			{"required": ["interval"]}
		]
	}`)
}

func (t *cronCreateTool) Execute(ctx context.Context, args json.RawMessage) (Output, error) {
	var in cronCreateInput
	if err := decode(args, &in); err != nil {
		return Output{}, err
	}

	var iv time.Duration
	switch {
	case in.IntervalMinutes != nil:
		if *in.IntervalMinutes <= 0 {
			return Output{}, fmt.Errorf("%w: interval_minutes must be > 0", task.ErrInvalidArgument)
		}
		iv = task.Minutes(*in.IntervalMinutes)
		if err := task.ValidateInterval(iv); err != nil {
			return Output{}, err
		}
	case strings.TrimSpace(in.Interval) != "":
		d, err := task.ParseInterval(in.Interval)
		if err != nil {
			return Output{}, err
		}
		iv = d
	default:
		return Output{}, fmt.Errorf("%w: interval_minutes is required", task.ErrInvalidArgument)
	}

	tk, err := t.store.Create(ctx, task.Spec{
		Name:      in.Name,
		Prompt:    in.Prompt,
		Interval:  iv,
		SessionID: in.SessionID,
	})
	if err != nil {
		return Output{}, err
	}
	if t.bus != nil {
		t.bus.Publish(eventbus.Event{Type: eventbus.TypeTaskCreated, Data: tk})
	}

	res := CreateResult{ID: tk.ID, Name: tk.Name, IntervalMinutes: tk.IntervalMinutes(), NextRunUTC: tk.NextRunUTC}
	text := fmt.Sprintf("Cron task created: %s\nname: %s\ninterval_minutes: %d\nnext_run_utc: %s",
		res.ID, res.Name, res.IntervalMinutes, res.NextRunUTC.Format(time.RFC3339))
	return Output{Data: res, Text: text}, nil
}
