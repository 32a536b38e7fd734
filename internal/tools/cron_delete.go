package tools

import (
	"context"
	"encoding/json"
	"strings"

	"cronkeep/internal/eventbus"
	"cronkeep/internal/storage"
)

type cronDeleteTool struct {
	store storage.Store
	bus   eventbus.Bus
}

type cronDeleteInput struct {
	TaskID string `json:"task_id"`
}

type DeleteResult struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
}

func (t *cronDeleteTool) Name() string { return "cron_delete" }
func (t *cronDeleteTool) Description() string {
	return "Delete a recurring task by id. A run already in progress finishes but the task never runs again."
}

func (t *cronDeleteTool) InputSchema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"task_id": {"type": "string", "minLength": 1, "description": "Task id from cron_create or cron_list"}
		},
		"required": ["task_id"]
	}`)
}

func (t *cronDeleteTool) Execute(ctx context.Context, args json.RawMessage) (Output, error) {
	var in cronDeleteInput
	if err := decode(args, &in); err != nil {
		return Output{}, err
	}
	id := strings.TrimSpace(in.TaskID)
	if err := t.store.Delete(ctx, id); err != nil {
		return Output{}, err
	}
	if t.bus != nil {
		t.bus.Publish(eventbus.Event{Type: eventbus.TypeTaskDeleted, Data: id})
	}
	return Output{Data: DeleteResult{ID: id, Deleted: true}, Text: "Cron task deleted: " + id}, nil
}
