// Package tools exposes the scheduler as agent-callable tools: cron_create,
// cron_list, cron_delete, cron_run_due and cron_history.
//
// Each tool declares a JSON schema; Registry.Call validates arguments against
// it before Execute runs. The HTTP API and the CLI call tools through the same
// registry.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"cronkeep/internal/task"
)

// ErrUnknownTool is returned by Call for a name the registry does not hold.
var ErrUnknownTool = errors.New("unknown tool")

// Output carries a tool result as structured data (for JSON callers) and as
// the plain text shown to chat agents.
type Output struct {
	Data any    `json:"data"`
	Text string `json:"text"`
}

type Tool interface {
	Name() string
	Description() string
	InputSchema() json.RawMessage
	Execute(ctx context.Context, args json.RawMessage) (Output, error)
}

// Spec describes a tool for discovery.
type Spec struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

type Registry struct {
	tools   map[string]Tool
	schemas map[string]*gojsonschema.Schema
}

// NewRegistry compiles each tool's schema. A duplicate name or a schema that
// does not compile is an error.
func NewRegistry(ts ...Tool) (*Registry, error) {
	r := &Registry{tools: map[string]Tool{}, schemas: map[string]*gojsonschema.Schema{}}
	for _, t := range ts {
		name := t.Name()
		if _, dup := r.tools[name]; dup {
			return nil, fmt.Errorf("duplicate tool %q", name)
		}
		schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(t.InputSchema()))
		if err != nil {
			return nil, fmt.Errorf("tool %q: compile schema: %w", name, err)
		}
		r.tools[name] = t
		r.schemas[name] = schema
	}
	return r, nil
}

// Specs lists tools sorted by name.
func (r *Registry) Specs() []Spec {
	out := make([]Spec, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, Spec{Name: t.Name(), Description: t.Description(), InputSchema: t.InputSchema()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Call validates args and runs the named tool. Empty or null args mean "{}".
func (r *Registry) Call(ctx context.Context, name string, args json.RawMessage) (Output, error) {
	t, ok := r.tools[name]
	if !ok {
		return Output{}, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	if trimmed := strings.TrimSpace(string(args)); trimmed == "" || trimmed == "null" {
		args = json.RawMessage(`{}`)
	}
	res, err := r.schemas[name].Validate(gojsonschema.NewBytesLoader(args))
	if err != nil {
		return Output{}, fmt.Errorf("%w: parsing input: %v", task.ErrInvalidArgument, err)
	}
	if !res.Valid() {
		msgs := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			msgs = append(msgs, e.String())
		}
		return Output{}, fmt.Errorf("%w: %s", task.ErrInvalidArgument, strings.Join(msgs, "; "))
	}
	return t.Execute(ctx, args)
}

func decode(args json.RawMessage, v any) error {
	if len(args) == 0 {
		return nil
	}
	if err := json.Unmarshal(args, v); err != nil {
		return fmt.Errorf("%w: parsing input: %v", task.ErrInvalidArgument, err)
	}
	return nil
}
