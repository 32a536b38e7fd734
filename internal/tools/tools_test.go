package tools

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"cronkeep/internal/clock"
	"cronkeep/internal/eventbus"
	"cronkeep/internal/storage"
	"cronkeep/internal/task"
	"cronkeep/internal/task/dispatch"
	"cronkeep/internal/task/scheduler"
	logx "cronkeep/pkg/logx"
)

var start = time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

func newRegistry(t *testing.T) (*Registry, storage.Store, *clock.Fake) {
	t.Helper()
	clk := clock.NewFake(start)
	st, err := storage.Open(storage.Config{}, clk, logx.Nop())
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	disp := dispatch.Func(func(ctx context.Context, req dispatch.Request) (dispatch.Result, error) {
		return dispatch.Result{Output: "ran " + req.Name}, nil
	})
	bus := eventbus.New()
	s := scheduler.New(st, disp, clk, logx.Nop(), bus, scheduler.Options{})
	reg, err := NewRegistry(Builtins(st, s, bus)...)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return reg, st, clk
}

func call(t *testing.T, reg *Registry, name, args string) (Output, error) {
	t.Helper()
	return reg.Call(context.Background(), name, json.RawMessage(args))
}

func TestSpecsListed(t *testing.T) {
	t.Parallel()
	reg, _, _ := newRegistry(t)
	var names []string
	for _, s := range reg.Specs() {
		names = append(names, s.Name)
	}
	want := "cron_create,cron_delete,cron_history,cron_list,cron_run_due"
	if got := strings.Join(names, ","); got != want {
		t.Fatalf("tools = %s, want %s", got, want)
	}
}

func TestCreateListRunDelete(t *testing.T) {
	t.Parallel()
	reg, st, clk := newRegistry(t)

	out, err := call(t, reg, "cron_create", `{"name":"disk","prompt":"check disk usage","interval_minutes":30,"session_id":"ops"}`)
	if err != nil {
		t.Fatalf("cron_create: %v", err)
	}
	created := out.Data.(CreateResult)
	if !created.NextRunUTC.Equal(start.Add(30 * time.Minute)) {
		t.Fatalf("next_run_utc = %v", created.NextRunUTC)
	}
	if !strings.HasPrefix(out.Text, "Cron task created: "+created.ID) {
		t.Fatalf("text = %q", out.Text)
	}

	out, err = call(t, reg, "cron_list", ``)
	if err != nil {
		t.Fatalf("cron_list: %v", err)
	}
	items := out.Data.([]ListItem)
	if len(items) != 1 || items[0].IntervalMinutes != 30 || items[0].SessionID != "ops" || items[0].LastRunUTC != nil {
		t.Fatalf("list = %+v", items)
	}

	out, err = call(t, reg, "cron_run_due", `{"limit":10}`)
	if err != nil {
		t.Fatalf("cron_run_due: %v", err)
	}
	if out.Text != "No due cron tasks." {
		t.Fatalf("text = %q", out.Text)
	}

	clk.Advance(31 * time.Minute)
	out, err = call(t, reg, "cron_run_due", `{}`)
	if err != nil {
		t.Fatalf("cron_run_due: %v", err)
	}
	rep := out.Data.(scheduler.Report)
	if len(rep.Entries) != 1 || rep.Entries[0].Outcome != task.OutcomeSuccess || rep.Entries[0].Output != "ran disk" {
		t.Fatalf("report = %+v", rep)
	}

	out, err = call(t, reg, "cron_history", `{"task_id":"`+created.ID+`"}`)
	if err != nil {
		t.Fatalf("cron_history: %v", err)
	}
	if runs := out.Data.([]task.Run); len(runs) != 1 {
		t.Fatalf("history = %+v", runs)
	}

	out, err = call(t, reg, "cron_delete", `{"task_id":"`+created.ID+`"}`)
	if err != nil {
		t.Fatalf("cron_delete: %v", err)
	}
	if !out.Data.(DeleteResult).Deleted {
		t.Fatalf("delete result = %+v", out.Data)
	}
	if list, _ := st.List(context.Background()); len(list) != 0 {
		t.Fatalf("task not deleted")
	}
}

func TestCreateAcceptsIntervalString(t *testing.T) {
	t.Parallel()
	reg, _, _ := newRegistry(t)
	out, err := call(t, reg, "cron_create", `{"prompt":"p","interval":"01:30"}`)
	if err != nil {
		t.Fatalf("cron_create: %v", err)
	}
	res := out.Data.(CreateResult)
	if res.IntervalMinutes != 90 || res.Name != task.DefaultName {
		t.Fatalf("result = %+v", res)
	}
}

func TestInvalidInputLeavesStoreUnchanged(t *testing.T) {
	t.Parallel()
	reg, st, _ := newRegistry(t)
	cases := []struct{ tool, args string }{
		{"cron_create", `{"prompt":"p","interval_minutes":0}`},
		{"cron_create", `{"prompt":"p","interval_minutes":-5}`},
		{"cron_create", `{"prompt":"","interval_minutes":5}`},
		{"cron_create", `{"prompt":"p"}`},
		{"cron_create", `{"prompt":"p","interval":"30s"}`},
		{"cron_create", `{"prompt":"p","interval_minutes":307445736}`},
		{"cron_create", `{"prompt":"p","interval_minutes":52560001}`},
		{"cron_create", `{"prompt":"p","interval":"99999999999"}`},
		{"cron_create", `{"prompt":"p","interval":"1000000h"}`},
		{"cron_create", `not json`},
		{"cron_run_due", `{"limit":0}`},
		{"cron_delete", `{}`},
	}
	for _, tc := range cases {
		if _, err := call(t, reg, tc.tool, tc.args); !errors.Is(err, task.ErrInvalidArgument) {
			t.Fatalf("%s %s: err = %v, want invalid argument", tc.tool, tc.args, err)
		}
	}
	if list, _ := st.List(context.Background()); len(list) != 0 {
		t.Fatalf("store modified: %+v", list)
	}
}

func TestDeleteUnknown(t *testing.T) {
	t.Parallel()
	reg, st, _ := newRegistry(t)
	if _, err := call(t, reg, "cron_create", `{"prompt":"p","interval_minutes":5}`); err != nil {
		t.Fatalf("cron_create: %v", err)
	}
	if _, err := call(t, reg, "cron_delete", `{"task_id":"nope"}`); !errors.Is(err, task.ErrNotFound) {
		t.Fatalf("err = %v, want not found", err)
	}
	if list, _ := st.List(context.Background()); len(list) != 1 {
		t.Fatalf("store changed: %d tasks", len(list))
	}
}

func TestUnknownTool(t *testing.T) {
	t.Parallel()
	reg, _, _ := newRegistry(t)
	if _, err := call(t, reg, "cron_pause", `{}`); !errors.Is(err, ErrUnknownTool) {
		t.Fatalf("err = %v", err)
	}
}

func TestDuplicateToolRejected(t *testing.T) {
	t.Parallel()
	tool := &cronListTool{}
	if _, err := NewRegistry(tool, tool); err == nil {
		t.Fatalf("expected duplicate error")
	}
}

func TestNullArgsMeanEmptyObject(t *testing.T) {
	t.Parallel()
	reg, _, _ := newRegistry(t)
	out, err := reg.Call(context.Background(), "cron_list", json.RawMessage("null"))
	if err != nil {
		t.Fatalf("cron_list null: %v", err)
	}
	if items := out.Data.([]ListItem); len(items) != 0 {
		t.Fatalf("list = %+v", items)
	}
}

func TestRunDueHugeLimit(t *testing.T) {
	t.Parallel()
	reg, _, clk := newRegistry(t)
	if _, err := call(t, reg, "cron_create", `{"prompt":"p","interval_minutes":5}`); err != nil {
		t.Fatalf("cron_create: %v", err)
	}
	clk.Advance(6 * time.Minute)
	out, err := call(t, reg, "cron_run_due", `{"limit":10000000000000}`)
	if err != nil {
		t.Fatalf("cron_run_due: %v", err)
	}
	if rep := out.Data.(scheduler.Report); len(rep.Entries) != 1 {
		t.Fatalf("report = %+v", rep)
	}
}

func TestCreateMaxInterval(t *testing.T) {
	t.Parallel()
	reg, _, _ := newRegistry(t)
	out, err := call(t, reg, "cron_create", `{"prompt":"p","interval_minutes":52560000}`)
	if err != nil {
		t.Fatalf("cron_create: %v", err)
	}
	res := out.Data.(CreateResult)
	if res.IntervalMinutes != task.MaxIntervalMinutes || !res.NextRunUTC.Equal(start.Add(task.MaxInterval)) {
		t.Fatalf("result = %+v", res)
	}
}
