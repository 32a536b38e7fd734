package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"cronkeep/internal/app"
	"cronkeep/internal/task"
	"cronkeep/internal/tools"
)

var (
	createName     string
	createPrompt   string
	createInterval string
	createMinutes  int
	createSession  string

	runDueLimit int

	historyTask  string
	historyLimit int
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a recurring task",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		args := map[string]any{"prompt": createPrompt}
		if createName != "" {
			args["name"] = createName
		}
		if createSession != "" {
			args["session_id"] = createSession
		}
		if cmd.Flags().Changed("every") {
			args["interval"] = createInterval
		} else {
			args["interval_minutes"] = createMinutes
		}
		return callTool(cmd, "cron_create", args, nil)
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return callTool(cmd, "cron_list", map[string]any{}, func(w io.Writer, out tools.Output) error {
			items, _ := out.Data.([]tools.ListItem)
			if len(items) == 0 {
				_, err := fmt.Fprintln(w, out.Text)
				return err
			}
			tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintf(tw, "ID\tNAME\tEVERY\tSTATUS\tNEXT RUN\tLAST RUN\n")
			for _, it := range items {
				last := "-"
				if it.LastRunUTC != nil {
					last = it.LastRunUTC.Format(time.RFC3339)
				}
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
					it.ID, clip(it.Name, 40), task.FormatInterval(task.Minutes(it.IntervalMinutes)),
					it.Status, it.NextRunUTC.Format(time.RFC3339), last)
			}
			return tw.Flush()
		})
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <task-id>",
	Short: "Delete a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, argv []string) error {
		return callTool(cmd, "cron_delete", map[string]any{"task_id": argv[0]}, nil)
	},
}

var runDueCmd = &cobra.Command{
	Use:   "run-due",
	Short: "Run due tasks now",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return callTool(cmd, "cron_run_due", map[string]any{"limit": runDueLimit}, nil)
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent runs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		args := map[string]any{"limit": historyLimit}
		if historyTask != "" {
			args["task_id"] = historyTask
		}
		return callTool(cmd, "cron_history", args, func(w io.Writer, out tools.Output) error {
			runs, _ := out.Data.([]task.Run)
			if len(runs) == 0 {
				_, err := fmt.Fprintln(w, out.Text)
				return err
			}
			tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintf(tw, "FINISHED\tTASK\tNAME\tOUTCOME\tTOOK\tERROR\n")
			for _, r := range runs {
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
					r.FinishedUTC.Format(time.RFC3339), r.TaskID, clip(r.TaskName, 30),
					r.Outcome, r.Duration().Round(time.Millisecond), clip(r.Error, 60))
			}
			return tw.Flush()
		})
	},
}

func init() {
	f := createCmd.Flags()
	f.StringVar(&createName, "name", "", "task name")
	f.StringVar(&createPrompt, "prompt", "", "prompt sent on every run")
	f.IntVar(&createMinutes, "minutes", 60, "interval in minutes")
	f.StringVar(&createInterval, "every", "", `interval as minutes, HH:MM or a duration ("90", "01:30", "1h30m")`)
	f.StringVar(&createSession, "session", "", "session id the prompt is delivered to")
	_ = createCmd.MarkFlagRequired("prompt")

	runDueCmd.Flags().IntVar(&runDueLimit, "limit", tools.DefaultRunLimit, "maximum tasks to run")

	historyCmd.Flags().StringVar(&historyTask, "task", "", "only runs of this task id")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum runs to show")
}

// callTool opens the app, runs one tool and prints its result. render
// overrides the default text output.
func callTool(cmd *cobra.Command, name string, args map[string]any, render func(io.Writer, tools.Output) error) error {
	raw, err := json.Marshal(args)
	if err != nil {
		return err
	}
	a, err := app.New(cfgFile)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out, err := a.Tools().Call(ctx, name, raw)
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	switch {
	case asJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out.Data)
	case render != nil:
		return render(w, out)
	default:
		_, err := fmt.Fprintln(w, out.Text)
		return err
	}
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
