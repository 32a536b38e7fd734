package dispatch

import (
	"context"

	logx "cronkeep/pkg/logx"
)

// Log is a dispatcher that only records the prompt. It always succeeds.
type Log struct {
	L logx.Logger
}

func (d Log) Execute(ctx context.Context, req Request) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	d.L.Info("dispatch",
		logx.String("task_id", req.TaskID),
		logx.String("name", req.Name),
		logx.String("session_id", req.SessionID),
		logx.String("prompt", truncate(req.Prompt, 200)),
	)
	return Result{Output: "logged"}, nil
}
