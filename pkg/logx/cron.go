package logx

import (
	"fmt"

	"github.com/robfig/cron/v3"
)

// CronLogger adapts a Logger to robfig/cron's Logger interface.
//
// cron logs its own lifecycle ("start", "schedule", "skip") at Info; those are
// demoted to Debug so a busy driver doesn't flood the console.
func CronLogger(l Logger) cron.Logger {
	return cronLogger{l: l}
}

type cronLogger struct{ l Logger }

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug("cron: "+msg, kvFields(keysAndValues)...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	fields := append(kvFields(keysAndValues), Err(err))
	c.l.Error("cron: "+msg, fields...)
}

func kvFields(kv []interface{}) []Field {
	out := make([]Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			k = fmt.Sprint(kv[i])
		}
		out = append(out, Any(k, kv[i+1]))
	}
	return out
}
