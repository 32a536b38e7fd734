// Package dispatch hands a due task's prompt to the agent that executes it.
//
// The scheduler only sees the Dispatcher interface. Concrete adapters:
//   - Log: writes the prompt to the log (dry runs, local testing)
//   - Webhook: POSTs the request as JSON to an HTTP endpoint
//   - OpenAI: sends the prompt as a chat completion to an OpenAI-compatible API
//
// Wrappers add a default session, rate limiting, a per-task circuit breaker
// and panic recovery.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"unicode/utf8"
)

// DefaultSession is used when neither the task nor the config names one.
const DefaultSession = "cron_default"

// Request is one fully resolved hand-off to the agent.
type Request struct {
	TaskID    string `json:"task_id"`
	Name      string `json:"name"`
	Prompt    string `json:"prompt"`
	SessionID string `json:"session_id"`
}

// Result is what the agent returned. Output is informational only.
type Result struct {
	Output string `json:"output,omitempty"`
}

// Dispatcher executes a prompt. A nil error means success.
// Wrap the error with Fatal to disable the task instead of rescheduling it.
type Dispatcher interface {
	Execute(ctx context.Context, req Request) (Result, error)
}

// Func adapts a function to Dispatcher.
type Func func(ctx context.Context, req Request) (Result, error)

func (f Func) Execute(ctx context.Context, req Request) (Result, error) { return f(ctx, req) }

// Fatal marks err as permanent: the task is disabled after this run.
//
//	return dispatch.Result{}, dispatch.Fatal(fmt.Errorf("endpoint gone: %w", err))
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return fatalError{err: err}
}

// IsFatal reports whether err is wrapped with Fatal.
func IsFatal(err error) bool {
	var e fatalError
	return errors.As(err, &e)
}

type fatalError struct{ err error }

func (e fatalError) Error() string { return fmt.Sprintf("fatal: %v", e.err) }
func (e fatalError) Unwrap() error { return e.err }

// PanicError is returned by Guard when the wrapped dispatcher panics.
type PanicError struct {
	Value any
	Stack string
}

func (e *PanicError) Error() string { return fmt.Sprintf("dispatch panic: %v", e.Value) }

// Guard converts panics in d into *PanicError failures.
func Guard(d Dispatcher) Dispatcher {
	return Func(func(ctx context.Context, req Request) (res Result, err error) {
		defer func() {
			if r := recover(); r != nil {
				res = Result{}
				err = &PanicError{Value: r, Stack: string(debug.Stack())}
			}
		}()
		return d.Execute(ctx, req)
	})
}

// WithSession fills an empty SessionID with session.
func WithSession(d Dispatcher, session string) Dispatcher {
	session = strings.TrimSpace(session)
	if session == "" {
		session = DefaultSession
	}
	return Func(func(ctx context.Context, req Request) (Result, error) {
		if strings.TrimSpace(req.SessionID) == "" {
			req.SessionID = session
		}
		return d.Execute(ctx, req)
	})
}

// truncate cuts s to at most maxN bytes without splitting a rune.
func truncate(s string, maxN int) string {
	s = strings.TrimSpace(s)
	if maxN <= 0 || len(s) <= maxN {
		return s
	}
	for maxN > 0 && !utf8.RuneStart(s[maxN]) {
		maxN--
	}
	return s[:maxN] + "…"
}
