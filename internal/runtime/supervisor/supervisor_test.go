package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestGoRecordsFirstError(t *testing.T) {
	t.Parallel()
	s := New(context.Background(), WithCancelOnError(true))
	boom := errors.New("boom")
	s.Go("fails", func(ctx context.Context) error { return boom })
	s.Go("waits", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if err := s.Wait(waitCtx(t)); !errors.Is(err, boom) {
		t.Fatalf("Wait = %v, want boom", err)
	}
}

func TestGoRecoversPanic(t *testing.T) {
	t.Parallel()
	s := New(context.Background())
	s.Go("panics", func(ctx context.Context) error { panic("bad") })
	if err := s.Wait(waitCtx(t)); err == nil {
		t.Fatalf("panic should be recorded")
	}
	snap := s.Snapshot()
	if len(snap) != 1 || snap[0].Panics != 1 || snap[0].Running {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestGoRestartUntilSuccess(t *testing.T) {
	t.Parallel()
	s := New(context.Background())
	var n atomic.Int32
	s.GoRestart("flaky", func(ctx context.Context) error {
		if n.Add(1) < 3 {
			return errors.New("not yet")
		}
		return nil
	}, WithBackoff(time.Millisecond, 2*time.Millisecond))
	if err := s.Wait(waitCtx(t)); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if n.Load() != 3 {
		t.Fatalf("runs = %d, want 3", n.Load())
	}
	if snap := s.Snapshot(); snap[0].Starts != 3 {
		t.Fatalf("starts = %d", snap[0].Starts)
	}
}

func TestGoRestartGivesUp(t *testing.T) {
	t.Parallel()
	s := New(context.Background())
	var n atomic.Int32
	s.GoRestart("broken", func(ctx context.Context) error {
		n.Add(1)
		return errors.New("always")
	}, WithBackoff(time.Millisecond, time.Millisecond), WithMaxRestarts(2))
	if err := s.Wait(waitCtx(t)); err == nil {
		t.Fatalf("expected final error")
	}
	if n.Load() != 3 {
		t.Fatalf("runs = %d, want 3", n.Load())
	}
}

func TestStopCancelsLoops(t *testing.T) {
	t.Parallel()
	s := New(context.Background())
	s.GoRestart("loop", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if err := s.Stop(waitCtx(t)); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
