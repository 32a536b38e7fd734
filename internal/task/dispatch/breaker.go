package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cronkeep/internal/clock"
)

// ErrCircuitOpen is returned while a task's breaker is open. The run counts
// as an ordinary failure and the task stays scheduled.
var ErrCircuitOpen = errors.New("circuit open")

// BreakerConfig trips a per-task breaker after Trip consecutive failures.
// While open, calls fail fast for a cooldown that starts at Cooldown and
// doubles with each further failure up to MaxCooldown. A task whose last
// failure is older than ResetAfter starts clean again.
type BreakerConfig struct {
	Trip        int
	Cooldown    time.Duration
	MaxCooldown time.Duration
	ResetAfter  time.Duration
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.Cooldown <= 0 {
		c.Cooldown = 5 * time.Minute
	}
	if c.MaxCooldown < c.Cooldown {
		c.MaxCooldown = max(c.Cooldown, time.Hour)
	}
	if c.ResetAfter <= 0 {
		c.ResetAfter = 24 * time.Hour
	}
	return c
}

type circuit struct {
	fails       int
	openUntil   time.Time
	lastFailure time.Time
}

type breaker struct {
	next Dispatcher
	cfg  BreakerConfig
	clk  clock.Clock

	mu sync.Mutex
	m  map[string]*circuit
}

// Breaker wraps d with a per-task circuit breaker timed by clk (nil means
// the wall clock). Trip <= 0 returns d. Fatal errors pass through and do not
// count: the task is disabled anyway.
func Breaker(d Dispatcher, cfg BreakerConfig, clk clock.Clock) Dispatcher {
	if cfg.Trip <= 0 {
		return d
	}
	return &breaker{next: d, cfg: cfg.withDefaults(), clk: clock.Or(clk), m: map[string]*circuit{}}
}

func (b *breaker) Execute(ctx context.Context, req Request) (Result, error) {
	if until, open := b.open(req.TaskID); open {
		return Result{}, fmt.Errorf("%w until %s", ErrCircuitOpen, until.UTC().Format(time.RFC3339))
	}
	res, err := b.next.Execute(ctx, req)
	if !IsFatal(err) {
		b.record(req.TaskID, err)
	}
	return res, err
}

func (b *breaker) circuitLocked(key string, now time.Time) *circuit {
	c := b.m[key]
	if c == nil {
		c = &circuit{}
		b.m[key] = c
	}
	if !c.lastFailure.IsZero() && now.Sub(c.lastFailure) > b.cfg.ResetAfter {
		*c = circuit{}
	}
	return c
}

func (b *breaker) open(key string) (time.Time, bool) {
	now := b.clk.Now()
	b.mu.Lock()
	defer b.mu.Unlock()
	c := b.circuitLocked(key, now)
	return c.openUntil, now.Before(c.openUntil)
}

func (b *breaker) record(key string, err error) {
	now := b.clk.Now()
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		delete(b.m, key)
		return
	}
	c := b.circuitLocked(key, now)
	c.fails++
	c.lastFailure = now
	if c.fails < b.cfg.Trip {
		return
	}
	d := b.cfg.Cooldown
	for i := c.fails - b.cfg.Trip; i > 0 && d < b.cfg.MaxCooldown; i-- {
		d *= 2
	}
	c.openUntil = now.Add(min(d, b.cfg.MaxCooldown))
}
