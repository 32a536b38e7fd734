package scheduler

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	logx "cronkeep/pkg/logx"
)

// DefaultLimit is the per-tick limit when none is configured.
const DefaultLimit = 3

// DriverConfig controls the background loop.
type DriverConfig struct {
	Enabled   bool
	Tick      string
	Limit     int
	RunOnBoot bool
	BootLimit int
}

func (c DriverConfig) limit() int {
	if c.Limit <= 0 {
		return DefaultLimit
	}
	return c.Limit
}

func (c DriverConfig) bootLimit() int {
	if c.BootLimit <= 0 {
		return DefaultLimit
	}
	return c.BootLimit
}

// Driver calls Scheduler.RunDue on a cron schedule. Ticks never overlap:
// a tick that fires while the previous one is still running is skipped.
type Driver struct {
	s   *Scheduler
	log logx.Logger

	mu      sync.Mutex
	cfg     DriverConfig
	c       *cron.Cron
	entry   cron.EntryID
	runCtx  context.Context
	cancel  context.CancelFunc
	bootWG  sync.WaitGroup
	started bool

	ticks    atomic.Uint64
	lastTick atomic.Int64
}

func NewDriver(s *Scheduler, cfg DriverConfig, log logx.Logger) *Driver {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Driver{s: s, cfg: cfg, log: log.With(logx.String("comp", "driver"))}
}

// Start begins ticking. ctx bounds every RunDue the driver makes.
// A disabled driver starts nothing and returns nil.
func (d *Driver) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return nil
	}
	cfg := d.cfg
	if !cfg.Enabled {
		d.log.Info("driver disabled")
		return nil
	}
	sched, err := ParseTick(cfg.Tick)
	if err != nil {
		return err
	}
	d.runCtx, d.cancel = context.WithCancel(ctx)
	d.startCronLocked(sched)
	d.started = true

	if cfg.RunOnBoot {
		d.bootWG.Add(1)
		go func(runCtx context.Context, limit int) {
			defer d.bootWG.Done()
			d.run(runCtx, limit, "boot")
		}(d.runCtx, cfg.bootLimit())
	}
	d.log.Info("driver started", logx.String("tick", tickLabel(cfg.Tick)), logx.Int("limit", cfg.limit()), logx.Bool("run_on_boot", cfg.RunOnBoot))
	return nil
}

func (d *Driver) startCronLocked(sched cron.Schedule) {
	cl := logx.CronLogger(d.log)
	d.c = cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	d.entry = d.c.Schedule(sched, cron.FuncJob(d.tick))
	d.c.Start()
}

// Stop halts ticking and waits for an in-flight tick (bounded by ctx).
// Dispatches still running when ctx expires are canceled.
func (d *Driver) Stop(ctx context.Context) {
	d.mu.Lock()
	c := d.c
	cancel := d.cancel
	d.c = nil
	d.cancel = nil
	d.started = false
	d.mu.Unlock()

	if c == nil {
		return
	}
	done := make(chan struct{})
	go func() {
		<-c.Stop().Done()
		d.bootWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		d.log.Warn("driver stop timed out, canceling in-flight runs")
	}
	if cancel != nil {
		cancel()
	}
	d.log.Info("driver stopped")
}

// Apply updates the config. A running driver restarts its cron when the tick
// changes, and stops or starts when Enabled flips.
func (d *Driver) Apply(ctx context.Context, cfg DriverConfig) error {
	if _, err := ParseTick(cfg.Tick); err != nil {
		return err
	}
	d.mu.Lock()
	old := d.cfg
	d.cfg = cfg
	started := d.started
	d.mu.Unlock()

	switch {
	case started && !cfg.Enabled:
		d.Stop(ctx)
		return nil
	case !started && cfg.Enabled:
		// RunOnBoot only applies at process start.
		cfg.RunOnBoot = false
		d.mu.Lock()
		d.cfg = cfg
		d.mu.Unlock()
		return d.Start(ctx)
	case started && strings.TrimSpace(old.Tick) != strings.TrimSpace(cfg.Tick):
		sched, _ := ParseTick(cfg.Tick)
		d.mu.Lock()
		prev := d.c
		d.startCronLocked(sched)
		d.mu.Unlock()
		if prev != nil {
			prev.Stop()
		}
		d.log.Info("driver tick changed", logx.String("tick", tickLabel(cfg.Tick)))
	}
	return nil
}

func (d *Driver) tick() {
	d.mu.Lock()
	ctx := d.runCtx
	limit := d.cfg.limit()
	d.mu.Unlock()
	if ctx == nil {
		return
	}
	d.run(ctx, limit, "tick")
}

func (d *Driver) run(ctx context.Context, limit int, trigger string) {
	d.ticks.Add(1)
	d.lastTick.Store(time.Now().UnixNano())
	rep, err := d.s.RunDue(ctx, limit)
	if err != nil {
		d.log.Error("run due failed", logx.String("trigger", trigger), logx.Err(err))
		return
	}
	if len(rep.Entries) > 0 {
		d.log.Debug("run due", logx.String("trigger", trigger), logx.Int("ran", len(rep.Entries)))
	}
}

func tickLabel(raw string) string {
	if s := strings.TrimSpace(raw); s != "" {
		return s
	}
	return DefaultTick.String()
}
