package notifier

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"cronkeep/internal/eventbus"
	rtsup "cronkeep/internal/runtime/supervisor"
	"cronkeep/internal/task"
	"cronkeep/internal/task/scheduler"
	logx "cronkeep/pkg/logx"
)

var (
	ErrDisabled  = errors.New("notifier disabled")
	ErrQueueFull = errors.New("notifier queue full")
	ErrStopped   = errors.New("notifier stopped")
)

const historyCap = 100

// Service is safe for concurrent use.
type Service struct {
	sender Sender
	bus    eventbus.Bus
	log    logx.Logger

	mu        sync.Mutex
	cfg       Config
	limiter   *rate.Limiter
	queue     chan string
	drained   chan struct{}
	accepting bool
	sup       *rtsup.Supervisor
	enqueueWG sync.WaitGroup

	dmu   sync.Mutex
	dedup map[uint64]time.Time

	hmu     sync.Mutex
	history []HistoryItem
}

// New wires a notifier. bus may be nil, in which case run reports are not
// forwarded.
func New(cfg Config, sender Sender, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		sender: sender,
		bus:    bus,
		log:    log.With(logx.String("comp", "notifier")),
		dedup:  map[uint64]time.Time{},
	}
	s.applyLocked(cfg)
	return s
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled && s.sender != nil
}

// Apply updates limits and the report mode. Enabling or disabling takes
// effect on the next Start.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 128
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 1
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = time.Second
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Reports)) {
	case ReportsOff, ReportsAll:
		cfg.Reports = strings.ToLower(strings.TrimSpace(cfg.Reports))
	default:
		cfg.Reports = ReportsFailures
	}
	s.cfg = cfg
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

func (s *Service) config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Start launches the send worker and the report listener. It is a no-op when
// disabled or already running.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.queue != nil || !s.cfg.Enabled || s.sender == nil {
		s.mu.Unlock()
		return
	}
	q := make(chan string, s.cfg.QueueSize)
	drained := make(chan struct{})
	s.queue = q
	s.drained = drained
	s.accepting = true
	sup := rtsup.New(ctx, rtsup.WithLogger(s.log))
	s.sup = sup
	s.mu.Unlock()

	var once sync.Once
	sup.GoRestart("notify.worker", func(c context.Context) error {
		err := s.workerLoop(c, q)
		if err == nil {
			once.Do(func() { close(drained) })
		}
		return err
	})
	if s.bus != nil {
		events, unsubscribe := s.bus.Subscribe(16, eventbus.TypeRunDue)
		sup.GoRestart("notify.reports", func(c context.Context) error {
			return s.reportLoop(c, events)
		})
		go func() {
			<-sup.Context().Done()
			unsubscribe()
		}()
	}
	s.log.Debug("notifier started")
}

// Stop refuses new messages, drains the queue until ctx is done, then stops
// the loops.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	q, sup, drained := s.queue, s.sup, s.drained
	if q == nil {
		s.mu.Unlock()
		return
	}
	s.accepting = false
	s.queue = nil
	s.sup = nil
	s.drained = nil
	s.mu.Unlock()

	s.enqueueWG.Wait()
	close(q)

	select {
	case <-drained:
	case <-sup.Context().Done():
	case <-ctx.Done():
	}
	_ = sup.Stop(ctx)
}

// Notify enqueues text without waiting for delivery.
func (s *Service) Notify(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	s.mu.Lock()
	if !s.cfg.Enabled {
		s.mu.Unlock()
		return ErrDisabled
	}
	if !s.accepting || s.queue == nil {
		s.mu.Unlock()
		return ErrStopped
	}
	q := s.queue
	window := s.cfg.DedupWindow
	s.enqueueWG.Add(1)
	s.mu.Unlock()
	defer s.enqueueWG.Done()

	if window > 0 && !s.dedupAllow(text, window) {
		return nil
	}
	select {
	case q <- text:
		return nil
	default:
		return ErrQueueFull
	}
}

// NotifyText lets the logging sink forward lines through this service.
func (s *Service) NotifyText(ctx context.Context, text string) error {
	return s.Notify(ctx, text)
}

// History returns recently attempted messages, oldest first.
func (s *Service) History() []HistoryItem {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	return append([]HistoryItem(nil), s.history...)
}

func (s *Service) workerLoop(ctx context.Context, q <-chan string) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case text, ok := <-q:
			if !ok {
				return nil
			}
			s.send(ctx, text)
		}
	}
}

func (s *Service) reportLoop(ctx context.Context, events <-chan eventbus.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			rep, ok := ev.Data.(scheduler.Report)
			if !ok {
				continue
			}
			text, ok := FormatReport(rep, s.config().Reports)
			if !ok {
				continue
			}
			if err := s.Notify(ctx, text); err != nil && !errors.Is(err, ErrStopped) {
				s.log.Debug("run report not queued", logx.Err(err))
			}
		}
	}
}

func (s *Service) send(ctx context.Context, text string) {
	s.mu.Lock()
	cfg, lim := s.cfg, s.limiter
	s.mu.Unlock()

	var err error
	delay := cfg.RetryBase
	for attempt := 0; attempt <= cfg.RetryMax; attempt++ {
		if attempt > 0 {
			t := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				t.Stop()
				return
			case <-t.C:
			}
			delay *= 2
		}
		if werr := lim.Wait(ctx); werr != nil {
			return
		}
		cctx, cancel := context.WithTimeout(ctx, 15*time.Second)
		err = s.sender.SendText(cctx, text)
		cancel()
		if err == nil {
			break
		}
		s.log.Debug("notify send failed", logx.Int("attempt", attempt+1), logx.Err(err))
	}
	item := HistoryItem{At: time.Now().UTC(), Text: text}
	if err != nil {
		item.Error = err.Error()
	}
	s.hmu.Lock()
	s.history = append(s.history, item)
	if len(s.history) > historyCap {
		s.history = s.history[len(s.history)-historyCap:]
	}
	s.hmu.Unlock()
}

func (s *Service) dedupAllow(text string, window time.Duration) bool {
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	key := h.Sum64()
	now := time.Now()

	s.dmu.Lock()
	defer s.dmu.Unlock()
	if until, ok := s.dedup[key]; ok && now.Before(until) {
		return false
	}
	for k, until := range s.dedup {
		if !now.Before(until) {
			delete(s.dedup, k)
		}
	}
	s.dedup[key] = now.Add(window)
	return true
}

// FormatReport renders a run-due report for the given mode. It reports false
// when there is nothing worth sending.
func FormatReport(rep scheduler.Report, mode string) (string, bool) {
	if mode == ReportsOff || len(rep.Entries) == 0 {
		return "", false
	}
	shown := rep
	if mode != ReportsAll {
		shown.Entries = nil
		for _, e := range rep.Entries {
			if e.Outcome != task.OutcomeSuccess {
				shown.Entries = append(shown.Entries, e)
			}
		}
		if len(shown.Entries) == 0 {
			return "", false
		}
	}
	head := fmt.Sprintf("cron run at %s: %d ran, %d failed",
		rep.RanAt.UTC().Format(time.RFC3339), len(rep.Entries), rep.Failed())
	return head + "\n" + shown.Text(), true
}
