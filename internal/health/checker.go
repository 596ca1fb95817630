// Package health periodically verifies the bot's dependencies and exposes
// the result over HTTP.
package health

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "tokenbot/pkg/logx"
	"tokenbot/pkg/systemd"
)

// DefaultInterval is the nominal gap between checks; a check result older
// than twice this is stale.
const DefaultInterval = time.Minute

// Probe checks one dependency.
type Probe struct {
	Name  string
	Check func(ctx context.Context) error
}

// Result is the outcome of one Check.
type Result struct {
	OK       bool              `json:"ok"`
	At       time.Time         `json:"at"`
	Took     time.Duration     `json:"took"`
	Failures map[string]string `json:"failures,omitempty"`
}

type Config struct {
	// Interval is used for staleness; it should match the schedule.
	Interval time.Duration
	// Timeout bounds each probe.
	Timeout time.Duration
}

// Checker runs probes and remembers the last result.
type Checker struct {
	cfg    Config
	probes []Probe
	log    logx.Logger

	watchdog func() (bool, error)
	now      func() time.Time

	mu          sync.Mutex
	last        Result
	lastHealthy time.Time
}

func NewChecker(cfg Config, log logx.Logger, probes ...Probe) *Checker {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	c := &Checker{cfg: cfg, probes: probes, log: log, now: time.Now}
	if systemd.WatchdogInterval() > 0 {
		c.watchdog = systemd.Watchdog
	}
	// Startup already proved every dependency reachable.
	c.lastHealthy = c.now()
	return c
}

// Check runs every probe concurrently and records the result.
func (c *Checker) Check(ctx context.Context) Result {
	if ctx == nil {
		ctx = context.Background()
	}
	start := c.now()
	c.log.Debug("performing health check")

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		fail = map[string]string{}
	)
	for _, p := range c.probes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
			defer cancel()
			if err := p.Check(pctx); err != nil {
				mu.Lock()
				fail[p.Name] = err.Error()
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	res := Result{OK: len(fail) == 0, At: start, Took: c.now().Sub(start)}
	if !res.OK {
		res.Failures = fail
	}

	c.mu.Lock()
	c.last = res
	if res.OK {
		c.lastHealthy = start
	}
	c.mu.Unlock()

	if res.OK {
		c.log.Info("health check passed", logx.Duration("took", res.Took))
		if c.watchdog != nil {
			if _, err := c.watchdog(); err != nil {
				c.log.Warn("watchdog notify failed", logx.Err(err))
			}
		}
	} else {
		fields := []logx.Field{logx.Duration("took", res.Took)}
		for name, msg := range fail {
			fields = append(fields, logx.String(name, msg))
		}
		c.log.Error("health check failed", fields...)
	}
	return res
}

// Last returns the most recent result and the time of the last healthy check.
func (c *Checker) Last() (Result, time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last, c.lastHealthy
}

// Stale reports whether the last healthy check is older than twice the interval.
func (c *Checker) Stale(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return now.Sub(c.lastHealthy) > 2*c.cfg.Interval
}

// Healthy is true when the last check passed and is not stale.
func (c *Checker) Healthy(now time.Time) bool {
	c.mu.Lock()
	ok := c.last.At.IsZero() || c.last.OK
	c.mu.Unlock()
	return ok && !c.Stale(now)
}

// Scheduler runs Check on a cron schedule.
type Scheduler struct {
	c       *cron.Cron
	checker *Checker
	log     logx.Logger
	cancel  context.CancelFunc
}

var specParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// IntervalOf estimates the gap between two runs of a cron spec, falling back
// to DefaultInterval for unparsable specs.
func IntervalOf(spec string) time.Duration {
	sched, err := specParser.Parse(spec)
	if err != nil {
		return DefaultInterval
	}
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	first := sched.Next(base)
	if d := sched.Next(first).Sub(first); d > 0 {
		return d
	}
	return DefaultInterval
}

// NewScheduler parses spec ("@every 1m", "*/5 * * * *", ...) and prepares
// the cron runner. Overlapping runs are skipped.
func NewScheduler(spec string, checker *Checker, log logx.Logger) (*Scheduler, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	sched, err := specParser.Parse(spec)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := cron.New(
		cron.WithParser(specParser),
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	c.Schedule(sched, cron.FuncJob(func() { checker.Check(ctx) }))
	return &Scheduler{c: c, checker: checker, log: log, cancel: cancel}, nil
}

func (s *Scheduler) Start() {
	s.c.Start()
	s.log.Info("health checks scheduled")
}

// Stop cancels running probes and waits for the current job to return.
func (s *Scheduler) Stop(ctx context.Context) {
	s.cancel()
	done := s.c.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}
