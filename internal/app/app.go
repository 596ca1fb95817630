package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"tokenbot/internal/config"
	"tokenbot/internal/enrich"
	"tokenbot/internal/format"
	"tokenbot/internal/health"
	"tokenbot/internal/model"
	"tokenbot/internal/notifier"
	"tokenbot/internal/runtime/supervisor"
	"tokenbot/internal/source"
	"tokenbot/internal/storage"
	"tokenbot/internal/storage/postgres"
	kit "tokenbot/internal/transport"
	telegram "tokenbot/internal/transport/telegram/adapter"
	"tokenbot/internal/watcher"
	logx "tokenbot/pkg/logx"
	"tokenbot/pkg/systemd"
)

type App struct {
	cfg *config.Config
	rt  config.Runtime

	log  logx.Logger
	logs *logx.Service

	tg     *telegram.Adapter
	dests  []kit.ChatTarget
	enrich *enrich.Enricher // nil when disabled

	db      *postgres.Store
	audit   storage.Store
	notif   *notifier.Service
	src     *source.Source
	watch   *watcher.Watcher
	checker *health.Checker
	cron    *health.Scheduler
	sup     *supervisor.Supervisor
}

// New builds the logger, the Telegram adapter and the enricher. Nothing
// touches the network until Check or Start.
func New(cfg *config.Config) (*App, error) {
	rt, err := cfg.Runtime()
	if err != nil {
		return nil, err
	}
	dests, err := kit.ParseChatTargets(cfg.Telegram.ChatIDs)
	if err != nil {
		return nil, err
	}

	// The Telegram log sink needs the adapter, and the adapter needs a logger.
	lc := mapLogConfig(cfg)
	boot := lc
	boot.Telegram.Enabled = false
	logSvc, log := logx.New(boot, nil)

	ad, err := telegram.New(mapTelegramConfig(cfg, rt), log.With(logx.String("comp", "telegram")))
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	logSvc.SetSender(ad)
	logSvc.SetTelegramTarget(cfg.Telegram.GroupLog, cfg.Logging.Telegram.ThreadID)
	logSvc.Apply(lc)

	a := &App{
		cfg:   cfg,
		rt:    rt,
		log:   log.With(logx.String("comp", "app")),
		logs:  logSvc,
		tg:    ad,
		dests: dests,
	}
	if rt.EnrichEnabled {
		a.enrich = enrich.New(mapEnrichConfig(cfg, rt), log.With(logx.String("comp", "enrich")))
	}
	return a, nil
}

// Logger returns the root application logger.
func (a *App) Logger() logx.Logger { return a.log }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	if err := a.sup.Err(); err != nil {
		return err
	}
	if a.sup.Panicked() {
		return supervisor.ErrPanic
	}
	return nil
}

func (a *App) openStore(ctx context.Context) error {
	if a.db != nil {
		return nil
	}
	db, err := postgres.Open(ctx, mapPostgresConfig(a.cfg, a.rt))
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	a.db = db
	return nil
}

// Check proves both dependencies reachable: the database answers a ping and
// the bot token is accepted by Telegram.
func (a *App) Check(ctx context.Context) error {
	if err := a.openStore(ctx); err != nil {
		return err
	}
	if err := a.db.Ping(ctx); err != nil {
		return fmt.Errorf("database ping: %w", err)
	}
	a.log.Info("database reachable",
		logx.String("host", a.cfg.Database.Host),
		logx.String("db", a.cfg.Database.Name),
	)

	info, err := a.tg.Ping(ctx)
	if err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	a.log.Info("telegram reachable", logx.String("bot", "@"+info.Username), logx.Int64("bot_id", info.ID))
	return nil
}

// Start runs the startup sequence. Any error aborts before the watcher runs;
// the caller is expected to call Stop to release what was opened.
func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx,
		supervisor.WithLogger(a.log.With(logx.String("comp", "supervisor"))),
		supervisor.WithCancelOnError(true),
	)

	if err := a.Check(ctx); err != nil {
		return err
	}

	if sc, ok := mapStorageConfig(a.cfg, a.rt); ok {
		st, err := storage.Open(sc, a.log.With(logx.String("comp", "storage")))
		if err != nil {
			return fmt.Errorf("audit store: %w", err)
		}
		a.audit = st
	}
	var rec notifier.Recorder
	if a.audit != nil {
		rec = a.audit
	}
	a.notif = notifier.New(mapNotifierConfig(a.cfg, a.rt), a.tg, a.log.With(logx.String("comp", "notifier")), rec)

	a.src = source.New(a.db, a.log.With(logx.String("comp", "source")))
	a.src.Init(ctx)

	if err := announce(ctx, a.notif, a.dests, a.log); err != nil {
		return err
	}

	p := &pipeline{deliver: a.notif, dests: a.dests}
	if a.enrich != nil {
		p.enrich = a.enrich
	}
	a.watch = watcher.New(mapWatcherConfig(a.rt), a.src, p, a.log.With(logx.String("comp", "watcher")))
	if err := a.watch.Start(a.sup.Context()); err != nil {
		return err
	}
	a.sup.Go("watcher", func(c context.Context) error {
		select {
		case <-c.Done():
			return nil
		case <-a.watch.Done():
			if c.Err() != nil {
				return nil
			}
			return errors.New("watcher exited unexpectedly")
		}
	})

	a.checker = health.NewChecker(mapHealthConfig(a.rt), a.log.With(logx.String("comp", "health")),
		health.Probe{Name: "database", Check: a.db.Ping},
		health.Probe{Name: "telegram", Check: func(c context.Context) error {
			_, err := a.tg.Ping(c)
			return err
		}},
	)
	cr, err := health.NewScheduler(a.rt.HealthSchedule, a.checker, a.log.With(logx.String("comp", "health")))
	if err != nil {
		return err
	}
	a.cron = cr
	a.cron.Start()

	if addr := strings.TrimSpace(a.cfg.Health.Addr); addr != "" {
		var opts []health.ServerOption
		if a.cfg.Health.Pprof {
			opts = append(opts, health.WithPprof())
		}
		srv := health.NewServer(addr, a.checker, a.status, a.log.With(logx.String("comp", "http")), opts...)
		a.sup.Go("health.server", srv.Run)
	}

	if ok, err := systemd.Ready(); err != nil {
		a.log.Warn("sd_notify ready failed", logx.Err(err))
	} else if ok {
		_, _ = systemd.Status(fmt.Sprintf("watching from vid %d, %d destination(s)", a.src.Cursor(), len(a.dests)))
	}

	a.log.Info("app started",
		logx.Int64("cursor", a.src.Cursor()),
		logx.Int("destinations", len(a.dests)),
		logx.Duration("interval", a.rt.PollInterval),
		logx.Bool("enrich", a.enrich != nil),
	)
	return nil
}

type broadcaster interface {
	Broadcast(ctx context.Context, text string, dests []kit.ChatTarget) []notifier.Outcome
}

// announce sends the online message. Startup continues as long as one
// destination received it; the others are retried with every record.
func announce(ctx context.Context, b broadcaster, dests []kit.ChatTarget, log logx.Logger) error {
	outs := b.Broadcast(ctx, format.Startup(len(dests)), dests)
	if notifier.AllFailed(outs) {
		return fmt.Errorf("startup message failed for every destination: %w", outs[0].Err)
	}
	if n := notifier.Failed(outs); n > 0 {
		log.Warn("startup message not delivered everywhere",
			logx.Int("failed", n),
			logx.Int("destinations", len(dests)),
		)
	}
	return nil
}

// Run starts the app and blocks until ctx is canceled or a supervised
// goroutine fails. The returned error is non-nil on a startup failure, a
// fatal runtime error or a recovered panic.
func (a *App) Run(ctx context.Context) error {
	if err := a.Start(ctx); err != nil {
		a.log.Error("startup failed", logx.Err(err))
		a.shutdown(StopStartupFailed)
		return err
	}

	reason := StopSignal
	select {
	case <-ctx.Done():
	case <-a.sup.Context().Done():
		if ctx.Err() == nil {
			reason = StopFatalError
		}
	}
	a.shutdown(reason)
	return a.Err()
}

func (a *App) shutdown(reason StopReason) {
	sctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	_ = a.Stop(sctx, reason)
}

// Stop tears components down in reverse start order. It is safe after a
// partial Start.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	a.log.Info("stopping", logx.String("reason", string(reason)))
	_, _ = systemd.Stopping()

	if a.sup != nil {
		a.sup.Cancel()
	}

	// run a shutdown step with an upper bound so one component can't stall the whole stop
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		if dl, ok := ctx.Deadline(); ok {
			if rem := time.Until(dl); rem < max {
				max = rem
			}
		}
		if max <= 0 {
			a.log.Warn("stop step skipped, deadline reached", logx.String("name", name))
			return
		}
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	// The in-flight record finishes delivery before the watcher reports stopped.
	if a.watch != nil {
		step("watcher", 20*time.Second, a.watch.Stop)
	}
	if a.cron != nil {
		step("health", 2*time.Second, func(c context.Context) error { a.cron.Stop(c); return nil })
	}
	if a.sup != nil {
		step("supervisor", 6*time.Second, a.sup.Wait)
	}
	if a.audit != nil {
		step("storage", 2*time.Second, func(context.Context) error { return a.audit.Close() })
	}
	if a.db != nil {
		step("database", 2*time.Second, func(context.Context) error { a.db.Close(); return nil })
	}

	a.log.Info("stopped")
	return a.logs.Close()
}

// Close releases what Check or Preview opened. Use Stop after Start.
func (a *App) Close() error {
	if a.db != nil {
		a.db.Close()
		a.db = nil
	}
	return a.logs.Close()
}

// Preview renders the notification for one stored record without sending it.
func (a *App) Preview(ctx context.Context, vid int64, w io.Writer) error {
	if err := a.openStore(ctx); err != nil {
		return err
	}
	ev, err := a.db.EventByVID(ctx, vid)
	if err != nil {
		return fmt.Errorf("load vid %d: %w", vid, err)
	}
	return a.render(ctx, ev, w)
}

func (a *App) render(ctx context.Context, ev model.Event, w io.Writer) error {
	var md *model.Metadata
	if a.enrich != nil {
		md = a.enrich.Fetch(ctx, ev.URI())
	}
	msg := format.Format(ev, md)
	if msg.HasImage() {
		mode := "photo"
		if !format.CaptionFits(msg.Text) {
			mode = "text (caption too long)"
		}
		if _, err := fmt.Fprintf(w, "image: %s\nmode: %s\n\n", msg.Image, mode); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, msg.Text)
	return err
}

type statusView struct {
	Watcher      watcher.Stats           `json:"watcher"`
	Health       health.Result           `json:"health"`
	LastHealthy  time.Time               `json:"last_healthy"`
	Destinations []string                `json:"destinations"`
	Supervisor   supervisor.Snapshot     `json:"supervisor"`
	Deliveries   []storage.DeliveryEntry `json:"recent_deliveries,omitempty"`
}

func (a *App) status(ctx context.Context) any {
	v := statusView{Destinations: make([]string, 0, len(a.dests))}
	for _, d := range a.dests {
		v.Destinations = append(v.Destinations, d.String())
	}
	if a.watch != nil {
		v.Watcher = a.watch.Stats()
	}
	if a.checker != nil {
		v.Health, v.LastHealthy = a.checker.Last()
	}
	if a.sup != nil {
		v.Supervisor = a.sup.Snapshot()
	}
	if a.audit != nil {
		rctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if recent, err := a.audit.RecentDeliveries(rctx, 20); err == nil {
			v.Deliveries = recent
		} else {
			a.log.Debug("recent deliveries unavailable", logx.Err(err))
		}
	}
	return v
}
