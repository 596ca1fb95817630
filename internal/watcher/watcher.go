// Package watcher drives the poll loop: fetch new events, hand each one to
// a handler in order, wait, repeat.
//
// There is a single worker goroutine. The next cycle is scheduled only after
// the current one finishes, so a large backlog slows polling down instead of
// overlapping cycles.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"tokenbot/internal/model"
	logx "tokenbot/pkg/logx"
)

var ErrAlreadyStarted = errors.New("watcher already started")

// Source yields events newer than everything it returned before.
type Source interface {
	Poll(ctx context.Context) ([]model.Event, error)
}

// Cursorer is implemented by sources that expose their position.
type Cursorer interface {
	Cursor() int64
}

// Handler processes one event. Errors and panics are logged and do not stop
// the batch.
type Handler interface {
	Handle(ctx context.Context, ev model.Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, ev model.Event) error

func (f HandlerFunc) Handle(ctx context.Context, ev model.Event) error { return f(ctx, ev) }

type State int

const (
	Idle State = iota
	Running
	Stopping
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

type Config struct {
	// Interval is the pause between the end of one cycle and the start of the next.
	Interval time.Duration
	// Pacing is the pause between two records of the same batch.
	Pacing time.Duration
	// PollTimeout bounds one Source.Poll call.
	PollTimeout time.Duration
}

// Stats is a point-in-time snapshot for status reporting.
type Stats struct {
	State        string    `json:"state"`
	Cycles       uint64    `json:"cycles"`
	Handled      uint64    `json:"handled"`
	Failures     uint64    `json:"failures"`
	PollErrors   uint64    `json:"poll_errors"`
	Cursor       int64     `json:"cursor"`
	LastStart    time.Time `json:"last_cycle_start,omitempty"`
	LastEnd      time.Time `json:"last_cycle_end,omitempty"`
	LastError    string    `json:"last_error,omitempty"`
	LastErrorVID int64     `json:"last_error_vid,omitempty"`
}

type Watcher struct {
	cfg Config
	src Source
	h   Handler
	log logx.Logger

	mu    sync.Mutex
	state State
	stats Stats

	stopCh chan struct{}
	done   chan struct{}
}

func New(cfg Config, src Source, h Handler, log logx.Logger) *Watcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	if cfg.Pacing < 0 {
		cfg.Pacing = 0
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 30 * time.Second
	}
	return &Watcher{
		cfg:    cfg,
		src:    src,
		h:      h,
		log:    log,
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

func (w *Watcher) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Done is closed once the loop has exited.
func (w *Watcher) Done() <-chan struct{} { return w.done }

func (w *Watcher) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	st := w.stats
	st.State = w.state.String()
	return st
}

// Start launches the loop. The first cycle runs immediately.
// Handler calls receive a context detached from ctx cancellation; use Stop
// to end the loop between records.
func (w *Watcher) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	w.mu.Lock()
	if w.state != Idle {
		w.mu.Unlock()
		return ErrAlreadyStarted
	}
	w.state = Running
	w.mu.Unlock()

	w.log.Info("watcher started", logx.Duration("interval", w.cfg.Interval), logx.Duration("pacing", w.cfg.Pacing))
	go w.loop(context.WithoutCancel(ctx))
	return nil
}

// Stop asks the loop to exit and waits until it has, or until ctx ends.
// An in-flight record is allowed to finish.
func (w *Watcher) Stop(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	w.mu.Lock()
	switch w.state {
	case Idle:
		w.state = Stopped
		close(w.stopCh)
		close(w.done)
		w.mu.Unlock()
		return nil
	case Running:
		w.state = Stopping
		close(w.stopCh)
	}
	w.mu.Unlock()

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Watcher) stopping() bool {
	select {
	case <-w.stopCh:
		return true
	default:
		return false
	}
}

func (w *Watcher) loop(ctx context.Context) {
	defer func() {
		w.mu.Lock()
		w.state = Stopped
		w.mu.Unlock()
		close(w.done)
		w.log.Info("watcher stopped")
	}()

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-w.stopCh:
			return
		case <-timer.C:
		}

		w.cycle(ctx)
		if w.stopping() {
			return
		}
		timer.Reset(w.cfg.Interval)
	}
}

func (w *Watcher) cycle(ctx context.Context) {
	start := time.Now()
	w.mu.Lock()
	w.stats.Cycles++
	w.stats.LastStart = start
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.stats.LastEnd = time.Now()
		if c, ok := w.src.(Cursorer); ok {
			w.stats.Cursor = c.Cursor()
		}
		w.mu.Unlock()
	}()

	events, err := w.poll(ctx)
	if err != nil {
		w.log.Error("poll failed", logx.Err(err), logx.Duration("took", time.Since(start)))
		w.mu.Lock()
		w.stats.PollErrors++
		w.stats.LastError = err.Error()
		w.stats.LastErrorVID = 0
		w.mu.Unlock()
		return
	}
	if len(events) == 0 {
		return
	}
	w.log.Debug("processing batch", logx.Int("count", len(events)), logx.Int64("first_vid", events[0].VID), logx.Int64("last_vid", events[len(events)-1].VID))

	for i, ev := range events {
		if i > 0 {
			if !w.pause() {
				w.log.Warn("stop requested; leaving batch", logx.Int("remaining", len(events)-i), logx.Int64("next_vid", ev.VID))
				return
			}
		}
		w.handle(ctx, ev)
	}
}

func (w *Watcher) poll(ctx context.Context) (evs []model.Event, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("poll panic: %v", r)
		}
	}()
	pctx, cancel := context.WithTimeout(ctx, w.cfg.PollTimeout)
	defer cancel()
	return w.src.Poll(pctx)
}

func (w *Watcher) handle(ctx context.Context, ev model.Event) {
	start := time.Now()
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				w.log.Error("handler panic", logx.Int64("vid", ev.VID), logx.Any("panic", r), logx.Stack(logx.StackTrace(3, 32)))
				err = fmt.Errorf("handler panic: %v", r)
			}
		}()
		return w.h.Handle(ctx, ev)
	}()

	w.mu.Lock()
	w.stats.Handled++
	if err != nil {
		w.stats.Failures++
		w.stats.LastError = err.Error()
		w.stats.LastErrorVID = ev.VID
	}
	w.mu.Unlock()

	if err != nil {
		w.log.Error("event processing failed", logx.Int64("vid", ev.VID), logx.String("mint", ev.Mint), logx.Duration("took", time.Since(start)), logx.Err(err))
		return
	}
	w.log.Info("event processed", logx.Int64("vid", ev.VID), logx.String("token", ev.DisplayName()), logx.Duration("took", time.Since(start)))
}

// pause waits Pacing between records. It reports false when a stop arrived.
func (w *Watcher) pause() bool {
	if w.cfg.Pacing <= 0 {
		return !w.stopping()
	}
	t := time.NewTimer(w.cfg.Pacing)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-w.stopCh:
		return false
	}
}
